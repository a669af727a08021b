package artiecan

import (
	"errors"
	"time"
)

// Node is the core context: one bus address bound to one backend.
//
// A Node is owned by one logical task for the life of the owning process
// and is torn down with Close. Each Node owns its backend instance; two
// Nodes in one process mean two queues or sockets.
type Node struct {
	addr    NodeAddress
	backend Backend
	closed  bool
}

// Open validates the address, constructs the backend for kind, and opens
// it.
func Open(addr NodeAddress, kind Kind) (*Node, error) {
	b, err := newBackend(kind)
	if err != nil {
		return nil, err
	}
	return OpenCustom(addr, b)
}

// OpenCustom validates the address and opens a caller-supplied backend
// (parsers, simulators, injected SPI connections).
func OpenCustom(addr NodeAddress, backend Backend) (*Node, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, ErrInvalidArgument
	}
	if err := backend.Open(); err != nil {
		return nil, err
	}
	return &Node{addr: addr, backend: backend}, nil
}

// Address returns the node's bus address.
func (n *Node) Address() NodeAddress {
	return n.addr
}

// Send hands one frame to the backend. Fatal transport errors latch the
// node closed; subsequent calls return ErrNotOpen.
func (n *Node) Send(f Frame) error {
	if n.closed {
		return ErrNotOpen
	}
	err := n.backend.Send(f)
	if isFatal(err) {
		n.closed = true
	}
	return err
}

// Receive returns the next frame from the backend. A zero timeout means
// non-blocking. Fatal transport errors latch the node closed.
func (n *Node) Receive(timeout time.Duration) (Frame, error) {
	if n.closed {
		return Frame{}, ErrNotOpen
	}
	f, err := n.backend.Receive(timeout)
	if isFatal(err) {
		n.closed = true
	}
	return f, err
}

// Close releases the backend. Idempotent.
func (n *Node) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	return n.backend.Close()
}

// isFatal reports whether a backend error ends the context's usefulness.
func isFatal(err error) bool {
	return errors.Is(err, ErrTransportFault) || errors.Is(err, ErrNotOpen)
}
