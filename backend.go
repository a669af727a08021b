package artiecan

import (
	"fmt"
	"time"
)

// DefaultInterface is the CAN network interface the native backend binds
// when opened through Open.
const DefaultInterface = "can0"

// Backend is the transport contract shared by every frame carrier.
//
// Implementations must not allocate on the steady-state send/receive path;
// all scratch space lives on the backend value itself.
type Backend interface {
	// Open prepares the transport. It may fail (no route, bind failed).
	// Opening an already-open backend is an error; Open is valid again
	// only after Close.
	Open() error

	// Send hands one frame to the transport. It returns nil,
	// ErrBackpressure when the transport cannot take the frame right
	// now, or a fatal transport error. It never blocks indefinitely and
	// never queues on backpressure.
	Send(Frame) error

	// Receive returns the next frame, ErrTimeout when the window
	// expires, or a fatal transport error. A zero timeout means
	// non-blocking.
	Receive(timeout time.Duration) (Frame, error)

	// Close releases transport resources. Idempotent; subsequent
	// operations fail with ErrNotOpen.
	Close() error
}

// Kind selects one of the built-in backends.
type Kind int

const (
	// KindNativeCAN is the kernel raw CAN socket bound to DefaultInterface.
	KindNativeCAN Kind = iota

	// KindSPIController drives an external MCP2515 CAN controller over SPI.
	// It needs an SPI connection, so it is only reachable through
	// OpenCustom with NewMCP2515.
	KindSPIController

	// KindLocalQueue is the in-process bounded ring for same-process tests.
	KindLocalQueue

	// KindTCPTunnel carries length-prefixed frames over a stream socket,
	// configured from the environment.
	KindTCPTunnel
)

// String names the backend kind.
func (k Kind) String() string {
	switch k {
	case KindNativeCAN:
		return "native-can"
	case KindSPIController:
		return "spi-controller"
	case KindLocalQueue:
		return "local-queue"
	case KindTCPTunnel:
		return "tcp-tunnel"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// newBackend constructs the backend for a kind. The TCP tunnel sources its
// configuration from the environment; use OpenCustom with NewTCPTunnel for
// explicit configuration.
func newBackend(kind Kind) (Backend, error) {
	switch kind {
	case KindNativeCAN:
		return NewSocketCAN(DefaultInterface), nil
	case KindSPIController:
		return nil, fmt.Errorf("%w: SPI controller needs a connection; use OpenCustom(addr, NewMCP2515(conn))", ErrInvalidArgument)
	case KindLocalQueue:
		return NewLocalQueue(), nil
	case KindTCPTunnel:
		cfg, err := TCPConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return NewTCPTunnel(cfg), nil
	}
	return nil, fmt.Errorf("%w: unknown backend kind %d", ErrInvalidArgument, int(kind))
}
