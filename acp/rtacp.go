package acp

import (
	"bytes"
	"time"

	"github.com/artie-robotics/artiecan"
)

// ackWindow is the time a targeted send waits for its acknowledgment.
// One window, no retries; retry policy is the caller's.
const ackWindow = time.Millisecond

// Message is a real-time message: up to eight payload bytes carried
// verbatim in a single frame. The CAN native CRC covers it; the stack
// adds none.
type Message struct {
	Priority artiecan.Priority
	Sender   artiecan.NodeAddress
	Target   artiecan.NodeAddress
	Kind     RTACPKind
	Len      uint8
	Data     [8]byte
}

// Bytes returns the payload slice.
func (m *Message) Bytes() []byte {
	return m.Data[:m.Len]
}

// MarshalCANFrame packs the message into its wire frame.
func (m Message) MarshalCANFrame() (artiecan.Frame, error) {
	if err := m.Sender.Validate(); err != nil {
		return artiecan.Frame{}, err
	}
	if err := m.Target.Validate(); err != nil {
		return artiecan.Frame{}, err
	}
	if err := m.Priority.Validate(); err != nil {
		return artiecan.Frame{}, err
	}
	if m.Len > 8 {
		return artiecan.Frame{}, artiecan.ErrInvalidLen
	}
	f := artiecan.Frame{
		ID:       rtacpID(m.Kind, m.Priority, m.Sender, m.Target),
		Extended: true,
		Len:      m.Len,
		Data:     m.Data,
	}
	return f, nil
}

// UnmarshalCANFrame decodes the message from a wire frame.
func (m *Message) UnmarshalCANFrame(f artiecan.Frame) error {
	if f.Protocol() != artiecan.ProtoRTACP {
		return artiecan.ErrProtocolMismatch
	}
	if f.Len > 8 {
		return artiecan.ErrInvalidLen
	}
	m.Kind, m.Priority, m.Sender, m.Target = parseRTACPID(f.ID)
	m.Len = f.Len
	m.Data = f.Data
	return nil
}

// RTACP is the real-time layer bound to a node.
type RTACP struct {
	node *artiecan.Node
}

// NewRTACP binds the real-time layer to a node.
func NewRTACP(node *artiecan.Node) *RTACP {
	return &RTACP{node: node}
}

// Send packs and transmits the message. When waitAck is set, the message
// is a MSG frame, and the target is not broadcast, Send waits one
// millisecond for the matching acknowledgment: an ACK frame whose sender
// and target are the message's swapped and whose payload equals the
// message's. Non-matching frames are discarded. On expiry the send fails
// with ErrTimeout.
func (r *RTACP) Send(msg *Message, waitAck bool) error {
	f, err := msg.MarshalCANFrame()
	if err != nil {
		return err
	}
	if err := r.node.Send(f); err != nil {
		return err
	}

	if !waitAck || msg.Kind != RTACPMsg || msg.Target == artiecan.Broadcast {
		return nil
	}

	_, err = recvMatch(r.node, ackWindow, func(f artiecan.Frame) bool {
		if f.Protocol() != artiecan.ProtoRTACP {
			return false
		}
		kind, _, sender, target := parseRTACPID(f.ID)
		return kind == RTACPAck &&
			sender == msg.Target &&
			target == msg.Sender &&
			f.Len == msg.Len &&
			bytes.Equal(f.Data[:f.Len], msg.Data[:msg.Len])
	})
	return err
}

// Receive drains frames until a real-time frame arrives and decodes it.
// A MSG frame targeted at this node is acknowledged automatically with the
// same priority and payload, sender and target swapped; acknowledgments
// and broadcasts are delivered without an ACK.
func (r *RTACP) Receive(timeout time.Duration) (Message, error) {
	f, err := recvMatch(r.node, timeout, func(f artiecan.Frame) bool {
		return f.Protocol() == artiecan.ProtoRTACP
	})
	if err != nil {
		return Message{}, err
	}

	var msg Message
	if err := msg.UnmarshalCANFrame(f); err != nil {
		return Message{}, err
	}

	if msg.Kind == RTACPMsg && msg.Target == r.node.Address() {
		ack := Message{
			Priority: msg.Priority,
			Sender:   r.node.Address(),
			Target:   msg.Sender,
			Kind:     RTACPAck,
			Len:      msg.Len,
			Data:     msg.Data,
		}
		// No ACK-of-ACK; a failed acknowledgment surfaces to the peer
		// as its own ACK timeout.
		_ = r.Send(&ack, false)
	}
	return msg, nil
}
