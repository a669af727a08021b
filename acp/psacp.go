package acp

import (
	"fmt"
	"time"

	"github.com/artie-robotics/artiecan"
)

// psHeaderSize is the two CRC bytes leading a PUB frame.
const psHeaderSize = 2

// PSMessage is a decoded publication.
type PSMessage struct {
	Priority     artiecan.Priority
	Sender       artiecan.NodeAddress
	Topic        Topic
	HighPriority bool
	Kind         PSKind
	CRC16        uint16

	Payload    [MaxPubSubPayload]byte
	PayloadLen int
}

// Bytes returns the payload slice.
func (m *PSMessage) Bytes() []byte {
	return m.Payload[:m.PayloadLen]
}

// PubSub is the publish/subscribe layer bound to a node. Topic filtering
// is the caller's concern; the layer keeps no subscription registry.
type PubSub struct {
	node *artiecan.Node
	asm  assembler
}

// NewPubSub binds the publish/subscribe layer to a node.
func NewPubSub(node *artiecan.Node) *PubSub {
	return &PubSub{node: node}
}

// Publish stuffs the payload, computes the CRC16 over the stuffed bytes,
// and emits a PUB frame carrying (crc_hi, crc_lo, stuffed...) followed by
// DATA continuation frames. highPriority selects the protocol tier that
// competes with the real-time layer; otherwise the publication rides
// below block writes.
func (p *PubSub) Publish(topic Topic, prio artiecan.Priority, highPriority bool, payload []byte) error {
	if err := topic.Validate(); err != nil {
		return err
	}
	if err := prio.Validate(); err != nil {
		return err
	}
	if len(payload) > MaxPubSubPayload {
		return fmt.Errorf("%w: publication %d bytes (max %d)", artiecan.ErrInvalidArgument, len(payload), MaxPubSubPayload)
	}

	var stuffed [MaxStuffedPayload]byte
	n := 0
	if len(payload) > 0 {
		var err error
		n, err = Stuff(stuffed[:], payload)
		if err != nil {
			return err
		}
	}
	crc := CRC16(stuffed[:n])

	var f artiecan.Frame
	f.Extended = true
	f.ID = psID(highPriority, PSPub, prio, p.node.Address(), topic)
	f.Data[0] = byte(crc >> 8)
	f.Data[1] = byte(crc)
	first := n
	if first > 8-psHeaderSize {
		first = 8 - psHeaderSize
	}
	copy(f.Data[psHeaderSize:], stuffed[:first])
	f.Len = uint8(psHeaderSize + first)
	if err := p.node.Send(f); err != nil {
		return err
	}

	for off := first; off < n; {
		chunk := n - off
		if chunk > 8 {
			chunk = 8
		}
		var cf artiecan.Frame
		cf.Extended = true
		cf.ID = psID(highPriority, PSData, prio, p.node.Address(), topic)
		copy(cf.Data[:], stuffed[off:off+chunk])
		cf.Len = uint8(chunk)
		if err := p.node.Send(cf); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

// Receive consumes frames of either pub/sub tier until a complete
// publication arrives: a PUB frame plus any DATA continuation sharing its
// sender and topic, collected within the same window. The CRC16 over the
// stuffed stream is verified before the payload is unstuffed; a mismatch
// discards the publication and surfaces ErrCRCMismatch.
func (p *PubSub) Receive(timeout time.Duration) (PSMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		var rem time.Duration
		if timeout > 0 {
			rem = time.Until(deadline)
			if rem <= 0 {
				return PSMessage{}, artiecan.ErrTimeout
			}
		}
		f, err := recvMatch(p.node, rem, psFrame)
		if err != nil {
			return PSMessage{}, err
		}

		high, kind, prio, sender, topic := parsePSID(f.ID)
		if kind != PSPub {
			// DATA without a PUB in this window; discard.
			continue
		}
		if f.Len < psHeaderSize {
			return PSMessage{}, artiecan.ErrInvalidFrame
		}
		msg := PSMessage{
			Priority:     prio,
			Sender:       sender,
			Topic:        topic,
			HighPriority: high,
			Kind:         kind,
			CRC16:        uint16(f.Data[0])<<8 | uint16(f.Data[1]),
		}
		if err := p.collect(&msg, f, deadline, timeout); err != nil {
			return PSMessage{}, err
		}
		return msg, nil
	}
}

// collect reassembles the stuffed stream of one publication and verifies
// it.
func (p *PubSub) collect(msg *PSMessage, first artiecan.Frame, deadline time.Time, timeout time.Duration) error {
	slot, err := p.asm.start(msg.Sender, uint8(msg.Topic))
	if err != nil {
		return err
	}
	defer p.asm.release(slot)

	if first.Len > psHeaderSize {
		if err := slot.append(first.Data[psHeaderSize:first.Len]); err != nil {
			return err
		}
		for !slot.complete() {
			var rem time.Duration
			if timeout > 0 {
				rem = time.Until(deadline)
				if rem <= 0 {
					return artiecan.ErrTimeout
				}
			}
			cf, err := recvMatch(p.node, rem, func(f artiecan.Frame) bool {
				if !psFrame(f) {
					return false
				}
				high, kind, _, sender, topic := parsePSID(f.ID)
				return kind == PSData && high == msg.HighPriority &&
					sender == msg.Sender && topic == msg.Topic
			})
			if err != nil {
				return err
			}
			if err := slot.append(cf.Data[:cf.Len]); err != nil {
				return err
			}
		}
	}

	if CRC16(slot.buf[:slot.n]) != msg.CRC16 {
		return ErrCRCMismatch
	}
	if slot.n == 0 {
		msg.PayloadLen = 0
		return nil
	}
	n, err := Unstuff(msg.Payload[:], slot.buf[:slot.n])
	if err != nil {
		return err
	}
	msg.PayloadLen = n
	return nil
}

// psFrame matches frames of either pub/sub protocol tier.
func psFrame(f artiecan.Frame) bool {
	p := f.Protocol()
	return p == artiecan.ProtoPSACPHigh || p == artiecan.ProtoPSACPLow
}
