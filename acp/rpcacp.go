package acp

import (
	"fmt"
	"time"

	"github.com/artie-robotics/artiecan"
)

// responseWindow is how long a call waits for its ACK or NACK.
const responseWindow = 30 * time.Millisecond

// rpcSyncFlag is bit 7 of the header byte; bits 0-6 carry the procedure
// id.
const rpcSyncFlag = 0x80

// rpcHeaderSize is the leading header byte plus the two CRC bytes in a
// StartRPC/StartReturn frame.
const rpcHeaderSize = 3

// NackCode is the 8-bit errno-style code carried in a NACK frame. It is
// carried opaquely on the wire; these are the assigned values.
type NackCode uint8

const (
	NackPermission NackCode = 0x01 // EPERM
	NackTooBig     NackCode = 0x07 // E2BIG
	NackFormat     NackCode = 0x08 // ENOEXEC
	NackAgain      NackCode = 0x0B // EAGAIN
	NackInvalid    NackCode = 0x16 // EINVAL
	NackAlready    NackCode = 0x72 // EALREADY
)

// NackError reports that the RPC peer explicitly refused a call.
type NackError struct {
	Code NackCode
}

func (e *NackError) Error() string {
	return fmt.Sprintf("acp: rpc refused (code 0x%02X)", uint8(e.Code))
}

// RPCMessage is a decoded remote-procedure-call exchange frame or
// reassembled transfer.
type RPCMessage struct {
	Priority artiecan.Priority
	Sender   artiecan.NodeAddress
	Target   artiecan.NodeAddress
	Kind     RPCKind
	Nonce    uint8

	// StartRPC / StartReturn fields.
	Synchronous bool
	ProcedureID uint8
	CRC16       uint16

	// NACK field.
	NackCode NackCode

	Payload    [MaxRPCPayload]byte
	PayloadLen int
}

// Bytes returns the payload slice.
func (m *RPCMessage) Bytes() []byte {
	return m.Payload[:m.PayloadLen]
}

// RPC is the remote-procedure-call layer bound to a node.
type RPC struct {
	node      *artiecan.Node
	seed      uint8
	lastNonce uint8
	asm       assembler
}

// NewRPC binds the RPC layer to a node.
func NewRPC(node *artiecan.Node) *RPC {
	return &RPC{node: node, seed: 1}
}

// nextNonce returns the next exchange correlator. The generator is a
// small LCG: the nonce only needs to be collision-resistant across
// concurrent exchanges from the same sender, and must never be zero
// (zero is reserved to mean "unused").
func (r *RPC) nextNonce() uint8 {
	r.seed = r.seed*75 + 74
	if r.seed == 0 {
		r.seed = 1
	}
	return r.seed
}

// Call issues a procedure call: StartRPC carrying the header byte, the
// CRC16 of (header || stuffed payload) and as much stuffed payload as
// fits, then TxData continuation frames. It then waits up to 30 ms for
// the peer's ACK or NACK; a NACK surfaces as *NackError. Broadcast
// targets are forbidden.
func (r *RPC) Call(target artiecan.NodeAddress, prio artiecan.Priority, synchronous bool, procID uint8, payload []byte) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if target == artiecan.Broadcast {
		return fmt.Errorf("%w: rpc target must be unicast", artiecan.ErrInvalidArgument)
	}
	if err := prio.Validate(); err != nil {
		return err
	}
	if procID > 0x7F {
		return fmt.Errorf("%w: procedure id 0x%02X (valid 0x00-0x7F)", artiecan.ErrInvalidArgument, procID)
	}
	if len(payload) > MaxRPCPayload {
		return fmt.Errorf("%w: rpc payload %d bytes (max %d)", artiecan.ErrInvalidArgument, len(payload), MaxRPCPayload)
	}

	header := procID & 0x7F
	if synchronous {
		header |= rpcSyncFlag
	}
	nonce := r.nextNonce()
	r.lastNonce = nonce
	if err := r.sendStuffed(RPCStartCall, RPCTxData, target, prio, header, nonce, payload); err != nil {
		return err
	}

	f, err := recvMatch(r.node, responseWindow, func(f artiecan.Frame) bool {
		if f.Protocol() != artiecan.ProtoRPCACP {
			return false
		}
		_, _, sender, tgt, n := parseRPCID(f.ID)
		return sender == target && tgt == r.node.Address() && n == nonce
	})
	if err != nil {
		return err
	}
	kind, _, _, _, _ := parseRPCID(f.ID)
	switch kind {
	case RPCAck:
		return nil
	case RPCNack:
		if f.Len < 1 {
			return artiecan.ErrInvalidFrame
		}
		return &NackError{Code: NackCode(f.Data[0])}
	default:
		return artiecan.ErrProtocolMismatch
	}
}

// WaitResponse consumes frames until the StartReturn correlated with the
// last Call arrives, reassembles and verifies it, and returns the decoded
// message.
func (r *RPC) WaitResponse(timeout time.Duration) (RPCMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		var rem time.Duration
		if timeout > 0 {
			rem = time.Until(deadline)
			if rem <= 0 {
				return RPCMessage{}, artiecan.ErrTimeout
			}
		}
		msg, err := r.Receive(rem)
		if err != nil {
			return RPCMessage{}, err
		}
		if msg.Kind == RPCStartReturn && msg.Nonce == r.lastNonce {
			return msg, nil
		}
	}
}

// Receive consumes frames until a complete RPC exchange element arrives:
// an ACK, a NACK, or a fully reassembled StartRPC/StartReturn transfer
// (continuation frames are collected within the same window). Stray
// continuation frames without a start are discarded.
func (r *RPC) Receive(timeout time.Duration) (RPCMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		var rem time.Duration
		if timeout > 0 {
			rem = time.Until(deadline)
			if rem <= 0 {
				return RPCMessage{}, artiecan.ErrTimeout
			}
		}
		f, err := recvMatch(r.node, rem, func(f artiecan.Frame) bool {
			return f.Protocol() == artiecan.ProtoRPCACP
		})
		if err != nil {
			return RPCMessage{}, err
		}

		kind, prio, sender, target, nonce := parseRPCID(f.ID)
		msg := RPCMessage{
			Priority: prio,
			Sender:   sender,
			Target:   target,
			Kind:     kind,
			Nonce:    nonce,
		}
		switch kind {
		case RPCAck:
			return msg, nil
		case RPCNack:
			if f.Len < 1 {
				return RPCMessage{}, artiecan.ErrInvalidFrame
			}
			msg.NackCode = NackCode(f.Data[0])
			return msg, nil
		case RPCStartCall, RPCStartReturn:
			if err := r.collect(&msg, f, deadline, timeout); err != nil {
				return RPCMessage{}, err
			}
			return msg, nil
		default:
			// TxData/RxData without a start, or an unassigned kind.
			continue
		}
	}
}

// collect reassembles the stuffed payload of a StartRPC/StartReturn
// exchange, verifies the CRC and unstuffs into the message.
func (r *RPC) collect(msg *RPCMessage, first artiecan.Frame, deadline time.Time, timeout time.Duration) error {
	if first.Len < rpcHeaderSize {
		return artiecan.ErrInvalidFrame
	}
	header := first.Data[0]
	msg.Synchronous = header&rpcSyncFlag != 0
	msg.ProcedureID = header & 0x7F
	msg.CRC16 = uint16(first.Data[1])<<8 | uint16(first.Data[2])

	slot, err := r.asm.start(msg.Sender, msg.Nonce)
	if err != nil {
		return err
	}
	defer r.asm.release(slot)

	cont := RPCTxData
	if msg.Kind == RPCStartReturn {
		cont = RPCRxData
	}

	// A start frame with no stuffed bytes is a complete empty transfer.
	if first.Len > rpcHeaderSize {
		if err := slot.append(first.Data[rpcHeaderSize:first.Len]); err != nil {
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
			cf, err := recvMatch(r.node, rem, func(f artiecan.Frame) bool {
				if f.Protocol() != artiecan.ProtoRPCACP {
					return false
				}
				k, _, s, _, n := parseRPCID(f.ID)
				return k == cont && s == msg.Sender && n == msg.Nonce
			})
			if err != nil {
				return err
			}
			if err := slot.append(cf.Data[:cf.Len]); err != nil {
				return err
			}
		}
	}

	var crcBuf [MaxStuffedPayload + 1]byte
	crcBuf[0] = header
	copy(crcBuf[1:], slot.buf[:slot.n])
	if CRC16(crcBuf[:1+slot.n]) != msg.CRC16 {
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

// Respond sends the return value of a procedure as a StartReturn frame
// followed by RxData continuation, echoing the caller's nonce. The header
// bit 7 is always set on a return.
func (r *RPC) Respond(target artiecan.NodeAddress, prio artiecan.Priority, procID uint8, nonce uint8, payload []byte) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if err := prio.Validate(); err != nil {
		return err
	}
	if len(payload) > MaxRPCPayload {
		return fmt.Errorf("%w: rpc payload %d bytes (max %d)", artiecan.ErrInvalidArgument, len(payload), MaxRPCPayload)
	}
	header := rpcSyncFlag | procID&0x7F
	return r.sendStuffed(RPCStartReturn, RPCRxData, target, prio, header, nonce, payload)
}

// SendAck acknowledges a received call. ACK frames carry no data.
func (r *RPC) SendAck(target artiecan.NodeAddress, prio artiecan.Priority, nonce uint8) error {
	if err := target.Validate(); err != nil {
		return err
	}
	f := artiecan.Frame{
		ID:       rpcID(RPCAck, prio, r.node.Address(), target, nonce),
		Extended: true,
	}
	return r.node.Send(f)
}

// SendNack refuses a received call with an errno-style code.
func (r *RPC) SendNack(target artiecan.NodeAddress, prio artiecan.Priority, nonce uint8, code NackCode) error {
	if err := target.Validate(); err != nil {
		return err
	}
	f := artiecan.Frame{
		ID:       rpcID(RPCNack, prio, r.node.Address(), target, nonce),
		Extended: true,
		Len:      1,
	}
	f.Data[0] = byte(code)
	return r.node.Send(f)
}

// sendStuffed stuffs the payload, computes the CRC16 over
// (header || stuffed payload), and emits the start frame followed by
// continuation frames carrying pure stuffed payload.
func (r *RPC) sendStuffed(start, cont RPCKind, target artiecan.NodeAddress, prio artiecan.Priority, header uint8, nonce uint8, payload []byte) error {
	var stuffed [MaxStuffedPayload]byte
	n := 0
	if len(payload) > 0 {
		var err error
		n, err = Stuff(stuffed[:], payload)
		if err != nil {
			return err
		}
	}

	var crcBuf [MaxStuffedPayload + 1]byte
	crcBuf[0] = header
	copy(crcBuf[1:], stuffed[:n])
	crc := CRC16(crcBuf[:1+n])

	var f artiecan.Frame
	f.Extended = true
	f.ID = rpcID(start, prio, r.node.Address(), target, nonce)
	f.Data[0] = header
	f.Data[1] = byte(crc >> 8)
	f.Data[2] = byte(crc)
	first := n
	if first > 8-rpcHeaderSize {
		first = 8 - rpcHeaderSize
	}
	copy(f.Data[rpcHeaderSize:], stuffed[:first])
	f.Len = uint8(rpcHeaderSize + first)
	if err := r.node.Send(f); err != nil {
		return err
	}

	for off := first; off < n; {
		chunk := n - off
		if chunk > 8 {
			chunk = 8
		}
		var cf artiecan.Frame
		cf.Extended = true
		cf.ID = rpcID(cont, prio, r.node.Address(), target, nonce)
		copy(cf.Data[:], stuffed[off:off+chunk])
		cf.Len = uint8(chunk)
		if err := r.node.Send(cf); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}
