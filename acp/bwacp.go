package acp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/artie-robotics/artiecan"
)

// ErrFrameLoss indicates a block-write DATA frame arrived with the wrong
// parity: a frame was lost. The collector keeps its state so the caller
// can request a repeat.
var ErrFrameLoss = errors.New("acp: block-write frame lost")

// bwReadyHeader is the CRC24 (3 bytes) plus application address (4 bytes)
// leading a READY frame; at most one initial stuffed byte follows.
const bwReadyHeader = 7

// BWMessage is one decoded block-write frame. CRC verification against
// the full reassembled stuffed payload is the caller's responsibility;
// Collector does it for the common case.
type BWMessage struct {
	Priority  artiecan.Priority
	Sender    artiecan.NodeAddress
	Target    artiecan.NodeAddress
	ClassMask BWClass
	Kind      BWKind

	Interrupt bool // READY: interrupt an ongoing transfer
	RepeatAll bool // REPEAT: full-sequence vs last-frame repeat
	Repeated  bool // DATA: frame is a retransmission
	Parity    bool // DATA: toggling tail bit

	CRC24   uint32 // READY
	Address uint32 // READY

	Payload    [8]byte
	PayloadLen int
}

// Bytes returns the stuffed payload bytes the frame carries.
func (m *BWMessage) Bytes() []byte {
	return m.Payload[:m.PayloadLen]
}

// BlockWriter is the block-write layer bound to a node. The sender side
// retains the last transmitted sequence so REPEAT requests can be honored
// with Resend.
type BlockWriter struct {
	node *artiecan.Node

	haveBlock bool
	haveFrame bool
	target    artiecan.NodeAddress
	class     BWClass
	prio      artiecan.Priority
	addr      uint32
	interrupt bool
	stuffed   [MaxStuffedPayload]byte
	n         int
	lastFrame artiecan.Frame
}

// NewBlockWriter binds the block-write layer to a node.
func NewBlockWriter(node *artiecan.Node) *BlockWriter {
	return &BlockWriter{node: node}
}

// SendReady starts a block write: the payload is stuffed, a CRC24 is
// computed over (four address bytes || stuffed payload), and a READY
// frame is emitted carrying the three CRC bytes, the four address bytes
// and at most one initial stuffed byte. The remainder follows as DATA
// frames with the tail parity toggling from 0. Multicast is selected with
// target Multicast and a class mask.
func (w *BlockWriter) SendReady(target artiecan.NodeAddress, class BWClass, prio artiecan.Priority, addr uint32, payload []byte, interrupt bool) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if err := prio.Validate(); err != nil {
		return err
	}

	n := 0
	if len(payload) > 0 {
		var err error
		n, err = Stuff(w.stuffed[:], payload)
		if err != nil {
			return err
		}
	}
	w.haveBlock = true
	w.haveFrame = false
	w.target = target
	w.class = class
	w.prio = prio
	w.addr = addr
	w.interrupt = interrupt
	w.n = n

	return w.emitBlock(false)
}

// emitBlock sends the retained READY frame and its DATA continuation;
// repeated marks the DATA frames as retransmissions.
func (w *BlockWriter) emitBlock(repeated bool) error {
	var crcBuf [MaxStuffedPayload + 4]byte
	binary.BigEndian.PutUint32(crcBuf[0:4], w.addr)
	copy(crcBuf[4:], w.stuffed[:w.n])
	crc := CRC24(crcBuf[:4+w.n])

	var f artiecan.Frame
	f.Extended = true
	f.ID = bwID(BWReady, w.prio, w.node.Address(), w.target, w.class, w.interrupt, true)
	f.Data[0] = byte(crc >> 16)
	f.Data[1] = byte(crc >> 8)
	f.Data[2] = byte(crc)
	binary.BigEndian.PutUint32(f.Data[3:7], w.addr)
	if w.n > 0 {
		f.Data[7] = w.stuffed[0]
		f.Len = 8
	} else {
		f.Len = bwReadyHeader
	}
	if err := w.node.Send(f); err != nil {
		return err
	}
	w.lastFrame = f
	w.haveFrame = true

	if w.n > 1 {
		return w.sendChunks(w.stuffed[1:w.n], repeated)
	}
	return nil
}

// SendData emits continuation frames carrying raw stuffed payload bytes,
// toggling the tail parity from 0. Only the last frame is retained, for
// Resend(false); Resend(true) repeats the block of the last SendReady.
func (w *BlockWriter) SendData(target artiecan.NodeAddress, class BWClass, prio artiecan.Priority, stuffed []byte) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if err := prio.Validate(); err != nil {
		return err
	}
	if len(stuffed) > MaxStuffedPayload {
		return fmt.Errorf("%w: block %d bytes (max %d)", artiecan.ErrInvalidArgument, len(stuffed), MaxStuffedPayload)
	}
	w.target = target
	w.class = class
	w.prio = prio
	return w.sendChunks(stuffed, false)
}

func (w *BlockWriter) sendChunks(stuffed []byte, repeated bool) error {
	parity := false
	for off := 0; off < len(stuffed); {
		chunk := len(stuffed) - off
		if chunk > 8 {
			chunk = 8
		}
		var f artiecan.Frame
		f.Extended = true
		f.ID = bwID(BWData, w.prio, w.node.Address(), w.target, w.class, repeated, parity)
		copy(f.Data[:], stuffed[off:off+chunk])
		f.Len = uint8(chunk)
		if err := w.node.Send(f); err != nil {
			return err
		}
		w.lastFrame = f
		w.haveFrame = true
		off += chunk
		parity = !parity
	}
	return nil
}

// Resend services a received REPEAT request: the full retained sequence
// when repeatAll is set, otherwise the last transmitted frame with its
// repeat marker set.
func (w *BlockWriter) Resend(repeatAll bool) error {
	if repeatAll {
		if !w.haveBlock {
			return fmt.Errorf("%w: no block to repeat", artiecan.ErrInvalidArgument)
		}
		return w.emitBlock(true)
	}
	if !w.haveFrame {
		return fmt.Errorf("%w: no frame to repeat", artiecan.ErrInvalidArgument)
	}
	f := w.lastFrame
	f.ID |= 0x02 // repeat marker
	return w.node.Send(f)
}

// SendRepeat asks a block sender for retransmission: the whole sequence
// when repeatAll is set, the last frame otherwise. REPEAT frames carry no
// payload; their tail bit is 0.
func (w *BlockWriter) SendRepeat(target artiecan.NodeAddress, prio artiecan.Priority, repeatAll bool) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if err := prio.Validate(); err != nil {
		return err
	}
	f := artiecan.Frame{
		ID:       bwID(BWRepeat, prio, w.node.Address(), target, 0, repeatAll, false),
		Extended: true,
	}
	return w.node.Send(f)
}

// Receive decodes the next block-write frame (READY, DATA or REPEAT) and
// returns it to the caller.
func (w *BlockWriter) Receive(timeout time.Duration) (BWMessage, error) {
	f, err := recvMatch(w.node, timeout, func(f artiecan.Frame) bool {
		return f.Protocol() == artiecan.ProtoBWACP
	})
	if err != nil {
		return BWMessage{}, err
	}

	kind, prio, sender, target, class, flag, tail := parseBWID(f.ID)
	msg := BWMessage{
		Priority:  prio,
		Sender:    sender,
		Target:    target,
		ClassMask: class,
		Kind:      kind,
	}
	switch kind {
	case BWRepeat:
		msg.RepeatAll = flag
		return msg, nil
	case BWReady:
		if f.Len < bwReadyHeader {
			return BWMessage{}, artiecan.ErrInvalidFrame
		}
		msg.Interrupt = flag
		msg.CRC24 = uint32(f.Data[0])<<16 | uint32(f.Data[1])<<8 | uint32(f.Data[2])
		msg.Address = binary.BigEndian.Uint32(f.Data[3:7])
		if f.Len > bwReadyHeader {
			msg.Payload[0] = f.Data[7]
			msg.PayloadLen = 1
		}
		return msg, nil
	case BWData:
		msg.Repeated = flag
		msg.Parity = tail
		copy(msg.Payload[:], f.Data[:f.Len])
		msg.PayloadLen = int(f.Len)
		return msg, nil
	default:
		return BWMessage{}, artiecan.ErrInvalidFrame
	}
}

// Collector is the per-block receiver state machine:
//
//	IDLE --READY--> IN_PROGRESS --DATA (n)--> IN_PROGRESS
//	IN_PROGRESS --READY(interrupt)--> restarted
//	IN_PROGRESS --stream closes, CRC ok--> delivered
//
// The end of a sequence is detected by closure of the self-framing
// stuffed stream; the tail parity detects lost frames mid-stream
// (ErrFrameLoss, state kept so the caller can request a repeat).
type Collector struct {
	active bool
	done   bool
	sender artiecan.NodeAddress
	addr   uint32
	crc    uint32
	expect bool
	parser streamParser
	buf    [MaxStuffedPayload]byte
	n      int
}

// Feed advances the state machine with one decoded frame. It returns true
// when a block has been fully received and verified; the block is then
// available through Address and Block until the next READY.
func (c *Collector) Feed(msg *BWMessage) (bool, error) {
	switch msg.Kind {
	case BWReady:
		if c.active && !msg.Interrupt {
			return false, artiecan.ErrProtocolMismatch
		}
		c.active = true
		c.done = false
		c.sender = msg.Sender
		c.addr = msg.Address
		c.crc = msg.CRC24
		c.expect = false
		c.n = 0
		c.parser.reset()
		if msg.PayloadLen == 0 {
			// No stuffed stream at all: an empty transfer.
			return c.finish()
		}
		if err := c.append(msg.Bytes()); err != nil {
			return false, err
		}
		if c.parser.done {
			return c.finish()
		}
		return false, nil

	case BWData:
		if !c.active {
			return false, artiecan.ErrProtocolMismatch
		}
		if msg.Sender != c.sender {
			return false, artiecan.ErrProtocolMismatch
		}
		if msg.Parity != c.expect {
			return false, ErrFrameLoss
		}
		if err := c.append(msg.Bytes()); err != nil {
			return false, err
		}
		c.expect = !c.expect
		if c.parser.done {
			return c.finish()
		}
		return false, nil

	case BWRepeat:
		// Sender-side concern; nothing to collect.
		return false, nil
	}
	return false, artiecan.ErrInvalidFrame
}

func (c *Collector) append(data []byte) error {
	if c.n+len(data) > len(c.buf) {
		c.active = false
		return ErrBufferTooSmall
	}
	for _, b := range data {
		if err := c.parser.feed(b); err != nil {
			c.active = false
			return err
		}
	}
	copy(c.buf[c.n:], data)
	c.n += len(data)
	return nil
}

func (c *Collector) finish() (bool, error) {
	c.active = false
	var crcBuf [MaxStuffedPayload + 4]byte
	binary.BigEndian.PutUint32(crcBuf[0:4], c.addr)
	copy(crcBuf[4:], c.buf[:c.n])
	if CRC24(crcBuf[:4+c.n]) != c.crc {
		return false, ErrCRCMismatch
	}
	c.done = true
	return true, nil
}

// Done reports whether a verified block is available.
func (c *Collector) Done() bool {
	return c.done
}

// Address returns the application address of the delivered block.
func (c *Collector) Address() uint32 {
	return c.addr
}

// Block unstuffs the delivered payload into dst and returns its length.
func (c *Collector) Block(dst []byte) (int, error) {
	if !c.done {
		return 0, artiecan.ErrInvalidArgument
	}
	if c.n == 0 {
		return 0, nil
	}
	return Unstuff(dst, c.buf[:c.n])
}

// Reset returns the collector to IDLE, dropping any partial block.
func (c *Collector) Reset() {
	c.active = false
	c.done = false
	c.n = 0
	c.parser.reset()
}
