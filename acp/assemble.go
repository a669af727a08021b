package acp

import (
	"errors"

	"github.com/artie-robotics/artiecan"
)

// ErrTooManyStreams indicates the bounded reassembly table overflowed.
var ErrTooManyStreams = errors.New("acp: too many concurrent streams")

// assemblySlots bounds the number of concurrently reassembling streams.
const assemblySlots = 4

// streamParser tracks a stuffed byte stream incrementally so a receiver
// knows when the terminator closes it without rescanning.
type streamParser struct {
	run  int // raw bytes remaining in the current block
	done bool
}

func (p *streamParser) reset() {
	p.run = 0
	p.done = false
}

// feed consumes one stuffed byte.
func (p *streamParser) feed(b byte) error {
	if p.done {
		return ErrInvalidStuffing
	}
	if p.run > 0 {
		p.run--
		return nil
	}
	switch b {
	case stuffZero:
		return ErrInvalidStuffing
	case stuffTerm:
		p.done = true
	default:
		p.run = int(b)
	}
	return nil
}

// assemblySlot accumulates one stuffed stream from one source endpoint.
type assemblySlot struct {
	active bool
	sender artiecan.NodeAddress
	key    uint8 // nonce (RPC) or topic (pub/sub)
	buf    [MaxStuffedPayload]byte
	n      int
	parser streamParser
}

func (s *assemblySlot) complete() bool {
	return s.parser.done
}

// append feeds stuffed bytes into the slot.
func (s *assemblySlot) append(data []byte) error {
	if s.n+len(data) > len(s.buf) {
		return ErrBufferTooSmall
	}
	for _, b := range data {
		if err := s.parser.feed(b); err != nil {
			return err
		}
	}
	copy(s.buf[s.n:], data)
	s.n += len(data)
	return nil
}

// assembler is the fixed reassembly table. One stream per source endpoint:
// a new first frame from an endpoint that already holds a slot resets it
// (overlapping streams from one endpoint are rejected by reset, per the
// wire contract that a sender never interleaves its own transfers).
type assembler struct {
	slots [assemblySlots]assemblySlot
}

// start claims (or resets) the slot for an endpoint.
func (a *assembler) start(sender artiecan.NodeAddress, key uint8) (*assemblySlot, error) {
	var free *assemblySlot
	for i := range a.slots {
		s := &a.slots[i]
		if s.active && s.sender == sender && s.key == key {
			free = s
			break
		}
		if !s.active && free == nil {
			free = s
		}
	}
	if free == nil {
		return nil, ErrTooManyStreams
	}
	free.active = true
	free.sender = sender
	free.key = key
	free.n = 0
	free.parser.reset()
	return free, nil
}

// release frees a slot after delivery or on error.
func (a *assembler) release(s *assemblySlot) {
	s.active = false
	s.n = 0
	s.parser.reset()
}
