package acp

import "testing"

func TestAssembler_BoundedSlots(t *testing.T) {
	var a assembler
	for i := 0; i < assemblySlots; i++ {
		if _, err := a.start(0x01, uint8(i)); err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
	}
	if _, err := a.start(0x02, 0xEE); err != ErrTooManyStreams {
		t.Fatalf("got %v, want ErrTooManyStreams", err)
	}
}

func TestAssembler_RestartResetsEndpointSlot(t *testing.T) {
	var a assembler
	s, err := a.start(0x01, 0x42)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.append([]byte{0x02, 0xAA}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// The same endpoint starting over reclaims its slot, empty.
	s2, err := a.start(0x01, 0x42)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s2 != s || s2.n != 0 {
		t.Fatalf("restart should reset the same slot (n=%d)", s2.n)
	}
	// Releasing frees capacity for a different endpoint.
	a.release(s2)
	if _, err := a.start(0x03, 0x01); err != nil {
		t.Fatalf("start after release: %v", err)
	}
}

func TestStreamParser_Closure(t *testing.T) {
	var p streamParser
	for _, b := range []byte{0x03, 0x01, 0x02, 0x03} {
		if err := p.feed(b); err != nil {
			t.Fatalf("feed 0x%02X: %v", b, err)
		}
	}
	if p.done {
		t.Fatalf("stream should still be open")
	}
	if err := p.feed(0xFF); err != nil {
		t.Fatalf("terminator: %v", err)
	}
	if !p.done {
		t.Fatalf("stream should be closed")
	}
	if err := p.feed(0x01); err != ErrInvalidStuffing {
		t.Fatalf("bytes after terminator: got %v", err)
	}
}

func TestStreamParser_ZeroCounter(t *testing.T) {
	var p streamParser
	if err := p.feed(0x00); err != ErrInvalidStuffing {
		t.Fatalf("got %v, want ErrInvalidStuffing", err)
	}
}
