package acp

import (
	"bytes"
	"testing"
)

func TestStuff_Empty(t *testing.T) {
	var dst [4]byte
	n, err := Stuff(dst[:], nil)
	if err != nil {
		t.Fatalf("stuff: %v", err)
	}
	if n != 1 || dst[0] != 0xFF {
		t.Fatalf("stuff(empty) = % X (%d), want FF", dst[:n], n)
	}

	var out [4]byte
	m, err := Unstuff(out[:], dst[:n])
	if err != nil || m != 0 {
		t.Fatalf("unstuff(FF) = %d, %v", m, err)
	}
}

func TestStuff_KnownVectors(t *testing.T) {
	cases := []struct {
		src  []byte
		want []byte
	}{
		{[]byte{0x01, 0x02, 0x03}, []byte{0x03, 0x01, 0x02, 0x03, 0xFF}},
		{[]byte{0xDE, 0xAD, 0xBE, 0xEF}, []byte{0x04, 0xDE, 0xAD, 0xBE, 0xEF, 0xFF}},
		{[]byte{0xAA}, []byte{0x01, 0xAA, 0xFF}},
	}
	var dst [16]byte
	for _, tc := range cases {
		n, err := Stuff(dst[:], tc.src)
		if err != nil {
			t.Fatalf("stuff % X: %v", tc.src, err)
		}
		if !bytes.Equal(dst[:n], tc.want) {
			t.Fatalf("stuff % X = % X, want % X", tc.src, dst[:n], tc.want)
		}
	}
}

func TestStuff_RoundTripLengths(t *testing.T) {
	src := make([]byte, 2047)
	for i := range src {
		src[i] = byte(i * 7)
	}
	var stuffed [MaxStuffedPayload + 16]byte
	var out [MaxStuffedPayload]byte

	for _, l := range []int{0, 1, 2, 7, 8, 253, 254, 255, 508, 509, 1024, 2047} {
		n, err := Stuff(stuffed[:], src[:l])
		if err != nil {
			t.Fatalf("stuff len %d: %v", l, err)
		}
		m, err := Unstuff(out[:], stuffed[:n])
		if err != nil {
			t.Fatalf("unstuff len %d: %v", l, err)
		}
		if m != l || !bytes.Equal(out[:m], src[:l]) {
			t.Fatalf("round trip broken at len %d", l)
		}
	}
}

func TestStuff_Invariants(t *testing.T) {
	src := make([]byte, 600)
	for i := range src {
		src[i] = 0xAB
	}
	var stuffed [700]byte
	n, err := Stuff(stuffed[:], src)
	if err != nil {
		t.Fatalf("stuff: %v", err)
	}
	if stuffed[n-1] != 0xFF {
		t.Fatalf("stuffed form must end with FF")
	}
	// Walk the counters: each must be 1..254 until the terminator.
	i := 0
	for {
		c := stuffed[i]
		if c == 0x00 {
			t.Fatalf("0x00 counter at %d", i)
		}
		if c == 0xFF {
			if i != n-1 {
				t.Fatalf("terminator at %d, want %d", i, n-1)
			}
			break
		}
		if int(c) > 254 {
			t.Fatalf("counter %d at %d", c, i)
		}
		i += 1 + int(c)
	}
}

func TestStuff_BufferTooSmall(t *testing.T) {
	var tiny [3]byte
	if _, err := Stuff(tiny[:], []byte{1, 2, 3}); err != ErrBufferTooSmall {
		t.Fatalf("got %v, want ErrBufferTooSmall", err)
	}
	if _, err := Stuff(nil, nil); err != ErrBufferTooSmall {
		t.Fatalf("empty dst: got %v, want ErrBufferTooSmall", err)
	}
}

func TestUnstuff_Errors(t *testing.T) {
	var out [16]byte
	if _, err := Unstuff(out[:], nil); err != ErrInvalidStuffing {
		t.Fatalf("empty input: got %v, want ErrInvalidStuffing", err)
	}
	if _, err := Unstuff(out[:], []byte{0x00}); err != ErrInvalidStuffing {
		t.Fatalf("zero counter: got %v, want ErrInvalidStuffing", err)
	}
	// Announced run overshoots the input.
	if _, err := Unstuff(out[:], []byte{0x05, 0x01, 0x02}); err != ErrInvalidStuffing {
		t.Fatalf("overshoot: got %v, want ErrInvalidStuffing", err)
	}
	// Output buffer too small.
	var tiny [1]byte
	if _, err := Unstuff(tiny[:], []byte{0x03, 0x01, 0x02, 0x03, 0xFF}); err != ErrBufferTooSmall {
		t.Fatalf("small dst: got %v, want ErrBufferTooSmall", err)
	}
}
