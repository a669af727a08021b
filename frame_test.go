package artiecan

import (
	"testing"
)

func TestFrame_Validate_Marshal_Unmarshal_String(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantStr string
	}{
		{
			name:    "standard frame with data",
			frame:   MustFrame(0x123, []byte{0xDE, 0xAD}),
			wantStr: "123 [2] DE AD",
		},
		{
			name:    "extended RTR, zero length",
			frame:   Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true, Len: 0},
			wantStr: "1ABCDEFF [0] RTR",
		},
	}

	for _, tc := range cases {
		if err := tc.frame.Validate(); err != nil {
			t.Fatalf("%s: Validate() error = %v", tc.name, err)
		}
		b, err := tc.frame.MarshalBinary()
		if err != nil {
			t.Fatalf("%s: MarshalBinary() error = %v", tc.name, err)
		}
		if len(b) != FrameWireSize {
			t.Fatalf("%s: wire size %d, want %d", tc.name, len(b), FrameWireSize)
		}
		var g Frame
		if err := g.UnmarshalBinary(b); err != nil {
			t.Fatalf("%s: UnmarshalBinary() error = %v", tc.name, err)
		}
		if g != tc.frame {
			t.Fatalf("%s: roundtrip mismatch: got %+v want %+v", tc.name, g, tc.frame)
		}
		if got := g.String(); got != tc.wantStr {
			t.Fatalf("%s: String() = %q, want %q", tc.name, got, tc.wantStr)
		}
	}

	// Invalid cases
	{
		f := Frame{ID: 0x800, Len: 0} // standard, out of range
		if err := f.Validate(); err == nil {
			t.Fatalf("expected invalid standard ID")
		}
	}
	{
		f := Frame{ID: 0x20000000, Extended: true} // extended, out of range
		if err := f.Validate(); err == nil {
			t.Fatalf("expected invalid extended ID")
		}
	}
	{
		f := Frame{ID: 0x123, Len: 9}
		if err := f.Validate(); err != ErrInvalidLen {
			t.Fatalf("expected ErrInvalidLen, got %v", f.Validate())
		}
	}
	{
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("MustFrame should panic for len>8")
			}
		}()
		_ = MustFrame(0x123, make([]byte, 9))
	}
}

func TestFrame_Protocol(t *testing.T) {
	cases := []struct {
		id   uint32
		want ProtocolClass
	}{
		{0x03010BFF, ProtoRTACP},     // 000...
		{0x0A84823C, ProtoRPCACP},    // 010...
		{0x1071443F, ProtoPSACPHigh}, // 100...
		{0x14C0A209, ProtoBWACP},     // 101...
		{0x1871443F, ProtoPSACPLow},  // 110...
	}
	for _, tc := range cases {
		f := Frame{ID: tc.id, Extended: true}
		if got := f.Protocol(); got != tc.want {
			t.Fatalf("id 0x%08X: protocol %v, want %v", tc.id, got, tc.want)
		}
		if !f.Protocol().Valid() {
			t.Fatalf("id 0x%08X: protocol should be valid", tc.id)
		}
	}

	// Reserved patterns 001, 011, 111 are invalid.
	for _, proto := range []uint32{0x1, 0x3, 0x7} {
		f := Frame{ID: proto << 26, Extended: true}
		if f.Protocol().Valid() {
			t.Fatalf("protocol %03b should be invalid", proto)
		}
	}

	// Base-id frames carry no protocol class.
	f := MustFrame(0x123, nil)
	if f.Protocol() != ProtoInvalid {
		t.Fatalf("base frame protocol = %v, want ProtoInvalid", f.Protocol())
	}
}

func TestFilters_Basics(t *testing.T) {
	f1 := MustFrame(0x100, []byte{1})
	f2 := MustFrame(0x101, []byte{2})
	f3 := Frame{ID: 0x1ABCDEFF, Extended: true, Len: 0}

	if !ByID(0x100)(f1) || ByID(0x100)(f2) {
		t.Fatalf("ByID failure")
	}
	if !ByMask(0x100, 0x7FF)(f1) || ByMask(0x100, 0x7FF)(f2) {
		t.Fatalf("ByMask failure")
	}
	if !ExtendedOnly()(f3) || ExtendedOnly()(f1) {
		t.Fatalf("ExtendedOnly failure")
	}
	if !StandardOnly()(f1) || StandardOnly()(f3) {
		t.Fatalf("StandardOnly failure")
	}
	rt := Frame{ID: 0x03010BFF, Extended: true}
	if !ByProtocol(ProtoRTACP)(rt) || ByProtocol(ProtoBWACP)(rt) {
		t.Fatalf("ByProtocol failure")
	}
	if !And(ByID(0x100), StandardOnly())(f1) || And(ByID(0x100), StandardOnly())(f3) {
		t.Fatalf("And failure")
	}
	if !Or(ByID(0x100), ByID(0x999))(f1) || Or(ByID(0x999), ByID(0x998))(f1) {
		t.Fatalf("Or failure")
	}
	if Not(ByID(0x100))(f1) || !Not(ByID(0x999))(f1) {
		t.Fatalf("Not failure")
	}
}

func TestAddressAndPriority_Validate(t *testing.T) {
	for a := NodeAddress(0); a <= MaxNodeAddress; a++ {
		if err := a.Validate(); err != nil {
			t.Fatalf("address 0x%02X should validate: %v", uint8(a), err)
		}
	}
	if err := NodeAddress(0x40).Validate(); err == nil {
		t.Fatalf("address 0x40 should fail")
	}
	if err := PriorityLow.Validate(); err != nil {
		t.Fatalf("priority low: %v", err)
	}
	if err := Priority(4).Validate(); err == nil {
		t.Fatalf("priority 4 should fail")
	}
}
