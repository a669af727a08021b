package artiecan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame represents a classical CAN (2.0A/2.0B) frame.
//
// Supported features:
//   - Standard (11-bit) and Extended (29-bit) identifiers
//   - Data frames and Remote Transmission Request (RTR)
//   - Data length 0-8 bytes (classical CAN)
//
// The frame is the atomic unit crossing the backend boundary. The Artie
// protocols use extended identifiers exclusively; base-id frames are
// ignored at the protocol dispatchers.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	RTR      bool   // remote transmission request
	Len      uint8  // 0..8
	Data     [8]byte
}

// Validation limits.
const (
	maxStdID = 0x7FF
	maxExtID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = errors.New("artiecan: invalid identifier")
	ErrInvalidLen = errors.New("artiecan: invalid data length")
)

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > maxExtID {
			return ErrInvalidID
		}
	} else {
		if f.ID > maxStdID {
			return ErrInvalidID
		}
	}
	return nil
}

// MustFrame constructs a Frame and panics if invalid. Convenience for
// examples and tests.
func MustFrame(id uint32, data []byte) Frame {
	var f Frame
	f.ID = id
	if id > maxStdID {
		f.Extended = true
	}
	if len(data) > 8 {
		panic(ErrInvalidLen)
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}

// String renders the frame as "ID [len] DATA..." with an RTR suffix.
func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%X [%d]", f.ID, f.Len)
	for _, d := range f.Data[:f.Len] {
		fmt.Fprintf(&b, " %02X", d)
	}
	if f.RTR {
		b.WriteString(" RTR")
	}
	return b.String()
}

// FrameWireSize is the fixed size of the binary frame encoding used by the
// SocketCAN and TCP tunnel backends.
const FrameWireSize = 16

// SocketCAN id-word flags.
const (
	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
)

// PutBinary encodes the frame into dst using the Linux SocketCAN
// "struct can_frame" layout (16 bytes) for classical CAN. The same
// encoding is the TCP tunnel's on-wire frame body.
//
// Layout (little-endian):
//
//	0..3  can_id (with flags: EFF/RTR)
//	4     can_dlc (data length code)
//	5..7  padding (set to zero)
//	8..15 data bytes
func (f Frame) PutBinary(dst []byte) error {
	if len(dst) < FrameWireSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidFrame, FrameWireSize, len(dst))
	}
	if err := f.Validate(); err != nil {
		return err
	}
	id := f.ID
	if f.Extended {
		id |= canEffFlag
	}
	if f.RTR {
		id |= canRtrFlag
	}
	binary.LittleEndian.PutUint32(dst[0:4], id)
	dst[4] = f.Len
	dst[5], dst[6], dst[7] = 0, 0, 0
	copy(dst[8:16], f.Data[:])
	return nil
}

// MarshalBinary encodes the frame to a fresh 16-byte buffer.
func (f Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FrameWireSize)
	if err := f.PutBinary(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalBinary decodes a frame from the SocketCAN can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < FrameWireSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFrame, FrameWireSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&canEffFlag != 0
	f.RTR = id&canRtrFlag != 0
	if f.Extended {
		f.ID = id & maxExtID
	} else {
		f.ID = id & maxStdID
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// ProtocolClass is the top three bits of a 29-bit identifier. It selects
// which of the overlaid protocols a frame belongs to.
type ProtocolClass uint8

const (
	ProtoRTACP     ProtocolClass = 0x0 // 000
	ProtoRPCACP    ProtocolClass = 0x2 // 010
	ProtoPSACPHigh ProtocolClass = 0x4 // 100
	ProtoBWACP     ProtocolClass = 0x5 // 101
	ProtoPSACPLow  ProtocolClass = 0x6 // 110

	// ProtoInvalid is returned for frames that cannot carry a protocol
	// class (base identifiers).
	ProtoInvalid ProtocolClass = 0xFF
)

// Valid reports whether the class is one of the assigned patterns.
// Frames bearing any other pattern are dropped at ingress.
func (p ProtocolClass) Valid() bool {
	switch p {
	case ProtoRTACP, ProtoRPCACP, ProtoPSACPHigh, ProtoBWACP, ProtoPSACPLow:
		return true
	}
	return false
}

// String names the protocol class.
func (p ProtocolClass) String() string {
	switch p {
	case ProtoRTACP:
		return "RTACP"
	case ProtoRPCACP:
		return "RPCACP"
	case ProtoPSACPHigh:
		return "PSACP-high"
	case ProtoBWACP:
		return "BWACP"
	case ProtoPSACPLow:
		return "PSACP-low"
	}
	return fmt.Sprintf("ProtocolClass(0x%02X)", uint8(p))
}

// Protocol extracts the protocol class from the frame identifier.
// Base-id frames yield ProtoInvalid.
func (f Frame) Protocol() ProtocolClass {
	if !f.Extended {
		return ProtoInvalid
	}
	return ProtocolClass((f.ID >> 26) & 0x07)
}
