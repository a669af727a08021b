package acp

import (
	"github.com/artie-robotics/artiecan"
)

// FrameMarshaler encodes a typed protocol entity into a CAN frame.
type FrameMarshaler interface {
	MarshalCANFrame() (artiecan.Frame, error)
}

// FrameUnmarshaler decodes a typed protocol entity from a CAN frame.
type FrameUnmarshaler interface {
	UnmarshalCANFrame(artiecan.Frame) error
}

// FrameCodec combines marshaling and unmarshaling of CAN frames.
type FrameCodec interface {
	FrameMarshaler
	FrameUnmarshaler
}
