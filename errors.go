package artiecan

import "errors"

// Transport and context errors shared by every backend.
var (
	// ErrInvalidArgument indicates an address out of range, a forbidden
	// broadcast, an unknown backend kind, or a payload over its ceiling.
	ErrInvalidArgument = errors.New("artiecan: invalid argument")

	// ErrInvalidFrame indicates an ingress frame that cannot belong to
	// the stack (bad length, bad identifier, reserved protocol bits).
	ErrInvalidFrame = errors.New("artiecan: invalid frame")

	// ErrTimeout indicates a receive or acknowledgment wait expired.
	ErrTimeout = errors.New("artiecan: timeout")

	// ErrBackpressure indicates the transport cannot accept more frames
	// right now. Transient; the frame was not queued.
	ErrBackpressure = errors.New("artiecan: transport backpressure")

	// ErrNotOpen indicates the backend has been closed or never opened.
	ErrNotOpen = errors.New("artiecan: not open")

	// ErrTransportFault indicates the transport is unusable (closed
	// socket, corrupted stream, bus fault). The owning node latches
	// closed once this surfaces.
	ErrTransportFault = errors.New("artiecan: transport fault")

	// ErrProtocolMismatch indicates a frame whose protocol class does
	// not match the layer that received it.
	ErrProtocolMismatch = errors.New("artiecan: protocol mismatch")
)
