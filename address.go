package artiecan

import "fmt"

// NodeAddress is a six-bit bus address (0x00-0x3F).
//
// 0x00 is reserved for broadcast; 0x3F is reserved for the class-multicast
// target used by the block-write protocol.
type NodeAddress uint8

const (
	// Broadcast addresses every node on the bus.
	Broadcast NodeAddress = 0x00

	// Multicast selects receiver classes through a class mask.
	Multicast NodeAddress = 0x3F

	// MaxNodeAddress is the highest encodable address.
	MaxNodeAddress NodeAddress = 0x3F
)

// Validate checks that the address fits in six bits.
func (a NodeAddress) Validate() error {
	if a > MaxNodeAddress {
		return fmt.Errorf("%w: node address 0x%02X (valid 0x00-0x3F)", ErrInvalidArgument, uint8(a))
	}
	return nil
}

// Priority is the two-bit arbitration bias carried in every identifier.
// Lower values win CAN arbitration.
type Priority uint8

const (
	PriorityHigh    Priority = 0x00
	PriorityMedHigh Priority = 0x01
	PriorityMedLow  Priority = 0x02
	PriorityLow     Priority = 0x03
)

// Validate checks that the priority fits in two bits.
func (p Priority) Validate() error {
	if p > PriorityLow {
		return fmt.Errorf("%w: priority 0x%02X (valid 0x00-0x03)", ErrInvalidArgument, uint8(p))
	}
	return nil
}
