package acp

import (
	"fmt"

	"github.com/artie-robotics/artiecan"
)

// RTACPKind distinguishes the two real-time frame types.
type RTACPKind uint8

const (
	RTACPAck RTACPKind = 0
	RTACPMsg RTACPKind = 1
)

// RPCKind enumerates the remote-procedure-call frame types.
type RPCKind uint8

const (
	RPCAck         RPCKind = 0
	RPCNack        RPCKind = 1
	RPCStartCall   RPCKind = 2
	RPCStartReturn RPCKind = 3
	RPCTxData      RPCKind = 4
	RPCRxData      RPCKind = 5
)

// PSKind enumerates the publish/subscribe frame types.
type PSKind uint8

const (
	PSPub  PSKind = 1
	PSData PSKind = 3
)

// BWKind enumerates the block-write frame types.
type BWKind uint8

const (
	BWRepeat BWKind = 1
	BWReady  BWKind = 3
	BWData   BWKind = 7
)

// Topic addresses a publish/subscribe channel. 0x00 is the broadcast
// topic; 0x0B-0xF4 are assignable; everything else is reserved.
type Topic uint8

const (
	TopicBroadcast Topic = 0x00
	TopicMin       Topic = 0x0B
	TopicMax       Topic = 0xF4
)

// Validate rejects reserved topic values.
func (t Topic) Validate() error {
	if t == TopicBroadcast || (t >= TopicMin && t <= TopicMax) {
		return nil
	}
	return fmt.Errorf("%w: reserved topic 0x%02X", artiecan.ErrInvalidArgument, uint8(t))
}

// BWClass is the six-bit receiver-class mask used with the multicast
// target.
type BWClass uint8

const (
	BWClassSBC    BWClass = 1 << 0
	BWClassMCU    BWClass = 1 << 1
	BWClassSensor BWClass = 1 << 2
	BWClassMotor  BWClass = 1 << 3
	// Bits 4 and 5 are reserved.
)

/*
Identifier bit layouts (29 bits, msb first):

	RTACP:  proto(3) kind(1)  prio(2) zero(1) sender(6) target(6) ones(10)
	RPCACP: proto(3) kind(4)  prio(2) sender(6) target(6) nonce(8)
	PSACP:  proto(3) kind(4)  prio(2) sender(6) topic(8)  ones(6)
	BWACP:  proto(3) kind(4)  prio(2) sender(6) target(6) class(6) flag(1) tail(1)
*/

func rtacpID(kind RTACPKind, prio artiecan.Priority, sender, target artiecan.NodeAddress) uint32 {
	return uint32(artiecan.ProtoRTACP)<<26 |
		uint32(kind&0x01)<<25 |
		uint32(prio&0x03)<<23 |
		uint32(sender&0x3F)<<16 |
		uint32(target&0x3F)<<10 |
		0x3FF
}

func parseRTACPID(id uint32) (kind RTACPKind, prio artiecan.Priority, sender, target artiecan.NodeAddress) {
	kind = RTACPKind(id >> 25 & 0x01)
	prio = artiecan.Priority(id >> 23 & 0x03)
	sender = artiecan.NodeAddress(id >> 16 & 0x3F)
	target = artiecan.NodeAddress(id >> 10 & 0x3F)
	return
}

func rpcID(kind RPCKind, prio artiecan.Priority, sender, target artiecan.NodeAddress, nonce uint8) uint32 {
	return uint32(artiecan.ProtoRPCACP)<<26 |
		uint32(kind&0x0F)<<22 |
		uint32(prio&0x03)<<20 |
		uint32(sender&0x3F)<<14 |
		uint32(target&0x3F)<<8 |
		uint32(nonce)
}

func parseRPCID(id uint32) (kind RPCKind, prio artiecan.Priority, sender, target artiecan.NodeAddress, nonce uint8) {
	kind = RPCKind(id >> 22 & 0x0F)
	prio = artiecan.Priority(id >> 20 & 0x03)
	sender = artiecan.NodeAddress(id >> 14 & 0x3F)
	target = artiecan.NodeAddress(id >> 8 & 0x3F)
	nonce = uint8(id)
	return
}

func psID(high bool, kind PSKind, prio artiecan.Priority, sender artiecan.NodeAddress, topic Topic) uint32 {
	proto := artiecan.ProtoPSACPLow
	if high {
		proto = artiecan.ProtoPSACPHigh
	}
	return uint32(proto)<<26 |
		uint32(kind&0x0F)<<22 |
		uint32(prio&0x03)<<20 |
		uint32(sender&0x3F)<<14 |
		uint32(topic)<<6 |
		0x3F
}

func parsePSID(id uint32) (high bool, kind PSKind, prio artiecan.Priority, sender artiecan.NodeAddress, topic Topic) {
	high = artiecan.ProtocolClass(id>>26&0x07) == artiecan.ProtoPSACPHigh
	kind = PSKind(id >> 22 & 0x0F)
	prio = artiecan.Priority(id >> 20 & 0x03)
	sender = artiecan.NodeAddress(id >> 14 & 0x3F)
	topic = Topic(id >> 6 & 0xFF)
	return
}

// bwID packs a block-write identifier. The meaning of flag and tail
// depends on the kind: for DATA, flag is the per-frame repeat marker and
// tail is the toggling parity bit; for READY, flag is interrupt-ongoing
// and tail is 1; for REPEAT, flag is repeat-all and tail is 0.
func bwID(kind BWKind, prio artiecan.Priority, sender, target artiecan.NodeAddress, class BWClass, flag, tail bool) uint32 {
	id := uint32(artiecan.ProtoBWACP)<<26 |
		uint32(kind&0x0F)<<22 |
		uint32(prio&0x03)<<20 |
		uint32(sender&0x3F)<<14 |
		uint32(target&0x3F)<<8 |
		uint32(class&0x3F)<<2
	if flag {
		id |= 0x02
	}
	if tail {
		id |= 0x01
	}
	return id
}

func parseBWID(id uint32) (kind BWKind, prio artiecan.Priority, sender, target artiecan.NodeAddress, class BWClass, flag, tail bool) {
	kind = BWKind(id >> 22 & 0x0F)
	prio = artiecan.Priority(id >> 20 & 0x03)
	sender = artiecan.NodeAddress(id >> 14 & 0x3F)
	target = artiecan.NodeAddress(id >> 8 & 0x3F)
	class = BWClass(id >> 2 & 0x3F)
	flag = id&0x02 != 0
	tail = id&0x01 != 0
	return
}
