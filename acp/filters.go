package acp

import "github.com/artie-robotics/artiecan"

// Protocol-typed filters for use with artiecan.Mux.

// RTACPOnly matches real-time frames.
func RTACPOnly() artiecan.FrameFilter {
	return artiecan.ByProtocol(artiecan.ProtoRTACP)
}

// RPCACPOnly matches remote-procedure-call frames.
func RPCACPOnly() artiecan.FrameFilter {
	return artiecan.ByProtocol(artiecan.ProtoRPCACP)
}

// PSACPOnly matches publish/subscribe frames of either tier.
func PSACPOnly() artiecan.FrameFilter {
	return artiecan.Or(
		artiecan.ByProtocol(artiecan.ProtoPSACPHigh),
		artiecan.ByProtocol(artiecan.ProtoPSACPLow),
	)
}

// BWACPOnly matches block-write frames.
func BWACPOnly() artiecan.FrameFilter {
	return artiecan.ByProtocol(artiecan.ProtoBWACP)
}

// RTACPFor matches real-time frames targeted at the given node.
func RTACPFor(target artiecan.NodeAddress) artiecan.FrameFilter {
	return func(f artiecan.Frame) bool {
		if f.Protocol() != artiecan.ProtoRTACP {
			return false
		}
		_, _, _, tgt := parseRTACPID(f.ID)
		return tgt == target
	}
}

// RPCExchange matches frames of one RPC exchange by nonce.
func RPCExchange(nonce uint8) artiecan.FrameFilter {
	return func(f artiecan.Frame) bool {
		if f.Protocol() != artiecan.ProtoRPCACP {
			return false
		}
		_, _, _, _, n := parseRPCID(f.ID)
		return n == nonce
	}
}

// PSACPTopic matches publish/subscribe frames for one topic, either tier.
func PSACPTopic(topic Topic) artiecan.FrameFilter {
	return func(f artiecan.Frame) bool {
		if !psFrame(f) {
			return false
		}
		_, _, _, _, t := parsePSID(f.ID)
		return t == topic
	}
}

// BWACPFor matches block-write frames targeted at the given node or at
// its receiver class through the multicast address.
func BWACPFor(target artiecan.NodeAddress, class BWClass) artiecan.FrameFilter {
	return func(f artiecan.Frame) bool {
		if f.Protocol() != artiecan.ProtoBWACP {
			return false
		}
		_, _, _, tgt, mask, _, _ := parseBWID(f.ID)
		if tgt == target {
			return true
		}
		return tgt == artiecan.Multicast && mask&class != 0
	}
}
