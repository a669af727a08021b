package acp

import (
	"time"

	"github.com/artie-robotics/artiecan"
)

// recvMatch drains frames from the node until one satisfies match or the
// timeout expires. Base-id frames and frames with unassigned protocol
// bits are dropped at ingress; non-matching protocol frames are
// discarded. A zero timeout drains whatever the backend already holds.
func recvMatch(node *artiecan.Node, timeout time.Duration, match func(artiecan.Frame) bool) (artiecan.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		var rem time.Duration
		if timeout > 0 {
			rem = time.Until(deadline)
			if rem <= 0 {
				return artiecan.Frame{}, artiecan.ErrTimeout
			}
		}
		f, err := node.Receive(rem)
		if err != nil {
			return artiecan.Frame{}, err
		}
		if !f.Extended || !f.Protocol().Valid() {
			continue
		}
		if match(f) {
			return f, nil
		}
	}
}
