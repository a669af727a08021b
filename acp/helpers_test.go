package acp

import (
	"testing"

	"github.com/artie-robotics/artiecan"
)

// testNode opens a node over the in-process queue. The queue mediates
// both send and receive, so a test reads back what the node itself sent.
func testNode(t *testing.T, addr artiecan.NodeAddress) *artiecan.Node {
	t.Helper()
	n, err := artiecan.OpenCustom(addr, artiecan.NewLocalQueue())
	if err != nil {
		t.Fatalf("open node 0x%02X: %v", uint8(addr), err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

// popFrame reads the next queued frame.
func popFrame(t *testing.T, n *artiecan.Node) artiecan.Frame {
	t.Helper()
	f, err := n.Receive(0)
	if err != nil {
		t.Fatalf("pop frame: %v", err)
	}
	return f
}

// mustEmpty asserts the queue holds no more frames.
func mustEmpty(t *testing.T, n *artiecan.Node) {
	t.Helper()
	if f, err := n.Receive(0); err != artiecan.ErrTimeout {
		t.Fatalf("queue should be empty, got %+v (err %v)", f, err)
	}
}
