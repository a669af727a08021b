package acp

import (
	"bytes"
	"testing"
	"time"

	"github.com/artie-robotics/artiecan"
)

func helloMsg() Message {
	m := Message{
		Priority: artiecan.PriorityMedLow,
		Sender:   0x01,
		Target:   0x02,
		Kind:     RTACPMsg,
		Len:      5,
	}
	copy(m.Data[:], "Hello")
	return m
}

func TestRTACP_SendUnicast(t *testing.T) {
	node := testNode(t, 0x01)
	rt := NewRTACP(node)

	msg := helloMsg()
	if err := rt.Send(&msg, false); err != nil {
		t.Fatalf("send: %v", err)
	}

	f := popFrame(t, node)
	if !f.Extended {
		t.Fatalf("frame must be extended")
	}
	if f.ID != 0x03010BFF {
		t.Fatalf("id = 0x%08X, want 0x03010BFF", f.ID)
	}
	if f.Len != 5 || !bytes.Equal(f.Data[:5], []byte{0x48, 0x65, 0x6C, 0x6C, 0x6F}) {
		t.Fatalf("payload = % X", f.Data[:f.Len])
	}
	mustEmpty(t, node)
}

func TestRTACP_BroadcastIgnoresWaitAck(t *testing.T) {
	node := testNode(t, 0x01)
	rt := NewRTACP(node)

	msg := helloMsg()
	msg.Target = artiecan.Broadcast
	if err := rt.Send(&msg, true); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Exactly one frame; no ACK wait happened.
	_ = popFrame(t, node)
	mustEmpty(t, node)
}

func TestRTACP_SendWaitAck(t *testing.T) {
	node := testNode(t, 0x01)
	rt := NewRTACP(node)

	// Pre-seed the matching acknowledgment: sender/target swapped,
	// identical payload.
	msg := helloMsg()
	ack := artiecan.Frame{
		ID:       rtacpID(RTACPAck, msg.Priority, msg.Target, msg.Sender),
		Extended: true,
		Len:      msg.Len,
		Data:     msg.Data,
	}
	if err := node.Send(ack); err != nil {
		t.Fatalf("seed ack: %v", err)
	}

	if err := rt.Send(&msg, true); err != nil {
		t.Fatalf("send with ack: %v", err)
	}
	// The ack wait consumed the seeded ACK; the node's own MSG frame is
	// still queued behind it.
	f := popFrame(t, node)
	if kind, _, _, _ := parseRTACPID(f.ID); kind != RTACPMsg {
		t.Fatalf("left-over frame should be the MSG, got %v", kind)
	}
	mustEmpty(t, node)
}

func TestRTACP_SendAckTimeout(t *testing.T) {
	node := testNode(t, 0x01)
	rt := NewRTACP(node)

	msg := helloMsg()
	start := time.Now()
	if err := rt.Send(&msg, true); err != artiecan.ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("ack wait should be a single 1 ms window")
	}
}

func TestRTACP_ReceiveAcknowledges(t *testing.T) {
	node := testNode(t, 0x02)
	rt := NewRTACP(node)

	// An incoming MSG targeted at this node.
	in := artiecan.Frame{
		ID:       rtacpID(RTACPMsg, artiecan.PriorityMedLow, 0x01, 0x02),
		Extended: true,
		Len:      5,
	}
	copy(in.Data[:], "Hello")
	if err := node.Send(in); err != nil {
		t.Fatalf("seed msg: %v", err)
	}

	got, err := rt.Receive(0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Kind != RTACPMsg || got.Sender != 0x01 || got.Target != 0x02 {
		t.Fatalf("decoded %+v", got)
	}
	if !bytes.Equal(got.Bytes(), []byte("Hello")) {
		t.Fatalf("payload = % X", got.Bytes())
	}

	// Exactly one ACK was synthesized: sender/target swapped, same
	// priority and payload.
	ackFrame := popFrame(t, node)
	kind, prio, sender, target := parseRTACPID(ackFrame.ID)
	if kind != RTACPAck || prio != artiecan.PriorityMedLow || sender != 0x02 || target != 0x01 {
		t.Fatalf("ack id fields: %v %v %02X %02X", kind, prio, sender, target)
	}
	if !bytes.Equal(ackFrame.Data[:ackFrame.Len], []byte("Hello")) {
		t.Fatalf("ack payload = % X", ackFrame.Data[:ackFrame.Len])
	}
	mustEmpty(t, node)
}

func TestRTACP_ReceiveBroadcastNoAck(t *testing.T) {
	node := testNode(t, 0x02)
	rt := NewRTACP(node)

	in := artiecan.Frame{
		ID:       rtacpID(RTACPMsg, artiecan.PriorityHigh, 0x01, artiecan.Broadcast),
		Extended: true,
		Len:      2,
		Data:     [8]byte{0xBE, 0xEF},
	}
	if err := node.Send(in); err != nil {
		t.Fatalf("seed msg: %v", err)
	}

	got, err := rt.Receive(0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Target != artiecan.Broadcast {
		t.Fatalf("target = 0x%02X", uint8(got.Target))
	}
	// No ACK for broadcast.
	mustEmpty(t, node)
}

func TestRTACP_ReceiveSkipsOtherProtocols(t *testing.T) {
	node := testNode(t, 0x02)
	rt := NewRTACP(node)

	// A pub/sub frame ahead of the real-time frame.
	other := artiecan.Frame{
		ID:       psID(true, PSPub, artiecan.PriorityHigh, 0x05, 0x10),
		Extended: true,
		Len:      2,
	}
	if err := node.Send(other); err != nil {
		t.Fatalf("seed other: %v", err)
	}
	in := artiecan.Frame{
		ID:       rtacpID(RTACPMsg, artiecan.PriorityLow, 0x03, artiecan.Broadcast),
		Extended: true,
		Len:      1,
		Data:     [8]byte{0x01},
	}
	if err := node.Send(in); err != nil {
		t.Fatalf("seed msg: %v", err)
	}

	got, err := rt.Receive(0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Sender != 0x03 {
		t.Fatalf("sender = 0x%02X", uint8(got.Sender))
	}
}
