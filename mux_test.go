package artiecan

import (
	"net"
	"testing"
	"time"
)

// muxPair builds a connected tunnel pair so the mux has a blocking
// backend to poll.
func muxPair(t *testing.T) (producer, consumer Backend) {
	t.Helper()
	server := NewTCPTunnel(TCPConfig{Host: "127.0.0.1", Port: 0, Server: true})
	if err := server.Open(); err != nil {
		t.Fatalf("server open: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	port := server.Addr().(*net.TCPAddr).Port
	client := NewTCPTunnel(TCPConfig{Host: "127.0.0.1", Port: port})
	if err := client.Open(); err != nil {
		t.Fatalf("client open: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, server
}

func TestMux_Subscribe_Filtering_And_Close(t *testing.T) {
	producer, consumer := muxPair(t)
	m := NewMux(consumer)
	defer m.Close()

	chA, cancelA := m.Subscribe(ByID(0x100), 1)
	chB, cancelB := m.Subscribe(ByMask(0x200, 0x700), 2)
	defer cancelB()

	send := func(id uint32) {
		if err := producer.Send(MustFrame(id, []byte{1, 2, 3})); err != nil {
			t.Fatalf("send %03X: %v", id, err)
		}
	}

	send(0x100) // should go to A
	send(0x210) // should go to B
	send(0x105) // should go to no one

	select {
	case f := <-chA:
		if f.ID != 0x100 {
			t.Fatalf("A got %03X", f.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for A")
	}
	select {
	case f := <-chB:
		if f.ID != 0x210 {
			t.Fatalf("B got %03X", f.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for B")
	}
	select {
	case f := <-chA:
		t.Fatalf("A should be empty, got %03X", f.ID)
	case <-time.After(100 * time.Millisecond):
	}

	cancelA()
	send(0x100)
	select {
	case _, ok := <-chA:
		if ok {
			t.Fatalf("A should be closed")
		}
	case <-time.After(100 * time.Millisecond):
	}

	_ = m.Close()
	if _, ok := <-chB; ok {
		// Drain until closed; the 0x210 frame may still be buffered.
		for range chB {
		}
	}
}
