package artiecan

import (
	"fmt"
)

func ExampleLocalQueue() {
	q := NewLocalQueue()
	n, _ := OpenCustom(0x01, q)
	defer n.Close()

	_ = n.Send(MustFrame(0x123, []byte("hi")))
	f, _ := n.Receive(0)
	fmt.Printf("ID=%03X LEN=%d DATA=%x\n", f.ID, f.Len, f.Data[:f.Len])
	// Output: ID=123 LEN=2 DATA=6869
}
