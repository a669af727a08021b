//go:build linux

package artiecan

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// SocketCAN implements Backend over a Linux raw CAN socket.
type SocketCAN struct {
	iface string
	fd    int
	open  bool
	buf   [FrameWireSize]byte
	pfds  [1]unix.PollFd
}

// NewSocketCAN creates a backend bound to the given interface name
// (e.g. "can0") when opened.
func NewSocketCAN(iface string) *SocketCAN {
	return &SocketCAN{iface: iface, fd: -1}
}

// Open creates the AF_CAN socket, binds it to the interface and switches
// it to non-blocking mode.
func (s *SocketCAN) Open() error {
	if s.open {
		return ErrInvalidArgument
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("%w: socket: %v", ErrTransportFault, err)
	}
	netIf, err := net.InterfaceByName(s.iface)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("%w: interface %q: %v", ErrTransportFault, s.iface, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("%w: bind %q: %v", ErrTransportFault, s.iface, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("%w: nonblock: %v", ErrTransportFault, err)
	}
	s.fd = fd
	s.open = true
	return nil
}

// Send writes one frame using the kernel can_frame layout. A full transmit
// queue is reported as backpressure, not retried.
func (s *SocketCAN) Send(f Frame) error {
	if !s.open {
		return ErrNotOpen
	}
	if err := f.PutBinary(s.buf[:]); err != nil {
		return err
	}
	n, err := unix.Write(s.fd, s.buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.ENOBUFS {
			return ErrBackpressure
		}
		return fmt.Errorf("%w: write: %v", ErrTransportFault, err)
	}
	if n != FrameWireSize {
		return fmt.Errorf("%w: short write (%d)", ErrTransportFault, n)
	}
	return nil
}

// Receive waits for readability bounded by timeout, then performs a single
// read. A short read is fatal.
func (s *SocketCAN) Receive(timeout time.Duration) (Frame, error) {
	if !s.open {
		return Frame{}, ErrNotOpen
	}
	ms := 0
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}
	s.pfds[0] = unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN}
	for {
		n, err := unix.Poll(s.pfds[:], ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Frame{}, fmt.Errorf("%w: poll: %v", ErrTransportFault, err)
		}
		if n == 0 {
			return Frame{}, ErrTimeout
		}
		break
	}
	n, err := unix.Read(s.fd, s.buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return Frame{}, ErrTimeout
		}
		return Frame{}, fmt.Errorf("%w: read: %v", ErrTransportFault, err)
	}
	if n != FrameWireSize {
		return Frame{}, fmt.Errorf("%w: short read (%d)", ErrTransportFault, n)
	}
	var f Frame
	if err := f.UnmarshalBinary(s.buf[:]); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close releases the socket. Idempotent.
func (s *SocketCAN) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	err := unix.Close(s.fd)
	s.fd = -1
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrTransportFault, err)
	}
	return nil
}
