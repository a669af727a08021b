package artiecan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
)

// TCPConfig configures the TCP tunnel backend. Fields left at their zero
// value by explicit construction are the caller's responsibility;
// TCPConfigFromEnv fills them from the documented environment variables.
type TCPConfig struct {
	Host   string `env:"ARTIE_CAN_MOCK_HOST" envDefault:"localhost"`
	Port   int    `env:"ARTIE_CAN_MOCK_PORT" envDefault:"5555"`
	Server bool   `env:"ARTIE_CAN_MOCK_SERVER" envDefault:"false"`
}

// TCPConfigFromEnv reads ARTIE_CAN_MOCK_HOST, ARTIE_CAN_MOCK_PORT and
// ARTIE_CAN_MOCK_SERVER, with defaults localhost, 5555 and client mode.
func TCPConfigFromEnv() (TCPConfig, error) {
	var cfg TCPConfig
	if err := env.Parse(&cfg); err != nil {
		return TCPConfig{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return cfg, nil
}

const (
	tunnelRecordSize    = 4 + FrameWireSize
	tunnelConnectWindow = 5 * time.Second
	tunnelWriteWindow   = time.Second
)

// TCPTunnel carries frames over a TCP stream as
// [4-byte big-endian length == FrameWireSize][16-byte frame encoding].
//
// In server mode Open binds and listens; the first incoming connection is
// accepted lazily on first use and later connections are ignored for the
// life of the backend. In client mode the connection is established on the
// first Send or Receive. Receivers that observe a length prefix other than
// FrameWireSize treat the stream as corrupted and close it.
type TCPTunnel struct {
	cfg  TCPConfig
	ln   net.Listener
	conn net.Conn
	open bool

	// Partial-record state so an abandoned Receive never desynchronizes
	// the stream.
	rbuf [tunnelRecordSize]byte
	rn   int
	wbuf [tunnelRecordSize]byte
}

// NewTCPTunnel creates a tunnel backend for the given configuration.
func NewTCPTunnel(cfg TCPConfig) *TCPTunnel {
	return &TCPTunnel{cfg: cfg}
}

func (t *TCPTunnel) address() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// Open binds the listener in server mode. Client connections are deferred
// to first use so a client may open before its peer is listening.
func (t *TCPTunnel) Open() error {
	if t.open {
		return ErrInvalidArgument
	}
	if t.cfg.Server {
		ln, err := net.Listen("tcp", t.address())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportFault, err)
		}
		t.ln = ln
	}
	t.rn = 0
	t.open = true
	return nil
}

// Addr returns the bound listen address in server mode, nil otherwise.
// Useful with a configured port of 0.
func (t *TCPTunnel) Addr() net.Addr {
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

// ensureConn establishes the peer connection if it does not exist yet,
// bounded by the deadline.
func (t *TCPTunnel) ensureConn(deadline time.Time) error {
	if t.conn != nil {
		return nil
	}
	if t.cfg.Server {
		tl, ok := t.ln.(*net.TCPListener)
		if !ok {
			return ErrTransportFault
		}
		if err := tl.SetDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportFault, err)
		}
		conn, err := tl.Accept()
		if err != nil {
			if isNetTimeout(err) {
				return ErrTimeout
			}
			return fmt.Errorf("%w: %v", ErrTransportFault, err)
		}
		t.conn = conn
		return nil
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		return ErrTimeout
	}
	conn, err := net.DialTimeout("tcp", t.address(), wait)
	if err != nil {
		if isNetTimeout(err) {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %v", ErrTransportFault, err)
	}
	t.conn = conn
	return nil
}

// Send writes one length-prefixed frame. A short write poisons the stream
// and is fatal.
func (t *TCPTunnel) Send(f Frame) error {
	if !t.open {
		return ErrNotOpen
	}
	if err := t.ensureConn(time.Now().Add(tunnelConnectWindow)); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(t.wbuf[0:4], FrameWireSize)
	if err := f.PutBinary(t.wbuf[4:]); err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(tunnelWriteWindow)); err != nil {
		return t.fault(err)
	}
	n, err := t.conn.Write(t.wbuf[:])
	if err != nil {
		if n == 0 && isNetTimeout(err) {
			return ErrBackpressure
		}
		return t.fault(err)
	}
	if n != tunnelRecordSize {
		return t.fault(errors.New("short write"))
	}
	return nil
}

// Receive reads one length-prefixed frame, bounded by timeout. A zero
// timeout polls with a minimal window. Partially read records survive
// across calls, so a timed-out Receive never desynchronizes the stream.
func (t *TCPTunnel) Receive(timeout time.Duration) (Frame, error) {
	if !t.open {
		return Frame{}, ErrNotOpen
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	if err := t.ensureConn(deadline); err != nil {
		return Frame{}, err
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return Frame{}, t.fault(err)
	}
	for t.rn < tunnelRecordSize {
		n, err := t.conn.Read(t.rbuf[t.rn:])
		t.rn += n
		if t.rn >= 4 {
			if binary.BigEndian.Uint32(t.rbuf[0:4]) != FrameWireSize {
				return Frame{}, t.fault(errors.New("length prefix mismatch"))
			}
		}
		if err != nil {
			if isNetTimeout(err) {
				return Frame{}, ErrTimeout
			}
			return Frame{}, t.fault(err)
		}
	}
	t.rn = 0
	var f Frame
	if err := f.UnmarshalBinary(t.rbuf[4:]); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close tears down the connection and listener. Idempotent.
func (t *TCPTunnel) Close() error {
	if !t.open {
		return nil
	}
	t.open = false
	t.rn = 0
	var err error
	if t.conn != nil {
		err = t.conn.Close()
		t.conn = nil
	}
	if t.ln != nil {
		if cerr := t.ln.Close(); err == nil {
			err = cerr
		}
		t.ln = nil
	}
	return err
}

// fault closes the stream and wraps the cause as a transport fault.
func (t *TCPTunnel) fault(cause error) error {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	if t.ln != nil {
		t.ln.Close()
		t.ln = nil
	}
	t.open = false
	return fmt.Errorf("%w: %v", ErrTransportFault, cause)
}

func isNetTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
