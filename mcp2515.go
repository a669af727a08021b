package artiecan

import (
	"fmt"
	"time"
)

// SPIConn is a full-duplex SPI transfer: w is clocked out while r is
// filled, len(w) == len(r). Implementations wrap an OS SPI device or a
// bare-metal controller; the backend never assumes a kernel CAN layer.
type SPIConn interface {
	Tx(w, r []byte) error
}

// MCP2515 instruction bytes.
const (
	mcpReset      = 0xC0
	mcpRead       = 0x03
	mcpWrite      = 0x02
	mcpRTS0       = 0x81 // request-to-send, TX buffer 0
	mcpReadStatus = 0xA0
	mcpReadRx0    = 0x90 // read RX buffer 0 starting at RXB0SIDH
	mcpBitModify  = 0x05
)

// MCP2515 register addresses.
const (
	mcpCANCTRL  = 0x0F
	mcpCANINTE  = 0x2B
	mcpCANINTF  = 0x2C
	mcpTXB0CTRL = 0x30
	mcpTXB0SIDH = 0x31
	mcpRXB0CTRL = 0x60
)

// CANCTRL/CANINTF bits.
const (
	mcpReqopMask   = 0xE0
	mcpReqopNormal = 0x00
	mcpTXB0Busy    = 0x08 // TXREQ in TXB0CTRL
	mcpRX0IF       = 0x01
	mcpSIDLExide   = 0x08
)

const mcpPollInterval = 500 * time.Microsecond

// MCP2515 drives an external MCP2515 CAN controller over SPI. The
// interrupt flags are polled through READ STATUS, which keeps the backend
// single-threaded; wiring the INT line to a host GPIO only shortens the
// poll, it does not change the contract.
type MCP2515 struct {
	conn SPIConn
	open bool
	tx   [16]byte
	rx   [16]byte
}

// NewMCP2515 creates a backend over the given SPI connection.
func NewMCP2515(conn SPIConn) *MCP2515 {
	return &MCP2515{conn: conn}
}

// Open resets the controller and switches it to normal operation.
func (m *MCP2515) Open() error {
	if m.open {
		return ErrInvalidArgument
	}
	if m.conn == nil {
		return fmt.Errorf("%w: nil SPI connection", ErrInvalidArgument)
	}
	if err := m.cmd(mcpReset); err != nil {
		return err
	}
	// Accept any message into RXB0 (no filters) and enable its interrupt
	// flag so READ STATUS reports arrivals.
	if err := m.bitModify(mcpRXB0CTRL, 0x60, 0x60); err != nil {
		return err
	}
	if err := m.bitModify(mcpCANINTE, mcpRX0IF, mcpRX0IF); err != nil {
		return err
	}
	if err := m.bitModify(mcpCANCTRL, mcpReqopMask, mcpReqopNormal); err != nil {
		return err
	}
	m.open = true
	return nil
}

// Send loads TX buffer 0 and requests transmission. A still-busy TX
// buffer is reported as backpressure.
func (m *MCP2515) Send(f Frame) error {
	if !m.open {
		return ErrNotOpen
	}
	if err := f.Validate(); err != nil {
		return err
	}
	ctrl, err := m.readReg(mcpTXB0CTRL)
	if err != nil {
		return err
	}
	if ctrl&mcpTXB0Busy != 0 {
		return ErrBackpressure
	}
	// WRITE TXB0SIDH: sidh sidl eid8 eid0 dlc data...
	m.tx[0] = mcpWrite
	m.tx[1] = mcpTXB0SIDH
	putMCPID(m.tx[2:6], f.ID, f.Extended)
	m.tx[6] = f.Len
	copy(m.tx[7:15], f.Data[:])
	if err := m.xfer(7 + int(f.Len)); err != nil {
		return err
	}
	m.tx[0] = mcpRTS0
	return m.xfer(1)
}

// Receive polls the controller's status until a frame lands in RXB0 or
// the timeout expires.
func (m *MCP2515) Receive(timeout time.Duration) (Frame, error) {
	if !m.open {
		return Frame{}, ErrNotOpen
	}
	deadline := time.Now().Add(timeout)
	for {
		m.tx[0] = mcpReadStatus
		m.tx[1] = 0
		if err := m.xfer(2); err != nil {
			return Frame{}, err
		}
		if m.rx[1]&mcpRX0IF != 0 {
			return m.readRx0()
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			return Frame{}, ErrTimeout
		}
		time.Sleep(mcpPollInterval)
	}
}

func (m *MCP2515) readRx0() (Frame, error) {
	// READ RX BUFFER 0: sidh sidl eid8 eid0 dlc data[8].
	m.tx[0] = mcpReadRx0
	for i := 1; i < 15; i++ {
		m.tx[i] = 0
	}
	if err := m.xfer(15); err != nil {
		return Frame{}, err
	}
	var f Frame
	sidh, sidl := m.rx[1], m.rx[2]
	eid8, eid0 := m.rx[3], m.rx[4]
	if sidl&mcpSIDLExide != 0 {
		f.Extended = true
		f.ID = uint32(sidh)<<21 | uint32(sidl>>5)<<18 |
			uint32(sidl&0x03)<<16 | uint32(eid8)<<8 | uint32(eid0)
	} else {
		f.ID = uint32(sidh)<<3 | uint32(sidl>>5)
	}
	f.Len = m.rx[5] & 0x0F
	if f.Len > 8 {
		return Frame{}, ErrInvalidFrame
	}
	copy(f.Data[:], m.rx[6:6+f.Len])
	// The buffer-read instruction clears RX0IF on chip-select release on
	// real silicon; clear it explicitly for controllers that do not.
	if err := m.bitModify(mcpCANINTF, mcpRX0IF, 0); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close leaves the controller in its current mode. Idempotent.
func (m *MCP2515) Close() error {
	m.open = false
	return nil
}

func (m *MCP2515) cmd(instr byte) error {
	m.tx[0] = instr
	return m.xfer(1)
}

func (m *MCP2515) readReg(addr byte) (byte, error) {
	m.tx[0] = mcpRead
	m.tx[1] = addr
	m.tx[2] = 0
	if err := m.xfer(3); err != nil {
		return 0, err
	}
	return m.rx[2], nil
}

func (m *MCP2515) bitModify(addr, mask, value byte) error {
	m.tx[0] = mcpBitModify
	m.tx[1] = addr
	m.tx[2] = mask
	m.tx[3] = value
	return m.xfer(4)
}

func (m *MCP2515) xfer(n int) error {
	if err := m.conn.Tx(m.tx[:n], m.rx[:n]); err != nil {
		return fmt.Errorf("%w: spi: %v", ErrTransportFault, err)
	}
	return nil
}

// putMCPID encodes an identifier into the SIDH/SIDL/EID8/EID0 register
// layout.
func putMCPID(dst []byte, id uint32, extended bool) {
	if extended {
		dst[0] = byte(id >> 21)
		dst[1] = byte((id>>18)&0x07)<<5 | mcpSIDLExide | byte((id>>16)&0x03)
		dst[2] = byte(id >> 8)
		dst[3] = byte(id)
		return
	}
	dst[0] = byte(id >> 3)
	dst[1] = byte(id&0x07) << 5
	dst[2] = 0
	dst[3] = 0
}
