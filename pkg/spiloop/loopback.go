package spiloop

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Loopback is an in-memory SPI port with MISO wired to MOSI. It implements
// spi.PortCloser.
type Loopback struct {
	mu        sync.Mutex
	limit     physic.Frequency
	freq      physic.Frequency
	mode      spi.Mode
	bits      int
	connected bool
	closed    bool
	broken    bool
	tx        int
}

// NewLoopback returns a wired loopback port.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) String() string {
	return "loopback"
}

// Close implements spi.PortCloser.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// LimitSpeed implements spi.Port.
func (l *Loopback) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("spiloop: invalid speed %s", f)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = f
	return nil
}

// Connect implements spi.Port. It can be called once.
func (l *Loopback) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return nil, errors.New("spiloop: port closed")
	case l.connected:
		return nil, errors.New("spiloop: Connect can only be called once")
	case f < 0:
		return nil, fmt.Errorf("spiloop: invalid speed %s", f)
	case bits != 8 && bits != 16:
		return nil, fmt.Errorf("spiloop: unsupported %d bits per word", bits)
	}
	if l.limit != 0 && (f == 0 || f > l.limit) {
		f = l.limit
	}
	l.connected = true
	l.freq = f
	l.mode = mode
	l.bits = bits
	return &loopConn{l: l}, nil
}

// Unplug disconnects MISO from MOSI; reads return the idle high level.
func (l *Loopback) Unplug() {
	l.mu.Lock()
	l.broken = true
	l.mu.Unlock()
}

// Freq returns the clock of the connection.
func (l *Loopback) Freq() physic.Frequency {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freq
}

// Transfers returns the number of transfers done.
func (l *Loopback) Transfers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tx
}

func (l *Loopback) transfer(w, r []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("spiloop: port closed")
	}
	if w != nil && r != nil && len(w) != len(r) {
		return errors.New("spiloop: Tx with different buffer lengths")
	}
	if n := l.bits / 8; len(w)%n != 0 || len(r)%n != 0 {
		return fmt.Errorf("spiloop: buffer not a multiple of %d bits", l.bits)
	}
	for i := range r {
		switch {
		case l.broken:
			r[i] = 0xFF
		case i < len(w):
			r[i] = w[i]
		default:
			// Nothing clocked out on MOSI.
			r[i] = 0
		}
	}
	l.tx++
	return nil
}

type loopConn struct {
	l *Loopback
}

func (c *loopConn) String() string {
	return c.l.String()
}

func (c *loopConn) Duplex() conn.Duplex {
	return conn.Full
}

func (c *loopConn) Tx(w, r []byte) error {
	return c.l.transfer(w, r)
}

func (c *loopConn) TxPackets(p []spi.Packet) error {
	for i := range p {
		if err := c.l.transfer(p[i].W, p[i].R); err != nil {
			return err
		}
	}
	return nil
}

var _ spi.PortCloser = &Loopback{}
var _ spi.Conn = &loopConn{}
