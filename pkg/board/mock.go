package board

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/spi"

	"github.com/itohio/g4hal/pkg/analog"
	"github.com/itohio/g4hal/pkg/config"
	"github.com/itohio/g4hal/pkg/hal"
	"github.com/itohio/g4hal/pkg/sh1106/sh1106sim"
	"github.com/itohio/g4hal/pkg/spiloop"
)

// Mock is a simulated board: the ADC sees analog.Mock signals, the I²C bus
// carries a simulated SH1106 and SPI MOSI is wired back to MISO.
type Mock struct {
	sig     hal.Signature
	front   analog.Frontend
	display *sh1106sim.Dev

	mu   sync.Mutex
	spi  *spiloop.Loopback
	pins map[string]*gpiotest.Pin
}

// NewMock returns a connected simulated board.
func NewMock(cfg *config.Config) (*Mock, error) {
	sig := signature(cfg.Calibration)
	front, err := connect(context.Background(), analog.NewMock(&cfg.Mock, sig))
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	return &Mock{
		sig:   sig,
		front: front,
		display: sh1106sim.New(&sh1106sim.Opts{
			Addr: cfg.Display.Addr,
			W:    cfg.Display.Width,
			H:    cfg.Display.Height,
		}),
		pins: map[string]*gpiotest.Pin{},
	}, nil
}

func (m *Mock) String() string {
	return "mock"
}

// Frontend implements hal.Board.
func (m *Mock) Frontend() hal.Frontend {
	return m.front
}

// Signature implements hal.Board.
func (m *Mock) Signature() hal.Signature {
	return m.sig
}

// OpenI2C implements hal.Board. Every name selects the same bus.
func (m *Mock) OpenI2C(string) (i2c.BusCloser, error) {
	return m.display, nil
}

// OpenSPI implements hal.Board.
func (m *Mock) OpenSPI(string) (spi.PortCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spi == nil {
		m.spi = spiloop.NewLoopback()
	}
	return m.spi, nil
}

// Pin implements hal.Board.
func (m *Mock) Pin(port byte, num uint8) (gpio.PinIO, error) {
	if num > 15 {
		return nil, fmt.Errorf("board: no pin %d on port %c", num, port)
	}
	name := pinName(port, num)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[name]
	if !ok {
		p = &gpiotest.Pin{N: name, Num: int(num)}
		m.pins[name] = p
	}
	return p, nil
}

// Display returns the simulated display on the I²C bus.
func (m *Mock) Display() *sh1106sim.Dev {
	return m.display
}

// Close stops the simulation.
func (m *Mock) Close() error {
	return m.front.Close()
}

var _ Board = &Mock{}
