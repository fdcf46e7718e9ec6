package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/itohio/g4hal/pkg/analog"
	"github.com/itohio/g4hal/pkg/config"
	"github.com/itohio/g4hal/pkg/hal"
)

// FirstFrameTimeout bounds the wait for the serial front end to report.
const FirstFrameTimeout = 3 * time.Second

// ErrNoFrontend is returned by the ADC inputs of a host board without a
// serial front end.
var ErrNoFrontend = errors.New("board: no analog front end configured")

// Host uses the buses and GPIO lines of the machine it runs on. The ADC
// inputs are converted by an MCU reporting over a serial link.
type Host struct {
	sig   hal.Signature
	pins  map[string]string
	front analog.Frontend
}

// NewHost initializes periph.io host drivers and, when a serial port is
// configured, connects the analog front end and waits for its first frame.
func NewHost(ctx context.Context, cfg *config.Config) (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	h := &Host{sig: signature(cfg.Calibration), pins: cfg.Pins}
	if cfg.Serial.Port == "" {
		return h, nil
	}

	front, err := connect(ctx, analog.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate))
	if err != nil {
		return nil, fmt.Errorf("board: %s: %w", cfg.Serial.Port, err)
	}
	h.front = front
	return h, nil
}

// connect connects f and waits up to FirstFrameTimeout for its first
// conversion. f is closed when that fails.
func connect(ctx context.Context, f analog.Frontend) (analog.Frontend, error) {
	if err := f.Connect(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, FirstFrameTimeout)
	defer cancel()
	if err := waitFrame(ctx, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func waitFrame(ctx context.Context, f analog.Frontend) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		_, err := f.Sample(hal.ChannelVref)
		if err == nil {
			return nil
		}
		if !errors.Is(err, analog.ErrNoData) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (h *Host) String() string {
	return "host"
}

// Frontend implements hal.Board.
func (h *Host) Frontend() hal.Frontend {
	if h.front == nil {
		return noFrontend{}
	}
	return h.front
}

// Signature implements hal.Board.
func (h *Host) Signature() hal.Signature {
	return h.sig
}

// OpenI2C implements hal.Board. An empty name opens the first bus.
func (h *Host) OpenI2C(name string) (i2c.BusCloser, error) {
	return i2creg.Open(name)
}

// OpenSPI implements hal.Board. An empty name opens the first port.
func (h *Host) OpenSPI(name string) (spi.PortCloser, error) {
	return spireg.Open(name)
}

// Pin implements hal.Board. Device pins are mapped to host lines by the
// pins configuration; unmapped pins are looked up by their own name.
func (h *Host) Pin(port byte, num uint8) (gpio.PinIO, error) {
	name := pinName(port, num)
	line := name
	if l, ok := h.pins[name]; ok {
		line = l
	}
	p := gpioreg.ByName(line)
	if p == nil {
		return nil, fmt.Errorf("board: no GPIO line %q for %s", line, name)
	}
	return p, nil
}

// Close disconnects the serial front end.
func (h *Host) Close() error {
	if h.front == nil {
		return nil
	}
	return h.front.Close()
}

type noFrontend struct{}

func (noFrontend) Sample(hal.Channel) (uint16, error) {
	return 0, ErrNoFrontend
}

var _ Board = &Host{}
