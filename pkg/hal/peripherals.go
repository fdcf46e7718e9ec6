package hal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// VddaCalib is the analog supply, in millivolts, at which the factory
// calibration values were measured.
const VddaCalib = 3000

// Temperatures, in °C, at which TSCal1 and TSCal2 were measured.
const (
	TSCal1Temp = 30
	TSCal2Temp = 130
)

// Signature holds the factory calibration values. They are read-only.
type Signature struct {
	// VrefIntCal is the raw 12-bit internal reference conversion at VddaCalib.
	VrefIntCal uint16
	// TSCal1 is the raw 12-bit temperature sensor conversion at TSCal1Temp.
	TSCal1 uint16
	// TSCal2 is the raw 12-bit temperature sensor conversion at TSCal2Temp.
	TSCal2 uint16
}

// ADC is the token of an ADC instance.
type ADC struct {
	name   string
	board  Board
	common *ADCCommon
	claim
}

func (a *ADC) String() string {
	return a.name
}

// Claim consumes the token and returns the front end wired to the ADC inputs.
func (a *ADC) Claim() (Frontend, *ADCCommon, error) {
	if err := a.take(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", a.name, err)
	}
	return a.board.Frontend(), a.common, nil
}

// ADCCommon holds the settings shared by ADC1 and ADC2.
type ADCCommon struct {
	mu          sync.Mutex
	temperature bool
	vref        bool
}

// EnableTemperature powers the internal temperature sensor.
func (c *ADCCommon) EnableTemperature() {
	c.mu.Lock()
	c.temperature = true
	c.mu.Unlock()
}

// EnableVref powers the internal voltage reference channel.
func (c *ADCCommon) EnableVref() {
	c.mu.Lock()
	c.vref = true
	c.mu.Unlock()
}

// Enabled reports whether an internal channel is powered. External channels
// are always enabled.
func (c *ADCCommon) Enabled(ch Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ch {
	case ChannelTemperature:
		return c.temperature
	case ChannelVref:
		return c.vref
	}
	return true
}

// DMA is the token of a DMA controller.
type DMA struct {
	name    string
	streams int
	claim
}

func (d *DMA) String() string {
	return d.name
}

// Claim consumes the token and returns the number of streams.
func (d *DMA) Claim() (int, error) {
	if err := d.take(); err != nil {
		return 0, fmt.Errorf("%s: %w", d.name, err)
	}
	return d.streams, nil
}

// I2C is the token of an I²C controller.
type I2C struct {
	name  string
	board Board
	claim
}

// I2C configures the controller on the given pins and returns the bus. name
// selects the bus on boards exposing several.
func (c *I2C) I2C(sda, scl AlternatePin, freq physic.Frequency, name string) (i2c.BusCloser, error) {
	if !sda.OpenDrain() || !scl.OpenDrain() {
		return nil, fmt.Errorf("%s: SDA and SCL must be open-drain", c.name)
	}
	if err := c.take(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	b, err := c.board.OpenI2C(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if freq != 0 {
		if err := b.SetSpeed(freq); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return b, nil
}

// SPI is the token of an SPI controller.
type SPI struct {
	name  string
	board Board
	claim
}

// SPI configures the controller on the given pins and returns the port.
func (s *SPI) SPI(sclk, miso, mosi AlternatePin, name string) (spi.PortCloser, error) {
	if err := s.take(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	p, err := s.board.OpenSPI(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return p, nil
}

// Timer is the token of a basic timer.
type Timer struct {
	name string
	claim
}

// Delay is a blocking delay provider built on a count-down timer.
type Delay struct {
	timer  string
	period time.Duration
}

// NewDelay starts the timer counting down with the given period and returns
// a delay provider driven by it.
func NewDelay(t *Timer, clocks Clocks, period time.Duration) (*Delay, error) {
	if clocks.PClk1 == 0 {
		return nil, fmt.Errorf("%s: clocks not frozen", t.name)
	}
	if err := t.take(); err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return &Delay{timer: t.name, period: period}, nil
}

func (d *Delay) String() string {
	return d.timer
}

// Delay blocks for dur or until ctx is done.
func (d *Delay) Delay(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DelayMs blocks for ms milliseconds.
func (d *Delay) DelayMs(ms uint32) {
	_ = d.Delay(context.Background(), time.Duration(ms)*time.Millisecond)
}

// DelayUs blocks for us microseconds.
func (d *Delay) DelayUs(us uint32) {
	_ = d.Delay(context.Background(), time.Duration(us)*time.Microsecond)
}
