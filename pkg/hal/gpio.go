package hal

import (
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Channel is an ADC input channel number.
type Channel uint8

// Internal ADC channels.
const (
	ChannelTemperature Channel = 16
	ChannelVref        Channel = 18
)

func (c Channel) String() string {
	switch c {
	case ChannelTemperature:
		return "Temperature"
	case ChannelVref:
		return "Vref"
	}
	return "IN" + strconv.Itoa(int(c))
}

// adcChannels maps pins to their ADC1 input.
var adcChannels = map[byte]map[uint8]Channel{
	'A': {0: 1, 1: 2, 2: 3, 3: 4},
	'B': {0: 15, 1: 12, 11: 14, 12: 11, 14: 5},
}

// Mode is the mode a pin was moved into.
type Mode uint8

// Pin modes.
const (
	ModeUnset Mode = iota
	ModeAnalog
	ModeAlternate
	ModeAlternateOpenDrain
	ModeOutput
)

// Port is a GPIO port.
type Port struct {
	name  byte
	board Board
	claim

	mu   sync.Mutex
	pins [16]*Pin
}

func newPort(name byte, b Board) *Port {
	p := &Port{name: name, board: b}
	for i := range p.pins {
		p.pins[i] = &Pin{port: p, num: uint8(i)}
	}
	return p
}

// Split enables the port clock and hands out its pins.
func (p *Port) Split(rcc *Rcc) (*Parts, error) {
	if rcc == nil {
		return nil, fmt.Errorf("GPIO%c: clocks not frozen", p.name)
	}
	if err := p.take(); err != nil {
		return nil, fmt.Errorf("GPIO%c: %w", p.name, err)
	}
	return &Parts{port: p}, nil
}

// Parts gives access to the pins of a split port.
type Parts struct {
	port *Port
}

// Pin returns pin n of the port. n must be below 16.
func (g *Parts) Pin(n uint8) *Pin {
	return g.port.pins[n&15]
}

// Pin is a GPIO pin that has not been configured yet.
type Pin struct {
	port *Port
	num  uint8
	mode Mode
}

func (p *Pin) String() string {
	return fmt.Sprintf("P%c%d", p.port.name, p.num)
}

// Mode returns the mode the pin was moved into.
func (p *Pin) Mode() Mode {
	p.port.mu.Lock()
	defer p.port.mu.Unlock()
	return p.mode
}

func (p *Pin) moveInto(m Mode) error {
	p.port.mu.Lock()
	defer p.port.mu.Unlock()
	if p.mode != ModeUnset {
		return fmt.Errorf("%s: %w", p, ErrPinMoved)
	}
	p.mode = m
	return nil
}

// AnalogPin is a pin placed in analog mode. Only Pin.IntoAnalog creates one,
// so holding an AnalogPin proves the transition happened.
type AnalogPin interface {
	String() string
	Channel() Channel
	analog()
}

type analogPin struct {
	name string
	ch   Channel
}

func (a *analogPin) String() string   { return a.name }
func (a *analogPin) Channel() Channel { return a.ch }
func (a *analogPin) analog()          {}

// IntoAnalog moves the pin into analog mode.
func (p *Pin) IntoAnalog() (AnalogPin, error) {
	ch, ok := adcChannels[p.port.name][p.num]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNoADCChannel)
	}
	if err := p.moveInto(ModeAnalog); err != nil {
		return nil, err
	}
	return &analogPin{name: p.String(), ch: ch}, nil
}

// AlternatePin is a pin handed to a peripheral.
type AlternatePin interface {
	String() string
	OpenDrain() bool
	alternate()
}

type alternatePin struct {
	name      string
	openDrain bool
}

func (a *alternatePin) String() string  { return a.name }
func (a *alternatePin) OpenDrain() bool { return a.openDrain }
func (a *alternatePin) alternate()      {}

// IntoAlternate moves the pin into push-pull alternate function mode.
func (p *Pin) IntoAlternate() (AlternatePin, error) {
	if err := p.moveInto(ModeAlternate); err != nil {
		return nil, err
	}
	return &alternatePin{name: p.String()}, nil
}

// IntoAlternateOpenDrain moves the pin into open-drain alternate function
// mode, as I²C lines require.
func (p *Pin) IntoAlternateOpenDrain() (AlternatePin, error) {
	if err := p.moveInto(ModeAlternateOpenDrain); err != nil {
		return nil, err
	}
	return &alternatePin{name: p.String(), openDrain: true}, nil
}

// OutputPin is a push-pull output.
type OutputPin struct {
	name string
	line gpio.PinIO
}

// IntoPushPullOutput moves the pin into push-pull output mode.
func (p *Pin) IntoPushPullOutput() (*OutputPin, error) {
	line, err := p.port.board.Pin(p.port.name, p.num)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if err := p.moveInto(ModeOutput); err != nil {
		return nil, err
	}
	return &OutputPin{name: p.String(), line: line}, nil
}

func (o *OutputPin) String() string {
	return o.name
}

// SetHigh drives the pin high.
func (o *OutputPin) SetHigh() error {
	return o.line.Out(gpio.High)
}

// SetLow drives the pin low.
func (o *OutputPin) SetLow() error {
	return o.line.Out(gpio.Low)
}

// Line returns the underlying line, for drivers taking a gpio.PinOut.
func (o *OutputPin) Line() gpio.PinOut {
	return o.line
}

// ParsePin parses a pin name such as "PA0" or "PB12".
func ParsePin(s string) (port byte, num uint8, err error) {
	if len(s) < 3 || s[0] != 'P' {
		return 0, 0, fmt.Errorf("invalid pin name %q", s)
	}
	n, err := strconv.ParseUint(s[2:], 10, 8)
	if err != nil || n > 15 {
		return 0, 0, fmt.Errorf("invalid pin name %q", s)
	}
	return s[1], uint8(n), nil
}
