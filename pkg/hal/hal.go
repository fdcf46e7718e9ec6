// Package hal models the peripherals of a small mixed-signal microcontroller
// for the example programs: a clock tree, GPIO ports, one ADC with its
// common block, a DMA controller, one I²C and one SPI controller and a
// couple of basic timers.
//
// The peripherals are owned by a single Peripherals value that can be taken
// once per process. Every driver consumes the token it needs, so a
// peripheral cannot end up configured twice.
//
// What the peripherals are connected to is supplied by a Board: the analog
// front end feeding the ADC, the I²C and SPI buses and the GPIO lines. See
// package board for the simulated and the periph.io backed implementations.
package hal

import (
	"errors"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/spi"
)

var (
	// ErrAlreadyTaken is returned by Take when the peripherals were already claimed.
	ErrAlreadyTaken = errors.New("hal: peripherals already taken")
	// ErrPinMoved is returned when a pin is put into a mode a second time.
	ErrPinMoved = errors.New("hal: pin already moved into a mode")
	// ErrNoADCChannel is returned when a pin has no ADC input.
	ErrNoADCChannel = errors.New("hal: pin is not connected to an ADC channel")
	// ErrClaimed is returned when a peripheral token is used twice.
	ErrClaimed = errors.New("hal: peripheral already claimed")
)

// Frontend produces raw conversion results for ADC channels.
type Frontend interface {
	Sample(ch Channel) (uint16, error)
}

// Board connects the peripherals to the outside world.
type Board interface {
	String() string
	// Frontend returns the analog signals seen by the ADC inputs.
	Frontend() Frontend
	// Signature returns the factory calibration values of the device.
	Signature() Signature
	// OpenI2C returns the bus wired to the I²C controller.
	OpenI2C(name string) (i2c.BusCloser, error)
	// OpenSPI returns the port wired to the SPI controller.
	OpenSPI(name string) (spi.PortCloser, error)
	// Pin returns the line behind a GPIO pin.
	Pin(port byte, num uint8) (gpio.PinIO, error)
}

// Peripherals is the set of device peripherals.
type Peripherals struct {
	RCC         *RCC
	GPIOA       *Port
	GPIOB       *Port
	ADC1        *ADC
	ADC12Common *ADCCommon
	DMA1        *DMA
	I2C1        *I2C
	SPI1        *SPI
	TIM2        *Timer
	TIM6        *Timer

	board Board
	sig   Signature
}

var taken atomic.Bool

// Take returns the peripherals. It succeeds once per process.
func Take(b Board) (*Peripherals, error) {
	if !taken.CompareAndSwap(false, true) {
		return nil, ErrAlreadyTaken
	}
	return newPeripherals(b), nil
}

// Steal returns a fresh set of peripherals regardless of earlier claims.
//
// Only tests and bring-up code that own the whole process may use it.
func Steal(b Board) *Peripherals {
	taken.Store(true)
	return newPeripherals(b)
}

func newPeripherals(b Board) *Peripherals {
	p := &Peripherals{board: b, sig: b.Signature()}
	p.RCC = &RCC{}
	p.GPIOA = newPort('A', b)
	p.GPIOB = newPort('B', b)
	p.ADC12Common = &ADCCommon{}
	p.ADC1 = &ADC{name: "ADC1", board: b, common: p.ADC12Common}
	p.DMA1 = &DMA{name: "DMA1", streams: 8}
	p.I2C1 = &I2C{name: "I2C1", board: b}
	p.SPI1 = &SPI{name: "SPI1", board: b}
	p.TIM2 = &Timer{name: "TIM2"}
	p.TIM6 = &Timer{name: "TIM6"}
	return p
}

// Board returns the board the peripherals are wired to.
func (p *Peripherals) Board() Board {
	return p.board
}

// Port returns the GPIO port named by letter, or nil.
func (p *Peripherals) Port(name byte) *Port {
	switch name {
	case 'A':
		return p.GPIOA
	case 'B':
		return p.GPIOB
	}
	return nil
}

// Signature returns the factory calibration values read at startup.
func (p *Peripherals) Signature() Signature {
	return p.sig
}

// claim marks a peripheral token as consumed.
type claim struct {
	used atomic.Bool
}

func (c *claim) take() error {
	if !c.used.CompareAndSwap(false, true) {
		return ErrClaimed
	}
	return nil
}
