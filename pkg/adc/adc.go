// Package adc drives the analog-to-digital converter: regular channel
// sequence, per-slot sample times, continuous mode and the DMA request
// line that feeds circular transfers.
//
// Conversion results come from the hal.Frontend of the board. Conversions
// are paced by the ADC clock, so a sequence of slow sample times on a
// heavily divided clock produces samples at the rate the hardware would.
package adc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/itohio/g4hal/pkg/hal"
)

var (
	// ErrChannelDisabled is returned when configuring an internal channel
	// that was not enabled in the common block.
	ErrChannelDisabled = errors.New("adc: internal channel not enabled")
	// ErrSequenceGap is returned when the sequence has unconfigured slots
	// before its last configured slot.
	ErrSequenceGap = errors.New("adc: sequence has an unconfigured slot")
	// ErrEmptySequence is returned when converting without any configured slot.
	ErrEmptySequence = errors.New("adc: empty sequence")
	// ErrDMAEnabled is returned when changing the configuration after DMA was enabled.
	ErrDMAEnabled = errors.New("adc: configuration locked by DMA")
)

// Source is anything that can be placed in the conversion sequence: an
// analog pin, Temperature or Vref.
type Source interface {
	Channel() hal.Channel
}

type internal hal.Channel

func (i internal) Channel() hal.Channel { return hal.Channel(i) }
func (i internal) String() string       { return hal.Channel(i).String() }

// Internal channels.
var (
	Temperature Source = internal(hal.ChannelTemperature)
	Vref        Source = internal(hal.ChannelVref)
)

type slot struct {
	ch         hal.Channel
	sampleTime SampleTime
	set        bool
}

// ADC is a claimed ADC.
type ADC struct {
	name     string
	frontend hal.Frontend
	common   *hal.ADCCommon
	clock    physic.Frequency
	res      Resolution

	mu         sync.Mutex
	continuous Continuous
	slots      [MaxSequence]slot
	dma        *DMA
}

// Claim takes the ADC token and powers the converter up. delay is used to
// wait for the internal voltage regulator.
func Claim(tok *hal.ADC, rcc *hal.Rcc, delay *hal.Delay, cfg Config) (*ADC, error) {
	if rcc == nil {
		return nil, fmt.Errorf("%s: clocks not frozen", tok)
	}
	if !validPrescaler(cfg.Prescaler) {
		return nil, fmt.Errorf("%s: invalid prescaler %d", tok, cfg.Prescaler)
	}
	if _, err := ParseResolution(int(cfg.Resolution)); err != nil {
		return nil, fmt.Errorf("%s: %w", tok, err)
	}
	fe, common, err := tok.Claim()
	if err != nil {
		return nil, err
	}
	clock := rcc.Clocks.SysClk
	if cfg.Clock == PLLP {
		clock = rcc.Clocks.SysClk / 2
	}
	if delay != nil {
		// Regulator startup time.
		delay.DelayUs(20)
	}
	return &ADC{
		name:     tok.String(),
		frontend: fe,
		common:   common,
		clock:    clock / physic.Frequency(cfg.Prescaler),
		res:      cfg.Resolution,
	}, nil
}

func (a *ADC) String() string {
	return a.name
}

// Clock returns the ADC clock after the prescaler.
func (a *ADC) Clock() physic.Frequency {
	return a.clock
}

// Resolution returns the configured resolution.
func (a *ADC) Resolution() Resolution {
	return a.res
}

// EnableTemperature powers the temperature sensor channel.
func (a *ADC) EnableTemperature(common *hal.ADCCommon) {
	common.EnableTemperature()
}

// EnableVref powers the internal reference channel.
func (a *ADC) EnableVref(common *hal.ADCCommon) {
	common.EnableVref()
}

// SetContinuous selects single or continuous conversion.
func (a *ADC) SetContinuous(c Continuous) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dma != nil {
		return ErrDMAEnabled
	}
	a.continuous = c
	return nil
}

// ResetSequence clears all sequence slots.
func (a *ADC) ResetSequence() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dma != nil {
		return ErrDMAEnabled
	}
	a.slots = [MaxSequence]slot{}
	return nil
}

// ConfigureChannel places src in slot seq with sample time st.
func (a *ADC) ConfigureChannel(src Source, seq Sequence, st SampleTime) error {
	if seq >= MaxSequence {
		return fmt.Errorf("%s: invalid sequence slot %d", a.name, seq)
	}
	if st.Cycles() == 0 {
		return fmt.Errorf("%s: invalid sample time %s", a.name, st)
	}
	ch := src.Channel()
	if !a.common.Enabled(ch) {
		return fmt.Errorf("%s: %s: %w", a.name, ch, ErrChannelDisabled)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dma != nil {
		return ErrDMAEnabled
	}
	a.slots[seq] = slot{ch: ch, sampleTime: st, set: true}
	return nil
}

// Sequence returns the channels of the configured sequence in slot order.
func (a *ADC) Sequence() ([]hal.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slots, err := a.sequence()
	if err != nil {
		return nil, err
	}
	chans := make([]hal.Channel, len(slots))
	for i, s := range slots {
		chans[i] = s.ch
	}
	return chans, nil
}

// sequence returns the configured slots. a.mu must be held.
func (a *ADC) sequence() ([]slot, error) {
	last := -1
	for i := range a.slots {
		if a.slots[i].set {
			last = i
		}
	}
	if last < 0 {
		return nil, ErrEmptySequence
	}
	for i := 0; i <= last; i++ {
		if !a.slots[i].set {
			return nil, fmt.Errorf("%s: slot %d: %w", a.name, i+1, ErrSequenceGap)
		}
	}
	out := make([]slot, last+1)
	copy(out, a.slots[:last+1])
	return out, nil
}

// ConversionTime returns the duration of one conversion with sample time st.
func (a *ADC) ConversionTime(st SampleTime) time.Duration {
	return conversionTime(a.clock, st, a.res)
}

// Convert performs one blocking conversion of src.
func (a *ADC) Convert(src Source, st SampleTime) (uint16, error) {
	ch := src.Channel()
	if !a.common.Enabled(ch) {
		return 0, fmt.Errorf("%s: %s: %w", a.name, ch, ErrChannelDisabled)
	}
	time.Sleep(a.ConversionTime(st))
	return a.sample(ch)
}

// sample reads the front end and truncates to the configured resolution.
func (a *ADC) sample(ch hal.Channel) (uint16, error) {
	v, err := a.frontend.Sample(ch)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", a.name, ch, err)
	}
	if a.res < Twelve {
		v >>= Twelve.Bits() - a.res.Bits()
	}
	return v, nil
}

// EnableDMA routes conversion results to the DMA controller and locks the
// configuration. The returned handle is the peripheral side of a DMA
// transfer.
func (a *ADC) EnableDMA(mode DMAMode) (*DMA, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dma != nil {
		return nil, ErrDMAEnabled
	}
	if mode == DMADisabled {
		return nil, fmt.Errorf("%s: DMA mode disabled", a.name)
	}
	slots, err := a.sequence()
	if err != nil {
		return nil, err
	}
	a.dma = &DMA{adc: a, mode: mode, slots: slots, continuous: a.continuous == ContinuousMode}
	return a.dma, nil
}
