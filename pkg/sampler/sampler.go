// Package sampler keeps the ADC scanning an external pin, the temperature
// sensor and the internal reference into a circular DMA buffer, and drains
// it in fixed batches that are converted to millivolts and degrees.
//
// Falling behind the converter is fatal: once the DMA engine laps unread
// samples there is no way to tell which samples were lost.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itohio/g4hal/pkg/adc"
	"github.com/itohio/g4hal/pkg/config"
	"github.com/itohio/g4hal/pkg/dma"
	"github.com/itohio/g4hal/pkg/hal"
)

var (
	// ErrOverrun is returned when the DMA engine overwrote samples that were
	// not drained yet.
	ErrOverrun = errors.New("sampler: DMA overrun, reading too slow")
	// ErrShortRead is returned when a drain returns fewer samples than requested.
	ErrShortRead = errors.New("sampler: short read")
	// ErrAlreadyStarted is returned when starting a sampler twice.
	ErrAlreadyStarted = errors.New("sampler: already started")
)

// State is the sampler state.
type State uint8

// Sampler states. There is no way back to Idle.
const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Streaming:
		return "Streaming"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Logger receives the diagnostic lines of every drained batch.
type Logger interface {
	Infof(format string, args ...any)
}

// Sampler is the continuous ADC/DMA sampler.
type Sampler struct {
	log Logger
	sig hal.Signature

	adc      *adc.ADC
	transfer *dma.CircTransfer[*adc.DMA]
	pin      hal.AnalogPin
	seq      []hal.Channel
	batch    []uint16

	sampleTime adc.SampleTime

	mu    sync.Mutex
	state State
}

// New claims the peripherals and configures the acquisition: clocks, DMA
// stream, analog pin, ADC sequence [pin, temperature, reference] and the
// circular transfer. Conversions do not run until Start.
func New(p *hal.Peripherals, cfg *config.Config, log Logger) (*Sampler, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ac := cfg.ADC
	st, err := adc.ParseSampleTime(ac.SampleTime)
	if err != nil {
		return nil, err
	}
	res, err := adc.ParseResolution(ac.Resolution)
	if err != nil {
		return nil, err
	}

	clocks, err := hal.FromConfig(cfg.Clocks)
	if err != nil {
		return nil, err
	}
	rcc, err := p.RCC.Freeze(clocks)
	if err != nil {
		return nil, err
	}
	delay, err := hal.NewDelay(p.TIM2, rcc.Clocks, time.Microsecond)
	if err != nil {
		return nil, err
	}

	streams, err := dma.Split(p.DMA1)
	if err != nil {
		return nil, err
	}
	stream, err := streams.Stream(0)
	if err != nil {
		return nil, err
	}
	dmaCfg := dma.DefaultConfig().
		WithTransferCompleteInterrupt(false).
		WithCircularBuffer(true).
		WithMemoryIncrement(true)

	portName, num, err := hal.ParsePin(ac.Pin)
	if err != nil {
		return nil, err
	}
	port := p.Port(portName)
	if port == nil {
		return nil, fmt.Errorf("sampler: no GPIO port %c", portName)
	}
	parts, err := port.Split(rcc)
	if err != nil {
		return nil, err
	}
	pin, err := parts.Pin(num).IntoAnalog()
	if err != nil {
		return nil, err
	}

	a, err := adc.Claim(p.ADC1, rcc, delay, adc.Config{
		Clock:      adc.SystemClock,
		Prescaler:  ac.Prescaler,
		Resolution: res,
	})
	if err != nil {
		return nil, err
	}
	a.EnableTemperature(p.ADC12Common)
	a.EnableVref(p.ADC12Common)
	if err := a.SetContinuous(adc.ContinuousMode); err != nil {
		return nil, err
	}
	if err := a.ResetSequence(); err != nil {
		return nil, err
	}
	sources := []adc.Source{pin, adc.Temperature, adc.Vref}
	for i, src := range sources {
		if err := a.ConfigureChannel(src, adc.Sequence(i), st); err != nil {
			return nil, err
		}
	}
	seq, err := a.Sequence()
	if err != nil {
		return nil, err
	}

	if ac.BatchLen <= 0 || ac.BatchLen%len(seq) != 0 {
		return nil, fmt.Errorf("sampler: batch of %d samples is not a whole number of %d-channel cycles", ac.BatchLen, len(seq))
	}
	if ac.BufferLen%len(seq) != 0 {
		return nil, fmt.Errorf("sampler: buffer of %d samples is not a whole number of %d-channel cycles", ac.BufferLen, len(seq))
	}
	if ac.BatchLen > ac.BufferLen {
		return nil, fmt.Errorf("sampler: batch of %d samples does not fit a %d sample buffer", ac.BatchLen, ac.BufferLen)
	}

	d, err := a.EnableDMA(adc.DMAContinuous)
	if err != nil {
		return nil, err
	}
	transfer, err := dma.IntoCircPeripheralToMemory(stream, d, make([]uint16, ac.BufferLen), dmaCfg)
	if err != nil {
		return nil, err
	}

	return &Sampler{
		log:      log,
		sig:      p.Signature(),
		adc:      a,
		transfer: transfer,
		pin:      pin,
		seq:      seq,
		batch:    make([]uint16, ac.BatchLen),

		sampleTime: st,
	}, nil
}

// State returns the sampler state.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sequence returns the channel order of every conversion cycle.
func (s *Sampler) Sequence() []hal.Channel {
	return s.seq
}

// SamplePeriod returns the time the ADC needs for one full sequence.
func (s *Sampler) SamplePeriod() time.Duration {
	return time.Duration(len(s.seq)) * s.adc.ConversionTime(s.sampleTime)
}

// Start enables the DMA stream and starts continuous conversion.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrAlreadyStarted
	}
	err := s.transfer.Start(func(d *adc.DMA) error {
		return d.StartConversion()
	})
	if err != nil {
		return err
	}
	s.state = Streaming
	return nil
}

// Drain blocks until a whole batch of new samples arrived and converts it.
func (s *Sampler) Drain(ctx context.Context) (Reading, error) {
	n, err := s.transfer.ReadExact(ctx, s.batch)
	if err != nil {
		return Reading{}, err
	}
	if s.transfer.Overrun() {
		return Reading{}, ErrOverrun
	}
	if n != len(s.batch) {
		return Reading{}, fmt.Errorf("%w: %d of %d samples", ErrShortRead, n, len(s.batch))
	}

	r, err := Convert(s.batch, s.seq, s.adc.Resolution(), s.sig)
	if err != nil {
		return Reading{}, err
	}
	if s.log != nil {
		s.log.Infof("read: %d", n)
		s.log.Infof("vdda: %dmV", r.VddaMV)
		s.log.Infof("%s: %dmV", strings.ToLower(s.pin.String()), r.PinMV)
		s.log.Infof("vref: %dmV", r.VrefMV)
		s.log.Infof("temp: %.2f°C", r.Celsius)
	}
	return r, nil
}

// Run drains batches until ctx is done or a drain fails. Cancellation is not
// an error.
func (s *Sampler) Run(ctx context.Context) error {
	for {
		if _, err := s.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Stop stops conversions. Samples already in the ring can still be drained.
func (s *Sampler) Stop() {
	s.transfer.Stop()
}
