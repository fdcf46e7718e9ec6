package adc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/itohio/g4hal/pkg/dma"
	"github.com/itohio/g4hal/pkg/hal"
)

type fakeFrontend struct {
	mu    sync.Mutex
	codes map[hal.Channel]uint16
	err   error
}

func (f *fakeFrontend) Sample(ch hal.Channel) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.codes[ch], nil
}

func (f *fakeFrontend) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type testBoard struct {
	fe *fakeFrontend
}

func (b testBoard) String() string                         { return "test" }
func (b testBoard) Frontend() hal.Frontend                 { return b.fe }
func (b testBoard) Signature() hal.Signature               { return hal.Signature{VrefIntCal: 1655, TSCal1: 1034, TSCal2: 1380} }
func (b testBoard) OpenI2C(string) (i2c.BusCloser, error)  { return nil, errors.New("no i2c") }
func (b testBoard) OpenSPI(string) (spi.PortCloser, error) { return nil, errors.New("no spi") }
func (b testBoard) Pin(byte, uint8) (gpio.PinIO, error)    { return nil, errors.New("no pins") }

type rig struct {
	p   *hal.Peripherals
	rcc *hal.Rcc
	fe  *fakeFrontend
	pa0 hal.AnalogPin
}

func newRig(t *testing.T) *rig {
	t.Helper()
	fe := &fakeFrontend{codes: map[hal.Channel]uint16{
		1:                      2048,
		hal.ChannelTemperature: 1034,
		hal.ChannelVref:        1655,
	}}
	p := hal.Steal(testBoard{fe: fe})
	rcc, err := p.RCC.Freeze(hal.HSI())
	require.NoError(t, err)
	gpioa, err := p.GPIOA.Split(rcc)
	require.NoError(t, err)
	pa0, err := gpioa.Pin(0).IntoAnalog()
	require.NoError(t, err)
	return &rig{p: p, rcc: rcc, fe: fe, pa0: pa0}
}

func (r *rig) claim(t *testing.T, cfg Config) *ADC {
	t.Helper()
	a, err := Claim(r.p.ADC1, r.rcc, nil, cfg)
	require.NoError(t, err)
	return a
}

// sequence configures [pin, temperature, vref] the way the sampler does.
func (r *rig) sequence(t *testing.T, a *ADC, st SampleTime) {
	t.Helper()
	a.EnableTemperature(r.p.ADC12Common)
	a.EnableVref(r.p.ADC12Common)
	require.NoError(t, a.SetContinuous(ContinuousMode))
	require.NoError(t, a.ResetSequence())
	require.NoError(t, a.ConfigureChannel(r.pa0, Seq1, st))
	require.NoError(t, a.ConfigureChannel(Temperature, Seq2, st))
	require.NoError(t, a.ConfigureChannel(Vref, Seq3, st))
}

func TestClaim(t *testing.T) {
	r := newRig(t)

	_, err := Claim(r.p.ADC1, nil, nil, DefaultConfig())
	assert.Error(t, err)

	_, err = Claim(r.p.ADC1, r.rcc, nil, Config{Prescaler: 3, Resolution: Twelve})
	assert.Error(t, err)

	_, err = Claim(r.p.ADC1, r.rcc, nil, Config{Prescaler: 1, Resolution: 11})
	assert.Error(t, err)

	a := r.claim(t, Config{Clock: SystemClock, Prescaler: 256, Resolution: Twelve})
	assert.Equal(t, "ADC1", a.String())
	assert.Equal(t, 62500*physic.Hertz, a.Clock())
	assert.Equal(t, Twelve, a.Resolution())

	_, err = Claim(r.p.ADC1, r.rcc, nil, DefaultConfig())
	assert.ErrorIs(t, err, hal.ErrClaimed)
}

func TestClaim_PLLPClock(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, Config{Clock: PLLP, Prescaler: 4, Resolution: Twelve})
	assert.Equal(t, 2*physic.MegaHertz, a.Clock())
}

func TestClaim_RegulatorDelay(t *testing.T) {
	r := newRig(t)
	d, err := hal.NewDelay(r.p.TIM6, r.rcc.Clocks, time.Microsecond)
	require.NoError(t, err)
	_, err = Claim(r.p.ADC1, r.rcc, d, DefaultConfig())
	assert.NoError(t, err)
}

func TestConversionTime(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, Config{Prescaler: 256, Resolution: Twelve})
	// (640.5 + 12.5) cycles at 62.5kHz
	assert.Equal(t, 10448*time.Microsecond, a.ConversionTime(Cycles640_5))
}

func TestConfigureChannel_InternalNeedsEnable(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())

	err := a.ConfigureChannel(Temperature, Seq1, Cycles640_5)
	assert.ErrorIs(t, err, ErrChannelDisabled)
	err = a.ConfigureChannel(Vref, Seq1, Cycles640_5)
	assert.ErrorIs(t, err, ErrChannelDisabled)

	a.EnableTemperature(r.p.ADC12Common)
	assert.NoError(t, a.ConfigureChannel(Temperature, Seq1, Cycles640_5))
}

func TestConfigureChannel_Invalid(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())
	assert.Error(t, a.ConfigureChannel(r.pa0, MaxSequence, Cycles2_5))
	assert.Error(t, a.ConfigureChannel(r.pa0, Seq1, SampleTime(42)))
}

func TestSequence(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())

	_, err := a.Sequence()
	assert.ErrorIs(t, err, ErrEmptySequence)

	r.sequence(t, a, Cycles640_5)
	seq, err := a.Sequence()
	require.NoError(t, err)
	assert.Equal(t, []hal.Channel{1, hal.ChannelTemperature, hal.ChannelVref}, seq)

	require.NoError(t, a.ConfigureChannel(r.pa0, Seq5, Cycles2_5))
	_, err = a.Sequence()
	assert.ErrorIs(t, err, ErrSequenceGap)

	require.NoError(t, a.ResetSequence())
	_, err = a.Sequence()
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestEnableDMA_LocksConfiguration(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())

	_, err := a.EnableDMA(DMAContinuous)
	assert.ErrorIs(t, err, ErrEmptySequence)

	r.sequence(t, a, Cycles2_5)
	_, err = a.EnableDMA(DMADisabled)
	assert.Error(t, err)

	d, err := a.EnableDMA(DMAContinuous)
	require.NoError(t, err)
	assert.Same(t, a, d.ADC())
	assert.Equal(t, DMAContinuous, d.Mode())
	assert.Equal(t, "ADC1.DMA", d.String())

	assert.ErrorIs(t, a.SetContinuous(Single), ErrDMAEnabled)
	assert.ErrorIs(t, a.ResetSequence(), ErrDMAEnabled)
	assert.ErrorIs(t, a.ConfigureChannel(r.pa0, Seq4, Cycles2_5), ErrDMAEnabled)
	_, err = a.EnableDMA(DMAContinuous)
	assert.ErrorIs(t, err, ErrDMAEnabled)
}

func TestConvert(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())

	v, err := a.Convert(r.pa0, Cycles2_5)
	require.NoError(t, err)
	assert.Equal(t, uint16(2048), v)

	_, err = a.Convert(Vref, Cycles640_5)
	assert.ErrorIs(t, err, ErrChannelDisabled)
}

func TestConvert_Resolution(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, Config{Prescaler: 1, Resolution: Eight})
	v, err := a.Convert(r.pa0, Cycles2_5)
	require.NoError(t, err)
	assert.Equal(t, uint16(128), v)
}

func TestDMA_StartWithoutTransfer(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())
	r.sequence(t, a, Cycles2_5)
	d, err := a.EnableDMA(DMAContinuous)
	require.NoError(t, err)
	assert.ErrorIs(t, d.StartConversion(), ErrNotAttached)
	d.Stop()
}

func startCirc(t *testing.T, d *DMA, size int) *dma.CircTransfer[*DMA] {
	t.Helper()
	cfg := dma.DefaultConfig().WithCircularBuffer(true)
	tr, err := dma.IntoCircPeripheralToMemory(&dma.Stream{}, d, make([]uint16, size), cfg)
	require.NoError(t, err)
	require.NoError(t, tr.Start(func(d *DMA) error { return d.StartConversion() }))
	return tr
}

func TestDMA_ContinuousSequenceOrder(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, Config{Prescaler: 256, Resolution: Twelve})
	r.sequence(t, a, Cycles47_5)
	d, err := a.EnableDMA(DMAContinuous)
	require.NoError(t, err)

	tr := startCirc(t, d, 15)
	defer tr.Stop()

	assert.Error(t, d.StartConversion())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dst := make([]uint16, 6)
	for i := 0; i < 3; i++ {
		n, err := tr.ReadExact(ctx, dst)
		require.NoError(t, err)
		require.Equal(t, 6, n)
		assert.Equal(t, []uint16{2048, 1034, 1655, 2048, 1034, 1655}, dst)
	}
	assert.False(t, tr.Overrun())
}

func TestDMA_SingleSequence(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())
	a.EnableVref(r.p.ADC12Common)
	require.NoError(t, a.ConfigureChannel(r.pa0, Seq1, Cycles2_5))
	require.NoError(t, a.ConfigureChannel(Vref, Seq2, Cycles2_5))
	d, err := a.EnableDMA(DMASingle)
	require.NoError(t, err)

	tr := startCirc(t, d, 6)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dst := make([]uint16, 2)
	n, err := tr.ReadExact(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint16{2048, 1655}, dst)

	// The sequence ran once.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, tr.Available())
	tr.Stop()
}

func TestDMA_SingleStopsAtTransferCount(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())
	r.sequence(t, a, Cycles2_5)
	d, err := a.EnableDMA(DMASingle)
	require.NoError(t, err)

	// The converter is continuous; the transfer count still ends the requests.
	tr := startCirc(t, d, 6)
	defer tr.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dst := make([]uint16, 6)
	n, err := tr.ReadExact(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []uint16{2048, 1034, 1655, 2048, 1034, 1655}, dst)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, tr.Available())
	assert.False(t, tr.Overrun())
}

func TestDMA_FrontendErrorAbortsTransfer(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())
	r.sequence(t, a, Cycles2_5)
	d, err := a.EnableDMA(DMAContinuous)
	require.NoError(t, err)

	boom := errors.New("link lost")
	r.fe.fail(boom)
	tr := startCirc(t, d, 15)
	defer tr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = tr.ReadExact(ctx, make([]uint16, 6))
	assert.ErrorIs(t, err, boom)
}

func TestDMA_Overrun(t *testing.T) {
	r := newRig(t)
	a := r.claim(t, DefaultConfig())
	r.sequence(t, a, Cycles2_5)
	d, err := a.EnableDMA(DMAContinuous)
	require.NoError(t, err)

	tr := startCirc(t, d, 15)
	defer tr.Stop()

	// Roughly 1µs per conversion: a sleeping reader falls far behind.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, tr.Overrun())
}
