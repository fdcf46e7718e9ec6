package adc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/g4hal/pkg/dma"
)

// ErrNotAttached is returned when starting conversions before the DMA
// handle was bound to a transfer.
var ErrNotAttached = errors.New("adc: DMA handle not attached to a transfer")

// DMA is the DMA request side of an ADC. It implements dma.Peripheral.
type DMA struct {
	adc        *ADC
	mode       DMAMode
	slots      []slot
	continuous bool

	mu      sync.Mutex
	w       dma.Writer
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

var _ dma.Peripheral = (*DMA)(nil)

func (d *DMA) String() string {
	return d.adc.name + ".DMA"
}

// ADC returns the converter the handle belongs to.
func (d *DMA) ADC() *ADC {
	return d.adc
}

// Mode returns the DMA request mode.
func (d *DMA) Mode() DMAMode {
	return d.mode
}

// Attach implements dma.Peripheral.
func (d *DMA) Attach(w dma.Writer) {
	d.mu.Lock()
	d.w = w
	d.mu.Unlock()
}

// StartConversion starts converting the sequence. In continuous mode the
// sequence restarts after its last slot until Stop is called.
func (d *DMA) StartConversion() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return ErrNotAttached
	}
	if d.started {
		return fmt.Errorf("%s: conversion already started", d)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.started = true
	go d.run(ctx, d.w, d.done)
	return nil
}

// Stop implements dma.Stopper. It stops converting and waits for the last
// conversion to be handed over.
func (d *DMA) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run paces conversions by the ADC clock. When the host falls behind the
// schedule, the missed conversions are produced back to back so the sample
// rate seen by the transfer stays the hardware one.
//
// In DMASingle mode requests stop once the transfer count is reached, even
// if the converter keeps running.
func (d *DMA) run(ctx context.Context, w dma.Writer, done chan<- struct{}) {
	defer close(done)

	remaining := -1
	if d.mode == DMASingle {
		remaining = w.Capacity()
	}

	periods := make([]time.Duration, len(d.slots))
	for i, s := range d.slots {
		periods[i] = d.adc.ConversionTime(s.sampleTime)
	}

	timer := time.NewTimer(periods[0])
	defer timer.Stop()

	next := time.Now().Add(periods[0])
	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		for !next.After(now) {
			v, err := d.adc.sample(d.slots[i].ch)
			if err != nil {
				w.Abort(err)
				return
			}
			w.WriteSample(v)
			if remaining > 0 {
				remaining--
				if remaining == 0 {
					return
				}
			}

			i++
			if i == len(d.slots) {
				i = 0
				if !d.continuous {
					return
				}
			}
			next = next.Add(periods[i])
		}
		timer.Reset(time.Until(next))
	}
}
