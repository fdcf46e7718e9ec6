// Package dma models the DMA controller: streams split off a controller
// token, transfer configuration and circular peripheral-to-memory
// transfers.
//
// A peripheral with a DMA request line implements Peripheral. Once a
// transfer is started, the peripheral pushes every result into the transfer
// through the Writer it was attached to, and the transfer stores it in the
// next slot of its ring buffer without any involvement from the reader.
package dma

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/itohio/g4hal/pkg/hal"
)

var (
	// ErrNotStarted is returned when reading a transfer that was not started.
	ErrNotStarted = errors.New("dma: transfer not started")
	// ErrAlreadyStarted is returned when starting a transfer twice.
	ErrAlreadyStarted = errors.New("dma: transfer already started")
	// ErrBatchTooLarge is returned when asking for more samples than the ring holds.
	ErrBatchTooLarge = errors.New("dma: read larger than the buffer")
	// ErrStreamInUse is returned when a stream is bound to a second transfer.
	ErrStreamInUse = errors.New("dma: stream already in use")
	// ErrNoStream is returned for a stream index the controller does not have.
	ErrNoStream = errors.New("dma: no such stream")
)

// Writer receives the data produced by a peripheral.
type Writer interface {
	// WriteSample stores one conversion result.
	WriteSample(v uint16)
	// Abort stops the transfer with err. Pending and later reads fail with it.
	Abort(err error)
	// Capacity is the transfer count: the number of samples that fill the
	// memory side once.
	Capacity() int
}

// Peripheral is the source side of a peripheral-to-memory transfer.
type Peripheral interface {
	// Attach binds the DMA request line of the peripheral to w.
	Attach(w Writer)
}

// Stopper is implemented by peripherals that can stop issuing requests.
type Stopper interface {
	Stop()
}

// Config is the transfer configuration.
type Config struct {
	TransferCompleteInterrupt bool
	CircularBuffer            bool
	MemoryIncrement           bool
}

// DefaultConfig returns the reset configuration: single shot, memory
// increment, no interrupts.
func DefaultConfig() Config {
	return Config{MemoryIncrement: true}
}

// WithTransferCompleteInterrupt returns a copy of c with the transfer
// complete interrupt set to on.
func (c Config) WithTransferCompleteInterrupt(on bool) Config {
	c.TransferCompleteInterrupt = on
	return c
}

// WithCircularBuffer returns a copy of c with circular mode set to on.
func (c Config) WithCircularBuffer(on bool) Config {
	c.CircularBuffer = on
	return c
}

// WithMemoryIncrement returns a copy of c with memory increment set to on.
func (c Config) WithMemoryIncrement(on bool) Config {
	c.MemoryIncrement = on
	return c
}

// Stream is one channel of the DMA controller.
type Stream struct {
	name string
	used atomic.Bool
}

func (s *Stream) String() string {
	return s.name
}

func (s *Stream) take() error {
	if !s.used.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", s.name, ErrStreamInUse)
	}
	return nil
}

// Streams are the streams of a split DMA controller.
type Streams struct {
	streams []*Stream
}

// Split consumes the controller token and returns its streams.
func Split(tok *hal.DMA) (*Streams, error) {
	n, err := tok.Claim()
	if err != nil {
		return nil, err
	}
	s := &Streams{streams: make([]*Stream, n)}
	for i := range s.streams {
		s.streams[i] = &Stream{name: fmt.Sprintf("%s.Stream%d", tok, i)}
	}
	return s, nil
}

// Len returns the number of streams.
func (s *Streams) Len() int {
	return len(s.streams)
}

// Stream returns stream i.
func (s *Streams) Stream(i int) (*Stream, error) {
	if i < 0 || i >= len(s.streams) {
		return nil, fmt.Errorf("%w: %d", ErrNoStream, i)
	}
	return s.streams[i], nil
}
