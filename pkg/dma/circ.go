package dma

import (
	"context"
	"fmt"
	"sync"
)

// CircTransfer is a circular peripheral-to-memory transfer. The peripheral
// writes into a fixed ring and wraps around without pause; a single reader
// drains it in arrival order with ReadExact.
//
// When the peripheral laps data that was not read yet, the overrun flag is
// set and stays set: the identity of the lost samples cannot be recovered.
type CircTransfer[P Peripheral] struct {
	stream *Stream
	periph P
	cfg    Config

	mu      sync.Mutex
	buf     []uint16
	written uint64
	read    uint64
	overrun bool
	started bool
	stopped bool
	err     error

	notify   chan struct{}
	complete chan struct{}
}

// IntoCircPeripheralToMemory binds stream, peripheral and buffer into a
// circular transfer. The buffer is owned by the transfer from now on.
func IntoCircPeripheralToMemory[P Peripheral](s *Stream, p P, buf []uint16, cfg Config) (*CircTransfer[P], error) {
	if !cfg.CircularBuffer {
		return nil, fmt.Errorf("%s: circular transfer needs circular mode", s)
	}
	if !cfg.MemoryIncrement {
		return nil, fmt.Errorf("%s: circular transfer needs memory increment", s)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%s: empty buffer", s)
	}
	if err := s.take(); err != nil {
		return nil, err
	}
	t := &CircTransfer[P]{
		stream: s,
		periph: p,
		cfg:    cfg,
		buf:    buf,
		notify: make(chan struct{}, 1),
	}
	if cfg.TransferCompleteInterrupt {
		t.complete = make(chan struct{}, 1)
	}
	return t, nil
}

// Peripheral returns the peripheral side of the transfer.
func (t *CircTransfer[P]) Peripheral() P {
	return t.periph
}

// Capacity returns the ring length in samples.
func (t *CircTransfer[P]) Capacity() int {
	return len(t.buf)
}

// Start enables the stream and calls fn, which typically starts the
// peripheral.
func (t *CircTransfer[P]) Start(fn func(p P) error) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	t.periph.Attach(t)
	if fn == nil {
		return nil
	}
	if err := fn(t.periph); err != nil {
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return fmt.Errorf("%s: start: %w", t.stream, err)
	}
	return nil
}

// WriteSample implements Writer.
func (t *CircTransfer[P]) WriteSample(v uint16) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	n := uint64(len(t.buf))
	t.buf[t.written%n] = v
	t.written++
	if t.written-t.read > n {
		t.overrun = true
	}
	lap := t.written%n == 0
	t.mu.Unlock()

	signal(t.notify)
	if lap && t.complete != nil {
		signal(t.complete)
	}
}

// Abort implements Writer.
func (t *CircTransfer[P]) Abort(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	signal(t.notify)
}

// ReadExact blocks until len(dst) samples arrived since the last read and
// copies them into dst in arrival order.
//
// After an overrun the read restarts at the oldest sample still in the
// ring. After Stop it returns whatever is left, which may be less than
// len(dst). ctx only ends the wait; the transfer keeps running.
func (t *CircTransfer[P]) ReadExact(ctx context.Context, dst []uint16) (int, error) {
	n := uint64(len(t.buf))
	if uint64(len(dst)) > n {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(dst), n)
	}

	for {
		t.mu.Lock()
		if !t.started {
			t.mu.Unlock()
			return 0, ErrNotStarted
		}
		if t.err != nil {
			err := t.err
			t.mu.Unlock()
			return 0, err
		}
		if t.written-t.read > n {
			t.read = t.written - n
		}
		avail := t.written - t.read
		if avail >= uint64(len(dst)) || t.stopped {
			c := min(avail, uint64(len(dst)))
			for i := uint64(0); i < c; i++ {
				dst[i] = t.buf[(t.read+i)%n]
			}
			t.read += c
			t.mu.Unlock()
			return int(c), nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.notify:
		}
	}
}

// Available returns the number of unread samples, capped at the capacity.
func (t *CircTransfer[P]) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(min(t.written-t.read, uint64(len(t.buf))))
}

// Overrun reports whether the peripheral overwrote unread samples.
func (t *CircTransfer[P]) Overrun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overrun
}

// TransferComplete returns a channel signalled each time the ring wraps. It
// is nil unless the transfer complete interrupt is enabled.
func (t *CircTransfer[P]) TransferComplete() <-chan struct{} {
	return t.complete
}

// Stop stops the peripheral when it supports it and disables the stream.
// Samples already in the ring can still be read.
func (t *CircTransfer[P]) Stop() {
	if s, ok := any(t.periph).(Stopper); ok {
		s.Stop()
	}
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	signal(t.notify)
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
