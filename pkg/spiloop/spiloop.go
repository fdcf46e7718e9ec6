// Package spiloop exercises an SPI controller without external devices.
//
// MOSI is expected to be wired to MISO. A message is clocked out full-duplex
// while chip select is held low and whatever came back on MISO is logged,
// then echoed back in a write-only transfer.
package spiloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ErrMismatch is returned when the received message differs from the sent
// one and verification is enabled.
var ErrMismatch = errors.New("spiloop: received data differs from sent data")

// Variant selects how the message is clocked out.
type Variant uint8

const (
	// Duplex sends the message in a single 8-bit full-duplex transfer.
	Duplex Variant = iota
	// Words sends the message as 16-bit words, padded to an even length.
	Words
	// Packets splits the message in two packets sent with chip select held.
	Packets
)

func (v Variant) String() string {
	switch v {
	case Duplex:
		return "duplex"
	case Words:
		return "words"
	case Packets:
		return "packets"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// ParseVariant parses a variant name as returned by Variant.String.
func ParseVariant(s string) (Variant, error) {
	for _, v := range []Variant{Duplex, Words, Packets} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("spiloop: unknown variant %q", s)
}

// Logger receives the diagnostic lines of a run.
type Logger interface {
	Infof(format string, args ...any)
}

// Delayer blocks between the two transfers. *hal.Delay implements it.
type Delayer interface {
	Delay(ctx context.Context, d time.Duration) error
}

// Opts defines the options of a loopback run.
type Opts struct {
	Freq    physic.Frequency
	Mode    spi.Mode
	Variant Variant
	Message []byte
	// Wait is the pause between the two transfers.
	Wait time.Duration
	// Verify fails the run with ErrMismatch when MISO did not echo MOSI.
	Verify bool

	// Timer paces Wait; nil uses a plain timer.
	Timer Delayer
	Log   Logger
}

// DefaultOpts is the original demonstration: "Hello world!" at 400kHz in
// mode 0, 10ms apart.
var DefaultOpts = Opts{
	Freq:    400 * physic.KiloHertz,
	Mode:    spi.Mode0,
	Variant: Duplex,
	Message: []byte("Hello world!"),
	Wait:    10 * time.Millisecond,
}

// Result is what a run sent and received.
type Result struct {
	Sent     []byte
	Received []byte
}

// Run connects to port and performs the loopback demonstration. cs is the
// chip select line, active low. opts may be nil for DefaultOpts.
func Run(ctx context.Context, port spi.Port, cs gpio.PinOut, opts *Opts) (Result, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if len(o.Message) == 0 {
		return Result{}, errors.New("spiloop: empty message")
	}
	bits := 8
	sent := bytes.Clone(o.Message)
	if o.Variant == Words {
		bits = 16
		if len(sent)%2 != 0 {
			sent = append(sent, 0)
		}
	}

	c, err := port.Connect(o.Freq, o.Mode, bits)
	if err != nil {
		return Result{}, fmt.Errorf("spiloop: %w", err)
	}
	if err := cs.Out(gpio.High); err != nil {
		return Result{}, fmt.Errorf("spiloop: cs: %w", err)
	}

	res := Result{Sent: sent, Received: make([]byte, len(sent))}
	err = selected(cs, func() error {
		switch o.Variant {
		case Duplex, Words:
			return c.Tx(sent, res.Received)
		case Packets:
			h := len(sent) / 2
			return c.TxPackets([]spi.Packet{
				{W: sent[:h], R: res.Received[:h], KeepCS: true},
				{W: sent[h:], R: res.Received[h:]},
			})
		}
		return fmt.Errorf("unknown variant %s", o.Variant)
	})
	if err != nil {
		return res, err
	}
	if o.Log != nil {
		o.Log.Infof("Received %q", res.Received)
	}

	if err := wait(ctx, o.Timer, o.Wait); err != nil {
		return res, err
	}

	if err := selected(cs, func() error { return c.Tx(res.Received, nil) }); err != nil {
		return res, err
	}

	if o.Verify && !bytes.Equal(res.Sent, res.Received) {
		return res, fmt.Errorf("%w: sent %q, received %q", ErrMismatch, res.Sent, res.Received)
	}
	return res, nil
}

// selected runs fn with chip select low.
func selected(cs gpio.PinOut, fn func() error) error {
	if err := cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("spiloop: cs: %w", err)
	}
	if err := fn(); err != nil {
		_ = cs.Out(gpio.High)
		return fmt.Errorf("spiloop: %w", err)
	}
	if err := cs.Out(gpio.High); err != nil {
		return fmt.Errorf("spiloop: cs: %w", err)
	}
	return nil
}

func wait(ctx context.Context, d Delayer, dur time.Duration) error {
	if d != nil {
		return d.Delay(ctx, dur)
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
