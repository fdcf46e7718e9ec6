package sampler

import (
	"context"

	"periph.io/x/conn/v3/physic"

	"github.com/itohio/g4hal/pkg/adc"
)

// Readings drains batches in a goroutine and sends them on the returned
// channel. The channel is closed once ctx is done or a drain fails; a
// failure is then available on the error channel, which is closed after it.
func (s *Sampler) Readings(ctx context.Context, bufSize int) (<-chan Reading, <-chan error) {
	if bufSize <= 0 {
		bufSize = 16
	}
	out := make(chan Reading, bufSize)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(out)
		for {
			r, err := s.Drain(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errc <- err
				}
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}

// Smooth returns a stage emitting, for every reading received, the mean of
// the last window readings.
func Smooth(window, bufSize int) func(in <-chan Reading) <-chan Reading {
	if window <= 0 {
		window = 1
	}
	if bufSize <= 0 {
		bufSize = 16
	}

	return func(in <-chan Reading) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			var buffer []Reading
			for r := range in {
				buffer = append(buffer, r)
				if len(buffer) > window {
					buffer = buffer[1:]
				}
				out <- meanReading(buffer)
			}
		}()

		return out
	}
}

func meanReading(rs []Reading) Reading {
	if len(rs) == 0 {
		return Reading{}
	}

	var samples int
	var vdda, pin, vref uint64
	var celsius float32
	for _, r := range rs {
		samples += r.Samples
		vdda += uint64(r.VddaMV)
		pin += uint64(r.PinMV)
		vref += uint64(r.VrefMV)
		celsius += r.Celsius
	}

	n := uint64(len(rs))
	m := Reading{
		Samples: samples,
		VddaMV:  uint32(vdda / n),
		PinMV:   uint32(pin / n),
		VrefMV:  uint32(vref / n),
		Celsius: celsius / float32(len(rs)),
	}
	m.Vdda = physic.ElectricPotential(m.VddaMV) * physic.MilliVolt
	m.Pin = physic.ElectricPotential(m.PinMV) * physic.MilliVolt
	m.Vref = physic.ElectricPotential(m.VrefMV) * physic.MilliVolt
	m.Temperature = adc.Celsius(m.Celsius)
	return m
}
