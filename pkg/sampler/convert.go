package sampler

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"periph.io/x/conn/v3/physic"

	"github.com/itohio/g4hal/pkg/adc"
	"github.com/itohio/g4hal/pkg/hal"
)

// ErrNoReference is returned when the sequence has no reference channel, so
// the supply cannot be computed.
var ErrNoReference = errors.New("sampler: sequence has no reference channel")

// Reading is one converted batch.
type Reading struct {
	Samples int // raw samples drained

	VddaMV uint32
	PinMV  uint32
	VrefMV uint32

	Vdda        physic.ElectricPotential
	Pin         physic.ElectricPotential
	Vref        physic.ElectricPotential
	Temperature physic.Temperature
	Celsius     float32
}

// Average returns the integer mean of each sequence slot over all cycles in
// samples. len(samples) must be a multiple of seqLen.
func Average(samples []uint16, seqLen int) []uint16 {
	out := make([]uint16, seqLen)
	cycles := len(samples) / seqLen
	if cycles == 0 {
		return out
	}
	for j := range out {
		var sum uint32
		for c := 0; c < cycles; c++ {
			sum += uint32(samples[c*seqLen+j])
		}
		out[j] = uint16(sum / uint32(cycles))
	}
	return out
}

// averageFloat is Average for one slot without truncation.
func averageFloat(samples []uint16, seqLen, slot int) float32 {
	cycles := len(samples) / seqLen
	if cycles == 0 {
		return 0
	}
	var sum float32
	for c := 0; c < cycles; c++ {
		sum += float32(samples[c*seqLen+slot])
	}
	return sum / float32(cycles)
}

// Convert averages a batch laid out in seq order and converts it to
// engineering units. The first external channel of seq is the pin.
func Convert(samples []uint16, seq []hal.Channel, res adc.Resolution, sig hal.Signature) (Reading, error) {
	if len(seq) == 0 || len(samples)%len(seq) != 0 {
		return Reading{}, fmt.Errorf("sampler: %d samples do not hold whole cycles of %d", len(samples), len(seq))
	}
	pin, temp, vref := -1, -1, -1
	for i, ch := range seq {
		switch {
		case ch == hal.ChannelVref:
			vref = i
		case ch == hal.ChannelTemperature:
			temp = i
		case pin < 0:
			pin = i
		}
	}
	if vref < 0 {
		return Reading{}, ErrNoReference
	}

	avg := Average(samples, len(seq))
	vdda, err := adc.Vdda(adc.To12Bit(avg[vref], res), sig)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		Samples: len(samples),
		VddaMV:  vdda,
		VrefMV:  adc.SampleToMillivolts(avg[vref], vdda, res),
	}
	if pin >= 0 {
		r.PinMV = adc.SampleToMillivolts(avg[pin], vdda, res)
	}
	if temp >= 0 {
		c := adc.TemperatureToDegreesCentigrade(averageFloat(samples, len(seq), temp), float32(vdda)/1000, res, sig)
		r.Celsius = math32.Round(c*100) / 100
		r.Temperature = adc.Celsius(r.Celsius)
	}
	r.Vdda = physic.ElectricPotential(r.VddaMV) * physic.MilliVolt
	r.Pin = physic.ElectricPotential(r.PinMV) * physic.MilliVolt
	r.Vref = physic.ElectricPotential(r.VrefMV) * physic.MilliVolt
	return r, nil
}
