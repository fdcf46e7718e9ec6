package adc

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// SampleTime is the number of ADC clock cycles an input is sampled for.
type SampleTime uint8

// Possible sample times. Internal channels need the longest ones.
const (
	Cycles2_5 SampleTime = iota
	Cycles6_5
	Cycles12_5
	Cycles24_5
	Cycles47_5
	Cycles92_5
	Cycles247_5
	Cycles640_5
)

var sampleTimes = [...]struct {
	name   string
	cycles float64
}{
	{"cycles_2_5", 2.5},
	{"cycles_6_5", 6.5},
	{"cycles_12_5", 12.5},
	{"cycles_24_5", 24.5},
	{"cycles_47_5", 47.5},
	{"cycles_92_5", 92.5},
	{"cycles_247_5", 247.5},
	{"cycles_640_5", 640.5},
}

// Cycles returns the sampling duration in ADC clock cycles.
func (s SampleTime) Cycles() float64 {
	if int(s) >= len(sampleTimes) {
		return 0
	}
	return sampleTimes[s].cycles
}

func (s SampleTime) String() string {
	if int(s) >= len(sampleTimes) {
		return fmt.Sprintf("SampleTime(%d)", uint8(s))
	}
	return sampleTimes[s].name
}

// ParseSampleTime maps a configuration string such as "cycles_640_5" to a
// SampleTime.
func ParseSampleTime(s string) (SampleTime, error) {
	for i, st := range sampleTimes {
		if st.name == s {
			return SampleTime(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sample time %q", s)
}

// Resolution is the conversion resolution.
type Resolution uint8

// Supported resolutions.
const (
	Twelve Resolution = 12
	Ten    Resolution = 10
	Eight  Resolution = 8
	Six    Resolution = 6
)

// ParseResolution validates a resolution in bits.
func ParseResolution(bits int) (Resolution, error) {
	switch r := Resolution(bits); r {
	case Twelve, Ten, Eight, Six:
		return r, nil
	}
	return 0, fmt.Errorf("unsupported resolution %d bits", bits)
}

// Bits returns the number of bits per conversion.
func (r Resolution) Bits() uint {
	return uint(r)
}

// Divisor returns the number of codes, 1<<bits. A code c maps to
// c*vref/Divisor.
func (r Resolution) Divisor() uint32 {
	return 1 << r.Bits()
}

// conversionCycles returns the successive approximation duration in ADC
// clock cycles.
func (r Resolution) conversionCycles() float64 {
	return float64(r) + 0.5
}

// Sequence is a slot of the regular conversion sequence.
type Sequence uint8

// Sequence slots.
const (
	Seq1 Sequence = iota
	Seq2
	Seq3
	Seq4
	Seq5
	Seq6
	Seq7
	Seq8
	Seq9
	Seq10
	Seq11
	Seq12
	Seq13
	Seq14
	Seq15
	Seq16
)

// MaxSequence is the number of sequence slots.
const MaxSequence = 16

// Continuous selects what happens after the last slot of the sequence.
type Continuous uint8

// Conversion modes.
const (
	// Single converts the sequence once per start.
	Single Continuous = iota
	// ContinuousMode restarts the sequence immediately.
	ContinuousMode
)

// DMAMode selects how conversion results are handed to the DMA controller.
type DMAMode uint8

// DMA modes.
const (
	DMADisabled DMAMode = iota
	// DMASingle issues DMA requests until the transfer count is reached,
	// then leaves the remaining conversions in the data register.
	DMASingle
	// DMAContinuous keeps issuing DMA requests, for circular transfers.
	DMAContinuous
)

// ClockSource selects the ADC kernel clock.
type ClockSource uint8

// ADC clock sources.
const (
	SystemClock ClockSource = iota
	PLLP
)

// Config is the claim-time ADC configuration.
type Config struct {
	Clock      ClockSource
	Prescaler  uint32 // 1, 2, 4, 6, 8, 10, 12, 16, 32, 64, 128 or 256
	Resolution Resolution
}

// DefaultConfig returns the reset configuration: system clock, no
// prescaler, 12 bits.
func DefaultConfig() Config {
	return Config{Clock: SystemClock, Prescaler: 1, Resolution: Twelve}
}

func validPrescaler(p uint32) bool {
	switch p {
	case 1, 2, 4, 6, 8, 10, 12, 16, 32, 64, 128, 256:
		return true
	}
	return false
}

// conversionTime returns how long one conversion of a slot takes.
func conversionTime(clock physic.Frequency, st SampleTime, res Resolution) time.Duration {
	cycles := st.Cycles() + res.conversionCycles()
	return time.Duration(cycles * float64(time.Second) / float64(clock/physic.Hertz))
}
