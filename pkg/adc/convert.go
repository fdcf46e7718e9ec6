package adc

import (
	"errors"

	"periph.io/x/conn/v3/physic"

	"github.com/itohio/g4hal/pkg/hal"
)

// ErrZeroReference is returned when the reference channel reads zero, which
// would make the supply computation divide by zero.
var ErrZeroReference = errors.New("adc: reference channel reads zero")

// SampleToMillivolts converts a code to millivolts given the actual analog
// supply: codes 0..Divisor-1 map linearly onto 0..vdda.
func SampleToMillivolts(sample uint16, vddaMV uint32, res Resolution) uint32 {
	return uint32(uint64(sample) * uint64(vddaMV) / uint64(res.Divisor()))
}

// SampleToPotential is SampleToMillivolts returning a physic value.
func SampleToPotential(sample uint16, vddaMV uint32, res Resolution) physic.ElectricPotential {
	return physic.ElectricPotential(SampleToMillivolts(sample, vddaMV, res)) * physic.MilliVolt
}

// Vdda computes the actual analog supply in millivolts from a live
// conversion of the internal reference: VddaCalib * VrefIntCal / vref.
//
// vref must be a 12-bit code.
func Vdda(vref uint16, sig hal.Signature) (uint32, error) {
	if vref == 0 {
		return 0, ErrZeroReference
	}
	return hal.VddaCalib * uint32(sig.VrefIntCal) / uint32(vref), nil
}

// To12Bit scales a code of resolution res to 12 bits, the resolution of the
// calibration values.
func To12Bit(sample uint16, res Resolution) uint16 {
	if res >= Twelve {
		return sample
	}
	return sample << (Twelve.Bits() - res.Bits())
}

// TemperatureToDegreesCentigrade converts a temperature sensor code to °C.
//
// The code is first normalized to the calibration supply, then mapped
// through the line crossing (TSCal1, 30°C) and (TSCal2, 130°C).
func TemperatureToDegreesCentigrade(sample float32, vddaV float32, res Resolution, sig hal.Signature) float32 {
	if res < Twelve {
		sample *= float32(uint32(1) << (Twelve.Bits() - res.Bits()))
	}
	cal1 := float32(sig.TSCal1)
	cal2 := float32(sig.TSCal2)
	if cal2 == cal1 {
		return hal.TSCal1Temp
	}
	slope := float32(hal.TSCal2Temp-hal.TSCal1Temp) / (cal2 - cal1)
	normalized := sample * vddaV * (1000. / hal.VddaCalib)
	return (normalized-cal1)*slope + hal.TSCal1Temp
}

// Celsius converts °C to a physic.Temperature.
func Celsius(c float32) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(float64(c)*float64(physic.Kelvin))
}
