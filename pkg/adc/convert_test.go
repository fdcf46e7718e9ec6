package adc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/itohio/g4hal/pkg/hal"
)

var sig = hal.Signature{VrefIntCal: 1655, TSCal1: 1034, TSCal2: 1380}

func TestSampleToMillivolts(t *testing.T) {
	tests := []struct {
		sample uint16
		vdda   uint32
		res    Resolution
		want   uint32
	}{
		{0, 3000, Twelve, 0},
		{2048, 3000, Twelve, 1500},
		{4095, 3000, Twelve, 2999},
		{1655, 3000, Twelve, 1212},
		{2048, 3300, Twelve, 1650},
		{128, 3000, Eight, 1500},
		{512, 3300, Ten, 1650},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SampleToMillivolts(tt.sample, tt.vdda, tt.res), "%d@%dmV/%d", tt.sample, tt.vdda, tt.res)
	}
}

func TestSampleToMillivolts_Monotonic(t *testing.T) {
	for _, vdda := range []uint32{1800, 3000, 3300, 3600} {
		prev := SampleToMillivolts(0, vdda, Twelve)
		for r := uint16(1); r < 4096; r++ {
			mv := SampleToMillivolts(r, vdda, Twelve)
			require.GreaterOrEqual(t, mv, prev)
			require.Equal(t, uint32(uint64(r)*uint64(vdda)/4096), mv)
			prev = mv
		}
	}
}

func TestSampleToPotential(t *testing.T) {
	assert.Equal(t, 1500*physic.MilliVolt, SampleToPotential(2048, 3000, Twelve))
}

func TestVdda(t *testing.T) {
	v, err := Vdda(sig.VrefIntCal, sig)
	require.NoError(t, err)
	assert.Equal(t, uint32(hal.VddaCalib), v)

	v, err = Vdda(1505, sig)
	require.NoError(t, err)
	assert.Equal(t, uint32(3299), v)

	_, err = Vdda(0, sig)
	assert.ErrorIs(t, err, ErrZeroReference)
}

func TestTo12Bit(t *testing.T) {
	assert.Equal(t, uint16(2048), To12Bit(2048, Twelve))
	assert.Equal(t, uint16(2048), To12Bit(512, Ten))
	assert.Equal(t, uint16(2048), To12Bit(128, Eight))
	assert.Equal(t, uint16(2048), To12Bit(32, Six))
}

func TestTemperatureToDegreesCentigrade(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		vdda   float32
		res    Resolution
		want   float32
	}{
		{"cal1", 1034, 3.0, Twelve, 30},
		{"cal2", 1380, 3.0, Twelve, 130},
		{"midpoint", 1207, 3.0, Twelve, 80},
		{"ten bit", 1034.0 / 4, 3.0, Ten, 30},
		// Same sensor voltage seen against a 3.3V supply.
		{"higher supply", 1034 * 3.0 / 3.3, 3.3, Twelve, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TemperatureToDegreesCentigrade(tt.sample, tt.vdda, tt.res, sig)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestTemperatureToDegreesCentigrade_FlatCalibration(t *testing.T) {
	flat := hal.Signature{TSCal1: 1000, TSCal2: 1000}
	assert.Equal(t, float32(30), TemperatureToDegreesCentigrade(1200, 3.0, Twelve, flat))
}

func TestCelsius(t *testing.T) {
	assert.Equal(t, physic.ZeroCelsius, Celsius(0))
	assert.Equal(t, physic.ZeroCelsius+25*physic.Kelvin, Celsius(25))
}

func TestParseSampleTime(t *testing.T) {
	st, err := ParseSampleTime("cycles_640_5")
	require.NoError(t, err)
	assert.Equal(t, Cycles640_5, st)
	assert.Equal(t, 640.5, st.Cycles())
	assert.Equal(t, "cycles_640_5", st.String())

	_, err = ParseSampleTime("forever")
	assert.Error(t, err)

	assert.Equal(t, 0.0, SampleTime(99).Cycles())
	assert.Equal(t, "SampleTime(99)", SampleTime(99).String())
}

func TestParseResolution(t *testing.T) {
	for _, bits := range []int{6, 8, 10, 12} {
		r, err := ParseResolution(bits)
		require.NoError(t, err)
		assert.Equal(t, uint(bits), r.Bits())
		assert.Equal(t, uint32(1)<<bits, r.Divisor())
	}
	_, err := ParseResolution(16)
	assert.Error(t, err)
}
