package analog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/g4hal/pkg/config"
	"github.com/itohio/g4hal/pkg/hal"
)

var testSig = hal.Signature{VrefIntCal: 1655, TSCal1: 1034, TSCal2: 1380}

func quietMock(vdda float64) *Mock {
	return NewMock(&config.MockConfig{
		VddaMV:       vdda,
		PinMV:        1500,
		TemperatureC: 30,
	}, testSig)
}

func TestMock_ConnectClose(t *testing.T) {
	m := NewMock(nil, testSig)
	assert.False(t, m.IsConnected())

	_, err := m.Sample(hal.ChannelVref)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, m.Connect())
	assert.True(t, m.IsConnected())
	assert.Error(t, m.Connect())

	require.NoError(t, m.Close())
	assert.False(t, m.IsConnected())
}

func TestMock_VrefMatchesCalibrationAtCalibSupply(t *testing.T) {
	m := quietMock(hal.VddaCalib)
	require.NoError(t, m.Connect())

	code, err := m.Sample(hal.ChannelVref)
	require.NoError(t, err)
	assert.Equal(t, testSig.VrefIntCal, code)
}

func TestMock_VrefDropsWithHigherSupply(t *testing.T) {
	m := quietMock(3300)
	require.NoError(t, m.Connect())

	code, err := m.Sample(hal.ChannelVref)
	require.NoError(t, err)
	// 1655 * 3000 / 3300
	assert.InDelta(t, 1505, int(code), 1)
}

func TestMock_TemperatureAtCalibrationPoint(t *testing.T) {
	m := quietMock(hal.VddaCalib)
	require.NoError(t, m.Connect())

	code, err := m.Sample(hal.ChannelTemperature)
	require.NoError(t, err)
	assert.Equal(t, testSig.TSCal1, code)
}

func TestMock_PinDC(t *testing.T) {
	m := quietMock(hal.VddaCalib)
	require.NoError(t, m.Connect())

	code, err := m.Sample(hal.Channel(1))
	require.NoError(t, err)
	assert.Equal(t, uint16(2048), code)
}

func TestMock_PinSine(t *testing.T) {
	cfg := &config.MockConfig{
		VddaMV:     hal.VddaCalib,
		PinMV:      1500,
		PinSwingMV: 300,
		PinPeriod:  4 * time.Second,
	}
	m := NewMock(cfg, testSig)
	start := time.Unix(1000, 0)
	now := start
	m.now = func() time.Time { return now }
	require.NoError(t, m.Connect())

	now = start.Add(time.Second) // quarter period: peak
	code, err := m.Sample(hal.Channel(1))
	require.NoError(t, err)
	assert.Equal(t, uint16(2458), code) // 1800mV

	now = start.Add(3 * time.Second) // trough
	code, err = m.Sample(hal.Channel(1))
	require.NoError(t, err)
	assert.Equal(t, uint16(1638), code) // 1200mV
}

func TestMock_Clamps(t *testing.T) {
	m := NewMock(&config.MockConfig{VddaMV: 3000, PinMV: 5000}, testSig)
	require.NoError(t, m.Connect())

	code, err := m.Sample(hal.Channel(1))
	require.NoError(t, err)
	assert.Equal(t, uint16(4095), code)
}

func TestTemperatureCode(t *testing.T) {
	assert.InDelta(t, 1034, TemperatureCode(30, testSig), 1e-9)
	assert.InDelta(t, 1380, TemperatureCode(130, testSig), 1e-9)
	assert.InDelta(t, 1207, TemperatureCode(80, testSig), 1e-9)
}
