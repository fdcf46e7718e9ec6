package analog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/g4hal/pkg/hal"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr bool
	}{
		{
			name: "valid line",
			line: "2048,1050,1655",
			want: Frame{Pin: 2048, Temperature: 1050, Vref: 1655},
		},
		{
			name: "valid line - spaces",
			line: "0, 4095 ,1",
			want: Frame{Pin: 0, Temperature: 4095, Vref: 1},
		},
		{
			name:    "invalid - wrong number of fields",
			line:    "2048,1050",
			wantErr: true,
		},
		{
			name:    "invalid - too many fields",
			line:    "2048,1050,1655,1",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric pin",
			line:    "abc,1050,1655",
			wantErr: true,
		},
		{
			name:    "invalid - negative",
			line:    "2048,-1,1655",
			wantErr: true,
		},
		{
			name:    "invalid - vref out of range",
			line:    "2048,1050,5000",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Pin, got.Pin)
			assert.Equal(t, tt.want.Temperature, got.Temperature)
			assert.Equal(t, tt.want.Vref, got.Vref)
		})
	}
}

func TestNewSerial_Defaults(t *testing.T) {
	dev := NewSerial("/dev/ttyACM0", 0)
	assert.Equal(t, "/dev/ttyACM0", dev.port)
	assert.Equal(t, DefaultBaudRate, dev.baudRate)
	assert.False(t, dev.IsConnected())
}

func TestSerial_SampleNotConnected(t *testing.T) {
	dev := NewSerial("/dev/ttyACM0", 0)
	_, err := dev.Sample(hal.ChannelVref)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSerial_ReadFrames(t *testing.T) {
	dev := NewSerial("test", 0)
	dev.connected = true

	_, err := dev.Sample(hal.ChannelVref)
	assert.ErrorIs(t, err, ErrNoData)

	input := "2048,1050,1655\n\ngarbage\n100,1060,1650\r\n"
	dev.readFrames(strings.NewReader(input))

	frame, n := dev.Latest()
	assert.Equal(t, uint64(2), n)
	assert.Equal(t, uint16(100), frame.Pin)
	assert.False(t, frame.Timestamp.IsZero())

	pin, err := dev.Sample(hal.Channel(1))
	require.NoError(t, err)
	assert.Equal(t, uint16(100), pin)

	temp, err := dev.Sample(hal.ChannelTemperature)
	require.NoError(t, err)
	assert.Equal(t, uint16(1060), temp)

	vref, err := dev.Sample(hal.ChannelVref)
	require.NoError(t, err)
	assert.Equal(t, uint16(1650), vref)
}

func TestSerial_CloseNotConnected(t *testing.T) {
	dev := NewSerial("test", 0)
	assert.NoError(t, dev.Close())
}

func TestPort_String(t *testing.T) {
	assert.Equal(t, "/dev/ttyACM0", Port{Name: "/dev/ttyACM0", Description: "/dev/ttyACM0"}.String())
	assert.Equal(t, "/dev/ttyACM0", Port{Name: "/dev/ttyACM0"}.String())
	assert.Equal(t, "COM3 (STLink VCP)", Port{Name: "COM3", Description: "STLink VCP"}.String())
}

func TestPorts(t *testing.T) {
	ports, err := Ports()
	if err != nil {
		t.Skipf("serial ports cannot be enumerated here: %v", err)
	}
	for _, p := range ports {
		assert.NotEmpty(t, p.Name)
		assert.Equal(t, p.Name, p.String())
	}
}
