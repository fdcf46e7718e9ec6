package analog

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/g4hal/pkg/config"
	"github.com/itohio/g4hal/pkg/hal"
)

// ErrNotConnected is returned when sampling a front end that is not connected.
var ErrNotConnected = errors.New("not connected")

// Mock simulates the signals seen by the ADC inputs: a slowly varying
// voltage on the external pin, the die temperature sensor and the internal
// reference, all measured against an actual supply that may differ from the
// calibration supply.
type Mock struct {
	cfg *config.MockConfig
	sig hal.Signature

	mu        sync.Mutex
	connected bool
	startTime time.Time
	rnd       *rand.Rand

	now func() time.Time
}

// NewMock creates a new simulated front end.
func NewMock(cfg *config.MockConfig, sig hal.Signature) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}

	return &Mock{
		cfg: cfg,
		sig: sig,
		rnd: rand.New(rand.NewSource(1)),
		now: time.Now,
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = m.now()

	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Sample returns a 12-bit conversion result for ch.
func (m *Mock) Sample(ch hal.Channel) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}

	noise := 0.0
	if m.cfg.NoiseMV > 0 {
		noise = m.rnd.NormFloat64() * m.cfg.NoiseMV
	}

	switch ch {
	case hal.ChannelVref:
		return m.code(VrefIntMillivolts(m.sig) + noise), nil
	case hal.ChannelTemperature:
		// Codes are calibrated at VddaCalib; scale to the actual supply.
		atCalib := TemperatureCode(m.cfg.TemperatureC, m.sig)
		mv := atCalib*hal.VddaCalib/4096 + noise
		return m.code(mv), nil
	default:
		elapsed := m.now().Sub(m.startTime)
		mv := m.cfg.PinMV + noise
		if m.cfg.PinSwingMV != 0 && m.cfg.PinPeriod > 0 {
			phase := 2 * math.Pi * float64(elapsed) / float64(m.cfg.PinPeriod)
			mv += m.cfg.PinSwingMV * math.Sin(phase)
		}
		return m.code(mv), nil
	}
}

// code converts a voltage to a 12-bit code against the simulated supply.
func (m *Mock) code(mv float64) uint16 {
	c := math.Round(mv / m.cfg.VddaMV * 4096)
	if c < 0 {
		return 0
	}
	if c > 4095 {
		return 4095
	}
	return uint16(c)
}

// VrefIntMillivolts returns the internal reference voltage implied by the
// calibration values.
func VrefIntMillivolts(sig hal.Signature) float64 {
	return float64(hal.VddaCalib) * float64(sig.VrefIntCal) / 4096
}

// TemperatureCode returns the 12-bit temperature sensor code at VddaCalib for
// a die temperature, interpolating between the two calibration points.
func TemperatureCode(celsius float64, sig hal.Signature) float64 {
	slope := float64(int(sig.TSCal2)-int(sig.TSCal1)) / (hal.TSCal2Temp - hal.TSCal1Temp)
	return float64(sig.TSCal1) + (celsius-hal.TSCal1Temp)*slope
}
