package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration shared by all example programs.
type Config struct {
	Board       string            `yaml:"board"` // "mock" or "host"
	Log         LogConfig         `yaml:"log"`
	Serial      SerialConfig      `yaml:"serial"`
	Clocks      ClockConfig       `yaml:"clocks"`
	ADC         ADCConfig         `yaml:"adc"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Display     DisplayConfig     `yaml:"display"`
	SPI         SPIConfig         `yaml:"spi"`
	Mock        MockConfig        `yaml:"mock"`
	// Pins maps device pin names to host GPIO line names, for the host board.
	Pins map[string]string `yaml:"pins"`
}

// LogConfig selects where diagnostic lines are written.
type LogConfig struct {
	Output   string `yaml:"output"` // "stdout" or "serial"
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SerialConfig contains the serial link used by the host board analog front end.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ClockConfig contains the system clock configuration.
type ClockConfig struct {
	Source string `yaml:"source"` // "hsi", "hse" or "pll"
	HSEHz  uint32 `yaml:"hse_hz"`
	PLLM   uint32 `yaml:"pll_m"`
	PLLN   uint32 `yaml:"pll_n"`
	PLLR   uint32 `yaml:"pll_r"`
}

// ADCConfig contains the continuous sampler parameters.
type ADCConfig struct {
	Pin        string `yaml:"pin"`         // GPIOA pin number used as the external channel, e.g. "PA0"
	Prescaler  uint32 `yaml:"prescaler"`   // ADC clock divider applied to the system clock
	Resolution int    `yaml:"resolution"`  // bits
	SampleTime string `yaml:"sample_time"` // e.g. "cycles_640_5"
	BufferLen  int    `yaml:"buffer_len"`  // circular buffer capacity in samples
	BatchLen   int    `yaml:"batch_len"`   // samples drained per loop iteration
}

// CalibrationConfig contains the factory signature values of the simulated device.
type CalibrationConfig struct {
	VrefIntCal uint16 `yaml:"vrefint_cal"`
	TSCal1     uint16 `yaml:"ts_cal1"`
	TSCal2     uint16 `yaml:"ts_cal2"`
}

// DisplayConfig contains the SH1106 display parameters.
type DisplayConfig struct {
	Bus       string        `yaml:"bus"`
	Addr      uint16        `yaml:"addr"`
	FreqHz    int64         `yaml:"freq_hz"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	Text      string        `yaml:"text"`
	TextX     int           `yaml:"text_x"`
	TextY     int           `yaml:"text_y"`
	Preview   bool          `yaml:"preview"`    // render the simulated display on the terminal
	HoldFrame time.Duration `yaml:"hold_frame"` // 0 keeps the frame until interrupted
}

// SPIConfig contains the SPI loopback parameters.
type SPIConfig struct {
	Port    string        `yaml:"port"`
	CS      string        `yaml:"cs"` // chip select pin, e.g. "PA8"
	FreqHz  int64         `yaml:"freq_hz"`
	Mode    int           `yaml:"mode"`
	Variant string        `yaml:"variant"` // "duplex", "words" or "packets"
	Message string        `yaml:"message"`
	Delay   time.Duration `yaml:"delay"`
	Verify  bool          `yaml:"verify"`
}

// MockConfig contains the simulated analog front end parameters.
type MockConfig struct {
	VddaMV       float64       `yaml:"vdda_mv"`       // Actual supply voltage (mV)
	PinMV        float64       `yaml:"pin_mv"`        // DC level on the external pin (mV)
	PinSwingMV   float64       `yaml:"pin_swing_mv"`  // Sine amplitude on the external pin (mV)
	PinPeriod    time.Duration `yaml:"pin_period"`    // Sine period
	NoiseMV      float64       `yaml:"noise_mv"`      // Noise level (mV)
	TemperatureC float64       `yaml:"temperature_c"` // Die temperature (°C)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Board: "mock",
		Log: LogConfig{
			Output:   "stdout",
			BaudRate: 115200,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Clocks: ClockConfig{
			Source: "hsi",
			HSEHz:  24_000_000,
			PLLM:   6,
			PLLN:   85,
			PLLR:   2,
		},
		ADC: ADCConfig{
			Pin:        "PA0",
			Prescaler:  256, // ~10ms per sample at 640.5 cycles keeps a terminal consumer ahead of the ring
			Resolution: 12,
			SampleTime: "cycles_640_5",
			BufferLen:  15,
			BatchLen:   6,
		},
		Calibration: CalibrationConfig{
			VrefIntCal: 1655,
			TSCal1:     1034,
			TSCal2:     1380,
		},
		Display: DisplayConfig{
			Addr:      0x3c,
			FreqHz:    100_000,
			Width:     128,
			Height:    64,
			Text:      "Hello Go!",
			TextX:     16,
			TextY:     16,
			Preview:   true,
			HoldFrame: 0,
		},
		SPI: SPIConfig{
			CS:      "PA8",
			FreqHz:  400_000,
			Mode:    0,
			Variant: "duplex",
			Message: "Hello world!",
			Delay:   10 * time.Millisecond,
			Verify:  false,
		},
		Mock: MockConfig{
			VddaMV:       3300,
			PinMV:        1500,
			PinSwingMV:   200,
			PinPeriod:    5 * time.Second,
			NoiseMV:      2,
			TemperatureC: 28,
		},
		Pins: map[string]string{
			"PA8": "GPIO8",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Board == "" {
		c.Board = def.Board
	}
	if c.Log.Output == "" {
		c.Log.Output = def.Log.Output
	}
	if c.Log.BaudRate == 0 {
		c.Log.BaudRate = def.Log.BaudRate
	}
	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Clocks.Source == "" {
		c.Clocks.Source = def.Clocks.Source
	}
	if c.Clocks.HSEHz == 0 {
		c.Clocks.HSEHz = def.Clocks.HSEHz
	}
	if c.Clocks.PLLM == 0 {
		c.Clocks.PLLM = def.Clocks.PLLM
	}
	if c.Clocks.PLLN == 0 {
		c.Clocks.PLLN = def.Clocks.PLLN
	}
	if c.Clocks.PLLR == 0 {
		c.Clocks.PLLR = def.Clocks.PLLR
	}

	if c.ADC.Pin == "" {
		c.ADC.Pin = def.ADC.Pin
	}
	if c.ADC.Prescaler == 0 {
		c.ADC.Prescaler = def.ADC.Prescaler
	}
	if c.ADC.Resolution == 0 {
		c.ADC.Resolution = def.ADC.Resolution
	}
	if c.ADC.SampleTime == "" {
		c.ADC.SampleTime = def.ADC.SampleTime
	}
	if c.ADC.BufferLen == 0 {
		c.ADC.BufferLen = def.ADC.BufferLen
	}
	if c.ADC.BatchLen == 0 {
		c.ADC.BatchLen = def.ADC.BatchLen
	}

	if c.Calibration.VrefIntCal == 0 {
		c.Calibration.VrefIntCal = def.Calibration.VrefIntCal
	}
	if c.Calibration.TSCal1 == 0 {
		c.Calibration.TSCal1 = def.Calibration.TSCal1
	}
	if c.Calibration.TSCal2 == 0 {
		c.Calibration.TSCal2 = def.Calibration.TSCal2
	}

	if c.Display.Addr == 0 {
		c.Display.Addr = def.Display.Addr
	}
	if c.Display.FreqHz == 0 {
		c.Display.FreqHz = def.Display.FreqHz
	}
	if c.Display.Width == 0 {
		c.Display.Width = def.Display.Width
	}
	if c.Display.Height == 0 {
		c.Display.Height = def.Display.Height
	}
	if c.Display.Text == "" {
		c.Display.Text = def.Display.Text
	}

	if c.SPI.CS == "" {
		c.SPI.CS = def.SPI.CS
	}
	if c.SPI.FreqHz == 0 {
		c.SPI.FreqHz = def.SPI.FreqHz
	}
	if c.SPI.Variant == "" {
		c.SPI.Variant = def.SPI.Variant
	}
	if c.SPI.Message == "" {
		c.SPI.Message = def.SPI.Message
	}
	if c.SPI.Delay == 0 {
		c.SPI.Delay = def.SPI.Delay
	}

	if c.Mock.VddaMV == 0 {
		c.Mock.VddaMV = def.Mock.VddaMV
	}
	if c.Mock.PinPeriod == 0 {
		c.Mock.PinPeriod = def.Mock.PinPeriod
	}
	if c.Pins == nil {
		c.Pins = def.Pins
	}
}
