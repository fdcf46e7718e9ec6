package hal

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/itohio/g4hal/pkg/config"
)

// HSIFrequency is the frequency of the internal RC oscillator.
const HSIFrequency = 16 * physic.MegaHertz

// MaxSysClk is the highest supported system clock.
const MaxSysClk = 170 * physic.MegaHertz

// ClockSource selects the system clock source.
type ClockSource uint8

// Possible system clock sources.
const (
	SourceHSI ClockSource = iota
	SourceHSE
	SourcePLL
)

func (s ClockSource) String() string {
	switch s {
	case SourceHSI:
		return "HSI"
	case SourceHSE:
		return "HSE"
	case SourcePLL:
		return "PLL"
	}
	return fmt.Sprintf("ClockSource(%d)", uint8(s))
}

// PLLConfig is the main PLL configuration. The PLL input is HSE when an HSE
// frequency is set, HSI otherwise.
type PLLConfig struct {
	M uint32 // input divider, 1..16
	N uint32 // multiplier, 8..127
	R uint32 // system clock divider, 2, 4, 6 or 8
}

// Config is the clock tree configuration.
type Config struct {
	Source ClockSource
	HSE    physic.Frequency
	PLL    PLLConfig
}

// HSI returns the reset configuration: the system runs on the 16MHz
// internal oscillator.
func HSI() Config {
	return Config{Source: SourceHSI}
}

// HSE returns a configuration running on an external crystal.
func HSE(f physic.Frequency) Config {
	return Config{Source: SourceHSE, HSE: f}
}

// PLL returns a configuration running on the main PLL.
func PLL(hse physic.Frequency, m, n, r uint32) Config {
	return Config{Source: SourcePLL, HSE: hse, PLL: PLLConfig{M: m, N: n, R: r}}
}

// Clocks holds the frozen clock frequencies.
type Clocks struct {
	SysClk physic.Frequency
	HClk   physic.Frequency
	PClk1  physic.Frequency
	PClk2  physic.Frequency
}

// RCC is the reset and clock control block.
type RCC struct {
	claim
}

// Rcc is the configured clock tree. Drivers take it to learn their input
// clocks.
type Rcc struct {
	Clocks Clocks
	Config Config
}

// Freeze validates the configuration and applies it.
func (r *RCC) Freeze(cfg Config) (*Rcc, error) {
	sys, err := sysClk(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.take(); err != nil {
		return nil, fmt.Errorf("RCC: %w", err)
	}
	return &Rcc{
		Config: cfg,
		Clocks: Clocks{SysClk: sys, HClk: sys, PClk1: sys, PClk2: sys},
	}, nil
}

func sysClk(cfg Config) (physic.Frequency, error) {
	switch cfg.Source {
	case SourceHSI:
		return HSIFrequency, nil
	case SourceHSE:
		if cfg.HSE < 4*physic.MegaHertz || cfg.HSE > 48*physic.MegaHertz {
			return 0, fmt.Errorf("RCC: HSE %s out of range 4MHz..48MHz", cfg.HSE)
		}
		return cfg.HSE, nil
	case SourcePLL:
		in := HSIFrequency
		if cfg.HSE != 0 {
			in = cfg.HSE
		}
		p := cfg.PLL
		if p.M < 1 || p.M > 16 {
			return 0, fmt.Errorf("RCC: PLL M=%d out of range 1..16", p.M)
		}
		if p.N < 8 || p.N > 127 {
			return 0, fmt.Errorf("RCC: PLL N=%d out of range 8..127", p.N)
		}
		if p.R != 2 && p.R != 4 && p.R != 6 && p.R != 8 {
			return 0, fmt.Errorf("RCC: PLL R=%d must be 2, 4, 6 or 8", p.R)
		}
		vin := in / physic.Frequency(p.M)
		if vin < 2660*physic.KiloHertz || vin > 16*physic.MegaHertz {
			return 0, fmt.Errorf("RCC: PLL input %s out of range 2.66MHz..16MHz", vin)
		}
		vco := vin * physic.Frequency(p.N)
		if vco < 96*physic.MegaHertz || vco > 344*physic.MegaHertz {
			return 0, fmt.Errorf("RCC: PLL VCO %s out of range 96MHz..344MHz", vco)
		}
		sys := vco / physic.Frequency(p.R)
		if sys > MaxSysClk {
			return 0, fmt.Errorf("RCC: system clock %s above %s", sys, MaxSysClk)
		}
		return sys, nil
	}
	return 0, fmt.Errorf("RCC: unknown clock source %s", cfg.Source)
}

// ParseSource maps a configuration string to a ClockSource.
func ParseSource(s string) (ClockSource, error) {
	switch s {
	case "hsi", "HSI", "":
		return SourceHSI, nil
	case "hse", "HSE":
		return SourceHSE, nil
	case "pll", "PLL":
		return SourcePLL, nil
	}
	return 0, fmt.Errorf("unknown clock source %q", s)
}

// FromConfig builds a clock configuration from the configuration file
// section.
func FromConfig(c config.ClockConfig) (Config, error) {
	src, err := ParseSource(c.Source)
	if err != nil {
		return Config{}, err
	}
	hse := physic.Frequency(c.HSEHz) * physic.Hertz
	switch src {
	case SourceHSE:
		return HSE(hse), nil
	case SourcePLL:
		return PLL(hse, c.PLLM, c.PLLN, c.PLLR), nil
	}
	return HSI(), nil
}
