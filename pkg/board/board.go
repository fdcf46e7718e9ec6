// Package board wires the modelled peripherals to something real: either a
// fully simulated board or the buses of the host via periph.io.
package board

import (
	"context"
	"fmt"
	"io"

	"github.com/itohio/g4hal/pkg/config"
	"github.com/itohio/g4hal/pkg/hal"
)

// Board is a hal.Board holding resources that must be released.
type Board interface {
	hal.Board
	io.Closer
}

// Open returns the board selected by cfg.Board.
func Open(ctx context.Context, cfg *config.Config) (Board, error) {
	switch cfg.Board {
	case "", "mock":
		return NewMock(cfg)
	case "host":
		return NewHost(ctx, cfg)
	}
	return nil, fmt.Errorf("board: unknown board %q", cfg.Board)
}

func signature(c config.CalibrationConfig) hal.Signature {
	return hal.Signature{
		VrefIntCal: c.VrefIntCal,
		TSCal1:     c.TSCal1,
		TSCal2:     c.TSCal2,
	}
}

func pinName(port byte, num uint8) string {
	return fmt.Sprintf("P%c%d", port, num)
}
