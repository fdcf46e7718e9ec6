package analog

import "github.com/itohio/g4hal/pkg/hal"

// Frontend defines the interface for analog front ends (real or mocked).
type Frontend interface {
	hal.Frontend
	Connect() error
	Close() error
	IsConnected() bool
}

// Ensure Serial implements Frontend.
var _ Frontend = (*Serial)(nil)

// Ensure Mock implements Frontend.
var _ Frontend = (*Mock)(nil)
