// Package diag is the diagnostic output of the example programs. Lines are
// written through the standard log package to stdout or to a serial port,
// the way a probe would print them from the device.
package diag

import (
	"fmt"
	"io"
	"log"
	"os"

	"go.bug.st/serial"

	"github.com/itohio/g4hal/pkg/config"
)

// Sink writes INFO and ERROR lines.
type Sink struct {
	info   *log.Logger
	err    *log.Logger
	closer io.Closer
}

// New returns a sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{
		info: log.New(w, "INFO  ", log.Ltime|log.Lmicroseconds),
		err:  log.New(w, "ERROR ", log.Ltime|log.Lmicroseconds),
	}
}

// Open returns the sink selected by cfg.
func Open(cfg config.LogConfig) (*Sink, error) {
	switch cfg.Output {
	case "", "stdout":
		return New(os.Stdout), nil
	case "serial":
		port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
		if err != nil {
			return nil, fmt.Errorf("failed to open log port %s: %w", cfg.Port, err)
		}
		s := New(port)
		s.closer = port
		return s, nil
	}
	return nil, fmt.Errorf("unknown log output %q", cfg.Output)
}

// Infof writes an INFO line.
func (s *Sink) Infof(format string, args ...any) {
	s.info.Printf(format, args...)
}

// Errorf writes an ERROR line.
func (s *Sink) Errorf(format string, args ...any) {
	s.err.Printf(format, args...)
}

// Close releases the serial port, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
