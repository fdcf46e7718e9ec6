package analog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/g4hal/pkg/hal"
)

const (
	// DefaultBaudRate is the baud rate used by the sampling firmware.
	DefaultBaudRate = 115200
)

// ErrNoData is returned by Serial.Sample before the first frame arrived.
var ErrNoData = errors.New("no frame received yet")

// Frame is one set of raw conversions reported by the remote MCU.
type Frame struct {
	Timestamp   time.Time
	Pin         uint16 // 12-bit code of the external channel
	Temperature uint16 // 12-bit code of the temperature sensor
	Vref        uint16 // 12-bit code of the internal reference
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial is an analog front end whose inputs are converted by a remote MCU
// streaming raw codes over a serial link.
type Serial struct {
	port     string
	baudRate int

	conn      serial.Port
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	last      Frame
	frames    uint64
}

func (p Port) String() string {
	if p.Description != "" && p.Description != p.Name {
		return fmt.Sprintf("%s (%s)", p.Name, p.Description)
	}
	return p.Name
}

// NewSerial creates a new Serial instance with the specified port and baud rate.
func NewSerial(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading frames.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{
		BaudRate: d.baudRate,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readFrames(port)

	return nil
}

// Close closes the connection and stops reading frames.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Sample returns the latest code reported for ch. Every external channel
// maps to the single pin the firmware samples.
func (d *Serial) Sample(ch hal.Channel) (uint16, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return 0, ErrNotConnected
	}
	if d.frames == 0 {
		return 0, ErrNoData
	}

	switch ch {
	case hal.ChannelTemperature:
		return d.last.Temperature, nil
	case hal.ChannelVref:
		return d.last.Vref, nil
	}
	return d.last.Pin, nil
}

// Latest returns the most recent frame and the number of frames received.
func (d *Serial) Latest() (Frame, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.frames
}

// readFrames reads lines from r and stores the latest parsed frame.
func (d *Serial) readFrames(r io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readFrames: %v", r)
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && err != io.EOF {
					log.Printf("Error reading from serial port: %v", err)
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			frame, err := parseLine(line)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}
			frame.Timestamp = time.Now()

			d.mu.Lock()
			d.last = frame
			d.frames++
			d.mu.Unlock()
		}
	}
}

// parseLine parses a line from the MCU into a Frame.
// Format: pin,temperature,vref
// Example: 2048,1050,1655
func parseLine(line string) (Frame, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Frame{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	var codes [3]uint16
	names := [3]string{"pin", "temperature", "vref"}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid %s: %w", names[i], err)
		}
		if v > 4095 {
			return Frame{}, fmt.Errorf("%s out of range: %d (max 4095)", names[i], v)
		}
		codes[i] = uint16(v)
	}

	return Frame{
		Pin:         codes[0],
		Temperature: codes[1],
		Vref:        codes[2],
	}, nil
}
