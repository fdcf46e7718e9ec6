// Package sh1106sim simulates an SH1106 OLED controller sitting on an I²C
// bus. It decodes the command and data streams into display RAM and can
// render the visible panel on a terminal using ANSI colors.
package sh1106sim

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

const (
	// RAMColumns is the width of the display RAM.
	RAMColumns = 132
	// Pages is the number of 8 pixel high bands of display RAM.
	Pages = 8
	// columnOffset is the RAM column shown in the first panel column.
	columnOffset = 2
)

// ErrNack is returned for transactions addressed to another device.
var ErrNack = errors.New("sh1106sim: address not acknowledged")

// Opts represents the options of the simulated module.
type Opts struct {
	Addr uint16
	W    int
	H    int
	// Palette used by Render; nil selects ansi256.Default.
	Palette *ansi256.Palette
}

// Dev is a simulated SH1106 module. It implements i2c.BusCloser.
type Dev struct {
	addr    uint16
	w, h    int
	palette ansi256.Palette

	mu        sync.Mutex
	speed     physic.Frequency
	ram       [Pages][RAMColumns]byte
	page      int
	col       int
	on        bool
	allOn     bool
	inverted  bool
	contrast  byte
	startLine int
	segRemap  bool
	comDec    bool
	multiplex int
	closed    bool
	writes    int

	buf bytes.Buffer
}

// New returns a simulated module in its reset state: display off, contrast
// 0x80, RAM content undefined (zero here).
func New(opts *Opts) *Dev {
	o := Opts{Addr: 0x3c, W: 128, H: 64}
	if opts != nil {
		o = *opts
		if o.Addr == 0 {
			o.Addr = 0x3c
		}
		if o.W == 0 {
			o.W = 128
		}
		if o.H == 0 {
			o.H = 64
		}
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	return &Dev{
		addr:      o.Addr,
		w:         o.W,
		h:         o.H,
		palette:   *p,
		contrast:  0x80,
		multiplex: 64,
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("sh1106sim(%#x)", d.addr)
}

// SetSpeed implements i2c.Bus.
func (d *Dev) SetSpeed(f physic.Frequency) error {
	if f > 400*physic.KiloHertz {
		return fmt.Errorf("sh1106sim: %s above the 400kHz maximum", f)
	}
	d.mu.Lock()
	d.speed = f
	d.mu.Unlock()
	return nil
}

// Speed returns the last bus speed set.
func (d *Dev) Speed() physic.Frequency {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speed
}

// Close implements i2c.BusCloser.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Tx implements i2c.Bus. A write starts with a control byte; a read
// returns the status byte.
func (d *Dev) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("sh1106sim: bus closed")
	}
	if addr != d.addr {
		return ErrNack
	}
	if len(w) > 0 {
		if err := d.write(w); err != nil {
			return err
		}
		d.writes++
	}
	if len(r) > 0 {
		status := byte(0x08)
		if !d.on {
			status |= 0x40
		}
		for i := range r {
			r[i] = status
		}
	}
	return nil
}

// write decodes control bytes. With the continuation bit set a control byte
// covers the next byte only; otherwise it covers the rest of the transfer.
func (d *Dev) write(w []byte) error {
	for len(w) > 0 {
		ctl := w[0]
		w = w[1:]
		n := len(w)
		if ctl&0x80 != 0 {
			n = min(1, n)
		}
		chunk := w[:n]
		w = w[n:]
		if ctl&0x40 != 0 {
			d.data(chunk)
			continue
		}
		if err := d.commands(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) data(b []byte) {
	for _, v := range b {
		if d.col < RAMColumns {
			d.ram[d.page][d.col] = v
		}
		d.col++
	}
}

func (d *Dev) commands(c []byte) error {
	for i := 0; i < len(c); i++ {
		cmd := c[i]
		arg := func() (byte, error) {
			if i+1 >= len(c) {
				return 0, fmt.Errorf("sh1106sim: command %#02x missing its argument", cmd)
			}
			i++
			return c[i], nil
		}
		switch {
		case cmd <= 0x0F:
			d.col = d.col&0xF0 | int(cmd&0x0F)
		case cmd <= 0x1F:
			d.col = d.col&0x0F | int(cmd&0x0F)<<4
		case cmd >= 0x30 && cmd <= 0x33:
			// Pump voltage.
		case cmd >= 0x40 && cmd <= 0x7F:
			d.startLine = int(cmd & 0x3F)
		case cmd >= 0xB0 && cmd <= 0xB7:
			d.page = int(cmd & 0x07)
		case cmd == 0xA0 || cmd == 0xA1:
			d.segRemap = cmd == 0xA1
		case cmd == 0xA4 || cmd == 0xA5:
			d.allOn = cmd == 0xA5
		case cmd == 0xA6 || cmd == 0xA7:
			d.inverted = cmd == 0xA7
		case cmd == 0xAE || cmd == 0xAF:
			d.on = cmd == 0xAF
		case cmd == 0xC0 || cmd == 0xC8:
			d.comDec = cmd == 0xC8
		case cmd == 0xE0, cmd == 0xEE, cmd == 0xE3:
			// Read-modify-write and NOP.
		case cmd == 0x81:
			v, err := arg()
			if err != nil {
				return err
			}
			d.contrast = v
		case cmd == 0xA8:
			v, err := arg()
			if err != nil {
				return err
			}
			d.multiplex = int(v&0x3F) + 1
		case cmd == 0xAD, cmd == 0xD3, cmd == 0xD5, cmd == 0xD9, cmd == 0xDA, cmd == 0xDB:
			if _, err := arg(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("sh1106sim: unknown command %#02x", cmd)
		}
	}
	return nil
}

// On reports whether the display is on.
func (d *Dev) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

// Inverted reports whether the display shows black on white.
func (d *Dev) Inverted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inverted
}

// Contrast returns the contrast register.
func (d *Dev) Contrast() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contrast
}

// Writes returns the number of write transactions received.
func (d *Dev) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// RAM returns a copy of a display RAM page, all 132 columns.
func (d *Dev) RAM(page int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytes.Clone(d.ram[page][:])
}

// Image returns what the panel shows.
func (d *Dev) Image() *image1bit.VerticalLSB {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, d.w, d.h))
	if !d.on {
		return img
	}
	for y := 0; y < min(d.h, d.multiplex); y++ {
		row := (y + d.startLine) % 64
		if !d.comDec {
			row = (d.h - 1 - y + d.startLine) % 64
		}
		for x := 0; x < d.w; x++ {
			col := x + columnOffset
			if !d.segRemap {
				col = RAMColumns - 1 - x - columnOffset
			}
			lit := d.allOn || d.ram[row/8][col]&(1<<(row%8)) != 0
			if d.inverted {
				lit = !lit
			}
			img.SetBit(x, y, image1bit.Bit(lit))
		}
	}
	return img
}

// Render writes the panel to w, one ANSI block per pixel.
func (d *Dev) Render(w io.Writer) error {
	img := d.Image()
	lit := color.NRGBA{0x40, 0xC0, 0xFF, 0xFF}
	dark := color.NRGBA{0x00, 0x00, 0x00, 0xFF}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
	for y := 0; y < d.h; y++ {
		_, _ = d.buf.WriteString("\033[0m")
		for x := 0; x < d.w; x++ {
			c := dark
			if img.BitAt(x, y) {
				c = lit
			}
			_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		}
		_, _ = d.buf.WriteString("\033[0m\n")
	}
	_, err := d.buf.WriteTo(w)
	return err
}

// Preview renders the panel on the console.
func (d *Dev) Preview() error {
	return d.Render(colorable.NewColorableStdout())
}

var _ i2c.BusCloser = &Dev{}
