// Package sh1106 drives a monochrome OLED through an SH1106 controller on
// I²C.
//
// The controller has 132 columns of display RAM for a 128 pixel wide panel;
// the panel is centered, so every column address is offset by 2.
//
// Updates are sent page by page. A page is a band of 8 pixel rows, one byte
// per column with the least significant bit on top, the layout of
// image1bit.VerticalLSB. Only pages that changed since the last update are
// sent, except for the first update and after Flush.
package sh1106

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Commands.
const (
	cmdSetLowColumn     = 0x00
	cmdSetHighColumn    = 0x10
	cmdSetStartLine     = 0x40
	cmdSetContrast      = 0x81
	cmdSegmentRemap     = 0xA0
	cmdDisplayAllOnRes  = 0xA4
	cmdNormalDisplay    = 0xA6
	cmdInvertDisplay    = 0xA7
	cmdSetMultiplex     = 0xA8
	cmdDCDCControl      = 0xAD
	cmdDisplayOff       = 0xAE
	cmdDisplayOn        = 0xAF
	cmdSetPageAddress   = 0xB0
	cmdCOMScanInc       = 0xC0
	cmdCOMScanDec       = 0xC8
	cmdSetDisplayOffset = 0xD3
	cmdSetDisplayClock  = 0xD5
	cmdSetPrecharge     = 0xD9
	cmdSetCOMPins       = 0xDA
	cmdSetVCOMDeselect  = 0xDB
)

const (
	i2cCmd  = 0x00 // control byte: stream of command bytes
	i2cData = 0x40 // control byte: stream of data bytes
)

// ColumnOffset is the RAM column of the first visible pixel column.
const ColumnOffset = 2

// Opts defines the options for the device.
type Opts struct {
	W int
	H int
	// Rotated rotates the display by 180°.
	Rotated bool
	// Contrast is the initial contrast; 0 selects the reset value 0x80.
	Contrast byte
	// Addr is the I²C address of the display.
	Addr uint16
}

// DefaultOpts is the usual 1.3" 128x64 module.
var DefaultOpts = Opts{
	W:    128,
	H:    64,
	Addr: 0x3c,
}

// Dev is an open handle to the display controller.
type Dev struct {
	c    conn.Conn
	rect image.Rectangle

	// buffer is what the controller shows.
	buffer []byte
	// next is lazy initialized on the first Draw of a partial or foreign image.
	next *image1bit.VerticalLSB
	// redraw forces every page out on the next update.
	redraw bool
	halted bool
}

// NewI2C returns a Dev communicating over I²C and initializes the
// controller. opts may be nil for DefaultOpts.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Addr == 0 {
		o.Addr = DefaultOpts.Addr
	}
	if o.W < 8 || o.W > 128 || o.W&7 != 0 {
		return nil, fmt.Errorf("sh1106: invalid width %d", o.W)
	}
	if o.H < 8 || o.H > 64 || o.H&7 != 0 {
		return nil, fmt.Errorf("sh1106: invalid height %d", o.H)
	}
	d := &Dev{
		c:      &i2c.Dev{Bus: b, Addr: o.Addr},
		rect:   image.Rect(0, 0, o.W, o.H),
		buffer: make([]byte, o.W*o.H/8),
		redraw: true,
	}
	if err := d.sendCommand(initCmd(&o)); err != nil {
		return nil, err
	}
	return d, nil
}

func initCmd(o *Opts) []byte {
	segRemap := byte(cmdSegmentRemap | 1)
	comScan := byte(cmdCOMScanDec)
	if o.Rotated {
		segRemap = cmdSegmentRemap
		comScan = cmdCOMScanInc
	}
	contrast := o.Contrast
	if contrast == 0 {
		contrast = 0x80
	}
	return []byte{
		cmdDisplayOff,
		cmdSetDisplayClock, 0x80, // divide ratio 1, default oscillator
		cmdSetMultiplex, byte(o.H - 1),
		cmdSetDisplayOffset, 0x00,
		cmdSetStartLine,
		cmdDCDCControl, 0x8B, // built-in DC-DC on
		segRemap,
		comScan,
		cmdSetCOMPins, 0x12, // alternative COM pin layout
		cmdSetContrast, contrast,
		cmdSetPrecharge, 0xF1,
		cmdSetVCOMDeselect, 0x40,
		cmdDisplayAllOnRes,
		cmdNormalDisplay,
		cmdDisplayOn,
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("SH1106.Dev{%s, %s}", d.c, d.rect.Max)
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return image1bit.BitModel
}

// Bounds implements display.Drawer. Min is guaranteed to be {0, 0}.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw implements display.Drawer. The display is updated once it returns.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	var next []byte
	if img, ok := src.(*image1bit.VerticalLSB); ok && r == d.rect && img.Rect == d.rect && sp.X == 0 && sp.Y == 0 {
		next = img.Pix
		if d.next != nil {
			copy(d.next.Pix, img.Pix)
		}
	} else {
		if d.next == nil {
			d.next = image1bit.NewVerticalLSB(d.rect)
			copy(d.next.Pix, d.buffer)
		}
		draw.Src.Draw(d.next, r, src, sp)
		next = d.next.Pix
	}
	return d.update(next)
}

// Write writes a frame in page format, the content of
// image1bit.VerticalLSB.Pix.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels) != len(d.buffer) {
		return 0, fmt.Errorf("sh1106: invalid pixel stream length; expected %d bytes, got %d bytes", len(d.buffer), len(pixels))
	}
	if d.next != nil {
		copy(d.next.Pix, pixels)
	}
	if err := d.update(pixels); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// Flush sends the whole frame again.
func (d *Dev) Flush() error {
	d.redraw = true
	return d.update(bytes.Clone(d.buffer))
}

// Clear blanks the display.
func (d *Dev) Clear() error {
	_, err := d.Write(make([]byte, len(d.buffer)))
	return err
}

// SetContrast changes the screen contrast.
func (d *Dev) SetContrast(level byte) error {
	return d.sendCommand([]byte{cmdSetContrast, level})
}

// Invert the display (black on white vs white on black).
func (d *Dev) Invert(blackOnWhite bool) error {
	b := []byte{cmdNormalDisplay}
	if blackOnWhite {
		b[0] = cmdInvertDisplay
	}
	return d.sendCommand(b)
}

// Halt turns off the display. Sending any other command afterward reenables
// the display.
func (d *Dev) Halt() error {
	d.halted = false
	err := d.sendCommand([]byte{cmdDisplayOff})
	if err == nil {
		d.halted = true
	}
	return err
}

// update sends the pages of next that differ from what is displayed.
func (d *Dev) update(next []byte) error {
	w := d.rect.Dx()
	pages := d.rect.Dy() / 8
	for page := 0; page < pages; page++ {
		band := next[page*w : (page+1)*w]
		if !d.redraw && bytes.Equal(d.buffer[page*w:(page+1)*w], band) {
			continue
		}
		col := byte(ColumnOffset)
		err := d.sendCommand([]byte{
			cmdSetPageAddress | byte(page),
			cmdSetLowColumn | col&0x0F,
			cmdSetHighColumn | col>>4,
		})
		if err != nil {
			return err
		}
		if err := d.sendData(band); err != nil {
			return err
		}
		copy(d.buffer[page*w:], band)
	}
	d.redraw = false
	return nil
}

func (d *Dev) sendData(c []byte) error {
	if d.halted {
		if err := d.sendCommand(nil); err != nil {
			return err
		}
	}
	return d.c.Tx(append([]byte{i2cData}, c...), nil)
}

func (d *Dev) sendCommand(c []byte) error {
	if d.halted {
		c = append([]byte{cmdDisplayOn}, c...)
		d.halted = false
	}
	return d.c.Tx(append([]byte{i2cCmd}, c...), nil)
}

var _ display.Drawer = &Dev{}
