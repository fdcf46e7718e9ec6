package sh1106

import (
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// DrawText draws text in lit pixels with its baseline starting at pt. It
// returns the advance of the text in pixels.
func DrawText(img draw.Image, text string, pt image.Point) int {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(image1bit.On),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(text)
	return (d.Dot.X - fixed.I(pt.X)).Ceil()
}

// NewFrame returns a blank frame the size of the display.
func (d *Dev) NewFrame() *image1bit.VerticalLSB {
	return image1bit.NewVerticalLSB(d.rect)
}
