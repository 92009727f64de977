package kabe

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an opaque 8-bit RGB color.
type Color struct {
	R, G, B uint8
}

// ColorOf converts any color to a Color. Alpha is dropped rather than
// composited: the non-premultiplied channels are kept as they are.
func ColorOf(c color.Color) Color {
	if col, ok := c.(Color); ok {
		return col
	}

	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Color{R: n.R, G: n.G, B: n.B}
}

// RGBA implements color.Color. The returned color is always fully opaque.
func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xffff
}

// DistanceSq returns the squared Euclidean distance between two colors in
// RGB space.
func (c Color) DistanceSq(o Color) int {
	dr := int(c.R) - int(o.R)
	dg := int(c.G) - int(o.G)
	db := int(c.B) - int(o.B)
	return dr*dr + dg*dg + db*db
}

// Hex returns the color in #rrggbb form.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Colorful returns the color as a go-colorful color.
func (c Color) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// ParseHex parses a #rrggbb or #rgb color.
func ParseHex(s string) (Color, error) {
	col, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("kabe: ParseHex: %q: %w", s, err)
	}

	r, g, b := col.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

func (c Color) pack() int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}
