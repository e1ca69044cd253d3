package style

import (
	"fmt"
	"math"
	"strconv"
)

// RGBA colour with alpha in [0,1], matching CSS rgba()
type Color struct {
	R uint8   `json:"r"`
	G uint8   `json:"g"`
	B uint8   `json:"b"`
	A float64 `json:"a"`
}

var (
	White       = Color{R: 255, G: 255, B: 255, A: 1}
	Transparent = Color{}
)

func RGBA(r, g, b uint8, a float64) Color {
	return Color{R: r, G: g, B: b, A: a}
}

func (c Color) IsTransparent() bool {
	return c.A <= 0
}

// CSS colour value; fully transparent colours render as the keyword
func (c Color) CSS() string {
	if c.IsTransparent() {
		return "transparent"
	}
	if c.A >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf(
		"rgba(%d,%d,%d,%s)",
		c.R,
		c.G,
		c.B,
		strconv.FormatFloat(c.A, 'f', -1, 64),
	)
}

// ASS colour literal &HAABBGGRR; ASS alpha counts transparency, not opacity
func (c Color) ASS() string {
	return fmt.Sprintf("&H%02X%02X%02X%02X", c.assAlpha(), c.B, c.G, c.R)
}

// ASS override-tag colour (&HBBGGRR&) without alpha
func (c Color) ASSTag() string {
	return fmt.Sprintf("&H%02X%02X%02X&", c.B, c.G, c.R)
}

// ASS override-tag alpha (&HAA&)
func (c Color) ASSAlphaTag() string {
	return fmt.Sprintf("&H%02X&", c.assAlpha())
}

func (c Color) assAlpha() uint8 {
	a := math.Max(0, math.Min(1, c.A))
	return uint8(math.Round((1 - a) * 255))
}
