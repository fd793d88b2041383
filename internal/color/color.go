// Package color holds the small color conversions shared by the render
// engine and the software driver.
package color

// ColorF32 is a color with float32 components in [0,1].
type ColorF32 struct {
	R, G, B, A float32
}

// ColorU8 is a color with uint8 components in [0,255].
type ColorU8 struct {
	R, G, B, A uint8
}

// Premultiply scales the color channels by alpha.
func (c ColorF32) Premultiply() ColorF32 {
	return ColorF32{R: c.R * c.A, G: c.G * c.A, B: c.B * c.A, A: c.A}
}

// Mul multiplies component-wise.
func (c ColorF32) Mul(o ColorF32) ColorF32 {
	return ColorF32{R: c.R * o.R, G: c.G * o.G, B: c.B * o.B, A: c.A * o.A}
}
