package bitmap

import (
	"errors"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Common errors for bitmap operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("bitmap: invalid dimensions")

	// ErrInvalidFormat is returned when the format is not recognized.
	ErrInvalidFormat = errors.New("bitmap: invalid format")

	// ErrInvalidStride is returned when stride is less than the row size.
	ErrInvalidStride = errors.New("bitmap: stride too small for width")

	// ErrDataTooSmall is returned when provided data is smaller than required.
	ErrDataTooSmall = errors.New("bitmap: data buffer too small")

	// ErrOutOfBounds is returned when pixel coordinates are outside the bitmap.
	ErrOutOfBounds = errors.New("bitmap: coordinates out of bounds")
)

// Bitmap is a contiguous pixel buffer with an optional row stride.
//
// Bitmaps are not safe for concurrent mutation.
type Bitmap struct {
	pix    []byte
	width  int
	height int
	stride int
	format Format
}

// New allocates a zeroed bitmap.
func New(size image.Point, format Format) (*Bitmap, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}
	stride := format.RowBytes(size.X)
	return &Bitmap{
		pix:    make([]byte, stride*size.Y),
		width:  size.X,
		height: size.Y,
		stride: stride,
		format: format,
	}, nil
}

// FromRaw wraps existing pixel data without copying.
func FromRaw(pix []byte, size image.Point, format Format, stride int) (*Bitmap, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}
	if stride < format.RowBytes(size.X) {
		return nil, ErrInvalidStride
	}
	need := stride*(size.Y-1) + format.RowBytes(size.X)
	if len(pix) < need {
		return nil, ErrDataTooSmall
	}
	return &Bitmap{
		pix:    pix[:need],
		width:  size.X,
		height: size.Y,
		stride: stride,
		format: format,
	}, nil
}

// FromImage converts any image into a bitmap of the given format.
func FromImage(img image.Image, format Format) (*Bitmap, error) {
	b := img.Bounds()
	bmp, err := New(b.Size(), format)
	if err != nil {
		return nil, err
	}
	bmp.Draw(img)
	return bmp, nil
}

// Draw replaces the bitmap contents with img, converting pixel formats.
// img is aligned at its bounds minimum and clipped to the bitmap size.
func (b *Bitmap) Draw(img image.Image) {
	dst := b.Image()
	if dst == nil {
		return
	}
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
}

// Scaled returns a copy resampled to size with bilinear filtering.
func (b *Bitmap) Scaled(size image.Point) (*Bitmap, error) {
	out, err := New(size, b.format)
	if err != nil {
		return nil, err
	}
	src, dst := b.Image(), out.Image()
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return out, nil
}

// ToI8 returns the luminance of b as an intensity bitmap.
// An I8 bitmap is returned unchanged.
func (b *Bitmap) ToI8() *Bitmap {
	if b.format == FormatI8 {
		return b
	}
	gray, _ := New(b.Size(), FormatI8)
	dst := gray.Image().(*image.Gray)
	draw.Draw(dst, dst.Bounds(), b.Image(), image.Point{}, draw.Src)
	return gray
}

// Image returns a standard library view sharing the bitmap's memory.
func (b *Bitmap) Image() draw.Image {
	rect := image.Rect(0, 0, b.width, b.height)
	switch b.format {
	case FormatI8:
		return &image.Gray{Pix: b.pix, Stride: b.stride, Rect: rect}
	case FormatRGBA8:
		return &image.NRGBA{Pix: b.pix, Stride: b.stride, Rect: rect}
	case FormatRGBAPremul:
		return &image.RGBA{Pix: b.pix, Stride: b.stride, Rect: rect}
	case FormatBGRA8, FormatBGRAPremul:
		return &bgraImage{b}
	default:
		return nil
	}
}

// Size returns the bitmap dimensions.
func (b *Bitmap) Size() image.Point { return image.Pt(b.width, b.height) }

// Width returns the bitmap width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height returns the bitmap height in pixels.
func (b *Bitmap) Height() int { return b.height }

// Stride returns the number of bytes per row including padding.
func (b *Bitmap) Stride() int { return b.stride }

// Format returns the pixel format.
func (b *Bitmap) Format() Format { return b.format }

// Pix returns the raw pixel data.
func (b *Bitmap) Pix() []byte { return b.pix }

// Row returns the pixel bytes of row y, or nil if y is out of range.
func (b *Bitmap) Row(y int) []byte {
	if y < 0 || y >= b.height {
		return nil
	}
	start := y * b.stride
	return b.pix[start : start+b.format.RowBytes(b.width)]
}

func (b *Bitmap) offset(x, y int) int {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return -1
	}
	return y*b.stride + x*b.format.BytesPerPixel()
}

// RGBA returns the stored channels at (x, y) in RGBA order.
// Intensity pixels expand to (v, v, v, 255). Out of range yields zeros.
func (b *Bitmap) RGBA(x, y int) (r, g, bl, a uint8) {
	off := b.offset(x, y)
	if off < 0 {
		return 0, 0, 0, 0
	}
	p := b.pix[off:]
	switch {
	case b.format == FormatI8:
		return p[0], p[0], p[0], 255
	case b.format.IsBGR():
		return p[2], p[1], p[0], p[3]
	default:
		return p[0], p[1], p[2], p[3]
	}
}

// SetRGBA stores channels given in RGBA order at (x, y).
// Intensity formats store the luminance of (r, g, bl).
func (b *Bitmap) SetRGBA(x, y int, r, g, bl, a uint8) error {
	off := b.offset(x, y)
	if off < 0 {
		return ErrOutOfBounds
	}
	p := b.pix[off:]
	switch {
	case b.format == FormatI8:
		p[0] = byte((int(r)*299 + int(g)*587 + int(bl)*114) / 1000)
	case b.format.IsBGR():
		p[0], p[1], p[2], p[3] = bl, g, r, a
	default:
		p[0], p[1], p[2], p[3] = r, g, bl, a
	}
	return nil
}

// Fill sets every pixel to the given color.
func (b *Bitmap) Fill(r, g, bl, a uint8) {
	for y := range b.height {
		for x := range b.width {
			_ = b.SetRGBA(x, y, r, g, bl, a)
		}
	}
}

// Clear zeroes all pixels.
func (b *Bitmap) Clear() { clear(b.pix) }

// Clone returns a deep copy with tightly packed rows.
func (b *Bitmap) Clone() *Bitmap {
	out, _ := New(b.Size(), b.format)
	for y := range b.height {
		copy(out.Row(y), b.Row(y))
	}
	return out
}

// Equal reports whether both bitmaps have the same size, format and pixels.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if o == nil || b.Size() != o.Size() || b.format != o.format {
		return false
	}
	for y := range b.height {
		if string(b.Row(y)) != string(o.Row(y)) {
			return false
		}
	}
	return true
}

// CopyInto writes b at the top-left corner of dst, converting formats.
// Pixels outside dst are dropped.
func (b *Bitmap) CopyInto(dst *Bitmap) {
	w, h := min(b.width, dst.width), min(b.height, dst.height)
	if b.format == dst.format {
		n := b.format.RowBytes(w)
		for y := range h {
			copy(dst.Row(y)[:n], b.Row(y)[:n])
		}
		return
	}
	for y := range h {
		for x := range w {
			r, g, bl, a := b.RGBA(x, y)
			_ = dst.SetRGBA(x, y, r, g, bl, a)
		}
	}
}

// bgraImage adapts BGR-ordered bitmaps to draw.Image.
type bgraImage struct{ b *Bitmap }

func (m *bgraImage) ColorModel() color.Model {
	if m.b.format.IsPremultiplied() {
		return color.RGBAModel
	}
	return color.NRGBAModel
}

func (m *bgraImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.b.width, m.b.height) }

func (m *bgraImage) At(x, y int) color.Color {
	r, g, bl, a := m.b.RGBA(x, y)
	if m.b.format.IsPremultiplied() {
		return color.RGBA{R: r, G: g, B: bl, A: a}
	}
	return color.NRGBA{R: r, G: g, B: bl, A: a}
}

func (m *bgraImage) Set(x, y int, c color.Color) {
	if m.b.format.IsPremultiplied() {
		rc := color.RGBAModel.Convert(c).(color.RGBA)
		_ = m.b.SetRGBA(x, y, rc.R, rc.G, rc.B, rc.A)
		return
	}
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	_ = m.b.SetRGBA(x, y, nc.R, nc.G, nc.B, nc.A)
}
