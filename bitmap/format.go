// Package bitmap holds the CPU-side pixel buffers exchanged with the render
// engine: surface uploads, masks, and staging-buffer readbacks.
package bitmap

import "fmt"

// Format represents a pixel storage format.
type Format uint8

const (
	// FormatRGBA8 is 32-bit RGBA with straight alpha. It is the zero
	// value, so unset formats describe color storage.
	FormatRGBA8 Format = iota

	// FormatI8 is 8-bit intensity (1 byte per pixel). Masks use it.
	FormatI8

	// FormatRGBAPremul is 32-bit RGBA with premultiplied alpha.
	FormatRGBAPremul

	// FormatBGRA8 is 32-bit BGRA with straight alpha.
	// Swapchain-compatible GPU targets read back in this order.
	FormatBGRA8

	// FormatBGRAPremul is 32-bit BGRA with premultiplied alpha.
	FormatBGRAPremul

	formatCount
)

type formatInfo struct {
	bytesPerPixel int
	hasAlpha      bool
	premultiplied bool
	swapRB        bool
}

var formatInfoTable = [formatCount]formatInfo{
	FormatI8:         {bytesPerPixel: 1},
	FormatRGBA8:      {bytesPerPixel: 4, hasAlpha: true},
	FormatRGBAPremul: {bytesPerPixel: 4, hasAlpha: true, premultiplied: true},
	FormatBGRA8:      {bytesPerPixel: 4, hasAlpha: true, swapRB: true},
	FormatBGRAPremul: {bytesPerPixel: 4, hasAlpha: true, premultiplied: true, swapRB: true},
}

func (f Format) info() formatInfo {
	if f >= formatCount {
		return formatInfo{}
	}
	return formatInfoTable[f]
}

// BytesPerPixel returns the number of bytes per pixel for this format.
func (f Format) BytesPerPixel() int { return f.info().bytesPerPixel }

// HasAlpha reports whether the format stores an alpha channel.
func (f Format) HasAlpha() bool { return f.info().hasAlpha }

// IsPremultiplied reports whether color channels are scaled by alpha.
func (f Format) IsPremultiplied() bool { return f.info().premultiplied }

// IsBGR reports whether red and blue are stored swapped.
func (f Format) IsBGR() bool { return f.info().swapRB }

// IsValid returns true if the format is a known format.
func (f Format) IsValid() bool { return f < formatCount }

// RowBytes returns the number of bytes in a tightly packed row.
func (f Format) RowBytes(width int) int { return width * f.BytesPerPixel() }

// ImageBytes returns the number of bytes of a tightly packed image.
func (f Format) ImageBytes(width, height int) int { return f.RowBytes(width) * height }

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatI8:
		return "I8"
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGBAPremul:
		return "RGBAPremul"
	case FormatBGRA8:
		return "BGRA8"
	case FormatBGRAPremul:
		return "BGRAPremul"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}
