package bitmap

import (
	"image"
	"math/bits"
)

// MipmapChain holds successively halved versions of a bitmap.
// Level 0 is the source; the chain stops when both sides reach one pixel.
type MipmapChain struct {
	levels []*Bitmap
}

// MipLevels returns the number of levels a full chain of size has.
func MipLevels(size image.Point) int {
	m := max(size.X, size.Y)
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// GenerateMipmaps builds the chain for src with a 2x2 box filter.
// src becomes level 0 and is not copied. Returns nil for a nil source.
func GenerateMipmaps(src *Bitmap) *MipmapChain {
	if src == nil {
		return nil
	}
	n := MipLevels(src.Size())
	chain := &MipmapChain{levels: make([]*Bitmap, n)}
	chain.levels[0] = src
	for i := 1; i < n; i++ {
		chain.levels[i] = downsample(chain.levels[i-1])
	}
	return chain
}

func downsample(src *Bitmap) *Bitmap {
	sw, sh := src.width, src.height
	dw, dh := max(1, sw/2), max(1, sh/2)

	dst := GetFromDefault(image.Pt(dw, dh), src.format)
	if dst == nil {
		return nil
	}
	for dy := range dh {
		for dx := range dw {
			sx, sy := dx*2, dy*2
			sx1, sy1 := min(sx+1, sw-1), min(sy+1, sh-1)

			r0, g0, b0, a0 := src.RGBA(sx, sy)
			r1, g1, b1, a1 := src.RGBA(sx1, sy)
			r2, g2, b2, a2 := src.RGBA(sx, sy1)
			r3, g3, b3, a3 := src.RGBA(sx1, sy1)

			_ = dst.SetRGBA(dx, dy,
				avg4(r0, r1, r2, r3),
				avg4(g0, g1, g2, g3),
				avg4(b0, b1, b2, b3),
				avg4(a0, a1, a2, a3))
		}
	}
	return dst
}

func avg4(a, b, c, d uint8) uint8 {
	return uint8((uint16(a) + uint16(b) + uint16(c) + uint16(d)) / 4)
}

// Level returns level n, or nil if n is out of range.
func (m *MipmapChain) Level(n int) *Bitmap {
	if m == nil || n < 0 || n >= len(m.levels) {
		return nil
	}
	return m.levels[n]
}

// NumLevels returns the number of levels in the chain.
func (m *MipmapChain) NumLevels() int {
	if m == nil {
		return 0
	}
	return len(m.levels)
}

// Release returns levels 1 and up to the package pool.
// Level 0 belongs to the caller.
func (m *MipmapChain) Release() {
	if m == nil {
		return
	}
	for i := 1; i < len(m.levels); i++ {
		PutToDefault(m.levels[i])
		m.levels[i] = nil
	}
}
