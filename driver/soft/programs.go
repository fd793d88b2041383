package soft

import (
	"image"
	"math"
	"sync"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
	"github.com/gogpu/compose/internal/color"
)

// Fragment is the interpolated input of one covered pixel.
type Fragment struct {
	X, Y  int
	UV    [2]float32
	Color color.ColorF32
}

// FragmentFunc computes the straight or premultiplied output color of a
// fragment. Components outside [0, 1] are clamped before blending.
// It runs concurrently for fragments of different rows and must not
// modify shared state.
type FragmentFunc func(e *Env, f Fragment) color.ColorF32

// Env gives a fragment function access to program uniforms and the bound
// texture units.
type Env struct {
	d        *Driver
	uniforms map[string]driver.Uniform
}

func (d *Driver) newEnv(p *program) *Env {
	return &Env{d: d, uniforms: p.uniforms}
}

// Uniform returns the named uniform, zero when unset.
func (e *Env) Uniform(name string) driver.Uniform { return e.uniforms[name] }

// Vec4 returns the named uniform widened to four components.
func (e *Env) Vec4(name string) [4]float32 { return e.uniforms[name].Vec4() }

// Float returns the first component of the named uniform.
func (e *Env) Float(name string) float32 { return e.Vec4(name)[0] }

// Flag reports whether the first component of the named uniform is non-zero.
func (e *Env) Flag(name string) bool { return e.Float(name) != 0 }

// TextureSize returns the level 0 size of the texture bound to unit.
func (e *Env) TextureSize(unit int) image.Point {
	if bmp := e.level0(unit); bmp != nil {
		return bmp.Size()
	}
	return image.Point{}
}

// Sample reads unit at uv with nearest filtering and edge clamping.
// With texturing disabled unit 0 reads opaque white; an empty unit reads
// opaque black.
func (e *Env) Sample(unit int, uv [2]float32) color.ColorF32 {
	return e.Texel(unit, uv, 0, 0)
}

// Texel reads the texel dx, dy away from the one uv falls into.
func (e *Env) Texel(unit int, uv [2]float32, dx, dy int) color.ColorF32 {
	if unit == 0 && e.d.flags&driver.DrawTextured == 0 {
		return color.ColorF32{R: 1, G: 1, B: 1, A: 1}
	}
	bmp := e.level0(unit)
	if bmp == nil {
		return color.ColorF32{A: 1}
	}
	w, h := bmp.Width(), bmp.Height()
	x := clampInt(int(math.Floor(float64(uv[0])*float64(w)))+dx, 0, w-1)
	y := clampInt(int(math.Floor(float64(uv[1])*float64(h)))+dy, 0, h-1)
	r, g, b, a := bmp.RGBA(x, y)
	return color.U8ToF32(color.ColorU8{R: r, G: g, B: b, A: a})
}

func (e *Env) level0(unit int) *bitmap.Bitmap {
	if unit < 0 || unit >= maxUnits {
		return nil
	}
	t, ok := e.d.textures[e.d.units[unit]]
	if !ok {
		return nil
	}
	return t.levels[0]
}

func clampInt(v, lo, hi int) int { return min(max(v, lo), hi) }

var (
	programsMu sync.RWMutex
	programs   = map[string]FragmentFunc{
		"standard":          shadeStandard,
		"minimal":           shadeMinimal,
		"invert":            shadeInvert,
		"chromakey":         shadeChromaKey,
		"chromakey_erosion": shadeErosion,
	}
)

// RegisterProgram makes fn the fragment function of programs compiled
// with label. It replaces an earlier registration.
func RegisterProgram(label string, fn FragmentFunc) {
	programsMu.Lock()
	defer programsMu.Unlock()
	programs[label] = fn
}

func lookupProgram(label string) FragmentFunc {
	programsMu.RLock()
	defer programsMu.RUnlock()
	return programs[label]
}

func shadeTextured(e *Env, f Fragment) color.ColorF32 {
	return e.Sample(0, f.UV).Mul(f.Color)
}

// modulate multiplies a texel by the program color and the vertex color.
func modulate(e *Env, f Fragment, tex color.ColorF32) color.ColorF32 {
	c := e.Vec4("color")
	out := tex.Mul(color.ColorF32{R: c[0], G: c[1], B: c[2], A: c[3]}).Mul(f.Color)
	if e.Flag("premultiplied") {
		out.R *= c[3] * f.Color.A
		out.G *= c[3] * f.Color.A
		out.B *= c[3] * f.Color.A
	}
	return out
}

func shadeMinimal(e *Env, f Fragment) color.ColorF32 {
	return modulate(e, f, e.Sample(0, f.UV))
}

func shadeStandard(e *Env, f Fragment) color.ColorF32 {
	tex := e.Sample(0, f.UV)
	if int(e.Float("colorModel")) == 2 {
		tex = color.ColorF32{R: 1, G: 1, B: 1, A: tex.R}
	}
	if e.Flag("useColorCoeff") {
		c0, c1, c2, c3 := e.Vec4("colorCoeff0"), e.Vec4("colorCoeff1"), e.Vec4("colorCoeff2"), e.Vec4("colorCoeff3")
		tex = color.ColorF32{
			R: tex.R*c0[0] + tex.G*c1[0] + tex.B*c2[0] + c3[0],
			G: tex.R*c0[1] + tex.G*c1[1] + tex.B*c2[1] + c3[1],
			B: tex.R*c0[2] + tex.G*c1[2] + tex.B*c2[2] + c3[2],
			A: tex.A,
		}
	}
	if g := e.Vec4("gamma"); g != [4]float32{1, 1, 1, 1} && g != [4]float32{} {
		tex = color.ColorF32{
			R: pow(tex.R, g[0]),
			G: pow(tex.G, g[1]),
			B: pow(tex.B, g[2]),
			A: pow(tex.A, g[3]),
		}
	}
	out := modulate(e, f, tex)
	if e.Flag("useMask") {
		pos, size := e.Vec4("maskPos"), e.Vec4("maskSize")
		m := float32(0)
		if size[0] != 0 && size[1] != 0 {
			mu := (f.UV[0] - pos[0]) / size[0]
			mv := (f.UV[1] - pos[1]) / size[1]
			if mu >= 0 && mu <= 1 && mv >= 0 && mv <= 1 {
				m = e.Sample(4, [2]float32{mu, mv}).R
			}
		}
		out.A *= m
		if e.Flag("premultiplied") {
			out.R, out.G, out.B = out.R*m, out.G*m, out.B*m
		}
	}
	return out
}

func pow(v, p float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Pow(float64(v), float64(p)))
}

func shadeInvert(e *Env, f Fragment) color.ColorF32 {
	tex := e.Sample(0, f.UV)
	return color.ColorF32{R: tex.A - tex.R, G: tex.A - tex.G, B: tex.A - tex.B, A: tex.A}
}

// shadeChromaKey keys out pixels near the key color in HSL space.
// Uniforms: key (h, s, l), tolerance (h, s, l, spill threshold),
// softTolerance (h, s, l) and isLast. Hues are in degrees.
// Intermediate passes write straight alpha; the last pass premultiplies.
func shadeChromaKey(e *Env, f Fragment) color.ColorF32 {
	tex := e.Sample(0, f.UV)
	key, tol, soft := e.Vec4("key"), e.Vec4("tolerance"), e.Vec4("softTolerance")

	h, s, l := color.RGBToHSL(float64(tex.R), float64(tex.G), float64(tex.B))
	hDiff := float32(color.HueDistance(h, float64(key[0])))
	sDiff := float32(math.Abs(s - float64(key[1])))
	lDiff := float32(math.Abs(l - float64(key[2])))

	alpha := float32(1)
	if hDiff <= soft[0] && sDiff <= soft[1] && lDiff <= soft[2] {
		alpha = 0
		alpha = max(alpha, ramp(hDiff, tol[0], soft[0]))
		alpha = max(alpha, ramp(sDiff, tol[1], soft[1]))
		alpha = max(alpha, ramp(lDiff, tol[2], soft[2]))
	}

	rgb := tex
	if spill := tol[3]; spill > 0 && hDiff < spill {
		s *= float64(hDiff / spill)
		r, g, b := color.HSLToRGB(h, s, l)
		rgb = color.ColorF32{R: float32(r), G: float32(g), B: float32(b)}
	}
	return finish(e, color.ColorF32{R: rgb.R, G: rgb.G, B: rgb.B, A: alpha * tex.A})
}

// ramp is 0 inside the hard band, rises linearly across the soft band and
// is 1 beyond it.
func ramp(diff, hard, soft float32) float32 {
	if diff <= hard {
		return 0
	}
	if soft <= hard {
		return 1
	}
	return min((diff-hard)/(soft-hard), 1)
}

// shadeErosion shrinks the keyed area's complement by taking the minimum
// alpha of the 3x3 neighborhood.
func shadeErosion(e *Env, f Fragment) color.ColorF32 {
	c := e.Sample(0, f.UV)
	a := c.A
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			a = min(a, e.Texel(0, f.UV, dx, dy).A)
		}
	}
	return finish(e, color.ColorF32{R: c.R, G: c.G, B: c.B, A: a})
}

func finish(e *Env, c color.ColorF32) color.ColorF32 {
	if e.Flag("isLast") {
		return c.Premultiply()
	}
	return c
}
