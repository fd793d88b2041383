package soft

import (
	"fmt"
	"math"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
	"github.com/gogpu/compose/internal/color"
	"github.com/gogpu/compose/internal/parallel"
)

// minBandRows keeps bands large enough to outweigh scheduling.
const minBandRows = 32

// vert is a vertex after the transform, in target pixel space.
type vert struct {
	x, y float64
	u, v float32
	c    color.ColorF32
}

// DrawIndexed implements driver.Driver.
//
// Vertex positions are multiplied by the "transform" uniform of the bound
// program (identity when unset) and mapped from clip space to the pixels of
// color slot 0. Pixel centers sit at +0.5; an edge passing exactly through a
// center belongs to the triangle for which it is a top or left edge, so quads
// sharing a diagonal never blend a pixel twice.
func (d *Driver) DrawIndexed(vertices, indices driver.Buffer, count int) error {
	vb, ok := d.buffers[vertices]
	if !ok {
		return fmt.Errorf("soft: vertex buffer %d: %w", vertices, driver.ErrUnknownHandle)
	}
	ib, ok := d.buffers[indices]
	if !ok {
		return fmt.Errorf("soft: index buffer %d: %w", indices, driver.ErrUnknownHandle)
	}
	prog, ok := d.programs[d.current]
	if !ok {
		return fmt.Errorf("soft: draw without program: %w", driver.ErrUnknownHandle)
	}
	target := d.colorTarget(d.bound, 0)
	if target == nil {
		return fmt.Errorf("soft: draw into framebuffer %d: %w", d.bound, driver.ErrUnknownHandle)
	}
	if count*4 > len(ib.data) {
		return fmt.Errorf("soft: %d indices, buffer holds %d", count, len(ib.data)/4)
	}
	nverts := uint32(len(vb.data) / driver.VertexStride)

	r := &raster{
		d:      d,
		target: target,
		env:    d.newEnv(prog),
		shade:  prog.shade,
		xform:  transformOf(prog),
	}
	tris := make([][3]vert, 0, count/3)
	for i := 0; i+2 < count; i += 3 {
		var tri [3]vert
		for k := range tri {
			idx := driver.DecodeIndex(ib.data, i+k)
			if idx >= nverts {
				return fmt.Errorf("soft: index %d out of %d vertices", idx, nverts)
			}
			tri[k] = r.project(driver.DecodeVertex(vb.data, int(idx)))
		}
		tris = append(tris, tri)
	}
	r.run(tris)
	d.stats.Draws++
	d.record(Event{Op: "draw", Framebuffer: d.bound, Program: prog.label, Texture: d.units[0], Count: count})
	return nil
}

func transformOf(p *program) [16]float32 {
	if u, ok := p.uniforms["transform"]; ok && u.Kind == driver.UniformMat4 {
		return u.F
	}
	return [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

type raster struct {
	d      *Driver
	target *bitmap.Bitmap
	env    *Env
	shade  FragmentFunc
	xform  [16]float32
}

func (r *raster) project(v driver.Vertex) vert {
	m := &r.xform
	x, y := v.Pos[0], v.Pos[1]
	cx := m[0]*x + m[4]*y + m[12]
	cy := m[1]*x + m[5]*y + m[13]
	cw := m[3]*x + m[7]*y + m[15]
	if cw != 0 {
		cx, cy = cx/cw, cy/cw
	}
	c := color.ColorF32{R: 1, G: 1, B: 1, A: 1}
	if r.d.flags&driver.DrawVertexColors != 0 {
		c = color.U8ToF32(color.ColorU8{R: v.Color[0], G: v.Color[1], B: v.Color[2], A: v.Color[3]})
	}
	w, h := float64(r.target.Width()), float64(r.target.Height())
	return vert{
		x: (float64(cx) + 1) / 2 * w,
		y: (1 - float64(cy)) / 2 * h,
		u: v.Tex[0],
		v: v.Tex[1],
		c: c,
	}
}

func edge(a, b vert, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// owns reports whether a sample with edge value w is covered by edge a->b.
func owns(w float64, a, b vert) bool {
	if w > 0 {
		return true
	}
	if w < 0 {
		return false
	}
	dx, dy := b.x-a.x, b.y-a.y
	return dy < 0 || (dy == 0 && dx > 0)
}

// run rasterizes tris. Each band of rows draws every triangle in order,
// so the result matches a serial pass.
func (r *raster) run(tris [][3]vert) {
	bands := parallel.Bands(0, r.target.Height(), r.d.workers(), minBandRows)
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() {
			for _, t := range tris {
				r.triangle(t[0], t[1], t[2], b)
			}
		}
	}
	if len(work) == 1 {
		work[0]()
		return
	}
	r.d.pool().Run(work)
}

// triangle covers the pixels of a, b, c inside rows band.
func (r *raster) triangle(a, b, c vert, band parallel.Band) {
	area := edge(a, b, c.x, c.y)
	if area == 0 {
		return
	}
	if area < 0 {
		b, c = c, b
		area = -area
	}

	w := r.target.Width()
	x0 := max(0, int(math.Floor(min(a.x, b.x, c.x))))
	y0 := max(band.Y0, int(math.Floor(min(a.y, b.y, c.y))))
	x1 := min(w-1, int(math.Ceil(max(a.x, b.x, c.x))))
	y1 := min(band.Y1-1, int(math.Ceil(max(a.y, b.y, c.y))))

	for py := y0; py <= y1; py++ {
		cy := float64(py) + 0.5
		for px := x0; px <= x1; px++ {
			cx := float64(px) + 0.5
			w0 := edge(b, c, cx, cy)
			w1 := edge(c, a, cx, cy)
			w2 := edge(a, b, cx, cy)
			if !owns(w0, b, c) || !owns(w1, c, a) || !owns(w2, a, b) {
				continue
			}
			l0, l1, l2 := float32(w0/area), float32(w1/area), float32(w2/area)
			frag := Fragment{
				X:  px,
				Y:  py,
				UV: [2]float32{a.u*l0 + b.u*l1 + c.u*l2, a.v*l0 + b.v*l1 + c.v*l2},
				Color: color.ColorF32{
					R: a.c.R*l0 + b.c.R*l1 + c.c.R*l2,
					G: a.c.G*l0 + b.c.G*l1 + c.c.G*l2,
					B: a.c.B*l0 + b.c.B*l1 + c.c.B*l2,
					A: a.c.A*l0 + b.c.A*l1 + c.c.A*l2,
				},
			}
			r.blend(px, py, clamp01(r.shade(r.env, frag)))
		}
	}
}

func (r *raster) blend(x, y int, s color.ColorF32) {
	dr, dg, db, da := r.target.RGBA(x, y)
	dst := color.U8ToF32(color.ColorU8{R: dr, G: dg, B: db, A: da})
	st := r.d.blend
	var out color.ColorF32
	switch st.Op {
	case driver.BlendOpMin:
		out = color.ColorF32{R: min(s.R, dst.R), G: min(s.G, dst.G), B: min(s.B, dst.B), A: min(s.A, dst.A)}
	case driver.BlendOpMax:
		out = color.ColorF32{R: max(s.R, dst.R), G: max(s.G, dst.G), B: max(s.B, dst.B), A: max(s.A, dst.A)}
	default:
		sc, dc := factor(st.SrcColor, s), factor(st.DstColor, s)
		sa, dA := factor(st.SrcAlpha, s), factor(st.DstAlpha, s)
		out = color.ColorF32{
			R: s.R*sc + dst.R*dc,
			G: s.G*sc + dst.G*dc,
			B: s.B*sc + dst.B*dc,
			A: s.A*sa + dst.A*dA,
		}
	}
	q := color.F32ToU8(out)
	_ = r.target.SetRGBA(x, y, q.R, q.G, q.B, q.A)
}

func factor(f driver.BlendFactor, src color.ColorF32) float32 {
	switch f {
	case driver.BlendOne:
		return 1
	case driver.BlendSrcAlpha:
		return src.A
	case driver.BlendOneMinusSrcAlpha:
		return 1 - src.A
	default:
		return 0
	}
}

func clamp01(c color.ColorF32) color.ColorF32 {
	cl := func(v float32) float32 { return min(max(v, 0), 1) }
	return color.ColorF32{R: cl(c.R), G: cl(c.G), B: cl(c.B), A: cl(c.A)}
}
