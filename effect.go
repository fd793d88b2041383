package compose

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

// Rect is a rectangle in fractions of the source surface.
type Rect struct {
	Min, Max mgl32.Vec2
}

// UnitRect covers the source surface exactly.
var UnitRect = Rect{Max: mgl32.Vec2{1, 1}}

// Size returns the width and height of r.
func (r Rect) Size() mgl32.Vec2 { return r.Max.Sub(r.Min) }

// Effect post-processes a surface into its own texture.
type Effect interface {
	// Connect compiles the programs of the effect in ctx.
	Connect(ctx *RenderContext) error
	// Disconnect releases every resource held in the connected context.
	Disconnect()
	// SetSize sets the size of the source and result textures.
	SetSize(size image.Point) error
	// Apply renders src through the effect.
	Apply(src driver.Texture) error
	// IsDirty reports parameter changes since the last ResetDirty.
	IsDirty() bool
	ResetDirty()
	// RelDestRect is where the result lands relative to the source.
	RelDestRect() Rect
	// Texture returns the result of the last Apply, premultiplied.
	Texture() driver.Texture
}

// Pass is one step of a ping-pong filter chain.
type Pass struct {
	Index int
	// Source is the buffer the pass reads, or -1 for the filter input.
	Source int
	// Dest is the buffer the pass writes.
	Dest int
	// Final is set on the last pass only.
	Final bool
}

// Passes returns the plan of an n pass chain: pass 0 reads the input and
// writes buffer 0, pass i reads buffer (i-1)%2 and writes buffer i%2.
func Passes(n int) []Pass {
	plan := make([]Pass, n)
	for i := range plan {
		src := -1
		if i > 0 {
			src = (i - 1) % 2
		}
		plan[i] = Pass{Index: i, Source: src, Dest: i % 2, Final: i == n-1}
	}
	return plan
}

// Filter runs programs over full-size quads, alternating between two
// render targets. ChromaKey and Invert embed it.
type Filter struct {
	ctx     *RenderContext
	size    image.Point
	buffers [2]*RenderTarget
	quad    *VertexArray
	last    int
	dirty   bool
}

func (f *Filter) connect(ctx *RenderContext, programs ...string) error {
	for _, id := range programs {
		if err := ctx.Programs().CreateProgram(id); err != nil {
			return err
		}
	}
	f.ctx = ctx
	f.dirty = true
	return nil
}

// Disconnect destroys the buffers and the quad geometry.
func (f *Filter) Disconnect() {
	f.destroyBuffers()
	if f.quad != nil {
		f.quad.Destroy()
		f.quad = nil
	}
	f.ctx = nil
}

func (f *Filter) destroyBuffers() {
	for i, b := range f.buffers {
		if b != nil {
			b.Destroy()
			f.buffers[i] = nil
		}
	}
}

// SetSize recreates the buffers when size changes.
func (f *Filter) SetSize(size image.Point) error {
	if f.ctx == nil {
		return fmt.Errorf("compose: filter not connected: %w", ErrNotReady)
	}
	if size == f.size && f.buffers[0] != nil {
		return nil
	}
	f.destroyBuffers()
	for i := range f.buffers {
		t, err := NewRenderTarget(f.ctx, TargetConfig{Size: size, Format: bitmap.FormatRGBAPremul, Samples: 1})
		if err != nil {
			f.destroyBuffers()
			return err
		}
		f.buffers[i] = t
	}
	if f.quad == nil {
		q, err := NewVertexArray(f.ctx)
		if err != nil {
			return err
		}
		f.quad = q
	}
	f.quad.Reset()
	w, h := float32(size.X), float32(size.Y)
	f.quad.AppendQuad(mgl32.Vec2{0, 0}, mgl32.Vec2{w, h}, mgl32.Vec2{0, 0}, mgl32.Vec2{1, 1}, [4]uint8{255, 255, 255, 255})
	f.size = size
	f.dirty = true
	return nil
}

// Size returns the buffer size.
func (f *Filter) Size() image.Point { return f.size }

// IsDirty reports whether parameters changed since ResetDirty.
func (f *Filter) IsDirty() bool { return f.dirty }

// ResetDirty marks the parameters applied.
func (f *Filter) ResetDirty() { f.dirty = false }

func (f *Filter) markDirty() { f.dirty = true }

// RelDestRect returns UnitRect; filters keep the source geometry.
func (f *Filter) RelDestRect() Rect { return UnitRect }

// Texture returns the buffer written by the final pass.
func (f *Filter) Texture() driver.Texture {
	if f.buffers[f.last] == nil {
		return 0
	}
	return f.buffers[f.last].Texture(0)
}

// Buffer returns ping-pong target i.
func (f *Filter) Buffer(i int) *RenderTarget { return f.buffers[i] }

// run executes plan. program names the program of each pass; setup sets
// its pass specific parameters before activation.
func (f *Filter) run(src driver.Texture, plan []Pass, program func(Pass) string, setup func(Pass, *Program)) error {
	if f.ctx == nil || f.buffers[0] == nil {
		return fmt.Errorf("compose: filter has no buffers: %w", ErrNotReady)
	}
	ctx := f.ctx
	ortho := mgl32.Ortho2D(0, float32(f.size.X), float32(f.size.Y), 0)
	ctx.SetBlendMode(BlendModeCopy, true)
	ctx.EnableTexture(true)
	ctx.EnableVertexColors(false)
	defer ctx.EnableVertexColors(true)

	for _, p := range plan {
		target := f.buffers[p.Dest]
		target.Clear(driver.Color{})
		in := src
		if p.Source >= 0 {
			in = f.buffers[p.Source].Texture(0)
		}
		ctx.drv.BindTexture(TextureUnitColor, in)

		prog := ctx.Programs().Program(program(p))
		if prog == nil {
			return fmt.Errorf("compose: program %s not compiled: %w", program(p), ErrNotReady)
		}
		prog.IntParam("texture").Set(TextureUnitColor)
		prog.Mat4Param("transform").Set(ortho)
		setup(p, prog)
		prog.Activate()
		if err := f.quad.Draw(); err != nil {
			return fmt.Errorf("compose: filter pass %d: %w", p.Index, err)
		}
		f.last = p.Dest
	}
	return nil
}
