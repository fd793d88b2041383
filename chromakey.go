package compose

import (
	"fmt"
	imagecolor "image/color"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/compose/driver"
	"github.com/gogpu/compose/internal/color"
)

// ChromaKeyParams configures a ChromaKey. Tolerances and softness are
// fractions: hue bands of the full circle, saturation and lightness of
// their range.
type ChromaKeyParams struct {
	Color      imagecolor.RGBA
	HTolerance float32
	STolerance float32
	LTolerance float32
	Softness   float32
	// Erosion is the number of 3x3 alpha erosion passes after keying.
	Erosion int
	// SpillThreshold desaturates pixels whose hue is within this band of
	// the key. It is raised to HTolerance if lower.
	SpillThreshold float32
}

// ChromaKey makes pixels near a key color transparent.
type ChromaKey struct {
	Filter
	params ChromaKeyParams
}

// NewChromaKey returns a green key with zero tolerances.
func NewChromaKey() *ChromaKey {
	return &ChromaKey{params: ChromaKeyParams{Color: imagecolor.RGBA{G: 255, A: 255}}}
}

// Connect implements Effect.
func (c *ChromaKey) Connect(ctx *RenderContext) error {
	return c.connect(ctx, ProgramChromaKey, ProgramChromaKeyErosion)
}

// SetParams replaces the parameters. They apply on the next Apply.
func (c *ChromaKey) SetParams(p ChromaKeyParams) error {
	if p.Erosion < 0 {
		return fmt.Errorf("compose: erosion %d: %w", p.Erosion, ErrOutOfRange)
	}
	if p.SpillThreshold <= p.HTolerance {
		p.SpillThreshold = p.HTolerance
	}
	c.params = p
	c.markDirty()
	return nil
}

// Params returns the current parameters.
func (c *ChromaKey) Params() ChromaKeyParams { return c.params }

// Passes returns the pass plan for the current erosion.
func (c *ChromaKey) Passes() []Pass { return Passes(1 + c.params.Erosion) }

// Apply implements Effect.
func (c *ChromaKey) Apply(src driver.Texture) error {
	p := c.params
	h, s, l := color.RGBToHSL(float64(p.Color.R)/255, float64(p.Color.G)/255, float64(p.Color.B)/255)
	key := mgl32.Vec4{float32(h), float32(s), float32(l), 0}
	tol := mgl32.Vec4{p.HTolerance * 360, p.STolerance, p.LTolerance, p.SpillThreshold * 360}
	soft := mgl32.Vec4{
		(p.HTolerance + p.Softness) * 360,
		p.STolerance + p.Softness,
		p.LTolerance + p.Softness,
		0,
	}

	program := func(ps Pass) string {
		if ps.Index == 0 {
			return ProgramChromaKey
		}
		return ProgramChromaKeyErosion
	}
	return c.run(src, c.Passes(), program, func(ps Pass, prog *Program) {
		if ps.Index == 0 {
			prog.Vec4Param("key").Set(key)
			prog.Vec4Param("tolerance").Set(tol)
			prog.Vec4Param("softTolerance").Set(soft)
		}
		prog.BoolParam("isLast").Set(ps.Final)
	})
}
