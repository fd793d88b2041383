package compose

import "github.com/gogpu/compose/driver"

// Invert replaces every color by its complement, keeping alpha.
type Invert struct {
	Filter
}

// NewInvert returns an unconnected invert effect.
func NewInvert() *Invert { return &Invert{} }

// Connect implements Effect.
func (v *Invert) Connect(ctx *RenderContext) error {
	return v.connect(ctx, ProgramInvert)
}

// Apply implements Effect.
func (v *Invert) Apply(src driver.Texture) error {
	return v.run(src, Passes(1),
		func(Pass) string { return ProgramInvert },
		func(Pass, *Program) {})
}
