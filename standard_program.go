package compose

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

// Color models understood by the standard program.
const (
	// ColorModelRGBA samples texture unit 0 as RGBA.
	ColorModelRGBA = 0
	// ColorModelIntensity uses the red channel of unit 0 as alpha over
	// white; untextured draws and glyph-like masks use it.
	ColorModelIntensity = 2
)

// Texture units bound by the standard program.
const (
	TextureUnitColor = 0
	TextureUnitMask  = 4
)

// StandardProgram draws textured geometry. It owns the parameters of the
// "standard" program and its reduced "minimal" variant and picks one on
// every Activate.
type StandardProgram struct {
	ctx     *RenderContext
	full    *Program
	minimal *Program

	colorModel     int
	color          mgl32.Vec4
	colorMatrix    mgl32.Mat4
	useColorMatrix bool
	gamma          mgl32.Vec4
	premultiplied  bool
	useMask        bool
	maskPos        mgl32.Vec2
	maskSize       mgl32.Vec2
	transform      mgl32.Mat4

	white      driver.Texture
	wasMinimal bool
}

func newStandardProgram(ctx *RenderContext) (*StandardProgram, error) {
	reg := ctx.Programs()
	for _, id := range []string{ProgramStandard, ProgramMinimal} {
		if err := reg.CreateProgram(id); err != nil {
			return nil, err
		}
	}
	s := &StandardProgram{
		ctx:       ctx,
		full:      reg.Program(ProgramStandard),
		minimal:   reg.Program(ProgramMinimal),
		color:     mgl32.Vec4{1, 1, 1, 1},
		gamma:     mgl32.Vec4{1, 1, 1, 1},
		transform: mgl32.Ident4(),
	}
	s.full.IntParam("texture").Set(TextureUnitColor)
	s.full.IntParam("maskTexture").Set(TextureUnitMask)
	s.minimal.IntParam("texture").Set(TextureUnitColor)
	return s, nil
}

// SetColorModel selects ColorModelRGBA or ColorModelIntensity.
func (s *StandardProgram) SetColorModel(m int) { s.colorModel = m }

// SetColor sets the color every texel is multiplied by.
func (s *StandardProgram) SetColor(c mgl32.Vec4) { s.color = c }

// SetColorspaceMatrix enables an affine color transform. Texel rgb is
// multiplied as a column vector; the fourth column is the offset.
func (s *StandardProgram) SetColorspaceMatrix(m mgl32.Mat4) {
	s.colorMatrix = m
	s.useColorMatrix = true
}

// DisableColorspaceMatrix turns the color transform off.
func (s *StandardProgram) DisableColorspaceMatrix() { s.useColorMatrix = false }

// SetGamma sets the per-channel exponents applied to texels.
func (s *StandardProgram) SetGamma(g mgl32.Vec4) { s.gamma = g }

// SetPremultipliedAlpha declares texture content premultiplied.
func (s *StandardProgram) SetPremultipliedAlpha(on bool) { s.premultiplied = on }

// SetMask enables masking by texture unit 4. pos and size locate the mask
// in texture coordinates of unit 0.
func (s *StandardProgram) SetMask(on bool, pos, size mgl32.Vec2) {
	s.useMask, s.maskPos, s.maskSize = on, pos, size
}

// SetTransform sets the matrix from vertex positions to clip space.
func (s *StandardProgram) SetTransform(m mgl32.Mat4) { s.transform = m }

// SetUntextured binds a 1x1 white intensity texture to unit 0 and resets
// the color adjustments, so draws output the program color.
func (s *StandardProgram) SetUntextured() error {
	if s.white == 0 {
		drv := s.ctx.drv
		bmp, err := bitmap.New(image.Pt(1, 1), bitmap.FormatI8)
		if err != nil {
			return err
		}
		bmp.Pix()[0] = 255
		tex, err := drv.NewTexture(driver.TextureDesc{Label: "white", Size: bmp.Size(), Format: bitmap.FormatI8})
		if err != nil {
			return fmt.Errorf("compose: white texture: %w", err)
		}
		if err := drv.UploadTexture(tex, bmp); err != nil {
			drv.DeleteTexture(tex)
			return fmt.Errorf("compose: white texture: %w", err)
		}
		s.white = tex
	}
	s.ctx.drv.BindTexture(TextureUnitColor, s.white)
	s.colorModel = ColorModelIntensity
	s.DisableColorspaceMatrix()
	s.SetGamma(mgl32.Vec4{1, 1, 1, 1})
	s.SetPremultipliedAlpha(false)
	s.SetMask(false, mgl32.Vec2{}, mgl32.Vec2{})
	return nil
}

// IsMinimal reports whether the last Activate chose the minimal program.
func (s *StandardProgram) IsMinimal() bool { return s.wasMinimal }

// Activate selects the program for the current settings and uploads all
// of its parameters.
func (s *StandardProgram) Activate() {
	minimal := s.colorModel == ColorModelRGBA && !s.useColorMatrix &&
		s.gamma.ApproxEqual(mgl32.Vec4{1, 1, 1, 1}) && !s.useMask &&
		s.ctx.UseMinimalProgram()
	s.wasMinimal = minimal

	if minimal {
		p := s.minimal
		p.Mat4Param("transform").Set(s.transform)
		p.Vec4Param("color").Set(s.color)
		p.BoolParam("premultiplied").Set(s.premultiplied)
		p.Activate()
		return
	}

	p := s.full
	m := s.colorMatrix
	p.Mat4Param("transform").Set(s.transform)
	p.IntParam("colorModel").Set(int32(s.colorModel))
	p.Vec4Param("color").Set(s.color)
	p.BoolParam("useColorCoeff").Set(s.useColorMatrix)
	p.Vec4Param("colorCoeff0").Set(m.Col(0).Vec3().Vec4(0))
	p.Vec4Param("colorCoeff1").Set(m.Col(1).Vec3().Vec4(0))
	p.Vec4Param("colorCoeff2").Set(m.Col(2).Vec3().Vec4(0))
	p.Vec4Param("colorCoeff3").Set(m.Col(3).Vec3().Vec4(1))
	p.Vec4Param("gamma").Set(s.gamma)
	p.BoolParam("premultiplied").Set(s.premultiplied)
	p.BoolParam("useMask").Set(s.useMask)
	p.Vec2Param("maskPos").Set(s.maskPos)
	p.Vec2Param("maskSize").Set(s.maskSize)
	p.Activate()
}

func (s *StandardProgram) release() {
	if s.white != 0 {
		s.ctx.drv.DeleteTexture(s.white)
		s.white = 0
	}
}
