package compose

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

// dirtyState tracks whether a cached artifact must be recomputed.
type dirtyState uint8

const (
	stateDirty dirtyState = iota
	stateClean
)

func (s dirtyState) String() string {
	switch s {
	case stateDirty:
		return "Dirty"
	case stateClean:
		return "Clean"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DrawParams place one RasterNode draw.
type DrawParams struct {
	// Transform maps destination pixels to clip space, usually
	// Ortho(targetSize) times a model matrix.
	Transform mgl32.Mat4
	// DestSize is the size of the drawn rectangle in destination pixels.
	DestSize mgl32.Vec2
	Opacity  float32
	Tint     mgl32.Vec3
}

// DefaultDrawParams draws size pixels untransformed into a target of the
// same size.
func DefaultDrawParams(size image.Point) DrawParams {
	return DrawParams{
		Transform: Ortho(size),
		DestSize:  mgl32.Vec2{float32(size.X), float32(size.Y)},
		Opacity:   1,
		Tint:      mgl32.Vec3{1, 1, 1},
	}
}

// Ortho returns the projection from pixels of a target of the given size,
// origin top left, to clip space.
func Ortho(size image.Point) mgl32.Mat4 {
	return mgl32.Ortho2D(0, float32(size.X), float32(size.Y), 0)
}

// vaKey is everything the vertices of a draw depend on.
type vaKey struct {
	dest   mgl32.Vec2
	extent mgl32.Vec2
	rect   Rect
	gen    int
}

// RasterNode draws a surface as a grid of tiles whose corners can be
// moved to warp the image, optionally masked, color adjusted and run
// through an Effect.
type RasterNode struct {
	ctx *RenderContext

	tex         driver.Texture
	texSize     image.Point
	imgSize     image.Point
	format      bitmap.Format
	maxTileSize image.Point

	gridState  dirtyState
	texState   dirtyState
	bound      bool
	geomGen    int
	origGrid   VertexGrid
	warpedGrid VertexGrid
	texCoords  VertexGrid

	va    *VertexArray
	vaKey vaKey
	fxVA  *VertexArray
	fxKey vaKey

	blend    BlendMode
	mask     *bitmap.Bitmap
	maskPos  mgl32.Vec2
	maskSize mgl32.Vec2

	gamma     mgl32.Vec3
	intensity mgl32.Vec3
	contrast  mgl32.Vec3

	effect   Effect
	fxTarget *RenderTarget
	fxState  dirtyState
}

// NewRasterNode returns a node without a surface. Its tile size comes from
// the context configuration.
func NewRasterNode(ctx *RenderContext) *RasterNode {
	one := mgl32.Vec3{1, 1, 1}
	return &RasterNode{
		ctx:         ctx,
		maxTileSize: image.Pt(ctx.cfg.MaxTileSize[0], ctx.cfg.MaxTileSize[1]),
		blend:       BlendModeBlend,
		gamma:       one,
		intensity:   one,
		contrast:    one,
	}
}

// SetSurfaceData uploads bmp as the node's surface. With power-of-two
// textures configured the texture is padded and only the image part is
// mapped.
func (n *RasterNode) SetSurfaceData(bmp *bitmap.Bitmap) error {
	size := bmp.Size()
	if limit := n.ctx.MaxTextureSize(); size.X > limit || size.Y > limit {
		return fmt.Errorf("compose: surface %v exceeds texture limit %d: %w", size, limit, ErrOutOfRange)
	}
	texSize := size
	if n.ctx.cfg.PowerOfTwoTextures {
		texSize = image.Pt(nextPow2(size.X), nextPow2(size.Y))
	}

	drv := n.ctx.drv
	if n.tex != 0 && (texSize != n.texSize || bmp.Format() != n.format) {
		drv.DeleteTexture(n.tex)
		n.tex = 0
	}
	if n.tex == 0 {
		tex, err := drv.NewTexture(driver.TextureDesc{Label: "surface", Size: texSize, Format: bmp.Format()})
		if err != nil {
			return fmt.Errorf("compose: surface texture: %w", err)
		}
		n.tex = tex
		Logger().Debug("compose: surface texture created",
			slog.String("size", texSize.String()),
			slog.String("format", bmp.Format().String()))
	}

	src := bmp
	if texSize != size {
		padded, err := bitmap.New(texSize, bmp.Format())
		if err != nil {
			return err
		}
		bmp.CopyInto(padded)
		src = padded
	}
	if err := drv.UploadTexture(n.tex, src); err != nil {
		return fmt.Errorf("compose: upload surface: %w", err)
	}

	if size != n.imgSize || texSize != n.texSize {
		n.gridState = stateDirty
		n.texState = stateDirty
	}
	n.imgSize, n.texSize, n.format = size, texSize, bmp.Format()
	n.fxState = stateDirty
	return nil
}

// SetSurfaceImage converts img to straight RGBA and uploads it.
func (n *RasterNode) SetSurfaceImage(img image.Image) error {
	bmp, err := bitmap.FromImage(img, bitmap.FormatRGBA8)
	if err != nil {
		return err
	}
	return n.SetSurfaceData(bmp)
}

// SurfaceSize returns the size of the image data, zero before a surface
// is set.
func (n *RasterNode) SurfaceSize() image.Point { return n.imgSize }

// TextureSize returns the allocated surface texture size.
func (n *RasterNode) TextureSize() image.Point { return n.texSize }

// HasSurface reports whether a surface was uploaded.
func (n *RasterNode) HasSurface() bool { return n.tex != 0 }

// SetMaxTileSize sets the largest tile; each axis must be a power of two
// or Unbounded. Warped coordinates are reset to the new grid.
func (n *RasterNode) SetMaxTileSize(size image.Point) error {
	if _, err := tileSize(size); err != nil {
		return err
	}
	if size != n.maxTileSize {
		n.maxTileSize = size
		n.gridState = stateDirty
		n.texState = stateDirty
	}
	return nil
}

// MaxTileSize returns the configured tile size.
func (n *RasterNode) MaxTileSize() image.Point { return n.maxTileSize }

// NumTiles returns the tile count along each axis.
func (n *RasterNode) NumTiles() (image.Point, error) {
	if n.tex == 0 {
		return image.Point{}, fmt.Errorf("compose: no surface: %w", ErrNotReady)
	}
	return numTiles(n.imgSize, n.maxTileSize), nil
}

func (n *RasterNode) ensureGrid() {
	if n.gridState == stateClean {
		return
	}
	n.origGrid = buildTileGrid(n.imgSize, n.maxTileSize)
	n.warpedGrid = n.origGrid.Clone()
	n.gridState = stateClean
	n.texState = stateDirty
	n.geomGen++
}

func (n *RasterNode) ensureTexCoords() {
	n.ensureGrid()
	if n.texState == stateClean {
		return
	}
	n.texCoords = texCoords(n.origGrid, n.extent())
	n.texState = stateClean
	n.geomGen++
}

func (n *RasterNode) extent() mgl32.Vec2 {
	return mgl32.Vec2{
		float32(n.imgSize.X) / float32(n.texSize.X),
		float32(n.imgSize.Y) / float32(n.texSize.Y),
	}
}

// Bind computes the grid and texture coordinates. Draw binds an unbound
// node itself.
func (n *RasterNode) Bind() error {
	if n.tex == 0 {
		return fmt.Errorf("compose: bind without surface: %w", ErrNotReady)
	}
	n.ensureTexCoords()
	n.bound = true
	return nil
}

// IsBound reports whether Bind ran.
func (n *RasterNode) IsBound() bool { return n.bound }

// TexCoords returns the texture coordinate of every grid vertex.
func (n *RasterNode) TexCoords() (VertexGrid, error) {
	if err := n.Bind(); err != nil {
		return nil, err
	}
	return n.texCoords.Clone(), nil
}

// OrigVertexCoords returns the undistorted grid.
func (n *RasterNode) OrigVertexCoords() (VertexGrid, error) {
	if n.tex == 0 {
		return nil, fmt.Errorf("compose: no surface: %w", ErrNotReady)
	}
	n.ensureGrid()
	return n.origGrid.Clone(), nil
}

// WarpedVertexCoords returns the grid as drawn.
func (n *RasterNode) WarpedVertexCoords() (VertexGrid, error) {
	if n.tex == 0 {
		return nil, fmt.Errorf("compose: no surface: %w", ErrNotReady)
	}
	n.ensureGrid()
	return n.warpedGrid.Clone(), nil
}

// SetWarpedVertexCoords replaces the drawn grid. A grid whose shape
// differs from the tile grid is rejected and the current grid kept.
func (n *RasterNode) SetWarpedVertexCoords(grid VertexGrid) error {
	if n.tex == 0 {
		return fmt.Errorf("compose: no surface: %w", ErrNotReady)
	}
	n.ensureGrid()
	if !n.origGrid.sameShape(grid) {
		return fmt.Errorf("compose: warped grid %v, tile grid %v: %w",
			grid.Dims(), n.origGrid.Dims(), ErrOutOfRange)
	}
	n.warpedGrid = grid.Clone()
	n.geomGen++
	return nil
}

// SetBlendMode sets the mode used by Draw.
func (n *RasterNode) SetBlendMode(m BlendMode) { n.blend = m }

// SetBlendModeStr parses and sets the blend mode: "blend", "add", "min"
// or "max".
func (n *RasterNode) SetBlendModeStr(name string) error {
	m, err := ParseBlendMode(name)
	if err != nil {
		return err
	}
	n.blend = m
	return nil
}

// BlendMode returns the node blend mode.
func (n *RasterNode) BlendMode() BlendMode { return n.blend }

// SetMask masks the surface by the luminance of bmp; nil removes the
// mask. Setting the same bitmap again uploads its current pixels.
func (n *RasterNode) SetMask(bmp *bitmap.Bitmap) {
	if bmp != nil {
		n.ctx.masks.forget(bmp)
	}
	n.mask = bmp
	n.fxState = stateDirty
}

// Mask returns the mask bitmap.
func (n *RasterNode) Mask() *bitmap.Bitmap { return n.mask }

// SetMaskPos places the mask, in fractions of the surface.
func (n *RasterNode) SetMaskPos(p mgl32.Vec2) {
	n.maskPos = p
	n.fxState = stateDirty
}

// SetMaskSize scales the mask, in fractions of the surface. (0, 0) covers
// the whole surface.
func (n *RasterNode) SetMaskSize(s mgl32.Vec2) {
	n.maskSize = s
	n.fxState = stateDirty
}

// SetColorAdjust sets per-channel gamma, intensity and contrast. Ones
// leave colors unchanged.
func (n *RasterNode) SetColorAdjust(gamma, intensity, contrast mgl32.Vec3) error {
	for i := range 3 {
		if gamma[i] <= 0 {
			return fmt.Errorf("compose: gamma %v: %w", gamma, ErrOutOfRange)
		}
	}
	n.gamma, n.intensity, n.contrast = gamma, intensity, contrast
	n.fxState = stateDirty
	return nil
}

// SetEffect attaches e, connecting it to the node's context and
// disconnecting the previous effect. Nil removes the effect.
func (n *RasterNode) SetEffect(e Effect) error {
	if n.effect != nil {
		n.effect.Disconnect()
		n.effect = nil
	}
	n.destroyFXTarget()
	if e != nil {
		if err := e.Connect(n.ctx); err != nil {
			return err
		}
	}
	n.effect = e
	n.fxState = stateDirty
	return nil
}

// Effect returns the attached effect.
func (n *RasterNode) Effect() Effect { return n.effect }

func (n *RasterNode) destroyFXTarget() {
	if n.fxTarget != nil {
		n.fxTarget.Destroy()
		n.fxTarget = nil
	}
}

// ApplyEffect renders the surface into the effect when the surface or the
// effect changed, or when force is set. The framebuffer bound before the
// call stays bound.
func (n *RasterNode) ApplyEffect(force bool) error {
	if n.effect == nil {
		return nil
	}
	if !force && n.fxState == stateClean && !n.effect.IsDirty() {
		return nil
	}
	if n.tex == 0 {
		return fmt.Errorf("compose: effect without surface: %w", ErrNotReady)
	}
	if err := n.Bind(); err != nil {
		return err
	}
	prev := n.ctx.BoundFramebuffer()
	defer n.ctx.bindFramebuffer(prev)

	if n.fxTarget == nil || n.fxTarget.Size() != n.imgSize {
		n.destroyFXTarget()
		t, err := NewRenderTarget(n.ctx, TargetConfig{Size: n.imgSize, Format: bitmap.FormatRGBAPremul, Samples: 1})
		if err != nil {
			return err
		}
		n.fxTarget = t
		if err := n.effect.SetSize(n.imgSize); err != nil {
			return err
		}
	}
	n.fxTarget.Clear(driver.Color{})

	if n.fxVA == nil {
		va, err := NewVertexArray(n.ctx)
		if err != nil {
			return err
		}
		n.fxVA = va
	}
	size := mgl32.Vec2{float32(n.imgSize.X), float32(n.imgSize.Y)}
	key := vaKey{dest: size, extent: n.extent(), rect: UnitRect, gen: n.geomGen}
	if key != n.fxKey || n.fxVA.NumVertices() == 0 {
		n.fillVertices(n.fxVA, n.origGrid, size, key.extent, UnitRect)
		n.fxKey = key
	}

	n.ctx.SetBlendMode(BlendModeBlend, n.format.IsPremultiplied())
	if err := n.setupStandard(n.tex, n.format.IsPremultiplied(), Ortho(n.imgSize),
		mgl32.Vec4{1, 1, 1, 1}, true); err != nil {
		return err
	}
	if err := n.fxVA.Draw(); err != nil {
		return fmt.Errorf("compose: draw effect source: %w", err)
	}
	if err := n.fxTarget.Resolve(); err != nil {
		return err
	}
	if err := n.effect.Apply(n.fxTarget.Texture(0)); err != nil {
		return fmt.Errorf("compose: apply effect: %w", err)
	}
	n.effect.ResetDirty()
	n.fxState = stateClean
	return nil
}

// setupStandard binds tex and the mask and activates the standard
// program. adjust enables the color adjustment and mask of the node.
func (n *RasterNode) setupStandard(tex driver.Texture, premultiplied bool, xform mgl32.Mat4, c mgl32.Vec4, adjust bool) error {
	sp, err := n.ctx.StandardProgram()
	if err != nil {
		return err
	}
	drv := n.ctx.drv
	n.ctx.EnableTexture(true)
	drv.BindTexture(TextureUnitColor, tex)

	if n.format == bitmap.FormatI8 && tex == n.tex {
		sp.SetColorModel(ColorModelIntensity)
	} else {
		sp.SetColorModel(ColorModelRGBA)
	}
	sp.SetColor(c)
	sp.SetPremultipliedAlpha(premultiplied)
	sp.SetTransform(xform)
	sp.DisableColorspaceMatrix()
	sp.SetGamma(mgl32.Vec4{1, 1, 1, 1})
	sp.SetMask(false, mgl32.Vec2{}, mgl32.Vec2{})

	if adjust {
		if m, ok := n.colorMatrix(); ok {
			sp.SetColorspaceMatrix(m)
		}
		g := n.gamma
		sp.SetGamma(mgl32.Vec4{1 / g[0], 1 / g[1], 1 / g[2], 1})
		if n.mask != nil {
			mtex, err := n.ctx.masks.texture(n.mask)
			if err != nil {
				return err
			}
			drv.BindTexture(TextureUnitMask, mtex)
			ext := n.extent()
			if tex != n.tex {
				ext = mgl32.Vec2{1, 1}
			}
			size := n.maskSize
			if size == (mgl32.Vec2{}) {
				size = mgl32.Vec2{1, 1}
			}
			sp.SetMask(true,
				mgl32.Vec2{n.maskPos[0] * ext[0], n.maskPos[1] * ext[1]},
				mgl32.Vec2{size[0] * ext[0], size[1] * ext[1]})
		}
	}
	sp.Activate()
	return nil
}

// colorMatrix returns the intensity and contrast transform, or false when
// both are neutral.
func (n *RasterNode) colorMatrix() (mgl32.Mat4, bool) {
	one := mgl32.Vec3{1, 1, 1}
	if n.intensity == one && n.contrast == one {
		return mgl32.Mat4{}, false
	}
	m := mgl32.Ident4()
	for i := range 3 {
		c, k := n.contrast[i], n.intensity[i]
		m.Set(i, i, c*k)
		m.Set(i, 3, 0.5*(1-c)*k)
	}
	return m, true
}

// fillVertices rebuilds va from grid: four vertices per tile, corners
// top-left, top-right, bottom-right, bottom-left. extent is the texture
// area covered by the image.
func (n *RasterNode) fillVertices(va *VertexArray, grid VertexGrid, dest, extent mgl32.Vec2, rect Rect) {
	va.Reset()
	white := [4]uint8{255, 255, 255, 255}
	rs := rect.Size()
	pos := func(p mgl32.Vec2) mgl32.Vec2 {
		return mgl32.Vec2{
			(rect.Min[0] + p[0]*rs[0]) * dest[0],
			(rect.Min[1] + p[1]*rs[1]) * dest[1],
		}
	}
	tc := n.texCoords
	if extent != n.extent() {
		tc = texCoords(n.origGrid, extent)
	}
	for y := 0; y+1 < len(grid); y++ {
		for x := 0; x+1 < len(grid[y]); x++ {
			v := uint32(va.NumVertices())
			va.AppendVertex(pos(grid[y][x]), tc[y][x], white)
			va.AppendVertex(pos(grid[y][x+1]), tc[y][x+1], white)
			va.AppendVertex(pos(grid[y+1][x+1]), tc[y+1][x+1], white)
			va.AppendVertex(pos(grid[y+1][x]), tc[y+1][x], white)
			va.AppendQuadIndexes(v+1, v, v+2, v+3)
		}
	}
}

// Draw renders the surface, or the effect result when an effect is
// attached, into the bound framebuffer.
func (n *RasterNode) Draw(p DrawParams) error {
	if n.tex == 0 {
		return fmt.Errorf("compose: draw without surface: %w", ErrNotReady)
	}
	if !n.bound {
		if err := n.Bind(); err != nil {
			return err
		}
	}
	n.ensureTexCoords()

	tex, premultiplied := n.tex, n.format.IsPremultiplied()
	extent, rect := n.extent(), UnitRect
	if n.effect != nil {
		if err := n.ApplyEffect(false); err != nil {
			return err
		}
		tex, premultiplied = n.effect.Texture(), true
		extent, rect = mgl32.Vec2{1, 1}, n.effect.RelDestRect()
	}

	if n.va == nil {
		va, err := NewVertexArray(n.ctx)
		if err != nil {
			return err
		}
		n.va = va
	}
	key := vaKey{dest: p.DestSize, extent: extent, rect: rect, gen: n.geomGen}
	if key != n.vaKey || n.va.NumVertices() == 0 {
		n.fillVertices(n.va, n.warpedGrid, p.DestSize, extent, rect)
		n.vaKey = key
	}

	n.ctx.SetBlendMode(n.blend, premultiplied)
	c := p.Tint.Vec4(clampUnit(p.Opacity))
	if err := n.setupStandard(tex, premultiplied, p.Transform, c, n.effect == nil); err != nil {
		return err
	}
	if err := n.va.Draw(); err != nil {
		return fmt.Errorf("compose: draw surface: %w", err)
	}
	return nil
}

func clampUnit(v float32) float32 {
	return float32(math.Min(math.Max(float64(v), 0), 1))
}

// VertexArray returns the geometry of the last Draw.
func (n *RasterNode) VertexArray() *VertexArray { return n.va }

// Destroy releases the surface texture, vertex buffers, effect target and
// detaches the effect.
func (n *RasterNode) Destroy() {
	if n.effect != nil {
		n.effect.Disconnect()
		n.effect = nil
	}
	n.destroyFXTarget()
	if n.va != nil {
		n.va.Destroy()
		n.va = nil
	}
	if n.fxVA != nil {
		n.fxVA.Destroy()
		n.fxVA = nil
	}
	if n.tex != 0 {
		n.ctx.drv.DeleteTexture(n.tex)
		n.tex = 0
	}
	n.bound = false
}
