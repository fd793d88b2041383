package compose

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

// TargetConfig describes a render target.
type TargetConfig struct {
	Size   image.Point
	Format bitmap.Format

	// Attachments is the number of color textures; zero means one.
	Attachments int

	// Samples is the multisample count. Zero selects Config.Samples for
	// single-attachment targets and one otherwise; one disables
	// multisampling. Multisampled targets have exactly one attachment.
	Samples int

	// DepthStencil adds a packed depth/stencil buffer.
	DepthStencil bool

	// Mipmaps allocates mip levels that Resolve regenerates.
	Mipmaps bool
}

type readback int

const (
	readbackIdle readback = iota
	readbackStaged
	readbackDirect
)

// RenderTarget is an off-screen draw destination with one or more color
// attachments. Its framebuffer id comes from the context pool and goes
// back there on Destroy.
type RenderTarget struct {
	ctx *RenderContext
	cfg TargetConfig

	fb       driver.Framebuffer
	textures []driver.Texture

	// Multisampled targets render into color and resolve into resolveFB,
	// whose texture is textures[0].
	color     driver.Renderbuffer
	resolveFB driver.Framebuffer

	depthStencil driver.Renderbuffer

	staging    driver.Buffer
	hasStaging bool
	state      readback
	direct     *bitmap.Bitmap

	destroyed bool
}

// NewRenderTarget allocates and attaches the target storage.
// It panics with *IncompleteTargetError if the driver rejects the
// resulting attachment set.
func NewRenderTarget(ctx *RenderContext, cfg TargetConfig) (*RenderTarget, error) {
	if cfg.Attachments == 0 {
		cfg.Attachments = 1
	}
	if cfg.Samples == 0 {
		cfg.Samples = 1
		if cfg.Attachments == 1 && ctx.cfg.Samples > 1 {
			cfg.Samples = ctx.cfg.Samples
		}
	}
	if err := ctx.checkTarget(cfg); err != nil {
		return nil, err
	}

	t := &RenderTarget{ctx: ctx, cfg: cfg}
	if err := t.allocate(); err != nil {
		t.Destroy()
		return nil, err
	}
	Logger().Debug("compose: render target created",
		slog.Int("fb", int(t.fb)),
		slog.String("size", cfg.Size.String()),
		slog.Int("samples", cfg.Samples))
	return t, nil
}

func (c *RenderContext) checkTarget(cfg TargetConfig) error {
	switch {
	case cfg.Size.X <= 0 || cfg.Size.Y <= 0:
		return fmt.Errorf("compose: render target size %v: %w", cfg.Size, ErrOutOfRange)
	case cfg.Size.X > c.MaxTextureSize() || cfg.Size.Y > c.MaxTextureSize():
		return fmt.Errorf("compose: render target size %v exceeds %d: %w", cfg.Size, c.MaxTextureSize(), ErrOutOfRange)
	case !cfg.Format.IsValid():
		return fmt.Errorf("compose: render target format %v: %w", cfg.Format, ErrOutOfRange)
	case cfg.Attachments < 1 || cfg.Samples < 1:
		return fmt.Errorf("compose: %d attachments, %d samples: %w", cfg.Attachments, cfg.Samples, ErrOutOfRange)
	case cfg.Samples > 1 && cfg.Attachments > 1:
		return fmt.Errorf("compose: multisampled target with %d attachments: %w", cfg.Attachments, ErrOutOfRange)
	case cfg.Samples > 1 && !c.MultisampleSupported():
		return fmt.Errorf("compose: multisampling: %w", ErrUnsupported)
	case cfg.Samples > c.MaxSamples():
		return fmt.Errorf("compose: %d samples, maximum %d: %w", cfg.Samples, c.MaxSamples(), ErrUnsupported)
	case cfg.DepthStencil && !c.PackedDepthStencilSupported():
		return fmt.Errorf("compose: packed depth/stencil: %w", ErrUnsupported)
	case cfg.Mipmaps && !c.Caps().Mipmaps:
		return fmt.Errorf("compose: mipmapped target: %w", ErrUnsupported)
	}
	return nil
}

func (t *RenderTarget) allocate() error {
	drv := t.ctx.drv
	cfg := t.cfg
	var err error

	if t.fb, err = t.ctx.AcquireRenderTargetID(); err != nil {
		return fmt.Errorf("compose: render target id: %w", err)
	}
	desc := driver.TextureDesc{Label: "render target", Size: cfg.Size, Format: cfg.Format, Mipmaps: cfg.Mipmaps}

	if cfg.Samples == 1 {
		for i := range cfg.Attachments {
			tex, err := drv.NewTexture(desc)
			if err != nil {
				return fmt.Errorf("compose: render target texture: %w", err)
			}
			t.textures = append(t.textures, tex)
			drv.AttachTexture(t.fb, i, tex)
		}
	} else {
		if t.color, err = drv.NewRenderbuffer(driver.RenderbufferDesc{
			Kind: driver.RenderbufferColor, Size: cfg.Size, Format: cfg.Format, Samples: cfg.Samples,
		}); err != nil {
			return fmt.Errorf("compose: multisample buffer: %w", err)
		}
		drv.AttachRenderbuffer(t.fb, driver.AttachmentColor0, t.color)

		if t.resolveFB, err = t.ctx.AcquireRenderTargetID(); err != nil {
			return fmt.Errorf("compose: resolve target id: %w", err)
		}
		tex, err := drv.NewTexture(desc)
		if err != nil {
			return fmt.Errorf("compose: resolve texture: %w", err)
		}
		t.textures = append(t.textures, tex)
		drv.AttachTexture(t.resolveFB, 0, tex)
		t.checkComplete(t.resolveFB)
	}

	if cfg.DepthStencil {
		if t.depthStencil, err = drv.NewRenderbuffer(driver.RenderbufferDesc{
			Kind: driver.RenderbufferDepthStencil, Size: cfg.Size, Samples: cfg.Samples,
		}); err != nil {
			return fmt.Errorf("compose: depth/stencil buffer: %w", err)
		}
		drv.AttachRenderbuffer(t.fb, driver.AttachmentDepthStencil, t.depthStencil)
	}
	t.checkComplete(t.fb)
	return nil
}

func (t *RenderTarget) checkComplete(fb driver.Framebuffer) {
	if st := t.ctx.drv.Status(fb); st != driver.StatusComplete {
		panic(&IncompleteTargetError{Status: st, Size: t.cfg.Size.String()})
	}
}

// Size returns the target size.
func (t *RenderTarget) Size() image.Point { return t.cfg.Size }

// Config returns the normalized configuration.
func (t *RenderTarget) Config() TargetConfig { return t.cfg }

// Framebuffer returns the draw framebuffer id.
func (t *RenderTarget) Framebuffer() driver.Framebuffer { return t.fb }

// Multisampled reports whether the target renders with several samples.
func (t *RenderTarget) Multisampled() bool { return t.cfg.Samples > 1 }

// Activate binds the target as the draw destination.
func (t *RenderTarget) Activate() { t.ctx.bindFramebuffer(t.fb) }

// Clear activates the target and clears every color attachment.
func (t *RenderTarget) Clear(c driver.Color) {
	t.Activate()
	t.ctx.drv.Clear(c)
}

// Texture returns color attachment i. For multisampled targets it is the
// resolve texture, valid after Resolve.
func (t *RenderTarget) Texture(i int) driver.Texture {
	if i < 0 || i >= len(t.textures) {
		return 0
	}
	return t.textures[i]
}

// Resolve makes rendered content readable as textures: multisampled
// content is blitted into the resolve texture and mip levels are
// regenerated. It does nothing for plain targets.
func (t *RenderTarget) Resolve() error {
	drv := t.ctx.drv
	if t.Multisampled() {
		if err := drv.Blit(t.fb, t.resolveFB, t.cfg.Size); err != nil {
			return fmt.Errorf("compose: resolve: %w", err)
		}
	}
	if t.cfg.Mipmaps {
		for _, tex := range t.textures {
			if err := drv.GenerateMipmaps(tex); err != nil {
				return fmt.Errorf("compose: mipmaps: %w", err)
			}
		}
	}
	return nil
}

// readSource returns the framebuffer holding readable pixels of slot i.
func (t *RenderTarget) readSource(i int) (driver.Framebuffer, int, error) {
	if i < 0 || i >= len(t.textures) {
		return 0, 0, fmt.Errorf("compose: attachment %d of %d: %w", i, len(t.textures), ErrOutOfRange)
	}
	if t.Multisampled() {
		if err := t.Resolve(); err != nil {
			return 0, 0, err
		}
		return t.resolveFB, 0, nil
	}
	return t.fb, i, nil
}

// CopyToStagingBuffer starts reading attachment i back without waiting
// for it. MaterializeFromStagingBuffer completes the read.
func (t *RenderTarget) CopyToStagingBuffer(i int) error {
	fb, slot, err := t.readSource(i)
	if err != nil {
		return err
	}
	drv := t.ctx.drv
	if t.ctx.MemoryMode() == MemoryModeDirectReadback {
		bmp, err := bitmap.New(t.cfg.Size, bitmap.FormatRGBA8)
		if err != nil {
			return err
		}
		if err := drv.ReadPixels(fb, slot, bmp); err != nil {
			return fmt.Errorf("compose: read pixels: %w", err)
		}
		t.direct, t.state = bmp, readbackDirect
		return nil
	}
	if !t.hasStaging {
		if t.staging, err = t.ctx.AcquireStagingBuffer(); err != nil {
			return fmt.Errorf("compose: staging buffer: %w", err)
		}
		t.hasStaging = true
	}
	if err := drv.CopyToBuffer(fb, slot, t.staging); err != nil {
		return fmt.Errorf("compose: copy to staging buffer: %w", err)
	}
	t.state = readbackStaged
	return nil
}

// MaterializeFromStagingBuffer waits for the last copy and returns its
// pixels in the target format. It returns ErrNotReady when no copy was
// issued.
func (t *RenderTarget) MaterializeFromStagingBuffer() (*bitmap.Bitmap, error) {
	var rgba *bitmap.Bitmap
	switch t.state {
	case readbackDirect:
		rgba = t.direct
		t.direct = nil
	case readbackStaged:
		drv := t.ctx.drv
		data, err := drv.MapBuffer(t.staging)
		if err != nil {
			return nil, fmt.Errorf("compose: map staging buffer: %w", err)
		}
		rgba, err = bitmap.New(t.cfg.Size, bitmap.FormatRGBA8)
		if err == nil {
			if len(data) < len(rgba.Pix()) {
				err = fmt.Errorf("compose: staging buffer holds %d bytes, want %d", len(data), len(rgba.Pix()))
			} else {
				copy(rgba.Pix(), data)
			}
		}
		if uerr := drv.UnmapBuffer(t.staging); err == nil && uerr != nil {
			err = fmt.Errorf("compose: unmap staging buffer: %w", uerr)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("compose: no pixels copied: %w", ErrNotReady)
	}
	t.state = readbackIdle

	if t.cfg.Format == bitmap.FormatRGBA8 {
		return rgba, nil
	}
	out, err := bitmap.New(t.cfg.Size, t.cfg.Format)
	if err != nil {
		return nil, err
	}
	rgba.CopyInto(out)
	return out, nil
}

// ReadPixels copies attachment i and materializes it.
func (t *RenderTarget) ReadPixels(i int) (*bitmap.Bitmap, error) {
	if err := t.CopyToStagingBuffer(i); err != nil {
		return nil, err
	}
	return t.MaterializeFromStagingBuffer()
}

// Destroy detaches the storage, deletes textures and renderbuffers, and
// returns the framebuffer ids and staging buffer to the context pools.
func (t *RenderTarget) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	drv := t.ctx.drv
	if t.ctx.bound == t.fb || (t.resolveFB != 0 && t.ctx.bound == t.resolveFB) {
		t.ctx.bound = 0
	}
	if t.fb != 0 {
		drv.DetachAll(t.fb)
		t.ctx.ReleaseRenderTargetID(t.fb)
	}
	if t.resolveFB != 0 {
		drv.DetachAll(t.resolveFB)
		t.ctx.ReleaseRenderTargetID(t.resolveFB)
	}
	for _, tex := range t.textures {
		drv.DeleteTexture(tex)
	}
	t.textures = nil
	if t.color != 0 {
		drv.DeleteRenderbuffer(t.color)
	}
	if t.depthStencil != 0 {
		drv.DeleteRenderbuffer(t.depthStencil)
	}
	if t.hasStaging {
		t.ctx.ReleaseStagingBuffer(t.staging)
		t.hasStaging = false
	}
}
