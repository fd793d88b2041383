package compose

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/compose/driver"
)

// MemoryMode selects how render targets read pixels back.
type MemoryMode int

const (
	// MemoryModeStagingBuffer copies into a mappable buffer first and
	// blocks only when the copy is materialized.
	MemoryModeStagingBuffer MemoryMode = iota
	// MemoryModeDirectReadback reads pixels synchronously.
	MemoryModeDirectReadback
)

// String returns the string representation of MemoryMode.
func (m MemoryMode) String() string {
	switch m {
	case MemoryModeStagingBuffer:
		return "StagingBuffer"
	case MemoryModeDirectReadback:
		return "DirectReadback"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// RenderContext owns one driver and the state shared by everything drawn
// through it: id pools, blend state, cached capabilities and programs.
//
// A RenderContext is used from a single render thread; see Activate.
type RenderContext struct {
	drv   driver.Driver
	owned bool
	cfg   Config

	thread *Thread

	caps      driver.Caps
	capsKnown bool

	blendKnown    bool
	blend         BlendMode
	premultiplied bool
	blendWarned   map[BlendMode]bool

	flagsKnown bool
	flags      driver.DrawFlags

	bound driver.Framebuffer

	targets        *idPool[driver.Framebuffer]
	vertexBuffers  *idPool[driver.Buffer]
	stagingBuffers *idPool[driver.Buffer]

	programs *ProgramRegistry
	standard *StandardProgram
	masks    *maskCache

	destroyed bool
}

// NewRenderContext wraps an externally created driver. The driver is not
// released by Destroy.
func NewRenderContext(drv driver.Driver, opts ...ContextOption) (*RenderContext, error) {
	return newRenderContext(drv, false, opts)
}

// NewRenderContextByName opens a registered driver ("soft", "gpu") and
// owns it.
func NewRenderContextByName(name string, opts ...ContextOption) (*RenderContext, error) {
	drv, err := driver.Open(name)
	if err != nil {
		return nil, fmt.Errorf("compose: open driver: %w", err)
	}
	ctx, err := newRenderContext(drv, true, opts)
	if err != nil {
		drv.Release()
		return nil, err
	}
	return ctx, nil
}

func newRenderContext(drv driver.Driver, owned bool, opts []ContextOption) (*RenderContext, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	c := &RenderContext{
		drv:         drv,
		owned:       owned,
		cfg:         o.config,
		blendWarned: make(map[BlendMode]bool),
		flags:       driver.DrawTextured | driver.DrawVertexColors,
	}
	caps := c.Caps()
	if s := c.cfg.Samples; s > 1 {
		if !caps.Multisample() {
			return nil, fmt.Errorf("compose: %d samples requested, device has no multisampling: %w", s, ErrUnsupported)
		}
		if s > caps.MaxSamples {
			return nil, fmt.Errorf("compose: %d samples requested, device maximum is %d: %w", s, caps.MaxSamples, ErrUnsupported)
		}
	}
	if c.cfg.MemoryMode == "staging" && !caps.StagingBuffers {
		return nil, fmt.Errorf("compose: staging buffer readback: %w", ErrUnsupported)
	}

	c.targets = newIDPool("render targets", drv.NewFramebuffer, drv.DeleteFramebuffer)
	c.vertexBuffers = newIDPool("vertex buffers",
		func() (driver.Buffer, error) { return drv.NewBuffer(driver.BufferGeometry) }, drv.DeleteBuffer)
	c.stagingBuffers = newIDPool("staging buffers",
		func() (driver.Buffer, error) { return drv.NewBuffer(driver.BufferStaging) }, drv.DeleteBuffer)

	lib, err := shaderLibrary(o)
	if err != nil {
		return nil, err
	}
	c.programs = NewProgramRegistry(c, lib)
	c.masks, err = newMaskCache(c, c.cfg.MaskCacheSize)
	if err != nil {
		return nil, err
	}

	track(c)
	Logger().Info("compose: render context created",
		slog.String("driver", drv.Name()),
		slog.String("device", caps.Device))
	return c, nil
}

// Driver returns the wrapped driver.
func (c *RenderContext) Driver() driver.Driver { return c.drv }

// Config returns the configuration the context was created with.
func (c *RenderContext) Config() Config { return c.cfg }

// Activate makes c current on th. A driver that cannot be made current
// panics: every later call would go to the wrong context.
func (c *RenderContext) Activate(th *Thread) {
	if th.closed {
		panic("compose: activate on closed thread")
	}
	if err := c.drv.MakeCurrent(); err != nil {
		panic(fmt.Sprintf("compose: activate %s context: %v", c.drv.Name(), err))
	}
	if prev := th.current; prev != nil && prev != c {
		prev.thread = nil
	}
	if c.thread != nil && c.thread != th {
		c.thread.release(c)
	}
	th.current = c
	c.thread = th
}

// IsCurrent reports whether c is current on some thread.
func (c *RenderContext) IsCurrent() bool {
	return c.thread != nil && c.thread.current == c
}

// Destroy deletes every pooled id, cached program and mask texture, and
// clears the thread's current pointer if c was current. Objects still held
// by live render targets are the caller's to destroy first.
func (c *RenderContext) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.standard != nil {
		c.standard.release()
		c.standard = nil
	}
	c.masks.purge()
	c.programs.clear()
	c.targets.drain()
	c.vertexBuffers.drain()
	c.stagingBuffers.drain()
	if c.thread != nil {
		c.thread.release(c)
		c.thread = nil
	}
	untrack(c)
	if c.owned {
		c.drv.Release()
	}
	Logger().Debug("compose: render context destroyed", slog.String("driver", c.drv.Name()))
}

// AcquireRenderTargetID returns a recycled framebuffer id, or a new one.
func (c *RenderContext) AcquireRenderTargetID() (driver.Framebuffer, error) {
	return c.targets.acquire()
}

// ReleaseRenderTargetID returns id to the pool. The caller must have
// detached its attachments.
func (c *RenderContext) ReleaseRenderTargetID(id driver.Framebuffer) {
	c.targets.put(id)
}

// AcquireVertexBuffer returns a recycled geometry buffer, or a new one.
func (c *RenderContext) AcquireVertexBuffer() (driver.Buffer, error) {
	return c.vertexBuffers.acquire()
}

// ReleaseVertexBuffer returns b to the pool.
func (c *RenderContext) ReleaseVertexBuffer(b driver.Buffer) {
	c.vertexBuffers.put(b)
}

// AcquireStagingBuffer returns a recycled staging buffer, or a new one.
func (c *RenderContext) AcquireStagingBuffer() (driver.Buffer, error) {
	return c.stagingBuffers.acquire()
}

// ReleaseStagingBuffer returns b to the pool.
func (c *RenderContext) ReleaseStagingBuffer(b driver.Buffer) {
	c.stagingBuffers.put(b)
}

// SetBlendMode configures blending. Re-issuing the current mode and
// premultiplied pair does nothing. Min and Max on devices without those
// equations log a warning once and fall back to Blend.
func (c *RenderContext) SetBlendMode(mode BlendMode, premultiplied bool) {
	if (mode == BlendModeMin || mode == BlendModeMax) && !c.Caps().BlendMinMax {
		if !c.blendWarned[mode] {
			c.blendWarned[mode] = true
			Logger().Warn("compose: blend mode not supported, using blend",
				slog.String("mode", mode.String()),
				slog.String("driver", c.drv.Name()))
		}
		mode = BlendModeBlend
	}
	if c.blendKnown && c.blend == mode && c.premultiplied == premultiplied {
		return
	}
	c.drv.SetBlend(blendStateFor(mode, premultiplied))
	c.blend, c.premultiplied, c.blendKnown = mode, premultiplied, true
}

// BlendMode returns the mode last configured and its premultiplied flag.
func (c *RenderContext) BlendMode() (BlendMode, bool) { return c.blend, c.premultiplied }

// EnableTexture toggles texture sampling for subsequent draws.
func (c *RenderContext) EnableTexture(on bool) { c.setFlag(driver.DrawTextured, on) }

// EnableVertexColors toggles per-vertex colors for subsequent draws.
func (c *RenderContext) EnableVertexColors(on bool) { c.setFlag(driver.DrawVertexColors, on) }

func (c *RenderContext) setFlag(f driver.DrawFlags, on bool) {
	next := c.flags &^ f
	if on {
		next |= f
	}
	if c.flagsKnown && next == c.flags {
		return
	}
	c.drv.SetDrawFlags(next)
	c.flags, c.flagsKnown = next, true
}

func (c *RenderContext) bindFramebuffer(fb driver.Framebuffer) {
	c.drv.BindFramebuffer(fb)
	c.bound = fb
}

// BoundFramebuffer returns the framebuffer draws currently go to.
func (c *RenderContext) BoundFramebuffer() driver.Framebuffer { return c.bound }

// Caps returns the device capabilities, querying the driver once.
func (c *RenderContext) Caps() driver.Caps {
	if !c.capsKnown {
		c.caps = c.drv.Caps()
		c.capsKnown = true
	}
	return c.caps
}

// MaxTextureSize returns the largest texture side in pixels.
func (c *RenderContext) MaxTextureSize() int { return c.Caps().MaxTextureSize }

// MultisampleSupported reports whether render targets may use more than
// one sample.
func (c *RenderContext) MultisampleSupported() bool { return c.Caps().Multisample() }

// MaxSamples returns the largest sample count.
func (c *RenderContext) MaxSamples() int { return c.Caps().MaxSamples }

// PackedDepthStencilSupported reports combined depth/stencil support.
func (c *RenderContext) PackedDepthStencilSupported() bool { return c.Caps().PackedDepthStencil }

// MemoryMode returns the readback strategy of render targets.
func (c *RenderContext) MemoryMode() MemoryMode {
	switch c.cfg.MemoryMode {
	case "direct":
		return MemoryModeDirectReadback
	case "staging":
		return MemoryModeStagingBuffer
	}
	if c.Caps().StagingBuffers {
		return MemoryModeStagingBuffer
	}
	return MemoryModeDirectReadback
}

// UseMinimalProgram reports whether plain draws may use the reduced
// program.
func (c *RenderContext) UseMinimalProgram() bool {
	switch c.cfg.MinimalProgram {
	case "on":
		return true
	case "off":
		return false
	}
	return !c.Caps().FullShading
}

// Programs returns the context's program registry.
func (c *RenderContext) Programs() *ProgramRegistry { return c.programs }

// StandardProgram returns the context's standard program, compiling it on
// first use.
func (c *RenderContext) StandardProgram() (*StandardProgram, error) {
	if c.standard == nil {
		sp, err := newStandardProgram(c)
		if err != nil {
			return nil, err
		}
		c.standard = sp
	}
	return c.standard, nil
}

// LogConfig logs the driver and its capabilities at Info level.
func (c *RenderContext) LogConfig() {
	caps := c.Caps()
	Logger().Info("compose: context configuration",
		slog.String("driver", c.drv.Name()),
		slog.String("device", caps.Device),
		slog.Int("max_texture_size", caps.MaxTextureSize),
		slog.Int("max_samples", caps.MaxSamples),
		slog.Bool("packed_depth_stencil", caps.PackedDepthStencil),
		slog.Bool("blend_min_max", caps.BlendMinMax),
		slog.Bool("mipmaps", caps.Mipmaps),
		slog.String("memory_mode", c.MemoryMode().String()),
		slog.Bool("minimal_program", c.UseMinimalProgram()))
}
