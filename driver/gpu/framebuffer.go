//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"
	"image"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose/driver"
)

//go:embed shaders/blit.wgsl
var blitSource string

type attachment struct {
	tex driver.Texture
	rb  driver.Renderbuffer
}

type framebuffer struct {
	colors       map[int]attachment
	depthStencil driver.Renderbuffer
}

// NewFramebuffer implements driver.Driver. Framebuffers are bookkeeping
// only; render passes are built from their attachments at draw time.
func (d *Driver) NewFramebuffer() (driver.Framebuffer, error) {
	id := driver.Framebuffer(d.id())
	d.framebuffers[id] = &framebuffer{colors: make(map[int]attachment)}
	return id, nil
}

// DeleteFramebuffer implements driver.Driver.
func (d *Driver) DeleteFramebuffer(fb driver.Framebuffer) {
	delete(d.framebuffers, fb)
	if d.bound == fb {
		d.bound = 0
	}
}

// AttachTexture implements driver.Driver.
func (d *Driver) AttachTexture(fb driver.Framebuffer, slot int, t driver.Texture) {
	if f, ok := d.framebuffers[fb]; ok {
		f.colors[slot] = attachment{tex: t}
	}
}

// AttachRenderbuffer implements driver.Driver.
func (d *Driver) AttachRenderbuffer(fb driver.Framebuffer, point driver.Attachment, rb driver.Renderbuffer) {
	f, ok := d.framebuffers[fb]
	if !ok {
		return
	}
	switch point {
	case driver.AttachmentColor0:
		f.colors[0] = attachment{rb: rb}
	case driver.AttachmentDepthStencil:
		f.depthStencil = rb
	}
}

// DetachAll implements driver.Driver.
func (d *Driver) DetachAll(fb driver.Framebuffer) {
	if f, ok := d.framebuffers[fb]; ok {
		clear(f.colors)
		f.depthStencil = 0
	}
}

func (d *Driver) resolve(a attachment) *texture {
	if a.tex != 0 {
		return d.textures[a.tex]
	}
	return d.renderbuffers[a.rb]
}

// colorTargets returns the color attachments of f in slot order.
func (d *Driver) colorTargets(f *framebuffer) ([]*texture, error) {
	slots := make([]int, 0, len(f.colors))
	for s := range f.colors {
		slots = append(slots, s)
	}
	slices.Sort(slots)
	out := make([]*texture, 0, len(slots))
	for i, s := range slots {
		if s != i || i >= maxColors {
			return nil, fmt.Errorf("gpu: color slots %v: %w", slots, driver.ErrNotSupported)
		}
		t := d.resolve(f.colors[s])
		if t == nil {
			return nil, fmt.Errorf("gpu: color slot %d: %w", s, driver.ErrUnknownHandle)
		}
		out = append(out, t)
	}
	return out, nil
}

// Status implements driver.Driver.
func (d *Driver) Status(fb driver.Framebuffer) driver.FramebufferStatus {
	f, ok := d.framebuffers[fb]
	if !ok || len(f.colors) == 0 {
		return driver.StatusMissingAttachment
	}
	colors, err := d.colorTargets(f)
	if err != nil {
		return driver.StatusIncompleteAttachment
	}
	first := colors[0]
	for _, c := range colors[1:] {
		if c.size != first.size {
			return driver.StatusIncompleteDimensions
		}
		if c.samples != first.samples {
			return driver.StatusIncompleteMultisample
		}
	}
	if f.depthStencil != 0 {
		ds, ok := d.renderbuffers[f.depthStencil]
		switch {
		case !ok || !ds.depth:
			return driver.StatusIncompleteAttachment
		case ds.size != first.size:
			return driver.StatusIncompleteDimensions
		case ds.samples != first.samples:
			return driver.StatusIncompleteMultisample
		}
	}
	return driver.StatusComplete
}

// BindFramebuffer implements driver.Driver.
func (d *Driver) BindFramebuffer(fb driver.Framebuffer) { d.bound = fb }

// passTarget is the resolved attachment set of a framebuffer.
type passTarget struct {
	colors []*texture
	depth  *texture
}

func (d *Driver) target(fb driver.Framebuffer) (passTarget, error) {
	f, ok := d.framebuffers[fb]
	if !ok {
		return passTarget{}, fmt.Errorf("gpu: framebuffer %d: %w", fb, driver.ErrUnknownHandle)
	}
	colors, err := d.colorTargets(f)
	if err != nil {
		return passTarget{}, err
	}
	if len(colors) == 0 {
		return passTarget{}, fmt.Errorf("gpu: framebuffer %d has no color attachment: %w", fb, driver.ErrUnknownHandle)
	}
	t := passTarget{colors: colors}
	if f.depthStencil != 0 {
		t.depth = d.renderbuffers[f.depthStencil]
	}
	return t, nil
}

func (t passTarget) key(blend driver.BlendState) pipelineKey {
	k := pipelineKey{blend: blend, ncolors: len(t.colors), samples: t.colors[0].samples, depth: t.depth != nil}
	for i, c := range t.colors {
		k.colors[i] = c.gpuFmt
	}
	return k
}

// pass describes a render pass over t, clearing to c when c is non-nil.
func (t passTarget) pass(label string, c *driver.Color) *hal.RenderPassDescriptor {
	load := gputypes.LoadOpLoad
	var clearValue gputypes.Color
	if c != nil {
		load = gputypes.LoadOpClear
		clearValue = gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)}
	}
	desc := &hal.RenderPassDescriptor{Label: label}
	for _, col := range t.colors {
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       col.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearValue,
		})
	}
	if t.depth != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              t.depth.view,
			DepthLoadOp:       load,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     load,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		}
	}
	return desc
}

// Clear implements driver.Driver.
func (d *Driver) Clear(c driver.Color) {
	t, err := d.target(d.bound)
	if err != nil {
		d.log.Warn("gpu: clear without a complete framebuffer")
		return
	}
	enc, err := d.encoder("compose_clear")
	if err != nil {
		d.log.Error("gpu: clear", slog.String("error", err.Error()))
		return
	}
	rp := enc.BeginRenderPass(t.pass("compose_clear", &c))
	rp.End()
	if err := d.submit(enc); err != nil {
		d.log.Error("gpu: clear", slog.String("error", err.Error()))
	}
}

// Blit implements driver.Driver. A multisampled source of the same size
// is resolved by a render pass; anything else is copied by drawing the
// source texture.
func (d *Driver) Blit(src, dst driver.Framebuffer, size image.Point) error {
	s, err := d.target(src)
	if err != nil {
		return fmt.Errorf("gpu: blit source: %w", err)
	}
	t, err := d.target(dst)
	if err != nil {
		return fmt.Errorf("gpu: blit destination: %w", err)
	}
	from, to := s.colors[0], t.colors[0]
	if to.samples != 1 {
		return fmt.Errorf("gpu: blit into multisampled target: %w", driver.ErrNotSupported)
	}

	enc, err := d.encoder("compose_blit")
	if err != nil {
		return err
	}
	if from.samples > 1 {
		if from.size != to.size || from.gpuFmt != to.gpuFmt {
			enc.DiscardEncoding()
			return fmt.Errorf("gpu: resolve %v into %v: %w", from.size, to.size, driver.ErrNotSupported)
		}
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "compose_resolve",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:          from.view,
				ResolveTarget: to.view,
				LoadOp:        gputypes.LoadOpLoad,
				StoreOp:       gputypes.StoreOpStore,
			}},
		})
		rp.End()
		return d.submit(enc)
	}

	if err := d.blitCopy(enc, from, to, size); err != nil {
		enc.DiscardEncoding()
		return err
	}
	return d.submit(enc)
}

func (d *Driver) blitCopy(enc hal.CommandEncoder, from, to *texture, size image.Point) error {
	if d.blit == nil {
		p, err := d.compile("compose_blit", blitSource)
		if err != nil {
			return err
		}
		p.vertexless = true
		d.blit = p
	}
	one := []*texture{to}
	key := passTarget{colors: one}.key(driver.BlendState{SrcColor: driver.BlendOne, SrcAlpha: driver.BlendOne})
	pl, err := d.blit.pipeline(d.device, key)
	if err != nil {
		return err
	}
	values := map[string]driver.Uniform{
		"srcScale": driver.Vec2(float32(size.X)/float32(from.size.X), float32(size.Y)/float32(from.size.Y)),
		"dstScale": driver.Vec2(float32(size.X)/float32(to.size.X), float32(size.Y)/float32(to.size.Y)),
	}
	group, err := d.bindGroup(d.blit, values, 0, map[int]*texture{0: from})
	if err != nil {
		return err
	}
	rp := enc.BeginRenderPass(passTarget{colors: one}.pass("compose_blit", nil))
	rp.SetPipeline(pl)
	rp.SetBindGroup(0, group, nil)
	rp.Draw(6, 1, 0, 0)
	rp.End()
	return nil
}
