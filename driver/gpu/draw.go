//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose/driver"
)

// bindGroup uploads the uniform block of p and binds it with the sampler
// and the textures of the units p samples. Units without a texture sample
// white. The group and its buffer are freed after the next sync.
func (d *Driver) bindGroup(p *program, values map[string]driver.Uniform, flags driver.DrawFlags, units map[int]*texture) (hal.BindGroup, error) {
	data := p.layout.pack(values, flags)
	if len(data) == 0 {
		data = make([]byte, 16)
	}
	ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.label + "_uniforms",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: uniform buffer: %w", err)
	}
	d.queue.WriteBuffer(ub, 0, data)

	entries := []gputypes.BindGroupEntry{
		{Binding: uniformBinding, Resource: gputypes.BufferBinding{
			Buffer: ub.NativeHandle(), Offset: 0, Size: uint64(len(data)),
		}},
		{Binding: samplerBinding, Resource: gputypes.SamplerBinding{Sampler: d.sampler.NativeHandle()}},
	}
	for _, unit := range p.layout.units {
		t := units[unit]
		if t == nil {
			if t, err = d.whiteTexture(); err != nil {
				d.device.DestroyBuffer(ub)
				return nil, err
			}
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(textureBinding + unit), //nolint:gosec // unit < maxUnits
			Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
		})
	}
	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_bind",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		d.device.DestroyBuffer(ub)
		return nil, fmt.Errorf("gpu: bind group: %w", err)
	}
	d.deferFree(func() {
		d.device.DestroyBindGroup(group)
		d.device.DestroyBuffer(ub)
	})
	return group, nil
}

// DrawIndexed implements driver.Driver. Every draw is one render pass that
// loads and stores the bound framebuffer.
func (d *Driver) DrawIndexed(vertices, indices driver.Buffer, count int) error {
	p, ok := d.programs[d.current]
	if !ok {
		return fmt.Errorf("gpu: draw without a program: %w", driver.ErrUnknownHandle)
	}
	vb, ok := d.buffers[vertices]
	if !ok || vb.buf == nil {
		return fmt.Errorf("gpu: vertex buffer %d: %w", vertices, driver.ErrUnknownHandle)
	}
	ib, ok := d.buffers[indices]
	if !ok || ib.buf == nil {
		return fmt.Errorf("gpu: index buffer %d: %w", indices, driver.ErrUnknownHandle)
	}
	if count <= 0 {
		return nil
	}
	t, err := d.target(d.bound)
	if err != nil {
		return fmt.Errorf("gpu: draw: %w", err)
	}
	pl, err := p.pipeline(d.device, t.key(d.blend))
	if err != nil {
		return err
	}

	units := make(map[int]*texture, len(p.layout.units))
	for _, u := range p.layout.units {
		if tex, ok := d.textures[d.units[u]]; ok {
			units[u] = tex
		}
	}
	group, err := d.bindGroup(p, p.uniforms, d.flags, units)
	if err != nil {
		return err
	}

	enc, err := d.encoder("compose_draw")
	if err != nil {
		return err
	}
	rp := enc.BeginRenderPass(t.pass("compose_draw", nil))
	rp.SetPipeline(pl)
	rp.SetBindGroup(0, group, nil)
	rp.SetVertexBuffer(0, vb.buf, 0)
	rp.SetIndexBuffer(ib.buf, gputypes.IndexFormatUint32, 0)
	rp.DrawIndexed(uint32(count), 1, 0, 0, 0) //nolint:gosec // count > 0
	rp.End()
	return d.submit(enc)
}
