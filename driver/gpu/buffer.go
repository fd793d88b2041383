//go:build !nogpu

package gpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

// copyPitchAlignment is the WebGPU row pitch alignment of texture to
// buffer copies.
const copyPitchAlignment = 256

// rowPitch returns the aligned byte pitch of a copied row.
func rowPitch(width, bpp int) int {
	return alignUp(width*bpp, copyPitchAlignment)
}

// copyLayout describes a pending texture copy held by a staging buffer.
type copyLayout struct {
	size   image.Point
	format bitmap.Format
	pitch  int
}

type buffer struct {
	kind     driver.BufferKind
	buf      hal.Buffer
	capacity uint64
	// data shadows geometry contents and holds mapped staging contents.
	data    []byte
	pending *copyLayout
	mapped  bool
}

// NewBuffer implements driver.Driver. Device memory is allocated on the
// first write or copy.
func (d *Driver) NewBuffer(kind driver.BufferKind) (driver.Buffer, error) {
	id := driver.Buffer(d.id())
	d.buffers[id] = &buffer{kind: kind}
	return id, nil
}

// DeleteBuffer implements driver.Driver.
func (d *Driver) DeleteBuffer(id driver.Buffer) {
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	if b.buf != nil {
		old := b.buf
		d.deferFree(func() { d.device.DestroyBuffer(old) })
	}
}

// reserve makes b hold at least size bytes. Contents are not preserved.
func (d *Driver) reserve(b *buffer, size uint64, label string, usage gputypes.BufferUsage) error {
	if b.buf != nil && b.capacity >= size {
		return nil
	}
	if b.buf != nil {
		old := b.buf
		d.deferFree(func() { d.device.DestroyBuffer(old) })
		b.buf = nil
	}
	capacity := max(b.capacity, 256)
	for capacity < size {
		capacity *= 2
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: capacity, Usage: usage})
	if err != nil {
		return fmt.Errorf("gpu: create %s: %w", label, err)
	}
	b.buf, b.capacity = buf, capacity
	return nil
}

// WriteBuffer implements driver.Driver.
func (d *Driver) WriteBuffer(id driver.Buffer, data []byte) error {
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("gpu: write buffer %d: %w", id, driver.ErrUnknownHandle)
	}
	if b.kind != driver.BufferGeometry {
		return fmt.Errorf("gpu: write into %v buffer: %w", b.kind, driver.ErrNotSupported)
	}
	usage := gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	if err := d.reserve(b, uint64(len(data)), "compose_geometry", usage); err != nil {
		return err
	}
	b.data = append(b.data[:0], data...)
	if len(data) > 0 {
		d.queue.WriteBuffer(b.buf, 0, data)
	}
	return nil
}

// encodeCopy records a copy of t into buf with the returned layout.
func encodeCopy(enc hal.CommandEncoder, t *texture, buf hal.Buffer) copyLayout {
	l := copyLayout{size: t.size, format: t.format, pitch: rowPitch(t.size.X, t.format.BytesPerPixel())}
	w, h := uint32(t.size.X), uint32(t.size.Y) //nolint:gosec // bounded by MaxTextureSize
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	enc.CopyTextureToBuffer(t.tex, buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(l.pitch), RowsPerImage: h}, //nolint:gosec // aligned pitch of a bounded row
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	return l
}

// readable returns color slot of fb as a single-sampled texture.
func (d *Driver) readable(fb driver.Framebuffer, slot int) (*texture, error) {
	t, err := d.target(fb)
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot >= len(t.colors) {
		return nil, fmt.Errorf("gpu: framebuffer %d slot %d: %w", fb, slot, driver.ErrUnknownHandle)
	}
	c := t.colors[slot]
	if c.samples != 1 {
		return nil, fmt.Errorf("gpu: read multisampled attachment: %w", driver.ErrNotSupported)
	}
	return c, nil
}

// CopyToBuffer implements driver.Driver.
func (d *Driver) CopyToBuffer(fb driver.Framebuffer, slot int, id driver.Buffer) error {
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("gpu: copy to buffer %d: %w", id, driver.ErrUnknownHandle)
	}
	src, err := d.readable(fb, slot)
	if err != nil {
		return fmt.Errorf("gpu: copy to buffer: %w", err)
	}
	size := uint64(rowPitch(src.size.X, src.format.BytesPerPixel())) * uint64(src.size.Y) //nolint:gosec // positive sizes
	if err := d.reserve(b, size, "compose_staging", gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	enc, err := d.encoder("compose_copy")
	if err != nil {
		return err
	}
	l := encodeCopy(enc, src, b.buf)
	if err := d.submit(enc); err != nil {
		return err
	}
	b.pending = &l
	return nil
}

// unpack reads a finished copy and converts it to tightly packed RGBA8.
func (d *Driver) unpack(buf hal.Buffer, l copyLayout, dst *bitmap.Bitmap) error {
	raw := make([]byte, l.pitch*l.size.Y)
	if err := d.queue.ReadBuffer(buf, 0, raw); err != nil {
		return fmt.Errorf("gpu: read back: %w", err)
	}
	src, err := bitmap.FromRaw(raw, l.size, l.format, l.pitch)
	if err != nil {
		return err
	}
	src.CopyInto(dst)
	return nil
}

// MapBuffer implements driver.Driver. Staging buffers wait for their
// copy and return RGBA8 rows.
func (d *Driver) MapBuffer(id driver.Buffer) ([]byte, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("gpu: map buffer %d: %w", id, driver.ErrUnknownHandle)
	}
	if b.pending != nil {
		if err := d.sync(); err != nil {
			return nil, err
		}
		out, err := bitmap.New(b.pending.size, bitmap.FormatRGBA8)
		if err != nil {
			return nil, err
		}
		if err := d.unpack(b.buf, *b.pending, out); err != nil {
			return nil, err
		}
		b.data = append(b.data[:0], out.Pix()...)
		b.pending = nil
	}
	b.mapped = true
	return b.data, nil
}

// UnmapBuffer implements driver.Driver.
func (d *Driver) UnmapBuffer(id driver.Buffer) error {
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("gpu: unmap buffer %d: %w", id, driver.ErrUnknownHandle)
	}
	if !b.mapped {
		return driver.ErrNotMapped
	}
	b.mapped = false
	return nil
}

// ReadPixels implements driver.Driver.
func (d *Driver) ReadPixels(fb driver.Framebuffer, slot int, dst *bitmap.Bitmap) error {
	src, err := d.readable(fb, slot)
	if err != nil {
		return fmt.Errorf("gpu: read pixels: %w", err)
	}
	size := uint64(rowPitch(src.size.X, src.format.BytesPerPixel())) * uint64(src.size.Y) //nolint:gosec // positive sizes
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "compose_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create readback buffer: %w", err)
	}
	defer d.device.DestroyBuffer(buf)

	enc, err := d.encoder("compose_read")
	if err != nil {
		return err
	}
	l := encodeCopy(enc, src, buf)
	if err := d.submit(enc); err != nil {
		return err
	}
	if err := d.sync(); err != nil {
		return err
	}
	return d.unpack(buf, l, dst)
}
