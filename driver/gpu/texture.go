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

// texture backs both driver textures and renderbuffers.
type texture struct {
	label   string
	size    image.Point
	format  bitmap.Format
	gpuFmt  gputypes.TextureFormat
	samples int
	depth   bool
	tex     hal.Texture
	view    hal.TextureView
}

func (t *texture) destroy(device hal.Device) {
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		device.DestroyTexture(t.tex)
		t.tex = nil
	}
}

// textureFormat maps a pixel format to the device format storing it.
// Premultiplication is a property of the content, not of the storage.
func textureFormat(f bitmap.Format) (gputypes.TextureFormat, error) {
	switch f {
	case bitmap.FormatI8:
		return gputypes.TextureFormatR8Unorm, nil
	case bitmap.FormatRGBA8, bitmap.FormatRGBAPremul:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case bitmap.FormatBGRA8, bitmap.FormatBGRAPremul:
		return gputypes.TextureFormatBGRA8Unorm, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("gpu: pixel format %v: %w", f, driver.ErrNotSupported)
	}
}

func (d *Driver) newTexture(label string, size image.Point, format bitmap.Format, samples int, depth bool) (*texture, error) {
	if size.X <= 0 || size.Y <= 0 || size.X > d.caps.MaxTextureSize || size.Y > d.caps.MaxTextureSize {
		return nil, fmt.Errorf("gpu: %s size %v: %w", label, size, driver.ErrNotSupported)
	}
	if samples != 1 && samples != 4 {
		return nil, fmt.Errorf("gpu: %s with %d samples: %w", label, samples, driver.ErrNotSupported)
	}
	t := &texture{label: label, size: size, format: format, samples: samples, depth: depth}
	usage := gputypes.TextureUsageRenderAttachment
	if depth {
		t.gpuFmt = gputypes.TextureFormatDepth24PlusStencil8
	} else {
		f, err := textureFormat(format)
		if err != nil {
			return nil, err
		}
		t.gpuFmt = f
		if samples == 1 {
			usage |= gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
		}
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: uint32(size.X), Height: uint32(size.Y), DepthOrArrayLayers: 1}, //nolint:gosec // bounded by MaxTextureSize
		MipLevelCount: 1,
		SampleCount:   uint32(samples), //nolint:gosec // 1 or 4
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.gpuFmt,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create %s: %w", label, err)
	}
	t.tex = tex
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: label + "_view"})
	if err != nil {
		t.destroy(d.device)
		return nil, fmt.Errorf("gpu: create %s view: %w", label, err)
	}
	t.view = view
	return t, nil
}

// NewTexture implements driver.Driver. Devices report no mipmap support,
// so mipmapped textures are refused.
func (d *Driver) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	if desc.Mipmaps {
		return 0, fmt.Errorf("gpu: mipmapped texture %q: %w", desc.Label, driver.ErrNotSupported)
	}
	label := desc.Label
	if label == "" {
		label = "texture"
	}
	t, err := d.newTexture(label, desc.Size, desc.Format, 1, false)
	if err != nil {
		return 0, err
	}
	id := driver.Texture(d.id())
	d.textures[id] = t
	return id, nil
}

// DeleteTexture implements driver.Driver.
func (d *Driver) DeleteTexture(id driver.Texture) {
	t, ok := d.textures[id]
	if !ok {
		return
	}
	delete(d.textures, id)
	for i, u := range d.units {
		if u == id {
			d.units[i] = 0
		}
	}
	d.deferFree(func() { t.destroy(d.device) })
}

// UploadTexture implements driver.Driver.
func (d *Driver) UploadTexture(id driver.Texture, bmp *bitmap.Bitmap) error {
	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("gpu: upload texture %d: %w", id, driver.ErrUnknownHandle)
	}
	if bmp.Size() != t.size {
		return fmt.Errorf("gpu: upload %v into %v texture: %w", bmp.Size(), t.size, driver.ErrNotSupported)
	}
	src := bmp
	if bmp.Format() != t.format {
		conv, err := bitmap.New(t.size, t.format)
		if err != nil {
			return err
		}
		bmp.CopyInto(conv)
		src = conv
	}
	d.writeTexture(t, src)
	return nil
}

func (d *Driver) writeTexture(t *texture, src *bitmap.Bitmap) {
	w, h := uint32(t.size.X), uint32(t.size.Y) //nolint:gosec // bounded by MaxTextureSize
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		src.Pix(),
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(src.Stride()), RowsPerImage: h}, //nolint:gosec // row pitch of a bounded bitmap
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
}

// GenerateMipmaps implements driver.Driver.
func (d *Driver) GenerateMipmaps(driver.Texture) error {
	return fmt.Errorf("gpu: mipmap generation: %w", driver.ErrNotSupported)
}

// NewRenderbuffer implements driver.Driver.
func (d *Driver) NewRenderbuffer(desc driver.RenderbufferDesc) (driver.Renderbuffer, error) {
	samples := max(desc.Samples, 1)
	depth := desc.Kind == driver.RenderbufferDepthStencil
	label := "color_renderbuffer"
	if depth {
		label = "depth_stencil_renderbuffer"
	}
	t, err := d.newTexture(label, desc.Size, desc.Format, samples, depth)
	if err != nil {
		return 0, err
	}
	id := driver.Renderbuffer(d.id())
	d.renderbuffers[id] = t
	return id, nil
}

// DeleteRenderbuffer implements driver.Driver.
func (d *Driver) DeleteRenderbuffer(id driver.Renderbuffer) {
	t, ok := d.renderbuffers[id]
	if !ok {
		return
	}
	delete(d.renderbuffers, id)
	d.deferFree(func() { t.destroy(d.device) })
}

// whiteTexture returns a 1x1 opaque texture bound to units without a texture.
func (d *Driver) whiteTexture() (*texture, error) {
	if d.white != nil {
		return d.white, nil
	}
	t, err := d.newTexture("white", image.Pt(1, 1), bitmap.FormatRGBA8, 1, false)
	if err != nil {
		return nil, err
	}
	bmp, err := bitmap.New(image.Pt(1, 1), bitmap.FormatRGBA8)
	if err != nil {
		t.destroy(d.device)
		return nil, err
	}
	bmp.Fill(255, 255, 255, 255)
	d.writeTexture(t, bmp)
	d.white = t
	return t, nil
}
