package compose

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
	"github.com/gogpu/compose/driver/soft"
)

func newTestTarget(t *testing.T, ctx *RenderContext, cfg TargetConfig) *RenderTarget {
	t.Helper()
	rt, err := NewRenderTarget(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRenderTarget(%+v) error = %v", cfg, err)
	}
	t.Cleanup(rt.Destroy)
	return rt
}

func checkPixel(t *testing.T, bmp *bitmap.Bitmap, x, y int, want [4]uint8) {
	t.Helper()
	r, g, b, a := bmp.RGBA(x, y)
	if got := [4]uint8{r, g, b, a}; got != want {
		t.Errorf("pixel (%d, %d) = %v, want %v", x, y, got, want)
	}
}

func TestNewRenderTargetValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  TargetConfig
		opts []soft.Option
		want error
	}{
		{"zero size", TargetConfig{Size: image.Pt(0, 4)}, nil, ErrOutOfRange},
		{"above texture limit", TargetConfig{Size: image.Pt(8192, 4)}, nil, ErrOutOfRange},
		{"bad format", TargetConfig{Size: image.Pt(4, 4), Format: bitmap.Format(99)}, nil, ErrOutOfRange},
		{"negative attachments", TargetConfig{Size: image.Pt(4, 4), Attachments: -1}, nil, ErrOutOfRange},
		{"multisampled with two attachments", TargetConfig{Size: image.Pt(4, 4), Samples: 4, Attachments: 2}, nil, ErrOutOfRange},
		{"too many samples", TargetConfig{Size: image.Pt(4, 4), Samples: 16}, nil, ErrUnsupported},
		{"no multisampling", TargetConfig{Size: image.Pt(4, 4), Samples: 4},
			[]soft.Option{capsWith(func(c *driver.Caps) { c.MaxSamples = 1 })}, ErrUnsupported},
		{"no depth stencil", TargetConfig{Size: image.Pt(4, 4), DepthStencil: true},
			[]soft.Option{capsWith(func(c *driver.Caps) { c.PackedDepthStencil = false })}, ErrUnsupported},
		{"no mipmaps", TargetConfig{Size: image.Pt(4, 4), Mipmaps: true},
			[]soft.Option{capsWith(func(c *driver.Caps) { c.Mipmaps = false })}, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := newTestContext(t, tt.opts...)
			if _, err := NewRenderTarget(ctx, tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("NewRenderTarget() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRenderTargetDefaults(t *testing.T) {
	ctx, _ := newTestContext(t)
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(3, 2)})
	cfg := rt.Config()
	if cfg.Attachments != 1 || cfg.Samples != 1 {
		t.Errorf("Config() = %+v, want one attachment and one sample", cfg)
	}
	if rt.Multisampled() {
		t.Error("Multisampled() = true")
	}
	if rt.Texture(0) == 0 || rt.Texture(1) != 0 {
		t.Errorf("Texture(0) = %d, Texture(1) = %d", rt.Texture(0), rt.Texture(1))
	}
	if rt.Size() != image.Pt(3, 2) {
		t.Errorf("Size() = %v", rt.Size())
	}
}

func TestRenderTargetZeroFormatIsColor(t *testing.T) {
	ctx, _ := newTestContext(t)
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(2, 2)})
	if got := rt.Config().Format; got != bitmap.FormatRGBA8 {
		t.Fatalf("Config().Format = %v, want %v", got, bitmap.FormatRGBA8)
	}
	rt.Clear(driver.Color{R: 1, A: 1})
	bmp, err := rt.ReadPixels(0)
	if err != nil {
		t.Fatalf("ReadPixels() error = %v", err)
	}
	checkPixel(t, bmp, 1, 1, [4]uint8{255, 0, 0, 255})
}

func TestRenderTargetSamplesDefault(t *testing.T) {
	tests := []struct {
		name        string
		ctxSamples  int
		cfg         TargetConfig
		wantSamples int
	}{
		{"context default", 4, TargetConfig{}, 4},
		{"explicit single sample", 4, TargetConfig{Samples: 1}, 1},
		{"multiple attachments", 4, TargetConfig{Attachments: 2}, 1},
		{"single sample context", 1, TargetConfig{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Samples = tt.ctxSamples
			ctx, _ := newTestContextConfig(t, cfg)
			tt.cfg.Size = image.Pt(4, 4)
			rt := newTestTarget(t, ctx, tt.cfg)
			if got := rt.Config().Samples; got != tt.wantSamples {
				t.Errorf("Config().Samples = %d, want %d", got, tt.wantSamples)
			}
			if got, want := rt.Multisampled(), tt.wantSamples > 1; got != want {
				t.Errorf("Multisampled() = %v, want %v", got, want)
			}
		})
	}
}

func TestRenderTargetIDsRecycled(t *testing.T) {
	ctx, drv := newTestContext(t)
	first, err := NewRenderTarget(ctx, TargetConfig{Size: image.Pt(4, 4)})
	if err != nil {
		t.Fatalf("NewRenderTarget() error = %v", err)
	}
	fb := first.Framebuffer()
	first.Destroy()
	first.Destroy()

	second := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(8, 8)})
	if second.Framebuffer() != fb {
		t.Errorf("Framebuffer() = %d, want recycled %d", second.Framebuffer(), fb)
	}
	if got := drv.Stats().FramebuffersAlloc; got != 1 {
		t.Errorf("FramebuffersAlloc = %d, want 1", got)
	}
}

func TestStagingReadback(t *testing.T) {
	for _, mode := range []string{"staging", "direct"} {
		t.Run(mode, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MemoryMode = mode
			ctx, drv := newTestContextConfig(t, cfg)
			rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(2, 2), Format: bitmap.FormatRGBA8})

			if _, err := rt.MaterializeFromStagingBuffer(); !errors.Is(err, ErrNotReady) {
				t.Fatalf("MaterializeFromStagingBuffer() before copy error = %v, want ErrNotReady", err)
			}

			rt.Clear(driver.Color{R: 1, A: 1})
			if err := rt.CopyToStagingBuffer(0); err != nil {
				t.Fatalf("CopyToStagingBuffer() error = %v", err)
			}
			bmp, err := rt.MaterializeFromStagingBuffer()
			if err != nil {
				t.Fatalf("MaterializeFromStagingBuffer() error = %v", err)
			}
			checkPixel(t, bmp, 1, 1, [4]uint8{255, 0, 0, 255})

			if _, err := rt.MaterializeFromStagingBuffer(); !errors.Is(err, ErrNotReady) {
				t.Errorf("second MaterializeFromStagingBuffer() error = %v, want ErrNotReady", err)
			}
			wantCopies := 0
			if mode == "staging" {
				wantCopies = 1
			}
			if got := drv.Stats().Copies; got != wantCopies {
				t.Errorf("Copies = %d, want %d", got, wantCopies)
			}
		})
	}
}

func TestReadPixelsConvertsFormat(t *testing.T) {
	ctx, _ := newTestContext(t)
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(2, 2), Format: bitmap.FormatBGRA8})
	rt.Clear(driver.Color{B: 1, A: 1})
	bmp, err := rt.ReadPixels(0)
	if err != nil {
		t.Fatalf("ReadPixels() error = %v", err)
	}
	if bmp.Format() != bitmap.FormatBGRA8 {
		t.Errorf("Format() = %v, want BGRA8", bmp.Format())
	}
	checkPixel(t, bmp, 0, 0, [4]uint8{0, 0, 255, 255})
	if _, err := rt.ReadPixels(1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadPixels(1) error = %v, want ErrOutOfRange", err)
	}
}

func TestMultisampledTargetResolves(t *testing.T) {
	ctx, _ := newTestContext(t)
	rt := newTestTarget(t, ctx, TargetConfig{
		Size: image.Pt(4, 4), Format: bitmap.FormatRGBA8, Samples: 4, DepthStencil: true,
	})
	if !rt.Multisampled() {
		t.Fatal("Multisampled() = false")
	}
	rt.Clear(driver.Color{G: 1, A: 1})
	bmp, err := rt.ReadPixels(0)
	if err != nil {
		t.Fatalf("ReadPixels() error = %v", err)
	}
	checkPixel(t, bmp, 3, 3, [4]uint8{0, 255, 0, 255})
}

func TestMultipleAttachments(t *testing.T) {
	ctx, _ := newTestContext(t)
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(2, 2), Attachments: 2})
	rt.Clear(driver.Color{R: 1, G: 1, B: 1, A: 1})
	for i := range 2 {
		bmp, err := rt.ReadPixels(i)
		if err != nil {
			t.Fatalf("ReadPixels(%d) error = %v", i, err)
		}
		checkPixel(t, bmp, 0, 1, [4]uint8{255, 255, 255, 255})
	}
}

func TestMipmappedTarget(t *testing.T) {
	ctx, drv := newTestContext(t)
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(8, 8), Mipmaps: true})
	rt.Clear(driver.Color{A: 1})
	if err := rt.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := drv.TextureLevels(rt.Texture(0)); got != 4 {
		t.Errorf("TextureLevels() = %d, want 4", got)
	}
}

type incompleteDriver struct {
	*soft.Driver
}

func (incompleteDriver) Status(driver.Framebuffer) driver.FramebufferStatus {
	return driver.StatusIncompleteFormats
}

func TestIncompleteTargetPanics(t *testing.T) {
	ctx, err := NewRenderContext(incompleteDriver{soft.New()})
	if err != nil {
		t.Fatalf("NewRenderContext() error = %v", err)
	}
	defer ctx.Destroy()

	defer func() {
		r := recover()
		e, ok := r.(*IncompleteTargetError)
		if !ok {
			t.Fatalf("recovered %v, want *IncompleteTargetError", r)
		}
		if e.Status != driver.StatusIncompleteFormats {
			t.Errorf("Status = %v, want IncompleteFormats", e.Status)
		}
	}()
	_, _ = NewRenderTarget(ctx, TargetConfig{Size: image.Pt(2, 2)})
}
