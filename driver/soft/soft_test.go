package soft

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

var (
	copyBlend = driver.BlendState{
		SrcColor: driver.BlendOne, DstColor: driver.BlendZero,
		SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendZero,
	}
	addBlend = driver.BlendState{
		SrcColor: driver.BlendOne, DstColor: driver.BlendOne,
		SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendOne,
	}
)

// newTarget creates a complete framebuffer with one RGBA texture and binds it.
func newTarget(t *testing.T, d *Driver, size image.Point) (driver.Framebuffer, driver.Texture) {
	t.Helper()
	tex, err := d.NewTexture(driver.TextureDesc{Size: size, Format: bitmap.FormatRGBA8})
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	fb, err := d.NewFramebuffer()
	if err != nil {
		t.Fatalf("NewFramebuffer() error = %v", err)
	}
	d.AttachTexture(fb, 0, tex)
	if st := d.Status(fb); st != driver.StatusComplete {
		t.Fatalf("Status() = %v, want Complete", st)
	}
	d.BindFramebuffer(fb)
	return fb, tex
}

// drawQuad draws a full-target quad in clip space with the named program.
func drawQuad(t *testing.T, d *Driver, label string, c [4]uint8, uniforms map[string]driver.Uniform) {
	t.Helper()
	prog, err := d.CompileProgram(label, "// "+label)
	if err != nil {
		t.Fatalf("CompileProgram(%q) error = %v", label, err)
	}
	d.UseProgram(prog)
	for name, u := range uniforms {
		d.SetUniform(prog, name, u)
	}
	verts := []driver.Vertex{
		{Pos: [2]float32{-1, 1}, Tex: [2]float32{0, 0}, Color: c},
		{Pos: [2]float32{1, 1}, Tex: [2]float32{1, 0}, Color: c},
		{Pos: [2]float32{1, -1}, Tex: [2]float32{1, 1}, Color: c},
		{Pos: [2]float32{-1, -1}, Tex: [2]float32{0, 1}, Color: c},
	}
	vb, _ := d.NewBuffer(driver.BufferGeometry)
	ib, _ := d.NewBuffer(driver.BufferGeometry)
	if err := d.WriteBuffer(vb, driver.AppendVertices(nil, verts)); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBuffer(ib, driver.AppendIndices(nil, []uint32{1, 0, 2, 0, 2, 3})); err != nil {
		t.Fatal(err)
	}
	if err := d.DrawIndexed(vb, ib, 6); err != nil {
		t.Fatalf("DrawIndexed() error = %v", err)
	}
}

func white() map[string]driver.Uniform {
	return map[string]driver.Uniform{"color": driver.Vec4(1, 1, 1, 1)}
}

func upload(t *testing.T, d *Driver, bmp *bitmap.Bitmap) driver.Texture {
	t.Helper()
	tex, err := d.NewTexture(driver.TextureDesc{Size: bmp.Size(), Format: bmp.Format()})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.UploadTexture(tex, bmp); err != nil {
		t.Fatal(err)
	}
	return tex
}

func TestStatus(t *testing.T) {
	d := New()
	small, _ := d.NewTexture(driver.TextureDesc{Size: image.Pt(4, 4), Format: bitmap.FormatRGBA8})
	big, _ := d.NewTexture(driver.TextureDesc{Size: image.Pt(8, 4), Format: bitmap.FormatRGBA8})
	msaa, _ := d.NewRenderbuffer(driver.RenderbufferDesc{Size: image.Pt(4, 4), Format: bitmap.FormatRGBA8, Samples: 4})
	ds, _ := d.NewRenderbuffer(driver.RenderbufferDesc{Kind: driver.RenderbufferDepthStencil, Size: image.Pt(4, 4)})

	tests := []struct {
		name  string
		setup func(fb driver.Framebuffer)
		want  driver.FramebufferStatus
	}{
		{"empty", func(driver.Framebuffer) {}, driver.StatusMissingAttachment},
		{"texture", func(fb driver.Framebuffer) { d.AttachTexture(fb, 0, small) }, driver.StatusComplete},
		{"stale texture", func(fb driver.Framebuffer) { d.AttachTexture(fb, 0, 999) }, driver.StatusIncompleteAttachment},
		{"dimensions", func(fb driver.Framebuffer) {
			d.AttachTexture(fb, 0, small)
			d.AttachTexture(fb, 1, big)
		}, driver.StatusIncompleteDimensions},
		{"multisample renderbuffer", func(fb driver.Framebuffer) {
			d.AttachRenderbuffer(fb, driver.AttachmentColor0, msaa)
		}, driver.StatusComplete},
		{"multisample mix", func(fb driver.Framebuffer) {
			d.AttachRenderbuffer(fb, driver.AttachmentColor0, msaa)
			d.AttachTexture(fb, 1, small)
		}, driver.StatusIncompleteMultisample},
		{"depth stencil", func(fb driver.Framebuffer) {
			d.AttachTexture(fb, 0, small)
			d.AttachRenderbuffer(fb, driver.AttachmentDepthStencil, ds)
		}, driver.StatusComplete},
		{"detached", func(fb driver.Framebuffer) {
			d.AttachTexture(fb, 0, small)
			d.DetachAll(fb)
		}, driver.StatusMissingAttachment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, _ := d.NewFramebuffer()
			tt.setup(fb)
			if got := d.Status(fb); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearAndReadPixels(t *testing.T) {
	d := New()
	fb, _ := newTarget(t, d, image.Pt(3, 2))
	d.Clear(driver.Color{R: 1, G: 0.5, B: 0, A: 1})

	dst, _ := bitmap.New(image.Pt(3, 2), bitmap.FormatRGBA8)
	if err := d.ReadPixels(fb, 0, dst); err != nil {
		t.Fatalf("ReadPixels() error = %v", err)
	}
	r, g, b, a := dst.RGBA(2, 1)
	if r != 255 || g != 128 || b != 0 || a != 255 {
		t.Errorf("pixel = (%d,%d,%d,%d), want (255,128,0,255)", r, g, b, a)
	}
}

func TestSharedEdgeBlendedOnce(t *testing.T) {
	d := New()
	_, tex := newTarget(t, d, image.Pt(4, 4))
	d.Clear(driver.Color{})
	d.SetBlend(addBlend)
	d.SetDrawFlags(driver.DrawVertexColors)
	drawQuad(t, d, "minimal", [4]uint8{64, 0, 0, 255}, white())

	got := d.TexturePixels(tex)
	for y := range 4 {
		for x := range 4 {
			if r, _, _, a := got.RGBA(x, y); r != 64 || a != 255 {
				t.Errorf("pixel (%d,%d) = r %d a %d, want r 64 a 255", x, y, r, a)
			}
		}
	}
}

func TestTexturedCopy(t *testing.T) {
	d := New()
	_, target := newTarget(t, d, image.Pt(2, 2))
	src, _ := bitmap.New(image.Pt(2, 2), bitmap.FormatRGBA8)
	_ = src.SetRGBA(0, 0, 255, 0, 0, 255)
	_ = src.SetRGBA(1, 0, 0, 255, 0, 255)
	_ = src.SetRGBA(0, 1, 0, 0, 255, 255)
	_ = src.SetRGBA(1, 1, 10, 20, 30, 40)
	d.BindTexture(0, upload(t, d, src))
	d.SetBlend(copyBlend)
	drawQuad(t, d, "minimal", [4]uint8{255, 255, 255, 255}, white())

	if got := d.TexturePixels(target); !got.Equal(src) {
		t.Errorf("target does not match source texture")
	}
	if d.Stats().Draws != 1 {
		t.Errorf("Draws = %d, want 1", d.Stats().Draws)
	}
}

func TestBlendMin(t *testing.T) {
	d := New()
	_, tex := newTarget(t, d, image.Pt(2, 2))
	d.Clear(driver.Color{R: 200.0 / 255, G: 50.0 / 255, A: 1})
	d.SetBlend(driver.BlendState{Op: driver.BlendOpMin, SrcColor: driver.BlendOne, DstColor: driver.BlendOne})
	d.SetDrawFlags(driver.DrawVertexColors)
	drawQuad(t, d, "minimal", [4]uint8{100, 100, 0, 255}, white())

	r, g, _, _ := d.TexturePixels(tex).RGBA(1, 1)
	if r != 100 || g != 50 {
		t.Errorf("min blend = (%d,%d), want (100,50)", r, g)
	}
}

func TestStagingBuffer(t *testing.T) {
	d := New()
	fb, _ := newTarget(t, d, image.Pt(2, 2))
	d.Clear(driver.Color{R: 0, G: 0, B: 1, A: 1})

	buf, _ := d.NewBuffer(driver.BufferStaging)
	if err := d.CopyToBuffer(fb, 0, buf); err != nil {
		t.Fatalf("CopyToBuffer() error = %v", err)
	}
	data, err := d.MapBuffer(buf)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	if len(data) != 16 || data[2] != 255 || data[3] != 255 || data[0] != 0 {
		t.Errorf("mapped data = %v", data)
	}
	if err := d.UnmapBuffer(buf); err != nil {
		t.Errorf("UnmapBuffer() error = %v", err)
	}
	if err := d.UnmapBuffer(buf); !errors.Is(err, driver.ErrNotMapped) {
		t.Errorf("second UnmapBuffer() error = %v, want ErrNotMapped", err)
	}
}

func TestBlitResolves(t *testing.T) {
	d := New()
	msaa, _ := d.NewRenderbuffer(driver.RenderbufferDesc{Size: image.Pt(2, 2), Format: bitmap.FormatRGBA8, Samples: 4})
	src, _ := d.NewFramebuffer()
	d.AttachRenderbuffer(src, driver.AttachmentColor0, msaa)
	d.BindFramebuffer(src)
	d.Clear(driver.Color{G: 1, A: 1})

	dst, tex := newTarget(t, d, image.Pt(2, 2))
	if err := d.Blit(src, dst, image.Pt(2, 2)); err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	if _, g, _, _ := d.TexturePixels(tex).RGBA(0, 0); g != 255 {
		t.Errorf("resolved green = %d, want 255", g)
	}
}

func TestChromaKey(t *testing.T) {
	tests := []struct {
		name string
		in   [4]uint8
		want [4]uint8
	}{
		{"key color", [4]uint8{0, 255, 0, 255}, [4]uint8{0, 0, 0, 0}},
		{"far color", [4]uint8{255, 0, 0, 255}, [4]uint8{255, 0, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			_, target := newTarget(t, d, image.Pt(1, 1))
			src, _ := bitmap.New(image.Pt(1, 1), bitmap.FormatRGBA8)
			src.Fill(tt.in[0], tt.in[1], tt.in[2], tt.in[3])
			d.BindTexture(0, upload(t, d, src))
			d.SetBlend(copyBlend)
			drawQuad(t, d, "chromakey", [4]uint8{255, 255, 255, 255}, map[string]driver.Uniform{
				"key":           driver.Vec4(120, 1, 0.5, 0),
				"tolerance":     driver.Vec4(36, 0.1, 0.1, 36),
				"softTolerance": driver.Vec4(54, 0.15, 0.15, 0),
				"isLast":        driver.Int(1),
			})
			r, g, b, a := d.TexturePixels(target).RGBA(0, 0)
			if got := [4]uint8{r, g, b, a}; got != tt.want {
				t.Errorf("pixel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErosion(t *testing.T) {
	d := New()
	_, target := newTarget(t, d, image.Pt(3, 1))
	src, _ := bitmap.New(image.Pt(3, 1), bitmap.FormatRGBA8)
	_ = src.SetRGBA(0, 0, 10, 10, 10, 255)
	_ = src.SetRGBA(1, 0, 10, 10, 10, 0)
	_ = src.SetRGBA(2, 0, 10, 10, 10, 255)
	d.BindTexture(0, upload(t, d, src))
	d.SetBlend(copyBlend)
	drawQuad(t, d, "chromakey_erosion", [4]uint8{255, 255, 255, 255}, map[string]driver.Uniform{
		"isLast": driver.Int(0),
	})
	for x := range 3 {
		if _, _, _, a := d.TexturePixels(target).RGBA(x, 0); a != 0 {
			t.Errorf("alpha at %d = %d, want 0", x, a)
		}
	}
}

func TestCompileProgram(t *testing.T) {
	d := New()
	if _, err := d.CompileProgram("minimal", ""); !errors.Is(err, driver.ErrCompile) {
		t.Errorf("empty source error = %v, want ErrCompile", err)
	}
	p, err := d.CompileProgram("custom", "source text")
	if err != nil {
		t.Fatalf("CompileProgram() error = %v", err)
	}
	if d.ProgramSource(p) != "source text" {
		t.Errorf("ProgramSource() = %q", d.ProgramSource(p))
	}
	if d.Stats().ProgramsCompiled != 1 {
		t.Errorf("ProgramsCompiled = %d, want 1", d.Stats().ProgramsCompiled)
	}
}

func TestTextureLimits(t *testing.T) {
	caps := DefaultCaps
	caps.MaxTextureSize = 16
	d := New(WithCaps(caps))
	if _, err := d.NewTexture(driver.TextureDesc{Size: image.Pt(32, 8), Format: bitmap.FormatRGBA8}); !errors.Is(err, driver.ErrNotSupported) {
		t.Errorf("oversized texture error = %v, want ErrNotSupported", err)
	}
	tex, _ := d.NewTexture(driver.TextureDesc{Size: image.Pt(16, 4), Format: bitmap.FormatRGBA8, Mipmaps: true})
	if err := d.GenerateMipmaps(tex); err != nil {
		t.Fatal(err)
	}
	if got := d.TextureLevels(tex); got != 5 {
		t.Errorf("TextureLevels() = %d, want 5", got)
	}
}

func TestTrace(t *testing.T) {
	d := New(WithTrace())
	fb, _ := newTarget(t, d, image.Pt(1, 1))
	d.Clear(driver.Color{})
	ev := d.Events()
	if len(ev) != 2 || ev[0].Op != "bind" || ev[0].Framebuffer != fb || ev[1].Op != "clear" {
		t.Errorf("Events() = %+v", ev)
	}
	d.ResetEvents()
	if len(d.Events()) != 0 {
		t.Error("ResetEvents() left events")
	}
}

func TestRelease(t *testing.T) {
	d := New()
	newTarget(t, d, image.Pt(2, 2))
	d.Release()
	if live := d.Live(); live != [5]int{} {
		t.Errorf("Live() after Release = %v", live)
	}
}

func TestBandedDrawMatchesSerial(t *testing.T) {
	size := image.Pt(48, 160)
	src, _ := bitmap.New(size, bitmap.FormatRGBA8)
	for y := range size.Y {
		for x := range size.X {
			_ = src.SetRGBA(x, y, uint8(x*5), uint8(y), uint8(x^y), uint8(128+y%128)) //nolint:gosec // test pattern
		}
	}
	render := func(workers int) *bitmap.Bitmap {
		d := New(WithWorkers(workers))
		defer d.Release()
		_, tex := newTarget(t, d, size)
		d.Clear(driver.Color{B: 0.5, A: 1})
		d.BindTexture(0, upload(t, d, src))
		drawQuad(t, d, "minimal", [4]uint8{255, 255, 255, 255}, white())
		d.SetBlend(addBlend)
		d.SetDrawFlags(driver.DrawVertexColors)
		drawQuad(t, d, "minimal", [4]uint8{10, 20, 30, 40}, white())
		return d.TexturePixels(tex).Clone()
	}

	serial, banded := render(1), render(4)
	if !serial.Equal(banded) {
		t.Error("banded draw differs from serial draw")
	}
}
