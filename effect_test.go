package compose

import (
	"errors"
	"image"
	imagecolor "image/color"
	"testing"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
	"github.com/gogpu/compose/driver/soft"
)

func TestPasses(t *testing.T) {
	tests := []struct {
		n     int
		dests []int
		srcs  []int
	}{
		{1, []int{0}, []int{-1}},
		{2, []int{0, 1}, []int{-1, 0}},
		{4, []int{0, 1, 0, 1}, []int{-1, 0, 1, 0}},
	}
	for _, tt := range tests {
		plan := Passes(tt.n)
		if len(plan) != tt.n {
			t.Fatalf("Passes(%d) has %d passes", tt.n, len(plan))
		}
		for i, p := range plan {
			if p.Dest != tt.dests[i] || p.Source != tt.srcs[i] {
				t.Errorf("Passes(%d)[%d] = %+v, want source %d dest %d", tt.n, i, p, tt.srcs[i], tt.dests[i])
			}
			if p.Final != (i == tt.n-1) {
				t.Errorf("Passes(%d)[%d].Final = %v", tt.n, i, p.Final)
			}
		}
	}
}

func TestChromaKeyParams(t *testing.T) {
	ck := NewChromaKey()
	if c := ck.Params().Color; c != (imagecolor.RGBA{G: 255, A: 255}) {
		t.Errorf("default key color = %v, want green", c)
	}
	err := ck.SetParams(ChromaKeyParams{HTolerance: 0.2, SpillThreshold: 0.1, Erosion: 3})
	if err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}
	if got := ck.Params().SpillThreshold; got != 0.2 {
		t.Errorf("SpillThreshold = %v, want raised to 0.2", got)
	}
	if got := len(ck.Passes()); got != 4 {
		t.Errorf("len(Passes()) = %d, want 4", got)
	}
	if err := ck.SetParams(ChromaKeyParams{Erosion: -1}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetParams(erosion -1) error = %v, want ErrOutOfRange", err)
	}
}

// keyed returns a 4x4 surface, green on the left half and red on the right.
func keyed(t *testing.T) *bitmap.Bitmap {
	t.Helper()
	bmp := solid(t, image.Pt(4, 4), [4]uint8{255, 0, 0, 255})
	for y := range 4 {
		for x := range 2 {
			_ = bmp.SetRGBA(x, y, 0, 255, 0, 255)
		}
	}
	return bmp
}

func TestChromaKeyRemovesKeyColor(t *testing.T) {
	ctx, _ := newTestContext(t)
	n := newTestNode(t, ctx, keyed(t))
	ck := NewChromaKey()
	if err := n.SetEffect(ck); err != nil {
		t.Fatalf("SetEffect() error = %v", err)
	}
	if n.Effect() != Effect(ck) {
		t.Error("Effect() does not return the attached effect")
	}

	got := render(t, ctx, n, image.Pt(4, 4))
	checkPixel(t, got, 0, 0, [4]uint8{0, 0, 0, 0})
	checkPixel(t, got, 1, 3, [4]uint8{0, 0, 0, 0})
	checkPixel(t, got, 2, 0, [4]uint8{255, 0, 0, 255})
	checkPixel(t, got, 3, 3, [4]uint8{255, 0, 0, 255})
	if ck.IsDirty() {
		t.Error("effect still dirty after Draw")
	}
}

func TestChromaKeyErosionPingPong(t *testing.T) {
	ctx, drv := newTestContext(t, soft.WithTrace())
	n := newTestNode(t, ctx, keyed(t))
	ck := NewChromaKey()
	if err := n.SetEffect(ck); err != nil {
		t.Fatal(err)
	}
	if err := ck.SetParams(ChromaKeyParams{Color: imagecolor.RGBA{G: 255, A: 255}, Erosion: 3}); err != nil {
		t.Fatal(err)
	}
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(4, 4)})
	rt.Activate()
	drv.ResetEvents()
	if err := n.ApplyEffect(false); err != nil {
		t.Fatalf("ApplyEffect() error = %v", err)
	}

	var dests []driver.Framebuffer
	var programs []string
	for _, e := range drv.Events() {
		if e.Op == "draw" && (e.Program == ProgramChromaKey || e.Program == ProgramChromaKeyErosion) {
			dests = append(dests, e.Framebuffer)
			programs = append(programs, e.Program)
		}
	}
	b0, b1 := ck.Buffer(0).Framebuffer(), ck.Buffer(1).Framebuffer()
	want := []driver.Framebuffer{b0, b1, b0, b1}
	if len(dests) != len(want) {
		t.Fatalf("filter drew %d passes, want %d", len(dests), len(want))
	}
	for i := range want {
		if dests[i] != want[i] {
			t.Errorf("pass %d drew into %d, want %d", i, dests[i], want[i])
		}
	}
	if programs[0] != ProgramChromaKey || programs[3] != ProgramChromaKeyErosion {
		t.Errorf("programs = %v", programs)
	}
	if ck.Texture() != ck.Buffer(1).Texture(0) {
		t.Error("result texture is not the buffer of the last pass")
	}
	if drv.Bound() != rt.Framebuffer() {
		t.Errorf("bound framebuffer = %d after ApplyEffect, want %d", drv.Bound(), rt.Framebuffer())
	}

	last := ctx.Programs().Program(ProgramChromaKeyErosion).BoolParam("isLast")
	if !last.Get() {
		t.Error("isLast not set on the final pass")
	}
}

func TestChromaKeyErosionGrowsKeyedArea(t *testing.T) {
	ctx, _ := newTestContext(t)
	src := solid(t, image.Pt(5, 5), [4]uint8{255, 0, 0, 255})
	_ = src.SetRGBA(2, 2, 0, 255, 0, 255)
	n := newTestNode(t, ctx, src)
	ck := NewChromaKey()
	if err := n.SetEffect(ck); err != nil {
		t.Fatal(err)
	}
	if err := ck.SetParams(ChromaKeyParams{Color: imagecolor.RGBA{G: 255, A: 255}, Erosion: 1}); err != nil {
		t.Fatal(err)
	}

	got := render(t, ctx, n, image.Pt(5, 5))
	checkPixel(t, got, 2, 2, [4]uint8{0, 0, 0, 0})
	checkPixel(t, got, 1, 1, [4]uint8{0, 0, 0, 0})
	checkPixel(t, got, 3, 2, [4]uint8{0, 0, 0, 0})
	checkPixel(t, got, 0, 0, [4]uint8{255, 0, 0, 255})
	checkPixel(t, got, 4, 2, [4]uint8{255, 0, 0, 255})
}

func TestApplyEffectOnlyWhenDirty(t *testing.T) {
	ctx, drv := newTestContext(t)
	n := newTestNode(t, ctx, keyed(t))
	ck := NewChromaKey()
	if err := n.SetEffect(ck); err != nil {
		t.Fatal(err)
	}
	rt := newTestTarget(t, ctx, TargetConfig{Size: image.Pt(4, 4)})
	rt.Activate()

	p := DefaultDrawParams(image.Pt(4, 4))
	if err := n.Draw(p); err != nil {
		t.Fatal(err)
	}
	draws := drv.Stats().Draws
	if err := n.Draw(p); err != nil {
		t.Fatal(err)
	}
	if got := drv.Stats().Draws - draws; got != 1 {
		t.Errorf("clean redraw issued %d draws, want 1", got)
	}

	draws = drv.Stats().Draws
	if err := n.ApplyEffect(true); err != nil {
		t.Fatal(err)
	}
	if got := drv.Stats().Draws - draws; got != 2 {
		t.Errorf("forced ApplyEffect issued %d draws, want 2", got)
	}

	draws = drv.Stats().Draws
	if err := ck.SetParams(ck.Params()); err != nil {
		t.Fatal(err)
	}
	if err := n.Draw(p); err != nil {
		t.Fatal(err)
	}
	if got := drv.Stats().Draws - draws; got != 3 {
		t.Errorf("draw after parameter change issued %d draws, want 3", got)
	}
}

func TestInvert(t *testing.T) {
	ctx, _ := newTestContext(t)
	n := newTestNode(t, ctx, solid(t, image.Pt(2, 2), [4]uint8{255, 0, 0, 255}))
	if err := n.SetEffect(NewInvert()); err != nil {
		t.Fatal(err)
	}
	got := render(t, ctx, n, image.Pt(2, 2))
	checkPixel(t, got, 0, 0, [4]uint8{0, 255, 255, 255})
}

func TestSetEffectDisconnectsPrevious(t *testing.T) {
	ctx, _ := newTestContext(t)
	n := newTestNode(t, ctx, keyed(t))
	ck := NewChromaKey()
	if err := n.SetEffect(ck); err != nil {
		t.Fatal(err)
	}
	render(t, ctx, n, image.Pt(4, 4))
	if ck.Buffer(0) == nil {
		t.Fatal("chroma key has no buffers after Draw")
	}
	if err := n.SetEffect(NewInvert()); err != nil {
		t.Fatal(err)
	}
	if ck.Buffer(0) != nil {
		t.Error("replaced effect still holds buffers")
	}
	if err := n.SetEffect(nil); err != nil {
		t.Fatal(err)
	}
	if n.Effect() != nil {
		t.Error("Effect() != nil after removal")
	}
}

func TestFilterNotConnected(t *testing.T) {
	var f Filter
	if err := f.SetSize(image.Pt(2, 2)); !errors.Is(err, ErrNotReady) {
		t.Errorf("SetSize() error = %v, want ErrNotReady", err)
	}
	inv := NewInvert()
	if err := inv.Apply(1); !errors.Is(err, ErrNotReady) {
		t.Errorf("Apply() error = %v, want ErrNotReady", err)
	}
	if inv.Texture() != 0 {
		t.Error("Texture() of an unapplied filter is not zero")
	}
	if inv.RelDestRect() != UnitRect {
		t.Errorf("RelDestRect() = %v, want UnitRect", inv.RelDestRect())
	}
}
