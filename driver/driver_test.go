package driver

import (
	"errors"
	"image"
	"slices"
	"testing"

	"github.com/gogpu/compose/bitmap"
)

func TestVertexEncoding(t *testing.T) {
	vs := []Vertex{
		{Pos: [2]float32{1, 2}, Tex: [2]float32{0.25, 0.5}, Color: [4]uint8{1, 2, 3, 4}},
		{Pos: [2]float32{-3, 7.5}, Tex: [2]float32{1, 0}, Color: [4]uint8{255, 0, 128, 64}},
	}
	data := AppendVertices(nil, vs)
	if len(data) != 2*VertexStride {
		t.Fatalf("encoded %d bytes, want %d", len(data), 2*VertexStride)
	}
	for i, want := range vs {
		if got := DecodeVertex(data, i); got != want {
			t.Errorf("vertex %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestIndexEncoding(t *testing.T) {
	idx := []uint32{1, 0, 2, 0, 2, 3, 70000}
	data := AppendIndices(nil, idx)
	for i, want := range idx {
		if got := DecodeIndex(data, i); got != want {
			t.Errorf("index %d = %d, want %d", i, got, want)
		}
	}
}

func TestUniformVec4(t *testing.T) {
	tests := []struct {
		name string
		u    Uniform
		want [4]float32
	}{
		{"int", Int(3), [4]float32{3}},
		{"float", Float(0.5), [4]float32{0.5}},
		{"vec2", Vec2(1, 2), [4]float32{1, 2}},
		{"vec4", Vec4(1, 2, 3, 4), [4]float32{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.Vec4(); got != tt.want {
				t.Errorf("Vec4() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextureDescMipLevels(t *testing.T) {
	d := TextureDesc{Size: image.Pt(64, 16), Format: bitmap.FormatRGBA8}
	if d.MipLevels() != 1 {
		t.Errorf("MipLevels() without mipmaps = %d, want 1", d.MipLevels())
	}
	d.Mipmaps = true
	if d.MipLevels() != 7 {
		t.Errorf("MipLevels() = %d, want 7", d.MipLevels())
	}
}

func TestStatusString(t *testing.T) {
	if StatusIncompleteMultisample.String() != "IncompleteMultisample" {
		t.Errorf("String() = %q", StatusIncompleteMultisample.String())
	}
	if FramebufferStatus(42).String() != "Unknown(42)" {
		t.Errorf("String() = %q, want Unknown(42)", FramebufferStatus(42).String())
	}
}

func TestRegistry(t *testing.T) {
	called := 0
	Register("test-null", func() (Driver, error) {
		called++
		return nil, ErrNotSupported
	})
	t.Cleanup(func() { Unregister("test-null") })

	if !slices.Contains(Available(), "test-null") {
		t.Fatalf("Available() = %v, want test-null", Available())
	}
	if _, err := Open("test-null"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Open() error = %v, want ErrNotSupported", err)
	}
	if called != 1 {
		t.Errorf("factory called %d times, want 1", called)
	}
	if _, err := Open("missing"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Open(missing) error = %v, want ErrNotSupported", err)
	}
}
