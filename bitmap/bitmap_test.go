package bitmap

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		size    image.Point
		format  Format
		wantErr error
	}{
		{"rgba", image.Pt(4, 3), FormatRGBA8, nil},
		{"intensity", image.Pt(1, 1), FormatI8, nil},
		{"zero width", image.Pt(0, 3), FormatRGBA8, ErrInvalidDimensions},
		{"negative height", image.Pt(3, -1), FormatRGBA8, ErrInvalidDimensions},
		{"unknown format", image.Pt(3, 3), formatCount, ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bmp, err := New(tt.size, tt.format)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if bmp.Size() != tt.size {
				t.Errorf("Size() = %v, want %v", bmp.Size(), tt.size)
			}
			if got, want := len(bmp.Pix()), tt.format.ImageBytes(tt.size.X, tt.size.Y); got != want {
				t.Errorf("len(Pix()) = %d, want %d", got, want)
			}
		})
	}
}

func TestZeroFormat(t *testing.T) {
	var f Format
	if f != FormatRGBA8 {
		t.Fatalf("zero Format = %v, want %v", f, FormatRGBA8)
	}
	if f.BytesPerPixel() != 4 || !f.HasAlpha() || f.IsPremultiplied() {
		t.Errorf("zero Format: %d bytes, alpha %v, premultiplied %v", f.BytesPerPixel(), f.HasAlpha(), f.IsPremultiplied())
	}
}

func TestFromRaw(t *testing.T) {
	pix := make([]byte, 64)
	if _, err := FromRaw(pix, image.Pt(4, 4), FormatRGBA8, 8); !errors.Is(err, ErrInvalidStride) {
		t.Errorf("short stride: error = %v, want ErrInvalidStride", err)
	}
	if _, err := FromRaw(pix[:10], image.Pt(4, 4), FormatRGBA8, 16); !errors.Is(err, ErrDataTooSmall) {
		t.Errorf("short data: error = %v, want ErrDataTooSmall", err)
	}
	bmp, err := FromRaw(pix, image.Pt(2, 2), FormatRGBA8, 32)
	if err != nil {
		t.Fatalf("FromRaw() error = %v", err)
	}
	_ = bmp.SetRGBA(1, 1, 1, 2, 3, 4)
	if pix[32+4] != 1 || pix[32+7] != 4 {
		t.Error("FromRaw must share memory with the caller")
	}
}

func TestRGBARoundTrip(t *testing.T) {
	for _, f := range []Format{FormatRGBA8, FormatRGBAPremul, FormatBGRA8, FormatBGRAPremul} {
		t.Run(f.String(), func(t *testing.T) {
			bmp, _ := New(image.Pt(2, 2), f)
			if err := bmp.SetRGBA(1, 0, 10, 20, 30, 40); err != nil {
				t.Fatalf("SetRGBA() error = %v", err)
			}
			r, g, b, a := bmp.RGBA(1, 0)
			if r != 10 || g != 20 || b != 30 || a != 40 {
				t.Errorf("RGBA() = (%d,%d,%d,%d), want (10,20,30,40)", r, g, b, a)
			}
		})
	}
}

func TestBGRAStorageOrder(t *testing.T) {
	bmp, _ := New(image.Pt(1, 1), FormatBGRA8)
	_ = bmp.SetRGBA(0, 0, 1, 2, 3, 4)
	if got := bmp.Pix(); got[0] != 3 || got[2] != 1 {
		t.Errorf("Pix() = %v, want blue first", got)
	}
}

func TestSetRGBAOutOfBounds(t *testing.T) {
	bmp, _ := New(image.Pt(2, 2), FormatRGBA8)
	if err := bmp.SetRGBA(2, 0, 0, 0, 0, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("SetRGBA() error = %v, want ErrOutOfBounds", err)
	}
	if r, g, b, a := bmp.RGBA(-1, 0); r|g|b|a != 0 {
		t.Error("RGBA() out of range should be zero")
	}
}

func TestToI8(t *testing.T) {
	bmp, _ := New(image.Pt(3, 2), FormatRGBA8)
	bmp.Fill(255, 255, 255, 255)
	gray := bmp.ToI8()
	if gray.Format() != FormatI8 {
		t.Fatalf("Format() = %v, want I8", gray.Format())
	}
	for y := range 2 {
		for x := range 3 {
			if v, _, _, _ := gray.RGBA(x, y); v != 255 {
				t.Errorf("pixel (%d,%d) = %d, want 255", x, y, v)
			}
		}
	}
	if gray.ToI8() != gray {
		t.Error("ToI8() on an intensity bitmap should return it unchanged")
	}
}

func TestFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	for _, f := range []Format{FormatRGBA8, FormatBGRA8} {
		bmp, err := FromImage(src, f)
		if err != nil {
			t.Fatalf("FromImage(%v) error = %v", f, err)
		}
		r, g, b, a := bmp.RGBA(1, 1)
		if r != 200 || g != 100 || b != 50 || a != 255 {
			t.Errorf("%v: RGBA(1,1) = (%d,%d,%d,%d), want (200,100,50,255)", f, r, g, b, a)
		}
	}
}

func TestScaled(t *testing.T) {
	bmp, _ := New(image.Pt(4, 4), FormatRGBA8)
	bmp.Fill(90, 90, 90, 255)
	out, err := bmp.Scaled(image.Pt(2, 8))
	if err != nil {
		t.Fatalf("Scaled() error = %v", err)
	}
	if out.Size() != image.Pt(2, 8) {
		t.Fatalf("Size() = %v, want (2,8)", out.Size())
	}
	if r, _, _, a := out.RGBA(1, 5); r < 89 || r > 91 || a < 254 {
		t.Errorf("RGBA(1,5) = (%d, a=%d), want about (90, a=255)", r, a)
	}
}

func TestCloneAndEqual(t *testing.T) {
	bmp, _ := New(image.Pt(3, 3), FormatRGBA8)
	bmp.Fill(1, 2, 3, 4)
	c := bmp.Clone()
	if !bmp.Equal(c) {
		t.Fatal("clone should equal source")
	}
	_ = c.SetRGBA(0, 0, 9, 9, 9, 9)
	if bmp.Equal(c) {
		t.Error("modified clone should differ")
	}
}

func TestCopyInto(t *testing.T) {
	src, _ := New(image.Pt(2, 2), FormatRGBA8)
	src.Fill(5, 6, 7, 8)
	dst, _ := New(image.Pt(4, 4), FormatBGRA8)
	src.CopyInto(dst)

	if r, g, b, a := dst.RGBA(1, 1); r != 5 || g != 6 || b != 7 || a != 8 {
		t.Errorf("RGBA(1,1) = (%d,%d,%d,%d), want (5,6,7,8)", r, g, b, a)
	}
	if _, _, _, a := dst.RGBA(3, 3); a != 0 {
		t.Error("pixels outside the source should stay untouched")
	}
}

func TestFormatString(t *testing.T) {
	if got := Format(200).String(); got != "Unknown(200)" {
		t.Errorf("String() = %q, want Unknown(200)", got)
	}
	if !FormatBGRAPremul.IsBGR() || !FormatBGRAPremul.IsPremultiplied() {
		t.Error("BGRAPremul must be BGR and premultiplied")
	}
}
