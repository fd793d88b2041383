package color

import (
	"math"
	"testing"
)

func TestRGBToHSL(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b float64
		h, s, l float64
	}{
		{"black", 0, 0, 0, 0, 0, 0},
		{"white", 1, 1, 1, 0, 0, 1},
		{"red", 1, 0, 0, 0, 1, 0.5},
		{"green", 0, 1, 0, 120, 1, 0.5},
		{"blue", 0, 0, 1, 240, 1, 0.5},
		{"magenta", 1, 0, 1, 300, 1, 0.5},
		{"gray", 0.5, 0.5, 0.5, 0, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, l := RGBToHSL(tt.r, tt.g, tt.b)
			if !near(h, tt.h) || !near(s, tt.s) || !near(l, tt.l) {
				t.Errorf("RGBToHSL() = (%v,%v,%v), want (%v,%v,%v)", h, s, l, tt.h, tt.s, tt.l)
			}
		})
	}
}

func TestHSLRoundTrip(t *testing.T) {
	for _, c := range [][3]float64{{0.2, 0.4, 0.6}, {0.9, 0.1, 0.3}, {0.5, 0.8, 0.1}} {
		h, s, l := RGBToHSL(c[0], c[1], c[2])
		r, g, b := HSLToRGB(h, s, l)
		if !near(r, c[0]) || !near(g, c[1]) || !near(b, c[2]) {
			t.Errorf("round trip %v = (%v,%v,%v)", c, r, g, b)
		}
	}
}

func TestHueDistance(t *testing.T) {
	if d := HueDistance(350, 10); !near(d, 20) {
		t.Errorf("HueDistance(350, 10) = %v, want 20", d)
	}
	if d := HueDistance(120, 60); !near(d, 60) {
		t.Errorf("HueDistance(120, 60) = %v, want 60", d)
	}
}

func TestU8F32(t *testing.T) {
	c := ColorU8{R: 0, G: 128, B: 255, A: 51}
	if got := F32ToU8(U8ToF32(c)); got != c {
		t.Errorf("round trip = %v, want %v", got, c)
	}
	if got := F32ToU8(ColorF32{R: -1, G: 2}); got.R != 0 || got.G != 255 {
		t.Errorf("clamping failed: %v", got)
	}
}

func TestPremultiply(t *testing.T) {
	got := ColorF32{R: 1, G: 0.5, B: 0, A: 0.5}.Premultiply()
	if got != (ColorF32{R: 0.5, G: 0.25, B: 0, A: 0.5}) {
		t.Errorf("Premultiply() = %v", got)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
