package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{4, 4},
		{0, runtime.GOMAXPROCS(0)},
		{-3, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		p := NewPool(tt.workers)
		if p.Workers() != tt.want {
			t.Errorf("NewPool(%d).Workers() = %d, want %d", tt.workers, p.Workers(), tt.want)
		}
		if !p.Running() {
			t.Errorf("NewPool(%d) is not running", tt.workers)
		}
		p.Close()
	}
}

func TestRun(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	p.Run(work)
	if got := counter.Load(); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
}

func TestRunWritesDisjointRows(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	rows := make([]int, 50)
	var work []func()
	for _, b := range Bands(0, len(rows), 7, 1) {
		work = append(work, func() {
			for y := b.Y0; y < b.Y1; y++ {
				rows[y]++
			}
		})
	}
	p.Run(work)
	for y, v := range rows {
		if v != 1 {
			t.Fatalf("row %d written %d times", y, v)
		}
	}
}

func TestRunAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()
	if p.Running() {
		t.Error("Running() = true after Close")
	}

	n := 0
	p.Run([]func(){func() { n++ }, func() { n++ }})
	if n != 2 {
		t.Errorf("ran %d functions after Close, want 2", n)
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		name           string
		y0, y1, n, min int
		want           []Band
	}{
		{"empty", 5, 5, 4, 1, nil},
		{"even", 0, 8, 4, 1, []Band{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"remainder", 10, 17, 3, 1, []Band{{10, 13}, {13, 15}, {15, 17}}},
		{"min rows", 0, 100, 8, 40, []Band{{0, 50}, {50, 100}}},
		{"fewer rows than min", 0, 3, 8, 40, []Band{{0, 3}}},
		{"zero bands", 0, 4, 0, 1, []Band{{0, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bands(tt.y0, tt.y1, tt.n, tt.min)
			if len(got) != len(tt.want) {
				t.Fatalf("Bands() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Bands()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
