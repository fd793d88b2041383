package bitmap

import (
	"image"
	"sync"
)

// Pool recycles bitmaps grouped by size and format.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*Bitmap
	maxSize int // max bitmaps per bucket, 0 = unlimited
}

type poolKey struct {
	size   image.Point
	format Format
}

// NewPool creates a pool retaining at most maxPerBucket bitmaps of each
// size and format. Zero means unlimited.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[poolKey][]*Bitmap),
		maxSize: maxPerBucket,
	}
}

// Get returns a cleared bitmap of the given size and format, reusing a
// pooled one when available. It returns nil for invalid parameters.
func (p *Pool) Get(size image.Point, format Format) *Bitmap {
	key := poolKey{size: size, format: format}

	p.mu.Lock()
	if bucket := p.buckets[key]; len(bucket) > 0 {
		bmp := bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()
		bmp.Clear()
		return bmp
	}
	p.mu.Unlock()

	bmp, err := New(size, format)
	if err != nil {
		return nil
	}
	return bmp
}

// Put hands a bitmap back for reuse. Bitmaps with padded rows and overflow
// beyond the bucket limit are dropped.
func (p *Pool) Put(bmp *Bitmap) {
	if bmp == nil || bmp.stride != bmp.format.RowBytes(bmp.width) {
		return
	}
	key := poolKey{size: bmp.Size(), format: bmp.format}

	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, bmp)
}

// Len returns the number of pooled bitmaps.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

var defaultPool = NewPool(8)

// GetFromDefault retrieves a bitmap from the package pool.
func GetFromDefault(size image.Point, format Format) *Bitmap {
	return defaultPool.Get(size, format)
}

// PutToDefault returns a bitmap to the package pool.
func PutToDefault(bmp *Bitmap) {
	defaultPool.Put(bmp)
}
