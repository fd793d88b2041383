package compose

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
)

// maskCache keeps intensity textures of recently used mask bitmaps.
// Evicted textures are deleted from the driver.
type maskCache struct {
	ctx   *RenderContext
	cache *lru.Cache[*bitmap.Bitmap, driver.Texture]
}

func newMaskCache(ctx *RenderContext, size int) (*maskCache, error) {
	if size < 1 {
		size = 1
	}
	m := &maskCache{ctx: ctx}
	cache, err := lru.NewWithEvict(size, func(_ *bitmap.Bitmap, tex driver.Texture) {
		ctx.drv.DeleteTexture(tex)
		Logger().Debug("compose: mask texture evicted", slog.Int("texture", int(tex)))
	})
	if err != nil {
		return nil, fmt.Errorf("compose: mask cache: %w", err)
	}
	m.cache = cache
	return m, nil
}

// texture returns the texture holding bmp, uploading its luminance on a
// miss.
func (m *maskCache) texture(bmp *bitmap.Bitmap) (driver.Texture, error) {
	if tex, ok := m.cache.Get(bmp); ok {
		return tex, nil
	}
	gray := bmp.ToI8()
	drv := m.ctx.drv
	tex, err := drv.NewTexture(driver.TextureDesc{Label: "mask", Size: gray.Size(), Format: bitmap.FormatI8})
	if err != nil {
		return 0, fmt.Errorf("compose: mask texture: %w", err)
	}
	if err := drv.UploadTexture(tex, gray); err != nil {
		drv.DeleteTexture(tex)
		return 0, fmt.Errorf("compose: upload mask: %w", err)
	}
	m.cache.Add(bmp, tex)
	return tex, nil
}

// forget drops the texture of bmp so the next lookup uploads it again.
func (m *maskCache) forget(bmp *bitmap.Bitmap) { m.cache.Remove(bmp) }

func (m *maskCache) len() int { return m.cache.Len() }

func (m *maskCache) purge() { m.cache.Purge() }
