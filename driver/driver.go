// Package driver defines the hardware surface the compose engine renders
// through.
//
// A Driver is deliberately narrow: it exposes id-based objects
// (framebuffers, textures, renderbuffers, buffers, programs) and a handful
// of state verbs. Pooling, completeness policy, blend state machines and
// program selection live in the engine, not in drivers.
//
// Two implementations ship with the module:
//
//   - driver/soft: a deterministic CPU reference rasterizer
//   - driver/gpu: a WebGPU implementation on top of gogpu/wgpu/hal
package driver

import (
	"errors"
	"image"

	"github.com/gogpu/compose/bitmap"
)

// Common driver errors.
var (
	// ErrNotSupported is returned when the device lacks a feature.
	ErrNotSupported = errors.New("driver: feature not supported")

	// ErrUnknownHandle is returned when an id does not name a live object.
	ErrUnknownHandle = errors.New("driver: unknown handle")

	// ErrNotMapped is returned when unmapping a buffer that is not mapped.
	ErrNotMapped = errors.New("driver: buffer is not mapped")

	// ErrCompile is returned when a program fails to compile.
	ErrCompile = errors.New("driver: program compilation failed")
)

// Driver is a single hardware rendering context.
//
// Drivers are not safe for concurrent use; the engine calls them from the
// thread that activated the owning context.
type Driver interface {
	// Name returns the registry name of the driver ("soft", "gpu").
	Name() string

	// Caps reports device capabilities. It may be expensive; the engine
	// caches the result.
	Caps() Caps

	// MakeCurrent binds the context to the calling render thread.
	MakeCurrent() error

	// Release destroys every object the driver still owns.
	Release()

	NewTexture(desc TextureDesc) (Texture, error)
	DeleteTexture(t Texture)
	// UploadTexture replaces mip level 0 with pixels in the texture format.
	UploadTexture(t Texture, bmp *bitmap.Bitmap) error
	GenerateMipmaps(t Texture) error

	NewRenderbuffer(desc RenderbufferDesc) (Renderbuffer, error)
	DeleteRenderbuffer(rb Renderbuffer)

	NewFramebuffer() (Framebuffer, error)
	DeleteFramebuffer(fb Framebuffer)
	AttachTexture(fb Framebuffer, slot int, t Texture)
	AttachRenderbuffer(fb Framebuffer, point Attachment, rb Renderbuffer)
	// DetachAll removes every attachment but keeps the framebuffer id alive.
	DetachAll(fb Framebuffer)
	Status(fb Framebuffer) FramebufferStatus
	BindFramebuffer(fb Framebuffer)
	// Blit copies color slot 0 of src into slot 0 of dst, resolving samples.
	Blit(src, dst Framebuffer, size image.Point) error
	// Clear clears every color attachment of the bound framebuffer.
	Clear(c Color)

	SetBlend(s BlendState)
	// SetDrawFlags toggles texturing and per-vertex colors for draws.
	SetDrawFlags(f DrawFlags)

	NewBuffer(kind BufferKind) (Buffer, error)
	DeleteBuffer(b Buffer)
	// WriteBuffer replaces the buffer contents, growing it as needed.
	WriteBuffer(b Buffer, data []byte) error
	// CopyToBuffer schedules a copy of color slot of fb into b without
	// waiting. Rows are tightly packed RGBA8.
	CopyToBuffer(fb Framebuffer, slot int, b Buffer) error
	// MapBuffer waits for pending copies and returns the buffer contents.
	MapBuffer(b Buffer) ([]byte, error)
	UnmapBuffer(b Buffer) error
	// ReadPixels synchronously reads color slot of fb as RGBA8 rows.
	ReadPixels(fb Framebuffer, slot int, dst *bitmap.Bitmap) error

	CompileProgram(label, source string) (Program, error)
	DeleteProgram(p Program)
	UseProgram(p Program)
	SetUniform(p Program, name string, v Uniform)
	BindTexture(unit int, t Texture)

	// DrawIndexed draws count indices as a triangle list with the bound
	// program, textures and blend state into the bound framebuffer.
	DrawIndexed(vertices, indices Buffer, count int) error
}

// Factory creates a driver instance.
type Factory func() (Driver, error)
