package driver

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/compose/bitmap"
)

// Object ids. The zero value never names a live object.
type (
	Texture      uint32
	Renderbuffer uint32
	Framebuffer  uint32
	Buffer       uint32
	Program      uint32
)

// Caps describes what a device can do.
type Caps struct {
	// Device is a human readable adapter description.
	Device string

	// MaxTextureSize is the largest texture side in pixels.
	MaxTextureSize int

	// MaxSamples is the largest multisample count; 1 means no multisampling.
	MaxSamples int

	// PackedDepthStencil reports combined depth/stencil renderbuffers.
	PackedDepthStencil bool

	// StagingBuffers reports asynchronous readback through mappable buffers.
	StagingBuffers bool

	// BlendMinMax reports the Min and Max blend equations.
	BlendMinMax bool

	// Mipmaps reports GenerateMipmaps support.
	Mipmaps bool

	// FullShading is false on devices that should only run the reduced
	// program variants.
	FullShading bool
}

// Multisample reports whether any sample count above one is available.
func (c Caps) Multisample() bool { return c.MaxSamples > 1 }

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label   string
	Size    image.Point
	Format  bitmap.Format
	Mipmaps bool
}

// MipLevels returns the number of levels the texture allocates.
func (d TextureDesc) MipLevels() int {
	if !d.Mipmaps {
		return 1
	}
	return bitmap.MipLevels(d.Size)
}

// RenderbufferKind selects what a renderbuffer stores.
type RenderbufferKind int

const (
	// RenderbufferColor is a (usually multisampled) color buffer.
	RenderbufferColor RenderbufferKind = iota
	// RenderbufferDepthStencil is a packed 24-bit depth, 8-bit stencil buffer.
	RenderbufferDepthStencil
)

// String returns the string representation of RenderbufferKind.
func (k RenderbufferKind) String() string {
	switch k {
	case RenderbufferColor:
		return "Color"
	case RenderbufferDepthStencil:
		return "DepthStencil"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// RenderbufferDesc describes renderbuffer storage.
type RenderbufferDesc struct {
	Kind    RenderbufferKind
	Size    image.Point
	Format  bitmap.Format
	Samples int
}

// Attachment is a framebuffer attachment point for renderbuffers.
type Attachment int

const (
	// AttachmentColor0 is the first color attachment.
	AttachmentColor0 Attachment = iota
	// AttachmentDepthStencil is the combined depth/stencil attachment.
	AttachmentDepthStencil
)

// FramebufferStatus is the completeness status reported by a driver.
type FramebufferStatus int

const (
	StatusComplete FramebufferStatus = iota
	StatusIncompleteAttachment
	StatusMissingAttachment
	StatusIncompleteDimensions
	StatusIncompleteFormats
	StatusIncompleteMultisample
	StatusUnsupported
)

// String returns the string representation of FramebufferStatus.
func (s FramebufferStatus) String() string {
	switch s {
	case StatusComplete:
		return "Complete"
	case StatusIncompleteAttachment:
		return "IncompleteAttachment"
	case StatusMissingAttachment:
		return "MissingAttachment"
	case StatusIncompleteDimensions:
		return "IncompleteDimensions"
	case StatusIncompleteFormats:
		return "IncompleteFormats"
	case StatusIncompleteMultisample:
		return "IncompleteMultisample"
	case StatusUnsupported:
		return "Unsupported"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BufferKind selects buffer usage.
type BufferKind int

const (
	// BufferGeometry holds vertices or indices.
	BufferGeometry BufferKind = iota
	// BufferStaging receives framebuffer copies for readback.
	BufferStaging
)

// String returns the string representation of BufferKind.
func (k BufferKind) String() string {
	switch k {
	case BufferGeometry:
		return "Geometry"
	case BufferStaging:
		return "Staging"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Color is a linear RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// BlendFactor is a blend equation multiplier.
type BlendFactor int

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
)

// BlendOp combines the weighted source and destination.
type BlendOp int

const (
	BlendOpAdd BlendOp = iota
	BlendOpMin
	BlendOpMax
)

// String returns the string representation of BlendOp.
func (o BlendOp) String() string {
	switch o {
	case BlendOpAdd:
		return "Add"
	case BlendOpMin:
		return "Min"
	case BlendOpMax:
		return "Max"
	default:
		return fmt.Sprintf("Unknown(%d)", int(o))
	}
}

// BlendState is a separate color/alpha blend configuration.
// Min and Max ignore the factors.
type BlendState struct {
	Op       BlendOp
	SrcColor BlendFactor
	DstColor BlendFactor
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
}

// DrawFlags toggles per-draw inputs.
type DrawFlags uint8

const (
	// DrawTextured samples texture unit 0; otherwise texels read as white.
	DrawTextured DrawFlags = 1 << iota
	// DrawVertexColors multiplies by per-vertex color; otherwise white.
	DrawVertexColors
)

// UniformKind is the type of a uniform value.
type UniformKind int

const (
	UniformInt UniformKind = iota
	UniformFloat
	UniformVec2
	UniformVec4
	UniformMat4
)

// Uniform is a typed program parameter value. Matrices are column-major.
type Uniform struct {
	Kind UniformKind
	I    int32
	F    [16]float32
}

// Int returns an integer uniform.
func Int(v int32) Uniform { return Uniform{Kind: UniformInt, I: v} }

// Float returns a scalar uniform.
func Float(v float32) Uniform { return Uniform{Kind: UniformFloat, F: [16]float32{v}} }

// Vec2 returns a two component uniform.
func Vec2(x, y float32) Uniform { return Uniform{Kind: UniformVec2, F: [16]float32{x, y}} }

// Vec4 returns a four component uniform.
func Vec4(x, y, z, w float32) Uniform {
	return Uniform{Kind: UniformVec4, F: [16]float32{x, y, z, w}}
}

// Mat4 returns a column-major 4x4 matrix uniform.
func Mat4(m [16]float32) Uniform { return Uniform{Kind: UniformMat4, F: m} }

// Vec4 returns the first four components, widening ints and scalars the
// way a vec4 slot stores them.
func (u Uniform) Vec4() [4]float32 {
	if u.Kind == UniformInt {
		return [4]float32{float32(u.I)}
	}
	return [4]float32{u.F[0], u.F[1], u.F[2], u.F[3]}
}

// Vertex is the single vertex layout used by the engine.
type Vertex struct {
	Pos   [2]float32
	Tex   [2]float32
	Color [4]uint8
}

// VertexStride is the size of an encoded Vertex in bytes.
const VertexStride = 20

// AppendVertices encodes vertices little-endian into dst.
func AppendVertices(dst []byte, vs []Vertex) []byte {
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Pos[0]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Pos[1]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Tex[0]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Tex[1]))
		dst = append(dst, v.Color[:]...)
	}
	return dst
}

// DecodeVertex reads the vertex at index i of an encoded buffer.
func DecodeVertex(data []byte, i int) Vertex {
	b := data[i*VertexStride:]
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	return Vertex{
		Pos:   [2]float32{f(0), f(4)},
		Tex:   [2]float32{f(8), f(12)},
		Color: [4]uint8{b[16], b[17], b[18], b[19]},
	}
}

// AppendIndices encodes 32-bit indices little-endian into dst.
func AppendIndices(dst []byte, idx []uint32) []byte {
	for _, i := range idx {
		dst = binary.LittleEndian.AppendUint32(dst, i)
	}
	return dst
}

// DecodeIndex reads index i of an encoded index buffer.
func DecodeIndex(data []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(data[i*4:])
}
