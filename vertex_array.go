package compose

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/compose/driver"
)

// VertexArray accumulates vertices and triangle indices on the CPU and
// uploads them into pooled geometry buffers when they changed.
type VertexArray struct {
	ctx *RenderContext

	vertices []driver.Vertex
	indices  []uint32

	vb, ib  driver.Buffer
	changed bool
	uploads int

	vbuf, ibuf []byte
}

// NewVertexArray takes two geometry buffers from the context pool.
func NewVertexArray(ctx *RenderContext) (*VertexArray, error) {
	vb, err := ctx.AcquireVertexBuffer()
	if err != nil {
		return nil, fmt.Errorf("compose: vertex buffer: %w", err)
	}
	ib, err := ctx.AcquireVertexBuffer()
	if err != nil {
		ctx.ReleaseVertexBuffer(vb)
		return nil, fmt.Errorf("compose: index buffer: %w", err)
	}
	return &VertexArray{ctx: ctx, vb: vb, ib: ib}, nil
}

// Reset drops every vertex and index.
func (va *VertexArray) Reset() {
	va.vertices = va.vertices[:0]
	va.indices = va.indices[:0]
	va.changed = true
}

// AppendVertex adds a vertex with position pos, texture coordinate tex
// and color c.
func (va *VertexArray) AppendVertex(pos, tex mgl32.Vec2, c [4]uint8) {
	va.vertices = append(va.vertices, driver.Vertex{
		Pos:   [2]float32{pos[0], pos[1]},
		Tex:   [2]float32{tex[0], tex[1]},
		Color: c,
	})
	va.changed = true
}

// AppendTriIndexes adds one triangle.
func (va *VertexArray) AppendTriIndexes(v0, v1, v2 uint32) {
	va.indices = append(va.indices, v0, v1, v2)
	va.changed = true
}

// AppendQuadIndexes adds the quad v0 v1 v2 v3 as the triangles
// (v0, v1, v2) and (v1, v2, v3).
func (va *VertexArray) AppendQuadIndexes(v0, v1, v2, v3 uint32) {
	va.indices = append(va.indices, v0, v1, v2, v1, v2, v3)
	va.changed = true
}

// AppendQuad adds a rectangle from p0 to p1 with texture coordinates t0
// to t1.
func (va *VertexArray) AppendQuad(p0, p1, t0, t1 mgl32.Vec2, c [4]uint8) {
	v := uint32(len(va.vertices))
	va.AppendVertex(p0, t0, c)
	va.AppendVertex(mgl32.Vec2{p1[0], p0[1]}, mgl32.Vec2{t1[0], t0[1]}, c)
	va.AppendVertex(p1, t1, c)
	va.AppendVertex(mgl32.Vec2{p0[0], p1[1]}, mgl32.Vec2{t0[0], t1[1]}, c)
	va.AppendQuadIndexes(v+1, v, v+2, v+3)
}

// NumVertices returns the vertex count.
func (va *VertexArray) NumVertices() int { return len(va.vertices) }

// NumIndices returns the index count.
func (va *VertexArray) NumIndices() int { return len(va.indices) }

// Vertex returns vertex i.
func (va *VertexArray) Vertex(i int) driver.Vertex { return va.vertices[i] }

// Indices returns the index list. The slice is owned by va.
func (va *VertexArray) Indices() []uint32 { return va.indices }

// Uploads returns how many times Update wrote the buffers.
func (va *VertexArray) Uploads() int { return va.uploads }

// Update writes the buffers if anything changed since the last upload.
func (va *VertexArray) Update() error {
	if !va.changed {
		return nil
	}
	drv := va.ctx.drv
	va.vbuf = driver.AppendVertices(va.vbuf[:0], va.vertices)
	va.ibuf = driver.AppendIndices(va.ibuf[:0], va.indices)
	if err := drv.WriteBuffer(va.vb, va.vbuf); err != nil {
		return fmt.Errorf("compose: write vertices: %w", err)
	}
	if err := drv.WriteBuffer(va.ib, va.ibuf); err != nil {
		return fmt.Errorf("compose: write indices: %w", err)
	}
	va.changed = false
	va.uploads++
	return nil
}

// Draw uploads pending changes and draws every index.
func (va *VertexArray) Draw() error {
	if err := va.Update(); err != nil {
		return err
	}
	if len(va.indices) == 0 {
		return nil
	}
	return va.ctx.drv.DrawIndexed(va.vb, va.ib, len(va.indices))
}

// Destroy returns the buffers to the context pool.
func (va *VertexArray) Destroy() {
	if va.vb == 0 {
		return
	}
	va.ctx.ReleaseVertexBuffer(va.vb)
	va.ctx.ReleaseVertexBuffer(va.ib)
	va.vb, va.ib = 0, 0
}
