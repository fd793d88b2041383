//go:build !nogpu

package gpu

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose/driver"
)

// maxColors is the largest number of color attachments a pass writes.
const maxColors = 4

type program struct {
	label      string
	module     hal.ShaderModule
	layout     uniformLayout
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipelines  map[pipelineKey]hal.RenderPipeline
	uniforms   map[string]driver.Uniform
	// vertexless programs generate positions from the vertex index.
	vertexless bool
}

// pipelineKey is the render state a pipeline is specialised for.
type pipelineKey struct {
	blend   driver.BlendState
	colors  [maxColors]gputypes.TextureFormat
	ncolors int
	samples int
	depth   bool
}

// spirv compiles WGSL with naga and returns the little-endian SPIR-V words.
func spirv(source string) ([]uint32, error) {
	b, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
	}
	return words, nil
}

func (d *Driver) compile(label, source string) (*program, error) {
	if source == "" {
		return nil, fmt.Errorf("gpu: program %q: empty source: %w", label, driver.ErrCompile)
	}
	layout, err := parseLayout(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: program %q: %w", label, err)
	}
	code, err := spirv(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: program %q: %v: %w", label, err, driver.ErrCompile)
	}
	p := &program{
		label:     label,
		layout:    layout,
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
		uniforms:  make(map[string]driver.Uniform),
	}
	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: program %q: shader module: %w", label, err)
	}

	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    uniformBinding,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    samplerBinding,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
	}
	for _, unit := range layout.units {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(textureBinding + unit), //nolint:gosec // unit < maxUnits
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("gpu: program %q: bind group layout: %w", label, err)
	}
	p.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("gpu: program %q: pipeline layout: %w", label, err)
	}
	return p, nil
}

// destroy releases pipelines, layouts and the module in reverse creation
// order.
func (p *program) destroy(device hal.Device) {
	for k, pl := range p.pipelines {
		device.DestroyRenderPipeline(pl)
		delete(p.pipelines, k)
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// CompileProgram implements driver.Driver. The source is validated and
// translated by naga; compile errors wrap driver.ErrCompile.
func (d *Driver) CompileProgram(label, source string) (driver.Program, error) {
	p, err := d.compile(label, source)
	if err != nil {
		return 0, err
	}
	id := driver.Program(d.id())
	d.programs[id] = p
	d.log.Debug("gpu: program compiled",
		slog.String("program", label),
		slog.Int("uniform_bytes", p.layout.size),
		slog.Int("texture_units", len(p.layout.units)))
	return id, nil
}

// DeleteProgram implements driver.Driver.
func (d *Driver) DeleteProgram(id driver.Program) {
	p, ok := d.programs[id]
	if !ok {
		return
	}
	delete(d.programs, id)
	if d.current == id {
		d.current = 0
	}
	d.deferFree(func() { p.destroy(d.device) })
}

// UseProgram implements driver.Driver.
func (d *Driver) UseProgram(id driver.Program) { d.current = id }

// SetUniform implements driver.Driver. Values are packed at draw time.
func (d *Driver) SetUniform(id driver.Program, name string, v driver.Uniform) {
	if p, ok := d.programs[id]; ok {
		p.uniforms[name] = v
	}
}

// Uniform returns the last value set for a program parameter.
func (d *Driver) Uniform(id driver.Program, name string) (driver.Uniform, bool) {
	p, ok := d.programs[id]
	if !ok {
		return driver.Uniform{}, false
	}
	u, ok := p.uniforms[name]
	return u, ok
}

// BindTexture implements driver.Driver.
func (d *Driver) BindTexture(unit int, t driver.Texture) {
	if unit >= 0 && unit < maxUnits {
		d.units[unit] = t
	}
}

// SetBlend implements driver.Driver.
func (d *Driver) SetBlend(s driver.BlendState) { d.blend = s }

// SetDrawFlags implements driver.Driver.
func (d *Driver) SetDrawFlags(f driver.DrawFlags) { d.flags = f }

func blendFactor(f driver.BlendFactor) gputypes.BlendFactor {
	switch f {
	case driver.BlendZero:
		return gputypes.BlendFactorZero
	case driver.BlendSrcAlpha:
		return gputypes.BlendFactorSrcAlpha
	case driver.BlendOneMinusSrcAlpha:
		return gputypes.BlendFactorOneMinusSrcAlpha
	default:
		return gputypes.BlendFactorOne
	}
}

// blendState translates the engine blend state. Min and Max ignore the
// factors, which WebGPU requires to be One.
func blendState(s driver.BlendState) gputypes.BlendState {
	switch s.Op {
	case driver.BlendOpMin, driver.BlendOpMax:
		op := gputypes.BlendOperationMin
		if s.Op == driver.BlendOpMax {
			op = gputypes.BlendOperationMax
		}
		c := gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: op}
		return gputypes.BlendState{Color: c, Alpha: c}
	default:
		return gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: blendFactor(s.SrcColor),
				DstFactor: blendFactor(s.DstColor),
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: blendFactor(s.SrcAlpha),
				DstFactor: blendFactor(s.DstAlpha),
				Operation: gputypes.BlendOperationAdd,
			},
		}
	}
}

// vertexLayout matches driver.Vertex: position, texture coordinate and an
// 8-bit color.
func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: driver.VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
				{Format: gputypes.VertexFormatUnorm8x4, Offset: 16, ShaderLocation: 2},
			},
		},
	}
}

// pipeline returns the pipeline of p for key, creating it on first use.
func (p *program) pipeline(device hal.Device, key pipelineKey) (hal.RenderPipeline, error) {
	if pl, ok := p.pipelines[key]; ok {
		return pl, nil
	}
	blend := blendState(key.blend)
	targets := make([]gputypes.ColorTargetState, key.ncolors)
	for i := range targets {
		targets[i] = gputypes.ColorTargetState{Format: key.colors[i], Blend: &blend, WriteMask: gputypes.ColorWriteMaskAll}
		if i > 0 {
			// Programs write location 0 only.
			targets[i].WriteMask = gputypes.ColorWriteMaskNone
		}
	}
	desc := &hal.RenderPipelineDescriptor{
		Label:  p.label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: "fs_main",
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: uint32(key.samples), //nolint:gosec // 1 or 4
			Mask:  0xFFFFFFFF,
		},
	}
	if !p.vertexless {
		desc.Vertex.Buffers = vertexLayout()
	}
	if key.depth {
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:       gputypes.TextureFormatDepth24PlusStencil8,
			DepthCompare: gputypes.CompareFunctionAlways,
			StencilFront: keep,
			StencilBack:  keep,
		}
	}
	pl, err := device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: program %q: create pipeline: %w", p.label, err)
	}
	p.pipelines[key] = pl
	return pl, nil
}
