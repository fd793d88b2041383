package compose

import (
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/compose/driver"
)

// ProgramRegistry compiles programs from a library file system and caches
// them by id. One registry belongs to each RenderContext.
type ProgramRegistry struct {
	ctx      *RenderContext
	fsys     fs.FS
	defines  map[string]string
	programs map[string]*Program
	current  *Program
}

// NewProgramRegistry creates a registry reading "<id>.wgsl" files from
// fsys.
func NewProgramRegistry(ctx *RenderContext, fsys fs.FS) *ProgramRegistry {
	return &ProgramRegistry{
		ctx:      ctx,
		fsys:     fsys,
		defines:  make(map[string]string),
		programs: make(map[string]*Program),
	}
}

// SetDefine adds a macro applied to every program compiled afterwards.
func (r *ProgramRegistry) SetDefine(name, value string) {
	r.defines[name] = value
}

// CreateProgram preprocesses and compiles program id unless it is already
// cached. Malformed include directives return a *SyntaxError.
func (r *ProgramRegistry) CreateProgram(id string) error {
	if _, ok := r.programs[id]; ok {
		return nil
	}
	pp := preprocessor{fsys: r.fsys, defines: r.defines}
	src, err := pp.process(id + ".wgsl")
	if err != nil {
		return err
	}
	h, err := r.ctx.drv.CompileProgram(id, src)
	if err != nil {
		return fmt.Errorf("compose: compile program %s: %w", id, err)
	}
	r.programs[id] = &Program{
		id:     id,
		handle: h,
		reg:    r,
		params: make(map[string]param),
	}
	Logger().Debug("compose: program compiled", slog.String("id", id))
	return nil
}

// Program returns the cached program id, or nil.
func (r *ProgramRegistry) Program(id string) *Program {
	return r.programs[id]
}

// SetCurrent records p as the active program. Nil clears it.
func (r *ProgramRegistry) SetCurrent(p *Program) { r.current = p }

// Current returns the program activated last.
func (r *ProgramRegistry) Current() *Program { return r.current }

// Len returns the number of cached programs.
func (r *ProgramRegistry) Len() int { return len(r.programs) }

func (r *ProgramRegistry) clear() {
	for id, p := range r.programs {
		r.ctx.drv.DeleteProgram(p.handle)
		delete(r.programs, id)
	}
	r.current = nil
}

// Program is a compiled program and its typed parameters.
type Program struct {
	id     string
	handle driver.Program
	reg    *ProgramRegistry
	params map[string]param
	order  []string
}

type param interface {
	push(drv driver.Driver, h driver.Program)
}

// ID returns the program id.
func (p *Program) ID() string { return p.id }

// Handle returns the driver program.
func (p *Program) Handle() driver.Program { return p.handle }

// Activate makes p the driver's program and uploads every parameter that
// has a value.
func (p *Program) Activate() {
	drv := p.reg.ctx.drv
	drv.UseProgram(p.handle)
	for _, name := range p.order {
		p.params[name].push(drv, p.handle)
	}
	p.reg.current = p
}

func (p *Program) isCurrent() bool { return p.reg.current == p }

// Param is a named, typed program parameter. Set stores the value and,
// when the program is active, uploads it immediately.
type Param[T any] struct {
	prog   *Program
	name   string
	value  T
	set    bool
	encode func(T) driver.Uniform
}

// Set assigns the parameter value.
func (x *Param[T]) Set(v T) {
	x.value, x.set = v, true
	if x.prog.isCurrent() {
		x.push(x.prog.reg.ctx.drv, x.prog.handle)
	}
}

// Get returns the last value set.
func (x *Param[T]) Get() T { return x.value }

// Name returns the uniform name.
func (x *Param[T]) Name() string { return x.name }

func (x *Param[T]) push(drv driver.Driver, h driver.Program) {
	if x.set {
		drv.SetUniform(h, x.name, x.encode(x.value))
	}
}

func getParam[T any](p *Program, name string, encode func(T) driver.Uniform) *Param[T] {
	if existing, ok := p.params[name]; ok {
		typed, ok := existing.(*Param[T])
		if !ok {
			panic(fmt.Sprintf("compose: program %s parameter %s has type %T", p.id, name, existing))
		}
		return typed
	}
	x := &Param[T]{prog: p, name: name, encode: encode}
	p.params[name] = x
	p.order = append(p.order, name)
	return x
}

// IntParam returns the integer parameter name, creating it on first use.
// Texture unit bindings are integer parameters.
func (p *Program) IntParam(name string) *Param[int32] {
	return getParam(p, name, driver.Int)
}

// FloatParam returns the scalar parameter name.
func (p *Program) FloatParam(name string) *Param[float32] {
	return getParam(p, name, driver.Float)
}

// Vec2Param returns the two component parameter name.
func (p *Program) Vec2Param(name string) *Param[mgl32.Vec2] {
	return getParam(p, name, func(v mgl32.Vec2) driver.Uniform { return driver.Vec2(v[0], v[1]) })
}

// Vec4Param returns the four component parameter name.
func (p *Program) Vec4Param(name string) *Param[mgl32.Vec4] {
	return getParam(p, name, func(v mgl32.Vec4) driver.Uniform { return driver.Vec4(v[0], v[1], v[2], v[3]) })
}

// Mat4Param returns the matrix parameter name.
func (p *Program) Mat4Param(name string) *Param[mgl32.Mat4] {
	return getParam(p, name, func(m mgl32.Mat4) driver.Uniform { return driver.Mat4(m) })
}

// BoolParam returns a flag stored as an integer parameter.
func (p *Program) BoolParam(name string) *Param[bool] {
	return getParam(p, name, func(b bool) driver.Uniform {
		if b {
			return driver.Int(1)
		}
		return driver.Int(0)
	})
}
