// Package soft implements driver.Driver on the CPU.
//
// It is the reference device of the engine: deterministic, headless and
// complete enough to run every render path, which makes it the device the
// engine's tests render against. Programs are matched by label to Go
// fragment functions (see RegisterProgram); the source text is kept but not
// executed.
package soft

import (
	"fmt"
	"image"
	"log/slog"
	"runtime"

	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/driver"
	"github.com/gogpu/compose/internal/parallel"
)

func init() {
	driver.Register(Name, func() (driver.Driver, error) { return New(), nil })
}

// Name is the registry name of the software driver.
const Name = "soft"

// DefaultCaps are the capabilities New reports unless overridden.
var DefaultCaps = driver.Caps{
	Device:             "software rasterizer",
	MaxTextureSize:     4096,
	MaxSamples:         8,
	PackedDepthStencil: true,
	StagingBuffers:     true,
	BlendMinMax:        true,
	Mipmaps:            true,
	FullShading:        true,
}

// Option configures a software driver.
type Option func(*Driver)

// WithCaps replaces the reported capabilities.
func WithCaps(c driver.Caps) Option {
	return func(d *Driver) { d.caps = c }
}

// WithWorkers sets the number of goroutines a draw is split across.
// One rasterizes on the calling goroutine; zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Driver) { d.nworkers = n }
}

// WithTrace records every state-changing call in Events.
func WithTrace() Option {
	return func(d *Driver) { d.trace = true }
}

// Stats counts driver calls that tests and diagnostics care about.
type Stats struct {
	BlendChanges      int
	ProgramsCompiled  int
	Draws             int
	Uploads           int
	BufferWrites      int
	FramebuffersAlloc int
	Copies            int
}

// Event is one traced call.
type Event struct {
	Op          string
	Framebuffer driver.Framebuffer
	Program     string
	Texture     driver.Texture
	Count       int
}

type texture struct {
	desc   driver.TextureDesc
	levels []*bitmap.Bitmap
}

type renderbuffer struct {
	desc  driver.RenderbufferDesc
	color *bitmap.Bitmap
}

type attachment struct {
	tex driver.Texture
	rb  driver.Renderbuffer
}

type framebuffer struct {
	colors       map[int]attachment
	depthStencil driver.Renderbuffer
}

type buffer struct {
	kind    driver.BufferKind
	data    []byte
	pending bool
	mapped  bool
}

type program struct {
	label    string
	source   string
	shade    FragmentFunc
	uniforms map[string]driver.Uniform
}

// Driver is the software device.
type Driver struct {
	caps  driver.Caps
	trace bool

	nextID        uint32
	textures      map[driver.Texture]*texture
	renderbuffers map[driver.Renderbuffer]*renderbuffer
	framebuffers  map[driver.Framebuffer]*framebuffer
	buffers       map[driver.Buffer]*buffer
	programs      map[driver.Program]*program

	bound   driver.Framebuffer
	current driver.Program
	units   [maxUnits]driver.Texture
	blend   driver.BlendState
	flags   driver.DrawFlags

	nworkers int
	workPool *parallel.Pool

	stats  Stats
	events []Event
	log    *slog.Logger
}

const maxUnits = 8

var _ driver.Driver = (*Driver)(nil)

// New creates a software driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		caps:          DefaultCaps,
		textures:      make(map[driver.Texture]*texture),
		renderbuffers: make(map[driver.Renderbuffer]*renderbuffer),
		framebuffers:  make(map[driver.Framebuffer]*framebuffer),
		buffers:       make(map[driver.Buffer]*buffer),
		programs:      make(map[driver.Program]*program),
		blend: driver.BlendState{
			SrcColor: driver.BlendSrcAlpha, DstColor: driver.BlendOneMinusSrcAlpha,
			SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendOneMinusSrcAlpha,
		},
		flags: driver.DrawTextured | driver.DrawVertexColors,
		log:   slog.New(nopHandler{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Driver) workers() int {
	if d.nworkers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return d.nworkers
}

func (d *Driver) pool() *parallel.Pool {
	if d.workPool == nil {
		d.workPool = parallel.NewPool(d.workers())
	}
	return d.workPool
}

// SetLogger sets the driver logger. Nil silences it.
func (d *Driver) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	d.log = l
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return Name }

// Caps implements driver.Driver.
func (d *Driver) Caps() driver.Caps { return d.caps }

// MakeCurrent implements driver.Driver. The CPU device has no thread
// affinity.
func (d *Driver) MakeCurrent() error { return nil }

// Stats returns the call counters.
func (d *Driver) Stats() Stats { return d.stats }

// Events returns the traced calls. Empty unless WithTrace was given.
func (d *Driver) Events() []Event { return d.events }

// ResetEvents clears the trace.
func (d *Driver) ResetEvents() { d.events = d.events[:0] }

// Live returns the number of live objects of each kind, in the order
// textures, renderbuffers, framebuffers, buffers, programs.
func (d *Driver) Live() [5]int {
	return [5]int{len(d.textures), len(d.renderbuffers), len(d.framebuffers), len(d.buffers), len(d.programs)}
}

// Release implements driver.Driver.
func (d *Driver) Release() {
	if d.workPool != nil {
		d.workPool.Close()
		d.workPool = nil
	}
	d.log.Debug("soft: release",
		slog.Int("textures", len(d.textures)),
		slog.Int("framebuffers", len(d.framebuffers)),
		slog.Int("buffers", len(d.buffers)))
	clear(d.textures)
	clear(d.renderbuffers)
	clear(d.framebuffers)
	clear(d.buffers)
	clear(d.programs)
	d.bound, d.current = 0, 0
}

func (d *Driver) id() uint32 {
	d.nextID++
	return d.nextID
}

func (d *Driver) record(e Event) {
	if d.trace {
		d.events = append(d.events, e)
	}
}

// NewTexture implements driver.Driver.
func (d *Driver) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	if desc.Size.X > d.caps.MaxTextureSize || desc.Size.Y > d.caps.MaxTextureSize {
		return 0, fmt.Errorf("soft: texture %v exceeds %d: %w", desc.Size, d.caps.MaxTextureSize, driver.ErrNotSupported)
	}
	base, err := bitmap.New(desc.Size, desc.Format)
	if err != nil {
		return 0, fmt.Errorf("soft: create texture: %w", err)
	}
	t := &texture{desc: desc, levels: []*bitmap.Bitmap{base}}
	id := driver.Texture(d.id())
	d.textures[id] = t
	return id, nil
}

// DeleteTexture implements driver.Driver.
func (d *Driver) DeleteTexture(t driver.Texture) {
	delete(d.textures, t)
	for i, u := range d.units {
		if u == t {
			d.units[i] = 0
		}
	}
}

// UploadTexture implements driver.Driver.
func (d *Driver) UploadTexture(t driver.Texture, bmp *bitmap.Bitmap) error {
	tex, ok := d.textures[t]
	if !ok {
		return fmt.Errorf("soft: upload texture %d: %w", t, driver.ErrUnknownHandle)
	}
	tex.levels[0].Clear()
	bmp.CopyInto(tex.levels[0])
	d.stats.Uploads++
	return nil
}

// GenerateMipmaps implements driver.Driver.
func (d *Driver) GenerateMipmaps(t driver.Texture) error {
	tex, ok := d.textures[t]
	if !ok {
		return fmt.Errorf("soft: mipmaps %d: %w", t, driver.ErrUnknownHandle)
	}
	chain := bitmap.GenerateMipmaps(tex.levels[0])
	levels := make([]*bitmap.Bitmap, chain.NumLevels())
	for i := range levels {
		levels[i] = chain.Level(i)
	}
	tex.levels = levels
	return nil
}

// TexturePixels returns level 0 of a texture. Tests use it to inspect
// render results without a readback round trip.
func (d *Driver) TexturePixels(t driver.Texture) *bitmap.Bitmap {
	if tex, ok := d.textures[t]; ok {
		return tex.levels[0]
	}
	return nil
}

// TextureLevels returns the number of mip levels currently held.
func (d *Driver) TextureLevels(t driver.Texture) int {
	if tex, ok := d.textures[t]; ok {
		return len(tex.levels)
	}
	return 0
}

// NewRenderbuffer implements driver.Driver.
func (d *Driver) NewRenderbuffer(desc driver.RenderbufferDesc) (driver.Renderbuffer, error) {
	if desc.Samples > d.caps.MaxSamples {
		return 0, fmt.Errorf("soft: %d samples: %w", desc.Samples, driver.ErrNotSupported)
	}
	if desc.Kind == driver.RenderbufferDepthStencil && !d.caps.PackedDepthStencil {
		return 0, fmt.Errorf("soft: depth/stencil: %w", driver.ErrNotSupported)
	}
	rb := &renderbuffer{desc: desc}
	if desc.Kind == driver.RenderbufferColor {
		// One sample per pixel is stored whatever the requested count.
		bmp, err := bitmap.New(desc.Size, desc.Format)
		if err != nil {
			return 0, fmt.Errorf("soft: create renderbuffer: %w", err)
		}
		rb.color = bmp
	}
	id := driver.Renderbuffer(d.id())
	d.renderbuffers[id] = rb
	return id, nil
}

// DeleteRenderbuffer implements driver.Driver.
func (d *Driver) DeleteRenderbuffer(rb driver.Renderbuffer) { delete(d.renderbuffers, rb) }

// NewFramebuffer implements driver.Driver.
func (d *Driver) NewFramebuffer() (driver.Framebuffer, error) {
	id := driver.Framebuffer(d.id())
	d.framebuffers[id] = &framebuffer{colors: make(map[int]attachment)}
	d.stats.FramebuffersAlloc++
	return id, nil
}

// DeleteFramebuffer implements driver.Driver.
func (d *Driver) DeleteFramebuffer(fb driver.Framebuffer) {
	delete(d.framebuffers, fb)
	if d.bound == fb {
		d.bound = 0
	}
}

// AttachTexture implements driver.Driver.
func (d *Driver) AttachTexture(fb driver.Framebuffer, slot int, t driver.Texture) {
	if f, ok := d.framebuffers[fb]; ok {
		f.colors[slot] = attachment{tex: t}
	}
}

// AttachRenderbuffer implements driver.Driver.
func (d *Driver) AttachRenderbuffer(fb driver.Framebuffer, point driver.Attachment, rb driver.Renderbuffer) {
	f, ok := d.framebuffers[fb]
	if !ok {
		return
	}
	switch point {
	case driver.AttachmentColor0:
		f.colors[0] = attachment{rb: rb}
	case driver.AttachmentDepthStencil:
		f.depthStencil = rb
	}
}

// DetachAll implements driver.Driver.
func (d *Driver) DetachAll(fb driver.Framebuffer) {
	if f, ok := d.framebuffers[fb]; ok {
		clear(f.colors)
		f.depthStencil = 0
	}
}

// Status implements driver.Driver.
func (d *Driver) Status(fb driver.Framebuffer) driver.FramebufferStatus {
	f, ok := d.framebuffers[fb]
	if !ok || len(f.colors) == 0 {
		return driver.StatusMissingAttachment
	}
	var size image.Point
	samples := -1
	for _, a := range f.colors {
		sz, n, ok := d.attachmentInfo(a)
		if !ok {
			return driver.StatusIncompleteAttachment
		}
		if size == (image.Point{}) {
			size = sz
		} else if sz != size {
			return driver.StatusIncompleteDimensions
		}
		if samples >= 0 && samples != n {
			return driver.StatusIncompleteMultisample
		}
		samples = n
	}
	if f.depthStencil != 0 {
		rb, ok := d.renderbuffers[f.depthStencil]
		if !ok || rb.desc.Kind != driver.RenderbufferDepthStencil {
			return driver.StatusIncompleteAttachment
		}
		if rb.desc.Size != size {
			return driver.StatusIncompleteDimensions
		}
		if max(rb.desc.Samples, 1) != samples {
			return driver.StatusIncompleteMultisample
		}
	}
	return driver.StatusComplete
}

func (d *Driver) attachmentInfo(a attachment) (image.Point, int, bool) {
	if a.tex != 0 {
		t, ok := d.textures[a.tex]
		if !ok {
			return image.Point{}, 0, false
		}
		return t.desc.Size, 1, true
	}
	rb, ok := d.renderbuffers[a.rb]
	if !ok || rb.desc.Kind != driver.RenderbufferColor {
		return image.Point{}, 0, false
	}
	return rb.desc.Size, max(rb.desc.Samples, 1), true
}

func (d *Driver) colorTarget(fb driver.Framebuffer, slot int) *bitmap.Bitmap {
	f, ok := d.framebuffers[fb]
	if !ok {
		return nil
	}
	a, ok := f.colors[slot]
	if !ok {
		return nil
	}
	if a.tex != 0 {
		if t, ok := d.textures[a.tex]; ok {
			return t.levels[0]
		}
		return nil
	}
	if rb, ok := d.renderbuffers[a.rb]; ok {
		return rb.color
	}
	return nil
}

// BindFramebuffer implements driver.Driver.
func (d *Driver) BindFramebuffer(fb driver.Framebuffer) {
	d.bound = fb
	d.record(Event{Op: "bind", Framebuffer: fb})
}

// Bound returns the bound framebuffer.
func (d *Driver) Bound() driver.Framebuffer { return d.bound }

// Blit implements driver.Driver.
func (d *Driver) Blit(src, dst driver.Framebuffer, size image.Point) error {
	s, t := d.colorTarget(src, 0), d.colorTarget(dst, 0)
	if s == nil || t == nil {
		return fmt.Errorf("soft: blit %d -> %d: %w", src, dst, driver.ErrUnknownHandle)
	}
	if size != s.Size() {
		s = subBitmap(s, size)
	}
	s.CopyInto(t)
	d.record(Event{Op: "blit", Framebuffer: dst})
	return nil
}

func subBitmap(b *bitmap.Bitmap, size image.Point) *bitmap.Bitmap {
	size.X, size.Y = min(size.X, b.Width()), min(size.Y, b.Height())
	sub, err := bitmap.FromRaw(b.Pix(), size, b.Format(), b.Stride())
	if err != nil {
		return b
	}
	return sub
}

// Clear implements driver.Driver.
func (d *Driver) Clear(c driver.Color) {
	f, ok := d.framebuffers[d.bound]
	if !ok {
		return
	}
	for slot := range f.colors {
		if bmp := d.colorTarget(d.bound, slot); bmp != nil {
			bmp.Fill(unit8(c.R), unit8(c.G), unit8(c.B), unit8(c.A))
		}
	}
	d.record(Event{Op: "clear", Framebuffer: d.bound})
}

// SetBlend implements driver.Driver.
func (d *Driver) SetBlend(s driver.BlendState) {
	d.blend = s
	d.stats.BlendChanges++
	d.record(Event{Op: "blend", Count: int(s.Op)})
}

// SetDrawFlags implements driver.Driver.
func (d *Driver) SetDrawFlags(f driver.DrawFlags) {
	d.flags = f
	d.record(Event{Op: "flags", Count: int(f)})
}

// NewBuffer implements driver.Driver.
func (d *Driver) NewBuffer(kind driver.BufferKind) (driver.Buffer, error) {
	id := driver.Buffer(d.id())
	d.buffers[id] = &buffer{kind: kind}
	return id, nil
}

// DeleteBuffer implements driver.Driver.
func (d *Driver) DeleteBuffer(b driver.Buffer) { delete(d.buffers, b) }

// WriteBuffer implements driver.Driver.
func (d *Driver) WriteBuffer(b driver.Buffer, data []byte) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("soft: write buffer %d: %w", b, driver.ErrUnknownHandle)
	}
	buf.data = append(buf.data[:0], data...)
	d.stats.BufferWrites++
	return nil
}

// CopyToBuffer implements driver.Driver.
func (d *Driver) CopyToBuffer(fb driver.Framebuffer, slot int, b driver.Buffer) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("soft: copy to buffer %d: %w", b, driver.ErrUnknownHandle)
	}
	src := d.colorTarget(fb, slot)
	if src == nil {
		return fmt.Errorf("soft: copy from framebuffer %d slot %d: %w", fb, slot, driver.ErrUnknownHandle)
	}
	out, _ := bitmap.New(src.Size(), bitmap.FormatRGBA8)
	src.CopyInto(out)
	buf.data = append(buf.data[:0], out.Pix()...)
	buf.pending = true
	d.stats.Copies++
	d.record(Event{Op: "copy", Framebuffer: fb})
	return nil
}

// MapBuffer implements driver.Driver.
func (d *Driver) MapBuffer(b driver.Buffer) ([]byte, error) {
	buf, ok := d.buffers[b]
	if !ok {
		return nil, fmt.Errorf("soft: map buffer %d: %w", b, driver.ErrUnknownHandle)
	}
	buf.pending = false
	buf.mapped = true
	return buf.data, nil
}

// UnmapBuffer implements driver.Driver.
func (d *Driver) UnmapBuffer(b driver.Buffer) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("soft: unmap buffer %d: %w", b, driver.ErrUnknownHandle)
	}
	if !buf.mapped {
		return driver.ErrNotMapped
	}
	buf.mapped = false
	return nil
}

// ReadPixels implements driver.Driver.
func (d *Driver) ReadPixels(fb driver.Framebuffer, slot int, dst *bitmap.Bitmap) error {
	src := d.colorTarget(fb, slot)
	if src == nil {
		return fmt.Errorf("soft: read framebuffer %d slot %d: %w", fb, slot, driver.ErrUnknownHandle)
	}
	src.CopyInto(dst)
	return nil
}

// CompileProgram implements driver.Driver.
func (d *Driver) CompileProgram(label, source string) (driver.Program, error) {
	if source == "" {
		return 0, fmt.Errorf("soft: program %q: empty source: %w", label, driver.ErrCompile)
	}
	shade := lookupProgram(label)
	if shade == nil {
		d.log.Warn("soft: no fragment function, sampling texture unit 0", slog.String("program", label))
		shade = shadeTextured
	}
	id := driver.Program(d.id())
	d.programs[id] = &program{
		label:    label,
		source:   source,
		shade:    shade,
		uniforms: make(map[string]driver.Uniform),
	}
	d.stats.ProgramsCompiled++
	return id, nil
}

// ProgramSource returns the source a program was compiled from.
func (d *Driver) ProgramSource(p driver.Program) string {
	if prog, ok := d.programs[p]; ok {
		return prog.source
	}
	return ""
}

// DeleteProgram implements driver.Driver.
func (d *Driver) DeleteProgram(p driver.Program) {
	delete(d.programs, p)
	if d.current == p {
		d.current = 0
	}
}

// UseProgram implements driver.Driver.
func (d *Driver) UseProgram(p driver.Program) { d.current = p }

// SetUniform implements driver.Driver.
func (d *Driver) SetUniform(p driver.Program, name string, v driver.Uniform) {
	if prog, ok := d.programs[p]; ok {
		prog.uniforms[name] = v
	}
}

// Uniform returns the last value set for a program parameter.
func (d *Driver) Uniform(p driver.Program, name string) (driver.Uniform, bool) {
	prog, ok := d.programs[p]
	if !ok {
		return driver.Uniform{}, false
	}
	u, ok := prog.uniforms[name]
	return u, ok
}

// BindTexture implements driver.Driver.
func (d *Driver) BindTexture(unit int, t driver.Texture) {
	if unit >= 0 && unit < maxUnits {
		d.units[unit] = t
	}
}

func unit8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
