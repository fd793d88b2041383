//go:build !nogpu

// Package gpu implements driver.Driver on a WebGPU device through
// gogpu/wgpu/hal.
//
// The driver records every clear, blit and draw as its own render pass and
// submits it immediately. Submissions are only waited for when pixels are
// read back, or when too many command buffers are in flight.
//
// A driver either opens its own device (New, the "gpu" registry entry) or
// borrows one from a host application (NewFromProvider, NewFromDevice).
// Borrowed devices are never destroyed by Release.
package gpu

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/compose/driver"
)

func init() {
	driver.Register(Name, func() (driver.Driver, error) { return New() })
}

// Name is the registry name of the WebGPU driver.
const Name = "gpu"

// maxInFlight bounds the command buffers submitted without a wait.
const maxInFlight = 64

// waitTimeout bounds a fence wait.
const waitTimeout = 5 * time.Second

// Option configures a driver opened by New.
type Option func(*options)

type options struct {
	backend gputypes.Backend
	limits  gputypes.Limits
}

// WithBackend selects the hal backend New opens. Vulkan is the default.
func WithBackend(b gputypes.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithLimits sets the device limits requested by New.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) { o.limits = l }
}

// Driver is a WebGPU device.
type Driver struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	caps     driver.Caps

	nextID        uint32
	textures      map[driver.Texture]*texture
	renderbuffers map[driver.Renderbuffer]*texture
	framebuffers  map[driver.Framebuffer]*framebuffer
	buffers       map[driver.Buffer]*buffer
	programs      map[driver.Program]*program

	bound   driver.Framebuffer
	current driver.Program
	units   [maxUnits]driver.Texture
	blend   driver.BlendState
	flags   driver.DrawFlags

	sampler hal.Sampler
	white   *texture
	blit    *program

	fence     hal.Fence
	submitted uint64
	inFlight  []hal.CommandBuffer
	garbage   []func()

	log *slog.Logger
}

// maxUnits is the number of texture units a program can bind.
const maxUnits = 8

var _ driver.Driver = (*Driver)(nil)

// New opens the first discrete or integrated adapter of the selected
// backend and creates a driver on it.
func New(opts ...Option) (*Driver, error) {
	o := options{backend: gputypes.BackendVulkan, limits: gputypes.DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	backend, ok := hal.GetBackend(o.backend)
	if !ok {
		return nil, fmt.Errorf("gpu: backend %v not available: %w", o.backend, driver.ErrNotSupported)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: no adapters: %w", driver.ErrNotSupported)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), o.limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}
	d, err := newDriver(open.Device, open.Queue, o.limits, selected.Info.Name)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	return d, nil
}

// NewFromDevice creates a driver on a device owned by the caller.
func NewFromDevice(device hal.Device, queue hal.Queue, limits gputypes.Limits) (*Driver, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("gpu: nil device or queue: %w", driver.ErrNotSupported)
	}
	d, err := newDriver(device, queue, limits, "external device")
	if err != nil {
		return nil, err
	}
	d.external = true
	return d, nil
}

// NewFromProvider creates a driver on the device of a host application.
// The provider must also expose its hal objects through HalDevice and
// HalQueue.
func NewFromProvider(p gpucontext.DeviceProvider) (*Driver, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose hal types: %w", driver.ErrNotSupported)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not a hal.Device: %w", driver.ErrNotSupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not a hal.Queue: %w", driver.ErrNotSupported)
	}
	return NewFromDevice(device, queue, gputypes.DefaultLimits())
}

func newDriver(device hal.Device, queue hal.Queue, limits gputypes.Limits, name string) (*Driver, error) {
	d := &Driver{
		device:        device,
		queue:         queue,
		textures:      make(map[driver.Texture]*texture),
		renderbuffers: make(map[driver.Renderbuffer]*texture),
		framebuffers:  make(map[driver.Framebuffer]*framebuffer),
		buffers:       make(map[driver.Buffer]*buffer),
		programs:      make(map[driver.Program]*program),
		blend: driver.BlendState{
			SrcColor: driver.BlendSrcAlpha, DstColor: driver.BlendOneMinusSrcAlpha,
			SrcAlpha: driver.BlendOne, DstAlpha: driver.BlendOneMinusSrcAlpha,
		},
		flags: driver.DrawTextured | driver.DrawVertexColors,
		log:   slog.New(nopHandler{}),
		caps: driver.Caps{
			Device:             name,
			MaxTextureSize:     int(limits.MaxTextureDimension2D),
			MaxSamples:         4,
			PackedDepthStencil: true,
			StagingBuffers:     true,
			BlendMinMax:        true,
			FullShading:        true,
		},
	}
	if d.caps.MaxTextureSize == 0 {
		d.caps.MaxTextureSize = 8192
	}

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	d.fence = fence

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "compose_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		device.DestroyFence(fence)
		return nil, fmt.Errorf("gpu: create sampler: %w", err)
	}
	d.sampler = sampler
	return d, nil
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

// MakeCurrent implements driver.Driver. hal devices have no thread
// affinity.
func (d *Driver) MakeCurrent() error { return nil }

// Device returns the hal device the driver renders with.
func (d *Driver) Device() hal.Device { return d.device }

// Live returns the number of live objects of each kind, in the order
// textures, renderbuffers, framebuffers, buffers, programs.
func (d *Driver) Live() [5]int {
	return [5]int{len(d.textures), len(d.renderbuffers), len(d.framebuffers), len(d.buffers), len(d.programs)}
}

func (d *Driver) id() uint32 {
	d.nextID++
	return d.nextID
}

// Release implements driver.Driver.
func (d *Driver) Release() {
	if d.device == nil {
		return
	}
	if err := d.sync(); err != nil {
		d.log.Warn("gpu: release before idle", slog.String("error", err.Error()))
	}
	d.log.Debug("gpu: release",
		slog.Int("textures", len(d.textures)),
		slog.Int("framebuffers", len(d.framebuffers)),
		slog.Int("buffers", len(d.buffers)))

	for id := range d.programs {
		d.DeleteProgram(id)
	}
	for id := range d.buffers {
		d.DeleteBuffer(id)
	}
	for id := range d.renderbuffers {
		d.DeleteRenderbuffer(id)
	}
	for id := range d.textures {
		d.DeleteTexture(id)
	}
	clear(d.framebuffers)
	if d.blit != nil {
		d.blit.destroy(d.device)
		d.blit = nil
	}
	if d.white != nil {
		d.white.destroy(d.device)
		d.white = nil
	}
	d.collect()
	d.device.DestroySampler(d.sampler)
	d.device.DestroyFence(d.fence)
	d.bound, d.current = 0, 0

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device, d.queue, d.instance = nil, nil, nil
}

// submit ends the encoder and queues it. Objects the commands use must
// stay alive until the next sync; callers hand their cleanup to defer.
func (d *Driver) submit(enc hal.CommandEncoder) error {
	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	d.submitted++
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, d.fence, d.submitted); err != nil {
		d.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("gpu: submit: %w", err)
	}
	d.inFlight = append(d.inFlight, cmd)
	if len(d.inFlight) >= maxInFlight {
		return d.sync()
	}
	return nil
}

// deferFree queues cleanup to run once the submitted work has completed.
func (d *Driver) deferFree(f func()) { d.garbage = append(d.garbage, f) }

// sync waits for every submission, then frees finished command buffers
// and deferred objects.
func (d *Driver) sync() error {
	if d.submitted > 0 && len(d.inFlight) > 0 {
		ok, err := d.device.Wait(d.fence, d.submitted, waitTimeout)
		if err != nil {
			return fmt.Errorf("gpu: wait for device: %w", err)
		}
		if !ok {
			return fmt.Errorf("gpu: device did not finish within %v", waitTimeout)
		}
	}
	for _, cmd := range d.inFlight {
		d.device.FreeCommandBuffer(cmd)
	}
	d.inFlight = d.inFlight[:0]
	d.collect()
	return nil
}

func (d *Driver) collect() {
	for _, f := range d.garbage {
		f()
	}
	d.garbage = d.garbage[:0]
}

func (d *Driver) encoder(label string) (hal.CommandEncoder, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}
	return enc, nil
}
