package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/cogentcore/webgpu/wgpu"
)

// Bindings used by programs on the wgpu backend. Shader resource slot n maps to
// @binding(n), unordered access slot n to @binding(UABindingBase+n) and constant
// buffer slot n to @binding(CBBindingBase+n), all in @group(0).
const (
	UABindingBase = 32
	CBBindingBase = 48
)

// wgpuContext implements Context on top of cogentcore/webgpu.
type wgpuContext struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	limits   Limits
	features Features
	frame    uint64

	encoder *wgpu.CommandEncoder

	sr map[int]Resource
	ua map[int]Resource
	cb map[int]Buffer

	colorTargets []*wgpuTexture
	depthTarget  *wgpuTexture
	viewport     Viewport
	hasViewport  bool

	clearPrograms map[string]*wgpuProgram

	// uploads are staging buffers of this frame's UpdateBuffer calls, released
	// after submission.
	uploads []*wgpu.Buffer

	readbacks map[uint64]*wgpuReadback
	nextID    uint64

	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	label                string
}

var _ Context = &wgpuContext{}

type wgpuTexture struct {
	desc TextureDesc
	tex  *wgpu.Texture
	view *wgpu.TextureView
}

func (t *wgpuTexture) Label() string     { return t.desc.Label }
func (t *wgpuTexture) Desc() TextureDesc { return t.desc }
func (t *wgpuTexture) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

type wgpuBuffer struct {
	desc BufferDesc
	buf  *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string    { return b.desc.Label }
func (b *wgpuBuffer) Desc() BufferDesc { return b.desc }
func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

type wgpuProgram struct {
	desc     ProgramDesc
	module   *wgpu.ShaderModule
	compute  *wgpu.ComputePipeline
	render   map[string]*wgpu.RenderPipeline // keyed by color target formats
	bindings map[uint32]bool
}

func (p *wgpuProgram) Key() string              { return p.desc.Key }
func (p *wgpuProgram) Kind() ProgramKind        { return p.desc.Kind }
func (p *wgpuProgram) WorkgroupSize() [3]uint32 { return p.desc.WorkgroupSize }

type wgpuReadback struct {
	staging *wgpu.Buffer
	size    uint64
	frame   uint64
	mapping bool
	ready   bool
	failed  bool
}

// NewWGPUContext creates a Context backed by a real WebGPU device. With no
// surface descriptor the adapter is chosen for headless compute.
//
// Parameters:
//   - opts: variadic WGPUContextBuilderOption functions
//
// Returns:
//   - Context: the GPU context
//   - error: error if no adapter or device could be created
func NewWGPUContext(opts ...WGPUContextBuilderOption) (Context, error) {
	runtime.LockOSThread()

	c := &wgpuContext{
		sr:            make(map[int]Resource),
		ua:            make(map[int]Resource),
		cb:            make(map[int]Buffer),
		clearPrograms: make(map[string]*wgpuProgram),
		readbacks:     make(map[uint64]*wgpuReadback),
		label:         "GI Device",
	}
	for _, opt := range opts {
		opt(c)
	}

	c.instance = wgpu.CreateInstance(nil)

	adapterOpts := &wgpu.RequestAdapterOptions{ForceFallbackAdapter: c.forceFallbackAdapter}
	if c.surfaceDescriptor != nil {
		adapterOpts.CompatibleSurface = c.instance.CreateSurface(c.surfaceDescriptor)
	}
	a, err := c.instance.RequestAdapter(adapterOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	c.adapter = a

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 4

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: c.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	c.device = d
	c.queue = d.GetQueue()

	c.limits = Limits{
		MaxTextureDimension2D: limits.MaxTextureDimension2D,
		MaxTextureDimension3D: limits.MaxTextureDimension3D,
		MaxBufferSize:         limits.MaxBufferSize,
	}
	// WebGPU always provides compute and r32float read-write storage textures.
	c.features = Features{Compute: true, TypedUAVLoad: true, Storage3D: true}

	logger.Component("gpu").Info("device created",
		"max_texture_2d", c.limits.MaxTextureDimension2D,
		"max_texture_3d", c.limits.MaxTextureDimension3D)
	return c, nil
}

func (c *wgpuContext) Features() Features { return c.features }
func (c *wgpuContext) Limits() Limits     { return c.limits }

func (c *wgpuContext) Frame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func toWGPUFormat(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case FormatR16Float:
		return wgpu.TextureFormatR16Float
	case FormatR32Float:
		return wgpu.TextureFormatR32Float
	case FormatR8Unorm:
		return wgpu.TextureFormatR8Unorm
	case FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm
	case FormatRGBA16Float:
		return wgpu.TextureFormatRGBA16Float
	case FormatR32Uint:
		return wgpu.TextureFormatR32Uint
	case FormatDepth32Float:
		return wgpu.TextureFormatDepth32Float
	}
	return wgpu.TextureFormatRGBA8Unorm
}

// wgslStorageFormat returns the WGSL storage texel format name, or "" when the
// format cannot be bound as a storage texture.
func wgslStorageFormat(f TextureFormat) string {
	switch f {
	case FormatR32Float:
		return "r32float"
	case FormatRGBA8Unorm:
		return "rgba8unorm"
	case FormatRGBA16Float:
		return "rgba16float"
	case FormatR32Uint:
		return "r32uint"
	}
	return ""
}

func (c *wgpuContext) CreateTexture(desc TextureDesc) (Texture, error) {
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if err := ValidateTexture(desc, c.limits); err != nil {
		return nil, err
	}
	if desc.Usage&UsageStorage != 0 && wgslStorageFormat(desc.Format) == "" {
		return nil, fmt.Errorf("%s: format %d is not storage-capable: %w", desc.Label, desc.Format, ErrUnsupported)
	}

	usage := wgpu.TextureUsageCopyDst
	if desc.Usage&UsageSampled != 0 {
		usage |= wgpu.TextureUsageTextureBinding
	}
	if desc.Usage&UsageStorage != 0 {
		usage |= wgpu.TextureUsageStorageBinding
	}
	if desc.Usage&UsageRenderTarget != 0 {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	if desc.Usage&UsageCopySrc != 0 {
		usage |= wgpu.TextureUsageCopySrc
	}
	dim := wgpu.TextureDimension2D
	if desc.Dimension == Texture3D {
		dim = wgpu.TextureDimension3D
	}

	tex, err := c.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Depth,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   1,
		Dimension:     dim,
		Format:        toWGPUFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %s: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create view for %s: %w", desc.Label, err)
	}
	return &wgpuTexture{desc: desc, tex: tex, view: view}, nil
}

func (c *wgpuContext) CreateBuffer(desc BufferDesc) (Buffer, error) {
	usage := wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	if desc.Usage&BufferStorage != 0 {
		usage |= wgpu.BufferUsageStorage
	}
	if desc.Usage&BufferUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if desc.Usage&BufferIndirect != 0 {
		usage |= wgpu.BufferUsageIndirect
	}
	// Storage bindings require 4-byte multiples.
	size := (desc.Size + 3) &^ 3
	buf, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", desc.Label, err)
	}
	return &wgpuBuffer{desc: desc, buf: buf}, nil
}

func (c *wgpuContext) CreateProgram(desc ProgramDesc) (Program, error) {
	module, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", desc.Key, err)
	}
	p := &wgpuProgram{
		desc:     desc,
		module:   module,
		render:   make(map[string]*wgpu.RenderPipeline),
		bindings: parseBindingSet(desc.Source),
	}
	if desc.Kind == ProgramCompute {
		pipe, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: desc.Key + " Compute Pipeline",
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: desc.EntryPoint,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create compute pipeline %s: %w", desc.Key, err)
		}
		p.compute = pipe
	}
	return p, nil
}

func (c *wgpuContext) BindSR(slot int, r Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil {
		delete(c.sr, slot)
		return
	}
	c.sr[slot] = r
}

func (c *wgpuContext) BindUA(slot int, r Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r == nil {
		delete(c.ua, slot)
		return
	}
	c.ua[slot] = r
}

func (c *wgpuContext) BindCB(slot int, b Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b == nil {
		delete(c.cb, slot)
		return
	}
	c.cb[slot] = b
}

func (c *wgpuContext) ResetSR() {
	c.mu.Lock()
	clear(c.sr)
	c.mu.Unlock()
}

func (c *wgpuContext) ResetUA() {
	c.mu.Lock()
	clear(c.ua)
	c.mu.Unlock()
}

// ensureEncoder lazily opens the frame command encoder. Caller holds c.mu.
func (c *wgpuContext) ensureEncoder() bool {
	if c.encoder != nil {
		return true
	}
	enc, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		logger.Component("gpu").Warn("failed to create command encoder", "err", err)
		return false
	}
	c.encoder = enc
	return true
}

// bindGroupEntries converts the bound slots into entries the program declares.
// Caller holds c.mu.
func (c *wgpuContext) bindGroupEntries(p *wgpuProgram) []wgpu.BindGroupEntry {
	entries := make([]wgpu.BindGroupEntry, 0, len(c.sr)+len(c.ua)+len(c.cb))
	add := func(binding uint32, r Resource) {
		if !p.bindings[binding] {
			return
		}
		switch res := r.(type) {
		case *wgpuTexture:
			entries = append(entries, wgpu.BindGroupEntry{Binding: binding, TextureView: res.view})
		case *wgpuBuffer:
			entries = append(entries, wgpu.BindGroupEntry{Binding: binding, Buffer: res.buf, Offset: 0, Size: wgpu.WholeSize})
		}
	}
	for slot, r := range c.sr {
		add(uint32(slot), r)
	}
	for slot, r := range c.ua {
		add(uint32(UABindingBase+slot), r)
	}
	for slot, b := range c.cb {
		add(uint32(CBBindingBase+slot), b)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
	return entries
}

func (c *wgpuContext) createBindGroup(p *wgpuProgram, layout *wgpu.BindGroupLayout) (*wgpu.BindGroup, error) {
	entries := c.bindGroupEntries(p)
	if len(entries) == 0 {
		return nil, nil
	}
	return c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.desc.Key + " Bind Group",
		Layout:  layout,
		Entries: entries,
	})
}

func (c *wgpuContext) Dispatch(p Program, x, y, z uint32) {
	c.dispatch(p, func(pass *wgpu.ComputePassEncoder) {
		pass.DispatchWorkgroups(x, y, z)
	})
}

func (c *wgpuContext) DispatchIndirect(p Program, args Buffer, offset uint64) {
	ab, ok := args.(*wgpuBuffer)
	if !ok {
		return
	}
	c.dispatch(p, func(pass *wgpu.ComputePassEncoder) {
		pass.DispatchWorkgroupsIndirect(ab.buf, offset)
	})
}

func (c *wgpuContext) dispatch(p Program, issue func(pass *wgpu.ComputePassEncoder)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wp, ok := p.(*wgpuProgram)
	if !ok || wp.compute == nil || !c.ensureEncoder() {
		return
	}
	bg, err := c.createBindGroup(wp, wp.compute.GetBindGroupLayout(0))
	if err != nil {
		logger.Component("gpu").Warn("failed to create bind group", "program", wp.desc.Key, "err", err)
		return
	}

	pass := c.encoder.BeginComputePass(nil)
	pass.SetPipeline(wp.compute)
	if bg != nil {
		pass.SetBindGroup(0, bg, nil)
	}
	issue(pass)
	pass.End()
	if bg != nil {
		bg.Release()
	}
}

func (c *wgpuContext) SetRenderTarget(depth Texture, colors ...Texture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.colorTargets = c.colorTargets[:0]
	for _, t := range colors {
		if wt, ok := t.(*wgpuTexture); ok {
			c.colorTargets = append(c.colorTargets, wt)
		}
	}
	c.depthTarget = nil
	if wt, ok := depth.(*wgpuTexture); ok {
		c.depthTarget = wt
	}
	c.hasViewport = false
}

func (c *wgpuContext) ResetRenderTarget() {
	c.mu.Lock()
	c.colorTargets = c.colorTargets[:0]
	c.depthTarget = nil
	c.hasViewport = false
	c.mu.Unlock()
}

func (c *wgpuContext) SetViewport(v Viewport) {
	c.mu.Lock()
	c.viewport = v
	c.hasViewport = true
	c.mu.Unlock()
}

func (c *wgpuContext) DrawFullscreen(p Program) {
	c.Draw(p, 3, 1)
}

func (c *wgpuContext) Draw(p Program, vertices, instances uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wp, ok := p.(*wgpuProgram)
	if !ok || wp.desc.Kind != ProgramGraphics || len(c.colorTargets) == 0 || !c.ensureEncoder() {
		return
	}
	pipe, err := c.renderPipeline(wp)
	if err != nil {
		logger.Component("gpu").Warn("failed to create render pipeline", "program", wp.desc.Key, "err", err)
		return
	}
	bg, err := c.createBindGroup(wp, pipe.GetBindGroupLayout(0))
	if err != nil {
		logger.Component("gpu").Warn("failed to create bind group", "program", wp.desc.Key, "err", err)
		return
	}

	attachments := make([]wgpu.RenderPassColorAttachment, len(c.colorTargets))
	for i, t := range c.colorTargets {
		attachments[i] = wgpu.RenderPassColorAttachment{
			View:    t.view,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}
	}
	desc := &wgpu.RenderPassDescriptor{ColorAttachments: attachments}
	if c.depthTarget != nil {
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:         c.depthTarget.view,
			DepthLoadOp:  wgpu.LoadOpLoad,
			DepthStoreOp: wgpu.StoreOpStore,
		}
	}

	pass := c.encoder.BeginRenderPass(desc)
	pass.SetPipeline(pipe)
	if bg != nil {
		pass.SetBindGroup(0, bg, nil)
	}
	if c.hasViewport {
		v := c.viewport
		pass.SetViewport(v.X, v.Y, v.Width, v.Height, 0, 1)
		pass.SetScissorRect(uint32(v.X), uint32(v.Y), uint32(v.Width), uint32(v.Height))
	}
	pass.Draw(vertices, instances, 0, 0)
	pass.End()
	if bg != nil {
		bg.Release()
	}
}

// renderPipeline returns the pipeline matching the current targets, creating it
// on first use. Caller holds c.mu.
func (c *wgpuContext) renderPipeline(p *wgpuProgram) (*wgpu.RenderPipeline, error) {
	key := ""
	targets := make([]wgpu.ColorTargetState, len(c.colorTargets))
	for i, t := range c.colorTargets {
		key += fmt.Sprintf("%d,", t.desc.Format)
		targets[i] = wgpu.ColorTargetState{
			Format:    toWGPUFormat(t.desc.Format),
			WriteMask: wgpu.ColorWriteMaskAll,
		}
	}
	if c.depthTarget != nil {
		key += "d"
	}
	if pipe, ok := p.render[key]; ok {
		return pipe, nil
	}

	desc := &wgpu.RenderPipelineDescriptor{
		Label: p.desc.Key + " Render Pipeline",
		Vertex: wgpu.VertexState{
			Module:     p.module,
			EntryPoint: p.desc.VertexEntry,
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.module,
			EntryPoint: p.desc.FragmentEntry,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if c.depthTarget != nil {
		compare := wgpu.CompareFunctionLess
		if p.desc.WritesDepth {
			compare = wgpu.CompareFunctionAlways
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      compare,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	}
	pipe, err := c.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, err
	}
	p.render[key] = pipe
	return pipe, nil
}

func (c *wgpuContext) ClearTexture(t Texture, value [4]float32) {
	wt, ok := t.(*wgpuTexture)
	if !ok {
		return
	}
	switch {
	case wt.desc.Usage&UsageRenderTarget != 0 && wt.desc.Dimension == Texture2D:
		c.clearRenderTarget(wt, value)
	case wt.desc.Usage&UsageStorage != 0:
		c.clearStorage(wt, value)
	}
}

func (c *wgpuContext) clearRenderTarget(t *wgpuTexture, value [4]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureEncoder() {
		return
	}
	desc := &wgpu.RenderPassDescriptor{}
	if t.desc.Format == FormatDepth32Float {
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            t.view,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: value[0],
		}
	} else {
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(value[0]), G: float64(value[1]), B: float64(value[2]), A: float64(value[3])},
		}}
	}
	pass := c.encoder.BeginRenderPass(desc)
	pass.End()
}

// clearStorage fills a storage texture through a generated compute program.
func (c *wgpuContext) clearStorage(t *wgpuTexture, value [4]float32) {
	format := wgslStorageFormat(t.desc.Format)
	dim := "2d"
	if t.desc.Dimension == Texture3D {
		dim = "3d"
	}
	key := "clear_" + dim + "_" + format

	c.mu.Lock()
	prog, ok := c.clearPrograms[key]
	c.mu.Unlock()
	if !ok {
		p, err := c.CreateProgram(ProgramDesc{
			Key:           key,
			Kind:          ProgramCompute,
			Source:        clearShaderSource(dim, format),
			EntryPoint:    "main",
			WorkgroupSize: [3]uint32{4, 4, 4},
		})
		if err != nil {
			logger.Component("gpu").Warn("failed to build clear program", "key", key, "err", err)
			return
		}
		prog = p.(*wgpuProgram)
		c.mu.Lock()
		c.clearPrograms[key] = prog
		c.mu.Unlock()
	}

	params, err := c.CreateBuffer(BufferDesc{Label: key + " params", Size: 16, Usage: BufferUniform})
	if err != nil {
		return
	}
	c.UpdateBuffer(params, 0, float4Bytes(value))

	c.mu.Lock()
	savedUA, savedCB := c.ua, c.cb
	c.ua = map[int]Resource{0: t}
	c.cb = map[int]Buffer{0: params}
	c.mu.Unlock()

	c.Dispatch(prog, GroupCount(t.desc.Width, 4), GroupCount(t.desc.Height, 4), GroupCount(t.desc.Depth, 4))

	c.mu.Lock()
	c.ua, c.cb = savedUA, savedCB
	c.mu.Unlock()
	params.Release()
}

func (c *wgpuContext) ClearBuffer(b Buffer) {
	wb, ok := b.(*wgpuBuffer)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureEncoder() {
		return
	}
	c.encoder.ClearBuffer(wb.buf, 0, (wb.desc.Size+3)&^3)
}

// UpdateBuffer records the upload into the command stream so several updates
// of one buffer within a frame are seen by the dispatches between them.
func (c *wgpuContext) UpdateBuffer(b Buffer, offset uint64, data []byte) {
	wb, ok := b.(*wgpuBuffer)
	if !ok || len(data) == 0 {
		return
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(data[:len(data):len(data)], make([]byte, 4-pad)...)
	}
	staging, err := c.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    wb.desc.Label + " Upload",
		Contents: data,
		Usage:    wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		logger.Component("gpu").Warn("failed to create upload buffer", "buffer", wb.desc.Label, "err", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureEncoder() {
		staging.Release()
		return
	}
	c.encoder.CopyBufferToBuffer(staging, 0, wb.buf, offset, uint64(len(data)))
	c.uploads = append(c.uploads, staging)
}

func (c *wgpuContext) CopyBuffer(dst, src Buffer, size uint64) {
	d, okD := dst.(*wgpuBuffer)
	s, okS := src.(*wgpuBuffer)
	if !okD || !okS {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureEncoder() {
		return
	}
	c.encoder.CopyBufferToBuffer(s.buf, 0, d.buf, 0, (size+3)&^3)
}

func (c *wgpuContext) ReadbackBuffer(b Buffer, size uint64) ReadbackTicket {
	wb, ok := b.(*wgpuBuffer)
	if !ok {
		return ReadbackTicket{}
	}
	size = (size + 3) &^ 3
	staging, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: wb.desc.Label + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		logger.Component("gpu").Warn("failed to create readback buffer", "buffer", wb.desc.Label, "err", err)
		return ReadbackTicket{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ensureEncoder() {
		staging.Release()
		return ReadbackTicket{}
	}
	c.encoder.CopyBufferToBuffer(wb.buf, 0, staging, 0, size)
	c.nextID++
	t := ReadbackTicket{ID: c.nextID, Frame: c.frame}
	c.readbacks[t.ID] = &wgpuReadback{staging: staging, size: size, frame: c.frame}
	return t
}

func (c *wgpuContext) TryRead(t ReadbackTicket) ([]byte, bool) {
	c.device.Poll(false, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	rb, ok := c.readbacks[t.ID]
	if !ok || !rb.ready {
		if ok && rb.failed {
			rb.staging.Release()
			delete(c.readbacks, t.ID)
		}
		return nil, false
	}
	mapped := rb.staging.GetMappedRange(0, uint(rb.size))
	data := make([]byte, len(mapped))
	copy(data, mapped)
	rb.staging.Unmap()
	rb.staging.Release()
	delete(c.readbacks, t.ID)
	return data, true
}

func (c *wgpuContext) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.encoder != nil {
		cmd, err := c.encoder.Finish(nil)
		if err != nil {
			logger.Component("gpu").Warn("failed to finish command encoder", "err", err)
		} else {
			c.queue.Submit(cmd)
			cmd.Release()
		}
		c.encoder.Release()
		c.encoder = nil
	}
	for _, u := range c.uploads {
		u.Release()
	}
	c.uploads = c.uploads[:0]

	// Readback copies are now submitted; start mapping them.
	for _, rb := range c.readbacks {
		if rb.mapping {
			continue
		}
		rb.mapping = true
		r := rb
		err := r.staging.MapAsync(wgpu.MapModeRead, 0, r.size, func(status wgpu.BufferMapAsyncStatus) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if status == wgpu.BufferMapAsyncStatusSuccess {
				r.ready = true
			} else {
				r.failed = true
			}
		})
		if err != nil {
			r.failed = true
		}
	}
	c.frame++
}

// Release destroys the device and instance.
func (c *wgpuContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errors.New("gpu: context already released")
	}
	for id, rb := range c.readbacks {
		rb.staging.Release()
		delete(c.readbacks, id)
	}
	c.device.Release()
	c.adapter.Release()
	c.instance.Release()
	c.device = nil
	return nil
}
