package ddgi

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/binding"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/global_sdf"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/Carmen-Shannon/oxy-gi/engine/surface_atlas"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Shader paths inside the content file system.
const (
	ShaderClassify = "ddgi/classify.wgsl"
	ShaderTrace    = "ddgi/trace.wgsl"
	ShaderBlend    = "ddgi/blend.wgsl"
)

// MaxRaysPerProbe is the largest ray count the blend program can gather.
const MaxRaysPerProbe = 384

// MaxHistoryWeight keeps the temporal blend convergent.
const MaxHistoryWeight = 0.999

const maxPendingReadbacks = 4

var (
	probesByQuality = [4]int32{12, 16, 20, 24}
	raysByQuality   = [4]int{96, 128, 256, 384}
)

// ErrProbeAtlasTooLarge is returned when not even one probe per axis fits the device.
var ErrProbeAtlasTooLarge = errors.New("ddgi: probe atlas exceeds device limits")

// CommonSource holds the probe addressing, octahedral and distance field
// helpers shared by the probe programs.
//
//go:embed assets/ddgi_common.wgsl
var CommonSource string

// Includes returns the WGSL snippets the probe shaders include, including
// those of the distance field and surface atlas they sample.
func Includes() map[string]string {
	out := map[string]string{
		"ddgi_types":  GPUTypesSource,
		"ddgi_common": CommonSource,
	}
	maps.Copy(out, global_sdf.Includes())
	maps.Copy(out, surface_atlas.Includes())
	return out
}

// ProbeCounts returns the per-axis probe counts of one cascade for a quality
// level. The vertical axis carries half the probes.
func ProbeCounts(q cascade.Quality) common.Int3 {
	n := probesByQuality[qualityIndex(q)]
	return common.Int3{X: n, Y: max(n/2, 1), Z: n}
}

// RaysPerProbe returns the rays traced per probe update for a quality level.
func RaysPerProbe(q cascade.Quality) int {
	return raysByQuality[qualityIndex(q)]
}

func qualityIndex(q cascade.Quality) int {
	return max(0, min(int(q), len(probesByQuality)-1))
}

// Params are the per-frame inputs of one render target set.
type Params struct {
	Target    uuid.UUID
	Frame     uint64
	View      cascade.View
	Spreading bool
	// Reset clears every probe and restarts the temporal history.
	Reset bool
	// SDF and Atlas are this frame's published distance field and surface atlas.
	SDF   global_sdf.BindingData
	Atlas surface_atlas.BindingData
	// Sky is the radiance of rays that leave the volume.
	Sky mgl32.Vec3
}

// BindingData is the read-only snapshot consumers sample.
type BindingData struct {
	// Irradiance holds one vec4<f32> per probe atlas texel, row major.
	Irradiance gpu.Buffer
	// Distance holds the mean distance and mean squared distance per texel.
	Distance        gpu.Buffer
	Probes          gpu.Buffer
	Constants       GPUConstants
	ConstantsBuffer gpu.Buffer
}

// Indirect returns the innermost cascade as the probe volume the surface
// atlas samples for its indirect term, or nil when nothing was published.
//
// Parameters:
//   - bounce: the indirect light multiplier
//
// Returns:
//   - *surface_atlas.Indirect: the probe volume
func (d BindingData) Indirect(bounce float32) *surface_atlas.Indirect {
	if d.Irradiance == nil || d.Constants.CascadeCount == 0 {
		return nil
	}
	c := d.Constants.Cascades[0]
	return &surface_atlas.Indirect{
		Irradiance: d.Irradiance,
		Constants: surface_atlas.GPUIndirectConstants{
			Origin:       c.Origin,
			Spacing:      c.Spacing,
			Counts:       c.Counts,
			Texels:       d.Constants.IrradianceTexels,
			ScrollOffset: c.ScrollOffset,
			Width:        d.Constants.IrradianceWidth,
		},
		BounceIntensity: bounce,
	}
}

// Stats describes the work of the last Render of one render target set.
type Stats struct {
	Frame           uint64
	Cascades        int
	UpdatedCascades int
	Counts          common.Int3
	Probes          int
	RaysPerProbe    int
	// ActiveProbes is the last active probe count read back from the GPU.
	ActiveProbes int
	Cleared      bool
	States       [cascade.MaxCascades]State
}

// DDGI maintains the cascaded irradiance probe volume of each render target set.
type DDGI interface {
	// Render updates the probe cascades due this frame: classification, an
	// indirect ray trace against the distance field and surface atlas, and an
	// indirect temporal blend. A second call on the same frame reuses the
	// first result.
	//
	// Parameters:
	//   - ctx: the GPU context
	//   - p: the frame inputs
	//
	// Returns:
	//   - bool: true if this frame's probes must not be used
	Render(ctx gpu.Context, p Params) bool

	// Get returns the binding data of a render target set.
	//
	// Parameters:
	//   - target: the render target set
	//   - frame: the consumer's frame
	//
	// Returns:
	//   - BindingData: the last published data
	//   - bool: true if it was published on frame or frame-1
	Get(target uuid.UUID, frame uint64) (BindingData, bool)

	// Stats returns the statistics of the last Render for a render target set.
	Stats(target uuid.UUID) Stats

	// ReleaseViewport frees everything owned by a render target set.
	ReleaseViewport(target uuid.UUID)

	// Release frees every viewport and the shader programs.
	Release()
}

type viewportBuffer struct {
	mu sync.Mutex

	cascades cascade.Manager
	probes   [cascade.MaxCascades]ProbeCascade
	rng      *rand.Rand

	counts       common.Int3
	cascadeCount int
	rays         int
	irradiance   gpu.Buffer
	distance     gpu.Buffer
	probeData    gpu.Buffer
	active       gpu.Buffer
	args         gpu.Buffer
	rayBuf       gpu.Buffer
	constants    gpu.Buffer
	updateCB     gpu.Buffer
	needsClear   bool
	allocFailed  bool
	shrunk       bool

	gpuConstants GPUConstants

	tickets      []gpu.ReadbackTicket
	activeProbes int

	rendered      bool
	renderedFrame uint64
	notReady      bool
	stats         Stats
}

type ddgi struct {
	mu       sync.Mutex
	buffers  map[uuid.UUID]*viewportBuffer
	programs *content.ProgramSet
	publish  *binding.Publisher[BindingData]
	disabled bool

	historyWeight  float32
	raysPerProbe   int
	probeCounts    common.Int3
	seed           uint64
	cascadeOptions []cascade.ManagerBuilderOption
}

var _ DDGI = &ddgi{}

// NewDDGI creates the probe volume pass.
//
// Parameters:
//   - m: the content manager the shaders are loaded from
//   - opts: variadic DDGIBuilderOption functions
//
// Returns:
//   - DDGI: the pass
func NewDDGI(m content.Manager, opts ...DDGIBuilderOption) DDGI {
	if m == nil {
		panic("ddgi: NewDDGI requires a content Manager")
	}
	d := &ddgi{
		buffers:       make(map[uuid.UUID]*viewportBuffer),
		publish:       binding.NewPublisher[BindingData](),
		historyWeight: 0.97,
		seed:          0x0dd91,
		cascadeOptions: []cascade.ManagerBuilderOption{
			cascade.WithDistanceScales(cascade.DDGIDistanceScales),
			cascade.WithIdealExtent(1500),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.programs = content.NewProgramSet(m, ShaderClassify, ShaderTrace, ShaderBlend)
	return d
}

func (d *ddgi) supported(ctx gpu.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disabled {
		return false
	}
	if !ctx.Features().Compute {
		d.disabled = true
		logger.Component("ddgi").Info("probe volume disabled: device lacks compute support")
		return false
	}
	return true
}

func (d *ddgi) buffer(target uuid.UUID) *viewportBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[target]
	if !ok {
		b = &viewportBuffer{
			cascades: cascade.NewManager(d.cascadeOptions...),
			rng:      rand.New(rand.NewPCG(d.seed, uint64(len(d.buffers)))),
		}
		d.buffers[target] = b
	}
	return b
}

func (d *ddgi) Render(ctx gpu.Context, p Params) bool {
	if !d.supported(ctx) {
		return true
	}
	if !d.programs.Prepare(ctx) {
		return true
	}
	b := d.buffer(p.Target)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rendered && b.renderedFrame == p.Frame {
		return b.notReady
	}
	b.rendered = true
	b.renderedFrame = p.Frame
	b.notReady = d.render(ctx, b, p)
	return b.notReady
}

// dependenciesReady reports whether the distance field and surface atlas
// resources the trace samples were published.
func dependenciesReady(p Params) bool {
	sdf, atlas := p.SDF, p.Atlas
	return sdf.Volume != nil && sdf.ConstantsBuffer != nil &&
		atlas.Lighting != nil && atlas.Depth != nil && atlas.ConstantsBuffer != nil &&
		atlas.Objects != nil && atlas.Tiles != nil && atlas.CullGrid != nil && atlas.CulledObjects != nil
}

func (d *ddgi) fail(b *viewportBuffer, err error) bool {
	if !b.allocFailed {
		logger.Component("ddgi").Warn("probe volume unavailable", "err", err)
	}
	b.allocFailed = true
	b.releaseResources()
	b.cascades.RequestReset()
	return true
}

// render runs with b.mu held.
func (d *ddgi) render(ctx gpu.Context, b *viewportBuffer, p Params) bool {
	log := logger.Component("ddgi")
	stats := Stats{Frame: p.Frame}
	defer func() { b.stats = stats }()

	if !dependenciesReady(p) {
		return true
	}

	if p.Reset {
		b.cascades.RequestReset()
	}
	reset := b.cascades.Update(p.View, p.Frame, p.Spreading)
	layout := b.cascades.Layout()

	requested := d.probeCounts
	if requested.Volume() == 0 {
		requested = ProbeCounts(p.View.Quality)
	}
	counts, ok := cascade.FitProbeCounts(requested, DistanceBlock, layout.CascadeCount, ctx.Limits().MaxTextureDimension2D)
	if !ok {
		return d.fail(b, ErrProbeAtlasTooLarge)
	}
	if counts != requested && !b.shrunk {
		log.Warn("probe counts shrunk to device limit", "requested", requested, "counts", counts)
		b.shrunk = true
	}
	rays := d.raysPerProbe
	if rays == 0 {
		rays = RaysPerProbe(p.View.Quality)
	}

	if err := d.allocate(ctx, b, counts, layout.CascadeCount, rays); err != nil {
		return d.fail(b, err)
	}
	if b.allocFailed {
		log.Info("probe volume recovered")
		b.allocFailed = false
	}

	cs := b.cascades.Cascades()
	if reset || b.needsClear {
		ctx.ClearBuffer(b.irradiance)
		ctx.ClearBuffer(b.distance)
		ctx.ClearBuffer(b.probeData)
		for i, c := range cs {
			b.probes[i] = NewProbeCascade(i, counts, 2*c.Extent/float32(counts.X))
			b.probes[i].State = StateCleared
		}
		b.needsClear = false
		b.tickets = nil
		stats.Cleared = true
		log.Debug("probe volume cleared", "cascades", len(cs), "counts", counts)
	}

	b.pollReadbacks(ctx)

	var dirty []int
	for i, c := range cs {
		if !c.Dirty {
			continue
		}
		if moved := b.probes[i].Place(c.Position); moved != (common.Int3{}) {
			log.Debug("probe cascade scrolled", "cascade", i, "delta", moved)
		}
		dirty = append(dirty, i)
	}
	b.gpuConstants = b.constantsFor(len(cs), rays)
	ctx.UpdateBuffer(b.constants, 0, b.gpuConstants.Marshal())

	for _, i := range dirty {
		d.updateCascade(ctx, b, p, cs[i], rays)
		stats.UpdatedCascades++
	}
	if len(dirty) > 0 && len(b.tickets) < maxPendingReadbacks {
		if t := ctx.ReadbackBuffer(b.args, uint64(len(cs)*argsStride)); t.Valid() {
			b.tickets = append(b.tickets, t)
		}
	}

	stats.Cascades = len(cs)
	stats.Counts = counts
	stats.Probes = counts.Volume() * len(cs)
	stats.RaysPerProbe = rays
	stats.ActiveProbes = b.activeProbes
	for i := range cs {
		stats.States[i] = b.probes[i].State
	}
	log.Debug("probe volume updated", "updated", stats.UpdatedCascades, "probes", stats.Probes, "active", stats.ActiveProbes)

	d.publish.Publish(p.Target, p.Frame, BindingData{
		Irradiance:      b.irradiance,
		Distance:        b.distance,
		Probes:          b.probeData,
		Constants:       b.gpuConstants,
		ConstantsBuffer: b.constants,
	})
	return false
}

func (b *viewportBuffer) constantsFor(n, rays int) GPUConstants {
	perCascade := b.counts.Volume()
	out := GPUConstants{
		CascadeCount:     uint32(n),
		RaysPerProbe:     uint32(rays),
		IrradianceTexels: IrradianceBlock,
		DistanceTexels:   DistanceBlock,
	}
	out.IrradianceWidth, out.IrradianceHeight = atlasSize(b.counts, n, IrradianceBlock)
	out.DistanceWidth, out.DistanceHeight = atlasSize(b.counts, n, DistanceBlock)
	for i := range n {
		out.Cascades[i] = NewGPUCascade(&b.probes[i], uint32(i*perCascade))
	}
	return out
}

// HistoryWeight returns the temporal weight of a cascade update: zero on the
// first update after a clear, the configured weight clamped below 1 otherwise.
func HistoryWeight(state State, weight float32) float32 {
	if state != StateSteadyState {
		return 0
	}
	return max(0, min(weight, MaxHistoryWeight))
}

// updateCascade issues classify, trace and blend for one cascade. Trace and
// blend are sized by the active probe count classify writes into the
// cascade's indirect arguments.
func (d *ddgi) updateCascade(ctx gpu.Context, b *viewportBuffer, p Params, c cascade.Cascade, rays int) {
	pc := &b.probes[c.Index]
	update := GPUUpdate{
		Rotation:       RandomRotation(b.rng),
		ScrollDelta:    [3]int32{pc.ScrollDelta.X, pc.ScrollDelta.Y, pc.ScrollDelta.Z},
		CascadeIndex:   uint32(c.Index),
		HistoryWeight:  HistoryWeight(pc.State, d.historyWeight),
		MaxRayDistance: 2 * c.Extent,
		RaysPerProbe:   uint32(rays),
		Sky:            p.Sky,
	}
	if pc.Wrapped() {
		update.Flags |= UpdateResetAll
	}
	argsOffset := uint64(c.Index * argsStride)
	ctx.UpdateBuffer(b.args, argsOffset, indirectArgs())
	ctx.UpdateBuffer(b.updateCB, 0, update.Marshal())

	classify := d.programs.Get(ShaderClassify)
	ctx.BindSR(0, p.SDF.Volume)
	ctx.BindUA(0, b.probeData)
	ctx.BindUA(1, b.active)
	ctx.BindUA(2, b.args)
	ctx.BindUA(3, b.irradiance)
	ctx.BindUA(4, b.distance)
	ctx.BindCB(0, b.constants)
	ctx.BindCB(1, b.updateCB)
	ctx.BindCB(2, p.SDF.ConstantsBuffer)
	ctx.Dispatch(classify, gpu.GroupCount(uint32(pc.ProbeCount()), classify.WorkgroupSize()[0]), 1, 1)
	ctx.ResetSR()
	ctx.ResetUA()

	trace := d.programs.Get(ShaderTrace)
	ctx.BindSR(0, b.probeData)
	ctx.BindSR(1, b.active)
	ctx.BindSR(2, p.SDF.Volume)
	ctx.BindSR(3, p.Atlas.Lighting)
	ctx.BindSR(4, p.Atlas.Depth)
	ctx.BindSR(5, p.Atlas.Objects)
	ctx.BindSR(6, p.Atlas.Tiles)
	ctx.BindSR(7, p.Atlas.CullGrid)
	ctx.BindSR(8, p.Atlas.CulledObjects)
	ctx.BindUA(0, b.rayBuf)
	ctx.BindCB(0, b.constants)
	ctx.BindCB(1, b.updateCB)
	ctx.BindCB(2, p.SDF.ConstantsBuffer)
	ctx.BindCB(3, p.Atlas.ConstantsBuffer)
	ctx.DispatchIndirect(trace, b.args, argsOffset)
	ctx.ResetSR()
	ctx.ResetUA()

	blend := d.programs.Get(ShaderBlend)
	ctx.BindSR(0, b.active)
	ctx.BindSR(1, b.rayBuf)
	ctx.BindUA(0, b.probeData)
	ctx.BindUA(1, b.irradiance)
	ctx.BindUA(2, b.distance)
	ctx.BindCB(0, b.constants)
	ctx.BindCB(1, b.updateCB)
	ctx.DispatchIndirect(blend, b.args, argsOffset)
	ctx.ResetSR()
	ctx.ResetUA()

	pc.State = StateSteadyState
}

func (b *viewportBuffer) pollReadbacks(ctx gpu.Context) {
	for len(b.tickets) > 0 {
		data, ok := ctx.TryRead(b.tickets[0])
		if !ok {
			break
		}
		b.tickets = b.tickets[1:]
		total := 0
		for off := 0; off+4 <= len(data); off += argsStride {
			total += int(binary.LittleEndian.Uint32(data[off:]))
		}
		b.activeProbes = total
	}
}

// atlasSize returns the texel size of a probe atlas: probes of one z slice
// side by side, z slices of every cascade stacked.
func atlasSize(counts common.Int3, cascades int, block uint32) (uint32, uint32) {
	return uint32(counts.X) * uint32(counts.Y) * block, uint32(counts.Z) * uint32(cascades) * block
}

// allocate (re)creates the probe buffers when the probe layout changed.
func (d *ddgi) allocate(ctx gpu.Context, b *viewportBuffer, counts common.Int3, cascades, rays int) error {
	if b.irradiance != nil && b.counts == counts && b.cascadeCount == cascades && b.rays == rays {
		return nil
	}
	b.releaseResources()

	perCascade := uint64(counts.Volume())
	total := perCascade * uint64(cascades)
	iw, ih := atlasSize(counts, cascades, IrradianceBlock)
	dw, dh := atlasSize(counts, cascades, DistanceBlock)
	descs := []gpu.BufferDesc{
		{Label: "DDGI Irradiance", Size: uint64(iw) * uint64(ih) * irradianceTexelSize, Usage: gpu.BufferStorage | gpu.BufferCopyDst},
		{Label: "DDGI Distance", Size: uint64(dw) * uint64(dh) * distanceTexelSize, Usage: gpu.BufferStorage | gpu.BufferCopyDst},
		{Label: "DDGI Probes", Size: total * 16, Usage: gpu.BufferStorage | gpu.BufferCopyDst},
		{Label: "DDGI Active Probes", Size: total * 4, Usage: gpu.BufferStorage},
		{Label: "DDGI Args", Size: cascade.MaxCascades * argsStride, Usage: gpu.BufferStorage | gpu.BufferIndirect | gpu.BufferCopyDst | gpu.BufferCopySrc},
		{Label: "DDGI Rays", Size: perCascade * uint64(rays) * rayResultSize, Usage: gpu.BufferStorage},
		{Label: "DDGI Constants", Size: 224, Usage: gpu.BufferStorage | gpu.BufferUniform | gpu.BufferCopyDst},
		{Label: "DDGI Update", Size: 112, Usage: gpu.BufferUniform | gpu.BufferCopyDst},
	}
	limit := ctx.Limits().MaxBufferSize
	buffers := make([]gpu.Buffer, 0, len(descs))
	for _, desc := range descs {
		if limit > 0 && desc.Size > limit {
			releaseAll(buffers)
			return fmt.Errorf("%s of %d bytes > %d: %w", desc.Label, desc.Size, limit, gpu.ErrUnsupported)
		}
		buf, err := ctx.CreateBuffer(desc)
		if err != nil {
			releaseAll(buffers)
			return fmt.Errorf("failed to create %s: %w", desc.Label, err)
		}
		buffers = append(buffers, buf)
	}
	b.irradiance, b.distance, b.probeData, b.active = buffers[0], buffers[1], buffers[2], buffers[3]
	b.args, b.rayBuf, b.constants, b.updateCB = buffers[4], buffers[5], buffers[6], buffers[7]
	b.counts, b.cascadeCount, b.rays = counts, cascades, rays
	b.needsClear = true
	b.tickets = nil
	for i := range b.probes {
		b.probes[i] = ProbeCascade{Index: i}
	}
	logger.Component("ddgi").Info("probe volume allocated",
		"counts", counts, "cascades", cascades, "rays", rays, "irradiance", fmt.Sprintf("%dx%d", iw, ih))
	return nil
}

func releaseAll(bufs []gpu.Buffer) {
	for _, b := range bufs {
		b.Release()
	}
}

func (b *viewportBuffer) releaseResources() {
	for _, r := range []gpu.Buffer{b.irradiance, b.distance, b.probeData, b.active, b.args, b.rayBuf, b.constants, b.updateCB} {
		if r != nil {
			r.Release()
		}
	}
	b.irradiance, b.distance, b.probeData, b.active = nil, nil, nil, nil
	b.args, b.rayBuf, b.constants, b.updateCB = nil, nil, nil, nil
	b.counts, b.cascadeCount, b.rays = common.Int3{}, 0, 0
	b.tickets = nil
	b.activeProbes = 0
}

func (d *ddgi) Get(target uuid.UUID, frame uint64) (BindingData, bool) {
	return d.publish.Get(target, frame)
}

func (d *ddgi) Stats(target uuid.UUID) Stats {
	d.mu.Lock()
	b, ok := d.buffers[target]
	d.mu.Unlock()
	if !ok {
		return Stats{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (d *ddgi) ReleaseViewport(target uuid.UUID) {
	d.mu.Lock()
	b, ok := d.buffers[target]
	delete(d.buffers, target)
	d.mu.Unlock()
	d.publish.Forget(target)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseResources()
}

func (d *ddgi) Release() {
	d.mu.Lock()
	targets := make([]uuid.UUID, 0, len(d.buffers))
	for t := range d.buffers {
		targets = append(targets, t)
	}
	d.mu.Unlock()
	for _, t := range targets {
		d.ReleaseViewport(t)
	}
	d.programs.Release()
}
