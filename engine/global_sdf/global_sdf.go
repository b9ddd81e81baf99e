package global_sdf

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/binding"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/Carmen-Shannon/oxy-gi/engine/chunk"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene_walk"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Shader paths inside the content file system.
const (
	ShaderClearChunk = "global_sdf/clear_chunk.wgsl"
	ShaderRasterize  = "global_sdf/rasterize.wgsl"
	ShaderDownsample = "global_sdf/downsample.wgsl"
	ShaderFlood      = "global_sdf/flood.wgsl"
)

// Shader resource slots of the rasterize program. Model slots are 0..13.
const (
	slotHeightfields = ModelsPerDispatch
	slotObjects      = ModelsPerDispatch + HeightfieldsPerDispatch
	slotConstants    = slotObjects + 1
)

// Includes returns the WGSL snippets the distance field shaders include.
func Includes() map[string]string {
	return map[string]string{"global_sdf_types": GPUTypesSource}
}

// Params are the per-frame inputs of one render target set.
type Params struct {
	Target    uuid.UUID
	Scene     scene.Scene
	Frame     uint64
	View      cascade.View
	Spreading bool
	LayerMask uint32
	// Reset forces every cascade to be cleared and rebuilt.
	Reset bool
}

// BindingData is the read-only snapshot consumers sample.
type BindingData struct {
	Volume    gpu.Texture
	Mip       gpu.Texture
	Constants GPUConstants
	// ConstantsBuffer holds Constants on the GPU.
	ConstantsBuffer gpu.Buffer
}

// Stats describes the work of the last Render of one render target set.
type Stats struct {
	Frame            uint64
	DirtyCascades    int
	ChunksRasterized int
	ChunksCleared    int
	ChunksSkipped    int
	Dispatches       int
	Objects          int
	Deferred         int
	Dropped          uint64
}

// GlobalSDF builds the cascaded global signed distance field of a scene.
type GlobalSDF interface {
	// StartDrawing updates the cascades and starts the parallel scene walk of
	// every dirty cascade. Render joins the walk; calling StartDrawing early lets
	// the walk overlap other CPU work. Repeated calls on one frame return the
	// same walk.
	//
	// Parameters:
	//   - p: the frame inputs
	//
	// Returns:
	//   - *scene_walk.Drawing: the walk handle, nil when the pass is disabled
	StartDrawing(p Params) *scene_walk.Drawing

	// Render rasterizes the dirty cascades and publishes the binding data. A
	// second call on the same frame reuses the first result.
	//
	// Parameters:
	//   - ctx: the GPU context
	//   - p: the frame inputs
	//
	// Returns:
	//   - bool: true if this frame's volume must not be used
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

	scene       scene.Scene
	unsubscribe func()

	cascades cascade.Manager
	grids    [cascade.MaxCascades]chunk.Grid
	caches   [cascade.MaxCascades]*chunk.Cache
	objects  *objectTable

	pendingMu sync.Mutex
	pending   []common.BoundingBox

	started      bool
	drawingFrame uint64
	drawing      *scene_walk.Drawing
	reset        bool

	layout      cascade.Layout
	volume      gpu.Texture
	mip         gpu.Texture
	scratch     gpu.Texture
	objectBuf   gpu.Buffer
	constants   gpu.Buffer
	chunkCB     gpu.Buffer
	mipCB       gpu.Buffer
	needsClear  bool
	allocFailed bool

	rendered      bool
	renderedFrame uint64
	notReady      bool
	stats         Stats
}

type globalSDF struct {
	mu       sync.Mutex
	buffers  map[uuid.UUID]*viewportBuffer
	programs *content.ProgramSet
	walker   scene_walk.Walker
	publish  *binding.Publisher[BindingData]
	disabled bool

	softObjectCap   int
	minObjectRadius float32
	floodPasses     int
	maxLayers       int
	cascadeOptions  []cascade.ManagerBuilderOption
}

var _ GlobalSDF = &globalSDF{}

// NewGlobalSDF creates the global distance field pass.
//
// Parameters:
//   - m: the content manager the shaders are loaded from
//   - w: the scene walker
//   - opts: variadic GlobalSDFBuilderOption functions
//
// Returns:
//   - GlobalSDF: the pass
func NewGlobalSDF(m content.Manager, w scene_walk.Walker, opts ...GlobalSDFBuilderOption) GlobalSDF {
	if m == nil || w == nil {
		panic("global_sdf: NewGlobalSDF requires a content Manager and a Walker")
	}
	g := &globalSDF{
		buffers:         make(map[uuid.UUID]*viewportBuffer),
		walker:          w,
		publish:         binding.NewPublisher[BindingData](),
		softObjectCap:   4096,
		minObjectRadius: 0.5,
		floodPasses:     5,
		maxLayers:       chunk.DefaultMaxLayers,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.floodPasses = FloodPasses(g.floodPasses)
	g.programs = content.NewProgramSet(m, ShaderClearChunk, ShaderRasterize, ShaderDownsample, ShaderFlood)
	return g
}

func (g *globalSDF) supported(ctx gpu.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disabled {
		return false
	}
	f := ctx.Features()
	if !f.Compute || !f.TypedUAVLoad || !f.Storage3D {
		g.disabled = true
		logger.Component("global_sdf").Info("global distance field disabled: device lacks compute or 3D storage support")
		return false
	}
	return true
}

// buffer returns the viewport buffer of a target, creating it on first use and
// following scene swaps.
func (g *globalSDF) buffer(p Params) *viewportBuffer {
	g.mu.Lock()
	b, ok := g.buffers[p.Target]
	if !ok {
		b = &viewportBuffer{
			cascades: cascade.NewManager(g.cascadeOptions...),
			objects:  newObjectTable(g.softObjectCap),
		}
		for i := range b.grids {
			b.grids[i] = chunk.NewGrid(chunk.WithMaxLayers(g.maxLayers))
			b.caches[i] = chunk.NewCache()
		}
		g.buffers[p.Target] = b
	}
	g.mu.Unlock()

	b.mu.Lock()
	if b.scene != p.Scene && p.Scene != nil {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.scene = p.Scene
		b.unsubscribe = p.Scene.Subscribe(b.listener())
		b.cascades.RequestReset()
	}
	b.mu.Unlock()
	return b
}

// listener queues the bounds of static edits for the next walk.
func (b *viewportBuffer) listener() scene.Listener {
	return scene.ListenerFuncs{
		ActorAdded: func(a scene.Actor) {
			if a.IsStatic() {
				b.invalidate(a.Box())
			}
		},
		ActorMoved: func(a scene.Actor, prevBox common.BoundingBox) {
			if a.IsStatic() {
				b.invalidate(prevBox, a.Box())
			}
		},
		ActorRemoved: func(a scene.Actor) {
			if a.IsStatic() {
				b.invalidate(a.Box())
			}
			b.objects.forget(a.ID())
		},
		TextureResidencyChanged: func(sdf *scene.ModelSDF) {
			b.invalidate(b.objects.boxesOf(sdf)...)
		},
	}
}

func (b *viewportBuffer) invalidate(boxes ...common.BoundingBox) {
	b.pendingMu.Lock()
	b.pending = append(b.pending, boxes...)
	b.pendingMu.Unlock()
}

func (b *viewportBuffer) applyInvalidations() int {
	b.pendingMu.Lock()
	pending := b.pending
	b.pending = nil
	b.pendingMu.Unlock()

	evicted := 0
	for _, box := range pending {
		for _, c := range b.caches {
			evicted += c.Invalidate(box)
		}
	}
	return evicted
}

func (g *globalSDF) StartDrawing(p Params) *scene_walk.Drawing {
	g.mu.Lock()
	disabled := g.disabled
	g.mu.Unlock()
	if disabled || p.Scene == nil {
		return nil
	}
	b := g.buffer(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	return g.startDrawing(b, p)
}

// startDrawing runs with b.mu held.
func (g *globalSDF) startDrawing(b *viewportBuffer, p Params) *scene_walk.Drawing {
	if b.started && b.drawingFrame == p.Frame {
		return b.drawing
	}
	// A walk Render never consumed may still be writing into the grids.
	scene_walk.WaitForDrawing(b.drawing)
	if evicted := b.applyInvalidations(); evicted > 0 {
		logger.Component("global_sdf").Debug("static chunks invalidated", "chunks", evicted)
	}
	if p.Reset {
		b.cascades.RequestReset()
	}
	b.reset = b.cascades.Update(p.View, p.Frame, p.Spreading)
	b.objects.begin()

	var targets []scene_walk.Target
	for i, c := range b.cascades.Cascades() {
		if !c.Dirty {
			continue
		}
		b.grids[i].Reset()
		b.caches[i].SetCascade(c)
		targets = append(targets, scene_walk.Target{
			Name:   c.String(),
			Writer: &cascadeWriter{cascade: c, grid: b.grids[i], objects: b.objects},
			Cull: scene_walk.CullParams{
				Origin:    p.View.Position,
				LayerMask: p.LayerMask,
				MinRadius: g.minObjectRadius * c.VoxelSize,
				Bounds:    c.Bounds().Expand(c.Margin()),
			},
		})
	}
	b.drawing = g.walker.StartDrawing(p.Scene, targets)
	b.drawingFrame = p.Frame
	b.started = true
	return b.drawing
}

func (g *globalSDF) Render(ctx gpu.Context, p Params) bool {
	if !g.supported(ctx) || !g.programs.Prepare(ctx) {
		g.discardDrawing(p.Target)
		return true
	}
	if p.Scene == nil {
		return true
	}
	b := g.buffer(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rendered && b.renderedFrame == p.Frame {
		return b.notReady
	}
	b.rendered = true
	b.renderedFrame = p.Frame
	b.notReady = g.render(ctx, b, p)
	return b.notReady
}

// discardDrawing joins a walk whose grids will not be rasterized. The cascades
// may have moved during that walk, so the next update rebuilds them.
func (g *globalSDF) discardDrawing(target uuid.UUID) {
	g.mu.Lock()
	b, ok := g.buffers[target]
	g.mu.Unlock()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drawing == nil {
		return
	}
	scene_walk.WaitForDrawing(b.drawing)
	b.drawing = nil
	b.cascades.RequestReset()
}

func (g *globalSDF) fail(b *viewportBuffer, err error) bool {
	if !b.allocFailed {
		logger.Component("global_sdf").Warn("global distance field unavailable", "err", err)
	}
	b.allocFailed = true
	b.releaseResources()
	for _, c := range b.caches {
		c.Clear()
	}
	b.cascades.RequestReset()
	return true
}

// render runs with b.mu held.
func (g *globalSDF) render(ctx gpu.Context, b *viewportBuffer, p Params) bool {
	log := logger.Component("global_sdf")
	scene_walk.WaitForDrawing(g.startDrawing(b, p))

	stats := Stats{Frame: p.Frame}
	defer func() { b.stats = stats }()

	if err := g.allocate(ctx, b, b.cascades.Layout()); err != nil {
		return g.fail(b, err)
	}
	if b.allocFailed {
		log.Info("global distance field recovered")
		b.allocFailed = false
	}
	if err := g.uploadObjects(ctx, b); err != nil {
		return g.fail(b, err)
	}

	reset := b.reset || b.needsClear
	if reset {
		far := [4]float32{1, 1, 1, 1}
		ctx.ClearTexture(b.volume, far)
		ctx.ClearTexture(b.mip, far)
		ctx.ClearTexture(b.scratch, far)
		b.needsClear = false
	}

	consts := g.constantsFor(b)
	ctx.UpdateBuffer(b.constants, 0, consts.Marshal())

	for i, c := range b.cascades.Cascades() {
		if !c.Dirty {
			continue
		}
		stats.DirtyCascades++
		plan := b.caches[i].Plan(b.grids[i], reset)
		for _, coord := range plan.Clear {
			stats.Dispatches += g.clearChunk(ctx, b, c, coord)
		}
		for _, coord := range plan.Rasterize {
			stats.Dispatches += g.rasterizeChunk(ctx, b, c, coord)
		}
		if reset || len(plan.Clear) > 0 || len(plan.Rasterize) > 0 {
			stats.Dispatches += g.generateMip(ctx, b, c)
		}
		stats.ChunksCleared += len(plan.Clear)
		stats.ChunksRasterized += len(plan.Rasterize)
		stats.ChunksSkipped += plan.Skipped
		stats.Dropped += b.grids[i].Dropped()
	}
	stats.Objects = b.objects.count()
	stats.Deferred = b.objects.deferredCount()

	if stats.Dropped > 0 {
		log.Debug("chunk overflow dropped objects", "dropped", stats.Dropped)
	}
	log.Debug("global distance field updated",
		"dirty", stats.DirtyCascades, "rasterized", stats.ChunksRasterized,
		"cleared", stats.ChunksCleared, "skipped", stats.ChunksSkipped, "objects", stats.Objects)

	g.publish.Publish(p.Target, p.Frame, BindingData{
		Volume:          b.volume,
		Mip:             b.mip,
		Constants:       consts,
		ConstantsBuffer: b.constants,
	})
	return false
}

func (g *globalSDF) constantsFor(b *viewportBuffer) GPUConstants {
	cs := b.cascades.Cascades()
	out := GPUConstants{
		CascadeCount:  uint32(len(cs)),
		Resolution:    uint32(b.layout.Resolution),
		MipResolution: uint32(b.layout.Resolution / MipFactor),
		ChunksPerAxis: uint32(max(b.layout.Resolution/cascade.ChunkVoxels, 1)),
	}
	for i, c := range cs {
		out.Cascades[i] = NewGPUCascade(c)
	}
	return out
}

// allocate (re)creates the volume textures when the layout changed.
func (g *globalSDF) allocate(ctx gpu.Context, b *viewportBuffer, layout cascade.Layout) error {
	if b.volume != nil && b.layout.Equal(layout) {
		return nil
	}
	b.releaseResources()

	res := uint32(layout.Resolution)
	n := uint32(max(layout.CascadeCount, 1))
	mipRes := res / MipFactor
	descs := []gpu.TextureDesc{
		{Label: "GlobalSDF Volume", Width: res * n, Height: res, Depth: res},
		{Label: "GlobalSDF Mip", Width: mipRes * n, Height: mipRes, Depth: mipRes},
		{Label: "GlobalSDF Mip Scratch", Width: mipRes * n, Height: mipRes, Depth: mipRes},
	}
	textures := make([]gpu.Texture, 0, len(descs))
	for _, d := range descs {
		d.Dimension = gpu.Texture3D
		d.Format = gpu.FormatR32Float
		d.MipLevels = 1
		d.Usage = gpu.UsageStorage | gpu.UsageSampled
		if err := gpu.ValidateTexture(d, ctx.Limits()); err != nil {
			releaseAll(textures)
			return err
		}
		t, err := ctx.CreateTexture(d)
		if err != nil {
			releaseAll(textures)
			return fmt.Errorf("failed to create %s: %w", d.Label, err)
		}
		textures = append(textures, t)
	}

	bufs := []gpu.BufferDesc{
		{Label: "GlobalSDF Constants", Size: 144, Usage: gpu.BufferStorage | gpu.BufferUniform | gpu.BufferCopyDst},
		{Label: "GlobalSDF Chunk Constants", Size: 128, Usage: gpu.BufferUniform | gpu.BufferCopyDst},
		{Label: "GlobalSDF Mip Constants", Size: 48, Usage: gpu.BufferUniform | gpu.BufferCopyDst},
	}
	buffers := make([]gpu.Buffer, 0, len(bufs))
	for _, d := range bufs {
		buf, err := ctx.CreateBuffer(d)
		if err != nil {
			releaseAll(textures)
			releaseAll(buffers)
			return fmt.Errorf("failed to create %s: %w", d.Label, err)
		}
		buffers = append(buffers, buf)
	}

	b.volume, b.mip, b.scratch = textures[0], textures[1], textures[2]
	b.constants, b.chunkCB, b.mipCB = buffers[0], buffers[1], buffers[2]
	b.layout = layout
	b.needsClear = true
	logger.Component("global_sdf").Info("global distance field allocated",
		"cascades", layout.CascadeCount, "resolution", layout.Resolution)
	return nil
}

func releaseAll[T gpu.Resource](rs []T) {
	for _, r := range rs {
		r.Release()
	}
}

// uploadObjects grows the object buffer as needed and uploads this frame's objects.
func (g *globalSDF) uploadObjects(ctx gpu.Context, b *viewportBuffer) error {
	data := b.objects.marshal()
	size := uint64(max(len(data), 96*64))
	if b.objectBuf == nil || b.objectBuf.Desc().Size < size {
		if b.objectBuf != nil {
			b.objectBuf.Release()
			b.objectBuf = nil
		}
		capacity := uint64(96 * 64)
		for capacity < size {
			capacity *= 2
		}
		buf, err := ctx.CreateBuffer(gpu.BufferDesc{
			Label: "GlobalSDF Objects",
			Size:  capacity,
			Usage: gpu.BufferStorage | gpu.BufferCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create object buffer: %w", err)
		}
		b.objectBuf = buf
	}
	if len(data) > 0 {
		ctx.UpdateBuffer(b.objectBuf, 0, data)
	}
	return nil
}

func (b *viewportBuffer) releaseResources() {
	for _, r := range []gpu.Resource{b.volume, b.mip, b.scratch} {
		if r != nil {
			r.Release()
		}
	}
	for _, r := range []gpu.Buffer{b.objectBuf, b.constants, b.chunkCB, b.mipCB} {
		if r != nil {
			r.Release()
		}
	}
	b.volume, b.mip, b.scratch = nil, nil, nil
	b.objectBuf, b.constants, b.chunkCB, b.mipCB = nil, nil, nil, nil
	b.layout = cascade.Layout{}
}

// textureOrigin returns the first voxel of a chunk in the volume texture.
func textureOrigin(c cascade.Cascade, coord common.Int3) [3]uint32 {
	tc := chunk.TextureCoord(coord, c.ChunksPerAxis())
	return [3]uint32{
		uint32(tc.X)*cascade.ChunkVoxels + uint32(c.Index*c.Resolution),
		uint32(tc.Y) * cascade.ChunkVoxels,
		uint32(tc.Z) * cascade.ChunkVoxels,
	}
}

func chunkGroups(p gpu.Program) (uint32, uint32, uint32) {
	wg := p.WorkgroupSize()
	return gpu.GroupCount(cascade.ChunkVoxels, wg[0]),
		gpu.GroupCount(cascade.ChunkVoxels, wg[1]),
		gpu.GroupCount(cascade.ChunkVoxels, wg[2])
}

func (g *globalSDF) clearChunk(ctx gpu.Context, b *viewportBuffer, c cascade.Cascade, coord common.Int3) int {
	prog := g.programs.Get(ShaderClearChunk)
	cc := GPUChunkConstants{
		ChunkCoord:    [3]int32{coord.X, coord.Y, coord.Z},
		CascadeIndex:  uint32(c.Index),
		TextureOrigin: textureOrigin(c, coord),
	}
	ctx.UpdateBuffer(b.chunkCB, 0, cc.Marshal())
	ctx.BindUA(0, b.volume)
	ctx.BindCB(0, b.chunkCB)
	x, y, z := chunkGroups(prog)
	ctx.Dispatch(prog, x, y, z)
	ctx.ResetUA()
	return 1
}

// rasterizeChunk writes every layer of a chunk. The first batch of layer 0
// overwrites the voxels; later batches and overflow layers merge with them.
func (g *globalSDF) rasterizeChunk(ctx gpu.Context, b *viewportBuffer, c cascade.Cascade, coord common.Int3) int {
	prog := g.programs.Get(ShaderRasterize)
	x, y, z := chunkGroups(prog)
	dispatches := 0
	for li, layer := range b.grids[c.Index].Layers(coord) {
		models := layer.Models[:layer.ModelCount]
		batches := max(common.CeilDiv(len(models), ModelsPerDispatch), 1)
		for bi := range batches {
			cc := GPUChunkConstants{
				ChunkCoord:    [3]int32{coord.X, coord.Y, coord.Z},
				CascadeIndex:  uint32(c.Index),
				TextureOrigin: textureOrigin(c, coord),
			}
			if li > 0 || bi > 0 {
				cc.Additive = 1
			}
			batch := models[min(bi*ModelsPerDispatch, len(models)):min((bi+1)*ModelsPerDispatch, len(models))]
			for s, idx := range batch {
				cc.Models[s] = idx
				ctx.BindSR(s, b.objects.texture(idx))
			}
			cc.ModelCount = uint32(len(batch))
			if bi == 0 {
				for s, idx := range layer.Heightfields[:layer.HeightfieldCount] {
					cc.Heightfields[s] = idx
					ctx.BindSR(slotHeightfields+s, b.objects.texture(idx))
				}
				cc.HeightfieldCount = uint32(layer.HeightfieldCount)
			}
			ctx.BindSR(slotObjects, b.objectBuf)
			ctx.BindSR(slotConstants, b.constants)
			ctx.BindUA(0, b.volume)
			ctx.UpdateBuffer(b.chunkCB, 0, cc.Marshal())
			ctx.BindCB(0, b.chunkCB)
			ctx.Dispatch(prog, x, y, z)
			ctx.ResetSR()
			ctx.ResetUA()
			dispatches++
		}
	}
	return dispatches
}

// MipConstants returns the downsample and flood constants of a cascade.
func MipConstants(c cascade.Cascade) GPUMipConstants {
	mipRes := int32(c.Resolution / MipFactor)
	mipVoxel := c.VoxelSize * MipFactor
	lo := common.FloorToInt3(c.Bounds().Min.Add(mgl32.Vec3{mipVoxel, mipVoxel, mipVoxel}.Mul(0.5)), mipVoxel)
	origin := lo.Mod(common.Splat3(mipRes))
	return GPUMipConstants{
		LocalOrigin:    [3]uint32{uint32(origin.X), uint32(origin.Y), uint32(origin.Z)},
		CascadeIndex:   uint32(c.Index),
		MipResolution:  uint32(mipRes),
		Resolution:     uint32(c.Resolution),
		MaxDistance:    c.MaxDistance,
		MaxMipDistance: c.MaxMipDistance,
		Step:           mipVoxel / c.MaxMipDistance,
	}
}

// generateMip downsamples the cascade into the scratch volume and floods it.
// The pass count is odd so the last pass writes the mip volume.
func (g *globalSDF) generateMip(ctx gpu.Context, b *viewportBuffer, c cascade.Cascade) int {
	params := MipConstants(c)
	ctx.UpdateBuffer(b.mipCB, 0, params.Marshal())

	down := g.programs.Get(ShaderDownsample)
	flood := g.programs.Get(ShaderFlood)
	res := params.MipResolution

	run := func(p gpu.Program, src, dst gpu.Texture) {
		wg := p.WorkgroupSize()
		ctx.BindSR(0, src)
		ctx.BindUA(0, dst)
		ctx.BindCB(0, b.mipCB)
		ctx.Dispatch(p, gpu.GroupCount(res, wg[0]), gpu.GroupCount(res, wg[1]), gpu.GroupCount(res, wg[2]))
		ctx.ResetSR()
		ctx.ResetUA()
	}
	run(down, b.volume, b.scratch)
	src, dst := b.scratch, b.mip
	for range g.floodPasses {
		run(flood, src, dst)
		src, dst = dst, src
	}
	return 1 + g.floodPasses
}

func (g *globalSDF) Get(target uuid.UUID, frame uint64) (BindingData, bool) {
	return g.publish.Get(target, frame)
}

func (g *globalSDF) Stats(target uuid.UUID) Stats {
	g.mu.Lock()
	b, ok := g.buffers[target]
	g.mu.Unlock()
	if !ok {
		return Stats{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (g *globalSDF) ReleaseViewport(target uuid.UUID) {
	g.mu.Lock()
	b, ok := g.buffers[target]
	delete(g.buffers, target)
	g.mu.Unlock()
	g.publish.Forget(target)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	scene_walk.WaitForDrawing(b.drawing)
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.releaseResources()
}

func (g *globalSDF) Release() {
	g.mu.Lock()
	targets := make([]uuid.UUID, 0, len(g.buffers))
	for t := range g.buffers {
		targets = append(targets, t)
	}
	g.mu.Unlock()
	for _, t := range targets {
		g.ReleaseViewport(t)
	}
	g.programs.Release()
}
