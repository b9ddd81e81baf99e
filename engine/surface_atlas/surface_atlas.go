package surface_atlas

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/binding"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/light"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene_walk"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Shader paths inside the content file system.
const (
	ShaderClearTile        = "surface_atlas/clear_tile.wgsl"
	ShaderLighting         = "surface_atlas/lighting.wgsl"
	ShaderLightingIndirect = "surface_atlas/lighting_indirect.wgsl"
	ShaderCullObjects      = "surface_atlas/cull_objects.wgsl"
)

// maxPendingReadbacks bounds the cull counter readbacks in flight.
const maxPendingReadbacks = 4

// LightingSource holds the shading functions shared by the lighting programs.
//
//go:embed assets/surface_atlas_lighting.wgsl
var LightingSource string

// Includes returns the WGSL snippets the atlas shaders include.
func Includes() map[string]string {
	return map[string]string{
		"surface_atlas_types":    GPUTypesSource,
		"surface_atlas_lighting": LightingSource,
		"light":                  light.GPULightSource,
		"light_header":           light.GPULightHeaderSource,
	}
}

// Indirect is the probe volume the lighting pass samples for one bounce.
// Irradiance holds one vec4<f32> per probe atlas texel, row major.
type Indirect struct {
	Irradiance      gpu.Buffer
	Constants       GPUIndirectConstants
	BounceIntensity float32
}

// Params are the per-frame inputs of one render target set.
type Params struct {
	Target       uuid.UUID
	Scene        scene.Scene
	Frame        uint64
	ViewPosition mgl32.Vec3
	// Distance is how far from the viewer objects are kept in the atlas.
	Distance  float32
	LayerMask uint32
	// Quality multiplies the tile resolution; zero means 1.
	Quality float32
	// Indirect enables the indirect lighting term when not nil.
	Indirect *Indirect
	// Reset frees every tile and recaptures every object.
	Reset bool
}

// BindingData is the read-only snapshot consumers sample.
type BindingData struct {
	Albedo   gpu.Texture
	Normal   gpu.Texture
	Emissive gpu.Texture
	Depth    gpu.Texture
	Lighting gpu.Texture

	Objects gpu.Buffer
	Tiles   gpu.Buffer
	// CullGrid holds the first culled entry of every grid cell, plus one.
	CullGrid      gpu.Buffer
	CulledObjects gpu.Buffer

	Constants       GPUAtlasConstants
	ConstantsBuffer gpu.Buffer
}

// Stats describes the work of the last Render of one render target set.
type Stats struct {
	Frame            uint64
	Objects          int
	Tiles            int
	Captured         int
	TilesCaptured    int
	Reshaded         int
	Culled           int
	Removed          int
	InsertFailures   int
	Defragmented     bool
	Defragmentations uint64
	Usage            float64
	CulledEntries    uint32
}

// SurfaceAtlas captures scene surfaces into a packed 2D atlas and shades them.
type SurfaceAtlas interface {
	// StartDrawing applies queued scene changes, defragments the atlas when
	// due and starts the atlas scene walk. Repeated calls on one frame return
	// the same walk.
	//
	// Parameters:
	//   - p: the frame inputs
	//
	// Returns:
	//   - *scene_walk.Drawing: the walk handle, nil when the pass is disabled
	StartDrawing(p Params) *scene_walk.Drawing

	// Render places tiles, captures dirty objects, shades them and rebuilds
	// the culled object grid. A second call on the same frame reuses the first
	// result.
	//
	// Parameters:
	//   - ctx: the GPU context
	//   - p: the frame inputs
	//
	// Returns:
	//   - bool: true if this frame's atlas must not be used
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

	allocator *Allocator
	objects   map[uint64]*atlasObject
	order     []*atlasObject
	writer    *atlasWriter

	pendingMu      sync.Mutex
	pendingLights  []common.BoundingSphere
	pendingDirty   []uint64
	pendingRemoved []uint64

	started      bool
	drawingFrame uint64
	drawing      *scene_walk.Drawing
	defragmented bool
	indirectOn   bool

	resolution  int
	albedo      gpu.Texture
	normal      gpu.Texture
	emissive    gpu.Texture
	depth       gpu.Texture
	lighting    gpu.Texture
	objectBuf   gpu.Buffer
	tileBuf     gpu.Buffer
	constants   gpu.Buffer
	drawCB      gpu.Buffer
	indirectCB  gpu.Buffer
	lightBuf    gpu.Buffer
	cullGrid    gpu.Buffer
	culled      gpu.Buffer
	cullCounter gpu.Buffer
	needsClear  bool
	allocFailed bool
	shrunk      bool

	atlasConstants GPUAtlasConstants

	tickets   []gpu.ReadbackTicket
	cullCount uint32
	cullKnown bool

	rendered      bool
	renderedFrame uint64
	notReady      bool
	stats         Stats
}

type surfaceAtlas struct {
	mu       sync.Mutex
	buffers  map[uuid.UUID]*viewportBuffer
	programs *content.ProgramSet
	walker   scene_walk.Walker
	publish  *binding.Publisher[BindingData]
	disabled bool

	resolution        int
	policy            TilePolicy
	defrag            DefragPolicy
	staticInterval    uint64
	lightmapInterval  uint64
	nearOffset        float32
	minObjectRadius   float32
	cullEntriesPerObj int
}

var _ SurfaceAtlas = &surfaceAtlas{}

// NewSurfaceAtlas creates the surface atlas pass.
//
// Parameters:
//   - m: the content manager the shaders are loaded from
//   - w: the scene walker
//   - opts: variadic SurfaceAtlasBuilderOption functions
//
// Returns:
//   - SurfaceAtlas: the pass
func NewSurfaceAtlas(m content.Manager, w scene_walk.Walker, opts ...SurfaceAtlasBuilderOption) SurfaceAtlas {
	if m == nil || w == nil {
		panic("surface_atlas: NewSurfaceAtlas requires a content Manager and a Walker")
	}
	s := &surfaceAtlas{
		buffers:           make(map[uuid.UUID]*viewportBuffer),
		walker:            w,
		publish:           binding.NewPublisher[BindingData](),
		resolution:        4096,
		policy:            DefaultTilePolicy,
		defrag:            DefaultDefragPolicy,
		staticInterval:    10,
		lightmapInterval:  200,
		nearOffset:        2,
		cullEntriesPerObj: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.programs = content.NewProgramSet(m, ShaderClearTile, ShaderLighting, ShaderLightingIndirect, ShaderCullObjects)
	return s
}

func (s *surfaceAtlas) supported(ctx gpu.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return false
	}
	if !ctx.Features().Compute {
		s.disabled = true
		logger.Component("surface_atlas").Info("surface atlas disabled: device lacks compute support")
		return false
	}
	return true
}

func (s *surfaceAtlas) buffer(p Params) *viewportBuffer {
	s.mu.Lock()
	b, ok := s.buffers[p.Target]
	if !ok {
		b = &viewportBuffer{
			allocator: NewAllocator(s.resolution, s.defrag),
			objects:   make(map[uint64]*atlasObject),
			writer:    newAtlasWriter(),
		}
		s.buffers[p.Target] = b
	}
	s.mu.Unlock()

	b.mu.Lock()
	if b.scene != p.Scene && p.Scene != nil {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.scene = p.Scene
		b.unsubscribe = p.Scene.Subscribe(b.listener())
		b.resetTiles()
	}
	b.mu.Unlock()
	return b
}

// listener queues scene edits for the next StartDrawing.
func (b *viewportBuffer) listener() scene.Listener {
	return scene.ListenerFuncs{
		ActorMoved: func(a scene.Actor, _ common.BoundingBox) {
			if a.IsStatic() {
				b.pendingMu.Lock()
				b.pendingDirty = append(b.pendingDirty, a.ID())
				b.pendingMu.Unlock()
			}
		},
		ActorRemoved: func(a scene.Actor) {
			b.pendingMu.Lock()
			b.pendingRemoved = append(b.pendingRemoved, a.ID())
			b.pendingMu.Unlock()
		},
		LightChanged: func(l light.Light, prevInfluence common.BoundingSphere) {
			b.pendingMu.Lock()
			b.pendingLights = append(b.pendingLights, prevInfluence, l.Influence())
			b.pendingMu.Unlock()
		},
	}
}

// applyPending runs with b.mu held.
func (b *viewportBuffer) applyPending() {
	b.pendingMu.Lock()
	lights, dirty, removed := b.pendingLights, b.pendingDirty, b.pendingRemoved
	b.pendingLights, b.pendingDirty, b.pendingRemoved = nil, nil, nil
	b.pendingMu.Unlock()

	for _, id := range removed {
		if o, ok := b.objects[id]; ok {
			b.freeTiles(o)
			delete(b.objects, id)
		}
	}
	for _, id := range dirty {
		if o, ok := b.objects[id]; ok {
			o.dirty = true
		}
	}
	for _, influence := range lights {
		if influence.Radius < 0 {
			continue
		}
		for _, o := range b.objects {
			if influence.IntersectsBox(o.box.Bounds()) {
				o.lightingDirty = true
			}
		}
	}
}

func (b *viewportBuffer) freeTiles(o *atlasObject) {
	for i := range o.tiles {
		if o.tiles[i].live() {
			b.allocator.Free(o.tiles[i].handle)
		}
		o.tiles[i] = atlasTile{}
	}
}

// resetTiles drops every tile and queues every object for recapture.
func (b *viewportBuffer) resetTiles() {
	b.allocator.Reset()
	for _, o := range b.objects {
		o.tiles = [FaceCount]atlasTile{}
		o.dirty = true
	}
}

func (s *surfaceAtlas) StartDrawing(p Params) *scene_walk.Drawing {
	s.mu.Lock()
	disabled := s.disabled
	s.mu.Unlock()
	if disabled || p.Scene == nil {
		return nil
	}
	b := s.buffer(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.startDrawing(b, p)
}

// startDrawing runs with b.mu held.
func (s *surfaceAtlas) startDrawing(b *viewportBuffer, p Params) *scene_walk.Drawing {
	if b.started && b.drawingFrame == p.Frame {
		return b.drawing
	}
	// A walk Render never consumed may still be writing into the writer.
	scene_walk.WaitForDrawing(b.drawing)
	b.applyPending()
	if p.Reset {
		b.resetTiles()
	}
	if b.allocator.ShouldDefragment(p.Frame) {
		usage := b.allocator.Usage()
		b.allocator.Defragment(p.Frame)
		for _, o := range b.objects {
			o.tiles = [FaceCount]atlasTile{}
			o.dirty = true
		}
		b.defragmented = true
		logger.Component("surface_atlas").Info("surface atlas defragmented", "usage", usage, "objects", len(b.objects))
	}

	b.writer.take()
	b.drawing = s.walker.StartDrawing(p.Scene, []scene_walk.Target{{
		Name:   "surface atlas",
		Writer: b.writer,
		Cull: scene_walk.CullParams{
			Origin:    p.ViewPosition,
			Distance:  p.Distance,
			LayerMask: p.LayerMask,
			MinRadius: s.minObjectRadius,
		},
	}})
	b.drawingFrame = p.Frame
	b.started = true
	return b.drawing
}

func (s *surfaceAtlas) Render(ctx gpu.Context, p Params) bool {
	if !s.supported(ctx) || !s.programs.Prepare(ctx) {
		s.discardDrawing(p.Target)
		return true
	}
	if p.Scene == nil {
		return true
	}
	b := s.buffer(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rendered && b.renderedFrame == p.Frame {
		return b.notReady
	}
	b.rendered = true
	b.renderedFrame = p.Frame
	b.notReady = s.render(ctx, b, p)
	return b.notReady
}

// discardDrawing joins a walk whose objects will not be placed this frame.
func (s *surfaceAtlas) discardDrawing(target uuid.UUID) {
	s.mu.Lock()
	b, ok := s.buffers[target]
	s.mu.Unlock()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	scene_walk.WaitForDrawing(b.drawing)
	b.drawing = nil
}

func (s *surfaceAtlas) fail(b *viewportBuffer, err error) bool {
	if !b.allocFailed {
		logger.Component("surface_atlas").Warn("surface atlas unavailable", "err", err)
	}
	b.allocFailed = true
	b.releaseResources()
	b.resetTiles()
	return true
}

// render runs with b.mu held.
func (s *surfaceAtlas) render(ctx gpu.Context, b *viewportBuffer, p Params) bool {
	log := logger.Component("surface_atlas")
	scene_walk.WaitForDrawing(s.startDrawing(b, p))

	stats := Stats{Frame: p.Frame, Defragmented: b.defragmented}
	b.defragmented = false
	defer func() { b.stats = stats }()

	if err := s.allocate(ctx, b); err != nil {
		return s.fail(b, err)
	}
	if b.allocFailed {
		log.Info("surface atlas recovered")
		b.allocFailed = false
	}

	s.updateObjects(b, p, b.writer.take(), &stats)
	b.pollReadbacks(ctx)

	capacity := b.cullCapacityWanted(len(b.order), s.cullEntriesPerObj)
	if err := s.upload(ctx, b, p, capacity, &stats); err != nil {
		return s.fail(b, err)
	}
	if b.needsClear {
		b.clearTextures(ctx)
		b.needsClear = false
	}

	indirectOn := p.Indirect != nil && p.Indirect.Irradiance != nil
	if indirectOn != b.indirectOn {
		for _, o := range b.order {
			o.lightingDirty = true
		}
		b.indirectOn = indirectOn
	}
	s.capture(ctx, b, p, &stats)
	s.shade(ctx, b, p, &stats)
	s.cull(ctx, b, &stats)

	stats.Usage = b.allocator.Usage()
	stats.Defragmentations = b.allocator.Defragmentations()
	stats.CulledEntries = b.cullCount
	log.Debug("surface atlas updated",
		"objects", stats.Objects, "tiles", stats.Tiles, "captured", stats.Captured,
		"reshaded", stats.Reshaded, "usage", stats.Usage)

	if !b.cullKnown {
		// The culled grid capacity is a guess until the first count comes back.
		return true
	}
	s.publish.Publish(p.Target, p.Frame, b.bindingData())
	return false
}

func (b *viewportBuffer) bindingData() BindingData {
	return BindingData{
		Albedo:          b.albedo,
		Normal:          b.normal,
		Emissive:        b.emissive,
		Depth:           b.depth,
		Lighting:        b.lighting,
		Objects:         b.objectBuf,
		Tiles:           b.tileBuf,
		CullGrid:        b.cullGrid,
		CulledObjects:   b.culled,
		Constants:       b.atlasConstants,
		ConstantsBuffer: b.constants,
	}
}

// fitResolution halves the atlas until it fits the device.
func fitResolution(res int, limit uint32) int {
	for res > 1 && uint32(res) > limit {
		res /= 2
	}
	return res
}

// allocate (re)creates the atlas textures and fixed-size buffers.
func (s *surfaceAtlas) allocate(ctx gpu.Context, b *viewportBuffer) error {
	res := fitResolution(s.resolution, ctx.Limits().MaxTextureDimension2D)
	if b.albedo != nil && b.resolution == res {
		return nil
	}
	b.releaseResources()
	if res != s.resolution && !b.shrunk {
		logger.Component("surface_atlas").Warn("surface atlas shrunk to device limit", "requested", s.resolution, "resolution", res)
		b.shrunk = true
	}

	size := uint32(res)
	descs := []gpu.TextureDesc{
		{Label: "SurfaceAtlas Albedo", Format: gpu.FormatRGBA8Unorm},
		{Label: "SurfaceAtlas Normal", Format: gpu.FormatRGBA8Unorm},
		{Label: "SurfaceAtlas Emissive", Format: gpu.FormatRGBA16Float},
		{Label: "SurfaceAtlas Depth", Format: gpu.FormatDepth32Float},
		{Label: "SurfaceAtlas Lighting", Format: gpu.FormatRGBA16Float},
	}
	textures := make([]gpu.Texture, 0, len(descs))
	for _, d := range descs {
		d.Width, d.Height, d.Depth = size, size, 1
		d.Dimension = gpu.Texture2D
		d.MipLevels = 1
		d.Usage = gpu.UsageRenderTarget | gpu.UsageSampled
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
		{Label: "SurfaceAtlas Constants", Size: 48, Usage: gpu.BufferStorage | gpu.BufferUniform | gpu.BufferCopyDst},
		{Label: "SurfaceAtlas Tile Draw", Size: 112, Usage: gpu.BufferUniform | gpu.BufferCopyDst},
		{Label: "SurfaceAtlas Indirect", Size: 48, Usage: gpu.BufferUniform | gpu.BufferCopyDst},
		{Label: "SurfaceAtlas Lights", Size: 16 + 64*light.MaxGPULights, Usage: gpu.BufferStorage | gpu.BufferCopyDst},
		{Label: "SurfaceAtlas Cull Grid", Size: 4 * CullGridResolution * CullGridResolution * CullGridResolution, Usage: gpu.BufferStorage | gpu.BufferCopyDst},
		{Label: "SurfaceAtlas Cull Counter", Size: cullCounterSize, Usage: gpu.BufferStorage | gpu.BufferCopySrc | gpu.BufferCopyDst},
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

	b.albedo, b.normal, b.emissive, b.depth, b.lighting = textures[0], textures[1], textures[2], textures[3], textures[4]
	b.constants, b.drawCB, b.indirectCB, b.lightBuf = buffers[0], buffers[1], buffers[2], buffers[3]
	b.cullGrid, b.cullCounter = buffers[4], buffers[5]

	if b.allocator.Resolution() != res {
		b.allocator = NewAllocator(res, s.defrag)
	}
	b.resetTiles()
	b.resolution = res
	b.needsClear = true
	b.tickets = nil
	logger.Component("surface_atlas").Info("surface atlas allocated", "resolution", res)
	return nil
}

func releaseAll[T gpu.Resource](rs []T) {
	for _, r := range rs {
		r.Release()
	}
}

func (b *viewportBuffer) releaseResources() {
	for _, r := range []gpu.Resource{b.albedo, b.normal, b.emissive, b.depth, b.lighting} {
		if r != nil {
			r.Release()
		}
	}
	for _, r := range []gpu.Buffer{b.objectBuf, b.tileBuf, b.constants, b.drawCB, b.indirectCB, b.lightBuf, b.cullGrid, b.culled, b.cullCounter} {
		if r != nil {
			r.Release()
		}
	}
	b.albedo, b.normal, b.emissive, b.depth, b.lighting = nil, nil, nil, nil, nil
	b.objectBuf, b.tileBuf, b.constants, b.drawCB, b.indirectCB, b.lightBuf = nil, nil, nil, nil, nil, nil
	b.cullGrid, b.culled, b.cullCounter = nil, nil, nil
	b.resolution = 0
	b.tickets = nil
	b.cullKnown = false
}

func (b *viewportBuffer) clearTextures(ctx gpu.Context) {
	zero := [4]float32{}
	ctx.ClearTexture(b.albedo, zero)
	ctx.ClearTexture(b.normal, zero)
	ctx.ClearTexture(b.emissive, zero)
	ctx.ClearTexture(b.depth, [4]float32{1, 1, 1, 1})
	ctx.ClearTexture(b.lighting, zero)
}

// ensureBuffer grows a buffer to hold at least size bytes, doubling from minSize.
func ensureBuffer(ctx gpu.Context, buf *gpu.Buffer, label string, size, minSize uint64, usage gpu.BufferUsage) error {
	if *buf != nil && (*buf).Desc().Size >= size {
		return nil
	}
	capacity := minSize
	for capacity < size {
		capacity *= 2
	}
	nb, err := ctx.CreateBuffer(gpu.BufferDesc{Label: label, Size: capacity, Usage: usage})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", label, err)
	}
	if *buf != nil {
		(*buf).Release()
	}
	*buf = nb
	return nil
}

// updateObjects applies the walk results: places tiles, schedules redraws and
// removes objects that were not seen.
func (s *surfaceAtlas) updateObjects(b *viewportBuffer, p Params, seen map[uint64]seenObject, stats *Stats) {
	policy := s.policy
	if p.Quality > 0 {
		policy.Quality *= p.Quality
	}
	// Sorted so the packer sees the same insertion order on every run.
	for _, id := range slices.Sorted(maps.Keys(seen)) {
		so := seen[id]
		o, ok := b.objects[id]
		if !ok {
			o = &atlasObject{id: id, hash: common.StableHash32(id), dirty: true}
			b.objects[id] = o
		}
		moved := o.box != so.desc.Bounds
		o.actor, o.box, o.draw = so.actor, so.desc.Bounds, so.desc.Draw
		o.lastSeen = p.Frame

		sphere := o.box.Sphere()
		distance := max(sphere.Center.Sub(p.ViewPosition).Len()-sphere.Radius, 0)
		if !s.placeTiles(b, o, policy, distance, p.Frame, stats) {
			b.freeTiles(o)
			delete(b.objects, id)
			stats.Culled++
			continue
		}
		switch {
		case !o.actor.IsStatic():
			o.dirty = true
		case moved:
			o.dirty = true
		case dueForRedraw(p.Frame, o.hash, redrawInterval(o.actor, s.staticInterval, s.lightmapInterval)):
			o.dirty = true
		}
	}
	for id, o := range b.objects {
		if o.lastSeen != p.Frame {
			b.freeTiles(o)
			delete(b.objects, id)
			stats.Removed++
		}
	}

	b.order = b.order[:0]
	for _, id := range slices.Sorted(maps.Keys(b.objects)) {
		o := b.objects[id]
		o.index = uint32(len(b.order))
		b.order = append(b.order, o)
	}
	stats.Objects = len(b.order)
}

// placeTiles sizes every face of an object and (re)packs the faces whose size
// left the hysteresis band. It returns false when no face is large enough.
func (s *surfaceAtlas) placeTiles(b *viewportBuffer, o *atlasObject, policy TilePolicy, distance float32, frame uint64, stats *Stats) bool {
	usable, failed := false, false
	for f := range FaceCount {
		t := &o.tiles[f]
		res := policy.Resolution(FaceMajor(o.box.Extents, f), distance)
		w, h, ok := FaceSize(o.box.Extents, f, res, policy.MinSize, policy.Align)
		if !ok {
			if t.live() {
				b.allocator.Free(t.handle)
				*t = atlasTile{}
			}
			continue
		}
		usable = true
		if t.live() && policy.Keep(t.res, res) {
			continue
		}
		if t.live() {
			b.allocator.Free(t.handle)
			*t = atlasTile{}
		}
		handle, rect, ok := b.allocator.Insert(w+2*TilePadding, h+2*TilePadding, frame)
		if !ok {
			stats.InsertFailures++
			failed = true
			continue
		}
		*t = atlasTile{handle: handle, rect: rect, res: res}
		o.dirty = true
	}
	if failed {
		logger.Component("surface_atlas").Debug("surface atlas insert failed", "object", o.id, "usage", b.allocator.Usage())
	}
	return usable
}

func (b *viewportBuffer) pollReadbacks(ctx gpu.Context) {
	for len(b.tickets) > 0 {
		data, ok := ctx.TryRead(b.tickets[0])
		if !ok {
			break
		}
		b.tickets = b.tickets[1:]
		if len(data) >= 4 {
			b.cullCount = binary.LittleEndian.Uint32(data)
			b.cullKnown = true
		}
	}
}

// cullCapacityWanted sizes the culled object list from the last counted
// entries, or from a per-object bound before any count arrived.
func (b *viewportBuffer) cullCapacityWanted(objects, perObject int) uint64 {
	if b.cullKnown {
		return uint64(b.cullCount) + uint64(b.cullCount)/4 + 64
	}
	return uint64(max(objects*perObject, 256))
}

func uvRect(r Rect, res int) [4]float32 {
	inv := 1 / float32(res)
	return [4]float32{float32(r.X) * inv, float32(r.Y) * inv, float32(r.W) * inv, float32(r.H) * inv}
}

func viewportOf(r Rect) gpu.Viewport {
	return gpu.Viewport{X: float32(r.X), Y: float32(r.Y), Width: float32(r.W), Height: float32(r.H)}
}

// upload writes the object, tile and constant buffers.
func (s *surfaceAtlas) upload(ctx gpu.Context, b *viewportBuffer, p Params, capacity uint64, stats *Stats) error {
	objects := make([]byte, 0, len(b.order)*112)
	tiles := make([]byte, 0, len(b.order)*112)
	tileCount := uint32(0)
	for _, o := range b.order {
		obj := GPUAtlasObject{
			Transform: o.box.Transform,
			Extents:   o.box.Extents,
			Radius:    o.box.Sphere().Radius,
		}
		for f := range FaceCount {
			t := &o.tiles[f]
			if !t.live() {
				obj.Tiles[f] = NoTile
				continue
			}
			view := FaceView(o.box, f, s.nearOffset)
			tile := GPUAtlasTile{
				Rect:        uvRect(t.inner(), b.resolution),
				ViewProj:    view.Proj.Mul4(view.View),
				ViewExtents: view.Extents,
				Object:      o.index,
				Direction:   view.Direction,
			}
			obj.Tiles[f] = tileCount
			obj.TileMask |= 1 << f
			tiles = append(tiles, tile.Marshal()...)
			tileCount++
		}
		objects = append(objects, obj.Marshal()...)
	}
	stats.Tiles = int(tileCount)

	if err := ensureBuffer(ctx, &b.objectBuf, "SurfaceAtlas Objects", uint64(len(objects)), 112*256, gpu.BufferStorage|gpu.BufferCopyDst); err != nil {
		return err
	}
	if err := ensureBuffer(ctx, &b.tileBuf, "SurfaceAtlas Tiles", uint64(len(tiles)), 112*1024, gpu.BufferStorage|gpu.BufferCopyDst); err != nil {
		return err
	}
	if err := ensureBuffer(ctx, &b.culled, "SurfaceAtlas Culled Objects", capacity*CullEntrySize, CullEntrySize*256, gpu.BufferStorage|gpu.BufferCopyDst); err != nil {
		return err
	}
	if len(objects) > 0 {
		ctx.UpdateBuffer(b.objectBuf, 0, objects)
	}
	if len(tiles) > 0 {
		ctx.UpdateBuffer(b.tileBuf, 0, tiles)
	}

	distance := max(p.Distance, 1)
	b.atlasConstants = GPUAtlasConstants{
		ViewPosition:   p.ViewPosition,
		Resolution:     uint32(b.resolution),
		ObjectCount:    uint32(len(b.order)),
		TileCount:      tileCount,
		CullCapacity:   uint32(b.culled.Desc().Size / CullEntrySize),
		GridResolution: CullGridResolution,
		GridOrigin:     p.ViewPosition.Sub(mgl32.Vec3{distance, distance, distance}),
		GridCellSize:   2 * distance / CullGridResolution,
	}
	ctx.UpdateBuffer(b.constants, 0, b.atlasConstants.Marshal())
	return nil
}

// capture renders the geometry of every dirty object into its tiles.
func (s *surfaceAtlas) capture(ctx gpu.Context, b *viewportBuffer, p Params, stats *Stats) {
	clearProg := s.programs.Get(ShaderClearTile)
	targetSet := false
	for _, o := range b.order {
		if !o.dirty {
			continue
		}
		if !targetSet {
			ctx.SetRenderTarget(b.depth, b.albedo, b.normal, b.emissive)
			targetSet = true
		}
		for f := range FaceCount {
			t := &o.tiles[f]
			if !t.live() {
				continue
			}
			view := FaceView(o.box, f, s.nearOffset)
			ctx.SetViewport(viewportOf(t.inner()))
			ctx.DrawFullscreen(clearProg)
			o.draw(ctx, view.View, view.Proj)
			stats.TilesCaptured++
		}
		o.dirty = false
		o.lightingDirty = true
		o.captured = true
		o.lastUpdated = p.Frame
		stats.Captured++
	}
	if targetSet {
		ctx.ResetRenderTarget()
	}
}

// objectLights returns the lights whose influence touches an object, in scene
// order. At most light.MaxGPULights are returned; the rest are not shaded into
// the atlas and their count is returned as dropped.
func objectLights(lights []light.Light, bounds common.BoundingBox) (out []light.Light, dropped int) {
	out = make([]light.Light, 0, min(len(lights), light.MaxGPULights))
	for _, l := range lights {
		if !l.Influence().IntersectsBox(bounds) {
			continue
		}
		if len(out) == light.MaxGPULights {
			dropped++
			continue
		}
		out = append(out, l)
	}
	return out, dropped
}

// shade writes the direct and optional indirect lighting of every object
// whose capture or lights changed. One fullscreen draw per tile shades every
// light touching the object in a single pass. The light buffer holds
// light.MaxGPULights (64) lights: an object touched by more keeps the first 64
// in scene order and the rest contribute nothing to its tiles.
func (s *surfaceAtlas) shade(ctx gpu.Context, b *viewportBuffer, p Params, stats *Stats) {
	prog := s.programs.Get(ShaderLighting)
	var indirect GPUIndirectConstants
	if b.indirectOn {
		prog = s.programs.Get(ShaderLightingIndirect)
		indirect = p.Indirect.Constants
		ctx.UpdateBuffer(b.indirectCB, 0, indirect.Marshal())
	}
	lights := p.Scene.Lights()
	ambient := p.Scene.AmbientColor()

	targetSet := false
	for _, o := range b.order {
		if !o.lightingDirty || !o.captured {
			continue
		}
		if !targetSet {
			ctx.SetRenderTarget(nil, b.lighting)
			targetSet = true
		}
		touching, dropped := objectLights(lights, o.box.Bounds())
		if dropped > 0 {
			logger.Component("surface_atlas").Debug("object lights over the shading cap", "object", o.id, "dropped", dropped)
		}
		ctx.UpdateBuffer(b.lightBuf, 0, light.MarshalLights(ambient, touching))
		for f := range FaceCount {
			t := &o.tiles[f]
			if !t.live() {
				continue
			}
			view := FaceView(o.box, f, s.nearOffset)
			draw := GPUTileDraw{
				Rect:        uvRect(t.inner(), b.resolution),
				InvViewProj: view.Proj.Mul4(view.View).Inv(),
				Direction:   view.Direction,
				Object:      o.index,
			}
			if b.indirectOn {
				draw.IndirectEnabled = 1
				draw.BounceIntensity = p.Indirect.BounceIntensity
			}
			ctx.UpdateBuffer(b.drawCB, 0, draw.Marshal())
			ctx.BindSR(0, b.albedo)
			ctx.BindSR(1, b.normal)
			ctx.BindSR(2, b.emissive)
			ctx.BindSR(3, b.depth)
			ctx.BindSR(4, b.lightBuf)
			ctx.BindCB(0, b.drawCB)
			if b.indirectOn {
				ctx.BindSR(5, p.Indirect.Irradiance)
				ctx.BindCB(1, b.indirectCB)
			}
			ctx.SetViewport(viewportOf(t.inner()))
			ctx.DrawFullscreen(prog)
			ctx.ResetSR()
		}
		if o.lastUpdated != p.Frame {
			stats.Reshaded++
		}
		o.lightingDirty = false
	}
	if targetSet {
		ctx.ResetRenderTarget()
	}
}

// cull bins the atlas objects into the culling grid and reads back how many
// entries the list needed.
func (s *surfaceAtlas) cull(ctx gpu.Context, b *viewportBuffer, stats *Stats) {
	ctx.ClearBuffer(b.cullGrid)
	ctx.ClearBuffer(b.cullCounter)
	if n := uint32(len(b.order)); n > 0 {
		prog := s.programs.Get(ShaderCullObjects)
		ctx.BindSR(0, b.objectBuf)
		ctx.BindUA(0, b.cullGrid)
		ctx.BindUA(1, b.culled)
		ctx.BindUA(2, b.cullCounter)
		ctx.BindCB(0, b.constants)
		ctx.Dispatch(prog, gpu.GroupCount(n, prog.WorkgroupSize()[0]), 1, 1)
		ctx.ResetSR()
		ctx.ResetUA()
	}
	if len(b.tickets) < maxPendingReadbacks {
		if t := ctx.ReadbackBuffer(b.cullCounter, cullCounterSize); t.Valid() {
			b.tickets = append(b.tickets, t)
		}
	}
	if b.cullKnown && b.cullCount > b.atlasConstants.CullCapacity {
		logger.Component("surface_atlas").Debug("culled object list overflowed",
			"entries", b.cullCount, "capacity", b.atlasConstants.CullCapacity)
	}
}

func (s *surfaceAtlas) Get(target uuid.UUID, frame uint64) (BindingData, bool) {
	return s.publish.Get(target, frame)
}

func (s *surfaceAtlas) Stats(target uuid.UUID) Stats {
	s.mu.Lock()
	b, ok := s.buffers[target]
	s.mu.Unlock()
	if !ok {
		return Stats{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (s *surfaceAtlas) ReleaseViewport(target uuid.UUID) {
	s.mu.Lock()
	b, ok := s.buffers[target]
	delete(s.buffers, target)
	s.mu.Unlock()
	s.publish.Forget(target)
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

func (s *surfaceAtlas) Release() {
	s.mu.Lock()
	targets := make([]uuid.UUID, 0, len(s.buffers))
	for t := range s.buffers {
		targets = append(targets, t)
	}
	s.mu.Unlock()
	for _, t := range targets {
		s.ReleaseViewport(t)
	}
	s.programs.Release()
}
