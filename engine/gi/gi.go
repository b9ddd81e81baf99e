// Package gi chains the global distance field, the surface atlas and the DDGI
// probe volume into one per-viewport GI update.
package gi

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/camera"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/ddgi"
	"github.com/Carmen-Shannon/oxy-gi/engine/global_sdf"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene_walk"
	"github.com/Carmen-Shannon/oxy-gi/engine/surface_atlas"
	"github.com/google/uuid"
)

// Includes returns every WGSL snippet the GI shaders include.
func Includes() map[string]string {
	return ddgi.Includes()
}

// ContentOptions returns the content manager options that register Includes.
//
// Returns:
//   - []content.ManagerBuilderOption: one WithInclude per snippet
func ContentOptions() []content.ManagerBuilderOption {
	var opts []content.ManagerBuilderOption
	for name, src := range Includes() {
		opts = append(opts, content.WithInclude(name, src))
	}
	return opts
}

// RenderContext is what a render target set hands the renderer each frame.
type RenderContext struct {
	Target   uuid.UUID
	Scene    scene.Scene
	Frame    uint64
	Camera   camera.Camera
	Settings Settings
	// SceneBounds limits how far cascades are pushed along the view direction.
	SceneBounds common.BoundingBox
	// Reset rebuilds every pass from scratch.
	Reset bool
}

// Stats gathers the statistics of every pass of one frame. A NotReady flag is
// only set for an enabled pass.
type Stats struct {
	Frame uint64
	SDF   global_sdf.Stats
	Atlas surface_atlas.Stats
	DDGI  ddgi.Stats

	SDFNotReady   bool
	AtlasNotReady bool
	DDGINotReady  bool
}

// Renderer runs the GI passes of every render target set.
type Renderer interface {
	// StartDrawing starts the scene walks of the distance field and the atlas so
	// they overlap other CPU work. Render joins them.
	//
	// Parameters:
	//   - rc: the frame inputs
	StartDrawing(rc RenderContext)

	// Render updates the distance field, then the surface atlas, then the probe
	// volume. The probes only update on frames where both of their inputs are
	// ready. A second call on the same frame reuses the first result.
	//
	// Parameters:
	//   - ctx: the GPU context
	//   - rc: the frame inputs
	//
	// Returns:
	//   - bool: true if any enabled pass must not be used this frame
	Render(ctx gpu.Context, rc RenderContext) bool

	// SDF returns the published distance field of a render target set.
	SDF(target uuid.UUID, frame uint64) (global_sdf.BindingData, bool)

	// Atlas returns the published surface atlas of a render target set.
	Atlas(target uuid.UUID, frame uint64) (surface_atlas.BindingData, bool)

	// DDGI returns the published probe volume of a render target set.
	DDGI(target uuid.UUID, frame uint64) (ddgi.BindingData, bool)

	// Stats returns the statistics of the last Render of a render target set.
	Stats(target uuid.UUID) Stats

	// ReleaseViewport frees everything every pass owns for a render target set.
	ReleaseViewport(target uuid.UUID)

	// Release frees every pass.
	Release()
}

type viewportState struct {
	mu            sync.Mutex
	settings      Settings
	hasSettings   bool
	rendered      bool
	renderedFrame uint64
	notReady      bool
	stats         Stats
}

type renderer struct {
	mu     sync.Mutex
	states map[uuid.UUID]*viewportState

	sdf   global_sdf.GlobalSDF
	atlas surface_atlas.SurfaceAtlas
	ddgi  ddgi.DDGI

	sdfOptions   []global_sdf.GlobalSDFBuilderOption
	atlasOptions []surface_atlas.SurfaceAtlasBuilderOption
	ddgiOptions  []ddgi.DDGIBuilderOption
}

var _ Renderer = &renderer{}

// NewRenderer creates the three GI passes on one content manager and scene walker.
//
// Parameters:
//   - m: the content manager the shaders are loaded from, with ContentOptions registered
//   - w: the scene walker shared by the distance field and the atlas
//   - opts: variadic RendererBuilderOption functions
//
// Returns:
//   - Renderer: the GI renderer
func NewRenderer(m content.Manager, w scene_walk.Walker, opts ...RendererBuilderOption) Renderer {
	if m == nil {
		panic("gi: NewRenderer requires a content Manager")
	}
	if w == nil {
		panic("gi: NewRenderer requires a scene Walker")
	}
	r := &renderer{states: make(map[uuid.UUID]*viewportState)}
	for _, opt := range opts {
		opt(r)
	}
	r.sdf = global_sdf.NewGlobalSDF(m, w, r.sdfOptions...)
	r.atlas = surface_atlas.NewSurfaceAtlas(m, w, r.atlasOptions...)
	r.ddgi = ddgi.NewDDGI(m, r.ddgiOptions...)
	return r
}

func (r *renderer) state(target uuid.UUID) *viewportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[target]
	if !ok {
		st = &viewportState{}
		r.states[target] = st
	}
	return st
}

func view(rc RenderContext) cascade.View {
	v := cascade.View{
		Distance:    rc.Settings.Distance,
		Quality:     rc.Settings.Quality,
		SceneBounds: rc.SceneBounds,
	}
	if rc.Camera != nil {
		v.Position = rc.Camera.Position()
		v.Direction = rc.Camera.Direction()
	}
	return v
}

func sdfParams(rc RenderContext, reset bool) global_sdf.Params {
	return global_sdf.Params{
		Target:    rc.Target,
		Scene:     rc.Scene,
		Frame:     rc.Frame,
		View:      view(rc),
		Spreading: rc.Settings.Spreading,
		LayerMask: rc.Settings.LayerMask,
		Reset:     reset,
	}
}

func atlasParams(rc RenderContext, reset bool) surface_atlas.Params {
	p := surface_atlas.Params{
		Target:    rc.Target,
		Scene:     rc.Scene,
		Frame:     rc.Frame,
		Distance:  rc.Settings.Distance,
		LayerMask: rc.Settings.LayerMask,
		Quality:   rc.Settings.atlasQuality(),
		Reset:     reset,
	}
	if rc.Camera != nil {
		p.ViewPosition = rc.Camera.Position()
	}
	return p
}

func (r *renderer) StartDrawing(rc RenderContext) {
	if rc.Settings.SDFEnabled {
		r.sdf.StartDrawing(sdfParams(rc, rc.Reset))
	}
	if rc.Settings.AtlasEnabled {
		r.atlas.StartDrawing(atlasParams(rc, rc.Reset))
	}
}

func (r *renderer) Render(ctx gpu.Context, rc RenderContext) bool {
	st := r.state(rc.Target)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rendered && st.renderedFrame == rc.Frame {
		return st.notReady
	}

	reset := rc.Reset
	if st.hasSettings && st.settings.changed(rc.Settings) {
		logger.Component("gi").Info("settings changed, resetting", "target", rc.Target)
		reset = true
	}
	st.settings = rc.Settings
	st.hasSettings = true

	s := rc.Settings
	stats := Stats{Frame: rc.Frame}
	if s.SDFEnabled {
		stats.SDFNotReady = r.sdf.Render(ctx, sdfParams(rc, reset))
	}
	if s.AtlasEnabled {
		p := atlasParams(rc, reset)
		// The atlas shades with the probes of the last frame they were published.
		if s.DDGIEnabled {
			if probes, ok := r.ddgi.Get(rc.Target, rc.Frame); ok {
				p.Indirect = probes.Indirect(s.BounceIntensity)
			}
		}
		stats.AtlasNotReady = r.atlas.Render(ctx, p)
	}
	switch {
	case !s.DDGIEnabled:
	case !s.SDFEnabled || !s.AtlasEnabled || stats.SDFNotReady || stats.AtlasNotReady:
		// The probes trace against both inputs of this frame.
		stats.DDGINotReady = true
	default:
		sdf, _ := r.sdf.Get(rc.Target, rc.Frame)
		atlas, _ := r.atlas.Get(rc.Target, rc.Frame)
		stats.DDGINotReady = r.ddgi.Render(ctx, ddgi.Params{
			Target:    rc.Target,
			Frame:     rc.Frame,
			View:      view(rc),
			Spreading: s.Spreading,
			Reset:     reset,
			SDF:       sdf,
			Atlas:     atlas,
			Sky:       s.Sky,
		})
	}
	stats.SDF = r.sdf.Stats(rc.Target)
	stats.Atlas = r.atlas.Stats(rc.Target)
	stats.DDGI = r.ddgi.Stats(rc.Target)

	notReady := stats.SDFNotReady || stats.AtlasNotReady || stats.DDGINotReady
	if !s.SDFEnabled && !s.AtlasEnabled && !s.DDGIEnabled {
		notReady = true
	}

	st.rendered = true
	st.renderedFrame = rc.Frame
	st.notReady = notReady
	st.stats = stats
	return notReady
}

func (r *renderer) SDF(target uuid.UUID, frame uint64) (global_sdf.BindingData, bool) {
	return r.sdf.Get(target, frame)
}

func (r *renderer) Atlas(target uuid.UUID, frame uint64) (surface_atlas.BindingData, bool) {
	return r.atlas.Get(target, frame)
}

func (r *renderer) DDGI(target uuid.UUID, frame uint64) (ddgi.BindingData, bool) {
	return r.ddgi.Get(target, frame)
}

func (r *renderer) Stats(target uuid.UUID) Stats {
	r.mu.Lock()
	st, ok := r.states[target]
	r.mu.Unlock()
	if !ok {
		return Stats{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stats
}

func (r *renderer) ReleaseViewport(target uuid.UUID) {
	r.mu.Lock()
	delete(r.states, target)
	r.mu.Unlock()
	r.ddgi.ReleaseViewport(target)
	r.atlas.ReleaseViewport(target)
	r.sdf.ReleaseViewport(target)
}

func (r *renderer) Release() {
	r.mu.Lock()
	r.states = make(map[uuid.UUID]*viewportState)
	r.mu.Unlock()
	r.ddgi.Release()
	r.atlas.Release()
	r.sdf.Release()
}
