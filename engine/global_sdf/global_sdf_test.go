package global_sdf

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/game_object"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/jobs"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene_walk"
	"github.com/Carmen-Shannon/oxy-gi/engine/shaders"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestPassFS builds a pass with one 128^3 cascade of 1 unit voxels (32 unit
// chunks) centered at (0,0,32) for the default test view. A nil fsys loads the
// real shaders.
func newTestPassFS(t *testing.T, fsys fstest.MapFS, opts ...GlobalSDFBuilderOption) GlobalSDF {
	t.Helper()
	var m content.Manager
	if fsys == nil {
		m = content.NewManager(shaders.FS, content.WithInclude("global_sdf_types", GPUTypesSource))
	} else {
		m = content.NewManager(fsys)
	}
	sched := jobs.NewScheduler(jobs.WithWorkers(2))
	opts = append([]GlobalSDFBuilderOption{WithCascadeOptions(cascade.WithIdealExtent(64))}, opts...)
	g := NewGlobalSDF(m, scene_walk.NewWalker(sched), opts...)
	m.Wait()
	t.Cleanup(func() {
		g.Release()
		m.Close()
		sched.Close()
	})
	return g
}

func testSDF() *scene.ModelSDF {
	return scene.NewModelSDF(nil, common.NewBoundingBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), common.Splat3(8), 1, 3)
}

func cube(sdf *scene.ModelSDF, pos mgl32.Vec3, static bool) game_object.GameObject {
	return game_object.NewGameObject(
		game_object.WithTransform(pos, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}),
		game_object.WithModelSDF(sdf),
		game_object.WithStatic(static),
	)
}

func params(target uuid.UUID, s scene.Scene, frame uint64) Params {
	return Params{
		Target: target,
		Scene:  s,
		Frame:  frame,
		View: cascade.View{
			Direction: mgl32.Vec3{0, 0, 1},
			Distance:  64,
			Quality:   cascade.QualityLow,
		},
		LayerMask: ^uint32(0),
	}
}

func firstCall(calls []gpu.Call, program string) int {
	for i, c := range calls {
		if c.Program == program {
			return i
		}
	}
	return -1
}

func TestRenderNotReadyWhileShadersLoad(t *testing.T) {
	g := newTestPassFS(t, fstest.MapFS{})
	target := uuid.New()
	s := scene.NewScene("empty", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, true)))

	rec := gpu.NewRecorder()
	require.True(t, g.Render(rec, params(target, s, 1)))
	require.Zero(t, rec.GPUWork())
	_, ready := g.Get(target, 1)
	require.False(t, ready)
}

// gatedActor holds every ContributeToVolume call until gate is closed.
type gatedActor struct {
	game_object.GameObject
	gate <-chan struct{}
}

func (a gatedActor) ContributeToVolume(w scene.VolumeWriter) {
	<-a.gate
	a.GameObject.ContributeToVolume(w)
}

func TestNotReadyRenderJoinsWalk(t *testing.T) {
	g := newTestPassFS(t, fstest.MapFS{})
	target := uuid.New()
	gate := make(chan struct{})
	s := scene.NewScene("gated", scene.WithActors(gatedActor{cube(testSDF(), mgl32.Vec3{}, true), gate}))

	rec := gpu.NewRecorder()
	g.StartDrawing(params(target, s, 1))
	done := make(chan bool, 1)
	go func() { done <- g.Render(rec, params(target, s, 1)) }()
	require.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(gate)
	select {
	case notReady := <-done:
		require.True(t, notReady)
	case <-time.After(time.Second):
		t.Fatal("Render did not return after the walk finished")
	}
	require.Zero(t, rec.GPUWork())
}

func TestStartDrawingJoinsPreviousWalk(t *testing.T) {
	g := newTestPassFS(t, fstest.MapFS{})
	target := uuid.New()
	gate := make(chan struct{})
	s := scene.NewScene("gated", scene.WithActors(gatedActor{cube(testSDF(), mgl32.Vec3{}, true), gate}))

	// Frame 1 is never rendered, so its walk is still running when frame 2 starts.
	g.StartDrawing(params(target, s, 1))
	started := make(chan *scene_walk.Drawing, 1)
	go func() { started <- g.StartDrawing(params(target, s, 2)) }()
	require.Never(t, func() bool { return len(started) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(gate)
	var d *scene_walk.Drawing
	select {
	case d = <-started:
	case <-time.After(time.Second):
		t.Fatal("StartDrawing did not return after the previous walk finished")
	}
	d.Wait()

	b := g.(*globalSDF).buffers[target]
	require.Len(t, b.objects.objects, 1)
	coords := b.grids[0].Coords()
	require.Len(t, coords, 8)
	for _, coord := range coords {
		layers := b.grids[0].Layers(coord)
		require.Len(t, layers, 1)
		require.Equal(t, 1, layers[0].ModelCount, "chunk %v", coord)
		require.Zero(t, layers[0].Models[0])
	}
}

func TestRenderDispatchOrder(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("one", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, true)))

	rec := gpu.NewRecorder()
	require.False(t, g.Render(rec, params(target, s, 1)))

	calls := rec.Calls()
	raster := firstCall(calls, ShaderRasterize)
	down := firstCall(calls, ShaderDownsample)
	flood := firstCall(calls, ShaderFlood)
	require.GreaterOrEqual(t, raster, 0)
	require.Less(t, raster, down)
	require.Less(t, down, flood)

	require.Equal(t, 8, rec.CountProgram(ShaderRasterize))
	require.Equal(t, 1, rec.CountProgram(ShaderDownsample))
	require.Equal(t, 5, rec.CountProgram(ShaderFlood))
	require.Zero(t, rec.CountProgram(ShaderClearChunk))
	require.Equal(t, 3, rec.Count(gpu.CallClearTexture))

	st := g.Stats(target)
	require.Equal(t, 1, st.DirtyCascades)
	require.Equal(t, 8, st.ChunksRasterized)
	require.Equal(t, 14, st.Dispatches)
	require.Equal(t, 1, st.Objects)

	data, ready := g.Get(target, 1)
	require.True(t, ready)
	require.NotNil(t, data.Volume)
	require.Equal(t, uint32(1), data.Constants.CascadeCount)
	require.Equal(t, uint32(128), data.Constants.Resolution)
	require.Equal(t, uint32(4), data.Constants.ChunksPerAxis)
}

func TestRenderTwiceOnSameFrameReusesResult(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("one", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, false)))

	rec := gpu.NewRecorder()
	p := params(target, s, 1)
	g.StartDrawing(p)
	require.False(t, g.Render(rec, p))
	work := rec.GPUWork()
	require.False(t, g.Render(rec, p))
	require.Equal(t, work, rec.GPUWork())
}

func TestStaticChunksAreSkipped(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("static", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, true)))

	rec := gpu.NewRecorder()
	require.False(t, g.Render(rec, params(target, s, 1)))
	rec.Reset()

	require.False(t, g.Render(rec, params(target, s, 2)))
	st := g.Stats(target)
	require.Zero(t, st.ChunksRasterized)
	require.Equal(t, 8, st.ChunksSkipped)
	require.Zero(t, rec.CountProgram(ShaderRasterize))
	require.Zero(t, rec.CountProgram(ShaderDownsample))
}

func TestDynamicChunksAreRasterizedEveryUpdate(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("dynamic", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, false)))

	rec := gpu.NewRecorder()
	for frame := uint64(1); frame <= 3; frame++ {
		require.False(t, g.Render(rec, params(target, s, frame)))
		require.Equal(t, 8, g.Stats(target).ChunksRasterized)
	}
}

func TestMovingStaticActorInvalidatesChunks(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	obj := cube(testSDF(), mgl32.Vec3{}, true)
	s := scene.NewScene("move", scene.WithActors(obj))

	rec := gpu.NewRecorder()
	require.False(t, g.Render(rec, params(target, s, 1)))
	require.False(t, g.Render(rec, params(target, s, 2)))
	require.Equal(t, 8, g.Stats(target).ChunksSkipped)

	game_object.Move(s, obj, func(o game_object.GameObject) {
		o.SetPosition(mgl32.Vec3{48, 0, 0})
	})
	rec.Reset()
	require.False(t, g.Render(rec, params(target, s, 3)))

	st := g.Stats(target)
	require.Equal(t, 8, st.ChunksCleared)
	require.Equal(t, 4, st.ChunksRasterized)
	require.Zero(t, st.ChunksSkipped)
	require.Equal(t, 8, rec.CountProgram(ShaderClearChunk))
	require.Less(t, firstCall(rec.Calls(), ShaderClearChunk), firstCall(rec.Calls(), ShaderRasterize))
}

func TestResidencyChangeInvalidatesChunks(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	sdf := testSDF()
	s := scene.NewScene("stream", scene.WithActors(cube(sdf, mgl32.Vec3{}, true)))

	rec := gpu.NewRecorder()
	require.False(t, g.Render(rec, params(target, s, 1)))
	require.False(t, g.Render(rec, params(target, s, 2)))
	require.Equal(t, 8, g.Stats(target).ChunksSkipped)

	s.SetTextureResidency(sdf, 1)
	require.False(t, g.Render(rec, params(target, s, 3)))
	require.Equal(t, 8, g.Stats(target).ChunksRasterized)

	s.SetTextureResidency(sdf, 0)
	require.False(t, g.Render(rec, params(target, s, 4)))
	st := g.Stats(target)
	require.Equal(t, 8, st.ChunksCleared)
	require.Equal(t, 1, st.Deferred)
	require.Zero(t, st.Objects)
}

func TestOverflowLayersAreMerged(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	sdf := testSDF()
	actors := make([]scene.Actor, 0, 30)
	for range 30 {
		actors = append(actors, cube(sdf, mgl32.Vec3{}, false))
	}
	s := scene.NewScene("crowd", scene.WithActors(actors...))

	rec := gpu.NewRecorder()
	require.False(t, g.Render(rec, params(target, s, 1)))
	// 28 models split into two dispatches plus one dispatch for the overflow layer.
	require.Equal(t, 8*3, rec.CountProgram(ShaderRasterize))
	require.Equal(t, 30, g.Stats(target).Objects)
	require.Zero(t, g.Stats(target).Dropped)
}

func TestSoftObjectCapDefersNewObjects(t *testing.T) {
	g := newTestPassFS(t, nil, WithSoftObjectCap(1))
	target := uuid.New()
	sdf := testSDF()
	s := scene.NewScene("cap", scene.WithActors(
		cube(sdf, mgl32.Vec3{-40, 0, 0}, false),
		cube(sdf, mgl32.Vec3{40, 0, 0}, false),
	))

	rec := gpu.NewRecorder()
	require.False(t, g.Render(rec, params(target, s, 1)))
	st := g.Stats(target)
	require.Equal(t, 1, st.Objects)
	require.Equal(t, 1, st.Deferred)
}

func TestOversizedVolumeIsNotReady(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("big", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, true)))

	rec := gpu.NewRecorder(gpu.WithLimits(gpu.Limits{
		MaxTextureDimension2D: 8192,
		MaxTextureDimension3D: 64,
		MaxBufferSize:         1 << 30,
	}))
	require.True(t, g.Render(rec, params(target, s, 1)))
	require.Zero(t, rec.Count(gpu.CallDispatch))
	_, ready := g.Get(target, 1)
	require.False(t, ready)
}

func TestMissingFeaturesDisablePass(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("old", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, true)))

	rec := gpu.NewRecorder(gpu.WithFeatures(gpu.Features{Compute: true}))
	require.True(t, g.Render(rec, params(target, s, 1)))
	require.Nil(t, g.StartDrawing(params(target, s, 2)))
	require.True(t, g.Render(gpu.NewRecorder(), params(target, s, 2)))
	require.Zero(t, rec.GPUWork())
}

func TestBindingReadyForOneFrame(t *testing.T) {
	g := newTestPassFS(t, nil)
	target := uuid.New()
	s := scene.NewScene("one", scene.WithActors(cube(testSDF(), mgl32.Vec3{}, true)))

	require.False(t, g.Render(gpu.NewRecorder(), params(target, s, 5)))
	_, ready := g.Get(target, 6)
	require.True(t, ready)
	data, ready := g.Get(target, 7)
	require.False(t, ready)
	require.NotNil(t, data.Volume)

	_, ready = g.Get(uuid.New(), 5)
	require.False(t, ready)

	g.ReleaseViewport(target)
	_, ready = g.Get(target, 5)
	require.False(t, ready)
	require.Equal(t, Stats{}, g.Stats(target))
}
