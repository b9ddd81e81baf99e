package surface_atlas

import (
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/game_object"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/jobs"
	"github.com/Carmen-Shannon/oxy-gi/engine/light"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene_walk"
	"github.com/Carmen-Shannon/oxy-gi/engine/shaders"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestAtlasFS builds an atlas of 1024 texels where a unit cube gets 16
// texel tiles. A nil fsys loads the real shaders.
func newTestAtlasFS(t *testing.T, fsys fstest.MapFS, opts ...SurfaceAtlasBuilderOption) SurfaceAtlas {
	t.Helper()
	var m content.Manager
	if fsys == nil {
		var inc []content.ManagerBuilderOption
		for name, src := range Includes() {
			inc = append(inc, content.WithInclude(name, src))
		}
		m = content.NewManager(shaders.FS, inc...)
	} else {
		m = content.NewManager(fsys)
	}
	sched := jobs.NewScheduler(jobs.WithWorkers(2))
	opts = append([]SurfaceAtlasBuilderOption{WithResolution(1024), WithTexelsPerUnit(8)}, opts...)
	s := NewSurfaceAtlas(m, scene_walk.NewWalker(sched), opts...)
	m.Wait()
	t.Cleanup(func() {
		s.Release()
		m.Close()
		sched.Close()
	})
	return s
}

type drawCounter struct {
	n atomic.Int64
}

func (d *drawCounter) draw(gpu.Context, mgl32.Mat4, mgl32.Mat4) {
	d.n.Add(1)
}

func surface(d *drawCounter, pos mgl32.Vec3, half float32, static bool, opts ...game_object.GameObjectBuilderOption) game_object.GameObject {
	base := []game_object.GameObjectBuilderOption{
		game_object.WithTransform(pos, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}),
		game_object.WithLocalBounds(common.NewBoundingBox(mgl32.Vec3{-half, -half, -half}, mgl32.Vec3{half, half, half})),
		game_object.WithSurfaceDraw(d.draw),
		game_object.WithStatic(static),
	}
	return game_object.NewGameObject(append(base, opts...)...)
}

func atlasParams(target uuid.UUID, s scene.Scene, frame uint64) Params {
	return Params{
		Target:    target,
		Scene:     s,
		Frame:     frame,
		Distance:  100,
		LayerMask: ^uint32(0),
	}
}

// step renders one frame and advances the recorder.
func step(s SurfaceAtlas, rec *gpu.Recorder, p Params) bool {
	s.StartDrawing(p)
	notReady := s.Render(rec, p)
	rec.Flush()
	return notReady
}

func TestAtlasNotReadyWhileShadersLoad(t *testing.T) {
	s := newTestAtlasFS(t, fstest.MapFS{})
	var d drawCounter
	sc := scene.NewScene("one", scene.WithActors(surface(&d, mgl32.Vec3{}, 1, true)))

	rec := gpu.NewRecorder()
	require.True(t, s.Render(rec, atlasParams(uuid.New(), sc, 1)))
	require.Zero(t, rec.GPUWork())
	require.Zero(t, d.n.Load())
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

func TestAtlasNotReadyRenderJoinsWalk(t *testing.T) {
	s := newTestAtlasFS(t, fstest.MapFS{})
	target := uuid.New()
	var d drawCounter
	gate := make(chan struct{})
	sc := scene.NewScene("gated", scene.WithActors(gatedActor{surface(&d, mgl32.Vec3{}, 1, true), gate}))

	rec := gpu.NewRecorder()
	s.StartDrawing(atlasParams(target, sc, 1))
	done := make(chan bool, 1)
	go func() { done <- s.Render(rec, atlasParams(target, sc, 1)) }()
	require.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(gate)
	select {
	case notReady := <-done:
		require.True(t, notReady)
	case <-time.After(time.Second):
		t.Fatal("Render did not return after the walk finished")
	}
	require.Zero(t, rec.GPUWork())
	require.Len(t, s.(*surfaceAtlas).buffers[target].writer.seen, 1)
}

func TestAtlasWaitsForFirstCullCount(t *testing.T) {
	s := newTestAtlasFS(t, nil)
	target := uuid.New()
	var d drawCounter
	sc := scene.NewScene("one", scene.WithActors(surface(&d, mgl32.Vec3{}, 1, true)))
	rec := gpu.NewRecorder()

	require.True(t, step(s, rec, atlasParams(target, sc, 1)))
	_, ready := s.Get(target, 1)
	require.False(t, ready)
	require.True(t, step(s, rec, atlasParams(target, sc, 2)))
	require.False(t, step(s, rec, atlasParams(target, sc, 3)))

	data, ready := s.Get(target, 3)
	require.True(t, ready)
	require.NotNil(t, data.Lighting)
	require.Equal(t, uint32(1024), data.Constants.Resolution)
	require.Equal(t, uint32(1), data.Constants.ObjectCount)
	require.Equal(t, uint32(6), data.Constants.TileCount)
	require.Equal(t, uint32(CullGridResolution), data.Constants.GridResolution)
}

func TestAtlasCapturesAndShadesNewObject(t *testing.T) {
	s := newTestAtlasFS(t, nil)
	target := uuid.New()
	var d drawCounter
	sc := scene.NewScene("one", scene.WithActors(surface(&d, mgl32.Vec3{0, 0, 5}, 1, true)))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	st := s.Stats(target)
	require.Equal(t, 1, st.Objects)
	require.Equal(t, 6, st.Tiles)
	require.Equal(t, 1, st.Captured)
	require.Equal(t, 6, st.TilesCaptured)
	require.Equal(t, int64(6), d.n.Load())

	require.Equal(t, 6, rec.CountProgram(ShaderClearTile))
	require.Equal(t, 6, rec.CountProgram(ShaderLighting))
	require.Zero(t, rec.CountProgram(ShaderLightingIndirect))
	require.Equal(t, 1, rec.CountProgram(ShaderCullObjects))
	require.Equal(t, 1, rec.Count(gpu.CallReadback))

	// Six 16x16 tiles with a one texel border.
	require.InDelta(t, 6*18*18/float64(1024*1024), st.Usage, 1e-9)
}

func TestAtlasTilesSurviveDistanceWobble(t *testing.T) {
	policy := DefaultTilePolicy
	policy.TexelsPerUnit = 8
	policy.Near, policy.Far = 10, 110
	s := newTestAtlasFS(t, nil, WithTilePolicy(policy), WithRedrawIntervals(1000, 1000))
	target := uuid.New()
	var d drawCounter
	obj := surface(&d, mgl32.Vec3{}, 4, true)
	sc := scene.NewScene("wobble", scene.WithActors(obj))
	rec := gpu.NewRecorder()

	at := func(frame uint64, z float32) Params {
		p := atlasParams(target, sc, frame)
		p.ViewPosition = mgl32.Vec3{0, 0, z}
		p.Distance = 200
		return p
	}
	tiles := func() [FaceCount]atlasTile {
		b := s.(*surfaceAtlas).buffers[target]
		return b.objects[obj.ID()].tiles
	}

	// 64 texel tiles up close; at z=40 the policy asks for 48, inside the band.
	step(s, rec, at(1, 10))
	first := tiles()
	require.Equal(t, 64, first[0].res)
	for frame := uint64(2); frame <= 9; frame++ {
		z := float32(10)
		if frame%2 == 0 {
			z = 40
		}
		step(s, rec, at(frame, z))
		require.Equal(t, first, tiles(), "frame %d", frame)
	}
	require.Zero(t, s.Stats(target).InsertFailures)

	// Far away the size drops past the band and the tiles are repacked.
	step(s, rec, at(10, 120))
	far := tiles()
	require.Equal(t, 8, far[0].res)
	require.Equal(t, 8+2*TilePadding, far[0].rect.W)
}

func TestAtlasPackingIsDeterministic(t *testing.T) {
	var d drawCounter
	var actors []scene.Actor
	for i := range 12 {
		actors = append(actors, surface(&d, mgl32.Vec3{float32(i) * 6, 0, 0}, 1+float32(i%4)*0.5, true))
	}
	sc := scene.NewScene("packing", scene.WithActors(actors...))

	layout := func() map[uint64][FaceCount]Rect {
		s := newTestAtlasFS(t, nil)
		target := uuid.New()
		step(s, gpu.NewRecorder(), atlasParams(target, sc, 1))
		out := make(map[uint64][FaceCount]Rect)
		for id, o := range s.(*surfaceAtlas).buffers[target].objects {
			var rects [FaceCount]Rect
			for f := range FaceCount {
				rects[f] = o.tiles[f].rect
			}
			out[id] = rects
		}
		return out
	}

	first := layout()
	require.Len(t, first, len(actors))
	for range 3 {
		require.Equal(t, first, layout())
	}
}

func TestAtlasCullsObjectsWithoutUsableFaces(t *testing.T) {
	s := newTestAtlasFS(t, nil)
	target := uuid.New()
	var d drawCounter
	sc := scene.NewScene("tiny", scene.WithActors(
		surface(&d, mgl32.Vec3{}, 0.1, true),
		surface(&d, mgl32.Vec3{4, 0, 0}, 1, true),
	))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	st := s.Stats(target)
	require.Equal(t, 1, st.Culled)
	require.Equal(t, 1, st.Objects)
	require.Equal(t, int64(6), d.n.Load())
}

func TestAtlasStaticRedrawCadence(t *testing.T) {
	s := newTestAtlasFS(t, nil)
	target := uuid.New()
	var static, lightmapped, dynamic drawCounter
	a := surface(&static, mgl32.Vec3{}, 1, true)
	b := surface(&lightmapped, mgl32.Vec3{4, 0, 0}, 1, true, game_object.WithLightmapped(true))
	c := surface(&dynamic, mgl32.Vec3{-4, 0, 0}, 1, false)
	sc := scene.NewScene("cadence", scene.WithActors(a, b, c))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	require.Equal(t, int64(6), static.n.Load())
	require.Equal(t, int64(6), lightmapped.n.Load())

	wantStatic, wantLightmapped := 0, 0
	for frame := uint64(2); frame <= 41; frame++ {
		step(s, rec, atlasParams(target, sc, frame))
		if dueForRedraw(frame, common.StableHash32(a.ID()), 10) {
			wantStatic++
		}
		if dueForRedraw(frame, common.StableHash32(b.ID()), 200) {
			wantLightmapped++
		}
	}
	require.Equal(t, 4, wantStatic)
	require.Equal(t, int64(6*(1+wantStatic)), static.n.Load())
	require.Equal(t, int64(6*(1+wantLightmapped)), lightmapped.n.Load())
	require.Equal(t, int64(6*41), dynamic.n.Load())
}

func TestAtlasMovedStaticObjectIsRecaptured(t *testing.T) {
	s := newTestAtlasFS(t, nil, WithRedrawIntervals(1000, 1000))
	target := uuid.New()
	var d drawCounter
	obj := surface(&d, mgl32.Vec3{}, 1, true)
	sc := scene.NewScene("move", scene.WithActors(obj))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	frame := quietFrame(obj.ID(), 2, 1000)
	game_object.Move(sc, obj, func(g game_object.GameObject) {
		g.SetPosition(mgl32.Vec3{1, 0, 0})
	})
	step(s, rec, atlasParams(target, sc, frame))
	require.Equal(t, 1, s.Stats(target).Captured)
	require.Equal(t, int64(12), d.n.Load())
}

// quietFrame returns the first frame from start on which a static object is
// not scheduled for a redraw.
func quietFrame(id uint64, start, interval uint64) uint64 {
	for f := start; ; f++ {
		if !dueForRedraw(f, common.StableHash32(id), interval) {
			return f
		}
	}
}

func TestAtlasLightChangeOnlyReshades(t *testing.T) {
	s := newTestAtlasFS(t, nil, WithRedrawIntervals(1000, 1000))
	target := uuid.New()
	var near, far drawCounter
	lit := surface(&near, mgl32.Vec3{}, 1, true)
	unlit := surface(&far, mgl32.Vec3{50, 0, 0}, 1, true)
	lamp := light.NewLight(light.LightTypePoint, light.WithPosition(mgl32.Vec3{0, 3, 0}), light.WithRange(5))
	sc := scene.NewScene("lights", scene.WithActors(lit, unlit), scene.WithLights(lamp))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	frame := max(quietFrame(lit.ID(), 2, 1000), quietFrame(unlit.ID(), 2, 1000))
	for !(quietFrame(lit.ID(), frame, 1000) == frame && quietFrame(unlit.ID(), frame, 1000) == frame) {
		frame++
	}

	sc.UpdateLight(lamp, func(l light.Light) { l.SetIntensity(4) })
	rec.Reset()
	step(s, rec, atlasParams(target, sc, frame))

	st := s.Stats(target)
	require.Zero(t, st.Captured)
	require.Equal(t, 1, st.Reshaded)
	require.Zero(t, rec.CountProgram(ShaderClearTile))
	require.Equal(t, 6, rec.CountProgram(ShaderLighting))
	require.Equal(t, int64(6), near.n.Load())
}

func TestObjectLightsCapsAtShadingLimit(t *testing.T) {
	lights := []light.Light{
		light.NewLight(light.LightTypePoint, light.WithPosition(mgl32.Vec3{100, 0, 0}), light.WithRange(1)),
	}
	for i := range light.MaxGPULights + 6 {
		lights = append(lights, light.NewLight(light.LightTypePoint,
			light.WithPosition(mgl32.Vec3{float32(i%4) * 0.1, 2, 0}), light.WithRange(5)))
	}
	bounds := common.NewBoundingBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})

	got, dropped := objectLights(lights, bounds)
	require.Equal(t, 6, dropped)
	require.Equal(t, lights[1:1+light.MaxGPULights], got)

	got, dropped = objectLights(lights[:3], bounds)
	require.Zero(t, dropped)
	require.Equal(t, lights[1:3], got)
}

func TestAtlasRemovesUnseenObjects(t *testing.T) {
	s := newTestAtlasFS(t, nil)
	target := uuid.New()
	var d drawCounter
	a := surface(&d, mgl32.Vec3{}, 1, true)
	b := surface(&d, mgl32.Vec3{4, 0, 0}, 1, true)
	sc := scene.NewScene("remove", scene.WithActors(a, b))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	used := s.Stats(target).Usage

	b.SetEnabled(false)
	step(s, rec, atlasParams(target, sc, 2))
	st := s.Stats(target)
	require.Equal(t, 1, st.Removed)
	require.Equal(t, 1, st.Objects)
	require.InDelta(t, used/2, st.Usage, 1e-9)

	sc.RemoveActor(a)
	step(s, rec, atlasParams(target, sc, 3))
	st = s.Stats(target)
	require.Zero(t, st.Objects)
	require.Zero(t, st.Usage)
}

func TestAtlasDefragmentsAfterCooldown(t *testing.T) {
	s := newTestAtlasFS(t, nil,
		WithDefragPolicy(DefragPolicy{UsageThreshold: 0.5, NoFailFrames: 10, Cooldown: 5}),
		WithRedrawIntervals(1000, 1000))
	target := uuid.New()
	var d drawCounter
	obj := surface(&d, mgl32.Vec3{}, 1, true)
	sc := scene.NewScene("defrag", scene.WithActors(obj))
	rec := gpu.NewRecorder()

	for frame := uint64(1); frame < 5; frame++ {
		step(s, rec, atlasParams(target, sc, frame))
		require.False(t, s.Stats(target).Defragmented)
	}
	drawn := d.n.Load()

	step(s, rec, atlasParams(target, sc, 5))
	st := s.Stats(target)
	require.True(t, st.Defragmented)
	require.Equal(t, uint64(1), st.Defragmentations)
	require.Equal(t, 1, st.Captured)
	require.Equal(t, 6, st.Tiles)
	require.Equal(t, drawn+6, d.n.Load())

	step(s, rec, atlasParams(target, sc, 6))
	require.False(t, s.Stats(target).Defragmented)
}

func TestAtlasResetRecapturesEverything(t *testing.T) {
	s := newTestAtlasFS(t, nil, WithRedrawIntervals(1000, 1000))
	target := uuid.New()
	var d drawCounter
	obj := surface(&d, mgl32.Vec3{}, 1, true)
	sc := scene.NewScene("reset", scene.WithActors(obj))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	p := atlasParams(target, sc, quietFrame(obj.ID(), 2, 1000))
	p.Reset = true
	step(s, rec, p)
	require.Equal(t, 1, s.Stats(target).Captured)
	require.Equal(t, int64(12), d.n.Load())
}

func TestAtlasIndirectSwitchesProgram(t *testing.T) {
	s := newTestAtlasFS(t, nil, WithRedrawIntervals(1000, 1000))
	target := uuid.New()
	var d drawCounter
	obj := surface(&d, mgl32.Vec3{}, 1, true)
	sc := scene.NewScene("indirect", scene.WithActors(obj))
	rec := gpu.NewRecorder()

	step(s, rec, atlasParams(target, sc, 1))
	irradiance, err := rec.CreateBuffer(gpu.BufferDesc{Label: "irradiance", Size: 64 * 64 * 16, Usage: gpu.BufferStorage})
	require.NoError(t, err)

	rec.Reset()
	p := atlasParams(target, sc, quietFrame(obj.ID(), 2, 1000))
	p.Indirect = &Indirect{Irradiance: irradiance, BounceIntensity: 1}
	step(s, rec, p)
	require.Zero(t, s.Stats(target).Captured)
	require.Equal(t, 1, s.Stats(target).Reshaded)
	require.Equal(t, 6, rec.CountProgram(ShaderLightingIndirect))
	require.Zero(t, rec.CountProgram(ShaderLighting))
}

func TestAtlasShrinksToDeviceLimit(t *testing.T) {
	s := newTestAtlasFS(t, nil, WithResolution(4096))
	target := uuid.New()
	var d drawCounter
	sc := scene.NewScene("small", scene.WithActors(surface(&d, mgl32.Vec3{}, 1, true)))
	rec := gpu.NewRecorder(gpu.WithLimits(gpu.Limits{
		MaxTextureDimension2D: 2048,
		MaxTextureDimension3D: 256,
		MaxBufferSize:         1 << 30,
	}))

	step(s, rec, atlasParams(target, sc, 1))
	step(s, rec, atlasParams(target, sc, 2))
	step(s, rec, atlasParams(target, sc, 3))
	data, ready := s.Get(target, 3)
	require.True(t, ready)
	require.Equal(t, uint32(2048), data.Constants.Resolution)
	require.Equal(t, uint32(2048), data.Albedo.Desc().Width)
}

func TestAtlasReleaseViewport(t *testing.T) {
	s := newTestAtlasFS(t, nil)
	target := uuid.New()
	var d drawCounter
	sc := scene.NewScene("release", scene.WithActors(surface(&d, mgl32.Vec3{}, 1, true)))
	rec := gpu.NewRecorder()
	for frame := uint64(1); frame <= 3; frame++ {
		step(s, rec, atlasParams(target, sc, frame))
	}
	_, ready := s.Get(target, 3)
	require.True(t, ready)

	s.ReleaseViewport(target)
	_, ready = s.Get(target, 3)
	require.False(t, ready)
	require.Zero(t, s.Stats(target).Objects)
}
