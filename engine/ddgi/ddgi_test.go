package ddgi

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/Carmen-Shannon/oxy-gi/engine/content"
	"github.com/Carmen-Shannon/oxy-gi/engine/global_sdf"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/shaders"
	"github.com/Carmen-Shannon/oxy-gi/engine/surface_atlas"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestDDGIFS builds a pass whose innermost cascade has a 32 unit half size
// holding 4x2x4 probes 16 units apart. A nil fsys loads the real shaders.
func newTestDDGIFS(t *testing.T, fsys fstest.MapFS, opts ...DDGIBuilderOption) DDGI {
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
	opts = append([]DDGIBuilderOption{
		WithCascadeOptions(cascade.WithIdealExtent(32), cascade.WithViewShift(0)),
		WithProbeCounts(common.Int3{X: 4, Y: 2, Z: 4}),
		WithRaysPerProbe(32),
	}, opts...)
	d := NewDDGI(m, opts...)
	m.Wait()
	t.Cleanup(func() {
		d.Release()
		m.Close()
	})
	return d
}

type inputs struct {
	sdf   global_sdf.BindingData
	atlas surface_atlas.BindingData
}

// fakeInputs allocates stand-ins for the published distance field and atlas.
func fakeInputs(t *testing.T, rec *gpu.Recorder) inputs {
	t.Helper()
	tex := func(label string, dim gpu.TextureDimension) gpu.Texture {
		tx, err := rec.CreateTexture(gpu.TextureDesc{
			Label: label, Width: 8, Height: 8, Depth: 1, Dimension: dim,
			Format: gpu.FormatR32Float, MipLevels: 1, Usage: gpu.UsageSampled,
		})
		require.NoError(t, err)
		return tx
	}
	buf := func(label string) gpu.Buffer {
		b, err := rec.CreateBuffer(gpu.BufferDesc{Label: label, Size: 256, Usage: gpu.BufferStorage})
		require.NoError(t, err)
		return b
	}
	return inputs{
		sdf: global_sdf.BindingData{
			Volume:          tex("sdf", gpu.Texture3D),
			ConstantsBuffer: buf("sdf constants"),
		},
		atlas: surface_atlas.BindingData{
			Lighting:        tex("lighting", gpu.Texture2D),
			Depth:           tex("depth", gpu.Texture2D),
			Objects:         buf("objects"),
			Tiles:           buf("tiles"),
			CullGrid:        buf("cull grid"),
			CulledObjects:   buf("culled"),
			ConstantsBuffer: buf("atlas constants"),
		},
	}
}

func probeParams(target uuid.UUID, frame uint64, in inputs) Params {
	return Params{
		Target:    target,
		Frame:     frame,
		Spreading: true,
		View: cascade.View{
			Direction: mgl32.Vec3{0, 0, 1},
			Distance:  32,
			Quality:   cascade.QualityLow,
		},
		SDF:   in.sdf,
		Atlas: in.atlas,
	}
}

func dispatches(rec *gpu.Recorder) []gpu.Call {
	var out []gpu.Call
	for _, c := range rec.Calls() {
		if c.Kind == gpu.CallDispatch || c.Kind == gpu.CallDispatchIndirect {
			out = append(out, c)
		}
	}
	return out
}

func TestDDGINotReadyWhileShadersLoad(t *testing.T) {
	d := newTestDDGIFS(t, fstest.MapFS{})
	rec := gpu.NewRecorder()
	require.True(t, d.Render(rec, probeParams(uuid.New(), 1, fakeInputs(t, rec))))
	require.Zero(t, rec.GPUWork())
}

func TestDDGINotReadyWithoutDistanceFieldOrAtlas(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	target := uuid.New()
	in := fakeInputs(t, rec)

	p := probeParams(target, 1, in)
	p.SDF = global_sdf.BindingData{}
	require.True(t, d.Render(rec, p))

	p = probeParams(target, 2, in)
	p.Atlas.Lighting = nil
	require.True(t, d.Render(rec, p))

	require.Zero(t, rec.GPUWork())
	_, ready := d.Get(target, 2)
	require.False(t, ready)
}

func TestDDGIUpdateOrder(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	target := uuid.New()
	p := probeParams(target, 1, fakeInputs(t, rec))
	p.View.Quality = cascade.QualityMedium
	p.View.Distance = 100

	require.False(t, d.Render(rec, p))
	stats := d.Stats(target)
	require.Equal(t, 3, stats.Cascades)
	require.Equal(t, 3, stats.UpdatedCascades)
	require.True(t, stats.Cleared)
	require.Equal(t, 3*32, stats.Probes)

	calls := dispatches(rec)
	require.Len(t, calls, 9)
	for i := range 3 {
		classify, trace, blend := calls[3*i], calls[3*i+1], calls[3*i+2]
		require.Equal(t, ShaderClassify, classify.Program)
		require.Equal(t, gpu.CallDispatch, classify.Kind)
		require.Equal(t, [3]uint32{1, 1, 1}, classify.Groups)

		require.Equal(t, ShaderTrace, trace.Program)
		require.Equal(t, gpu.CallDispatchIndirect, trace.Kind)
		require.Equal(t, "DDGI Args", trace.Resource)
		require.Equal(t, uint32(i*argsStride), trace.Count)

		require.Equal(t, ShaderBlend, blend.Program)
		require.Equal(t, gpu.CallDispatchIndirect, blend.Kind)
		require.Equal(t, trace.Count, blend.Count)
	}
	require.Equal(t, 3, rec.Count(gpu.CallClearBuffer))
	require.Equal(t, 1, rec.Count(gpu.CallReadback))
}

func TestDDGIFollowsCascadeCadence(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	target := uuid.New()
	in := fakeInputs(t, rec)
	render := func(frame uint64) Stats {
		p := probeParams(target, frame, in)
		p.View.Quality = cascade.QualityMedium
		p.View.Distance = 100
		require.False(t, d.Render(rec, p))
		rec.Flush()
		return d.Stats(target)
	}

	require.Equal(t, 3, render(1).UpdatedCascades)
	require.Equal(t, 1, render(2).UpdatedCascades)
	require.Equal(t, 1, render(3).UpdatedCascades)
	require.Equal(t, 1, render(4).UpdatedCascades)
	require.Equal(t, 1, render(5).UpdatedCascades)
	s := render(6)
	require.Equal(t, 2, s.UpdatedCascades)
	require.False(t, s.Cleared)
	for i := range 3 {
		require.Equal(t, StateSteadyState, s.States[i])
	}
}

func TestDDGIRenderTwicePerFrameReuses(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	p := probeParams(uuid.New(), 1, fakeInputs(t, rec))
	require.False(t, d.Render(rec, p))
	work := rec.GPUWork()
	require.False(t, d.Render(rec, p))
	require.Equal(t, work, rec.GPUWork())
}

func TestDDGIResetClearsProbes(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	target := uuid.New()
	in := fakeInputs(t, rec)

	require.False(t, d.Render(rec, probeParams(target, 1, in)))
	rec.Reset()
	require.False(t, d.Render(rec, probeParams(target, 2, in)))
	require.Zero(t, rec.Count(gpu.CallClearBuffer))

	p := probeParams(target, 3, in)
	p.Reset = true
	require.False(t, d.Render(rec, p))
	require.Equal(t, 3, rec.Count(gpu.CallClearBuffer))
	require.True(t, d.Stats(target).Cleared)
}

func TestDDGIScrollPublishesConstants(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	target := uuid.New()
	in := fakeInputs(t, rec)

	p := probeParams(target, 1, in)
	p.Spreading = false
	require.False(t, d.Render(rec, p))
	data, ready := d.Get(target, 1)
	require.True(t, ready)
	c := data.Constants.Cascades[0]
	require.Equal(t, mgl32.Vec3{-32, -16, -32}, c.Origin)
	require.Equal(t, float32(16), c.Spacing)
	require.Equal(t, [3]uint32{4, 2, 4}, c.Counts)
	require.Equal(t, [3]int32{2, 1, 2}, c.ScrollOffset)

	p = probeParams(target, 2, in)
	p.Spreading = false
	p.View.Position = mgl32.Vec3{16, 0, 0}
	require.False(t, d.Render(rec, p))
	data, _ = d.Get(target, 2)
	c = data.Constants.Cascades[0]
	require.Equal(t, float32(-16), c.Origin[0])
	require.Equal(t, [3]int32{3, 1, 2}, c.ScrollOffset)

	ind := data.Indirect(0.5)
	require.NotNil(t, ind)
	require.Equal(t, data.Irradiance, ind.Irradiance)
	require.Equal(t, c.ScrollOffset, ind.Constants.ScrollOffset)
	require.Equal(t, uint32(IrradianceBlock), ind.Constants.Texels)
	require.Equal(t, uint32(4*2*IrradianceBlock), ind.Constants.Width)
	require.Equal(t, float32(0.5), ind.BounceIntensity)
	require.Nil(t, BindingData{}.Indirect(1))
}

func TestDDGIShrinksProbeCountsToDeviceLimit(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder(gpu.WithLimits(gpu.Limits{
		MaxTextureDimension2D: 64,
		MaxTextureDimension3D: 64,
		MaxBufferSize:         1 << 30,
	}))
	target := uuid.New()
	require.False(t, d.Render(rec, probeParams(target, 1, fakeInputs(t, rec))))
	require.Equal(t, common.Int3{X: 2, Y: 2, Z: 4}, d.Stats(target).Counts)

	tiny := gpu.NewRecorder(gpu.WithLimits(gpu.Limits{
		MaxTextureDimension2D: 8,
		MaxTextureDimension3D: 8,
		MaxBufferSize:         1 << 30,
	}))
	other := uuid.New()
	require.True(t, d.Render(tiny, probeParams(other, 1, fakeInputs(t, tiny))))
	_, ready := d.Get(other, 1)
	require.False(t, ready)
}

func TestDDGIActiveProbeReadback(t *testing.T) {
	rec := gpu.NewRecorder(gpu.WithReadbackLatency(1))
	args, err := rec.CreateBuffer(gpu.BufferDesc{Label: "args", Size: 32, Usage: gpu.BufferCopySrc})
	require.NoError(t, err)
	data := make([]byte, 32)
	binary.LittleEndian.PutUint32(data[0:], 5)
	binary.LittleEndian.PutUint32(data[16:], 7)
	rec.WriteBuffer(args, 0, data)

	b := &viewportBuffer{tickets: []gpu.ReadbackTicket{rec.ReadbackBuffer(args, 32)}}
	b.pollReadbacks(rec)
	require.Zero(t, b.activeProbes)
	rec.Flush()
	b.pollReadbacks(rec)
	require.Equal(t, 12, b.activeProbes)
	require.Empty(t, b.tickets)
}

func TestHistoryWeight(t *testing.T) {
	require.Zero(t, HistoryWeight(StateUninitialized, 0.97))
	require.Zero(t, HistoryWeight(StateCleared, 0.97))
	require.Equal(t, float32(0.97), HistoryWeight(StateSteadyState, 0.97))
	require.Equal(t, float32(MaxHistoryWeight), HistoryWeight(StateSteadyState, 1))
}

func TestQualityTables(t *testing.T) {
	require.Equal(t, common.Int3{X: 12, Y: 6, Z: 12}, ProbeCounts(cascade.QualityLow))
	require.Equal(t, common.Int3{X: 24, Y: 12, Z: 24}, ProbeCounts(cascade.QualityUltra))
	require.Equal(t, 96, RaysPerProbe(cascade.QualityLow))
	require.Equal(t, 384, RaysPerProbe(cascade.Quality(9)))
}

func TestDDGIReleaseViewport(t *testing.T) {
	d := newTestDDGIFS(t, nil)
	rec := gpu.NewRecorder()
	target := uuid.New()
	require.False(t, d.Render(rec, probeParams(target, 1, fakeInputs(t, rec))))
	d.ReleaseViewport(target)
	_, ready := d.Get(target, 1)
	require.False(t, ready)
	require.Equal(t, Stats{}, d.Stats(target))
}
