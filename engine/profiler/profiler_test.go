package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-gi/engine/ddgi"
	"github.com/Carmen-Shannon/oxy-gi/engine/gi"
	"github.com/Carmen-Shannon/oxy-gi/engine/global_sdf"
	"github.com/Carmen-Shannon/oxy-gi/engine/surface_atlas"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestTickLogsOncePerInterval(t *testing.T) {
	c := &fakeClock{t: time.Unix(100, 0)}
	p := NewProfiler(WithUpdateInterval(time.Second), WithClock(c.now))

	c.t = c.t.Add(500 * time.Millisecond)
	require.False(t, p.Tick())
	c.t = c.t.Add(500 * time.Millisecond)
	require.True(t, p.Tick())
	require.InDelta(t, 2, testutil.ToFloat64(frameRate), 1e-9)
	require.False(t, p.Tick())
}

func TestRecordPublishesMetrics(t *testing.T) {
	p := NewProfiler()
	target := uuid.New()
	id := target.String()
	labels := prometheus.Labels{viewportLabel: id}

	st := gi.Stats{
		Frame: 1,
		SDF:   global_sdf.Stats{DirtyCascades: 2, ChunksRasterized: 8, ChunksSkipped: 3},
		Atlas: surface_atlas.Stats{Usage: 0.25, InsertFailures: 1, Defragmented: true},
		DDGI:  ddgi.Stats{ActiveProbes: 12},
	}
	p.Record(target, st)
	// A second record of one frame is ignored.
	p.Record(target, st)

	require.InDelta(t, 2, testutil.ToFloat64(dirtyCascades.With(labels)), 1e-9)
	require.InDelta(t, 8, testutil.ToFloat64(chunksRasterized.With(labels)), 1e-9)
	require.InDelta(t, 3, testutil.ToFloat64(chunksSkipped.With(labels)), 1e-9)
	require.InDelta(t, 0.25, testutil.ToFloat64(atlasUsage.With(labels)), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(atlasInsertFailures.With(labels)), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(atlasDefragmentations.With(labels)), 1e-9)
	require.InDelta(t, 12, testutil.ToFloat64(activeProbes.With(labels)), 1e-9)

	st.Frame = 2
	st.SDF.ChunksRasterized = 4
	st.Atlas.Defragmented = false
	p.Record(target, st)
	require.InDelta(t, 12, testutil.ToFloat64(chunksRasterized.With(labels)), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(atlasDefragmentations.With(labels)), 1e-9)

	p.Forget(target)
	// Forgotten series restart from zero.
	require.Zero(t, testutil.ToFloat64(chunksRasterized.With(labels)))
}

func TestRecordCountsNotReadyPasses(t *testing.T) {
	c := &fakeClock{t: time.Unix(100, 0)}
	p := NewProfiler(WithClock(c.now))
	target := uuid.New()
	id := target.String()

	p.Record(target, gi.Stats{Frame: 1, AtlasNotReady: true, DDGINotReady: true})
	p.Record(target, gi.Stats{Frame: 2, DDGINotReady: true})

	ddgiLabels := prometheus.Labels{viewportLabel: id, passLabel: passDDGI}
	atlasLabels := prometheus.Labels{viewportLabel: id, passLabel: passAtlas}
	require.InDelta(t, 2, testutil.ToFloat64(notReadyFrames.With(ddgiLabels)), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(notReadyFrames.With(atlasLabels)), 1e-9)
	require.Equal(t, 2, p.notReady[passDDGI])
	require.Zero(t, p.notReady[passSDF])

	c.t = c.t.Add(time.Second)
	require.True(t, p.Tick())
	require.Empty(t, p.notReady)
}
