package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	viewportLabel = "viewport"
	passLabel     = "pass"
)

const (
	passSDF   = "global_sdf"
	passAtlas = "surface_atlas"
	passDDGI  = "ddgi"
)

var (
	frameRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oxy_frame_rate",
		Help: "The frames rendered per second over the last profiler interval.",
	})

	heapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oxy_heap_bytes",
		Help: "The bytes of allocated heap objects.",
	})

	dirtyCascades = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oxy_gi_sdf_dirty_cascades",
		Help: "The distance field cascades updated on the last frame.",
	}, []string{
		viewportLabel,
	})

	chunksRasterized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_gi_sdf_chunks_rasterized_total",
		Help: "The distance field chunks rasterized.",
	}, []string{
		viewportLabel,
	})

	chunksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_gi_sdf_chunks_skipped_total",
		Help: "The static distance field chunks reused from the cache.",
	}, []string{
		viewportLabel,
	})

	atlasUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oxy_gi_atlas_usage_ratio",
		Help: "The fraction of the surface atlas covered by tiles.",
	}, []string{
		viewportLabel,
	})

	atlasInsertFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_gi_atlas_insert_failures_total",
		Help: "The objects that did not fit in the surface atlas.",
	}, []string{
		viewportLabel,
	})

	atlasDefragmentations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_gi_atlas_defragmentations_total",
		Help: "The full surface atlas repacks.",
	}, []string{
		viewportLabel,
	})

	activeProbes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oxy_gi_ddgi_active_probes",
		Help: "The probes near a surface on the last read back update.",
	}, []string{
		viewportLabel,
	})

	notReadyFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oxy_gi_not_ready_frames_total",
		Help: "The frames a GI pass could not be used on.",
	}, []string{
		viewportLabel,
		passLabel,
	})
)

func instrumentFrame(fps float64, heap uint64) {
	frameRate.Set(fps)
	heapBytes.Set(float64(heap))
}

func instrumentSDF(viewport string, dirty, rasterized, skipped int) {
	labels := prometheus.Labels{viewportLabel: viewport}
	dirtyCascades.With(labels).Set(float64(dirty))
	chunksRasterized.With(labels).Add(float64(rasterized))
	chunksSkipped.With(labels).Add(float64(skipped))
}

func instrumentAtlas(viewport string, usage float64, failures int, defragmented bool) {
	labels := prometheus.Labels{viewportLabel: viewport}
	atlasUsage.With(labels).Set(usage)
	atlasInsertFailures.With(labels).Add(float64(failures))
	if defragmented {
		atlasDefragmentations.With(labels).Inc()
	}
}

func instrumentProbes(viewport string, active int) {
	activeProbes.With(prometheus.Labels{
		viewportLabel: viewport,
	}).Set(float64(active))
}

func instrumentNotReady(viewport, pass string) {
	notReadyFrames.
		With(prometheus.Labels{
			viewportLabel: viewport,
			passLabel:     pass,
		}).
		Inc()
}

func forgetViewport(viewport string) {
	labels := prometheus.Labels{viewportLabel: viewport}
	dirtyCascades.DeletePartialMatch(labels)
	chunksRasterized.DeletePartialMatch(labels)
	chunksSkipped.DeletePartialMatch(labels)
	atlasUsage.DeletePartialMatch(labels)
	atlasInsertFailures.DeletePartialMatch(labels)
	atlasDefragmentations.DeletePartialMatch(labels)
	activeProbes.DeletePartialMatch(labels)
	notReadyFrames.DeletePartialMatch(labels)
}
