package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-gi/engine/gi"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/google/uuid"
)

// Profiler tracks frame rate, memory and GI statistics. Frame statistics are
// logged at a configurable interval; GI statistics are published as Prometheus
// metrics every frame.
type Profiler struct {
	mu             sync.Mutex
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	now            func() time.Time

	// notReady counts the not-ready frames per pass since the last log.
	notReady map[string]int
	last     map[uuid.UUID]gi.Stats
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - opts: variadic ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(opts ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		now:            time.Now,
		notReady:       make(map[string]int),
		last:           make(map[uuid.UUID]gi.Stats),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times,
// total memory and the GI passes that were not ready.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}
	instrumentFrame(fps, p.memStats.Alloc)

	logger.Component("profiler").Info("frame stats",
		"fps", fps,
		"heap_mb", allocMB,
		"alloc_rate_mb", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
		"sdf_not_ready", p.notReady[passSDF],
		"atlas_not_ready", p.notReady[passAtlas],
		"ddgi_not_ready", p.notReady[passDDGI],
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	clear(p.notReady)
	return true
}

// Record publishes the GI statistics of one render target set. Calling it
// again for a frame already recorded does nothing.
//
// Parameters:
//   - target: the render target set
//   - st: the statistics of its last GI render
func (p *Profiler) Record(target uuid.UUID, st gi.Stats) {
	p.mu.Lock()
	if prev, ok := p.last[target]; ok && prev.Frame == st.Frame {
		p.mu.Unlock()
		return
	}
	p.last[target] = st
	for pass, notReady := range map[string]bool{
		passSDF:   st.SDFNotReady,
		passAtlas: st.AtlasNotReady,
		passDDGI:  st.DDGINotReady,
	} {
		if notReady {
			p.notReady[pass]++
		}
	}
	p.mu.Unlock()

	id := target.String()
	if st.SDFNotReady {
		instrumentNotReady(id, passSDF)
	} else {
		instrumentSDF(id, st.SDF.DirtyCascades, st.SDF.ChunksRasterized, st.SDF.ChunksSkipped)
	}
	if st.AtlasNotReady {
		instrumentNotReady(id, passAtlas)
	} else {
		instrumentAtlas(id, st.Atlas.Usage, st.Atlas.InsertFailures, st.Atlas.Defragmented)
	}
	if st.DDGINotReady {
		instrumentNotReady(id, passDDGI)
	} else {
		instrumentProbes(id, st.DDGI.ActiveProbes)
	}
	logger.Component("profiler").Debug("gi frame",
		"target", id,
		"frame", st.Frame,
		"dirty_cascades", st.SDF.DirtyCascades,
		"chunks_rasterized", st.SDF.ChunksRasterized,
		"chunks_skipped", st.SDF.ChunksSkipped,
		"atlas_usage", st.Atlas.Usage,
		"active_probes", st.DDGI.ActiveProbes,
	)
}

// Forget drops the metrics of a released render target set.
//
// Parameters:
//   - target: the render target set
func (p *Profiler) Forget(target uuid.UUID) {
	p.mu.Lock()
	delete(p.last, target)
	p.mu.Unlock()
	forgetViewport(target.String())
}
