package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-gi/engine/gi"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/viewport"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for game logic updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Second / time.Duration(fps)
	}
}

// WithGPUContext sets the GPU context the GI passes record into.
//
// Parameters:
//   - ctx: the GPU context
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithGPUContext(ctx gpu.Context) EngineBuilderOption {
	return func(e *engine) {
		e.ctx = ctx
	}
}

// WithRenderer sets the GI renderer.
//
// Parameters:
//   - r: the GI renderer
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r gi.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithViewport registers a viewport rendering the scene at a z-index key.
// The first viewport registered is the primary one.
//
// Parameters:
//   - v: the viewport
//   - sceneKey: the z-index of the scene it renders
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithViewport(v viewport.Viewport, sceneKey int) EngineBuilderOption {
	return func(e *engine) {
		e.viewports = append(e.viewports, binding{viewport: v, sceneKey: sceneKey})
		if e.primary == nil {
			e.primary = v
		}
	}
}

// WithScene registers a scene at the given z-index key during engine construction.
//
// Parameters:
//   - key: the z-index of the scene
//   - s: the Scene to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Second / time.Duration(fps)
	}
}
