package engine

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/gi"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
	"github.com/Carmen-Shannon/oxy-gi/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/Carmen-Shannon/oxy-gi/engine/viewport"
	"github.com/google/uuid"
)

// binding ties a viewport to the scene it renders.
type binding struct {
	viewport viewport.Viewport
	sceneKey int
}

// engine implements the Engine interface.
// Coordinates the tick loop, the GI render loop and the primary viewport's message loop.
type engine struct {
	mu sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	ctx      gpu.Context
	renderer gi.Renderer

	viewports []binding
	primary   viewport.Viewport

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenes map[int]scene.Scene
	frame  uint64

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It orchestrates the tick loop, the GI render loop and viewport management.
type Engine interface {
	// Viewport returns the primary viewport, whose message loop Run drives.
	//
	// Returns:
	//   - viewport.Viewport: the primary viewport, or nil
	Viewport() viewport.Viewport

	// AddViewport registers a render target set that renders the scene at a
	// z-index key. The first viewport added becomes the primary one.
	//
	// Parameters:
	//   - v: the viewport
	//   - sceneKey: the z-index of the scene it renders
	AddViewport(v viewport.Viewport, sceneKey int)

	// RemoveViewport unregisters a viewport and frees its GI resources.
	//
	// Parameters:
	//   - id: the viewport identity
	RemoveViewport(id uuid.UUID)

	// Renderer returns the GI renderer whose binding data other passes sample.
	//
	// Returns:
	//   - gi.Renderer: the GI renderer
	Renderer() gi.Renderer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after the GI update of each render frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key.
	//
	// Parameters:
	//   - key: the z-index of the scene
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key.
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key, or nil.
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	Scenes() map[int]scene.Scene

	// RenderFrame runs one GI frame for every viewport and submits it.
	//
	// Returns:
	//   - map[uuid.UUID]bool: the not-ready flag of every viewport
	RenderFrame() map[uuid.UUID]bool

	// Run starts the engine loops and blocks until the primary viewport closes
	// or Quit is called.
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// A GPU context and a GI renderer are required.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.ctx == nil {
		panic("engine: NewEngine requires a GPU context")
	}
	if e.renderer == nil {
		panic("engine: NewEngine requires a GI renderer")
	}
	return e
}

func (e *engine) Viewport() viewport.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.primary
}

func (e *engine) AddViewport(v viewport.Viewport, sceneKey int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, b := range e.viewports {
		if b.viewport.ID() == v.ID() {
			e.viewports[i].sceneKey = sceneKey
			return
		}
	}
	e.viewports = append(e.viewports, binding{viewport: v, sceneKey: sceneKey})
	if e.primary == nil {
		e.primary = v
	}
}

func (e *engine) RemoveViewport(id uuid.UUID) {
	e.mu.Lock()
	for i, b := range e.viewports {
		if b.viewport.ID() == id {
			e.viewports = append(e.viewports[:i], e.viewports[i+1:]...)
			break
		}
	}
	if e.primary != nil && e.primary.ID() == id {
		e.primary = nil
		if len(e.viewports) > 0 {
			e.primary = e.viewports[0].viewport
		}
	}
	e.mu.Unlock()
	e.renderer.ReleaseViewport(id)
	e.profiler.Forget(id)
}

func (e *engine) Renderer() gi.Renderer {
	return e.renderer
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	primary := e.primary
	e.mu.Unlock()

	e.handle()
	if primary != nil {
		primary.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	e.renderer.Release()
	if primary != nil {
		if err := primary.Close(); err != nil {
			logger.Component("engine").Warn("closing viewport", "err", err)
		}
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel and stops the primary viewport so every loop exits.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		primary := e.primary
		e.mu.Unlock()
		close(e.quitChannel)
		if primary != nil {
			primary.RequestClose()
		}
	})
}

// handle launches the engine and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Component("engine").Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			e.RenderFrame()

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled {
				e.profiler.Tick()
			}

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// sceneBounds returns the box around every actor of a scene.
func sceneBounds(s scene.Scene) common.BoundingBox {
	var out common.BoundingBox
	first := true
	for cat := scene.Category(0); cat < scene.CategoryCount; cat++ {
		for _, a := range s.Actors(cat) {
			if first {
				out = a.Box()
				first = false
				continue
			}
			out = out.Merge(a.Box())
		}
	}
	return out
}

func (e *engine) RenderFrame() map[uuid.UUID]bool {
	e.mu.Lock()
	e.frame++
	frame := e.frame
	bindings := make([]binding, len(e.viewports))
	copy(bindings, e.viewports)
	// Viewports render in ascending z-index order of their scenes.
	sort.SliceStable(bindings, func(i, j int) bool { return bindings[i].sceneKey < bindings[j].sceneKey })
	scenes := maps.Clone(e.scenes)
	e.mu.Unlock()

	bounds := make(map[int]common.BoundingBox)
	contexts := make([]gi.RenderContext, 0, len(bindings))
	for _, b := range bindings {
		s := scenes[b.sceneKey]
		if s == nil {
			continue
		}
		if _, ok := bounds[b.sceneKey]; !ok {
			bounds[b.sceneKey] = sceneBounds(s)
		}
		cam := b.viewport.Camera()
		cam.Update()
		contexts = append(contexts, gi.RenderContext{
			Target:      b.viewport.ID(),
			Scene:       s,
			Frame:       frame,
			Camera:      cam,
			Settings:    b.viewport.Settings(),
			SceneBounds: bounds[b.sceneKey],
			Reset:       b.viewport.TakeReset(),
		})
	}

	// Start every walk before the first Render joins one.
	for _, rc := range contexts {
		e.renderer.StartDrawing(rc)
	}
	out := make(map[uuid.UUID]bool, len(contexts))
	for _, rc := range contexts {
		out[rc.Target] = e.renderer.Render(e.ctx, rc)
		if e.profilingEnabled {
			e.profiler.Record(rc.Target, e.renderer.Stats(rc.Target))
		}
	}
	e.ctx.Flush()
	return out
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.scenes)
}
