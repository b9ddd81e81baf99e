// Package viewport provides the render target sets the GI passes keep their
// per-view resources for: a camera, live GI settings and an optional GLFW
// window whose surface the GPU context presents to.
package viewport

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/engine/camera"
	"github.com/Carmen-Shannon/oxy-gi/engine/gi"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// Viewport is one render target set.
type Viewport interface {
	// ID returns the identity the GI passes key this viewport's resources by.
	//
	// Returns:
	//   - uuid.UUID: the render target set identity
	ID() uuid.UUID

	// Camera returns the view rendered into this viewport.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// Settings returns the current GI settings.
	//
	// Returns:
	//   - gi.Settings: the settings
	Settings() gi.Settings

	// SetSettings replaces the GI settings; they apply from the next frame.
	//
	// Parameters:
	//   - s: the new settings
	SetSettings(s gi.Settings)

	// RequestReset asks for every GI pass to rebuild from scratch next frame.
	RequestReset()

	// TakeReset returns and clears a pending reset request.
	//
	// Returns:
	//   - bool: true if a reset was requested since the last call
	TakeReset() bool

	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the viewport is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up/zoom in, negative = down/zoom out)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press events.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetMouseDragCallback sets the callback for mouse movement while the
	// middle button is held.
	//
	// Parameters:
	//   - callback: function receiving the cursor delta in pixels
	SetMouseDragCallback(callback func(dx, dy float32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor for the window, or nil
	// for a headless viewport.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Resize changes the viewport size and the camera aspect ratio.
	//
	// Parameters:
	//   - width: width in pixels
	//   - height: height in pixels
	Resize(width, height int)

	// IsRunning returns true until the viewport is closed.
	//
	// Returns:
	//   - bool: true if the viewport is open
	IsRunning() bool

	// RequestClose stops the message loop. Safe from any goroutine; the
	// window itself is destroyed by Close.
	RequestClose()

	// Close closes the viewport and destroys its window. Must run on the
	// goroutine that created the window.
	//
	// Returns:
	//   - error: error if the window was never created
	Close() error

	// ProcessMessages runs the window message loop until the viewport closes,
	// calling the update callback each iteration. A headless viewport blocks
	// until RequestClose or Close.
	ProcessMessages()

	// Width returns the current width in pixels.
	Width() int

	// Height returns the current height in pixels.
	Height() int
}

type viewport struct {
	mu sync.Mutex

	id     uuid.UUID
	title  string
	camera camera.Camera

	settings gi.Settings
	reset    bool

	headless bool
	width    int
	height   int
	closed   chan struct{}
	stop     sync.Once
	destroy  sync.Once

	// internalWindow holds the platform window (glfwWindow), nil when headless.
	internalWindow any

	onUpdate    func()
	onResize    func(width, height int)
	onScroll    func(delta float32)
	onKeyDown   func(keyCode uint32)
	onMouseDrag func(dx, dy float32)
}

var _ Viewport = &viewport{}

// NewViewport creates a viewport. Unless WithHeadless is set a GLFW window is
// created on the calling goroutine.
//
// Parameters:
//   - options: functional options to configure the viewport
//
// Returns:
//   - Viewport: the configured viewport
//   - error: error if the window could not be created
func NewViewport(options ...ViewportBuilderOption) (Viewport, error) {
	v := &viewport{
		id:       uuid.New(),
		title:    "oxy-gi",
		settings: gi.DefaultSettings(),
		width:    1280,
		height:   720,
		closed:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(v)
	}
	if v.camera == nil {
		v.camera = camera.NewCamera()
	}
	if !v.headless {
		if err := newPlatformWindow(v); err != nil {
			return nil, fmt.Errorf("failed to create platform window: %w", err)
		}
	}
	v.camera.SetAspect(v.aspect())
	return v, nil
}

func (v *viewport) aspect() float32 {
	if v.height <= 0 {
		return 1
	}
	return float32(v.width) / float32(v.height)
}

func (v *viewport) ID() uuid.UUID {
	return v.id
}

func (v *viewport) Camera() camera.Camera {
	return v.camera
}

func (v *viewport) Settings() gi.Settings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settings
}

func (v *viewport) SetSettings(s gi.Settings) {
	v.mu.Lock()
	v.settings = s
	v.mu.Unlock()
}

func (v *viewport) RequestReset() {
	v.mu.Lock()
	v.reset = true
	v.mu.Unlock()
}

func (v *viewport) TakeReset() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := v.reset
	v.reset = false
	return r
}

func (v *viewport) SetUpdateCallback(callback func()) {
	v.onUpdate = callback
}

func (v *viewport) SetResizeCallback(callback func(width, height int)) {
	v.onResize = callback
}

func (v *viewport) SetScrollCallback(callback func(delta float32)) {
	v.onScroll = callback
}

func (v *viewport) SetKeyDownCallback(callback func(keyCode uint32)) {
	v.onKeyDown = callback
}

func (v *viewport) SetMouseDragCallback(callback func(dx, dy float32)) {
	v.onMouseDrag = callback
}

func (v *viewport) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if v.headless {
		return nil
	}
	return platformGetSurfaceDescriptor(v)
}

func (v *viewport) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.mu.Lock()
	v.width = width
	v.height = height
	aspect := v.aspect()
	v.mu.Unlock()
	v.camera.SetAspect(aspect)
	if v.onResize != nil {
		v.onResize(width, height)
	}
}

func (v *viewport) IsRunning() bool {
	select {
	case <-v.closed:
		return false
	default:
	}
	if v.headless {
		return true
	}
	return platformIsRunningCheck(v)
}

func (v *viewport) RequestClose() {
	v.stop.Do(func() { close(v.closed) })
}

func (v *viewport) Close() error {
	v.RequestClose()
	var err error
	v.destroy.Do(func() {
		if !v.headless {
			err = platformCloseWindow(v)
		}
	})
	return err
}

func (v *viewport) ProcessMessages() {
	if v.headless {
		<-v.closed
		return
	}
	for v.IsRunning() {
		if succ := platformProcessMessages(v); !succ {
			break
		}
		if v.onUpdate != nil {
			v.onUpdate()
		}
		runtime.Gosched()
	}
}

func (v *viewport) Width() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width
}

func (v *viewport) Height() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height
}
