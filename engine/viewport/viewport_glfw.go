package viewport

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	window   *glfw.Window
	running  bool
	dragging bool
	lastX    float64
	lastY    float64
}

// newPlatformWindow creates the GLFW window with input callbacks and stores it as the internal window.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func newPlatformWindow(v *viewport) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	// WebGPU provides its own graphics API, so disable OpenGL context creation.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(v.width, v.height, v.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %w", err)
	}

	gw := &glfwWindow{window: win, running: true}
	v.internalWindow = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			win.SetShouldClose(true)
			return
		}
		if (action == glfw.Press || action == glfw.Repeat) && v.onKeyDown != nil {
			v.onKeyDown(uint32(key))
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, xoff, yoff float64) {
		if v.onScroll != nil {
			v.onScroll(float32(yoff))
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonMiddle {
			return
		}
		gw.dragging = action == glfw.Press
		gw.lastX, gw.lastY = win.GetCursorPos()
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		if gw.dragging && v.onMouseDrag != nil {
			v.onMouseDrag(float32(xpos-gw.lastX), float32(ypos-gw.lastY))
		}
		gw.lastX, gw.lastY = xpos, ypos
	})

	// Framebuffer size is in pixels; on high-DPI displays it differs from the window size.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		v.Resize(width, height)
	})

	v.width, v.height = win.GetFramebufferSize()
	return nil
}

// platformGetSurfaceDescriptor creates a platform-appropriate wgpu.SurfaceDescriptor from the GLFW window.
//
// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func platformGetSurfaceDescriptor(v *viewport) *wgpu.SurfaceDescriptor {
	if v.internalWindow == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(v.internalWindow.(*glfwWindow).window)
}

func platformIsRunningCheck(v *viewport) bool {
	if v.internalWindow == nil {
		return false
	}
	gw := v.internalWindow.(*glfwWindow)
	return gw.running && !gw.window.ShouldClose()
}

// platformCloseWindow destroys the GLFW window and terminates the GLFW library.
func platformCloseWindow(v *viewport) error {
	if v.internalWindow == nil {
		return errors.New("window is not initialized")
	}
	gw := v.internalWindow.(*glfwWindow)
	gw.running = false
	gw.window.SetShouldClose(true)
	gw.window.Destroy()
	glfw.Terminate()
	return nil
}

// platformProcessMessages polls GLFW for pending events without blocking.
func platformProcessMessages(v *viewport) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(v)
}
