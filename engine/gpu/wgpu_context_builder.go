package gpu

import "github.com/cogentcore/webgpu/wgpu"

// WGPUContextBuilderOption is a function that configures the WebGPU context during construction.
type WGPUContextBuilderOption func(*wgpuContext)

// WithSurface requests an adapter compatible with the given window surface.
//
// Parameters:
//   - desc: the surface descriptor, typically from wgpuglfw.GetSurfaceDescriptor
//
// Returns:
//   - WGPUContextBuilderOption: a function that applies the surface to the context
func WithSurface(desc *wgpu.SurfaceDescriptor) WGPUContextBuilderOption {
	return func(c *wgpuContext) {
		c.surfaceDescriptor = desc
	}
}

// WithForceFallbackAdapter forces the software adapter.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - WGPUContextBuilderOption: a function that applies the flag to the context
func WithForceFallbackAdapter(force bool) WGPUContextBuilderOption {
	return func(c *wgpuContext) {
		c.forceFallbackAdapter = force
	}
}

// WithDeviceLabel sets the device debug label.
func WithDeviceLabel(label string) WGPUContextBuilderOption {
	return func(c *wgpuContext) {
		c.label = label
	}
}
