package camera

import "github.com/go-gl/mathgl/mgl32"

type CameraBuilderOption func(*cameraImpl)

// WithPosition sets the camera's eye position.
//
// Parameters:
//   - p: the eye position
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's position
func WithPosition(p mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = p
	}
}

// WithTarget sets the camera's look-at point.
//
// Parameters:
//   - t: the target position
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's target
func WithTarget(t mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.target = t
	}
}

// WithUp sets the camera's up vector.
//
// Parameters:
//   - up: the up vector
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(up mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = up
	}
}

// WithFov sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
//
// Parameters:
//   - aspect: the aspect ratio to set
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithNear sets the near clipping plane distance.
//
// Parameters:
//   - near: near plane distance
//
// Returns:
//   - CameraBuilderOption: a function that sets the near plane
func WithNear(near float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
	}
}

// WithFar sets the far clipping plane distance.
//
// Parameters:
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: functional option to set the far plane
func WithFar(far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.far = far
	}
}

// WithController attaches a controller to the camera.
//
// Parameters:
//   - ctrl: the controller to attach
//
// Returns:
//   - CameraBuilderOption: functional option to set the controller
func WithController(ctrl Controller) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
		if ctrl != nil {
			c.position = ctrl.Position()
			c.target = ctrl.Target()
		}
	}
}
