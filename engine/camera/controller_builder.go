package camera

import "github.com/go-gl/mathgl/mgl32"

// ControllerBuilderOption is a function that configures an orbit controller.
type ControllerBuilderOption func(*orbitController)

// WithOrbitTarget sets the initial pivot.
//
// Parameters:
//   - t: the pivot position
//
// Returns:
//   - ControllerBuilderOption: a function that sets the pivot
func WithOrbitTarget(t mgl32.Vec3) ControllerBuilderOption {
	return func(c *orbitController) {
		c.target = t
	}
}

// WithRadius sets the initial orbit radius.
//
// Parameters:
//   - r: the radius
//
// Returns:
//   - ControllerBuilderOption: a function that sets the radius
func WithRadius(r float32) ControllerBuilderOption {
	return func(c *orbitController) {
		c.radius = r
	}
}

// WithRadiusLimits clamps zoom to [minR, maxR].
func WithRadiusLimits(minR, maxR float32) ControllerBuilderOption {
	return func(c *orbitController) {
		c.minRadius = minR
		c.maxRadius = maxR
	}
}

// WithAngles sets the initial azimuth and elevation in radians.
func WithAngles(azimuth, elevation float32) ControllerBuilderOption {
	return func(c *orbitController) {
		c.azimuth = azimuth
		c.elevation = elevation
	}
}

// WithZoomSpeed sets the distance moved per unit of zoom delta.
func WithZoomSpeed(speed float32) ControllerBuilderOption {
	return func(c *orbitController) {
		c.zoomSpeed = speed
	}
}
