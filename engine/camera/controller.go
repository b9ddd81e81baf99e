package camera

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Controller owns positional camera state. The camera reads position and target
// from it on Update.
type Controller interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: world-space camera position
	Position() mgl32.Vec3

	// Target returns the look-at point.
	//
	// Returns:
	//   - mgl32.Vec3: world-space target position
	Target() mgl32.Vec3

	// SetTarget moves the pivot and recomputes position from the orbit angles.
	//
	// Parameters:
	//   - t: world-space pivot
	SetTarget(t mgl32.Vec3)

	// Orbit rotates around the pivot. Elevation is clamped to the configured range.
	//
	// Parameters:
	//   - dAzimuth: azimuth delta in radians
	//   - dElevation: elevation delta in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom changes the orbit radius. Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates both pivot and position along the camera's right and
	// forward axes projected on the ground plane.
	//
	// Parameters:
	//   - right: distance along the right axis
	//   - forward: distance along the forward axis
	Pan(right, forward float32)
}

type orbitController struct {
	mu sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32
	zoomSpeed    float32
}

var _ Controller = &orbitController{}

// NewOrbitController creates a Controller orbiting its target using spherical
// coordinates (radius, azimuth, elevation).
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - Controller: the newly created controller
func NewOrbitController(options ...ControllerBuilderOption) Controller {
	c := &orbitController{
		radius:       250.0,
		elevation:    math32.Pi / 6,
		minRadius:    20.0,
		maxRadius:    4000.0,
		minElevation: 0.05,
		maxElevation: math32.Pi/2 - 0.1,
		zoomSpeed:    15.0,
	}
	for _, option := range options {
		option(c)
	}
	c.updatePosition()
	return c
}

func (c *orbitController) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *orbitController) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *orbitController) SetTarget(t mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = t
	c.updatePosition()
}

func (c *orbitController) Orbit(dAzimuth, dElevation float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azimuth += dAzimuth
	c.elevation = mgl32.Clamp(c.elevation+dElevation, c.minElevation, c.maxElevation)
	c.updatePosition()
}

func (c *orbitController) Zoom(delta float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radius = mgl32.Clamp(c.radius-delta*c.zoomSpeed, c.minRadius, c.maxRadius)
	c.updatePosition()
}

func (c *orbitController) Pan(right, forward float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sin, cos := math32.Sincos(c.azimuth)
	fwd := mgl32.Vec3{-sin, 0, -cos}
	rgt := mgl32.Vec3{cos, 0, -sin}
	c.target = c.target.Add(rgt.Mul(right)).Add(fwd.Mul(forward))
	c.updatePosition()
}

// updatePosition recomputes position from the pivot and spherical coordinates.
// Caller must hold the mutex.
func (c *orbitController) updatePosition() {
	sinAz, cosAz := math32.Sincos(c.azimuth)
	sinEl, cosEl := math32.Sincos(c.elevation)
	offset := mgl32.Vec3{
		c.radius * cosEl * sinAz,
		c.radius * sinEl,
		c.radius * cosEl * cosAz,
	}
	c.position = c.target.Add(offset)
}
