package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           mgl32.Mat4
	projectionMatrix     mgl32.Mat4
	viewProjectionMatrix mgl32.Mat4
	frustum              common.Frustum

	controller Controller
}

// Camera is the render view of a viewport. The GI passes read its position and
// direction to place cascades and cull the scene walk.
type Camera interface {
	// Position returns the world-space eye position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Target returns the look-at point.
	//
	// Returns:
	//   - mgl32.Vec3: the target position
	Target() mgl32.Vec3

	// Direction returns the normalized view direction.
	//
	// Returns:
	//   - mgl32.Vec3: the view direction
	Direction() mgl32.Vec3

	// Up returns the camera's up vector.
	//
	// Returns:
	//   - mgl32.Vec3: the up vector
	Up() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// ViewMatrix returns the current view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns the current combined view-projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view-projection matrix
	ViewProjectionMatrix() mgl32.Mat4

	// Frustum returns the view frustum extracted from the view-projection matrix.
	//
	// Returns:
	//   - common.Frustum: the frustum planes
	Frustum() common.Frustum

	// SetPosition sets the eye position and recomputes matrices.
	//
	// Parameters:
	//   - p: the eye position
	SetPosition(p mgl32.Vec3)

	// SetTarget sets the look-at point and recomputes matrices.
	//
	// Parameters:
	//   - t: the target position
	SetTarget(t mgl32.Vec3)

	// SetAspect sets the aspect ratio and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetController attaches a Controller that drives position and target on Update.
	//
	// Parameters:
	//   - ctrl: the controller, nil to detach
	SetController(ctrl Controller)

	// Update pulls position and target from the controller, if any, and
	// recomputes matrices. Call once per frame.
	Update()

	// GPU returns the camera uniform for upload.
	//
	// Returns:
	//   - GPUCameraUniform: the uniform
	GPU() GPUCameraUniform
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera looking down -Z from the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		target: mgl32.Vec3{0, 0, -1},
		up:     mgl32.Vec3{0, 1, 0},
		fov:    mgl32.DegToRad(60),
		aspect: 16.0 / 9.0,
		near:   0.1,
		far:    10000.0,
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Direction() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction()
}

func (c *cameraImpl) direction() mgl32.Vec3 {
	d := c.target.Sub(c.position)
	if d.LenSqr() == 0 {
		return mgl32.Vec3{0, 0, -1}
	}
	return d.Normalize()
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frustum
}

func (c *cameraImpl) SetPosition(p mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.updateMatrices()
}

func (c *cameraImpl) SetTarget(t mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = t
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller != nil {
		c.position = c.controller.Position()
		c.target = c.controller.Target()
	}
	c.updateMatrices()
}

func (c *cameraImpl) GPU() GPUCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GPUCameraUniform{
		ViewProj:  c.viewProjectionMatrix,
		Position:  c.position,
		Near:      c.near,
		Direction: c.direction(),
		Far:       c.far,
	}
}

// updateMatrices recalculates the view, projection and view-projection matrices
// and the frustum. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	target := c.target
	if target.Sub(c.position).LenSqr() == 0 {
		target = c.position.Add(mgl32.Vec3{0, 0, -1})
	}
	c.viewMatrix = mgl32.LookAtV(c.position, target, c.up)
	c.projectionMatrix = mgl32.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.frustum = common.ExtractFrustum(c.viewProjectionMatrix)
}
