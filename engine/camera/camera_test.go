package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestCameraDirectionAndFrustum(t *testing.T) {
	c := NewCamera(
		WithPosition(mgl32.Vec3{0, 0, 10}),
		WithTarget(mgl32.Vec3{0, 0, 0}),
		WithFar(100),
	)
	require.True(t, c.Direction().ApproxEqualThreshold(mgl32.Vec3{0, 0, -1}, 1e-5))

	ahead := common.BoxFromCenter(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{1, 1, 1})
	behind := common.BoxFromCenter(mgl32.Vec3{0, 0, 30}, mgl32.Vec3{1, 1, 1})
	require.True(t, c.Frustum().IntersectsBox(ahead))
	require.False(t, c.Frustum().IntersectsBox(behind))
}

func TestOrbitControllerDrivesCamera(t *testing.T) {
	ctrl := NewOrbitController(WithOrbitTarget(mgl32.Vec3{5, 0, 5}), WithRadius(100), WithAngles(0, 0.5))
	c := NewCamera(WithController(ctrl))

	require.InDelta(t, 100, c.Position().Sub(ctrl.Target()).Len(), 1e-3)

	ctrl.Zoom(2)
	ctrl.Orbit(0.3, 10)
	c.Update()

	require.InDelta(t, 70, c.Position().Sub(ctrl.Target()).Len(), 1e-3)
	require.Equal(t, ctrl.Position(), c.Position())

	ctrl.Pan(0, 10)
	c.Update()
	require.Equal(t, float32(0), c.Target().Y())
	require.NotEqual(t, mgl32.Vec3{5, 0, 5}, c.Target())
}

func TestCameraUniformLayout(t *testing.T) {
	c := NewCamera(WithNear(0.5), WithFar(500))
	u := c.GPU()
	require.Equal(t, 96, u.Size())
	require.Len(t, u.Marshal(), 96)
	require.Contains(t, GPUCameraUniformSource, "struct CameraUniform")
}
