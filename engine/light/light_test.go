package light

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestInfluence(t *testing.T) {
	box := common.NewBoundingBox(mgl32.Vec3{100, 0, 0}, mgl32.Vec3{101, 1, 1})

	sun := NewLight(LightTypeDirectional)
	require.True(t, sun.Influence().IntersectsBox(box))

	lamp := NewLight(LightTypePoint, WithPosition(mgl32.Vec3{0, 0, 0}), WithRange(10))
	require.False(t, lamp.Influence().IntersectsBox(box))
	lamp.SetPosition(mgl32.Vec3{95, 0, 0})
	require.True(t, lamp.Influence().IntersectsBox(box))

	lamp.SetEnabled(false)
	require.False(t, lamp.Influence().IntersectsBox(box))
}

func TestGPULightLayout(t *testing.T) {
	l := NewLight(LightTypeSpot,
		WithPosition(mgl32.Vec3{1, 2, 3}),
		WithDirection(mgl32.Vec3{0, 0, -5}),
		WithRange(7),
	)
	g := l.GPU()
	require.Equal(t, 64, g.Size())

	buf := g.Marshal()
	require.Len(t, buf, 64)
	require.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])))
	require.Equal(t, uint32(LightTypeSpot), binary.LittleEndian.Uint32(buf[12:16]))
	require.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(buf[40:44])))
	require.Equal(t, float32(7), math.Float32frombits(binary.LittleEndian.Uint32(buf[44:48])))
	require.Contains(t, GPULightSource, "struct Light")
}

func TestMarshalLightsCapsCount(t *testing.T) {
	lights := make([]Light, MaxGPULights+3)
	for i := range lights {
		lights[i] = NewLight(LightTypePoint)
	}
	buf := MarshalLights(mgl32.Vec3{0.1, 0.1, 0.1}, lights)
	require.Len(t, buf, 16+64*MaxGPULights)
	require.Equal(t, uint32(MaxGPULights), binary.LittleEndian.Uint32(buf[12:16]))
}
