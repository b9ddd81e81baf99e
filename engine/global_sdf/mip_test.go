package global_sdf

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestFloodPassesAreOdd(t *testing.T) {
	require.Equal(t, 1, FloodPasses(0))
	require.Equal(t, 1, FloodPasses(1))
	require.Equal(t, 3, FloodPasses(2))
	require.Equal(t, 5, FloodPasses(5))
}

func TestEncodeDistanceClamps(t *testing.T) {
	require.Equal(t, float32(0.5), EncodeDistance(5, 10))
	require.Equal(t, float32(1), EncodeDistance(50, 10))
	require.Equal(t, float32(-1), EncodeDistance(-50, 10))
	require.Equal(t, float32(5), DecodeDistance(EncodeDistance(5, 10), 10))
}

func TestDownsampleKeepsMinimum(t *testing.T) {
	src := NewVolume(8)
	src.Set(5, 1, 2, 0.25)
	src.Set(6, 2, 3, -0.5)

	mip := Downsample(src, 10, 20)
	require.Equal(t, 2, mip.Size)
	require.InDelta(t, -0.25, mip.At(1, 0, 0), 1e-6)
	require.Equal(t, float32(1), mip.At(0, 0, 0))
}

func TestFloodFillNeverUnderestimates(t *testing.T) {
	const n = 16
	const step = float32(0.05)
	mip := NewVolume(n)
	mip.Set(8, 8, 8, 0)

	FloodFill(mip, step, FloodPasses(6))
	for z := range n {
		for y := range n {
			for x := range n {
				d := mgl32.Vec3{float32(x - 8), float32(y - 8), float32(z - 8)}.Len()
				want := math32.Min(1, d*step)
				require.GreaterOrEqual(t, mip.At(x, y, z)+1e-5, want, "voxel %d,%d,%d", x, y, z)
			}
		}
	}
	require.InDelta(t, step, mip.At(9, 8, 8), 1e-6)
	require.InDelta(t, 3*step, mip.At(8, 11, 8), 1e-6)
	require.Equal(t, float32(1), mip.At(0, 0, 0))
}

func TestMipConstantsLocalOrigin(t *testing.T) {
	c := cascade.NewCascade(0, mgl32.Vec3{0, 0, 32}, 64, 128, 1)
	p := MipConstants(c)

	require.Equal(t, uint32(32), p.MipResolution)
	require.Equal(t, uint32(128), p.Resolution)
	require.Equal(t, [3]uint32{16, 16, 24}, p.LocalOrigin)
	require.InDelta(t, 4/c.MaxMipDistance, p.Step, 1e-6)
}

func TestTextureOriginWrapsToroidally(t *testing.T) {
	c := cascade.NewCascade(1, mgl32.Vec3{}, 64, 128, 1)
	origin := textureOrigin(c, common.Int3{X: -1, Y: 0, Z: 5})
	require.Equal(t, [3]uint32{3*32 + 128, 0, 32}, origin)
}

func TestGPUTypeSizes(t *testing.T) {
	var (
		cas   GPUCascade
		cons  GPUConstants
		obj   GPUObject
		chunk GPUChunkConstants
		mip   GPUMipConstants
	)
	for _, tc := range []struct {
		size, marshaled, want int
	}{
		{cas.Size(), len(cas.Marshal()), 32},
		{cons.Size(), len(cons.Marshal()), 144},
		{obj.Size(), len(obj.Marshal()), 96},
		{chunk.Size(), len(chunk.Marshal()), 128},
		{mip.Size(), len(mip.Marshal()), 48},
	} {
		require.Equal(t, tc.want, tc.size)
		require.Equal(t, tc.want, tc.marshaled)
	}
}
