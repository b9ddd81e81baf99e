package surface_atlas

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestTilePolicyResolution(t *testing.T) {
	p := DefaultTilePolicy
	p.TexelsPerUnit = 8

	require.Equal(t, 16, p.Resolution(2, 0))
	require.Equal(t, 16, p.Resolution(2.9, 0), "aligned down")
	require.Zero(t, p.Resolution(0.5, 0), "below the minimum size")
	require.Equal(t, 512, p.Resolution(1000, 0), "clamped")

	far := p.Resolution(101, 4000)
	require.Equal(t, 160, far)
	require.Equal(t, 1.0, float64(p.DistanceScale(999)))
	require.InDelta(t, 0.6, p.DistanceScale(2500), 1e-5)
	require.InDelta(t, 0.2, p.DistanceScale(9000), 1e-5)

	p.Quality = 0.5
	require.Equal(t, 8, p.Resolution(2, 0))
}

func TestTilePolicyKeepHysteresis(t *testing.T) {
	p := DefaultTilePolicy
	require.True(t, p.Keep(128, 128))
	require.True(t, p.Keep(128, 104))
	require.False(t, p.Keep(128, 96))
	require.False(t, p.Keep(0, 8))
	require.True(t, p.Keep(0, 0))
}

func TestFaceSizeKeepsAspect(t *testing.T) {
	ext := mgl32.Vec3{4, 1, 2}

	// +X face spans Y and Z.
	w, h, ok := FaceSize(ext, 0, 64, 8, 8)
	require.True(t, ok)
	require.Equal(t, 32, w)
	require.Equal(t, 64, h)
	require.Equal(t, float32(4), FaceMajor(ext, 0))

	// +Y face spans Z and X.
	w, h, ok = FaceSize(ext, 2, 64, 8, 8)
	require.True(t, ok)
	require.Equal(t, 32, w)
	require.Equal(t, 64, h)

	// The thin side of +Z collapses below the minimum.
	_, _, ok = FaceSize(mgl32.Vec3{8, 0.01, 1}, 4, 64, 8, 8)
	require.False(t, ok)
	_, _, ok = FaceSize(ext, 0, 0, 8, 8)
	require.False(t, ok)
}

func TestFaceViewLooksIntoBox(t *testing.T) {
	box := common.OrientedBox{
		Transform: mgl32.Translate3D(10, 0, 0),
		Extents:   mgl32.Vec3{1, 2, 3},
	}
	for f := range FaceCount {
		view := FaceView(box, f, 2)
		toCenter := box.Center().Sub(view.Position).Normalize()
		require.InDelta(t, 1, toCenter.Dot(view.Direction), 1e-5)

		// The box center projects to the middle of the tile, halfway in depth.
		clip := view.Proj.Mul4(view.View).Mul4x1(box.Center().Vec4(1))
		require.InDelta(t, 0, clip.X(), 1e-4)
		require.InDelta(t, 0, clip.Y(), 1e-4)
		require.InDelta(t, 0, clip.Z(), 1e-4)
	}

	view := FaceView(box, 1, 2)
	require.InDelta(t, 7, view.Position.X(), 1e-5)
	require.Equal(t, mgl32.Vec3{2, 3, 3}, view.Extents)
}

func TestGPUTypeSizes(t *testing.T) {
	require.Equal(t, 48, (&GPUAtlasConstants{}).Size())
	require.Equal(t, 112, (&GPUAtlasObject{}).Size())
	require.Equal(t, 112, (&GPUAtlasTile{}).Size())
	require.Equal(t, 112, (&GPUTileDraw{}).Size())
	require.Equal(t, 48, (&GPUIndirectConstants{}).Size())

	obj := GPUAtlasObject{Tiles: [FaceCount]uint32{NoTile, 1, 2, 3, 4, 5}}
	require.Len(t, obj.Marshal(), obj.Size())
}

func TestDueForRedrawSpreadsObjects(t *testing.T) {
	for _, interval := range []uint64{10, 200} {
		for _, hash := range []uint32{0, 7, 12345} {
			due := 0
			for frame := range 2 * interval {
				if dueForRedraw(frame, hash, interval) {
					due++
				}
			}
			require.Equal(t, 2, due)
		}
	}
	require.True(t, dueForRedraw(3, 5, 1))
}
