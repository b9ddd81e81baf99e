package global_sdf

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestObjectTableAdmitsKnownActorsPastCap(t *testing.T) {
	tbl := newObjectTable(2)

	idx, ok := tbl.add(1, ObjectModel, GPUObject{}, nil)
	require.True(t, ok)
	require.Equal(t, uint32(0), idx)
	idx, ok = tbl.add(1, ObjectModel, GPUObject{}, nil)
	require.True(t, ok)
	require.Equal(t, uint32(0), idx)
	_, ok = tbl.add(2, ObjectModel, GPUObject{}, nil)
	require.True(t, ok)
	_, ok = tbl.add(3, ObjectModel, GPUObject{}, nil)
	require.False(t, ok)
	require.Equal(t, 1, tbl.deferredCount())

	// Known actors keep their slot even when they arrive after a newcomer.
	tbl.begin()
	_, ok = tbl.add(3, ObjectHeightfield, GPUObject{}, nil)
	require.True(t, ok)
	_, ok = tbl.add(4, ObjectModel, GPUObject{}, nil)
	require.True(t, ok)
	_, ok = tbl.add(1, ObjectModel, GPUObject{}, nil)
	require.True(t, ok)
	require.Equal(t, 3, tbl.count())
	require.Len(t, tbl.marshal(), 3*96)

	tbl.forget(1)
	tbl.begin()
	tbl.add(5, ObjectModel, GPUObject{}, nil)
	tbl.add(6, ObjectModel, GPUObject{}, nil)
	_, ok = tbl.add(1, ObjectModel, GPUObject{}, nil)
	require.False(t, ok)
}

func TestVolumeTransformMapsBoundsToUnitCube(t *testing.T) {
	local := common.NewBoundingBox(mgl32.Vec3{-1, -2, -1}, mgl32.Vec3{1, 2, 1})
	m := mgl32.Translate3D(10, 0, 0).Mul4(mgl32.Scale3D(2, 2, 2))
	tr := volumeTransform(local, m)

	lo := mgl32.TransformCoordinate(mgl32.Vec3{8, -4, -2}, tr)
	hi := mgl32.TransformCoordinate(mgl32.Vec3{12, 4, 2}, tr)
	require.InDeltaSlice(t, []float32{0, 0, 0}, lo[:], 1e-5)
	require.InDeltaSlice(t, []float32{1, 1, 1}, hi[:], 1e-5)
}
