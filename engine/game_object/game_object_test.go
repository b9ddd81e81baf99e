package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	models  []common.OrientedBox
	heights []common.BoundingBox
	atlas   []scene.AtlasObjectDesc
}

func (w *captureWriter) RasterizeModelSDF(_ scene.Actor, _ *scene.ModelSDF, _ mgl32.Mat4, box common.OrientedBox) {
	w.models = append(w.models, box)
}

func (w *captureWriter) RasterizeHeightfield(_ scene.Actor, _ *scene.Heightfield, _ mgl32.Mat4, bounds common.BoundingBox) {
	w.heights = append(w.heights, bounds)
}

func (w *captureWriter) RasterizeAtlasObject(_ scene.Actor, desc scene.AtlasObjectDesc) {
	w.atlas = append(w.atlas, desc)
}

func TestBoxFollowsTransform(t *testing.T) {
	sdf := scene.NewModelSDF(nil, common.NewBoundingBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), common.Splat3(16), 0.5, 3)
	obj := NewGameObject(
		WithModelSDF(sdf),
		WithTransform(mgl32.Vec3{10, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{2, 2, 2}),
	)
	box := obj.Box()
	require.InDelta(t, 8, box.Min.X(), 1e-4)
	require.InDelta(t, 12, box.Max.X(), 1e-4)
	require.Equal(t, scene.CategoryGeometry, obj.Category())
	require.InDelta(t, 10, obj.Bounds().Center.X(), 1e-4)
}

func TestContributeToVolume(t *testing.T) {
	sdf := scene.NewModelSDF(nil, common.NewBoundingBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}), common.Splat3(16), 0.5, 3)
	draw := func(gpu.Context, mgl32.Mat4, mgl32.Mat4) {}
	obj := NewGameObject(
		WithModelSDF(sdf),
		WithSurfaceDraw(draw),
		WithTransform(mgl32.Vec3{0, 5, 0}, mgl32.QuatIdent(), mgl32.Vec3{3, 1, 1}),
	)

	w := &captureWriter{}
	obj.ContributeToVolume(w)
	require.Len(t, w.models, 1)
	require.Len(t, w.atlas, 1)
	require.Empty(t, w.heights)
	require.InDelta(t, 3, w.models[0].Extents.X(), 1e-4)
	require.InDelta(t, 5, w.models[0].Center().Y(), 1e-4)

	obj.SetEnabled(false)
	w = &captureWriter{}
	obj.ContributeToVolume(w)
	require.Empty(t, w.models)
	require.Empty(t, w.atlas)
}

func TestHeightfieldIsTerrain(t *testing.T) {
	hf := &scene.Heightfield{LocalBounds: common.NewBoundingBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{64, 8, 64}), HeightScale: 8}
	obj := NewGameObject(WithHeightfield(hf), WithStatic(true), WithLayer(33))
	require.Equal(t, scene.CategoryTerrain, obj.Category())
	require.True(t, obj.IsStatic())
	require.Equal(t, uint32(1), obj.Layer())

	w := &captureWriter{}
	obj.ContributeToVolume(w)
	require.Len(t, w.heights, 1)
	require.InDelta(t, 64, w.heights[0].Max.X(), 1e-4)
}

func TestMoveNotifiesScene(t *testing.T) {
	obj := NewGameObject(WithStatic(true))
	s := scene.NewScene("test", scene.WithActors(obj))

	var prev common.BoundingBox
	moves := 0
	s.Subscribe(scene.ListenerFuncs{ActorMoved: func(a scene.Actor, prevBox common.BoundingBox) {
		moves++
		prev = prevBox
		require.Equal(t, obj.ID(), a.ID())
	}})

	Move(s, obj, func(g GameObject) { g.SetPosition(mgl32.Vec3{100, 0, 0}) })
	require.Equal(t, 1, moves)
	require.InDelta(t, 0.5, prev.Max.X(), 1e-4)
	require.InDelta(t, 100.5, obj.Box().Max.X(), 1e-4)
}
