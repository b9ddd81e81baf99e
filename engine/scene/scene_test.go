package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/light"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

type testActor struct {
	id     uint64
	cat    Category
	box    common.BoundingBox
	static bool
}

func (a *testActor) ID() uint64                      { return a.id }
func (a *testActor) Category() Category              { return a.cat }
func (a *testActor) Bounds() common.BoundingSphere   { return a.box.Sphere() }
func (a *testActor) Box() common.BoundingBox         { return a.box }
func (a *testActor) Layer() uint32                   { return 0 }
func (a *testActor) IsStatic() bool                  { return a.static }
func (a *testActor) Lightmapped() bool               { return false }
func (a *testActor) ContributeToVolume(VolumeWriter) {}

func unitActor(id uint64, cat Category) *testActor {
	return &testActor{id: id, cat: cat, box: common.NewBoundingBox(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})}
}

func TestAddRemoveSwapsLast(t *testing.T) {
	s := NewScene("swap")
	a, b, c := unitActor(1, CategoryGeometry), unitActor(2, CategoryGeometry), unitActor(3, CategoryTerrain)

	var added, removed []uint64
	unsubscribe := s.Subscribe(ListenerFuncs{
		ActorAdded:   func(x Actor) { added = append(added, x.ID()) },
		ActorRemoved: func(x Actor) { removed = append(removed, x.ID()) },
	})

	s.AddActor(a)
	s.AddActor(b)
	s.AddActor(c)
	s.AddActor(a)
	require.Equal(t, []uint64{1, 2, 3}, added)
	require.Equal(t, 3, s.Count())
	require.Len(t, s.Actors(CategoryTerrain), 1)

	s.RemoveActor(a)
	require.Equal(t, []uint64{1}, removed)
	geo := s.Actors(CategoryGeometry)
	require.Len(t, geo, 1)
	require.Equal(t, uint64(2), geo[0].ID())
	require.Equal(t, b, s.Get(2))
	require.Nil(t, s.Get(1))

	unsubscribe()
	s.RemoveActor(b)
	require.Len(t, removed, 1)
}

func TestMoveIgnoresUnknownActor(t *testing.T) {
	s := NewScene("move")
	moves := 0
	s.Subscribe(ListenerFuncs{ActorMoved: func(Actor, common.BoundingBox) { moves++ }})

	s.MoveActor(unitActor(9, CategoryGeometry), common.BoundingBox{})
	require.Zero(t, moves)

	a := unitActor(10, CategoryGeometry)
	s.AddActor(a)
	s.MoveActor(a, common.BoundingBox{})
	require.Equal(t, 1, moves)
}

func TestUpdateLightReportsPreviousInfluence(t *testing.T) {
	lamp := light.NewLight(light.LightTypePoint, light.WithPosition(mgl32.Vec3{0, 0, 0}), light.WithRange(5))
	s := NewScene("lights")

	var prevs []common.BoundingSphere
	s.Subscribe(ListenerFuncs{LightChanged: func(_ light.Light, prev common.BoundingSphere) {
		prevs = append(prevs, prev)
	}})

	s.AddLight(lamp)
	s.UpdateLight(lamp, func(l light.Light) { l.SetPosition(mgl32.Vec3{50, 0, 0}) })
	s.RemoveLight(lamp)

	require.Len(t, prevs, 3)
	require.Less(t, prevs[0].Radius, float32(0))
	require.InDelta(t, 0, prevs[1].Center.X(), 1e-4)
	require.InDelta(t, 5, prevs[1].Radius, 1e-4)
	require.InDelta(t, 50, prevs[2].Center.X(), 1e-4)
	require.Empty(t, s.Lights())
}

func TestTextureResidencyNotifiesOnChange(t *testing.T) {
	sdf := NewModelSDF(nil, common.NewBoundingBox(mgl32.Vec3{}, mgl32.Vec3{8, 8, 8}), common.Splat3(8), 1, 4)
	require.Equal(t, 4, sdf.ResidentMips())
	require.InDelta(t, 1, sdf.WorldUnitsPerVoxel, 1e-6)

	s := NewScene("residency")
	calls := 0
	s.Subscribe(ListenerFuncs{TextureResidencyChanged: func(*ModelSDF) { calls++ }})

	s.SetTextureResidency(sdf, 4)
	require.Zero(t, calls)
	s.SetTextureResidency(sdf, 2)
	require.Equal(t, 1, calls)
	require.Equal(t, 2, sdf.ResidentMips())
	s.SetTextureResidency(sdf, 99)
	require.Equal(t, 2, calls)
	require.Equal(t, 4, sdf.ResidentMips())
}
