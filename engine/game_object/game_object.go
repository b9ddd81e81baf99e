package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

var nextID atomic.Uint64

type gameObject struct {
	id          uint64
	enabled     atomic.Bool
	static      bool
	lightmapped bool
	layer       uint32

	mu       sync.RWMutex
	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3

	sdf         *scene.ModelSDF
	heightfield *scene.Heightfield
	localBounds common.BoundingBox
	draw        func(ctx gpu.Context, view, proj mgl32.Mat4)
}

// GameObject is a placed model or terrain piece. It contributes its distance
// field or heightfield to the global distance field and its surfaces to the
// surface atlas.
type GameObject interface {
	scene.Actor

	// Enabled returns whether this object contributes to rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the object contributes to rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// Position returns the world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: the position
	Position() mgl32.Vec3

	// Rotation returns the world-space rotation.
	//
	// Returns:
	//   - mgl32.Quat: the rotation
	Rotation() mgl32.Quat

	// Scale returns the per-axis scale.
	//
	// Returns:
	//   - mgl32.Vec3: the scale
	Scale() mgl32.Vec3

	// Transform returns the local-to-world matrix.
	//
	// Returns:
	//   - mgl32.Mat4: translation * rotation * scale
	Transform() mgl32.Mat4

	// SetPosition moves the object. Static objects must be moved through
	// Move so the scene can invalidate cached data.
	//
	// Parameters:
	//   - p: the new position
	SetPosition(p mgl32.Vec3)

	// SetRotation sets the rotation.
	//
	// Parameters:
	//   - q: the new rotation
	SetRotation(q mgl32.Quat)

	// SetScale sets the per-axis scale.
	//
	// Parameters:
	//   - s: the new scale
	SetScale(s mgl32.Vec3)

	// ModelSDF returns the model distance field, or nil.
	ModelSDF() *scene.ModelSDF

	// Heightfield returns the heightfield, or nil.
	Heightfield() *scene.Heightfield
}

var _ GameObject = &gameObject{}

// NewGameObject creates a GameObject. Objects without a distance field or
// heightfield only contribute atlas surfaces.
//
// Parameters:
//   - opts: variadic GameObjectBuilderOption functions
//
// Returns:
//   - GameObject: the new object
func NewGameObject(opts ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		id:       nextID.Add(1),
		rotation: mgl32.QuatIdent(),
		scale:    mgl32.Vec3{1, 1, 1},
		localBounds: common.NewBoundingBox(
			mgl32.Vec3{-0.5, -0.5, -0.5},
			mgl32.Vec3{0.5, 0.5, 0.5},
		),
	}
	obj.enabled.Store(true)
	for _, opt := range opts {
		opt(obj)
	}
	return obj
}

// Move applies an edit to an object and announces the bounds change to the scene.
//
// Parameters:
//   - s: the scene holding the object
//   - obj: the object to move
//   - edit: mutates the object's transform
func Move(s scene.Scene, obj GameObject, edit func(GameObject)) {
	prev := obj.Box()
	edit(obj)
	s.MoveActor(obj, prev)
}

func (g *gameObject) ID() uint64 {
	return g.id
}

func (g *gameObject) Category() scene.Category {
	if g.heightfield != nil {
		return scene.CategoryTerrain
	}
	return scene.CategoryGeometry
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

func (g *gameObject) IsStatic() bool {
	return g.static
}

func (g *gameObject) Lightmapped() bool {
	return g.lightmapped
}

func (g *gameObject) Layer() uint32 {
	return g.layer
}

func (g *gameObject) Position() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.position
}

func (g *gameObject) Rotation() mgl32.Quat {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rotation
}

func (g *gameObject) Scale() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scale
}

func (g *gameObject) SetPosition(p mgl32.Vec3) {
	g.mu.Lock()
	g.position = p
	g.mu.Unlock()
}

func (g *gameObject) SetRotation(q mgl32.Quat) {
	g.mu.Lock()
	g.rotation = q.Normalize()
	g.mu.Unlock()
}

func (g *gameObject) SetScale(s mgl32.Vec3) {
	g.mu.Lock()
	g.scale = s
	g.mu.Unlock()
}

func (g *gameObject) Transform() mgl32.Mat4 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transform()
}

// transform builds the local-to-world matrix. Caller holds g.mu.
func (g *gameObject) transform() mgl32.Mat4 {
	t := mgl32.Translate3D(g.position.X(), g.position.Y(), g.position.Z())
	s := mgl32.Scale3D(g.scale.X(), g.scale.Y(), g.scale.Z())
	return t.Mul4(g.rotation.Mat4()).Mul4(s)
}

func (g *gameObject) Box() common.BoundingBox {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.localBounds.Transform(g.transform())
}

func (g *gameObject) Bounds() common.BoundingSphere {
	return g.Box().Sphere()
}

func (g *gameObject) ModelSDF() *scene.ModelSDF {
	return g.sdf
}

func (g *gameObject) Heightfield() *scene.Heightfield {
	return g.heightfield
}

func (g *gameObject) ContributeToVolume(w scene.VolumeWriter) {
	if !g.Enabled() {
		return
	}
	g.mu.RLock()
	m := g.transform()
	local := g.localBounds
	g.mu.RUnlock()

	if g.sdf != nil {
		w.RasterizeModelSDF(g, g.sdf, m, common.OrientedFromBox(g.sdf.LocalBounds, m))
	}
	if g.heightfield != nil {
		w.RasterizeHeightfield(g, g.heightfield, m, g.heightfield.LocalBounds.Transform(m))
	}
	if g.draw != nil {
		w.RasterizeAtlasObject(g, scene.AtlasObjectDesc{
			Bounds: common.OrientedFromBox(local, m),
			Draw:   g.draw,
		})
	}
}
