package scene

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Category partitions the scene's actor lists. Each category is walked with
// its own claim cursor.
type Category int

const (
	// CategoryGeometry holds regular model actors.
	CategoryGeometry Category = iota

	// CategoryTerrain holds heightfield actors.
	CategoryTerrain

	// CategoryCount is the number of actor categories.
	CategoryCount
)

// Actor is anything in the scene that can contribute to the GI volumes.
type Actor interface {
	// ID returns the unique actor identifier.
	//
	// Returns:
	//   - uint64: the actor ID
	ID() uint64

	// Category returns the actor list the actor lives in.
	//
	// Returns:
	//   - Category: the actor category
	Category() Category

	// Bounds returns the world-space bounding sphere used for culling.
	//
	// Returns:
	//   - common.BoundingSphere: the bounding sphere
	Bounds() common.BoundingSphere

	// Box returns the world-space axis-aligned bounds.
	//
	// Returns:
	//   - common.BoundingBox: the bounding box
	Box() common.BoundingBox

	// Layer returns the actor's layer index, tested against walk layer masks.
	//
	// Returns:
	//   - uint32: the layer index in [0, 31]
	Layer() uint32

	// IsStatic reports whether the actor never moves on its own. Static actors
	// notify the scene when edited; dynamic actors are re-walked every update.
	//
	// Returns:
	//   - bool: true if static
	IsStatic() bool

	// Lightmapped reports whether the actor uses baked lighting, which slows
	// its atlas redraw cadence.
	//
	// Returns:
	//   - bool: true if lightmapped
	Lightmapped() bool

	// ContributeToVolume registers the actor's distance data or atlas surfaces
	// with the writer of the target being built. Called concurrently for
	// different actors.
	//
	// Parameters:
	//   - w: the writer bound to one cascade or to the surface atlas
	ContributeToVolume(w VolumeWriter)
}

// VolumeWriter receives actor contributions for one target. Implementations
// ignore the calls that do not apply to them.
type VolumeWriter interface {
	// RasterizeModelSDF registers a model distance field.
	//
	// Parameters:
	//   - a: the contributing actor
	//   - sdf: the model distance field
	//   - localToWorld: the model transform
	//   - box: the world-space oriented bounds of the field
	RasterizeModelSDF(a Actor, sdf *ModelSDF, localToWorld mgl32.Mat4, box common.OrientedBox)

	// RasterizeHeightfield registers a heightfield.
	//
	// Parameters:
	//   - a: the contributing actor
	//   - hf: the heightfield
	//   - localToWorld: the heightfield transform
	//   - bounds: the world-space bounds of the heightfield
	RasterizeHeightfield(a Actor, hf *Heightfield, localToWorld mgl32.Mat4, bounds common.BoundingBox)

	// RasterizeAtlasObject registers a surface to be captured into the atlas.
	//
	// Parameters:
	//   - a: the contributing actor
	//   - desc: the atlas object description
	RasterizeAtlasObject(a Actor, desc AtlasObjectDesc)
}

var nextSDFID atomic.Uint64

// ModelSDF is a baked model distance field stored in a 3D texture.
type ModelSDF struct {
	id uint64

	Texture            gpu.Texture
	LocalBounds        common.BoundingBox
	Resolution         common.Int3
	WorldUnitsPerVoxel float32
	MaxDistance        float32
	MipLevels          int

	residentMips atomic.Int32
}

// NewModelSDF creates a distance field with every mip resident.
//
// Parameters:
//   - tex: the 3D distance texture, may be nil in headless use
//   - localBounds: the model-space bounds the texture covers
//   - resolution: texel counts per axis
//   - maxDistance: the distance encoded by a texel value of 1
//   - mips: the total mip count
//
// Returns:
//   - *ModelSDF: the distance field
func NewModelSDF(tex gpu.Texture, localBounds common.BoundingBox, resolution common.Int3, maxDistance float32, mips int) *ModelSDF {
	sdf := &ModelSDF{
		id:          nextSDFID.Add(1),
		Texture:     tex,
		LocalBounds: localBounds,
		Resolution:  resolution,
		MaxDistance: maxDistance,
		MipLevels:   max(mips, 1),
	}
	if resolution.X > 0 {
		sdf.WorldUnitsPerVoxel = localBounds.Size().X() / float32(resolution.X)
	}
	sdf.residentMips.Store(int32(sdf.MipLevels))
	return sdf
}

// ID returns the distance field identity.
func (s *ModelSDF) ID() uint64 { return s.id }

// ResidentMips returns how many mips are currently streamed in.
func (s *ModelSDF) ResidentMips() int { return int(s.residentMips.Load()) }

// Heightfield is a terrain height texture.
type Heightfield struct {
	Texture     gpu.Texture
	LocalBounds common.BoundingBox
	HeightScale float32
}

// AtlasObjectDesc describes one surface registered with the atlas.
type AtlasObjectDesc struct {
	// Bounds is the world-space oriented box the tiles are captured from.
	Bounds common.OrientedBox

	// Draw renders the object's geometry into the currently bound capture
	// targets with the given tile camera.
	Draw func(ctx gpu.Context, view, proj mgl32.Mat4)
}
