package chunk

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// ModelsPerChunk is the number of model distance fields one chunk layer
	// can reference.
	ModelsPerChunk = 28

	// HeightfieldsPerChunk is the number of heightfields one chunk layer can reference.
	HeightfieldsPerChunk = 2

	// DefaultMaxLayers is the default overflow layer cap.
	DefaultMaxLayers = 8
)

// Key addresses one layer of one chunk.
type Key struct {
	Coord common.Int3
	Layer int32
}

// Hash returns a stable hash of the key.
func (k Key) Hash() uint32 {
	return common.StableHash32(coordBits(k.Coord) ^ uint64(k.Layer)*0x9e3779b97f4a7c15)
}

func coordBits(c common.Int3) uint64 {
	return uint64(uint32(c.X)&0x1fffff) | uint64(uint32(c.Y)&0x1fffff)<<21 | uint64(uint32(c.Z)&0x1fffff)<<42
}

// Chunk is the object list of one chunk layer. Entries are indices into the
// per-frame object table of the volume being built.
type Chunk struct {
	Models           [ModelsPerChunk]uint32
	ModelCount       int
	Heightfields     [HeightfieldsPerChunk]uint32
	HeightfieldCount int
	Dynamic          bool
}

// Empty reports whether the chunk references nothing.
func (c *Chunk) Empty() bool {
	return c.ModelCount == 0 && c.HeightfieldCount == 0
}

// Footprint returns the inclusive range of chunk coordinates an object touches
// in a cascade. The bounds are grown by the cascade margin and clamped to the
// cascade before being mapped to world-aligned chunk coordinates. Bounds that
// only touch a cascade face miss the cascade: their clamped box has no volume
// and would map onto the chunk past the face.
//
// Parameters:
//   - bounds: the object's world-space bounds
//   - c: the cascade
//
// Returns:
//   - common.Int3: the lowest chunk coordinate
//   - common.Int3: the highest chunk coordinate
//   - bool: false if the object misses the cascade
func Footprint(bounds common.BoundingBox, c cascade.Cascade) (common.Int3, common.Int3, bool) {
	grown := bounds.Expand(c.Margin())
	limits := c.Bounds()
	if !grown.Overlaps(limits) {
		return common.Int3{}, common.Int3{}, false
	}
	clamped := grown.Clamp(limits)
	lo, hi := coordRange(clamped, c.ChunkSize)
	return lo, hi, true
}

func coordRange(b common.BoundingBox, size float32) (common.Int3, common.Int3) {
	var lo, hi common.Int3
	for i := range 3 {
		l := int32(math32.Floor(b.Min[i] / size))
		h := int32(math32.Ceil(b.Max[i]/size)) - 1
		lo = lo.Set(i, l)
		hi = hi.Set(i, max(l, h))
	}
	return lo, hi
}

// Box returns the world-space box of a chunk coordinate.
func Box(coord common.Int3, size float32) common.BoundingBox {
	lo := coord.Vec3().Mul(size)
	return common.BoundingBox{Min: lo, Max: lo.Add(mgl32.Vec3{size, size, size})}
}

// TextureCoord maps a world-aligned chunk coordinate to its slot in the
// toroidally addressed cascade volume.
func TextureCoord(coord common.Int3, chunksPerAxis int) common.Int3 {
	return coord.Mod(common.Splat3(int32(chunksPerAxis)))
}

// ForEach calls fn for every coordinate in the inclusive range lo..hi.
func ForEach(lo, hi common.Int3, fn func(common.Int3)) {
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				fn(common.Int3{X: x, Y: y, Z: z})
			}
		}
	}
}
