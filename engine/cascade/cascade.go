package cascade

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ChunkVoxels is the edge length of a chunk in voxels.
const ChunkVoxels = 32

// ChunkMarginVoxels is how far an object footprint is grown before it is
// mapped to chunks, to keep boundary voxels correct.
const ChunkMarginVoxels = 4

// MaxCascades is the largest supported cascade count.
const MaxCascades = 4

// Quality selects resolution and cascade count.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
	QualityUltra
)

func (q Quality) clamp() Quality {
	return max(QualityLow, min(q, QualityUltra))
}

func (q Quality) String() string {
	switch q.clamp() {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return "ultra"
	}
}

// DistanceScales multiplies the base extent per cascade.
type DistanceScales [MaxCascades]float32

var (
	// SDFDistanceScales is the global distance field cascade table.
	SDFDistanceScales = DistanceScales{1, 2.5, 5, 10}

	// DDGIDistanceScales is the probe volume cascade table.
	DDGIDistanceScales = DistanceScales{1, 3, 6, 10}

	// DefaultFrequencies are the per-cascade update periods in frames.
	DefaultFrequencies = [MaxCascades]int{2, 3, 5, 7}
)

var (
	resolutionByQuality  = [4]int{128, 128, 192, 256}
	maxCascadesByQuality = [4]int{2, 3, 4, 4}
)

// Resolution returns the per-axis voxel count of one cascade for a quality level.
func Resolution(q Quality) int {
	return resolutionByQuality[q.clamp()]
}

// Layout is the result of fitting cascades to a view distance.
type Layout struct {
	CascadeCount int
	Resolution   int
	// Extents are the half sizes of each cascade in world units.
	Extents []float32
}

// Equal reports whether two layouts would allocate the same resources and
// cover the same volumes.
func (l Layout) Equal(o Layout) bool {
	if l.CascadeCount != o.CascadeCount || l.Resolution != o.Resolution || len(l.Extents) != len(o.Extents) {
		return false
	}
	for i := range l.Extents {
		if l.Extents[i] != o.Extents[i] {
			return false
		}
	}
	return true
}

// ComputeLayout derives the cascade count and extents for a view distance.
// The count is the smallest that reaches the distance with the ideal base
// extent, capped per quality; the base extent then grows to cover the
// distance with the last cascade.
//
// Parameters:
//   - desiredDistance: how far from the viewer the volume must reach
//   - quality: the quality level
//   - idealExtent: the preferred half size of cascade 0
//   - scales: the per-cascade distance multipliers
//
// Returns:
//   - Layout: the cascade layout
func ComputeLayout(desiredDistance float32, quality Quality, idealExtent float32, scales DistanceScales) Layout {
	quality = quality.clamp()
	limit := maxCascadesByQuality[quality]
	n := limit
	for i := 1; i <= limit; i++ {
		if idealExtent*scales[i-1] >= desiredDistance {
			n = i
			break
		}
	}
	base := math32.Max(idealExtent, desiredDistance/scales[n-1])
	out := Layout{CascadeCount: n, Resolution: resolutionByQuality[quality], Extents: make([]float32, n)}
	for i := range n {
		out.Extents[i] = base * scales[i]
	}
	return out
}

// Cascade is one nested volume around the viewer.
type Cascade struct {
	Index      int
	Position   mgl32.Vec3
	Extent     float32
	Resolution int
	VoxelSize  float32
	ChunkSize  float32
	// MaxDistance is the distance encoded by a normalized value of 1 in the
	// cascade volume.
	MaxDistance float32
	// MaxMipDistance is the encoding range of the coarse mip volume.
	MaxMipDistance float32
	Frequency      int
	Dirty          bool
}

// NewCascade builds a cascade of the given extent and resolution at a position.
func NewCascade(index int, position mgl32.Vec3, extent float32, resolution, frequency int) Cascade {
	voxel := 2 * extent / float32(resolution)
	chunk := voxel * ChunkVoxels
	maxDist := math32.Min(1.5*chunk, 2*extent)
	return Cascade{
		Index:          index,
		Position:       position,
		Extent:         extent,
		Resolution:     resolution,
		VoxelSize:      voxel,
		ChunkSize:      chunk,
		MaxDistance:    maxDist,
		MaxMipDistance: math32.Min(2*maxDist, 2*extent),
		Frequency:      max(frequency, 1),
	}
}

// Bounds returns the world-space box the cascade covers.
func (c Cascade) Bounds() common.BoundingBox {
	return common.BoxFromCenter(c.Position, mgl32.Vec3{c.Extent, c.Extent, c.Extent})
}

// ChunksPerAxis returns the number of chunks along each axis of the volume.
func (c Cascade) ChunksPerAxis() int {
	return max(c.Resolution/ChunkVoxels, 1)
}

// Margin returns the world-space footprint margin.
func (c Cascade) Margin() float32 {
	return ChunkMarginVoxels * c.VoxelSize
}

func (c Cascade) String() string {
	return fmt.Sprintf("cascade[%d] pos=%v extent=%.1f voxel=%.2f", c.Index, c.Position, c.Extent, c.VoxelSize)
}

// Recenter returns the cascade center for a viewer. The center is pushed along
// the view direction by a fraction of the extent, bounded by where the view
// ray leaves the scene, and snapped to the chunk grid.
//
// Parameters:
//   - viewPos: the viewer position
//   - viewDir: the normalized view direction
//   - extent: the cascade half size
//   - chunkSize: the chunk size in world units
//   - shift: the fraction of the extent to push along viewDir
//   - sceneBounds: the scene bounds; empty boxes do not limit the shift
//
// Returns:
//   - mgl32.Vec3: the snapped center
func Recenter(viewPos, viewDir mgl32.Vec3, extent, chunkSize, shift float32, sceneBounds common.BoundingBox) mgl32.Vec3 {
	d := extent * shift
	if !sceneBounds.IsEmpty() && sceneBounds.Contains(viewPos) {
		if exit, ok := sceneBounds.RayExit(viewPos, viewDir); ok {
			d = math32.Min(d, exit*shift)
		}
	}
	return common.SnapToGrid(viewPos.Add(viewDir.Mul(d)), chunkSize)
}

// ShouldUpdate reports whether cascade i is dirty on a frame.
//
// Parameters:
//   - frame: the frame counter
//   - frequency: the cascade update period
//   - reset: true when a full reset was requested
//   - spreading: false forces every cascade to update every frame
//
// Returns:
//   - bool: true if the cascade must be rebuilt this frame
func ShouldUpdate(frame uint64, frequency int, reset, spreading bool) bool {
	if reset || !spreading || frequency <= 1 {
		return true
	}
	return frame%uint64(frequency) == 0
}

// FitProbeCounts shrinks per-axis counts until a texture that lays out
// counts.X*counts.Y blocks horizontally and counts.Z*rows blocks vertically,
// each texels wide, fits in maxDim.
//
// Parameters:
//   - counts: the requested per-axis counts
//   - texels: texels per block edge
//   - rows: extra vertical multiplier (cascade count)
//   - maxDim: the device texture dimension limit
//
// Returns:
//   - common.Int3: the fitted counts
//   - bool: false if even a single block does not fit
func FitProbeCounts(counts common.Int3, texels, rows int, maxDim uint32) (common.Int3, bool) {
	counts = counts.Max(common.Splat3(1))
	rows = max(rows, 1)
	limit := int(maxDim)
	for {
		width := int(counts.X) * int(counts.Y) * texels
		height := int(counts.Z) * rows * texels
		if width <= limit && height <= limit {
			return counts, true
		}
		shrunk := false
		if width > limit {
			if counts.X >= counts.Y && counts.X > 1 {
				counts.X--
				shrunk = true
			} else if counts.Y > 1 {
				counts.Y--
				shrunk = true
			}
		}
		if height > limit && counts.Z > 1 {
			counts.Z--
			shrunk = true
		}
		if !shrunk {
			return counts, false
		}
	}
}
