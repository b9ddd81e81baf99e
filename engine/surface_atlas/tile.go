package surface_atlas

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// FaceCount is the number of directional tiles an object can own, one per
// oriented box face in the order +X, -X, +Y, -Y, +Z, -Z.
const FaceCount = 6

// TilePadding is the border in texels kept around every tile so filtering
// never reads a neighbor.
const TilePadding = 1

// TilePolicy holds the constants of the tile resolution policy.
type TilePolicy struct {
	// TexelsPerUnit is the resolution of a face at full quality and near distance.
	TexelsPerUnit float32
	// Quality is an external multiplier.
	Quality float32
	MinSize int
	MaxSize int
	// Align snaps sizes down to a multiple of this value.
	Align int
	// Hysteresis is the size change below which an existing tile is kept.
	Hysteresis int
	// Near and Far bound the distance falloff; FloorScale is the scale at Far.
	Near       float32
	Far        float32
	FloorScale float32
}

// DefaultTilePolicy is tuned for a 4096 texel atlas.
var DefaultTilePolicy = TilePolicy{
	TexelsPerUnit: 0.5,
	Quality:       1,
	MinSize:       8,
	MaxSize:       512,
	Align:         8,
	Hysteresis:    32,
	Near:          1000,
	Far:           4000,
	FloorScale:    0.2,
}

// DistanceScale returns the resolution falloff at a view distance: 1 up to
// Near, then linear down to FloorScale at Far.
func (p TilePolicy) DistanceScale(distance float32) float32 {
	if p.Far <= p.Near {
		return 1
	}
	t := common.Saturate((distance - p.Near) / (p.Far - p.Near))
	return common.Lerp(1, p.FloorScale, t)
}

// Resolution returns the aligned tile resolution for a face whose larger
// cross-section dimension is size world units. Zero means the face is too
// small to get a tile.
//
// Parameters:
//   - size: the larger face dimension in world units
//   - distance: the distance from the viewer to the object
//
// Returns:
//   - int: the tile resolution in texels, or 0
func (p TilePolicy) Resolution(size, distance float32) int {
	res := size * p.TexelsPerUnit * p.DistanceScale(distance) * p.Quality
	if res < float32(p.MinSize) {
		return 0
	}
	r := min(int(res), p.MaxSize)
	return max(common.AlignDown(r, p.Align), p.MinSize)
}

// Keep reports whether a tile allocated at current texels can serve a
// request for desired texels.
func (p TilePolicy) Keep(current, desired int) bool {
	if current == 0 || desired == 0 {
		return current == desired
	}
	d := current - desired
	if d < 0 {
		d = -d
	}
	return d < p.Hysteresis
}

// faceAxes returns the depth axis and the two cross-section axes of a face.
func faceAxes(face int) (depth, u, v int) {
	depth = face / 2
	return depth, (depth + 1) % 3, (depth + 2) % 3
}

func faceSign(face int) float32 {
	if face%2 == 0 {
		return 1
	}
	return -1
}

// FaceSize returns the tile width and height for a face at a resolution. The
// larger cross-section dimension gets res texels; the other is scaled to keep
// the aspect ratio. A dimension below minSize makes the face unusable.
func FaceSize(extents mgl32.Vec3, face, res, minSize, align int) (int, int, bool) {
	if res <= 0 {
		return 0, 0, false
	}
	_, u, v := faceAxes(face)
	eu, ev := extents[u], extents[v]
	major := math32.Max(eu, ev)
	if major <= 0 {
		return 0, 0, false
	}
	w := common.AlignDown(int(float32(res)*eu/major), align)
	h := common.AlignDown(int(float32(res)*ev/major), align)
	if w < minSize || h < minSize {
		return 0, 0, false
	}
	return w, h, true
}

// FaceMajor returns the larger cross-section dimension of a face in world units.
func FaceMajor(extents mgl32.Vec3, face int) float32 {
	_, u, v := faceAxes(face)
	return 2 * math32.Max(extents[u], extents[v])
}

// TileView is the orthographic camera that captures one face.
type TileView struct {
	Position mgl32.Vec3
	// Direction points from the camera into the box.
	Direction mgl32.Vec3
	View      mgl32.Mat4
	Proj      mgl32.Mat4
	// Extents are the half sizes of the view volume: width, height, depth.
	Extents mgl32.Vec3
}

// FaceView builds the camera looking at one face of an oriented box from
// just outside it. nearOffset pushes the camera out and grows the far plane
// by the same amount so geometry touching the box is not clipped.
//
// Parameters:
//   - box: the object's oriented box
//   - face: the face index, see FaceCount
//   - nearOffset: the clip plane offset in world units
//
// Returns:
//   - TileView: the tile camera
func FaceView(box common.OrientedBox, face int, nearOffset float32) TileView {
	depth, u, v := faceAxes(face)
	normal := box.Axis(depth).Mul(faceSign(face))
	up := box.Axis(v)
	center := box.Center()
	d := box.Extents[depth] + nearOffset
	pos := center.Add(normal.Mul(d))

	// LookAt builds a right-handed basis; for negative faces the camera right
	// vector flips, which mirrors the tile but keeps texel ownership unique.
	view := mgl32.LookAtV(pos, center, up)
	eu, ev := box.Extents[u], box.Extents[v]
	proj := mgl32.Ortho(-eu, eu, -ev, ev, 0, 2*d)
	return TileView{
		Position:  pos,
		Direction: normal.Mul(-1),
		View:      view,
		Proj:      proj,
		Extents:   mgl32.Vec3{eu, ev, d},
	}
}
