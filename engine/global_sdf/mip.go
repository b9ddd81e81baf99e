package global_sdf

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/chewxy/math32"
)

// MipFactor is the voxel ratio between the cascade volume and its mip.
const MipFactor = 4

// EncodeDistance maps a world distance into the signed normalized range of a
// volume whose value 1 means maxDistance.
func EncodeDistance(d, maxDistance float32) float32 {
	return math32.Max(-1, math32.Min(1, d/maxDistance))
}

// DecodeDistance is the inverse of EncodeDistance for unclamped values.
func DecodeDistance(v, maxDistance float32) float32 {
	return v * maxDistance
}

// Volume is a dense CPU-side grid of encoded distances indexed x fastest.
type Volume struct {
	Size   int
	Values []float32
}

// NewVolume creates a volume filled with 1 (far from any surface).
func NewVolume(size int) *Volume {
	v := &Volume{Size: size, Values: make([]float32, size*size*size)}
	for i := range v.Values {
		v.Values[i] = 1
	}
	return v
}

// At returns the value at a voxel.
func (v *Volume) At(x, y, z int) float32 {
	return v.Values[(z*v.Size+y)*v.Size+x]
}

// Set writes the value at a voxel.
func (v *Volume) Set(x, y, z int, value float32) {
	v.Values[(z*v.Size+y)*v.Size+x] = value
}

// Downsample builds the mip of a cascade volume the way the downsample program
// does: each mip voxel keeps the minimum of its MipFactor^3 source voxels,
// re-encoded from maxDistance into maxMipDistance.
//
// Parameters:
//   - src: the cascade volume
//   - maxDistance: the encoding range of src
//   - maxMipDistance: the encoding range of the result
//
// Returns:
//   - *Volume: the mip volume
func Downsample(src *Volume, maxDistance, maxMipDistance float32) *Volume {
	mip := NewVolume(src.Size / MipFactor)
	for z := range mip.Size {
		for y := range mip.Size {
			for x := range mip.Size {
				d := float32(1)
				for dz := range MipFactor {
					for dy := range MipFactor {
						for dx := range MipFactor {
							d = math32.Min(d, src.At(x*MipFactor+dx, y*MipFactor+dy, z*MipFactor+dz))
						}
					}
				}
				mip.Set(x, y, z, EncodeDistance(DecodeDistance(d, maxDistance), maxMipDistance))
			}
		}
	}
	return mip
}

// FloodPasses rounds a requested pass count up to the next odd number so the
// result of the ping-pong always lands in the mip texture.
func FloodPasses(n int) int {
	n = max(n, 1)
	if n%2 == 0 {
		n++
	}
	return n
}

// FloodFill runs the flood passes of the mip program on the CPU. Each pass
// lowers every voxel to its smallest 6-neighbor value plus step, so distance
// information spreads one voxel per pass.
//
// Parameters:
//   - mip: the downsampled volume, modified in place
//   - step: the encoded distance of one mip voxel
//   - passes: the number of passes
func FloodFill(mip *Volume, step float32, passes int) {
	scratch := &Volume{Size: mip.Size, Values: make([]float32, len(mip.Values))}
	src, dst := mip, scratch
	n := mip.Size
	for range passes {
		for z := range n {
			for y := range n {
				for x := range n {
					p := common.Int3{X: int32(x), Y: int32(y), Z: int32(z)}
					d := src.At(x, y, z)
					for axis := range 3 {
						for _, s := range [2]int32{-1, 1} {
							q := p.Set(axis, p.Get(axis)+s)
							if q.Get(axis) < 0 || int(q.Get(axis)) >= n {
								continue
							}
							d = math32.Min(d, src.At(int(q.X), int(q.Y), int(q.Z))+step)
						}
					}
					dst.Set(x, y, z, d)
				}
			}
		}
		src, dst = dst, src
	}
	if src != mip {
		copy(mip.Values, src.Values)
	}
}
