package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Saturate clamps v to [0, 1].
func Saturate(v float32) float32 {
	return mgl32.Clamp(v, 0, 1)
}

// Lerp linearly interpolates between a and b by t.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// AlignDown snaps v down to a multiple of align.
//
// Parameters:
//   - v: the value to snap
//   - align: alignment step (must be > 0)
//
// Returns:
//   - int: the largest multiple of align that is <= v
func AlignDown(v, align int) int {
	return (v / align) * align
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// SnapToGrid rounds p to the nearest multiple of step on each axis.
//
// Parameters:
//   - p: the point to snap
//   - step: grid step (must be > 0)
//
// Returns:
//   - mgl32.Vec3: the snapped point
func SnapToGrid(p mgl32.Vec3, step float32) mgl32.Vec3 {
	return mgl32.Vec3{
		math32.Floor(p[0]/step+0.5) * step,
		math32.Floor(p[1]/step+0.5) * step,
		math32.Floor(p[2]/step+0.5) * step,
	}
}

// MaxComponent returns the largest component of v.
func MaxComponent(v mgl32.Vec3) float32 {
	return math32.Max(v[0], math32.Max(v[1], v[2]))
}

// StableHash32 mixes a 64-bit key into a well-distributed 32-bit hash.
// The result depends only on the input so it is stable across runs.
func StableHash32(k uint64) uint32 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return uint32(k)
}
