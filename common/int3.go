package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Int3 is an integer 3D coordinate used for chunk and probe addressing.
type Int3 struct {
	X, Y, Z int32
}

// Splat3 returns an Int3 with all components set to v.
func Splat3(v int32) Int3 {
	return Int3{v, v, v}
}

// FloorToInt3 returns the integer cell containing p for a grid of the given cell size.
//
// Parameters:
//   - p: world-space point
//   - cell: cell size in world units (must be > 0)
//
// Returns:
//   - Int3: floor(p / cell) per axis
func FloorToInt3(p mgl32.Vec3, cell float32) Int3 {
	return Int3{
		int32(math32.Floor(p[0] / cell)),
		int32(math32.Floor(p[1] / cell)),
		int32(math32.Floor(p[2] / cell)),
	}
}

// Add returns a + b.
func (a Int3) Add(b Int3) Int3 { return Int3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }

// Sub returns a - b.
func (a Int3) Sub(b Int3) Int3 { return Int3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

// Min returns the component-wise minimum.
func (a Int3) Min(b Int3) Int3 { return Int3{min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z)} }

// Max returns the component-wise maximum.
func (a Int3) Max(b Int3) Int3 { return Int3{max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z)} }

// Get returns component i (0 = X, 1 = Y, 2 = Z).
func (a Int3) Get(i int) int32 {
	switch i {
	case 0:
		return a.X
	case 1:
		return a.Y
	default:
		return a.Z
	}
}

// Set returns a copy with component i replaced by v.
func (a Int3) Set(i int, v int32) Int3 {
	switch i {
	case 0:
		a.X = v
	case 1:
		a.Y = v
	default:
		a.Z = v
	}
	return a
}

// Mod returns the component-wise Euclidean remainder of a by n; results are
// always in [0, n).
func (a Int3) Mod(n Int3) Int3 {
	return Int3{EuclidMod(a.X, n.X), EuclidMod(a.Y, n.Y), EuclidMod(a.Z, n.Z)}
}

// Volume returns X*Y*Z.
func (a Int3) Volume() int {
	return int(a.X) * int(a.Y) * int(a.Z)
}

// Vec3 converts to a float vector.
func (a Int3) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{float32(a.X), float32(a.Y), float32(a.Z)}
}

// EuclidMod returns a mod n in [0, n) for positive n.
func EuclidMod(a, n int32) int32 {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
