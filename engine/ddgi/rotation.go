package ddgi

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// RandomRotation returns a uniformly distributed rotation. Every probe update
// rotates the fixed ray pattern by a new one so aliasing decorrelates over
// frames.
//
// Parameters:
//   - rng: the random source
//
// Returns:
//   - mgl32.Mat4: an orthonormal rotation matrix
func RandomRotation(rng *rand.Rand) mgl32.Mat4 {
	u1, u2, u3 := rng.Float32(), rng.Float32(), rng.Float32()
	a, b := math32.Sqrt(1-u1), math32.Sqrt(u1)
	s2, c2 := math32.Sincos(2 * math32.Pi * u2)
	s3, c3 := math32.Sincos(2 * math32.Pi * u3)
	q := mgl32.Quat{W: b * c3, V: mgl32.Vec3{a * s2, a * c2, b * s3}}
	return q.Normalize().Mat4()
}

// SphereDirection returns direction i of n quasi-uniform directions on the
// unit sphere. The trace shader uses the same spherical Fibonacci pattern.
func SphereDirection(i, n int) mgl32.Vec3 {
	const goldenAngle = 2.39996323
	z := 1 - (2*float32(i)+1)/float32(n)
	r := math32.Sqrt(math32.Max(0, 1-z*z))
	s, c := math32.Sincos(goldenAngle * float32(i))
	return mgl32.Vec3{r * c, r * s, z}
}
