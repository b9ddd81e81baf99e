package ddgi

import (
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestRandomRotationIsOrthonormal(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		m := RandomRotation(rng).Mat3()
		require.True(t, m.Transpose().Mul3(m).ApproxEqualThreshold(mgl32.Ident3(), 1e-4))
		require.InDelta(t, 1, m.Det(), 1e-4)
	}
}

func TestRandomRotationChangesEveryUpdate(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a, b := RandomRotation(rng), RandomRotation(rng)
	require.False(t, a.ApproxEqualThreshold(b, 1e-3))
}

func TestSphereDirectionsAreUnitAndBalanced(t *testing.T) {
	const n = 256
	var sum mgl32.Vec3
	for i := range n {
		d := SphereDirection(i, n)
		require.InDelta(t, 1, d.Len(), 1e-4)
		sum = sum.Add(d)
	}
	require.Less(t, sum.Len()/n, float32(0.02))
}
