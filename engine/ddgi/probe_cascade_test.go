package ddgi

import (
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func forEachSlot(c *ProbeCascade, fn func(slot common.Int3)) {
	for z := range c.Counts.Z {
		for y := range c.Counts.Y {
			for x := range c.Counts.X {
				fn(common.Int3{X: x, Y: y, Z: z})
			}
		}
	}
}

func TestProbeCascadeScrollMatchesDirectPlacement(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	counts := common.Int3{X: 6, Y: 3, Z: 5}
	const spacing = 2.5

	incremental := NewProbeCascade(0, counts, spacing)
	center := mgl32.Vec3{1, 2, 3}
	incremental.Place(center)
	for range 500 {
		center = center.Add(mgl32.Vec3{
			(rng.Float32() - 0.5) * 40,
			(rng.Float32() - 0.5) * 10,
			(rng.Float32() - 0.5) * 40,
		})
		incremental.Place(center)

		direct := NewProbeCascade(0, counts, spacing)
		direct.Place(center)
		require.Equal(t, direct.OriginCell, incremental.OriginCell)
		require.Equal(t, direct.Scroll, incremental.Scroll)

		forEachSlot(&incremental, func(slot common.Int3) {
			logical := incremental.Logical(slot)
			require.Equal(t, slot, incremental.Slot(logical))
			want := direct.OriginCell.Add(logical).Vec3().Mul(spacing)
			require.Equal(t, want, incremental.ProbePosition(slot))
		})
	}
}

func TestProbeCascadeStaleSlices(t *testing.T) {
	c := NewProbeCascade(0, common.Splat3(4), 1)
	c.Place(mgl32.Vec3{0.5, 0.5, 0.5})

	stale := func() int {
		n := 0
		forEachSlot(&c, func(slot common.Int3) {
			if c.Stale(slot) {
				n++
			}
		})
		return n
	}
	require.Zero(t, stale())

	c.Place(mgl32.Vec3{1.5, 0.5, 0.5})
	require.Equal(t, common.Int3{X: 1}, c.ScrollDelta)
	require.Equal(t, 16, stale())
	forEachSlot(&c, func(slot common.Int3) {
		require.Equal(t, c.Logical(slot).X == 3, c.Stale(slot))
	})

	c.Place(mgl32.Vec3{1.5, -1.5, 0.5})
	require.Equal(t, common.Int3{Y: -2}, c.ScrollDelta)
	require.Equal(t, 32, stale())

	c.Place(mgl32.Vec3{2.5, -3.5, 0.5})
	require.Equal(t, 64-3*2*4, stale())
	require.False(t, c.Wrapped())
}

func TestProbeCascadeWrapResetsEverySlot(t *testing.T) {
	c := NewProbeCascade(1, common.Splat3(4), 2)
	c.Place(mgl32.Vec3{})
	c.Place(mgl32.Vec3{-8, 0, 0})
	require.True(t, c.Wrapped())
	forEachSlot(&c, func(slot common.Int3) {
		require.True(t, c.Stale(slot))
	})
}

func TestProbeCascadeBounds(t *testing.T) {
	c := NewProbeCascade(0, common.Int3{X: 4, Y: 2, Z: 4}, 10)
	c.Place(mgl32.Vec3{5, 5, 5})
	require.Equal(t, common.Int3{X: -2, Y: -1, Z: -2}, c.OriginCell)
	require.Equal(t, mgl32.Vec3{-20, -10, -20}, c.Bounds().Min)
	require.Equal(t, mgl32.Vec3{10, 0, 10}, c.Bounds().Max)
	require.Equal(t, 32, c.ProbeCount())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "uninitialized", StateUninitialized.String())
	require.Equal(t, "cleared", StateCleared.String())
	require.Equal(t, "steady", StateSteadyState.String())
	require.Equal(t, "State(9)", State(9).String())
}
