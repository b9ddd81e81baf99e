package ddgi

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/go-gl/mathgl/mgl32"
)

// State is the lifecycle state of one probe cascade.
type State int

const (
	// StateUninitialized cascades have never been cleared since allocation.
	StateUninitialized State = iota
	// StateCleared cascades hold zeroed probes; their next update ignores history.
	StateCleared
	// StateSteadyState cascades blend new rays into their history.
	StateSteadyState
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCleared:
		return "cleared"
	case StateSteadyState:
		return "steady"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProbeCascade is the probe grid of one cascade. Probe memory never moves:
// the grid follows the viewer by changing which world cell each memory slot
// holds. Logical probe l (0 at the grid minimum) lives in slot
// (l + Scroll) mod Counts.
type ProbeCascade struct {
	Index   int
	Counts  common.Int3
	Spacing float32
	State   State

	// OriginCell is the world cell of logical probe (0,0,0), in Spacing units.
	OriginCell common.Int3
	Scroll     common.Int3
	// ScrollDelta is how many cells the grid moved on its last placement. The
	// slices that entered the grid on that move hold stale probes.
	ScrollDelta common.Int3
	placed      bool
}

// NewProbeCascade creates an uninitialized probe cascade.
//
// Parameters:
//   - index: the cascade index
//   - counts: probes per axis
//   - spacing: the distance between neighboring probes
//
// Returns:
//   - ProbeCascade: the cascade
func NewProbeCascade(index int, counts common.Int3, spacing float32) ProbeCascade {
	return ProbeCascade{Index: index, Counts: counts.Max(common.Splat3(1)), Spacing: spacing}
}

// Place centers the grid on a world position. The first placement sets the
// grid without scrolling.
//
// Parameters:
//   - center: the world position the grid should surround
//
// Returns:
//   - common.Int3: the cells moved since the previous placement
func (c *ProbeCascade) Place(center mgl32.Vec3) common.Int3 {
	half := common.Int3{X: c.Counts.X / 2, Y: c.Counts.Y / 2, Z: c.Counts.Z / 2}
	origin := common.FloorToInt3(center, c.Spacing).Sub(half)
	if !c.placed {
		c.OriginCell = origin
		c.Scroll = origin.Mod(c.Counts)
		c.ScrollDelta = common.Int3{}
		c.placed = true
		return common.Int3{}
	}
	delta := origin.Sub(c.OriginCell)
	c.Scroll = c.Scroll.Add(delta).Mod(c.Counts)
	c.OriginCell = origin
	c.ScrollDelta = delta
	return delta
}

// Wrapped reports whether the last placement moved the grid by a full grid
// size or more on some axis, leaving no probe valid.
func (c *ProbeCascade) Wrapped() bool {
	for i := range 3 {
		d := c.ScrollDelta.Get(i)
		if d < 0 {
			d = -d
		}
		if d >= c.Counts.Get(i) {
			return true
		}
	}
	return false
}

// Origin returns the world position of logical probe (0,0,0).
func (c *ProbeCascade) Origin() mgl32.Vec3 {
	return c.OriginCell.Vec3().Mul(c.Spacing)
}

// Slot returns the memory slot of a logical probe.
func (c *ProbeCascade) Slot(logical common.Int3) common.Int3 {
	return logical.Add(c.Scroll).Mod(c.Counts)
}

// Logical returns the logical probe stored in a memory slot.
func (c *ProbeCascade) Logical(slot common.Int3) common.Int3 {
	return slot.Sub(c.Scroll).Mod(c.Counts)
}

// ProbePosition returns the world position of the probe stored in a slot,
// before relocation.
func (c *ProbeCascade) ProbePosition(slot common.Int3) mgl32.Vec3 {
	return c.OriginCell.Add(c.Logical(slot)).Vec3().Mul(c.Spacing)
}

// Stale reports whether the probe stored in a slot entered the grid on the
// last placement and must be reset.
func (c *ProbeCascade) Stale(slot common.Int3) bool {
	if c.Wrapped() {
		return true
	}
	l := c.Logical(slot)
	for i := range 3 {
		d, li, n := c.ScrollDelta.Get(i), l.Get(i), c.Counts.Get(i)
		if d > 0 && li >= n-d {
			return true
		}
		if d < 0 && li < -d {
			return true
		}
	}
	return false
}

// Bounds returns the world box spanned by the probe positions.
func (c *ProbeCascade) Bounds() common.BoundingBox {
	lo := c.Origin()
	return common.NewBoundingBox(lo, lo.Add(c.Counts.Sub(common.Splat3(1)).Vec3().Mul(c.Spacing)))
}

// ProbeCount returns the number of probes in the cascade.
func (c *ProbeCascade) ProbeCount() int {
	return c.Counts.Volume()
}
