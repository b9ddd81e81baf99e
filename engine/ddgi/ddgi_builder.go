package ddgi

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
)

// DDGIBuilderOption is a function that configures the pass during construction.
type DDGIBuilderOption func(*ddgi)

// WithHistoryWeight sets the temporal blend weight of previous irradiance.
// Values are clamped to [0, MaxHistoryWeight]. Defaults to 0.97.
//
// Parameters:
//   - w: the history weight
//
// Returns:
//   - DDGIBuilderOption: option function to apply
func WithHistoryWeight(w float32) DDGIBuilderOption {
	return func(d *ddgi) {
		d.historyWeight = max(0, min(w, MaxHistoryWeight))
	}
}

// WithRaysPerProbe fixes the rays traced per probe update. Zero picks the
// count by quality. Values are capped at MaxRaysPerProbe.
//
// Parameters:
//   - n: the ray count
//
// Returns:
//   - DDGIBuilderOption: option function to apply
func WithRaysPerProbe(n int) DDGIBuilderOption {
	return func(d *ddgi) {
		d.raysPerProbe = max(0, min(n, MaxRaysPerProbe))
	}
}

// WithProbeCounts fixes the per-axis probe counts of every cascade instead of
// picking them by quality.
func WithProbeCounts(counts common.Int3) DDGIBuilderOption {
	return func(d *ddgi) {
		d.probeCounts = counts.Max(common.Splat3(1))
	}
}

// WithSeed seeds the random ray rotations.
func WithSeed(seed uint64) DDGIBuilderOption {
	return func(d *ddgi) {
		d.seed = seed
	}
}

// WithCascadeOptions forwards options to every viewport's cascade manager,
// after the probe volume defaults.
//
// Parameters:
//   - opts: the cascade manager options
//
// Returns:
//   - DDGIBuilderOption: option function to apply
func WithCascadeOptions(opts ...cascade.ManagerBuilderOption) DDGIBuilderOption {
	return func(d *ddgi) {
		d.cascadeOptions = append(d.cascadeOptions, opts...)
	}
}
