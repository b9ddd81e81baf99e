package cascade

// ManagerBuilderOption is a functional option for configuring a Manager.
type ManagerBuilderOption func(*manager)

// WithDistanceScales sets the per-cascade distance table.
//
// Parameters:
//   - scales: the multipliers applied to the base extent
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithDistanceScales(scales DistanceScales) ManagerBuilderOption {
	return func(m *manager) {
		m.scales = scales
	}
}

// WithFrequencies sets the per-cascade update periods. Defaults to {2, 3, 5, 7}.
//
// Parameters:
//   - freqs: update period in frames per cascade slot
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithFrequencies(freqs [MaxCascades]int) ManagerBuilderOption {
	return func(m *manager) {
		for i, f := range freqs {
			m.frequencies[i] = max(f, 1)
		}
	}
}

// WithIdealExtent sets the preferred half size of cascade 0. Defaults to 2500.
func WithIdealExtent(extent float32) ManagerBuilderOption {
	return func(m *manager) {
		if extent > 0 {
			m.idealExtent = extent
		}
	}
}

// WithViewShift sets the fraction of the extent cascades are pushed along the
// view direction. Defaults to 0.4.
func WithViewShift(shift float32) ManagerBuilderOption {
	return func(m *manager) {
		m.viewShift = shift
	}
}
