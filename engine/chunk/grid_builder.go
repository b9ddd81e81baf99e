package chunk

// GridBuilderOption is a functional option for configuring a Grid.
type GridBuilderOption func(g *grid, shards *int)

// WithMaxLayers caps how many overflow layers one chunk can spill into.
// Defaults to 8.
//
// Parameters:
//   - layers: the layer cap, at least 1
//
// Returns:
//   - GridBuilderOption: option function to apply
func WithMaxLayers(layers int) GridBuilderOption {
	return func(g *grid, _ *int) {
		g.maxLayers = int32(max(layers, 1))
	}
}

// WithShards sets the number of lock shards, rounded up to a power of two.
// Defaults to 64.
func WithShards(n int) GridBuilderOption {
	return func(_ *grid, shards *int) {
		*shards = max(n, 1)
	}
}
