package global_sdf

import "github.com/Carmen-Shannon/oxy-gi/engine/cascade"

// GlobalSDFBuilderOption is a function that configures the pass during construction.
type GlobalSDFBuilderOption func(*globalSDF)

// WithSoftObjectCap sets how many distinct objects one frame may rasterize
// before newly seen objects are deferred. Defaults to 4096.
//
// Parameters:
//   - n: the object cap
//
// Returns:
//   - GlobalSDFBuilderOption: option function to apply
func WithSoftObjectCap(n int) GlobalSDFBuilderOption {
	return func(g *globalSDF) {
		g.softObjectCap = max(n, 1)
	}
}

// WithMinObjectRadius culls objects whose bounding radius is below this many
// cascade voxels. Defaults to 0.5.
//
// Parameters:
//   - voxels: the radius threshold in voxels
//
// Returns:
//   - GlobalSDFBuilderOption: option function to apply
func WithMinObjectRadius(voxels float32) GlobalSDFBuilderOption {
	return func(g *globalSDF) {
		g.minObjectRadius = max(voxels, 0)
	}
}

// WithMipFloodPasses sets the number of mip flood passes. Even values are
// rounded up. Defaults to 5.
func WithMipFloodPasses(n int) GlobalSDFBuilderOption {
	return func(g *globalSDF) {
		g.floodPasses = n
	}
}

// WithMaxLayers caps the overflow layers of a chunk. Defaults to chunk.DefaultMaxLayers.
func WithMaxLayers(n int) GlobalSDFBuilderOption {
	return func(g *globalSDF) {
		g.maxLayers = max(n, 1)
	}
}

// WithCascadeOptions forwards options to every viewport's cascade manager.
//
// Parameters:
//   - opts: the cascade manager options
//
// Returns:
//   - GlobalSDFBuilderOption: option function to apply
func WithCascadeOptions(opts ...cascade.ManagerBuilderOption) GlobalSDFBuilderOption {
	return func(g *globalSDF) {
		g.cascadeOptions = append(g.cascadeOptions, opts...)
	}
}
