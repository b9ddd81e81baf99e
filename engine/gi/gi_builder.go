package gi

import (
	"github.com/Carmen-Shannon/oxy-gi/engine/ddgi"
	"github.com/Carmen-Shannon/oxy-gi/engine/global_sdf"
	"github.com/Carmen-Shannon/oxy-gi/engine/surface_atlas"
)

type RendererBuilderOption func(*renderer)

// WithGlobalSDFOptions configures the distance field pass.
//
// Parameters:
//   - opts: the distance field builder options
//
// Returns:
//   - RendererBuilderOption: a function that appends the options
func WithGlobalSDFOptions(opts ...global_sdf.GlobalSDFBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.sdfOptions = append(r.sdfOptions, opts...)
	}
}

// WithSurfaceAtlasOptions configures the surface atlas pass.
//
// Parameters:
//   - opts: the surface atlas builder options
//
// Returns:
//   - RendererBuilderOption: a function that appends the options
func WithSurfaceAtlasOptions(opts ...surface_atlas.SurfaceAtlasBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.atlasOptions = append(r.atlasOptions, opts...)
	}
}

// WithDDGIOptions configures the probe volume pass.
//
// Parameters:
//   - opts: the probe volume builder options
//
// Returns:
//   - RendererBuilderOption: a function that appends the options
func WithDDGIOptions(opts ...ddgi.DDGIBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.ddgiOptions = append(r.ddgiOptions, opts...)
	}
}
