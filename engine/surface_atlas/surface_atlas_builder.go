package surface_atlas

// SurfaceAtlasBuilderOption configures the surface atlas pass.
type SurfaceAtlasBuilderOption func(*surfaceAtlas)

// WithResolution sets the atlas edge length in texels. The atlas is halved
// at allocation time until it fits the device.
//
// Parameters:
//   - res: the edge length, default 4096
//
// Returns:
//   - SurfaceAtlasBuilderOption: a function that applies the resolution
func WithResolution(res int) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		s.resolution = max(res, 64)
	}
}

// WithTilePolicy replaces the tile resolution policy.
//
// Parameters:
//   - p: the policy, default DefaultTilePolicy
//
// Returns:
//   - SurfaceAtlasBuilderOption: a function that applies the policy
func WithTilePolicy(p TilePolicy) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		p.Align = max(p.Align, 1)
		p.MinSize = max(p.MinSize, 1)
		p.MaxSize = max(p.MaxSize, p.MinSize)
		s.policy = p
	}
}

// WithTexelsPerUnit sets the tile resolution per world unit at full quality.
func WithTexelsPerUnit(v float32) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		s.policy.TexelsPerUnit = max(v, 0)
	}
}

// WithDefragPolicy replaces the defragmentation policy.
//
// Parameters:
//   - p: the policy, default DefaultDefragPolicy
//
// Returns:
//   - SurfaceAtlasBuilderOption: a function that applies the policy
func WithDefragPolicy(p DefragPolicy) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		s.defrag = p
	}
}

// WithRedrawIntervals sets how often static objects are recaptured.
//
// Parameters:
//   - static: frames between captures of static objects, default 10
//   - lightmapped: frames between captures of lightmapped objects, default 200
//
// Returns:
//   - SurfaceAtlasBuilderOption: a function that applies the intervals
func WithRedrawIntervals(static, lightmapped uint64) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		s.staticInterval = max(static, 1)
		s.lightmapInterval = max(lightmapped, 1)
	}
}

// WithNearOffset sets how far outside the box the tile cameras sit.
func WithNearOffset(v float32) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		s.nearOffset = max(v, 0)
	}
}

// WithMinObjectRadius skips actors with a smaller bounding radius during the walk.
func WithMinObjectRadius(r float32) SurfaceAtlasBuilderOption {
	return func(s *surfaceAtlas) {
		s.minObjectRadius = max(r, 0)
	}
}
