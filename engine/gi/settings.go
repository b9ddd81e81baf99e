package gi

import (
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/go-gl/mathgl/mgl32"
)

// Settings are the live GI settings of one render target set. They are read
// every frame so a consumer can change them at any time; a change of quality
// or distance reallocates the affected resources.
type Settings struct {
	Quality cascade.Quality
	// Distance is how far from the viewer the distance field and atlas reach.
	Distance float32
	// Spreading updates each cascade on its own cadence instead of every frame.
	Spreading bool

	SDFEnabled   bool
	AtlasEnabled bool
	DDGIEnabled  bool

	// BounceIntensity scales the probe irradiance fed back into the atlas.
	BounceIntensity float32
	LayerMask       uint32
	// Sky is the radiance of probe rays that leave the scene.
	Sky mgl32.Vec3
}

// DefaultSettings returns every pass enabled at medium quality.
//
// Returns:
//   - Settings: the default settings
func DefaultSettings() Settings {
	return Settings{
		Quality:         cascade.QualityMedium,
		Distance:        2000,
		Spreading:       true,
		SDFEnabled:      true,
		AtlasEnabled:    true,
		DDGIEnabled:     true,
		BounceIntensity: 1,
		LayerMask:       ^uint32(0),
		Sky:             mgl32.Vec3{0.2, 0.25, 0.3},
	}
}

// atlasQuality maps a quality level onto the atlas tile resolution multiplier.
var atlasQuality = [...]float32{0.5, 0.75, 1, 1.25}

func (s Settings) atlasQuality() float32 {
	q := int(s.Quality)
	if q < 0 {
		q = 0
	}
	if q >= len(atlasQuality) {
		q = len(atlasQuality) - 1
	}
	return atlasQuality[q]
}

// changed reports whether moving from s to n alters resource dimensions.
func (s Settings) changed(n Settings) bool {
	return s.Quality != n.Quality || s.Distance != n.Distance
}
