package light

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithPosition is an option builder that sets the world-space position of the light.
//
// Parameters:
//   - p: the position
//
// Returns:
//   - LightBuilderOption: a function that applies the position option to a lightImpl
func WithPosition(p mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = p
	}
}

// WithDirection is an option builder that sets the direction of the light.
// The direction is normalized before storing.
//
// Parameters:
//   - d: the direction
//
// Returns:
//   - LightBuilderOption: a function that applies the direction option to a lightImpl
func WithDirection(d mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		l.direction = normalize(d)
	}
}

// WithColor is an option builder that sets the RGB color of the light.
//
// Parameters:
//   - c: the color
//
// Returns:
//   - LightBuilderOption: a function that applies the color option to a lightImpl
func WithColor(c mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		l.color = c
	}
}

// WithIntensity is an option builder that sets the scalar intensity multiplier.
//
// Parameters:
//   - intensity: the intensity value
//
// Returns:
//   - LightBuilderOption: a function that applies the intensity option to a lightImpl
func WithIntensity(intensity float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.intensity = intensity
	}
}

// WithRange is an option builder that sets the maximum attenuation distance for
// point and spot lights.
//
// Parameters:
//   - lightRange: the range value
//
// Returns:
//   - LightBuilderOption: a function that applies the range option to a lightImpl
func WithRange(lightRange float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.lightRange = lightRange
	}
}

// WithSpotCone is an option builder that sets the inner and outer cone half-angles
// for spot lights. Angles are specified in degrees and converted to cosines internally,
// which is the format required by the GPU shader.
//
// Parameters:
//   - innerDeg: inner cone half-angle in degrees
//   - outerDeg: outer cone half-angle in degrees
//
// Returns:
//   - LightBuilderOption: a function that applies the spot cone option to a lightImpl
func WithSpotCone(innerDeg, outerDeg float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.innerCone = cosDeg(innerDeg)
		l.outerCone = cosDeg(outerDeg)
	}
}

// WithEnabled is an option builder that sets whether the light is active for rendering.
//
// Parameters:
//   - enabled: true to enable the light
//
// Returns:
//   - LightBuilderOption: a function that applies the enabled option to a lightImpl
func WithEnabled(enabled bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.enabled = enabled
	}
}

// normalize returns v scaled to unit length, or the zero vector.
func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.LenSqr() == 0 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}

// cosDeg converts an angle in degrees to the cosine of that angle in radians.
func cosDeg(deg float32) float32 {
	return math32.Cos(mgl32.DegToRad(deg))
}
