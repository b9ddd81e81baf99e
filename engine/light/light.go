package light

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Its influence covers the whole scene.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position,
	// attenuating to zero at its range.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	LightTypeSpot
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu         sync.RWMutex
	id         uuid.UUID
	lightType  LightType
	position   mgl32.Vec3
	direction  mgl32.Vec3
	color      mgl32.Vec3
	intensity  float32
	lightRange float32
	innerCone  float32 // stored as cos(angle in radians)
	outerCone  float32 // stored as cos(angle in radians)
	enabled    bool
}

// Light defines the interface for a light source in the scene.
//
// The surface atlas shades tiles with every enabled light whose influence
// intersects the object, so changes to position, range or enablement must go
// through the scene to reach the atlas.
type Light interface {
	// ID returns the stable identity of the light.
	//
	// Returns:
	//   - uuid.UUID: the light ID
	ID() uuid.UUID

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type (directional, point, or spot)
	Type() LightType

	// Position returns the world-space position of the light.
	// Meaningless for directional lights.
	//
	// Returns:
	//   - mgl32.Vec3: the position
	Position() mgl32.Vec3

	// Direction returns the normalized direction of the light.
	// For spot lights this is the cone axis. Meaningless for point lights.
	//
	// Returns:
	//   - mgl32.Vec3: the normalized direction
	Direction() mgl32.Vec3

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - mgl32.Vec3: color as (r, g, b)
	Color() mgl32.Vec3

	// Intensity returns the scalar intensity multiplier for the light.
	//
	// Returns:
	//   - float32: the intensity value
	Intensity() float32

	// Range returns the maximum attenuation distance for point and spot lights.
	//
	// Returns:
	//   - float32: the range value
	Range() float32

	// InnerCone returns the cosine of the inner cone half-angle for spot lights.
	//
	// Returns:
	//   - float32: cos(inner half-angle)
	InnerCone() float32

	// OuterCone returns the cosine of the outer cone half-angle for spot lights.
	//
	// Returns:
	//   - float32: cos(outer half-angle)
	OuterCone() float32

	// Enabled returns whether this light is active for rendering.
	//
	// Returns:
	//   - bool: true if the light is enabled
	Enabled() bool

	// Influence returns the bounding sphere of everything the light can reach.
	// Directional lights return an unbounded sphere. Disabled lights return an
	// empty sphere so they intersect nothing.
	//
	// Returns:
	//   - common.BoundingSphere: the influence volume
	Influence() common.BoundingSphere

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - p: the position
	SetPosition(p mgl32.Vec3)

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - d: the direction (will be normalized)
	SetDirection(d mgl32.Vec3)

	// SetColor sets the RGB color of the light.
	//
	// Parameters:
	//   - c: the color
	SetColor(c mgl32.Vec3)

	// SetIntensity sets the scalar intensity multiplier.
	//
	// Parameters:
	//   - intensity: the intensity value
	SetIntensity(intensity float32)

	// SetRange sets the maximum attenuation distance.
	//
	// Parameters:
	//   - lightRange: the range value
	SetRange(lightRange float32)

	// SetSpotCone sets the inner and outer cone half-angles for spot lights.
	//
	// Parameters:
	//   - innerDeg: inner cone half-angle in degrees
	//   - outerDeg: outer cone half-angle in degrees
	SetSpotCone(innerDeg, outerDeg float32)

	// SetEnabled enables or disables the light for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// GPU returns the GPU representation of the light.
	//
	// Returns:
	//   - GPULight: the marshalable light
	GPU() GPULight
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied.
//
// Parameters:
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		id:         uuid.New(),
		lightType:  lightType,
		direction:  mgl32.Vec3{0, -1, 0},
		color:      mgl32.Vec3{1, 1, 1},
		intensity:  1.0,
		lightRange: 10.0,
		innerCone:  0.9063, // cos(25°)
		outerCone:  0.8192, // cos(35°)
		enabled:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) ID() uuid.UUID {
	return l.id
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Position() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

func (l *lightImpl) Direction() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.direction
}

func (l *lightImpl) Color() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intensity
}

func (l *lightImpl) Range() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lightRange
}

func (l *lightImpl) InnerCone() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.innerCone
}

func (l *lightImpl) OuterCone() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.outerCone
}

func (l *lightImpl) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

func (l *lightImpl) Influence() common.BoundingSphere {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.enabled {
		return common.BoundingSphere{Radius: -1}
	}
	if l.lightType == LightTypeDirectional {
		return common.BoundingSphere{Radius: math32.MaxFloat32}
	}
	// The spot cone is bounded conservatively by its range sphere.
	return common.BoundingSphere{Center: l.position, Radius: l.lightRange}
}

func (l *lightImpl) SetPosition(p mgl32.Vec3) {
	l.mu.Lock()
	l.position = p
	l.mu.Unlock()
}

func (l *lightImpl) SetDirection(d mgl32.Vec3) {
	l.mu.Lock()
	l.direction = normalize(d)
	l.mu.Unlock()
}

func (l *lightImpl) SetColor(c mgl32.Vec3) {
	l.mu.Lock()
	l.color = c
	l.mu.Unlock()
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.mu.Lock()
	l.intensity = intensity
	l.mu.Unlock()
}

func (l *lightImpl) SetRange(lightRange float32) {
	l.mu.Lock()
	l.lightRange = lightRange
	l.mu.Unlock()
}

func (l *lightImpl) SetSpotCone(innerDeg, outerDeg float32) {
	l.mu.Lock()
	l.innerCone = cosDeg(innerDeg)
	l.outerCone = cosDeg(outerDeg)
	l.mu.Unlock()
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

func (l *lightImpl) GPU() GPULight {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return GPULight{
		Position:   l.position,
		LightType:  uint32(l.lightType),
		Color:      l.color,
		Intensity:  l.intensity,
		Direction:  l.direction,
		LightRange: l.lightRange,
		InnerCone:  l.innerCone,
		OuterCone:  l.outerCone,
	}
}
