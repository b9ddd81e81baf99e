package scene

import (
	"github.com/Carmen-Shannon/oxy-gi/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActors adds initial actors to the scene. No notifications are sent for them.
//
// Parameters:
//   - actors: the actors to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActors(actors ...Actor) SceneBuilderOption {
	return func(s *scene) {
		for _, a := range actors {
			s.insert(a)
		}
	}
}

// WithLights adds initial lights to the scene.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		s.lights = append(s.lights, lights...)
	}
}

// WithAmbientColor sets the scene ambient color.
//
// Parameters:
//   - c: the ambient color
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAmbientColor(c mgl32.Vec3) SceneBuilderOption {
	return func(s *scene) {
		s.ambientColor = c
	}
}
