package game_object

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithID sets the ID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the ID
func WithID(id uint64) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.id = id
	}
}

// WithEnabled sets whether the GameObject contributes to rendering.
//
// Parameters:
//   - enabled: true to render the object, false to skip it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.enabled.Store(enabled)
	}
}

// WithStatic marks the GameObject as static so its distance field chunks can
// be cached between updates.
//
// Parameters:
//   - static: true for static objects
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the static flag
func WithStatic(static bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.static = static
	}
}

// WithLightmapped marks the GameObject as using baked lighting.
func WithLightmapped(lightmapped bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.lightmapped = lightmapped
	}
}

// WithLayer sets the layer index tested against walk layer masks.
func WithLayer(layer uint32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.layer = layer & 31
	}
}

// WithTransform sets the initial position, rotation and scale.
//
// Parameters:
//   - position: world-space position
//   - rotation: world-space rotation
//   - scale: per-axis scale
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the transform
func WithTransform(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.position = position
		obj.rotation = rotation.Normalize()
		obj.scale = scale
	}
}

// WithModelSDF attaches a model distance field. Its local bounds become the
// object's local bounds.
//
// Parameters:
//   - sdf: the distance field
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the distance field
func WithModelSDF(sdf *scene.ModelSDF) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.sdf = sdf
		if sdf != nil {
			obj.localBounds = sdf.LocalBounds
		}
	}
}

// WithHeightfield attaches a heightfield and moves the object to the terrain category.
//
// Parameters:
//   - hf: the heightfield
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the heightfield
func WithHeightfield(hf *scene.Heightfield) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.heightfield = hf
		if hf != nil {
			obj.localBounds = hf.LocalBounds
		}
	}
}

// WithLocalBounds overrides the model-space bounds.
func WithLocalBounds(b common.BoundingBox) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.localBounds = b
	}
}

// WithSurfaceDraw registers the geometry capture callback used by the surface
// atlas. Objects without one are not captured.
//
// Parameters:
//   - draw: renders the object with the given tile camera
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the capture callback
func WithSurfaceDraw(draw func(ctx gpu.Context, view, proj mgl32.Mat4)) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.draw = draw
	}
}
