package scene

import (
	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/light"
)

// Listener receives scene change notifications. Callbacks run synchronously on
// the goroutine making the change and must not call back into the scene.
type Listener interface {
	// OnActorAdded fires after an actor joins the scene.
	OnActorAdded(a Actor)

	// OnActorMoved fires after an actor's bounds changed.
	//
	// Parameters:
	//   - a: the actor, already at its new bounds
	//   - prevBox: the bounds before the change
	OnActorMoved(a Actor, prevBox common.BoundingBox)

	// OnActorRemoved fires after an actor leaves the scene.
	OnActorRemoved(a Actor)

	// OnLightChanged fires when a light is added, edited or removed.
	//
	// Parameters:
	//   - l: the light
	//   - prevInfluence: the influence before the change, empty for added lights
	OnLightChanged(l light.Light, prevInfluence common.BoundingSphere)

	// OnTextureResidencyChanged fires when a model distance field streams mips in or out.
	OnTextureResidencyChanged(sdf *ModelSDF)
}

// ListenerFuncs adapts optional callbacks to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	ActorAdded              func(a Actor)
	ActorMoved              func(a Actor, prevBox common.BoundingBox)
	ActorRemoved            func(a Actor)
	LightChanged            func(l light.Light, prevInfluence common.BoundingSphere)
	TextureResidencyChanged func(sdf *ModelSDF)
}

var _ Listener = ListenerFuncs{}

func (f ListenerFuncs) OnActorAdded(a Actor) {
	if f.ActorAdded != nil {
		f.ActorAdded(a)
	}
}

func (f ListenerFuncs) OnActorMoved(a Actor, prevBox common.BoundingBox) {
	if f.ActorMoved != nil {
		f.ActorMoved(a, prevBox)
	}
}

func (f ListenerFuncs) OnActorRemoved(a Actor) {
	if f.ActorRemoved != nil {
		f.ActorRemoved(a)
	}
}

func (f ListenerFuncs) OnLightChanged(l light.Light, prevInfluence common.BoundingSphere) {
	if f.LightChanged != nil {
		f.LightChanged(l, prevInfluence)
	}
}

func (f ListenerFuncs) OnTextureResidencyChanged(sdf *ModelSDF) {
	if f.TextureResidencyChanged != nil {
		f.TextureResidencyChanged(sdf)
	}
}
