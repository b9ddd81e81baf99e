package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// Scene is the spatial index the GI passes walk. Actor lists are grouped by
// category; every mutation of static content is announced to listeners.
type Scene interface {
	// Name returns the scene name.
	Name() string

	// Actors returns a snapshot of one category's actor list.
	//
	// Parameters:
	//   - cat: the category
	//
	// Returns:
	//   - []Actor: the actors, safe to keep across frames
	Actors(cat Category) []Actor

	// Count returns the number of actors across all categories.
	Count() int

	// Get returns an actor by ID.
	//
	// Parameters:
	//   - id: the actor ID
	//
	// Returns:
	//   - Actor: the actor, or nil
	Get(id uint64) Actor

	// AddActor inserts an actor and notifies listeners.
	//
	// Parameters:
	//   - a: the actor to add
	AddActor(a Actor)

	// MoveActor announces that an actor's bounds changed.
	//
	// Parameters:
	//   - a: the actor, already moved
	//   - prevBox: the bounds before the move
	MoveActor(a Actor, prevBox common.BoundingBox)

	// RemoveActor removes an actor and notifies listeners.
	//
	// Parameters:
	//   - a: the actor to remove
	RemoveActor(a Actor)

	// Lights returns a snapshot of the scene lights.
	Lights() []light.Light

	// AddLight inserts a light and notifies listeners.
	AddLight(l light.Light)

	// UpdateLight applies an edit to a light and notifies listeners with the
	// influence it had before the edit.
	//
	// Parameters:
	//   - l: the light
	//   - edit: mutates the light
	UpdateLight(l light.Light, edit func(light.Light))

	// RemoveLight removes a light and notifies listeners.
	RemoveLight(l light.Light)

	// AmbientColor returns the scene ambient color.
	AmbientColor() mgl32.Vec3

	// SetTextureResidency records a streaming change of a distance field and
	// notifies listeners.
	//
	// Parameters:
	//   - sdf: the distance field
	//   - mips: the number of resident mips
	SetTextureResidency(sdf *ModelSDF, mips int)

	// Subscribe registers a change listener.
	//
	// Parameters:
	//   - l: the listener
	//
	// Returns:
	//   - func(): unsubscribes the listener
	Subscribe(l Listener) func()
}

type actorSlot struct {
	cat   Category
	index int
}

type scene struct {
	mu sync.RWMutex

	name         string
	ambientColor mgl32.Vec3

	actors   [CategoryCount][]Actor
	registry map[uint64]actorSlot
	lights   []light.Light

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int
}

var _ Scene = &scene{}

// NewScene creates an empty in-memory Scene.
//
// Parameters:
//   - name: the scene name
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		name:         name,
		ambientColor: mgl32.Vec3{0.03, 0.03, 0.03},
		registry:     make(map[uint64]actorSlot),
		listeners:    make(map[int]Listener),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Actors(cat Category) []Actor {
	if cat < 0 || cat >= CategoryCount {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Actor, len(s.actors[cat]))
	copy(out, s.actors[cat])
	return out
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) Get(id uint64) Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.registry[id]
	if !ok {
		return nil
	}
	return s.actors[slot.cat][slot.index]
}

func (s *scene) AddActor(a Actor) {
	if a == nil {
		panic("scene: AddActor requires a non-nil Actor")
	}
	if !s.insert(a) {
		return
	}
	s.notify(func(l Listener) { l.OnActorAdded(a) })
}

// insert adds the actor to its category list. Returns false for duplicates.
func (s *scene) insert(a Actor) bool {
	cat := a.Category()
	if cat < 0 || cat >= CategoryCount {
		cat = CategoryGeometry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registry[a.ID()]; ok {
		return false
	}
	s.registry[a.ID()] = actorSlot{cat: cat, index: len(s.actors[cat])}
	s.actors[cat] = append(s.actors[cat], a)
	return true
}

func (s *scene) MoveActor(a Actor, prevBox common.BoundingBox) {
	s.mu.RLock()
	_, ok := s.registry[a.ID()]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.notify(func(l Listener) { l.OnActorMoved(a, prevBox) })
}

func (s *scene) RemoveActor(a Actor) {
	s.mu.Lock()
	slot, ok := s.registry[a.ID()]
	if !ok {
		s.mu.Unlock()
		return
	}
	list := s.actors[slot.cat]
	last := len(list) - 1
	if slot.index != last {
		moved := list[last]
		list[slot.index] = moved
		s.registry[moved.ID()] = slot
	}
	list[last] = nil
	s.actors[slot.cat] = list[:last]
	delete(s.registry, a.ID())
	s.mu.Unlock()

	s.notify(func(l Listener) { l.OnActorRemoved(a) })
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]light.Light, len(s.lights))
	copy(out, s.lights)
	return out
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		panic("scene: AddLight requires a non-nil Light")
	}
	s.mu.Lock()
	s.lights = append(s.lights, l)
	s.mu.Unlock()
	s.notify(func(ls Listener) { ls.OnLightChanged(l, common.BoundingSphere{Radius: -1}) })
}

func (s *scene) UpdateLight(l light.Light, edit func(light.Light)) {
	prev := l.Influence()
	edit(l)
	s.notify(func(ls Listener) { ls.OnLightChanged(l, prev) })
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	found := false
	for i, cur := range s.lights {
		if cur.ID() == l.ID() {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return
	}
	prev := l.Influence()
	s.notify(func(ls Listener) { ls.OnLightChanged(l, prev) })
}

func (s *scene) AmbientColor() mgl32.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ambientColor
}

func (s *scene) SetTextureResidency(sdf *ModelSDF, mips int) {
	mips = max(min(mips, sdf.MipLevels), 0)
	if int(sdf.residentMips.Swap(int32(mips))) == mips {
		return
	}
	s.notify(func(l Listener) { l.OnTextureResidencyChanged(sdf) })
}

func (s *scene) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *scene) notify(fn func(Listener)) {
	s.listenersMu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.listenersMu.RUnlock()
	for _, l := range ls {
		fn(l)
	}
}
