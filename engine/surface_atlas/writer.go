package surface_atlas

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// seenObject is one atlas registration collected during a walk.
type seenObject struct {
	actor scene.Actor
	desc  scene.AtlasObjectDesc
}

// atlasWriter is the VolumeWriter of the atlas walk. Distance field calls are
// ignored; atlas objects are collected for Render.
type atlasWriter struct {
	mu   sync.Mutex
	seen map[uint64]seenObject
}

var _ scene.VolumeWriter = &atlasWriter{}

func newAtlasWriter() *atlasWriter {
	return &atlasWriter{seen: make(map[uint64]seenObject)}
}

func (w *atlasWriter) RasterizeModelSDF(scene.Actor, *scene.ModelSDF, mgl32.Mat4, common.OrientedBox) {
}

func (w *atlasWriter) RasterizeHeightfield(scene.Actor, *scene.Heightfield, mgl32.Mat4, common.BoundingBox) {
}

func (w *atlasWriter) RasterizeAtlasObject(a scene.Actor, desc scene.AtlasObjectDesc) {
	if desc.Draw == nil {
		return
	}
	w.mu.Lock()
	w.seen[a.ID()] = seenObject{actor: a, desc: desc}
	w.mu.Unlock()
}

// take returns the collected objects and empties the writer.
func (w *atlasWriter) take() map[uint64]seenObject {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.seen
	w.seen = make(map[uint64]seenObject, len(out))
	return out
}

// atlasTile is one face of an object placed in the atlas.
type atlasTile struct {
	handle Handle
	// rect includes the padding border.
	rect Rect
	res  int
}

func (t *atlasTile) live() bool {
	return t.handle.Valid()
}

// inner returns the rectangle the tile camera renders into.
func (t *atlasTile) inner() Rect {
	return t.rect.Inset(TilePadding)
}

// atlasObject is the atlas state of one actor.
type atlasObject struct {
	id          uint64
	index       uint32
	actor       scene.Actor
	box         common.OrientedBox
	draw        func(ctx gpu.Context, view, proj mgl32.Mat4)
	tiles       [FaceCount]atlasTile
	lastSeen    uint64
	lastUpdated uint64
	hash        uint32

	// dirty forces a geometry capture; lightingDirty only reshades.
	dirty         bool
	lightingDirty bool
	captured      bool
}

func (o *atlasObject) tileCount() int {
	n := 0
	for i := range o.tiles {
		if o.tiles[i].live() {
			n++
		}
	}
	return n
}

// redrawInterval returns the capture cadence of a static object.
func redrawInterval(a scene.Actor, static, lightmapped uint64) uint64 {
	if a.Lightmapped() {
		return lightmapped
	}
	return static
}

// dueForRedraw reports whether a static object is scheduled this frame. The
// per-object hash spreads objects with the same interval over different frames.
func dueForRedraw(frame uint64, hash uint32, interval uint64) bool {
	if interval <= 1 {
		return true
	}
	return (frame+uint64(hash))%interval == 0
}
