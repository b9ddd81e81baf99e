package global_sdf

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/Carmen-Shannon/oxy-gi/engine/chunk"
	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

type objectKey struct {
	actor uint64
	kind  uint32
}

// objectTable collects the objects rasterized in one frame. Actors admitted on
// an earlier frame are always accepted; newly seen actors are deferred once the
// table holds softCap objects.
type objectTable struct {
	mu       sync.Mutex
	softCap  int
	index    map[objectKey]uint32
	objects  []GPUObject
	textures []gpu.Texture
	known    map[uint64]struct{}
	deferred map[uint64]struct{}

	// sdfBoxes remembers where each distance field was rasterized so a
	// residency change can evict the chunks it touched.
	sdfBoxes map[uint64]map[uint64]common.BoundingBox
}

func newObjectTable(softCap int) *objectTable {
	return &objectTable{
		softCap:  softCap,
		index:    make(map[objectKey]uint32),
		known:    make(map[uint64]struct{}),
		deferred: make(map[uint64]struct{}),
		sdfBoxes: make(map[uint64]map[uint64]common.BoundingBox),
	}
}

// begin empties the per-frame table.
func (t *objectTable) begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.index)
	clear(t.deferred)
	t.objects = t.objects[:0]
	t.textures = t.textures[:0]
}

// add admits an object and returns its index in the object buffer.
func (t *objectTable) add(actor uint64, kind uint32, obj GPUObject, tex gpu.Texture) (uint32, bool) {
	key := objectKey{actor: actor, kind: kind}
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.index[key]; ok {
		return idx, true
	}
	if _, seen := t.known[actor]; !seen && len(t.objects) >= t.softCap {
		t.deferred[actor] = struct{}{}
		return 0, false
	}
	idx := uint32(len(t.objects))
	t.objects = append(t.objects, obj)
	t.textures = append(t.textures, tex)
	t.index[key] = idx
	t.known[actor] = struct{}{}
	return idx, true
}

func (t *objectTable) markDeferred(actor uint64) {
	t.mu.Lock()
	t.deferred[actor] = struct{}{}
	t.mu.Unlock()
}

func (t *objectTable) recordSDF(sdf *scene.ModelSDF, actor uint64, box common.BoundingBox) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.sdfBoxes[sdf.ID()]
	if !ok {
		m = make(map[uint64]common.BoundingBox)
		t.sdfBoxes[sdf.ID()] = m
	}
	m[actor] = box
}

// boxesOf returns every box a distance field was rasterized at.
func (t *objectTable) boxesOf(sdf *scene.ModelSDF) []common.BoundingBox {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]common.BoundingBox, 0, len(t.sdfBoxes[sdf.ID()]))
	for _, b := range t.sdfBoxes[sdf.ID()] {
		out = append(out, b)
	}
	return out
}

// forget drops an actor that left the scene.
func (t *objectTable) forget(actor uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.known, actor)
	for _, m := range t.sdfBoxes {
		delete(m, actor)
	}
}

func (t *objectTable) texture(idx uint32) gpu.Texture {
	if int(idx) >= len(t.textures) {
		return nil
	}
	return t.textures[idx]
}

func (t *objectTable) marshal() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, 0, len(t.objects)*96)
	for i := range t.objects {
		out = append(out, t.objects[i].Marshal()...)
	}
	return out
}

func (t *objectTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objects)
}

func (t *objectTable) deferredCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deferred)
}

// cascadeWriter is the VolumeWriter bound to one cascade during a walk.
type cascadeWriter struct {
	cascade cascade.Cascade
	grid    chunk.Grid
	objects *objectTable
}

var _ scene.VolumeWriter = &cascadeWriter{}

// volumeTransform maps world positions into the [0,1] texture space of a box
// given in the local space of localToWorld.
func volumeTransform(local common.BoundingBox, localToWorld mgl32.Mat4) mgl32.Mat4 {
	size := local.Size()
	inv := mgl32.Vec3{1 / max(size[0], 1e-6), 1 / max(size[1], 1e-6), 1 / max(size[2], 1e-6)}
	toUnit := mgl32.Scale3D(inv[0], inv[1], inv[2]).Mul4(mgl32.Translate3D(-local.Min[0], -local.Min[1], -local.Min[2]))
	return toUnit.Mul4(localToWorld.Inv())
}

func (w *cascadeWriter) deferFootprint(lo, hi common.Int3) {
	chunk.ForEach(lo, hi, w.grid.MarkDeferred)
}

func (w *cascadeWriter) RasterizeModelSDF(a scene.Actor, sdf *scene.ModelSDF, localToWorld mgl32.Mat4, box common.OrientedBox) {
	bounds := box.Bounds()
	lo, hi, ok := chunk.Footprint(bounds, w.cascade)
	if !ok {
		return
	}
	w.objects.recordSDF(sdf, a.ID(), bounds)

	resident := sdf.ResidentMips()
	if resident <= 0 {
		w.objects.markDeferred(a.ID())
		w.deferFootprint(lo, hi)
		return
	}
	sx, sy, sz := mgl32.Extract3DScale(localToWorld)
	obj := GPUObject{
		WorldToVolume: volumeTransform(sdf.LocalBounds, localToWorld),
		Extents:       box.Extents,
		DecodeScale:   sdf.MaxDistance * max(sx, sy, sz),
		Kind:          ObjectModel,
		MipBias:       float32(sdf.MipLevels - resident),
	}
	idx, admitted := w.objects.add(a.ID(), ObjectModel, obj, sdf.Texture)
	if !admitted {
		w.deferFootprint(lo, hi)
		return
	}
	dynamic := !a.IsStatic()
	chunk.ForEach(lo, hi, func(c common.Int3) {
		w.grid.AddModel(c, idx, dynamic)
	})
}

func (w *cascadeWriter) RasterizeHeightfield(a scene.Actor, hf *scene.Heightfield, localToWorld mgl32.Mat4, bounds common.BoundingBox) {
	lo, hi, ok := chunk.Footprint(bounds, w.cascade)
	if !ok {
		return
	}
	obj := GPUObject{
		WorldToVolume: volumeTransform(hf.LocalBounds, localToWorld),
		Extents:       bounds.Extents(),
		DecodeScale:   1,
		Kind:          ObjectHeightfield,
		HeightScale:   hf.HeightScale,
	}
	idx, admitted := w.objects.add(a.ID(), ObjectHeightfield, obj, hf.Texture)
	if !admitted {
		w.deferFootprint(lo, hi)
		return
	}
	dynamic := !a.IsStatic()
	chunk.ForEach(lo, hi, func(c common.Int3) {
		w.grid.AddHeightfield(c, idx, dynamic)
	})
}

func (w *cascadeWriter) RasterizeAtlasObject(scene.Actor, scene.AtlasObjectDesc) {}
