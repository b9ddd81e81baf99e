package scene_walk

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/jobs"
	"github.com/Carmen-Shannon/oxy-gi/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// CullParams are snapshotted per target when a walk starts.
type CullParams struct {
	// Origin is the view position distances are measured from.
	Origin mgl32.Vec3
	// Distance rejects actors whose nearest point is farther than this. Zero
	// disables the test.
	Distance float32
	// LayerMask selects actor layers; bit n enables layer n.
	LayerMask uint32
	// MinRadius rejects actors with a smaller bounding radius.
	MinRadius float32
	// Bounds rejects actors that miss the box. An empty box disables the test.
	Bounds common.BoundingBox
}

// Accept reports whether an actor passes the cull tests.
func (p CullParams) Accept(a scene.Actor) bool {
	if p.LayerMask&(1<<(a.Layer()&31)) == 0 {
		return false
	}
	s := a.Bounds()
	if s.Radius < p.MinRadius {
		return false
	}
	if p.Distance > 0 {
		d := s.Center.Sub(p.Origin).Len() - s.Radius
		if d > p.Distance {
			return false
		}
	}
	if !p.Bounds.IsEmpty() && !s.IntersectsBox(p.Bounds) {
		return false
	}
	return true
}

// Target is one volume being built by a walk: a cascade or the surface atlas.
type Target struct {
	Name   string
	Writer scene.VolumeWriter
	Cull   CullParams
}

// Drawing is the handle of a started walk. It must be joined with Wait before
// the writers' results are consumed.
type Drawing struct {
	labels  []*jobs.Label
	visited atomic.Int64
	culled  atomic.Int64
}

// Wait blocks until every task of the walk has finished. A nil Drawing is done.
func (d *Drawing) Wait() {
	if d == nil {
		return
	}
	for _, l := range d.labels {
		l.Wait()
	}
}

// Done reports whether every task of the walk has finished.
func (d *Drawing) Done() bool {
	if d == nil {
		return true
	}
	for _, l := range d.labels {
		if !l.Done() {
			return false
		}
	}
	return true
}

// Labels returns the wait labels of the walk, one per target, for dependent dispatch.
func (d *Drawing) Labels() []*jobs.Label {
	return d.labels
}

// Visited returns how many actors were passed to a writer.
func (d *Drawing) Visited() int {
	return int(d.visited.Load())
}

// Culled returns how many actors were rejected by the cull tests.
func (d *Drawing) Culled() int {
	return int(d.culled.Load())
}

type walker struct {
	sched          jobs.Scheduler
	batchSize      int
	tasksPerTarget int
}

// Walker walks a scene's actor lists in parallel for a set of targets.
type Walker interface {
	// StartDrawing starts a walk and returns immediately. For every target a
	// bounded set of tasks claims batches of actors from per-category atomic
	// cursors and calls ContributeToVolume with the target's writer.
	//
	// Parameters:
	//   - s: the scene to walk
	//   - targets: the volumes being built; each writer only sees its own target
	//
	// Returns:
	//   - *Drawing: the walk handle
	StartDrawing(s scene.Scene, targets []Target) *Drawing
}

var _ Walker = &walker{}

// NewWalker creates a Walker that runs on a job scheduler.
//
// Parameters:
//   - sched: the job scheduler
//   - opts: variadic WalkerBuilderOption functions
//
// Returns:
//   - Walker: the walker
func NewWalker(sched jobs.Scheduler, opts ...WalkerBuilderOption) Walker {
	if sched == nil {
		panic("scene_walk: NewWalker requires a non-nil Scheduler")
	}
	w := &walker{
		sched:          sched,
		batchSize:      32,
		tasksPerTarget: max(sched.Workers(), 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitForDrawing joins a walk started with StartDrawing.
func WaitForDrawing(d *Drawing) {
	d.Wait()
}

type cursorSet struct {
	lists   [scene.CategoryCount][]scene.Actor
	cursors [scene.CategoryCount]atomic.Int64
}

func (w *walker) StartDrawing(s scene.Scene, targets []Target) *Drawing {
	d := &Drawing{}
	if len(targets) == 0 {
		return d
	}
	var lists [scene.CategoryCount][]scene.Actor
	total := 0
	for cat := range scene.CategoryCount {
		lists[cat] = s.Actors(cat)
		total += len(lists[cat])
	}
	tasks := min(w.tasksPerTarget, max(common.CeilDiv(total, w.batchSize), 1))

	for _, target := range targets {
		cs := &cursorSet{lists: lists}
		t := target
		d.labels = append(d.labels, w.sched.Dispatch(func(int) {
			w.drain(d, cs, t)
		}, tasks))
	}
	return d
}

// drain claims batches until every category list is exhausted.
func (w *walker) drain(d *Drawing, cs *cursorSet, t Target) {
	batch := int64(w.batchSize)
	for cat := range scene.CategoryCount {
		list := cs.lists[cat]
		n := int64(len(list))
		for {
			start := cs.cursors[cat].Add(batch) - batch
			if start >= n {
				break
			}
			end := min(start+batch, n)
			for _, a := range list[start:end] {
				if !t.Cull.Accept(a) {
					d.culled.Add(1)
					continue
				}
				d.visited.Add(1)
				a.ContributeToVolume(t.Writer)
			}
		}
	}
}
