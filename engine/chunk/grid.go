package chunk

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-gi/common"
)

type shard struct {
	mu       sync.Mutex
	index    map[Key]int32
	chunks   []Chunk
	deferred map[common.Int3]struct{}
}

type grid struct {
	shards    []shard
	mask      uint32
	maxLayers int32
	dropped   atomic.Uint64
}

// Grid is the per-cascade chunk hash grid rebuilt by every scene walk.
// Inserts are safe for concurrent use; every layer of a coordinate lives in
// the same shard so spilling into overflow layers is atomic per coordinate.
type Grid interface {
	// Reset drops every chunk, keeping the arenas for reuse.
	Reset()

	// AddModel appends an object to the first layer of a chunk with a free
	// model slot.
	//
	// Parameters:
	//   - coord: the chunk coordinate
	//   - object: the object table index
	//   - dynamic: true if the contributing actor is not static
	//
	// Returns:
	//   - bool: false if every overflow layer was full and the entry was dropped
	AddModel(coord common.Int3, object uint32, dynamic bool) bool

	// AddHeightfield appends a heightfield to the first layer of a chunk with a
	// free heightfield slot.
	//
	// Parameters:
	//   - coord: the chunk coordinate
	//   - object: the object table index
	//   - dynamic: true if the contributing actor is not static
	//
	// Returns:
	//   - bool: false if the entry was dropped
	AddHeightfield(coord common.Int3, object uint32, dynamic bool) bool

	// MarkDeferred records that a deferred object touches a chunk so the chunk
	// is not cached as static.
	MarkDeferred(coord common.Int3)

	// Deferred reports whether a deferred object touches a chunk.
	Deferred(coord common.Int3) bool

	// Layers returns copies of every layer of a chunk, layer 0 first.
	//
	// Parameters:
	//   - coord: the chunk coordinate
	//
	// Returns:
	//   - []Chunk: the layers, empty if the chunk is absent
	Layers(coord common.Int3) []Chunk

	// Dynamic reports whether any layer of a chunk has a dynamic contributor.
	Dynamic(coord common.Int3) bool

	// Coords returns every non-empty chunk coordinate in a stable order.
	Coords() []common.Int3

	// Len returns the number of chunk layers.
	Len() int

	// Dropped returns how many inserts were dropped since the last Reset.
	Dropped() uint64
}

var _ Grid = &grid{}

// NewGrid creates an empty Grid.
//
// Parameters:
//   - opts: variadic GridBuilderOption functions
//
// Returns:
//   - Grid: the chunk grid
func NewGrid(opts ...GridBuilderOption) Grid {
	g := &grid{maxLayers: DefaultMaxLayers}
	shards := 64
	for _, opt := range opts {
		opt(g, &shards)
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	g.shards = make([]shard, n)
	g.mask = uint32(n - 1)
	for i := range g.shards {
		g.shards[i].index = make(map[Key]int32)
		g.shards[i].deferred = make(map[common.Int3]struct{})
	}
	return g
}

func (g *grid) shardFor(coord common.Int3) *shard {
	return &g.shards[Key{Coord: coord}.Hash()&g.mask]
}

func (g *grid) Reset() {
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		clear(s.index)
		clear(s.deferred)
		s.chunks = s.chunks[:0]
		s.mu.Unlock()
	}
	g.dropped.Store(0)
}

func (g *grid) AddModel(coord common.Int3, object uint32, dynamic bool) bool {
	return g.add(coord, dynamic, func(c *Chunk) bool {
		if c.ModelCount == ModelsPerChunk {
			return false
		}
		c.Models[c.ModelCount] = object
		c.ModelCount++
		return true
	})
}

func (g *grid) AddHeightfield(coord common.Int3, object uint32, dynamic bool) bool {
	return g.add(coord, dynamic, func(c *Chunk) bool {
		if c.HeightfieldCount == HeightfieldsPerChunk {
			return false
		}
		c.Heightfields[c.HeightfieldCount] = object
		c.HeightfieldCount++
		return true
	})
}

func (g *grid) add(coord common.Int3, dynamic bool, put func(*Chunk) bool) bool {
	s := g.shardFor(coord)
	s.mu.Lock()
	defer s.mu.Unlock()
	for layer := int32(0); layer < g.maxLayers; layer++ {
		key := Key{Coord: coord, Layer: layer}
		idx, ok := s.index[key]
		if !ok {
			idx = int32(len(s.chunks))
			s.chunks = append(s.chunks, Chunk{})
			s.index[key] = idx
		}
		c := &s.chunks[idx]
		if put(c) {
			c.Dynamic = c.Dynamic || dynamic
			return true
		}
	}
	g.dropped.Add(1)
	return false
}

func (g *grid) MarkDeferred(coord common.Int3) {
	s := g.shardFor(coord)
	s.mu.Lock()
	s.deferred[coord] = struct{}{}
	s.mu.Unlock()
}

func (g *grid) Deferred(coord common.Int3) bool {
	s := g.shardFor(coord)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deferred[coord]
	return ok
}

func (g *grid) Layers(coord common.Int3) []Chunk {
	s := g.shardFor(coord)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Chunk
	for layer := int32(0); layer < g.maxLayers; layer++ {
		idx, ok := s.index[Key{Coord: coord, Layer: layer}]
		if !ok {
			break
		}
		out = append(out, s.chunks[idx])
	}
	return out
}

func (g *grid) Dynamic(coord common.Int3) bool {
	for _, c := range g.Layers(coord) {
		if c.Dynamic {
			return true
		}
	}
	return false
}

func (g *grid) Coords() []common.Int3 {
	var out []common.Int3
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for k := range s.index {
			if k.Layer == 0 {
				out = append(out, k.Coord)
			}
		}
		s.mu.Unlock()
	}
	slices.SortFunc(out, compareCoords)
	return out
}

func compareCoords(a, b common.Int3) int {
	switch {
	case a.Z != b.Z:
		return int(a.Z) - int(b.Z)
	case a.Y != b.Y:
		return int(a.Y) - int(b.Y)
	default:
		return int(a.X) - int(b.X)
	}
}

func (g *grid) Len() int {
	n := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		n += len(s.index)
		s.mu.Unlock()
	}
	return n
}

func (g *grid) Dropped() uint64 {
	return g.dropped.Load()
}
