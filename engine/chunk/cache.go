package chunk

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
)

// Plan is the GPU work a dirty cascade needs after a scene walk.
type Plan struct {
	// Clear lists chunks that held data last update and are empty now.
	Clear []common.Int3
	// Rasterize lists chunks that must be written.
	Rasterize []common.Int3
	// Skipped counts static chunks reused from the cache.
	Skipped int
}

// Cache persists chunk state of one cascade across updates: which chunks are
// cached as static and which were non-empty when last written.
type Cache struct {
	static    map[common.Int3]struct{}
	nonEmpty  map[common.Int3]struct{}
	chunkSize float32
	margin    float32
	bounds    common.BoundingBox
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		static:   make(map[common.Int3]struct{}),
		nonEmpty: make(map[common.Int3]struct{}),
	}
}

// SetCascade records the cascade geometry used by Invalidate. A change of
// chunk size empties the cache.
//
// Parameters:
//   - cas: the cascade the cache belongs to
func (c *Cache) SetCascade(cas cascade.Cascade) {
	if cas.ChunkSize != c.chunkSize {
		c.Clear()
	}
	c.chunkSize = cas.ChunkSize
	c.margin = cas.Margin()
	c.bounds = cas.Bounds()
}

// Clear forgets every cached chunk.
func (c *Cache) Clear() {
	clear(c.static)
	clear(c.nonEmpty)
}

// IsStatic reports whether a chunk is cached as static.
func (c *Cache) IsStatic(coord common.Int3) bool {
	_, ok := c.static[coord]
	return ok
}

// StaticCount returns the number of cached static chunks.
func (c *Cache) StaticCount() int {
	return len(c.static)
}

// Plan diffs this update's grid against the cache. Dynamic chunks are always
// rasterized and never cached; static chunks are rasterized once and then
// skipped until invalidated; chunks that disappeared are cleared and evicted.
// The cache is updated to reflect the returned plan.
//
// Parameters:
//   - g: the grid built by this update's walk
//   - reset: true when the whole volume was cleared, which drops the cache and
//     the clear list
//
// Returns:
//   - Plan: the chunks to clear and rasterize
func (c *Cache) Plan(g Grid, reset bool) Plan {
	if reset {
		c.Clear()
	}
	var plan Plan
	coords := g.Coords()
	present := make(map[common.Int3]struct{}, len(coords))
	for _, coord := range coords {
		present[coord] = struct{}{}
		switch {
		case g.Dynamic(coord):
			delete(c.static, coord)
			plan.Rasterize = append(plan.Rasterize, coord)
		case c.IsStatic(coord):
			plan.Skipped++
		default:
			plan.Rasterize = append(plan.Rasterize, coord)
			if !g.Deferred(coord) {
				c.static[coord] = struct{}{}
			}
		}
	}
	for coord := range c.nonEmpty {
		if _, ok := present[coord]; ok {
			continue
		}
		plan.Clear = append(plan.Clear, coord)
		delete(c.static, coord)
	}
	slices.SortFunc(plan.Clear, compareCoords)
	c.nonEmpty = present
	return plan
}

// Invalidate evicts every static chunk whose footprint intersects a box.
//
// Parameters:
//   - box: the world-space bounds that changed
//
// Returns:
//   - int: the number of evicted chunks
func (c *Cache) Invalidate(box common.BoundingBox) int {
	if c.chunkSize <= 0 || len(c.static) == 0 {
		return 0
	}
	grown := box.Expand(c.margin)
	if !grown.Intersects(c.bounds) {
		return 0
	}
	lo, hi := coordRange(grown.Clamp(c.bounds), c.chunkSize)
	evicted := 0
	ForEach(lo, hi, func(coord common.Int3) {
		if _, ok := c.static[coord]; ok {
			delete(c.static, coord)
			evicted++
		}
	})
	return evicted
}
