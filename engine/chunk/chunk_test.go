package chunk

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/common"
	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// testCascade has 100-unit chunks, 8 per axis, centered on the origin.
func testCascade() cascade.Cascade {
	return cascade.NewCascade(0, mgl32.Vec3{}, 400, 256, 2)
}

func TestRoundTripEightChunks(t *testing.T) {
	c := testCascade()
	require.InDelta(t, 100, c.ChunkSize, 1e-4)

	g := NewGrid()
	box := common.NewBoundingBox(mgl32.Vec3{-50, -50, -50}, mgl32.Vec3{50, 50, 50})
	lo, hi, ok := Footprint(box, c)
	require.True(t, ok)
	ForEach(lo, hi, func(coord common.Int3) { g.AddModel(coord, 7, false) })

	var want []common.Int3
	for _, z := range []int32{-1, 0} {
		for _, y := range []int32{-1, 0} {
			for _, x := range []int32{-1, 0} {
				want = append(want, common.Int3{X: x, Y: y, Z: z})
			}
		}
	}
	require.Equal(t, want, g.Coords())
	for _, coord := range want {
		layers := g.Layers(coord)
		require.Len(t, layers, 1)
		require.Equal(t, 1, layers[0].ModelCount)
		require.Equal(t, uint32(7), layers[0].Models[0])
	}
}

func TestFootprintContainment(t *testing.T) {
	c := testCascade()
	rng := rand.New(rand.NewPCG(1, 2))
	limits := c.Bounds()
	for range 500 {
		center := mgl32.Vec3{rng.Float32()*1000 - 500, rng.Float32()*1000 - 500, rng.Float32()*1000 - 500}
		ext := mgl32.Vec3{rng.Float32()*150 + 1, rng.Float32()*150 + 1, rng.Float32()*150 + 1}
		box := common.BoxFromCenter(center, ext)

		lo, hi, ok := Footprint(box, c)
		grown := box.Expand(c.Margin())
		if !ok {
			require.False(t, grown.Overlaps(limits))
			continue
		}
		clamped := grown.Clamp(limits)
		for z := int32(-6); z < 6; z++ {
			for y := int32(-6); y < 6; y++ {
				for x := int32(-6); x < 6; x++ {
					coord := common.Int3{X: x, Y: y, Z: z}
					inside := x >= lo.X && x <= hi.X && y >= lo.Y && y <= hi.Y && z >= lo.Z && z <= hi.Z
					overlaps := Box(coord, c.ChunkSize).Overlaps(clamped)
					require.Equal(t, overlaps, inside, "box %v coord %v", box, coord)
				}
			}
		}
	}
}

func TestFootprintMissesCascade(t *testing.T) {
	c := testCascade()
	_, _, ok := Footprint(common.NewBoundingBox(mgl32.Vec3{900, 0, 0}, mgl32.Vec3{950, 10, 10}), c)
	require.False(t, ok)
}

func TestFootprintFaceTouchingBoxes(t *testing.T) {
	c := testCascade()
	margin := c.Margin()
	tests := []struct {
		name string
		axis int
		sign float32
	}{
		{"+X", 0, 1}, {"-X", 0, -1},
		{"+Y", 1, 1}, {"-Y", 1, -1},
		{"+Z", 2, 1}, {"-Z", 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// near is how far the grown box reaches past the face, negative
			// when it stops short of it.
			box := func(near float32) common.BoundingBox {
				b := common.NewBoundingBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{10, 10, 10})
				inner := tt.sign * (400 + margin - near)
				outer := tt.sign * (420 + margin)
				b.Min[tt.axis] = min(inner, outer)
				b.Max[tt.axis] = max(inner, outer)
				return b
			}

			_, _, ok := Footprint(box(0), c)
			require.False(t, ok)

			lo, hi, ok := Footprint(box(1), c)
			require.True(t, ok)
			want := int32(3)
			if tt.sign < 0 {
				want = -4
			}
			require.Equal(t, want, lo.Get(tt.axis))
			require.Equal(t, want, hi.Get(tt.axis))
		})
	}
}

func TestTextureCoordWraps(t *testing.T) {
	require.Equal(t, common.Int3{X: 7, Y: 0, Z: 1}, TextureCoord(common.Int3{X: -1, Y: 8, Z: 17}, 8))
}

func TestOverflowLayers(t *testing.T) {
	g := NewGrid(WithMaxLayers(2))
	coord := common.Int3{}
	for i := range ModelsPerChunk*2 + 3 {
		added := g.AddModel(coord, uint32(i), i == ModelsPerChunk+1)
		require.Equal(t, i < ModelsPerChunk*2, added)
	}
	require.Equal(t, uint64(3), g.Dropped())

	layers := g.Layers(coord)
	require.Len(t, layers, 2)
	require.False(t, layers[0].Dynamic)
	require.True(t, layers[1].Dynamic)
	require.True(t, g.Dynamic(coord))
	require.Equal(t, uint32(ModelsPerChunk), layers[1].Models[0])

	require.True(t, g.AddHeightfield(coord, 99, false))
	require.Equal(t, 1, g.Layers(coord)[0].HeightfieldCount)

	g.Reset()
	require.Zero(t, g.Len())
	require.Zero(t, g.Dropped())
	require.Empty(t, g.Coords())
}

func TestConcurrentInsert(t *testing.T) {
	g := NewGrid(WithShards(4), WithMaxLayers(64))
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				g.AddModel(common.Int3{X: int32(i % 5)}, uint32(w*1000+i), false)
			}
		}()
	}
	wg.Wait()

	total := 0
	seen := make(map[uint32]bool)
	for _, coord := range g.Coords() {
		for _, layer := range g.Layers(coord) {
			for _, m := range layer.Models[:layer.ModelCount] {
				require.False(t, seen[m])
				seen[m] = true
				total++
			}
		}
	}
	require.Equal(t, 1600, total)
	require.Zero(t, g.Dropped())
}

func TestCachePlan(t *testing.T) {
	c := testCascade()
	cache := NewCache()
	cache.SetCascade(c)
	g := NewGrid()

	a := common.Int3{X: 0}
	b := common.Int3{X: 1}
	d := common.Int3{X: 2}
	g.AddModel(a, 0, false)
	g.AddModel(b, 1, true)
	g.AddModel(d, 2, false)
	g.MarkDeferred(d)

	plan := cache.Plan(g, true)
	require.Equal(t, []common.Int3{a, b, d}, plan.Rasterize)
	require.Empty(t, plan.Clear)
	require.True(t, cache.IsStatic(a))
	require.False(t, cache.IsStatic(b))
	require.False(t, cache.IsStatic(d))

	// same content: static chunk skipped, dynamic rasterized again, d now cacheable
	g.Reset()
	g.AddModel(a, 0, false)
	g.AddModel(b, 1, true)
	g.AddModel(d, 2, false)
	plan = cache.Plan(g, false)
	require.Equal(t, 1, plan.Skipped)
	require.Equal(t, []common.Int3{b, d}, plan.Rasterize)
	require.True(t, cache.IsStatic(d))

	// a disappears: cleared and evicted
	g.Reset()
	g.AddModel(b, 1, true)
	g.AddModel(d, 2, false)
	plan = cache.Plan(g, false)
	require.Equal(t, []common.Int3{a}, plan.Clear)
	require.False(t, cache.IsStatic(a))

	// on reset nothing is cleared and every chunk is rasterized again
	plan = cache.Plan(g, true)
	require.Empty(t, plan.Clear)
	require.Equal(t, []common.Int3{b, d}, plan.Rasterize)
}

func TestCacheInvalidate(t *testing.T) {
	c := testCascade()
	cache := NewCache()
	cache.SetCascade(c)
	g := NewGrid()
	for x := int32(-4); x < 4; x++ {
		g.AddModel(common.Int3{X: x}, uint32(x+4), false)
	}
	cache.Plan(g, true)
	require.Equal(t, 8, cache.StaticCount())

	// a box inside chunk 1 grown by the 12.5 margin stays in chunk 1
	evicted := cache.Invalidate(common.NewBoundingBox(mgl32.Vec3{140, 10, 10}, mgl32.Vec3{160, 20, 20}))
	require.Equal(t, 1, evicted)
	require.False(t, cache.IsStatic(common.Int3{X: 1}))
	require.True(t, cache.IsStatic(common.Int3{X: 0}))

	// near a boundary the margin reaches the neighbor
	evicted = cache.Invalidate(common.NewBoundingBox(mgl32.Vec3{-90, 10, 10}, mgl32.Vec3{-20, 20, 20}))
	require.Equal(t, 2, evicted)

	require.Zero(t, cache.Invalidate(common.NewBoundingBox(mgl32.Vec3{5000, 0, 0}, mgl32.Vec3{5001, 1, 1})))

	plan := cache.Plan(g, false)
	require.Len(t, plan.Rasterize, 3)
	require.Equal(t, 5, plan.Skipped)
}
