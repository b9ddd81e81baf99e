package surface_atlas

// Rect is an integer rectangle in atlas texels.
type Rect struct {
	X, Y, W, H int
}

// Area returns W*H.
func (r Rect) Area() int {
	return r.W * r.H
}

// Overlaps reports whether two rectangles share at least one texel.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Inset shrinks the rectangle by n texels on every side.
func (r Rect) Inset(n int) Rect {
	return Rect{X: r.X + n, Y: r.Y + n, W: max(r.W-2*n, 0), H: max(r.H-2*n, 0)}
}

// Handle identifies a packed rectangle. Handles of freed rectangles, or of a
// packer that was reset since, are rejected.
type Handle struct {
	index int32
	gen   uint32
}

// Valid reports whether the handle was ever issued.
func (h Handle) Valid() bool {
	return h.gen != 0
}

type packNode struct {
	rect     Rect
	parent   int32
	children [2]int32
	used     bool
	gen      uint32
	live     bool
}

func (n *packNode) leaf() bool {
	return n.children[0] < 0
}

// Packer is a binary space partitioning rectangle packer. Nodes live in a flat
// slice and are recycled through a free list.
type Packer struct {
	width, height int
	nodes         []packNode
	free          []int32
	used          int
}

// NewPacker creates an empty packer covering width x height texels.
//
// Parameters:
//   - width: the atlas width
//   - height: the atlas height
//
// Returns:
//   - *Packer: the packer
func NewPacker(width, height int) *Packer {
	p := &Packer{width: width, height: height}
	p.Reset()
	return p
}

// Reset frees every rectangle and invalidates every issued handle.
func (p *Packer) Reset() {
	for i := range p.nodes {
		p.nodes[i].gen++
		p.nodes[i].live = false
	}
	p.free = p.free[:0]
	for i := len(p.nodes) - 1; i > 0; i-- {
		p.free = append(p.free, int32(i))
	}
	if len(p.nodes) == 0 {
		p.nodes = append(p.nodes, packNode{gen: 1})
	}
	root := &p.nodes[0]
	*root = packNode{
		rect:     Rect{W: p.width, H: p.height},
		parent:   -1,
		children: [2]int32{-1, -1},
		gen:      root.gen + 1,
		live:     true,
	}
	p.used = 0
}

func (p *Packer) alloc(rect Rect, parent int32) int32 {
	var idx int32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = int32(len(p.nodes))
		p.nodes = append(p.nodes, packNode{})
	}
	node := &p.nodes[idx]
	*node = packNode{
		rect:     rect,
		parent:   parent,
		children: [2]int32{-1, -1},
		gen:      node.gen + 1,
		live:     true,
	}
	return idx
}

func (p *Packer) release(idx int32) {
	p.nodes[idx].live = false
	p.nodes[idx].gen++
	p.free = append(p.free, idx)
}

// Insert packs a w x h rectangle.
//
// Parameters:
//   - w: the width in texels
//   - h: the height in texels
//
// Returns:
//   - Handle: the handle of the packed rectangle
//   - Rect: the rectangle
//   - bool: false if no free region fits
func (p *Packer) Insert(w, h int) (Handle, Rect, bool) {
	if w <= 0 || h <= 0 {
		return Handle{}, Rect{}, false
	}
	idx := p.insert(0, w, h)
	if idx < 0 {
		return Handle{}, Rect{}, false
	}
	n := &p.nodes[idx]
	p.used += n.rect.Area()
	return Handle{index: idx, gen: n.gen}, n.rect, true
}

func (p *Packer) insert(idx int32, w, h int) int32 {
	n := &p.nodes[idx]
	if !n.leaf() {
		if r := p.insert(n.children[0], w, h); r >= 0 {
			return r
		}
		return p.insert(p.nodes[idx].children[1], w, h)
	}
	if n.used || w > n.rect.W || h > n.rect.H {
		return -1
	}
	if w == n.rect.W && h == n.rect.H {
		n.used = true
		return idx
	}

	r := n.rect
	var a, b Rect
	if r.W-w > r.H-h {
		a = Rect{X: r.X, Y: r.Y, W: w, H: r.H}
		b = Rect{X: r.X + w, Y: r.Y, W: r.W - w, H: r.H}
	} else {
		a = Rect{X: r.X, Y: r.Y, W: r.W, H: h}
		b = Rect{X: r.X, Y: r.Y + h, W: r.W, H: r.H - h}
	}
	c0 := p.alloc(a, idx)
	c1 := p.alloc(b, idx)
	p.nodes[idx].children = [2]int32{c0, c1}
	return p.insert(c0, w, h)
}

// Free returns a rectangle to the packer and merges empty siblings.
//
// Parameters:
//   - h: the handle from Insert
//
// Returns:
//   - bool: false if the handle is stale
func (p *Packer) Free(h Handle) bool {
	if !p.owns(h) {
		return false
	}
	n := &p.nodes[h.index]
	n.used = false
	p.used -= n.rect.Area()
	// Any later lookup of this handle must fail even if the node is reused.
	n.gen++

	idx := n.parent
	for idx >= 0 {
		parent := &p.nodes[idx]
		c0, c1 := &p.nodes[parent.children[0]], &p.nodes[parent.children[1]]
		if !c0.leaf() || !c1.leaf() || c0.used || c1.used {
			break
		}
		p.release(parent.children[0])
		p.release(parent.children[1])
		parent.children = [2]int32{-1, -1}
		idx = parent.parent
	}
	return true
}

func (p *Packer) owns(h Handle) bool {
	if h.index < 0 || int(h.index) >= len(p.nodes) {
		return false
	}
	n := &p.nodes[h.index]
	return n.live && n.used && n.gen == h.gen
}

// Rect returns the rectangle of a live handle.
func (p *Packer) Rect(h Handle) (Rect, bool) {
	if !p.owns(h) {
		return Rect{}, false
	}
	return p.nodes[h.index].rect, true
}

// UsedPixels returns the number of texels covered by live rectangles.
func (p *Packer) UsedPixels() int {
	return p.used
}

// TotalPixels returns the atlas area.
func (p *Packer) TotalPixels() int {
	return p.width * p.height
}
