package surface_atlas

// DefragPolicy holds the tuned constants of the defragmentation decision.
type DefragPolicy struct {
	// UsageThreshold is the used-texel ratio below which a fragmented atlas is repacked.
	UsageThreshold float64
	// NoFailFrames is how many frames must pass after the last insert failure.
	NoFailFrames uint64
	// Cooldown is the minimum number of frames between defragmentations.
	Cooldown uint64
}

// DefaultDefragPolicy repacks below 80% usage, 10 frames after the last failure
// and at most every 60 frames.
var DefaultDefragPolicy = DefragPolicy{UsageThreshold: 0.8, NoFailFrames: 10, Cooldown: 60}

// Allocator wraps a Packer with the bookkeeping that drives defragmentation.
type Allocator struct {
	packer *Packer
	policy DefragPolicy

	failed      bool
	lastFail    uint64
	lastDefrag  uint64
	failures    uint64
	defragCount uint64
}

// NewAllocator creates an allocator for a square atlas.
//
// Parameters:
//   - resolution: the atlas edge length in texels
//   - policy: the defragmentation policy
//
// Returns:
//   - *Allocator: the allocator
func NewAllocator(resolution int, policy DefragPolicy) *Allocator {
	return &Allocator{packer: NewPacker(resolution, resolution), policy: policy}
}

// Insert packs a rectangle and records a failure timestamp when nothing fits.
//
// Parameters:
//   - w: the width in texels
//   - h: the height in texels
//   - frame: the current frame
//
// Returns:
//   - Handle: the packed rectangle handle
//   - Rect: the rectangle
//   - bool: false if the atlas is full
func (a *Allocator) Insert(w, h int, frame uint64) (Handle, Rect, bool) {
	handle, rect, ok := a.packer.Insert(w, h)
	if !ok {
		a.failed = true
		a.lastFail = frame
		a.failures++
	}
	return handle, rect, ok
}

// Free returns a rectangle to the atlas.
func (a *Allocator) Free(h Handle) {
	a.packer.Free(h)
}

// Rect returns the rectangle of a live handle.
func (a *Allocator) Rect(h Handle) (Rect, bool) {
	return a.packer.Rect(h)
}

// Resolution returns the atlas edge length in texels.
func (a *Allocator) Resolution() int {
	return a.packer.width
}

// Reset frees every rectangle without counting a defragmentation.
func (a *Allocator) Reset() {
	a.packer.Reset()
}

// Usage returns the used-texel ratio.
func (a *Allocator) Usage() float64 {
	return float64(a.packer.UsedPixels()) / float64(a.packer.TotalPixels())
}

// Failures returns the total number of failed inserts.
func (a *Allocator) Failures() uint64 {
	return a.failures
}

// Defragmentations returns how many times the atlas was repacked.
func (a *Allocator) Defragmentations() uint64 {
	return a.defragCount
}

// ShouldDefragment reports whether the atlas should be repacked. The atlas
// must have stayed failure-free for NoFailFrames, Cooldown frames must have
// passed since the last repack and usage must be below the threshold. An empty
// atlas is never repacked.
//
// Parameters:
//   - frame: the current frame
//
// Returns:
//   - bool: true if Defragment should run this frame
func (a *Allocator) ShouldDefragment(frame uint64) bool {
	if a.failed && frame < a.lastFail+a.policy.NoFailFrames {
		return false
	}
	if frame < a.lastDefrag+a.policy.Cooldown {
		return false
	}
	usage := a.Usage()
	return usage > 0 && usage < a.policy.UsageThreshold
}

// Defragment frees every rectangle. Callers re-insert their live tiles.
//
// Parameters:
//   - frame: the current frame
func (a *Allocator) Defragment(frame uint64) {
	a.packer.Reset()
	a.lastDefrag = frame
	a.defragCount++
}
