package gpu

import (
	"sync"
)

// CallKind classifies a recorded command.
type CallKind int

const (
	CallDispatch CallKind = iota
	CallDispatchIndirect
	CallDraw
	CallDrawFullscreen
	CallBindSR
	CallBindUA
	CallBindCB
	CallResetSR
	CallResetUA
	CallSetRenderTarget
	CallSetViewport
	CallClearTexture
	CallClearBuffer
	CallUpdateBuffer
	CallCopyBuffer
	CallReadback
)

// Call is one recorded command.
type Call struct {
	Kind     CallKind
	Frame    uint64
	Program  string
	Groups   [3]uint32
	Slot     int
	Resource string
	Viewport Viewport
	Count    uint32
}

// Recorder is an in-memory Context that records every command instead of
// executing it. Buffers keep their uploaded bytes so readbacks return real data.
// Used for headless runs and tests.
type Recorder struct {
	mu sync.Mutex

	features Features
	limits   Limits

	frame           uint64
	readbackLatency uint64
	nextID          uint64

	calls     []Call
	readbacks map[uint64]pendingReadback

	textures int
	buffers  int
}

type pendingReadback struct {
	frame uint64
	data  []byte
}

var _ Context = &Recorder{}

// NewRecorder creates a Recorder with full feature support and 8K texture limits.
//
// Parameters:
//   - opts: variadic RecorderBuilderOption functions
//
// Returns:
//   - *Recorder: the recorder
func NewRecorder(opts ...RecorderBuilderOption) *Recorder {
	r := &Recorder{
		features: Features{Compute: true, TypedUAVLoad: true, Storage3D: true},
		limits: Limits{
			MaxTextureDimension2D: 8192,
			MaxTextureDimension3D: 2048,
			MaxBufferSize:         1 << 30,
		},
		readbackLatency: 2,
		readbacks:       make(map[uint64]pendingReadback),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type recTexture struct {
	desc TextureDesc
}

func (t *recTexture) Label() string     { return t.desc.Label }
func (t *recTexture) Release()          {}
func (t *recTexture) Desc() TextureDesc { return t.desc }

type recBuffer struct {
	mu   sync.Mutex
	desc BufferDesc
	data []byte
}

func (b *recBuffer) Label() string    { return b.desc.Label }
func (b *recBuffer) Release()         {}
func (b *recBuffer) Desc() BufferDesc { return b.desc }

type recProgram struct {
	key   string
	kind  ProgramKind
	group [3]uint32
}

func (p *recProgram) Key() string              { return p.key }
func (p *recProgram) Kind() ProgramKind        { return p.kind }
func (p *recProgram) WorkgroupSize() [3]uint32 { return p.group }

func (r *Recorder) Features() Features { return r.features }
func (r *Recorder) Limits() Limits     { return r.limits }

func (r *Recorder) Frame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

func (r *Recorder) CreateTexture(desc TextureDesc) (Texture, error) {
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if err := ValidateTexture(desc, r.limits); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.textures++
	r.mu.Unlock()
	return &recTexture{desc: desc}, nil
}

func (r *Recorder) CreateBuffer(desc BufferDesc) (Buffer, error) {
	if desc.Size > r.limits.MaxBufferSize {
		return nil, ErrUnsupported
	}
	r.mu.Lock()
	r.buffers++
	r.mu.Unlock()
	return &recBuffer{desc: desc, data: make([]byte, desc.Size)}, nil
}

func (r *Recorder) CreateProgram(desc ProgramDesc) (Program, error) {
	group := desc.WorkgroupSize
	for i := range group {
		if group[i] == 0 {
			group[i] = 1
		}
	}
	return &recProgram{key: desc.Key, kind: desc.Kind, group: group}, nil
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	c.Frame = r.frame
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func resourceLabel(res Resource) string {
	if res == nil {
		return ""
	}
	return res.Label()
}

func (r *Recorder) BindSR(slot int, res Resource) {
	r.record(Call{Kind: CallBindSR, Slot: slot, Resource: resourceLabel(res)})
}

func (r *Recorder) BindUA(slot int, res Resource) {
	r.record(Call{Kind: CallBindUA, Slot: slot, Resource: resourceLabel(res)})
}

func (r *Recorder) BindCB(slot int, b Buffer) {
	r.record(Call{Kind: CallBindCB, Slot: slot, Resource: resourceLabel(b)})
}

func (r *Recorder) ResetSR() { r.record(Call{Kind: CallResetSR}) }
func (r *Recorder) ResetUA() { r.record(Call{Kind: CallResetUA}) }

func (r *Recorder) Dispatch(p Program, x, y, z uint32) {
	r.record(Call{Kind: CallDispatch, Program: p.Key(), Groups: [3]uint32{x, y, z}})
}

func (r *Recorder) DispatchIndirect(p Program, args Buffer, offset uint64) {
	r.record(Call{Kind: CallDispatchIndirect, Program: p.Key(), Resource: args.Label(), Count: uint32(offset)})
}

func (r *Recorder) SetRenderTarget(depth Texture, colors ...Texture) {
	label := ""
	if len(colors) > 0 {
		label = colors[0].Label()
	} else if depth != nil {
		label = depth.Label()
	}
	r.record(Call{Kind: CallSetRenderTarget, Resource: label, Count: uint32(len(colors))})
}

func (r *Recorder) ResetRenderTarget() {
	r.record(Call{Kind: CallSetRenderTarget})
}

func (r *Recorder) SetViewport(v Viewport) {
	r.record(Call{Kind: CallSetViewport, Viewport: v})
}

func (r *Recorder) DrawFullscreen(p Program) {
	r.record(Call{Kind: CallDrawFullscreen, Program: p.Key(), Count: 3})
}

func (r *Recorder) Draw(p Program, vertices, instances uint32) {
	r.record(Call{Kind: CallDraw, Program: p.Key(), Count: vertices * instances})
}

func (r *Recorder) ClearTexture(t Texture, value [4]float32) {
	r.record(Call{Kind: CallClearTexture, Resource: t.Label()})
}

func (r *Recorder) ClearBuffer(b Buffer) {
	if rb, ok := b.(*recBuffer); ok {
		rb.mu.Lock()
		clear(rb.data)
		rb.mu.Unlock()
	}
	r.record(Call{Kind: CallClearBuffer, Resource: b.Label()})
}

func (r *Recorder) UpdateBuffer(b Buffer, offset uint64, data []byte) {
	if rb, ok := b.(*recBuffer); ok {
		rb.mu.Lock()
		if end := offset + uint64(len(data)); end <= uint64(len(rb.data)) {
			copy(rb.data[offset:end], data)
		}
		rb.mu.Unlock()
	}
	r.record(Call{Kind: CallUpdateBuffer, Resource: b.Label(), Count: uint32(len(data))})
}

func (r *Recorder) CopyBuffer(dst, src Buffer, size uint64) {
	d, okD := dst.(*recBuffer)
	s, okS := src.(*recBuffer)
	if okD && okS && d != s {
		s.mu.Lock()
		d.mu.Lock()
		copy(d.data[:min(size, uint64(len(d.data)))], s.data)
		d.mu.Unlock()
		s.mu.Unlock()
	}
	r.record(Call{Kind: CallCopyBuffer, Resource: dst.Label(), Count: uint32(size)})
}

func (r *Recorder) ReadbackBuffer(b Buffer, size uint64) ReadbackTicket {
	var snapshot []byte
	if rb, ok := b.(*recBuffer); ok {
		rb.mu.Lock()
		snapshot = make([]byte, min(size, uint64(len(rb.data))))
		copy(snapshot, rb.data)
		rb.mu.Unlock()
	}

	r.mu.Lock()
	r.nextID++
	t := ReadbackTicket{ID: r.nextID, Frame: r.frame}
	r.readbacks[t.ID] = pendingReadback{frame: r.frame, data: snapshot}
	r.calls = append(r.calls, Call{Kind: CallReadback, Frame: r.frame, Resource: b.Label(), Count: uint32(size)})
	r.mu.Unlock()
	return t
}

func (r *Recorder) TryRead(t ReadbackTicket) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.readbacks[t.ID]
	if !ok || r.frame < p.frame+r.readbackLatency {
		return nil, false
	}
	return p.data, true
}

func (r *Recorder) Flush() {
	r.mu.Lock()
	r.frame++
	r.mu.Unlock()
}

// Calls returns a copy of every recorded command.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many commands of the given kinds were recorded.
//
// Parameters:
//   - kinds: the kinds to count
//
// Returns:
//   - int: the number of matching commands
func (r *Recorder) Count(kinds ...CallKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		for _, k := range kinds {
			if c.Kind == k {
				n++
				break
			}
		}
	}
	return n
}

// CountProgram returns how many dispatches or draws used the given program key.
func (r *Recorder) CountProgram(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Program == key {
			n++
		}
	}
	return n
}

// GPUWork returns the number of dispatches, draws, clears and copies recorded.
func (r *Recorder) GPUWork() int {
	return r.Count(CallDispatch, CallDispatchIndirect, CallDraw, CallDrawFullscreen,
		CallClearTexture, CallClearBuffer, CallCopyBuffer)
}

// Allocations returns the number of textures and buffers created.
func (r *Recorder) Allocations() (textures, buffers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.textures, r.buffers
}

// Reset forgets every recorded command.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = r.calls[:0]
	r.mu.Unlock()
}

// WriteBuffer overwrites buffer contents as if written by a shader.
//
// Parameters:
//   - b: a buffer created by this recorder
//   - offset: destination byte offset
//   - data: the bytes to write
func (r *Recorder) WriteBuffer(b Buffer, offset uint64, data []byte) {
	rb, ok := b.(*recBuffer)
	if !ok {
		return
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if end := offset + uint64(len(data)); end <= uint64(len(rb.data)) {
		copy(rb.data[offset:end], data)
	}
}
