package content

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-gi/engine/jobs"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
)

var (
	// ErrNotFound is returned when a shader path does not exist in the content file system.
	ErrNotFound = errors.New("content: asset not found")

	// ErrClosed is returned for loads requested after the manager was closed.
	ErrClosed = errors.New("content: manager closed")
)

// ShaderAsset is a shader source loaded asynchronously. Every accessor is safe to
// call from any goroutine; the parsed fields are only meaningful once IsLoaded
// reports true.
type ShaderAsset struct {
	path string
	refs atomic.Int32

	loaded  atomic.Bool
	version atomic.Uint64

	mu            sync.RWMutex
	source        string
	entryPoint    string
	vertexEntry   string
	fragmentEntry string
	workgroupSize [3]uint32
	writesDepth   bool
	err           error

	listenersMu  sync.Mutex
	listeners    map[int]func(*ShaderAsset)
	nextListener int
}

// Path returns the asset path inside the content file system.
func (a *ShaderAsset) Path() string { return a.path }

// IsLoaded reports whether the source has been read and parsed successfully.
func (a *ShaderAsset) IsLoaded() bool { return a.loaded.Load() }

// Version increments every time the asset finishes loading. Programs built from
// an older version must be rebuilt.
func (a *ShaderAsset) Version() uint64 { return a.version.Load() }

// Err returns the last load error, if any.
func (a *ShaderAsset) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Source returns the WGSL source with includes expanded.
func (a *ShaderAsset) Source() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.source
}

// EntryPoint returns the @compute entry point name.
func (a *ShaderAsset) EntryPoint() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entryPoint
}

// VertexEntry returns the @vertex entry point name.
func (a *ShaderAsset) VertexEntry() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.vertexEntry
}

// FragmentEntry returns the @fragment entry point name.
func (a *ShaderAsset) FragmentEntry() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fragmentEntry
}

// WorkgroupSize returns the compute workgroup size declared by the shader.
func (a *ShaderAsset) WorkgroupSize() [3]uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workgroupSize
}

// WritesDepth reports whether the fragment stage writes frag_depth.
func (a *ShaderAsset) WritesDepth() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writesDepth
}

// OnReloading registers a callback fired before the asset starts reloading.
//
// Parameters:
//   - fn: the callback, receives the asset
//
// Returns:
//   - func(): unsubscribes the callback
func (a *ShaderAsset) OnReloading(fn func(*ShaderAsset)) func() {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	if a.listeners == nil {
		a.listeners = make(map[int]func(*ShaderAsset))
	}
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	return func() {
		a.listenersMu.Lock()
		delete(a.listeners, id)
		a.listenersMu.Unlock()
	}
}

func (a *ShaderAsset) notifyReloading() {
	a.listenersMu.Lock()
	fns := make([]func(*ShaderAsset), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.listenersMu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

// Manager loads shader assets asynchronously and caches them by path.
type Manager interface {
	// LoadAsync returns the asset for a path, starting a background load on first
	// request. Each call adds a reference that must be returned with Release.
	//
	// Parameters:
	//   - path: the asset path inside the content file system
	//
	// Returns:
	//   - *ShaderAsset: the (possibly still loading) asset
	LoadAsync(path string) *ShaderAsset

	// Reload notifies reload subscribers and loads the asset again. The asset
	// reports not loaded until the new load finishes.
	//
	// Parameters:
	//   - path: the asset path
	//
	// Returns:
	//   - error: ErrNotFound if the asset was never requested, ErrClosed after Close
	Reload(path string) error

	// Release drops one reference. The asset is evicted when no references remain.
	//
	// Parameters:
	//   - a: the asset to release
	Release(a *ShaderAsset)

	// Wait blocks until every load started so far has finished.
	Wait()

	// Close stops accepting loads.
	Close()
}

type manager struct {
	mu       sync.Mutex
	fsys     fs.FS
	jobs     jobs.Scheduler
	ownJobs  bool
	includes map[string]string
	assets   map[string]*ShaderAsset
	pending  []*jobs.Label
	closed   bool
}

var _ Manager = &manager{}

// NewManager creates a shader Manager reading from fsys.
//
// Parameters:
//   - fsys: the content file system
//   - opts: variadic ManagerBuilderOption functions
//
// Returns:
//   - Manager: the content manager
func NewManager(fsys fs.FS, opts ...ManagerBuilderOption) Manager {
	if fsys == nil {
		panic("content: nil file system")
	}
	m := &manager{
		fsys:     fsys,
		includes: make(map[string]string),
		assets:   make(map[string]*ShaderAsset),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.jobs == nil {
		m.jobs = jobs.NewScheduler(jobs.WithWorkers(1))
		m.ownJobs = true
	}
	return m
}

func (m *manager) LoadAsync(path string) *ShaderAsset {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.assets[path]; ok {
		a.refs.Add(1)
		return a
	}
	a := &ShaderAsset{path: path}
	a.refs.Store(1)
	m.assets[path] = a
	if m.closed {
		a.mu.Lock()
		a.err = ErrClosed
		a.mu.Unlock()
		return a
	}
	m.startLoad(a)
	return a
}

// startLoad dispatches a load job. Caller holds m.mu.
func (m *manager) startLoad(a *ShaderAsset) {
	l := m.jobs.Dispatch(func(int) { m.load(a) }, 1)
	m.pending = append(m.pending, l)
}

func (m *manager) load(a *ShaderAsset) {
	log := logger.Component("content")

	raw, err := fs.ReadFile(m.fsys, a.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%s: %w", a.path, ErrNotFound)
		} else {
			err = fmt.Errorf("failed to read %s: %w", a.path, err)
		}
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
		log.Warn("shader load failed", "path", a.path, "err", err)
		return
	}

	m.mu.Lock()
	includes := m.includes
	m.mu.Unlock()

	src, err := expandIncludes(string(raw), includes)
	if err != nil {
		a.mu.Lock()
		a.err = fmt.Errorf("failed to preprocess %s: %w", a.path, err)
		a.mu.Unlock()
		log.Warn("shader preprocess failed", "path", a.path, "err", err)
		return
	}

	cleaned := stripComments(src)
	a.mu.Lock()
	a.source = src
	a.entryPoint = parseEntry(cleaned, computeEntryRegex)
	a.vertexEntry = parseEntry(cleaned, vertexEntryRegex)
	a.fragmentEntry = parseEntry(cleaned, fragmentEntryRegex)
	a.workgroupSize = parseWorkgroupSize(cleaned)
	a.writesDepth = fragDepthRegex.MatchString(cleaned)
	a.err = nil
	a.mu.Unlock()

	a.version.Add(1)
	a.loaded.Store(true)
	log.Debug("shader loaded", "path", a.path, "entry", a.EntryPoint())
}

func (m *manager) Reload(path string) error {
	m.mu.Lock()
	a, ok := m.assets[path]
	closed := m.closed
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if closed {
		return ErrClosed
	}

	a.notifyReloading()
	a.loaded.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLoad(a)
	return nil
}

func (m *manager) Release(a *ShaderAsset) {
	if a == nil {
		return
	}
	if a.refs.Add(-1) > 0 {
		return
	}
	m.mu.Lock()
	if cur, ok := m.assets[a.path]; ok && cur == a {
		delete(m.assets, a.path)
	}
	m.mu.Unlock()
}

func (m *manager) Wait() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	m.jobs.Wait(pending...)
}

func (m *manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.Wait()
	if m.ownJobs {
		m.jobs.Close()
	}
}
