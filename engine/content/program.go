package content

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
)

type programEntry struct {
	asset       *ShaderAsset
	version     uint64
	program     gpu.Program
	failed      uint64 // version that failed to compile
	unsubscribe func()
}

// ProgramSet owns the shader assets one pass needs and the GPU programs built
// from them. Programs are rebuilt when their asset reloads.
type ProgramSet struct {
	mu      sync.Mutex
	manager Manager
	entries map[string]*programEntry
	order   []string
}

// NewProgramSet starts loading every path and returns the set.
//
// Parameters:
//   - m: the content manager
//   - paths: the shader paths the pass uses
//
// Returns:
//   - *ProgramSet: the program set
func NewProgramSet(m Manager, paths ...string) *ProgramSet {
	if m == nil {
		panic("content: NewProgramSet requires a non-nil Manager")
	}
	s := &ProgramSet{manager: m, entries: make(map[string]*programEntry)}
	for _, p := range paths {
		if _, ok := s.entries[p]; ok {
			continue
		}
		e := &programEntry{asset: m.LoadAsync(p)}
		e.unsubscribe = e.asset.OnReloading(func(*ShaderAsset) {
			s.mu.Lock()
			e.program = nil
			s.mu.Unlock()
		})
		s.entries[p] = e
		s.order = append(s.order, p)
	}
	return s
}

// Loaded reports whether every shader source is available.
func (s *ProgramSet) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if !e.asset.IsLoaded() {
			return false
		}
	}
	return true
}

// Prepare builds any missing or outdated programs. It issues no commands.
//
// Parameters:
//   - ctx: the GPU context
//
// Returns:
//   - bool: true if every program is available
func (s *ProgramSet) Prepare(ctx gpu.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ready := true
	for _, path := range s.order {
		e := s.entries[path]
		if !e.asset.IsLoaded() {
			ready = false
			continue
		}
		version := e.asset.Version()
		if e.program != nil && e.version == version {
			continue
		}
		if e.failed == version {
			ready = false
			continue
		}
		desc := gpu.ProgramDesc{
			Key:           path,
			Kind:          gpu.ProgramCompute,
			Source:        e.asset.Source(),
			EntryPoint:    e.asset.EntryPoint(),
			VertexEntry:   e.asset.VertexEntry(),
			FragmentEntry: e.asset.FragmentEntry(),
			WorkgroupSize: e.asset.WorkgroupSize(),
			WritesDepth:   e.asset.WritesDepth(),
		}
		if desc.VertexEntry != "" {
			desc.Kind = gpu.ProgramGraphics
		}
		p, err := ctx.CreateProgram(desc)
		if err != nil {
			logger.Component("content").Warn("failed to build program", "path", path, "err", err)
			e.failed = version
			ready = false
			continue
		}
		e.program = p
		e.version = version
	}
	return ready
}

// Get returns a program built by Prepare.
//
// Parameters:
//   - path: the shader path
//
// Returns:
//   - gpu.Program: the program, nil if not built
func (s *ProgramSet) Get(path string) gpu.Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[path]; ok {
		return e.program
	}
	return nil
}

// Release returns every asset to the manager.
func (s *ProgramSet) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.unsubscribe()
		s.manager.Release(e.asset)
	}
	s.entries = map[string]*programEntry{}
	s.order = nil
}
