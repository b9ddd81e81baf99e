package binding

import (
	"sync"

	"github.com/google/uuid"
)

type entry[T any] struct {
	frame uint64
	data  T
}

// Publisher hands out the read-only binding data a pass produced for each
// render target set. Data is considered ready for exactly the frame it was
// published on and the frame after it.
type Publisher[T any] struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry[T]
}

// NewPublisher creates an empty Publisher.
//
// Returns:
//   - *Publisher[T]: the publisher
func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{entries: make(map[uuid.UUID]entry[T])}
}

// Publish stores the data produced for a render target set on a frame.
//
// Parameters:
//   - rts: the render target set identity
//   - frame: the frame the data was produced on
//   - data: the binding data snapshot
func (p *Publisher[T]) Publish(rts uuid.UUID, frame uint64, data T) {
	p.mu.Lock()
	p.entries[rts] = entry[T]{frame: frame, data: data}
	p.mu.Unlock()
}

// Get returns the last published data and whether it may be used on a frame.
// Never blocks on GPU work.
//
// Parameters:
//   - rts: the render target set identity
//   - frame: the frame the consumer renders
//
// Returns:
//   - T: the last published data, or the zero value
//   - bool: true if the data was published on frame or frame-1
func (p *Publisher[T]) Get(rts uuid.UUID, frame uint64) (T, bool) {
	p.mu.RLock()
	e, ok := p.entries[rts]
	p.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	return e.data, e.frame == frame || e.frame+1 == frame
}

// Forget drops the data of a render target set.
func (p *Publisher[T]) Forget(rts uuid.UUID) {
	p.mu.Lock()
	delete(p.entries, rts)
	p.mu.Unlock()
}
