package jobs

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-gi/engine/logger"
)

// Label is a wait handle for one dispatch. It completes once every index of the
// dispatch has run.
type Label struct {
	remaining atomic.Int64
	done      chan struct{}
}

func newLabel(n int) *Label {
	l := &Label{done: make(chan struct{})}
	l.remaining.Store(int64(n))
	if n <= 0 {
		close(l.done)
	}
	return l
}

func (l *Label) finish() {
	if l.remaining.Add(-1) == 0 {
		close(l.done)
	}
}

// Done reports whether the dispatch has completed.
func (l *Label) Done() bool {
	if l == nil {
		return true
	}
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the dispatch has completed. A nil label is already complete.
func (l *Label) Wait() {
	if l == nil {
		return
	}
	<-l.done
}

// Scheduler runs fire-and-forget parallel work on a worker pool.
type Scheduler interface {
	// Dispatch runs fn(0..n-1) in parallel. When deps are given the work starts
	// only after all of them complete. Tasks must never wait on other labels
	// themselves; express ordering through deps instead.
	//
	// Parameters:
	//   - fn: the function to run per index
	//   - n: the number of indices
	//   - deps: labels that must complete before the work starts
	//
	// Returns:
	//   - *Label: the wait handle for this dispatch
	Dispatch(fn func(i int), n int, deps ...*Label) *Label

	// Wait blocks until every given label has completed.
	//
	// Parameters:
	//   - labels: the labels to wait for
	Wait(labels ...*Label)

	// Workers returns the number of worker goroutines.
	//
	// Returns:
	//   - int: the worker count
	Workers() int

	// Close stops the worker pool. Queued work that has not started is
	// abandoned and its labels complete, so Wait never blocks on it. Work
	// already running finishes normally.
	Close()
}

// queuedTask is one submitted index. Exactly one of the worker running it or
// Close claims it and finishes its label.
type queuedTask struct {
	claimed atomic.Bool
	label   *Label
}

func (t *queuedTask) claim() bool {
	return t.claimed.CompareAndSwap(false, true)
}

type scheduler struct {
	pool      worker.DynamicWorkerPool
	workers   int
	queueSize int
	idle      time.Duration

	nextID atomic.Int64
	closed atomic.Bool
	once   sync.Once

	mu     sync.Mutex
	queued map[int]*queuedTask
}

var _ Scheduler = &scheduler{}

// NewScheduler creates a Scheduler backed by a dynamic worker pool sized to
// the CPU count minus one unless overridden.
//
// Parameters:
//   - opts: variadic SchedulerBuilderOption functions
//
// Returns:
//   - Scheduler: the scheduler
func NewScheduler(opts ...SchedulerBuilderOption) Scheduler {
	s := &scheduler{
		workers:   max(runtime.NumCPU()-1, 1),
		queueSize: 256,
		idle:      time.Second,
		queued:    make(map[int]*queuedTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = worker.NewDynamicWorkerPool(s.workers, s.queueSize, s.idle)
	return s
}

func (s *scheduler) Dispatch(fn func(i int), n int, deps ...*Label) *Label {
	if fn == nil {
		panic("jobs: nil dispatch function")
	}
	l := newLabel(n)
	if n <= 0 {
		return l
	}

	pending := false
	for _, d := range deps {
		if !d.Done() {
			pending = true
			break
		}
	}
	if !pending {
		s.submit(fn, n, l)
		return l
	}

	go func() {
		for _, d := range deps {
			d.Wait()
		}
		s.submit(fn, n, l)
	}()
	return l
}

func (s *scheduler) submit(fn func(i int), n int, l *Label) {
	ids := make([]int, n)
	tasks := make([]*queuedTask, n)
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		// Nothing will run the work; release waiters.
		for range n {
			l.finish()
		}
		return
	}
	for i := range n {
		ids[i] = int(s.nextID.Add(1))
		tasks[i] = &queuedTask{label: l}
		s.queued[ids[i]] = tasks[i]
	}
	s.mu.Unlock()

	for i := range n {
		if s.closed.Load() {
			// Close already completed the label for the rest.
			return
		}
		idx, id, task := i, ids[i], tasks[i]
		s.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (res any, err error) {
				if !task.claim() {
					return nil, nil
				}
				s.forget(id)
				defer l.finish()
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("job %d panicked: %v", idx, r)
						logger.Component("jobs").Error("job panicked", "index", idx, "panic", r)
					}
				}()
				fn(idx)
				return nil, nil
			},
		})
	}
}

func (s *scheduler) forget(id int) {
	s.mu.Lock()
	delete(s.queued, id)
	s.mu.Unlock()
}

func (s *scheduler) Wait(labels ...*Label) {
	for _, l := range labels {
		l.Wait()
	}
}

func (s *scheduler) Workers() int {
	return s.workers
}

func (s *scheduler) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		abandoned := s.queued
		s.queued = make(map[int]*queuedTask)
		s.mu.Unlock()

		s.pool.Stop()
		s.pool.ClearTaskQueue()
		dropped := 0
		for _, t := range abandoned {
			if t.claim() {
				t.label.finish()
				dropped++
			}
		}
		if dropped > 0 {
			logger.Component("jobs").Debug("scheduler closed with queued work", "tasks", dropped)
		}
	})
}
