package jobs

import "time"

// SchedulerBuilderOption is a function that configures a Scheduler during construction.
type SchedulerBuilderOption func(*scheduler)

// WithWorkers sets the number of worker goroutines.
//
// Parameters:
//   - n: the worker count, values below 1 are raised to 1
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the worker count to a Scheduler
func WithWorkers(n int) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.workers = max(n, 1)
	}
}

// WithQueueSize sets the task queue capacity.
//
// Parameters:
//   - n: the queue capacity
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the queue size to a Scheduler
func WithQueueSize(n int) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.queueSize = max(n, 1)
	}
}

// WithIdleTimeout sets the worker idle timeout passed to the pool.
func WithIdleTimeout(d time.Duration) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.idle = d
	}
}
