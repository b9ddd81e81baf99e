package profiler

import "time"

type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets how often frame statistics are logged.
//
// Parameters:
//   - d: the log interval
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the interval
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces the time source.
//
// Parameters:
//   - now: returns the current time
//
// Returns:
//   - ProfilerBuilderOption: a function that sets the clock
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}
