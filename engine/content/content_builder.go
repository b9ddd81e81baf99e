package content

import "github.com/Carmen-Shannon/oxy-gi/engine/jobs"

// ManagerBuilderOption is a function that configures a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithScheduler runs loads on a shared scheduler instead of a private one.
//
// Parameters:
//   - s: the job scheduler
//
// Returns:
//   - ManagerBuilderOption: a function that applies the scheduler to a Manager
func WithScheduler(s jobs.Scheduler) ManagerBuilderOption {
	return func(m *manager) {
		m.jobs = s
	}
}

// WithInclude registers a WGSL snippet that shaders pull in with //@oxy:include <name>.
//
// Parameters:
//   - name: the include name
//   - source: the WGSL source of the snippet
//
// Returns:
//   - ManagerBuilderOption: a function that registers the include on a Manager
func WithInclude(name, source string) ManagerBuilderOption {
	return func(m *manager) {
		m.includes[name] = source
	}
}
