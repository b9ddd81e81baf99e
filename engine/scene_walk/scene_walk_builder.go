package scene_walk

// WalkerBuilderOption is a functional option for configuring a Walker.
type WalkerBuilderOption func(*walker)

// WithBatchSize sets how many actors a task claims at once. Defaults to 32.
//
// Parameters:
//   - n: the batch size, at least 1
//
// Returns:
//   - WalkerBuilderOption: option function to apply
func WithBatchSize(n int) WalkerBuilderOption {
	return func(w *walker) {
		w.batchSize = max(n, 1)
	}
}

// WithTasksPerTarget caps the number of tasks spawned per target. Defaults to
// the scheduler worker count.
//
// Parameters:
//   - n: the task cap, at least 1
//
// Returns:
//   - WalkerBuilderOption: option function to apply
func WithTasksPerTarget(n int) WalkerBuilderOption {
	return func(w *walker) {
		w.tasksPerTarget = max(n, 1)
	}
}
