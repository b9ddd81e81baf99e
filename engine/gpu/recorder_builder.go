package gpu

// RecorderBuilderOption is a function that configures a Recorder during construction.
type RecorderBuilderOption func(*Recorder)

// WithLimits overrides the device limits reported by the recorder.
//
// Parameters:
//   - limits: the limits to report
//
// Returns:
//   - RecorderBuilderOption: a function that applies the limits to a Recorder
func WithLimits(limits Limits) RecorderBuilderOption {
	return func(r *Recorder) {
		r.limits = limits
	}
}

// WithFeatures overrides the device features reported by the recorder.
//
// Parameters:
//   - features: the features to report
//
// Returns:
//   - RecorderBuilderOption: a function that applies the features to a Recorder
func WithFeatures(features Features) RecorderBuilderOption {
	return func(r *Recorder) {
		r.features = features
	}
}

// WithReadbackLatency sets how many Flush calls must pass before a readback
// becomes available through TryRead.
//
// Parameters:
//   - frames: latency in frames
//
// Returns:
//   - RecorderBuilderOption: a function that applies the latency to a Recorder
func WithReadbackLatency(frames uint64) RecorderBuilderOption {
	return func(r *Recorder) {
		r.readbackLatency = frames
	}
}
