package binding

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type volumeData struct {
	Resolution int
}

func TestReadyForCurrentAndPreviousFrame(t *testing.T) {
	p := NewPublisher[volumeData]()
	rts := uuid.New()

	_, ready := p.Get(rts, 0)
	require.False(t, ready)

	p.Publish(rts, 10, volumeData{Resolution: 128})

	d, ready := p.Get(rts, 10)
	require.True(t, ready)
	require.Equal(t, 128, d.Resolution)

	_, ready = p.Get(rts, 11)
	require.True(t, ready)

	d, ready = p.Get(rts, 12)
	require.False(t, ready)
	require.Equal(t, 128, d.Resolution, "stale data is still returned for fallback")
}

func TestRenderTargetSetsAreIsolated(t *testing.T) {
	p := NewPublisher[volumeData]()
	a, b := uuid.New(), uuid.New()
	p.Publish(a, 1, volumeData{Resolution: 1})

	_, ready := p.Get(b, 1)
	require.False(t, ready)

	p.Forget(a)
	_, ready = p.Get(a, 1)
	require.False(t, ready)
}
