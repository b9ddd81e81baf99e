package content

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gi/engine/gpu"
	"github.com/stretchr/testify/require"
)

func TestProgramSetBuildsAfterLoad(t *testing.T) {
	m := NewManager(testFS(), WithInclude("constants", "struct Constants { a: f32 };"))
	defer m.Close()

	set := NewProgramSet(m, "shaders/clear.wgsl", "shaders/draw.wgsl", "shaders/clear.wgsl")
	defer set.Release()
	m.Wait()

	rec := gpu.NewRecorder()
	require.True(t, set.Loaded())
	require.True(t, set.Prepare(rec))

	clear := set.Get("shaders/clear.wgsl")
	require.NotNil(t, clear)
	require.Equal(t, gpu.ProgramCompute, clear.Kind())
	require.Equal(t, [3]uint32{8, 8, 4}, clear.WorkgroupSize())
	require.Equal(t, gpu.ProgramGraphics, set.Get("shaders/draw.wgsl").Kind())
	require.Nil(t, set.Get("shaders/none.wgsl"))
	require.Zero(t, rec.GPUWork())
}

func TestProgramSetNotReadyWhileMissing(t *testing.T) {
	m := NewManager(testFS())
	defer m.Close()

	set := NewProgramSet(m, "shaders/clear.wgsl", "shaders/missing.wgsl")
	defer set.Release()
	m.Wait()

	rec := gpu.NewRecorder()
	require.False(t, set.Loaded())
	require.False(t, set.Prepare(rec))
	require.Nil(t, set.Get("shaders/missing.wgsl"))
}

func TestProgramSetRebuildsOnReload(t *testing.T) {
	m := NewManager(testFS())
	defer m.Close()

	set := NewProgramSet(m, "shaders/draw.wgsl")
	defer set.Release()
	m.Wait()

	rec := gpu.NewRecorder()
	require.True(t, set.Prepare(rec))
	first := set.Get("shaders/draw.wgsl")

	require.NoError(t, m.Reload("shaders/draw.wgsl"))
	m.Wait()
	require.True(t, set.Prepare(rec))
	require.NotSame(t, first, set.Get("shaders/draw.wgsl"))
}
