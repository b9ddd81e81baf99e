package content

import (
	"errors"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

const clearChunkWGSL = `
//@oxy:include constants
/* block /* nested */ comment @compute @workgroup_size(1) fn wrong() {} */
@compute @workgroup_size(8, 8, 4)
fn clear_chunk(@builtin(global_invocation_id) id: vec3<u32>) {
	// @workgroup_size(2)
}
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"shaders/clear.wgsl": {Data: []byte(clearChunkWGSL)},
		"shaders/bad.wgsl":   {Data: []byte("//@oxy:include missing\n")},
		"shaders/draw.wgsl": {Data: []byte(`
@vertex fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }
@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }
`)},
		"shaders/clear_depth.wgsl": {Data: []byte(`
struct Out { @builtin(frag_depth) depth: f32 };
@vertex fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }
@fragment fn fs_main() -> Out { var o: Out; o.depth = 1.0; return o; }
`)},
	}
}

func TestLoadAsyncParsesShader(t *testing.T) {
	m := NewManager(testFS(), WithInclude("constants", "struct Constants { a: f32 };"))
	defer m.Close()

	a := m.LoadAsync("shaders/clear.wgsl")
	m.Wait()

	require.True(t, a.IsLoaded())
	require.NoError(t, a.Err())
	require.Equal(t, "clear_chunk", a.EntryPoint())
	require.Equal(t, [3]uint32{8, 8, 4}, a.WorkgroupSize())
	require.Contains(t, a.Source(), "struct Constants")
	require.Equal(t, uint64(1), a.Version())
}

func TestLoadAsyncGraphicsEntries(t *testing.T) {
	m := NewManager(testFS())
	defer m.Close()

	a := m.LoadAsync("shaders/draw.wgsl")
	m.Wait()
	require.True(t, a.IsLoaded())
	require.Equal(t, "vs_main", a.VertexEntry())
	require.Equal(t, "fs_main", a.FragmentEntry())
	require.Equal(t, [3]uint32{1, 1, 1}, a.WorkgroupSize())
	require.False(t, a.WritesDepth())

	d := m.LoadAsync("shaders/clear_depth.wgsl")
	m.Wait()
	require.True(t, d.WritesDepth())
}

func TestLoadErrors(t *testing.T) {
	m := NewManager(testFS())
	defer m.Close()

	missing := m.LoadAsync("shaders/nope.wgsl")
	bad := m.LoadAsync("shaders/bad.wgsl")
	m.Wait()

	require.False(t, missing.IsLoaded())
	require.True(t, errors.Is(missing.Err(), ErrNotFound))
	require.False(t, bad.IsLoaded())
	require.ErrorContains(t, bad.Err(), "unknown include")
}

func TestAssetsAreCachedAndRefCounted(t *testing.T) {
	m := NewManager(testFS())
	defer m.Close()

	a := m.LoadAsync("shaders/draw.wgsl")
	b := m.LoadAsync("shaders/draw.wgsl")
	require.Same(t, a, b)

	m.Release(a)
	c := m.LoadAsync("shaders/draw.wgsl")
	require.Same(t, a, c)

	m.Release(b)
	m.Release(c)
	m.Wait()
	d := m.LoadAsync("shaders/draw.wgsl")
	require.NotSame(t, a, d)
}

func TestReloadNotifiesSubscribers(t *testing.T) {
	m := NewManager(testFS())
	defer m.Close()

	a := m.LoadAsync("shaders/clear.wgsl")
	m.Wait()

	var calls atomic.Int32
	unsubscribe := a.OnReloading(func(*ShaderAsset) { calls.Add(1) })

	require.NoError(t, m.Reload("shaders/clear.wgsl"))
	m.Wait()
	require.Equal(t, int32(1), calls.Load())
	require.True(t, a.IsLoaded())
	require.Equal(t, uint64(2), a.Version())

	unsubscribe()
	require.NoError(t, m.Reload("shaders/clear.wgsl"))
	m.Wait()
	require.Equal(t, int32(1), calls.Load())

	require.True(t, errors.Is(m.Reload("shaders/unknown.wgsl"), ErrNotFound))
}

func TestLoadAfterClose(t *testing.T) {
	m := NewManager(testFS())
	m.Close()

	a := m.LoadAsync("shaders/clear.wgsl")
	require.False(t, a.IsLoaded())
	require.True(t, errors.Is(a.Err(), ErrClosed))
}
