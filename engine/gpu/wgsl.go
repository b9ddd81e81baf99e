package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// group0BindingRegex matches @group(0) @binding(N) declarations.
var group0BindingRegex = regexp.MustCompile(`@group\(\s*0\s*\)\s*@binding\(\s*(\d+)\s*\)`)

// parseBindingSet returns the group 0 binding indices a shader declares.
func parseBindingSet(source string) map[uint32]bool {
	out := make(map[uint32]bool)
	for _, m := range group0BindingRegex.FindAllStringSubmatch(source, -1) {
		v, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		out[uint32(v)] = true
	}
	return out
}

func clearShaderSource(dim, format string) string {
	store := "textureStore(dst, vec2<i32>(id.xy), value);"
	bounds := "if (any(id.xy >= textureDimensions(dst))) { return; }"
	if dim == "3d" {
		store = "textureStore(dst, vec3<i32>(id), value);"
		bounds = "if (any(id >= textureDimensions(dst))) { return; }"
	}
	valueType := "vec4<f32>"
	value := "params.value"
	if format == "r32uint" {
		valueType = "vec4<u32>"
		value = "vec4<u32>(params.value)"
	}
	return fmt.Sprintf(`struct ClearParams { value: vec4<f32> };
@group(0) @binding(%d) var dst: texture_storage_%s<%s, write>;
@group(0) @binding(%d) var<uniform> params: ClearParams;

@compute @workgroup_size(4, 4, 4)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
	%s
	let value: %s = %s;
	%s
}
`, UABindingBase, dim, format, CBBindingBase, bounds, valueType, value, store)
}

func float4Bytes(v [4]float32) []byte {
	out := make([]byte, 16)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
