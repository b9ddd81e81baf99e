package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (96 bytes, std430 aligned).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the GPU-aligned representation of the camera uniform buffer.
// Size: 96 bytes (std430 / WGSL aligned).
type GPUCameraUniform struct {
	ViewProj  mgl32.Mat4 // offset  0: combined view-projection matrix (mat4x4<f32>)
	Position  mgl32.Vec3 // offset 64: world-space camera position
	Near      float32    // offset 76
	Direction mgl32.Vec3 // offset 80: normalized view direction
	Far       float32    // offset 92
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (96)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.ViewProj[i]))
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.Position[i]))
		binary.LittleEndian.PutUint32(buf[80+i*4:], math.Float32bits(g.Direction[i]))
	}
	binary.LittleEndian.PutUint32(buf[76:], math.Float32bits(g.Near))
	binary.LittleEndian.PutUint32(buf[92:], math.Float32bits(g.Far))
	return buf
}
