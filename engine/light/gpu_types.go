package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxGPULights is the maximum number of lights shaded into one atlas object per pass.
const MaxGPULights = 64

// GPULightSource is the canonical WGSL definition of the Light struct.
// Matches GPULight layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULight is the GPU-aligned representation of a single light source.
// Matches the WGSL Light struct layout exactly (see GPULightSource).
// Size: 64 bytes (std430 / WGSL aligned).
type GPULight struct {
	Position   mgl32.Vec3 // offset  0: world-space position (point/spot) or unused (directional)
	LightType  uint32     // offset 12: 0 = directional, 1 = point, 2 = spot
	Color      mgl32.Vec3 // offset 16: RGB color
	Intensity  float32    // offset 28: scalar multiplier
	Direction  mgl32.Vec3 // offset 32: normalized direction (directional/spot) or unused (point)
	LightRange float32    // offset 44: attenuation cutoff distance
	InnerCone  float32    // offset 48: cos(inner half-angle) for spot
	OuterCone  float32    // offset 52: cos(outer half-angle) for spot
	_pad       [2]uint32  // offset 56: padding to 64-byte alignment
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, 64)
	putVec3(buf[0:12], g.Position)
	binary.LittleEndian.PutUint32(buf[12:16], g.LightType)
	putVec3(buf[16:28], g.Color)
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Intensity))
	putVec3(buf[32:44], g.Direction)
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(g.LightRange))
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(g.InnerCone))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(g.OuterCone))
	return buf
}

// GPULightHeaderSource is the canonical WGSL definition of the LightHeader struct.
// Matches GPULightHeader layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/light_header.wgsl
var GPULightHeaderSource string

// GPULightHeader is the header prepended to the light storage buffer.
// Size: 16 bytes (vec3 + u32, std430 aligned).
type GPULightHeader struct {
	AmbientColor mgl32.Vec3 // offset 0: scene ambient RGB
	LightCount   uint32     // offset 12: number of lights following the header
}

// Size returns the size of the GPULightHeader struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (h *GPULightHeader) Size() int {
	return int(unsafe.Sizeof(*h))
}

// Marshal serializes the GPULightHeader struct into a byte buffer suitable for
// GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (h *GPULightHeader) Marshal() []byte {
	buf := make([]byte, 16)
	putVec3(buf[0:12], h.AmbientColor)
	binary.LittleEndian.PutUint32(buf[12:16], h.LightCount)
	return buf
}

// MarshalLights packs a header followed by up to MaxGPULights lights.
//
// Parameters:
//   - ambient: the ambient color
//   - lights: the lights to pack
//
// Returns:
//   - []byte: the storage buffer contents
func MarshalLights(ambient mgl32.Vec3, lights []Light) []byte {
	n := min(len(lights), MaxGPULights)
	h := GPULightHeader{AmbientColor: ambient, LightCount: uint32(n)}
	out := make([]byte, 0, 16+64*n)
	out = append(out, h.Marshal()...)
	for _, l := range lights[:n] {
		g := l.GPU()
		out = append(out, g.Marshal()...)
	}
	return out
}

func putVec3(dst []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(dst[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(dst[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(dst[8:12], math.Float32bits(v[2]))
}
