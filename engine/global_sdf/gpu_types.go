package global_sdf

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/go-gl/mathgl/mgl32"
)

// ModelsPerDispatch is the number of model distance fields one rasterize
// dispatch binds. A chunk layer holds more, so it is split into several
// dispatches.
const ModelsPerDispatch = 14

// HeightfieldsPerDispatch is the number of heightfields one rasterize dispatch binds.
const HeightfieldsPerDispatch = 2

// Object kinds stored in GPUObject.Kind.
const (
	ObjectModel       uint32 = 0
	ObjectHeightfield uint32 = 1
)

// GPUTypesSource is the canonical WGSL definition of every struct in this file.
// Shaders pull it in with //@oxy:include global_sdf_types.
//
//go:embed assets/global_sdf_types.wgsl
var GPUTypesSource string

// GPUCascade is the GPU-aligned description of one cascade.
// Size: 32 bytes (std430 / WGSL aligned).
type GPUCascade struct {
	Position       mgl32.Vec3 // offset  0: world-space center
	Extent         float32    // offset 12: half size
	VoxelSize      float32    // offset 16
	ChunkSize      float32    // offset 20
	MaxDistance    float32    // offset 24: distance encoded by 1.0 in the volume
	MaxMipDistance float32    // offset 28: distance encoded by 1.0 in the mip
}

// Size returns the size of the GPUCascade struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUCascade) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCascade struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPUCascade) Marshal() []byte {
	buf := make([]byte, 32)
	putVec3(buf[0:], g.Position)
	putF32(buf[12:], g.Extent)
	putF32(buf[16:], g.VoxelSize)
	putF32(buf[20:], g.ChunkSize)
	putF32(buf[24:], g.MaxDistance)
	putF32(buf[28:], g.MaxMipDistance)
	return buf
}

// NewGPUCascade converts a cascade to its GPU form.
func NewGPUCascade(c cascade.Cascade) GPUCascade {
	return GPUCascade{
		Position:       c.Position,
		Extent:         c.Extent,
		VoxelSize:      c.VoxelSize,
		ChunkSize:      c.ChunkSize,
		MaxDistance:    c.MaxDistance,
		MaxMipDistance: c.MaxMipDistance,
	}
}

// GPUConstants is the constant block published to consumers of the global
// distance field.
// Size: 144 bytes (std430 / WGSL aligned).
type GPUConstants struct {
	Cascades      [cascade.MaxCascades]GPUCascade // offset   0
	CascadeCount  uint32                          // offset 128
	Resolution    uint32                          // offset 132: voxels per cascade axis
	MipResolution uint32                          // offset 136
	ChunksPerAxis uint32                          // offset 140
}

// Size returns the size of the GPUConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (144)
func (g *GPUConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 144-byte buffer ready for GPU upload
func (g *GPUConstants) Marshal() []byte {
	buf := make([]byte, 144)
	for i := range g.Cascades {
		copy(buf[i*32:], g.Cascades[i].Marshal())
	}
	binary.LittleEndian.PutUint32(buf[128:], g.CascadeCount)
	binary.LittleEndian.PutUint32(buf[132:], g.Resolution)
	binary.LittleEndian.PutUint32(buf[136:], g.MipResolution)
	binary.LittleEndian.PutUint32(buf[140:], g.ChunksPerAxis)
	return buf
}

// GPUObject is one rasterized object in the object storage buffer.
// Size: 96 bytes (std430 / WGSL aligned).
type GPUObject struct {
	WorldToVolume mgl32.Mat4 // offset  0: world position to normalized texture coordinates
	Extents       mgl32.Vec3 // offset 64: world-space half size of the volume box
	DecodeScale   float32    // offset 76: world distance of a texel value of 1
	Kind          uint32     // offset 80: ObjectModel or ObjectHeightfield
	HeightScale   float32    // offset 84: heightfield vertical scale
	MipBias       float32    // offset 88: first resident mip
	_pad          uint32     // offset 92
}

// Size returns the size of the GPUObject struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (96)
func (g *GPUObject) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUObject struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload
func (g *GPUObject) Marshal() []byte {
	buf := make([]byte, 96)
	for i := range 16 {
		putF32(buf[i*4:], g.WorldToVolume[i])
	}
	putVec3(buf[64:], g.Extents)
	putF32(buf[76:], g.DecodeScale)
	binary.LittleEndian.PutUint32(buf[80:], g.Kind)
	putF32(buf[84:], g.HeightScale)
	putF32(buf[88:], g.MipBias)
	return buf
}

// GPUChunkConstants are the per-dispatch constants of the clear and rasterize
// programs. Object indices are packed four per vec4<u32>.
// Size: 128 bytes (uniform aligned).
type GPUChunkConstants struct {
	ChunkCoord       [3]int32   // offset   0: world chunk coordinate
	CascadeIndex     uint32     // offset  12
	TextureOrigin    [3]uint32  // offset  16: first voxel of the chunk in the volume texture
	Additive         uint32     // offset  28: 1 merges with existing voxels
	ModelCount       uint32     // offset  32
	HeightfieldCount uint32     // offset  36
	_pad             [2]uint32  // offset  40
	Models           [16]uint32 // offset  48: object indices, ModelsPerDispatch used
	Heightfields     [4]uint32  // offset 112: object indices, HeightfieldsPerDispatch used
}

// Size returns the size of the GPUChunkConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (128)
func (g *GPUChunkConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUChunkConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 128-byte buffer ready for GPU upload
func (g *GPUChunkConstants) Marshal() []byte {
	buf := make([]byte, 128)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(g.ChunkCoord[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], g.TextureOrigin[i])
	}
	binary.LittleEndian.PutUint32(buf[12:], g.CascadeIndex)
	binary.LittleEndian.PutUint32(buf[28:], g.Additive)
	binary.LittleEndian.PutUint32(buf[32:], g.ModelCount)
	binary.LittleEndian.PutUint32(buf[36:], g.HeightfieldCount)
	for i, v := range g.Models {
		binary.LittleEndian.PutUint32(buf[48+i*4:], v)
	}
	for i, v := range g.Heightfields {
		binary.LittleEndian.PutUint32(buf[112+i*4:], v)
	}
	return buf
}

// GPUMipConstants are the constants of the downsample and flood programs.
// Size: 48 bytes (uniform aligned).
type GPUMipConstants struct {
	LocalOrigin    [3]uint32 // offset  0: mip texel holding the cascade's minimum corner
	CascadeIndex   uint32    // offset 12
	MipResolution  uint32    // offset 16
	Resolution     uint32    // offset 20
	MaxDistance    float32   // offset 24
	MaxMipDistance float32   // offset 28
	Step           float32   // offset 32: encoded distance of one mip voxel
	_pad           [3]uint32 // offset 36
}

// Size returns the size of the GPUMipConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUMipConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMipConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUMipConstants) Marshal() []byte {
	buf := make([]byte, 48)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], g.LocalOrigin[i])
	}
	binary.LittleEndian.PutUint32(buf[12:], g.CascadeIndex)
	binary.LittleEndian.PutUint32(buf[16:], g.MipResolution)
	binary.LittleEndian.PutUint32(buf[20:], g.Resolution)
	putF32(buf[24:], g.MaxDistance)
	putF32(buf[28:], g.MaxMipDistance)
	putF32(buf[32:], g.Step)
	return buf
}

func putF32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

func putVec3(dst []byte, v mgl32.Vec3) {
	putF32(dst[0:], v[0])
	putF32(dst[4:], v[1])
	putF32(dst[8:], v[2])
}
