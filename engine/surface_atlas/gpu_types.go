package surface_atlas

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// NoTile marks an empty face in GPUAtlasObject.Tiles.
const NoTile = math.MaxUint32

// CullGridResolution is the number of culling cells per axis of the object grid.
const CullGridResolution = 16

// CullEntrySize is the byte size of one culled-object list entry: the object
// index and the next entry of the same cell.
const CullEntrySize = 8

// cullCounterSize is the byte size of the culled entry counter buffer.
const cullCounterSize = 16

// GPUTypesSource is the canonical WGSL definition of every struct in this file.
// Shaders pull it in with //@oxy:include surface_atlas_types.
//
//go:embed assets/surface_atlas_types.wgsl
var GPUTypesSource string

// GPUAtlasConstants is the constant block published to atlas consumers.
// Size: 48 bytes (std430 / WGSL aligned).
type GPUAtlasConstants struct {
	ViewPosition   mgl32.Vec3 // offset  0
	Resolution     uint32     // offset 12: atlas edge length in texels
	ObjectCount    uint32     // offset 16
	TileCount      uint32     // offset 20
	CullCapacity   uint32     // offset 24: entries the culled object list can hold
	GridResolution uint32     // offset 28: culling cells per axis
	GridOrigin     mgl32.Vec3 // offset 32: minimum corner of the culling grid
	GridCellSize   float32    // offset 44
}

// Size returns the size of the GPUAtlasConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUAtlasConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUAtlasConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUAtlasConstants) Marshal() []byte {
	buf := make([]byte, 48)
	putVec3(buf[0:], g.ViewPosition)
	binary.LittleEndian.PutUint32(buf[12:], g.Resolution)
	binary.LittleEndian.PutUint32(buf[16:], g.ObjectCount)
	binary.LittleEndian.PutUint32(buf[20:], g.TileCount)
	binary.LittleEndian.PutUint32(buf[24:], g.CullCapacity)
	binary.LittleEndian.PutUint32(buf[28:], g.GridResolution)
	putVec3(buf[32:], g.GridOrigin)
	putF32(buf[44:], g.GridCellSize)
	return buf
}

// GPUAtlasObject is one object in the atlas object buffer.
// Size: 112 bytes (std430 / WGSL aligned).
type GPUAtlasObject struct {
	Transform mgl32.Mat4        // offset   0: oriented box local to world, rigid
	Extents   mgl32.Vec3        // offset  64: box half size
	TileMask  uint32            // offset  76: bit per face that owns a tile
	Tiles     [FaceCount]uint32 // offset  80: tile buffer index per face, NoTile if empty
	Radius    float32           // offset 104: bounding sphere radius
	_pad      uint32            // offset 108
}

// Size returns the size of the GPUAtlasObject struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (g *GPUAtlasObject) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUAtlasObject struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload
func (g *GPUAtlasObject) Marshal() []byte {
	buf := make([]byte, 112)
	putMat4(buf[0:], g.Transform)
	putVec3(buf[64:], g.Extents)
	binary.LittleEndian.PutUint32(buf[76:], g.TileMask)
	for i, t := range g.Tiles {
		binary.LittleEndian.PutUint32(buf[80+i*4:], t)
	}
	putF32(buf[104:], g.Radius)
	return buf
}

// GPUAtlasTile is one tile in the atlas tile buffer.
// Size: 112 bytes (std430 / WGSL aligned).
type GPUAtlasTile struct {
	Rect        [4]float32 // offset   0: inner rectangle in atlas UV (x, y, w, h)
	ViewProj    mgl32.Mat4 // offset  16: world to tile clip space
	ViewExtents mgl32.Vec3 // offset  80: half width, half height, depth of the tile camera
	Object      uint32     // offset  92: owning object index
	Direction   mgl32.Vec3 // offset  96: tile camera forward
	_pad        uint32     // offset 108
}

// Size returns the size of the GPUAtlasTile struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (g *GPUAtlasTile) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUAtlasTile struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload
func (g *GPUAtlasTile) Marshal() []byte {
	buf := make([]byte, 112)
	for i, v := range g.Rect {
		putF32(buf[i*4:], v)
	}
	putMat4(buf[16:], g.ViewProj)
	putVec3(buf[80:], g.ViewExtents)
	binary.LittleEndian.PutUint32(buf[92:], g.Object)
	putVec3(buf[96:], g.Direction)
	return buf
}

// GPUTileDraw are the per-draw constants of the tile clear and lighting programs.
// Size: 112 bytes (uniform aligned).
type GPUTileDraw struct {
	Rect            [4]float32 // offset   0: inner rectangle in atlas UV
	InvViewProj     mgl32.Mat4 // offset  16: tile clip space to world
	Direction       mgl32.Vec3 // offset  80
	Object          uint32     // offset  92
	IndirectEnabled uint32     // offset  96: 1 samples the probe volume
	BounceIntensity float32    // offset 100
	_pad            [2]uint32  // offset 104
}

// Size returns the size of the GPUTileDraw struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (g *GPUTileDraw) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUTileDraw struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload
func (g *GPUTileDraw) Marshal() []byte {
	buf := make([]byte, 112)
	for i, v := range g.Rect {
		putF32(buf[i*4:], v)
	}
	putMat4(buf[16:], g.InvViewProj)
	putVec3(buf[80:], g.Direction)
	binary.LittleEndian.PutUint32(buf[92:], g.Object)
	binary.LittleEndian.PutUint32(buf[96:], g.IndirectEnabled)
	putF32(buf[100:], g.BounceIntensity)
	return buf
}

// GPUIndirectConstants describe the probe grid the indirect lighting program
// samples. They are filled by the owner of the probe volume.
// Size: 48 bytes (uniform aligned).
type GPUIndirectConstants struct {
	Origin       mgl32.Vec3 // offset  0: world position of probe (0,0,0) before scrolling
	Spacing      float32    // offset 12
	Counts       [3]uint32  // offset 16: probes per axis
	Texels       uint32     // offset 28: irradiance texels per probe side, border included
	ScrollOffset [3]int32   // offset 32
	Width        uint32     // offset 44: irradiance atlas width in texels
}

// Size returns the size of the GPUIndirectConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUIndirectConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUIndirectConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUIndirectConstants) Marshal() []byte {
	buf := make([]byte, 48)
	putVec3(buf[0:], g.Origin)
	putF32(buf[12:], g.Spacing)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[16+i*4:], g.Counts[i])
		binary.LittleEndian.PutUint32(buf[32+i*4:], uint32(g.ScrollOffset[i]))
	}
	binary.LittleEndian.PutUint32(buf[28:], g.Texels)
	binary.LittleEndian.PutUint32(buf[44:], g.Width)
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

func putMat4(dst []byte, m mgl32.Mat4) {
	for i := range 16 {
		putF32(dst[i*4:], m[i])
	}
}
