package ddgi

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-gi/engine/cascade"
	"github.com/go-gl/mathgl/mgl32"
)

// Probe atlas block sizes. Every probe owns an octahedral block of interior
// texels surrounded by a one texel border.
const (
	IrradianceTexels = 6
	DistanceTexels   = 14
	IrradianceBlock  = IrradianceTexels + 2
	DistanceBlock    = DistanceTexels + 2
)

// Bytes per texel of the irradiance (rgb + unused) and distance (mean, mean
// squared) atlases.
const (
	irradianceTexelSize = 16
	distanceTexelSize   = 8
	rayResultSize       = 16
	argsStride          = 16
)

// Probe state bits stored in GPUProbe.State.
const (
	ProbeActive uint32 = 1 << 0
	// ProbeFresh probes were reset and take the next blend at full weight.
	ProbeFresh uint32 = 1 << 1
)

// Update flags stored in GPUUpdate.Flags.
const (
	// UpdateResetAll resets every probe of the cascade during classification.
	UpdateResetAll uint32 = 1 << 0
)

// GPUTypesSource is the canonical WGSL definition of every struct in this file.
// Shaders pull it in with //@oxy:include ddgi_types.
//
//go:embed assets/ddgi_types.wgsl
var GPUTypesSource string

// GPUCascade describes one probe cascade to the shaders.
// Size: 48 bytes (std430 / WGSL aligned).
type GPUCascade struct {
	Origin       mgl32.Vec3 // offset  0: world position of logical probe (0,0,0)
	Spacing      float32    // offset 12
	Counts       [3]uint32  // offset 16: probes per axis
	ProbeOffset  uint32     // offset 28: first probe of the cascade in the probe and active buffers
	ScrollOffset [3]int32   // offset 32: slot of logical probe (0,0,0)
	Index        uint32     // offset 44
}

// Size returns the size of the GPUCascade struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUCascade) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCascade struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUCascade) Marshal() []byte {
	buf := make([]byte, 48)
	putVec3(buf[0:], g.Origin)
	putF32(buf[12:], g.Spacing)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[16+i*4:], g.Counts[i])
		binary.LittleEndian.PutUint32(buf[32+i*4:], uint32(g.ScrollOffset[i]))
	}
	binary.LittleEndian.PutUint32(buf[28:], g.ProbeOffset)
	binary.LittleEndian.PutUint32(buf[44:], g.Index)
	return buf
}

// NewGPUCascade converts a probe cascade to its GPU form.
func NewGPUCascade(c *ProbeCascade, probeOffset uint32) GPUCascade {
	return GPUCascade{
		Origin:       c.Origin(),
		Spacing:      c.Spacing,
		Counts:       [3]uint32{uint32(c.Counts.X), uint32(c.Counts.Y), uint32(c.Counts.Z)},
		ProbeOffset:  probeOffset,
		ScrollOffset: [3]int32{c.Scroll.X, c.Scroll.Y, c.Scroll.Z},
		Index:        uint32(c.Index),
	}
}

// GPUConstants is the constant block published to consumers of the probe volume.
// Size: 224 bytes (std430 / WGSL aligned).
type GPUConstants struct {
	Cascades         [cascade.MaxCascades]GPUCascade // offset   0
	CascadeCount     uint32                          // offset 192
	RaysPerProbe     uint32                          // offset 196
	IrradianceTexels uint32                          // offset 200: block edge, border included
	DistanceTexels   uint32                          // offset 204: block edge, border included
	IrradianceWidth  uint32                          // offset 208
	IrradianceHeight uint32                          // offset 212
	DistanceWidth    uint32                          // offset 216
	DistanceHeight   uint32                          // offset 220
}

// Size returns the size of the GPUConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (224)
func (g *GPUConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 224-byte buffer ready for GPU upload
func (g *GPUConstants) Marshal() []byte {
	buf := make([]byte, 224)
	for i := range g.Cascades {
		copy(buf[i*48:], g.Cascades[i].Marshal())
	}
	binary.LittleEndian.PutUint32(buf[192:], g.CascadeCount)
	binary.LittleEndian.PutUint32(buf[196:], g.RaysPerProbe)
	binary.LittleEndian.PutUint32(buf[200:], g.IrradianceTexels)
	binary.LittleEndian.PutUint32(buf[204:], g.DistanceTexels)
	binary.LittleEndian.PutUint32(buf[208:], g.IrradianceWidth)
	binary.LittleEndian.PutUint32(buf[212:], g.IrradianceHeight)
	binary.LittleEndian.PutUint32(buf[216:], g.DistanceWidth)
	binary.LittleEndian.PutUint32(buf[220:], g.DistanceHeight)
	return buf
}

// GPUUpdate are the per-update constants of the classify, trace and blend programs.
// Size: 112 bytes (uniform aligned).
type GPUUpdate struct {
	Rotation       mgl32.Mat4 // offset   0: ray pattern rotation of this update
	ScrollDelta    [3]int32   // offset  64: cells moved since the last update
	CascadeIndex   uint32     // offset  76
	HistoryWeight  float32    // offset  80: 0 ignores history
	Flags          uint32     // offset  84
	MaxRayDistance float32    // offset  88
	RaysPerProbe   uint32     // offset  92
	Sky            mgl32.Vec3 // offset  96: radiance of rays that leave the volume
	_pad           uint32     // offset 108
}

// Size returns the size of the GPUUpdate struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (g *GPUUpdate) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUUpdate struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload
func (g *GPUUpdate) Marshal() []byte {
	buf := make([]byte, 112)
	for i := range 16 {
		putF32(buf[i*4:], g.Rotation[i])
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[64+i*4:], uint32(g.ScrollDelta[i]))
	}
	binary.LittleEndian.PutUint32(buf[76:], g.CascadeIndex)
	putF32(buf[80:], g.HistoryWeight)
	binary.LittleEndian.PutUint32(buf[84:], g.Flags)
	putF32(buf[88:], g.MaxRayDistance)
	binary.LittleEndian.PutUint32(buf[92:], g.RaysPerProbe)
	putVec3(buf[96:], g.Sky)
	return buf
}

// GPUProbe is one entry of the probe buffer.
// Size: 16 bytes (std430 / WGSL aligned).
type GPUProbe struct {
	Offset mgl32.Vec3 // offset  0: relocation away from geometry
	State  uint32     // offset 12: ProbeActive | ProbeFresh
}

// Size returns the size of the GPUProbe struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUProbe) Size() int {
	return int(unsafe.Sizeof(*g))
}

// indirectArgs returns the dispatch arguments a cascade starts each update
// with: zero probes, one row, one slice. Classification counts the x group.
func indirectArgs() []byte {
	buf := make([]byte, argsStride)
	binary.LittleEndian.PutUint32(buf[4:], 1)
	binary.LittleEndian.PutUint32(buf[8:], 1)
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
