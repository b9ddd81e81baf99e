package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrTextureTooLarge is returned when a texture exceeds the device dimension limits.
	ErrTextureTooLarge = errors.New("gpu: texture exceeds device limits")

	// ErrUnsupported is returned when the device lacks a capability a resource needs.
	ErrUnsupported = errors.New("gpu: unsupported by device")
)

// TextureFormat identifies the texel format of a texture.
type TextureFormat int

const (
	FormatR16Float TextureFormat = iota
	FormatR32Float
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatRGBA16Float
	FormatR32Uint
	FormatDepth32Float
)

// TextureDimension is the dimensionality of a texture.
type TextureDimension int

const (
	Texture2D TextureDimension = iota
	Texture3D
)

// TextureUsage is a bit set of the ways a texture may be bound.
type TextureUsage uint32

const (
	UsageSampled TextureUsage = 1 << iota
	UsageStorage
	UsageRenderTarget
	UsageCopyDst
	UsageCopySrc
)

// BufferUsage is a bit set of the ways a buffer may be bound.
type BufferUsage uint32

const (
	BufferStorage BufferUsage = 1 << iota
	BufferUniform
	BufferIndirect
	BufferCopyDst
	BufferCopySrc
	BufferReadback
)

// TextureDesc describes a texture to allocate.
type TextureDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	Depth     uint32 // 3D depth, or 1 for 2D textures
	Dimension TextureDimension
	Format    TextureFormat
	MipLevels uint32
	Usage     TextureUsage
}

// BufferDesc describes a buffer to allocate.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// ProgramKind distinguishes compute and graphics programs.
type ProgramKind int

const (
	ProgramCompute ProgramKind = iota
	ProgramGraphics
)

// ProgramDesc describes a program built from loaded shader source.
type ProgramDesc struct {
	Key           string
	Kind          ProgramKind
	Source        string
	EntryPoint    string // compute entry point
	VertexEntry   string // graphics vertex entry point
	FragmentEntry string // graphics fragment entry point
	WorkgroupSize [3]uint32
	// WritesDepth marks fragment stages that output frag_depth. They replace the
	// depth target unconditionally instead of depth testing.
	WritesDepth bool
}

// Resource is anything that can be bound to a shader slot.
type Resource interface {
	// Label returns the debug label given at creation.
	//
	// Returns:
	//   - string: the resource label
	Label() string

	// Release frees the underlying GPU memory. Using the resource afterwards is
	// a programmer error.
	Release()
}

// Texture is an allocated 2D or 3D texture.
type Texture interface {
	Resource

	// Desc returns the descriptor the texture was created with.
	//
	// Returns:
	//   - TextureDesc: the creation descriptor
	Desc() TextureDesc
}

// Buffer is an allocated linear buffer.
type Buffer interface {
	Resource

	// Desc returns the descriptor the buffer was created with.
	//
	// Returns:
	//   - BufferDesc: the creation descriptor
	Desc() BufferDesc
}

// Program is a compiled compute or graphics program.
type Program interface {
	// Key returns the program cache key.
	Key() string

	// Kind returns whether the program is compute or graphics.
	Kind() ProgramKind

	// WorkgroupSize returns the compute workgroup size declared by the shader.
	WorkgroupSize() [3]uint32
}

// Features lists optional device capabilities the GI passes depend on.
type Features struct {
	Compute      bool
	TypedUAVLoad bool
	Storage3D    bool
}

// Limits lists device resource limits.
type Limits struct {
	MaxTextureDimension2D uint32
	MaxTextureDimension3D uint32
	MaxBufferSize         uint64
}

// Viewport is a pixel rectangle of the current render target.
type Viewport struct {
	X, Y, Width, Height float32
}

// ReadbackTicket identifies a pending buffer readback.
type ReadbackTicket struct {
	ID    uint64
	Frame uint64
}

// Valid reports whether the ticket refers to an issued readback.
func (t ReadbackTicket) Valid() bool {
	return t.ID != 0
}

// Context is the GPU command stream. All calls are issued from a single
// submission goroutine; only allocation results are consulted by callers.
type Context interface {
	// Features returns the optional capabilities of the device.
	//
	// Returns:
	//   - Features: the device feature set
	Features() Features

	// Limits returns the device resource limits.
	//
	// Returns:
	//   - Limits: the device limits
	Limits() Limits

	// Frame returns the index of the frame currently being recorded.
	//
	// Returns:
	//   - uint64: the frame index
	Frame() uint64

	// CreateTexture allocates a texture.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the allocated texture
	//   - error: ErrTextureTooLarge when the size exceeds Limits, or a backend error
	CreateTexture(desc TextureDesc) (Texture, error)

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the allocated buffer
	//   - error: a backend error if allocation fails
	CreateBuffer(desc BufferDesc) (Buffer, error)

	// CreateProgram builds a compute or graphics program from shader source.
	//
	// Parameters:
	//   - desc: the program descriptor
	//
	// Returns:
	//   - Program: the compiled program
	//   - error: a backend error if compilation fails
	CreateProgram(desc ProgramDesc) (Program, error)

	// BindSR binds a read-only shader resource to a slot.
	//
	// Parameters:
	//   - slot: the shader resource slot index
	//   - r: the texture or buffer to bind, nil to unbind
	BindSR(slot int, r Resource)

	// BindUA binds a read-write (unordered access) resource to a slot.
	//
	// Parameters:
	//   - slot: the unordered access slot index
	//   - r: the texture or buffer to bind, nil to unbind
	BindUA(slot int, r Resource)

	// BindCB binds a constant buffer to a slot.
	//
	// Parameters:
	//   - slot: the constant buffer slot index
	//   - b: the buffer to bind
	BindCB(slot int, b Buffer)

	// ResetSR unbinds every shader resource slot.
	ResetSR()

	// ResetUA unbinds every unordered access slot.
	ResetUA()

	// Dispatch runs a compute program with the given group counts.
	//
	// Parameters:
	//   - p: the compute program
	//   - x, y, z: workgroup counts per axis
	Dispatch(p Program, x, y, z uint32)

	// DispatchIndirect runs a compute program with group counts read from a buffer.
	//
	// Parameters:
	//   - p: the compute program
	//   - args: buffer holding three uint32 group counts
	//   - offset: byte offset of the arguments within args
	DispatchIndirect(p Program, args Buffer, offset uint64)

	// SetRenderTarget selects the color (and optional depth) targets for draws.
	//
	// Parameters:
	//   - depth: depth target, may be nil
	//   - colors: color targets
	SetRenderTarget(depth Texture, colors ...Texture)

	// ResetRenderTarget clears the render target selection.
	ResetRenderTarget()

	// SetViewport restricts subsequent draws to a pixel rectangle.
	//
	// Parameters:
	//   - v: the viewport rectangle
	SetViewport(v Viewport)

	// DrawFullscreen draws a fullscreen triangle with a graphics program.
	//
	// Parameters:
	//   - p: the graphics program
	DrawFullscreen(p Program)

	// Draw draws non-indexed geometry with a graphics program.
	//
	// Parameters:
	//   - p: the graphics program
	//   - vertices: vertex count
	//   - instances: instance count
	Draw(p Program, vertices, instances uint32)

	// ClearTexture fills a whole texture with a value.
	//
	// Parameters:
	//   - t: the texture to clear
	//   - value: the clear value (only the channels of the format are used)
	ClearTexture(t Texture, value [4]float32)

	// ClearBuffer zeroes a whole buffer.
	//
	// Parameters:
	//   - b: the buffer to clear
	ClearBuffer(b Buffer)

	// UpdateBuffer uploads data into a buffer.
	//
	// Parameters:
	//   - b: the destination buffer
	//   - offset: destination byte offset
	//   - data: the bytes to upload
	UpdateBuffer(b Buffer, offset uint64, data []byte)

	// CopyBuffer copies size bytes from src to dst.
	//
	// Parameters:
	//   - dst: the destination buffer
	//   - src: the source buffer
	//   - size: byte count
	CopyBuffer(dst, src Buffer, size uint64)

	// ReadbackBuffer schedules a copy of a buffer to CPU memory.
	//
	// Parameters:
	//   - b: the buffer to read
	//   - size: byte count
	//
	// Returns:
	//   - ReadbackTicket: handle passed to TryRead
	ReadbackBuffer(b Buffer, size uint64) ReadbackTicket

	// TryRead returns the readback data if the GPU has finished with it.
	// Never blocks; returns false while the data is in flight.
	//
	// Parameters:
	//   - t: the ticket from ReadbackBuffer
	//
	// Returns:
	//   - []byte: the buffer contents
	//   - bool: true if the data is available
	TryRead(t ReadbackTicket) ([]byte, bool)

	// Flush submits the recorded commands and advances the frame index.
	Flush()
}

// ValidateTexture checks a descriptor against the device limits.
//
// Parameters:
//   - desc: the descriptor to validate
//   - limits: the device limits
//
// Returns:
//   - error: ErrTextureTooLarge wrapped with the offending size, or nil
func ValidateTexture(desc TextureDesc, limits Limits) error {
	maxDim := limits.MaxTextureDimension2D
	if desc.Dimension == Texture3D {
		maxDim = limits.MaxTextureDimension3D
		if desc.Depth > maxDim {
			return fmt.Errorf("%s depth %d > %d: %w", desc.Label, desc.Depth, maxDim, ErrTextureTooLarge)
		}
	}
	if desc.Width > maxDim || desc.Height > maxDim {
		return fmt.Errorf("%s %dx%d > %d: %w", desc.Label, desc.Width, desc.Height, maxDim, ErrTextureTooLarge)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("%s has zero size: %w", desc.Label, ErrUnsupported)
	}
	return nil
}

// GroupCount returns the number of workgroups needed to cover n threads.
func GroupCount(n, groupSize uint32) uint32 {
	if groupSize == 0 {
		groupSize = 1
	}
	return (n + groupSize - 1) / groupSize
}
