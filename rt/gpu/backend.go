// Package gpu declares the device contract the renderer records against and
// the byte layouts of the records it shares with GPU programs.
package gpu

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is the size of one core.Vertex on the GPU: position, normal
// and texcoord, each padded into 32 bytes.
const VertexStride = 32

type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageAccelInput
	BufferUsageStaging
)

type MemoryKind int

const (
	MemoryDevice MemoryKind = iota
	MemoryHost
)

type BufferDesc struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

type ImageFormat int

const (
	FormatRGBA8Unorm ImageFormat = iota
	FormatBGRA8Unorm
	FormatRGBA32Float
)

func (f ImageFormat) BytesPerPixel() int {
	if f == FormatRGBA32Float {
		return 16
	}
	return 4
}

type ImageDesc struct {
	Label  string
	Width  int
	Height int
	Depth  int // 1 for 2D images
	Format ImageFormat
	// Data is optional initial texel data, tightly packed.
	Data []byte
}

type Stage int

const (
	StageHost Stage = iota
	StageTransfer
	StageAccelBuild
	StageRayTracing
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageHost:
		return "host"
	case StageTransfer:
		return "transfer"
	case StageAccelBuild:
		return "accel-build"
	case StageRayTracing:
		return "ray-tracing"
	case StageCompute:
		return "compute"
	}
	return "unknown"
}

type Access int

const (
	AccessNone Access = iota
	AccessShaderRead
	AccessShaderWrite
	AccessAccelRead
	AccessAccelWrite
	AccessTransferRead
	AccessTransferWrite
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutTransferSrc
	LayoutShaderReadOnly
)

// Buffer is a linear allocation. Address is the device address handed to
// ray-tracing programs as a raw geometry pointer.
type Buffer interface {
	Label() string
	Size() uint64
	Address() uint64
	// Write copies data into a host-visible buffer at offset.
	Write(offset uint64, data []byte)
	// Map returns host memory of a host-visible buffer. The slice stays
	// valid until the buffer is reused by the device.
	Map() []byte
}

type Image interface {
	Label() string
	Width() int
	Height() int
	Format() ImageFormat
}

// TriangleGeometry points a bottom-level structure at vertex and index data.
type TriangleGeometry struct {
	Vertices      Buffer
	Indices       Buffer
	VertexCount   int
	TriangleCount int
}

type BottomAccelDesc struct {
	Label            string
	Geometry         TriangleGeometry
	MaxVertexCount   int
	MaxTriangleCount int
	AllowUpdate      bool
}

type BottomAccel interface {
	// Update repoints the structure at new geometry; the next recorded
	// build or update consumes it.
	Update(geometry TriangleGeometry)
	Geometry() TriangleGeometry
}

// Instance places a bottom-level structure in the top-level one.
// CustomIndex is visible to hit programs.
type Instance struct {
	Accel       BottomAccel
	Transform   mgl32.Mat4
	CustomIndex uint32
	Mask        uint8
}

type TopAccelDesc struct {
	Label        string
	Instances    []Instance
	MaxInstances int
	AllowUpdate  bool
}

type TopAccel interface {
	UpdateInstances(instances []Instance)
	InstanceCount() int
}

// Binding is one resource slot of a pipeline, in binding order.
type Binding struct {
	Name   string
	Buffer Buffer
	Image  Image
	Accel  TopAccel
}

type ComputePipelineDesc struct {
	Label            string
	Shader           ShaderSource
	Bindings         []Binding
	PushConstantSize int
}

type RayTracingPipelineDesc struct {
	Label            string
	RayGen           ShaderSource
	Miss             []ShaderSource
	ClosestHit       []ShaderSource
	Bindings         []Binding
	PushConstantSize int
	MaxRecursion     int
}

type Pipeline interface {
	Label() string
}

// CommandBuffer records GPU work. Recording never fails; errors surface at
// submission or as device loss.
type CommandBuffer interface {
	CopyBuffer(dst Buffer, offset uint64, data []byte)
	BuildBottomAccel(a BottomAccel)
	UpdateBottomAccel(a BottomAccel)
	BuildTopAccel(a TopAccel)
	UpdateTopAccel(a TopAccel)
	MemoryBarrier(srcStage, dstStage Stage, srcAccess, dstAccess Access)
	ImageBarrier(img Image, srcStage, dstStage Stage, srcAccess, dstAccess Access)
	TransitionLayout(img Image, layout ImageLayout)
	BindPipeline(p Pipeline)
	PushConstants(p Pipeline, data []byte)
	TraceRays(p Pipeline, width, height, depth int)
	Dispatch(p Pipeline, x, y, z int)
	CopyImageToBuffer(src Image, dst Buffer)
	End()
}

// UploadToken completes when a scoped upload has finished on the device.
type UploadToken interface {
	Wait(ctx context.Context) error
}

type Device interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateImage(desc ImageDesc) (Image, error)
	CreateBottomAccel(desc BottomAccelDesc) (BottomAccel, error)
	CreateTopAccel(desc TopAccelDesc) (TopAccel, error)
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	CreateRayTracingPipeline(desc RayTracingPipelineDesc) (Pipeline, error)

	BeginCommands() CommandBuffer
	Submit(cmd CommandBuffer) error
	// Upload records fn into a one-time command buffer and submits it.
	Upload(fn func(cmd CommandBuffer)) (UploadToken, error)
	WaitIdle() error

	// CopyRowPitch is the byte stride of rows written by CopyImageToBuffer.
	CopyRowPitch(width, bytesPerPixel int) int
	Release()
}

// JoinUploads waits for every token in order.
func JoinUploads(ctx context.Context, tokens ...UploadToken) error {
	for _, t := range tokens {
		if t == nil {
			continue
		}
		if err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DoneToken is an UploadToken that has already completed.
type DoneToken struct{}

func (DoneToken) Wait(ctx context.Context) error { return ctx.Err() }
