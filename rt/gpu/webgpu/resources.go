package webgpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/coalumine/rt/bvh"
	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Buffer mirrors its contents on the host. Geometry is read back from the
// mirror when acceleration structures are built, and readback buffers
// land in it after WaitIdle.
type Buffer struct {
	label    string
	buf      *wgpu.Buffer
	shadow   []byte
	addr     uint64
	memory   gpu.MemoryKind
	readback bool
	queue    *wgpu.Queue
}

func (b *Buffer) Label() string   { return b.label }
func (b *Buffer) Size() uint64    { return uint64(len(b.shadow)) }
func (b *Buffer) Address() uint64 { return b.addr }
func (b *Buffer) Map() []byte     { return b.shadow }

func (b *Buffer) Write(offset uint64, data []byte) {
	copy(b.shadow[offset:], data)
	if !b.readback {
		b.queue.WriteBuffer(b.buf, offset, padTo4(data))
	}
}

func (b *Buffer) release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// padTo4 satisfies the queue's 4-byte write granularity.
func padTo4(data []byte) []byte {
	if n := align4(uint64(len(data))); n != uint64(len(data)) {
		out := make([]byte, n)
		copy(out, data)
		return out
	}
	return data
}

type Image struct {
	label  string
	width  int
	height int
	depth  int
	format gpu.ImageFormat
	tex    *wgpu.Texture
	view   *wgpu.TextureView
}

func (i *Image) Label() string           { return i.label }
func (i *Image) Width() int              { return i.width }
func (i *Image) Height() int             { return i.height }
func (i *Image) Format() gpu.ImageFormat { return i.format }

func (i *Image) release() {
	if i.view != nil {
		i.view.Release()
	}
	if i.tex != nil {
		i.tex.Release()
	}
}

func textureFormat(f gpu.ImageFormat) wgpu.TextureFormat {
	switch f {
	case gpu.FormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm
	case gpu.FormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float
	}
	return wgpu.TextureFormatRGBA8Unorm
}

// BottomAccel is a CPU tree over the current geometry. Its packed bytes are
// copied into every top-level scene buffer that references it.
type BottomAccel struct {
	label    string
	geometry gpu.TriangleGeometry
	maxTris  int
	tree     *bvh.Tree
	nodes    []byte
	tris     []byte
}

func (a *BottomAccel) Update(g gpu.TriangleGeometry)  { a.geometry = g }
func (a *BottomAccel) Geometry() gpu.TriangleGeometry { return a.geometry }

func (a *BottomAccel) positions() ([]mgl32.Vec3, []uint32) {
	g := a.geometry
	return gpu.DecodePositions(g.Vertices.Map(), g.VertexCount),
		gpu.DecodeIndices(g.Indices.Map(), g.TriangleCount*3)
}

func (a *BottomAccel) build() {
	pos, idx := a.positions()
	a.tree = bvh.BuildTriangles(pos, idx, a.geometry.TriangleCount)
	a.nodes, a.tris = packBottom(a.tree, pos, idx)
}

func (a *BottomAccel) refit() {
	if a.tree == nil {
		a.build()
		return
	}
	pos, idx := a.positions()
	bvh.RefitTriangles(a.tree, pos, idx, a.geometry.TriangleCount)
	a.nodes, a.tris = packBottom(a.tree, pos, idx)
}

// TopAccel owns the scene buffer bound wherever the structure is bound.
type TopAccel struct {
	label     string
	instances []gpu.Instance
	buf       *wgpu.Buffer
	capacity  uint64
}

func (t *TopAccel) UpdateInstances(instances []gpu.Instance) {
	t.instances = append(t.instances[:0], instances...)
}

func (t *TopAccel) InstanceCount() int { return len(t.instances) }

func (t *TopAccel) pack() []byte {
	bounds := make([]core.AABB, len(t.instances))
	for i, inst := range t.instances {
		b := inst.Accel.(*BottomAccel)
		if b.tree == nil {
			b.build()
		}
		bounds[i] = b.tree.Bounds().Transform(inst.Transform)
	}
	return packScene(bvh.BuildInstances(bounds), t.instances)
}

// Pipeline is a compute pipeline with one bind group. Push constants live
// in a uniform buffer bound after the declared bindings.
type Pipeline struct {
	label     string
	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup
	push      *wgpu.Buffer
	pushSize  uint64
}

func (p *Pipeline) Label() string { return p.label }

func (p *Pipeline) release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	if p.push != nil {
		p.push.Release()
	}
	if p.pipeline != nil {
		p.pipeline.Release()
	}
}
