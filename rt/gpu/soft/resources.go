package soft

import (
	"github.com/gekko3d/coalumine/rt/bvh"
	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

type Buffer struct {
	label  string
	data   []byte
	addr   uint64
	memory gpu.MemoryKind
}

func (b *Buffer) Label() string   { return b.label }
func (b *Buffer) Size() uint64    { return uint64(len(b.data)) }
func (b *Buffer) Address() uint64 { return b.addr }
func (b *Buffer) Map() []byte     { return b.data }

func (b *Buffer) Memory() gpu.MemoryKind { return b.memory }

func (b *Buffer) Write(offset uint64, data []byte) {
	copy(b.data[offset:], data)
}

type Image struct {
	label  string
	width  int
	height int
	depth  int
	format gpu.ImageFormat
	pixels []byte
}

func (i *Image) Label() string           { return i.label }
func (i *Image) Width() int              { return i.width }
func (i *Image) Height() int             { return i.height }
func (i *Image) Format() gpu.ImageFormat { return i.format }

// Pixels exposes image memory, tightly packed. Tests fill it to stand in for
// shader output.
func (i *Image) Pixels() []byte { return i.pixels }

type BottomAccel struct {
	label       string
	geometry    gpu.TriangleGeometry
	maxVertices int
	maxTris     int
	tree        *bvh.Tree
	builds      int
	updates     int
}

func (a *BottomAccel) Label() string                  { return a.label }
func (a *BottomAccel) Update(g gpu.TriangleGeometry)  { a.geometry = g }
func (a *BottomAccel) Geometry() gpu.TriangleGeometry { return a.geometry }
func (a *BottomAccel) Tree() *bvh.Tree                { return a.tree }
func (a *BottomAccel) Builds() int                    { return a.builds }
func (a *BottomAccel) Updates() int                   { return a.updates }

func (a *BottomAccel) Capacity() (vertices, triangles int) {
	return a.maxVertices, a.maxTris
}

func (a *BottomAccel) positions() ([]uint32, []mgl32.Vec3) {
	g := a.geometry
	idx := gpu.DecodeIndices(g.Indices.Map(), g.TriangleCount*3)
	pos := gpu.DecodePositions(g.Vertices.Map(), g.VertexCount)
	return idx, pos
}

func (a *BottomAccel) build() {
	idx, pos := a.positions()
	a.tree = bvh.BuildTriangles(pos, idx, a.geometry.TriangleCount)
	a.builds++
}

// refit keeps the tree topology; key frames of one mesh share it.
func (a *BottomAccel) refit() {
	if a.tree == nil {
		a.build()
		return
	}
	idx, pos := a.positions()
	bvh.RefitTriangles(a.tree, pos, idx, a.geometry.TriangleCount)
	a.updates++
}

type TopAccel struct {
	label        string
	maxInstances int
	instances    []gpu.Instance
	tree         *bvh.Tree
	builds       int
}

func (t *TopAccel) Label() string { return t.label }

func (t *TopAccel) UpdateInstances(instances []gpu.Instance) {
	t.instances = append(t.instances[:0], instances...)
}

func (t *TopAccel) InstanceCount() int        { return len(t.instances) }
func (t *TopAccel) Instances() []gpu.Instance { return t.instances }
func (t *TopAccel) Tree() *bvh.Tree           { return t.tree }
func (t *TopAccel) Builds() int               { return t.builds }

func (t *TopAccel) build() {
	bounds := make([]core.AABB, len(t.instances))
	for i, inst := range t.instances {
		blas := inst.Accel.(*BottomAccel)
		if blas.tree == nil {
			blas.build()
		}
		bounds[i] = blas.tree.Bounds().Transform(inst.Transform)
	}
	t.tree = bvh.BuildInstances(bounds)
	t.builds++
}

type Pipeline struct {
	label    string
	kind     string
	bindings []gpu.Binding
	pushSize int
}

func (p *Pipeline) Label() string           { return p.label }
func (p *Pipeline) Kind() string            { return p.kind }
func (p *Pipeline) Bindings() []gpu.Binding { return p.bindings }
