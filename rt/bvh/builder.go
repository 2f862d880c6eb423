package bvh

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// NodeSize matches the WGSL BVHNode:
//
//	struct BVHNode {
//	   aabb_min : vec4<f32>; (16)
//	   aabb_max : vec4<f32>; (16)
//	   left : i32; (4)
//	   right : i32; (4)
//	   leaf_first : i32; (4)
//	   leaf_count : i32; (4)
//	   padding : i32[4]; (16)
//	}; -> 64 bytes
const NodeSize = 64

// Node is an interior node when Left >= 0, otherwise a leaf covering
// Order[LeafFirst : LeafFirst+LeafCount].
type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) IsLeaf() bool { return n.Left < 0 }

func (n *Node) Put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(buf[28:32], 0)

	binary.LittleEndian.PutUint32(buf[32:36], uint32(n.Left))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(n.Right))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(n.LeafFirst))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(n.LeafCount))
}

// Tree is a flattened hierarchy. Children always follow their parent, so
// iterating Nodes backwards visits children first.
type Tree struct {
	Nodes []Node
	Order []uint32
}

// Bytes serializes the nodes; an empty tree still yields one empty root.
func (t *Tree) Bytes() []byte {
	if len(t.Nodes) == 0 {
		empty := Node{Left: -1, Right: -1, LeafFirst: -1}
		buf := make([]byte, NodeSize)
		empty.Put(buf)
		return buf
	}
	buf := make([]byte, len(t.Nodes)*NodeSize)
	for i := range t.Nodes {
		t.Nodes[i].Put(buf[i*NodeSize:])
	}
	return buf
}

// OrderBytes serializes the leaf primitive order as u32s.
func (t *Tree) OrderBytes() []byte {
	buf := make([]byte, max(len(t.Order), 1)*4)
	for i, v := range t.Order {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func (t *Tree) Bounds() core.AABB {
	if len(t.Nodes) == 0 {
		return core.EmptyAABB()
	}
	return core.AABB{Min: t.Nodes[0].Min, Max: t.Nodes[0].Max}
}

// Refit recomputes node bounds for moved primitives without changing the
// topology. bounds must be indexed like the primitives the tree was built
// from.
func (t *Tree) Refit(bounds []core.AABB) {
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		b := core.EmptyAABB()
		if n.IsLeaf() {
			for _, p := range t.Order[n.LeafFirst : n.LeafFirst+n.LeafCount] {
				b = b.Union(bounds[p])
			}
		} else {
			l, r := t.Nodes[n.Left], t.Nodes[n.Right]
			b = b.Union(core.AABB{Min: l.Min, Max: l.Max}).Union(core.AABB{Min: r.Min, Max: r.Max})
		}
		n.Min, n.Max = b.Min, b.Max
	}
}

type item struct {
	bounds   core.AABB
	centroid mgl32.Vec3
	index    uint32
}

// Builder performs a recursive median split on the longest axis of each
// node's bounds.
type Builder struct {
	MaxLeafSize int
}

func (b *Builder) Build(bounds []core.AABB) *Tree {
	t := &Tree{}
	if len(bounds) == 0 {
		return t
	}

	items := make([]item, len(bounds))
	for i, bb := range bounds {
		items[i] = item{bounds: bb, centroid: bb.Center(), index: uint32(i)}
	}
	t.Order = make([]uint32, 0, len(bounds))
	b.recursiveBuild(items, t)
	return t
}

func (b *Builder) recursiveBuild(items []item, t *Tree) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, LeafFirst: -1, LeafCount: 0})

	bounds := core.EmptyAABB()
	for _, it := range items {
		bounds = bounds.Union(it.bounds)
	}
	t.Nodes[idx].Min = bounds.Min
	t.Nodes[idx].Max = bounds.Max

	leafSize := max(b.MaxLeafSize, 1)
	if len(items) <= leafSize {
		t.Nodes[idx].LeafFirst = int32(len(t.Order))
		t.Nodes[idx].LeafCount = int32(len(items))
		for _, it := range items {
			t.Order = append(t.Order, it.index)
		}
		return idx
	}

	extent := bounds.Max.Sub(bounds.Min)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := b.recursiveBuild(items[:mid], t)
	right := b.recursiveBuild(items[mid:], t)
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right

	return idx
}

// BuildInstances builds a top-level tree with one instance per leaf.
func BuildInstances(bounds []core.AABB) *Tree {
	b := &Builder{MaxLeafSize: 1}
	return b.Build(bounds)
}
