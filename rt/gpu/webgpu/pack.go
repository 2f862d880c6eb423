package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/coalumine/rt/bvh"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Scene buffer layout, all offsets in bytes:
//
//	header      : u32 instanceCount, u32 topNodeCount, u32 instancesOffset, u32 bottomsOffset
//	top nodes   : bvh.NodeSize each, at 16
//	instances   : instanceRecordSize each, at instancesOffset
//	bottoms     : per distinct bottom-level structure, its nodes followed by
//	              its triangles in leaf order, 3 x vec4<f32> each
//
// instance record:
//
//	world_to_object : mat4x4<f32> (64)
//	custom_index    : u32
//	mask            : u32
//	nodes_offset    : u32
//	tris_offset     : u32
//	padding         : u32[4]
const (
	headerSize         = 16
	instanceRecordSize = 96
	triangleSize       = 48
)

// bottomCapacity is the worst-case packed size of a bottom-level structure.
func bottomCapacity(maxTriangles int) int {
	n := max(maxTriangles, 1)
	return (2*n-1)*bvh.NodeSize + n*triangleSize
}

func sceneCapacity(maxInstances int, bottoms []*BottomAccel) uint64 {
	n := max(maxInstances, 1)
	size := headerSize + (2*n-1)*bvh.NodeSize + n*instanceRecordSize
	for _, b := range bottoms {
		size += bottomCapacity(b.maxTris)
	}
	return uint64(size)
}

// packBottom writes the tree and its triangles, reordered to leaf order.
func packBottom(tree *bvh.Tree, positions []mgl32.Vec3, indices []uint32) (nodes, tris []byte) {
	nodes = tree.Bytes()
	tris = make([]byte, len(tree.Order)*triangleSize)
	for i, prim := range tree.Order {
		for k := 0; k < 3; k++ {
			p := positions[indices[int(prim)*3+k]]
			off := i*triangleSize + k*16
			putF32(tris[off:], p.X())
			putF32(tris[off+4:], p.Y())
			putF32(tris[off+8:], p.Z())
		}
	}
	return nodes, tris
}

// packScene lays out the top-level tree, the instance records and every
// distinct bottom-level structure they reference.
func packScene(top *bvh.Tree, instances []gpu.Instance) []byte {
	topNodes := top.Bytes()
	instancesOffset := headerSize + len(topNodes)
	bottomsOffset := instancesOffset + len(instances)*instanceRecordSize

	type placed struct{ nodes, tris int }
	offsets := map[*BottomAccel]placed{}
	var bottoms []byte
	for _, inst := range instances {
		b := inst.Accel.(*BottomAccel)
		if _, ok := offsets[b]; ok {
			continue
		}
		p := placed{nodes: bottomsOffset + len(bottoms)}
		bottoms = append(bottoms, b.nodes...)
		p.tris = bottomsOffset + len(bottoms)
		bottoms = append(bottoms, b.tris...)
		offsets[b] = p
	}

	buf := make([]byte, bottomsOffset+len(bottoms))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(instances)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(top.Nodes)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(instancesOffset))
	binary.LittleEndian.PutUint32(buf[12:], uint32(bottomsOffset))
	copy(buf[headerSize:], topNodes)

	for i, inst := range instances {
		rec := buf[instancesOffset+i*instanceRecordSize:]
		inv := inst.Transform.Inv()
		for k, v := range inv {
			putF32(rec[k*4:], v)
		}
		p := offsets[inst.Accel.(*BottomAccel)]
		binary.LittleEndian.PutUint32(rec[64:], inst.CustomIndex)
		binary.LittleEndian.PutUint32(rec[68:], uint32(inst.Mask))
		binary.LittleEndian.PutUint32(rec[72:], uint32(p.nodes))
		binary.LittleEndian.PutUint32(rec[76:], uint32(p.tris))
	}
	copy(buf[bottomsOffset:], bottoms)
	return buf
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// alignRowPitch rounds a row up to the 256-byte copy alignment.
func alignRowPitch(bytes int) int {
	return (bytes + 255) &^ 255
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
