package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	NodeDataSize = 112
	MaterialSize = 80
)

// NodeData is the per-node record hit programs index by instance custom
// index.
//
//	vertex_addr:    u64        offset 0
//	index_addr:     u64        offset 8
//	aabb_min:       vec3<f32>  offset 16
//	material_index: i32        offset 28
//	aabb_max:       vec3<f32>  offset 32
//	mesh_index:     i32        offset 44
//	normal_matrix:  mat4x4     offset 48
type NodeData struct {
	VertexAddress uint64
	IndexAddress  uint64
	AABBMin       mgl32.Vec3
	MaterialIndex int32
	AABBMax       mgl32.Vec3
	MeshIndex     int32
	NormalMatrix  mgl32.Mat4
}

// EmptyNodeData is the record of a node without a mesh.
func EmptyNodeData() NodeData {
	return NodeData{MaterialIndex: -1, MeshIndex: -1}
}

func (n *NodeData) Put(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], n.VertexAddress)
	binary.LittleEndian.PutUint64(buf[8:], n.IndexAddress)
	putVec3(buf[16:], n.AABBMin)
	binary.LittleEndian.PutUint32(buf[28:], uint32(n.MaterialIndex))
	putVec3(buf[32:], n.AABBMax)
	binary.LittleEndian.PutUint32(buf[44:], uint32(n.MeshIndex))
	putMat4(buf[48:], n.NormalMatrix)
}

func EncodeNodeData(nodes []NodeData) []byte {
	buf := make([]byte, len(nodes)*NodeDataSize)
	for i := range nodes {
		nodes[i].Put(buf[i*NodeDataSize:])
	}
	return buf
}

// DecodeNodeData reads back one record, mainly for inspection in tests.
func DecodeNodeData(buf []byte) NodeData {
	var n NodeData
	n.VertexAddress = binary.LittleEndian.Uint64(buf[0:])
	n.IndexAddress = binary.LittleEndian.Uint64(buf[8:])
	n.AABBMin = getVec3(buf[16:])
	n.MaterialIndex = int32(binary.LittleEndian.Uint32(buf[28:]))
	n.AABBMax = getVec3(buf[32:])
	n.MeshIndex = int32(binary.LittleEndian.Uint32(buf[44:]))
	for i := 0; i < 16; i++ {
		n.NormalMatrix[i] = getF32(buf[48+i*4:])
	}
	return n
}

// EncodeMaterials writes 80-byte records: five texture indices padded to 32,
// base color at 32, emissive at 48, then metallic, roughness, ior and
// dispersion.
func EncodeMaterials(materials []core.Material) []byte {
	buf := make([]byte, len(materials)*MaterialSize)
	for i, m := range materials {
		b := buf[i*MaterialSize:]
		binary.LittleEndian.PutUint32(b[0:], uint32(int32(m.BaseColorTexture)))
		binary.LittleEndian.PutUint32(b[4:], uint32(int32(m.MetallicRoughnessTexture)))
		binary.LittleEndian.PutUint32(b[8:], uint32(int32(m.NormalTexture)))
		binary.LittleEndian.PutUint32(b[12:], uint32(int32(m.OcclusionTexture)))
		binary.LittleEndian.PutUint32(b[16:], uint32(int32(m.EmissiveTexture)))
		putVec4(b[32:], m.BaseColorFactor)
		putVec3(b[48:], m.EmissiveFactor)
		putF32(b[60:], m.MetallicFactor)
		putF32(b[64:], m.RoughnessFactor)
		putF32(b[68:], m.IOR)
		putF32(b[72:], m.Dispersion)
	}
	return buf
}

func EncodeVertices(vertices []core.Vertex) []byte {
	buf := make([]byte, len(vertices)*VertexStride)
	for i, v := range vertices {
		b := buf[i*VertexStride:]
		putVec3(b[0:], v.Position)
		putVec3(b[12:], v.Normal)
		putF32(b[24:], v.TexCoord.X())
		putF32(b[28:], v.TexCoord.Y())
	}
	return buf
}

// DecodePositions reads vertex positions back out of an EncodeVertices buffer.
func DecodePositions(buf []byte, count int) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, count)
	for i := range out {
		out[i] = getVec3(buf[i*VertexStride:])
	}
	return out
}

func EncodeIndices(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

func DecodeIndices(buf []byte, count int) []uint32 {
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

// EncodeFloats packs float texel data, e.g. RGBA32F textures.
func EncodeFloats(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		putF32(buf[i*4:], v)
	}
	return buf
}

// LayoutWriter appends std430-style fields to a byte slice.
type LayoutWriter struct {
	buf []byte
}

func (w *LayoutWriter) Mat4(m mgl32.Mat4) *LayoutWriter {
	for _, v := range m {
		w.F32(v)
	}
	return w
}

func (w *LayoutWriter) Vec4(v mgl32.Vec4) *LayoutWriter {
	for _, c := range v {
		w.F32(c)
	}
	return w
}

// Vec3 writes v padded to 16 bytes with w in the fourth lane.
func (w *LayoutWriter) Vec3(v mgl32.Vec3, pad float32) *LayoutWriter {
	return w.Vec4(v.Vec4(pad))
}

func (w *LayoutWriter) F32(v float32) *LayoutWriter {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	return w
}

func (w *LayoutWriter) I32(v int32) *LayoutWriter {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	return w
}

func (w *LayoutWriter) Bool(v bool) *LayoutWriter {
	if v {
		return w.I32(1)
	}
	return w.I32(0)
}

// Align pads with zeros to a multiple of n bytes.
func (w *LayoutWriter) Align(n int) *LayoutWriter {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
	return w
}

func (w *LayoutWriter) Bytes() []byte { return w.buf }

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putVec3(b []byte, v mgl32.Vec3) {
	putF32(b[0:], v.X())
	putF32(b[4:], v.Y())
	putF32(b[8:], v.Z())
}

func getVec3(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{getF32(b[0:]), getF32(b[4:]), getF32(b[8:])}
}

func putVec4(b []byte, v mgl32.Vec4) {
	for i, c := range v {
		putF32(b[i*4:], c)
	}
}

func putMat4(b []byte, m mgl32.Mat4) {
	for i, v := range m {
		putF32(b[i*4:], v)
	}
}
