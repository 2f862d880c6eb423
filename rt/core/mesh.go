package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyAABB returns an inverted box that any Extend call will replace.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b AABB) IsEmpty() bool {
	return b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() || b.Min.Z() > b.Max.Z()
}

func (b AABB) Extend(p mgl32.Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

func (b AABB) Union(o AABB) AABB {
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Transform returns the box enclosing all eight corners of b under m.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		c := mgl32.Vec3{b.Min.X(), b.Min.Y(), b.Min.Z()}
		if i&1 != 0 {
			c[0] = b.Max.X()
		}
		if i&2 != 0 {
			c[1] = b.Max.Y()
		}
		if i&4 != 0 {
			c[2] = b.Max.Z()
		}
		out = out.Extend(m.Mul4x1(c.Vec4(1)).Vec3())
	}
	return out
}

// KeyFrameMesh is one geometry snapshot of a mesh.
type KeyFrameMesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func (k *KeyFrameMesh) VertexCount() int   { return len(k.Vertices) }
func (k *KeyFrameMesh) TriangleCount() int { return len(k.Indices) / 3 }

func (k *KeyFrameMesh) Bounds() AABB {
	b := EmptyAABB()
	for _, v := range k.Vertices {
		b = b.Extend(v.Position)
	}
	return b
}

// Mesh holds one or more topologically identical key-frame meshes. More than
// one key frame makes the mesh vertex-animated.
type Mesh struct {
	Name          string
	KeyFrames     []KeyFrameMesh
	MaterialIndex int
	Bounds        AABB
}

func NewMesh(keyFrames ...KeyFrameMesh) Mesh {
	m := Mesh{KeyFrames: keyFrames, MaterialIndex: -1}
	m.RecomputeBounds()
	return m
}

func (m *Mesh) IsAnimated() bool { return len(m.KeyFrames) > 1 }

// KeyFrameIndex clamps frame into [0, len(KeyFrames)-1].
func (m *Mesh) KeyFrameIndex(frame int) int {
	last := len(m.KeyFrames) - 1
	if frame < 0 {
		return 0
	}
	if frame > last {
		return last
	}
	return frame
}

func (m *Mesh) ResolveKeyFrame(frame int) *KeyFrameMesh {
	return &m.KeyFrames[m.KeyFrameIndex(frame)]
}

func (m *Mesh) MaxVertexCount() int {
	n := 0
	for i := range m.KeyFrames {
		n = max(n, m.KeyFrames[i].VertexCount())
	}
	return n
}

func (m *Mesh) MaxTriangleCount() int {
	n := 0
	for i := range m.KeyFrames {
		n = max(n, m.KeyFrames[i].TriangleCount())
	}
	return n
}

// RecomputeBounds sets Bounds to the union over all key frames.
func (m *Mesh) RecomputeBounds() {
	b := EmptyAABB()
	for i := range m.KeyFrames {
		b = b.Union(m.KeyFrames[i].Bounds())
	}
	m.Bounds = b
}
