package bvh

import (
	"github.com/gekko3d/coalumine/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

const TriangleLeafSize = 4

// TriangleBounds returns one box per triangle of an indexed list.
func TriangleBounds(positions []mgl32.Vec3, indices []uint32, triangleCount int) []core.AABB {
	out := make([]core.AABB, triangleCount)
	for i := 0; i < triangleCount; i++ {
		b := core.EmptyAABB()
		for k := 0; k < 3; k++ {
			b = b.Extend(positions[indices[i*3+k]])
		}
		out[i] = b
	}
	return out
}

// BuildTriangles builds a bottom-level tree over an indexed triangle list.
func BuildTriangles(positions []mgl32.Vec3, indices []uint32, triangleCount int) *Tree {
	b := &Builder{MaxLeafSize: TriangleLeafSize}
	return b.Build(TriangleBounds(positions, indices, triangleCount))
}

// RefitTriangles updates t in place for moved vertices of the same topology.
func RefitTriangles(t *Tree, positions []mgl32.Vec3, indices []uint32, triangleCount int) {
	t.Refit(TriangleBounds(positions, indices, triangleCount))
}
