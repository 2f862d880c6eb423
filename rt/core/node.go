package core

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrHierarchyCycle = errors.New("node hierarchy contains a cycle")
	ErrInvalidParent  = errors.New("node parent index out of range")
)

type KeyFrame struct {
	Time float32
	Transform
}

// Node is an entry of the scene graph arena. Parent and Children are indices
// into the same arena; -1 means no parent.
type Node struct {
	Name                  string
	MeshIndex             int
	OverrideMaterialIndex int
	Transform
	KeyFrames []KeyFrame
	Parent    int
	Children  []int
}

func NewNode() Node {
	return Node{
		MeshIndex:             -1,
		OverrideMaterialIndex: -1,
		Transform:             IdentityTransform(),
		Parent:                -1,
	}
}

func (n *Node) HasMesh() bool { return n.MeshIndex >= 0 }

func (n *Node) IsAnimated() bool { return len(n.KeyFrames) > 0 }

// KeyFrameIndex returns frame mod len(KeyFrames). Negative frames map to 0.
func (n *Node) KeyFrameIndex(frame int) int {
	if len(n.KeyFrames) == 0 {
		return -1
	}
	if frame < 0 {
		frame = 0
	}
	return frame % len(n.KeyFrames)
}

// LocalTransform is the parent-relative matrix at frame. Keyframes, when
// present, replace the static fields and are never interpolated.
func (n *Node) LocalTransform(frame int) mgl32.Mat4 {
	if len(n.KeyFrames) == 0 {
		return n.Transform.Matrix()
	}
	return n.KeyFrames[n.KeyFrameIndex(frame)].Matrix()
}

// EvaluateTransform walks the parent chain of node i, premultiplying every
// ancestor evaluated at the same frame. The hierarchy must be acyclic; see
// ValidateHierarchy.
func EvaluateTransform(nodes []Node, i int, frame int) mgl32.Mat4 {
	m := nodes[i].LocalTransform(frame)
	for p := nodes[i].Parent; p >= 0; p = nodes[p].Parent {
		m = nodes[p].LocalTransform(frame).Mul4(m)
	}
	return m
}

func EvaluateNormalMatrix(nodes []Node, i int, frame int) mgl32.Mat4 {
	return NormalMatrix(EvaluateTransform(nodes, i, frame))
}

// ValidateHierarchy checks every parent index is in range and that no parent
// chain loops back on itself.
func ValidateHierarchy(nodes []Node) error {
	for i := range nodes {
		steps := 0
		for p := nodes[i].Parent; p >= 0; p = nodes[p].Parent {
			if p >= len(nodes) {
				return fmt.Errorf("%w: node %d has parent %d", ErrInvalidParent, i, p)
			}
			steps++
			if steps > len(nodes) {
				return fmt.Errorf("%w: reached from node %d", ErrHierarchyCycle, i)
			}
		}
	}
	return nil
}

// LinkChildren rebuilds every Children list from the Parent indices.
func LinkChildren(nodes []Node) {
	for i := range nodes {
		nodes[i].Children = nodes[i].Children[:0]
	}
	for i := range nodes {
		if p := nodes[i].Parent; p >= 0 && p < len(nodes) {
			nodes[p].Children = append(nodes[p].Children, i)
		}
	}
}
