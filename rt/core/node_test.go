package core

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func animatedNode(n int) Node {
	node := NewNode()
	for i := 0; i < n; i++ {
		kf := KeyFrame{Time: float32(i), Transform: IdentityTransform()}
		kf.Translation = mgl32.Vec3{float32(i), 0, 0}
		kf.Rotation = mgl32.QuatRotate(float32(i)*0.5, mgl32.Vec3{0, 1, 0})
		node.KeyFrames = append(node.KeyFrames, kf)
	}
	return node
}

func TestStaticTransformInvariance(t *testing.T) {
	n := NewNode()
	n.Translation = mgl32.Vec3{1, 2, 3}
	n.Rotation = mgl32.QuatRotate(0.7, mgl32.Vec3{0, 0, 1})
	n.Scale = mgl32.Vec3{2, 2, 2}
	nodes := []Node{n}

	ref := EvaluateTransform(nodes, 0, 0)
	for _, frame := range []int{1, 2, 17, 1000} {
		assert.Equal(t, ref, EvaluateTransform(nodes, 0, frame), "frame %d", frame)
	}
}

func TestKeyFramePeriodicity(t *testing.T) {
	for _, k := range []int{1, 2, 3, 7} {
		nodes := []Node{animatedNode(k)}
		for frame := 0; frame < 20; frame++ {
			assert.Equal(t,
				EvaluateTransform(nodes, 0, frame),
				EvaluateTransform(nodes, 0, frame+k),
				"k=%d frame=%d", k, frame)
		}
	}
}

func TestKeyFrameWrap(t *testing.T) {
	n := animatedNode(3)
	assert.Equal(t, 2, n.KeyFrameIndex(5))
	assert.Equal(t, n.KeyFrames[2].Matrix(), n.LocalTransform(5))
	assert.Equal(t, 0, n.KeyFrameIndex(-4))
}

func TestKeyFramesOverrideStatic(t *testing.T) {
	n := animatedNode(2)
	n.Translation = mgl32.Vec3{50, 50, 50}
	m := n.LocalTransform(0)
	assert.Equal(t, float32(0), m.Col(3).X())
}

func TestParentChain(t *testing.T) {
	root := NewNode()
	root.Translation = mgl32.Vec3{10, 0, 0}
	child := NewNode()
	child.Translation = mgl32.Vec3{0, 5, 0}
	child.Parent = 0
	grandchild := animatedNode(2)
	grandchild.Parent = 1
	nodes := []Node{root, child, grandchild}
	require.NoError(t, ValidateHierarchy(nodes))

	m := EvaluateTransform(nodes, 2, 1)
	pos := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 11, pos.X(), 1e-5)
	assert.InDelta(t, 5, pos.Y(), 1e-5)

	LinkChildren(nodes)
	assert.Equal(t, []int{1}, nodes[0].Children)
	assert.Equal(t, []int{2}, nodes[1].Children)
}

func TestValidateHierarchy(t *testing.T) {
	a, b := NewNode(), NewNode()
	a.Parent, b.Parent = 1, 0
	err := ValidateHierarchy([]Node{a, b})
	assert.True(t, errors.Is(err, ErrHierarchyCycle))

	c := NewNode()
	c.Parent = 5
	err = ValidateHierarchy([]Node{c})
	assert.True(t, errors.Is(err, ErrInvalidParent))
}

func TestNormalMatrix(t *testing.T) {
	n := NewNode()
	n.Scale = mgl32.Vec3{2, 1, 1}
	nodes := []Node{n}

	nm := EvaluateNormalMatrix(nodes, 0, 0)
	assert.InDelta(t, 0.5, nm.At(0, 0), 1e-6)
	assert.InDelta(t, 1, nm.At(1, 1), 1e-6)

	// pure rotation: normal matrix equals the rotation
	r := NewNode()
	r.Rotation = mgl32.QuatRotate(1.1, mgl32.Vec3{0, 1, 0})
	rm := EvaluateNormalMatrix([]Node{r}, 0, 0)
	assert.True(t, rm.ApproxEqualThreshold(r.Rotation.Mat4(), 1e-5))
}

func TestEulerToQuat(t *testing.T) {
	q := EulerToQuat(mgl32.Vec3{0, mgl32.DegToRad(90), 0})
	v := q.Rotate(mgl32.Vec3{0, 0, 1})
	assert.InDelta(t, 1, v.X(), 1e-5)
	assert.InDelta(t, 0, v.Z(), 1e-5)
}
