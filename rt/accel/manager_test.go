package accel

import (
	"bytes"
	"context"
	"testing"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/gpu/soft"
	"github.com/gekko3d/coalumine/rt/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tri(x float32) core.KeyFrameMesh {
	return core.KeyFrameMesh{
		Vertices: []core.Vertex{
			{Position: mgl32.Vec3{x, 0, 0}},
			{Position: mgl32.Vec3{x + 1, 0, 0}},
			{Position: mgl32.Vec3{x, 1, 0}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

type fixture struct {
	dev   *soft.Device
	scene *scene.Scene
	mgr   *Manager
}

func setup(t *testing.T, build func(b *scene.Builder)) fixture {
	t.Helper()
	b := scene.NewBuilder()
	build(b)
	s, err := b.Build()
	require.NoError(t, err)
	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))
	mgr := New(dev, s, nil)
	require.NoError(t, mgr.Build(context.Background()))
	return fixture{dev: dev, scene: s, mgr: mgr}
}

func meshedNode(mesh int) core.Node {
	n := core.NewNode()
	n.MeshIndex = mesh
	return n
}

func staticScene(b *scene.Builder) {
	b.AddMaterial(core.DefaultMaterial())
	mi := b.AddMesh(core.NewMesh(tri(0)))
	b.AddNode(meshedNode(mi))
	b.AddNode(core.NewNode())
	b.AddNode(meshedNode(mi))
}

func TestBuildStates(t *testing.T) {
	f := setup(t, func(b *scene.Builder) {
		b.AddMesh(core.NewMesh(tri(0)))
		b.AddMesh(core.NewMesh(tri(0), tri(1)))
		b.AddNode(meshedNode(0))
		b.AddNode(meshedNode(1))
	})

	assert.Equal(t, Built, f.mgr.BottomState(0))
	assert.Equal(t, Built, f.mgr.BottomState(1))
	assert.Equal(t, Built, f.mgr.TopState())
	assert.Equal(t, Unbuilt, f.mgr.BottomState(7))
	assert.Equal(t, []int{1}, f.mgr.AnimatedMeshes())
	assert.Equal(t, 2, f.mgr.InstanceCount())

	cmd := f.dev.BeginCommands()
	f.mgr.UpdateBottom(cmd, 1)
	f.mgr.UpdateTop(cmd, 1)
	cmd.End()
	require.NoError(t, f.dev.Submit(cmd))

	assert.Equal(t, Built, f.mgr.BottomState(0), "static meshes stay built")
	assert.Equal(t, Updated, f.mgr.BottomState(1))
	assert.Equal(t, Updated, f.mgr.TopState())

	blas := f.mgr.BottomAccel(1).(*soft.BottomAccel)
	assert.Equal(t, 1, blas.Updates())
	assert.InDelta(t, 2, blas.Tree().Bounds().Max.X(), 1e-6)
}

func TestBuildRecordsBarrierBetweenLevels(t *testing.T) {
	f := setup(t, staticScene)

	var ops []soft.Op
	for _, c := range f.dev.History() {
		if c.Op != soft.OpCopyBuffer {
			ops = append(ops, c.Op)
		}
	}
	assert.Equal(t, []soft.Op{soft.OpBuildBottom, soft.OpMemoryBarrier, soft.OpBuildTop}, ops)
}

func TestCustomIndexIsNodeIndex(t *testing.T) {
	f := setup(t, staticScene)

	top := f.mgr.TopAccel().(*soft.TopAccel)
	require.Len(t, top.Instances(), 2)
	assert.Equal(t, uint32(0), top.Instances()[0].CustomIndex)
	assert.Equal(t, uint32(2), top.Instances()[1].CustomIndex)

	for _, inst := range top.Instances() {
		rec := f.scene.NodeData()[inst.CustomIndex]
		assert.Equal(t, int32(0), rec.MeshIndex)
	}
}

func TestShouldUpdateBootstrap(t *testing.T) {
	f := setup(t, staticScene)

	assert.True(t, f.mgr.ShouldUpdate(0))
	assert.True(t, f.mgr.ShouldUpdate(1))
	for frame := 2; frame < 10; frame++ {
		assert.False(t, f.mgr.ShouldUpdate(frame), "frame %d", frame)
	}
}

func TestShouldUpdateAnimated(t *testing.T) {
	t.Run("node key frames", func(t *testing.T) {
		f := setup(t, func(b *scene.Builder) {
			mi := b.AddMesh(core.NewMesh(tri(0)))
			n := meshedNode(mi)
			for i := 0; i < 2; i++ {
				kf := core.KeyFrame{Time: float32(i), Transform: core.IdentityTransform()}
				kf.Translation = mgl32.Vec3{float32(i), 0, 0}
				n.KeyFrames = append(n.KeyFrames, kf)
			}
			b.AddNode(n)
		})
		assert.True(t, f.mgr.ShouldUpdate(5))
	})

	t.Run("parent moves child", func(t *testing.T) {
		f := setup(t, func(b *scene.Builder) {
			mi := b.AddMesh(core.NewMesh(tri(0)))
			parent := core.NewNode()
			for i := 0; i < 3; i++ {
				kf := core.KeyFrame{Time: float32(i), Transform: core.IdentityTransform()}
				kf.Translation = mgl32.Vec3{0, float32(i), 0}
				parent.KeyFrames = append(parent.KeyFrames, kf)
			}
			b.AddNode(parent)
			child := meshedNode(mi)
			child.Parent = 0
			b.AddNode(child)
		})
		assert.True(t, f.mgr.ShouldUpdate(4))
	})

	t.Run("identical key frames", func(t *testing.T) {
		f := setup(t, func(b *scene.Builder) {
			mi := b.AddMesh(core.NewMesh(tri(0)))
			n := meshedNode(mi)
			n.KeyFrames = []core.KeyFrame{
				{Time: 0, Transform: core.IdentityTransform()},
				{Time: 1, Transform: core.IdentityTransform()},
			}
			b.AddNode(n)
		})
		assert.False(t, f.mgr.ShouldUpdate(3))
	})

	t.Run("vertex animation", func(t *testing.T) {
		f := setup(t, func(b *scene.Builder) {
			mi := b.AddMesh(core.NewMesh(tri(0), tri(1)))
			b.AddNode(meshedNode(mi))
		})
		assert.True(t, f.mgr.ShouldUpdate(40))
	})
}

func TestNoOpTopUpdateIsIdempotent(t *testing.T) {
	f := setup(t, func(b *scene.Builder) {
		b.AddMaterial(core.DefaultMaterial())
		static := b.AddMesh(core.NewMesh(tri(0)))
		animated := b.AddMesh(core.NewMesh(tri(0), tri(3)))
		n := meshedNode(static)
		n.Translation = mgl32.Vec3{1, 2, 3}
		b.AddNode(n)
		b.AddNode(core.NewNode())
		b.AddNode(meshedNode(animated))
	})

	count := f.mgr.InstanceCount()
	nodeData := bytes.Clone(f.scene.NodeDataBuffer().Map())
	top := f.mgr.TopAccel().(*soft.TopAccel)
	instances := append([]gpu.Instance(nil), top.Instances()...)

	cmd := f.dev.BeginCommands()
	f.mgr.UpdateTop(cmd, 0)
	cmd.End()
	require.NoError(t, f.dev.Submit(cmd))

	assert.Equal(t, count, f.mgr.InstanceCount())
	assert.Equal(t, nodeData, f.scene.NodeDataBuffer().Map())
	assert.Equal(t, instances, top.Instances())
	assert.Equal(t, 2, top.Builds())
}

func TestUpdateSwapsAnimatedAddresses(t *testing.T) {
	f := setup(t, func(b *scene.Builder) {
		mi := b.AddMesh(core.NewMesh(tri(0), tri(1), tri(2)))
		b.AddNode(meshedNode(mi))
	})

	for _, frame := range []int{1, 2, 9} {
		cmd := f.dev.BeginCommands()
		f.mgr.UpdateBottom(cmd, frame)
		f.mgr.UpdateTop(cmd, frame)
		cmd.End()
		require.NoError(t, f.dev.Submit(cmd))

		want := f.scene.Geometry(0, frame)
		rec := gpu.DecodeNodeData(f.scene.NodeDataBuffer().Map())
		assert.Equal(t, want.Vertices.Address(), rec.VertexAddress, "frame %d", frame)
		assert.Equal(t, want.Indices.Address(), rec.IndexAddress, "frame %d", frame)
		assert.Same(t, want.Vertices, f.mgr.BottomAccel(0).Geometry().Vertices)
	}
}
