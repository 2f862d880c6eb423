package scene

import (
	"context"
	"testing"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/gpu/soft"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quad(z float32) core.KeyFrameMesh {
	return core.KeyFrameMesh{
		Vertices: []core.Vertex{
			{Position: mgl32.Vec3{0, 0, z}},
			{Position: mgl32.Vec3{1, 0, z}},
			{Position: mgl32.Vec3{1, 1, z}},
			{Position: mgl32.Vec3{0, 1, z}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// twoNodeScene has one meshed node and one camera-only node.
func twoNodeScene(t *testing.T) *Scene {
	t.Helper()
	b := NewBuilder()
	mat := b.AddMaterial(core.DefaultMaterial())
	mesh := core.NewMesh(quad(0))
	mesh.MaterialIndex = mat
	mi := b.AddMesh(mesh)

	meshed := core.NewNode()
	meshed.MeshIndex = mi
	b.AddNode(meshed)
	b.AddNode(core.NewNode())

	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestTwoStaticNodesScenario(t *testing.T) {
	s := twoNodeScene(t)
	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))

	assert.Equal(t, 0, s.MaxFrame())
	require.Len(t, s.NodeData(), 2)
	assert.Equal(t, int32(-1), s.NodeData()[1].MeshIndex)
	assert.Equal(t, int32(0), s.NodeData()[0].MeshIndex)
	assert.Len(t, s.Instances(0), 1)
	assert.Equal(t, 0, s.Instances(0)[0].NodeIndex)

	// GPU mirror holds both records
	assert.Equal(t, uint64(2*gpu.NodeDataSize), s.NodeDataBuffer().Size())
	rec := gpu.DecodeNodeData(s.NodeDataBuffer().Map()[gpu.NodeDataSize:])
	assert.Equal(t, int32(-1), rec.MeshIndex)
	assert.Equal(t, int32(-1), rec.MaterialIndex)
}

func TestMaxFrame(t *testing.T) {
	b := NewBuilder()
	b.AddMesh(core.NewMesh(quad(0), quad(1), quad(2), quad(3)))
	n := core.NewNode()
	n.MeshIndex = 0
	for i := 0; i < 6; i++ {
		n.KeyFrames = append(n.KeyFrames, core.KeyFrame{Time: float32(i), Transform: core.IdentityTransform()})
	}
	b.AddNode(n)
	s, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 6, s.MaxFrame())

	s.Nodes[0].KeyFrames = nil
	assert.Equal(t, 4, s.MaxFrame())
}

func TestDefaultMaterialInserted(t *testing.T) {
	b := NewBuilder()
	b.AddMesh(core.NewMesh(quad(0)))
	s, err := b.Build()
	require.NoError(t, err)
	require.Empty(t, s.Materials)

	dev := soft.NewDevice(soft.Options{})
	tok, err := s.CreateMaterialBuffer(dev)
	require.NoError(t, err)
	require.NoError(t, tok.Wait(context.Background()))

	require.Len(t, s.Materials, 1)
	assert.Equal(t, core.DefaultMaterial(), s.Materials[0])
	assert.Equal(t, uint64(gpu.MaterialSize), s.MaterialBuffer().Size())
}

func TestMeshWithoutMaterialUsesDefault(t *testing.T) {
	b := NewBuilder()
	glass := core.DefaultMaterial()
	glass.IOR = 1.5
	mat := b.AddMaterial(glass)
	dressed := core.NewMesh(quad(0))
	dressed.MaterialIndex = mat
	b.AddMesh(dressed)
	b.AddMesh(core.NewMesh(quad(1)))
	for mi := 0; mi < 2; mi++ {
		n := core.NewNode()
		n.MeshIndex = mi
		b.AddNode(n)
	}
	s, err := b.Build()
	require.NoError(t, err)

	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))

	require.Len(t, s.Materials, 2)
	assert.Equal(t, core.DefaultMaterial(), s.Materials[1])
	assert.Equal(t, int32(0), s.NodeData()[0].MaterialIndex)
	assert.Equal(t, int32(1), s.NodeData()[1].MaterialIndex)
	for _, nd := range s.NodeData() {
		assert.Less(t, int(nd.MaterialIndex), len(s.Materials))
	}
}

func TestMaterialOverrideWins(t *testing.T) {
	b := NewBuilder()
	b.AddMaterial(core.DefaultMaterial())
	b.AddMaterial(core.DefaultMaterial())
	mesh := core.NewMesh(quad(0))
	mesh.MaterialIndex = 0
	b.AddMesh(mesh)
	plain := core.NewNode()
	plain.MeshIndex = 0
	over := core.NewNode()
	over.MeshIndex = 0
	over.OverrideMaterialIndex = 1
	b.AddNode(plain)
	b.AddNode(over)
	s, err := b.Build()
	require.NoError(t, err)

	inst := s.Instances(0)
	require.Len(t, inst, 2)
	assert.Equal(t, 0, inst[0].MaterialIndex)
	assert.Equal(t, 1, inst[1].MaterialIndex)
}

func TestRefreshNodeDataSwapsAnimatedGeometry(t *testing.T) {
	b := NewBuilder()
	b.AddMesh(core.NewMesh(quad(0), quad(1), quad(2)))
	b.AddMesh(core.NewMesh(quad(5)))
	for mi := 0; mi < 2; mi++ {
		n := core.NewNode()
		n.MeshIndex = mi
		b.AddNode(n)
	}
	s, err := b.Build()
	require.NoError(t, err)
	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))

	frame0 := s.NodeData()[0].VertexAddress
	static0 := s.NodeData()[1].VertexAddress
	assert.Equal(t, s.Geometry(0, 0).Vertices.Address(), frame0)

	s.RefreshNodeData(2)
	assert.Equal(t, s.Geometry(0, 2).Vertices.Address(), s.NodeData()[0].VertexAddress)
	assert.NotEqual(t, frame0, s.NodeData()[0].VertexAddress)
	assert.Equal(t, static0, s.NodeData()[1].VertexAddress)

	// clamped beyond the last key frame
	assert.Equal(t, s.Geometry(0, 2).Vertices.Address(), s.Geometry(0, 50).Vertices.Address())

	s.SyncNodeDataBuffer()
	rec := gpu.DecodeNodeData(s.NodeDataBuffer().Map())
	assert.Equal(t, s.NodeData()[0].VertexAddress, rec.VertexAddress)
}

func TestEditsMarkDirty(t *testing.T) {
	s := twoNodeScene(t)
	assert.False(t, s.ConsumeEdits())

	require.NoError(t, s.EditMaterial(0, func(m *core.Material) { m.RoughnessFactor = 0.3 }))
	assert.True(t, s.ConsumeEdits())
	assert.False(t, s.ConsumeEdits(), "consumed")
	assert.Equal(t, float32(0.3), s.Materials[0].RoughnessFactor)

	assert.Error(t, s.EditMaterial(9, func(m *core.Material) {}))
	assert.False(t, s.ConsumeEdits())

	s.EditInfiniteLight(func(l *core.InfiniteLight) { l.Intensity = 2 })
	assert.True(t, s.ConsumeEdits())
	s.EditEnvironmentLight(func(l *core.EnvironmentLight) { l.Phi = 1 })
	assert.True(t, s.ConsumeEdits())
	s.EditCamera(func(c *core.Camera) { c.FovY = 1 })
	assert.True(t, s.ConsumeEdits())
}

func TestUpdateMaterialBufferRecordsFullCopy(t *testing.T) {
	s := twoNodeScene(t)
	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))
	dev.ClearHistory()

	s.Materials[0].IOR = 2
	cmd := dev.BeginCommands()
	s.UpdateMaterialBuffer(cmd)
	cmd.End()
	require.NoError(t, dev.Submit(cmd))

	h := dev.History()
	require.Len(t, h, 1)
	assert.Equal(t, soft.OpCopyBuffer, h[0].Op)
	assert.Equal(t, gpu.EncodeMaterials(s.Materials), s.MaterialBuffer().Map())
}

func TestDummyTextures(t *testing.T) {
	s := twoNodeScene(t)
	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))

	require.Len(t, s.Images2D(), 1)
	require.Len(t, s.Images3D(), 1)
	require.NotNil(t, s.EnvironmentImage())
	assert.Equal(t, 1, s.Images2D()[0].Width())
}

func TestBuilderRejectsCycles(t *testing.T) {
	b := NewBuilder()
	a, c := core.NewNode(), core.NewNode()
	a.Parent, c.Parent = 1, 0
	b.AddNode(a)
	b.AddNode(c)
	_, err := b.Build()
	assert.ErrorIs(t, err, core.ErrHierarchyCycle)
}

func TestBuilderRejectsMismatchedKeyFrames(t *testing.T) {
	b := NewBuilder()
	tri := core.KeyFrameMesh{Vertices: quad(0).Vertices, Indices: []uint32{0, 1, 2}}
	b.AddMesh(core.NewMesh(quad(0), tri))
	_, err := b.Build()
	assert.Error(t, err)
}
