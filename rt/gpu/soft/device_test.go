package soft

import (
	"context"
	"testing"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadTriangle(t *testing.T, d *Device, z float32) gpu.TriangleGeometry {
	t.Helper()
	verts := gpu.EncodeVertices([]core.Vertex{
		{Position: mgl32.Vec3{0, 0, z}},
		{Position: mgl32.Vec3{1, 0, z}},
		{Position: mgl32.Vec3{0, 1, z}},
	})
	idx := gpu.EncodeIndices([]uint32{0, 1, 2})
	vb, err := d.CreateBuffer(gpu.BufferDesc{Label: "vertices", Size: uint64(len(verts)), Memory: gpu.MemoryHost})
	require.NoError(t, err)
	ib, err := d.CreateBuffer(gpu.BufferDesc{Label: "indices", Size: uint64(len(idx)), Memory: gpu.MemoryHost})
	require.NoError(t, err)
	vb.Write(0, verts)
	ib.Write(0, idx)
	return gpu.TriangleGeometry{Vertices: vb, Indices: ib, VertexCount: 3, TriangleCount: 1}
}

func TestBufferAddressesAreDistinct(t *testing.T) {
	d := NewDevice(Options{})
	a, err := d.CreateBuffer(gpu.BufferDesc{Label: "a", Size: 10})
	require.NoError(t, err)
	b, err := d.CreateBuffer(gpu.BufferDesc{Label: "b", Size: 300})
	require.NoError(t, err)

	assert.NotEqual(t, a.Address(), b.Address())
	assert.Contains(t, a.Label(), "a#")
	assert.Equal(t, 2, d.Stats().Buffers)

	_, err = d.CreateBuffer(gpu.BufferDesc{Label: "empty"})
	assert.Error(t, err)
}

func TestCopyExecutesOnSubmit(t *testing.T) {
	d := NewDevice(Options{})
	buf, err := d.CreateBuffer(gpu.BufferDesc{Size: 4})
	require.NoError(t, err)

	cmd := d.BeginCommands()
	cmd.CopyBuffer(buf, 1, []byte{7, 8})
	assert.Equal(t, []byte{0, 0, 0, 0}, buf.Map(), "recording has no effect")
	cmd.End()
	require.NoError(t, d.Submit(cmd))
	assert.Equal(t, []byte{0, 7, 8, 0}, buf.Map())

	overflow := d.BeginCommands()
	overflow.CopyBuffer(buf, 3, []byte{1, 2})
	overflow.End()
	assert.Error(t, d.Submit(overflow))
}

func TestSubmitRequiresEnd(t *testing.T) {
	d := NewDevice(Options{})
	assert.Error(t, d.Submit(d.BeginCommands()))
}

func TestAccelBuildAndRefit(t *testing.T) {
	d := NewDevice(Options{})
	g0 := uploadTriangle(t, d, 0)
	g1 := uploadTriangle(t, d, 3)

	blas, err := d.CreateBottomAccel(gpu.BottomAccelDesc{Label: "mesh", Geometry: g0, MaxVertexCount: 3, MaxTriangleCount: 1})
	require.NoError(t, err)
	tlas, err := d.CreateTopAccel(gpu.TopAccelDesc{Label: "top", Instances: []gpu.Instance{
		{Accel: blas, Transform: mgl32.Translate3D(10, 0, 0), CustomIndex: 4},
	}})
	require.NoError(t, err)

	tok, err := d.Upload(func(cmd gpu.CommandBuffer) {
		cmd.BuildBottomAccel(blas)
		cmd.MemoryBarrier(gpu.StageAccelBuild, gpu.StageAccelBuild, gpu.AccessAccelWrite, gpu.AccessAccelRead)
		cmd.BuildTopAccel(tlas)
	})
	require.NoError(t, err)
	require.NoError(t, tok.Wait(context.Background()))

	sb := blas.(*BottomAccel)
	st := tlas.(*TopAccel)
	assert.Equal(t, 1, sb.Builds())
	assert.Equal(t, 1, tlas.InstanceCount())
	assert.Equal(t, float32(10), st.Tree().Bounds().Min.X())

	blas.Update(g1)
	cmd := d.BeginCommands()
	cmd.UpdateBottomAccel(blas)
	cmd.UpdateTopAccel(tlas)
	cmd.End()
	require.NoError(t, d.Submit(cmd))

	assert.Equal(t, 1, sb.Updates())
	assert.Equal(t, float32(3), sb.Tree().Bounds().Min.Z())
	assert.Equal(t, float32(3), st.Tree().Bounds().Min.Z())

	ops := []Op{}
	for _, c := range d.History() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []Op{OpBuildBottom, OpMemoryBarrier, OpBuildTop, OpUpdateBottom, OpUpdateTop}, ops)
}

func TestCopyImageUsesRowPitch(t *testing.T) {
	d := NewDevice(Options{RowAlignment: 256})
	assert.Equal(t, 256, d.CopyRowPitch(3, 4))
	assert.Equal(t, 512, d.CopyRowPitch(65, 4))

	img, err := d.CreateImage(gpu.ImageDesc{Width: 2, Height: 2, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	copy(img.(*Image).Pixels(), []byte{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	})
	buf, err := d.CreateBuffer(gpu.BufferDesc{Size: 512, Memory: gpu.MemoryHost})
	require.NoError(t, err)

	cmd := d.BeginCommands()
	cmd.CopyImageToBuffer(img, buf)
	cmd.End()
	require.NoError(t, d.Submit(cmd))

	assert.Equal(t, byte(2), buf.Map()[4])
	assert.Equal(t, byte(3), buf.Map()[256])
	assert.Equal(t, byte(0), buf.Map()[8])
}

func TestPipelineRejectsEmptyBinding(t *testing.T) {
	d := NewDevice(Options{})
	_, err := d.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:    "bloom",
		Bindings: []gpu.Binding{{Name: "image"}},
	})
	assert.Error(t, err)
}
