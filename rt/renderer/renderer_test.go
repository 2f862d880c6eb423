package renderer

import (
	"context"
	"encoding/binary"
	"math"
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

func newRenderer(t *testing.T, animated bool) (*Renderer, *soft.Device) {
	t.Helper()
	b := scene.NewBuilder()
	b.AddMaterial(core.DefaultMaterial())
	mesh := core.NewMesh(tri(0))
	if animated {
		mesh = core.NewMesh(tri(0), tri(1), tri(2))
	}
	mesh.MaterialIndex = 0
	n := core.NewNode()
	n.MeshIndex = b.AddMesh(mesh)
	b.AddNode(n)
	b.AddNode(core.NewNode())
	s, err := b.Build()
	require.NoError(t, err)

	dev := soft.NewDevice(soft.Options{})
	require.NoError(t, s.CreateResources(context.Background(), dev))
	r := New(dev, s, gpu.StubShaderLoader{}, 20, 10, nil)
	require.NoError(t, r.Prepare(context.Background()))
	return r, dev
}

func record(t *testing.T, r *Renderer, frame int, settings *RenderSettings) []soft.Command {
	t.Helper()
	cmd := r.dev.BeginCommands()
	r.Update(frame)
	r.Render(cmd, frame, settings)
	cmd.End()
	require.NoError(t, r.dev.Submit(cmd))
	return cmd.(*soft.CommandBuffer).Commands()
}

func ops(cmds []soft.Command) []soft.Op {
	out := make([]soft.Op, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func count(cmds []soft.Command, op soft.Op) int {
	n := 0
	for _, c := range cmds {
		if c.Op == op {
			n++
		}
	}
	return n
}

func TestFramePassOrder(t *testing.T) {
	r, _ := newRenderer(t, true)
	settings := DefaultRenderSettings()
	settings.EnableBloom = true
	settings.BlurIterations = 2

	cmds := record(t, r, 0, &settings)
	assert.Equal(t, []soft.Op{
		soft.OpCopyBuffer, soft.OpMemoryBarrier,
		soft.OpUpdateBottom, soft.OpMemoryBarrier,
		soft.OpUpdateTop, soft.OpMemoryBarrier,
		soft.OpBindPipeline, soft.OpPushConstants, soft.OpTraceRays,
		soft.OpImageBarrier, soft.OpImageBarrier,
		soft.OpBindPipeline, soft.OpPushConstants, soft.OpDispatch, soft.OpImageBarrier,
		soft.OpBindPipeline, soft.OpPushConstants, soft.OpDispatch, soft.OpImageBarrier,
		soft.OpBindPipeline, soft.OpPushConstants, soft.OpDispatch,
	}, ops(cmds))

	assert.Equal(t, gpu.StageAccelBuild, cmds[3].SrcStage)
	assert.Equal(t, gpu.StageAccelBuild, cmds[3].DstStage)
	assert.Equal(t, gpu.StageAccelBuild, cmds[5].SrcStage)
	assert.Equal(t, gpu.StageRayTracing, cmds[5].DstStage)

	trace := cmds[8]
	assert.Equal(t, []int{20, 10, 1}, []int{trace.X, trace.Y, trace.Z})
	assert.Equal(t, r.BaseImage().Label(), cmds[9].Target)
	assert.Equal(t, r.BloomImage().Label(), cmds[10].Target)
	for _, i := range []int{9, 10} {
		assert.Equal(t, gpu.StageRayTracing, cmds[i].SrcStage)
		assert.Equal(t, gpu.StageCompute, cmds[i].DstStage)
	}
	for _, i := range []int{14, 18} {
		assert.Equal(t, r.BloomImage().Label(), cmds[i].Target)
		assert.Equal(t, gpu.StageCompute, cmds[i].SrcStage)
		assert.Equal(t, gpu.StageCompute, cmds[i].DstStage)
	}

	composite := cmds[len(cmds)-1]
	assert.Equal(t, []int{3, 2, 1}, []int{composite.X, composite.Y, composite.Z})
}

func TestBloomIterations(t *testing.T) {
	r, _ := newRenderer(t, false)
	settings := DefaultRenderSettings()

	for _, iterations := range []int{0, 1, 32} {
		settings.EnableBloom = true
		settings.BlurIterations = iterations
		cmds := record(t, r, 0, &settings)
		assert.Equal(t, iterations+1, count(cmds, soft.OpDispatch), "iterations %d", iterations)
	}

	settings.EnableBloom = false
	settings.BlurIterations = 32
	cmds := record(t, r, 0, &settings)
	assert.Equal(t, 1, count(cmds, soft.OpDispatch))
	assert.Equal(t, 2, count(cmds, soft.OpImageBarrier))
}

func TestAccelUpdateGating(t *testing.T) {
	r, _ := newRenderer(t, false)
	settings := DefaultRenderSettings()

	steps := []struct {
		frame  int
		update bool
	}{
		{0, true},
		{1, true},
		{2, false}, // static scene, next frame
		{2, false}, // same frame
		{3, false},
		{7, true}, // jump
		{7, false},
	}
	for _, s := range steps {
		cmds := record(t, r, s.frame, &settings)
		assert.Equal(t, s.update, count(cmds, soft.OpUpdateTop) == 1, "frame %d", s.frame)
		assert.Equal(t, 1, count(cmds, soft.OpCopyBuffer), "materials upload every frame")
		assert.Equal(t, s.frame, r.LastProcessedFrame())
	}
}

func TestAnimatedSceneUpdatesEveryFrame(t *testing.T) {
	r, _ := newRenderer(t, true)
	for frame := 0; frame < 5; frame++ {
		cmds := record(t, r, frame, nil)
		assert.Equal(t, 1, count(cmds, soft.OpUpdateBottom))
		assert.Equal(t, 1, count(cmds, soft.OpUpdateTop))
	}
	assert.Equal(t, 3, r.MaxFrame())
}

func TestAccumulation(t *testing.T) {
	r, _ := newRenderer(t, false)
	settings := DefaultRenderSettings()
	settings.EnableAccumulation = true

	pushedFrame := func(cmds []soft.Command) int32 {
		for _, c := range cmds {
			if c.Op == soft.OpPushConstants && len(c.PushData()) == PushConstantsSize {
				return int32(binary.LittleEndian.Uint32(c.PushData()[128:]))
			}
		}
		t.Fatal("no push constants recorded")
		return 0
	}

	assert.Equal(t, int32(0), pushedFrame(record(t, r, 0, &settings)))
	assert.Equal(t, int32(1), pushedFrame(record(t, r, 1, &settings)))
	assert.Equal(t, int32(2), pushedFrame(record(t, r, 2, &settings)))
	assert.Equal(t, 3, r.AccumCount())

	require.NoError(t, r.Scene().EditMaterial(0, func(m *core.Material) { m.MetallicFactor = 1 }))
	assert.Equal(t, int32(0), pushedFrame(record(t, r, 3, &settings)), "edits reset")
	assert.Equal(t, 1, r.AccumCount())

	settings.Exposure = 2
	assert.Equal(t, int32(0), pushedFrame(record(t, r, 4, &settings)), "settings change resets")

	r.Reset()
	assert.Equal(t, 0, r.AccumCount())

	settings.EnableAccumulation = false
	record(t, r, 5, &settings)
	record(t, r, 6, &settings)
	assert.Equal(t, 0, r.AccumCount())
}

func TestPushConstantsLayout(t *testing.T) {
	r, _ := newRenderer(t, false)
	r.Scene().EditInfiniteLight(func(l *core.InfiniteLight) {
		l.Theta = math.Pi / 2
		l.Intensity = 4
	})
	settings := DefaultRenderSettings()
	record(t, r, 0, &settings)

	pc := r.PushConstants()
	data := pc.Encode()
	require.Len(t, data, PushConstantsSize)

	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])) }
	assert.Equal(t, int32(10), int32(binary.LittleEndian.Uint32(data[132:])))
	assert.Equal(t, float32(0.5), f32(136))
	assert.Equal(t, r.Scene().Camera.ImageDistance(), f32(152))
	assert.Equal(t, float32(4), f32(220))
	assert.InDelta(t, 0, f32(196), 1e-6, "direction y")

	assert.Len(t, BloomConstants{BlurSize: 16}.Encode(), BloomConstantsSize)
	assert.Len(t, settings.compositeConstants().Encode(), CompositeConstantsSize)
}

func TestPipelineBindings(t *testing.T) {
	r, _ := newRenderer(t, false)
	p := r.rtPipeline.(*soft.Pipeline)

	names := make([]string, len(p.Bindings()))
	for i, b := range p.Bindings() {
		names[i] = b.Name
	}
	assert.Equal(t, []string{
		"topLevelAS", "NodeDataBuffer", "MaterialBuffer", "baseImage", "bloomImage",
		"envLightTexture", "textures2D[0]", "textures3D[0]",
	}, names)
	assert.Equal(t, gpu.FormatRGBA8Unorm, r.OutputImageRGBA().Format())
	assert.Equal(t, gpu.FormatBGRA8Unorm, r.OutputImageBGRA().Format())
}
