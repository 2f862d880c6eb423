// Package renderer records one frame of GPU work: acceleration updates,
// the ray-tracing pass, iterative bloom and the composite pass, with the
// barriers between them.
package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/gekko3d/coalumine/rt/accel"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
	"github.com/gekko3d/coalumine/rt/scene"
)

// noFrame is the lastProcessedFrame value before any frame was rendered.
const noFrame = -1

type Renderer struct {
	dev     gpu.Device
	scene   *scene.Scene
	accel   *accel.Manager
	shaders gpu.ShaderLoader
	logger  logging.Logger

	width  int
	height int

	baseImage  gpu.Image
	bloom      *BloomPass
	composite  *CompositePass
	rtPipeline gpu.Pipeline

	push               PushConstants
	lastProcessedFrame int
	accumCount         int
	lastSettings       RenderSettings
	haveSettings       bool
}

func New(dev gpu.Device, s *scene.Scene, shaders gpu.ShaderLoader, width, height int, logger logging.Logger) *Renderer {
	logger = logging.OrNop(logger)
	return &Renderer{
		dev:                dev,
		scene:              s,
		accel:              accel.New(dev, s, logger),
		shaders:            shaders,
		logger:             logger,
		width:              width,
		height:             height,
		lastProcessedFrame: noFrame,
	}
}

// Initialize loads the scene at scenePath and prepares every GPU resource.
func (r *Renderer) Initialize(ctx context.Context, scenePath string) error {
	if err := r.scene.Initialize(ctx, r.dev, scenePath, r.width, r.height); err != nil {
		return err
	}
	return r.Prepare(ctx)
}

// Prepare builds acceleration structures, images and pipelines for a scene
// whose resources already exist.
func (r *Renderer) Prepare(ctx context.Context) error {
	start := time.Now()
	if err := r.accel.Build(ctx); err != nil {
		return err
	}

	base, err := createStorageImage(r.dev, "baseImage", r.width, r.height, gpu.FormatRGBA32Float)
	if err != nil {
		return err
	}
	r.baseImage = base
	if r.bloom, err = NewBloomPass(r.dev, r.shaders, r.width, r.height); err != nil {
		return err
	}
	if r.composite, err = NewCompositePass(r.dev, r.shaders, base, r.bloom.Image(), r.width, r.height); err != nil {
		return err
	}
	if err := r.createRayTracingPipeline(); err != nil {
		return err
	}

	tok, err := r.dev.Upload(func(cmd gpu.CommandBuffer) {
		for _, img := range []gpu.Image{base, r.bloom.Image(), r.composite.OutputRGBA(), r.composite.OutputBGRA()} {
			cmd.TransitionLayout(img, gpu.LayoutGeneral)
		}
	})
	if err != nil {
		return fmt.Errorf("renderer: image transitions: %w", err)
	}
	if err := gpu.JoinUploads(ctx, tok); err != nil {
		return err
	}

	r.push.SetCamera(r.scene.Camera)
	r.push.SetLights(r.scene.EnvLight, r.scene.InfiniteLight)
	r.logger.Infof("renderer: %dx%d ready in %v", r.width, r.height, time.Since(start))
	return nil
}

func (r *Renderer) createRayTracingPipeline() error {
	load := func(name string, stage gpu.ShaderStage) (gpu.ShaderSource, error) {
		src, err := r.shaders.Load(name, stage)
		if err != nil {
			return src, fmt.Errorf("renderer: ray tracing: %w", err)
		}
		return src, nil
	}
	rgen, err := load(ShaderRayGen, gpu.ShaderRayGen)
	if err != nil {
		return err
	}
	miss, err := load(ShaderMiss, gpu.ShaderMiss)
	if err != nil {
		return err
	}
	shadow, err := load(ShaderShadowMiss, gpu.ShaderMiss)
	if err != nil {
		return err
	}
	chit, err := load(ShaderClosestHit, gpu.ShaderClosestHit)
	if err != nil {
		return err
	}

	bindings := []gpu.Binding{
		{Name: "topLevelAS", Accel: r.accel.TopAccel()},
		{Name: "NodeDataBuffer", Buffer: r.scene.NodeDataBuffer()},
		{Name: "MaterialBuffer", Buffer: r.scene.MaterialBuffer()},
		{Name: "baseImage", Image: r.baseImage},
		{Name: "bloomImage", Image: r.bloom.Image()},
		{Name: "envLightTexture", Image: r.scene.EnvironmentImage()},
	}
	for i, img := range r.scene.Images2D() {
		bindings = append(bindings, gpu.Binding{Name: fmt.Sprintf("textures2D[%d]", i), Image: img})
	}
	for i, img := range r.scene.Images3D() {
		bindings = append(bindings, gpu.Binding{Name: fmt.Sprintf("textures3D[%d]", i), Image: img})
	}

	p, err := r.dev.CreateRayTracingPipeline(gpu.RayTracingPipelineDesc{
		Label:            "rayTracing",
		RayGen:           rgen,
		Miss:             []gpu.ShaderSource{miss, shadow},
		ClosestHit:       []gpu.ShaderSource{chit},
		Bindings:         bindings,
		PushConstantSize: PushConstantsSize,
		MaxRecursion:     maxRayRecursion,
	})
	if err != nil {
		return fmt.Errorf("renderer: ray tracing pipeline: %w", err)
	}
	r.rtPipeline = p
	return nil
}

// Update refreshes camera and light parameters and resets accumulation when
// the scene was edited since the last call.
func (r *Renderer) Update(frame int) {
	r.push.SetCamera(r.scene.Camera)
	r.push.SetLights(r.scene.EnvLight, r.scene.InfiniteLight)
	if r.scene.ConsumeEdits() {
		r.logger.Debugf("renderer: scene edited before frame %d, resetting accumulation", frame)
		r.Reset()
	}
}

// Render records frame into cmd. It never waits on the device; submission
// and synchronization are the caller's. A nil settings uses the defaults.
func (r *Renderer) Render(cmd gpu.CommandBuffer, frame int, settings *RenderSettings) {
	if settings == nil {
		d := DefaultRenderSettings()
		settings = &d
	}
	if r.haveSettings && *settings != r.lastSettings {
		r.Reset()
	}
	r.lastSettings, r.haveSettings = *settings, true

	r.scene.UpdateMaterialBuffer(cmd)
	cmd.MemoryBarrier(gpu.StageTransfer, gpu.StageRayTracing, gpu.AccessTransferWrite, gpu.AccessShaderRead)

	if frame != r.lastProcessedFrame {
		if r.needsAccelUpdate(frame) {
			r.accel.UpdateBottom(cmd, frame)
			cmd.MemoryBarrier(gpu.StageAccelBuild, gpu.StageAccelBuild, gpu.AccessAccelWrite, gpu.AccessAccelRead)
			r.accel.UpdateTop(cmd, frame)
			cmd.MemoryBarrier(gpu.StageAccelBuild, gpu.StageRayTracing, gpu.AccessAccelWrite, gpu.AccessAccelRead)
		} else if r.logger.DebugEnabled() {
			r.logger.Debugf("renderer: frame %d unchanged, skipping acceleration update", frame)
		}
		r.lastProcessedFrame = frame
	}

	r.push.SetSettings(settings)
	r.push.Frame = int32(r.accumCount)
	cmd.BindPipeline(r.rtPipeline)
	cmd.PushConstants(r.rtPipeline, r.push.Encode())
	cmd.TraceRays(r.rtPipeline, r.width, r.height, 1)
	cmd.ImageBarrier(r.baseImage, gpu.StageRayTracing, gpu.StageCompute, gpu.AccessShaderWrite, gpu.AccessShaderRead)
	cmd.ImageBarrier(r.bloom.Image(), gpu.StageRayTracing, gpu.StageCompute, gpu.AccessShaderWrite, gpu.AccessShaderRead)

	if settings.EnableBloom {
		bc := settings.bloomConstants()
		for i := 0; i < settings.BlurIterations; i++ {
			r.bloom.Record(cmd, bc)
			cmd.ImageBarrier(r.bloom.Image(), gpu.StageCompute, gpu.StageCompute, gpu.AccessShaderWrite, gpu.AccessShaderRead)
		}
	}

	r.composite.Record(cmd, settings.compositeConstants())

	if settings.EnableAccumulation {
		r.accumCount++
	}
}

// needsAccelUpdate skips the update only when stepping to the next frame of
// a scene in which nothing moves.
func (r *Renderer) needsAccelUpdate(frame int) bool {
	if r.lastProcessedFrame == noFrame || frame != r.lastProcessedFrame+1 {
		return true
	}
	return r.accel.ShouldUpdate(frame)
}

// Reset zeroes the accumulation counter.
func (r *Renderer) Reset() { r.accumCount = 0 }

func (r *Renderer) MaxFrame() int   { return r.scene.MaxFrame() }
func (r *Renderer) AccumCount() int { return r.accumCount }

func (r *Renderer) LastProcessedFrame() int { return r.lastProcessedFrame }

func (r *Renderer) OutputImageRGBA() gpu.Image { return r.composite.OutputRGBA() }
func (r *Renderer) OutputImageBGRA() gpu.Image { return r.composite.OutputBGRA() }

func (r *Renderer) BaseImage() gpu.Image  { return r.baseImage }
func (r *Renderer) BloomImage() gpu.Image { return r.bloom.Image() }
func (r *Renderer) Accel() *accel.Manager { return r.accel }
func (r *Renderer) Scene() *scene.Scene   { return r.scene }

// PushConstants returns the parameters recorded by the last Render call.
func (r *Renderer) PushConstants() PushConstants { return r.push }
