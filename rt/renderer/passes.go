package renderer

import (
	"fmt"

	"github.com/gekko3d/coalumine/rt/gpu"
)

// Shader program names resolved through the ShaderLoader.
const (
	ShaderRayGen     = "base.rgen"
	ShaderMiss       = "base.rmiss"
	ShaderShadowMiss = "shadow.rmiss"
	ShaderClosestHit = "base.rchit"
	ShaderBlur       = "blur.comp"
	ShaderComposite  = "composite.comp"
)

const (
	workgroupSize   = 8
	maxRayRecursion = 31
)

func workgroups(n int) int {
	return (n + workgroupSize - 1) / workgroupSize
}

func createStorageImage(dev gpu.Device, label string, width, height int, format gpu.ImageFormat) (gpu.Image, error) {
	img, err := dev.CreateImage(gpu.ImageDesc{
		Label:  label,
		Width:  width,
		Height: height,
		Depth:  1,
		Format: format,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: %s: %w", label, err)
	}
	return img, nil
}

// BloomPass blurs the bright-pass image written by the trace in place.
type BloomPass struct {
	pipeline gpu.Pipeline
	image    gpu.Image
	width    int
	height   int
}

func NewBloomPass(dev gpu.Device, shaders gpu.ShaderLoader, width, height int) (*BloomPass, error) {
	img, err := createStorageImage(dev, "bloomImage", width, height, gpu.FormatRGBA32Float)
	if err != nil {
		return nil, err
	}
	src, err := shaders.Load(ShaderBlur, gpu.ShaderCompute)
	if err != nil {
		return nil, fmt.Errorf("renderer: bloom: %w", err)
	}
	p, err := dev.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:            "bloom",
		Shader:           src,
		Bindings:         []gpu.Binding{{Name: "bloomImage", Image: img}},
		PushConstantSize: BloomConstantsSize,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: bloom pipeline: %w", err)
	}
	return &BloomPass{pipeline: p, image: img, width: width, height: height}, nil
}

// Record dispatches one blur iteration. The caller serializes iterations.
func (p *BloomPass) Record(cmd gpu.CommandBuffer, c BloomConstants) {
	cmd.BindPipeline(p.pipeline)
	cmd.PushConstants(p.pipeline, c.Encode())
	cmd.Dispatch(p.pipeline, workgroups(p.width), workgroups(p.height), 1)
}

func (p *BloomPass) Image() gpu.Image { return p.image }

// CompositePass blends bloom into the traced image, tone maps and gamma
// corrects it, and writes both an RGBA and a BGRA 8-bit copy.
type CompositePass struct {
	pipeline gpu.Pipeline
	rgba     gpu.Image
	bgra     gpu.Image
	width    int
	height   int
}

func NewCompositePass(dev gpu.Device, shaders gpu.ShaderLoader, base, bloom gpu.Image, width, height int) (*CompositePass, error) {
	rgba, err := createStorageImage(dev, "finalImageRGBA", width, height, gpu.FormatRGBA8Unorm)
	if err != nil {
		return nil, err
	}
	bgra, err := createStorageImage(dev, "finalImageBGRA", width, height, gpu.FormatBGRA8Unorm)
	if err != nil {
		return nil, err
	}
	src, err := shaders.Load(ShaderComposite, gpu.ShaderCompute)
	if err != nil {
		return nil, fmt.Errorf("renderer: composite: %w", err)
	}
	p, err := dev.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:  "composite",
		Shader: src,
		Bindings: []gpu.Binding{
			{Name: "baseImage", Image: base},
			{Name: "bloomImage", Image: bloom},
			{Name: "finalImageRGBA", Image: rgba},
			{Name: "finalImageBGRA", Image: bgra},
		},
		PushConstantSize: CompositeConstantsSize,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: composite pipeline: %w", err)
	}
	return &CompositePass{pipeline: p, rgba: rgba, bgra: bgra, width: width, height: height}, nil
}

func (p *CompositePass) Record(cmd gpu.CommandBuffer, c CompositeConstants) {
	cmd.BindPipeline(p.pipeline)
	cmd.PushConstants(p.pipeline, c.Encode())
	cmd.Dispatch(p.pipeline, workgroups(p.width), workgroups(p.height), 1)
}

func (p *CompositePass) OutputRGBA() gpu.Image { return p.rgba }
func (p *CompositePass) OutputBGRA() gpu.Image { return p.bgra }
