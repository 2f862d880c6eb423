package renderer

import (
	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Sizes of the encoded push constant blocks.
const (
	PushConstantsSize      = 224
	BloomConstantsSize     = 16
	CompositeConstantsSize = 32
)

// PushConstants is the ray-generation parameter block.
type PushConstants struct {
	InvView mgl32.Mat4
	InvProj mgl32.Mat4

	Frame                  int32 // accumulation counter
	SampleCount            int32
	BloomThreshold         float32
	EnableAccumulation     bool
	EnableAdaptiveSampling bool

	LensRadius     float32
	ImageDistance  float32
	ObjectDistance float32

	EnvLightColor      mgl32.Vec3
	EnvLightIntensity  float32
	EnvLightPhi        float32
	UseEnvLightTexture bool
	EnvLightVisible    bool

	InfiniteLightDirection mgl32.Vec3
	InfiniteLightColor     mgl32.Vec3
	InfiniteLightIntensity float32
}

// SetCamera copies the camera basis and lens parameters.
func (p *PushConstants) SetCamera(c core.Camera) {
	p.InvView = c.InverseView()
	p.InvProj = c.InverseProjection()
	p.LensRadius = c.Lens.Radius
	p.ImageDistance = c.ImageDistance()
	p.ObjectDistance = c.Lens.ObjectDistance
}

func (p *PushConstants) SetLights(env core.EnvironmentLight, inf core.InfiniteLight) {
	p.EnvLightColor = env.Color
	p.EnvLightIntensity = env.Intensity
	p.EnvLightPhi = env.Phi
	p.UseEnvLightTexture = env.UseTexture
	p.EnvLightVisible = env.Visible
	p.InfiniteLightDirection = inf.Direction()
	p.InfiniteLightColor = inf.Color
	p.InfiniteLightIntensity = inf.Intensity
}

func (p *PushConstants) SetSettings(s *RenderSettings) {
	p.SampleCount = int32(s.SampleCount)
	p.BloomThreshold = s.BloomThreshold
	p.EnableAccumulation = s.EnableAccumulation
	p.EnableAdaptiveSampling = s.EnableAdaptiveSampling
}

func (p *PushConstants) Encode() []byte {
	var w gpu.LayoutWriter
	w.Mat4(p.InvView).Mat4(p.InvProj).
		I32(p.Frame).I32(p.SampleCount).F32(p.BloomThreshold).Bool(p.EnableAccumulation).
		Bool(p.EnableAdaptiveSampling).F32(p.LensRadius).F32(p.ImageDistance).F32(p.ObjectDistance).
		Vec3(p.EnvLightColor, p.EnvLightIntensity).
		F32(p.EnvLightPhi).Bool(p.UseEnvLightTexture).Bool(p.EnvLightVisible).Align(16).
		Vec3(p.InfiniteLightDirection, 0).
		Vec3(p.InfiniteLightColor, p.InfiniteLightIntensity)
	return w.Bytes()
}

type BloomConstants struct {
	BlurSize int32
}

func (b BloomConstants) Encode() []byte {
	var w gpu.LayoutWriter
	return w.I32(b.BlurSize).Align(16).Bytes()
}

type CompositeConstants struct {
	BloomIntensity        float32
	Saturation            float32
	Exposure              float32
	Gamma                 float32
	EnableToneMapping     bool
	EnableGammaCorrection bool
}

func (c CompositeConstants) Encode() []byte {
	var w gpu.LayoutWriter
	return w.F32(c.BloomIntensity).F32(c.Saturation).F32(c.Exposure).F32(c.Gamma).
		Bool(c.EnableToneMapping).Bool(c.EnableGammaCorrection).Align(16).Bytes()
}
