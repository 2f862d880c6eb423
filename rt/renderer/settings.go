package renderer

import "github.com/gekko3d/coalumine/rt/config"

// RenderSettings are the per-frame parameters owned by the driver and passed
// into every Render call. Any change resets accumulation.
type RenderSettings struct {
	SampleCount            int
	EnableAccumulation     bool
	EnableAdaptiveSampling bool

	EnableBloom    bool
	BlurIterations int
	BlurSize       int
	BloomIntensity float32
	BloomThreshold float32

	EnableToneMapping     bool
	Exposure              float32
	EnableGammaCorrection bool
	Gamma                 float32
	Saturation            float32
}

func DefaultRenderSettings() RenderSettings {
	return SettingsFromConfig(config.Default().Render)
}

func SettingsFromConfig(c config.RenderConfig) RenderSettings {
	return RenderSettings{
		SampleCount:            c.SampleCount,
		EnableAccumulation:     c.EnableAccumulation,
		EnableAdaptiveSampling: c.EnableAdaptiveSampling,
		EnableBloom:            c.EnableBloom,
		BlurIterations:         c.BlurIterations,
		BlurSize:               c.BlurSize,
		BloomIntensity:         c.BloomIntensity,
		BloomThreshold:         c.BloomThreshold,
		EnableToneMapping:      c.EnableToneMapping,
		Exposure:               c.Exposure,
		EnableGammaCorrection:  c.EnableGammaCorrection,
		Gamma:                  c.Gamma,
		Saturation:             c.Saturation,
	}
}

func (s *RenderSettings) bloomConstants() BloomConstants {
	return BloomConstants{BlurSize: int32(s.BlurSize)}
}

func (s *RenderSettings) compositeConstants() CompositeConstants {
	return CompositeConstants{
		BloomIntensity:        s.BloomIntensity,
		Saturation:            s.Saturation,
		Exposure:              s.Exposure,
		Gamma:                 s.Gamma,
		EnableToneMapping:     s.EnableToneMapping,
		EnableGammaCorrection: s.EnableGammaCorrection,
	}
}
