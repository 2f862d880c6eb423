// Package config handles render configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all settings of a headless render.
type Config struct {
	Scene     string        `yaml:"scene"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	Backend   string        `yaml:"backend"`    // soft or webgpu
	ShaderDir string        `yaml:"shader_dir"` // directory holding the trace/bloom/composite programs
	Frames    int           `yaml:"frames"`     // 0 renders the scene's full animation
	TimeLimit time.Duration `yaml:"time_limit"`
	Render    RenderConfig  `yaml:"render"`
	Output    OutputConfig  `yaml:"output"`
	Logging   LoggingConfig `yaml:"logging"`
}

// RenderConfig mirrors the per-frame post-process and sampling parameters.
type RenderConfig struct {
	SampleCount            int     `yaml:"sample_count"`
	EnableAccumulation     bool    `yaml:"enable_accumulation"`
	EnableAdaptiveSampling bool    `yaml:"enable_adaptive_sampling"`
	EnableBloom            bool    `yaml:"enable_bloom"`
	BlurIterations         int     `yaml:"blur_iterations"`
	BlurSize               int     `yaml:"blur_size"`
	BloomIntensity         float32 `yaml:"bloom_intensity"`
	BloomThreshold         float32 `yaml:"bloom_threshold"`
	EnableToneMapping      bool    `yaml:"enable_tone_mapping"`
	Exposure               float32 `yaml:"exposure"`
	EnableGammaCorrection  bool    `yaml:"enable_gamma_correction"`
	Gamma                  float32 `yaml:"gamma"`
	Saturation             float32 `yaml:"saturation"`
}

// OutputConfig controls captured frame files.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"` // jpg, png, bmp, tiff
	Slots   int    `yaml:"slots"`
	Quality int    `yaml:"quality"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with the values used by the headless renderer.
func Default() *Config {
	return &Config{
		Width:     1920,
		Height:    1080,
		Backend:   "soft",
		ShaderDir: "shader",
		TimeLimit: 250 * time.Second,
		Render: RenderConfig{
			SampleCount:           10,
			EnableAccumulation:    false,
			EnableBloom:           false,
			BlurIterations:        32,
			BlurSize:              16,
			BloomIntensity:        1.0,
			BloomThreshold:        0.5,
			EnableToneMapping:     true,
			Exposure:              1.0,
			EnableGammaCorrection: true,
			Gamma:                 2.2,
			Saturation:            1.0,
		},
		Output: OutputConfig{
			Dir:     ".",
			Format:  "jpg",
			Slots:   3,
			Quality: 90,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

var ErrInvalid = errors.New("invalid config")

// Validate reports the first setting that cannot be rendered with.
func (c *Config) Validate() error {
	if c.Scene == "" {
		return fmt.Errorf("%w: scene path is empty", ErrInvalid)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalid, c.Width, c.Height)
	}
	switch c.Backend {
	case "soft", "webgpu":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	switch c.Output.Format {
	case "jpg", "jpeg", "png", "bmp", "tiff":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output.Format)
	}
	if c.Output.Slots < 1 {
		return fmt.Errorf("%w: output slots must be >= 1, got %d", ErrInvalid, c.Output.Slots)
	}
	if c.Frames < 0 {
		return fmt.Errorf("%w: negative frame count %d", ErrInvalid, c.Frames)
	}
	if c.Render.BlurIterations < 0 {
		return fmt.Errorf("%w: negative blur iterations %d", ErrInvalid, c.Render.BlurIterations)
	}
	return nil
}
