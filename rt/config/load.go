package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Flags are command-line overrides, bound to a FlagSet by Bind.
type Flags struct {
	Config  string
	Scene   string
	Backend string
	Output  string
	Format  string
	Width   int
	Height  int
	Frames  int
	Debug   bool
	Bloom   bool
}

// Bind registers the override flags on fs.
func (f *Flags) Bind(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.StringVar(&f.Scene, "scene", "", "Scene file (.json or .obj)")
	fs.StringVar(&f.Backend, "backend", "", "GPU backend: webgpu renders, soft only exercises the pipeline and writes black frames")
	fs.StringVar(&f.Output, "out", "", "Output directory")
	fs.StringVar(&f.Format, "format", "", "Output image format: jpg, png, bmp, tiff")
	fs.IntVar(&f.Width, "width", 0, "Image width")
	fs.IntVar(&f.Height, "height", 0, "Image height")
	fs.IntVar(&f.Frames, "frames", 0, "Number of frames (0 = scene animation length)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.Bloom, "bloom", false, "Enable bloom")
}

// Load loads configuration with priority: defaults < file < flags.
func Load(f *Flags) (*Config, error) {
	cfg := Default()

	if f != nil && f.Config != "" {
		if err := loadFromFile(cfg, f.Config); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", f.Config, err)
		}
	}

	if f != nil {
		applyFlags(cfg, f)
	}
	return cfg, nil
}

// LoadFile loads defaults merged with a YAML file.
func LoadFile(path string) (*Config, error) {
	return Load(&Flags{Config: path})
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyFlags(cfg *Config, f *Flags) {
	if f.Scene != "" {
		cfg.Scene = f.Scene
	}
	if f.Backend != "" {
		cfg.Backend = f.Backend
	}
	if f.Output != "" {
		cfg.Output.Dir = f.Output
	}
	if f.Format != "" {
		cfg.Output.Format = f.Format
	}
	if f.Width > 0 {
		cfg.Width = f.Width
	}
	if f.Height > 0 {
		cfg.Height = f.Height
	}
	if f.Frames > 0 {
		cfg.Frames = f.Frames
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Bloom {
		cfg.Render.EnableBloom = true
	}
}

// SaveTo writes the config to a specific path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
