package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 1080, cfg.Height)
	assert.Equal(t, "soft", cfg.Backend)
	assert.Equal(t, 250*time.Second, cfg.TimeLimit)
	assert.Equal(t, 3, cfg.Output.Slots)
	assert.Equal(t, "jpg", cfg.Output.Format)
	assert.Equal(t, 90, cfg.Output.Quality)
	assert.Equal(t, 32, cfg.Render.BlurIterations)
	assert.False(t, cfg.Render.EnableBloom)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	yml := `
scene: scenes/cornell.json
width: 640
render:
  enable_bloom: true
  blur_iterations: 4
output:
  format: png
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "scenes/cornell.json", cfg.Scene)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 1080, cfg.Height, "unset keys keep defaults")
	assert.True(t, cfg.Render.EnableBloom)
	assert.Equal(t, 4, cfg.Render.BlurIterations)
	assert.Equal(t, "png", cfg.Output.Format)
	assert.Equal(t, 3, cfg.Output.Slots)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scene: a.json\nwidth: 640\n"), 0644))

	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Bind(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-scene", "b.json", "-width", "320", "-debug", "-bloom"}))

	cfg, err := Load(&f)
	require.NoError(t, err)
	assert.Equal(t, "b.json", cfg.Scene)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Render.EnableBloom)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scene = "x.obj"
	cfg.Output.Format = "tiff"
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"no scene", func(c *Config) { c.Scene = "" }, false},
		{"zero width", func(c *Config) { c.Width = 0 }, false},
		{"bad backend", func(c *Config) { c.Backend = "vulkan" }, false},
		{"bad format", func(c *Config) { c.Output.Format = "gif" }, false},
		{"no slots", func(c *Config) { c.Output.Slots = 0 }, false},
		{"negative frames", func(c *Config) { c.Frames = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Scene = "scene.json"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid))
			}
		})
	}
}
