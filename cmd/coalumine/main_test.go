package main

import (
	"fmt"
	"testing"

	"github.com/gekko3d/coalumine/rt/config"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/gpu/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordLogger struct {
	warnings []string
}

func (l *recordLogger) DebugEnabled() bool                { return false }
func (l *recordLogger) SetDebug(enabled bool)             {}
func (l *recordLogger) Debugf(format string, args ...any) {}
func (l *recordLogger) Infof(format string, args ...any)  {}
func (l *recordLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
func (l *recordLogger) Errorf(format string, args ...any) {}

func TestSoftBackendWarnsAboutBlackFrames(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "soft"
	logger := &recordLogger{}

	dev, shaders, err := openDevice(cfg, logger)
	require.NoError(t, err)
	defer dev.Release()

	assert.IsType(t, &soft.Device{}, dev)
	assert.Equal(t, gpu.StubShaderLoader{}, shaders)
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "-backend webgpu")
}
