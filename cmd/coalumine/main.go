package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/gekko3d/coalumine/rt/app"
	"github.com/gekko3d/coalumine/rt/config"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/gpu/soft"
	"github.com/gekko3d/coalumine/rt/gpu/webgpu"
	"github.com/gekko3d/coalumine/rt/logging"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "coalumine:", err)
		os.Exit(1)
	}
}

func run() error {
	var flags config.Flags
	fs := flag.NewFlagSet("coalumine", flag.ExitOnError)
	flags.Bind(fs)
	saveConfig := fs.String("save-config", "", "Write the effective config to this path and exit")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(&flags)
	if err != nil {
		return err
	}
	if *saveConfig != "" {
		return cfg.SaveTo(*saveConfig)
	}

	logger := logging.New("coalumine", cfg.Logging.Level, logging.DefaultFileConfig(cfg.Logging.LogFile), true)
	defer logger.Sync()

	dev, shaders, err := openDevice(cfg, logger)
	if err != nil {
		return err
	}
	defer dev.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h, err := app.NewHeadless(ctx, cfg, dev, shaders, logger)
	if err != nil {
		return err
	}
	res, err := h.Run(ctx)
	logger.Infof("run %s: %d/%d frames in %v", res.RunID, res.Frames, h.TotalFrames(), res.Elapsed)
	return err
}

// openDevice picks the backend. The soft backend never runs shaders, so it
// does not need the shader directory.
func openDevice(cfg *config.Config, logger logging.Logger) (gpu.Device, gpu.ShaderLoader, error) {
	switch cfg.Backend {
	case "webgpu":
		dev, err := webgpu.Open(webgpu.Options{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return dev, gpu.DirShaderLoader{Dir: cfg.ShaderDir}, nil
	default:
		logger.Warnf("backend %q runs no shaders, frames will be black; use -backend webgpu to render", cfg.Backend)
		return soft.NewDevice(soft.Options{RowAlignment: 256, Logger: logger}), gpu.StubShaderLoader{}, nil
	}
}
