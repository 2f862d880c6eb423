// Package app drives offline renders: every frame of a scene's animation is
// rendered, copied into a staging slot and handed to the output writer.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gekko3d/coalumine/rt/config"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
	"github.com/gekko3d/coalumine/rt/output"
	"github.com/gekko3d/coalumine/rt/renderer"
	"github.com/gekko3d/coalumine/rt/scene"
	"github.com/google/uuid"
)

// Result summarizes one Run.
type Result struct {
	RunID    string
	Frames   int
	Elapsed  time.Duration
	TimedOut bool
	Canceled bool
}

type Headless struct {
	RunID string

	cfg      *config.Config
	dev      gpu.Device
	renderer *renderer.Renderer
	writer   *output.Writer
	settings renderer.RenderSettings
	logger   logging.Logger
	profiler *Profiler

	totalFrames int
}

// NewHeadless loads cfg.Scene onto dev and prepares the renderer and the
// writer's staging slots.
func NewHeadless(ctx context.Context, cfg *config.Config, dev gpu.Device, shaders gpu.ShaderLoader, logger logging.Logger) (*Headless, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	h := &Headless{
		RunID:    uuid.NewString(),
		cfg:      cfg,
		dev:      dev,
		settings: renderer.SettingsFromConfig(cfg.Render),
		logger:   logger,
		profiler: NewProfiler(),
	}

	h.profiler.BeginScope("load")
	s := scene.New(logger)
	h.renderer = renderer.New(dev, s, shaders, cfg.Width, cfg.Height, logger)
	err := h.renderer.Initialize(ctx, cfg.Scene)
	h.profiler.EndScope("load")
	if err != nil {
		return nil, fmt.Errorf("app: initialize %s: %w", cfg.Scene, err)
	}

	enc, err := output.EncoderFor(cfg.Output.Format, cfg.Output.Quality)
	if err != nil {
		return nil, err
	}
	h.writer, err = output.NewWriter(dev, cfg.Width, cfg.Height, cfg.Output.Slots,
		output.WithDir(cfg.Output.Dir),
		output.WithEncoder(enc),
		output.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	h.totalFrames = cfg.Frames
	if h.totalFrames == 0 {
		h.totalFrames = max(h.renderer.MaxFrame(), 1)
	}
	logger.Infof("app: run %s: %d frames of %s at %dx%d", h.RunID, h.totalFrames, cfg.Scene, cfg.Width, cfg.Height)
	return h, nil
}

func (h *Headless) TotalFrames() int             { return h.totalFrames }
func (h *Headless) Renderer() *renderer.Renderer { return h.renderer }
func (h *Headless) Writer() *output.Writer       { return h.writer }
func (h *Headless) Profiler() *Profiler          { return h.profiler }

// Run renders frames in order until the animation ends, ctx is done or the
// time limit passes. The slot of a frame is only reused once its previous
// image has been written. In-flight writes are drained before returning.
func (h *Headless) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: h.RunID}
	start := time.Now()
	slot := 0
	var runErr error

	for frame := 0; frame < h.totalFrames; frame++ {
		if ctx.Err() != nil {
			h.logger.Warnf("app: canceled before frame %d", frame)
			res.Canceled = true
			break
		}

		h.profiler.Measure("wait", func() { h.writer.Wait(slot) })
		if err := h.renderFrame(slot, frame); err != nil {
			runErr = err
			break
		}
		h.writer.WriteImage(slot, frame)
		res.Frames++

		slot = (slot + 1) % h.writer.Slots()
		if limit := h.cfg.TimeLimit; limit > 0 && time.Since(start) > limit {
			h.logger.Warnf("app: time over after frame %d: %v", frame, time.Since(start))
			res.TimedOut = true
			break
		}
	}

	if err := h.dev.WaitIdle(); err != nil && runErr == nil {
		runErr = err
	}
	h.profiler.Measure("drain", h.writer.WaitAll)
	res.Elapsed = time.Since(start)
	h.profiler.SetCount("frames", res.Frames)

	h.logger.Infof("app: total render time: %.1f s", res.Elapsed.Seconds())
	if h.logger.DebugEnabled() {
		h.logger.Debugf("app: profile\n%s", h.profiler.StatsString())
	}
	return res, errors.Join(runErr, h.writer.Err())
}

// renderFrame records, submits and waits for one frame including the copy of
// the RGBA output into the writer's slot.
func (h *Headless) renderFrame(slot, frame int) error {
	h.profiler.BeginScope("record")
	h.renderer.Update(frame)
	cmd := h.dev.BeginCommands()
	h.renderer.Render(cmd, frame, &h.settings)

	out := h.renderer.OutputImageRGBA()
	cmd.ImageBarrier(out, gpu.StageCompute, gpu.StageTransfer, gpu.AccessShaderWrite, gpu.AccessTransferRead)
	cmd.TransitionLayout(out, gpu.LayoutTransferSrc)
	cmd.CopyImageToBuffer(out, h.writer.Buffer(slot))
	cmd.TransitionLayout(out, gpu.LayoutGeneral)
	cmd.End()
	h.profiler.EndScope("record")

	h.profiler.BeginScope("gpu")
	defer h.profiler.EndScope("gpu")
	if err := h.dev.Submit(cmd); err != nil {
		return fmt.Errorf("app: submit frame %d: %w", frame, err)
	}
	if err := h.dev.WaitIdle(); err != nil {
		return fmt.Errorf("app: frame %d: %w", frame, err)
	}
	return nil
}
