// Package soft is a host-memory gpu.Device. Buffers are byte slices,
// acceleration structures are CPU BVHs and every recorded command is kept in
// a log, so the renderer can be driven and inspected without a GPU. Shaders
// are never executed.
package soft

import (
	"fmt"
	"sync"

	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
	"github.com/google/uuid"
)

type Options struct {
	// RowAlignment rounds CopyRowPitch up to a multiple of this many bytes.
	RowAlignment int
	Logger       logging.Logger
}

type Device struct {
	mu       sync.Mutex
	opts     Options
	logger   logging.Logger
	nextAddr uint64
	history  []Command
	stats    Stats
	released bool
}

// Stats counts created resources and submissions.
type Stats struct {
	Buffers      int
	Images       int
	BottomAccels int
	TopAccels    int
	Pipelines    int
	Submits      int
	Uploads      int
	WaitIdles    int
}

func NewDevice(opts Options) *Device {
	if opts.RowAlignment <= 0 {
		opts.RowAlignment = 1
	}
	return &Device{
		opts:     opts,
		logger:   logging.OrNop(opts.Logger),
		nextAddr: 0x10000,
	}
}

var _ gpu.Device = (*Device)(nil)

func newLabel(label string) string {
	id := uuid.New().String()[:8]
	if label == "" {
		return id
	}
	return label + "#" + id
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("soft: buffer %q has zero size", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{
		label:  newLabel(desc.Label),
		data:   make([]byte, desc.Size),
		addr:   d.nextAddr,
		memory: desc.Memory,
	}
	d.nextAddr += (desc.Size + 255) &^ 255
	d.stats.Buffers++
	d.logger.Debugf("soft: buffer %s size=%d addr=%#x", b.label, desc.Size, b.addr)
	return b, nil
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("soft: image %q has extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	depth := max(desc.Depth, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Images++
	img := &Image{
		label:  newLabel(desc.Label),
		width:  desc.Width,
		height: desc.Height,
		depth:  depth,
		format: desc.Format,
		pixels: make([]byte, desc.Width*desc.Height*depth*desc.Format.BytesPerPixel()),
	}
	copy(img.pixels, desc.Data)
	return img, nil
}

func (d *Device) CreateBottomAccel(desc gpu.BottomAccelDesc) (gpu.BottomAccel, error) {
	if desc.Geometry.Vertices == nil || desc.Geometry.Indices == nil {
		return nil, fmt.Errorf("soft: bottom accel %q has no geometry", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.BottomAccels++
	return &BottomAccel{
		label:       newLabel(desc.Label),
		geometry:    desc.Geometry,
		maxVertices: desc.MaxVertexCount,
		maxTris:     desc.MaxTriangleCount,
	}, nil
}

func (d *Device) CreateTopAccel(desc gpu.TopAccelDesc) (gpu.TopAccel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.TopAccels++
	t := &TopAccel{label: newLabel(desc.Label), maxInstances: desc.MaxInstances}
	t.UpdateInstances(desc.Instances)
	return t, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	return d.newPipeline(desc.Label, "compute", desc.Bindings, desc.PushConstantSize)
}

func (d *Device) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDesc) (gpu.Pipeline, error) {
	return d.newPipeline(desc.Label, "ray-tracing", desc.Bindings, desc.PushConstantSize)
}

func (d *Device) newPipeline(label, kind string, bindings []gpu.Binding, pushSize int) (gpu.Pipeline, error) {
	for i, b := range bindings {
		if b.Buffer == nil && b.Image == nil && b.Accel == nil {
			return nil, fmt.Errorf("soft: pipeline %q binding %d (%s) is empty", label, i, b.Name)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Pipelines++
	return &Pipeline{label: newLabel(label), kind: kind, bindings: bindings, pushSize: pushSize}, nil
}

func (d *Device) BeginCommands() gpu.CommandBuffer {
	return &CommandBuffer{}
}

// Submit executes the recorded effects in order and appends the commands to
// the device history.
func (d *Device) Submit(cmd gpu.CommandBuffer) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("soft: foreign command buffer %T", cmd)
	}
	if !cb.ended {
		return fmt.Errorf("soft: command buffer submitted before End")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("soft: device released")
	}
	for i := range cb.cmds {
		if err := d.execute(&cb.cmds[i]); err != nil {
			return err
		}
	}
	d.history = append(d.history, cb.cmds...)
	d.stats.Submits++
	return nil
}

func (d *Device) Upload(fn func(cmd gpu.CommandBuffer)) (gpu.UploadToken, error) {
	cmd := d.BeginCommands()
	fn(cmd)
	cmd.End()
	if err := d.Submit(cmd); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.stats.Uploads++
	d.mu.Unlock()
	return gpu.DoneToken{}, nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.WaitIdles++
	return nil
}

func (d *Device) CopyRowPitch(width, bytesPerPixel int) int {
	a := d.opts.RowAlignment
	return (width*bytesPerPixel + a - 1) / a * a
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

// History returns a copy of every submitted command.
func (d *Device) History() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.history...)
}

func (d *Device) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) execute(c *Command) error {
	switch c.Op {
	case OpCopyBuffer:
		b := c.buffer.(*Buffer)
		if c.offset+uint64(len(c.data)) > uint64(len(b.data)) {
			return fmt.Errorf("soft: copy of %d bytes at %d overflows %s", len(c.data), c.offset, b.label)
		}
		copy(b.data[c.offset:], c.data)
	case OpBuildBottom:
		c.bottom.(*BottomAccel).build()
	case OpUpdateBottom:
		c.bottom.(*BottomAccel).refit()
	case OpBuildTop, OpUpdateTop:
		c.top.(*TopAccel).build()
	case OpCopyImage:
		img := c.image.(*Image)
		buf := c.buffer.(*Buffer)
		bpp := img.format.BytesPerPixel()
		pitch := d.CopyRowPitch(img.width, bpp)
		if uint64(pitch*img.height) > uint64(len(buf.data)) {
			return fmt.Errorf("soft: %s too small for %s", buf.label, img.label)
		}
		row := img.width * bpp
		for y := 0; y < img.height; y++ {
			copy(buf.data[y*pitch:y*pitch+row], img.pixels[y*row:(y+1)*row])
		}
	}
	return nil
}
