// Package webgpu implements gpu.Device on WebGPU. WebGPU has no hardware
// ray tracing, so acceleration structures are CPU BVHs packed into storage
// buffers and ray-tracing pipelines are compute pipelines that traverse
// them.
package webgpu

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
)

type Options struct {
	Logger logging.Logger
}

type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	logger   logging.Logger

	mu        sync.Mutex
	nextAddr  uint64
	buffers   []*Buffer
	images    []*Image
	tops      []*TopAccel
	pipelines []*Pipeline
	readbacks []*Buffer
}

var _ gpu.Device = (*Device)(nil)

// Open requests a high-performance adapter without a surface.
func Open(opts Options) (*Device, error) {
	d := &Device{logger: logging.OrNop(opts.Logger), nextAddr: 0x10000}
	d.instance = wgpu.CreateInstance(nil)

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		d.instance.Release()
		return nil, fmt.Errorf("webgpu: request adapter: %w", err)
	}
	d.adapter = adapter

	d.device, err = adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		d.instance.Release()
		return nil, fmt.Errorf("webgpu: request device: %w", err)
	}
	d.queue = d.device.GetQueue()
	d.logger.Infof("webgpu: device ready")
	return d, nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("webgpu: buffer %q has zero size", desc.Label)
	}
	readback := desc.Usage&gpu.BufferUsageStaging != 0 && desc.Memory == gpu.MemoryHost
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	if readback {
		usage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  align4(desc.Size),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: buffer %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{
		label:    desc.Label,
		buf:      buf,
		shadow:   make([]byte, desc.Size),
		addr:     d.nextAddr,
		memory:   desc.Memory,
		readback: readback,
		queue:    d.queue,
	}
	d.nextAddr += (desc.Size + 255) &^ 255
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("webgpu: image %q has extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	depth := max(desc.Depth, 1)
	dim := wgpu.TextureDimension2D
	if depth > 1 {
		dim = wgpu.TextureDimension3D
	}
	extent := wgpu.Extent3D{
		Width:              uint32(desc.Width),
		Height:             uint32(desc.Height),
		DepthOrArrayLayers: uint32(depth),
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        textureFormat(desc.Format),
		Usage: wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding |
			wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: image %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("webgpu: image %q view: %w", desc.Label, err)
	}

	if len(desc.Data) > 0 {
		bpp := desc.Format.BytesPerPixel()
		err := d.queue.WriteTexture(tex.AsImageCopy(), desc.Data, &wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(desc.Width * bpp),
			RowsPerImage: uint32(desc.Height),
		}, &extent)
		if err != nil {
			view.Release()
			tex.Release()
			return nil, fmt.Errorf("webgpu: image %q upload: %w", desc.Label, err)
		}
	}

	img := &Image{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		depth:  depth,
		format: desc.Format,
		tex:    tex,
		view:   view,
	}
	d.mu.Lock()
	d.images = append(d.images, img)
	d.mu.Unlock()
	return img, nil
}

func (d *Device) CreateBottomAccel(desc gpu.BottomAccelDesc) (gpu.BottomAccel, error) {
	if desc.Geometry.Vertices == nil || desc.Geometry.Indices == nil {
		return nil, fmt.Errorf("webgpu: bottom accel %q has no geometry", desc.Label)
	}
	return &BottomAccel{
		label:    desc.Label,
		geometry: desc.Geometry,
		maxTris:  max(desc.MaxTriangleCount, desc.Geometry.TriangleCount),
	}, nil
}

// CreateTopAccel sizes the scene buffer for the instances' bottom-level
// structures at their maximum triangle counts.
func (d *Device) CreateTopAccel(desc gpu.TopAccelDesc) (gpu.TopAccel, error) {
	var bottoms []*BottomAccel
	seen := map[*BottomAccel]bool{}
	for _, inst := range desc.Instances {
		b, ok := inst.Accel.(*BottomAccel)
		if !ok {
			return nil, fmt.Errorf("webgpu: top accel %q: foreign bottom accel %T", desc.Label, inst.Accel)
		}
		if !seen[b] {
			seen[b] = true
			bottoms = append(bottoms, b)
		}
	}
	capacity := sceneCapacity(max(desc.MaxInstances, len(desc.Instances)), bottoms)
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  capacity,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: top accel %q: %w", desc.Label, err)
	}
	t := &TopAccel{label: desc.Label, buf: buf, capacity: capacity}
	t.UpdateInstances(desc.Instances)

	d.mu.Lock()
	d.tops = append(d.tops, t)
	d.mu.Unlock()
	return t, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	return d.newPipeline(desc.Label, desc.Shader.Entry, [][]byte{desc.Shader.Code}, desc.Bindings, desc.PushConstantSize)
}

// CreateRayTracingPipeline compiles the ray generation, miss and hit
// programs as one compute module entered at the ray generation entry point.
func (d *Device) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDesc) (gpu.Pipeline, error) {
	sources := [][]byte{desc.RayGen.Code}
	for _, s := range desc.Miss {
		sources = append(sources, s.Code)
	}
	for _, s := range desc.ClosestHit {
		sources = append(sources, s.Code)
	}
	d.logger.Debugf("webgpu: %s: %d programs, recursion depth %d", desc.Label, len(sources), desc.MaxRecursion)
	return d.newPipeline(desc.Label, desc.RayGen.Entry, sources, desc.Bindings, desc.PushConstantSize)
}

func (d *Device) newPipeline(label, entry string, sources [][]byte, bindings []gpu.Binding, pushSize int) (gpu.Pipeline, error) {
	var code strings.Builder
	for _, src := range sources {
		code.Write(src)
		code.WriteByte('\n')
	}
	if strings.TrimSpace(code.String()) == "" {
		return nil, fmt.Errorf("webgpu: pipeline %q has no shader code", label)
	}
	if entry == "" {
		entry = "main"
	}

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: pipeline %q shader: %w", label, err)
	}
	defer module.Release()

	cp, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: label,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: pipeline %q: %w", label, err)
	}
	p := &Pipeline{label: label, pipeline: cp}

	entries := make([]wgpu.BindGroupEntry, 0, len(bindings)+1)
	for i, b := range bindings {
		e := wgpu.BindGroupEntry{Binding: uint32(i)}
		switch {
		case b.Accel != nil:
			e.Buffer, e.Size = b.Accel.(*TopAccel).buf, wgpu.WholeSize
		case b.Buffer != nil:
			e.Buffer, e.Size = b.Buffer.(*Buffer).buf, wgpu.WholeSize
		case b.Image != nil:
			e.TextureView = b.Image.(*Image).view
		default:
			p.release()
			return nil, fmt.Errorf("webgpu: pipeline %q binding %d (%s) is empty", label, i, b.Name)
		}
		entries = append(entries, e)
	}
	if pushSize > 0 {
		p.pushSize = (uint64(pushSize) + 15) &^ 15
		p.push, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label + " push constants",
			Size:  p.pushSize,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			p.release()
			return nil, fmt.Errorf("webgpu: pipeline %q push constants: %w", label, err)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(len(bindings)), Buffer: p.push, Size: wgpu.WholeSize})
	}

	p.bindGroup, err = d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  cp.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("webgpu: pipeline %q bind group: %w", label, err)
	}

	d.mu.Lock()
	d.pipelines = append(d.pipelines, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Device) BeginCommands() gpu.CommandBuffer {
	return &CommandBuffer{}
}

func (d *Device) Submit(cmd gpu.CommandBuffer) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("webgpu: foreign command buffer %T", cmd)
	}
	if !cb.ended {
		return fmt.Errorf("webgpu: command buffer submitted before End")
	}
	r := &replay{dev: d}
	for i, c := range cb.cmds {
		if err := c(r); err != nil {
			return fmt.Errorf("webgpu: command %d: %w", i, err)
		}
	}
	return r.flush()
}

func (d *Device) Upload(fn func(cmd gpu.CommandBuffer)) (gpu.UploadToken, error) {
	cmd := d.BeginCommands()
	fn(cmd)
	cmd.End()
	if err := d.Submit(cmd); err != nil {
		return nil, err
	}
	return uploadToken{dev: d}, nil
}

type uploadToken struct {
	dev *Device
}

func (t uploadToken) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.dev.device.Poll(true, nil)
	return nil
}

// WaitIdle blocks until submitted work has finished and pulls pending image
// copies into the destination buffers' host memory.
func (d *Device) WaitIdle() error {
	d.device.Poll(true, nil)

	d.mu.Lock()
	pending := d.readbacks
	d.readbacks = nil
	d.mu.Unlock()

	for _, b := range pending {
		if err := d.mapRead(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) mapRead(b *Buffer) error {
	var (
		status wgpu.BufferMapAsyncStatus
		done   bool
	)
	size := b.buf.GetSize()
	b.buf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status, done = s, true
	})
	d.device.Poll(true, nil)
	if !done || status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("webgpu: map %s: status %d", b.label, status)
	}
	copy(b.shadow, b.buf.GetMappedRange(0, uint(size)))
	b.buf.Unmap()
	return nil
}

func (d *Device) queueReadback(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.readbacks {
		if p == b {
			return
		}
	}
	d.readbacks = append(d.readbacks, b)
}

func (d *Device) CopyRowPitch(width, bytesPerPixel int) int {
	return alignRowPitch(width * bytesPerPixel)
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pipelines {
		p.release()
	}
	for _, t := range d.tops {
		t.buf.Release()
	}
	for _, img := range d.images {
		img.release()
	}
	for _, b := range d.buffers {
		b.release()
	}
	d.pipelines, d.tops, d.images, d.buffers = nil, nil, nil, nil
	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
