package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/coalumine/rt/gpu"
)

type command func(r *replay) error

// CommandBuffer defers every call to Submit, where it is replayed onto
// WebGPU encoders. Barriers and layout transitions are recorded as
// nothing: WebGPU orders passes and tracks usage itself.
type CommandBuffer struct {
	cmds  []command
	ended bool
}

var _ gpu.CommandBuffer = (*CommandBuffer)(nil)

func (cb *CommandBuffer) record(c command) {
	if cb.ended {
		panic("webgpu: recording into an ended command buffer")
	}
	cb.cmds = append(cb.cmds, c)
}

// replay holds the open encoder of one submission. Queue writes land
// before any encoded work of the same submission, so an encoder with
// passes in it is submitted before the next queue write.
type replay struct {
	dev     *Device
	encoder *wgpu.CommandEncoder
	encoded bool
}

func (r *replay) enc() (*wgpu.CommandEncoder, error) {
	if r.encoder == nil {
		e, err := r.dev.device.CreateCommandEncoder(nil)
		if err != nil {
			return nil, err
		}
		r.encoder = e
	}
	r.encoded = true
	return r.encoder, nil
}

func (r *replay) flush() error {
	if r.encoder == nil {
		return nil
	}
	e := r.encoder
	r.encoder, r.encoded = nil, false
	defer e.Release()
	cmdBuf, err := e.Finish(nil)
	if err != nil {
		return err
	}
	defer cmdBuf.Release()
	r.dev.queue.Submit(cmdBuf)
	return nil
}

func (r *replay) write(buf *wgpu.Buffer, offset uint64, data []byte) error {
	if r.encoded {
		if err := r.flush(); err != nil {
			return err
		}
	}
	return r.dev.queue.WriteBuffer(buf, offset, padTo4(data))
}

func (cb *CommandBuffer) CopyBuffer(dst gpu.Buffer, offset uint64, data []byte) {
	b := dst.(*Buffer)
	data = append([]byte(nil), data...)
	cb.record(func(r *replay) error {
		if offset+uint64(len(data)) > uint64(len(b.shadow)) {
			return fmt.Errorf("copy of %d bytes at %d overflows %s", len(data), offset, b.label)
		}
		copy(b.shadow[offset:], data)
		return r.write(b.buf, offset, data)
	})
}

func (cb *CommandBuffer) BuildBottomAccel(a gpu.BottomAccel) {
	b := a.(*BottomAccel)
	cb.record(func(*replay) error { b.build(); return nil })
}

func (cb *CommandBuffer) UpdateBottomAccel(a gpu.BottomAccel) {
	b := a.(*BottomAccel)
	cb.record(func(*replay) error { b.refit(); return nil })
}

func (cb *CommandBuffer) BuildTopAccel(a gpu.TopAccel) {
	cb.record(uploadTop(a.(*TopAccel)))
}

func (cb *CommandBuffer) UpdateTopAccel(a gpu.TopAccel) {
	cb.record(uploadTop(a.(*TopAccel)))
}

// uploadTop rebuilds the top-level tree and rewrites the whole scene buffer;
// refitted bottom-level trees are picked up the same way.
func uploadTop(t *TopAccel) command {
	return func(r *replay) error {
		data := t.pack()
		if uint64(len(data)) > t.capacity {
			return fmt.Errorf("%s: %d bytes exceed capacity %d", t.label, len(data), t.capacity)
		}
		return r.write(t.buf, 0, data)
	}
}

func (cb *CommandBuffer) MemoryBarrier(gpu.Stage, gpu.Stage, gpu.Access, gpu.Access) {}

func (cb *CommandBuffer) ImageBarrier(gpu.Image, gpu.Stage, gpu.Stage, gpu.Access, gpu.Access) {}

func (cb *CommandBuffer) TransitionLayout(gpu.Image, gpu.ImageLayout) {}

func (cb *CommandBuffer) BindPipeline(gpu.Pipeline) {}

func (cb *CommandBuffer) PushConstants(p gpu.Pipeline, data []byte) {
	pl := p.(*Pipeline)
	data = append([]byte(nil), data...)
	cb.record(func(r *replay) error {
		if pl.push == nil {
			return fmt.Errorf("%s takes no push constants", pl.label)
		}
		if uint64(len(data)) > pl.pushSize {
			return fmt.Errorf("%s: %d push constant bytes, room for %d", pl.label, len(data), pl.pushSize)
		}
		return r.write(pl.push, 0, data)
	})
}

// TraceRays launches one invocation per pixel in 8x8 workgroups.
func (cb *CommandBuffer) TraceRays(p gpu.Pipeline, width, height, depth int) {
	cb.dispatch(p.(*Pipeline), (width+7)/8, (height+7)/8, max(depth, 1))
}

func (cb *CommandBuffer) Dispatch(p gpu.Pipeline, x, y, z int) {
	cb.dispatch(p.(*Pipeline), x, y, z)
}

func (cb *CommandBuffer) dispatch(p *Pipeline, x, y, z int) {
	cb.record(func(r *replay) error {
		e, err := r.enc()
		if err != nil {
			return err
		}
		pass := e.BeginComputePass(nil)
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, p.bindGroup, nil)
		pass.DispatchWorkgroups(uint32(x), uint32(y), uint32(z))
		pass.End()
		return nil
	})
}

// CopyImageToBuffer copies rows at CopyRowPitch. The host copy of dst is
// refreshed by the next WaitIdle.
func (cb *CommandBuffer) CopyImageToBuffer(src gpu.Image, dst gpu.Buffer) {
	img := src.(*Image)
	buf := dst.(*Buffer)
	cb.record(func(r *replay) error {
		pitch := alignRowPitch(img.width * img.format.BytesPerPixel())
		if uint64(pitch*img.height) > uint64(len(buf.shadow)) {
			return fmt.Errorf("%s too small for %s", buf.label, img.label)
		}
		e, err := r.enc()
		if err != nil {
			return err
		}
		e.CopyTextureToBuffer(
			img.tex.AsImageCopy(),
			&wgpu.ImageCopyBuffer{
				Buffer: buf.buf,
				Layout: wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  uint32(pitch),
					RowsPerImage: uint32(img.height),
				},
			},
			&wgpu.Extent3D{Width: uint32(img.width), Height: uint32(img.height), DepthOrArrayLayers: 1},
		)
		if buf.readback {
			r.dev.queueReadback(buf)
		}
		return nil
	})
}

func (cb *CommandBuffer) End() { cb.ended = true }
