package soft

import (
	"fmt"

	"github.com/gekko3d/coalumine/rt/gpu"
)

type Op int

const (
	OpCopyBuffer Op = iota
	OpBuildBottom
	OpUpdateBottom
	OpBuildTop
	OpUpdateTop
	OpMemoryBarrier
	OpImageBarrier
	OpTransition
	OpBindPipeline
	OpPushConstants
	OpTraceRays
	OpDispatch
	OpCopyImage
)

var opNames = [...]string{
	"copy-buffer", "build-bottom", "update-bottom", "build-top", "update-top",
	"memory-barrier", "image-barrier", "transition", "bind-pipeline",
	"push-constants", "trace-rays", "dispatch", "copy-image",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Command is one recorded call. Target is the label of the resource or
// pipeline it acts on.
type Command struct {
	Op        Op
	Target    string
	SrcStage  gpu.Stage
	DstStage  gpu.Stage
	SrcAccess gpu.Access
	DstAccess gpu.Access
	Layout    gpu.ImageLayout
	X, Y, Z   int

	buffer gpu.Buffer
	image  gpu.Image
	bottom gpu.BottomAccel
	top    gpu.TopAccel
	data   []byte
	offset uint64
}

func (c Command) String() string {
	switch c.Op {
	case OpMemoryBarrier:
		return fmt.Sprintf("%s %s->%s", c.Op, c.SrcStage, c.DstStage)
	case OpImageBarrier:
		return fmt.Sprintf("%s %s %s->%s", c.Op, c.Target, c.SrcStage, c.DstStage)
	case OpTraceRays, OpDispatch:
		return fmt.Sprintf("%s %s %dx%dx%d", c.Op, c.Target, c.X, c.Y, c.Z)
	}
	return fmt.Sprintf("%s %s", c.Op, c.Target)
}

type CommandBuffer struct {
	cmds  []Command
	ended bool
}

var _ gpu.CommandBuffer = (*CommandBuffer)(nil)

// Commands returns what has been recorded so far.
func (cb *CommandBuffer) Commands() []Command { return cb.cmds }

func (cb *CommandBuffer) record(c Command) {
	if cb.ended {
		panic("soft: recording into an ended command buffer")
	}
	cb.cmds = append(cb.cmds, c)
}

func (cb *CommandBuffer) CopyBuffer(dst gpu.Buffer, offset uint64, data []byte) {
	cb.record(Command{
		Op: OpCopyBuffer, Target: dst.Label(),
		buffer: dst, offset: offset, data: append([]byte(nil), data...),
	})
}

func (cb *CommandBuffer) BuildBottomAccel(a gpu.BottomAccel) {
	cb.record(Command{Op: OpBuildBottom, Target: a.(*BottomAccel).label, bottom: a})
}

func (cb *CommandBuffer) UpdateBottomAccel(a gpu.BottomAccel) {
	cb.record(Command{Op: OpUpdateBottom, Target: a.(*BottomAccel).label, bottom: a})
}

func (cb *CommandBuffer) BuildTopAccel(a gpu.TopAccel) {
	cb.record(Command{Op: OpBuildTop, Target: a.(*TopAccel).label, top: a})
}

func (cb *CommandBuffer) UpdateTopAccel(a gpu.TopAccel) {
	cb.record(Command{Op: OpUpdateTop, Target: a.(*TopAccel).label, top: a})
}

func (cb *CommandBuffer) MemoryBarrier(srcStage, dstStage gpu.Stage, srcAccess, dstAccess gpu.Access) {
	cb.record(Command{
		Op: OpMemoryBarrier, SrcStage: srcStage, DstStage: dstStage,
		SrcAccess: srcAccess, DstAccess: dstAccess,
	})
}

func (cb *CommandBuffer) ImageBarrier(img gpu.Image, srcStage, dstStage gpu.Stage, srcAccess, dstAccess gpu.Access) {
	cb.record(Command{
		Op: OpImageBarrier, Target: img.Label(), image: img,
		SrcStage: srcStage, DstStage: dstStage, SrcAccess: srcAccess, DstAccess: dstAccess,
	})
}

func (cb *CommandBuffer) TransitionLayout(img gpu.Image, layout gpu.ImageLayout) {
	cb.record(Command{Op: OpTransition, Target: img.Label(), image: img, Layout: layout})
}

func (cb *CommandBuffer) BindPipeline(p gpu.Pipeline) {
	cb.record(Command{Op: OpBindPipeline, Target: p.Label()})
}

func (cb *CommandBuffer) PushConstants(p gpu.Pipeline, data []byte) {
	cb.record(Command{Op: OpPushConstants, Target: p.Label(), data: append([]byte(nil), data...)})
}

func (cb *CommandBuffer) TraceRays(p gpu.Pipeline, width, height, depth int) {
	cb.record(Command{Op: OpTraceRays, Target: p.Label(), X: width, Y: height, Z: depth})
}

func (cb *CommandBuffer) Dispatch(p gpu.Pipeline, x, y, z int) {
	cb.record(Command{Op: OpDispatch, Target: p.Label(), X: x, Y: y, Z: z})
}

func (cb *CommandBuffer) CopyImageToBuffer(src gpu.Image, dst gpu.Buffer) {
	cb.record(Command{Op: OpCopyImage, Target: src.Label(), image: src, buffer: dst})
}

func (cb *CommandBuffer) End() { cb.ended = true }

// PushData returns the bytes of a push-constants command.
func (c Command) PushData() []byte { return c.data }
