// Package accel keeps the bottom- and top-level acceleration structures in
// step with an animated scene.
package accel

import (
	"context"
	"fmt"
	"time"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
	"github.com/gekko3d/coalumine/rt/scene"
)

type State int

const (
	Unbuilt State = iota
	Built
	Updated
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Built:
		return "built"
	case Updated:
		return "updated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// InstanceMask makes every instance visible to every ray.
const InstanceMask = 0xff

// Manager owns one bottom-level structure per mesh and a single top-level
// structure over the scene's instances. Calling an update before Build is
// a caller error and is not checked.
type Manager struct {
	dev    gpu.Device
	scene  *scene.Scene
	logger logging.Logger

	bottoms     []gpu.BottomAccel
	bottomState []State
	animated    []int

	top      gpu.TopAccel
	topState State
}

func New(dev gpu.Device, s *scene.Scene, logger logging.Logger) *Manager {
	return &Manager{dev: dev, scene: s, logger: logging.OrNop(logger)}
}

// Build creates every structure from key frame 0 and frame 0 transforms and
// returns once the build has completed on the device. Scene resources must
// exist.
func (m *Manager) Build(ctx context.Context) error {
	start := time.Now()
	s := m.scene

	m.bottoms = make([]gpu.BottomAccel, len(s.Meshes))
	m.bottomState = make([]State, len(s.Meshes))
	m.animated = m.animated[:0]
	for mi := range s.Meshes {
		mesh := &s.Meshes[mi]
		blas, err := m.dev.CreateBottomAccel(gpu.BottomAccelDesc{
			Label:            fmt.Sprintf("blas[%d]", mi),
			Geometry:         s.Geometry(mi, 0),
			MaxVertexCount:   mesh.MaxVertexCount(),
			MaxTriangleCount: mesh.MaxTriangleCount(),
			AllowUpdate:      mesh.IsAnimated(),
		})
		if err != nil {
			return fmt.Errorf("accel: bottom-level structure for mesh %d: %w", mi, err)
		}
		m.bottoms[mi] = blas
		if mesh.IsAnimated() {
			m.animated = append(m.animated, mi)
		}
	}

	instances := m.instances(0)
	top, err := m.dev.CreateTopAccel(gpu.TopAccelDesc{
		Label:        "tlas",
		Instances:    instances,
		MaxInstances: len(instances),
		AllowUpdate:  true,
	})
	if err != nil {
		return fmt.Errorf("accel: top-level structure: %w", err)
	}
	m.top = top

	tok, err := m.dev.Upload(func(cmd gpu.CommandBuffer) {
		for _, blas := range m.bottoms {
			cmd.BuildBottomAccel(blas)
		}
		cmd.MemoryBarrier(gpu.StageAccelBuild, gpu.StageAccelBuild, gpu.AccessAccelWrite, gpu.AccessAccelRead)
		cmd.BuildTopAccel(top)
	})
	if err != nil {
		return fmt.Errorf("accel: build: %w", err)
	}
	if err := gpu.JoinUploads(ctx, tok); err != nil {
		return fmt.Errorf("accel: waiting for build: %w", err)
	}

	for i := range m.bottomState {
		m.bottomState[i] = Built
	}
	m.topState = Built
	m.logger.Infof("accel: built %d bottom-level structures (%d animated), %d instances in %v",
		len(m.bottoms), len(m.animated), len(instances), time.Since(start))
	return nil
}

func (m *Manager) instances(frame int) []gpu.Instance {
	src := m.scene.Instances(frame)
	out := make([]gpu.Instance, len(src))
	for i, inst := range src {
		out[i] = gpu.Instance{
			Accel:       m.bottoms[inst.MeshIndex],
			Transform:   inst.Transform,
			CustomIndex: uint32(inst.NodeIndex),
			Mask:        InstanceMask,
		}
	}
	return out
}

// ShouldUpdate reports whether frame can differ from frame-1. The first two
// frames always update; after that only moving meshed nodes or meshes with
// vertex animation do.
func (m *Manager) ShouldUpdate(frame int) bool {
	if frame <= 1 {
		return true
	}
	nodes := m.scene.Nodes
	for i := range nodes {
		n := &nodes[i]
		if !n.HasMesh() {
			continue
		}
		if m.scene.Meshes[n.MeshIndex].IsAnimated() {
			return true
		}
		if core.EvaluateTransform(nodes, i, frame-1) != core.EvaluateTransform(nodes, i, frame) {
			return true
		}
	}
	return false
}

// UpdateBottom points every animated mesh's structure at its key frame for
// frame and records a refit.
func (m *Manager) UpdateBottom(cmd gpu.CommandBuffer, frame int) {
	for _, mi := range m.animated {
		m.bottoms[mi].Update(m.scene.Geometry(mi, frame))
		cmd.UpdateBottomAccel(m.bottoms[mi])
		m.bottomState[mi] = Updated
	}
}

// UpdateTop regenerates the instance list for frame, refreshes the node data
// mirror to match it and records a top-level update.
func (m *Manager) UpdateTop(cmd gpu.CommandBuffer, frame int) {
	instances := m.instances(frame)
	m.scene.RefreshNodeData(frame)
	m.scene.SyncNodeDataBuffer()
	m.top.UpdateInstances(instances)
	cmd.UpdateTopAccel(m.top)
	m.topState = Updated
	if m.logger.DebugEnabled() {
		m.logger.Debugf("accel: frame %d: %d instances, %d animated meshes", frame, len(instances), len(m.animated))
	}
}

func (m *Manager) InstanceCount() int {
	if m.top == nil {
		return 0
	}
	return m.top.InstanceCount()
}

func (m *Manager) BottomState(mesh int) State {
	if mesh < 0 || mesh >= len(m.bottomState) {
		return Unbuilt
	}
	return m.bottomState[mesh]
}

func (m *Manager) TopState() State { return m.topState }

// AnimatedMeshes lists meshes with more than one key frame.
func (m *Manager) AnimatedMeshes() []int { return m.animated }

func (m *Manager) TopAccel() gpu.TopAccel { return m.top }

func (m *Manager) BottomAccel(mesh int) gpu.BottomAccel { return m.bottoms[mesh] }
