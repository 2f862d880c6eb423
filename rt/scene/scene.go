// Package scene owns the node arena, meshes, materials, lights and camera of
// a render, along with their GPU mirrors.
package scene

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
	"github.com/gekko3d/coalumine/rt/logging"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported scene format")
	ErrMissingAttribute  = errors.New("missing required attribute")
)

// Texture is RGBA32F texel data.
type Texture struct {
	Name   string
	Width  int
	Height int
	Depth  int
	Data   []float32
}

// Instance is a meshed node resolved for one frame.
type Instance struct {
	NodeIndex     int
	MeshIndex     int
	MaterialIndex int
	Transform     mgl32.Mat4
	NormalMatrix  mgl32.Mat4
}

type meshBuffers struct {
	vertices gpu.Buffer
	indices  gpu.Buffer
}

type Scene struct {
	Nodes         []core.Node
	Meshes        []core.Mesh
	Materials     []core.Material
	Camera        core.Camera
	InfiniteLight core.InfiniteLight
	EnvLight      core.EnvironmentLight
	Textures2D    []Texture
	Textures3D    []Texture

	logger logging.Logger

	meshBuffers    [][]meshBuffers // [mesh][key frame]
	materialBuffer gpu.Buffer
	nodeDataBuffer gpu.Buffer
	nodeData       []gpu.NodeData
	images2D       []gpu.Image
	images3D       []gpu.Image
	envImage       gpu.Image

	dirty bool
}

func New(logger logging.Logger) *Scene {
	return &Scene{
		Camera:   core.DefaultCamera(1),
		EnvLight: core.DefaultEnvironmentLight(),
		logger:   logging.OrNop(logger),
	}
}

// MaxFrame is the longest node or mesh animation; 0 for a static scene.
func (s *Scene) MaxFrame() int {
	n := 0
	for i := range s.Nodes {
		n = max(n, len(s.Nodes[i].KeyFrames))
	}
	for i := range s.Meshes {
		if s.Meshes[i].IsAnimated() {
			n = max(n, len(s.Meshes[i].KeyFrames))
		}
	}
	return n
}

// ResolveMaterial returns the node's override, else its mesh's material.
func (s *Scene) ResolveMaterial(nodeIndex int) int {
	n := &s.Nodes[nodeIndex]
	if n.OverrideMaterialIndex >= 0 {
		return n.OverrideMaterialIndex
	}
	if n.MeshIndex >= 0 {
		return s.Meshes[n.MeshIndex].MaterialIndex
	}
	return -1
}

// Instances lists meshed nodes in node order with transforms at frame.
func (s *Scene) Instances(frame int) []Instance {
	out := make([]Instance, 0, len(s.Nodes))
	for i := range s.Nodes {
		if !s.Nodes[i].HasMesh() {
			continue
		}
		m := core.EvaluateTransform(s.Nodes, i, frame)
		out = append(out, Instance{
			NodeIndex:     i,
			MeshIndex:     s.Nodes[i].MeshIndex,
			MaterialIndex: s.ResolveMaterial(i),
			Transform:     m,
			NormalMatrix:  core.NormalMatrix(m),
		})
	}
	return out
}

// Initialize loads path by extension and creates every GPU resource the
// renderer reads, returning once all uploads have completed.
func (s *Scene) Initialize(ctx context.Context, dev gpu.Device, path string, width, height int) error {
	start := time.Now()
	if err := s.Load(path); err != nil {
		s.logger.Errorf("scene: %v", err)
		return err
	}
	s.logger.Infof("scene: loaded %s in %v (%d nodes, %d meshes, %d materials)",
		path, time.Since(start), len(s.Nodes), len(s.Meshes), len(s.Materials))

	s.Camera.Aspect = float32(width) / float32(height)
	return s.CreateResources(ctx, dev)
}

// CreateResources uploads an already populated scene.
func (s *Scene) CreateResources(ctx context.Context, dev gpu.Device) error {
	start := time.Now()
	var tokens []gpu.UploadToken

	tok, err := s.CreateMeshBuffers(dev)
	if err != nil {
		return err
	}
	tokens = append(tokens, tok)

	tok, err = s.CreateMaterialBuffer(dev)
	if err != nil {
		return err
	}
	tokens = append(tokens, tok)

	if err := s.CreateNodeDataBuffer(dev); err != nil {
		return err
	}
	if err := s.CreateTextures(dev); err != nil {
		return err
	}
	if err := s.CreateDummyTextures(dev); err != nil {
		return err
	}

	if err := gpu.JoinUploads(ctx, tokens...); err != nil {
		return fmt.Errorf("scene: waiting for uploads: %w", err)
	}
	s.logger.Infof("scene: GPU resources ready in %v", time.Since(start))
	return nil
}

// Load dispatches on the file extension.
func (s *Scene) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(s, path)
	case ".obj":
		mesh, err := LoadOBJ(path)
		if err != nil {
			return err
		}
		mesh.MaterialIndex = len(s.Materials)
		s.Materials = append(s.Materials, core.DefaultMaterial())
		s.Meshes = append(s.Meshes, mesh)
		node := core.NewNode()
		node.Name = filepath.Base(path)
		node.MeshIndex = len(s.Meshes) - 1
		s.Nodes = append(s.Nodes, node)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// MarkDirty flags an image-affecting change for the renderer.
func (s *Scene) MarkDirty() { s.dirty = true }

// ConsumeEdits reports whether anything was edited since the last call.
func (s *Scene) ConsumeEdits() bool {
	d := s.dirty
	s.dirty = false
	return d
}

func (s *Scene) EditMaterial(i int, fn func(m *core.Material)) error {
	if i < 0 || i >= len(s.Materials) {
		return fmt.Errorf("scene: material %d out of range [0,%d)", i, len(s.Materials))
	}
	fn(&s.Materials[i])
	s.dirty = true
	return nil
}

func (s *Scene) EditInfiniteLight(fn func(l *core.InfiniteLight)) {
	fn(&s.InfiniteLight)
	s.dirty = true
}

func (s *Scene) EditEnvironmentLight(fn func(l *core.EnvironmentLight)) {
	fn(&s.EnvLight)
	s.dirty = true
}

func (s *Scene) EditCamera(fn func(c *core.Camera)) {
	fn(&s.Camera)
	s.dirty = true
}
