package scene

import (
	"fmt"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/logging"
)

// Builder assembles a Scene programmatically.
type Builder struct {
	s *Scene
}

func NewBuilder() *Builder {
	return &Builder{s: New(nil)}
}

func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.s.logger = logging.OrNop(l)
	return b
}

func (b *Builder) AddMesh(m core.Mesh) int {
	if m.Bounds == (core.AABB{}) {
		m.RecomputeBounds()
	}
	b.s.Meshes = append(b.s.Meshes, m)
	return len(b.s.Meshes) - 1
}

func (b *Builder) AddMaterial(m core.Material) int {
	b.s.Materials = append(b.s.Materials, m)
	return len(b.s.Materials) - 1
}

func (b *Builder) AddNode(n core.Node) int {
	b.s.Nodes = append(b.s.Nodes, n)
	return len(b.s.Nodes) - 1
}

func (b *Builder) AddTexture3D(t Texture) int {
	b.s.Textures3D = append(b.s.Textures3D, t)
	return len(b.s.Textures3D) - 1
}

func (b *Builder) SetCamera(c core.Camera) *Builder {
	b.s.Camera = c
	return b
}

func (b *Builder) SetInfiniteLight(l core.InfiniteLight) *Builder {
	b.s.InfiniteLight = l
	return b
}

func (b *Builder) SetEnvironmentLight(l core.EnvironmentLight) *Builder {
	b.s.EnvLight = l
	return b
}

// Build validates references and the parent hierarchy, then links children.
func (b *Builder) Build() (*Scene, error) {
	s := b.s
	if err := validate(s); err != nil {
		return nil, err
	}
	core.LinkChildren(s.Nodes)
	return s, nil
}

func validate(s *Scene) error {
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.MeshIndex >= len(s.Meshes) {
			return fmt.Errorf("scene: node %d references mesh %d of %d", i, n.MeshIndex, len(s.Meshes))
		}
		if n.OverrideMaterialIndex >= len(s.Materials) {
			return fmt.Errorf("scene: node %d overrides material %d of %d", i, n.OverrideMaterialIndex, len(s.Materials))
		}
	}
	for i := range s.Meshes {
		m := &s.Meshes[i]
		if len(m.KeyFrames) == 0 {
			return fmt.Errorf("scene: mesh %d: %w: geometry", i, ErrMissingAttribute)
		}
		if m.MaterialIndex >= len(s.Materials) {
			return fmt.Errorf("scene: mesh %d references material %d of %d", i, m.MaterialIndex, len(s.Materials))
		}
		tris := m.KeyFrames[0].TriangleCount()
		for k := range m.KeyFrames {
			if m.KeyFrames[k].TriangleCount() != tris {
				return fmt.Errorf("scene: mesh %d key frame %d has %d triangles, key frame 0 has %d",
					i, k, m.KeyFrames[k].TriangleCount(), tris)
			}
		}
	}
	return core.ValidateHierarchy(s.Nodes)
}
