package scene

import (
	"fmt"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/gekko3d/coalumine/rt/gpu"
)

// CreateMeshBuffers uploads the vertex and index data of every key frame.
func (s *Scene) CreateMeshBuffers(dev gpu.Device) (gpu.UploadToken, error) {
	s.meshBuffers = make([][]meshBuffers, len(s.Meshes))
	type pending struct {
		buf  gpu.Buffer
		data []byte
	}
	var uploads []pending

	for mi := range s.Meshes {
		mesh := &s.Meshes[mi]
		s.meshBuffers[mi] = make([]meshBuffers, len(mesh.KeyFrames))
		for ki := range mesh.KeyFrames {
			kf := &mesh.KeyFrames[ki]
			if kf.VertexCount() == 0 || kf.TriangleCount() == 0 {
				return nil, fmt.Errorf("scene: mesh %d key frame %d is empty", mi, ki)
			}
			vdata := gpu.EncodeVertices(kf.Vertices)
			idata := gpu.EncodeIndices(kf.Indices)
			vb, err := dev.CreateBuffer(gpu.BufferDesc{
				Label: fmt.Sprintf("mesh[%d].vertices[%d]", mi, ki),
				Size:  uint64(len(vdata)),
				Usage: gpu.BufferUsageStorage | gpu.BufferUsageVertex | gpu.BufferUsageAccelInput,
			})
			if err != nil {
				return nil, fmt.Errorf("scene: vertex buffer: %w", err)
			}
			ib, err := dev.CreateBuffer(gpu.BufferDesc{
				Label: fmt.Sprintf("mesh[%d].indices[%d]", mi, ki),
				Size:  uint64(len(idata)),
				Usage: gpu.BufferUsageStorage | gpu.BufferUsageIndex | gpu.BufferUsageAccelInput,
			})
			if err != nil {
				return nil, fmt.Errorf("scene: index buffer: %w", err)
			}
			s.meshBuffers[mi][ki] = meshBuffers{vertices: vb, indices: ib}
			uploads = append(uploads, pending{vb, vdata}, pending{ib, idata})
		}
	}

	return dev.Upload(func(cmd gpu.CommandBuffer) {
		for _, u := range uploads {
			cmd.CopyBuffer(u.buf, 0, u.data)
		}
	})
}

// Geometry returns the buffers of mesh mi's key frame for frame.
func (s *Scene) Geometry(mi int, frame int) gpu.TriangleGeometry {
	mesh := &s.Meshes[mi]
	ki := mesh.KeyFrameIndex(frame)
	kf := &mesh.KeyFrames[ki]
	b := s.meshBuffers[mi][ki]
	return gpu.TriangleGeometry{
		Vertices:      b.vertices,
		Indices:       b.indices,
		VertexCount:   kf.VertexCount(),
		TriangleCount: kf.TriangleCount(),
	}
}

// CreateMaterialBuffer uploads the material list. A default material is
// appended when the list is empty or some mesh has none, and those meshes
// are pointed at it.
func (s *Scene) CreateMaterialBuffer(dev gpu.Device) (gpu.UploadToken, error) {
	s.assignDefaultMaterial()
	data := gpu.EncodeMaterials(s.Materials)
	buf, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: "materials",
		Size:  uint64(len(data)),
		Usage: gpu.BufferUsageStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("scene: material buffer: %w", err)
	}
	s.materialBuffer = buf
	return dev.Upload(func(cmd gpu.CommandBuffer) {
		cmd.CopyBuffer(buf, 0, data)
	})
}

func (s *Scene) assignDefaultMaterial() {
	var unassigned []int
	for i := range s.Meshes {
		if s.Meshes[i].MaterialIndex < 0 {
			unassigned = append(unassigned, i)
		}
	}
	if len(s.Materials) > 0 && len(unassigned) == 0 {
		return
	}
	def := len(s.Materials)
	s.Materials = append(s.Materials, core.DefaultMaterial())
	for _, i := range unassigned {
		s.Meshes[i].MaterialIndex = def
	}
	s.logger.Debugf("scene: default material %d for %d meshes", def, len(unassigned))
}

// UpdateMaterialBuffer records a copy of the whole material list.
func (s *Scene) UpdateMaterialBuffer(cmd gpu.CommandBuffer) {
	cmd.CopyBuffer(s.materialBuffer, 0, gpu.EncodeMaterials(s.Materials))
}

func (s *Scene) nodeRecord(i int, frame int) gpu.NodeData {
	n := &s.Nodes[i]
	if !n.HasMesh() {
		return gpu.EmptyNodeData()
	}
	mesh := &s.Meshes[n.MeshIndex]
	g := s.Geometry(n.MeshIndex, frame)
	return gpu.NodeData{
		VertexAddress: g.Vertices.Address(),
		IndexAddress:  g.Indices.Address(),
		AABBMin:       mesh.Bounds.Min,
		MaterialIndex: int32(s.ResolveMaterial(i)),
		AABBMax:       mesh.Bounds.Max,
		MeshIndex:     int32(n.MeshIndex),
		NormalMatrix:  core.EvaluateNormalMatrix(s.Nodes, i, frame),
	}
}

// CreateNodeDataBuffer builds one record per node at frame 0 into a
// host-visible buffer. Mesh buffers must exist.
func (s *Scene) CreateNodeDataBuffer(dev gpu.Device) error {
	s.nodeData = make([]gpu.NodeData, len(s.Nodes))
	for i := range s.Nodes {
		s.nodeData[i] = s.nodeRecord(i, 0)
	}
	size := uint64(max(len(s.nodeData), 1) * gpu.NodeDataSize)
	buf, err := dev.CreateBuffer(gpu.BufferDesc{
		Label:  "nodeData",
		Size:   size,
		Usage:  gpu.BufferUsageStorage,
		Memory: gpu.MemoryHost,
	})
	if err != nil {
		return fmt.Errorf("scene: node data buffer: %w", err)
	}
	s.nodeDataBuffer = buf
	s.SyncNodeDataBuffer()
	return nil
}

// RefreshNodeData updates normal matrices of meshed nodes and swaps geometry
// addresses of vertex-animated meshes to the key frame for frame.
func (s *Scene) RefreshNodeData(frame int) {
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if !n.HasMesh() {
			continue
		}
		rec := &s.nodeData[i]
		rec.NormalMatrix = core.EvaluateNormalMatrix(s.Nodes, i, frame)
		if s.Meshes[n.MeshIndex].IsAnimated() {
			g := s.Geometry(n.MeshIndex, frame)
			rec.VertexAddress = g.Vertices.Address()
			rec.IndexAddress = g.Indices.Address()
		}
	}
}

// SyncNodeDataBuffer writes the host node records into the GPU mirror.
func (s *Scene) SyncNodeDataBuffer() {
	if len(s.nodeData) == 0 {
		return
	}
	s.nodeDataBuffer.Write(0, gpu.EncodeNodeData(s.nodeData))
}

func (s *Scene) NodeData() []gpu.NodeData    { return s.nodeData }
func (s *Scene) MaterialBuffer() gpu.Buffer  { return s.materialBuffer }
func (s *Scene) NodeDataBuffer() gpu.Buffer  { return s.nodeDataBuffer }
func (s *Scene) Images2D() []gpu.Image       { return s.images2D }
func (s *Scene) Images3D() []gpu.Image       { return s.images3D }
func (s *Scene) EnvironmentImage() gpu.Image { return s.envImage }

// CreateTextures uploads the environment map and every loaded texture.
func (s *Scene) CreateTextures(dev gpu.Device) error {
	for i, t := range s.Textures2D {
		img, err := createTexture(dev, fmt.Sprintf("texture2d[%d]", i), t)
		if err != nil {
			return err
		}
		s.images2D = append(s.images2D, img)
	}
	for i, t := range s.Textures3D {
		img, err := createTexture(dev, fmt.Sprintf("texture3d[%d]", i), t)
		if err != nil {
			return err
		}
		s.images3D = append(s.images3D, img)
	}
	if env := s.EnvLight; env.Texture != nil {
		img, err := createTexture(dev, "envLight", Texture{
			Width: env.TextureWidth, Height: env.TextureHeight, Depth: 1, Data: env.Texture,
		})
		if err != nil {
			return err
		}
		s.envImage = img
	}
	return nil
}

// CreateDummyTextures fills empty texture slots with 1x1 placeholders so
// every pipeline binding is valid.
func (s *Scene) CreateDummyTextures(dev gpu.Device) error {
	dummy := Texture{Width: 1, Height: 1, Depth: 1, Data: make([]float32, 4)}
	if len(s.images2D) == 0 {
		img, err := createTexture(dev, "dummyTexture2d", dummy)
		if err != nil {
			return err
		}
		s.images2D = append(s.images2D, img)
	}
	if len(s.images3D) == 0 {
		img, err := createTexture(dev, "dummyTexture3d", dummy)
		if err != nil {
			return err
		}
		s.images3D = append(s.images3D, img)
	}
	if s.envImage == nil {
		img, err := createTexture(dev, "dummyEnvLight", dummy)
		if err != nil {
			return err
		}
		s.envImage = img
	}
	return nil
}

func createTexture(dev gpu.Device, label string, t Texture) (gpu.Image, error) {
	img, err := dev.CreateImage(gpu.ImageDesc{
		Label:  label,
		Width:  t.Width,
		Height: t.Height,
		Depth:  max(t.Depth, 1),
		Format: gpu.FormatRGBA32Float,
		Data:   gpu.EncodeFloats(t.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", label, err)
	}
	return img, nil
}
