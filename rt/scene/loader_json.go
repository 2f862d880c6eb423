package scene

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

type jsonKeyFrame struct {
	Time        float32     `json:"time"`
	Translation *[3]float32 `json:"translation"`
	Rotation    *[3]float32 `json:"rotation"` // degrees
	Scale       *[3]float32 `json:"scale"`
}

type jsonObject struct {
	Name          string         `json:"name"`
	MeshIndex     *int           `json:"mesh_index"`
	MaterialIndex *int           `json:"material_index"`
	Translation   *[3]float32    `json:"translation"`
	Rotation      *[3]float32    `json:"rotation"` // degrees
	Scale         *[3]float32    `json:"scale"`
	Parent        *int           `json:"parent"`
	KeyFrames     []jsonKeyFrame `json:"key_frames"`
}

type jsonMesh struct {
	OBJ           string   `json:"obj"`
	KeyFrames     []string `json:"key_frames"`
	MaterialIndex *int     `json:"material_index"`
}

type jsonTextureRef struct {
	Projection   string `json:"projection"`
	TextureIndex int    `json:"texture_index"`
}

type jsonMaterial struct {
	BaseColor                *[4]float32     `json:"base_color"`
	Emissive                 *[3]float32     `json:"emissive"`
	Metallic                 *float32        `json:"metallic"`
	Roughness                *float32        `json:"roughness"`
	IOR                      *float32        `json:"ior"`
	Dispersion               *float32        `json:"dispersion"`
	BaseColorTexture         *jsonTextureRef `json:"base_color_texture"`
	EmissiveTexture          *jsonTextureRef `json:"emissive_texture"`
	MetallicRoughnessTexture *jsonTextureRef `json:"metallic_roughness_texture"`
	NormalTexture            *jsonTextureRef `json:"normal_texture"`
	OcclusionTexture         *jsonTextureRef `json:"occlusion_texture"`
}

type jsonOverride struct {
	NodeIndex     int `json:"node_index"`
	MaterialIndex int `json:"material_index"`
}

type jsonDefaultMaterial struct {
	Type            string `json:"type"`
	Seed            int64  `json:"seed"`
	MaterialIndices []int  `json:"material_indices"`
}

type jsonCamera struct {
	Type           string      `json:"type"`
	FovY           *float32    `json:"fov_y"` // degrees
	Distance       *float32    `json:"distance"`
	Rotation       *[3]float32 `json:"rotation"` // radians
	Target         *[3]float32 `json:"target"`
	Position       *[3]float32 `json:"position"`
	LensRadius     *float32    `json:"lens_radius"`
	ObjectDistance *float32    `json:"object_distance"`
}

type jsonKnot struct {
	Position float32    `json:"position"`
	Color    [4]float32 `json:"color"` // 0-255
}

type jsonGradient struct {
	Method string     `json:"method"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Depth  int        `json:"depth"`
	Knots  []jsonKnot `json:"knots"`
}

type jsonEnvLight struct {
	Type       string        `json:"type"`
	Texture    string        `json:"texture"`
	Procedural *jsonGradient `json:"procedural_parameters"`
	Color      *[3]float32   `json:"color"`
	Intensity  *float32      `json:"intensity"`
	Phi        *float32      `json:"phi"`
	Visible    *bool         `json:"visible_texture"`
}

type jsonInfiniteLight struct {
	Theta     *float32    `json:"theta"`
	Phi       *float32    `json:"phi"`
	Color     *[3]float32 `json:"color"`
	Intensity *float32    `json:"intensity"`
}

type jsonScene struct {
	Objects           []jsonObject         `json:"objects"`
	Meshes            []jsonMesh           `json:"meshes"`
	Materials         []jsonMaterial       `json:"materials"`
	MaterialOverrides []jsonOverride       `json:"material_overrides"`
	DefaultMaterial   *jsonDefaultMaterial `json:"default_material"`
	Camera            *jsonCamera          `json:"camera"`
	EnvironmentLight  *jsonEnvLight        `json:"environment_light"`
	InfiniteLight     *jsonInfiniteLight   `json:"infinite_light"`
	Textures3D        []jsonGradient       `json:"3d_textures"`
}

// LoadJSON reads a scene description and appends its contents to s. Paths
// inside the file are relative to it. On error s may be partially populated.
func LoadJSON(s *Scene, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("scene: read %s: %w", path, err)
	}
	var doc jsonScene
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("scene: parse %s: %w", path, err)
	}
	dir := filepath.Dir(path)

	nodeOffset := len(s.Nodes)
	meshOffset := len(s.Meshes)
	materialOffset := len(s.Materials)

	for i, obj := range doc.Objects {
		node, err := obj.toNode(meshOffset, materialOffset, nodeOffset)
		if err != nil {
			return fmt.Errorf("scene: object %d: %w", i, err)
		}
		s.Nodes = append(s.Nodes, node)
	}

	for i, jm := range doc.Meshes {
		mesh, err := loadJSONMesh(dir, jm)
		if err != nil {
			return fmt.Errorf("scene: mesh %d: %w", i, err)
		}
		if jm.MaterialIndex != nil {
			mesh.MaterialIndex = materialOffset + *jm.MaterialIndex
		}
		s.Meshes = append(s.Meshes, mesh)
	}

	for _, jm := range doc.Materials {
		s.Materials = append(s.Materials, jm.toMaterial())
	}

	for _, o := range doc.MaterialOverrides {
		ni := nodeOffset + o.NodeIndex
		if ni < 0 || ni >= len(s.Nodes) {
			return fmt.Errorf("scene: material override for missing node %d", o.NodeIndex)
		}
		s.Nodes[ni].OverrideMaterialIndex = materialOffset + o.MaterialIndex
	}

	if dm := doc.DefaultMaterial; dm != nil && dm.Type == "random" {
		candidates := make([]int, len(dm.MaterialIndices))
		for i, m := range dm.MaterialIndices {
			candidates[i] = materialOffset + m
		}
		rng := rand.New(rand.NewSource(dm.Seed))
		for i := meshOffset; i < len(s.Meshes); i++ {
			if s.Meshes[i].MaterialIndex == -1 {
				s.Meshes[i].MaterialIndex = core.PickRandom(rng, candidates)
			}
		}
	}

	if doc.Camera != nil {
		s.Camera = doc.Camera.toCamera(s.Camera.Aspect)
	}
	if doc.EnvironmentLight != nil {
		if err := doc.EnvironmentLight.apply(dir, &s.EnvLight); err != nil {
			return fmt.Errorf("scene: environment light: %w", err)
		}
	}
	if l := doc.InfiniteLight; l != nil {
		setF32(&s.InfiniteLight.Theta, l.Theta)
		setF32(&s.InfiniteLight.Phi, l.Phi)
		setVec3(&s.InfiniteLight.Color, l.Color)
		setF32(&s.InfiniteLight.Intensity, l.Intensity)
	}

	for i, jt := range doc.Textures3D {
		t, err := jt.generate(true)
		if err != nil {
			return fmt.Errorf("scene: 3d texture %d: %w", i, err)
		}
		t.Name = fmt.Sprintf("texture3d[%d]", len(s.Textures3D))
		s.Textures3D = append(s.Textures3D, t)
	}

	if err := validate(s); err != nil {
		return err
	}
	core.LinkChildren(s.Nodes)
	return nil
}

func (o jsonObject) toNode(meshOffset, materialOffset, nodeOffset int) (core.Node, error) {
	node := core.NewNode()
	node.Name = o.Name
	if o.MeshIndex != nil {
		node.MeshIndex = meshOffset + *o.MeshIndex
	}
	if o.MaterialIndex != nil {
		node.OverrideMaterialIndex = materialOffset + *o.MaterialIndex
	}
	if o.Parent != nil {
		node.Parent = nodeOffset + *o.Parent
	}
	applyTRS(&node.Transform, o.Translation, o.Rotation, o.Scale)
	for i, jk := range o.KeyFrames {
		kf := core.KeyFrame{Time: jk.Time, Transform: core.IdentityTransform()}
		applyTRS(&kf.Transform, jk.Translation, jk.Rotation, jk.Scale)
		if i > 0 && kf.Time < node.KeyFrames[i-1].Time {
			return node, fmt.Errorf("key frame %d time %v precedes %v", i, kf.Time, node.KeyFrames[i-1].Time)
		}
		node.KeyFrames = append(node.KeyFrames, kf)
	}
	return node, nil
}

func applyTRS(t *core.Transform, translation, rotationDeg, scale *[3]float32) {
	if translation != nil {
		t.Translation = mgl32.Vec3(*translation)
	}
	if rotationDeg != nil {
		r := *rotationDeg
		t.Rotation = core.EulerToQuat(mgl32.Vec3{
			mgl32.DegToRad(r[0]), mgl32.DegToRad(r[1]), mgl32.DegToRad(r[2]),
		})
	}
	if scale != nil {
		t.Scale = mgl32.Vec3(*scale)
	}
}

func loadJSONMesh(dir string, jm jsonMesh) (core.Mesh, error) {
	paths := jm.KeyFrames
	if jm.OBJ != "" {
		paths = append([]string{jm.OBJ}, paths...)
	}
	if len(paths) == 0 {
		return core.Mesh{}, fmt.Errorf("%w: obj", ErrMissingAttribute)
	}
	var frames []core.KeyFrameMesh
	for _, p := range paths {
		m, err := LoadOBJ(filepath.Join(dir, p))
		if err != nil {
			return core.Mesh{}, err
		}
		frames = append(frames, m.KeyFrames...)
	}
	mesh := core.NewMesh(frames...)
	mesh.Name = paths[0]
	return mesh, nil
}

func (jm jsonMaterial) toMaterial() core.Material {
	m := core.DefaultMaterial()
	if jm.BaseColor != nil {
		m.BaseColorFactor = mgl32.Vec4(*jm.BaseColor)
	}
	setVec3(&m.EmissiveFactor, jm.Emissive)
	setF32(&m.MetallicFactor, jm.Metallic)
	setF32(&m.RoughnessFactor, jm.Roughness)
	setF32(&m.IOR, jm.IOR)
	setF32(&m.Dispersion, jm.Dispersion)
	setTexture(&m.BaseColorTexture, jm.BaseColorTexture)
	setTexture(&m.EmissiveTexture, jm.EmissiveTexture)
	setTexture(&m.MetallicRoughnessTexture, jm.MetallicRoughnessTexture)
	setTexture(&m.NormalTexture, jm.NormalTexture)
	setTexture(&m.OcclusionTexture, jm.OcclusionTexture)
	return m
}

func setTexture(dst *int, ref *jsonTextureRef) {
	if ref == nil {
		return
	}
	switch ref.Projection {
	case "2d":
		*dst = core.TextureRef(ref.TextureIndex, false)
	case "3d":
		*dst = core.TextureRef(ref.TextureIndex, true)
	}
}

func (jc jsonCamera) toCamera(aspect float32) core.Camera {
	c := core.DefaultCamera(aspect)
	if jc.Type == "first_person" {
		c.Kind = core.CameraFirstPerson
	}
	if jc.FovY != nil {
		c.FovY = mgl32.DegToRad(*jc.FovY)
	}
	setF32(&c.Orbital.Distance, jc.Distance)
	setVec3(&c.Rotation, jc.Rotation)
	setVec3(&c.Orbital.Target, jc.Target)
	setVec3(&c.FirstPerson.Position, jc.Position)
	setF32(&c.Lens.Radius, jc.LensRadius)
	setF32(&c.Lens.ObjectDistance, jc.ObjectDistance)
	return c
}

func (je jsonEnvLight) apply(dir string, env *core.EnvironmentLight) error {
	switch je.Type {
	case "texture":
		t, err := loadImageTexture(filepath.Join(dir, je.Texture))
		if err != nil {
			return err
		}
		env.Texture, env.TextureWidth, env.TextureHeight = t.Data, t.Width, t.Height
		env.UseTexture = true
	case "procedural":
		if je.Procedural == nil {
			return fmt.Errorf("%w: procedural_parameters", ErrMissingAttribute)
		}
		if je.Procedural.Method != "gradient_horizontal" {
			return fmt.Errorf("%w: procedural method %q", ErrUnsupportedFormat, je.Procedural.Method)
		}
		g := *je.Procedural
		g.Method, g.Depth = "gradient_x", 1
		t, err := g.generate(false)
		if err != nil {
			return err
		}
		env.Texture, env.TextureWidth, env.TextureHeight = t.Data, t.Width, t.Height
		env.UseTexture = true
	case "solid", "":
		env.UseTexture = false
	default:
		return fmt.Errorf("%w: environment light type %q", ErrUnsupportedFormat, je.Type)
	}
	setVec3(&env.Color, je.Color)
	setF32(&env.Intensity, je.Intensity)
	setF32(&env.Phi, je.Phi)
	if je.Visible != nil {
		env.Visible = *je.Visible
	}
	return nil
}

func (jg jsonGradient) generate(volume bool) (Texture, error) {
	if jg.Width <= 0 || jg.Height <= 0 {
		return Texture{}, fmt.Errorf("%w: width/height", ErrMissingAttribute)
	}
	depth := 1
	if volume && jg.Depth > 0 {
		depth = jg.Depth
	}
	knots := make([]core.Knot, len(jg.Knots))
	for i, k := range jg.Knots {
		knots[i] = core.Knot{
			Position: k.Position,
			Color:    mgl32.Vec3{k.Color[0] / 255, k.Color[1] / 255, k.Color[2] / 255},
		}
	}
	var axis core.GradientAxis
	switch jg.Method {
	case "gradient_x", "gradient_horizontal":
		axis = core.GradientX
	case "gradient_y", "gradient_vertical":
		axis = core.GradientY
	case "gradient_z":
		axis = core.GradientZ
	default:
		return Texture{}, fmt.Errorf("%w: gradient method %q", ErrUnsupportedFormat, jg.Method)
	}
	return Texture{
		Width:  jg.Width,
		Height: jg.Height,
		Depth:  depth,
		Data:   core.Gradient(axis, jg.Width, jg.Height, depth, knots),
	}, nil
}

// loadImageTexture decodes a PNG, JPEG, BMP or TIFF file into RGBA32F.
func loadImageTexture(path string) (Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Texture{}, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return Texture{}, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, path, err)
	}
	b := img.Bounds()
	t := Texture{Name: filepath.Base(path), Width: b.Dx(), Height: b.Dy(), Depth: 1}
	t.Data = make([]float32, 0, t.Width*t.Height*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			t.Data = append(t.Data,
				float32(r)/0xffff, float32(g)/0xffff, float32(bl)/0xffff, float32(a)/0xffff)
		}
	}
	return t, nil
}

func setF32(dst *float32, v *float32) {
	if v != nil {
		*dst = *v
	}
}

func setVec3(dst *mgl32.Vec3, v *[3]float32) {
	if v != nil {
		*dst = mgl32.Vec3(*v)
	}
}
