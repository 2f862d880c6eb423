package scene

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gekko3d/coalumine/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// LoadOBJ reads a Wavefront OBJ file into a single-key-frame mesh.
func LoadOBJ(path string) (core.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Mesh{}, fmt.Errorf("scene: open obj: %w", err)
	}
	defer f.Close()

	kf, err := ParseOBJ(f)
	if err != nil {
		return core.Mesh{}, fmt.Errorf("scene: %s: %w", path, err)
	}
	mesh := core.NewMesh(kf)
	mesh.Name = filepath.Base(path)
	return mesh, nil
}

type objCorner struct {
	v, vt, vn int // 0-based, -1 when absent
}

// ParseOBJ supports v, vn, vt and f records. Polygons are fan-triangulated,
// negative indices count back from the end, and corners that repeat the
// same position/normal/texcoord share one vertex. Faces without normals get
// their flat face normal.
func ParseOBJ(r io.Reader) (core.KeyFrameMesh, error) {
	var (
		positions []mgl32.Vec3
		normals   []mgl32.Vec3
		texcoords []mgl32.Vec2
		out       core.KeyFrameMesh
	)
	unique := map[core.Vertex]uint32{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "v":
			v, err := parseFloats(parts[1:], 3)
			if err != nil {
				return out, fmt.Errorf("line %d: %w", lineNo, err)
			}
			positions = append(positions, mgl32.Vec3{v[0], v[1], v[2]})
		case "vn":
			v, err := parseFloats(parts[1:], 3)
			if err != nil {
				return out, fmt.Errorf("line %d: %w", lineNo, err)
			}
			normals = append(normals, mgl32.Vec3{v[0], v[1], v[2]}.Normalize())
		case "vt":
			v, err := parseFloats(parts[1:], 2)
			if err != nil {
				return out, fmt.Errorf("line %d: %w", lineNo, err)
			}
			texcoords = append(texcoords, mgl32.Vec2{v[0], 1 - v[1]})
		case "f":
			if len(parts) < 4 {
				return out, fmt.Errorf("line %d: %w: face needs 3 corners, got %d",
					lineNo, ErrMissingAttribute, len(parts)-1)
			}
			corners := make([]objCorner, 0, len(parts)-1)
			for _, p := range parts[1:] {
				c, err := parseCorner(p, len(positions), len(texcoords), len(normals))
				if err != nil {
					return out, fmt.Errorf("line %d: %w", lineNo, err)
				}
				corners = append(corners, c)
			}
			for i := 1; i+1 < len(corners); i++ {
				tri := [3]objCorner{corners[0], corners[i], corners[i+1]}
				faceNormal := positions[tri[1].v].Sub(positions[tri[0].v]).
					Cross(positions[tri[2].v].Sub(positions[tri[0].v]))
				if faceNormal.Len() > 0 {
					faceNormal = faceNormal.Normalize()
				}
				for _, c := range tri {
					vtx := core.Vertex{Position: positions[c.v], Normal: faceNormal}
					if c.vn >= 0 {
						vtx.Normal = normals[c.vn]
					}
					if c.vt >= 0 {
						vtx.TexCoord = texcoords[c.vt]
					}
					idx, ok := unique[vtx]
					if !ok {
						idx = uint32(len(out.Vertices))
						out.Vertices = append(out.Vertices, vtx)
						unique[vtx] = idx
					}
					out.Indices = append(out.Indices, idx)
				}
			}
		default:
			// o, g, s, usemtl, mtllib: grouping and materials are not imported
		}
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}
	if len(out.Indices) == 0 {
		return out, fmt.Errorf("%w: no faces", ErrMissingAttribute)
	}
	return out, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("%w: want %d components, got %d", ErrMissingAttribute, n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseCorner reads v, v/vt, v//vn or v/vt/vn.
func parseCorner(s string, nv, nvt, nvn int) (objCorner, error) {
	c := objCorner{v: -1, vt: -1, vn: -1}
	fields := strings.Split(s, "/")
	if len(fields) > 3 {
		return c, fmt.Errorf("%w: face corner %q", ErrUnsupportedFormat, s)
	}
	var err error
	if c.v, err = resolveIndex(fields[0], nv); err != nil {
		return c, err
	}
	if c.v < 0 {
		return c, fmt.Errorf("%w: face corner %q has no position", ErrMissingAttribute, s)
	}
	if len(fields) > 1 {
		if c.vt, err = resolveIndex(fields[1], nvt); err != nil {
			return c, err
		}
	}
	if len(fields) > 2 {
		if c.vn, err = resolveIndex(fields[2], nvn); err != nil {
			return c, err
		}
	}
	return c, nil
}

func resolveIndex(s string, count int) (int, error) {
	if s == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return -1, fmt.Errorf("bad index %q: %w", s, err)
	}
	if i < 0 {
		i = count + i
	} else {
		i--
	}
	if i < 0 || i >= count {
		return -1, fmt.Errorf("index %s out of range (%d defined)", s, count)
	}
	return i, nil
}
