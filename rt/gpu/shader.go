package gpu

import (
	"fmt"
	"os"
	"path/filepath"
)

type ShaderStage int

const (
	ShaderCompute ShaderStage = iota
	ShaderRayGen
	ShaderMiss
	ShaderClosestHit
)

// ShaderSource is an opaque program: WGSL text or a SPIR-V blob.
type ShaderSource struct {
	Name  string
	Stage ShaderStage
	Entry string
	Code  []byte
}

// ShaderLoader resolves program names against a directory.
type ShaderLoader interface {
	Load(name string, stage ShaderStage) (ShaderSource, error)
}

type DirShaderLoader struct {
	Dir string
}

func (l DirShaderLoader) Load(name string, stage ShaderStage) (ShaderSource, error) {
	path := filepath.Join(l.Dir, name)
	code, err := os.ReadFile(path)
	if err != nil {
		return ShaderSource{}, fmt.Errorf("load shader %s: %w", name, err)
	}
	return ShaderSource{Name: name, Stage: stage, Entry: "main", Code: code}, nil
}

// StubShaderLoader returns empty programs; backends that never execute
// shaders accept them.
type StubShaderLoader struct{}

func (StubShaderLoader) Load(name string, stage ShaderStage) (ShaderSource, error) {
	return ShaderSource{Name: name, Stage: stage, Entry: "main"}, nil
}
