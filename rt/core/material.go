package core

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// Texture3DOffset is added to a texture index that addresses the 3D texture
// list instead of the 2D one.
const Texture3DOffset = 1000

type Material struct {
	BaseColorTexture         int
	MetallicRoughnessTexture int
	NormalTexture            int
	OcclusionTexture         int
	EmissiveTexture          int

	BaseColorFactor mgl32.Vec4
	MetallicFactor  float32
	RoughnessFactor float32
	EmissiveFactor  mgl32.Vec3
	IOR             float32
	Dispersion      float32
}

// DefaultMaterial is an opaque white dielectric with no textures.
func DefaultMaterial() Material {
	return Material{
		BaseColorTexture:         -1,
		MetallicRoughnessTexture: -1,
		NormalTexture:            -1,
		OcclusionTexture:         -1,
		EmissiveTexture:          -1,
		BaseColorFactor:          mgl32.Vec4{1, 1, 1, 1},
		MetallicFactor:           0,
		RoughnessFactor:          0,
		IOR:                      1.5,
		Dispersion:               0,
	}
}

// TextureRef resolves a texture index for a 2D or 3D projection.
func TextureRef(index int, is3D bool) int {
	if is3D {
		return Texture3DOffset + index
	}
	return index
}

// PickRandom returns one of candidates chosen by rng, or -1 when there are none.
func PickRandom(rng *rand.Rand, candidates []int) int {
	if len(candidates) == 0 {
		return -1
	}
	i := int(rng.Float32() * float32(len(candidates)))
	if i >= len(candidates) {
		i = len(candidates) - 1
	}
	return candidates[i]
}
