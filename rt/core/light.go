package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// InfiniteLight is a directional light given in spherical coordinates
// around the Y axis.
type InfiniteLight struct {
	Theta     float32
	Phi       float32
	Color     mgl32.Vec3
	Intensity float32
}

func (l InfiniteLight) Direction() mgl32.Vec3 {
	sinTheta := float32(math.Sin(float64(l.Theta)))
	cosTheta := float32(math.Cos(float64(l.Theta)))
	sinPhi := float32(math.Sin(float64(l.Phi)))
	cosPhi := float32(math.Cos(float64(l.Phi)))
	return mgl32.Vec3{sinTheta * sinPhi, cosTheta, sinTheta * cosPhi}
}

type EnvironmentLight struct {
	Color      mgl32.Vec3
	Intensity  float32
	Phi        float32
	UseTexture bool
	Visible    bool
	// Texture is RGBA32F data; nil when only Color is used.
	Texture       []float32
	TextureWidth  int
	TextureHeight int
}

func DefaultEnvironmentLight() EnvironmentLight {
	return EnvironmentLight{
		Intensity: 1,
		Visible:   true,
	}
}
