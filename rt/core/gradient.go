package core

import "github.com/go-gl/mathgl/mgl32"

// Knot is a color stop of a ramp, position in [0,1].
type Knot struct {
	Position float32
	Color    mgl32.Vec3
}

// ColorRamp linearly interpolates knots, which must be sorted by position.
func ColorRamp(value float32, knots []Knot) mgl32.Vec3 {
	if len(knots) == 0 {
		return mgl32.Vec3{}
	}
	if len(knots) == 1 || value <= knots[0].Position {
		return knots[0].Color
	}
	last := knots[len(knots)-1]
	if value >= last.Position {
		return last.Color
	}
	for i := 1; i < len(knots); i++ {
		prev, curr := knots[i-1], knots[i]
		if value < curr.Position {
			t := (value - prev.Position) / (curr.Position - prev.Position)
			return prev.Color.Mul(1 - t).Add(curr.Color.Mul(t))
		}
	}
	return last.Color
}

type GradientAxis int

const (
	GradientX GradientAxis = iota
	GradientY
	GradientZ
)

// Gradient fills a width*height*depth RGBA32F volume, laid out z-major then
// row-major, with a ramp along axis. Alpha is 0.
func Gradient(axis GradientAxis, width, height, depth int, knots []Knot) []float32 {
	data := make([]float32, width*height*depth*4)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var t float32
				switch axis {
				case GradientX:
					t = float32(x) / float32(width)
				case GradientY:
					t = float32(y) / float32(height)
				case GradientZ:
					t = float32(z) / float32(depth)
				}
				c := ColorRamp(t, knots)
				i := (z*width*height + y*width + x) * 4
				data[i], data[i+1], data[i+2] = c.X(), c.Y(), c.Z()
			}
		}
	}
	return data
}
