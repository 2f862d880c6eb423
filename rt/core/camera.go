package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type CameraKind int

const (
	CameraOrbital CameraKind = iota
	CameraFirstPerson
)

func (k CameraKind) String() string {
	switch k {
	case CameraOrbital:
		return "orbital"
	case CameraFirstPerson:
		return "first_person"
	default:
		return "unknown"
	}
}

type OrbitalParams struct {
	Target   mgl32.Vec3
	Distance float32
}

type FirstPersonParams struct {
	Position mgl32.Vec3
}

// SensorHeight is the fixed film height used for the thin-lens model.
const SensorHeight float32 = 1.0

// Lens holds thin-lens parameters. A zero Radius is a pinhole.
type Lens struct {
	Radius         float32
	ObjectDistance float32
}

// Camera is a tagged union: Kind selects which of Orbital or FirstPerson is
// meaningful. Rotation is XYZ euler angles in radians, Y up.
type Camera struct {
	Kind        CameraKind
	Orbital     OrbitalParams
	FirstPerson FirstPersonParams
	Rotation    mgl32.Vec3
	FovY        float32
	Aspect      float32
	Near        float32
	Far         float32
	Lens        Lens
}

func DefaultCamera(aspect float32) Camera {
	return Camera{
		Kind:    CameraOrbital,
		Orbital: OrbitalParams{Distance: 5},
		FovY:    mgl32.DegToRad(45),
		Aspect:  aspect,
		Near:    0.001,
		Far:     10000,
		Lens:    Lens{Radius: 0, ObjectDistance: 5},
	}
}

func (c Camera) orientation() mgl32.Quat {
	return EulerToQuat(c.Rotation)
}

func (c Camera) Position() mgl32.Vec3 {
	switch c.Kind {
	case CameraFirstPerson:
		return c.FirstPerson.Position
	default:
		back := c.orientation().Rotate(mgl32.Vec3{0, 0, 1})
		return c.Orbital.Target.Add(back.Mul(c.Orbital.Distance))
	}
}

func (c Camera) Forward() mgl32.Vec3 {
	return c.orientation().Rotate(mgl32.Vec3{0, 0, -1})
}

func (c Camera) Up() mgl32.Vec3 {
	return c.orientation().Rotate(mgl32.Vec3{0, 1, 0})
}

func (c Camera) View() mgl32.Mat4 {
	eye := c.Position()
	target := eye.Add(c.Forward())
	if c.Kind == CameraOrbital {
		target = c.Orbital.Target
	}
	return mgl32.LookAtV(eye, target, c.Up())
}

func (c Camera) Projection() mgl32.Mat4 {
	aspect := c.Aspect
	if aspect == 0 {
		aspect = 1
	}
	return mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
}

func (c Camera) InverseView() mgl32.Mat4       { return c.View().Inv() }
func (c Camera) InverseProjection() mgl32.Mat4 { return c.Projection().Inv() }

// ImageDistance is the lens-to-sensor distance for FovY.
func (c Camera) ImageDistance() float32 {
	return SensorHeight / (2 * float32(math.Tan(float64(c.FovY)/2)))
}
