package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a translation/rotation/scale triple.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{
		Translation: mgl32.Vec3{0, 0, 0},
		Rotation:    mgl32.QuatIdent(),
		Scale:       mgl32.Vec3{1, 1, 1},
	}
}

func (t Transform) Matrix() mgl32.Mat4 {
	// M = T * R * S
	translate := mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())

	return translate.Mul4(rotate).Mul4(scale)
}

func (t Transform) InverseMatrix() mgl32.Mat4 {
	// inv(M) = inv(S) * inv(R) * inv(T)
	invScale := mgl32.Scale3D(1.0/t.Scale.X(), 1.0/t.Scale.Y(), 1.0/t.Scale.Z())
	invRotate := t.Rotation.Conjugate().Mat4()
	invTranslate := mgl32.Translate3D(-t.Translation.X(), -t.Translation.Y(), -t.Translation.Z())

	return invScale.Mul4(invRotate).Mul4(invTranslate)
}

// EulerToQuat converts XYZ euler angles in radians to a quaternion that
// applies the X rotation first, then Y, then Z.
func EulerToQuat(euler mgl32.Vec3) mgl32.Quat {
	qx := mgl32.QuatRotate(euler.X(), mgl32.Vec3{1, 0, 0})
	qy := mgl32.QuatRotate(euler.Y(), mgl32.Vec3{0, 1, 0})
	qz := mgl32.QuatRotate(euler.Z(), mgl32.Vec3{0, 0, 1})
	return qz.Mul(qy).Mul(qx).Normalize()
}

// NormalMatrix returns the inverse-transpose of m's upper 3x3, embedded in a 4x4.
func NormalMatrix(m mgl32.Mat4) mgl32.Mat4 {
	m3 := m.Mat3()
	if m3.Det() == 0 {
		return mgl32.Ident4()
	}
	return m3.Inv().Transpose().Mat4()
}
