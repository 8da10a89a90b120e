package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Rotate applies the rotation q to v. q does not need to be unit length.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	n := quat.Abs(q)
	if n == 0 {
		return v
	}
	q = quat.Scale(1/n, q)
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// ProjectToFloor turns a tracking-space pose (Y up) into a floor pose. The
// tracking Z axis becomes robot X and tracking X becomes robot Y. The
// heading comes from the device up axis, which the mount tilts forward, and
// the position is moved offset meters along that heading to the robot
// center.
func ProjectToFloor(position r3.Vector, rotation quat.Number, offset float64) Pose2d {
	up := Rotate(rotation, r3.Vector{Y: 1})
	yaw := -math.Atan2(up.X, -up.Z)
	base := Pose2d{X: position.Z, Y: position.X, Theta: NormalizeAngle(yaw)}
	return base.Translate(offset)
}
