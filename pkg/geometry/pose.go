// Package geometry holds the planar pose type and the angle helpers shared by
// localisation, fusion and navigation.
package geometry

import (
	"fmt"
	"math"
)

// Pose2d is a position on the floor plane in meters with a heading in
// radians, normalised to (-π, π].
type Pose2d struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose2d builds a pose with a normalised heading.
func NewPose2d(x, y, theta float64) Pose2d {
	return Pose2d{X: x, Y: y, Theta: NormalizeAngle(theta)}
}

func (p Pose2d) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.1f°)", p.X, p.Y, p.Theta*180/math.Pi)
}

// DistanceTo is the euclidean distance between the two positions.
func (p Pose2d) DistanceTo(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// ToLocal expresses the world point (x, y) in the frame of p: +X ahead of
// the robot, +Y to its left.
func (p Pose2d) ToLocal(x, y float64) (float64, float64) {
	dx, dy := x-p.X, y-p.Y
	sin, cos := math.Sincos(p.Theta)
	return cos*dx + sin*dy, -sin*dx + cos*dy
}

// Translate moves the pose by distance along its own heading.
func (p Pose2d) Translate(distance float64) Pose2d {
	sin, cos := math.Sincos(p.Theta)
	return Pose2d{X: p.X + distance*cos, Y: p.Y + distance*sin, Theta: p.Theta}
}

// Integrate advances the pose by a body-frame twist held for dt seconds.
func (p Pose2d) Integrate(vx, vy, omega, dt float64) Pose2d {
	// Midpoint heading keeps arcs from drifting outward.
	mid := p.Theta + omega*dt/2
	sin, cos := math.Sincos(mid)
	return Pose2d{
		X:     p.X + (cos*vx-sin*vy)*dt,
		Y:     p.Y + (sin*vx+cos*vy)*dt,
		Theta: NormalizeAngle(p.Theta + omega*dt),
	}
}
