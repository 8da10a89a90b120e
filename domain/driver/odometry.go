package driver

import (
	"time"

	"github.com/dmweis/hamilton/pkg/geometry"
)

// odometry dead-reckons the body pose from the commands a driver accepted.
type odometry struct {
	kin     Kinematics
	pose    geometry.Pose2d
	twist   Twist
	updated time.Time
}

// advance integrates the current twist up to now.
func (o *odometry) advance(now time.Time) {
	if !o.updated.IsZero() {
		if dt := now.Sub(o.updated).Seconds(); dt > 0 {
			o.pose = o.pose.Integrate(o.twist.Vx, o.twist.Vy, o.twist.Omega, dt)
		}
	}
	o.updated = now
}

// command switches to the twist produced by cmd from now on.
func (o *odometry) command(now time.Time, cmd WheelCommand) {
	o.advance(now)
	o.twist = o.kin.ToTwist(cmd)
}
