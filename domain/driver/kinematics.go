package driver

import (
	"math"

	"github.com/dmweis/hamilton/pkg/config"
)

// Kinematics converts between body twists and mecanum wheel speeds.
type Kinematics struct {
	// k is half the sum of wheel base and track width.
	k      float64
	limits [4]float64
}

func NewKinematics(body config.BodyConfig) Kinematics {
	var limits [4]float64
	for i, m := range body.Motors() {
		limits[i] = m.MaxSpeed
	}
	return Kinematics{k: (body.WheelBase + body.TrackWidth) / 2, limits: limits}
}

// FromTwist mixes a twist into wheel speeds. The result is not limited;
// see Desaturate.
func (k Kinematics) FromTwist(t Twist) WheelCommand {
	turn := k.k * t.Omega
	return WheelCommand{
		LeftFront:  t.Vx - t.Vy - turn,
		RightFront: t.Vx + t.Vy + turn,
		LeftRear:   t.Vx + t.Vy - turn,
		RightRear:  t.Vx - t.Vy + turn,
	}
}

// ToTwist is the least squares inverse of FromTwist.
func (k Kinematics) ToTwist(c WheelCommand) Twist {
	t := Twist{
		Vx: (c.LeftFront + c.RightFront + c.LeftRear + c.RightRear) / 4,
		Vy: (-c.LeftFront + c.RightFront + c.LeftRear - c.RightRear) / 4,
	}
	if k.k > 0 {
		t.Omega = (-c.LeftFront + c.RightFront - c.LeftRear + c.RightRear) / (4 * k.k)
	}
	return t
}

// Desaturate scales all wheels by the same factor so that none exceeds its
// motor limit. The direction of motion is preserved.
func (k Kinematics) Desaturate(c WheelCommand) WheelCommand {
	w := c.Wheels()
	scale := 1.0
	for i, v := range w {
		if k.limits[i] <= 0 {
			continue
		}
		if over := math.Abs(v) / k.limits[i]; over > 1 && 1/over < scale {
			scale = 1 / over
		}
	}
	if scale == 1 {
		return c
	}
	for i := range w {
		w[i] *= scale
	}
	return FromWheels(w)
}
