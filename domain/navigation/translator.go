// Package navigation turns the fused pose and the active goal into wheel
// commands, and converts map UI touches into goals.
package navigation

import (
	"math"
	"sync"

	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/geometry"
	"github.com/dmweis/hamilton/pkg/log"
)

// StopReason explains a stop command.
type StopReason string

const (
	StopNone        StopReason = ""
	StopNoGoal      StopReason = "no_goal"
	StopPoseUnknown StopReason = "pose_unknown"
	StopPoseStale   StopReason = "pose_stale"
	StopArrived     StopReason = "arrived"
	StopDriverError StopReason = "driver_error"
)

// Command is the output of one translation.
type Command struct {
	Wheels driver.WheelCommand `json:"wheels"`
	Twist  driver.Twist        `json:"twist"`
	Reason StopReason          `json:"reason,omitempty"`
}

func (c Command) IsStop() bool {
	return c.Wheels.IsStop()
}

func stop(reason StopReason) Command {
	return Command{Reason: reason}
}

// Translator applies a bounded proportional law in the robot frame.
type Translator struct {
	cfg    config.NavigationConfig
	kin    driver.Kinematics
	logger log.Logger

	mu          sync.Mutex
	driverFault error
}

func NewTranslator(cfg config.NavigationConfig, kin driver.Kinematics, logger log.Logger) *Translator {
	return &Translator{cfg: cfg, kin: kin, logger: logger.WithField("component", "navigation")}
}

// ReportDriverError records a failed Apply. The next Translate returns a
// stop command.
func (t *Translator) ReportDriverError(err error) {
	t.mu.Lock()
	t.driverFault = err
	t.mu.Unlock()
}

// Translate returns the command for this cycle. Anything but a fresh pose
// stops the robot.
func (t *Translator) Translate(est fusion.Estimate, goal *Goal) Command {
	t.mu.Lock()
	fault := t.driverFault
	t.driverFault = nil
	t.mu.Unlock()
	if fault != nil {
		t.logger.Warnf("Stopping after driver error: %v", fault)
		return stop(StopDriverError)
	}

	switch est.Status {
	case fusion.StatusFresh:
	case fusion.StatusStale:
		return stop(StopPoseStale)
	default:
		return stop(StopPoseUnknown)
	}
	if goal == nil {
		return stop(StopNoGoal)
	}

	pose := est.Pose
	var headingErr float64
	if goal.Theta != nil {
		headingErr = geometry.AngleDiff(*goal.Theta, pose.Theta)
	}
	if pose.DistanceTo(goal.X, goal.Y) <= t.cfg.PositionTolerance {
		if goal.Theta == nil || math.Abs(headingErr) <= t.cfg.HeadingTolerance {
			return stop(StopArrived)
		}
	}

	lx, ly := pose.ToLocal(goal.X, goal.Y)
	twist := driver.Twist{
		Vx:    t.bound(t.cfg.LinearGain*lx, t.cfg.MaxLinearSpeed),
		Vy:    t.bound(t.cfg.LinearGain*ly, t.cfg.MaxLinearSpeed),
		Omega: t.bound(t.cfg.AngularGain*headingErr, t.cfg.MaxAngularSpeed),
	}
	if speed := math.Hypot(twist.Vx, twist.Vy); speed > t.cfg.MaxLinearSpeed {
		scale := t.cfg.MaxLinearSpeed / speed
		twist.Vx *= scale
		twist.Vy *= scale
	}

	wheels := t.kin.Desaturate(t.kin.FromTwist(twist))
	return Command{Wheels: wheels, Twist: twist}
}

// bound clamps v to ±limit and zeroes it inside the dead band.
func (t *Translator) bound(v, limit float64) float64 {
	v = math.Max(-limit, math.Min(limit, v))
	if math.Abs(v) < t.cfg.DeadBand {
		return 0
	}
	return v
}
