// Package driver moves the mecanum base. Two variants exist: Real writes
// frames to the DC motor controller over serial, Simulated integrates the
// commands to produce synthetic odometry.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/geometry"
)

var (
	ErrCommandOutOfRange = errors.New("command out of range")
	ErrComm              = errors.New("communication with motor driver failed")
	ErrClosed            = errors.New("driver closed")
)

// NoMotor marks an Error that is not tied to a single wheel.
const NoMotor = -1

// Error is a failed driver operation.
type Error struct {
	Op    string
	Motor int
	Value float64
	Err   error
}

func (e *Error) Error() string {
	if e.Motor == NoMotor {
		return fmt.Sprintf("driver %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("driver %s: motor %d value %.3f: %v", e.Op, e.Motor, e.Value, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WheelCommand holds target wheel surface speeds in m/s.
type WheelCommand struct {
	LeftFront  float64 `json:"left_front"`
	RightFront float64 `json:"right_front"`
	LeftRear   float64 `json:"left_rear"`
	RightRear  float64 `json:"right_rear"`
}

// Stop is the all-zero command.
var Stop = WheelCommand{}

// Wheels returns the speeds in wheel order, matching config.BodyConfig.Motors.
func (c WheelCommand) Wheels() [4]float64 {
	return [4]float64{c.LeftFront, c.RightFront, c.LeftRear, c.RightRear}
}

func FromWheels(w [4]float64) WheelCommand {
	return WheelCommand{LeftFront: w[0], RightFront: w[1], LeftRear: w[2], RightRear: w[3]}
}

func (c WheelCommand) IsStop() bool {
	return c == Stop
}

// Twist is a body velocity: forward, left and counter-clockwise.
type Twist struct {
	Vx    float64 `json:"vx"`
	Vy    float64 `json:"vy"`
	Omega float64 `json:"omega"`
}

// BodyState is what a driver reports about the base.
type BodyState struct {
	Twist       Twist           `json:"twist"`
	Odometry    geometry.Pose2d `json:"odometry"`
	LastCommand WheelCommand    `json:"last_command"`
	Halted      bool            `json:"halted"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Driver is implemented by RealDriver and SimulatedDriver.
type Driver interface {
	Type() config.DriverType
	// Apply sends one wheel command. Failures are *Error values.
	Apply(ctx context.Context, cmd WheelCommand) error
	ReadState(ctx context.Context) (BodyState, error)
	// Stop commands zero speed on every wheel.
	Stop(ctx context.Context) error
	Close() error
}
