package driver

import (
	"context"
	"math"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/log"
)

// SimulatedDriver clamps each wheel to its motor limit and integrates the
// resulting body twist over the injected clock.
type SimulatedDriver struct {
	body   config.BodyConfig
	clock  clock.Clock
	logger log.Logger

	mu     sync.Mutex
	odom   odometry
	last   WheelCommand
	halted bool
	closed bool
}

func NewSimulatedDriver(body config.BodyConfig, clk clock.Clock, logger log.Logger) *SimulatedDriver {
	return &SimulatedDriver{
		body:   body,
		clock:  clk,
		logger: logger.WithField("driver", "simulated"),
		odom:   odometry{kin: NewKinematics(body)},
	}
}

func (d *SimulatedDriver) Type() config.DriverType { return config.DriverSimulated }

func (d *SimulatedDriver) Apply(ctx context.Context, cmd WheelCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clamped, err := d.clamp(cmd)
	if err != nil {
		return err
	}
	return d.set(clamped, false, "apply")
}

// Clamp limits every wheel to ±MaxSpeed of its motor. NaN is rejected.
func (d *SimulatedDriver) clamp(cmd WheelCommand) (WheelCommand, error) {
	motors := d.body.Motors()
	w := cmd.Wheels()
	for i, v := range w {
		limit := motors[i].MaxSpeed
		if math.IsNaN(v) {
			return Stop, &Error{Op: "apply", Motor: int(motors[i].ID), Value: v, Err: ErrCommandOutOfRange}
		}
		w[i] = math.Max(-limit, math.Min(limit, v))
	}
	return FromWheels(w), nil
}

func (d *SimulatedDriver) Stop(ctx context.Context) error {
	return d.set(Stop, true, "stop")
}

func (d *SimulatedDriver) set(cmd WheelCommand, halt bool, op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Error{Op: op, Motor: NoMotor, Err: ErrClosed}
	}
	d.odom.command(d.clock.Now(), cmd)
	d.last = cmd
	d.halted = halt
	return nil
}

func (d *SimulatedDriver) ReadState(ctx context.Context) (BodyState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.odom.advance(now)
	return BodyState{
		Twist:       d.odom.twist,
		Odometry:    d.odom.pose,
		LastCommand: d.last,
		Halted:      d.halted,
		Timestamp:   now,
	}, nil
}

func (d *SimulatedDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
