package driver

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/log"
)

// Port is the byte sink the real driver writes frames to. serial.Port
// satisfies it.
type Port interface {
	io.Writer
	io.Closer
}

// SerialMode converts the configured link options for go.bug.st/serial.
func SerialMode(s config.SerialConfig) (*serial.Mode, error) {
	opts, err := s.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// OpenSerialPort opens the motor controller port.
func OpenSerialPort(path string, s config.SerialConfig) (serial.Port, error) {
	mode, err := SerialMode(s)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed opening serial port %s: %w", path, err)
	}
	return port, nil
}

// RealDriver talks to the DC motor controller. Commands beyond a motor's
// max speed are rejected, never clamped.
type RealDriver struct {
	body   config.BodyConfig
	port   Port
	clock  clock.Clock
	logger log.Logger

	mu     sync.Mutex
	odom   odometry
	last   WheelCommand
	halted bool
	closed bool
}

func NewRealDriver(body config.BodyConfig, port Port, clk clock.Clock, logger log.Logger) *RealDriver {
	return &RealDriver{
		body:   body,
		port:   port,
		clock:  clk,
		logger: logger.WithField("driver", "real"),
		odom:   odometry{kin: NewKinematics(body)},
	}
}

func (d *RealDriver) Type() config.DriverType { return config.DriverReal }

func (d *RealDriver) Apply(ctx context.Context, cmd WheelCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.validate(cmd); err != nil {
		return err
	}
	return d.send(cmd, "apply")
}

func (d *RealDriver) Stop(ctx context.Context) error {
	err := d.send(Stop, "stop")
	d.mu.Lock()
	d.halted = true
	d.mu.Unlock()
	return err
}

func (d *RealDriver) validate(cmd WheelCommand) error {
	motors := d.body.Motors()
	for i, v := range cmd.Wheels() {
		if math.IsNaN(v) || math.Abs(v) > motors[i].MaxSpeed {
			return &Error{Op: "apply", Motor: int(motors[i].ID), Value: v, Err: ErrCommandOutOfRange}
		}
	}
	return nil
}

func (d *RealDriver) send(cmd WheelCommand, op string) error {
	frame := EncodeFrame(d.body, cmd)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Error{Op: op, Motor: NoMotor, Err: ErrClosed}
	}
	if _, err := d.port.Write(frame); err != nil {
		return &Error{Op: op, Motor: NoMotor, Err: fmt.Errorf("%w: %v", ErrComm, err)}
	}
	d.odom.command(d.clock.Now(), cmd)
	d.last = cmd
	d.halted = false
	return nil
}

func (d *RealDriver) ReadState(ctx context.Context) (BodyState, error) {
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

func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.port.Close()
}

// EncodeFrame builds the motor controller frame for cmd: a direction byte
// (1 forward) and a magnitude byte per motor, placed by motor id, COBS
// encoded and terminated by a zero byte.
func EncodeFrame(body config.BodyConfig, cmd WheelCommand) []byte {
	var data [4]float64
	wheels := cmd.Wheels()
	for i, m := range body.Motors() {
		v := wheels[i] / m.MaxSpeed * body.Multiplier
		v = math.Max(-body.Multiplier, math.Min(body.Multiplier, v))
		if m.Inverted {
			v = -v
		}
		data[m.ID] = v
	}
	return encodeWire(data)
}

func encodeWire(data [4]float64) []byte {
	raw := make([]byte, 0, 8)
	for _, v := range data {
		var dir byte
		if v > 0 {
			dir = 1
		}
		raw = append(raw, dir, byte(math.Abs(v)))
	}
	return append(cobsEncode(raw), 0)
}
