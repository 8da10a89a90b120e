package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// VrDeviceClass is the kind of tracked VR device.
type VrDeviceClass int

const (
	ClassOther VrDeviceClass = iota
	ClassController
	ClassLeftController
	ClassRightController
	ClassTracker
	ClassHMD
	// ClassSensor is a tracking reference (base station).
	ClassSensor
)

var classNames = map[VrDeviceClass]string{
	ClassOther:           "Other",
	ClassController:      "Controller",
	ClassLeftController:  "LeftController",
	ClassRightController: "RightController",
	ClassTracker:         "Tracker",
	ClassHMD:             "HMD",
	ClassSensor:          "Sensor",
}

func (c VrDeviceClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "Other"
}

// ParseVrDeviceClass accepts the wire names ("LeftController") as well as
// the snake case config names ("left_controller").
func ParseVrDeviceClass(s string) (VrDeviceClass, error) {
	norm := strings.ToLower(strings.ReplaceAll(s, "_", ""))
	for class, name := range classNames {
		if strings.ToLower(name) == norm {
			return class, nil
		}
	}
	return ClassOther, fmt.Errorf("unknown vr device class %q", s)
}

func (c VrDeviceClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *VrDeviceClass) UnmarshalText(b []byte) error {
	class, err := ParseVrDeviceClass(string(b))
	if err != nil {
		return err
	}
	*c = class
	return nil
}

// InputsState carries controller inputs. Fusion ignores it.
type InputsState struct {
	Trigger *float64 `json:"trigger,omitempty"`
}

// VrDevice is one device in a VR tracking frame. Position is in tracking
// space meters with Y up.
type VrDevice struct {
	ID       int
	Class    VrDeviceClass
	Position r3.Vector
	Rotation quat.Number
	Tracked  bool
	Seen     bool
	Inputs   *InputsState
}

// TrackingValid reports whether the device pose can be trusted this frame.
func (d VrDevice) TrackingValid() bool {
	return d.Tracked && d.Seen
}

// vrDeviceWire is the tracking publisher's JSON layout. Rotation is
// [i, j, k, w].
type vrDeviceWire struct {
	ID       int           `json:"id"`
	Class    VrDeviceClass `json:"class"`
	Position [3]float64    `json:"position"`
	Rotation [4]float64    `json:"rotation"`
	Tracked  bool          `json:"tracked"`
	Seen     bool          `json:"seen"`
	Inputs   *InputsState  `json:"inputs,omitempty"`
}

func (d VrDevice) MarshalJSON() ([]byte, error) {
	return json.Marshal(vrDeviceWire{
		ID:       d.ID,
		Class:    d.Class,
		Position: [3]float64{d.Position.X, d.Position.Y, d.Position.Z},
		Rotation: [4]float64{d.Rotation.Imag, d.Rotation.Jmag, d.Rotation.Kmag, d.Rotation.Real},
		Tracked:  d.Tracked,
		Seen:     d.Seen,
		Inputs:   d.Inputs,
	})
}

func (d *VrDevice) UnmarshalJSON(b []byte) error {
	var w vrDeviceWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = VrDevice{
		ID:       w.ID,
		Class:    w.Class,
		Position: r3.Vector{X: w.Position[0], Y: w.Position[1], Z: w.Position[2]},
		Rotation: quat.Number{Real: w.Rotation[3], Imag: w.Rotation[0], Jmag: w.Rotation[1], Kmag: w.Rotation[2]},
		Tracked:  w.Tracked,
		Seen:     w.Seen,
		Inputs:   w.Inputs,
	}
	return nil
}

// TrackedObjects is one VR tracking frame.
type TrackedObjects struct {
	// Ts is the publisher timestamp in milliseconds.
	Ts       uint64     `json:"ts"`
	Trackers []VrDevice `json:"trackers"`
}
