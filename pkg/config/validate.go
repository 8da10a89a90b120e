package config

import (
	"fmt"
	"strings"
)

// Validate checks the fields hamilton cannot run without. Call it after
// ApplyDefaults.
func (c *AppConfig) Validate() error {
	if !c.Body.DriverType.Valid() {
		return &Error{Field: "body.driver_type", Reason: fmt.Sprintf("unknown driver type %q", c.Body.DriverType)}
	}
	if c.Body.DriverType == DriverReal && c.Body.Port == "" {
		return &Error{Field: "body.port", Reason: "required for the real driver"}
	}
	if _, err := c.Body.Serial.Normalize(); err != nil {
		return &Error{Field: "body.serial", Reason: err.Error()}
	}
	if c.Body.Multiplier <= 0 || c.Body.Multiplier > 255 {
		return &Error{Field: "body.multiplier", Reason: "must be in (0, 255]"}
	}
	if c.Body.WheelBase <= 0 || c.Body.TrackWidth <= 0 {
		return &Error{Field: "body.wheel_base", Reason: "wheel base and track width must be positive"}
	}

	seen := make(map[uint8]string, 4)
	names := [4]string{"left_front", "right_front", "left_rear", "right_rear"}
	for i, m := range c.Body.Motors() {
		field := "body." + names[i]
		if m.ID > 3 {
			return &Error{Field: field + ".id", Reason: fmt.Sprintf("motor id %d out of range 0..3", m.ID)}
		}
		if other, dup := seen[m.ID]; dup {
			return &Error{Field: field + ".id", Reason: fmt.Sprintf("motor id %d already used by %s", m.ID, other)}
		}
		seen[m.ID] = names[i]
		if m.MaxSpeed <= 0 {
			return &Error{Field: field + ".max_speed", Reason: "must be positive"}
		}
	}

	l := c.Localisers
	if !l.VR.Enabled && !l.IR.Enabled {
		return &Error{Field: "localisers", Reason: "at least one localiser must be enabled"}
	}
	if l.PollInterval <= 0 {
		return &Error{Field: "localisers.poll_interval", Reason: "must be positive"}
	}
	if l.VR.Enabled {
		for _, class := range l.VR.EligibleClasses {
			if !knownVRClass(class) {
				return &Error{Field: "localisers.vr.eligible_classes", Reason: fmt.Sprintf("unknown device class %q", class)}
			}
		}
	}
	if l.IR.Enabled {
		if l.IR.MinBeacons < 3 {
			return &Error{Field: "localisers.ir.min_beacons", Reason: "at least 3 beacons are needed to triangulate"}
		}
		a := l.IR.Area
		if a.MaxX <= a.MinX || a.MaxY <= a.MinY {
			return &Error{Field: "localisers.ir.area", Reason: "max must be greater than min on both axes"}
		}
	}

	f := c.Fusion
	if f.CyclePeriod <= 0 {
		return &Error{Field: "fusion.cycle_period", Reason: "must be positive"}
	}
	if f.StalenessWindow <= 0 {
		return &Error{Field: "fusion.staleness_window", Reason: "must be positive"}
	}
	if f.ConfidenceThreshold < 0 || f.ConfidenceThreshold > 1 {
		return &Error{Field: "fusion.confidence_threshold", Reason: "must be in [0, 1]"}
	}
	if f.GraceCycles < 0 {
		return &Error{Field: "fusion.grace_cycles", Reason: "must not be negative"}
	}

	n := c.Navigation
	if n.MaxLinearSpeed <= 0 || n.MaxAngularSpeed <= 0 {
		return &Error{Field: "navigation", Reason: "speed limits must be positive"}
	}
	if n.PositionTolerance <= 0 {
		return &Error{Field: "navigation.position_tolerance", Reason: "must be positive"}
	}

	if c.Map.FrontLeft == c.Map.RearRight {
		return &Error{Field: "map", Reason: "front_left and rear_right must differ"}
	}

	switch c.Bus.Transport {
	case TransportZeroMQ:
		if c.Bus.PublishAddress == "" {
			return &Error{Field: "bus.publish_address", Reason: "required for zeromq"}
		}
	case TransportMQTT:
		if c.Bus.MQTT.Broker == "" {
			return &Error{Field: "bus.mqtt.broker", Reason: "required for mqtt"}
		}
	case TransportMemory:
	default:
		return &Error{Field: "bus.transport", Reason: fmt.Sprintf("unknown transport %q", c.Bus.Transport)}
	}

	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return &Error{Field: "server.http_port", Reason: "out of range"}
	}
	return nil
}

func knownVRClass(class string) bool {
	switch strings.ToLower(class) {
	case "controller", "left_controller", "right_controller", "tracker", "hmd", "sensor", "other":
		return true
	}
	return false
}
