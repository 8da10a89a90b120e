package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DriverType selects the motor driver variant.
type DriverType string

const (
	DriverReal      DriverType = "real"
	DriverSimulated DriverType = "simulated"
)

// Valid reports whether d names a known driver.
func (d DriverType) Valid() bool {
	return d == DriverReal || d == DriverSimulated
}

// AppConfig is the whole hamilton configuration. It is loaded once at
// startup and treated as read-only afterwards.
type AppConfig struct {
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Body       BodyConfig       `yaml:"body" json:"body"`
	Lidar      *LidarConfig     `yaml:"lidar,omitempty" json:"lidar,omitempty"`
	Localisers LocalisersConfig `yaml:"localisers" json:"localisers"`
	Fusion     FusionConfig     `yaml:"fusion" json:"fusion"`
	Navigation NavigationConfig `yaml:"navigation" json:"navigation"`
	Map        MapConfig        `yaml:"map" json:"map"`
	Bus        BusConfig        `yaml:"bus" json:"bus"`
}

// BodyConfig describes the mecanum base.
type BodyConfig struct {
	DriverType DriverType   `yaml:"driver_type" json:"driver_type"`
	Port       string       `yaml:"port" json:"port"`
	Serial     SerialConfig `yaml:"serial" json:"serial"`
	// Multiplier is the wire value sent for a wheel running at MaxSpeed.
	Multiplier float64     `yaml:"multiplier" json:"multiplier"`
	WheelBase  float64     `yaml:"wheel_base" json:"wheel_base"`
	TrackWidth float64     `yaml:"track_width" json:"track_width"`
	LeftFront  MotorConfig `yaml:"left_front" json:"left_front"`
	RightFront MotorConfig `yaml:"right_front" json:"right_front"`
	LeftRear   MotorConfig `yaml:"left_rear" json:"left_rear"`
	RightRear  MotorConfig `yaml:"right_rear" json:"right_rear"`
}

// Motors returns the motor configs in wheel order: left front, right front,
// left rear, right rear.
func (b BodyConfig) Motors() [4]MotorConfig {
	return [4]MotorConfig{b.LeftFront, b.RightFront, b.LeftRear, b.RightRear}
}

// MotorConfig maps one wheel onto a motor controller channel.
type MotorConfig struct {
	ID       uint8   `yaml:"id" json:"id"`
	Inverted bool    `yaml:"inverted" json:"inverted"`
	MaxSpeed float64 `yaml:"max_speed" json:"max_speed"`
}

// LidarConfig is optional; a nil pointer disables the lidar feed.
type LidarConfig struct {
	Port        string        `yaml:"port" json:"port"`
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout"`
}

// LocalisersConfig holds both backends. A disabled backend is never built.
type LocalisersConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	FeedTimeout      time.Duration `yaml:"feed_timeout" json:"feed_timeout"`
	MulticastAddress string        `yaml:"multicast_address" json:"multicast_address"`
	VR               VRConfig      `yaml:"vr" json:"vr"`
	IR               IRConfig      `yaml:"ir" json:"ir"`
}

type VRConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Confidence      float64  `yaml:"confidence" json:"confidence"`
	EligibleClasses []string `yaml:"eligible_classes" json:"eligible_classes"`
	TrackerOffset   float64  `yaml:"tracker_offset" json:"tracker_offset"`
	Average         bool     `yaml:"average" json:"average"`
}

type IRConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	Camera        string  `yaml:"camera" json:"camera"`
	Confidence    float64 `yaml:"confidence" json:"confidence"`
	MinBeacons    int     `yaml:"min_beacons" json:"min_beacons"`
	ClusterRadius float64 `yaml:"cluster_radius" json:"cluster_radius"`
	MarkerOffset  float64 `yaml:"marker_offset" json:"marker_offset"`
	Area          Area    `yaml:"area" json:"area"`
}

// Area is the floor rectangle seen by the IR camera, in meters.
type Area struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

type FusionConfig struct {
	CyclePeriod         time.Duration `yaml:"cycle_period" json:"cycle_period"`
	StalenessWindow     time.Duration `yaml:"staleness_window" json:"staleness_window"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" json:"confidence_threshold"`
	GraceCycles         int           `yaml:"grace_cycles" json:"grace_cycles"`
}

type NavigationConfig struct {
	LinearGain        float64 `yaml:"linear_gain" json:"linear_gain"`
	AngularGain       float64 `yaml:"angular_gain" json:"angular_gain"`
	MaxLinearSpeed    float64 `yaml:"max_linear_speed" json:"max_linear_speed"`
	MaxAngularSpeed   float64 `yaml:"max_angular_speed" json:"max_angular_speed"`
	DeadBand          float64 `yaml:"dead_band" json:"dead_band"`
	PositionTolerance float64 `yaml:"position_tolerance" json:"position_tolerance"`
	HeadingTolerance  float64 `yaml:"heading_tolerance" json:"heading_tolerance"`
}

// Point is a floor position in meters.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// MapConfig gives the room corners the map UI canvas is drawn between.
type MapConfig struct {
	FrontLeft Point `yaml:"front_left" json:"front_left"`
	RearRight Point `yaml:"rear_right" json:"rear_right"`
}

// LoadConfig reads the YAML file at path, fills defaults, applies
// HAMILTON_* environment overrides and validates the result.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig without the file read.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
