package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	LogPath string `yaml:"log_path,omitempty" json:"log_path,omitempty"`
}

// ServerConfig holds the HTTP settings for the map UI and health surface.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" json:"http_port"`
}

// Transport names a bus implementation.
type Transport string

const (
	TransportZeroMQ Transport = "zeromq"
	TransportMQTT   Transport = "mqtt"
	TransportMemory Transport = "memory"
)

// BusConfig selects the message bus transport and the topics hamilton
// publishes and subscribes to.
type BusConfig struct {
	Transport          Transport        `yaml:"transport" json:"transport"`
	Prefix             string           `yaml:"prefix" json:"prefix"`
	PublishAddress     string           `yaml:"publish_address" json:"publish_address"`
	SubscribeEndpoints []string         `yaml:"subscribe_endpoints" json:"subscribe_endpoints"`
	MQTT               MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	Topics             TopicsConfig     `yaml:"topics" json:"topics"`
	Processing         ProcessingConfig `yaml:"processing" json:"processing"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker" json:"broker"`
	ClientID       string        `yaml:"client_id" json:"client_id"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// TopicsConfig names every topic relative to BusConfig.Prefix.
type TopicsConfig struct {
	Pose         string `yaml:"pose" json:"pose"`
	Odometry     string `yaml:"odometry" json:"odometry"`
	DriverHealth string `yaml:"driver_health" json:"driver_health"`
	CanvasTouch  string `yaml:"canvas_touch" json:"canvas_touch"`
	LidarScan    string `yaml:"lidar_scan" json:"lidar_scan"`
	VRDevices    string `yaml:"vr_devices" json:"vr_devices"`
	IRTrackers   string `yaml:"ir_trackers" json:"ir_trackers"`
}

// ProcessingConfig sizes the inbound message worker pools.
type ProcessingConfig struct {
	HighPriorityWorkers     int `yaml:"high_priority_workers" json:"high_priority_workers"`
	StandardPriorityWorkers int `yaml:"standard_priority_workers" json:"standard_priority_workers"`
	LowPriorityWorkers      int `yaml:"low_priority_workers" json:"low_priority_workers"`
	QueueSize               int `yaml:"queue_size" json:"queue_size"`
}

// Environment variables that override file values.
const (
	EnvLogLevel   = "HAMILTON_LOG_LEVEL"
	EnvLogPath    = "HAMILTON_LOG_PATH"
	EnvDriverType = "HAMILTON_DRIVER_TYPE"
	EnvHTTPPort   = "HAMILTON_HTTP_PORT"
	EnvTransport  = "HAMILTON_BUS_TRANSPORT"
)

// ApplyEnv overrides selected fields from the environment. lookup has the
// signature of os.LookupEnv so tests can pass a map-backed func.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogPath); ok {
		c.Logging.LogPath = v
	}
	if v, ok := lookup(EnvDriverType); ok && v != "" {
		c.Body.DriverType = DriverType(strings.ToLower(v))
	}
	if v, ok := lookup(EnvTransport); ok && v != "" {
		c.Bus.Transport = Transport(strings.ToLower(v))
	}
	if v, ok := lookup(EnvHTTPPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "server.http_port", Reason: fmt.Sprintf("%s is not a number: %q", EnvHTTPPort, v)}
		}
		c.Server.HTTPPort = port
	}
	return nil
}
