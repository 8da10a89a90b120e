package bus

import (
	"strings"

	"github.com/dmweis/hamilton/pkg/config"
)

// Topics resolves configured topic names against the bus prefix.
type Topics struct {
	prefix string
	cfg    config.TopicsConfig
}

func NewTopics(cfg config.BusConfig) Topics {
	return Topics{prefix: strings.Trim(cfg.Prefix, "/"), cfg: cfg.Topics}
}

// Name joins prefix and name.
func (t Topics) Name(name string) string {
	name = strings.Trim(name, "/")
	if t.prefix == "" {
		return name
	}
	return t.prefix + "/" + name
}

func (t Topics) Pose() string         { return t.Name(t.cfg.Pose) }
func (t Topics) Odometry() string     { return t.Name(t.cfg.Odometry) }
func (t Topics) DriverHealth() string { return t.Name(t.cfg.DriverHealth) }
func (t Topics) CanvasTouch() string  { return t.Name(t.cfg.CanvasTouch) }
func (t Topics) LidarScan() string    { return t.Name(t.cfg.LidarScan) }
func (t Topics) VRDevices() string    { return t.Name(t.cfg.VRDevices) }
func (t Topics) IRTrackers() string   { return t.Name(t.cfg.IRTrackers) }
