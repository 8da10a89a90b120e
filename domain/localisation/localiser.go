// Package localisation produces candidate robot poses from the VR tracking
// system and the IR beacon camera.
package localisation

import (
	"context"
	"errors"
	"time"

	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/geometry"
)

var (
	// ErrSensorUnavailable means the backend could not be read: its feed is
	// silent or stale, or the poll failed.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrNoData means the backend is healthy but nothing usable is tracked.
	ErrNoData = errors.New("no tracked device")
)

// Reading is one candidate pose.
type Reading struct {
	Source     devices.Source  `json:"source"`
	Pose       geometry.Pose2d `json:"pose"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Localiser is a pose backend. Poll may block on its data source; callers
// run it from a Poller so the control cycle never waits on it.
type Localiser interface {
	Name() string
	Poll(ctx context.Context) (Reading, error)
	// Devices lists every device identity seen so far, sorted.
	Devices() []devices.Source
}
