// Package lidar keeps the most recent scan published by the lidar process.
package lidar

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrNoScan    = errors.New("no lidar scan received")
	ErrScanStale = errors.New("lidar scan timed out")
)

// Point is one range sample. Angle is in radians, counter-clockwise from
// the robot's forward axis; Distance in metres.
type Point struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
	Quality  uint8   `json:"quality"`
}

type Scan struct {
	Timestamp time.Time `json:"timestamp"`
	Points    []Point   `json:"points"`
}

// Closest returns the nearest valid sample within the angular window
// [from, to]. ok is false when the window holds no sample.
func (s Scan) Closest(from, to float64) (Point, bool) {
	best := Point{Distance: math.Inf(1)}
	found := false
	for _, p := range s.Points {
		if p.Distance <= 0 || p.Angle < from || p.Angle > to {
			continue
		}
		if p.Distance < best.Distance {
			best = p
			found = true
		}
	}
	return best, found
}

// Tracker holds the latest scan. A scan older than the timeout is not
// returned.
type Tracker struct {
	clock   clock.Clock
	timeout time.Duration

	mu       sync.RWMutex
	scan     Scan
	received time.Time
	has      bool
}

func NewTracker(timeout time.Duration, clk clock.Clock) *Tracker {
	return &Tracker{clock: clk, timeout: timeout}
}

// Update replaces the held scan unless the held one was taken later. A
// zero Timestamp is stamped with the arrival time.
func (t *Tracker) Update(scan Scan) bool {
	now := t.clock.Now()
	if scan.Timestamp.IsZero() {
		scan.Timestamp = now
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.has && scan.Timestamp.Before(t.scan.Timestamp) {
		return false
	}
	t.scan = scan
	t.received = now
	t.has = true
	return true
}

func (t *Tracker) Latest() (Scan, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.has {
		return Scan{}, ErrNoScan
	}
	if age := t.clock.Since(t.received); t.timeout > 0 && age > t.timeout {
		return Scan{}, fmt.Errorf("%w: last scan %v ago", ErrScanStale, age)
	}
	return t.scan, nil
}
