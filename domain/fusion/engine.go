// Package fusion combines candidate poses from the localisers into the one
// pose the rest of hamilton acts on.
package fusion

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/geometry"
	"github.com/dmweis/hamilton/pkg/log"
)

// ErrPoseUnknown is returned once no source has been fresh for longer than
// the grace period. Navigation must stop.
var ErrPoseUnknown = errors.New("pose unknown")

// Status is the freshness state of an Estimate.
type Status int

const (
	StatusUnknown Status = iota
	StatusFresh
	// StatusStale holds the last fresh pose during the grace period.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Known reports whether the estimate carries a pose at all.
func (s Status) Known() bool {
	return s == StatusFresh || s == StatusStale
}

// Estimate is the output of one fusion cycle.
type Estimate struct {
	Pose    geometry.Pose2d  `json:"pose"`
	Status  Status           `json:"status"`
	Sources []devices.Source `json:"sources,omitempty"`
	// Timestamp is the newest reading that went into Pose.
	Timestamp time.Time `json:"timestamp"`
	// GraceLeft counts the stale cycles remaining before the pose is
	// reported unknown.
	GraceLeft int `json:"grace_left"`
}

// Engine is the fusion state machine: Fresh, Stale(n), Unknown. It is
// driven by the control cycle and is not safe for concurrent use.
type Engine struct {
	cfg    config.FusionConfig
	logger log.Logger

	state     Status
	last      Estimate
	graceLeft int
}

func NewEngine(cfg config.FusionConfig, logger log.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.WithField("component", "fusion")}
}

// Fuse produces the estimate for the cycle starting at now.
//
// Readings below the confidence threshold or older than the staleness
// window are ignored. A single remaining reading is passed through
// unchanged; several are blended, positions by confidence-weighted mean and
// headings by weighted circular mean. Readings are ordered by source before
// any arithmetic so the result does not depend on input order.
func (e *Engine) Fuse(now time.Time, readings []localisation.Reading) (Estimate, error) {
	candidates := e.eligible(now, readings)
	if len(candidates) == 0 {
		return e.miss()
	}

	est := Estimate{
		Status:  StatusFresh,
		Sources: make([]devices.Source, 0, len(candidates)),
	}
	for _, c := range candidates {
		est.Sources = append(est.Sources, c.Source)
		if c.Timestamp.After(est.Timestamp) {
			est.Timestamp = c.Timestamp
		}
	}

	if len(candidates) == 1 {
		est.Pose = candidates[0].Pose
	} else {
		est.Pose = blend(candidates)
	}

	if e.state != StatusFresh {
		e.logger.Infof("Pose fresh from %s", joinSources(est.Sources))
	}
	e.state = StatusFresh
	e.graceLeft = e.cfg.GraceCycles
	est.GraceLeft = e.graceLeft
	e.last = est
	return est, nil
}

func (e *Engine) eligible(now time.Time, readings []localisation.Reading) []localisation.Reading {
	out := make([]localisation.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Confidence < e.cfg.ConfidenceThreshold {
			continue
		}
		if now.Sub(r.Timestamp) > e.cfg.StalenessWindow {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source.Less(out[j].Source)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func blend(candidates []localisation.Reading) geometry.Pose2d {
	var x, y, total float64
	headings := make([]geometry.WeightedAngle, 0, len(candidates))
	for _, c := range candidates {
		x += c.Confidence * c.Pose.X
		y += c.Confidence * c.Pose.Y
		total += c.Confidence
		headings = append(headings, geometry.WeightedAngle{Angle: c.Pose.Theta, Weight: c.Confidence})
	}
	if total <= 0 {
		return preferred(candidates).Pose
	}

	theta, ok := geometry.CircularMean(headings)
	if !ok {
		theta = preferred(candidates).Pose.Theta
	}
	return geometry.Pose2d{X: x / total, Y: y / total, Theta: theta}
}

// preferred is the most recent reading, then the most confident. Earlier
// entries in source order win remaining ties.
func preferred(candidates []localisation.Reading) localisation.Reading {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.Timestamp.After(best.Timestamp):
			best = c
		case c.Timestamp.Equal(best.Timestamp) && c.Confidence > best.Confidence:
			best = c
		}
	}
	return best
}

func (e *Engine) miss() (Estimate, error) {
	if e.state != StatusUnknown && e.graceLeft > 0 {
		e.graceLeft--
		if e.state == StatusFresh {
			e.logger.Warnf("No fresh pose source, holding %s", e.last.Pose)
		}
		e.state = StatusStale
		est := e.last
		est.Status = StatusStale
		est.GraceLeft = e.graceLeft
		return est, nil
	}

	if e.state != StatusUnknown {
		e.logger.Errorf("Pose unknown, last known %s", e.last.Pose)
	}
	e.state = StatusUnknown
	e.graceLeft = 0
	return Estimate{Status: StatusUnknown}, fmt.Errorf("no source within %v: %w", e.cfg.StalenessWindow, ErrPoseUnknown)
}

// State is the current freshness state.
func (e *Engine) State() Status {
	return e.state
}

func joinSources(sources []devices.Source) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}
