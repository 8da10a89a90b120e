package localisation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/geometry"
	"github.com/dmweis/hamilton/pkg/log"
)

// VRLocaliser turns VR tracking frames into floor poses.
type VRLocaliser struct {
	cfg      config.VRConfig
	eligible map[devices.VrDeviceClass]bool
	feed     *Feed[devices.TrackedObjects]
	logger   log.Logger

	mu    sync.Mutex
	known map[int]struct{}
}

func NewVRLocaliser(cfg config.VRConfig, feed *Feed[devices.TrackedObjects], logger log.Logger) (*VRLocaliser, error) {
	eligible := make(map[devices.VrDeviceClass]bool, len(cfg.EligibleClasses))
	for _, name := range cfg.EligibleClasses {
		class, err := devices.ParseVrDeviceClass(name)
		if err != nil {
			return nil, fmt.Errorf("vr localiser: %w", err)
		}
		eligible[class] = true
	}
	return &VRLocaliser{
		cfg:      cfg,
		eligible: eligible,
		feed:     feed,
		logger:   logger.WithField("localiser", "vr"),
		known:    make(map[int]struct{}),
	}, nil
}

func (l *VRLocaliser) Name() string { return "vr" }

func (l *VRLocaliser) Poll(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	frame, received, err := l.feed.Latest()
	if err != nil {
		return Reading{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	candidates := l.selectDevices(frame.Trackers)
	if len(candidates) == 0 {
		return Reading{}, ErrNoData
	}

	if !l.cfg.Average || len(candidates) == 1 {
		d := candidates[0]
		return Reading{
			Source:     devices.VRSource(d.ID),
			Pose:       geometry.ProjectToFloor(d.Position, d.Rotation, l.cfg.TrackerOffset),
			Confidence: l.cfg.Confidence,
			Timestamp:  received,
		}, nil
	}

	// Average in ascending id order so the sum is reproducible.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	var x, y float64
	headings := make([]geometry.WeightedAngle, 0, len(candidates))
	for _, d := range candidates {
		p := geometry.ProjectToFloor(d.Position, d.Rotation, l.cfg.TrackerOffset)
		x += p.X
		y += p.Y
		headings = append(headings, geometry.WeightedAngle{Angle: p.Theta, Weight: 1})
	}
	n := float64(len(candidates))
	theta, ok := geometry.CircularMean(headings)
	if !ok {
		// Opposing headings carry no direction; use the lowest id device.
		theta = geometry.ProjectToFloor(candidates[0].Position, candidates[0].Rotation, l.cfg.TrackerOffset).Theta
	}
	return Reading{
		Source:     devices.VRSource(candidates[0].ID),
		Pose:       geometry.Pose2d{X: x / n, Y: y / n, Theta: theta},
		Confidence: l.cfg.Confidence,
		Timestamp:  received,
	}, nil
}

// selectDevices returns the eligible, tracking-valid devices of a frame in
// ascending id order. A device listed more than once keeps its last valid
// entry.
func (l *VRLocaliser) selectDevices(trackers []devices.VrDevice) []devices.VrDevice {
	byID := make(map[int]devices.VrDevice, len(trackers))
	for _, d := range trackers {
		if !l.eligible[d.Class] {
			continue
		}
		l.known[d.ID] = struct{}{}
		prev, dup := byID[d.ID]
		if dup && prev.TrackingValid() && !d.TrackingValid() {
			continue
		}
		byID[d.ID] = d
	}

	out := make([]devices.VrDevice, 0, len(byID))
	for _, d := range byID {
		if d.TrackingValid() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *VRLocaliser) Devices() []devices.Source {
	l.mu.Lock()
	ids := make([]int, 0, len(l.known))
	for id := range l.known {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	sort.Ints(ids)
	out := make([]devices.Source, 0, len(ids))
	for _, id := range ids {
		out = append(out, devices.VRSource(id))
	}
	return out
}
