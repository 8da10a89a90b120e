package localisation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/geometry"
	"github.com/dmweis/hamilton/pkg/log"
)

// IRLocaliser finds the robot marker in IR camera frames. The marker is a
// tight cluster of three beacons with a fourth heading beacon in front of
// it.
type IRLocaliser struct {
	cfg    config.IRConfig
	source devices.Source
	feed   *Feed[devices.IrTrackers]
	logger log.Logger

	mu          sync.Mutex
	lastHeading *float64
	seen        bool
}

func NewIRLocaliser(cfg config.IRConfig, feed *Feed[devices.IrTrackers], logger log.Logger) (*IRLocaliser, error) {
	if cfg.MinBeacons < 3 {
		return nil, fmt.Errorf("ir localiser: min beacons %d is below 3", cfg.MinBeacons)
	}
	a := cfg.Area
	if a.MaxX <= a.MinX || a.MaxY <= a.MinY {
		return nil, fmt.Errorf("ir localiser: empty area %+v", a)
	}
	return &IRLocaliser{
		cfg:    cfg,
		source: devices.IRSource(cfg.Camera),
		feed:   feed,
		logger: logger.WithField("localiser", "ir"),
	}, nil
}

func (l *IRLocaliser) Name() string { return "ir" }

func (l *IRLocaliser) Poll(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	frame, received, err := l.feed.Latest()
	if err != nil {
		return Reading{}, err
	}
	if !frame.Valid() {
		return Reading{}, fmt.Errorf("malformed ir frame (%dx%d, %d/%d points): %w",
			frame.Width, frame.Height, frame.PointCount, len(frame.Points), ErrSensorUnavailable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = true

	if len(frame.Points) < l.cfg.MinBeacons {
		return Reading{}, ErrNoData
	}

	world := make([]Point, 0, len(frame.Points))
	for _, p := range frame.Normalised() {
		world = append(world, l.toWorld(p))
	}

	pose, headingFound, ok := FindMarker(world, l.cfg.ClusterRadius, l.cfg.MarkerOffset, l.lastHeading)
	if !ok {
		return Reading{}, ErrNoData
	}
	if headingFound {
		h := pose.Theta
		l.lastHeading = &h
	}
	return Reading{
		Source:     l.source,
		Pose:       pose,
		Confidence: l.cfg.Confidence,
		Timestamp:  received,
	}, nil
}

// toWorld maps normalised image coordinates onto the floor area. Image down
// (v) runs against world X and image right (u) against world Y.
func (l *IRLocaliser) toWorld(p devices.IrPoint) Point {
	a := l.cfg.Area
	return Point{
		X: a.MaxX - p.V()*(a.MaxX-a.MinX),
		Y: a.MaxY - p.U()*(a.MaxY-a.MinY),
	}
}

// WorldToImage is the inverse of the floor mapping, in pixels. The IR test
// fixtures use it to place beacons.
func WorldToImage(area config.Area, width, height int, p Point) devices.IrPoint {
	u := (area.MaxY - p.Y) / (area.MaxY - area.MinY)
	v := (area.MaxX - p.X) / (area.MaxX - area.MinX)
	return devices.IrPoint{u * float64(width), v * float64(height)}
}

func (l *IRLocaliser) Devices() []devices.Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.seen {
		return nil
	}
	return []devices.Source{l.source}
}

// Point is a floor position in meters.
type Point struct {
	X, Y float64
}

func (p Point) dist(o Point) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// FindMarker searches points for three beacons within clusterRadius of one
// another. The nearest remaining point is the heading beacon; the returned
// pose sits offset meters from the cluster centroid towards it. With no
// heading beacon the cluster still fixes the position when fallbackHeading
// is set; headingFound then reports false.
func FindMarker(points []Point, clusterRadius, offset float64, fallbackHeading *float64) (pose geometry.Pose2d, headingFound, ok bool) {
	others := make([]Point, 0, len(points))
	for i, current := range points {
		others = others[:0]
		for j, p := range points {
			if j != i {
				others = append(others, p)
			}
		}
		if len(others) < 2 {
			return geometry.Pose2d{}, false, false
		}
		sort.SliceStable(others, func(a, b int) bool {
			return current.dist(others[a]) < current.dist(others[b])
		})
		first, second := others[0], others[1]
		if current.dist(first) > clusterRadius || current.dist(second) > clusterRadius {
			continue
		}

		center := Point{
			X: (current.X + first.X + second.X) / 3,
			Y: (current.Y + first.Y + second.Y) / 3,
		}
		if len(others) < 3 {
			if fallbackHeading == nil {
				return geometry.Pose2d{}, false, false
			}
			base := geometry.Pose2d{X: center.X, Y: center.Y, Theta: *fallbackHeading}
			return base.Translate(offset), false, true
		}

		direction := others[2]
		heading := math.Atan2(direction.Y-center.Y, direction.X-center.X)
		base := geometry.Pose2d{X: center.X, Y: center.Y, Theta: geometry.NormalizeAngle(heading)}
		return base.Translate(offset), true, true
	}
	return geometry.Pose2d{}, false, false
}
