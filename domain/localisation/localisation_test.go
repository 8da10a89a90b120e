package localisation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/log"
)

// facingX tilts the tracker so its up axis maps to heading zero.
var facingX = quat.Number{Real: math.Sqrt2 / 2, Imag: -math.Sqrt2 / 2}

func tracker(id int, class devices.VrDeviceClass, x, z float64, valid bool) devices.VrDevice {
	return devices.VrDevice{
		ID:       id,
		Class:    class,
		Position: r3.Vector{X: x, Z: z},
		Rotation: facingX,
		Tracked:  valid,
		Seen:     valid,
	}
}

func vrConfig() config.VRConfig {
	return config.VRConfig{
		Enabled:         true,
		Confidence:      0.9,
		EligibleClasses: []string{"tracker"},
		TrackerOffset:   0,
	}
}

func TestFeedStaleness(t *testing.T) {
	clk := clock.NewMock()
	feed := NewFeed[int](clk, 100*time.Millisecond)

	_, _, err := feed.Latest()
	assert.ErrorIs(t, err, ErrSensorUnavailable)

	feed.Push(7)
	v, at, err := feed.Latest()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, clk.Now(), at)

	clk.Add(100 * time.Millisecond)
	_, _, err = feed.Latest()
	assert.NoError(t, err)

	clk.Add(time.Millisecond)
	_, _, err = feed.Latest()
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.Equal(t, uint64(1), feed.Count())
}

func TestFeedDropsOlderFrames(t *testing.T) {
	clk := clock.NewMock()
	feed := NewFeed[int](clk, time.Second)
	base := clk.Now()

	assert.True(t, feed.PushAt(2, base.Add(20*time.Millisecond)))
	clk.Add(5 * time.Millisecond)
	assert.False(t, feed.PushAt(1, base.Add(10*time.Millisecond)))

	v, at, err := feed.Latest()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, base, at)
	assert.Equal(t, uint64(1), feed.Count())
	assert.Equal(t, uint64(1), feed.Dropped())

	assert.True(t, feed.PushAt(3, base.Add(20*time.Millisecond)))
	feed.Push(4)
	assert.True(t, feed.PushAt(5, base))
	v, _, err = feed.Latest()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestVRLocaliserFiltersIneligibleAndInvalid(t *testing.T) {
	clk := clock.NewMock()
	feed := NewFeed[devices.TrackedObjects](clk, time.Second)
	l, err := NewVRLocaliser(vrConfig(), feed, log.Nop())
	require.NoError(t, err)

	feed.Push(devices.TrackedObjects{Trackers: []devices.VrDevice{
		tracker(1, devices.ClassHMD, 5, 5, true),
		tracker(2, devices.ClassController, 6, 6, true),
		tracker(3, devices.ClassTracker, 1, 2, false),
	}})
	_, err = l.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, []devices.Source{devices.VRSource(3)}, l.Devices())

	feed.Push(devices.TrackedObjects{Trackers: []devices.VrDevice{
		tracker(1, devices.ClassHMD, 5, 5, true),
		tracker(3, devices.ClassTracker, 1, 2, true),
	}})
	r, err := l.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devices.VRSource(3), r.Source)
	assert.InDelta(t, 2, r.Pose.X, 1e-9)
	assert.InDelta(t, 1, r.Pose.Y, 1e-9)
	assert.InDelta(t, 0, r.Pose.Theta, 1e-9)
	assert.Equal(t, 0.9, r.Confidence)
	assert.Equal(t, clk.Now(), r.Timestamp)
}

func TestVRLocaliserTieBreaks(t *testing.T) {
	clk := clock.NewMock()
	feed := NewFeed[devices.TrackedObjects](clk, time.Second)
	l, err := NewVRLocaliser(vrConfig(), feed, log.Nop())
	require.NoError(t, err)

	// Device 4 is reported twice; the valid entry wins over the invalid one
	// regardless of order, and the lowest valid id is selected.
	feed.Push(devices.TrackedObjects{Trackers: []devices.VrDevice{
		tracker(7, devices.ClassTracker, 9, 9, true),
		tracker(4, devices.ClassTracker, 1, 1, true),
		tracker(4, devices.ClassTracker, 0, 0, false),
	}})
	r, err := l.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devices.VRSource(4), r.Source)
	assert.InDelta(t, 1, r.Pose.X, 1e-9)

	// Two valid entries for one id: the later one is the current pose.
	feed.Push(devices.TrackedObjects{Trackers: []devices.VrDevice{
		tracker(4, devices.ClassTracker, 1, 1, true),
		tracker(4, devices.ClassTracker, 3, 3, true),
	}})
	r, err = l.Poll(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3, r.Pose.X, 1e-9)

	// Device 7 stayed valid the whole time but 2 has the lower id.
	feed.Push(devices.TrackedObjects{Trackers: []devices.VrDevice{
		tracker(7, devices.ClassTracker, 9, 9, true),
		tracker(2, devices.ClassTracker, 5, 5, true),
	}})
	r, err = l.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devices.VRSource(2), r.Source)
	assert.ElementsMatch(t, []devices.Source{devices.VRSource(2), devices.VRSource(4), devices.VRSource(7)}, l.Devices())
}

func TestVRLocaliserAverage(t *testing.T) {
	clk := clock.NewMock()
	feed := NewFeed[devices.TrackedObjects](clk, time.Second)
	cfg := vrConfig()
	cfg.Average = true
	l, err := NewVRLocaliser(cfg, feed, log.Nop())
	require.NoError(t, err)

	feed.Push(devices.TrackedObjects{Trackers: []devices.VrDevice{
		tracker(2, devices.ClassTracker, 0, 2, true),
		tracker(1, devices.ClassTracker, 2, 0, true),
	}})
	r, err := l.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devices.VRSource(1), r.Source)
	assert.InDelta(t, 1, r.Pose.X, 1e-9)
	assert.InDelta(t, 1, r.Pose.Y, 1e-9)
}

func TestNewVRLocaliserRejectsUnknownClass(t *testing.T) {
	cfg := vrConfig()
	cfg.EligibleClasses = []string{"wand"}
	_, err := NewVRLocaliser(cfg, NewFeed[devices.TrackedObjects](clock.NewMock(), 0), log.Nop())
	assert.Error(t, err)
}

func irConfig() config.IRConfig {
	return config.IRConfig{
		Enabled:       true,
		Camera:        "0",
		Confidence:    0.8,
		MinBeacons:    4,
		ClusterRadius: 0.02,
		MarkerOffset:  0.058,
		Area:          config.Area{MinX: 0, MinY: 0, MaxX: 4, MaxY: 4},
	}
}

// markerFrame places a beacon marker so that the robot sits at (x, y) facing
// heading, as seen by a 640x480 camera over cfg.Area.
func markerFrame(cfg config.IRConfig, x, y, heading float64, withHeadingBeacon bool) devices.IrTrackers {
	sin, cos := math.Sincos(heading)
	cx, cy := x-cfg.MarkerOffset*cos, y-cfg.MarkerOffset*sin
	world := []Point{
		{cx + 0.01, cy},
		{cx - 0.005, cy + 0.008},
		{cx - 0.005, cy - 0.008},
	}
	if withHeadingBeacon {
		world = append(world, Point{cx + 0.1*cos, cy + 0.1*sin})
	}
	frame := devices.IrTrackers{Width: 640, Height: 480}
	for _, p := range world {
		frame.Points = append(frame.Points, WorldToImage(cfg.Area, frame.Width, frame.Height, p))
	}
	frame.PointCount = len(frame.Points)
	return frame
}

func TestIRLocaliserTriangulates(t *testing.T) {
	clk := clock.NewMock()
	cfg := irConfig()
	feed := NewFeed[devices.IrTrackers](clk, time.Second)
	l, err := NewIRLocaliser(cfg, feed, log.Nop())
	require.NoError(t, err)
	assert.Empty(t, l.Devices())

	feed.Push(markerFrame(cfg, 1, 2, 0, true))
	r, err := l.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, devices.IRSource("0"), r.Source)
	assert.InDelta(t, 1, r.Pose.X, 1e-9)
	assert.InDelta(t, 2, r.Pose.Y, 1e-9)
	assert.InDelta(t, 0, r.Pose.Theta, 1e-9)
	assert.Equal(t, []devices.Source{devices.IRSource("0")}, l.Devices())

	feed.Push(markerFrame(cfg, 3, 1, math.Pi/2, true))
	r, err = l.Poll(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 3, r.Pose.X, 1e-9)
	assert.InDelta(t, 1, r.Pose.Y, 1e-9)
	assert.InDelta(t, math.Pi/2, r.Pose.Theta, 1e-9)
}

func TestIRLocaliserNeedsMinimumBeacons(t *testing.T) {
	clk := clock.NewMock()
	cfg := irConfig()
	feed := NewFeed[devices.IrTrackers](clk, time.Second)
	l, err := NewIRLocaliser(cfg, feed, log.Nop())
	require.NoError(t, err)

	feed.Push(markerFrame(cfg, 1, 2, 0, false))
	_, err = l.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestIRLocaliserThreeBeaconsKeepLastHeading(t *testing.T) {
	clk := clock.NewMock()
	cfg := irConfig()
	cfg.MinBeacons = 3
	feed := NewFeed[devices.IrTrackers](clk, time.Second)
	l, err := NewIRLocaliser(cfg, feed, log.Nop())
	require.NoError(t, err)

	// No heading has been seen yet.
	feed.Push(markerFrame(cfg, 1, 2, 0, false))
	_, err = l.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNoData)

	feed.Push(markerFrame(cfg, 1, 2, math.Pi/2, true))
	_, err = l.Poll(context.Background())
	require.NoError(t, err)

	feed.Push(markerFrame(cfg, 2, 2, math.Pi/2, false))
	r, err := l.Poll(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2, r.Pose.X, 1e-9)
	assert.InDelta(t, 2, r.Pose.Y, 1e-9)
	assert.InDelta(t, math.Pi/2, r.Pose.Theta, 1e-9)
}

func TestIRLocaliserRejectsScatteredBeacons(t *testing.T) {
	points := []Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	_, _, ok := FindMarker(points, 0.02, 0.058, nil)
	assert.False(t, ok)
}

func TestIRLocaliserMalformedFrame(t *testing.T) {
	clk := clock.NewMock()
	feed := NewFeed[devices.IrTrackers](clk, time.Second)
	l, err := NewIRLocaliser(irConfig(), feed, log.Nop())
	require.NoError(t, err)

	feed.Push(devices.IrTrackers{PointCount: 4})
	_, err = l.Poll(context.Background())
	assert.ErrorIs(t, err, ErrSensorUnavailable)
}

type panickingLocaliser struct{}

func (panickingLocaliser) Name() string { return "broken" }

func (panickingLocaliser) Devices() []devices.Source { return nil }

func (panickingLocaliser) Poll(context.Context) (Reading, error) { panic("usb unplugged") }

type stubLocaliser struct {
	reading Reading
	err     error
}

func (s *stubLocaliser) Name() string { return "stub" }

func (s *stubLocaliser) Devices() []devices.Source { return []devices.Source{s.reading.Source} }

func (s *stubLocaliser) Poll(context.Context) (Reading, error) { return s.reading, s.err }

func TestPollerRecoversFromPanic(t *testing.T) {
	p := NewPoller(panickingLocaliser{}, 10*time.Millisecond, clock.NewMock(), log.Nop())

	result := p.PollOnce(context.Background())
	assert.ErrorIs(t, result.Err, ErrSensorUnavailable)

	status := p.Status()
	assert.False(t, status.Available)
	assert.Equal(t, uint64(1), status.Failures)
	assert.Empty(t, Collect([]*Poller{p}))
}

func TestPollerCollect(t *testing.T) {
	clk := clock.NewMock()
	good := &stubLocaliser{reading: Reading{Source: devices.IRSource("0"), Confidence: 1}}
	empty := &stubLocaliser{err: ErrNoData}
	pGood := NewPoller(good, time.Millisecond, clk, log.Nop())
	pEmpty := NewPoller(empty, time.Millisecond, clk, log.Nop())
	pNever := NewPoller(good, time.Millisecond, clk, log.Nop())

	pGood.PollOnce(context.Background())
	pEmpty.PollOnce(context.Background())

	readings := Collect([]*Poller{pGood, pEmpty, pNever})
	require.Len(t, readings, 1)
	assert.Equal(t, devices.IRSource("0"), readings[0].Source)
	assert.Equal(t, uint64(0), pEmpty.Status().Failures)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	clk := clock.NewMock()
	stub := &stubLocaliser{reading: Reading{Source: devices.IRSource("0")}}
	p := NewPoller(stub, 10*time.Millisecond, clk, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		clk.Add(10 * time.Millisecond)
		_, ok := p.Latest()
		return ok
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, "stub", p.Status().Name)
}
