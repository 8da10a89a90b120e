package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/bus"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
	"github.com/dmweis/hamilton/pkg/registry"
)

func testConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.Localisers.MulticastAddress = ""
	cfg.Localisers.IR.Area = config.Area{MinX: 0, MinY: 0, MaxX: 4, MaxY: 4}
	return cfg
}

// irFrame places the marker so the robot sits at (x, y) facing heading.
func irFrame(cfg config.IRConfig, x, y, heading float64) devices.IrTrackers {
	sin, cos := math.Sincos(heading)
	cx, cy := x-cfg.MarkerOffset*cos, y-cfg.MarkerOffset*sin
	world := []localisation.Point{
		{X: cx + 0.01, Y: cy},
		{X: cx - 0.005, Y: cy + 0.008},
		{X: cx - 0.005, Y: cy - 0.008},
		{X: cx + 0.1*cos, Y: cy + 0.1*sin},
	}
	frame := devices.IrTrackers{Width: 640, Height: 480}
	for _, p := range world {
		frame.Points = append(frame.Points, localisation.WorldToImage(cfg.Area, frame.Width, frame.Height, p))
	}
	frame.PointCount = len(frame.Points)
	return frame
}

func TestSimulatedWithIRNeverResolvesVR(t *testing.T) {
	cfg := testConfig()
	app, err := Build(cfg, customlog.Nop(), clock.NewMock())
	require.NoError(t, err)
	defer app.Close()

	assert.True(t, registry.Resolved(app.Container, KeyIRLocaliser))
	assert.False(t, registry.Resolved(app.Container, KeyVRLocaliser))
	assert.False(t, registry.Resolved(app.Container, KeyVRFeed))
	assert.NotContains(t, app.Container.Order(), "vr_localiser")
	assert.Equal(t, config.DriverSimulated, registry.MustResolve(app.Container, KeyDriver).Type())
	assert.Len(t, app.Control.Pollers(), 1)
}

func TestBothLocalisersResolved(t *testing.T) {
	cfg := testConfig()
	cfg.Localisers.VR.Enabled = true
	app, err := Build(cfg, customlog.Nop(), clock.NewMock())
	require.NoError(t, err)
	defer app.Close()

	assert.True(t, registry.Resolved(app.Container, KeyVRLocaliser))
	assert.Len(t, app.Control.Pollers(), 2)
}

func TestBuildFailsWithoutLocaliser(t *testing.T) {
	cfg := testConfig()
	cfg.Localisers.IR.Enabled = false
	_, err := Build(cfg, customlog.Nop(), clock.NewMock())

	var rerr *registry.ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "pollers", rerr.Key)
}

// startInbound runs the inbound path without the control loop.
func startInbound(t *testing.T, s *ControlService) {
	t.Helper()
	require.NoError(t, s.subscribe())
	s.director.Start()
	require.NoError(t, s.bus.Start())
	t.Cleanup(func() { s.shutdown() })
}

func TestIRTriangulationEndToEndStops(t *testing.T) {
	cfg := testConfig()
	clk := clock.NewMock()
	app, err := Build(cfg, customlog.Nop(), clk)
	require.NoError(t, err)
	defer app.Close()

	s := app.Control
	startInbound(t, s)

	var odometry []*bus.Message
	require.NoError(t, s.bus.Subscribe(s.topics.Odometry(), func(m *bus.Message) {
		odometry = append(odometry, m)
	}))

	require.NoError(t, bus.PublishJSON(s.bus, s.topics.IRTrackers(), irFrame(cfg.Localisers.IR, 1, 2, 0)))
	require.Eventually(t, func() bool { return s.irFeed.Count() == 1 }, time.Second, time.Millisecond)

	s.pollers[0].PollOnce(context.Background())
	s.goals.Set(navigation.NewGoal(1, 2, nil, clk.Now()))

	cmd := s.RunCycle(context.Background(), clk.Now())
	assert.True(t, cmd.IsStop())
	assert.Equal(t, navigation.StopArrived, cmd.Reason)
	assert.Nil(t, s.goals.Get(), "reached goal is cleared")

	est, ok := s.snapshot.Load()
	require.True(t, ok)
	assert.InDelta(t, 1, est.Pose.X, 1e-9)
	assert.InDelta(t, 2, est.Pose.Y, 1e-9)
	assert.InDelta(t, 0, est.Pose.Theta, 1e-9)

	assert.Empty(t, odometry, "publishing happens off the cycle")
	s.publisher.Flush()
	assert.Len(t, odometry, 1)

	state, err := s.driver.ReadState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.LastCommand.IsStop())
}

func TestCanvasTouchOverBusSetsGoal(t *testing.T) {
	cfg := testConfig()
	app, err := Build(cfg, customlog.Nop(), clock.NewMock())
	require.NoError(t, err)
	defer app.Close()

	s := app.Control
	startInbound(t, s)

	touch := navigation.CanvasTouch{X: 0, Y: 0, Width: 100, Height: 100}
	require.NoError(t, bus.PublishJSON(s.bus, s.topics.CanvasTouch(), touch))
	require.Eventually(t, func() bool { return s.goals.Get() != nil }, time.Second, time.Millisecond)

	goal := s.goals.Get()
	assert.InDelta(t, cfg.Map.FrontLeft.X, goal.X, 1e-9)
	assert.InDelta(t, cfg.Map.FrontLeft.Y, goal.Y, 1e-9)
}

type countingDriver struct {
	driver.Driver
	onApply func()

	mu      sync.Mutex
	applies int
	stops   int
}

func (d *countingDriver) Apply(ctx context.Context, cmd driver.WheelCommand) error {
	d.mu.Lock()
	d.applies++
	hook := d.onApply
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	return d.Driver.Apply(ctx, cmd)
}

func (d *countingDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stops++
	d.mu.Unlock()
	return d.Driver.Stop(ctx)
}

func (d *countingDriver) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applies, d.stops
}

func TestCancelMidCycleStopsDriverOnce(t *testing.T) {
	cfg := testConfig()
	clk := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv := &countingDriver{
		Driver:  driver.NewSimulatedDriver(cfg.Body, clk, customlog.Nop()),
		onApply: cancel,
	}
	app, err := Build(cfg, customlog.Nop(), clk, WithDriver(drv))
	require.NoError(t, err)
	defer app.Close()

	done := make(chan error, 1)
	go func() { done <- app.Control.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if applies, _ := drv.counts(); applies > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("control cycle never ran")
		}
		clk.Add(cfg.Fusion.CyclePeriod)
		time.Sleep(time.Millisecond)
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, stops := drv.counts()
	assert.Equal(t, 1, stops)

	require.NoError(t, app.Control.shutdown())
	_, stops = drv.counts()
	assert.Equal(t, 1, stops)

	state, err := drv.ReadState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Halted)
}

func TestResolutionOrderFollowsPipeline(t *testing.T) {
	app, err := Build(testConfig(), customlog.Nop(), clock.NewMock())
	require.NoError(t, err)
	defer app.Close()

	pos := make(map[string]int)
	for i, name := range app.Container.Order() {
		pos[name] = i
	}
	chain := []string{"ir_feed", "ir_localiser", "pollers", "fusion", "translator", "driver", "control"}
	for i := 1; i < len(chain); i++ {
		assert.Less(t, pos[chain[i-1]], pos[chain[i]], "%s before %s", chain[i-1], chain[i])
	}
}

// arrivedSetup builds a control service whose IR localiser reports the
// robot at (1, 2).
func arrivedSetup(t *testing.T, drv *countingDriver) (*ControlService, *clock.Mock) {
	t.Helper()
	cfg := testConfig()
	clk := clock.NewMock()
	drv.Driver = driver.NewSimulatedDriver(cfg.Body, clk, customlog.Nop())
	app, err := Build(cfg, customlog.Nop(), clk, WithDriver(drv))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	s := app.Control
	s.irFeed.Push(irFrame(cfg.Localisers.IR, 1, 2, 0))
	s.pollers[0].PollOnce(context.Background())
	return s, clk
}

func TestReachedGoalKeepsGoalSetDuringCycle(t *testing.T) {
	drv := &countingDriver{}
	s, clk := arrivedSetup(t, drv)

	reached := navigation.NewGoal(1, 2, nil, clk.Now())
	next := navigation.NewGoal(3, 3, nil, clk.Now())
	s.goals.Set(reached)
	drv.onApply = func() { s.goals.Set(next) }

	cmd := s.RunCycle(context.Background(), clk.Now())
	assert.Equal(t, navigation.StopArrived, cmd.Reason)

	got := s.goals.Get()
	require.NotNil(t, got, "goal set mid-cycle survives")
	assert.Equal(t, next.ID, got.ID)
}

func TestOutOfOrderInboundKeepsNewest(t *testing.T) {
	cfg := testConfig()
	clk := clock.NewMock()
	app, err := Build(cfg, customlog.Nop(), clk)
	require.NoError(t, err)
	defer app.Close()

	s := app.Control
	require.NoError(t, s.subscribe())

	stamped := func(topic string, at time.Time, v interface{}) *bus.Message {
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		return &bus.Message{Topic: topic, TimestampNs: at.UnixNano(), ContentType: message.ContentTypeJSON, Payload: payload}
	}
	t1 := clk.Now().Add(10 * time.Millisecond)
	t2 := clk.Now().Add(20 * time.Millisecond)

	// the worker holding the newer frame finishes first
	require.NoError(t, s.processor.Process(stamped(s.topics.IRTrackers(), t2, irFrame(cfg.Localisers.IR, 1, 2, 0))))
	require.NoError(t, s.processor.Process(stamped(s.topics.IRTrackers(), t1, irFrame(cfg.Localisers.IR, 3, 3, 0))))
	assert.Equal(t, uint64(1), s.irFeed.Dropped())

	r := s.pollers[0].PollOnce(context.Background())
	require.NoError(t, r.Err)
	assert.InDelta(t, 1, r.Reading.Pose.X, 1e-6)
	assert.InDelta(t, 2, r.Reading.Pose.Y, 1e-6)

	require.NoError(t, s.processor.Process(stamped(s.topics.CanvasTouch(), t2, navigation.CanvasTouch{X: 0, Y: 0, Width: 100, Height: 100})))
	require.NoError(t, s.processor.Process(stamped(s.topics.CanvasTouch(), t1, navigation.CanvasTouch{X: 100, Y: 100, Width: 100, Height: 100})))
	goal := s.goals.Get()
	require.NotNil(t, goal)
	assert.InDelta(t, cfg.Map.FrontLeft.X, goal.X, 1e-9)
	assert.InDelta(t, cfg.Map.FrontLeft.Y, goal.Y, 1e-9)
}

func TestLateTickIsSkipped(t *testing.T) {
	drv := &countingDriver{}
	s, clk := arrivedSetup(t, drv)
	period := s.cfg.Fusion.CyclePeriod

	assert.False(t, s.onTick(context.Background(), clk.Now().Add(-2*period)))
	applies, _ := drv.counts()
	assert.Equal(t, 0, applies)
	assert.Equal(t, uint64(1), s.health.Cycles().Skipped)
	assert.Equal(t, uint64(0), s.health.Cycles().Count)

	assert.True(t, s.onTick(context.Background(), clk.Now().Add(-period)))
	applies, _ = drv.counts()
	assert.Equal(t, 1, applies)
}

func TestSlowCycleCountsOverrun(t *testing.T) {
	drv := &countingDriver{}
	s, clk := arrivedSetup(t, drv)
	period := s.cfg.Fusion.CyclePeriod

	assert.True(t, s.onTick(context.Background(), clk.Now()))
	assert.Equal(t, uint64(0), s.health.Cycles().Overruns)

	drv.onApply = func() { clk.Add(2 * period) }
	assert.True(t, s.onTick(context.Background(), clk.Now()))
	stats := s.health.Cycles()
	assert.Equal(t, uint64(2), stats.Count)
	assert.Equal(t, uint64(1), stats.Overruns)
	assert.Zero(t, stats.Skipped)
}
