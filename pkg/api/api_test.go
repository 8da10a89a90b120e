package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmweis/hamilton/domain/diagnostic"
	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/domain/lidar"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/geometry"
	customlog "github.com/dmweis/hamilton/pkg/log"
	"github.com/dmweis/hamilton/pkg/processing"
)

type stubLocaliser struct{}

func (stubLocaliser) Name() string { return "stub" }

func (stubLocaliser) Poll(ctx context.Context) (localisation.Reading, error) {
	return localisation.Reading{Source: devices.VRSource(3), Pose: geometry.NewPose2d(1, 1, 0), Confidence: 1}, nil
}

func (stubLocaliser) Devices() []devices.Source { return []devices.Source{devices.VRSource(3)} }

type fixture struct {
	server *Server
	deps   Deps
	clock  *clock.Mock
}

func newFixture(t *testing.T, withLidar bool) *fixture {
	t.Helper()
	cfg := config.Default()
	clk := clock.NewMock()
	logger := customlog.Nop()

	poller := localisation.NewPoller(stubLocaliser{}, time.Millisecond, clk, logger)
	poller.PollOnce(context.Background())

	deps := Deps{
		Snapshot:    &fusion.Snapshot{},
		Goals:       &navigation.GoalStore{},
		Map:         navigation.NewMap(cfg.Map),
		Driver:      driver.NewSimulatedDriver(cfg.Body, clk, logger),
		Pollers:     []*localisation.Poller{poller},
		Director:    processing.NewMessageDirector(cfg.Bus.Processing, processing.NewTopicRegistry(), logger),
		CanvasTopic: "hamilton/map/canvas_touch",
		Clock:       clk,
		Logger:      logger,
	}
	if withLidar {
		deps.Lidar = lidar.NewTracker(500*time.Millisecond, clk)
	}
	deps.Health = diagnostic.NewHealthService(diagnostic.Sources{
		Pollers:  deps.Pollers,
		Driver:   deps.Driver,
		Snapshot: deps.Snapshot,
	}, clk)

	return &fixture{server: NewServer(cfg, deps), deps: deps, clock: clk}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestPoseEndpoint(t *testing.T) {
	f := newFixture(t, false)

	code, body := f.do(t, http.MethodGet, "/api/v1/pose", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body["error"], "no pose")

	f.deps.Snapshot.Store(fusion.Estimate{Pose: geometry.NewPose2d(1, 2, 0.5), Status: fusion.StatusFresh})
	code, body = f.do(t, http.MethodGet, "/api/v1/pose", "")
	require.Equal(t, http.StatusOK, code)
	est := body["estimate"].(map[string]interface{})
	assert.Equal(t, "fresh", est["status"])
	pose := est["pose"].(map[string]interface{})
	assert.Equal(t, 2.0, pose["y"])
}

func TestGoalLifecycle(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(t, http.MethodGet, "/api/v1/goal", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/goal", `{"x":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.do(t, http.MethodPost, "/api/v1/goal", `{"x":1,"y":-0.5,"theta":1}`)
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, body["goal"].(map[string]interface{})["id"])

	goal := f.deps.Goals.Get()
	require.NotNil(t, goal)
	assert.Equal(t, -0.5, goal.Y)

	code, _ = f.do(t, http.MethodDelete, "/api/v1/goal", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Nil(t, f.deps.Goals.Get())
}

func TestCanvasTouch(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(t, http.MethodPost, "/api/v1/map/touch", `{"x":10,"y":10,"width":0,"height":100}`)
	assert.Equal(t, http.StatusBadRequest, code)

	// centre of the canvas is the centre of the room
	code, _ = f.do(t, http.MethodPost, "/api/v1/map/touch", `{"x":50,"y":50,"width":100,"height":100}`)
	require.Equal(t, http.StatusCreated, code)
	goal := f.deps.Goals.Get()
	require.NotNil(t, goal)
	assert.InDelta(t, 0, goal.X, 1e-9)
	assert.InDelta(t, 0, goal.Y, 1e-9)
}

func TestLocalisersAndDriver(t *testing.T) {
	f := newFixture(t, false)

	code, body := f.do(t, http.MethodGet, "/api/v1/localisers", "")
	require.Equal(t, http.StatusOK, code)
	views := body["localisers"].([]interface{})
	require.Len(t, views, 1)
	view := views[0].(map[string]interface{})
	assert.Equal(t, "stub", view["name"])
	assert.Equal(t, true, view["available"])
	assert.Equal(t, []interface{}{"vr:3"}, view["devices"])

	code, body = f.do(t, http.MethodGet, "/api/v1/driver", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "simulated", body["type"])
}

func TestLidarEndpoint(t *testing.T) {
	code, _ := newFixture(t, false).do(t, http.MethodGet, "/api/v1/lidar", "")
	assert.Equal(t, http.StatusNotFound, code)

	f := newFixture(t, true)
	code, _ = f.do(t, http.MethodGet, "/api/v1/lidar", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	f.deps.Lidar.Update(lidar.Scan{Points: []lidar.Point{{Angle: 0, Distance: 1}}})
	code, body := f.do(t, http.MethodGet, "/api/v1/lidar", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["scan"].(map[string]interface{})["points"], 1)
}

func TestHealthAndConfig(t *testing.T) {
	f := newFixture(t, false)

	code, body := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, diagnostic.StatusDegraded, body["status"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "driver_type: simulated")
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	code, _ := newFixture(t, false).do(t, http.MethodGet, "/ws/map", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}
