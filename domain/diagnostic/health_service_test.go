package diagnostic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	"github.com/dmweis/hamilton/pkg/geometry"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

type fixedLocaliser struct {
	err error
}

func (l fixedLocaliser) Name() string { return "fixed" }

func (l fixedLocaliser) Poll(ctx context.Context) (localisation.Reading, error) {
	if l.err != nil {
		return localisation.Reading{}, l.err
	}
	return localisation.Reading{Source: devices.IRSource("0"), Pose: geometry.NewPose2d(1, 2, 0), Confidence: 1}, nil
}

func (l fixedLocaliser) Devices() []devices.Source { return nil }

func TestHealthReport(t *testing.T) {
	clk := clock.NewMock()
	cfg := config.Default()
	drv := driver.NewSimulatedDriver(cfg.Body, clk, customlog.Nop())

	poller := localisation.NewPoller(fixedLocaliser{}, time.Millisecond, clk, customlog.Nop())
	poller.PollOnce(context.Background())

	var snap fusion.Snapshot
	snap.Store(fusion.Estimate{Status: fusion.StatusFresh})

	svc := NewHealthService(Sources{
		Pollers:  []*localisation.Poller{poller},
		Driver:   drv,
		Snapshot: &snap,
	}, clk)

	svc.RecordCycle(10*time.Millisecond, false)
	svc.RecordCycle(70*time.Millisecond, true)
	svc.RecordSkip()

	report := svc.Collect(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, config.DriverSimulated, report.Driver.Type)
	require.NotNil(t, report.Driver.State)
	require.Len(t, report.Localisers, 1)
	assert.True(t, report.Localisers[0].Available)
	assert.Equal(t, CycleStats{
		Count:        2,
		Overruns:     1,
		Skipped:      1,
		LastDuration: 70 * time.Millisecond,
		MaxDuration:  70 * time.Millisecond,
	}, report.Cycles)
}

func TestHealthDegradedAndError(t *testing.T) {
	clk := clock.NewMock()
	poller := localisation.NewPoller(fixedLocaliser{err: localisation.ErrSensorUnavailable}, time.Millisecond, clk, customlog.Nop())
	poller.PollOnce(context.Background())

	svc := NewHealthService(Sources{Pollers: []*localisation.Poller{poller}}, clk)
	assert.Equal(t, StatusDegraded, svc.Collect(context.Background()).Status)

	svc.RecordDriverError(errors.New("serial gone"))
	report := svc.Collect(context.Background())
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, "serial gone", report.Driver.LastError)
	assert.EqualValues(t, 1, report.Driver.Errors)

	svc.RecordDriverError(nil)
	assert.Equal(t, StatusDegraded, svc.Collect(context.Background()).Status)
}
