package diagnostic

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"

	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/processing"
)

// Overall health levels
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// CycleStats counts control cycles and their timing.
type CycleStats struct {
	Count        uint64        `json:"count"`
	Overruns     uint64        `json:"overruns"`
	Skipped      uint64        `json:"skipped"`
	LastDuration time.Duration `json:"last_duration"`
	MaxDuration  time.Duration `json:"max_duration"`
}

// DriverHealth describes the motor driver.
type DriverHealth struct {
	Type      config.DriverType `json:"type"`
	State     *driver.BodyState `json:"state,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	Errors    uint64            `json:"errors"`
}

// Report is the health snapshot served over HTTP and published on the
// driver health topic.
type Report struct {
	Timestamp  time.Time                         `json:"timestamp"`
	Status     string                            `json:"status"`
	Pose       fusion.Status                     `json:"pose_status"`
	Driver     DriverHealth                      `json:"driver"`
	Localisers []localisation.Status             `json:"localisers"`
	Cycles     CycleStats                        `json:"cycles"`
	Pools      map[string]processing.PoolMetrics `json:"pools,omitempty"`
}

// Sources are the components a Report is assembled from. Director may be
// nil when no inbound topics are routed.
type Sources struct {
	Pollers  []*localisation.Poller
	Driver   driver.Driver
	Snapshot *fusion.Snapshot
	Director *processing.MessageDirector
}

// HealthService aggregates component state for reporting
type HealthService struct {
	mu      sync.RWMutex
	clock   clock.Clock
	sources Sources
	cycles  CycleStats

	driverErr    error
	driverErrors uint64
}

// NewHealthService creates a new health service instance
func NewHealthService(sources Sources, clk clock.Clock) *HealthService {
	return &HealthService{sources: sources, clock: clk}
}

// RecordCycle accounts one completed cycle. overrun marks a cycle that ran
// past its period.
func (s *HealthService) RecordCycle(d time.Duration, overrun bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles.Count++
	s.cycles.LastDuration = d
	if d > s.cycles.MaxDuration {
		s.cycles.MaxDuration = d
	}
	if overrun {
		s.cycles.Overruns++
	}
}

// RecordSkip accounts a tick dropped because it started too late.
func (s *HealthService) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles.Skipped++
}

// RecordDriverError keeps the last driver failure; nil clears it.
func (s *HealthService) RecordDriverError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driverErr = err
	if err != nil {
		s.driverErrors++
	}
}

// Cycles returns the current cycle counters.
func (s *HealthService) Cycles() CycleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

// Collect assembles a Report from the current component state.
func (s *HealthService) Collect(ctx context.Context) Report {
	s.mu.RLock()
	report := Report{
		Timestamp: s.clock.Now(),
		Cycles:    s.cycles,
		Driver:    DriverHealth{Errors: s.driverErrors},
	}
	if s.driverErr != nil {
		report.Driver.LastError = s.driverErr.Error()
	}
	s.mu.RUnlock()

	available := 0
	for _, p := range s.sources.Pollers {
		st := p.Status()
		if st.Available {
			available++
		}
		report.Localisers = append(report.Localisers, st)
	}

	if s.sources.Snapshot != nil {
		if est, ok := s.sources.Snapshot.Load(); ok {
			report.Pose = est.Status
		}
	}

	if d := s.sources.Driver; d != nil {
		report.Driver.Type = d.Type()
		state, err := d.ReadState(ctx)
		if err != nil {
			report.Driver.LastError = err.Error()
		} else {
			report.Driver.State = &state
		}
	}

	if s.sources.Director != nil {
		report.Pools = s.sources.Director.GetPoolMetrics()
	}

	switch {
	case report.Driver.LastError != "":
		report.Status = StatusError
	case available == 0 || report.Pose != fusion.StatusFresh:
		report.Status = StatusDegraded
	default:
		report.Status = StatusOK
	}
	return report
}

// GetHealthHandler handles API requests for the health report
func (s *HealthService) GetHealthHandler(c *fiber.Ctx) error {
	report := s.Collect(c.UserContext())
	code := fiber.StatusOK
	if report.Status == StatusError {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": report.Status,
		"health": report,
	})
}
