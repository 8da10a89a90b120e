package localisation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dmweis/hamilton/pkg/log"
)

// PollResult is the outcome of the most recent poll of one localiser.
type PollResult struct {
	Reading  Reading
	Err      error
	PolledAt time.Time
}

// Status summarises a poller for health reporting.
type Status struct {
	Name        string    `json:"name"`
	Available   bool      `json:"available"`
	LastError   string    `json:"last_error,omitempty"`
	LastReading *Reading  `json:"last_reading,omitempty"`
	PolledAt    time.Time `json:"polled_at"`
	Polls       uint64    `json:"polls"`
	Failures    uint64    `json:"failures"`
}

// Poller drives one Localiser on its own goroutine and keeps the latest
// result in an atomically replaced snapshot.
type Poller struct {
	localiser Localiser
	interval  time.Duration
	clock     clock.Clock
	logger    log.Logger

	latest   atomic.Pointer[PollResult]
	polls    atomic.Uint64
	failures atomic.Uint64
}

func NewPoller(l Localiser, interval time.Duration, clk clock.Clock, logger log.Logger) *Poller {
	return &Poller{
		localiser: l,
		interval:  interval,
		clock:     clk,
		logger:    logger.WithField("poller", l.Name()),
	}
}

func (p *Poller) Localiser() Localiser { return p.localiser }

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	p.logger.Infof("Polling %s every %v", p.localiser.Name(), p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debugf("Poller stopped")
			return nil
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce polls the localiser and stores the result. A panicking backend
// is recorded as unavailable.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	result := p.poll(ctx)
	p.polls.Add(1)
	if result.Err != nil && !errors.Is(result.Err, ErrNoData) {
		p.failures.Add(1)
	}

	prev := p.latest.Swap(&result)
	if result.Err != nil && (prev == nil || prev.Err == nil || prev.Err.Error() != result.Err.Error()) {
		p.logger.Warnf("Localiser %s has no pose: %v", p.localiser.Name(), result.Err)
	} else if result.Err == nil && prev != nil && prev.Err != nil {
		p.logger.Infof("Localiser %s recovered, source %s", p.localiser.Name(), result.Reading.Source)
	}
	return result
}

func (p *Poller) poll(ctx context.Context) (result PollResult) {
	defer func() {
		if r := recover(); r != nil {
			result = PollResult{
				Err:      fmt.Errorf("localiser %s panicked: %v: %w", p.localiser.Name(), r, ErrSensorUnavailable),
				PolledAt: p.clock.Now(),
			}
		}
	}()
	reading, err := p.localiser.Poll(ctx)
	return PollResult{Reading: reading, Err: err, PolledAt: p.clock.Now()}
}

// Latest returns the last stored result. ok is false before the first
// poll completes.
func (p *Poller) Latest() (PollResult, bool) {
	r := p.latest.Load()
	if r == nil {
		return PollResult{}, false
	}
	return *r, true
}

func (p *Poller) Status() Status {
	s := Status{
		Name:     p.localiser.Name(),
		Polls:    p.polls.Load(),
		Failures: p.failures.Load(),
	}
	if r, ok := p.Latest(); ok {
		s.PolledAt = r.PolledAt
		if r.Err != nil {
			s.LastError = r.Err.Error()
		} else {
			s.Available = true
			reading := r.Reading
			s.LastReading = &reading
		}
	}
	return s
}

// Collect gathers the successful readings of every poller. Pollers that
// failed or have not finished a poll yet contribute nothing.
func Collect(pollers []*Poller) []Reading {
	readings := make([]Reading, 0, len(pollers))
	for _, p := range pollers {
		if r, ok := p.Latest(); ok && r.Err == nil {
			readings = append(readings, r.Reading)
		}
	}
	return readings
}
