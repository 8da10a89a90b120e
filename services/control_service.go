package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dmweis/hamilton/domain/diagnostic"
	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/domain/lidar"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/bus"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	customlog "github.com/dmweis/hamilton/pkg/log"
	"github.com/dmweis/hamilton/pkg/processing"
)

const (
	healthPublishInterval = time.Second
	shutdownStopTimeout   = 2 * time.Second
	publishQueueSize      = 64
)

// ControlService owns the fixed-rate control cycle and everything that has
// to run beside it: localiser pollers, the bus and the inbound pools.
type ControlService struct {
	cfg    *config.AppConfig
	clock  clock.Clock
	logger customlog.Logger

	bus       bus.Bus
	publisher *bus.AsyncPublisher
	topics    bus.Topics
	director  *processing.MessageDirector
	processor *processing.TopicProcessor

	pollers  []*localisation.Poller
	vrFeed   *localisation.Feed[devices.TrackedObjects]
	irFeed   *localisation.Feed[devices.IrTrackers]
	engine   *fusion.Engine
	snapshot *fusion.Snapshot

	driver     driver.Driver
	translator *navigation.Translator
	goals      *navigation.GoalStore
	mapper     *navigation.Map
	lidar      *lidar.Tracker
	health     *diagnostic.HealthService

	lastHealth time.Time
	stopOnce   sync.Once
	stopErr    error
}

// Pollers exposes the localiser pollers for reporting.
func (s *ControlService) Pollers() []*localisation.Poller {
	return s.pollers
}

// Run blocks until ctx is cancelled or a component fails. On return the
// driver has received exactly one Stop and the bus is closed.
func (s *ControlService) Run(ctx context.Context) error {
	if err := s.subscribe(); err != nil {
		return multierr.Append(err, s.shutdown())
	}

	s.director.Start()
	if err := s.bus.Start(); err != nil {
		return multierr.Append(fmt.Errorf("failed to start bus: %w", err), s.shutdown())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.pollers {
		p := p
		g.Go(func() error { return p.Run(gctx) })
	}
	if addr := s.cfg.Localisers.MulticastAddress; addr != "" && s.irFeed != nil {
		g.Go(func() error {
			if err := localisation.ListenMulticast(gctx, addr, s.irFeed, s.logger); err != nil {
				// the bus still feeds the localiser
				s.logger.Warnf("Multicast IR feed unavailable: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error { return s.publisher.Run(gctx) })
	g.Go(func() error { return s.loop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return multierr.Append(err, s.shutdown())
}

// subscribe routes every inbound topic through the priority pools.
func (s *ControlService) subscribe() error {
	handler := s.director.Handler()
	type route struct {
		topic, messageType, priority string
	}
	routes := []route{
		{s.topics.CanvasTouch(), "CanvasTouch", processing.PriorityHigh},
	}

	processing.HandleStampedJSON(s.processor, s.topics.CanvasTouch(), s.handleCanvasTouch)
	if s.vrFeed != nil {
		processing.HandleStampedJSON(s.processor, s.topics.VRDevices(), func(f devices.TrackedObjects, at time.Time) error {
			if !s.vrFeed.PushAt(f, at) {
				s.logger.Debugf("Dropped VR frame published at %v, a newer one is held", at)
			}
			return nil
		})
		routes = append(routes, route{s.topics.VRDevices(), "TrackedObjects", processing.PriorityStandard})
	}
	if s.irFeed != nil {
		processing.HandleStampedJSON(s.processor, s.topics.IRTrackers(), func(f devices.IrTrackers, at time.Time) error {
			if !s.irFeed.PushAt(f, at) {
				s.logger.Debugf("Dropped IR frame published at %v, a newer one is held", at)
			}
			return nil
		})
		routes = append(routes, route{s.topics.IRTrackers(), "IrTrackers", processing.PriorityStandard})
	}
	if s.lidar != nil {
		processing.HandleJSON(s.processor, s.topics.LidarScan(), func(scan lidar.Scan) error {
			if !s.lidar.Update(scan) {
				s.logger.Debugf("Dropped lidar scan taken at %v, a newer one is held", scan.Timestamp)
			}
			return nil
		})
		routes = append(routes, route{s.topics.LidarScan(), "Scan", processing.PriorityLow})
	}

	for _, r := range routes {
		s.director.Register(r.topic, r.messageType, r.priority)
		if err := s.bus.Subscribe(r.topic, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", r.topic, err)
		}
	}
	return nil
}

// handleCanvasTouch sets a goal stamped with the touch's publish time. A
// touch overtaken by a later one is ignored.
func (s *ControlService) handleCanvasTouch(t navigation.CanvasTouch, at time.Time) error {
	if at.IsZero() {
		at = s.clock.Now()
	}
	goal, err := s.mapper.CanvasTouchToGoal(t, at)
	if err != nil {
		return err
	}
	if !s.goals.SetIfNewer(goal) {
		s.logger.Debugf("Ignoring canvas touch from %v, a newer goal exists", at)
		return nil
	}
	s.logger.Infof("New goal %s at (%.3f, %.3f)", goal.ID, goal.X, goal.Y)
	return nil
}

// loop runs one cycle per period. A tick picked up more than one period
// after it was due is skipped rather than queued.
func (s *ControlService) loop(ctx context.Context) error {
	period := s.cfg.Fusion.CyclePeriod
	ticker := s.clock.Ticker(period)
	defer ticker.Stop()

	s.logger.Infof("Control cycle running every %v", period)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("Control cycle stopped")
			return nil
		case due := <-ticker.C:
			s.onTick(ctx, due)
		}
	}
}

// onTick runs the cycle due at due, or skips it when it is picked up more
// than one period late. It reports whether the cycle ran.
func (s *ControlService) onTick(ctx context.Context, due time.Time) bool {
	if late := s.clock.Since(due); late > s.cfg.Fusion.CyclePeriod {
		s.health.RecordSkip()
		s.logger.Warnf("Skipping cycle, started %v late", late)
		return false
	}
	s.RunCycle(ctx, due)
	return true
}

// RunCycle fuses the latest poller results and applies one command to the
// driver. Pose, odometry and health are queued for publishing only after
// the command went out.
func (s *ControlService) RunCycle(ctx context.Context, now time.Time) navigation.Command {
	start := s.clock.Now()

	est, err := s.engine.Fuse(now, localisation.Collect(s.pollers))
	if err != nil && !errors.Is(err, fusion.ErrPoseUnknown) {
		s.logger.Errorf("Fusion failed: %v", err)
	}
	s.snapshot.Store(est)

	goal := s.goals.Get()
	cmd := s.translator.Translate(est, goal)

	if err := s.driver.Apply(ctx, cmd.Wheels); err != nil {
		if ctx.Err() == nil {
			s.logger.Errorf("Failed to apply command: %v", err)
			s.translator.ReportDriverError(err)
			s.health.RecordDriverError(err)
		}
	} else {
		s.health.RecordDriverError(nil)
	}

	if cmd.Reason == navigation.StopArrived && goal != nil {
		if s.goals.ClearIf(goal.ID) {
			s.logger.Infof("Goal %s reached", goal.ID)
		}
	}

	s.publish(s.topics.Pose(), est)
	if state, err := s.driver.ReadState(ctx); err == nil {
		s.publish(s.topics.Odometry(), state)
	}

	elapsed := s.clock.Since(start)
	overrun := elapsed > s.cfg.Fusion.CyclePeriod
	if overrun {
		s.logger.Warnf("Control cycle overran: %v > %v", elapsed, s.cfg.Fusion.CyclePeriod)
	}
	s.health.RecordCycle(elapsed, overrun)

	if s.clock.Since(s.lastHealth) >= healthPublishInterval {
		s.lastHealth = s.clock.Now()
		s.publish(s.topics.DriverHealth(), s.health.Collect(ctx))
	}
	return cmd
}

func (s *ControlService) publish(topic string, v interface{}) {
	if err := s.publisher.PublishJSON(topic, v); err != nil {
		s.logger.Debugf("Failed to publish %s: %v", topic, err)
	}
}

// shutdown stops the driver once, then the bus and the pools.
func (s *ControlService) shutdown() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownStopTimeout)
		defer cancel()

		if err := s.driver.Stop(ctx); err != nil {
			s.logger.Errorf("Failed to stop driver: %v", err)
			s.stopErr = multierr.Append(s.stopErr, fmt.Errorf("stop driver: %w", err))
		} else {
			s.logger.Infof("Driver stopped")
		}
		if err := s.bus.Stop(); err != nil {
			s.stopErr = multierr.Append(s.stopErr, fmt.Errorf("stop bus: %w", err))
		}
		s.director.Stop()
	})
	return s.stopErr
}
