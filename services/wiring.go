package services

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dmweis/hamilton/domain/diagnostic"
	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/domain/lidar"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/api"
	"github.com/dmweis/hamilton/pkg/bus"
	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/devices"
	customlog "github.com/dmweis/hamilton/pkg/log"
	"github.com/dmweis/hamilton/pkg/processing"
	"github.com/dmweis/hamilton/pkg/registry"
)

// Component roles. Every role has exactly one factory; disabled features
// are simply never resolved.
var (
	KeyConfig = registry.NewKey[*config.AppConfig]("config")
	KeyLogger = registry.NewKey[customlog.Logger]("logger")
	KeyClock  = registry.NewKey[clock.Clock]("clock")

	KeyBus       = registry.NewKey[bus.Bus]("bus")
	KeyPublisher = registry.NewKey[*bus.AsyncPublisher]("publisher")
	KeyTopics    = registry.NewKey[bus.Topics]("topics")
	KeyProcessor = registry.NewKey[*processing.TopicProcessor]("processor")
	KeyDirector  = registry.NewKey[*processing.MessageDirector]("director")

	KeyVRFeed      = registry.NewKey[*localisation.Feed[devices.TrackedObjects]]("vr_feed")
	KeyIRFeed      = registry.NewKey[*localisation.Feed[devices.IrTrackers]]("ir_feed")
	KeyVRLocaliser = registry.NewKey[*localisation.VRLocaliser]("vr_localiser")
	KeyIRLocaliser = registry.NewKey[*localisation.IRLocaliser]("ir_localiser")
	KeyPollers     = registry.NewKey[[]*localisation.Poller]("pollers")

	KeyFusion   = registry.NewKey[*fusion.Engine]("fusion")
	KeySnapshot = registry.NewKey[*fusion.Snapshot]("snapshot")

	KeyDriver     = registry.NewKey[driver.Driver]("driver")
	KeyKinematics = registry.NewKey[driver.Kinematics]("kinematics")
	KeyTranslator = registry.NewKey[*navigation.Translator]("translator")
	KeyGoals      = registry.NewKey[*navigation.GoalStore]("goals")
	KeyMap        = registry.NewKey[*navigation.Map]("map")
	KeyLidar      = registry.NewKey[*lidar.Tracker]("lidar")

	KeyHealth  = registry.NewKey[*diagnostic.HealthService]("health")
	KeyControl = registry.NewKey[*ControlService]("control")
	KeyAPI     = registry.NewKey[*api.Server]("api")
)

// Option customises Wire.
type Option func(*options)

type options struct {
	driver driver.Driver
	bus    bus.Bus
}

// WithDriver replaces the configured driver with d.
func WithDriver(d driver.Driver) Option {
	return func(o *options) { o.driver = d }
}

// WithBus replaces the configured transport with b.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// App is the assembled process: the container and its resolved roots.
type App struct {
	Container *registry.Container
	Control   *ControlService
	API       *api.Server
}

// Close releases every built component in reverse construction order.
func (a *App) Close() error {
	return a.Container.Close()
}

// Build registers every role and resolves the roots. Any resolution error
// is returned as a *registry.ResolutionError and is a startup failure.
func Build(cfg *config.AppConfig, logger customlog.Logger, clk clock.Clock, opts ...Option) (*App, error) {
	c := registry.New()
	if err := Wire(c, cfg, logger, clk, opts...); err != nil {
		return nil, err
	}

	control, err := registry.Resolve(c, KeyControl)
	if err != nil {
		c.Close()
		return nil, err
	}
	server, err := registry.Resolve(c, KeyAPI)
	if err != nil {
		c.Close()
		return nil, err
	}

	logger.Debugf("Resolved components: %v", c.Order())
	return &App{Container: c, Control: control, API: server}, nil
}

// Wire registers a factory for every role on c.
func Wire(c *registry.Container, cfg *config.AppConfig, logger customlog.Logger, clk clock.Clock, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	providers := []func() error{
		func() error { return registry.ProvideValue(c, KeyConfig, cfg) },
		func() error { return registry.ProvideValue(c, KeyLogger, logger) },
		func() error { return registry.ProvideValue(c, KeyClock, clk) },

		func() error { return registry.Provide(c, KeyBus, newBus(o.bus)) },
		func() error { return registry.Provide(c, KeyPublisher, newPublisher) },
		func() error {
			return registry.ProvideValue(c, KeyTopics, bus.NewTopics(cfg.Bus))
		},
		func() error { return registry.Provide(c, KeyProcessor, newProcessor) },
		func() error { return registry.Provide(c, KeyDirector, newDirector) },

		func() error { return registry.Provide(c, KeyVRFeed, newFeed[devices.TrackedObjects]) },
		func() error { return registry.Provide(c, KeyIRFeed, newFeed[devices.IrTrackers]) },
		func() error { return registry.Provide(c, KeyVRLocaliser, newVRLocaliser) },
		func() error { return registry.Provide(c, KeyIRLocaliser, newIRLocaliser) },
		func() error { return registry.Provide(c, KeyPollers, newPollers) },

		func() error { return registry.Provide(c, KeyFusion, newFusion) },
		func() error {
			return registry.Provide(c, KeySnapshot, func(*registry.Container) (*fusion.Snapshot, error) {
				return &fusion.Snapshot{}, nil
			})
		},

		func() error { return registry.Provide(c, KeyDriver, newDriver(o.driver)) },
		func() error {
			return registry.ProvideValue(c, KeyKinematics, driver.NewKinematics(cfg.Body))
		},
		func() error { return registry.Provide(c, KeyTranslator, newTranslator) },
		func() error {
			return registry.Provide(c, KeyGoals, func(*registry.Container) (*navigation.GoalStore, error) {
				return &navigation.GoalStore{}, nil
			})
		},
		func() error { return registry.ProvideValue(c, KeyMap, navigation.NewMap(cfg.Map)) },
		func() error { return registry.Provide(c, KeyLidar, newLidar) },

		func() error { return registry.Provide(c, KeyHealth, newHealth) },
		func() error { return registry.Provide(c, KeyControl, newControl) },
		func() error { return registry.Provide(c, KeyAPI, newAPI) },
	}

	for _, provide := range providers {
		if err := provide(); err != nil {
			return err
		}
	}
	return nil
}

func newBus(override bus.Bus) func(*registry.Container) (bus.Bus, error) {
	return func(c *registry.Container) (bus.Bus, error) {
		if override != nil {
			return override, nil
		}
		cfg := registry.MustResolve(c, KeyConfig)
		return bus.New(cfg.Bus, registry.MustResolve(c, KeyLogger))
	}
}

func newPublisher(c *registry.Container) (*bus.AsyncPublisher, error) {
	logger := registry.MustResolve(c, KeyLogger).WithField("component", "publisher")
	return bus.NewAsyncPublisher(registry.MustResolve(c, KeyBus), publishQueueSize, logger), nil
}

func newProcessor(c *registry.Container) (*processing.TopicProcessor, error) {
	return processing.NewTopicProcessor(), nil
}

func newDirector(c *registry.Container) (*processing.MessageDirector, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	logger := registry.MustResolve(c, KeyLogger)
	processor := registry.MustResolve(c, KeyProcessor)

	d := processing.NewMessageDirector(cfg.Bus.Processing, processing.NewTopicRegistry(), logger.WithField("component", "director"))
	d.SetProcessor(processor.Process)
	d.SetResultHandler(processing.NewLoggingResultHandler(logger).CreateHandlerFunc())
	return d, nil
}

func newFeed[T any](c *registry.Container) (*localisation.Feed[T], error) {
	cfg := registry.MustResolve(c, KeyConfig)
	return localisation.NewFeed[T](registry.MustResolve(c, KeyClock), cfg.Localisers.FeedTimeout), nil
}

func newVRLocaliser(c *registry.Container) (*localisation.VRLocaliser, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	if !cfg.Localisers.VR.Enabled {
		return nil, fmt.Errorf("vr localiser is disabled")
	}
	return localisation.NewVRLocaliser(cfg.Localisers.VR, registry.MustResolve(c, KeyVRFeed), registry.MustResolve(c, KeyLogger))
}

func newIRLocaliser(c *registry.Container) (*localisation.IRLocaliser, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	if !cfg.Localisers.IR.Enabled {
		return nil, fmt.Errorf("ir localiser is disabled")
	}
	return localisation.NewIRLocaliser(cfg.Localisers.IR, registry.MustResolve(c, KeyIRFeed), registry.MustResolve(c, KeyLogger))
}

// newPollers resolves only the enabled localisers.
func newPollers(c *registry.Container) ([]*localisation.Poller, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	logger := registry.MustResolve(c, KeyLogger)
	clk := registry.MustResolve(c, KeyClock)

	var localisers []localisation.Localiser
	if cfg.Localisers.VR.Enabled {
		localisers = append(localisers, registry.MustResolve(c, KeyVRLocaliser))
	}
	if cfg.Localisers.IR.Enabled {
		localisers = append(localisers, registry.MustResolve(c, KeyIRLocaliser))
	}
	if len(localisers) == 0 {
		return nil, fmt.Errorf("no localiser enabled")
	}

	pollers := make([]*localisation.Poller, 0, len(localisers))
	for _, l := range localisers {
		pollers = append(pollers, localisation.NewPoller(l, cfg.Localisers.PollInterval, clk, logger))
	}
	return pollers, nil
}

func newFusion(c *registry.Container) (*fusion.Engine, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	return fusion.NewEngine(cfg.Fusion, registry.MustResolve(c, KeyLogger)), nil
}

func newDriver(override driver.Driver) func(*registry.Container) (driver.Driver, error) {
	return func(c *registry.Container) (driver.Driver, error) {
		if override != nil {
			return override, nil
		}
		cfg := registry.MustResolve(c, KeyConfig)
		return driver.New(cfg.Body, registry.MustResolve(c, KeyClock), registry.MustResolve(c, KeyLogger))
	}
}

func newTranslator(c *registry.Container) (*navigation.Translator, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	return navigation.NewTranslator(cfg.Navigation, registry.MustResolve(c, KeyKinematics), registry.MustResolve(c, KeyLogger)), nil
}

// newLidar returns a nil tracker when the lidar is not configured.
func newLidar(c *registry.Container) (*lidar.Tracker, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	if cfg.Lidar == nil {
		return nil, nil
	}
	return lidar.NewTracker(cfg.Lidar.ScanTimeout, registry.MustResolve(c, KeyClock)), nil
}

func newHealth(c *registry.Container) (*diagnostic.HealthService, error) {
	return diagnostic.NewHealthService(diagnostic.Sources{
		Pollers:  registry.MustResolve(c, KeyPollers),
		Driver:   registry.MustResolve(c, KeyDriver),
		Snapshot: registry.MustResolve(c, KeySnapshot),
		Director: registry.MustResolve(c, KeyDirector),
	}, registry.MustResolve(c, KeyClock)), nil
}

// newControl resolves the pipeline front to back: localisers, fusion,
// navigation, then the driver.
func newControl(c *registry.Container) (*ControlService, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	pollers := registry.MustResolve(c, KeyPollers)
	engine := registry.MustResolve(c, KeyFusion)
	translator := registry.MustResolve(c, KeyTranslator)
	goals := registry.MustResolve(c, KeyGoals)
	mapper := registry.MustResolve(c, KeyMap)
	drv := registry.MustResolve(c, KeyDriver)

	s := &ControlService{
		cfg:        cfg,
		clock:      registry.MustResolve(c, KeyClock),
		logger:     registry.MustResolve(c, KeyLogger).WithField("component", "control"),
		bus:        registry.MustResolve(c, KeyBus),
		publisher:  registry.MustResolve(c, KeyPublisher),
		topics:     registry.MustResolve(c, KeyTopics),
		director:   registry.MustResolve(c, KeyDirector),
		processor:  registry.MustResolve(c, KeyProcessor),
		pollers:    pollers,
		engine:     engine,
		snapshot:   registry.MustResolve(c, KeySnapshot),
		driver:     drv,
		translator: translator,
		goals:      goals,
		mapper:     mapper,
		lidar:      registry.MustResolve(c, KeyLidar),
		health:     registry.MustResolve(c, KeyHealth),
	}
	if cfg.Localisers.VR.Enabled {
		s.vrFeed = registry.MustResolve(c, KeyVRFeed)
	}
	if cfg.Localisers.IR.Enabled {
		s.irFeed = registry.MustResolve(c, KeyIRFeed)
	}
	return s, nil
}

func newAPI(c *registry.Container) (*api.Server, error) {
	cfg := registry.MustResolve(c, KeyConfig)
	topics := registry.MustResolve(c, KeyTopics)
	return api.NewServer(cfg, api.Deps{
		Snapshot:    registry.MustResolve(c, KeySnapshot),
		Goals:       registry.MustResolve(c, KeyGoals),
		Map:         registry.MustResolve(c, KeyMap),
		Driver:      registry.MustResolve(c, KeyDriver),
		Pollers:     registry.MustResolve(c, KeyPollers),
		Lidar:       registry.MustResolve(c, KeyLidar),
		Health:      registry.MustResolve(c, KeyHealth),
		Director:    registry.MustResolve(c, KeyDirector),
		CanvasTopic: topics.CanvasTouch(),
		Clock:       registry.MustResolve(c, KeyClock),
		Logger:      registry.MustResolve(c, KeyLogger).WithField("component", "api"),
	}), nil
}
