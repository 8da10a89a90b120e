package api

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dmweis/hamilton/domain/diagnostic"
	"github.com/dmweis/hamilton/domain/driver"
	"github.com/dmweis/hamilton/domain/fusion"
	"github.com/dmweis/hamilton/domain/lidar"
	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/config"
	customlog "github.com/dmweis/hamilton/pkg/log"
	"github.com/dmweis/hamilton/pkg/processing"
)

// Deps are the components the HTTP surface reads and writes. Lidar is nil
// when no lidar is configured.
type Deps struct {
	Snapshot    *fusion.Snapshot
	Goals       *navigation.GoalStore
	Map         *navigation.Map
	Driver      driver.Driver
	Pollers     []*localisation.Poller
	Lidar       *lidar.Tracker
	Health      *diagnostic.HealthService
	Director    *processing.MessageDirector
	CanvasTopic string
	Clock       clock.Clock
	Logger      customlog.Logger
}

// Server is the fiber app serving the map UI and health endpoints.
type Server struct {
	app    *fiber.App
	port   int
	logger customlog.Logger
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "hamilton",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "hamilton",
		})
	})
	app.Get("/health", deps.Health.GetHealthHandler)

	h := &handlers{deps: deps}
	v1 := app.Group("/api/v1")
	v1.Get("/pose", h.getPose)
	v1.Get("/driver", h.getDriver)
	v1.Get("/localisers", h.getLocalisers)
	v1.Get("/lidar", h.getLidar)
	v1.Get("/topics", h.getTopics)
	v1.Get("/goal", h.getGoal)
	v1.Post("/goal", h.postGoal)
	v1.Delete("/goal", h.deleteGoal)
	v1.Post("/map/touch", h.postTouch)
	RegisterConfigRoutes(v1, cfg, deps.Logger)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/map", websocket.New(func(conn *websocket.Conn) {
		MapWebSocketHandler(conn, deps)
	}))

	deps.Logger.Infof("Registered HTTP routes")
	return &Server{app: app, port: cfg.Server.HTTPPort, logger: deps.Logger}
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP until Shutdown.
func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Infof("Server starting on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler renders every error as JSON.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
