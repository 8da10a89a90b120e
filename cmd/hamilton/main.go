package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dmweis/hamilton/pkg/config"
	customlog "github.com/dmweis/hamilton/pkg/log"
	"github.com/dmweis/hamilton/services"
)

func main() {
	configPath := flag.String("config", "hamilton.yaml", "path to the configuration file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	}
	logger, err := customlog.NewLogrusLogger(level, cfg.Logging.LogPath)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("Starting hamilton with %s driver on %s bus", cfg.Body.DriverType, cfg.Bus.Transport)

	app, err := services.Build(cfg, logger, clock.New())
	if err != nil {
		logger.Fatalf("Failed to assemble components: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.API.Listen(); err != nil && ctx.Err() == nil {
			logger.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	runErr := app.Control.Run(ctx)
	logger.Infof("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.API.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}

	if err := multierr.Append(runErr, app.Close()); err != nil {
		logger.Errorf("Shutdown finished with errors: %v", err)
		os.Exit(1)
	}
	logger.Infof("hamilton exited properly")
}
