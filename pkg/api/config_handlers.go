package api

import (
	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/dmweis/hamilton/pkg/config"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// ConfigHandler serves the loaded configuration. It is read-only; a
// changed file takes effect on restart.
type ConfigHandler struct {
	cfg    *config.AppConfig
	logger customlog.Logger
}

// RegisterConfigRoutes registers GET /config on router.
func RegisterConfigRoutes(router fiber.Router, cfg *config.AppConfig, logger customlog.Logger) {
	h := &ConfigHandler{cfg: cfg, logger: logger}
	router.Get("/config", h.handleGetConfig)
}

// handleGetConfig returns the effective configuration, defaults and
// environment overrides included, as YAML.
func (h *ConfigHandler) handleGetConfig(c *fiber.Ctx) error {
	data, err := yaml.Marshal(h.cfg)
	if err != nil {
		h.logger.Errorf("Failed to marshal configuration: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render configuration")
	}
	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(data)
}
