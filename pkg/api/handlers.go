package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dmweis/hamilton/domain/localisation"
	"github.com/dmweis/hamilton/domain/navigation"
	"github.com/dmweis/hamilton/pkg/devices"
)

type handlers struct {
	deps Deps
}

func (h *handlers) getPose(c *fiber.Ctx) error {
	est, ok := h.deps.Snapshot.Load()
	if !ok {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no pose estimate yet")
	}
	return c.JSON(fiber.Map{
		"status":   "success",
		"estimate": est,
	})
}

func (h *handlers) getDriver(c *fiber.Ctx) error {
	state, err := h.deps.Driver.ReadState(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"type":   h.deps.Driver.Type(),
		"state":  state,
	})
}

type localiserView struct {
	localisation.Status
	Devices []devices.Source `json:"devices"`
}

func (h *handlers) getLocalisers(c *fiber.Ctx) error {
	views := make([]localiserView, 0, len(h.deps.Pollers))
	for _, p := range h.deps.Pollers {
		views = append(views, localiserView{
			Status:  p.Status(),
			Devices: p.Localiser().Devices(),
		})
	}
	return c.JSON(fiber.Map{
		"status":     "success",
		"localisers": views,
	})
}

func (h *handlers) getLidar(c *fiber.Ctx) error {
	if h.deps.Lidar == nil {
		return fiber.NewError(fiber.StatusNotFound, "lidar is not configured")
	}
	scan, err := h.deps.Lidar.Latest()
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"scan":   scan,
	})
}

func (h *handlers) getTopics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "success",
		"topics": h.deps.Director.Topics(),
		"pools":  h.deps.Director.GetPoolMetrics(),
	})
}

func (h *handlers) getGoal(c *fiber.Ctx) error {
	goal := h.deps.Goals.Get()
	if goal == nil {
		return fiber.NewError(fiber.StatusNotFound, "no active goal")
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"goal":   goal,
	})
}

func (h *handlers) postGoal(c *fiber.Ctx) error {
	var req GoalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid goal body: "+err.Error())
	}
	if req.X == nil || req.Y == nil {
		return fiber.NewError(fiber.StatusBadRequest, "goal requires x and y")
	}
	goal := navigation.NewGoal(*req.X, *req.Y, req.Theta, h.deps.Clock.Now())
	if !goal.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "goal coordinates must be finite")
	}
	h.deps.Goals.Set(goal)
	h.deps.Logger.Infof("Goal %s set over HTTP at (%.3f, %.3f)", goal.ID, goal.X, goal.Y)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"goal":   goal,
	})
}

func (h *handlers) deleteGoal(c *fiber.Ctx) error {
	h.deps.Goals.Clear()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) postTouch(c *fiber.Ctx) error {
	var touch navigation.CanvasTouch
	if err := c.BodyParser(&touch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid touch body: "+err.Error())
	}
	goal, err := h.deps.Map.CanvasTouchToGoal(touch, h.deps.Clock.Now())
	if errors.Is(err, navigation.ErrInvalidTouch) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	} else if err != nil {
		return err
	}
	h.deps.Goals.Set(goal)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"goal":   goal,
	})
}

