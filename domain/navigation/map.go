package navigation

import (
	"errors"
	"math"
	"time"

	"github.com/dmweis/hamilton/pkg/config"
)

var ErrInvalidTouch = errors.New("invalid canvas touch")

// CanvasTouch is a tap on the map UI canvas in pixels. A drag adds an end
// point whose direction sets the goal heading.
type CanvasTouch struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	EndX   *float64 `json:"end_x,omitempty"`
	EndY   *float64 `json:"end_y,omitempty"`
}

// Map places the canvas over the room. Canvas x runs from the front left
// corner's Y to the rear right corner's Y; canvas y runs along room X.
type Map struct {
	frontLeft config.Point
	rearRight config.Point
}

func NewMap(cfg config.MapConfig) *Map {
	return &Map{frontLeft: cfg.FrontLeft, rearRight: cfg.RearRight}
}

// Size is the room extent in meters along X and Y.
func (m *Map) Size() (float64, float64) {
	return math.Abs(m.frontLeft.X - m.rearRight.X), math.Abs(m.frontLeft.Y - m.rearRight.Y)
}

func (m *Map) toRoom(t CanvasTouch, cx, cy float64) (float64, float64) {
	x := linearMap(cy, 0, t.Height, m.frontLeft.X, m.rearRight.X)
	y := linearMap(cx, 0, t.Width, m.frontLeft.Y, m.rearRight.Y)
	return x, y
}

// CanvasTouchToGoal converts a touch into a goal.
func (m *Map) CanvasTouchToGoal(t CanvasTouch, now time.Time) (Goal, error) {
	if t.Width <= 0 || t.Height <= 0 {
		return Goal{}, ErrInvalidTouch
	}
	x, y := m.toRoom(t, t.X, t.Y)

	var theta *float64
	if t.EndX != nil && t.EndY != nil {
		ex, ey := m.toRoom(t, *t.EndX, *t.EndY)
		if dx, dy := ex-x, ey-y; dx != 0 || dy != 0 {
			h := math.Atan2(dy, dx)
			theta = &h
		}
	}
	g := NewGoal(x, y, theta, now)
	if !g.Valid() {
		return Goal{}, ErrInvalidTouch
	}
	return g, nil
}

func linearMap(value, inMin, inMax, outMin, outMax float64) float64 {
	return (value-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}
