package navigation

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmweis/hamilton/pkg/geometry"
)

// Goal is a navigation target in floor meters. A nil Theta means any
// final heading is acceptable.
type Goal struct {
	ID        uuid.UUID `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Theta     *float64  `json:"theta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewGoal(x, y float64, theta *float64, now time.Time) Goal {
	if theta != nil {
		t := geometry.NormalizeAngle(*theta)
		theta = &t
	}
	return Goal{ID: uuid.New(), X: x, Y: y, Theta: theta, CreatedAt: now}
}

// Valid rejects goals with non-finite coordinates.
func (g Goal) Valid() bool {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	if g.Theta != nil && !finite(*g.Theta) {
		return false
	}
	return finite(g.X) && finite(g.Y)
}

// GoalStore holds the active goal. Writers are the bus, HTTP and
// WebSocket handlers; the control cycle reads it.
type GoalStore struct {
	mu     sync.Mutex
	goal   *Goal
	newest time.Time
}

// Set makes g the active goal.
func (s *GoalStore) Set(g Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goal = &g
	if g.CreatedAt.After(s.newest) {
		s.newest = g.CreatedAt
	}
}

// SetIfNewer makes g the active goal unless a goal created later was
// already set, even one that has since been cleared.
func (s *GoalStore) SetIfNewer(g Goal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.Before(s.newest) {
		return false
	}
	s.goal = &g
	s.newest = g.CreatedAt
	return true
}

func (s *GoalStore) Clear() {
	s.mu.Lock()
	s.goal = nil
	s.mu.Unlock()
}

// ClearIf clears the active goal only if it is still the goal with id.
func (s *GoalStore) ClearIf(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goal == nil || s.goal.ID != id {
		return false
	}
	s.goal = nil
	return true
}

// Get returns a copy of the active goal or nil.
func (s *GoalStore) Get() *Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goal == nil {
		return nil
	}
	cp := *s.goal
	return &cp
}
