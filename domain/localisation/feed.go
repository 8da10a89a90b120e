package localisation

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Feed keeps the most recent frame pushed by a bus subscription or a
// multicast listener, stamped with the time it arrived. Frames carrying a
// publish time older than the one held are dropped, so pool workers that
// finish out of order cannot move the feed backwards.
type Feed[T any] struct {
	clock  clock.Clock
	maxAge time.Duration

	mu        sync.RWMutex
	value     T
	received  time.Time
	published time.Time
	has       bool
	count     uint64
	dropped   uint64
}

// NewFeed returns an empty feed. A frame older than maxAge reads as
// unavailable; maxAge <= 0 disables the check.
func NewFeed[T any](clk clock.Clock, maxAge time.Duration) *Feed[T] {
	return &Feed[T]{clock: clk, maxAge: maxAge}
}

// Push stores v unconditionally. Use it for sources without a publish
// time.
func (f *Feed[T]) Push(v T) {
	f.PushAt(v, time.Time{})
}

// PushAt stores v published at the given time. It reports false and keeps
// the held frame when that frame was published later. A zero published
// time is always accepted.
func (f *Feed[T]) PushAt(v T, published time.Time) bool {
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	if !published.IsZero() && published.Before(f.published) {
		f.dropped++
		return false
	}
	f.value = v
	f.received = now
	f.published = published
	f.has = true
	f.count++
	return true
}

// Latest returns the newest frame and its arrival time.
func (f *Feed[T]) Latest() (T, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var zero T
	if !f.has {
		return zero, time.Time{}, fmt.Errorf("no frame received: %w", ErrSensorUnavailable)
	}
	if f.maxAge > 0 {
		if age := f.clock.Since(f.received); age > f.maxAge {
			return zero, f.received, fmt.Errorf("last frame is %v old: %w", age, ErrSensorUnavailable)
		}
	}
	return f.value, f.received, nil
}

// Count is the number of frames accepted so far.
func (f *Feed[T]) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Dropped is the number of frames rejected as older than the held one.
func (f *Feed[T]) Dropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}
