package fusion

import "sync/atomic"

// Snapshot shares the latest estimate with readers outside the control
// cycle. Stores replace the whole value.
type Snapshot struct {
	p atomic.Pointer[Estimate]
}

func (s *Snapshot) Store(e Estimate) {
	s.p.Store(&e)
}

// Load returns the latest estimate; ok is false before the first cycle.
func (s *Snapshot) Load() (Estimate, bool) {
	e := s.p.Load()
	if e == nil {
		return Estimate{}, false
	}
	return *e, true
}
