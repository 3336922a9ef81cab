package system

import (
	"slices"
	"time"
)

// Runner executes systems in phase order each tick and remembers how long
// each phase took on the last tick.
type Runner struct {
	systems []System
	sorted  bool
	last    [phaseCount]time.Duration
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

// Len returns the number of registered systems.
func (r *Runner) Len() int { return len(r.systems) }

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once and returns the wall time spent.
func (r *Runner) Tick(dt time.Duration) time.Duration {
	r.ensureSorted()
	clear(r.last[:])
	start := time.Now()
	for _, s := range r.systems {
		t0 := time.Now()
		s.Update(dt)
		if p := s.Phase(); p >= 0 && p < phaseCount {
			r.last[p] += time.Since(t0)
		}
	}
	return time.Since(start)
}

// TickPhase runs only the systems registered for phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// LastTick returns the time each phase took during the last Tick.
func (r *Runner) LastTick() map[Phase]time.Duration {
	out := make(map[Phase]time.Duration, phaseCount)
	for p, d := range r.last {
		if d > 0 {
			out[Phase(p)] = d
		}
	}
	return out
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		slices.SortStableFunc(r.systems, func(a, b System) int {
			return int(a.Phase()) - int(b.Phase())
		})
		r.sorted = true
	}
}
