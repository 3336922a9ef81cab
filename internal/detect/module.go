// Package detect keeps the bidirectional "who detects whom" bookkeeping on
// top of the occupancy index.
//
// A detector observes a square of cells around its anchor cell. Every
// occupant of an observed cell that passes the detector's condition is
// detected; the module mirrors each relation in a target→observer map so
// that moving targets can be re-checked without scanning all detectors.
// All methods run on the simulation goroutine, except the range computation
// inside RebuildObservers which fans out to workers.
package detect

import (
	"errors"
	"fmt"
	"slices"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/core/event"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/occupancy"
	"go.uber.org/zap"
)

// Settings configures one detector.
type Settings struct {
	// Radius in cells around the anchor cell.
	Radius int32
	// Condition must hold for a target to be detected. Nil accepts all.
	Condition Predicate
	// RemovalCondition must hold for an unsupported relation to be dropped.
	// Nil always allows removal.
	RemovalCondition Predicate
}

// Policy holds the module-wide observation policy.
type Policy struct {
	// Vertical extends observation to the layers above and below.
	Vertical bool
	// RangeCapacity caps the observed cells per detector.
	RangeCapacity int
}

type set = map[ecs.EntityID]struct{}

type state struct {
	Settings
	observe  []grid.CellIndex
	detected set
}

// Module is the detector/observation subsystem.
type Module struct {
	occ    *occupancy.Index
	bus    *event.Bus
	policy Policy

	states     map[ecs.EntityID]*state
	observers  map[grid.CellIndex]set
	targetedBy map[ecs.EntityID]set

	log *zap.Logger
}

// New creates a module reading occupancy from occ and posting Detected
// events to bus (nil disables posting).
func New(occ *occupancy.Index, bus *event.Bus, policy Policy, log *zap.Logger) *Module {
	if policy.RangeCapacity <= 0 {
		policy.RangeCapacity = grid.DefaultRangeCapacity
	}
	return &Module{
		occ:        occ,
		bus:        bus,
		policy:     policy,
		states:     make(map[ecs.EntityID]*state),
		observers:  make(map[grid.CellIndex]set),
		targetedBy: make(map[ecs.EntityID]set),
		log:        log,
	}
}

// Register makes id a detector or updates its settings. The new settings
// take effect on the next UpdateDetection.
func (m *Module) Register(id ecs.EntityID, s Settings) {
	if st := m.states[id]; st != nil {
		st.Settings = s
		return
	}
	m.states[id] = &state{Settings: s, detected: make(set)}
}

// IsDetector reports whether id is registered.
func (m *Module) IsDetector(id ecs.EntityID) bool {
	_, ok := m.states[id]
	return ok
}

// Detectors returns every registered detector in ascending order.
func (m *Module) Detectors() []ecs.EntityID {
	ids := make([]ecs.EntityID, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// UpdateDetection recomputes what detector id observes and detects. An
// entity that is not a detector or not indexed yet is ignored.
func (m *Module) UpdateDetection(id ecs.EntityID, post bool) {
	st := m.states[id]
	if st == nil {
		return
	}
	anchor, ok := m.occ.Anchor(id)
	if !ok {
		return
	}
	m.unobserve(id, st)
	cells, err := m.observedRange(id, anchor, st.Radius)
	if err != nil {
		return
	}
	m.observe(id, st, cells)
	m.detect(id, st, post)
}

func (m *Module) observedRange(id ecs.EntityID, anchor grid.CellIndex, radius int32) ([]grid.CellIndex, error) {
	cells, err := m.occ.Grid().Range(anchor, radius, m.policy.Vertical, m.policy.RangeCapacity)
	switch {
	case err == nil:
		return cells, nil
	case errors.Is(err, grid.ErrCapacityExceeded):
		m.log.Warn("detect: observed range truncated",
			zap.Stringer("detector", id), zap.Int32("radius", radius),
			zap.Int("capacity", m.policy.RangeCapacity))
		return cells, nil
	default:
		m.log.Warn("detect: cannot compute observed range",
			zap.Stringer("detector", id), zap.Error(err))
		return nil, err
	}
}

func (m *Module) observe(id ecs.EntityID, st *state, cells []grid.CellIndex) {
	st.observe = cells
	for _, c := range cells {
		obs := m.observers[c]
		if obs == nil {
			obs = make(set, 1)
			m.observers[c] = obs
		}
		obs[id] = struct{}{}
	}
}

func (m *Module) unobserve(id ecs.EntityID, st *state) {
	for _, c := range st.observe {
		obs := m.observers[c]
		if obs == nil {
			continue
		}
		delete(obs, id)
		if len(obs) == 0 {
			delete(m.observers, c)
		}
	}
	st.observe = nil
}

// detect evaluates the occupants of the observed cells and reconciles the
// detected set.
func (m *Module) detect(id ecs.EntityID, st *state, post bool) {
	evaluated := make(map[ecs.EntityID]bool)
	for _, c := range st.observe {
		for target := range m.occ.EntitiesAt(c) {
			if target == id {
				continue
			}
			if _, done := evaluated[target]; done {
				continue
			}
			pass := m.evaluate(st.Condition, id, target)
			evaluated[target] = pass
			if pass {
				if _, known := st.detected[target]; !known {
					m.link(id, st, target, post)
				}
			}
		}
	}
	for _, target := range sortedKeys(st.detected) {
		if evaluated[target] {
			continue
		}
		if m.mayRemove(st, id, target) {
			m.unlink(id, st, target, post)
		}
	}
}

// UpdateDetectedPosition re-checks every detector observing the cells of
// target after target moved, adding new relations and dropping those its
// current cells no longer support.
func (m *Module) UpdateDetectedPosition(target ecs.EntityID, post bool) {
	cells := m.occ.CellsOf(target)
	if cells == nil {
		return
	}
	supported := make(map[ecs.EntityID]bool)
	for _, c := range cells {
		for _, d := range sortedKeys(m.observers[c]) {
			if d == target {
				continue
			}
			if _, done := supported[d]; done {
				continue
			}
			st := m.states[d]
			if st == nil {
				continue
			}
			pass := m.evaluate(st.Condition, d, target)
			supported[d] = pass
			if pass {
				if _, known := st.detected[target]; !known {
					m.link(d, st, target, post)
				}
			}
		}
	}
	for _, d := range sortedKeys(m.targetedBy[target]) {
		if supported[d] {
			continue
		}
		st := m.states[d]
		if m.mayRemove(st, d, target) {
			m.unlink(d, st, target, post)
		}
	}
}

// Remove forgets id both as a detector and as a target.
func (m *Module) Remove(id ecs.EntityID, post bool) {
	if st := m.states[id]; st != nil {
		m.unobserve(id, st)
		for _, target := range sortedKeys(st.detected) {
			m.unlink(id, st, target, post)
		}
		delete(m.states, id)
	}
	for _, d := range sortedKeys(m.targetedBy[id]) {
		m.unlink(d, m.states[d], id, post)
	}
}

func (m *Module) evaluate(p Predicate, observer, target ecs.EntityID) bool {
	if p == nil {
		return true
	}
	ok, err := p.Evaluate(observer, target)
	if err != nil {
		m.log.Warn("detect: predicate failed, skipping candidate",
			zap.Stringer("observer", observer), zap.Stringer("target", target), zap.Error(err))
		return false
	}
	return ok
}

func (m *Module) mayRemove(st *state, observer, target ecs.EntityID) bool {
	if st == nil || st.RemovalCondition == nil {
		return true
	}
	return m.evaluate(st.RemovalCondition, observer, target)
}

func (m *Module) link(observer ecs.EntityID, st *state, target ecs.EntityID, post bool) {
	st.detected[target] = struct{}{}
	by := m.targetedBy[target]
	if by == nil {
		by = make(set, 1)
		m.targetedBy[target] = by
	}
	by[observer] = struct{}{}
	if post && m.bus != nil {
		event.Emit(m.bus, event.Detected{Observer: observer, Target: target, Detected: true})
	}
}

func (m *Module) unlink(observer ecs.EntityID, st *state, target ecs.EntityID, post bool) {
	if st != nil {
		delete(st.detected, target)
	}
	if by := m.targetedBy[target]; by != nil {
		delete(by, observer)
		if len(by) == 0 {
			delete(m.targetedBy, target)
		}
	}
	if post && m.bus != nil {
		event.Emit(m.bus, event.Detected{Observer: observer, Target: target, Detected: false})
	}
}

// Detected returns the targets id currently detects.
func (m *Module) Detected(id ecs.EntityID) []ecs.EntityID {
	st := m.states[id]
	if st == nil {
		return nil
	}
	return sortedKeys(st.detected)
}

// TargetedBy returns the detectors currently detecting id.
func (m *Module) TargetedBy(id ecs.EntityID) []ecs.EntityID {
	return sortedKeys(m.targetedBy[id])
}

// ObserversAt returns the detectors observing c.
func (m *Module) ObserversAt(c grid.CellIndex) []ecs.EntityID {
	return sortedKeys(m.observers[c])
}

// Observed returns the cells detector id observes.
func (m *Module) Observed(id ecs.EntityID) []grid.CellIndex {
	st := m.states[id]
	if st == nil {
		return nil
	}
	return slices.Clone(st.observe)
}

// Verify checks that detected and targetedBy mirror each other and that
// the observer map matches every detector's observed cells.
func (m *Module) Verify() error {
	for d, st := range m.states {
		for t := range st.detected {
			if _, ok := m.targetedBy[t][d]; !ok {
				return fmt.Errorf("%s detects %s but is missing from its targetedBy", d, t)
			}
		}
		for _, c := range st.observe {
			if _, ok := m.observers[c][d]; !ok {
				return fmt.Errorf("%s observes %s but the cell does not list it", d, c)
			}
		}
	}
	for t, by := range m.targetedBy {
		if len(by) == 0 {
			return fmt.Errorf("empty targetedBy kept for %s", t)
		}
		for d := range by {
			st := m.states[d]
			if st == nil {
				return fmt.Errorf("%s targeted by unknown detector %s", t, d)
			}
			if _, ok := st.detected[t]; !ok {
				return fmt.Errorf("%s lists %s in targetedBy but %s does not detect it", t, d, d)
			}
		}
	}
	for c, obs := range m.observers {
		for d := range obs {
			st := m.states[d]
			if st == nil || !slices.Contains(st.observe, c) {
				return fmt.Errorf("cell %s lists observer %s that does not observe it", c, d)
			}
		}
	}
	return nil
}

func sortedKeys(s set) []ecs.EntityID {
	if len(s) == 0 {
		return nil
	}
	ids := make([]ecs.EntityID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
