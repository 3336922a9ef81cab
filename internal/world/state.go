package world

import (
	"fmt"
	"slices"

	"github.com/l1jgo/worldgrid/internal/component"
	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/core/event"
	"github.com/l1jgo/worldgrid/internal/detect"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/occupancy"
	"github.com/l1jgo/worldgrid/internal/pathfind"
	"go.uber.org/zap"
)

// Options sizes the grid core.
type Options struct {
	CellSize      float32
	InitialBounds *grid.AABB // nil starts with an undefined grid
	RangeCapacity int
	Vertical      bool // detector observation policy
	Pathfind      pathfind.Config
}

// State owns the entity stores and the grid core built on top of them.
// Single-goroutine access only (simulation loop); the occupancy and
// detector rebuilds fan out internally and join before returning.
type State struct {
	ECS       *ecs.World
	Bus       *event.Bus
	Index     *occupancy.Index
	Detectors *detect.Module
	Paths     *pathfind.Finder

	Transforms *ecs.PtrComponentStore[component.Transform]
	Occupants  *ecs.PtrComponentStore[component.Occupant]
	Detecting  *ecs.PtrComponentStore[component.Detector]
	Kinds      *ecs.PtrComponentStore[component.Kind]
	Labels     *ecs.PtrComponentStore[component.Label]
	Motions    *ecs.PtrComponentStore[component.Motion]

	byName map[string]ecs.EntityID
	staged map[ecs.EntityID]struct{}

	log *zap.Logger
}

func NewState(opts Options, log *zap.Logger) *State {
	g := grid.NewWorldGrid(opts.CellSize)
	if opts.InitialBounds != nil {
		g = grid.NewWorldGridWithBounds(opts.CellSize, *opts.InitialBounds)
	}
	bus := event.NewBus()
	idx := occupancy.New(g, log)

	s := &State{
		ECS:        ecs.NewWorld(),
		Bus:        bus,
		Index:      idx,
		Detectors:  detect.New(idx, bus, detect.Policy{Vertical: opts.Vertical, RangeCapacity: opts.RangeCapacity}, log),
		Transforms: ecs.NewPtrComponentStore[component.Transform](),
		Occupants:  ecs.NewPtrComponentStore[component.Occupant](),
		Detecting:  ecs.NewPtrComponentStore[component.Detector](),
		Kinds:      ecs.NewPtrComponentStore[component.Kind](),
		Labels:     ecs.NewPtrComponentStore[component.Label](),
		Motions:    ecs.NewPtrComponentStore[component.Motion](),
		byName:     make(map[string]ecs.EntityID),
		staged:     make(map[ecs.EntityID]struct{}),
		log:        log,
	}
	s.Paths = pathfind.New(idx, s.IsObstacle, opts.Pathfind, log)

	reg := s.ECS.Registry()
	reg.Register("transform", s.Transforms)
	reg.Register("occupant", s.Occupants)
	reg.Register("detector", s.Detecting)
	reg.Register("kind", s.Kinds)
	reg.Register("label", s.Labels)
	reg.Register("motion", s.Motions)
	s.ECS.OnDestroy(s.forget)
	return s
}

// Spec describes an entity to spawn.
type Spec struct {
	Name     string
	Kind     string
	Bounds   grid.AABB
	Occupant *component.Occupant
	Detector *component.Detector
	Velocity grid.Vec3 // per tick; zero keeps the entity still
}

// Spawn creates an entity from spec and stages it for indexing.
func (s *State) Spawn(spec Spec) (ecs.EntityID, error) {
	if spec.Name != "" {
		if _, dup := s.byName[spec.Name]; dup {
			return 0, fmt.Errorf("entity %q already exists", spec.Name)
		}
	}
	if spec.Detector != nil && spec.Occupant == nil {
		return 0, fmt.Errorf("entity %q: a detector must also be an occupant", spec.Name)
	}
	id := s.ECS.CreateEntity()
	s.Transforms.Set(id, &component.Transform{Bounds: spec.Bounds})
	if spec.Occupant != nil {
		occ := *spec.Occupant
		s.Occupants.Set(id, &occ)
	}
	if spec.Detector != nil {
		d := *spec.Detector
		s.Detecting.Set(id, &d)
	}
	if spec.Velocity != (grid.Vec3{}) {
		s.Motions.Set(id, &component.Motion{Velocity: spec.Velocity})
	}
	if spec.Kind != "" {
		s.Kinds.Set(id, &component.Kind{Name: spec.Kind})
	}
	if spec.Name != "" {
		s.Labels.Set(id, &component.Label{Name: spec.Name})
		s.byName[spec.Name] = id
	}
	s.Stage(id)
	return id, nil
}

// Move replaces the entity's bounds and stages it.
func (s *State) Move(id ecs.EntityID, bounds grid.AABB) bool {
	t, ok := s.Transforms.Get(id)
	if !ok {
		return false
	}
	t.Bounds = bounds
	s.Stage(id)
	return true
}

// Translate shifts the entity's bounds by delta.
func (s *State) Translate(id ecs.EntityID, delta grid.Vec3) bool {
	t, ok := s.Transforms.Get(id)
	if !ok {
		return false
	}
	return s.Move(id, grid.AABB{Min: t.Bounds.Min.Add(delta), Max: t.Bounds.Max.Add(delta)})
}

// Stage queues id for the next occupancy pass.
func (s *State) Stage(id ecs.EntityID) {
	if s.ECS.Alive(id) {
		s.staged[id] = struct{}{}
	}
}

// Despawn queues id for destruction at the end of the tick.
func (s *State) Despawn(id ecs.EntityID) {
	if s.ECS.Alive(id) {
		s.ECS.MarkForDestruction(id)
	}
}

// DrainStaged returns the staged entities in ascending order and empties
// the queue.
func (s *State) DrainStaged() []ecs.EntityID {
	ids := make([]ecs.EntityID, 0, len(s.staged))
	for id := range s.staged {
		ids = append(ids, id)
	}
	clear(s.staged)
	slices.Sort(ids)
	return ids
}

// StagedLen returns the number of entities waiting for the next tick.
func (s *State) StagedLen() int { return len(s.staged) }

// forget runs from the destroy hook while components are still readable.
func (s *State) forget(id ecs.EntityID) {
	s.Detectors.Remove(id, true)
	if cells := s.Index.Remove(id); cells != nil {
		event.Emit(s.Bus, event.LocationChanged{Entity: id, Previous: cells})
	}
	if l, ok := s.Labels.Get(id); ok {
		delete(s.byName, l.Name)
	}
	delete(s.staged, id)
}

// Shape resolves the grid shape of an occupant. Safe to call from worker
// goroutines while the stores are not written.
func (s *State) Shape(id ecs.EntityID) (grid.Shape, bool) {
	t, ok := s.Transforms.Get(id)
	if !ok {
		return grid.Shape{}, false
	}
	occ, ok := s.Occupants.Get(id)
	if !ok {
		return grid.Shape{}, false
	}
	return grid.Shape{Bounds: t.Bounds, Footprint: occ.Footprint}, true
}

// IsObstacle reports whether id blocks pathfinding.
func (s *State) IsObstacle(id ecs.EntityID) bool {
	occ, ok := s.Occupants.Get(id)
	return ok && occ.Obstacle
}

// KindOf returns the kind tag of id, or "".
func (s *State) KindOf(id ecs.EntityID) string {
	if k, ok := s.Kinds.Get(id); ok {
		return k.Name
	}
	return ""
}

// CountByKind tallies live entities per kind tag.
func (s *State) CountByKind() map[string]int {
	out := make(map[string]int)
	for _, k := range s.Kinds.All() {
		out[k.Name]++
	}
	return out
}

// NameOf returns the scene name of id, or its numeric form.
func (s *State) NameOf(id ecs.EntityID) string {
	if l, ok := s.Labels.Get(id); ok {
		return l.Name
	}
	return id.String()
}

// ByName looks up an entity by its scene name.
func (s *State) ByName(name string) (ecs.EntityID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// Position returns the centre of id's bounds.
func (s *State) Position(id ecs.EntityID) (grid.Vec3, bool) {
	t, ok := s.Transforms.Get(id)
	if !ok {
		return grid.Vec3{}, false
	}
	return t.Bounds.Center(), true
}

// FindPath routes mover's position to a world position, ignoring mover's
// own occupancy.
func (s *State) FindPath(mover ecs.EntityID, to grid.Vec3) (pathfind.Path, bool) {
	from, ok := s.Position(mover)
	if !ok {
		return pathfind.Path{}, false
	}
	return s.Paths.Find(from, to, pathfind.Options{Ignore: []ecs.EntityID{mover}})
}

// Overlap forwards a cursor highlight for cell. The core does not act on
// it; subscribers receive it after the next event dispatch.
func (s *State) Overlap(id ecs.EntityID, cell grid.CellIndex, entering bool) {
	event.Emit(s.Bus, event.CellOverlap{Entity: id, Cell: cell, Entering: entering})
}
