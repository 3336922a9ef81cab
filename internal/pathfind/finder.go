// Package pathfind finds routes between cells with a bounded greedy tile
// expansion that backtracks out of dead ends.
//
// A search never allocates more than Config.ArenaCapacity tiles and never
// backtracks more than Config.BacktrackBudget times. Running out of either
// ends the search with "no path"; it is not an error.
package pathfind

import (
	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/occupancy"
	"go.uber.org/zap"
)

const (
	DefaultArenaCapacity   = 512
	DefaultBacktrackBudget = 32
	DefaultForwardPenalty  = 1
)

// Config bounds and tunes the search.
type Config struct {
	ArenaCapacity   int
	BacktrackBudget int
	// ForwardPenalty is added to the cost of Forward/Backward moves.
	ForwardPenalty int64
	// Vertical allows Up/Down moves.
	Vertical bool
}

// DefaultConfig returns the stock bounds.
func DefaultConfig() Config {
	return Config{
		ArenaCapacity:   DefaultArenaCapacity,
		BacktrackBudget: DefaultBacktrackBudget,
		ForwardPenalty:  DefaultForwardPenalty,
	}
}

// Options tune one query.
type Options struct {
	// Ignore lists entities whose occupancy never blocks, usually the mover.
	Ignore []ecs.EntityID
}

// Path is a found route. Cells holds every cell from start to goal, one
// axis step apart; Waypoints keeps only the ends of straight runs.
type Path struct {
	Cells     []grid.CellIndex
	Waypoints []grid.CellIndex
}

// Len is the number of cells walked, start and goal included.
func (p Path) Len() int { return len(p.Cells) }

// Finder answers path queries against an occupancy index. It keeps no state
// between calls and is read-only with respect to the index.
type Finder struct {
	occ      *occupancy.Index
	blocking func(ecs.EntityID) bool
	cfg      Config
	log      *zap.Logger
}

// New creates a finder. blocking reports whether an occupant is an
// obstacle; nil treats every occupant as one.
func New(occ *occupancy.Index, blocking func(ecs.EntityID) bool, cfg Config, log *zap.Logger) *Finder {
	if cfg.ArenaCapacity <= 0 {
		cfg.ArenaCapacity = DefaultArenaCapacity
	}
	if cfg.BacktrackBudget <= 0 {
		cfg.BacktrackBudget = DefaultBacktrackBudget
	}
	if cfg.ForwardPenalty < 0 {
		cfg.ForwardPenalty = 0
	}
	if blocking == nil {
		blocking = func(ecs.EntityID) bool { return true }
	}
	return &Finder{occ: occ, blocking: blocking, cfg: cfg, log: log}
}

// Find resolves world positions to cells and searches between them.
func (f *Finder) Find(from, to grid.Vec3, opts Options) (Path, bool) {
	g := f.occ.Grid()
	a, err := g.IndexAt(from)
	if err != nil || !g.ContainsPosition(from) {
		f.log.Warn("pathfind: start outside the grid", zap.Stringer("from", from))
		return Path{}, false
	}
	b, err := g.IndexAt(to)
	if err != nil || !g.ContainsPosition(to) {
		f.log.Warn("pathfind: goal outside the grid", zap.Stringer("to", to))
		return Path{}, false
	}
	return f.HasPath(a, b, opts)
}

// HasPath searches from one cell to another. The start cell may be
// occupied; every other cell on the route is free of blocking occupants.
func (f *Finder) HasPath(from, to grid.CellIndex, opts Options) (Path, bool) {
	g := f.occ.Grid()
	if !g.ContainsIndex(from) || !g.ContainsIndex(to) {
		f.log.Warn("pathfind: endpoint not valid for the current grid",
			zap.Stringer("from", from), zap.Stringer("to", to))
		return Path{}, false
	}
	s := search{
		f:      f,
		g:      g,
		goal:   to.Location(),
		ignore: opts.Ignore,
		arena:  newArena(f.cfg.ArenaCapacity),
		budget: f.cfg.BacktrackBudget,
	}
	last, ok := s.run(from, to)
	if !ok {
		return Path{}, false
	}
	cells := s.arena.trace(last)
	return Path{Cells: cells, Waypoints: compress(cells)}, true
}
