package pathfind

import (
	"slices"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/grid"
	"go.uber.org/zap"
)

const noParent = -1

// tile is one arena-resident search node.
type tile struct {
	cell   grid.CellIndex
	parent int32
	from   grid.Direction // incoming direction from parent
	open   grid.Direction // directions not yet tried or ruled out
}

// arena holds the tiles of one search. Parents always sit at lower slots.
type arena struct {
	tiles []tile
	slots map[grid.CellIndex]int32
}

func newArena(capacity int) *arena {
	return &arena{
		tiles: make([]tile, 0, capacity),
		slots: make(map[grid.CellIndex]int32, capacity),
	}
}

func (a *arena) full() bool { return len(a.tiles) == cap(a.tiles) }

func (a *arena) add(t tile) int32 {
	slot := int32(len(a.tiles))
	a.tiles = append(a.tiles, t)
	a.slots[t.cell] = slot
	return slot
}

func (a *arena) lookup(c grid.CellIndex) (int32, bool) {
	slot, ok := a.slots[c]
	return slot, ok
}

// trace returns the cells from the root to slot.
func (a *arena) trace(slot int32) []grid.CellIndex {
	var out []grid.CellIndex
	for s := slot; s != noParent; s = a.tiles[s].parent {
		out = append(out, a.tiles[s].cell)
	}
	slices.Reverse(out)
	return out
}

type search struct {
	f      *Finder
	g      *grid.WorldGrid
	goal   grid.Location
	ignore []ecs.EntityID
	arena  *arena
	budget int
}

// run expands tiles until the goal is reached or a bound is hit, and
// returns the slot of the goal tile.
func (s *search) run(from, to grid.CellIndex) (int32, bool) {
	cur := s.arena.add(tile{cell: from, parent: noParent, open: s.openFrom(from, 0)})
	for s.arena.tiles[cur].cell != to {
		t := &s.arena.tiles[cur]
		d, ok := s.cheapest(t)
		if !ok {
			s.budget--
			if s.budget <= 0 {
				s.f.log.Warn("pathfind: backtrack budget exhausted",
					zap.Stringer("from", from), zap.Stringer("to", to),
					zap.Int("budget", s.f.cfg.BacktrackBudget))
				return 0, false
			}
			if t.parent == noParent {
				return 0, false
			}
			s.arena.tiles[t.parent].open &^= t.from
			cur = t.parent
			continue
		}

		t.open &^= d
		next, _ := s.g.Step(t.cell, d)
		if slot, seen := s.arena.lookup(next); seen {
			// Revisit without re-parenting; the tile keeps its own route to
			// the root and never walks straight back here.
			s.arena.tiles[slot].open &^= d.Opposite()
			cur = slot
			continue
		}
		if s.arena.full() {
			s.f.log.Warn("pathfind: tile arena exhausted",
				zap.Stringer("from", from), zap.Stringer("to", to),
				zap.Int("capacity", s.f.cfg.ArenaCapacity))
			return 0, false
		}
		cur = s.arena.add(tile{cell: next, parent: cur, from: d, open: s.openFrom(next, d)})
	}
	return cur, true
}

// openFrom computes the passable directions out of c, excluding the way
// back along incoming.
func (s *search) openFrom(c grid.CellIndex, incoming grid.Direction) grid.Direction {
	var open grid.Direction
	for _, d := range grid.Axes {
		if d&grid.Vertical != 0 && !s.f.cfg.Vertical {
			continue
		}
		if incoming != 0 && d == incoming.Opposite() {
			continue
		}
		n, ok := s.g.Step(c, d)
		if !ok || s.blocked(n) {
			continue
		}
		open |= d
	}
	return open
}

func (s *search) blocked(c grid.CellIndex) bool {
	for id := range s.f.occ.EntitiesAt(c) {
		if slices.Contains(s.ignore, id) {
			continue
		}
		if s.f.blocking(id) {
			return true
		}
	}
	return false
}

// cheapest picks the open direction whose neighbour is closest to the
// goal. Ties go to the earlier direction in grid.Axes.
func (s *search) cheapest(t *tile) (grid.Direction, bool) {
	here := t.cell.Location()
	var (
		best     grid.Direction
		bestCost int64
		found    bool
	)
	for _, d := range grid.Axes {
		if t.open&d == 0 {
			continue
		}
		c := s.cost(d.Apply(here), d)
		if !found || c < bestCost {
			best, bestCost, found = d, c, true
		}
	}
	return best, found
}

func (s *search) cost(l grid.Location, d grid.Direction) int64 {
	dx := int64(l.X - s.goal.X)
	dy := int64(l.Y - s.goal.Y)
	dz := int64(l.Z - s.goal.Z)
	c := dx*dx + dy*dy + dz*dz
	if d&(grid.Forward|grid.Backward) != 0 {
		c += s.f.cfg.ForwardPenalty
	}
	return c
}

// compress drops the interior cells of straight runs.
func compress(cells []grid.CellIndex) []grid.CellIndex {
	if len(cells) <= 2 {
		return slices.Clone(cells)
	}
	out := []grid.CellIndex{cells[0]}
	for i := 1; i < len(cells)-1; i++ {
		in := grid.Between(cells[i-1].Location(), cells[i].Location())
		next := grid.Between(cells[i].Location(), cells[i+1].Location())
		if in != next {
			out = append(out, cells[i])
		}
	}
	return append(out, cells[len(cells)-1])
}
