// Package occupancy maps grid cells to the entities covering them and back.
//
// The two maps are mirror images: (cell, entity) is in the cell map exactly
// when (entity, cell) is in the entity map. Incremental Add/Remove run on the
// simulation goroutine only; FullReindex fans the per-entity cell computation
// out to workers and merges behind a single barrier.
package occupancy

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/grid"
	"go.uber.org/zap"
)

const initialCapacity = 256

// Change describes an entity's cell set before and after an update.
type Change struct {
	Entity   ecs.EntityID
	Previous []grid.CellIndex
	Current  []grid.CellIndex
}

// LocationChanged reports whether the cell set differs.
func (c Change) LocationChanged() bool {
	return !slices.Equal(c.Previous, c.Current)
}

type entry struct {
	cells  []grid.CellIndex
	anchor grid.CellIndex
}

// Index is the cell↔entity occupancy index.
type Index struct {
	grid     *grid.WorldGrid
	cells    map[grid.CellIndex]map[ecs.EntityID]struct{}
	entities map[ecs.EntityID]*entry
	capacity int

	growth    grid.AABB
	hasGrowth bool

	log *zap.Logger
}

// New creates an empty index over g. The index is the only writer of g.
func New(g *grid.WorldGrid, log *zap.Logger) *Index {
	return &Index{
		grid:     g,
		cells:    make(map[grid.CellIndex]map[ecs.EntityID]struct{}, initialCapacity),
		entities: make(map[ecs.EntityID]*entry, initialCapacity),
		capacity: initialCapacity,
		log:      log,
	}
}

// Grid returns the grid the index is built against.
func (x *Index) Grid() *grid.WorldGrid { return x.grid }

// Len returns the number of indexed entities.
func (x *Index) Len() int { return len(x.entities) }

// OccupiedCells returns the number of cells with at least one occupant.
func (x *Index) OccupiedCells() int { return len(x.cells) }

// Add computes the cells of shape and records id in each of them,
// replacing any previous placement. It returns false without touching the
// index when the shape is not inside the grid; the caller then requests
// growth and retries through FullReindex.
func (x *Index) Add(id ecs.EntityID, shape grid.Shape) (Change, bool) {
	cells, anchor, err := x.grid.Cells(shape)
	if errors.Is(err, grid.ErrCapacityExceeded) {
		x.log.Warn("occupancy: shape truncated",
			zap.Stringer("entity", id), zap.Int("cells", len(cells)), zap.Error(err))
		err = nil
	}
	if err != nil {
		if !errors.Is(err, grid.ErrNotContained) {
			x.log.Warn("occupancy: cannot index entity",
				zap.Stringer("entity", id), zap.Error(err))
		}
		return Change{Entity: id}, false
	}

	ch := Change{Entity: id, Current: cells}
	prev := x.entities[id]
	if prev != nil {
		ch.Previous = prev.cells
		if !ch.LocationChanged() {
			prev.anchor = anchor
			return ch, true
		}
		x.unlink(id, prev.cells)
	}
	x.link(id, cells)
	x.entities[id] = &entry{cells: cells, anchor: anchor}
	return ch, true
}

// Remove drops every cell membership of id. Removing an unknown entity is
// a no-op. It returns the cells the entity occupied.
func (x *Index) Remove(id ecs.EntityID) []grid.CellIndex {
	e := x.entities[id]
	if e == nil {
		return nil
	}
	x.unlink(id, e.cells)
	delete(x.entities, id)
	return e.cells
}

func (x *Index) link(id ecs.EntityID, cells []grid.CellIndex) {
	for _, c := range cells {
		bucket := x.cells[c]
		if bucket == nil {
			bucket = make(map[ecs.EntityID]struct{}, 1)
			x.cells[c] = bucket
		}
		bucket[id] = struct{}{}
	}
}

func (x *Index) unlink(id ecs.EntityID, cells []grid.CellIndex) {
	for _, c := range cells {
		bucket := x.cells[c]
		if bucket == nil {
			continue
		}
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(x.cells, c)
		}
	}
}

// EntitiesAt yields the occupants of c. Indices from an older grid
// generation yield nothing.
func (x *Index) EntitiesAt(c grid.CellIndex) iter.Seq[ecs.EntityID] {
	return func(yield func(ecs.EntityID) bool) {
		if !x.checkCurrent(c) {
			return
		}
		for id := range x.cells[c] {
			if !yield(id) {
				return
			}
		}
	}
}

// Occupants returns the occupants of c in ascending ID order.
func (x *Index) Occupants(c grid.CellIndex) []ecs.EntityID {
	ids := slices.Collect(x.EntitiesAt(c))
	slices.Sort(ids)
	return ids
}

// Occupied reports whether any entity covers c.
func (x *Index) Occupied(c grid.CellIndex) bool {
	return x.checkCurrent(c) && len(x.cells[c]) > 0
}

// CellsOf returns a copy of the cells id occupies, or nil if it is not indexed.
func (x *Index) CellsOf(id ecs.EntityID) []grid.CellIndex {
	e := x.entities[id]
	if e == nil {
		return nil
	}
	return slices.Clone(e.cells)
}

// Anchor returns the cell containing the centre of id's shape.
func (x *Index) Anchor(id ecs.EntityID) (grid.CellIndex, bool) {
	e := x.entities[id]
	if e == nil {
		return grid.CellIndex{}, false
	}
	return e.anchor, true
}

// Contains reports whether id is indexed.
func (x *Index) Contains(id ecs.EntityID) bool {
	_, ok := x.entities[id]
	return ok
}

func (x *Index) checkCurrent(c grid.CellIndex) bool {
	if c.IsEmpty() {
		return false
	}
	if !x.grid.Valid(c) {
		x.log.Warn("occupancy: stale cell index refused",
			zap.Stringer("cell", c), zap.Int16("checksum", x.grid.Checksum))
		return false
	}
	return true
}

// Verify checks the mirror invariant between the two maps.
func (x *Index) Verify() error {
	for id, e := range x.entities {
		for _, c := range e.cells {
			if _, ok := x.cells[c][id]; !ok {
				return fmt.Errorf("entity %s lists %s but the cell does not list it", id, c)
			}
		}
	}
	for c, bucket := range x.cells {
		if len(bucket) == 0 {
			return fmt.Errorf("empty bucket kept for %s", c)
		}
		for id := range bucket {
			e := x.entities[id]
			if e == nil || !slices.Contains(e.cells, c) {
				return fmt.Errorf("cell %s lists %s but the entity does not list it", c, id)
			}
		}
	}
	return nil
}
