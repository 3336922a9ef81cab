package occupancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/core/job"
	"github.com/l1jgo/worldgrid/internal/grid"
	"go.uber.org/zap"
)

// maxGrowthPasses bounds how often a rebuild may grow the grid again for
// shapes that still did not fit.
const maxGrowthPasses = 2

// ShapeSource resolves the current shape of an entity. It is called from
// worker goroutines during FullReindex and must only read.
type ShapeSource interface {
	Shape(id ecs.EntityID) (grid.Shape, bool)
}

// ShapeFunc adapts a function to ShapeSource.
type ShapeFunc func(id ecs.EntityID) (grid.Shape, bool)

func (f ShapeFunc) Shape(id ecs.EntityID) (grid.Shape, bool) { return f(id) }

// RequestGrowth records that the grid must cover box. The grid itself is
// only resized by the next FullReindex.
func (x *Index) RequestGrowth(box grid.AABB) {
	if x.hasGrowth {
		x.growth = x.growth.Union(box)
		return
	}
	x.growth = box
	x.hasGrowth = true
}

// GrowthPending reports whether a FullReindex is required.
func (x *Index) GrowthPending() bool { return x.hasGrowth }

func (x *Index) applyGrowth() {
	if !x.hasGrowth {
		return
	}
	before := x.grid.Bounds
	*x.grid = x.grid.Grown(x.growth)
	x.hasGrowth = false
	x.log.Info("grid grown",
		zap.Stringer("from_min", before.Min), zap.Stringer("from_max", before.Max),
		zap.Stringer("to_min", x.grid.Bounds.Min), zap.Stringer("to_max", x.grid.Bounds.Max),
		zap.Int16("checksum", x.grid.Checksum))
}

type slot struct {
	cells     []grid.CellIndex
	anchor    grid.CellIndex
	growth    grid.AABB
	state     slotState
	truncated bool
}

type slotState uint8

const (
	slotSkipped slotState = iota
	slotIndexed
	slotOutside
)

// FullReindex applies any pending growth and rebuilds both maps from
// scratch for ids. Cell sets are computed in parallel (each worker writes
// only its own slot) and merged after the barrier. Entities whose shape
// cannot be resolved are dropped from the index. The returned changes list
// every entity that ended up indexed.
func (x *Index) FullReindex(ctx context.Context, ids []ecs.EntityID, src ShapeSource, workers int) ([]Change, error) {
	start := time.Now()
	previous := make(map[ecs.EntityID][]grid.CellIndex, len(x.entities))
	for id, e := range x.entities {
		previous[id] = e.cells
	}

	var slots []slot
	for pass := 0; ; pass++ {
		x.applyGrowth()
		g := x.grid
		slots = make([]slot, len(ids))
		h := job.ForEach(ctx, ids, workers, func(_ context.Context, i int, id ecs.EntityID) error {
			shape, ok := src.Shape(id)
			if !ok {
				return nil
			}
			cells, anchor, err := g.Cells(shape)
			switch {
			case err == nil:
				slots[i] = slot{cells: cells, anchor: anchor, state: slotIndexed}
			case errors.Is(err, grid.ErrCapacityExceeded):
				slots[i] = slot{cells: cells, anchor: anchor, state: slotIndexed, truncated: true}
			case errors.Is(err, grid.ErrNotContained):
				slots[i] = slot{growth: shape.GrowthBounds(g.CellSize), state: slotOutside}
			}
			return nil
		})
		if err := h.Complete(); err != nil {
			return nil, fmt.Errorf("full reindex: %w", err)
		}

		outside := 0
		for _, s := range slots {
			if s.state == slotOutside {
				x.RequestGrowth(s.growth)
				outside++
			}
		}
		if outside == 0 {
			break
		}
		if pass+1 >= maxGrowthPasses {
			x.log.Warn("occupancy: entities still outside grid after growth",
				zap.Int("count", outside))
			x.hasGrowth = false
			break
		}
	}

	x.resetStorage(len(ids))
	changes := make([]Change, 0, len(ids))
	for i, id := range ids {
		s := slots[i]
		if s.state != slotIndexed {
			continue
		}
		if s.truncated {
			x.log.Warn("occupancy: shape truncated",
				zap.Stringer("entity", id), zap.Int("cells", len(s.cells)))
		}
		x.link(id, s.cells)
		x.entities[id] = &entry{cells: s.cells, anchor: s.anchor}
		ch := Change{Entity: id, Current: s.cells}
		ch.Previous = previous[id]
		changes = append(changes, ch)
	}

	x.log.Debug("full reindex",
		zap.Int("entities", len(ids)),
		zap.Int("indexed", len(changes)),
		zap.Int("cells", len(x.cells)),
		zap.Int16("checksum", x.grid.Checksum),
		zap.Duration("took", time.Since(start)))
	return changes, nil
}

// resetStorage clears both maps, doubling their capacity once the load
// passes two thirds.
func (x *Index) resetStorage(n int) {
	if n <= x.capacity*2/3 {
		clear(x.cells)
		clear(x.entities)
		return
	}
	for n > x.capacity*2/3 {
		x.capacity *= 2
	}
	x.cells = make(map[grid.CellIndex]map[ecs.EntityID]struct{}, x.capacity)
	x.entities = make(map[ecs.EntityID]*entry, x.capacity)
}

// Capacity returns the size the maps were last allocated for.
func (x *Index) Capacity() int { return x.capacity }
