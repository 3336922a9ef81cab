package system

import (
	"context"
	"time"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/core/event"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/world"
	"go.uber.org/zap"
)

// Pass is what one occupancy pass did, read by the detection system in the
// same tick.
type Pass struct {
	Staged  []ecs.EntityID // every entity drained from the staging queue
	Moved   []ecs.EntityID // entities whose cell set changed incrementally
	Rebuilt bool           // a full reindex ran; all cell indices are new
}

// OccupancySystem drains the staging queue into the occupancy index. Shapes
// that do not fit the grid request growth; if any did, the grid grows and
// the whole index is rebuilt in parallel before the phase ends.
// Phase 1 (PreUpdate).
type OccupancySystem struct {
	world   *world.State
	workers int
	log     *zap.Logger
	last    Pass
}

func NewOccupancySystem(ws *world.State, workers int, log *zap.Logger) *OccupancySystem {
	return &OccupancySystem{world: ws, workers: workers, log: log}
}

func (s *OccupancySystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

// LastPass returns the result of the most recent Update.
func (s *OccupancySystem) LastPass() Pass { return s.last }

func (s *OccupancySystem) Update(_ time.Duration) {
	ws := s.world
	idx := ws.Index
	s.last = Pass{Staged: ws.DrainStaged()}

	for _, id := range s.last.Staged {
		shape, ok := ws.Shape(id)
		if !ok {
			continue
		}
		ch, ok := idx.Add(id, shape)
		if !ok {
			growth := shape.GrowthBounds(idx.Grid().CellSize)
			if !idx.Grid().ContainsAABB(growth) {
				idx.RequestGrowth(growth)
			}
			continue
		}
		if ch.LocationChanged() {
			event.Emit(ws.Bus, event.LocationChanged{Entity: id, Previous: ch.Previous, Current: ch.Current})
			s.last.Moved = append(s.last.Moved, id)
		}
	}

	if !idx.GrowthPending() {
		return
	}
	changes, err := idx.FullReindex(context.Background(), ws.Occupants.IDs(), ws, s.workers)
	if err != nil {
		s.log.Error("occupancy: full reindex failed", zap.Error(err))
		return
	}
	s.last.Rebuilt = true
	s.last.Moved = s.last.Moved[:0]
	for _, ch := range changes {
		event.Emit(ws.Bus, event.LocationChanged{
			Entity: ch.Entity, Previous: ch.Previous, Current: ch.Current, IsReindex: true,
		})
	}
}
