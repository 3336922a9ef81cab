package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/world"
	"go.uber.org/zap"
)

// DetectionSystem brings detector relations up to date with this tick's
// occupancy pass. After a full reindex every observer is rebuilt; otherwise
// only staged detectors and moved targets are re-evaluated.
// Phase 2 (Update).
type DetectionSystem struct {
	world   *world.State
	occ     *OccupancySystem
	workers int
	log     *zap.Logger
}

func NewDetectionSystem(ws *world.State, occ *OccupancySystem, workers int, log *zap.Logger) *DetectionSystem {
	return &DetectionSystem{world: ws, occ: occ, workers: workers, log: log}
}

func (s *DetectionSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *DetectionSystem) Update(_ time.Duration) {
	ws := s.world
	mod := ws.Detectors
	pass := s.occ.LastPass()

	var staged []int
	for i, id := range pass.Staged {
		d, ok := ws.Detecting.Get(id)
		if !ok {
			continue
		}
		mod.Register(id, d.Settings())
		staged = append(staged, i)
	}

	if pass.Rebuilt {
		if err := mod.RebuildObservers(context.Background(), s.workers, true); err != nil {
			s.log.Error("detect: observer rebuild failed", zap.Error(err))
		}
		return
	}
	for _, i := range staged {
		mod.UpdateDetection(pass.Staged[i], true)
	}
	for _, id := range pass.Moved {
		mod.UpdateDetectedPosition(id, true)
	}
}
