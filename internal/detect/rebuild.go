package detect

import (
	"context"
	"errors"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/core/job"
	"github.com/l1jgo/worldgrid/internal/grid"
	"go.uber.org/zap"
)

type rangeResult struct {
	cells     []grid.CellIndex
	truncated bool
	indexed   bool
}

// RebuildObservers recomputes every detector's observed cells after the
// grid grew and all cell indices went stale. Ranges are computed on up to
// workers goroutines; observer registration and detection run afterwards on
// the calling goroutine in ascending detector order.
func (m *Module) RebuildObservers(ctx context.Context, workers int, post bool) error {
	ids := m.Detectors()
	g := m.occ.Grid()

	anchors := make([]grid.CellIndex, len(ids))
	for i, id := range ids {
		anchors[i], _ = m.occ.Anchor(id)
	}

	results := make([]rangeResult, len(ids))
	h := job.ForEach(ctx, ids, workers, func(_ context.Context, i int, id ecs.EntityID) error {
		if anchors[i].IsEmpty() {
			return nil
		}
		cells, err := g.Range(anchors[i], m.states[id].Radius, m.policy.Vertical, m.policy.RangeCapacity)
		switch {
		case err == nil:
		case errors.Is(err, grid.ErrCapacityExceeded):
			results[i].truncated = true
		default:
			return nil
		}
		results[i].cells = cells
		results[i].indexed = true
		return nil
	})
	if err := h.Complete(); err != nil {
		return err
	}

	clear(m.observers)
	for i, id := range ids {
		st := m.states[id]
		st.observe = nil
		r := results[i]
		if r.truncated {
			m.log.Warn("detect: observed range truncated",
				zap.Stringer("detector", id), zap.Int32("radius", st.Radius),
				zap.Int("capacity", m.policy.RangeCapacity))
		}
		if !r.indexed {
			continue
		}
		m.observe(id, st, r.cells)
	}
	for _, id := range ids {
		st := m.states[id]
		if st.observe == nil {
			continue
		}
		m.detect(id, st, post)
	}
	return nil
}
