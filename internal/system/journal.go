package system

import (
	"context"
	"time"

	"github.com/l1jgo/worldgrid/internal/core/event"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/persist"
	"go.uber.org/zap"
)

// Journal is where the journal system writes. *persist.JournalRepo is the
// production implementation.
type Journal interface {
	WriteLocations(ctx context.Context, entries []persist.LocationEntry) error
	WriteDetections(ctx context.Context, entries []persist.DetectionEntry) error
}

// JournalSystem buffers location and detection events and writes them to
// the journal every interval ticks. Events reach it through bus
// subscriptions, so each is delivered once, one tick after it was emitted.
// Phase 5 (Persist).
type JournalSystem struct {
	journal    Journal
	log        *zap.Logger
	interval   int
	tickCount  int
	tick       int64
	locations  []persist.LocationEntry
	detections []persist.DetectionEntry
}

func NewJournalSystem(bus *event.Bus, journal Journal, log *zap.Logger, intervalTicks int) *JournalSystem {
	s := &JournalSystem{journal: journal, log: log, interval: max(intervalTicks, 1)}
	event.Subscribe(bus, s.onLocation)
	event.Subscribe(bus, s.onDetected)
	return s
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) onLocation(ev event.LocationChanged) {
	var checksum int16
	if len(ev.Current) > 0 {
		checksum = ev.Current[0].Checksum()
	}
	s.locations = append(s.locations, persist.LocationEntry{
		Tick:      s.tick,
		Entity:    uint64(ev.Entity),
		Checksum:  checksum,
		Cells:     keys(ev.Current),
		IsReindex: ev.IsReindex,
	})
}

func (s *JournalSystem) onDetected(ev event.Detected) {
	s.detections = append(s.detections, persist.DetectionEntry{
		Tick:     s.tick,
		Observer: uint64(ev.Observer),
		Target:   uint64(ev.Target),
		Detected: ev.Detected,
	})
}

func (s *JournalSystem) Update(_ time.Duration) {
	s.tick++
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(ctx)
}

// Flush writes everything buffered so far. Called on shutdown so no entry
// is lost. Entries stay buffered when a write fails.
func (s *JournalSystem) Flush(ctx context.Context) {
	if len(s.locations) > 0 {
		if err := s.journal.WriteLocations(ctx, s.locations); err != nil {
			s.log.Error("journal: write locations failed", zap.Int("pending", len(s.locations)), zap.Error(err))
		} else {
			s.locations = s.locations[:0]
		}
	}
	if len(s.detections) > 0 {
		if err := s.journal.WriteDetections(ctx, s.detections); err != nil {
			s.log.Error("journal: write detections failed", zap.Int("pending", len(s.detections)), zap.Error(err))
		} else {
			s.detections = s.detections[:0]
		}
	}
}

// Pending returns the number of buffered location and detection entries.
func (s *JournalSystem) Pending() (locations, detections int) {
	return len(s.locations), len(s.detections)
}

func keys(cells []grid.CellIndex) []int64 {
	out := make([]int64, len(cells))
	for i, c := range cells {
		out[i] = int64(c.Key())
	}
	return out
}
