package system

import (
	"time"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/pathfind"
	"github.com/l1jgo/worldgrid/internal/world"
	"go.uber.org/zap"
)

// PathQuery asks for a route. When Mover is set the route starts at the
// mover's position and ignores its own occupancy; otherwise it starts at From.
type PathQuery struct {
	Name  string
	Mover ecs.EntityID
	From  grid.Vec3
	To    grid.Vec3
}

// PathResult is the answer to one PathQuery.
type PathResult struct {
	Query PathQuery
	Path  pathfind.Path
	Found bool
}

// PathQuerySystem answers queued path queries against the freshly updated
// occupancy index. Phase 3 (PostUpdate).
type PathQuerySystem struct {
	world   *world.State
	log     *zap.Logger
	queue   []PathQuery
	results []PathResult
}

func NewPathQuerySystem(ws *world.State, log *zap.Logger) *PathQuerySystem {
	return &PathQuerySystem{world: ws, log: log}
}

func (s *PathQuerySystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

// Enqueue schedules q for the next tick.
func (s *PathQuerySystem) Enqueue(q PathQuery) {
	s.queue = append(s.queue, q)
}

// Results returns and clears the answers collected so far.
func (s *PathQuerySystem) Results() []PathResult {
	out := s.results
	s.results = nil
	return out
}

func (s *PathQuerySystem) Update(_ time.Duration) {
	if len(s.queue) == 0 {
		return
	}
	for _, q := range s.queue {
		var (
			p  pathfind.Path
			ok bool
		)
		if !q.Mover.IsZero() {
			p, ok = s.world.FindPath(q.Mover, q.To)
		} else {
			p, ok = s.world.Paths.Find(q.From, q.To, pathfind.Options{})
		}
		s.results = append(s.results, PathResult{Query: q, Path: p, Found: ok})
		s.log.Debug("path query",
			zap.String("name", q.Name), zap.Bool("found", ok),
			zap.Int("cells", p.Len()), zap.Int("waypoints", len(p.Waypoints)))
	}
	s.queue = s.queue[:0]
}
