package system

import (
	"context"
	"testing"
	"time"

	"github.com/l1jgo/worldgrid/internal/component"
	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/core/event"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/pathfind"
	"github.com/l1jgo/worldgrid/internal/persist"
	"github.com/l1jgo/worldgrid/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeJournal struct {
	locations  []persist.LocationEntry
	detections []persist.DetectionEntry
}

func (j *fakeJournal) WriteLocations(_ context.Context, entries []persist.LocationEntry) error {
	j.locations = append(j.locations, entries...)
	return nil
}

func (j *fakeJournal) WriteDetections(_ context.Context, entries []persist.DetectionEntry) error {
	j.detections = append(j.detections, entries...)
	return nil
}

type sim struct {
	ws      *world.State
	runner  *coresys.Runner
	occ     *OccupancySystem
	paths   *PathQuerySystem
	journal *fakeJournal
}

func newSim(t *testing.T, bounds *grid.AABB) *sim {
	t.Helper()
	log := zap.NewNop()
	ws := world.NewState(world.Options{
		CellSize:      1,
		InitialBounds: bounds,
		RangeCapacity: grid.DefaultRangeCapacity,
		Pathfind:      pathfind.DefaultConfig(),
	}, log)

	s := &sim{ws: ws, runner: coresys.NewRunner(), journal: &fakeJournal{}}
	s.occ = NewOccupancySystem(ws, 2, log)
	s.paths = NewPathQuerySystem(ws, log)
	s.runner.Register(NewCleanupSystem(ws.ECS))
	s.runner.Register(NewJournalSystem(ws.Bus, s.journal, log, 1))
	s.runner.Register(s.paths)
	s.runner.Register(NewDetectionSystem(ws, s.occ, 2, log))
	s.runner.Register(s.occ)
	s.runner.Register(NewEventDispatchSystem(ws.Bus))
	return s
}

func (s *sim) tick() { s.runner.Tick(50 * time.Millisecond) }

func point(x, z float32) grid.AABB {
	p := grid.Vec3{X: x, Z: z}
	return grid.AABB{Min: p, Max: p}
}

func (s *sim) verify(t *testing.T) {
	t.Helper()
	require.NoError(t, s.ws.Index.Verify())
	require.NoError(t, s.ws.Detectors.Verify())
}

func TestTickPipeline(t *testing.T) {
	t.Parallel()

	s := newSim(t, nil)
	ws := s.ws
	det, err := ws.Spawn(world.Spec{
		Name:     "watcher",
		Bounds:   point(0, 0),
		Occupant: &component.Occupant{},
		Detector: &component.Detector{Radius: 2},
	})
	require.NoError(t, err)
	target, err := ws.Spawn(world.Spec{Name: "walker", Kind: "npc", Bounds: point(2, 0), Occupant: &component.Occupant{}})
	require.NoError(t, err)

	// The grid starts undefined, so the first pass grows it and rebuilds.
	s.tick()
	assert.True(t, s.occ.LastPass().Rebuilt)
	assert.Equal(t, []ecs.EntityID{target}, ws.Detectors.Detected(det))
	s.verify(t)

	s.tick()
	require.Len(t, s.journal.locations, 2)
	for _, e := range s.journal.locations {
		assert.True(t, e.IsReindex)
		assert.Equal(t, int64(1), e.Tick)
		assert.NotEmpty(t, e.Cells)
	}
	require.Len(t, s.journal.detections, 1)
	assert.True(t, s.journal.detections[0].Detected)

	t.Run("move outside grows and drops the relation", func(t *testing.T) {
		require.True(t, ws.Move(target, point(5, 0)))
		s.tick()
		assert.True(t, s.occ.LastPass().Rebuilt)
		assert.Empty(t, ws.Detectors.Detected(det))
		assert.Empty(t, ws.Detectors.TargetedBy(target))
		s.verify(t)
	})

	t.Run("incremental move back is detected", func(t *testing.T) {
		require.True(t, ws.Translate(target, grid.Vec3{X: -4}))
		s.tick()
		pass := s.occ.LastPass()
		assert.False(t, pass.Rebuilt)
		assert.Equal(t, []ecs.EntityID{target}, pass.Moved)
		assert.Equal(t, []ecs.EntityID{target}, ws.Detectors.Detected(det))
		s.verify(t)
	})

	t.Run("despawn removes both directions", func(t *testing.T) {
		ws.Despawn(det)
		s.tick()
		assert.False(t, ws.ECS.Alive(det))
		assert.False(t, ws.Index.Contains(det))
		assert.False(t, ws.Detectors.IsDetector(det))
		assert.Empty(t, ws.Detectors.TargetedBy(target))
		_, ok := ws.ByName("watcher")
		assert.False(t, ok)
		s.verify(t)

		s.tick()
		last := s.journal.detections[len(s.journal.detections)-1]
		assert.Equal(t, uint64(det), last.Observer)
		assert.False(t, last.Detected)
	})
}

func TestSpawnValidation(t *testing.T) {
	t.Parallel()

	s := newSim(t, nil)
	_, err := s.ws.Spawn(world.Spec{Name: "a", Occupant: &component.Occupant{}})
	require.NoError(t, err)
	_, err = s.ws.Spawn(world.Spec{Name: "a"})
	assert.Error(t, err, "duplicate name")
	_, err = s.ws.Spawn(world.Spec{Name: "b", Detector: &component.Detector{Radius: 1}})
	assert.Error(t, err, "detector without occupancy")
}

func TestPathQueries(t *testing.T) {
	t.Parallel()

	bounds := grid.AABB{Max: grid.Vec3{X: 10, Z: 10}}
	s := newSim(t, &bounds)
	ws := s.ws
	_, err := ws.Spawn(world.Spec{Name: "rock", Bounds: point(5, 0), Occupant: &component.Occupant{Obstacle: true}})
	require.NoError(t, err)
	mover, err := ws.Spawn(world.Spec{Name: "mover", Bounds: point(0, 0), Occupant: &component.Occupant{Obstacle: true}})
	require.NoError(t, err)

	s.paths.Enqueue(PathQuery{Name: "detour", From: grid.Vec3{}, To: grid.Vec3{X: 10}})
	s.paths.Enqueue(PathQuery{Name: "mover", Mover: mover, To: grid.Vec3{X: 3}})
	s.paths.Enqueue(PathQuery{Name: "off grid", From: grid.Vec3{}, To: grid.Vec3{X: 40}})
	s.tick()

	results := s.paths.Results()
	require.Len(t, results, 3)
	assert.True(t, results[0].Found)
	assert.Equal(t, 13, results[0].Path.Len())
	assert.True(t, results[1].Found, "mover ignores its own cell")
	assert.Equal(t, 4, results[1].Path.Len())
	assert.False(t, results[2].Found)
	assert.Empty(t, s.paths.Results())
}

func TestMotionFeedsDetection(t *testing.T) {
	t.Parallel()

	bounds := grid.AABB{Max: grid.Vec3{X: 10, Z: 10}}
	s := newSim(t, &bounds)
	s.runner.Register(NewMotionSystem(s.ws))
	ws := s.ws

	watcher, err := ws.Spawn(world.Spec{
		Name:     "watcher",
		Bounds:   point(5, 0),
		Occupant: &component.Occupant{},
		Detector: &component.Detector{Radius: 2},
	})
	require.NoError(t, err)
	walker, err := ws.Spawn(world.Spec{
		Name:     "walker",
		Bounds:   point(0, 0),
		Occupant: &component.Occupant{},
		Velocity: grid.Vec3{X: 1},
	})
	require.NoError(t, err)

	s.tick()
	s.tick()
	pos, ok := ws.Position(walker)
	require.True(t, ok)
	assert.Equal(t, grid.Vec3{X: 2}, pos)
	assert.Empty(t, ws.Detectors.Detected(watcher))

	s.tick()
	assert.Equal(t, []ecs.EntityID{walker}, ws.Detectors.Detected(watcher))
	anchor, ok := ws.Index.Anchor(walker)
	require.True(t, ok)
	loc, err := ws.Index.Grid().Location(anchor)
	require.NoError(t, err)
	assert.Equal(t, int32(3), loc.X)
	s.verify(t)
}

func TestCellOverlapPassThrough(t *testing.T) {
	t.Parallel()

	bounds := grid.AABB{Max: grid.Vec3{X: 4, Z: 4}}
	s := newSim(t, &bounds)
	cell, err := s.ws.Index.Grid().IndexAt(grid.Vec3{X: 1, Z: 1})
	require.NoError(t, err)

	var got []event.CellOverlap
	event.Subscribe(s.ws.Bus, func(ev event.CellOverlap) { got = append(got, ev) })

	s.ws.Overlap(7, cell, true)
	assert.Empty(t, got)
	s.tick()
	require.Len(t, got, 1)
	assert.Equal(t, event.CellOverlap{Entity: 7, Cell: cell, Entering: true}, got[0])
}
