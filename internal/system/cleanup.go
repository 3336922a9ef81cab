package system

import (
	"time"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Destroy hooks drop the entity from the occupancy index and the detector
// module before its components go away. Phase 6 (Cleanup).
type CleanupSystem struct {
	world     *ecs.World
	destroyed int
}

func NewCleanupSystem(world *ecs.World) *CleanupSystem {
	return &CleanupSystem{world: world}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.destroyed += s.world.FlushDestroyQueue()
}

// Destroyed returns how many entities have been destroyed so far.
func (s *CleanupSystem) Destroyed() int { return s.destroyed }
