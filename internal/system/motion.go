package system

import (
	"time"

	"github.com/l1jgo/worldgrid/internal/component"
	"github.com/l1jgo/worldgrid/internal/core/ecs"
	coresys "github.com/l1jgo/worldgrid/internal/core/system"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/l1jgo/worldgrid/internal/world"
)

// MotionSystem applies constant per-tick velocities and stages the moved
// entities for this tick's occupancy pass. Phase 0 (Input), after event
// dispatch.
type MotionSystem struct {
	world *world.State
}

func NewMotionSystem(ws *world.State) *MotionSystem {
	return &MotionSystem{world: ws}
}

func (s *MotionSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *MotionSystem) Update(_ time.Duration) {
	ecs.Each2(s.world.Motions, s.world.Transforms, func(id ecs.EntityID, m *component.Motion, _ *component.Transform) {
		if m.Velocity == (grid.Vec3{}) {
			return
		}
		s.world.Translate(id, m.Velocity)
	})
}
