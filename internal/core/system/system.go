package system

import (
	"fmt"
	"time"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: swap + dispatch last tick's events
	PhasePreUpdate               // 1: drain staging queues, grow + reindex
	PhaseUpdate                  // 2: detection
	PhasePostUpdate              // 3: on-demand queries (pathfinding)
	PhaseOutput                  // 4: outbound notifications
	PhasePersist                 // 5: journal flush
	PhaseCleanup                 // 6: destroy queued entities

	phaseCount
)

var phaseNames = [phaseCount]string{"input", "pre_update", "update", "post_update", "output", "persist", "cleanup"}

func (p Phase) String() string {
	if p >= 0 && p < phaseCount {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
