package event

import (
	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/grid"
)

// LocationChanged is posted when an entity's occupied cell set changes.
// IsReindex marks changes produced by a full rebuild after grid growth.
type LocationChanged struct {
	Entity    ecs.EntityID
	Previous  []grid.CellIndex
	Current   []grid.CellIndex
	IsReindex bool
}

// Detected is posted when Observer starts (Detected=true) or stops
// (Detected=false) detecting Target.
type Detected struct {
	Observer ecs.EntityID
	Target   ecs.EntityID
	Detected bool
}

// CellOverlap is a pass-through notification for cursor highlighting; the
// grid core only forwards it.
type CellOverlap struct {
	Entity   ecs.EntityID
	Cell     grid.CellIndex
	Entering bool
}
