package component

import "github.com/l1jgo/worldgrid/internal/grid"

// Transform is an entity's world-space box. Writing it does nothing by
// itself; the world state stages the entity for the next tick.
type Transform struct {
	Bounds grid.AABB
}

// Occupant makes an entity take up grid cells.
// A zero Footprint means the cells come from the Transform bounds.
type Occupant struct {
	Footprint grid.Footprint
	Obstacle  bool // blocks pathfinding through its cells
}

// Kind is a free-form tag used by kind filters and scripts.
type Kind struct {
	Name string
}

// Label is the human-readable name from the scene file.
type Label struct {
	Name string
}

// Motion moves an entity by Velocity every tick.
type Motion struct {
	Velocity grid.Vec3
}
