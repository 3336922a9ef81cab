package main

import (
	"fmt"

	"github.com/l1jgo/worldgrid/internal/component"
	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/data"
	"github.com/l1jgo/worldgrid/internal/detect"
	"github.com/l1jgo/worldgrid/internal/scripting"
	"github.com/l1jgo/worldgrid/internal/system"
	"github.com/l1jgo/worldgrid/internal/world"
)

// spawnScene creates every scene entity and returns how many detectors it
// registered.
func spawnScene(ws *world.State, scene *data.Scene, lua *scripting.Engine) (int, error) {
	describe := describer(ws)
	detectors := 0
	for i := range scene.Entities {
		e := &scene.Entities[i]
		spec := world.Spec{Name: e.Name, Kind: e.Kind, Bounds: e.Bounds()}
		if e.Velocity != nil {
			spec.Velocity = data.Vec(*e.Velocity)
		}
		if !e.Static {
			fp, err := e.FootprintValue()
			if err != nil {
				return 0, fmt.Errorf("entity %q: %w", e.Name, err)
			}
			spec.Occupant = &component.Occupant{Footprint: fp, Obstacle: e.Obstacle}
		}
		if d := e.Detector; d != nil {
			cond, err := predicate(d.Condition, ws, lua, describe)
			if err != nil {
				return 0, fmt.Errorf("entity %q condition: %w", e.Name, err)
			}
			removal, err := predicate(d.Removal, ws, lua, describe)
			if err != nil {
				return 0, fmt.Errorf("entity %q removal: %w", e.Name, err)
			}
			spec.Detector = &component.Detector{Radius: d.Radius, Condition: cond, Removal: removal}
			detectors++
		}
		if _, err := ws.Spawn(spec); err != nil {
			return 0, err
		}
	}
	return detectors, nil
}

func predicate(c *data.ConditionSpec, ws *world.State, lua *scripting.Engine, describe scripting.Describer) (detect.Predicate, error) {
	if c == nil {
		return nil, nil
	}
	switch c.Type {
	case data.ConditionAllow:
		return detect.AllowKinds(ws.KindOf, c.Kinds...), nil
	case data.ConditionDeny:
		return detect.DenyKinds(ws.KindOf, c.Kinds...), nil
	case data.ConditionScript:
		return lua.Predicate(c.Script, describe)
	default:
		return detect.Always, nil
	}
}

func describer(ws *world.State) scripting.Describer {
	return func(id ecs.EntityID) (scripting.EntityInfo, bool) {
		pos, ok := ws.Position(id)
		if !ok {
			return scripting.EntityInfo{}, false
		}
		return scripting.EntityInfo{ID: id, Name: ws.NameOf(id), Kind: ws.KindOf(id), Position: pos}, true
	}
}

// queuePaths turns the scene's path entries into queries.
func queuePaths(ws *world.State, scene *data.Scene, paths *system.PathQuerySystem) {
	for i, p := range scene.Paths {
		q := system.PathQuery{Name: p.Name, From: data.Vec(p.From), To: data.Vec(p.To)}
		if q.Name == "" {
			q.Name = fmt.Sprintf("path #%d", i)
		}
		if p.Mover != "" {
			q.Mover, _ = ws.ByName(p.Mover)
		}
		paths.Enqueue(q)
	}
}
