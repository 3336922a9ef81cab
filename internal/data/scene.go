package data

import (
	"fmt"
	"os"

	"github.com/l1jgo/worldgrid/internal/grid"
	"gopkg.in/yaml.v3"
)

// Condition kinds accepted in scene files.
const (
	ConditionAlways = "always"
	ConditionAllow  = "allow"
	ConditionDeny   = "deny"
	ConditionScript = "script"
)

// Scene is a scene file: the entities to spawn and the path queries to
// answer once they are indexed.
type Scene struct {
	Entities []EntityEntry `yaml:"entities"`
	Paths    []PathEntry   `yaml:"paths"`
}

// EntityEntry defines one entity.
type EntityEntry struct {
	Name      string          `yaml:"name"`
	Kind      string          `yaml:"kind"`
	Min       [3]float32      `yaml:"min"`
	Max       [3]float32      `yaml:"max"`
	Footprint *FootprintEntry `yaml:"footprint"`
	Obstacle  bool            `yaml:"obstacle"`
	Static    bool            `yaml:"static"`   // no occupancy; transform only
	Velocity  *[3]float32     `yaml:"velocity"` // world units per tick
	Detector  *DetectorEntry  `yaml:"detector"`
}

// FootprintEntry is a fixed cell block overriding the bounds.
type FootprintEntry struct {
	Width  int32  `yaml:"w"`
	Height int32  `yaml:"h"`
	Depth  int32  `yaml:"d"`
	Align  string `yaml:"align"`
}

// DetectorEntry makes the entity an observer.
type DetectorEntry struct {
	Radius    int32          `yaml:"radius"`
	Condition *ConditionSpec `yaml:"condition"`
	Removal   *ConditionSpec `yaml:"removal"`
}

// ConditionSpec selects a predicate: always, allow/deny with Kinds, or a
// Lua function named by Script.
type ConditionSpec struct {
	Type   string   `yaml:"type"`
	Kinds  []string `yaml:"kinds"`
	Script string   `yaml:"script"`
}

// PathEntry is a path query. From is ignored when Mover names an entity.
type PathEntry struct {
	Name  string     `yaml:"name"`
	Mover string     `yaml:"mover"`
	From  [3]float32 `yaml:"from"`
	To    [3]float32 `yaml:"to"`
}

// Vec converts a scene triple.
func Vec(v [3]float32) grid.Vec3 { return grid.Vec3{X: v[0], Y: v[1], Z: v[2]} }

// Bounds returns the entity's world box.
func (e *EntityEntry) Bounds() grid.AABB {
	return grid.AABB{Min: Vec(e.Min), Max: Vec(e.Max)}
}

// FootprintValue converts the optional footprint; zero means "use the bounds".
func (e *EntityEntry) FootprintValue() (grid.Footprint, error) {
	if e.Footprint == nil {
		return grid.Footprint{}, nil
	}
	align, err := grid.ParseAlignment(e.Footprint.Align)
	if err != nil {
		return grid.Footprint{}, err
	}
	return grid.Footprint{
		Width:  e.Footprint.Width,
		Height: e.Footprint.Height,
		Depth:  e.Footprint.Depth,
		Align:  align,
	}, nil
}

// LoadScene loads and validates a scene file.
func LoadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return ParseScene(raw)
}

// ParseScene parses and validates scene YAML.
func ParseScene(raw []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	return &s, nil
}

func (s *Scene) validate() error {
	names := make(map[string]struct{}, len(s.Entities))
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Name == "" {
			return fmt.Errorf("entity #%d has no name", i)
		}
		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("entity %q defined twice", e.Name)
		}
		names[e.Name] = struct{}{}
		for axis := range 3 {
			if e.Min[axis] > e.Max[axis] {
				return fmt.Errorf("entity %q: min above max on axis %d", e.Name, axis)
			}
		}
		if _, err := e.FootprintValue(); err != nil {
			return fmt.Errorf("entity %q: %w", e.Name, err)
		}
		if d := e.Detector; d != nil {
			if e.Static {
				return fmt.Errorf("entity %q: a static entity cannot detect", e.Name)
			}
			if d.Radius < 0 {
				return fmt.Errorf("entity %q: negative detector radius", e.Name)
			}
			if err := d.Condition.validate(); err != nil {
				return fmt.Errorf("entity %q condition: %w", e.Name, err)
			}
			if err := d.Removal.validate(); err != nil {
				return fmt.Errorf("entity %q removal: %w", e.Name, err)
			}
		}
	}
	for i, p := range s.Paths {
		if p.Mover == "" {
			continue
		}
		if _, ok := names[p.Mover]; !ok {
			return fmt.Errorf("path #%d: unknown mover %q", i, p.Mover)
		}
	}
	return nil
}

func (c *ConditionSpec) validate() error {
	if c == nil {
		return nil
	}
	switch c.Type {
	case "", ConditionAlways:
	case ConditionAllow, ConditionDeny:
		if len(c.Kinds) == 0 {
			return fmt.Errorf("%s needs at least one kind", c.Type)
		}
	case ConditionScript:
		if c.Script == "" {
			return fmt.Errorf("script condition needs a function name")
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// Count returns the number of entities in the scene.
func (s *Scene) Count() int {
	return len(s.Entities)
}
