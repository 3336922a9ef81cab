package grid

import (
	"errors"
	"fmt"
	"strings"
)

// Alignment anchors a fixed footprint relative to the entity's anchor cell.
type Alignment uint8

const (
	AlignCenter Alignment = iota // centred on the anchor in x and z
	AlignLeft                    // extends towards -x, centred in z
	AlignRight                   // extends towards +x, centred in z
	AlignUp                      // extends towards -z (forward rows), centred in x
	AlignDown                    // extends towards +z, centred in x
)

var alignNames = [...]string{"center", "left", "right", "up", "down"}

func (a Alignment) String() string {
	if int(a) < len(alignNames) {
		return alignNames[a]
	}
	return fmt.Sprintf("align(%d)", uint8(a))
}

// ParseAlignment accepts the lower-case names produced by String.
func ParseAlignment(s string) (Alignment, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AlignCenter, nil
	}
	for i, n := range alignNames {
		if n == s {
			return Alignment(i), nil
		}
	}
	return AlignCenter, fmt.Errorf("unknown alignment %q", s)
}

// Footprint is a fixed Width(x) × Height(y) × Depth(z) block of cells.
// The zero footprint means "use the AABB".
type Footprint struct {
	Width, Height, Depth int32
	Align                Alignment
}

// Fixed reports whether the footprint overrides the AABB.
func (f Footprint) Fixed() bool {
	return f.Width > 0 && f.Depth > 0
}

// span returns the first cell of a run of size cells along one axis.
func span(anchor, size int32, toward int) int32 {
	switch toward {
	case -1:
		return anchor - (size - 1)
	case 1:
		return anchor
	default:
		return anchor - (size-1)/2
	}
}

// Shape is what the entity store hands the grid for one entity.
type Shape struct {
	Bounds    AABB
	Footprint Footprint
}

// GrowthBounds returns a world box that, once covered by the grid, contains
// every cell the shape can occupy.
func (s Shape) GrowthBounds(cellSize float32) AABB {
	if !s.Footprint.Fixed() {
		return s.Bounds
	}
	f := s.Footprint
	reach := max(f.Width, f.Depth, f.Height)
	return s.Bounds.Expand(float32(reach) * cellSize)
}

// Cells returns the occupied cells of s and its anchor cell (the cell
// containing the centre of its bounds). ErrNotContained means the grid
// must grow first. Shapes covering more than MaxShapeCells cells come back
// truncated together with ErrCapacityExceeded.
func (g *WorldGrid) Cells(s Shape) ([]CellIndex, CellIndex, error) {
	if !s.Footprint.Fixed() {
		if !g.ContainsAABB(s.Bounds) {
			return nil, CellIndex{}, fmt.Errorf("bounds %v-%v: %w", s.Bounds.Min, s.Bounds.Max, ErrNotContained)
		}
		cells, truncated := g.Indices(s.Bounds)
		if truncated != nil && !errors.Is(truncated, ErrCapacityExceeded) {
			return nil, CellIndex{}, truncated
		}
		anchor, err := g.IndexAt(s.Bounds.Center())
		if err != nil {
			return nil, CellIndex{}, err
		}
		return cells, anchor, truncated
	}

	if !g.ContainsPosition(s.Bounds.Center()) {
		return nil, CellIndex{}, fmt.Errorf("anchor %v: %w", s.Bounds.Center(), ErrNotContained)
	}
	a := g.LocationAt(s.Bounds.Center())
	f := s.Footprint
	var x0, z0 int32
	switch f.Align {
	case AlignLeft:
		x0, z0 = span(a.X, f.Width, -1), span(a.Z, f.Depth, 0)
	case AlignRight:
		x0, z0 = span(a.X, f.Width, 1), span(a.Z, f.Depth, 0)
	case AlignUp:
		x0, z0 = span(a.X, f.Width, 0), span(a.Z, f.Depth, -1)
	case AlignDown:
		x0, z0 = span(a.X, f.Width, 0), span(a.Z, f.Depth, 1)
	default:
		x0, z0 = span(a.X, f.Width, 0), span(a.Z, f.Depth, 0)
	}
	h := max(f.Height, 1)

	n := int64(f.Width) * int64(f.Depth) * int64(h)
	cells := make([]CellIndex, 0, min(n, MaxShapeCells))
	var truncated error
fill:
	for y := a.Y; y < a.Y+h; y++ {
		for z := z0; z < z0+f.Depth; z++ {
			for x := x0; x < x0+f.Width; x++ {
				if len(cells) == MaxShapeCells {
					truncated = fmt.Errorf("footprint %dx%dx%d: %w", f.Width, h, f.Depth, ErrCapacityExceeded)
					break fill
				}
				l := Location{x, y, z}
				if !g.Contains(l) {
					return nil, CellIndex{}, fmt.Errorf("footprint cell %s: %w", l, ErrNotContained)
				}
				idx, err := g.Index(l)
				if err != nil {
					return nil, CellIndex{}, err
				}
				cells = append(cells, idx)
			}
		}
	}
	anchor, err := g.Index(a)
	if err != nil {
		return nil, CellIndex{}, err
	}
	return cells, anchor, truncated
}
