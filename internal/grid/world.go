package grid

import (
	"errors"
	"fmt"
	"math"
)

// DefaultRangeCapacity caps the number of cells a single range query returns.
const DefaultRangeCapacity = 255

// CellIndex is a packed location stamped with the checksum of the grid
// generation that produced it. The zero value is the empty index and never
// refers to a cell.
type CellIndex struct {
	key      uint64
	checksum int16
}

// IsEmpty reports whether c is the empty index.
func (c CellIndex) IsEmpty() bool { return c.key == 0 }

// Key returns the packed location bits.
func (c CellIndex) Key() uint64 { return c.key }

// Checksum returns the generation the index was built against.
func (c CellIndex) Checksum() int16 { return c.checksum }

// Location decodes the packed location without checking the generation.
func (c CellIndex) Location() Location {
	l, _ := IndexToLocation(c.key)
	return l
}

func (c CellIndex) String() string {
	if c.IsEmpty() {
		return "cell(empty)"
	}
	return fmt.Sprintf("cell%s#%d", c.Location(), c.checksum)
}

// WorldGrid is the bounding region of the cell grid. Bounds.Min and
// Bounds.Max are the centres of the corner cells. A grid without bounds
// (Defined() == false) contains nothing.
type WorldGrid struct {
	Bounds   AABB
	CellSize float32
	Checksum int16
}

// NewWorldGrid returns an empty grid with the given cell size.
func NewWorldGrid(cellSize float32) *WorldGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &WorldGrid{CellSize: cellSize}
}

// NewWorldGridWithBounds returns a grid covering bounds, snapped out to whole cells.
func NewWorldGridWithBounds(cellSize float32, bounds AABB) *WorldGrid {
	g := NewWorldGrid(cellSize)
	*g = g.Grown(bounds)
	return g
}

// Defined reports whether the grid has bounds yet.
func (g *WorldGrid) Defined() bool { return g.Checksum != 0 }

// Dimensions returns the cell counts along x, y and z.
func (g *WorldGrid) Dimensions() (nx, ny, nz int32) {
	if !g.Defined() {
		return 0, 0, 0
	}
	x, z, yMin, yMax := extent(g.Bounds, g.CellSize)
	return x, yMax - yMin + 1, z
}

// LocationAt buckets a world position into this grid's coordinates.
func (g *WorldGrid) LocationAt(p Vec3) Location {
	return PositionToLocation(g.Bounds, g.CellSize, p)
}

// PositionOf returns the world-space centre of l.
func (g *WorldGrid) PositionOf(l Location) Vec3 {
	return LocationToPosition(g.Bounds, g.CellSize, l)
}

// Index stamps l with the current checksum.
func (g *WorldGrid) Index(l Location) (CellIndex, error) {
	k, err := LocationToIndex(l)
	if err != nil {
		return CellIndex{}, err
	}
	return CellIndex{key: k, checksum: g.Checksum}, nil
}

// IndexAt returns the index of the cell containing p.
func (g *WorldGrid) IndexAt(p Vec3) (CellIndex, error) {
	return g.Index(g.LocationAt(p))
}

// Location decodes c, refusing indices from another grid generation.
func (g *WorldGrid) Location(c CellIndex) (Location, error) {
	if c.IsEmpty() {
		return Location{}, fmt.Errorf("decode empty index: %w", ErrNotIndexed)
	}
	if c.checksum != g.Checksum {
		return Location{}, fmt.Errorf("decode %s against #%d: %w", c, g.Checksum, ErrChecksumMismatch)
	}
	return c.Location(), nil
}

// Valid reports whether c belongs to the current generation.
func (g *WorldGrid) Valid(c CellIndex) bool {
	return !c.IsEmpty() && c.checksum == g.Checksum
}

// Contains reports whether l is a cell of the grid.
func (g *WorldGrid) Contains(l Location) bool {
	return g.Defined() && ContainsLocation(g.Bounds, g.CellSize, l)
}

// ContainsIndex reports whether c is current and inside the grid.
func (g *WorldGrid) ContainsIndex(c CellIndex) bool {
	return g.Valid(c) && ContainsIndex(g.Bounds, g.CellSize, c.key)
}

// ContainsPosition reports whether p falls inside the grid.
func (g *WorldGrid) ContainsPosition(p Vec3) bool {
	return g.Defined() && ContainsPosition(g.Bounds, g.CellSize, p)
}

// ContainsAABB reports whether box lies fully inside the grid.
func (g *WorldGrid) ContainsAABB(box AABB) bool {
	return g.Defined() && ContainsAABB(g.Bounds, g.CellSize, box)
}

// Indices returns every cell covered by box. A truncated result is
// returned together with ErrCapacityExceeded.
func (g *WorldGrid) Indices(box AABB) ([]CellIndex, error) {
	keys, err := AABBToIndices(g.Bounds, g.CellSize, box)
	if err != nil && !errors.Is(err, ErrCapacityExceeded) {
		return nil, err
	}
	out := make([]CellIndex, len(keys))
	for i, k := range keys {
		out[i] = CellIndex{key: k, checksum: g.Checksum}
	}
	return out, err
}

// Step moves c along d. It returns false if c is stale or the neighbour
// falls outside the grid.
func (g *WorldGrid) Step(c CellIndex, d Direction) (CellIndex, bool) {
	l, err := g.Location(c)
	if err != nil {
		return CellIndex{}, false
	}
	n := d.Apply(l)
	if !g.Contains(n) {
		return CellIndex{}, false
	}
	idx, err := g.Index(n)
	if err != nil {
		return CellIndex{}, false
	}
	return idx, true
}

// Range returns the cells within a square of the given radius around
// center (Chebyshev distance in x/z, plus y when vertical is set), clipped to
// the grid. At most capacity cells are returned; a truncated result comes
// back together with ErrCapacityExceeded.
func (g *WorldGrid) Range(center CellIndex, radius int32, vertical bool, capacity int) ([]CellIndex, error) {
	l, err := g.Location(center)
	if err != nil {
		return nil, err
	}
	if capacity <= 0 {
		capacity = DefaultRangeCapacity
	}
	radius = max(radius, 0)
	nx, nz, yMin, yMax := extent(g.Bounds, g.CellSize)

	// Iterate only the part of the square that lies inside the grid.
	x0, x1 := clampSpan(l.X, radius, 0, nx-1)
	z0, z1 := clampSpan(l.Z, radius, 0, nz-1)
	y0, y1 := l.Y, l.Y
	if vertical {
		y0, y1 = clampSpan(l.Y, radius, yMin, yMax)
	}
	if x0 > x1 || z0 > z1 || y0 > y1 {
		return nil, nil
	}

	total := int64(x1-x0+1) * int64(z1-z0+1) * int64(y1-y0+1)
	out := make([]CellIndex, 0, min(total, int64(capacity)))
	for y := y0; y <= y1; y++ {
		for z := z0; z <= z1; z++ {
			for x := x0; x <= x1; x++ {
				n := Location{x, y, z}
				if !g.Contains(n) {
					continue
				}
				if len(out) == capacity {
					return out, fmt.Errorf("range r=%d around %s: %w", radius, l, ErrCapacityExceeded)
				}
				idx, err := g.Index(n)
				if err != nil {
					continue
				}
				out = append(out, idx)
			}
		}
	}
	return out, nil
}

// clampSpan returns [c-r, c+r] intersected with [lo, hi], computed in int64
// so large radii cannot wrap.
func clampSpan(c, r, lo, hi int32) (int32, int32) {
	a := max(int64(c)-int64(r), int64(lo))
	b := min(int64(c)+int64(r), int64(hi))
	return int32(a), int32(b)
}

// Grown returns a copy of g whose bounds also cover box, extended outwards
// in whole cells and never shrunk, with a fresh checksum. An undefined grid
// adopts box snapped to the cell lattice.
func (g *WorldGrid) Grown(box AABB) WorldGrid {
	cs := float64(g.CellSize)
	next := *g
	if !g.Defined() {
		next.Bounds = AABB{
			Min: Vec3{snapDown(box.Min.X, cs), snapDown(box.Min.Y, cs), snapDown(box.Min.Z, cs)},
			Max: Vec3{snapUp(box.Max.X, cs), snapUp(box.Max.Y, cs), snapUp(box.Max.Z, cs)},
		}
	} else {
		b := g.Bounds
		next.Bounds = AABB{
			Min: Vec3{extendDown(b.Min.X, box.Min.X, cs), extendDown(b.Min.Y, box.Min.Y, cs), extendDown(b.Min.Z, box.Min.Z, cs)},
			Max: Vec3{extendUp(b.Max.X, box.Max.X, cs), extendUp(b.Max.Y, box.Max.Y, cs), extendUp(b.Max.Z, box.Max.Z, cs)},
		}
	}
	next.Checksum = g.Checksum + 1
	if next.Checksum == 0 {
		next.Checksum = 1
	}
	return next
}

func snapDown(v float32, cs float64) float32 {
	return float32(math.Floor(float64(v)/cs) * cs)
}

func snapUp(v float32, cs float64) float32 {
	return float32(math.Ceil(float64(v)/cs) * cs)
}

// extendDown moves cur down in whole cells until target is covered.
func extendDown(cur, target float32, cs float64) float32 {
	if float64(target) > float64(cur)-cs/2 {
		return cur
	}
	n := math.Ceil((float64(cur) - float64(target)) / cs)
	return float32(float64(cur) - n*cs)
}

// extendUp moves cur up in whole cells until target is covered.
func extendUp(cur, target float32, cs float64) float32 {
	if float64(target) < float64(cur)+cs/2 {
		return cur
	}
	n := math.Ceil((float64(target) - float64(cur)) / cs)
	return float32(float64(cur) + n*cs)
}
