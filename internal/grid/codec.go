package grid

import (
	"fmt"
	"math"
)

// Packed index layout (bit 0 = LSB):
//
//	 0..19  x + 2^19
//	20..39  z + 2^19
//	40..59  |y|
//	60      y sign
//	63      valid
//
// The valid bit keeps location (0,0,0) distinct from the zero (empty) key.
const (
	axisBits   = 20
	axisMask   = 1<<axisBits - 1
	axisOffset = 1 << 19

	zShift   = axisBits
	yShift   = 2 * axisBits
	ySignBit = uint64(1) << 60
	validBit = uint64(1) << 63

	// MinCoord and MaxCoord bound every axis of a packable location.
	MinCoord = -(1 << 19)
	MaxCoord = 1<<19 - 1
)

// Vec3 is a world-space position.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Min(o Vec3) Vec3      { return Vec3{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)} }
func (v Vec3) Max(o Vec3) Vec3      { return Vec3{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)} }
func (v Vec3) String() string       { return fmt.Sprintf("(%g,%g,%g)", v.X, v.Y, v.Z) }

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min, Max Vec3
}

// Center returns the midpoint of the box.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// Expand grows the box by d on every side.
func (b AABB) Expand(d float32) AABB {
	off := Vec3{d, d, d}
	return AABB{Min: b.Min.Sub(off), Max: b.Max.Add(off)}
}

// Location is a discrete cell coordinate.
type Location struct {
	X, Y, Z int32
}

func (l Location) String() string { return fmt.Sprintf("[%d,%d,%d]", l.X, l.Y, l.Z) }

// InRange reports whether every axis fits the packed layout.
func (l Location) InRange() bool {
	return l.X >= MinCoord && l.X <= MaxCoord &&
		l.Y >= MinCoord && l.Y <= MaxCoord &&
		l.Z >= MinCoord && l.Z <= MaxCoord
}

// DistanceSq is the squared euclidean distance between two locations.
func (l Location) DistanceSq(o Location) int64 {
	dx := int64(l.X - o.X)
	dy := int64(l.Y - o.Y)
	dz := int64(l.Z - o.Z)
	return dx*dx + dy*dy + dz*dz
}

// cellRound buckets v into a cell: floor(v/cellSize + 0.5).
func cellRound(v, cellSize float64) int32 {
	return int32(math.Floor(v/cellSize + 0.5))
}

// PositionToLocation buckets a world position into grid coordinates.
// x grows right from bounds.Min.X, z grows down from bounds.Max.Z and y is
// an absolute bucket that may be negative.
func PositionToLocation(bounds AABB, cellSize float32, p Vec3) Location {
	cs := float64(cellSize)
	return Location{
		X: cellRound(float64(p.X)-float64(bounds.Min.X), cs),
		Y: cellRound(float64(p.Y), cs),
		Z: cellRound(float64(bounds.Max.Z)-float64(p.Z), cs),
	}
}

// LocationToPosition returns the world-space centre of a cell.
func LocationToPosition(bounds AABB, cellSize float32, l Location) Vec3 {
	return Vec3{
		X: bounds.Min.X + float32(l.X)*cellSize,
		Y: float32(l.Y) * cellSize,
		Z: bounds.Max.Z - float32(l.Z)*cellSize,
	}
}

// LocationToIndex packs a location into a non-zero 64-bit key.
func LocationToIndex(l Location) (uint64, error) {
	if !l.InRange() {
		return 0, fmt.Errorf("pack %s: %w", l, ErrOutOfRange)
	}
	x := uint64(l.X+axisOffset) & axisMask
	z := uint64(l.Z+axisOffset) & axisMask
	y := int64(l.Y)
	var sign uint64
	if y < 0 {
		sign = ySignBit
		y = -y
	}
	return validBit | sign | (uint64(y)&axisMask)<<yShift | z<<zShift | x, nil
}

// IndexToLocation is the inverse of LocationToIndex. It returns false for
// keys that were never produced by LocationToIndex (including zero).
func IndexToLocation(key uint64) (Location, bool) {
	if key&validBit == 0 {
		return Location{}, false
	}
	y := int32((key >> yShift) & axisMask)
	if key&ySignBit != 0 {
		y = -y
	}
	return Location{
		X: int32(key&axisMask) - axisOffset,
		Y: y,
		Z: int32((key>>zShift)&axisMask) - axisOffset,
	}, true
}

// aabbLocations returns the inclusive min/max locations covered by box.
// z is mirrored, so the corners are re-sorted per axis.
func aabbLocations(bounds AABB, cellSize float32, box AABB) (Location, Location) {
	a := PositionToLocation(bounds, cellSize, box.Min)
	b := PositionToLocation(bounds, cellSize, box.Max)
	return Location{min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z)},
		Location{max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z)}
}

// MaxShapeCells caps the cells enumerated for a single box or footprint.
const MaxShapeCells = 1 << 16

// AABBToIndices enumerates the packed keys of every cell covered by box.
// Boxes covering more than MaxShapeCells cells are truncated in y, z, x
// order and come back together with ErrCapacityExceeded.
func AABBToIndices(bounds AABB, cellSize float32, box AABB) ([]uint64, error) {
	lo, hi := aabbLocations(bounds, cellSize, box)
	if lo == hi {
		k, err := LocationToIndex(lo)
		if err != nil {
			return nil, err
		}
		return []uint64{k}, nil
	}
	n := (int64(hi.X) - int64(lo.X) + 1) * (int64(hi.Y) - int64(lo.Y) + 1) * (int64(hi.Z) - int64(lo.Z) + 1)
	out := make([]uint64, 0, min(n, MaxShapeCells))
	for y := lo.Y; y <= hi.Y; y++ {
		for z := lo.Z; z <= hi.Z; z++ {
			for x := lo.X; x <= hi.X; x++ {
				if len(out) == MaxShapeCells {
					return out, fmt.Errorf("box %s-%s covers %d cells: %w", lo, hi, n, ErrCapacityExceeded)
				}
				k, err := LocationToIndex(Location{x, y, z})
				if err != nil {
					return nil, err
				}
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// extent returns the cell counts along x and z and the y bucket range of bounds.
func extent(bounds AABB, cellSize float32) (nx, nz, yMin, yMax int32) {
	cs := float64(cellSize)
	nx = int32(math.Round(float64(bounds.Max.X-bounds.Min.X)/cs)) + 1
	nz = int32(math.Round(float64(bounds.Max.Z-bounds.Min.Z)/cs)) + 1
	yMin = cellRound(float64(bounds.Min.Y), cs)
	yMax = cellRound(float64(bounds.Max.Y), cs)
	return
}

// ContainsLocation reports whether l addresses a cell of bounds.
func ContainsLocation(bounds AABB, cellSize float32, l Location) bool {
	nx, nz, yMin, yMax := extent(bounds, cellSize)
	return l.X >= 0 && l.X < nx &&
		l.Z >= 0 && l.Z < nz &&
		l.Y >= yMin && l.Y <= yMax
}

// ContainsIndex reports whether the packed key addresses a cell of bounds.
func ContainsIndex(bounds AABB, cellSize float32, key uint64) bool {
	l, ok := IndexToLocation(key)
	return ok && ContainsLocation(bounds, cellSize, l)
}

// ContainsPosition tests p against bounds widened by half a cell, since
// Min and Max are the centres of the corner cells. The far edge of each
// axis belongs to the next cell, so it is excluded.
func ContainsPosition(bounds AABB, cellSize float32, p Vec3) bool {
	h := cellSize / 2
	return p.X >= bounds.Min.X-h && p.X < bounds.Max.X+h &&
		p.Y >= bounds.Min.Y-h && p.Y < bounds.Max.Y+h &&
		p.Z > bounds.Min.Z-h && p.Z <= bounds.Max.Z+h
}

// ContainsAABB reports whether both corners of box are inside bounds.
func ContainsAABB(bounds AABB, cellSize float32, box AABB) bool {
	return ContainsPosition(bounds, cellSize, box.Min) && ContainsPosition(bounds, cellSize, box.Max)
}
