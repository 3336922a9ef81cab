package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyGridContainsNothing(t *testing.T) {
	t.Parallel()

	g := NewWorldGrid(1)
	assert.False(t, g.Defined())
	assert.False(t, g.Contains(Location{}))
	assert.False(t, g.ContainsPosition(Vec3{}))
	nx, ny, nz := g.Dimensions()
	assert.Zero(t, nx+ny+nz)
}

func TestGrowthCoversBoxAndBumpsChecksum(t *testing.T) {
	t.Parallel()

	g := NewWorldGrid(1)
	box := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 0, 1}}
	*g = g.Grown(box)
	require.True(t, g.Defined())
	assert.True(t, g.ContainsAABB(box))
	first := g.Checksum

	far := AABB{Min: Vec3{-3.2, 0, 4}, Max: Vec3{-2.9, 0, 6.7}}
	require.False(t, g.ContainsAABB(far))
	*g = g.Grown(far)
	assert.True(t, g.ContainsAABB(far))
	assert.True(t, g.ContainsAABB(box))
	assert.NotEqual(t, first, g.Checksum)
}

func TestGrowthIsMonotonic(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Min: Vec3{0, 0, 0}, Max: Vec3{4, 0, 4}})
	var probes []Vec3
	for x := float32(-0.5); x < 4.5; x += 0.25 {
		for z := float32(-0.25); z <= 4.5; z += 0.25 {
			if g.ContainsPosition(Vec3{x, 0, z}) {
				probes = append(probes, Vec3{x, 0, z})
			}
		}
	}
	require.NotEmpty(t, probes)

	for _, box := range []AABB{
		{Min: Vec3{-7, 0, 0}, Max: Vec3{-6, 0, 1}},
		{Min: Vec3{3, -2, 3}, Max: Vec3{12.3, 2, 9.9}},
		{Min: Vec3{0, 0, -20}, Max: Vec3{0.5, 0, -19}},
	} {
		*g = g.Grown(box)
		for _, p := range probes {
			assert.True(t, g.ContainsPosition(p), "lost %v after growing to %v", p, g.Bounds)
		}
	}
}

func TestStaleIndexIsRejected(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Max: Vec3{4, 0, 4}})
	idx, err := g.Index(Location{1, 0, 1})
	require.NoError(t, err)

	*g = g.Grown(AABB{Min: Vec3{-2, 0, -2}, Max: Vec3{0, 0, 0}})

	_, err = g.Location(idx)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
	assert.False(t, g.ContainsIndex(idx))
	_, ok := g.Step(idx, Right)
	assert.False(t, ok)
}

func TestStepStaysInside(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Max: Vec3{2, 0, 2}})
	corner, err := g.Index(Location{0, 0, 0})
	require.NoError(t, err)

	_, ok := g.Step(corner, Left)
	assert.False(t, ok)
	_, ok = g.Step(corner, Forward)
	assert.False(t, ok)

	n, ok := g.Step(corner, Right|Backward)
	require.True(t, ok)
	assert.Equal(t, Location{1, 0, 1}, n.Location())
}

func TestRange(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Min: Vec3{0, -5, 0}, Max: Vec3{40, 5, 40}})
	center, err := g.Index(Location{20, 0, 20})
	require.NoError(t, err)

	t.Run("square in x/z", func(t *testing.T) {
		cells, err := g.Range(center, 2, false, 0)
		require.NoError(t, err)
		assert.Len(t, cells, 25)
		for _, c := range cells {
			assert.Equal(t, int32(0), c.Location().Y)
		}
	})

	t.Run("clipped at the edge", func(t *testing.T) {
		edge, err := g.Index(Location{0, 0, 0})
		require.NoError(t, err)
		cells, err := g.Range(edge, 1, false, 0)
		require.NoError(t, err)
		assert.Len(t, cells, 4)
	})

	t.Run("vertical layers when enabled", func(t *testing.T) {
		cells, err := g.Range(center, 1, true, 0)
		require.NoError(t, err)
		assert.Len(t, cells, 27)
	})

	t.Run("truncates at capacity", func(t *testing.T) {
		cells, err := g.Range(center, 8, false, DefaultRangeCapacity)
		assert.True(t, errors.Is(err, ErrCapacityExceeded))
		assert.Len(t, cells, DefaultRangeCapacity)
	})
}

func TestRangeHugeRadiusIsClippedToGrid(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Max: Vec3{9, 0, 9}})
	center, err := g.Index(Location{5, 0, 5})
	require.NoError(t, err)

	for _, radius := range []int32{23170, 30000, math.MaxInt32} {
		cells, err := g.Range(center, radius, true, DefaultRangeCapacity)
		require.NoError(t, err, "radius %d", radius)
		assert.Len(t, cells, 100, "radius %d", radius)
	}

	cells, err := g.Range(center, math.MaxInt32, false, 40)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Len(t, cells, 40)
}

func TestFootprintCells(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Max: Vec3{10, 2, 10}})
	// Centre (5,0,5) maps to location [5,0,5].
	bounds := AABB{Min: Vec3{4.8, 0, 4.8}, Max: Vec3{5.2, 0, 5.2}}

	cases := []struct {
		align        Alignment
		minX, maxX   int32
		minZ, maxZ   int32
		wantSize     int
		footprintDim [3]int32
	}{
		{AlignCenter, 4, 6, 4, 6, 9, [3]int32{3, 1, 3}},
		{AlignLeft, 3, 5, 4, 6, 9, [3]int32{3, 1, 3}},
		{AlignRight, 5, 7, 4, 6, 9, [3]int32{3, 1, 3}},
		{AlignUp, 4, 6, 3, 5, 9, [3]int32{3, 1, 3}},
		{AlignDown, 4, 6, 5, 7, 9, [3]int32{3, 1, 3}},
		{AlignCenter, 5, 6, 5, 5, 4, [3]int32{2, 2, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.align.String(), func(t *testing.T) {
			shape := Shape{Bounds: bounds, Footprint: Footprint{
				Width: tc.footprintDim[0], Height: tc.footprintDim[1], Depth: tc.footprintDim[2], Align: tc.align,
			}}
			cells, anchor, err := g.Cells(shape)
			require.NoError(t, err)
			assert.Equal(t, Location{5, 0, 5}, anchor.Location())
			assert.Len(t, cells, tc.wantSize)
			for _, c := range cells {
				l := c.Location()
				assert.GreaterOrEqual(t, l.X, tc.minX)
				assert.LessOrEqual(t, l.X, tc.maxX)
				assert.GreaterOrEqual(t, l.Z, tc.minZ)
				assert.LessOrEqual(t, l.Z, tc.maxZ)
			}
		})
	}
}

func TestCellsTruncatesOversizedShapes(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{Max: Vec3{400, 0, 400}})
	centre := AABB{Min: Vec3{200, 0, 200}, Max: Vec3{200, 0, 200}}

	t.Run("bounds", func(t *testing.T) {
		cells, anchor, err := g.Cells(Shape{Bounds: AABB{Max: Vec3{300, 0, 300}}})
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Len(t, cells, MaxShapeCells)
		assert.Equal(t, Location{150, 0, 250}, anchor.Location())
	})

	t.Run("footprint", func(t *testing.T) {
		shape := Shape{Bounds: centre, Footprint: Footprint{Width: 300, Height: 1, Depth: 300}}
		cells, anchor, err := g.Cells(shape)
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Len(t, cells, MaxShapeCells)
		assert.Equal(t, Location{200, 0, 200}, anchor.Location())
	})
}

func TestCellsRefusesUncontainedShape(t *testing.T) {
	t.Parallel()

	g := NewWorldGridWithBounds(1, AABB{})
	shape := Shape{Bounds: AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 0, 1}}}
	_, _, err := g.Cells(shape)
	require.True(t, errors.Is(err, ErrNotContained))

	*g = g.Grown(shape.GrowthBounds(g.CellSize))
	cells, _, err := g.Cells(shape)
	require.NoError(t, err)
	assert.Len(t, cells, 4)

	fixed := Shape{Bounds: AABB{Min: Vec3{0.9, 0, 0.9}, Max: Vec3{1.1, 0, 1.1}}, Footprint: Footprint{Width: 3, Depth: 3}}
	_, _, err = g.Cells(fixed)
	require.True(t, errors.Is(err, ErrNotContained))
	*g = g.Grown(fixed.GrowthBounds(g.CellSize))
	cells, _, err = g.Cells(fixed)
	require.NoError(t, err)
	assert.Len(t, cells, 9)
}
