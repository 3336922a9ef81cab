package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationIndexRoundTrip(t *testing.T) {
	t.Parallel()

	locs := []Location{
		{0, 0, 0},
		{1, -1, 1},
		{-1, 1, -1},
		{MinCoord, MinCoord, MinCoord},
		{MaxCoord, MaxCoord, MaxCoord},
		{MinCoord, MaxCoord, 0},
		{12345, -54321, 99999},
	}
	for x := int32(-3); x <= 3; x++ {
		for y := int32(-3); y <= 3; y++ {
			for z := int32(-3); z <= 3; z++ {
				locs = append(locs, Location{x * 4099, y * 8191, z * 131071})
			}
		}
	}

	seen := make(map[uint64]Location, len(locs))
	for _, l := range locs {
		k, err := LocationToIndex(l)
		require.NoError(t, err, l)
		assert.NotZero(t, k, "packed key must never be the empty value")

		got, ok := IndexToLocation(k)
		require.True(t, ok)
		assert.Equal(t, l, got)

		if prev, dup := seen[k]; dup {
			assert.Equal(t, prev, l, "two locations packed to the same key")
		}
		seen[k] = l
	}
}

func TestLocationToIndexOutOfRange(t *testing.T) {
	t.Parallel()

	for _, l := range []Location{
		{MaxCoord + 1, 0, 0},
		{0, MinCoord - 1, 0},
		{0, 0, MaxCoord + 1},
	} {
		_, err := LocationToIndex(l)
		assert.True(t, errors.Is(err, ErrOutOfRange), l)
	}
}

func TestIndexToLocationRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, ok := IndexToLocation(0)
	assert.False(t, ok)
	assert.True(t, CellIndex{}.IsEmpty())
}

func TestPositionToLocationConventions(t *testing.T) {
	t.Parallel()

	bounds := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{10, 0, 10}}

	t.Run("x grows from min", func(t *testing.T) {
		assert.Equal(t, int32(0), PositionToLocation(bounds, 1, Vec3{0, 0, 10}).X)
		assert.Equal(t, int32(3), PositionToLocation(bounds, 1, Vec3{3.2, 0, 10}).X)
	})
	t.Run("z grows down from max", func(t *testing.T) {
		assert.Equal(t, int32(0), PositionToLocation(bounds, 1, Vec3{0, 0, 10}).Z)
		assert.Equal(t, int32(10), PositionToLocation(bounds, 1, Vec3{0, 0, 0}).Z)
	})
	t.Run("y is absolute and signed", func(t *testing.T) {
		assert.Equal(t, int32(-2), PositionToLocation(bounds, 1, Vec3{0, -2.2, 0}).Y)
		assert.Equal(t, int32(1), PositionToLocation(bounds, 2, Vec3{0, 2.4, 0}).Y)
	})
	t.Run("cell centre round trips", func(t *testing.T) {
		l := Location{4, 0, 7}
		assert.Equal(t, l, PositionToLocation(bounds, 1, LocationToPosition(bounds, 1, l)))
	})
}

func TestAABBToIndices(t *testing.T) {
	t.Parallel()

	bounds := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{10, 0, 10}}

	single, err := AABBToIndices(bounds, 1, AABB{Min: Vec3{2.1, 0, 2.1}, Max: Vec3{2.3, 0, 2.3}})
	require.NoError(t, err)
	assert.Len(t, single, 1)

	box, err := AABBToIndices(bounds, 1, AABB{Min: Vec3{1, 0, 1}, Max: Vec3{3, 0, 2}})
	require.NoError(t, err)
	assert.Len(t, box, 3*2)

	for _, k := range box {
		assert.True(t, ContainsIndex(bounds, 1, k))
	}
}

func TestAABBToIndicesTruncatesHugeBoxes(t *testing.T) {
	t.Parallel()

	bounds := AABB{Max: Vec3{1e5, 0, 1e5}}
	keys, err := AABBToIndices(bounds, 1, AABB{Max: Vec3{99999, 0, 99999}})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Len(t, keys, MaxShapeCells)
	for _, k := range keys[:10] {
		assert.True(t, ContainsIndex(bounds, 1, k))
	}
}

func TestContains(t *testing.T) {
	t.Parallel()

	bounds := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{10, 0, 10}}

	assert.True(t, ContainsPosition(bounds, 1, Vec3{-0.5, 0, 10.5}))
	assert.False(t, ContainsPosition(bounds, 1, Vec3{-0.6, 0, 5}))
	assert.False(t, ContainsPosition(bounds, 1, Vec3{5, 1, 5}))
	assert.True(t, ContainsLocation(bounds, 1, Location{10, 0, 10}))
	assert.False(t, ContainsLocation(bounds, 1, Location{11, 0, 0}))
	assert.False(t, ContainsLocation(bounds, 1, Location{0, 0, -1}))
	assert.True(t, ContainsAABB(bounds, 1, AABB{Min: Vec3{0, 0, 0}, Max: Vec3{10, 0, 10}}))
	assert.False(t, ContainsAABB(bounds, 1, AABB{Min: Vec3{0, 0, 0}, Max: Vec3{11, 0, 10}}))
}

func TestDirectionApply(t *testing.T) {
	t.Parallel()

	origin := Location{0, 0, 0}
	assert.Equal(t, Location{1, 0, 0}, Right.Apply(origin))
	assert.Equal(t, Location{-1, 0, 0}, Left.Apply(origin))
	assert.Equal(t, Location{0, 1, 0}, Up.Apply(origin))
	assert.Equal(t, Location{0, 0, -1}, Forward.Apply(origin))
	assert.Equal(t, Location{1, -1, 1}, (Right | Down | Backward).Apply(origin))
	assert.Equal(t, origin, (Left | Right).Apply(origin))

	for _, d := range Axes {
		assert.Equal(t, origin, d.Opposite().Apply(d.Apply(origin)), d.String())
		assert.Equal(t, d, Between(origin, d.Apply(origin)))
	}
	assert.Equal(t, Direction(0), Between(origin, Location{2, 0, 0}))
	assert.Equal(t, "right|backward", (Right | Backward).String())
}
