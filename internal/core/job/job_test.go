package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachWritesDisjointSlots(t *testing.T) {
	t.Parallel()

	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}
	out := make([]int, len(items))
	h := ForEach(context.Background(), items, 4, func(_ context.Context, i int, v int) error {
		out[i] = v * v
		return nil
	})
	require.NoError(t, h.Complete())
	require.NoError(t, h.Complete(), "second join is a no-op")

	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForEachReportsFirstError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var ran atomic.Int32
	h := ForEach(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, _ int, v int) error {
		ran.Add(1)
		if v == 1 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, h.Complete(), boom)
	assert.GreaterOrEqual(t, ran.Load(), int32(1))
}

func TestMapKeepsOrder(t *testing.T) {
	t.Parallel()

	got, err := Map(context.Background(), []string{"a", "bb", "ccc"}, 0, func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestNilHandleCompletes(t *testing.T) {
	t.Parallel()

	var h *Handle
	assert.NoError(t, h.Complete())
}
