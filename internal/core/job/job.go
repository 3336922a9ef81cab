// Package job is the parallel-for substrate the grid core fans work out on.
// Every invocation of a job function owns exactly one output slot, so jobs
// need no locking; callers read the slots only after Complete returns.
package job

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Handle is a joinable batch of work.
type Handle struct {
	group *errgroup.Group
	once  sync.Once
	err   error
}

// Complete blocks until every job in the batch finished and returns the
// first error. It is the single join point for a batch and may be called
// more than once.
func (h *Handle) Complete() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.err = h.group.Wait()
	})
	return h.err
}

// Workers resolves a configured worker count; zero or less means GOMAXPROCS.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// ForEach schedules fn for every item on at most workers goroutines and
// returns immediately. fn receives the item's position so it can write to
// its own slot of a caller-owned slice. After the first error, items that
// have not started yet are skipped.
func ForEach[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, i int, item T) error) *Handle {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(workers))
	h := &Handle{group: g}
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i, item)
		})
	}
	return h
}

// Map runs fn over items in parallel and collects one result per item, in
// item order. It completes the batch before returning.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	h := ForEach(ctx, items, workers, func(ctx context.Context, i int, item T) error {
		r, err := fn(ctx, item)
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err := h.Complete(); err != nil {
		return nil, err
	}
	return out, nil
}
