package tessellate

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many sibling evaluations run on extra goroutines. A
// task starts on a new goroutine only when a slot is free and otherwise
// runs inline on the caller's goroutine, so nested Run calls never wait
// for a slot and cannot deadlock.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool returns a pool with the given number of slots, or
// runtime.GOMAXPROCS(0) slots when workers <= 0.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), size: workers}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Run calls fn for every index in [0, n) and waits for all of them.
// Tasks are never cancelled because a sibling failed. The returned
// error is that of the lowest failing index.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		// the last task always runs inline; the caller would only wait
		if i < n-1 && p.sem.TryAcquire(1) {
			g.Go(func() error {
				defer p.sem.Release(1)
				errs[i] = fn(ctx, i)
				return nil
			})
			continue
		}
		errs[i] = fn(ctx, i)
	}
	_ = g.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
