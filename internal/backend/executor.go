package backend

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// laneExecutor serializes backend primitives so no two execute
// concurrently against the same underlying transport (spec invariant
// 2). Built on golang.org/x/sync/semaphore.NewWeighted(1) rather than
// a hand-rolled channel queue, the way the teacher's go.mod already
// pulls in golang.org/x/sync.
type laneExecutor struct {
	sem *semaphore.Weighted
}

func newLaneExecutor() *laneExecutor {
	return &laneExecutor{sem: semaphore.NewWeighted(1)}
}

// run acquires the single lane, runs fn, then releases it. If ctx is
// cancelled before the lane is acquired, run returns ctx.Err() without
// invoking fn.
func (l *laneExecutor) run(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}
