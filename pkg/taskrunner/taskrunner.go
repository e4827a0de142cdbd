// Package taskrunner runs a fixed set of indexed tasks across a
// bounded number of workers.  Workers claim task indices from a
// shared counter; the first failure cancels the group and no further
// tasks start, though in-flight tasks run to completion.
package taskrunner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type Runner struct {
	workers int
}

func New(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{workers: workers}
}

// Run executes fn(0) … fn(tasks-1) and returns the first error.  With
// one worker execution is strictly sequential; with more, tasks are
// claimed in index order but may complete in any order, so fn must
// write only to its own output slot.
func (r *Runner) Run(ctx context.Context, tasks int, fn func(int) error) error {
	workers := min(r.workers, tasks)
	if workers <= 1 {
		for i := 0; i < tasks; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				i := int(next.Add(1)) - 1
				if i >= tasks {
					return nil
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
