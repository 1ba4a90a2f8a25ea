package kernel

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/watchmen-go/kernel/monitor"
)

// LoopBody runs one iteration of a looping unit.
type LoopBody func(ctx context.Context, item any) (*monitor.UnitLog, error)

// LoopStrategy runs the iterations of a looping unit. It returns the logs
// of the iterations that ran, in item order, and the first error.
type LoopStrategy interface {
	Run(ctx context.Context, items []any, body LoopBody) ([]*monitor.UnitLog, error)
}

// SequentialLoop runs iterations in list order and stops at the first
// failure.
type SequentialLoop struct{}

// Run implements LoopStrategy.
func (SequentialLoop) Run(ctx context.Context, items []any, body LoopBody) ([]*monitor.UnitLog, error) {
	logs := make([]*monitor.UnitLog, 0, len(items))
	for _, item := range items {
		log, err := body(ctx, item)
		logs = append(logs, log)
		if err != nil {
			return logs, err
		}
	}
	return logs, nil
}

// ParallelLoop runs iterations concurrently, at most Limit at a time
// (unbounded when Limit is not positive). After a failure, iterations that
// have not started are skipped and leave no log.
type ParallelLoop struct {
	Limit int
}

// Run implements LoopStrategy.
func (l ParallelLoop) Run(ctx context.Context, items []any, body LoopBody) ([]*monitor.UnitLog, error) {
	slots := make([]*monitor.UnitLog, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if l.Limit > 0 {
		g.SetLimit(l.Limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			log, err := body(gctx, item)
			slots[i] = log
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	logs := make([]*monitor.UnitLog, 0, len(items))
	for _, log := range slots {
		if log != nil {
			logs = append(logs, log)
		}
	}
	return logs, err
}
