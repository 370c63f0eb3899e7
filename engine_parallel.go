package rubyastgen

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// processParallel runs process over tasks with a bounded worker pool:
//
//	Workers (parallel): read, lower, parse, hook, write one file each.
//	Collector (serial): the calling goroutine hands every result to collect.
//
// Each worker parses with its own tree-sitter parser; collect is never
// called concurrently. Cancelling ctx stops dispatch of remaining tasks.
func (e *Engine) processParallel(
	ctx context.Context,
	tasks []task,
	process func(context.Context, task) fileResult,
	collect func(fileResult),
) error {
	workCh := make(chan task, len(tasks))
	for _, t := range tasks {
		workCh <- t
	}
	close(workCh)

	resultCh := make(chan fileResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for range max(1, min(e.workers, len(tasks))) {
		g.Go(func() error {
			for t := range workCh {
				if err := gctx.Err(); err != nil {
					return err
				}
				resultCh <- process(gctx, t)
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		collect(res)
	}
	return g.Wait()
}
