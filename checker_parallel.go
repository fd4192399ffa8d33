package taproot

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// checkParallel checks independent files on a worker pool. All inputs are
// set before the pool starts; each worker evaluates through a shared
// read-only snapshot, so the only cache traffic is memo fills, which are
// deterministic and therefore safe to race.
func (c *Checker) checkParallel(ctx context.Context, paths []string, results map[string]Result) error {
	if len(paths) == 0 {
		return nil
	}

	snap := c.cache.Snapshot()
	defer snap.Release()

	numWorkers := min(runtime.NumCPU(), len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)

	var mu sync.Mutex
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			diags, _ := snap.Get(gctx, "diagnostics", path).(Diagnostics)
			mu.Lock()
			results[path] = Result{Path: path, Diagnostics: diags}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
