package batch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every path on up to workers goroutines (NumCPU when
// workers <= 0) and returns the results in input order. The first error
// cancels the context passed to the remaining calls and is returned.
func Map[T any](ctx context.Context, paths []string, workers int, fn func(ctx context.Context, path string) (T, error)) ([]T, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]T, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := fn(ctx, path)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
