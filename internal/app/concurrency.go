package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/quote-sync/internal/domain"
	"github.com/jsamuelsen/quote-sync/internal/ports"
)

// Parallel runs fns with at most limit in flight and returns their results in input order.
// The first error cancels the rest. A limit below one means unbounded.
func Parallel[T any](ctx context.Context, limit int, fns ...func(context.Context) (T, error)) ([]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	results := make([]T, len(fns))

	for i, fn := range fns {
		g.Go(func() error {
			result, err := fn(ctx)
			if err != nil {
				return err
			}

			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel execution failed: %w", err)
	}

	return results, nil
}

// CombinedSource fetches several sources concurrently and concatenates their snapshots
// in source order. Any failing source fails the whole fetch.
type CombinedSource struct {
	sources []ports.QuoteSource
	limit   int
}

// NewCombinedSource combines sources, fetching at most limit of them at once.
func NewCombinedSource(limit int, sources ...ports.QuoteSource) *CombinedSource {
	return &CombinedSource{sources: sources, limit: limit}
}

// Fetch implements ports.QuoteSource.
func (c *CombinedSource) Fetch(ctx context.Context) ([]domain.Quote, error) {
	fns := make([]func(context.Context) ([]domain.Quote, error), 0, len(c.sources))
	for _, src := range c.sources {
		fns = append(fns, src.Fetch)
	}

	snapshots, err := Parallel(ctx, c.limit, fns...)
	if err != nil {
		return nil, err
	}

	var out []domain.Quote
	for _, snap := range snapshots {
		out = append(out, snap...)
	}

	return out, nil
}
