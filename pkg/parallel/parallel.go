// Package parallel fans work out over a bounded number of goroutines. The
// scanner uses ForEach over manifest records; the graph queries split class
// rows into spans and merge per-span results.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// PoolConfig bounds the concurrency of a fan-out.
type PoolConfig struct {
	// Workers is the number of goroutines. Zero or less selects the default.
	Workers int
}

// DefaultPoolConfig uses one worker per CPU, between 2 and 8.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: min(max(runtime.NumCPU(), 2), 8)}
}

// WithWorkers returns a copy using n workers.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	c.Workers = n
	return c
}

// workersFor caps the worker count at the amount of work.
func (c PoolConfig) workersFor(n int) int {
	w := c.Workers
	if w <= 0 {
		w = DefaultPoolConfig().Workers
	}
	return max(min(w, n), 1)
}

// ForEach runs fn for every item and returns how many succeeded along with
// the first error. The first failure cancels the context passed to fn and
// no further items are started. Items not yet started when ctx ends are
// skipped and the context error is reported unless an item failed first.
func ForEach[T any](ctx context.Context, items []T, cfg PoolConfig, fn func(ctx context.Context, item T) error) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		done     atomic.Int64
		once     sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	next := make(chan int)
	for w := cfg.workersFor(len(items)); w > 0; w-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(ctx, items[i]); err != nil {
					once.Do(func() {
						firstErr = err
						cancel(err)
					})
					continue
				}
				done.Add(1)
			}
		}()
	}

	skipped := false
feed:
	for i := range items {
		select {
		case <-ctx.Done():
			skipped = true
			break feed
		case next <- i:
		}
	}
	close(next)
	wg.Wait()

	once.Do(func() {
		if skipped {
			firstErr = context.Cause(ctx)
		}
	})
	return done.Load(), firstErr
}

// Span is the half-open row range [Lo, Hi).
type Span struct {
	Lo, Hi int32
}

// Len returns the number of rows in s.
func (s Span) Len() int32 { return s.Hi - s.Lo }

// Split divides [0, n) into at most parts contiguous spans whose lengths
// differ by at most one.
func Split(n int32, parts int) []Span {
	if n <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	if int64(parts) > int64(n) {
		parts = int(n)
	}
	size, extra := n/int32(parts), n%int32(parts)
	spans := make([]Span, 0, parts)
	lo := int32(0)
	for i := 0; i < parts; i++ {
		hi := lo + size
		if int32(i) < extra {
			hi++
		}
		spans = append(spans, Span{Lo: lo, Hi: hi})
		lo = hi
	}
	return spans
}

// MapSpans splits [0, n) into one span per worker and calls fn on each span
// concurrently. Results come back in span order. The error is the first one
// by span order, or the context error when ctx ended during the run.
func MapSpans[R any](ctx context.Context, n int32, cfg PoolConfig, fn func(ctx context.Context, s Span) (R, error)) ([]R, error) {
	spans := Split(n, cfg.workersFor(int(max(n, 0))))
	results := make([]R, len(spans))
	errs := make([]error, len(spans))

	var wg sync.WaitGroup
	for i, s := range spans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = fn(ctx, s)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Aggregate folds every row of [0, n) into a map keyed by extract. Each
// worker builds a local map; merge combines values for the same key, first
// within a span and then across spans in span order.
func Aggregate[K comparable, V any](
	ctx context.Context,
	n int32,
	cfg PoolConfig,
	extract func(row int32) (K, V, error),
	merge func(a, b V) V,
) (map[K]V, error) {
	locals, err := MapSpans(ctx, n, cfg, func(ctx context.Context, s Span) (map[K]V, error) {
		local := make(map[K]V)
		for row := s.Lo; row < s.Hi; row++ {
			k, v, err := extract(row)
			if err != nil {
				return nil, err
			}
			if cur, ok := local[k]; ok {
				v = merge(cur, v)
			}
			local[k] = v
		}
		return local, nil
	})
	if err != nil {
		return nil, err
	}

	merged := make(map[K]V)
	for _, local := range locals {
		for k, v := range local {
			if cur, ok := merged[k]; ok {
				v = merge(cur, v)
			}
			merged[k] = v
		}
	}
	return merged, nil
}
