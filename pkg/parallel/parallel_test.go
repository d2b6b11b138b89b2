package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.GreaterOrEqual(t, cfg.Workers, 2)
	assert.LessOrEqual(t, cfg.Workers, 8)
	assert.Equal(t, 3, cfg.WithWorkers(3).Workers)
	assert.Equal(t, 1, PoolConfig{Workers: 16}.workersFor(1))
	assert.Equal(t, 1, PoolConfig{}.workersFor(0))
}

func TestForEach(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	var sum atomic.Int64
	n, err := ForEach(context.Background(), items, PoolConfig{Workers: 4}, func(_ context.Context, v int) error {
		sum.Add(int64(v))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	assert.Equal(t, int64(4950), sum.Load())

	n, err = ForEach(context.Background(), []int(nil), PoolConfig{}, func(context.Context, int) error { return nil })
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestForEach_FirstError(t *testing.T) {
	boom := errors.New("boom")
	var ran []int
	n, err := ForEach(context.Background(), []int{1, 2, 3, 4, 5}, PoolConfig{Workers: 1}, func(_ context.Context, v int) error {
		ran = append(ran, v)
		if v == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []int{1, 2, 3}, ran)
}

func TestForEach_ErrorCancelsContext(t *testing.T) {
	boom := errors.New("boom")
	items := make([]int, 64)
	for i := range items {
		items[i] = i
	}
	var started atomic.Int64
	_, err := ForEach(context.Background(), items, PoolConfig{Workers: 4}, func(ctx context.Context, v int) error {
		started.Add(1)
		if v == 0 {
			return boom
		}
		<-ctx.Done()
		assert.ErrorIs(t, context.Cause(ctx), boom)
		return ctx.Err()
	})
	assert.ErrorIs(t, err, boom)
	assert.LessOrEqual(t, started.Load(), int64(4))
}

func TestForEach_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := ForEach(ctx, []int{1, 2, 3}, PoolConfig{Workers: 2}, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, n, int64(3))
}

func TestSplit(t *testing.T) {
	assert.Nil(t, Split(0, 4))
	assert.Equal(t, []Span{{0, 3}, {3, 5}, {5, 7}}, Split(7, 3))
	assert.Equal(t, []Span{{0, 1}, {1, 2}}, Split(2, 8))
	assert.Equal(t, []Span{{0, 5}}, Split(5, 0))

	total := int32(0)
	for _, s := range Split(1001, 7) {
		total += s.Len()
	}
	assert.Equal(t, int32(1001), total)
}

func TestMapSpans(t *testing.T) {
	sums, err := MapSpans(context.Background(), 10, PoolConfig{Workers: 3}, func(_ context.Context, s Span) (int32, error) {
		var sum int32
		for i := s.Lo; i < s.Hi; i++ {
			sum += i
		}
		return sum, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{0 + 1 + 2 + 3, 4 + 5 + 6, 7 + 8 + 9}, sums)

	boom := errors.New("boom")
	_, err = MapSpans(context.Background(), 10, PoolConfig{Workers: 3}, func(_ context.Context, s Span) (int, error) {
		if s.Lo > 0 {
			return 0, boom
		}
		return 1, nil
	})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = MapSpans(ctx, 10, PoolConfig{}, func(context.Context, Span) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate(t *testing.T) {
	got, err := Aggregate(context.Background(), 100, PoolConfig{Workers: 4},
		func(row int32) (bool, int, error) { return row%2 == 0, 1, nil },
		func(a, b int) int { return a + b },
	)
	require.NoError(t, err)
	assert.Equal(t, map[bool]int{true: 50, false: 50}, got)

	empty, err := Aggregate(context.Background(), 0, PoolConfig{},
		func(row int32) (int32, int, error) { return row, 1, nil },
		func(a, b int) int { return a + b },
	)
	require.NoError(t, err)
	assert.Empty(t, empty)

	boom := errors.New("boom")
	_, err = Aggregate(context.Background(), 5, PoolConfig{},
		func(row int32) (int32, int, error) { return 0, 0, boom },
		func(a, b int) int { return a + b },
	)
	assert.ErrorIs(t, err, boom)
}

func TestProgress(t *testing.T) {
	var calls atomic.Int64
	var last atomic.Int64
	p := NewProgress(10, func(completed, total int64) {
		assert.Equal(t, int64(10), total)
		calls.Add(1)
		last.Store(completed)
	}, time.Millisecond)
	p.Start(context.Background())
	for i := 0; i < 10; i++ {
		p.Add(1)
	}
	p.Stop()
	p.Stop()

	assert.Equal(t, int64(10), p.Completed())
	assert.Equal(t, int64(10), last.Load())
	assert.GreaterOrEqual(t, calls.Load(), int64(1))

	silent := NewProgress(1, nil, 0)
	silent.Start(context.Background())
	silent.Add(1)
	silent.Stop()
	assert.Equal(t, int64(1), silent.Completed())
}
