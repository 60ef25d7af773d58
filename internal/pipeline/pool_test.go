package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecasting/internal/queue"
	"forecasting/internal/types"
)

type intPool struct {
	in   *queue.Queue[types.Outcome[int]]
	out  *queue.Queue[types.Outcome[string]]
	pool *WorkerPool[int, string]
}

func newIntPool(t *testing.T, size int, fn TransformFunc[int, string]) intPool {
	t.Helper()
	logger, _ := newTestLogger()
	in := queue.New[types.Outcome[int]]()
	out := queue.New[types.Outcome[string]]()
	return intPool{
		in:  in,
		out: out,
		pool: NewWorkerPool(WorkerPoolConfig[int, string]{
			Transform: fn,
			Size:      size,
			In:        in,
			Out:       out,
			Logger:    logger,
		}),
	}
}

// runToCompletion pushes items, waits for the pool to process them and shuts
// it down, failing the test if that takes longer than a second.
func (p intPool) runToCompletion(t *testing.T, items ...types.Outcome[int]) []types.Outcome[string] {
	t.Helper()
	for _, it := range items {
		require.NoError(t, p.in.Push(it))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p.pool.Start(ctx)
	require.NoError(t, p.in.Join(ctx), "pool did not process all items")
	p.pool.Stop()

	done := make(chan struct{})
	go func() {
		p.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("pool workers did not exit")
	}
	return drainAll(t, p.out)
}

func TestWorkerPool_OneOutcomePerItem(t *testing.T) {
	p := newIntPool(t, 3, func(v int) (string, error) {
		return strconv.Itoa(v * 2), nil
	})

	items := make([]types.Outcome[int], 50)
	for i := range items {
		items[i] = types.Success(i)
	}
	results := p.runToCompletion(t, items...)

	require.Len(t, results, 50)
	seen := make(map[string]bool)
	for _, r := range results {
		require.True(t, r.OK())
		seen[r.Data()] = true
	}
	for i := 0; i < 50; i++ {
		assert.True(t, seen[strconv.Itoa(i*2)], "missing result for %d", i)
	}
	assert.Equal(t, StageStats{Succeeded: 50}, p.pool.Stats())
}

func TestWorkerPool_FailurePassesThrough(t *testing.T) {
	called := false
	p := newIntPool(t, 1, func(int) (string, error) {
		called = true
		return "", nil
	})

	results := p.runToCompletion(t, types.Failure[int]("fetch MOSCOW: timeout"))

	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
	assert.Equal(t, "fetch MOSCOW: timeout", results[0].Message())
	assert.False(t, called, "transform must not run on failed outcomes")
}

func TestWorkerPool_TransformError(t *testing.T) {
	p := newIntPool(t, 2, func(v int) (string, error) {
		if v == 13 {
			return "", errors.New("unlucky")
		}
		return "ok", nil
	})

	results := p.runToCompletion(t, types.Success(1), types.Success(13), types.Success(2))

	require.Len(t, results, 3)
	var failures []string
	for _, r := range results {
		if !r.OK() {
			failures = append(failures, r.Message())
		}
	}
	assert.Equal(t, []string{"unlucky"}, failures)
	assert.Equal(t, StageStats{Succeeded: 2, Failed: 1}, p.pool.Stats())
}

func TestWorkerPool_PanicBecomesFailure(t *testing.T) {
	p := newIntPool(t, 2, func(v int) (string, error) {
		if v == 0 {
			panic("division by zero")
		}
		return strconv.Itoa(10 / v), nil
	})

	results := p.runToCompletion(t, types.Success(0), types.Success(5))

	require.Len(t, results, 2)
	var failed types.Outcome[string]
	for _, r := range results {
		if !r.OK() {
			failed = r
		}
	}
	assert.True(t, strings.HasPrefix(failed.Message(), string(types.ErrCodeTransformFailed)))
	assert.Contains(t, failed.Message(), "division by zero")
}

func TestWorkerPool_MarkersAreAcknowledgedNotForwarded(t *testing.T) {
	p := newIntPool(t, 2, func(v int) (string, error) { return strconv.Itoa(v), nil })

	require.NoError(t, p.in.Push(types.Success(1)))
	_, err := p.in.Mark()
	require.NoError(t, err)

	results := p.runToCompletion(t, types.Success(2))

	assert.Len(t, results, 2)
	assert.Equal(t, 0, p.in.Unfinished())
}

func TestWorkerPool_StopIsIdempotent(t *testing.T) {
	p := newIntPool(t, 2, func(int) (string, error) { return "", nil })
	p.pool.Start(context.Background())

	assert.NotPanics(t, func() {
		p.pool.Stop()
		p.pool.Stop()
	})
	p.pool.Wait()
}

func TestWorkerPool_ContextCancelStopsWorkers(t *testing.T) {
	p := newIntPool(t, 3, func(int) (string, error) { return "", nil })
	ctx, cancel := context.WithCancel(context.Background())
	p.pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers ignored context cancellation")
	}
}

func TestNewWorkerPool_DefaultSize(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig[int, int]{})
	assert.Equal(t, DefaultPoolSize, p.Size())
}
