package pipeline

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecasting/internal/queue"
	"forecasting/internal/types"
)

func TestDrain_YieldsBufferedInOrder(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	require.NoError(t, q.Push(types.Success(1)))
	require.NoError(t, q.Push(types.Failure[int]("bad")))
	require.NoError(t, q.Push(types.Success(3)))

	got := slices.Collect(Drain(context.Background(), q, nil))

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Data())
	assert.Equal(t, "bad", got[1].Message())
	assert.Equal(t, 3, got[2].Data())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Unfinished())
}

func TestDrain_EmptyQueue(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	assert.Empty(t, slices.Collect(Drain(context.Background(), q, nil)))
	assert.Equal(t, 0, q.Unfinished())
}

func TestDrain_SkipsForeignMarkers(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	require.NoError(t, q.Push(types.Success(1)))
	_, err := q.Mark()
	require.NoError(t, err)
	require.NoError(t, q.Push(types.Success(2)))

	got := slices.Collect(Drain(context.Background(), q, nil))

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Data())
}

func TestDrain_IsOneShot(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	require.NoError(t, q.Push(types.Success(1)))

	seq := Drain(context.Background(), q, nil)
	assert.Len(t, slices.Collect(seq), 1)

	require.NoError(t, q.Push(types.Success(2)))
	assert.Empty(t, slices.Collect(seq))
	assert.Equal(t, 1, q.Len())
}

func TestDrain_EarlyBreakLeavesRemainder(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	for i := range 3 {
		require.NoError(t, q.Push(types.Success(i)))
	}

	for o := range Drain(context.Background(), q, nil) {
		assert.Equal(t, 0, o.Data())
		break
	}
	// two values plus the drain's own marker
	assert.Equal(t, 3, q.Len())
}

func TestDrain_ClosedQueue(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	require.NoError(t, q.Push(types.Success(1)))
	q.Close()

	logger, logs := newTestLogger()
	assert.Empty(t, slices.Collect(Drain(context.Background(), q, logger)))
	assert.Contains(t, logs.String(), "cannot mark end of result queue")
}

func TestDrain_LogsExtraAcknowledgement(t *testing.T) {
	q := queue.New[types.Outcome[int]]()
	require.NoError(t, q.Push(types.Success(1)))
	// Acknowledged before it is popped, so Drain's own Done for its marker
	// has nothing left to acknowledge.
	require.NoError(t, q.Done())

	logger, logs := newTestLogger()
	got := slices.Collect(Drain(context.Background(), q, logger))

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Data())
	assert.Contains(t, logs.String(), "acknowledging result failed")
	assert.Contains(t, logs.String(), queue.ErrTooManyDone.Error())
}
