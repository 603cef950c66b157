package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlane/internal/pkg/async"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	pool := async.NewPool(2)
	tasks := []async.Task{
		{Name: "a", Execute: func() (interface{}, error) { return 1, nil }},
		{Name: "b", Execute: func() (interface{}, error) { return 2, nil }},
		{Name: "c", Execute: func() (interface{}, error) { return nil, errors.New("boom") }},
	}

	results := pool.Execute(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.Equal(t, 1, results["a"].Data)
	assert.Equal(t, 2, results["b"].Data)
	assert.EqualError(t, results["c"].Err, "boom")
}

func TestExecuteFailFastSuccess(t *testing.T) {
	pool := async.NewPool(3)
	tasks := []async.Task{
		{Name: "a", Execute: func() (interface{}, error) { return "one", nil }},
		{Name: "b", Execute: func() (interface{}, error) { return "two", nil }},
	}

	results, err := pool.ExecuteFailFast(context.Background(), tasks)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results["a"].Data)
	assert.Equal(t, "two", results["b"].Data)
}

func TestExecuteFailFastStopsOnFirstError(t *testing.T) {
	pool := async.NewPool(1)

	tasks := []async.Task{
		{Name: "fails", Execute: func() (interface{}, error) {
			return nil, errors.New("first failure")
		}},
		{Name: "second", Execute: func() (interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return "late", nil
		}},
	}

	results, err := pool.ExecuteFailFast(context.Background(), tasks)

	require.EqualError(t, err, "first failure")
	require.Contains(t, results, "fails")
	assert.EqualError(t, results["fails"].Err, "first failure")
}

func TestExecuteFailFastSettlesInFlightTasks(t *testing.T) {
	pool := async.NewPool(3)

	tasks := []async.Task{
		{Name: "fast-fail", Execute: func() (interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, errors.New("boom")
		}},
		{Name: "slow-a", Execute: func() (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return "a", nil
		}},
		{Name: "slow-b", Execute: func() (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return "b", nil
		}},
	}

	results, err := pool.ExecuteFailFast(context.Background(), tasks)

	require.EqualError(t, err, "boom")
	// Work that was already running finishes and is reported, so callers
	// can undo everything that actually happened.
	require.Len(t, results, 3)
	assert.Equal(t, "a", results["slow-a"].Data)
	assert.Equal(t, "b", results["slow-b"].Data)
	assert.EqualError(t, results["fast-fail"].Err, "boom")
}

func TestExecuteFailFastHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := async.NewPool(1)

	tasks := []async.Task{
		{Name: "slow", Execute: func() (interface{}, error) {
			cancel()
			time.Sleep(20 * time.Millisecond)
			return "done", nil
		}},
		{Name: "queued", Execute: func() (interface{}, error) { return "queued", nil }},
	}

	_, err := pool.ExecuteFailFast(ctx, tasks)
	assert.ErrorIs(t, err, context.Canceled)
}
