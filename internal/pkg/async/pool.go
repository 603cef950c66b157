// Package async provides a small fixed-size worker pool for fanning out
// independent pieces of work, such as the analytics queries and attachment
// uploads that have no ordering between them.
package async

import (
	"context"
	"sync"
)

// Task is one unit of work, identified by name in the result map.
type Task struct {
	Name    string
	Execute func() (interface{}, error)
}

// Result carries a task's outcome.
type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool runs tasks across a bounded number of goroutines.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	return &Pool{workerCount: workerCount}
}

// run fans tasks out across the workers. Queue and settled channels are
// buffered to len(tasks) so a worker finishing after cancellation never
// blocks: every task that started also settles. Cancellation only stops
// tasks that have not started yet.
func (p *Pool) run(ctx context.Context, tasks []Task, cancelOnError context.CancelFunc) map[string]Result {
	queue := make(chan Task, len(tasks))
	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	settled := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					return
				}
				data, err := task.Execute()
				settled <- Result{Name: task.Name, Data: data, Err: err}
				if err != nil && cancelOnError != nil {
					cancelOnError()
				}
			}
		}()
	}

	wg.Wait()
	close(settled)

	results := make(map[string]Result, len(tasks))
	for result := range settled {
		results[result.Name] = result
	}
	return results
}

// Execute runs every task to completion and returns all results keyed by
// task name. Individual task errors land in their Result.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	return p.run(ctx, tasks, nil)
}

// ExecuteFailFast runs tasks across the pool's workers and stops picking
// up new work as soon as one task fails. Tasks already in flight are
// allowed to finish and their results are included, so callers that need
// to undo partial work see everything that actually completed.
func (p *Pool) ExecuteFailFast(ctx context.Context, tasks []Task) (map[string]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := p.run(ctx, tasks, cancel)

	var firstErr error
	for _, result := range results {
		if result.Err != nil {
			firstErr = result.Err
			break
		}
	}
	if firstErr == nil && ctx.Err() != nil {
		firstErr = context.Cause(ctx)
	}
	return results, firstErr
}
