package vj

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// TaskStatus is the outcome of a single task.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "success"
	TaskFailed    TaskStatus = "error"
)

// Task is an independent unit of best-effort work. Run returns the ID of the
// encounter it created or changed, if any.
type Task struct {
	Kind        WorkKind
	EncounterID string
	Remote      string
	Run         func(ctx context.Context) (string, error)
}

// TaskResult records what happened to one task.
type TaskResult struct {
	Kind        WorkKind
	EncounterID string
	Remote      string
	Status      TaskStatus
	Err         error
}

// RunTasks runs every task concurrently and waits for all of them. A failing or
// panicking task never stops its siblings. limit bounds how many run at once;
// zero or less means no bound. done, if non-nil, is called once per task as it
// finishes and must be safe for concurrent use. Results are returned in task order.
func RunTasks(ctx context.Context, tasks []Task, limit int, done func(TaskResult)) []TaskResult {
	results := make([]TaskResult, len(tasks))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			res := runOne(ctx, task)
			results[i] = res
			if done != nil {
				done(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runOne(ctx context.Context, task Task) (res TaskResult) {
	res = TaskResult{Kind: task.Kind, EncounterID: task.EncounterID, Remote: task.Remote}
	defer func() {
		if r := recover(); r != nil {
			res.Status = TaskFailed
			res.Err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	id, err := task.Run(ctx)
	if id != "" {
		res.EncounterID = id
	}
	if err != nil {
		res.Status = TaskFailed
		res.Err = err
		return res
	}
	res.Status = TaskSucceeded
	return res
}
