package async

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunBounded executes tasks with at most limit running concurrently and
// waits for all of them. A limit below 1 means unbounded. One task's
// failure never cancels another; the first error (wrapped with the task
// name) is returned after everything finishes.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "prod/api", Func: runAPITarget},
//	    {Name: "prod/web", Func: runWebTarget},
//	}
//	if err := RunBounded(ctx, 4, tasks); err != nil {
//	    return err
//	}
func RunBounded(ctx context.Context, limit int, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	// Deliberately not errgroup.WithContext: independent tasks must not
	// be cancelled by a sibling's failure.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, task := range tasks {
		g.Go(func() error {
			if err := task.Func(ctx); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			return nil
		})
	}

	return g.Wait()
}
