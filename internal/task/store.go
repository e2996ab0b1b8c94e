package task

import "context"

// Store persists tasks across restarts. A crashed process leaves tasks
// stuck in "processing"; the Scheduler resets those to "pending" using
// LoadTasks's results before it starts workers.
type Store interface {
	LoadTasks(ctx context.Context) ([]*Task, error)
	InsertTask(ctx context.Context, t *Task) (int64, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id int64) error
}
