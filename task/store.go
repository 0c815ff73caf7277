package task

import "context"

// Store is the durable ledger of tasks. Implementations serialize Save,
// Append and Update against each other; Load never observes a partial write.
type Store interface {
	Load(ctx context.Context) ([]Task, error)
	Save(ctx context.Context, tasks []Task) error
	Append(ctx context.Context, t Task) error
	// Update applies fn to the task with the given id and persists the result.
	// An error from fn aborts the update without writing.
	Update(ctx context.Context, id string, fn func(*Task) error) (Task, error)
}

// Invoker runs one transcoding operation for a task and returns the name of
// the produced output file.
type Invoker interface {
	Invoke(ctx context.Context, t Task, op ProcessType, params Params) (outputFile string, err error)
}

// ResourceGate is implemented by invokers that can refuse work while the host
// is short on CPU, memory or disk.
type ResourceGate interface {
	CheckResources() error
}
