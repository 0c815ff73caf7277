package task

import "context"

// Registry is the read side of the ledger. Every call performs a single load
// against the store; nothing is cached.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// GetAll returns every task in insertion order.
func (r *Registry) GetAll(ctx context.Context) ([]Task, error) {
	return r.store.Load(ctx)
}

func (r *Registry) GetByID(ctx context.Context, id string) (Task, error) {
	tasks, err := r.store.Load(ctx)
	if err != nil {
		return Task{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return Task{}, ErrTaskNotFound
}
