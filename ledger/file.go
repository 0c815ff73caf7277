package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mediaproc/task"
)

// FileStore keeps the ledger as a single JSON array on disk. Writes go to a
// temporary file in the same directory which is then renamed over the
// ledger, so readers never see a half-written file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ task.Store = (*FileStore)(nil)

// NewFileStore opens the ledger at path, creating an empty one if missing.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	s := &FileStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write([]task.Task{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *FileStore) Load(ctx context.Context) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

func (s *FileStore) Save(ctx context.Context, tasks []task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tasks)
}

func (s *FileStore) Append(ctx context.Context, t task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		return err
	}
	for _, existing := range tasks {
		if existing.ID == t.ID {
			return fmt.Errorf("%w: %s", task.ErrDuplicateTask, t.ID)
		}
	}
	return s.write(append(tasks, t))
}

func (s *FileStore) Update(ctx context.Context, id string, fn func(*task.Task) error) (task.Task, error) {
	if err := ctx.Err(); err != nil {
		return task.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		return task.Task{}, err
	}
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		updated := tasks[i]
		if err := fn(&updated); err != nil {
			return task.Task{}, err
		}
		// The id is the lookup key; a mutator must not move the record.
		updated.ID = id
		tasks[i] = updated
		if err := s.write(tasks); err != nil {
			return task.Task{}, err
		}
		return updated, nil
	}
	return task.Task{}, task.ErrTaskNotFound
}

func (s *FileStore) read() ([]task.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	tasks := []task.Task{}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: corrupt ledger %s: %v", task.ErrStoreUnavailable, s.path, err)
	}
	return tasks, nil
}

func (s *FileStore) write(tasks []task.Task) error {
	if tasks == nil {
		tasks = []task.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	return nil
}
