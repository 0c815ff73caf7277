package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mediaproc/config"

	"go.uber.org/zap"
)

const interruptedMessage = "interrupted: service restarted during processing"

// Manager owns every status transition of a task. Processing runs on the
// caller's goroutine; a semaphore bounds how many ffmpeg processes run at once.
type Manager struct {
	cfg            *config.Config
	store          Store
	registry       *Registry
	invoker        Invoker
	concurrencySem chan struct{}
	logger         *zap.Logger
	now            func() time.Time
}

func NewManager(cfg *config.Config, store Store, invoker Invoker, logger *zap.Logger) (*Manager, error) {
	if store == nil || invoker == nil {
		return nil, errors.New("task manager requires a store and an invoker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := cfg.MaxConcurrency
	if slots < 1 {
		slots = 1
	}
	return &Manager{
		cfg:            cfg,
		store:          store,
		registry:       NewRegistry(store),
		invoker:        invoker,
		concurrencySem: make(chan struct{}, slots),
		logger:         logger.Named("task"),
		now:            time.Now,
	}, nil
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// CreateTask records a freshly stored upload in the ledger.
func (m *Manager) CreateTask(ctx context.Context, storedFilename string) (Task, error) {
	mediaType, err := ClassifyMedia(storedFilename)
	if err != nil {
		return Task{}, err
	}

	t := Task{
		ID:        NewID(),
		InputFile: storedFilename,
		Status:    StatusUploaded,
		MediaType: mediaType,
		CreatedAt: m.now().Unix(),
	}
	if err := m.store.Append(ctx, t); err != nil {
		return Task{}, err
	}

	m.logger.Info("task created",
		zap.String("task_id", t.ID),
		zap.String("input_file", t.InputFile),
		zap.String("media_type", string(t.MediaType)),
	)
	return t, nil
}

// StartProcessing runs op on the task and records the outcome. The returned
// task is the terminal record. A failed transcode is reported as a
// *ProcessError alongside that record; store failures are returned as-is.
func (m *Manager) StartProcessing(ctx context.Context, id string, op ProcessType, params Params) (Task, error) {
	select {
	case m.concurrencySem <- struct{}{}:
		defer func() { <-m.concurrencySem }()
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}

	if gate, ok := m.invoker.(ResourceGate); ok {
		if err := gate.CheckResources(); err != nil {
			m.logger.Warn("refusing to start processing", zap.String("task_id", id), zap.Error(err))
			return Task{}, fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}

	t, err := m.store.Update(ctx, id, func(t *Task) error {
		if t.Status != StatusUploaded {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
		}
		t.Status = StatusProcessing
		t.ProcessType = op
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	m.logger.Info("processing task", zap.String("task_id", id), zap.String("process_type", string(op)))

	invokeCtx := ctx
	if m.cfg.FFTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, m.cfg.FFTimeout)
		defer cancel()
	}

	outputFile, runErr := m.invoker.Invoke(invokeCtx, t, op, params)

	// The terminal write must land even if the caller went away mid-run.
	recordCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		return m.fail(recordCtx, id, runErr)
	}

	final, err := m.store.Update(recordCtx, id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
		}
		t.Status = StatusCompleted
		t.OutputFile = outputFile
		t.CompletedAt = m.now().Unix()
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	m.logger.Info("task completed", zap.String("task_id", id), zap.String("output_file", outputFile))
	return final, nil
}

func (m *Manager) fail(ctx context.Context, id string, runErr error) (Task, error) {
	final, err := m.store.Update(ctx, id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
		}
		t.Status = StatusError
		t.ErrorMessage = runErr.Error()
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	m.logger.Warn("task failed", zap.String("task_id", id), zap.Error(runErr))
	return final, &ProcessError{TaskID: id, Err: runErr}
}

// Recover marks tasks left in processing by a previous run as failed, so
// they never stay stuck. It returns the number of tasks touched.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	tasks, err := m.registry.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, stale := range tasks {
		if stale.Status != StatusProcessing {
			continue
		}
		_, err := m.store.Update(ctx, stale.ID, func(t *Task) error {
			if t.Status != StatusProcessing {
				return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
			}
			t.Status = StatusError
			t.ErrorMessage = interruptedMessage
			return nil
		})
		if errors.Is(err, ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		m.logger.Warn("recovered interrupted task", zap.String("task_id", stale.ID))
		recovered++
	}
	return recovered, nil
}

// OutputPath resolves a download name to a file inside the output directory.
func (m *Manager) OutputPath(filename string) (string, error) {
	// Security: Prevent path traversal
	cleanFilename := filepath.Base(filename)
	if cleanFilename != filename || cleanFilename == "." || cleanFilename == ".." {
		return "", fmt.Errorf("invalid filename")
	}

	fullPath := filepath.Join(m.cfg.OutputDir, cleanFilename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found")
	}
	return fullPath, nil
}
