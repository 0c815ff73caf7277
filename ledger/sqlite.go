package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mediaproc/task"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// taskRow is the tasks table. Seq preserves insertion order.
type taskRow struct {
	Seq          uint   `gorm:"primaryKey;autoIncrement"`
	TaskID       string `gorm:"column:task_id;uniqueIndex;not null"`
	InputFile    string `gorm:"not null"`
	OutputFile   string
	Status       string `gorm:"index;not null"`
	MediaType    string
	ProcessType  string
	CreatedAt    int64 `gorm:"autoCreateTime:false"`
	CompletedAt  int64
	ErrorMessage string
}

func (taskRow) TableName() string {
	return "tasks"
}

func rowFromTask(t task.Task) taskRow {
	return taskRow{
		TaskID:       t.ID,
		InputFile:    t.InputFile,
		OutputFile:   t.OutputFile,
		Status:       string(t.Status),
		MediaType:    string(t.MediaType),
		ProcessType:  string(t.ProcessType),
		CreatedAt:    t.CreatedAt,
		CompletedAt:  t.CompletedAt,
		ErrorMessage: t.ErrorMessage,
	}
}

func (r taskRow) toTask() task.Task {
	return task.Task{
		ID:           r.TaskID,
		InputFile:    r.InputFile,
		OutputFile:   r.OutputFile,
		Status:       task.Status(r.Status),
		MediaType:    task.MediaType(r.MediaType),
		ProcessType:  task.ProcessType(r.ProcessType),
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
		ErrorMessage: r.ErrorMessage,
	}
}

// SQLStore keeps the ledger in an embedded sqlite database through gorm.
// Mutations hold a writer mutex and run inside a transaction.
type SQLStore struct {
	db *gorm.DB
	mu sync.Mutex
}

var _ task.Store = (*SQLStore)(nil)

func NewSQLStore(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY between readers and writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&taskRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", task.ErrStoreUnavailable, err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context) ([]task.Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask())
	}
	return tasks, nil
}

func (s *SQLStore) Save(ctx context.Context, tasks []task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&taskRow{}).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		rows := make([]taskRow, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, rowFromTask(t))
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := rowFromTask(t)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, id string, fn func(*task.Task) error) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		updated task.Task
		fnErr   error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row taskRow
		if err := tx.Where("task_id = ?", id).First(&row).Error; err != nil {
			return err
		}
		t := row.toTask()
		if fnErr = fn(&t); fnErr != nil {
			return fnErr
		}
		t.ID = id
		next := rowFromTask(t)
		next.Seq = row.Seq
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = t
		return nil
	})
	if fnErr != nil {
		return task.Task{}, fnErr
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return task.Task{}, task.ErrTaskNotFound
		}
		return task.Task{}, s.wrap(err)
	}
	return updated, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrap classifies database errors.
func (s *SQLStore) wrap(err error) error {
	for _, sentinel := range []error{
		task.ErrTaskNotFound, task.ErrDuplicateTask,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", task.ErrDuplicateTask, err)
	}
	return fmt.Errorf("%w: %v", task.ErrStoreUnavailable, err)
}
