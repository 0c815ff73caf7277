package task

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidUpload        = errors.New("invalid upload")
	ErrTaskNotFound         = errors.New("task not found")
	ErrDuplicateTask        = errors.New("task already exists")
	ErrUnsupportedOperation = errors.New("unsupported process type")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrStoreUnavailable     = errors.New("ledger store unavailable")
	ErrBusy                 = errors.New("insufficient system resources")
	ErrInvalidParams        = errors.New("invalid process parameters")
)

// ProcessError is a task-level failure that has already been recorded in the
// ledger as status "error". It is returned to the caller instead of being
// treated as a fault of the request.
type ProcessError struct {
	TaskID string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
