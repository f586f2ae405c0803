package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrNilExecutor    = errors.New("pipeline: executor is nil")
	ErrEmptyCrew      = errors.New("pipeline: crew has no tasks")
	ErrMissingInput   = errors.New("pipeline: missing run input")
	ErrUnknownAgent   = errors.New("pipeline: unknown agent")
	ErrMissingContext = errors.New("pipeline: context task has no result")
	ErrEmptyQuestion  = errors.New("pipeline: follow-up question is empty")
)

// TaskError reports the task that aborted a run. Index is zero based.
type TaskError struct {
	Index int
	Task  string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("pipeline: task %d (%s) failed: %v", e.Index+1, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
