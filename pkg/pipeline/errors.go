package pipeline

import (
	"errors"
	"fmt"
	"time"

	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
)

var (
	// ErrStageNotFound is returned when a named stage does not exist.
	ErrStageNotFound = fmt.Errorf("stage %w", gferrors.ErrNotFound)

	// ErrStageExists is returned when a stage name is already used in a pipeline.
	ErrStageExists = fmt.Errorf("stage %w", gferrors.ErrAlreadyExists)

	// ErrIndexOutOfRange is returned by InsertStageAt for an invalid position.
	ErrIndexOutOfRange = errors.New("stage index out of range")
)

// PipelineError wraps a stage failure that stopped a run under the Stop strategy.
type PipelineError struct {
	PipelineID string
	StepIndex  int
	StageName  string
	Cause      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %q failed at step %d (%s): %v", e.PipelineID, e.StepIndex, e.StageName, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// TimeoutError reports that Execute stopped waiting for the stage chain.
// The chain itself keeps running.
type TimeoutError struct {
	PipelineID string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pipeline %q timed out after %v", e.PipelineID, e.Timeout)
}

// Is matches gferrors.ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == gferrors.ErrTimeout
}

// ValidationError reports that a stage rejected its input.
type ValidationError struct {
	PipelineID string
	StageName  string
	Input      interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %q of pipeline %q rejected its input", e.StageName, e.PipelineID)
}

// UnknownStageError is returned at construction time when a pipeline
// definition references a stage that is not registered.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Name)
}

// Is matches ErrStageNotFound.
func (e *UnknownStageError) Is(target error) bool {
	return target == ErrStageNotFound
}
