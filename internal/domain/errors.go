package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Step gate errors
	ErrStepLocked           = errors.New("step is locked until the previous step is complete")
	ErrInsufficientEvidence = errors.New("not enough evidence photos for this step")
	ErrIndexOutOfRange      = errors.New("checklist index out of range")
	ErrAlreadyFinalized     = errors.New("workflow handoff already submitted")
	ErrStepCompleted        = errors.New("step is already complete and cannot be reopened")
	ErrInvalidStep          = errors.New("step does not accept this operation")

	// Collaborator errors
	ErrCollaboratorIO = errors.New("collaborator I/O failure")

	// Record errors
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskExists       = errors.New("task already exists")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow already exists for task")
	ErrStaleWorkflow    = errors.New("workflow was modified concurrently; reload and retry")
	ErrInvalidTaskType  = errors.New("invalid task type")
	ErrInvalidStatus    = errors.New("invalid task status")

	// Controller errors
	ErrWorkflowBusy = errors.New("another change to this workflow is in progress")
	ErrNotAssigned  = errors.New("task is assigned to another worker")
	ErrUnauthorized = errors.New("missing or invalid worker identity")
	ErrForbidden    = errors.New("action not permitted for this role")
)

// StepError scopes a gate failure to the step that produced it.
type StepError struct {
	Step   StepNumber
	Err    error
	Detail string
}

func (e *StepError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("step %d (%s): %v: %s", e.Step, e.Step, e.Err, e.Detail)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// NewStepError builds a StepError with an optional formatted detail.
func NewStepError(step StepNumber, err error, format string, args ...any) *StepError {
	e := &StepError{Step: step, Err: err}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}

// CollaboratorError wraps any failure coming from a store or uploader.
// errors.Is(err, ErrCollaboratorIO) holds, and the cause stays reachable.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrCollaboratorIO, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is matches ErrCollaboratorIO in addition to the wrapped cause.
func (e *CollaboratorError) Is(target error) bool { return target == ErrCollaboratorIO }

// Collaborator wraps err unless it is nil or already a domain error that
// callers match on directly.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	for _, passthrough := range []error{ErrStaleWorkflow, ErrWorkflowNotFound, ErrTaskNotFound, ErrWorkflowExists} {
		if errors.Is(err, passthrough) {
			return err
		}
	}
	return &CollaboratorError{Op: op, Err: err}
}
