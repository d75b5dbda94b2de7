package domain

import (
	"context"
	"io"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// WorkflowStore persists one workflow per task.
// Update methods are guarded by wf.Version and return ErrStaleWorkflow when
// the stored row has moved on. Successful writes return the stored record
// with its new version.
type WorkflowStore interface {
	// CreateWorkflow seeds a new workflow for taskID. Returns ErrWorkflowExists
	// if the task already has one.
	CreateWorkflow(ctx context.Context, taskID string, checklist []ChecklistItem) (*Workflow, error)

	// GetWorkflowByTask returns nil, nil when the task has no workflow yet.
	GetWorkflowByTask(ctx context.Context, taskID string) (*Workflow, error)

	// UpdateStep writes one step's payload plus the derived timestamps and status.
	UpdateStep(ctx context.Context, wf *Workflow, step StepNumber) (*Workflow, error)

	// UpdateWorkflow writes every mutable field.
	UpdateWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error)
}

// TaskStore is the task collaborator.
type TaskStore interface {
	InsertTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (*Task, error) // nil, nil when absent
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus) error
}

// EvidenceFile is one photo handed to the uploader.
type EvidenceFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// EvidenceUploader stores a photo and returns a stable URL for it.
type EvidenceUploader interface {
	Upload(ctx context.Context, workflowID string, step StepNumber, file EvidenceFile) (string, error)
}

// Locker serializes mutations of one workflow. TryLock never waits: it
// returns ErrWorkflowBusy when the key is held.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// EventPublisher fans workflow events out to listeners. Publishing is
// best-effort; a failure never rolls back the change that caused it.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
