// Package domain holds the task and workflow types, the sentinel errors and
// the collaborator interfaces. It has no infrastructure dependencies.
//
// A Task is a schedulable unit of property work (cleaning, move-in, complaint ...)
// assigned to a worker: pending → in_progress → completed → verified → archived.
package domain

import (
	"fmt"
	"time"
)

// TaskStatus tracks task lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskVerified   TaskStatus = "verified"
	TaskArchived   TaskStatus = "archived"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskVerified, TaskArchived:
		return true
	}
	return false
}

// TaskType categorizes the kind of work.
type TaskType string

const (
	TaskCleaning          TaskType = "cleaning"
	TaskMoveIn            TaskType = "move_in"
	TaskMoveOut           TaskType = "move_out"
	TaskComplaint         TaskType = "complaint"
	TaskMaintenance       TaskType = "maintenance"
	TaskAccountingInvoice TaskType = "accounting_invoice"
	TaskAccountingDeposit TaskType = "accounting_deposit"
	TaskViewing           TaskType = "viewing"
)

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	switch t {
	case TaskCleaning, TaskMoveIn, TaskMoveOut, TaskComplaint, TaskMaintenance,
		TaskAccountingInvoice, TaskAccountingDeposit, TaskViewing:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTaskType, s)
}

// Task is a unit of property work.
type Task struct {
	ID          string     `json:"id" yaml:"id"`
	Type        TaskType   `json:"type" yaml:"type"`
	Title       string     `json:"title" yaml:"title"`
	Status      TaskStatus `json:"status" yaml:"status"`
	PropertyID  string     `json:"property_id,omitempty" yaml:"property_id,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at,omitempty" yaml:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// IsDone returns true once the task has left active work.
func (t *Task) IsDone() bool {
	return t.Status == TaskCompleted || t.Status == TaskVerified || t.Status == TaskArchived
}

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	Status     TaskStatus
	AssignedTo string
	Type       TaskType
	Limit      int
}
