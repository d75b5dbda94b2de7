package domain

import "time"

// EventType names a workflow change.
type EventType string

const (
	EventWorkflowCreated   EventType = "workflow.created"
	EventEvidenceAdded     EventType = "workflow.evidence_added"
	EventChecklistToggled  EventType = "workflow.checklist_toggled"
	EventStepCompleted     EventType = "workflow.step_completed"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventTaskStatusChanged EventType = "task.status_changed"
	EventTaskCreated       EventType = "task.created"
)

// Event is published after a change has been persisted.
type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	TaskID     string     `json:"task_id"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	Step       StepNumber `json:"step,omitempty"`
	State      string     `json:"state,omitempty"`
	TaskStatus TaskStatus `json:"task_status,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	At         time.Time  `json:"at"`
}
