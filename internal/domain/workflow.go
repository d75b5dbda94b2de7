package domain

import (
	"fmt"
	"strconv"
	"time"
)

// StepNumber identifies one of the five workflow steps.
type StepNumber int

const (
	StepAccess    StepNumber = 1
	StepBefore    StepNumber = 2
	StepChecklist StepNumber = 3
	StepAfter     StepNumber = 4
	StepHandoff   StepNumber = 5
)

// StepCount is the number of steps in every workflow.
const StepCount = 5

// Valid reports whether n is in 1..5.
func (n StepNumber) Valid() bool { return n >= StepAccess && n <= StepHandoff }

// IsPhotoStep reports whether the step is gated on evidence photos.
func (n StepNumber) IsPhotoStep() bool {
	return n == StepAccess || n == StepBefore || n == StepAfter
}

func (n StepNumber) String() string {
	switch n {
	case StepAccess:
		return "access"
	case StepBefore:
		return "before"
	case StepChecklist:
		return "checklist"
	case StepAfter:
		return "after"
	case StepHandoff:
		return "handoff"
	}
	return "unknown"
}

// ParseStep accepts a step number (1-5) or its name.
func ParseStep(v string) (StepNumber, error) {
	if n, err := strconv.Atoi(v); err == nil {
		step := StepNumber(n)
		if !step.Valid() {
			return 0, NewStepError(step, ErrInvalidStep, "no such step")
		}
		return step, nil
	}
	for n := StepAccess; n <= StepHandoff; n++ {
		if n.String() == v {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStep, v)
}

// WorkflowStatus is active until the handoff step completes.
type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "active"
	WorkflowCompleted WorkflowStatus = "completed"
)

// State is the tagged progress of a workflow: S0 (nothing done) through
// S5 (handoff done, terminal). It counts leading consecutive completed steps.
type State int

const (
	S0 State = iota
	S1
	S2
	S3
	S4
	S5
)

// Terminal reports whether no further transition exists.
func (s State) Terminal() bool { return s == S5 }

func (s State) String() string {
	return [...]string{"S0", "S1", "S2", "S3", "S4", "S5"}[s]
}

// PhotoStep holds evidence URLs for steps 1, 2 and 4.
type PhotoStep struct {
	Photos    []string `json:"photos" yaml:"photos"`
	Completed bool     `json:"completed" yaml:"completed"`
}

// ChecklistItem is one line of the step-3 checklist.
type ChecklistItem struct {
	Item    string `json:"item" yaml:"item"`
	Checked bool   `json:"checked" yaml:"checked"`
}

// ChecklistStep is step 3.
type ChecklistStep struct {
	Items     []ChecklistItem `json:"items" yaml:"items"`
	Completed bool            `json:"completed" yaml:"completed"`
}

// HandoffStep is step 5; set only by explicit final submission.
type HandoffStep struct {
	Completed bool `json:"completed" yaml:"completed"`
}

// Workflow is the five-step completion record attached to one task.
type Workflow struct {
	ID        string         `json:"id" yaml:"id"`
	TaskID    string         `json:"task_id" yaml:"task_id"`
	Access    PhotoStep      `json:"access" yaml:"access"`
	Before    PhotoStep      `json:"before" yaml:"before"`
	Checklist ChecklistStep  `json:"checklist" yaml:"checklist"`
	After     PhotoStep      `json:"after" yaml:"after"`
	Handoff   HandoffStep    `json:"handoff" yaml:"handoff"`
	TimeStart time.Time      `json:"time_start,omitempty" yaml:"time_start,omitempty"`
	TimeEnd   time.Time      `json:"time_end,omitempty" yaml:"time_end,omitempty"`
	Status    WorkflowStatus `json:"status" yaml:"status"`
	Version   int64          `json:"version" yaml:"version"`
	UpdatedBy string         `json:"updated_by,omitempty" yaml:"updated_by,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// DefaultChecklist is the fixed list seeded into every new workflow.
func DefaultChecklist() []ChecklistItem {
	return []ChecklistItem{
		{Item: "Floors vacuumed and mopped"},
		{Item: "Kitchen and bathroom surfaces sanitized"},
		{Item: "Beds made and linens replaced"},
	}
}

// NewWorkflow returns a workflow with every step open and the given checklist.
func NewWorkflow(id, taskID string, checklist []ChecklistItem, now time.Time) *Workflow {
	items := make([]ChecklistItem, len(checklist))
	copy(items, checklist)
	return &Workflow{
		ID:        id,
		TaskID:    taskID,
		Access:    PhotoStep{Photos: []string{}},
		Before:    PhotoStep{Photos: []string{}},
		Checklist: ChecklistStep{Items: items},
		After:     PhotoStep{Photos: []string{}},
		Status:    WorkflowActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StepCompleted reports the completion flag of step n (false for invalid n).
func (w *Workflow) StepCompleted(n StepNumber) bool {
	switch n {
	case StepAccess:
		return w.Access.Completed
	case StepBefore:
		return w.Before.Completed
	case StepChecklist:
		return w.Checklist.Completed
	case StepAfter:
		return w.After.Completed
	case StepHandoff:
		return w.Handoff.Completed
	}
	return false
}

// PhotoSlot returns a pointer to the photo slot for steps 1, 2 and 4, nil otherwise.
func (w *Workflow) PhotoSlot(n StepNumber) *PhotoStep {
	switch n {
	case StepAccess:
		return &w.Access
	case StepBefore:
		return &w.Before
	case StepAfter:
		return &w.After
	}
	return nil
}

// State derives the tagged state from the step flags.
func (w *Workflow) State() State {
	s := S0
	for n := StepAccess; n <= StepHandoff; n++ {
		if !w.StepCompleted(n) {
			break
		}
		s++
	}
	return s
}

// Clone returns a deep copy so callers can compute a next state without
// touching the snapshot they were given.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Access.Photos = append([]string{}, w.Access.Photos...)
	c.Before.Photos = append([]string{}, w.Before.Photos...)
	c.After.Photos = append([]string{}, w.After.Photos...)
	c.Checklist.Items = append([]ChecklistItem{}, w.Checklist.Items...)
	return &c
}
