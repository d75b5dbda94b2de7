package domain

import (
	"errors"
	"io"
	"testing"
	"time"
)

// ─── Workflow ───────────────────────────────────────────────────────────────

func TestNewWorkflow_AllStepsOpen(t *testing.T) {
	wf := NewWorkflow("wf-1", "task-1", DefaultChecklist(), time.Now())

	for n := StepAccess; n <= StepHandoff; n++ {
		if wf.StepCompleted(n) {
			t.Errorf("step %d should start incomplete", n)
		}
	}
	if len(wf.Checklist.Items) != 3 {
		t.Errorf("checklist = %d items, want 3", len(wf.Checklist.Items))
	}
	if wf.Status != WorkflowActive {
		t.Errorf("Status = %q, want %q", wf.Status, WorkflowActive)
	}
	if wf.State() != S0 {
		t.Errorf("State() = %s, want S0", wf.State())
	}
}

func TestNewWorkflow_CopiesChecklist(t *testing.T) {
	items := DefaultChecklist()
	wf := NewWorkflow("wf-1", "task-1", items, time.Now())
	items[0].Checked = true
	if wf.Checklist.Items[0].Checked {
		t.Error("workflow checklist must not alias the seed slice")
	}
}

func TestWorkflow_State(t *testing.T) {
	tests := []struct {
		name string
		set  func(w *Workflow)
		want State
	}{
		{"none", func(w *Workflow) {}, S0},
		{"access", func(w *Workflow) { w.Access.Completed = true }, S1},
		{"gap does not count", func(w *Workflow) {
			w.Access.Completed = true
			w.Checklist.Completed = true
		}, S1},
		{"through after", func(w *Workflow) {
			w.Access.Completed = true
			w.Before.Completed = true
			w.Checklist.Completed = true
			w.After.Completed = true
		}, S4},
		{"terminal", func(w *Workflow) {
			w.Access.Completed = true
			w.Before.Completed = true
			w.Checklist.Completed = true
			w.After.Completed = true
			w.Handoff.Completed = true
		}, S5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := NewWorkflow("wf", "task", DefaultChecklist(), time.Now())
			tt.set(wf)
			if got := wf.State(); got != tt.want {
				t.Errorf("State() = %s, want %s", got, tt.want)
			}
		})
	}
	if !S5.Terminal() || S4.Terminal() {
		t.Error("only S5 is terminal")
	}
}

func TestWorkflow_CloneIsDeep(t *testing.T) {
	wf := NewWorkflow("wf", "task", DefaultChecklist(), time.Now())
	wf.Access.Photos = append(wf.Access.Photos, "a.jpg")

	c := wf.Clone()
	c.Access.Photos[0] = "changed.jpg"
	c.Checklist.Items[1].Checked = true

	if wf.Access.Photos[0] != "a.jpg" {
		t.Error("Clone shares photo slice")
	}
	if wf.Checklist.Items[1].Checked {
		t.Error("Clone shares checklist slice")
	}
}

func TestWorkflow_PhotoSlot(t *testing.T) {
	wf := NewWorkflow("wf", "task", nil, time.Now())
	for _, n := range []StepNumber{StepAccess, StepBefore, StepAfter} {
		if wf.PhotoSlot(n) == nil {
			t.Errorf("PhotoSlot(%d) = nil", n)
		}
		if !n.IsPhotoStep() {
			t.Errorf("IsPhotoStep(%d) = false", n)
		}
	}
	for _, n := range []StepNumber{StepChecklist, StepHandoff, 0, 6} {
		if wf.PhotoSlot(n) != nil {
			t.Errorf("PhotoSlot(%d) should be nil", n)
		}
	}
}

// ─── Tasks & Actors ─────────────────────────────────────────────────────────

func TestParseTaskType(t *testing.T) {
	if _, err := ParseTaskType("cleaning"); err != nil {
		t.Errorf("ParseTaskType(cleaning) error: %v", err)
	}
	if _, err := ParseTaskType("party"); !errors.Is(err, ErrInvalidTaskType) {
		t.Errorf("ParseTaskType(party) = %v, want ErrInvalidTaskType", err)
	}
}

func TestActor_CanActOn(t *testing.T) {
	assigned := &Task{AssignedTo: "w-1"}
	open := &Task{}

	if !(Actor{ID: "w-1", Role: RoleWorker}).CanActOn(assigned) {
		t.Error("assignee should be allowed")
	}
	if (Actor{ID: "w-2", Role: RoleWorker}).CanActOn(assigned) {
		t.Error("other worker should be rejected")
	}
	if !(Actor{ID: "m-1", Role: RoleManager}).CanActOn(assigned) {
		t.Error("manager should be allowed")
	}
	if !(Actor{ID: "w-2", Role: RoleWorker}).CanActOn(open) {
		t.Error("unassigned task should be open")
	}
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestStepError_Is(t *testing.T) {
	err := NewStepError(StepBefore, ErrStepLocked, "")
	if !errors.Is(err, ErrStepLocked) {
		t.Error("StepError should unwrap to its sentinel")
	}
	if err.Error() != "step 2 (before): "+ErrStepLocked.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCollaborator(t *testing.T) {
	if Collaborator("op", nil) != nil {
		t.Error("nil stays nil")
	}

	err := Collaborator("upload", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrCollaboratorIO) {
		t.Error("should match ErrCollaboratorIO")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("should keep the cause reachable")
	}

	if got := Collaborator("update", ErrStaleWorkflow); got != ErrStaleWorkflow {
		t.Errorf("stale errors pass through unchanged, got %v", got)
	}
	if got := Collaborator("again", err); got != err {
		t.Error("already wrapped errors are not wrapped twice")
	}
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in   string
		want StepNumber
	}{
		{"1", StepAccess},
		{"before", StepBefore},
		{"checklist", StepChecklist},
		{"4", StepAfter},
		{"handoff", StepHandoff},
	}
	for _, tt := range tests {
		got, err := ParseStep(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStep(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []string{"0", "6", "kitchen", ""} {
		if _, err := ParseStep(bad); !errors.Is(err, ErrInvalidStep) {
			t.Errorf("ParseStep(%q) error = %v, want ErrInvalidStep", bad, err)
		}
	}
}
