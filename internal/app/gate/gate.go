// Package gate implements the step gate: the rules deciding whether a
// workflow step may be attempted or completed, and the next workflow state
// each successful action produces.
//
// Every operation is pure over the snapshot it is given. The input is never
// modified; a fresh workflow is returned on success and nothing on failure,
// so a rejected action cannot leave partial state behind.
package gate

import (
	"time"

	"github.com/propdesk/turnover/internal/domain"
)

// requiredEvidence is the inclusive photo minimum per photo step.
var requiredEvidence = map[domain.StepNumber]int{
	domain.StepAccess: 1,
	domain.StepBefore: 3,
	domain.StepAfter:  3,
}

// RequiredEvidence returns the photo minimum for step n, 0 for non-photo steps.
func RequiredEvidence(n domain.StepNumber) int {
	return requiredEvidence[n]
}

// Evaluator applies step gate rules. The zero value uses time.Now.
type Evaluator struct {
	now func() time.Time
}

// New creates an evaluator using the wall clock.
func New() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewWithClock creates an evaluator with an injected clock.
func NewWithClock(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

func (e *Evaluator) clock() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}

// CanAttemptStep reports whether step n is unlocked: step 1 always is,
// every later step needs its predecessor complete.
func CanAttemptStep(wf *domain.Workflow, n domain.StepNumber) bool {
	if !n.Valid() {
		return false
	}
	if n == domain.StepAccess {
		return true
	}
	return wf.StepCompleted(n - 1)
}

// Finalized reports whether the workflow has been handed off. A finalized
// workflow is read-only.
func Finalized(wf *domain.Workflow) bool {
	return wf.Status == domain.WorkflowCompleted || wf.Handoff.Completed
}

// ApplyPhotoEvidence appends urls to a photo step and recomputes its
// completion from the accumulated count, so uploads split across several
// calls eventually cross the threshold.
func (e *Evaluator) ApplyPhotoEvidence(wf *domain.Workflow, n domain.StepNumber, urls []string) (*domain.Workflow, error) {
	if !n.IsPhotoStep() {
		return nil, domain.NewStepError(n, domain.ErrInvalidStep, "only steps 1, 2 and 4 take photos")
	}
	if Finalized(wf) {
		return nil, domain.NewStepError(n, domain.ErrAlreadyFinalized, "")
	}
	if !CanAttemptStep(wf, n) {
		return nil, domain.NewStepError(n, domain.ErrStepLocked, "")
	}

	next := wf.Clone()
	slot := next.PhotoSlot(n)
	slot.Photos = append(slot.Photos, urls...)
	if len(slot.Photos) >= RequiredEvidence(n) {
		slot.Completed = true
	}

	if n == domain.StepAccess && slot.Completed && next.TimeStart.IsZero() {
		next.TimeStart = e.clock()
	}
	return next, nil
}

// ToggleChecklistItem sets one checklist entry and recomputes step 3.
// Once step 3 is complete an item can no longer be unchecked.
func (e *Evaluator) ToggleChecklistItem(wf *domain.Workflow, index int, checked bool) (*domain.Workflow, error) {
	if Finalized(wf) {
		return nil, domain.NewStepError(domain.StepChecklist, domain.ErrAlreadyFinalized, "")
	}
	if !CanAttemptStep(wf, domain.StepChecklist) {
		return nil, domain.NewStepError(domain.StepChecklist, domain.ErrStepLocked, "")
	}
	if index < 0 || index >= len(wf.Checklist.Items) {
		return nil, domain.NewStepError(domain.StepChecklist, domain.ErrIndexOutOfRange,
			"index %d, checklist has %d items", index, len(wf.Checklist.Items))
	}
	if wf.Checklist.Completed && !checked {
		return nil, domain.NewStepError(domain.StepChecklist, domain.ErrStepCompleted, "")
	}

	next := wf.Clone()
	next.Checklist.Items[index].Checked = checked
	next.Checklist.Completed = allChecked(next.Checklist.Items)
	return next, nil
}

// allChecked is vacuously true for an empty checklist.
func allChecked(items []domain.ChecklistItem) bool {
	for _, it := range items {
		if !it.Checked {
			return false
		}
	}
	return true
}

// FinalizeHandoff completes step 5 and the workflow. It is the only
// transition into the terminal state and cannot be repeated.
func (e *Evaluator) FinalizeHandoff(wf *domain.Workflow) (*domain.Workflow, error) {
	if !wf.StepCompleted(domain.StepAfter) {
		return nil, domain.NewStepError(domain.StepHandoff, domain.ErrStepLocked, "")
	}
	if wf.Handoff.Completed {
		return nil, domain.NewStepError(domain.StepHandoff, domain.ErrAlreadyFinalized, "")
	}

	next := wf.Clone()
	next.Handoff.Completed = true
	next.TimeEnd = e.clock()
	next.Status = domain.WorkflowCompleted
	return next, nil
}
