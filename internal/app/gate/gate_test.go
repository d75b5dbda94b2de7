package gate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/turnover/internal/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newEvaluator() *Evaluator {
	return NewWithClock(func() time.Time { return fixedNow })
}

func newWorkflow() *domain.Workflow {
	return domain.NewWorkflow("wf-1", "task-1", domain.DefaultChecklist(), fixedNow.Add(-time.Hour))
}

func photos(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d.jpg", prefix, i)
	}
	return out
}

// completeThrough drives wf until steps 1..last are complete.
func completeThrough(t *testing.T, e *Evaluator, wf *domain.Workflow, last domain.StepNumber) *domain.Workflow {
	t.Helper()
	var err error
	for n := domain.StepAccess; n <= last; n++ {
		switch n {
		case domain.StepChecklist:
			for i := range wf.Checklist.Items {
				wf, err = e.ToggleChecklistItem(wf, i, true)
				require.NoError(t, err)
			}
		case domain.StepHandoff:
			wf, err = e.FinalizeHandoff(wf)
			require.NoError(t, err)
		default:
			wf, err = e.ApplyPhotoEvidence(wf, n, photos(n.String(), RequiredEvidence(n)))
			require.NoError(t, err)
		}
		require.True(t, wf.StepCompleted(n), "step %d", n)
	}
	return wf
}

func TestRequiredEvidence(t *testing.T) {
	assert.Equal(t, 1, RequiredEvidence(domain.StepAccess))
	assert.Equal(t, 3, RequiredEvidence(domain.StepBefore))
	assert.Equal(t, 0, RequiredEvidence(domain.StepChecklist))
	assert.Equal(t, 3, RequiredEvidence(domain.StepAfter))
	assert.Equal(t, 0, RequiredEvidence(domain.StepHandoff))
}

func TestCanAttemptStep(t *testing.T) {
	e := newEvaluator()
	wf := newWorkflow()

	assert.True(t, CanAttemptStep(wf, domain.StepAccess))
	for n := domain.StepBefore; n <= domain.StepHandoff; n++ {
		assert.False(t, CanAttemptStep(wf, n), "step %d", n)
	}
	assert.False(t, CanAttemptStep(wf, 0))
	assert.False(t, CanAttemptStep(wf, 6))

	wf = completeThrough(t, e, wf, domain.StepBefore)
	assert.True(t, CanAttemptStep(wf, domain.StepChecklist))
	assert.False(t, CanAttemptStep(wf, domain.StepAfter))
}

// Attempting step n while step n-1 is incomplete always fails with
// ErrStepLocked and leaves the snapshot untouched.
func TestOrderingInvariant(t *testing.T) {
	e := newEvaluator()

	for prefix := domain.StepAccess - 1; prefix <= domain.StepAfter-1; prefix++ {
		base := newWorkflow()
		if prefix > 0 {
			base = completeThrough(t, e, base, prefix)
		}
		before := base.Clone()

		// step prefix+2 is the first locked step
		locked := prefix + 2
		if locked > domain.StepHandoff {
			continue
		}

		var err error
		switch {
		case locked.IsPhotoStep():
			_, err = e.ApplyPhotoEvidence(base, locked, photos("x", 5))
		case locked == domain.StepChecklist:
			_, err = e.ToggleChecklistItem(base, 0, true)
		case locked == domain.StepHandoff:
			_, err = e.FinalizeHandoff(base)
		}
		require.ErrorIs(t, err, domain.ErrStepLocked, "step %d with S%d", locked, prefix)
		assert.Equal(t, before, base, "snapshot must be unchanged")
	}
}

func TestApplyPhotoEvidence_InvalidStep(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepBefore)

	_, err := e.ApplyPhotoEvidence(wf, domain.StepChecklist, photos("x", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidStep)

	_, err = e.ApplyPhotoEvidence(wf, 9, photos("x", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidStep)
}

func TestThresholdMonotonicity(t *testing.T) {
	for _, step := range []domain.StepNumber{domain.StepAccess, domain.StepBefore, domain.StepAfter} {
		t.Run(step.String(), func(t *testing.T) {
			e := newEvaluator()
			wf := newWorkflow()
			if step > domain.StepAccess {
				wf = completeThrough(t, e, wf, step-1)
			}
			required := RequiredEvidence(step)

			var err error
			for count := 1; count <= required+2; count++ {
				wf, err = e.ApplyPhotoEvidence(wf, step, []string{fmt.Sprintf("p%d.jpg", count)})
				require.NoError(t, err)

				assert.Len(t, wf.PhotoSlot(step).Photos, count)
				assert.Equal(t, count >= required, wf.StepCompleted(step), "count %d", count)
			}
		})
	}
}

func TestApplyPhotoEvidence_DoesNotMutateInput(t *testing.T) {
	e := newEvaluator()
	wf := newWorkflow()

	next, err := e.ApplyPhotoEvidence(wf, domain.StepAccess, []string{"door.jpg"})
	require.NoError(t, err)

	assert.Empty(t, wf.Access.Photos)
	assert.False(t, wf.Access.Completed)
	assert.True(t, wf.TimeStart.IsZero())
	assert.Equal(t, []string{"door.jpg"}, next.Access.Photos)
}

func TestApplyPhotoEvidence_TimeStartSetOnce(t *testing.T) {
	wf := newWorkflow()

	first := NewWithClock(func() time.Time { return fixedNow })
	wf, err := first.ApplyPhotoEvidence(wf, domain.StepAccess, []string{"a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, wf.TimeStart)

	later := NewWithClock(func() time.Time { return fixedNow.Add(time.Hour) })
	wf, err = later.ApplyPhotoEvidence(wf, domain.StepAccess, []string{"b.jpg"})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, wf.TimeStart, "timeStart must not move on later uploads")
}

func TestApplyPhotoEvidence_NoTimeStartForOtherSteps(t *testing.T) {
	e := newEvaluator()
	wf := newWorkflow()
	wf.Access.Completed = true // simulate a record created before timeStart existed

	wf, err := e.ApplyPhotoEvidence(wf, domain.StepBefore, photos("b", 3))
	require.NoError(t, err)
	assert.True(t, wf.TimeStart.IsZero())
}

func TestToggleChecklistItem_OutOfRange(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepBefore)

	for _, idx := range []int{-1, 3, 100} {
		_, err := e.ToggleChecklistItem(wf, idx, true)
		assert.ErrorIs(t, err, domain.ErrIndexOutOfRange, "index %d", idx)
	}
}

func TestToggleChecklistItem_UncheckBeforeComplete(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepBefore)

	wf, err := e.ToggleChecklistItem(wf, 0, true)
	require.NoError(t, err)
	wf, err = e.ToggleChecklistItem(wf, 0, false)
	require.NoError(t, err)
	assert.False(t, wf.Checklist.Items[0].Checked)
	assert.False(t, wf.Checklist.Completed)
}

func TestToggleChecklistItem_NoUncheckAfterComplete(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepChecklist)

	_, err := e.ToggleChecklistItem(wf, 1, false)
	assert.ErrorIs(t, err, domain.ErrStepCompleted)

	// re-checking an already checked item is harmless
	again, err := e.ToggleChecklistItem(wf, 1, true)
	require.NoError(t, err)
	assert.True(t, again.Checklist.Completed)
}

func TestToggleChecklistItem_EmptyChecklistIsVacuouslyComplete(t *testing.T) {
	e := newEvaluator()
	wf := domain.NewWorkflow("wf", "task", nil, fixedNow)
	wf = completeThrough(t, e, wf, domain.StepBefore)

	// no index is valid, and there is nothing left to check
	_, err := e.ToggleChecklistItem(wf, 0, true)
	assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)
	assert.True(t, allChecked(wf.Checklist.Items))
}

func TestChecklistCompleteness(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepBefore)

	var err error
	for i := range wf.Checklist.Items {
		assert.False(t, wf.Checklist.Completed, "before toggle %d", i)
		wf, err = e.ToggleChecklistItem(wf, i, true)
		require.NoError(t, err)
	}
	assert.True(t, wf.Checklist.Completed)
}

func TestFinalizeHandoff(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepAfter)

	done, err := e.FinalizeHandoff(wf)
	require.NoError(t, err)
	assert.True(t, done.Handoff.Completed)
	assert.Equal(t, domain.WorkflowCompleted, done.Status)
	assert.Equal(t, fixedNow, done.TimeEnd)
	assert.Equal(t, domain.S5, done.State())

	assert.Equal(t, domain.WorkflowActive, wf.Status, "input untouched")
}

// A second finalize fails with ErrAlreadyFinalized and keeps timeEnd.
func TestTerminalIdempotence(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepHandoff)
	end := wf.TimeEnd

	later := NewWithClock(func() time.Time { return fixedNow.Add(24 * time.Hour) })
	_, err := later.FinalizeHandoff(wf)
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	assert.Equal(t, end, wf.TimeEnd)
}

func TestPhotosAccumulateAcrossUploads(t *testing.T) {
	e := newEvaluator()
	wf := newWorkflow()

	require.Len(t, wf.Checklist.Items, 3)
	for _, it := range wf.Checklist.Items {
		require.False(t, it.Checked)
	}
	require.Equal(t, domain.S0, wf.State())

	// step 2 before step 1 is done
	_, err := e.ApplyPhotoEvidence(wf, domain.StepBefore, photos("b", 3))
	require.ErrorIs(t, err, domain.ErrStepLocked)

	wf, err = e.ApplyPhotoEvidence(wf, domain.StepAccess, []string{"key.jpg"})
	require.NoError(t, err)
	assert.True(t, wf.Access.Completed)
	assert.False(t, wf.TimeStart.IsZero())

	wf, err = e.ApplyPhotoEvidence(wf, domain.StepBefore, photos("b", 2))
	require.NoError(t, err)
	assert.False(t, wf.Before.Completed)

	wf, err = e.ApplyPhotoEvidence(wf, domain.StepBefore, []string{"b-extra.jpg"})
	require.NoError(t, err)
	assert.True(t, wf.Before.Completed)
	assert.Equal(t, domain.S2, wf.State())
}

func TestChecklistCompletesOnLastItem(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepBefore)

	var err error
	for i := 0; i < 3; i++ {
		wf, err = e.ToggleChecklistItem(wf, i, true)
		require.NoError(t, err)
		assert.Equal(t, i == 2, wf.Checklist.Completed, "after toggle %d", i)
	}
}

func TestHandoffRequiresAfterPhotos(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepChecklist)

	_, err := e.FinalizeHandoff(wf)
	require.ErrorIs(t, err, domain.ErrStepLocked)

	wf, err = e.ApplyPhotoEvidence(wf, domain.StepAfter, photos("after", 3))
	require.NoError(t, err)

	wf, err = e.FinalizeHandoff(wf)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowCompleted, wf.Status)
	assert.False(t, wf.TimeEnd.IsZero())
}

// A finalized workflow rejects further evidence and checklist changes.
func TestFinalizedWorkflowIsReadOnly(t *testing.T) {
	e := newEvaluator()
	wf := completeThrough(t, e, newWorkflow(), domain.StepHandoff)
	require.True(t, Finalized(wf))

	for _, n := range []domain.StepNumber{domain.StepAccess, domain.StepBefore, domain.StepAfter} {
		_, err := e.ApplyPhotoEvidence(wf, n, []string{"late.jpg"})
		require.ErrorIs(t, err, domain.ErrAlreadyFinalized, "step %d", n)
	}
	_, err := e.ToggleChecklistItem(wf, 0, false)
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	_, err = e.ToggleChecklistItem(wf, 1, true)
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)

	assert.Len(t, wf.After.Photos, RequiredEvidence(domain.StepAfter))
	assert.True(t, wf.Checklist.Items[0].Checked)
}

func TestZeroEvaluatorUsesWallClock(t *testing.T) {
	var e Evaluator
	wf, err := e.ApplyPhotoEvidence(newWorkflow(), domain.StepAccess, []string{"a.jpg"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), wf.TimeStart, time.Minute)
}
