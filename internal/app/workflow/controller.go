// Package workflow orchestrates worker actions on a task's five-step
// workflow: it validates through the step gate, talks to the upload and
// record-store collaborators, and propagates handoff to the owning task.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/app/gate"
	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/infra/lock"
	"github.com/propdesk/turnover/internal/infra/metrics"
	"github.com/propdesk/turnover/internal/infra/scheduler"
)

const tracerName = "github.com/propdesk/turnover/internal/app/workflow"

// Deps are the collaborators a Controller works against.
// Workflows, Tasks and Uploader are required.
type Deps struct {
	Workflows domain.WorkflowStore
	Tasks     domain.TaskStore
	Uploader  domain.EvidenceUploader
	Locker    domain.Locker         // defaults to an in-process busy set
	Events    domain.EventPublisher // optional
	Retries   *scheduler.RetryQueue // optional; retries failed task starts
	Logger    *zap.Logger           // defaults to a no-op logger
	Clock     func() time.Time      // defaults to time.Now
}

// Controller is the single entry point for mutating workflows.
type Controller struct {
	workflows domain.WorkflowStore
	tasks     domain.TaskStore
	uploader  domain.EvidenceUploader
	locker    domain.Locker
	events    domain.EventPublisher
	retries   *scheduler.RetryQueue
	gate      *gate.Evaluator
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewController wires a controller.
func NewController(d Deps) *Controller {
	c := &Controller{
		workflows: d.Workflows,
		tasks:     d.Tasks,
		uploader:  d.Uploader,
		locker:    d.Locker,
		events:    d.Events,
		retries:   d.Retries,
		log:       d.Logger,
		now:       d.Clock,
		tracer:    otel.Tracer(tracerName),
	}
	if c.locker == nil {
		c.locker = lock.NewMemory()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.gate = gate.NewWithClock(c.now)
	return c
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Open returns the task's workflow, creating it with the default checklist
// the first time the task is opened.
func (c *Controller) Open(ctx context.Context, actor domain.Actor, taskID string) (*domain.Workflow, error) {
	ctx, span := c.tracer.Start(ctx, "workflow.Open", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	if err := checkActor(actor); err != nil {
		return nil, endSpan(span, err)
	}
	if _, err := c.loadTask(ctx, taskID); err != nil {
		return nil, endSpan(span, err)
	}
	wf, err := c.getOrCreate(ctx, actor, taskID)
	return wf, endSpan(span, err)
}

// Get returns the task's workflow without creating one.
func (c *Controller) Get(ctx context.Context, taskID string) (*domain.Workflow, error) {
	wf, err := c.workflows.GetWorkflowByTask(ctx, taskID)
	if err != nil {
		return nil, domain.Collaborator("load workflow", err)
	}
	if wf == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return wf, nil
}

func (c *Controller) getOrCreate(ctx context.Context, actor domain.Actor, taskID string) (*domain.Workflow, error) {
	wf, err := c.workflows.GetWorkflowByTask(ctx, taskID)
	if err != nil {
		return nil, domain.Collaborator("load workflow", err)
	}
	if wf != nil {
		return wf, nil
	}

	wf, err = c.workflows.CreateWorkflow(ctx, taskID, domain.DefaultChecklist())
	if errors.Is(err, domain.ErrWorkflowExists) {
		// Lost a creation race; the winner's record is the workflow.
		wf, err = c.workflows.GetWorkflowByTask(ctx, taskID)
		if err == nil && wf == nil {
			err = domain.ErrWorkflowNotFound
		}
		if err != nil {
			return nil, domain.Collaborator("load workflow", err)
		}
		return wf, nil
	}
	if err != nil {
		return nil, domain.Collaborator("create workflow", err)
	}

	metrics.WorkflowsCreated.Inc()
	c.log.Info("workflow created",
		zap.String("task_id", taskID),
		zap.String("workflow_id", wf.ID),
		zap.String("actor", actor.ID))
	c.publish(ctx, domain.Event{
		Type:       domain.EventWorkflowCreated,
		TaskID:     taskID,
		WorkflowID: wf.ID,
		State:      wf.State().String(),
		Actor:      actor.ID,
	})
	return wf, nil
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// UploadEvidence stores photos for step 1, 2 or 4 and records them on the
// workflow. The batch must bring the step to its photo minimum; the check
// runs before anything is uploaded.
func (c *Controller) UploadEvidence(ctx context.Context, actor domain.Actor, taskID string, step domain.StepNumber, files []domain.EvidenceFile) (*domain.Workflow, error) {
	return c.mutate(ctx, "upload", actor, taskID, step, func(ctx context.Context, task *domain.Task, wf *domain.Workflow) (*domain.Workflow, error) {
		if !step.IsPhotoStep() {
			return nil, domain.NewStepError(step, domain.ErrInvalidStep, "only steps 1, 2 and 4 take photos")
		}
		if gate.Finalized(wf) {
			return nil, domain.NewStepError(step, domain.ErrAlreadyFinalized, "")
		}
		if !gate.CanAttemptStep(wf, step) {
			return nil, domain.NewStepError(step, domain.ErrStepLocked, "")
		}
		have := len(wf.PhotoSlot(step).Photos)
		need := gate.RequiredEvidence(step)
		if len(files) == 0 || have+len(files) < need {
			return nil, domain.NewStepError(step, domain.ErrInsufficientEvidence,
				"selected %d, already stored %d, need %d", len(files), have, need)
		}

		urls := make([]string, 0, len(files))
		for _, f := range files {
			url, err := c.uploader.Upload(ctx, wf.ID, step, f)
			if err != nil {
				return nil, domain.Collaborator("upload evidence", err)
			}
			urls = append(urls, url)
			metrics.EvidenceUploaded.WithLabelValues(step.String()).Inc()
		}

		next, err := c.gate.ApplyPhotoEvidence(wf, step, urls)
		if err != nil {
			return nil, err
		}
		c.stamp(next, actor)

		saved, err := c.workflows.UpdateStep(ctx, next, step)
		if err != nil {
			return nil, domain.Collaborator("save workflow step", err)
		}

		c.publish(ctx, domain.Event{
			Type:       domain.EventEvidenceAdded,
			TaskID:     taskID,
			WorkflowID: saved.ID,
			Step:       step,
			State:      saved.State().String(),
			Actor:      actor.ID,
		})
		c.afterStep(ctx, actor, wf, saved, step)

		if step == domain.StepAccess && saved.Access.Completed && task.Status == domain.TaskPending {
			c.startTask(ctx, actor, task)
		}
		return saved, nil
	})
}

// ToggleChecklist checks or unchecks one step-3 item.
func (c *Controller) ToggleChecklist(ctx context.Context, actor domain.Actor, taskID string, index int, checked bool) (*domain.Workflow, error) {
	return c.mutate(ctx, "checklist", actor, taskID, domain.StepChecklist, func(ctx context.Context, _ *domain.Task, wf *domain.Workflow) (*domain.Workflow, error) {
		next, err := c.gate.ToggleChecklistItem(wf, index, checked)
		if err != nil {
			return nil, err
		}
		c.stamp(next, actor)

		saved, err := c.workflows.UpdateStep(ctx, next, domain.StepChecklist)
		if err != nil {
			return nil, domain.Collaborator("save workflow step", err)
		}

		c.publish(ctx, domain.Event{
			Type:       domain.EventChecklistToggled,
			TaskID:     taskID,
			WorkflowID: saved.ID,
			Step:       domain.StepChecklist,
			State:      saved.State().String(),
			Actor:      actor.ID,
		})
		c.afterStep(ctx, actor, wf, saved, domain.StepChecklist)
		return saved, nil
	})
}

// SubmitHandoff completes step 5, closes the workflow and marks the task
// completed. When a previous handoff persisted but its task update failed,
// the task status is repaired before ErrAlreadyFinalized is reported.
func (c *Controller) SubmitHandoff(ctx context.Context, actor domain.Actor, taskID string) (*domain.Workflow, error) {
	return c.mutate(ctx, "handoff", actor, taskID, domain.StepHandoff, func(ctx context.Context, task *domain.Task, wf *domain.Workflow) (*domain.Workflow, error) {
		next, err := c.gate.FinalizeHandoff(wf)
		if errors.Is(err, domain.ErrAlreadyFinalized) && !task.IsDone() {
			if serr := c.setTaskStatus(ctx, actor, task, domain.TaskCompleted); serr != nil {
				return nil, serr
			}
			c.log.Warn("repaired task status after earlier handoff",
				zap.String("task_id", taskID),
				zap.String("workflow_id", wf.ID))
		}
		if err != nil {
			return nil, err
		}
		c.stamp(next, actor)

		saved, err := c.workflows.UpdateWorkflow(ctx, next)
		if err != nil {
			return nil, domain.Collaborator("save workflow", err)
		}

		metrics.WorkflowsCompleted.Inc()
		if !saved.TimeStart.IsZero() {
			metrics.WorkflowDuration.Observe(saved.TimeEnd.Sub(saved.TimeStart).Seconds())
		}
		c.afterStep(ctx, actor, wf, saved, domain.StepHandoff)
		c.publish(ctx, domain.Event{
			Type:       domain.EventWorkflowCompleted,
			TaskID:     taskID,
			WorkflowID: saved.ID,
			Step:       domain.StepHandoff,
			State:      saved.State().String(),
			Actor:      actor.ID,
		})

		if err := c.setTaskStatus(ctx, actor, task, domain.TaskCompleted); err != nil {
			return nil, err
		}
		return saved, nil
	})
}

// SetTaskStatus lets a manager move a task outside the workflow (verify,
// archive, reopen). Workflow-driven transitions go through the mutations above.
func (c *Controller) SetTaskStatus(ctx context.Context, actor domain.Actor, taskID string, status domain.TaskStatus) (*domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleManager {
		return nil, fmt.Errorf("%w: only managers change task status directly", domain.ErrForbidden)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	task, err := c.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := c.setTaskStatus(ctx, actor, task, status); err != nil {
		return nil, err
	}
	task.Status = status
	return task, nil
}

// mutate runs fn against a freshly loaded snapshot while holding the
// workflow's busy lock. fn computes the full next state before writing.
func (c *Controller) mutate(ctx context.Context, op string, actor domain.Actor, taskID string, step domain.StepNumber,
	fn func(ctx context.Context, task *domain.Task, wf *domain.Workflow) (*domain.Workflow, error)) (*domain.Workflow, error) {

	start := c.now()
	ctx, span := c.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.Int("workflow.step", int(step)),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()
	defer func() { metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	wf, err := c.prepare(ctx, op, actor, taskID, step, fn)
	if err != nil {
		metrics.GateRejections.WithLabelValues(op, Reason(err)).Inc()
		c.log.Info("workflow action rejected",
			zap.String("op", op),
			zap.String("task_id", taskID),
			zap.Int("step", int(step)),
			zap.String("actor", actor.ID),
			zap.Error(err))
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.String("workflow.state", wf.State().String()))
	return wf, nil
}

func (c *Controller) prepare(ctx context.Context, op string, actor domain.Actor, taskID string, step domain.StepNumber,
	fn func(ctx context.Context, task *domain.Task, wf *domain.Workflow) (*domain.Workflow, error)) (*domain.Workflow, error) {

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	task, err := c.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !actor.CanActOn(task) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotAssigned, task.AssignedTo)
	}

	wf, err := c.getOrCreate(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}

	unlock, err := c.locker.TryLock(ctx, "workflow:"+wf.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Reload under the lock so fn sees the latest persisted snapshot.
	current, err := c.workflows.GetWorkflowByTask(ctx, taskID)
	if err != nil {
		return nil, domain.Collaborator("load workflow", err)
	}
	if current == nil {
		return nil, domain.ErrWorkflowNotFound
	}

	c.log.Debug("workflow action",
		zap.String("op", op),
		zap.String("task_id", taskID),
		zap.String("workflow_id", current.ID),
		zap.Int("step", int(step)),
		zap.String("state", current.State().String()))
	return fn(ctx, task, current)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (c *Controller) loadTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, domain.Collaborator("load task", err)
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func (c *Controller) stamp(wf *domain.Workflow, actor domain.Actor) {
	wf.UpdatedBy = actor.ID
	wf.UpdatedAt = c.now()
}

// afterStep records a step that this action newly completed.
func (c *Controller) afterStep(ctx context.Context, actor domain.Actor, before, after *domain.Workflow, step domain.StepNumber) {
	if before.StepCompleted(step) || !after.StepCompleted(step) {
		return
	}
	metrics.StepsCompleted.WithLabelValues(step.String()).Inc()
	c.log.Info("workflow step completed",
		zap.String("task_id", after.TaskID),
		zap.String("workflow_id", after.ID),
		zap.Int("step", int(step)),
		zap.String("state", after.State().String()),
		zap.String("actor", actor.ID))
	c.publish(ctx, domain.Event{
		Type:       domain.EventStepCompleted,
		TaskID:     after.TaskID,
		WorkflowID: after.ID,
		Step:       step,
		State:      after.State().String(),
		Actor:      actor.ID,
	})
}

// startTask moves a pending task into progress. The workflow is already
// saved at this point, so a failure is logged and queued for retry rather
// than returned.
func (c *Controller) startTask(ctx context.Context, actor domain.Actor, task *domain.Task) {
	err := c.setTaskStatus(ctx, actor, task, domain.TaskInProgress)
	if err == nil {
		return
	}
	c.log.Warn("could not move task to in_progress",
		zap.String("task_id", task.ID),
		zap.Error(err))
	if c.retries != nil {
		c.retries.ScheduleRetry(scheduler.RetryEntry{
			TaskID: task.ID,
			From:   task.Status,
			To:     domain.TaskInProgress,
			Actor:  actor.ID,
			Error:  err.Error(),
		})
	}
}

// RepairTaskStatus applies a deferred status change if the task is still in
// the status the change was computed from. Used as the retry queue's apply
// function.
func (c *Controller) RepairTaskStatus(ctx context.Context, e scheduler.RetryEntry) error {
	task, err := c.loadTask(ctx, e.TaskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		metrics.StatusRetries.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		return err
	}
	if task.Status != e.From {
		metrics.StatusRetries.WithLabelValues("skipped").Inc()
		c.log.Info("deferred task status change superseded",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.String("wanted", string(e.To)))
		return nil
	}
	return c.setTaskStatus(ctx, domain.Actor{ID: e.Actor}, task, e.To)
}

func (c *Controller) setTaskStatus(ctx context.Context, actor domain.Actor, task *domain.Task, status domain.TaskStatus) error {
	if err := c.tasks.UpdateTaskStatus(ctx, task.ID, status); err != nil {
		return domain.Collaborator("update task status", err)
	}
	metrics.TaskTransitions.WithLabelValues(string(status)).Inc()
	c.log.Info("task status changed",
		zap.String("task_id", task.ID),
		zap.String("from", string(task.Status)),
		zap.String("to", string(status)),
		zap.String("actor", actor.ID))
	c.publish(ctx, domain.Event{
		Type:       domain.EventTaskStatusChanged,
		TaskID:     task.ID,
		TaskStatus: status,
		Actor:      actor.ID,
	})
	return nil
}

func (c *Controller) publish(ctx context.Context, ev domain.Event) {
	if c.events == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = c.now()
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("task_id", ev.TaskID),
			zap.Error(err))
	}
}

func checkActor(a domain.Actor) error {
	if a.ID == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Reason maps an error to a short label for metrics and API payloads.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrStepLocked):
		return "step_locked"
	case errors.Is(err, domain.ErrInsufficientEvidence):
		return "insufficient_evidence"
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, domain.ErrStepCompleted):
		return "step_completed"
	case errors.Is(err, domain.ErrInvalidStep):
		return "invalid_step"
	case errors.Is(err, domain.ErrWorkflowBusy):
		return "busy"
	case errors.Is(err, domain.ErrStaleWorkflow):
		return "stale"
	case errors.Is(err, domain.ErrNotAssigned):
		return "not_assigned"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrWorkflowNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTaskExists):
		return "task_exists"
	case errors.Is(err, domain.ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, domain.ErrInvalidTaskType):
		return "invalid_task_type"
	case errors.Is(err, domain.ErrCollaboratorIO):
		return "collaborator_io"
	}
	return "internal"
}
