package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/domain"
)

// CreateTask registers a new pending task. Only managers schedule work.
func (c *Controller) CreateTask(ctx context.Context, actor domain.Actor, t domain.Task) (*domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleManager {
		return nil, fmt.Errorf("%w: only managers create tasks", domain.ErrForbidden)
	}
	typ, err := domain.ParseTaskType(string(t.Type))
	if err != nil {
		return nil, err
	}
	t.Type = typ
	t.Title = strings.TrimSpace(t.Title)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := c.now()
	t.Status = domain.TaskPending
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := c.tasks.InsertTask(ctx, t); err != nil {
		if errors.Is(err, domain.ErrTaskExists) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskExists, t.ID)
		}
		return nil, domain.Collaborator("insert task", err)
	}
	c.log.Info("task created",
		zap.String("task_id", t.ID),
		zap.String("type", string(t.Type)),
		zap.String("assigned_to", t.AssignedTo),
		zap.String("actor", actor.ID))
	c.publish(ctx, domain.Event{
		Type:       domain.EventTaskCreated,
		TaskID:     t.ID,
		TaskStatus: t.Status,
		Actor:      actor.ID,
	})
	return &t, nil
}

// Task returns one task.
func (c *Controller) Task(ctx context.Context, taskID string) (*domain.Task, error) {
	return c.loadTask(ctx, taskID)
}

// Tasks lists tasks matching f.
func (c *Controller) Tasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, f.Status)
	}
	if f.Type != "" {
		if _, err := domain.ParseTaskType(string(f.Type)); err != nil {
			return nil, err
		}
	}
	tasks, err := c.tasks.ListTasks(ctx, f)
	if err != nil {
		return nil, domain.Collaborator("list tasks", err)
	}
	return tasks, nil
}
