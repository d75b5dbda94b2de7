package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/propdesk/turnover/internal/domain"
)

// Binder rewrites '?' placeholders for the target driver.
type Binder func(query string) string

// QuestionMarks leaves queries untouched (SQLite).
func QuestionMarks(q string) string { return q }

// Dollars converts ? placeholders to $1, $2, ... for PostgreSQL.
func Dollars(query string) string {
	n := 1
	var out strings.Builder
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// Store implements domain.WorkflowStore and domain.TaskStore.
type Store struct {
	db   *sql.DB
	bind Binder
	now  func() time.Time
}

// New wraps an open connection.
func New(db *sql.DB, bind Binder) *Store {
	if bind == nil {
		bind = QuestionMarks
	}
	return &Store{db: db, bind: bind, now: time.Now}
}

// SetClock overrides the clock used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Ping checks database connectivity.
func (s *Store) Ping() error { return s.db.Ping() }

// PingContext checks database connectivity.
func (s *Store) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close cleanly shuts down the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.bind(q), args...)
}

func (s *Store) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.bind(q), args...)
}

// ─── Task Repository ────────────────────────────────────────────────────────

const taskColumns = `id, type, title, status, property_id, assigned_to, scheduled_at, created_at, updated_at`

// InsertTask creates a new task record.
func (s *Store) InsertTask(ctx context.Context, t domain.Task) error {
	if t.ID == "" {
		return fmt.Errorf("insert task: empty id")
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = domain.TaskPending
	}
	res, err := s.exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, string(t.Type), t.Title, string(t.Status),
		nullStr(t.PropertyID), nullStr(t.AssignedTo), nullableMillis(t.ScheduledAt),
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert task %s: %w", t.ID, domain.ErrTaskExists)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil, nil when absent.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns tasks matching filter, soonest scheduled first.
func (s *Store) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}

	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY COALESCE(scheduled_at, created_at) ASC, id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets a task's status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	res, err := s.exec(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// ─── Workflow Repository ────────────────────────────────────────────────────

const workflowColumns = `id, task_id, step_access, step_before, step_checklist, step_after, step_handoff,
	time_start, time_end, status, version, updated_by, created_at, updated_at`

// CreateWorkflow seeds a workflow for taskID. The unique task_id
// constraint turns a second create into ErrWorkflowExists.
func (s *Store) CreateWorkflow(ctx context.Context, taskID string, checklist []domain.ChecklistItem) (*domain.Workflow, error) {
	wf := domain.NewWorkflow(uuid.NewString(), taskID, checklist, s.now())
	enc, err := encodeSteps(wf)
	if err != nil {
		return nil, err
	}

	res, err := s.exec(ctx,
		`INSERT INTO workflows (`+workflowColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (task_id) DO NOTHING`,
		wf.ID, wf.TaskID, enc.access, enc.before, enc.checklist, enc.after, wf.Handoff.Completed,
		nullableMillis(wf.TimeStart), nullableMillis(wf.TimeEnd), string(wf.Status), wf.Version,
		nullStr(wf.UpdatedBy), wf.CreatedAt.UnixMilli(), wf.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrWorkflowExists
	}
	return s.getWorkflow(ctx, `id = ?`, wf.ID)
}

// GetWorkflowByTask returns nil, nil when the task has no workflow.
func (s *Store) GetWorkflowByTask(ctx context.Context, taskID string) (*domain.Workflow, error) {
	return s.getWorkflow(ctx, `task_id = ?`, taskID)
}

// GetWorkflow returns a workflow by its own id, nil, nil when absent.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return s.getWorkflow(ctx, `id = ?`, id)
}

func (s *Store) getWorkflow(ctx context.Context, cond string, arg any) (*domain.Workflow, error) {
	row := s.queryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE `+cond, arg)
	return scanWorkflow(row)
}

// UpdateStep writes one step's payload plus timestamps, status and audit
// fields, guarded by wf.Version.
func (s *Store) UpdateStep(ctx context.Context, wf *domain.Workflow, step domain.StepNumber) (*domain.Workflow, error) {
	enc, err := encodeSteps(wf)
	if err != nil {
		return nil, err
	}

	var col string
	var val any
	switch step {
	case domain.StepAccess:
		col, val = "step_access", enc.access
	case domain.StepBefore:
		col, val = "step_before", enc.before
	case domain.StepChecklist:
		col, val = "step_checklist", enc.checklist
	case domain.StepAfter:
		col, val = "step_after", enc.after
	case domain.StepHandoff:
		col, val = "step_handoff", wf.Handoff.Completed
	default:
		return nil, domain.NewStepError(step, domain.ErrInvalidStep, "no such step")
	}

	res, err := s.exec(ctx,
		`UPDATE workflows SET `+col+` = ?, time_start = ?, time_end = ?, status = ?,
			version = version + 1, updated_by = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		val, nullableMillis(wf.TimeStart), nullableMillis(wf.TimeEnd), string(wf.Status),
		nullStr(wf.UpdatedBy), s.stampOf(wf).UnixMilli(), wf.ID, wf.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update workflow step %d: %w", step, err)
	}
	return s.afterUpdate(ctx, res, wf.ID)
}

// UpdateWorkflow writes every mutable field, guarded by wf.Version.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	enc, err := encodeSteps(wf)
	if err != nil {
		return nil, err
	}
	res, err := s.exec(ctx,
		`UPDATE workflows SET step_access = ?, step_before = ?, step_checklist = ?, step_after = ?,
			step_handoff = ?, time_start = ?, time_end = ?, status = ?,
			version = version + 1, updated_by = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		enc.access, enc.before, enc.checklist, enc.after, wf.Handoff.Completed,
		nullableMillis(wf.TimeStart), nullableMillis(wf.TimeEnd), string(wf.Status),
		nullStr(wf.UpdatedBy), s.stampOf(wf).UnixMilli(), wf.ID, wf.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return s.afterUpdate(ctx, res, wf.ID)
}

func (s *Store) stampOf(wf *domain.Workflow) time.Time {
	if wf.UpdatedAt.IsZero() {
		return s.now()
	}
	return wf.UpdatedAt
}

// afterUpdate distinguishes a missing row from a version conflict and
// returns the stored record on success.
func (s *Store) afterUpdate(ctx context.Context, res sql.Result, id string) (*domain.Workflow, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	stored, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: stored version %d", domain.ErrStaleWorkflow, stored.Version)
	}
	return stored, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var typ, status string
	var propertyID, assignedTo sql.NullString
	var scheduled sql.NullInt64
	var created, updated int64

	err := s.Scan(&t.ID, &typ, &t.Title, &status, &propertyID, &assignedTo, &scheduled, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.Type = domain.TaskType(typ)
	t.Status = domain.TaskStatus(status)
	t.PropertyID = propertyID.String
	t.AssignedTo = assignedTo.String
	t.ScheduledAt = fromMillis(scheduled)
	t.CreatedAt = time.UnixMilli(created)
	t.UpdatedAt = time.UnixMilli(updated)
	return &t, nil
}

func scanWorkflow(s scanner) (*domain.Workflow, error) {
	var wf domain.Workflow
	var access, before, checklist, after, status string
	var timeStart, timeEnd sql.NullInt64
	var updatedBy sql.NullString
	var created, updated int64

	err := s.Scan(&wf.ID, &wf.TaskID, &access, &before, &checklist, &after, &wf.Handoff.Completed,
		&timeStart, &timeEnd, &status, &wf.Version, &updatedBy, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if err := json.Unmarshal([]byte(access), &wf.Access); err != nil {
		return nil, fmt.Errorf("decode step_access: %w", err)
	}
	if err := json.Unmarshal([]byte(before), &wf.Before); err != nil {
		return nil, fmt.Errorf("decode step_before: %w", err)
	}
	if err := json.Unmarshal([]byte(checklist), &wf.Checklist); err != nil {
		return nil, fmt.Errorf("decode step_checklist: %w", err)
	}
	if err := json.Unmarshal([]byte(after), &wf.After); err != nil {
		return nil, fmt.Errorf("decode step_after: %w", err)
	}

	wf.Status = domain.WorkflowStatus(status)
	wf.TimeStart = fromMillis(timeStart)
	wf.TimeEnd = fromMillis(timeEnd)
	wf.UpdatedBy = updatedBy.String
	wf.CreatedAt = time.UnixMilli(created)
	wf.UpdatedAt = time.UnixMilli(updated)
	return &wf, nil
}

type encodedSteps struct {
	access, before, checklist, after string
}

func encodeSteps(wf *domain.Workflow) (encodedSteps, error) {
	var out encodedSteps
	fields := []struct {
		dst *string
		v   any
	}{
		{&out.access, photoDoc(wf.Access)},
		{&out.before, photoDoc(wf.Before)},
		{&out.checklist, checklistDoc(wf.Checklist)},
		{&out.after, photoDoc(wf.After)},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return out, fmt.Errorf("encode workflow step: %w", err)
		}
		*f.dst = string(b)
	}
	return out, nil
}

// photoDoc normalizes nil slices so stored documents always carry [].
func photoDoc(p domain.PhotoStep) domain.PhotoStep {
	if p.Photos == nil {
		p.Photos = []string{}
	}
	return p
}

func checklistDoc(c domain.ChecklistStep) domain.ChecklistStep {
	if c.Items == nil {
		c.Items = []domain.ChecklistItem{}
	}
	return c
}

func nullableMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
