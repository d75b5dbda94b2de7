package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/propdesk/turnover/internal/domain"
)

// memStore is an in-memory WorkflowStore + TaskStore with the same
// version semantics as the SQL store.
type memStore struct {
	mu        sync.Mutex
	workflows map[string]*domain.Workflow // by task id
	tasks     map[string]*domain.Task
	seq       int

	failUpdate     error
	failTaskUpdate error
	updates        int
}

func newMemStore() *memStore {
	return &memStore{
		workflows: make(map[string]*domain.Workflow),
		tasks:     make(map[string]*domain.Task),
	}
}

func (m *memStore) CreateWorkflow(_ context.Context, taskID string, checklist []domain.ChecklistItem) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[taskID]; ok {
		return nil, domain.ErrWorkflowExists
	}
	m.seq++
	wf := domain.NewWorkflow(fmt.Sprintf("wf-%d", m.seq), taskID, checklist, time.Now())
	m.workflows[taskID] = wf
	return wf.Clone(), nil
}

func (m *memStore) GetWorkflowByTask(_ context.Context, taskID string) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[taskID]
	if !ok {
		return nil, nil
	}
	return wf.Clone(), nil
}

func (m *memStore) UpdateStep(ctx context.Context, wf *domain.Workflow, _ domain.StepNumber) (*domain.Workflow, error) {
	return m.UpdateWorkflow(ctx, wf)
}

func (m *memStore) UpdateWorkflow(_ context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return nil, m.failUpdate
	}
	cur, ok := m.workflows[wf.TaskID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if cur.Version != wf.Version {
		return nil, domain.ErrStaleWorkflow
	}
	next := wf.Clone()
	next.Version++
	m.workflows[wf.TaskID] = next
	m.updates++
	return next.Clone(), nil
}

func (m *memStore) InsertTask(_ context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return domain.ErrTaskExists
	}
	m.tasks[t.ID] = &t
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (m *memStore) ListTasks(_ context.Context, _ domain.TaskFilter) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) UpdateTaskStatus(_ context.Context, id string, status domain.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTaskUpdate != nil {
		return m.failTaskUpdate
	}
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.Status = status
	return nil
}

func (m *memStore) taskStatus(id string) domain.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id].Status
}

// fakeUploader returns deterministic URLs and can be told to fail.
type fakeUploader struct {
	mu    sync.Mutex
	calls int
	fail  error
	block chan struct{} // when set, Upload waits on it
}

func (u *fakeUploader) Upload(ctx context.Context, workflowID string, step domain.StepNumber, f domain.EvidenceFile) (string, error) {
	if u.block != nil {
		<-u.block
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail != nil {
		return "", u.fail
	}
	u.calls++
	if f.Body != nil {
		_, _ = io.Copy(io.Discard, f.Body)
	}
	return fmt.Sprintf("mem://%s/%d/%d-%s", workflowID, step, u.calls, f.Name), nil
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, domain.Event) error {
	return errors.New("bus down")
}

func files(n int) []domain.EvidenceFile {
	out := make([]domain.EvidenceFile, n)
	for i := range out {
		out[i] = domain.EvidenceFile{
			Name:        fmt.Sprintf("photo-%d.jpg", i),
			ContentType: "image/jpeg",
			Body:        strings.NewReader("jpeg-bytes"),
		}
	}
	return out
}
