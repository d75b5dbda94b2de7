package api

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propdesk/turnover/internal/domain"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

type createTaskRequest struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	PropertyID  string    `json:"property_id"`
	AssignedTo  string    `json:"assigned_to"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	task, err := s.ctrl.CreateTask(r.Context(), actorFrom(r.Context()), domain.Task{
		ID:          req.ID,
		Type:        domain.TaskType(req.Type),
		Title:       req.Title,
		PropertyID:  req.PropertyID,
		AssignedTo:  req.AssignedTo,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.TaskFilter{
		Status:     domain.TaskStatus(q.Get("status")),
		AssignedTo: q.Get("assignee"),
		Type:       domain.TaskType(q.Get("type")),
	}
	if q.Get("mine") == "true" {
		f.AssignedTo = actorFrom(r.Context()).ID
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	tasks, err := s.ctrl.Tasks(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.ctrl.Task(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleSetTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	task, err := s.ctrl.SetTaskStatus(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "taskID"), domain.TaskStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ─── Workflow ───────────────────────────────────────────────────────────────

// workflowView adds the derived state to the stored record.
type workflowView struct {
	*domain.Workflow
	State string `json:"state"`
}

func view(wf *domain.Workflow) workflowView {
	return workflowView{Workflow: wf, State: wf.State().String()}
}

func (s *Server) handleOpenWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.ctrl.Open(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(wf))
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.ctrl.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(wf))
}

func (s *Server) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	step, err := domain.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart form with 'files': "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]domain.EvidenceFile, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "read upload: "+err.Error())
			return
		}
		opened = append(opened, f)
		files = append(files, domain.EvidenceFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}

	wf, err := s.ctrl.UploadEvidence(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "taskID"), step, files)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(wf))
}

func (s *Server) handleToggleChecklist(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "index must be an integer")
		return
	}
	var req struct {
		Checked *bool `json:"checked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Checked == nil {
		writeError(w, http.StatusBadRequest, "bad_request", `body must be {"checked": true|false}`)
		return
	}
	wf, err := s.ctrl.ToggleChecklist(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "taskID"), index, *req.Checked)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(wf))
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	wf, err := s.ctrl.SubmitHandoff(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(wf))
}

