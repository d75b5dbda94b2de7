// Package api provides the HTTP server for turnover: task scheduling, the
// five-step completion workflow, a websocket event feed and evidence files.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/app/workflow"
	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/health"
	"github.com/propdesk/turnover/internal/security"
)

// Version is reported by /api/status.
var Version = "0.1.0"

// Server is the turnover HTTP API server.
type Server struct {
	ctrl           *workflow.Controller
	tokens         *security.Tokens // nil = trust X-Worker-* headers
	log            *zap.Logger
	metricsEnabled bool
	health         *health.Checker
	events         http.Handler
	evidence       http.Handler
	maxUpload      int64
	started        time.Time
}

// NewServer creates a new API server.
func NewServer(ctrl *workflow.Controller, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{ctrl: ctrl, log: log, maxUpload: 64 << 20, started: time.Now()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTokens turns on bearer-token authentication.
func (s *Server) SetTokens(t *security.Tokens) { s.tokens = t }

// SetHealth reports checker results on /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetEventFeed mounts the websocket event feed at /api/events.
func (s *Server) SetEventFeed(h http.Handler) { s.events = h }

// SetEvidenceHandler serves locally stored evidence under /evidence/.
func (s *Server) SetEvidenceHandler(h http.Handler) { s.evidence = h }

// SetMaxUpload caps the size of one evidence request body.
func (s *Server) SetMaxUpload(n int64) {
	if n > 0 {
		s.maxUpload = n
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "turnover is running",
			"version": Version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
			"auth":    s.tokens != nil,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	if s.evidence != nil {
		r.Handle("/evidence/*", http.StripPrefix("/evidence/", s.evidence))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		if s.events != nil {
			r.Handle("/events", s.events)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(2 * time.Minute))

			r.Post("/tasks", s.handleCreateTask)
			r.Get("/tasks", s.handleListTasks)
			r.Route("/tasks/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/status", s.handleSetTaskStatus)

				r.Post("/workflow", s.handleOpenWorkflow)
				r.Get("/workflow", s.handleGetWorkflow)
				r.Post("/workflow/steps/{step}/evidence", s.handleUploadEvidence)
				r.Put("/workflow/checklist/{index}", s.handleToggleChecklist)
				r.Post("/workflow/handoff", s.handleHandoff)
			})
		})
	})

	return otelhttp.NewHandler(r, "turnover.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    reason,
		},
	})
}

// writeDomainError maps an engine error to a status code and payload.
func writeDomainError(w http.ResponseWriter, err error) {
	body := map[string]interface{}{
		"message": err.Error(),
		"type":    workflow.Reason(err),
	}
	var se *domain.StepError
	if errors.As(err, &se) {
		body["step"] = int(se.Step)
	}
	writeJSON(w, statusFor(err), map[string]interface{}{"error": body})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrStepLocked),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrStepCompleted),
		errors.Is(err, domain.ErrStaleWorkflow),
		errors.Is(err, domain.ErrWorkflowBusy),
		errors.Is(err, domain.ErrTaskExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientEvidence),
		errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidTaskType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAssigned),
		errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrCollaboratorIO):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// corsMiddleware adds CORS headers for the field app.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Worker-ID, X-Worker-Role")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
