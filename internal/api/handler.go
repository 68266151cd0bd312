// Package api provides the HTTP layer over the job manager and the schema
// registry. Request and response encoding is JSON; everything else is the
// orchestration core's concern.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"lakerunner/internal/domain"
	"lakerunner/internal/engine"
	"lakerunner/internal/jobs"
	"lakerunner/internal/schema"
)

// Handler serves the query-job and schema-registry endpoints.
type Handler struct {
	jobs    *jobs.Manager
	schemas *schema.Registry
	engines *engine.Registry
	logger  *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(manager *jobs.Manager, schemas *schema.Registry, engines *engine.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{jobs: manager, schemas: schemas, engines: engines, logger: logger}
}

// RouterConfig tunes the HTTP middleware stack.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Router builds the chi router with middleware and all routes.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	submitLimiter := newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r.Route("/v1", func(r chi.Router) {
		r.With(submitLimiter).Post("/queries", h.submitQuery)
		r.Get("/queries/{jobID}", h.getJobStatus)
		r.Get("/queries/{jobID}/result", h.getJobResult)
		r.Post("/queries/{jobID}/cancel", h.cancelJob)

		r.Post("/schemas", h.registerSchema)
		r.Get("/schemas/{table}", h.getCurrentSchema)
		r.Get("/schemas/{table}/versions", h.listSchemaVersions)
		r.Get("/schemas/{table}/versions/{version}", h.getSchemaVersion)

		r.Get("/engines", h.listEngines)
	})
	r.Get("/healthz", h.health)

	return r
}

type submitQueryRequest struct {
	SQL      string `json:"sql"`
	EngineID string `json:"engine_id"`
}

type submitQueryResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

func (h *Handler) submitQuery(w http.ResponseWriter, r *http.Request) {
	var req submitQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	job, err := h.jobs.Submit(r.Context(), req.SQL, req.EngineID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitQueryResponse{JobID: job.ID, State: string(job.State)})
}

type jobStatusResponse struct {
	JobID       string  `json:"job_id"`
	EngineID    string  `json:"engine_id"`
	State       string  `json:"state"`
	SubmittedAt string  `json:"submitted_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	FinishedAt  *string `json:"finished_at,omitempty"`
}

func (h *Handler) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:       job.ID,
		EngineID:    job.EngineID,
		State:       string(job.State),
		SubmittedAt: job.SubmittedAt.Format(time.RFC3339Nano),
		StartedAt:   formatTimePtr(job.StartedAt),
		FinishedAt:  formatTimePtr(job.FinishedAt),
	})
}

type jobResultResponse struct {
	JobID     string                 `json:"job_id"`
	State     string                 `json:"state"`
	Columns   []domain.ResultColumn  `json:"columns,omitempty"`
	Rows      [][]interface{}        `json:"rows,omitempty"`
	Stats     *domain.QueryStats     `json:"stats,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

func (h *Handler) getJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	result, jobErr, err := h.jobs.GetResult(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := jobResultResponse{JobID: jobID}
	switch {
	case jobErr != nil:
		resp.ErrorKind = string(jobErr.Kind)
		resp.Message = jobErr.Message
		if jobErr.Kind == domain.ErrorKindCancelled {
			resp.State = string(domain.JobStateCancelled)
		} else {
			resp.State = string(domain.JobStateFailed)
		}
	default:
		resp.State = string(domain.JobStateSucceeded)
		resp.Columns = result.Columns
		resp.Rows = result.Rows
		resp.Stats = &result.Stats
	}
	writeJSON(w, http.StatusOK, resp)
}

type cancelJobResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	job, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelJobResponse{JobID: jobID, State: string(job.State)})
}

type engineStatus struct {
	domain.EngineDescriptor
	QueueDepth int `json:"queue_depth"`
}

func (h *Handler) listEngines(w http.ResponseWriter, r *http.Request) {
	descriptors := h.engines.Descriptors()
	engines := make([]engineStatus, 0, len(descriptors))
	for _, desc := range descriptors {
		engines = append(engines, engineStatus{
			EngineDescriptor: desc,
			QueueDepth:       h.jobs.QueueDepth(desc.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engines": engines,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	engines := make(map[string]string)
	for _, desc := range h.engines.Descriptors() {
		a, err := h.engines.Get(desc.ID)
		if err != nil {
			continue
		}
		if err := a.Ping(r.Context()); err != nil {
			engines[desc.ID] = err.Error()
			status = "degraded"
		} else {
			engines[desc.ID] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"engines": engines,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatusFromDomainError(err), map[string]string{
		"error": err.Error(),
	})
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
