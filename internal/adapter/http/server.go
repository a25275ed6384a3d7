package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/infrastructure/logger"
	"github.com/clipforge/renderd/internal/service"
)

// Server is the thin REST/SSE surface the gateway layer talks to. Auth
// and request persistence live in that layer; this one only needs the
// resolved rendering inputs.
type Server struct {
	orch   *service.Orchestrator
	bus    *service.EventBus
	router *mux.Router
}

func NewServer(orch *service.Orchestrator, bus *service.EventBus) *Server {
	s := &Server{
		orch:   orch,
		bus:    bus,
		router: mux.NewRouter(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/attempts", s.handleAttempts).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/retry", s.handleRetry).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/events", s.handleEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type submitRequest struct {
	UserID          string                  `json:"user_id"`
	ScriptText      string                  `json:"script_text"`
	PlatformProfile string                  `json:"platform_profile"`
	Voice           domain.VoiceSelection   `json:"voice"`
	MediaSelections []domain.MediaSelection `json:"media_selections"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobID, err := s.orch.Submit(r.Context(), service.SubmitRequest{
		UserID:     req.UserID,
		ScriptText: req.ScriptText,
		Profile:    req.PlatformProfile,
		Voice:      req.Voice,
		Media:      req.MediaSelections,
	})
	switch {
	case errors.Is(err, domain.ErrEmptyScript):
		writeError(w, http.StatusUnprocessableEntity, "script is empty")
		return
	case errors.Is(err, domain.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "queue is full")
		return
	case err != nil:
		logger.Error.Printf("submit failed: %v", err)
		writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orch.Status(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		logger.Error.Printf("status lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.orch.Attempts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		logger.Error.Printf("attempts lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.orch.Cancel(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		logger.Error.Printf("cancel failed: %v", err)
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	err := s.orch.Retry(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrNotRetryable):
		writeError(w, http.StatusConflict, "job is not in a failed state")
	case err != nil:
		logger.Error.Printf("retry failed: %v", err)
		writeError(w, http.StatusInternalServerError, "retry failed")
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JobView is the wire shape of a job snapshot.
type JobView struct {
	ID            string           `json:"id"`
	Status        domain.JobStatus `json:"status"`
	Progress      int              `json:"progress"`
	Stage         domain.Stage     `json:"stage,omitempty"`
	ErrorKind     domain.ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	FallbackCount int              `json:"fallback_count"`
	Attempts      int64            `json:"attempts"`
	VideoPath     string           `json:"video_path,omitempty"`
	ThumbnailPath string           `json:"thumbnail_path,omitempty"`
	Duration      float64          `json:"duration_seconds,omitempty"`
	Width         int              `json:"width,omitempty"`
	Height        int              `json:"height,omitempty"`
	FileSize      int64            `json:"file_size,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

func jobView(job *domain.VideoJob) JobView {
	v := JobView{
		ID:            job.ID,
		Status:        job.Status,
		Progress:      job.Progress,
		Stage:         job.Stage,
		ErrorKind:     job.ErrorKind,
		ErrorMessage:  job.ErrorMessage,
		FallbackCount: job.FallbackCount,
		Attempts:      job.Attempts,
		VideoPath:     job.OutputPath,
		ThumbnailPath: job.ThumbnailPath,
		Duration:      job.OutputDuration,
		Width:         job.OutputWidth,
		Height:        job.OutputHeight,
		FileSize:      job.OutputSize,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	if job.CompletedAt.Valid {
		t := job.CompletedAt.Time
		v.CompletedAt = &t
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
