package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/job"
)

// maxBodyBytes caps the size of JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.CompilationService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.CompilationService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateCompilation handles POST /compilations requests.
func (h *Handlers) CreateCompilation(w http.ResponseWriter, r *http.Request) {
	var body CreateCompilationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(body); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	req := body.toRequest()

	if body.Wait {
		finished, err := h.service.Run(r.Context(), req)
		if err != nil {
			h.writeServiceError(w, err, "failed to run compilation")
			return
		}
		writeJSON(w, http.StatusOK, newJobResponse(finished))
		return
	}

	created, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create job")
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", created.ID),
		slog.Int("clips", len(req.VideoURLs)),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// GetJobVideo handles GET /jobs/{id}/video requests by streaming the local
// export. Range requests are supported.
func (h *Handlers) GetJobVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	path, err := h.service.VideoPath(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get video")
		return
	}

	f, err := os.Open(path) // #nosec G304 - path comes from the job record
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "video file not found", "VIDEO_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open video",
			slog.String("job_id", jobID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open video", "VIDEO_READ_FAILED")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open video", "VIDEO_READ_FAILED")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// DeleteJobVideo handles DELETE /jobs/{id}/video requests.
func (h *Handlers) DeleteJobVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.DeleteVideo(r.Context(), jobID); err != nil {
		h.writeServiceError(w, err, "failed to delete video")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, message string) {
	var ve *compilation.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error(), "VALIDATION_ERROR")
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrJobNotFinished):
		writeError(w, http.StatusConflict, "job has not completed", "JOB_NOT_COMPLETED")
	case errors.Is(err, job.ErrVideoNotAvailable):
		writeError(w, http.StatusNotFound, "video not available", "VIDEO_NOT_FOUND")
	case errors.Is(err, job.ErrServiceClosed):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down", "SERVICE_UNAVAILABLE")
	default:
		h.logger.Error(message, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, message, "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
