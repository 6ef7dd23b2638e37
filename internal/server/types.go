// Package server provides the HTTP API of the media compilation service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/format"
	"github.com/maauso/mindset-media-api/internal/job"
)

// CreateCompilationRequest is the HTTP request body for creating a compilation.
// Optional numeric parameters are pointers so that an explicit 0 can be told
// apart from an omitted value.
type CreateCompilationRequest struct {
	// VideoURLs are the clips to concatenate, in order.
	VideoURLs []string `json:"video_urls" validate:"required,min=1,max=10,dive,required,http_url"`
	// AudioURL is an optional background music track.
	AudioURL string `json:"audio_url" validate:"omitempty,http_url"`
	// FormatMode selects the output format (default vertical).
	FormatMode string `json:"format_mode" validate:"omitempty,oneof=vertical horizontal auto keep_original"`
	// ApplyMoodyEffect enables the moody color grade.
	ApplyMoodyEffect bool `json:"apply_moody_effect"`
	// MoodyIntensity is the effect strength (default 0.7).
	MoodyIntensity *float64 `json:"moody_intensity" validate:"omitempty,gte=0,lte=1"`
	// VideoAudioVolume scales the clips' own audio (default 0.8).
	VideoAudioVolume *float64 `json:"video_audio_volume" validate:"omitempty,gte=0,lte=1"`
	// BackgroundMusicVolume scales the background track (default 0.3).
	BackgroundMusicVolume *float64 `json:"background_music_volume" validate:"omitempty,gte=0,lte=1"`
	// Wait runs the compilation synchronously and returns the finished job.
	Wait bool `json:"wait"`
}

// toRequest converts the body into a pipeline request, applying defaults.
func (r CreateCompilationRequest) toRequest() compilation.Request {
	req := compilation.NewRequest(r.VideoURLs...)
	req.AudioURL = r.AudioURL
	if r.FormatMode != "" {
		req.FormatMode = format.Mode(r.FormatMode)
	}
	req.ApplyEffect = r.ApplyMoodyEffect
	if r.MoodyIntensity != nil {
		req.EffectIntensity = *r.MoodyIntensity
	}
	if r.VideoAudioVolume != nil {
		req.VideoVolume = *r.VideoAudioVolume
	}
	if r.BackgroundMusicVolume != nil {
		req.MusicVolume = *r.BackgroundMusicVolume
	}
	return req
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Clips    int    `json:"clips"`

	// Error, ErrorStage and ErrorIndex are set for failed jobs. ErrorIndex
	// is omitted when the failure is not tied to one input.
	Error      string `json:"error,omitempty"`
	ErrorStage string `json:"error_stage,omitempty"`
	ErrorIndex *int   `json:"error_index,omitempty"`

	// VideoURL is the uploaded video, DownloadURL the local download route.
	VideoURL    string `json:"video_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`

	Duration        float64 `json:"duration,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	MixedBackground bool    `json:"mixed_background"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// newJobResponse maps a job to its HTTP representation.
func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Stage:           string(j.Stage),
		Progress:        j.Progress,
		Clips:           len(j.Request.VideoURLs),
		Error:           j.Error,
		ErrorStage:      string(j.ErrorStage),
		VideoURL:        j.VideoURL,
		Duration:        j.Duration,
		Width:           j.Width,
		Height:          j.Height,
		MixedBackground: j.MixedBackground,
		CreatedAt:       j.CreatedAt,
	}
	if j.Status == job.StatusFailed && j.ErrorIndex != job.NoIndex {
		index := j.ErrorIndex
		resp.ErrorIndex = &index
	}
	if j.Status == job.StatusCompleted && j.OutputVideoPath != "" {
		resp.DownloadURL = "/jobs/" + j.ID + "/video"
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
