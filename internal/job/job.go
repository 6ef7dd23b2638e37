// Package job provides the Job aggregate for managing compilation jobs.
// It includes the Job entity with its state machine, the repository
// interfaces and implementations for persistence, and the service that runs
// jobs through the compilation pipeline.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a free worker slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job did not finish in time.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// NoIndex marks a failure that is not tied to one input.
const NoIndex = -1

// Job represents one compilation request and its outcome.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Request holds the parameters the job was submitted with.
	Request compilation.Request

	// Stage is the pipeline stage currently running (or last run).
	Stage compilation.Stage
	// Progress is the percentage of completion (0-100).
	Progress int

	// Error contains the error message if the job failed.
	Error string
	// ErrorStage and ErrorIndex locate the failure. ErrorIndex is NoIndex
	// when the failure is not tied to one input.
	ErrorStage compilation.Stage
	ErrorIndex int

	// OutputVideoPath is the local export, empty once uploaded or deleted.
	OutputVideoPath string
	// VideoURL is the public URL after an upload.
	VideoURL string
	// Duration, Width and Height describe the exported video.
	Duration float64
	Width    int
	Height   int
	// MixedBackground reports whether a background track was mixed in.
	MixedBackground bool

	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job for req with a generated ID and initial IN_QUEUE status.
func New(req compilation.Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when the ID needs to be externally generated.
func NewWithID(jobID string, req compilation.Request) *Job {
	now := time.Now()
	return &Job{
		ID:         jobID,
		Status:     StatusInQueue,
		Request:    cloneRequest(req),
		ErrorIndex: NoIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the pipeline output and transitions the job to COMPLETED.
func (j *Job) Complete(out *compilation.Output) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Progress = 100
	if out != nil {
		j.OutputVideoPath = out.Path
		j.Duration = out.Duration
		j.Width = out.Width
		j.Height = out.Height
		j.MixedBackground = out.MixedBackground
	}
	return nil
}

// Fail transitions the job to FAILED and records err. A *compilation.Error
// also sets ErrorStage and ErrorIndex; other errors are attributed to the
// current stage.
func (j *Job) Fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if terr := j.transitionLocked(StatusFailed); terr != nil {
		return terr
	}

	j.ErrorStage = j.Stage
	j.ErrorIndex = NoIndex
	if err == nil {
		return nil
	}
	j.Error = err.Error()

	var ce *compilation.Error
	if errors.As(err, &ce) {
		j.ErrorStage = ce.Stage
		j.ErrorIndex = ce.Index
	}
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state.
func (j *Job) Timeout() error {
	return j.TransitionTo(StatusTimedOut)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress records the running stage and the progress percentage,
// clamped to 0-100. Progress never moves backwards.
func (j *Job) UpdateProgress(stage compilation.Stage, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Stage = stage
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output video path and optional public URL.
func (j *Job) SetOutput(videoPath, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputVideoPath = videoPath
	j.VideoURL = videoURL
	j.UpdatedAt = time.Now()
}

// ClearOutput clears the output video path and URL.
// This is used when deleting the job's video file.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputVideoPath = ""
	j.VideoURL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled ||
		j.Status == StatusTimedOut
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Status:          j.Status,
		Request:         cloneRequest(j.Request),
		Stage:           j.Stage,
		Progress:        j.Progress,
		Error:           j.Error,
		ErrorStage:      j.ErrorStage,
		ErrorIndex:      j.ErrorIndex,
		OutputVideoPath: j.OutputVideoPath,
		VideoURL:        j.VideoURL,
		Duration:        j.Duration,
		Width:           j.Width,
		Height:          j.Height,
		MixedBackground: j.MixedBackground,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

func cloneRequest(req compilation.Request) compilation.Request {
	req.VideoURLs = append([]string(nil), req.VideoURLs...)
	return req
}
