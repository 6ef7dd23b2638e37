package compilation

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a failure originates from.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageFetch     Stage = "fetch"
	StageLoad      Stage = "load"
	StageReconcile Stage = "reconcile"
	StageEffect    Stage = "effect"
	StageCompose   Stage = "compose"
	StageMix       Stage = "mix"
	StageExport    Stage = "export"
)

// Static errors for the compilation pipeline.
var (
	// ErrEmptyFile is returned when a fetched file has no content.
	ErrEmptyFile = errors.New("file is empty")
	// ErrNoVideoStream is returned when a file carries no video stream.
	ErrNoVideoStream = errors.New("no video stream")
	// ErrInvalidDuration is returned when a clip reports a non-positive duration.
	ErrInvalidDuration = errors.New("invalid clip duration")
	// ErrClipClosed is returned when frames are requested from a closed clip.
	ErrClipClosed = errors.New("clip is closed")
	// ErrInsufficientDisk is returned when the output directory lacks free space.
	ErrInsufficientDisk = errors.New("insufficient free disk space")
	// ErrEmptyOutput is returned when the encoder produced an empty file.
	ErrEmptyOutput = errors.New("encoder produced an empty file")
)

// Error is the single structured failure returned by Pipeline.Run.
// Index is the input position the failure relates to, or -1 for the
// background track and request-wide steps.
type Error struct {
	Stage Stage
	Index int
	Err   error
}

func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s failed for input %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed request. It is raised before any
// pipeline work starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ClipLoadError reports a clip that could not be opened after every load
// strategy was tried.
type ClipLoadError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ClipLoadError) Error() string {
	return fmt.Sprintf("load clip %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *ClipLoadError) Unwrap() error {
	return e.Err
}

// CompositionError reports a failure while resizing, applying the effect,
// concatenating or mixing. Index is -1 when no single clip is at fault.
type CompositionError struct {
	Step  string
	Index int
	Err   error
}

func (e *CompositionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s clip %d: %v", e.Step, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// ExportError reports an encoder or output write failure.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
