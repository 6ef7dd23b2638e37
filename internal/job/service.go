package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/job/id"
	"github.com/maauso/mindset-media-api/internal/storage"
)

// Static errors for the compilation service.
var (
	// ErrVideoNotAvailable is returned when a job has no local output to serve.
	ErrVideoNotAvailable = errors.New("video not available")
	// ErrJobNotFinished is returned when the output of an unfinished job is requested.
	ErrJobNotFinished = errors.New("job has not finished")
	// ErrServiceClosed is returned when a job is submitted after Close.
	ErrServiceClosed = errors.New("service is closed")
)

// StageUpload is recorded when the finished export cannot be uploaded.
const StageUpload compilation.Stage = "upload"

// Pipeline runs one compilation request.
type Pipeline interface {
	Run(ctx context.Context, req compilation.Request, progress compilation.ProgressFunc) (*compilation.Output, error)
}

// Publisher uploads finished exports and removes local files.
type Publisher interface {
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)
	CleanupTemp(ctx context.Context, paths []string) error
	UploadToS3(ctx context.Context, key string, data io.Reader) (string, error)
}

var (
	_ Pipeline  = (*compilation.Pipeline)(nil)
	_ Publisher = (storage.Storage)(nil)
)

// CompilationService orchestrates compilation jobs: it persists them, runs
// them through the pipeline with bounded concurrency and publishes the
// results.
type CompilationService struct {
	repo      Repository
	pipeline  Pipeline
	publisher Publisher
	logger    *slog.Logger

	// sem limits how many pipelines run at once.
	sem chan struct{}

	// timeout bounds a single pipeline run; zero means no limit.
	timeout time.Duration

	// base is cancelled by Close to abort background jobs.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// ServiceOption configures a CompilationService.
type ServiceOption func(*CompilationService)

// WithJobTimeout limits how long a job may run once it has a worker slot.
// Jobs exceeding it end in TIMED_OUT. Non positive values disable the limit.
func WithJobTimeout(d time.Duration) ServiceOption {
	return func(s *CompilationService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewCompilationService creates a service running at most maxConcurrent
// pipelines at a time (at least one). A nil logger uses slog.Default().
func NewCompilationService(repo Repository, pipeline Pipeline, publisher Publisher, maxConcurrent int, logger *slog.Logger, opts ...ServiceOption) *CompilationService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	base, cancel := context.WithCancel(context.Background())
	s := &CompilationService{
		repo:      repo,
		pipeline:  pipeline,
		publisher: publisher,
		logger:    logger,
		sem:       make(chan struct{}, maxConcurrent),
		base:      base,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates req, persists a new job and runs it in the background.
// The returned job is a snapshot in IN_QUEUE state.
func (s *CompilationService) Submit(ctx context.Context, req compilation.Request) (*Job, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	job, err := s.create(ctx, req)
	if err != nil {
		s.wg.Done()
		return nil, err
	}

	snapshot := job.Clone()
	go func() {
		defer s.wg.Done()
		s.execute(s.base, job)
	}()

	return snapshot, nil
}

// Run validates req and runs the job synchronously, returning it in its
// final state. A pipeline failure is recorded on the job, not returned.
func (s *CompilationService) Run(ctx context.Context, req compilation.Request) (*Job, error) {
	job, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, job)
	return job.Clone(), nil
}

func (s *CompilationService) create(ctx context.Context, req compilation.Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := New(req)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.Int("clips", len(req.VideoURLs)),
		slog.Bool("background_audio", req.AudioURL != ""),
		slog.String("format_mode", string(req.FormatMode)),
		slog.Bool("moody_effect", req.ApplyEffect),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// execute waits for a worker slot, runs the pipeline and publishes the
// result. The job's final state is always persisted.
func (s *CompilationService) execute(ctx context.Context, job *Job) {
	logger := s.logger.With(slog.String("job_id", job.ID))

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		_ = job.Cancel()
		s.save(job, logger)
		logger.Warn("job cancelled before start", slog.Any("error", ctx.Err()))
		return
	}

	if err := job.Start(); err != nil {
		logger.Error("failed to start job", slog.Any("error", err))
		return
	}
	s.save(job, logger)

	progress := func(stage compilation.Stage, percent int) {
		job.UpdateProgress(stage, percent)
		s.save(job, logger)
		logger.Debug("job progress", slog.String("stage", string(stage)), slog.Int("progress", percent))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.pipeline.Run(ctx, job.Request, progress)
	if err != nil {
		if timedOut(ctx, err) {
			_ = job.Timeout()
			s.save(job, logger)
			logger.Error("job timed out", slog.Duration("timeout", s.timeout), slog.Any("error", err))
			return
		}
		_ = job.Fail(err)
		s.save(job, logger)
		logger.Error("job failed", slog.Any("error", err))
		return
	}

	url, err := s.publish(ctx, out.Path)
	switch {
	case timedOut(ctx, err):
		_ = job.Timeout()
		s.removeOutput(ctx, out.Path, logger)
		s.save(job, logger)
		logger.Error("job timed out during upload", slog.Duration("timeout", s.timeout), slog.Any("error", err))
		return
	case errors.Is(err, storage.ErrS3NotConfigured):
		logger.Debug("S3 not configured, keeping local output", slog.String("path", out.Path))
	case err != nil:
		job.UpdateProgress(StageUpload, 100)
		_ = job.Fail(fmt.Errorf("upload output: %w", err))
		s.removeOutput(ctx, out.Path, logger)
		s.save(job, logger)
		logger.Error("upload failed", slog.Any("error", err))
		return
	default:
		s.removeOutput(ctx, out.Path, logger)
		logger.Info("output uploaded", slog.String("url", url))
	}

	if err := job.Complete(out); err != nil {
		logger.Error("failed to complete job", slog.Any("error", err))
		return
	}
	if url != "" {
		job.SetOutput("", url)
	}
	s.save(job, logger)

	logger.Info("job completed",
		slog.Float64("duration", out.Duration),
		slog.Int("width", out.Width),
		slog.Int("height", out.Height),
		slog.Bool("mixed_background", out.MixedBackground),
	)
}

// timedOut reports whether err was caused by the job deadline rather than a
// shorter timeout inside the pipeline or a cancellation.
func timedOut(ctx context.Context, err error) bool {
	return err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (s *CompilationService) removeOutput(ctx context.Context, path string, logger *slog.Logger) {
	if err := s.publisher.CleanupTemp(context.WithoutCancel(ctx), []string{path}); err != nil {
		logger.Warn("failed to remove local output", slog.String("path", path), slog.Any("error", err))
	}
}

// publish uploads the export under compilation_<8 hex>.mp4.
func (s *CompilationService) publish(ctx context.Context, path string) (string, error) {
	f, err := s.publisher.LoadTemp(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := fmt.Sprintf("compilation_%s.mp4", id.Short())
	return s.publisher.UploadToS3(ctx, key, f)
}

// save persists job and logs failures; job state updates are best effort
// once the job is running.
func (s *CompilationService) save(job *Job, logger *slog.Logger) {
	if err := s.repo.Save(context.Background(), job); err != nil {
		logger.Error("failed to save job", slog.Any("error", err))
	}
}

// GetJob retrieves a job by ID.
func (s *CompilationService) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.FindByID(ctx, jobID)
}

// ListJobs returns all jobs, newest first.
func (s *CompilationService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// VideoPath returns the local output of a completed job.
func (s *CompilationService) VideoPath(ctx context.Context, jobID string) (string, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", ErrJobNotFinished
	}
	if job.OutputVideoPath == "" {
		return "", ErrVideoNotAvailable
	}
	return job.OutputVideoPath, nil
}

// DeleteVideo removes the local output of a job and clears it from the job.
func (s *CompilationService) DeleteVideo(ctx context.Context, jobID string) error {
	path, err := s.VideoPath(ctx, jobID)
	if err != nil {
		return err
	}

	if err := s.publisher.CleanupTemp(ctx, []string{path}); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	job.ClearOutput()
	if err := s.repo.Save(ctx, job); err != nil {
		return err
	}

	s.logger.Info("video deleted", slog.String("job_id", jobID), slog.String("path", path))
	return nil
}

// Close stops accepting jobs, cancels running ones and waits for them to
// record their final state.
func (s *CompilationService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
