package compilation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"github.com/maauso/mindset-media-api/internal/media"
)

// Strategy names one way of opening a clip.
type Strategy string

const (
	// StrategyFull opens every stream, audio included.
	StrategyFull Strategy = "full"
	// StrategyVideoFirst opens the video stream alone and then tries to
	// reattach audio, keeping the video-only clip when that fails.
	StrategyVideoFirst Strategy = "video-first"
	// StrategyForcedReload reopens the video stream from scratch with an
	// enlarged probe window and no audio.
	StrategyForcedReload Strategy = "forced-reload"
)

// Forced reload probe window.
const (
	forcedProbeSize       = "100M"
	forcedAnalyzeDuration = "100M"
)

// Prober reads stream metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string, opts media.ProbeOptions) (media.ProbeResult, error)
}

// ClipSource is the media backend the loader opens clips with.
type ClipSource interface {
	Prober
	FrameExtractor
}

// opened is what a strategy learns about a file.
type opened struct {
	width     int
	height    int
	duration  float64
	frameRate string
	hasAudio  bool
}

type openFunc func(ctx context.Context, src ClipSource, path string, logger *slog.Logger) (opened, error)

type strategy struct {
	name Strategy
	open openFunc
}

// defaultStrategies returns the load ladder, tried in order.
func defaultStrategies() []strategy {
	return []strategy{
		{name: StrategyFull, open: openFull},
		{name: StrategyVideoFirst, open: openVideoFirst},
		{name: StrategyForcedReload, open: openForcedReload},
	}
}

// Loader turns fetched files into clips, retrying with escalating strategies.
type Loader struct {
	src         ClipSource
	logger      *slog.Logger
	strategies  []strategy
	retryDelay  time.Duration
	settleDelay time.Duration
	lockPoll    time.Duration
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRetryDelay sets the wait between load attempts.
func WithRetryDelay(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.retryDelay = d
	}
}

// WithSettleDelay sets the wait between the two size-stability checks.
func WithSettleDelay(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.settleDelay = d
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader backed by src.
func NewLoader(src ClipSource, opts ...LoaderOption) *Loader {
	l := &Loader{
		src:         src,
		logger:      slog.Default(),
		strategies:  defaultStrategies(),
		retryDelay:  time.Second,
		settleDelay: 500 * time.Millisecond,
		lockPoll:    50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAll loads every path in order. If any clip cannot be loaded, the
// clips already opened are closed and the ClipLoadError is returned.
func (l *Loader) LoadAll(ctx context.Context, paths []string) ([]*Clip, error) {
	clips := make([]*Clip, 0, len(paths))
	for i, path := range paths {
		clip, err := l.Load(ctx, i, path)
		if err != nil {
			if cerr := closeClips(clips); cerr != nil {
				l.logger.Warn("failed to close loaded clips", slog.Any("error", cerr))
			}
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

// Load opens the clip at path. It waits for the file size to settle, takes a
// shared lock on the file (blocking while a download still holds it
// exclusively) and then walks the strategy ladder. Failures are returned as
// *ClipLoadError.
func (l *Loader) Load(ctx context.Context, index int, path string) (*Clip, error) {
	if err := l.waitStable(ctx, path); err != nil {
		return nil, &ClipLoadError{Index: index, Attempts: 0, Err: err}
	}

	lock := flock.New(path)
	locked, err := lock.TryRLockContext(ctx, l.lockPoll)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("shared lock not acquired")
		}
		return nil, &ClipLoadError{Index: index, Attempts: 0, Err: fmt.Errorf("lock %s: %w", path, err)}
	}

	var lastErr error
	for attempt, s := range l.strategies {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				_ = lock.Unlock()
				return nil, &ClipLoadError{Index: index, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(l.retryDelay):
			}
		}

		o, err := l.attempt(ctx, s, path)
		if err == nil {
			l.logger.Info("clip loaded",
				slog.Int("index", index),
				slog.String("strategy", string(s.name)),
				slog.Int("width", o.width),
				slog.Int("height", o.height),
				slog.Float64("duration", o.duration),
				slog.Bool("audio", o.hasAudio),
			)
			return &Clip{
				Index:     index,
				Path:      path,
				Width:     o.width,
				Height:    o.height,
				Duration:  o.duration,
				FrameRate: o.frameRate,
				HasAudio:  o.hasAudio,
				Strategy:  s.name,
				frames:    l.src,
				lock:      lock,
			}, nil
		}

		lastErr = err
		l.logger.Warn("clip load attempt failed",
			slog.Int("index", index),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", len(l.strategies)),
			slog.String("strategy", string(s.name)),
			slog.Any("error", err),
		)
	}

	_ = lock.Unlock()
	return nil, &ClipLoadError{Index: index, Attempts: len(l.strategies), Err: lastErr}
}

// attempt runs one strategy and validates the result: a positive duration
// and a decodable first frame.
func (l *Loader) attempt(ctx context.Context, s strategy, path string) (opened, error) {
	o, err := s.open(ctx, l.src, path, l.logger)
	if err != nil {
		return opened{}, err
	}
	if o.duration <= 0 {
		return opened{}, fmt.Errorf("%w: %.3fs", ErrInvalidDuration, o.duration)
	}
	if _, err := l.src.ExtractFrame(ctx, path, 0); err != nil {
		return opened{}, fmt.Errorf("read first frame: %w", err)
	}
	return o, nil
}

// waitStable checks that the file size does not change across two checks
// settleDelay apart, waiting once more if it does.
func (l *Loader) waitStable(ctx context.Context, path string) error {
	size, err := statSize(path)
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	for _, wait := range []time.Duration{l.settleDelay, 2 * l.settleDelay} {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		next, err := statSize(path)
		if err != nil {
			return err
		}
		if next == size {
			break
		}
		l.logger.Warn("file size changed while settling",
			slog.String("path", path),
			slog.String("before", humanize.Bytes(uint64(size))),
			slog.String("after", humanize.Bytes(uint64(next))),
		)
		size = next
	}

	if size == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return nil
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func fromProbe(r media.ProbeResult) (opened, error) {
	v, ok := r.VideoStream()
	if !ok {
		return opened{}, ErrNoVideoStream
	}
	width, height := v.DisplaySize()
	return opened{
		width:     width,
		height:    height,
		duration:  r.DurationSeconds(),
		frameRate: v.FrameRate(),
		hasAudio:  r.HasAudio(),
	}, nil
}

func openFull(ctx context.Context, src ClipSource, path string, _ *slog.Logger) (opened, error) {
	r, err := src.Probe(ctx, path, media.ProbeOptions{})
	if err != nil {
		return opened{}, err
	}
	return fromProbe(r)
}

func openVideoFirst(ctx context.Context, src ClipSource, path string, logger *slog.Logger) (opened, error) {
	r, err := src.Probe(ctx, path, media.ProbeOptions{SelectStreams: "v:0"})
	if err != nil {
		return opened{}, err
	}
	o, err := fromProbe(r)
	if err != nil {
		return opened{}, err
	}

	ar, err := src.Probe(ctx, path, media.ProbeOptions{SelectStreams: "a:0"})
	switch {
	case err != nil:
		logger.Warn("audio reattach failed, keeping video only", slog.String("path", path), slog.Any("error", err))
		o.hasAudio = false
	default:
		o.hasAudio = ar.HasAudio()
	}
	return o, nil
}

func openForcedReload(ctx context.Context, src ClipSource, path string, _ *slog.Logger) (opened, error) {
	r, err := src.Probe(ctx, path, media.ProbeOptions{
		SelectStreams:   "v:0",
		ProbeSize:       forcedProbeSize,
		AnalyzeDuration: forcedAnalyzeDuration,
	})
	if err != nil {
		return opened{}, err
	}
	o, err := fromProbe(r)
	if err != nil {
		return opened{}, err
	}
	o.hasAudio = false
	return o, nil
}
