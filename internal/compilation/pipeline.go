// Package compilation turns an ordered list of remote clips into one
// exported video: fetch, load, reconcile the format, resize and apply the
// effect, concatenate, mix background music and export.
package compilation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/maauso/mindset-media-api/internal/audio"
	"github.com/maauso/mindset-media-api/internal/fetch"
	"github.com/maauso/mindset-media-api/internal/format"
	"github.com/maauso/mindset-media-api/internal/media"
)

// Fetcher downloads remote assets.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, kind fetch.Kind, name string) (*fetch.Asset, error)
}

// Mixer lays a background track under a composition.
type Mixer interface {
	Mix(ctx context.Context, g *media.Graph, in audio.MixInput) (audio.MixResult, error)
}

// Scratchpad creates and removes request-owned temporary files.
type Scratchpad interface {
	TempFiles
	CleanupTemp(ctx context.Context, paths []string) error
}

// ProgressFunc receives the current stage and overall progress (0-100).
type ProgressFunc func(stage Stage, percent int)

// ClipSummary describes how one input was processed.
type ClipSummary struct {
	Index    int             `json:"index"`
	URL      string          `json:"url"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Duration float64         `json:"duration"`
	Category format.Category `json:"category"`
	HasAudio bool            `json:"has_audio"`
	Resized  bool            `json:"resized"`
	Strategy Strategy        `json:"strategy"`
}

// Output is the exported compilation. The caller owns Path.
type Output struct {
	Path            string          `json:"path"`
	Duration        float64         `json:"duration"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	Category        format.Category `json:"category"`
	HasAudio        bool            `json:"has_audio"`
	MixedBackground bool            `json:"mixed_background"`
	Clips           []ClipSummary   `json:"clips"`
}

// Pipeline runs compilation requests. It holds no per-request state and may
// serve several requests concurrently.
type Pipeline struct {
	fetcher  Fetcher
	loader   *Loader
	compiler *Compiler
	mixer    Mixer
	exporter *Exporter
	scratch  Scratchpad
	logger   *slog.Logger
}

// NewPipeline assembles a pipeline. A nil logger uses slog.Default().
func NewPipeline(fetcher Fetcher, loader *Loader, compiler *Compiler, mixer Mixer, exporter *Exporter, scratch Scratchpad, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:  fetcher,
		loader:   loader,
		compiler: compiler,
		mixer:    mixer,
		exporter: exporter,
		scratch:  scratch,
		logger:   logger,
	}
}

// Run executes the whole pipeline for req. Every clip opened and every
// temporary file created is released before Run returns, on success and
// failure alike. Failures are returned as *Error.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (out *Output, err error) {
	if progress == nil {
		progress = func(Stage, int) {}
	}

	if err := req.Validate(); err != nil {
		return nil, &Error{Stage: StageValidate, Index: -1, Err: err}
	}
	mode, _ := format.ParseMode(string(req.FormatMode))

	logger := p.logger.With(slog.Int("clips", len(req.VideoURLs)))
	scratch := &Scratch{}
	var clips []*Clip

	defer func() {
		if cerr := closeClips(clips); cerr != nil {
			logger.Warn("failed to close clips", slog.Any("error", cerr))
		}
		// Cleanup must run even when ctx is already cancelled.
		cleanupCtx := context.WithoutCancel(ctx)
		if cerr := p.scratch.CleanupTemp(cleanupCtx, scratch.Paths()); cerr != nil {
			logger.Warn("failed to remove temporary files", slog.Any("error", cerr))
		}
	}()

	// Fetch
	progress(StageFetch, 0)
	paths := make([]string, len(req.VideoURLs))
	for i, u := range req.VideoURLs {
		asset, err := p.fetcher.Fetch(ctx, u, fetch.KindVideo, fmt.Sprintf("video_%d", i))
		if err != nil {
			return nil, &Error{Stage: StageFetch, Index: i, Err: err}
		}
		scratch.Add(asset.Path)
		paths[i] = asset.Path
		progress(StageFetch, 30*(i+1)/len(req.VideoURLs))
	}

	var trackPath string
	if req.AudioURL != "" {
		asset, err := p.fetcher.Fetch(ctx, req.AudioURL, fetch.KindAudio, "audio")
		if err != nil {
			return nil, &Error{Stage: StageFetch, Index: -1, Err: err}
		}
		scratch.Add(asset.Path)
		trackPath = asset.Path
	}

	// Load
	progress(StageLoad, 30)
	clips, err = p.loader.LoadAll(ctx, paths)
	if err != nil {
		index := -1
		var cle *ClipLoadError
		if errors.As(err, &cle) {
			index = cle.Index
		}
		return nil, &Error{Stage: StageLoad, Index: index, Err: err}
	}

	// Reconcile
	progress(StageReconcile, 40)
	infos := make([]format.Info, len(clips))
	for i, c := range clips {
		info, err := c.Info()
		if err != nil {
			return nil, &Error{Stage: StageReconcile, Index: i, Err: err}
		}
		infos[i] = info
		logger.Info("clip analyzed",
			slog.Int("index", i),
			slog.String("format", info.Description),
			slog.Int("width", info.Width),
			slog.Int("height", info.Height),
		)
	}

	target, err := format.Reconcile(infos, mode)
	if err != nil {
		return nil, &Error{Stage: StageReconcile, Index: -1, Err: err}
	}
	logger.Info("target format", slog.String("target", target.String()), slog.Bool("resize", target.ResizeNeeded))

	// Resize, effect, concatenate
	if req.ApplyEffect {
		progress(StageEffect, 45)
	} else {
		progress(StageCompose, 45)
	}
	comp, err := p.compiler.Compose(ctx, clips, target, Effect{Apply: req.ApplyEffect, Intensity: req.EffectIntensity}, scratch)
	if err != nil {
		return nil, compositionFailure(err)
	}

	// Mix
	audioLabel := comp.Audio
	mixed := false
	if trackPath != "" {
		progress(StageMix, 80)
		res, err := p.mixer.Mix(ctx, comp.Graph, audio.MixInput{
			TrackPath:     trackPath,
			VideoAudio:    comp.Audio,
			VideoDuration: comp.Duration,
			VideoVolume:   req.VideoVolume,
			MusicVolume:   req.MusicVolume,
		})
		if err != nil {
			return nil, &Error{Stage: StageMix, Index: -1, Err: &CompositionError{Step: "mix", Index: -1, Err: err}}
		}
		audioLabel = res.Label
		mixed = true
	}

	// Export
	progress(StageExport, 85)
	outPath, created, err := p.outputPath(ctx, req)
	if err != nil {
		return nil, &Error{Stage: StageExport, Index: -1, Err: &ExportError{Path: req.OutputPath, Err: err}}
	}
	if err := p.exporter.Export(ctx, comp.Graph, comp.Video, audioLabel, outPath); err != nil {
		if created {
			if rerr := os.Remove(outPath); rerr != nil && !os.IsNotExist(rerr) {
				logger.Warn("failed to remove output placeholder", slog.String("path", outPath), slog.Any("error", rerr))
			}
		}
		return nil, &Error{Stage: StageExport, Index: -1, Err: err}
	}
	progress(StageExport, 100)

	out = &Output{
		Path:            outPath,
		Duration:        comp.Duration,
		Width:           target.Width,
		Height:          target.Height,
		Category:        target.Category,
		HasAudio:        audioLabel != "",
		MixedBackground: mixed,
		Clips:           make([]ClipSummary, len(clips)),
	}
	for i, c := range clips {
		out.Clips[i] = ClipSummary{
			Index:    i,
			URL:      req.VideoURLs[i],
			Width:    c.Width,
			Height:   c.Height,
			Duration: c.Duration,
			Category: infos[i].Category,
			HasAudio: c.HasAudio,
			Resized:  target.NeedsResize(c.Width, c.Height),
			Strategy: c.Strategy,
		}
	}

	logger.Info("compilation finished",
		slog.String("path", out.Path),
		slog.Float64("duration", out.Duration),
		slog.Bool("mixed_background", out.MixedBackground),
	)
	return out, nil
}

// outputPath returns the requested output path or a new temp file. created
// reports whether the file was created here and must be removed on failure.
func (p *Pipeline) outputPath(ctx context.Context, req Request) (path string, created bool, err error) {
	if req.OutputPath != "" {
		return req.OutputPath, false, nil
	}
	f, err := p.scratch.CreateTemp(ctx, "compilation", "mp4")
	if err != nil {
		return "", false, err
	}
	path = f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", false, err
	}
	return path, true, nil
}

func compositionFailure(err error) *Error {
	stage, index := StageCompose, -1
	var ce *CompositionError
	if errors.As(err, &ce) {
		index = ce.Index
		if ce.Step == "effect" {
			stage = StageEffect
		}
	}
	return &Error{Stage: stage, Index: index, Err: err}
}
