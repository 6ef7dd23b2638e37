package compilation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/maauso/mindset-media-api/internal/media"
	"github.com/maauso/mindset-media-api/internal/storage"
)

// Renderer encodes a filter graph to a file.
type Renderer interface {
	Render(ctx context.Context, g *media.Graph, out media.Output) error
}

// Exporter encodes a composition to H.264/AAC MP4.
type Exporter struct {
	renderer  Renderer
	minFree   uint64
	freeSpace func(dir string) (uint64, error)
	logger    *slog.Logger
}

// NewExporter creates an Exporter that refuses to start when the output
// directory has less than minFreeBytes available. A nil logger uses
// slog.Default().
func NewExporter(renderer Renderer, minFreeBytes uint64, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		renderer:  renderer,
		minFree:   minFreeBytes,
		freeSpace: storage.FreeSpace,
		logger:    logger,
	}
}

// exportOptions is the fixed output profile.
func exportOptions(withAudio bool) []string {
	opts := []string{"-c:v", "libx264", "-pix_fmt", "yuv420p"}
	if withAudio {
		opts = append(opts, "-c:a", "aac")
	}
	return append(opts, "-movflags", "+faststart")
}

// Export writes the graph's video and audio labels to path. Any partial
// output is removed on failure.
func (e *Exporter) Export(ctx context.Context, g *media.Graph, video, audio, path string) (err error) {
	if err := e.preflight(filepath.Dir(path)); err != nil {
		return &ExportError{Path: path, Err: err}
	}

	defer func() {
		if err != nil {
			if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
				e.logger.Warn("failed to remove partial export", slog.String("path", path), slog.Any("error", rerr))
			}
		}
	}()

	out := media.Output{
		Path:    path,
		Video:   video,
		Audio:   audio,
		Options: exportOptions(audio != ""),
	}
	if err := e.renderer.Render(ctx, g, out); err != nil {
		return &ExportError{Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return &ExportError{Path: path, Err: ErrEmptyOutput}
	}

	e.logger.Info("export finished",
		slog.String("path", path),
		slog.String("size", humanize.Bytes(uint64(info.Size()))),
	)
	return nil
}

func (e *Exporter) preflight(dir string) error {
	if e.minFree == 0 {
		return nil
	}

	free, err := e.freeSpace(dir)
	if errors.Is(err, storage.ErrFreeSpaceUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}
	if free < e.minFree {
		return fmt.Errorf("%w: %s available, %s required",
			ErrInsufficientDisk, humanize.Bytes(free), humanize.Bytes(e.minFree))
	}
	return nil
}
