package compilation

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/flock"

	"github.com/maauso/mindset-media-api/internal/format"
)

// FrameExtractor decodes single frames from a media file.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, at float64) ([]byte, error)
}

// Clip is an opened, seekable video file. While open it holds a shared lock
// on its file; it must be closed before the file is deleted.
type Clip struct {
	Index     int
	Path      string
	Width     int
	Height    int
	Duration  float64
	FrameRate string
	HasAudio  bool
	Strategy  Strategy

	frames FrameExtractor
	lock   *flock.Flock

	mu     sync.Mutex
	closed bool
}

// Frame returns the PNG-encoded frame at the given time in seconds.
func (c *Clip) Frame(ctx context.Context, at float64) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: clip %d", ErrClipClosed, c.Index)
	}
	return c.frames.ExtractFrame(ctx, c.Path, at)
}

// Info analyzes the clip's dimensions.
func (c *Clip) Info() (format.Info, error) {
	return format.Analyze(c.Width, c.Height)
}

// Closed reports whether Close has been called.
func (c *Clip) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the clip's file lock. It is safe to call more than once.
func (c *Clip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.lock == nil {
		return nil
	}
	if err := c.lock.Unlock(); err != nil {
		return fmt.Errorf("release clip %d: %w", c.Index, err)
	}
	return nil
}

// closeClips closes every clip, returning the first error.
func closeClips(clips []*Clip) error {
	var firstErr error
	for _, c := range clips {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
