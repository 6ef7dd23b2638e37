package compilation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mindset-media-api/internal/fetch"
	"github.com/maauso/mindset-media-api/internal/media"
)

// mockBackend is a testify mock of the media backend.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Probe(ctx context.Context, path string, opts media.ProbeOptions) (media.ProbeResult, error) {
	args := m.Called(ctx, path, opts)
	return args.Get(0).(media.ProbeResult), args.Error(1)
}

func (m *mockBackend) ExtractFrame(ctx context.Context, path string, at float64) ([]byte, error) {
	args := m.Called(ctx, path, at)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockBackend) TransformFrames(ctx context.Context, job media.FrameJob, fn media.FrameFunc) (int, error) {
	args := m.Called(ctx, job, fn)
	return args.Int(0), args.Error(1)
}

func (m *mockBackend) Render(ctx context.Context, g *media.Graph, out media.Output) error {
	args := m.Called(ctx, g, out)
	return args.Error(0)
}

var _ media.Processor = (*mockBackend)(nil)

func probeResult(w, h int, duration float64, withAudio bool) media.ProbeResult {
	r := media.ProbeResult{
		Streams: []media.Stream{{
			CodecType:    "video",
			Width:        w,
			Height:       h,
			AvgFrameRate: "30/1",
		}},
		Format: media.Format{Duration: fmt.Sprint(duration)},
	}
	if withAudio {
		r.Streams = append(r.Streams, media.Stream{CodecType: "audio"})
	}
	return r
}

// pathNamed matches temp file paths whose base name starts with prefix.
func pathNamed(prefix string) interface{} {
	return mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(filepath.Base(p), prefix)
	})
}

func writeMediaFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte{0x42}, 4096), 0600))
	return p
}

func fastLoader(src ClipSource) *Loader {
	return NewLoader(src, WithRetryDelay(time.Millisecond), WithSettleDelay(time.Millisecond))
}

// fakeFetcher writes a small file per call and fails for configured URLs.
type fakeFetcher struct {
	dir   string
	fail  map[string]error
	mu    sync.Mutex
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, kind fetch.Kind, name string) (*fetch.Asset, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()

	if err := f.fail[rawURL]; err != nil {
		return nil, &fetch.DownloadError{URL: rawURL, Err: err}
	}

	ext := "mp4"
	if kind == fetch.KindAudio {
		ext = "mp3"
	}
	file, err := os.CreateTemp(f.dir, name+"_*."+ext)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	if _, err := file.Write(bytes.Repeat([]byte{0x42}, 4096)); err != nil {
		return nil, err
	}
	return &fetch.Asset{URL: rawURL, Kind: kind, Path: file.Name(), Size: 4096, Extension: ext}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
