// Package fetch downloads remote media assets into local temporary files and
// verifies that the result looks like complete media.
package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gofrs/flock"
)

const (
	// DefaultTimeout bounds a single download request.
	DefaultTimeout = 60 * time.Second
	// chunkSize is the write granularity of the download stream.
	chunkSize = 8 * 1024
	// sniffLen is the number of leading bytes used for payload sniffing.
	sniffLen = 3072
)

// Browser-like request headers. Some hosts reject default HTTP clients, and
// identity encoding keeps Content-Length comparable with the bytes on disk.
var requestHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept-Encoding": "identity",
	"Connection":      "keep-alive",
}

// Kind is the expected media kind of an asset.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

func (k Kind) accept() string {
	if k == KindAudio {
		return "audio/mpeg,audio/*,*/*"
	}
	return "video/mp4,video/*,*/*"
}

// Asset is a fetched remote resource stored in a local temporary file.
// The caller owns Path and must delete it.
type Asset struct {
	URL         string
	Kind        Kind
	Path        string
	Size        int64
	Extension   string
	ContentType string
}

// TempFiles creates the temporary files downloads are written to.
type TempFiles interface {
	CreateTemp(ctx context.Context, name, ext string) (*os.File, error)
}

// Fetcher downloads assets over HTTP.
type Fetcher struct {
	files        TempFiles
	client       *http.Client
	logger       *slog.Logger
	recheckDelay time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithRecheckDelay sets the wait before re-checking a size mismatch.
func WithRecheckDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.recheckDelay = d
	}
}

// New creates a Fetcher writing into files created by files.
func New(files TempFiles, opts ...Option) *Fetcher {
	f := &Fetcher{
		files:        files,
		client:       &http.Client{Timeout: DefaultTimeout},
		logger:       slog.Default(),
		recheckDelay: time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL into a new temporary file whose name starts with
// name. An HTML landing page is followed once to the media it references.
//
// While the body is written the file holds an exclusive flock; readers that
// take a shared lock on the path therefore block until the download is
// complete and synced.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, kind Kind, name string) (*Asset, error) {
	asset, err := f.fetch(ctx, rawURL, kind, name)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	return asset, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, kind Kind, name string) (*Asset, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	resp, mediaURL, err := f.open(ctx, rawURL, kind)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body := bufio.NewReaderSize(resp.Body, sniffLen)
	head, _ := body.Peek(sniffLen)
	contentType := resp.Header.Get("Content-Type")
	ext := InferExtension(contentType, mediaURL, head)
	if contentType == "" && len(head) > 0 {
		contentType = mimetype.Detect(head).String()
	}

	path, err := f.write(ctx, body, name, ext)
	if err != nil {
		return nil, err
	}

	size, err := f.verify(ctx, path, kind, resp.ContentLength)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	f.logger.Info("asset downloaded",
		slog.String("url", mediaURL),
		slog.String("kind", string(kind)),
		slog.String("path", path),
		slog.String("size", humanize.Bytes(uint64(size))),
	)

	return &Asset{
		URL:         rawURL,
		Kind:        kind,
		Path:        path,
		Size:        size,
		Extension:   ext,
		ContentType: contentType,
	}, nil
}

// open requests rawURL and, when it answers with an HTML page, follows the
// page's media link once. It returns the media response and its URL.
func (f *Fetcher) open(ctx context.Context, rawURL string, kind Kind) (*http.Response, string, error) {
	resp, err := f.get(ctx, rawURL, kind)
	if err != nil {
		return nil, "", err
	}
	if mediaType(resp.Header.Get("Content-Type")) != "text/html" {
		return resp, rawURL, nil
	}

	link, err := findMediaLink(resp.Body, rawURL, kind)
	_ = resp.Body.Close()
	if err != nil {
		return nil, "", err
	}

	f.logger.Info("following media link from page",
		slog.String("page", rawURL),
		slog.String("media", link),
	)

	resp, err = f.get(ctx, link, kind)
	if err != nil {
		return nil, "", err
	}
	if mediaType(resp.Header.Get("Content-Type")) == "text/html" {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("%w: %s is another page", ErrNoMediaLink, link)
	}
	return resp, link, nil
}

// get issues the request and rejects non-2xx responses.
func (f *Fetcher) get(ctx context.Context, rawURL string, kind Kind) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range requestHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", kind.accept())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return resp, nil
}

// write streams body into a new temp file in fixed-size chunks, syncing it
// before the exclusive lock is released.
func (f *Fetcher) write(ctx context.Context, body io.Reader, name, ext string) (path string, err error) {
	file, err := f.files.CreateTemp(ctx, name, ext)
	if err != nil {
		return "", err
	}
	path = file.Name()

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock %s: %w", path, uerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := copyChunks(ctx, file, body); err != nil {
		_ = file.Close()
		return path, err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return path, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return path, fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write chunk: %w", err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read body: %w", rerr)
		}
	}
}

func (f *Fetcher) verify(ctx context.Context, path string, kind Kind, contentLength int64) (int64, error) {
	size, err := f.verifySize(ctx, path, contentLength)
	if err != nil {
		return 0, err
	}

	if kind == KindVideo {
		ok, err := hasContainerMarker(path)
		switch {
		case err != nil:
			f.logger.Warn("could not probe container markers", slog.String("path", path), slog.Any("error", err))
		case !ok:
			f.logger.Warn("no container marker found, file may not be valid video", slog.String("path", path))
		}
	}

	if err := readBack(path); err != nil {
		return 0, err
	}
	return size, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}
