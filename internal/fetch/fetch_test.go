package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mindset-media-api/internal/storage"
)

// mp4Payload returns n bytes starting with an ISO BMFF ftyp box.
func mp4Payload(n int) []byte {
	head := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypisom\x00\x00\x02\x00isomiso2")...)
	return append(head, bytes.Repeat([]byte{0x42}, n-len(head))...)
}

func newTestFetcher(t *testing.T) (*Fetcher, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	return New(store, WithRecheckDelay(0)), dir
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestFetch_Video(t *testing.T) {
	payload := mp4Payload(32 * 1024)

	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t)
	asset, err := f.Fetch(context.Background(), srv.URL+"/clip", KindVideo, "video_0")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/clip", asset.URL)
	assert.Equal(t, KindVideo, asset.Kind)
	assert.Equal(t, "mp4", asset.Extension)
	assert.Equal(t, "video/mp4", asset.ContentType)
	assert.Equal(t, int64(len(payload)), asset.Size)
	assert.Equal(t, dir, filepath.Dir(asset.Path))
	assert.Equal(t, ".mp4", filepath.Ext(asset.Path))

	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	assert.Contains(t, gotHeaders.Get("User-Agent"), "Mozilla/5.0")
	assert.Equal(t, "identity", gotHeaders.Get("Accept-Encoding"))
	assert.Equal(t, "video/mp4,video/*,*/*", gotHeaders.Get("Accept"))
}

func TestFetch_ReleasesLock(t *testing.T) {
	payload := mp4Payload(4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	asset, err := f.Fetch(context.Background(), srv.URL+"/clip.mov", KindVideo, "video_0")
	require.NoError(t, err)

	lock := flock.New(asset.Path)
	ok, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, ok, "download must not keep the file locked")
	require.NoError(t, lock.Unlock())

	assert.Equal(t, "mov", asset.Extension)
}

func TestFetch_Audio(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "audio/mpeg,audio/*,*/*", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	asset, err := f.Fetch(context.Background(), srv.URL+"/track", KindAudio, "audio")
	require.NoError(t, err)
	assert.Equal(t, "mp3", asset.Extension)
	assert.Equal(t, int64(2048), asset.Size)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		wantErr error
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "gone", http.StatusNotFound)
			},
			wantErr: ErrHTTPStatus,
		},
		{
			name: "too small",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "video/mp4")
				_, _ = w.Write(mp4Payload(512))
			},
			wantErr: ErrTooSmall,
		},
		{
			name: "page without media",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = w.Write([]byte("<html><body><p>nothing here</p></body></html>"))
			},
			wantErr: ErrNoMediaLink,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f, dir := newTestFetcher(t)
			url := srv.URL + "/asset"
			_, err := f.Fetch(context.Background(), url, KindVideo, "video_0")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var de *DownloadError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, url, de.URL)

			assert.Zero(t, dirEntries(t, dir), "failed download must not leave files behind")
		})
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	f, _ := newTestFetcher(t)
	for _, u := range []string{"", "ftp://host/file.mp4", "not a url", "http://"} {
		_, err := f.Fetch(context.Background(), u, KindVideo, "video_0")
		assert.ErrorIs(t, err, ErrInvalidURL, u)
	}
}

func TestFetch_FollowsLandingPage(t *testing.T) {
	payload := mp4Payload(8192)

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
<meta property="og:title" content="clip">
<meta property="og:video" content="/media/clip.mp4">
</head></html>`))
	})
	mux.HandleFunc("/media/clip.mp4", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, _ := newTestFetcher(t)
	asset, err := f.Fetch(context.Background(), srv.URL+"/watch", KindVideo, "video_0")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/watch", asset.URL)
	assert.Equal(t, "mp4", asset.Extension)
	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFetch_FollowsOnlyOneHop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<video src="/b"></video>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<video src="/c"></video>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, _ := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL+"/a", KindVideo, "video_0")
	assert.ErrorIs(t, err, ErrNoMediaLink)
}

func TestVerifySize_Truncated(t *testing.T) {
	f, dir := newTestFetcher(t)
	path := filepath.Join(dir, "short.mp4")
	require.NoError(t, os.WriteFile(path, mp4Payload(2048), 0600))

	_, err := f.verifySize(context.Background(), path, 4096)
	assert.ErrorIs(t, err, ErrTruncated)

	size, err := f.verifySize(context.Background(), path, 2048)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)

	size, err = f.verifySize(context.Background(), path, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)
}

func TestHasContainerMarker(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0600))
		return p
	}

	late := append(bytes.Repeat([]byte{0}, 500), []byte("mdat")...)
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"ftyp at start", mp4Payload(2048), true},
		{"ebml", append([]byte{0x1A, 0x45, 0xDF, 0xA3}, bytes.Repeat([]byte{1}, 2000)...), true},
		{"riff", append([]byte("RIFF\x00\x00\x00\x00AVI "), bytes.Repeat([]byte{1}, 2000)...), true},
		{"marker inside first kilobyte", append(late, bytes.Repeat([]byte{0}, 2000)...), true},
		{"marker after first kilobyte", append(bytes.Repeat([]byte{0}, 2000), []byte("ftyp")...), false},
		{"no marker", bytes.Repeat([]byte{7}, 4096), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hasContainerMarker(write(tt.name, tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadBack(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(p, []byte("short"), 0600))

	assert.NoError(t, readBack(p))
	assert.ErrorIs(t, readBack(filepath.Join(dir, "missing")), ErrNotAccessible)
}

func TestInferExtension(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		head        []byte
		want        string
	}{
		{"mp4 content type", "video/mp4", "https://x/clip", nil, "mp4"},
		{"content type with params", "audio/mpeg; charset=binary", "https://x/a", nil, "mp3"},
		{"wav", "audio/wav", "https://x/a", nil, "wav"},
		{"registry lookup", "video/x-flv", "https://x/a", nil, "flv"},
		{"url suffix", "application/octet-stream", "https://x/path/clip.MKV?sig=1", nil, "mkv"},
		{"url suffix audio", "", "https://x/song.m4a", nil, "m4a"},
		{"unknown url suffix", "", "https://x/file.bin", nil, "mp4"},
		{"sniffed payload", "application/octet-stream", "https://x/blob", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "wav"},
		{"default", "", "https://x/blob", nil, "mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferExtension(tt.contentType, tt.url, tt.head))
		})
	}
}

func TestFindMediaLink(t *testing.T) {
	page := `<html><head>
<meta property="og:audio" content="https://cdn.example.com/track.mp3">
</head><body>
<video><source src="clips/one.mp4"></video>
</body></html>`

	link, err := findMediaLink(bytes.NewBufferString(page), "https://example.com/posts/1", KindVideo)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/posts/clips/one.mp4", link)

	link, err = findMediaLink(bytes.NewBufferString(page), "https://example.com/posts/1", KindAudio)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/track.mp3", link)

	_, err = findMediaLink(bytes.NewBufferString(`<a href="javascript:void(0)">x</a>`), "https://example.com", KindVideo)
	assert.ErrorIs(t, err, ErrNoMediaLink)
}
