package compilation

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mindset-media-api/internal/format"
)

func TestNewRequest_Defaults(t *testing.T) {
	req := NewRequest("https://example.com/a.mp4")

	assert.Equal(t, []string{"https://example.com/a.mp4"}, req.VideoURLs)
	assert.Equal(t, format.ModeVertical, req.FormatMode)
	assert.False(t, req.ApplyEffect)
	assert.Equal(t, 0.7, req.EffectIntensity)
	assert.Equal(t, 0.8, req.VideoVolume)
	assert.Equal(t, 0.3, req.MusicVolume)
	assert.NoError(t, req.Validate())
}

func TestRequest_Validate(t *testing.T) {
	tooMany := make([]string, MaxVideos+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("https://example.com/%d.mp4", i)
	}

	tests := []struct {
		name      string
		mutate    func(r *Request)
		wantField string
	}{
		{"no videos", func(r *Request) { r.VideoURLs = nil }, "video_urls"},
		{"too many videos", func(r *Request) { r.VideoURLs = tooMany }, "video_urls"},
		{"malformed video url", func(r *Request) { r.VideoURLs = []string{"https://example.com/a.mp4", "::nope"} }, "video_urls[1]"},
		{"non http video url", func(r *Request) { r.VideoURLs = []string{"file:///etc/passwd"} }, "video_urls[0]"},
		{"bad audio url", func(r *Request) { r.AudioURL = "ftp://example.com/a.mp3" }, "audio_url"},
		{"unknown mode", func(r *Request) { r.FormatMode = "diagonal" }, "format_mode"},
		{"intensity below zero", func(r *Request) { r.EffectIntensity = -0.1 }, "moody_intensity"},
		{"video volume above one", func(r *Request) { r.VideoVolume = 1.5 }, "video_audio_volume"},
		{"music volume NaN", func(r *Request) { r.MusicVolume = math.NaN() }, "background_music_volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("https://example.com/a.mp4")
			tt.mutate(&req)

			err := req.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestRequest_ValidateBounds(t *testing.T) {
	req := NewRequest("https://example.com/a.mp4", "http://example.com/b.mov")
	req.AudioURL = "https://example.com/music.mp3"
	req.FormatMode = format.ModeKeepOriginal
	req.EffectIntensity = 1
	req.VideoVolume = 0
	req.MusicVolume = 1

	assert.NoError(t, req.Validate())

	req.FormatMode = ""
	assert.NoError(t, req.Validate(), "empty mode defaults to vertical")
}
