package compilation

import (
	"fmt"
	"math"
	"net/url"

	"github.com/maauso/mindset-media-api/internal/format"
)

// Request limits and defaults.
const (
	MaxVideos              = 10
	DefaultEffectIntensity = 0.7
	DefaultVideoVolume     = 0.8
	DefaultMusicVolume     = 0.3
)

// Request is a validated compilation request. It is not modified once a
// pipeline run starts.
type Request struct {
	// VideoURLs are the clips, concatenated in this order.
	VideoURLs []string
	// AudioURL is an optional background track.
	AudioURL   string
	FormatMode format.Mode
	// ApplyEffect enables the moody effect at EffectIntensity.
	ApplyEffect     bool
	EffectIntensity float64
	// VideoVolume scales the clips' own audio, MusicVolume the background.
	VideoVolume float64
	MusicVolume float64
	// OutputPath is where the export is written. Empty means a new temp file.
	OutputPath string
}

// NewRequest returns a request for the given clips with default settings.
func NewRequest(videoURLs ...string) Request {
	return Request{
		VideoURLs:       videoURLs,
		FormatMode:      format.ModeVertical,
		EffectIntensity: DefaultEffectIntensity,
		VideoVolume:     DefaultVideoVolume,
		MusicVolume:     DefaultMusicVolume,
	}
}

// Validate checks the request shape and parameter ranges.
func (r Request) Validate() error {
	if len(r.VideoURLs) == 0 {
		return &ValidationError{Field: "video_urls", Reason: "at least one video URL is required"}
	}
	if len(r.VideoURLs) > MaxVideos {
		return &ValidationError{Field: "video_urls", Reason: fmt.Sprintf("at most %d video URLs are allowed, got %d", MaxVideos, len(r.VideoURLs))}
	}
	for i, u := range r.VideoURLs {
		if err := checkURL(u); err != nil {
			return &ValidationError{Field: fmt.Sprintf("video_urls[%d]", i), Reason: err.Error()}
		}
	}
	if r.AudioURL != "" {
		if err := checkURL(r.AudioURL); err != nil {
			return &ValidationError{Field: "audio_url", Reason: err.Error()}
		}
	}

	if _, err := format.ParseMode(string(r.FormatMode)); err != nil {
		return &ValidationError{Field: "format_mode", Reason: err.Error()}
	}

	for _, p := range []struct {
		field string
		value float64
	}{
		{"moody_intensity", r.EffectIntensity},
		{"video_audio_volume", r.VideoVolume},
		{"background_music_volume", r.MusicVolume},
	} {
		if math.IsNaN(p.value) || p.value < 0 || p.value > 1 {
			return &ValidationError{Field: p.field, Reason: fmt.Sprintf("must be between 0 and 1, got %v", p.value)}
		}
	}

	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an http(s) URL: %q", raw)
	}
	return nil
}
