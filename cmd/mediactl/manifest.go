package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/format"
)

// Manifest describes a compilation in a TOML file:
//
//	videos = ["https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"]
//	audio = "https://cdn.example.com/track.mp3"
//	format = "auto"
//	output = "out.mp4"
//
//	[effect]
//	enabled = true
//	intensity = 0.5
//
//	[volume]
//	video = 0.8
//	music = 0.3
type Manifest struct {
	Videos []string       `toml:"videos"`
	Audio  string         `toml:"audio"`
	Format string         `toml:"format"`
	Output string         `toml:"output"`
	Effect ManifestEffect `toml:"effect"`
	Volume ManifestVolume `toml:"volume"`
}

// ManifestEffect configures the moody effect.
type ManifestEffect struct {
	Enabled   bool     `toml:"enabled"`
	Intensity *float64 `toml:"intensity"`
}

// ManifestVolume configures the audio levels.
type ManifestVolume struct {
	Video *float64 `toml:"video"`
	Music *float64 `toml:"music"`
}

// loadManifest decodes the manifest at path. Unknown keys are rejected.
func loadManifest(path string) (*Manifest, error) {
	file, err := os.Open(path) // #nosec G304 - path is a user-supplied manifest
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = file.Close() }()

	var m Manifest
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// apply copies the values set in the manifest onto req.
func (m *Manifest) apply(req *compilation.Request) error {
	if len(m.Videos) > 0 {
		req.VideoURLs = append([]string(nil), m.Videos...)
	}
	if m.Audio != "" {
		req.AudioURL = m.Audio
	}
	if m.Format != "" {
		mode, err := format.ParseMode(m.Format)
		if err != nil {
			return fmt.Errorf("manifest format: %w", err)
		}
		req.FormatMode = mode
	}
	if m.Output != "" {
		req.OutputPath = m.Output
	}
	req.ApplyEffect = m.Effect.Enabled
	if m.Effect.Intensity != nil {
		req.EffectIntensity = *m.Effect.Intensity
	}
	if m.Volume.Video != nil {
		req.VideoVolume = *m.Volume.Video
	}
	if m.Volume.Music != nil {
		req.MusicVolume = *m.Volume.Music
	}
	return nil
}
