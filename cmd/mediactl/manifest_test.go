package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/format"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reel.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const fullManifest = `
videos = ["https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"]
audio = "https://cdn.example.com/track.mp3"
format = "auto"
output = "/tmp/reel.mp4"

[effect]
enabled = true
intensity = 0

[volume]
video = 0.6
music = 0.2
`

func TestLoadManifest(t *testing.T) {
	m, err := loadManifest(writeManifest(t, fullManifest))
	require.NoError(t, err)

	req := compilation.NewRequest()
	require.NoError(t, m.apply(&req))

	assert.Equal(t, []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"}, req.VideoURLs)
	assert.Equal(t, "https://cdn.example.com/track.mp3", req.AudioURL)
	assert.Equal(t, format.ModeAuto, req.FormatMode)
	assert.Equal(t, "/tmp/reel.mp4", req.OutputPath)
	assert.True(t, req.ApplyEffect)
	assert.Equal(t, 0.0, req.EffectIntensity)
	assert.Equal(t, 0.6, req.VideoVolume)
	assert.Equal(t, 0.2, req.MusicVolume)
	assert.NoError(t, req.Validate())
}

func TestLoadManifest_KeepsDefaults(t *testing.T) {
	m, err := loadManifest(writeManifest(t, `videos = ["https://cdn.example.com/a.mp4"]`))
	require.NoError(t, err)

	req := compilation.NewRequest()
	require.NoError(t, m.apply(&req))

	assert.Equal(t, format.ModeVertical, req.FormatMode)
	assert.False(t, req.ApplyEffect)
	assert.Equal(t, compilation.DefaultEffectIntensity, req.EffectIntensity)
	assert.Equal(t, compilation.DefaultVideoVolume, req.VideoVolume)
	assert.Equal(t, compilation.DefaultMusicVolume, req.MusicVolume)
}

func TestLoadManifest_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := loadManifest(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := loadManifest(writeManifest(t, `clips = ["https://cdn.example.com/a.mp4"]`))
		assert.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		_, err := loadManifest(writeManifest(t, `videos = [`))
		assert.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		m, err := loadManifest(writeManifest(t, `format = "square"`))
		require.NoError(t, err)
		req := compilation.NewRequest()
		assert.ErrorIs(t, m.apply(&req), format.ErrUnknownMode)
	})
}

func parseCompileFlags(t *testing.T, args ...string) (*compileOptions, *cobra.Command) {
	t.Helper()
	opts := &compileOptions{}
	cmd := &cobra.Command{Use: "compile"}
	opts.bind(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return opts, cmd
}

func TestCompileOptions_FlagsOverrideManifest(t *testing.T) {
	path := writeManifest(t, fullManifest)
	opts, cmd := parseCompileFlags(t,
		"--manifest", path,
		"--format", "horizontal",
		"--music-volume", "0",
	)

	req, err := opts.request(cmd)
	require.NoError(t, err)

	assert.Len(t, req.VideoURLs, 2)
	assert.Equal(t, format.ModeHorizontal, req.FormatMode)
	assert.Equal(t, 0.0, req.MusicVolume)
	assert.Equal(t, 0.6, req.VideoVolume)
	assert.True(t, req.ApplyEffect)
}

func TestCompileOptions_FlagsOnly(t *testing.T) {
	opts, cmd := parseCompileFlags(t,
		"--video", "https://cdn.example.com/a.mp4",
		"--video", "https://cdn.example.com/b.mp4",
		"--effect",
		"--output", "out.mp4",
	)

	req, err := opts.request(cmd)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"}, req.VideoURLs)
	assert.True(t, req.ApplyEffect)
	assert.Equal(t, compilation.DefaultEffectIntensity, req.EffectIntensity)
	assert.Equal(t, format.ModeVertical, req.FormatMode)
	assert.Equal(t, "out.mp4", req.OutputPath)
}

func TestCompileOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no videos", nil},
		{"bad url", []string{"--video", "ftp://cdn.example.com/a.mp4"}},
		{"bad format", []string{"--video", "https://cdn.example.com/a.mp4", "--format", "square"}},
		{"intensity out of range", []string{"--video", "https://cdn.example.com/a.mp4", "--intensity", "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, cmd := parseCompileFlags(t, tt.args...)
			_, err := opts.request(cmd)
			assert.Error(t, err)
		})
	}
}
