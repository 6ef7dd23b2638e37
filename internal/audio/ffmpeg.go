package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/maauso/mindset-media-api/internal/media"
)

// Output labels added to the graph by Mix.
const (
	labelBackground = "[bgm]"
	labelOriginal   = "[orig]"
	labelMixed      = "[amixed]"
)

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// Prober reads stream metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string, opts media.ProbeOptions) (media.ProbeResult, error)
}

// Mixer adds background music to a media graph using ffmpeg filters.
type Mixer struct {
	prober     Prober
	ffmpegPath string
	logger     *slog.Logger
}

// NewMixer creates a Mixer. If ffmpegPath is empty, it defaults to "ffmpeg"
// (found in PATH). A nil logger uses slog.Default().
func NewMixer(prober Prober, ffmpegPath string, logger *slog.Logger) *Mixer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{prober: prober, ffmpegPath: ffmpegPath, logger: logger}
}

// Mix adds the background track to g, looped and trimmed to the video
// duration, and mixes it with the original audio when there is any. The
// returned label replaces the video's previous audio.
func (m *Mixer) Mix(ctx context.Context, g *media.Graph, in MixInput) (MixResult, error) {
	if err := in.validate(); err != nil {
		return MixResult{}, err
	}

	trackDur, err := m.TrackDuration(ctx, in.TrackPath)
	if err != nil {
		return MixResult{}, fmt.Errorf("measure background track: %w", err)
	}

	plan, err := PlanLoop(trackDur, in.VideoDuration)
	if err != nil {
		return MixResult{}, err
	}

	m.logger.Debug("background track planned",
		slog.Float64("track_seconds", trackDur),
		slog.Float64("video_seconds", in.VideoDuration),
		slog.Int("loops", plan.Loops),
	)

	var opts []string
	if plan.Loops > 1 {
		opts = append(opts, "-stream_loop", strconv.Itoa(plan.Loops-1))
	}
	idx := g.AddInput(in.TrackPath, opts...)

	g.AddChain("[%d:a:0]atrim=duration=%s,asetpts=PTS-STARTPTS,volume=%s%s",
		idx, formatFloat(plan.Trim), formatFloat(in.MusicVolume), labelBackground)

	result := MixResult{Label: labelBackground, TrackDuration: trackDur, Plan: plan}
	if in.VideoAudio == "" {
		return result, nil
	}

	g.AddChain("%svolume=%s%s", in.VideoAudio, formatFloat(in.VideoVolume), labelOriginal)
	g.AddChain("%s%samix=inputs=2:duration=first:dropout_transition=0:normalize=0%s",
		labelOriginal, labelBackground, labelMixed)
	result.Label = labelMixed

	return result, nil
}

// TrackDuration returns the duration of a media file in seconds. ffprobe
// metadata is preferred; streams without a declared duration are decoded
// once and the duration parsed from ffmpeg's report.
func (m *Mixer) TrackDuration(ctx context.Context, path string) (float64, error) {
	result, err := m.prober.Probe(ctx, path, media.ProbeOptions{})
	if err != nil {
		return 0, err
	}
	if d := result.DurationSeconds(); d > 0 {
		return d, nil
	}
	return m.decodeDuration(ctx, path)
}

// decodeDuration returns the duration reported by ffmpeg while decoding.
func (m *Mixer) decodeDuration(ctx context.Context, inputPath string) (float64, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-i", inputPath,
		"-hide_banner",
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes duration info to stderr
	_ = cmd.Run() // Ignore error as ffmpeg exits with error when output is null

	if ctx.Err() != nil {
		return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}
	return ParseFFmpegDuration(stderr.String())
}

// ParseFFmpegDuration extracts "Duration: HH:MM:SS.ms" from ffmpeg output.
func ParseFFmpegDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("%w: no duration in ffmpeg output", ErrInvalidDuration)
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat("0."+matches[4], 64)

	d := hours*3600 + minutes*60 + seconds + frac
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, matches[0])
	}
	return d, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
