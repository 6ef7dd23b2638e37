package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeOptions tunes how ffprobe opens a file.
type ProbeOptions struct {
	// SelectStreams restricts probing to a stream specifier such as "v:0".
	SelectStreams string
	// ProbeSize and AnalyzeDuration enlarge the amount of data read before
	// stream detection, e.g. "100M".
	ProbeSize       string
	AnalyzeDuration string
}

// ProbeResult represents the parsed output from an ffprobe inspection.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`

	SideDataList []SideData        `json:"side_data_list,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// SideData is a stream side data entry. Only the display matrix rotation
// is decoded.
type SideData struct {
	SideDataType string `json:"side_data_type"`
	Rotation     int    `json:"rotation"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// Probe executes ffprobe against path and decodes the JSON response.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string, opts ProbeOptions) (ProbeResult, error) {
	args := []string{"-v", "error", "-hide_banner"}
	if opts.ProbeSize != "" {
		args = append(args, "-probesize", opts.ProbeSize)
	}
	if opts.AnalyzeDuration != "" {
		args = append(args, "-analyzeduration", opts.AnalyzeDuration)
	}
	if opts.SelectStreams != "" {
		args = append(args, "-select_streams", opts.SelectStreams)
	}
	args = append(args, "-show_format", "-show_streams", "-of", "json", "--", path)

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ProbeResult{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return ProbeResult{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}

	return ParseProbe(stdout.Bytes())
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r ProbeResult) VideoStream() (Stream, bool) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return Stream{}, false
}

// HasAudio reports whether at least one audio stream was found.
func (r ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			return true
		}
	}
	return false
}

// DurationSeconds returns the container duration, falling back to the first
// video stream duration. Returns 0 when unavailable.
func (r ProbeResult) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if v, ok := r.VideoStream(); ok {
		if d := parseFloat(v.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// FrameRate returns the stream frame rate as an ffmpeg rational string,
// preferring the average rate. Defaults to "30".
func (s Stream) FrameRate() string {
	for _, rate := range []string{s.AvgFrameRate, s.RFrameRate} {
		if ParseRate(rate) > 0 {
			return rate
		}
	}
	return "30"
}

// Rotation returns the display rotation in degrees, normalized to
// [0, 360). The display matrix side data wins over the legacy rotate tag.
func (s Stream) Rotation() int {
	deg := 0
	found := false
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			deg, found = sd.Rotation, true
			break
		}
	}
	if !found {
		if tag, ok := s.Tags["rotate"]; ok {
			if v, err := strconv.Atoi(strings.TrimSpace(tag)); err == nil {
				deg = v
			}
		}
	}
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// DisplaySize returns the frame size as decoded with autorotation, swapping
// width and height for quarter turns.
func (s Stream) DisplaySize() (width, height int) {
	if s.Rotation()%180 == 90 {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// ParseRate converts "30000/1001" or "25" into frames per second. Invalid
// input yields 0.
func ParseRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n := parseFloat(num)
		d := parseFloat(den)
		if d == 0 || math.IsNaN(n) || math.IsNaN(d) {
			return 0
		}
		return n / d
	}
	v := parseFloat(rate)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
