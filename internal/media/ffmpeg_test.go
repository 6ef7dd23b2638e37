package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if err := NewFFmpegProcessor("", "").CheckBinaries(); err != nil {
		t.Skip("ffmpeg/ffprobe not found in PATH, skipping test")
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, color string, width, height int, withAudio bool) {
	t.Helper()

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%dx%d:d=%.1f:r=25", color, width, height, duration),
	}
	if withAudio {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
			"-c:a", "aac",
			"-shortest",
		)
	}
	args = append(args, "-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p", path)

	cmd := exec.Command("ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		p := NewFFmpegProcessor("", "")
		if p.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", p.ffmpegPath)
		}
		if p.ffprobePath != "ffprobe" {
			t.Errorf("expected default path 'ffprobe', got %q", p.ffprobePath)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		p := NewFFmpegProcessor("/usr/local/bin/ffmpeg", "/usr/local/bin/ffprobe")
		if p.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", p.ffmpegPath)
		}
		if p.ffprobePath != "/usr/local/bin/ffprobe" {
			t.Errorf("expected custom path, got %q", p.ffprobePath)
		}
	})
}

func TestCheckBinaries_Missing(t *testing.T) {
	p := NewFFmpegProcessor("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	if err := p.CheckBinaries(); !errors.Is(err, ErrBinaryNotFound) {
		t.Errorf("expected ErrBinaryNotFound, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	ctx := context.Background()

	t.Run("video with audio", func(t *testing.T) {
		path := filepath.Join(tmpDir, "with_audio.mp4")
		createTestVideo(t, path, 1.0, "blue", 96, 64, true)

		result, err := p.Probe(ctx, path, ProbeOptions{})
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}

		v, ok := result.VideoStream()
		if !ok {
			t.Fatal("expected a video stream")
		}
		if v.Width != 96 || v.Height != 64 {
			t.Errorf("expected 96x64, got %dx%d", v.Width, v.Height)
		}
		if !result.HasAudio() {
			t.Error("expected an audio stream")
		}
		if d := result.DurationSeconds(); d < 0.9 || d > 1.2 {
			t.Errorf("expected ~1s duration, got %.2f", d)
		}
		if ParseRate(v.FrameRate()) != 25 {
			t.Errorf("expected 25 fps, got %s", v.FrameRate())
		}
	})

	t.Run("video stream selection hides audio", func(t *testing.T) {
		path := filepath.Join(tmpDir, "selected.mp4")
		createTestVideo(t, path, 1.0, "green", 64, 64, true)

		result, err := p.Probe(ctx, path, ProbeOptions{SelectStreams: "v:0", ProbeSize: "10M"})
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		if result.HasAudio() {
			t.Error("expected audio to be filtered out")
		}
	})

	t.Run("not a media file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "garbage.mp4")
		if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 2048), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := p.Probe(ctx, path, ProbeOptions{})
		if !errors.Is(err, ErrFFprobeExecution) {
			t.Errorf("expected ErrFFprobeExecution, got %v", err)
		}
	})
}

func TestExtractFrame(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	path := filepath.Join(tmpDir, "frame.mp4")
	createTestVideo(t, path, 1.0, "red", 64, 48, false)

	data, err := p.ExtractFrame(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("ExtractFrame failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("frame is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("expected 64x48 frame, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestTransformFrames(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	ctx := context.Background()

	src := filepath.Join(tmpDir, "src.mp4")
	dst := filepath.Join(tmpDir, "dst.mp4")
	createTestVideo(t, src, 1.0, "white", 64, 64, true)

	job := FrameJob{
		Src: src, Dst: dst,
		Width: 32, Height: 48, Scale: true,
		FrameRate: "25", KeepAudio: true,
	}

	var seen int
	frames, err := p.TransformFrames(ctx, job, func(frame []byte) {
		if len(frame) != job.FrameSize() {
			t.Errorf("unexpected frame size %d", len(frame))
		}
		for i := range frame {
			frame[i] = 255 - frame[i]
		}
		seen++
	})
	if err != nil {
		t.Fatalf("TransformFrames failed: %v", err)
	}
	if frames == 0 || frames != seen {
		t.Errorf("expected callback per frame, got frames=%d seen=%d", frames, seen)
	}

	result, err := p.Probe(ctx, dst, ProbeOptions{})
	if err != nil {
		t.Fatalf("Probe output failed: %v", err)
	}
	v, _ := result.VideoStream()
	if v.Width != 32 || v.Height != 48 {
		t.Errorf("expected 32x48 output, got %dx%d", v.Width, v.Height)
	}
	if !result.HasAudio() {
		t.Error("expected audio to be kept")
	}
}

func TestTransformFrames_InvalidDimensions(t *testing.T) {
	p := NewFFmpegProcessor("", "")
	_, err := p.TransformFrames(context.Background(), FrameJob{Src: "a", Dst: "b"}, func([]byte) {})
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestRender_Concat(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	ctx := context.Background()

	a := filepath.Join(tmpDir, "a.mp4")
	b := filepath.Join(tmpDir, "b.mp4")
	out := filepath.Join(tmpDir, "out.mp4")
	createTestVideo(t, a, 1.0, "red", 64, 64, false)
	createTestVideo(t, b, 2.0, "blue", 64, 64, false)

	g := NewGraph()
	g.AddInput(a)
	g.AddInput(b)
	g.AddChain("[0:v][1:v]concat=n=2:v=1:a=0[v]")

	err := p.Render(ctx, g, Output{
		Path:    out,
		Video:   "[v]",
		Options: []string{"-c:v", "libx264", "-preset", "ultrafast"},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	result, err := p.Probe(ctx, out, ProbeOptions{})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if d := result.DurationSeconds(); d < 2.8 || d > 3.2 {
		t.Errorf("expected ~3s duration, got %.2f", d)
	}
}

func TestFFmpegError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "boom", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected FFmpegError to unwrap to the inner error")
	}
	if got := err.Error(); !bytes.Contains([]byte(got), []byte("boom")) {
		t.Errorf("expected stderr in message, got %q", got)
	}
}
