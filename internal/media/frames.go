package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// FrameJob describes a decode → transform → encode pass over one clip.
type FrameJob struct {
	// Src is the input video, Dst the re-encoded output.
	Src string
	Dst string
	// Width and Height are the frame size handed to the transform. When
	// Scale is false they must equal the source size.
	Width  int
	Height int
	Scale  bool
	// FrameRate is the source frame rate as an ffmpeg rational ("30000/1001").
	FrameRate string
	// KeepAudio re-muxes the first audio stream of Src into Dst.
	KeepAudio bool
}

// FrameSize returns the byte size of one packed rgb24 frame.
func (j FrameJob) FrameSize() int {
	return j.Width * j.Height * 3
}

func (j FrameJob) decodeArgs() []string {
	args := []string{"-v", "error", "-i", j.Src, "-map", "0:v:0"}
	if j.Scale {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", j.Width, j.Height))
	}
	return append(args, "-f", "rawvideo", "-pix_fmt", "rgb24", "-")
}

func (j FrameJob) encodeArgs() []string {
	rate := j.FrameRate
	if ParseRate(rate) <= 0 {
		rate = "30"
	}

	args := []string{
		"-y", "-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", strconv.Itoa(j.Width) + "x" + strconv.Itoa(j.Height),
		"-framerate", rate,
		"-i", "-",
	}
	if j.KeepAudio {
		args = append(args, "-i", j.Src, "-map", "0:v:0", "-map", "1:a:0", "-c:a", "aac")
	}
	return append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "18", // Intermediate: keep it close to lossless
		"-pix_fmt", "yuv420p",
		j.Dst,
	)
}

// TransformFrames pipes decoded rgb24 frames through fn into an encoder.
// The decoder, the transform loop and the encoder run concurrently; a failure
// in any of them cancels the others.
func (p *FFmpegProcessor) TransformFrames(ctx context.Context, job FrameJob, fn FrameFunc) (int, error) {
	if job.Width <= 0 || job.Height <= 0 {
		return 0, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, job.Width, job.Height)
	}

	g, gctx := errgroup.WithContext(ctx)

	decArgs := job.decodeArgs()
	encArgs := job.encodeArgs()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	dec := exec.CommandContext(gctx, p.ffmpegPath, decArgs...)
	// #nosec G204 - ffmpegPath is set by the application, not user input
	enc := exec.CommandContext(gctx, p.ffmpegPath, encArgs...)

	var decErr, encErr bytes.Buffer
	dec.Stderr = &decErr
	enc.Stderr = &encErr

	frames, err := dec.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("decoder stdout: %w", err)
	}
	sink, err := enc.StdinPipe()
	if err != nil {
		return 0, fmt.Errorf("encoder stdin: %w", err)
	}

	if err := enc.Start(); err != nil {
		return 0, fmt.Errorf("start encoder: %w", err)
	}
	if err := dec.Start(); err != nil {
		_ = sink.Close()
		_ = enc.Wait()
		return 0, fmt.Errorf("start decoder: %w", err)
	}

	count := 0
	g.Go(func() error {
		defer func() { _ = sink.Close() }()

		buf := make([]byte, job.FrameSize())
		for {
			_, err := io.ReadFull(frames, buf)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read frame %d: %w", count, err)
			}
			fn(buf)
			if _, err := sink.Write(buf); err != nil {
				return fmt.Errorf("write frame %d: %w", count, err)
			}
			count++
		}
	})
	g.Go(func() error {
		if err := enc.Wait(); err != nil {
			return &FFmpegError{Args: encArgs, Stderr: encErr.String(), Err: err}
		}
		return nil
	})

	pumpErr := g.Wait()
	// The pump has finished reading, so the decoder can be reaped.
	waitErr := dec.Wait()

	if ctx.Err() != nil {
		return count, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}
	if pumpErr != nil {
		return count, pumpErr
	}
	if waitErr != nil {
		return count, &FFmpegError{Args: decArgs, Stderr: decErr.String(), Err: waitErr}
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoFrames, job.Src)
	}

	return count, nil
}
