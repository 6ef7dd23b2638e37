// Package media wraps the ffmpeg/ffprobe command line tools used to decode,
// inspect, transform and encode video.
package media

import "context"

// FrameFunc transforms one packed rgb24 frame in place.
type FrameFunc func(frame []byte)

// Processor defines the media backend operations used by the compilation
// pipeline. Every call is blocking and works on file paths.
type Processor interface {
	// Probe inspects a media file and returns its streams and container
	// metadata.
	Probe(ctx context.Context, path string, opts ProbeOptions) (ProbeResult, error)

	// ExtractFrame decodes the frame at the given timestamp (seconds) and
	// returns it PNG-encoded.
	ExtractFrame(ctx context.Context, path string, at float64) ([]byte, error)

	// TransformFrames decodes job.Src to rgb24 frames (scaled to the job size
	// when job.Scale is set), passes every frame through fn and encodes the
	// result to job.Dst.
	TransformFrames(ctx context.Context, job FrameJob, fn FrameFunc) (frames int, err error)

	// Render runs ffmpeg over a filter graph and writes the encoded output.
	Render(ctx context.Context, g *Graph, out Output) error
}
