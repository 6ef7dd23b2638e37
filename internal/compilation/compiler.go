package compilation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/maauso/mindset-media-api/internal/effect"
	"github.com/maauso/mindset-media-api/internal/format"
	"github.com/maauso/mindset-media-api/internal/media"
)

// Labels of the concatenated streams in the composition graph.
const (
	labelVideo = "[vcat]"
	labelAudio = "[acat]"
)

// Silence generated for clips without audio when other clips have some.
const silenceSource = "anullsrc=channel_layout=stereo:sample_rate=44100"

// TempFiles creates request-owned temporary files.
type TempFiles interface {
	CreateTemp(ctx context.Context, name, ext string) (*os.File, error)
}

// FrameTransformer runs a decode, per-frame transform and encode pass.
type FrameTransformer interface {
	TransformFrames(ctx context.Context, job media.FrameJob, fn media.FrameFunc) (int, error)
}

// Scratch collects the temporary files created while serving one request.
// It is safe for concurrent use.
type Scratch struct {
	mu    sync.Mutex
	paths []string
}

// Add records a path for deletion.
func (s *Scratch) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
}

// Paths returns the recorded paths.
func (s *Scratch) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Effect configures the moody effect for a composition.
type Effect struct {
	Apply     bool
	Intensity float64
}

// ClipPlan is the per-clip processing decision.
type ClipPlan struct {
	Index    int
	Source   string
	Resize   bool
	Effect   bool
	Duration float64
	HasAudio bool
}

// Composition is the concatenated timeline, ready for mixing and export.
type Composition struct {
	Graph *media.Graph
	// Video and Audio are the output labels. Audio is empty when no clip
	// carries sound.
	Video    string
	Audio    string
	Duration float64
	Width    int
	Height   int
	Plans    []ClipPlan
}

// PlanClips decides for every clip whether it must be resized to target and
// whether the effect applies. Clips already at the target size are never
// resized.
func PlanClips(clips []*Clip, target format.Target, fx Effect) []ClipPlan {
	plans := make([]ClipPlan, len(clips))
	for i, c := range clips {
		plans[i] = ClipPlan{
			Index:    c.Index,
			Source:   c.Path,
			Resize:   target.NeedsResize(c.Width, c.Height),
			Effect:   fx.Apply,
			Duration: c.Duration,
			HasAudio: c.HasAudio,
		}
	}
	return plans
}

// Compiler resizes, applies the effect to and concatenates clips.
type Compiler struct {
	frames FrameTransformer
	temps  TempFiles
	logger *slog.Logger
}

// NewCompiler creates a Compiler. A nil logger uses slog.Default().
func NewCompiler(frames FrameTransformer, temps TempFiles, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{frames: frames, temps: temps, logger: logger}
}

// Compose builds the concatenation graph for clips at the target format.
// With the effect enabled every clip is first re-encoded through the moody
// transform at the target size; those intermediates are recorded in scratch.
// Clips are joined in order with no transitions, so the composition lasts
// exactly the sum of the clip durations.
func (c *Compiler) Compose(ctx context.Context, clips []*Clip, target format.Target, fx Effect, scratch *Scratch) (*Composition, error) {
	if len(clips) == 0 {
		return nil, &CompositionError{Step: "concatenate", Index: -1, Err: format.ErrNoClips}
	}

	plans := PlanClips(clips, target, fx)
	if fx.Apply {
		moody := effect.NewMoody(fx.Intensity)
		for i := range plans {
			if err := c.applyEffect(ctx, clips[i], &plans[i], target, moody, scratch); err != nil {
				return nil, err
			}
		}
	}

	comp := &Composition{
		Graph:  media.NewGraph(),
		Video:  labelVideo,
		Width:  target.Width,
		Height: target.Height,
		Plans:  plans,
	}

	anyAudio := false
	for _, p := range plans {
		if p.HasAudio {
			anyAudio = true
			break
		}
	}

	var pads strings.Builder
	for i, p := range plans {
		idx := comp.Graph.AddInput(p.Source)

		filters := []string{}
		if p.Resize {
			filters = append(filters, fmt.Sprintf("scale=%d:%d", target.Width, target.Height))
		}
		filters = append(filters, "setsar=1")
		comp.Graph.AddChain("[%d:v:0]%s[v%d]", idx, strings.Join(filters, ","), i)
		fmt.Fprintf(&pads, "[v%d]", i)

		if anyAudio {
			dur := strconv.FormatFloat(p.Duration, 'f', -1, 64)
			if p.HasAudio {
				comp.Graph.AddChain("[%d:a:0]apad,atrim=duration=%s,asetpts=PTS-STARTPTS[a%d]", idx, dur, i)
			} else {
				comp.Graph.AddChain("%s,atrim=duration=%s,asetpts=PTS-STARTPTS[a%d]", silenceSource, dur, i)
			}
			fmt.Fprintf(&pads, "[a%d]", i)
		}

		comp.Duration += p.Duration

		c.logger.Debug("clip planned",
			slog.Int("index", p.Index),
			slog.Bool("resize", p.Resize),
			slog.Bool("effect", p.Effect),
			slog.Float64("duration", p.Duration),
		)
	}

	audioStreams := 0
	if anyAudio {
		audioStreams = 1
		comp.Audio = labelAudio
	}
	comp.Graph.AddChain("%sconcat=n=%d:v=1:a=%d%s%s", pads.String(), len(plans), audioStreams, labelVideo, comp.Audio)

	return comp, nil
}

// applyEffect re-encodes one clip through the moody transform, scaling it to
// the target first when needed, and points the plan at the intermediate.
func (c *Compiler) applyEffect(ctx context.Context, clip *Clip, plan *ClipPlan, target format.Target, moody *effect.Moody, scratch *Scratch) error {
	f, err := c.temps.CreateTemp(ctx, fmt.Sprintf("effect_%d", clip.Index), "mp4")
	if err != nil {
		return &CompositionError{Step: "effect", Index: clip.Index, Err: err}
	}
	dst := f.Name()
	scratch.Add(dst)
	if err := f.Close(); err != nil {
		return &CompositionError{Step: "effect", Index: clip.Index, Err: err}
	}

	job := media.FrameJob{
		Src:       clip.Path,
		Dst:       dst,
		Width:     target.Width,
		Height:    target.Height,
		Scale:     plan.Resize,
		FrameRate: clip.FrameRate,
		KeepAudio: clip.HasAudio,
	}
	frames, err := c.frames.TransformFrames(ctx, job, moody.ApplyInPlace)
	if err != nil {
		return &CompositionError{Step: "effect", Index: clip.Index, Err: err}
	}

	c.logger.Info("effect applied",
		slog.Int("index", clip.Index),
		slog.Int("frames", frames),
		slog.Float64("intensity", moody.Intensity()),
	)

	plan.Source = dst
	plan.Resize = false
	return nil
}
