package compilation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mindset-media-api/internal/format"
	"github.com/maauso/mindset-media-api/internal/media"
	"github.com/maauso/mindset-media-api/internal/storage"
)

var verticalTarget = format.Target{
	Width:        format.VerticalWidth,
	Height:       format.VerticalHeight,
	Category:     format.CategoryVerticalSocial,
	ResizeNeeded: true,
	Mode:         format.ModeVertical,
}

func testClip(index, w, h int, duration float64, withAudio bool) *Clip {
	return &Clip{
		Index:     index,
		Path:      filepath.Join("/media", "clip"+string(rune('a'+index))+".mp4"),
		Width:     w,
		Height:    h,
		Duration:  duration,
		FrameRate: "30/1",
		HasAudio:  withAudio,
		Strategy:  StrategyFull,
	}
}

func newTestCompiler(t *testing.T, frames FrameTransformer) *Compiler {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewCompiler(frames, store, nil)
}

func TestPlanClips_ResizeOnlyWhenSizeDiffers(t *testing.T) {
	clips := []*Clip{
		testClip(0, 1080, 1920, 1, true),
		testClip(1, 720, 1280, 1, true),
		testClip(2, 1920, 1080, 1, false),
	}

	plans := PlanClips(clips, verticalTarget, Effect{})

	assert.False(t, plans[0].Resize, "clip already at target size is not resized")
	assert.True(t, plans[1].Resize)
	assert.True(t, plans[2].Resize)
	for i, p := range plans {
		assert.Equal(t, clips[i].Path, p.Source)
		assert.False(t, p.Effect)
	}
}

func TestCompiler_ComposeGraph(t *testing.T) {
	clips := []*Clip{
		testClip(0, 1080, 1920, 2.5, true),
		testClip(1, 720, 1280, 4.0, false),
		testClip(2, 1080, 1920, 1.25, true),
	}

	comp, err := newTestCompiler(t, nil).Compose(context.Background(), clips, verticalTarget, Effect{}, &Scratch{})
	require.NoError(t, err)

	assert.Equal(t, 7.75, comp.Duration, "duration is the exact sum of clip durations")
	assert.Equal(t, "[vcat]", comp.Video)
	assert.Equal(t, "[acat]", comp.Audio)
	assert.Equal(t, 1080, comp.Width)
	assert.Equal(t, 1920, comp.Height)

	inputs := comp.Graph.Inputs()
	require.Len(t, inputs, 3)
	for i, in := range inputs {
		assert.Equal(t, clips[i].Path, in.Path, "inputs keep request order")
	}

	assert.Equal(t, []string{
		"[0:v:0]setsar=1[v0]",
		"[0:a:0]apad,atrim=duration=2.5,asetpts=PTS-STARTPTS[a0]",
		"[1:v:0]scale=1080:1920,setsar=1[v1]",
		"anullsrc=channel_layout=stereo:sample_rate=44100,atrim=duration=4,asetpts=PTS-STARTPTS[a1]",
		"[2:v:0]setsar=1[v2]",
		"[2:a:0]apad,atrim=duration=1.25,asetpts=PTS-STARTPTS[a2]",
		"[v0][a0][v1][a1][v2][a2]concat=n=3:v=1:a=1[vcat][acat]",
	}, comp.Graph.Chains())
}

func TestCompiler_ComposeSilentClips(t *testing.T) {
	clips := []*Clip{
		testClip(0, 1920, 1080, 3, false),
		testClip(1, 1920, 1080, 3, false),
	}
	target := format.Target{Width: 1920, Height: 1080, Category: format.CategoryHorizontalStandard}

	comp, err := newTestCompiler(t, nil).Compose(context.Background(), clips, target, Effect{}, &Scratch{})
	require.NoError(t, err)

	assert.Empty(t, comp.Audio)
	assert.Equal(t, 6.0, comp.Duration)
	assert.Equal(t, []string{
		"[0:v:0]setsar=1[v0]",
		"[1:v:0]setsar=1[v1]",
		"[v0][v1]concat=n=2:v=1:a=0[vcat]",
	}, comp.Graph.Chains())
}

func TestCompiler_ComposeNoClips(t *testing.T) {
	_, err := newTestCompiler(t, nil).Compose(context.Background(), nil, verticalTarget, Effect{}, &Scratch{})

	var ce *CompositionError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, format.ErrNoClips)
}

func TestCompiler_ComposeWithEffect(t *testing.T) {
	clips := []*Clip{
		testClip(0, 1080, 1920, 2, true),
		testClip(1, 720, 1280, 3, false),
	}

	var jobs []media.FrameJob
	backend := new(mockBackend)
	backend.On("TransformFrames", mock.Anything, mock.AnythingOfType("media.FrameJob"), mock.Anything).
		Run(func(args mock.Arguments) {
			job := args.Get(1).(media.FrameJob)
			jobs = append(jobs, job)

			// The transform is the moody effect at full intensity.
			fn := args.Get(2).(media.FrameFunc)
			px := []byte{100, 150, 200}
			fn(px)
			assert.Equal(t, []byte{31, 36, 52}, px)
		}).
		Return(60, nil)

	scratch := &Scratch{}
	comp, err := newTestCompiler(t, backend).Compose(context.Background(), clips, verticalTarget, Effect{Apply: true, Intensity: 1}, scratch)
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	assert.False(t, jobs[0].Scale, "clip at target size is not scaled")
	assert.True(t, jobs[0].KeepAudio)
	assert.True(t, jobs[1].Scale)
	assert.False(t, jobs[1].KeepAudio)
	for i, job := range jobs {
		assert.Equal(t, clips[i].Path, job.Src)
		assert.Equal(t, 1080, job.Width)
		assert.Equal(t, 1920, job.Height)
		assert.Equal(t, "30/1", job.FrameRate)
	}

	// The graph reads the intermediates, already at target size.
	inputs := comp.Graph.Inputs()
	assert.Equal(t, jobs[0].Dst, inputs[0].Path)
	assert.Equal(t, jobs[1].Dst, inputs[1].Path)
	assert.Equal(t, "[1:v:0]setsar=1[v1]", comp.Graph.Chains()[2])
	assert.ElementsMatch(t, []string{jobs[0].Dst, jobs[1].Dst}, scratch.Paths())
	for _, p := range comp.Plans {
		assert.True(t, p.Effect)
		assert.False(t, p.Resize)
	}
	assert.Equal(t, 5.0, comp.Duration)
}

func TestCompiler_EffectFailure(t *testing.T) {
	clips := []*Clip{
		testClip(0, 1080, 1920, 2, false),
		testClip(1, 1080, 1920, 2, false),
	}

	boom := errors.New("encoder exited")
	backend := new(mockBackend)
	backend.On("TransformFrames", mock.Anything, mock.MatchedBy(func(j media.FrameJob) bool { return j.Src == clips[0].Path }), mock.Anything).
		Return(48, nil)
	backend.On("TransformFrames", mock.Anything, mock.MatchedBy(func(j media.FrameJob) bool { return j.Src == clips[1].Path }), mock.Anything).
		Return(0, boom)

	scratch := &Scratch{}
	_, err := newTestCompiler(t, backend).Compose(context.Background(), clips, verticalTarget, Effect{Apply: true, Intensity: 0.7}, scratch)

	var ce *CompositionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "effect", ce.Step)
	assert.Equal(t, 1, ce.Index)
	assert.ErrorIs(t, err, boom)

	// Both intermediates are tracked for cleanup, including the failed one.
	paths := scratch.Paths()
	require.Len(t, paths, 2)
	for _, p := range paths {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr)
	}
}
