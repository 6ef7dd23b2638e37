// Package audio lays a background track under a compiled video: it measures
// the track, plans how often it must loop to cover the video, and adds the
// loop/trim/volume/mix chains to a media filter graph.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// Static errors for audio mixing.
var (
	// ErrInvalidDuration is returned when a track or video duration is not positive.
	ErrInvalidDuration = errors.New("duration must be positive")
	// ErrInvalidVolume is returned when a volume is outside [0, 1].
	ErrInvalidVolume = errors.New("volume must be between 0 and 1")
	// ErrNoTrack is returned when no background track path is given.
	ErrNoTrack = errors.New("no background track")
)

// LoopPlan describes how a background track covers a video.
type LoopPlan struct {
	// Loops is the number of times the track is played back to back.
	Loops int
	// Trim is the final track length in seconds; always the video duration.
	Trim float64
}

// PlanLoop returns the loop plan for a track of trackDur seconds under a
// video of videoDur seconds. A track shorter than the video is repeated
// int(videoDur/trackDur)+1 times; the result is always trimmed to videoDur.
func PlanLoop(trackDur, videoDur float64) (LoopPlan, error) {
	if !(trackDur > 0) || math.IsInf(trackDur, 0) {
		return LoopPlan{}, fmt.Errorf("%w: track %.3fs", ErrInvalidDuration, trackDur)
	}
	if !(videoDur > 0) || math.IsInf(videoDur, 0) {
		return LoopPlan{}, fmt.Errorf("%w: video %.3fs", ErrInvalidDuration, videoDur)
	}

	loops := 1
	if trackDur < videoDur {
		loops = int(videoDur/trackDur) + 1
	}
	return LoopPlan{Loops: loops, Trim: videoDur}, nil
}

// MixInput describes one background mix.
type MixInput struct {
	// TrackPath is the local background track.
	TrackPath string
	// VideoAudio is the graph label carrying the compiled video's audio,
	// e.g. "[acat]". Empty when the video is silent.
	VideoAudio string
	// VideoDuration is the compiled video duration in seconds.
	VideoDuration float64
	// VideoVolume scales the original audio, MusicVolume the background.
	VideoVolume float64
	MusicVolume float64
}

// MixResult reports the outcome of Mix.
type MixResult struct {
	// Label is the graph label of the final audio stream.
	Label string
	// TrackDuration is the measured background track duration.
	TrackDuration float64
	Plan          LoopPlan
}

func (in MixInput) validate() error {
	if in.TrackPath == "" {
		return ErrNoTrack
	}
	for _, v := range []float64{in.VideoVolume, in.MusicVolume} {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%w: %v", ErrInvalidVolume, v)
		}
	}
	return nil
}
