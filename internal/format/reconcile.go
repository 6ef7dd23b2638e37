package format

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for reconciliation.
var (
	// ErrNoClips is returned when reconciliation is attempted on an empty set.
	ErrNoClips = errors.New("no clips to reconcile")
	// ErrUnknownMode is returned for an unsupported format mode.
	ErrUnknownMode = errors.New("unknown format mode")
)

// Mode is the caller-requested output format strategy.
type Mode string

const (
	// ModeVertical forces 1080x1920.
	ModeVertical Mode = "vertical"
	// ModeHorizontal forces 1920x1080.
	ModeHorizontal Mode = "horizontal"
	// ModeAuto picks the majority format of the inputs.
	ModeAuto Mode = "auto"
	// ModeKeepOriginal anchors the output to the first input's size.
	ModeKeepOriginal Mode = "keep_original"
)

// Canonical output sizes.
const (
	VerticalWidth    = 1080
	VerticalHeight   = 1920
	HorizontalWidth  = 1920
	HorizontalHeight = 1080
)

// ParseMode converts a string into a Mode. The empty string maps to
// ModeVertical.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeVertical, nil
	case ModeVertical, ModeHorizontal, ModeAuto, ModeKeepOriginal:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Target is the single resolution every clip of a compilation is
// reconciled to.
type Target struct {
	Width        int
	Height       int
	Category     Category
	ResizeNeeded bool
	Mode         Mode
}

// NeedsResize reports whether a clip of the given size must be scaled.
func (t Target) NeedsResize(width, height int) bool {
	return width != t.Width || height != t.Height
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return fmt.Sprintf("%s (%dx%d)", t.Category, t.Width, t.Height)
}

// Reconcile picks the target format for the given clips.
//
// In auto mode a category wins when it covers at least half of the clips; the
// target then uses the most common native size within that category. An exact
// vertical/horizontal tie falls through to the mixed default (vertical
// 1080x1920, resize forced).
func Reconcile(infos []Info, mode Mode) (Target, error) {
	if len(infos) == 0 {
		return Target{}, ErrNoClips
	}

	switch mode {
	case ModeVertical:
		return Target{
			Width: VerticalWidth, Height: VerticalHeight,
			Category: CategoryVerticalSocial, ResizeNeeded: true, Mode: mode,
		}, nil
	case ModeHorizontal:
		return Target{
			Width: HorizontalWidth, Height: HorizontalHeight,
			Category: CategoryHorizontalStandard, ResizeNeeded: true, Mode: mode,
		}, nil
	case ModeKeepOriginal:
		first := infos[0]
		return Target{
			Width: first.Width, Height: first.Height,
			Category: first.Category, ResizeNeeded: anyDiffers(infos, first.Width, first.Height),
			Mode: mode,
		}, nil
	case ModeAuto:
		return reconcileAuto(infos), nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func reconcileAuto(infos []Info) Target {
	counts := make(map[Category]int)
	for _, info := range infos {
		counts[info.Category]++
	}

	n := len(infos)
	vertical := 2*counts[CategoryVerticalSocial] >= n
	horizontal := 2*counts[CategoryHorizontalStandard] >= n

	switch {
	case vertical && !horizontal:
		return majorityTarget(infos, CategoryVerticalSocial)
	case horizontal && !vertical:
		return majorityTarget(infos, CategoryHorizontalStandard)
	default:
		return Target{
			Width: VerticalWidth, Height: VerticalHeight,
			Category: CategoryVerticalSocial, ResizeNeeded: true, Mode: ModeAuto,
		}
	}
}

// majorityTarget uses the most frequent size among clips of the category.
// Ties go to the size seen first.
func majorityTarget(infos []Info, category Category) Target {
	type size struct{ w, h int }

	counts := make(map[size]int)
	var order []size
	for _, info := range infos {
		if info.Category != category {
			continue
		}
		s := size{info.Width, info.Height}
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}

	best := order[0]
	for _, s := range order[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}

	return Target{
		Width:        best.w,
		Height:       best.h,
		Category:     category,
		ResizeNeeded: anyDiffers(infos, best.w, best.h),
		Mode:         ModeAuto,
	}
}

func anyDiffers(infos []Info, width, height int) bool {
	for _, info := range infos {
		if info.Width != width || info.Height != height {
			return true
		}
	}
	return false
}
