// Package format classifies video dimensions and picks the single output
// format a compilation is rendered in.
package format

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when a width or height is not positive.
var ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")

// Category is the aspect-ratio class of a video.
type Category string

const (
	// CategoryVerticalSocial covers 9:16 style videos (aspect 0.50-0.60).
	CategoryVerticalSocial Category = "vertical_social"
	// CategoryHorizontalStandard covers 16:9 style videos (aspect 1.70-1.80).
	CategoryHorizontalStandard Category = "horizontal_standard"
	// CategorySquare covers roughly square videos (aspect 0.90-1.10).
	CategorySquare Category = "square"
	// CategoryUltraWide covers anything wider than 1.80.
	CategoryUltraWide Category = "ultra_wide"
	// CategoryCustom is everything else.
	CategoryCustom Category = "custom"
)

// Description returns a human-readable label for the category.
func (c Category) Description() string {
	switch c {
	case CategoryVerticalSocial:
		return "Vertical (Social Media Ready)"
	case CategoryHorizontalStandard:
		return "Horizontal (Standard)"
	case CategorySquare:
		return "Square"
	case CategoryUltraWide:
		return "Ultra-wide"
	default:
		return "Custom aspect ratio"
	}
}

// Info is the read-only format description of a decoded clip.
type Info struct {
	Width       int
	Height      int
	AspectRatio float64
	Category    Category
	Description string
	SocialReady bool
}

// String implements fmt.Stringer.
func (i Info) String() string {
	return fmt.Sprintf("%s (%dx%d)", i.Description, i.Width, i.Height)
}

// Analyze classifies the given dimensions. Bands are checked in order, so the
// first matching band wins.
func Analyze(width, height int) (Info, error) {
	if width <= 0 || height <= 0 {
		return Info{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}

	ratio := float64(width) / float64(height)

	var category Category
	switch {
	case ratio >= 0.5 && ratio <= 0.6:
		category = CategoryVerticalSocial
	case ratio >= 1.7 && ratio <= 1.8:
		category = CategoryHorizontalStandard
	case ratio >= 0.9 && ratio <= 1.1:
		category = CategorySquare
	case ratio > 1.8:
		category = CategoryUltraWide
	default:
		category = CategoryCustom
	}

	return Info{
		Width:       width,
		Height:      height,
		AspectRatio: ratio,
		Category:    category,
		Description: category.Description(),
		SocialReady: category == CategoryVerticalSocial,
	}, nil
}
