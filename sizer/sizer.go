// Package sizer computes output image dimensions for the vision preprocessing
// pipeline.
package sizer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultFactor    = 32
	DefaultMinPixels = 56 * 56
	DefaultMaxPixels = 4096 * 2160
)

var (
	ErrInvalidDimension = errors.New("image dimensions must be positive")
	ErrInvalidBudget    = errors.New("min pixels cannot exceed max pixels")
)

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) Area() int {
	return s.Width * s.Height
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Budget is the rounding granularity and the inclusive pixel-area range an
// output size should land in.
type Budget struct {
	Factor    int `json:"factor" mapstructure:"factor"`
	MinPixels int `json:"min_pixels" mapstructure:"min_pixels"`
	MaxPixels int `json:"max_pixels" mapstructure:"max_pixels"`
}

func DefaultBudget() Budget {
	return Budget{
		Factor:    DefaultFactor,
		MinPixels: DefaultMinPixels,
		MaxPixels: DefaultMaxPixels,
	}
}

func (b Budget) Validate() error {
	if b.MinPixels > b.MaxPixels {
		return fmt.Errorf("%w: %d > %d", ErrInvalidBudget, b.MinPixels, b.MaxPixels)
	}
	return nil
}

// SmartResize normalizes height and width against the default budget.
func SmartResize(height, width int) (Size, error) {
	return Normalize(height, width, DefaultBudget())
}

// Normalize scales (height, width) so the area falls within the budget, keeping
// the aspect ratio, and rounds both sides to a multiple of the budget factor.
//
// Rounding may push the area out of range, in which case a single correction
// pass is applied. The pass is not repeated, so the result can still land
// slightly outside [MinPixels, MaxPixels].
func Normalize(height, width int, b Budget) (Size, error) {
	if height <= 0 || width <= 0 {
		return Size{}, fmt.Errorf("%w: got %dx%d", ErrInvalidDimension, width, height)
	}
	if err := b.Validate(); err != nil {
		return Size{}, err
	}

	area := float64(height) * float64(width)
	scale := 1.0
	switch {
	case area < float64(b.MinPixels):
		scale = math.Sqrt(float64(b.MinPixels) / area)
	case area > float64(b.MaxPixels):
		scale = math.Sqrt(float64(b.MaxPixels) / area)
	}

	rh := max(1, int(math.RoundToEven(float64(height)*scale)))
	rw := max(1, int(math.RoundToEven(float64(width)*scale)))

	rh = roundToMultiple(rh, b.Factor)
	rw = roundToMultiple(rw, b.Factor)

	if got := rh * rw; got > b.MaxPixels {
		rh, rw = rescale(rh, rw, math.Sqrt(float64(b.MaxPixels)/float64(got)), b.Factor)
	} else if got < b.MinPixels {
		rh, rw = rescale(rh, rw, math.Sqrt(float64(b.MinPixels)/float64(got)), b.Factor)
	}

	return Size{Width: rw, Height: rh}, nil
}

func rescale(h, w int, s float64, factor int) (int, int) {
	h = roundToMultiple(max(1, int(float64(h)*s)), factor)
	w = roundToMultiple(max(1, int(float64(w)*s)), factor)
	return h, w
}

// Nearest multiple of factor, never below factor itself. factor <= 1 is a no-op.
func roundToMultiple(x, factor int) int {
	if factor <= 1 {
		return x
	}
	n := int(math.RoundToEven(float64(x) / float64(factor)))
	return max(factor, n*factor)
}

// Fit returns the largest size with the image's aspect ratio that fits inside box.
// A zero box side leaves that side unconstrained.
func Fit(imageWidth, imageHeight int, box Size) (Size, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Size{}, fmt.Errorf("%w: got %dx%d", ErrInvalidDimension, imageWidth, imageHeight)
	}
	if box.Width <= 0 && box.Height <= 0 {
		return Size{Width: imageWidth, Height: imageHeight}, nil
	}

	ratio := float64(imageHeight) / float64(imageWidth)
	if box.Width <= 0 {
		return Size{Width: max(1, int(float64(box.Height)/ratio)), Height: box.Height}, nil
	}

	width := box.Width
	height := float64(width) * ratio
	if box.Height > 0 && int(height) > box.Height {
		height = float64(box.Height)
		width = int(height / ratio)
	}

	return Size{Width: max(1, width), Height: max(1, int(height))}, nil
}

// ParseSize parses "width,height". Fractional values are truncated.
func ParseSize(value string) (Size, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("size %q must be in the form width,height", value)
	}

	width, err := parseInteger(parts[0])
	if err != nil {
		return Size{}, fmt.Errorf("parse width: %w", err)
	}
	height, err := parseInteger(parts[1])
	if err != nil {
		return Size{}, fmt.Errorf("parse height: %w", err)
	}

	return Size{Width: width, Height: height}, nil
}

func parseInteger(value string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("%q is negative", value)
	}
	return int(f), nil
}
