// Package rectify straightens oriented text lines into fixed-height strips
// for the recognition model.
package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// ErrDegenerateLine is returned for lines without area.
var ErrDegenerateLine = errors.New("line has no area")

// SampleOptions controls the strip size.
type SampleOptions struct {
	// Height of the strip in pixels.
	Height int `mapstructure:"height" yaml:"height" json:"height"`
	// WidthMultiple pads the strip width up to a multiple of this value.
	WidthMultiple int `mapstructure:"width_multiple" yaml:"width_multiple" json:"width_multiple"`
	// MaxWidth caps the content width; 0 means no cap.
	MaxWidth int `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
}

// DefaultSampleOptions matches the stock recognition model input.
func DefaultSampleOptions() SampleOptions {
	return SampleOptions{Height: 64, WidthMultiple: 4}
}

// Validate checks the options.
func (o SampleOptions) Validate() error {
	if o.Height <= 0 {
		return fmt.Errorf("strip height must be positive, got %d", o.Height)
	}
	if o.WidthMultiple <= 0 {
		return fmt.Errorf("width multiple must be positive, got %d", o.WidthMultiple)
	}
	if o.MaxWidth < 0 {
		return fmt.Errorf("max width must be non-negative, got %d", o.MaxWidth)
	}
	return nil
}

// Strip is a rectified grayscale line image, row-major, values in [-0.5, 0.5].
type Strip struct {
	Data   []float32
	Width  int
	Height int
	// ContentWidth is the width before right padding.
	ContentWidth int
	// Rect is the line rectangle in source image coordinates.
	Rect utils.RotatedRect
}

// Image renders the strip for debugging.
func (s Strip) Image() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for i, v := range s.Data {
		g.Pix[i] = uint8(math.Round(float64(min(max(v+0.5, 0), 1)) * 255))
	}
	return g
}

// LineRect is the minimum-area rectangle enclosing all word corners.
func LineRect(words []utils.RotatedRect) utils.RotatedRect {
	pts := make([]utils.Point, 0, 4*len(words))
	for _, w := range words {
		c := w.Corners()
		pts = append(pts, c[:]...)
	}
	return utils.MinAreaRect(pts)
}

// SampleLine maps the rectangle enclosing words onto an upright strip of
// opts.Height rows, keeping the aspect ratio, and pads it on the right with
// black to a multiple of opts.WidthMultiple.
func SampleLine(img *imagesrc.NormalizedImage, words []utils.RotatedRect, opts SampleOptions) (Strip, error) {
	if err := opts.Validate(); err != nil {
		return Strip{}, err
	}
	if img == nil {
		return Strip{}, errors.New("input image is nil")
	}
	rect := LineRect(words)
	if rect.IsEmpty() {
		return Strip{}, ErrDegenerateLine
	}

	h := opts.Height
	w := max(int(math.Round(float64(h)*rect.Width/rect.Height)), 1)
	if opts.MaxWidth > 0 {
		w = min(w, opts.MaxWidth)
	}
	padded := (w + opts.WidthMultiple - 1) / opts.WidthMultiple * opts.WidthMultiple

	c := rect.Corners()
	dst := [4]utils.Point{{X: 0, Y: 0}, {X: float64(w), Y: 0}, {X: float64(w), Y: float64(h)}, {X: 0, Y: float64(h)}}
	hm, err := homographyFromQuads(dst, c)
	if err != nil {
		return Strip{}, fmt.Errorf("%w: %w", ErrDegenerateLine, err)
	}

	gray := img.Gray()
	data := make([]float32, padded*h)
	for y := range h {
		row := data[y*padded : (y+1)*padded]
		for x := range padded {
			if x >= w {
				row[x] = imagesrc.BlackValue
				continue
			}
			sx, sy := hm.Apply(float64(x)+0.5, float64(y)+0.5)
			row[x] = bilinear(gray, sx, sy)
		}
	}
	return Strip{Data: data, Width: padded, Height: h, ContentWidth: w, Rect: rect}, nil
}

// bilinear samples a single-channel image at continuous coordinates where
// pixel (i, j) covers [i, i+1) x [j, j+1). Taps outside the image read black.
func bilinear(img *imagesrc.NormalizedImage, x, y float64) float32 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return imagesrc.BlackValue
	}
	fx, fy := x-0.5, y-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := float32(fx-float64(x0)), float32(fy-float64(y0))
	v00 := img.At(0, x0, y0)
	v10 := img.At(0, x0+1, y0)
	v01 := img.At(0, x0, y0+1)
	v11 := img.At(0, x0+1, y0+1)
	top := v00 + (v10-v00)*tx
	bottom := v01 + (v11-v01)*tx
	return top + (bottom-top)*ty
}
