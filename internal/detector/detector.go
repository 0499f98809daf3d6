package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/mempool"
	"github.com/MeKo-Tech/linocr/internal/onnx"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// Config holds configuration for the text detector.
type Config struct {
	Threshold    float32 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	MinArea      int     `mapstructure:"min_area" yaml:"min_area" json:"min_area"`
	ExpandDist   float64 `mapstructure:"expand_dist" yaml:"expand_dist" json:"expand_dist"`
	ExpandRatio  float64 `mapstructure:"expand_ratio" yaml:"expand_ratio" json:"expand_ratio"`
	Connectivity int     `mapstructure:"connectivity" yaml:"connectivity" json:"connectivity"`
	// PadMultiple is the size multiple dynamic model inputs are padded to.
	PadMultiple int `mapstructure:"pad_multiple" yaml:"pad_multiple" json:"pad_multiple"`
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	o := DefaultExtractOptions()
	return Config{
		Threshold:    o.Threshold,
		MinArea:      o.MinArea,
		ExpandDist:   o.ExpandDist,
		ExpandRatio:  o.ExpandRatio,
		Connectivity: o.Connectivity,
		PadMultiple:  32,
	}
}

// Validate checks the configuration for values the extractor cannot use.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1], got %v", c.Threshold)
	}
	if c.MinArea < 0 {
		return fmt.Errorf("min area must be non-negative, got %d", c.MinArea)
	}
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", c.Connectivity)
	}
	if c.PadMultiple <= 0 {
		return fmt.Errorf("pad multiple must be positive, got %d", c.PadMultiple)
	}
	return nil
}

func (c Config) extractOptions() ExtractOptions {
	return ExtractOptions{
		Threshold:    c.Threshold,
		MinArea:      c.MinArea,
		ExpandDist:   c.ExpandDist,
		ExpandRatio:  c.ExpandRatio,
		Connectivity: c.Connectivity,
	}
}

// Detector runs a text detection model and extracts word regions from its output.
type Detector struct {
	model onnx.Model
	cfg   Config
}

// New creates a detector around model.
func New(model onnx.Model, cfg Config) (*Detector, error) {
	if model == nil {
		return nil, errors.New("detection model is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{model: model, cfg: cfg}, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// Threshold returns the binarisation threshold.
func (d *Detector) Threshold() float32 { return d.cfg.Threshold }

// inputLayout describes how the image was placed in the model input.
type inputLayout struct {
	channels int
	w, h     int
	// fixed is true when the model declares its spatial size and the image
	// was resized instead of padded.
	fixed bool
}

func (d *Detector) layoutFor(img *imagesrc.NormalizedImage) inputLayout {
	shape := d.model.InputShape()
	l := inputLayout{channels: 1}
	if len(shape) == 4 {
		if shape[1] > 0 {
			l.channels = int(shape[1])
		}
		if shape[2] > 0 && shape[3] > 0 {
			l.h, l.w, l.fixed = int(shape[2]), int(shape[3]), true
			return l
		}
	}
	l.w = roundUp(img.Width, d.cfg.PadMultiple)
	l.h = roundUp(img.Height, d.cfg.PadMultiple)
	return l
}

func roundUp(v, m int) int { return (v + m - 1) / m * m }

// buildInput writes img into a pooled [1, C, H, W] tensor. Unused space is black.
func buildInput(img *imagesrc.NormalizedImage, l inputLayout) onnx.Tensor {
	src := img
	if l.fixed && (img.Width != l.w || img.Height != l.h) {
		src = img.Resize(l.w, l.h)
	}
	if l.channels != 3 || src.Channels != 3 {
		src = src.Gray()
	}

	plane := l.w * l.h
	data := mempool.GetFloat32(l.channels * plane)
	for i := range data {
		data[i] = imagesrc.BlackValue
	}
	srcPlane := src.Width * src.Height
	for c := range l.channels {
		sc := min(c, src.Channels-1)
		for y := range src.Height {
			row := src.Data[sc*srcPlane+y*src.Width : sc*srcPlane+(y+1)*src.Width]
			copy(data[c*plane+y*l.w:], row)
		}
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, int64(l.channels), int64(l.h), int64(l.w)}}
}

// runModel returns the probability map at model resolution together with the layout used.
func (d *Detector) runModel(ctx context.Context, img *imagesrc.NormalizedImage) (ProbabilityMap, inputLayout, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return ProbabilityMap{}, inputLayout{}, errors.New("input image is empty")
	}
	if err := ctx.Err(); err != nil {
		return ProbabilityMap{}, inputLayout{}, err
	}

	l := d.layoutFor(img)
	in := buildInput(img, l)
	defer mempool.PutFloat32(in.Data)

	start := time.Now()
	out, err := d.model.Run(ctx, in)
	if err != nil {
		return ProbabilityMap{}, l, fmt.Errorf("detection inference failed: %w", err)
	}
	want := []int64{1, 1, int64(l.h), int64(l.w)}
	if !onnx.MatchShape(want, out.Shape) || len(out.Data) != l.w*l.h {
		return ProbabilityMap{}, l, &onnx.ShapeMismatchError{Model: "detection", Want: want, Got: out.Shape}
	}
	lo, hi, mean := onnx.TensorStats(out.Data)
	slog.Debug("detection inference",
		"input_shape", in.Shape, "duration", time.Since(start),
		"prob_min", lo, "prob_max", hi, "prob_mean", mean)

	// Copy out so the map never aliases the pooled input.
	data := make([]float32, len(out.Data))
	copy(data, out.Data)
	return ProbabilityMap{Data: data, Width: l.w, Height: l.h}, l, nil
}

// DetectTextPixels returns the text probability of every pixel of img.
func (d *Detector) DetectTextPixels(ctx context.Context, img *imagesrc.NormalizedImage) (ProbabilityMap, error) {
	m, l, err := d.runModel(ctx, img)
	if err != nil {
		return ProbabilityMap{}, err
	}
	if l.fixed {
		return resampleNearest(m, img.Width, img.Height), nil
	}
	return crop(m, img.Width, img.Height), nil
}

// DetectWords returns the oriented rectangles of words found in img, in
// image coordinates and in no particular order.
func (d *Detector) DetectWords(ctx context.Context, img *imagesrc.NormalizedImage) ([]utils.RotatedRect, error) {
	start := time.Now()
	m, l, err := d.runModel(ctx, img)
	if err != nil {
		return nil, err
	}

	opts := d.cfg.extractOptions()
	if !l.fixed {
		rects := Extract(crop(m, img.Width, img.Height), opts)
		slog.Debug("detected words", "count", len(rects), "duration", time.Since(start))
		return rects, nil
	}

	sx := float64(img.Width) / float64(l.w)
	sy := float64(img.Height) / float64(l.h)
	opts.MinArea = int(float64(opts.MinArea) / (sx * sy))
	rects := Extract(m, opts)
	for i, r := range rects {
		c := r.Corners()
		for j := range c {
			c[j] = utils.Point{X: c[j].X * sx, Y: c[j].Y * sy}
		}
		rects[i] = utils.MinAreaRect(c[:])
	}
	slog.Debug("detected words", "count", len(rects), "scale_x", sx, "scale_y", sy, "duration", time.Since(start))
	return rects, nil
}

// crop drops the padding added to reach the model's size multiple.
func crop(m ProbabilityMap, w, h int) ProbabilityMap {
	if m.Width == w && m.Height == h {
		return m
	}
	out := ProbabilityMap{Data: make([]float32, w*h), Width: w, Height: h}
	for y := range h {
		copy(out.Data[y*w:(y+1)*w], m.Data[y*m.Width:y*m.Width+w])
	}
	return out
}

func resampleNearest(m ProbabilityMap, w, h int) ProbabilityMap {
	if m.Width == w && m.Height == h {
		return m
	}
	out := ProbabilityMap{Data: make([]float32, w*h), Width: w, Height: h}
	for y := range h {
		sy := min(int((float64(y)+0.5)*float64(m.Height)/float64(h)), m.Height-1)
		for x := range w {
			sx := min(int((float64(x)+0.5)*float64(m.Width)/float64(w)), m.Width-1)
			out.Data[y*w+x] = m.Data[sy*m.Width+sx]
		}
	}
	return out
}
