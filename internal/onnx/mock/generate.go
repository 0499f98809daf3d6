// Package mock builds synthetic model outputs for tests.
package mock

import (
	"image"

	"github.com/MeKo-Tech/linocr/internal/onnx"
)

// ImageMap is a synthetic detection output with NCHW shape [1,1,H,W].
type ImageMap struct {
	Data   []float32
	Width  int
	Height int
}

// Tensor wraps the map as a [1,1,H,W] tensor.
func (m ImageMap) Tensor() onnx.Tensor {
	return onnx.Tensor{Data: m.Data, Shape: []int64{1, 1, int64(m.Height), int64(m.Width)}}
}

// NewUniformMap creates a uniform probability map of size WxH with the given value in [0,1].
func NewUniformMap(w, h int, value float32) ImageMap {
	if w <= 0 || h <= 0 {
		return ImageMap{}
	}
	data := make([]float32, w*h)
	for i := range data {
		data[i] = clamp01(value)
	}
	return ImageMap{Data: data, Width: w, Height: h}
}

// NewBlockMap creates a map that is lo everywhere except inside blocks, where it is hi.
func NewBlockMap(w, h int, blocks []image.Rectangle, hi, lo float32) ImageMap {
	m := NewUniformMap(w, h, lo)
	bounds := image.Rect(0, 0, w, h)
	for _, b := range blocks {
		b = b.Intersect(bounds)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				m.Data[y*w+x] = clamp01(hi)
			}
		}
	}
	return m
}

// NewPathScores builds a recognition output for one sequence whose greedy
// argmax yields labels. Label 0 is the CTC blank. layout is one of "TNC"
// (the default for an empty string), "NTC" or "NCT".
func NewPathScores(labels []int, classes int, layout string, hi, lo float32) onnx.Tensor {
	t := len(labels)
	data := make([]float32, t*classes)
	var shape []int64
	index := func(ti, c int) int { return ti*classes + c }
	switch layout {
	case "NCT":
		shape = []int64{1, int64(classes), int64(t)}
		index = func(ti, c int) int { return c*t + ti }
	case "NTC":
		shape = []int64{1, int64(t), int64(classes)}
	default:
		shape = []int64{int64(t), 1, int64(classes)}
	}
	for ti, label := range labels {
		for c := range classes {
			v := lo
			if c == label {
				v = hi
			}
			data[index(ti, c)] = v
		}
	}
	return onnx.Tensor{Data: data, Shape: shape}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
