package testutil

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/linocr/internal/onnx"
)

// FakeDetectionModel returns a model whose text probability is the input
// intensity shifted into [0, 1]: white pixels are text, black are not.
// shape is the declared input shape; its channel count is honoured.
func FakeDetectionModel(shape []int64) onnx.FuncModel {
	return onnx.FuncModel{
		Shape: shape,
		Fn: func(in onnx.Tensor) (onnx.Tensor, error) {
			if err := onnx.ValidateNCHW(in.Shape); err != nil {
				return onnx.Tensor{}, err
			}
			c, h, w := int(in.Shape[1]), int(in.Shape[2]), int(in.Shape[3])
			plane := h * w
			out := make([]float32, plane)
			for i := range plane {
				var sum float32
				for ch := range c {
					sum += in.Data[ch*plane+i]
				}
				out[i] = sum/float32(c) + 0.5
			}
			return onnx.Tensor{Data: out, Shape: []int64{1, 1, int64(h), int64(w)}}, nil
		},
	}
}

// RecognitionStride is the number of input columns per output step of
// FakeRecognitionModel.
const RecognitionStride = 4

// FakeRecognitionModel returns a model over [1, 1, H, W] line images
// that emits one output step per RecognitionStride columns in TNC layout
// as log probabilities. A step whose columns are mostly bright predicts
// label, otherwise the blank label 0.
func FakeRecognitionModel(classes, label int) onnx.FuncModel {
	return onnx.FuncModel{
		Shape: []int64{1, 1, 64, -1},
		Fn: func(in onnx.Tensor) (onnx.Tensor, error) {
			if err := onnx.ValidateNCHW(in.Shape); err != nil {
				return onnx.Tensor{}, err
			}
			if label <= 0 || label >= classes {
				return onnx.Tensor{}, fmt.Errorf("label %d outside 1..%d", label, classes-1)
			}
			h, w := int(in.Shape[2]), int(in.Shape[3])
			steps := w / RecognitionStride
			hi := float32(math.Log(0.9))
			lo := float32(math.Log(0.1 / float64(classes-1)))
			out := make([]float32, steps*classes)
			for t := range steps {
				var sum float32
				for y := range h {
					for x := t * RecognitionStride; x < (t+1)*RecognitionStride; x++ {
						sum += in.Data[y*w+x]
					}
				}
				best := 0
				if sum > 0 {
					best = label
				}
				for c := range classes {
					out[t*classes+c] = lo
				}
				out[t*classes+best] = hi
			}
			return onnx.Tensor{Data: out, Shape: []int64{int64(steps), 1, int64(classes)}}, nil
		},
	}
}
