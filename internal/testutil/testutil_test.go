package testutil

import (
	"context"
	"image"
	"testing"

	"github.com/MeKo-Tech/linocr/internal/onnx"
	"github.com/MeKo-Tech/linocr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksImage(t *testing.T) {
	img := BlocksImage(20, 10, image.Rect(2, 2, 5, 4))
	assert.Equal(t, uint8(255), img.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(0), img.GrayAt(5, 2).Y)
}

func TestRotatedBlocksImage(t *testing.T) {
	img := RotatedBlocksImage(20, 20, utils.RotatedRectFromBox(utils.NewBox(5, 5, 10, 10)))
	assert.Equal(t, uint8(255), img.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(0), img.GrayAt(10, 10).Y)
}

func TestFakeDetectionModel(t *testing.T) {
	n := Normalized(t, BlocksImage(4, 2, image.Rect(0, 0, 1, 1)))
	in, err := onnx.NewImageTensor(n.Data, 1, 2, 4)
	require.NoError(t, err)
	out, err := FakeDetectionModel([]int64{1, 1, -1, -1}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2, 4}, out.Shape)
	assert.InDelta(t, 1.0, out.Data[0], 1e-6)
	assert.InDelta(t, 0.0, out.Data[1], 1e-6)
}

func TestFakeRecognitionModel(t *testing.T) {
	data := make([]float32, 2*8)
	for i := range data {
		data[i] = -0.5
	}
	for y := range 2 {
		for x := 4; x < 8; x++ {
			data[y*8+x] = 0.5
		}
	}
	out, err := FakeRecognitionModel(5, 3).Run(context.Background(), onnx.Tensor{Data: data, Shape: []int64{1, 1, 2, 8}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 5}, out.Shape)
	assert.Greater(t, out.Data[0], out.Data[1])  // step 0 blank
	assert.Greater(t, out.Data[5+3], out.Data[5]) // step 1 label 3

	_, err = FakeRecognitionModel(5, 7).Run(context.Background(), onnx.Tensor{Data: data, Shape: []int64{1, 1, 2, 8}})
	assert.Error(t, err)
}
