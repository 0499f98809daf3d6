package mock

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlockMap(t *testing.T) {
	m := NewBlockMap(10, 5, []image.Rectangle{image.Rect(2, 1, 4, 3), image.Rect(8, 4, 20, 20)}, 0.9, 0.1)
	require.Len(t, m.Data, 50)
	assert.InDelta(t, 0.9, m.Data[1*10+2], 1e-6)
	assert.InDelta(t, 0.1, m.Data[0], 1e-6)
	assert.InDelta(t, 0.9, m.Data[4*10+9], 1e-6)
	assert.Equal(t, []int64{1, 1, 5, 10}, m.Tensor().Shape)
}

func TestNewUniformMap_Empty(t *testing.T) {
	assert.Nil(t, NewUniformMap(0, 3, 1).Data)
}

func TestNewPathScores_Layouts(t *testing.T) {
	labels := []int{0, 2, 1}

	tnc := NewPathScores(labels, 3, "", 1, 0)
	assert.Equal(t, []int64{3, 1, 3}, tnc.Shape)
	assert.Equal(t, float32(1), tnc.Data[1*3+2])

	ntc := NewPathScores(labels, 3, "NTC", 1, 0)
	assert.Equal(t, []int64{1, 3, 3}, ntc.Shape)
	assert.Equal(t, tnc.Data, ntc.Data)

	nct := NewPathScores(labels, 3, "NCT", 1, 0)
	assert.Equal(t, []int64{1, 3, 3}, nct.Shape)
	// class 1 at step 2
	assert.Equal(t, float32(1), nct.Data[1*3+2])
	assert.Equal(t, float32(0), nct.Data[1*3+1])
}
