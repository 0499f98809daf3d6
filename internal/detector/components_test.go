package detector

import (
	"image"
	"math"
	"testing"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/onnx/mock"
	"github.com/MeKo-Tech/linocr/internal/testutil"
	"github.com/MeKo-Tech/linocr/internal/utils"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockMap(w, h int, blocks ...image.Rectangle) ProbabilityMap {
	m := mock.NewBlockMap(w, h, blocks, 0.9, 0.05)
	return ProbabilityMap{Data: m.Data, Width: m.Width, Height: m.Height}
}

func TestExtract_SingleBlock(t *testing.T) {
	rects := Extract(blockMap(100, 50, image.Rect(10, 10, 60, 30)), DefaultExtractOptions())
	require.Len(t, rects, 1)
	r := rects[0]
	assert.InDelta(t, 56.0, r.Width, 1e-6)
	assert.InDelta(t, 26.0, r.Height, 1e-6)
	assert.InDelta(t, 35.0, r.Center.X, 1e-6)
	assert.InDelta(t, 20.0, r.Center.Y, 1e-6)
	assert.InDelta(t, 0.0, r.Angle, 1e-9)
}

func TestExtract_DiscoveryOrder(t *testing.T) {
	m := blockMap(120, 60, image.Rect(0, 20, 30, 40), image.Rect(60, 5, 100, 25))
	rects := Extract(m, DefaultExtractOptions())
	require.Len(t, rects, 2)
	// The block starting on the earlier row is found first.
	assert.InDelta(t, 80.0, rects[0].Center.X, 1e-6)
	assert.InDelta(t, 15.0, rects[1].Center.X, 1e-6)
}

func TestExtract_Filters(t *testing.T) {
	opts := DefaultExtractOptions()

	t.Run("empty map", func(t *testing.T) {
		rects := Extract(blockMap(40, 40), opts)
		assert.Empty(t, rects)
	})

	t.Run("small component dropped", func(t *testing.T) {
		rects := Extract(blockMap(40, 40, image.Rect(5, 5, 10, 10)), opts)
		assert.Empty(t, rects)
	})

	t.Run("min area is inclusive", func(t *testing.T) {
		o := opts
		o.MinArea = 25
		rects := Extract(blockMap(40, 40, image.Rect(5, 5, 10, 10)), o)
		assert.Len(t, rects, 1)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		m := ProbabilityMap{Data: make([]float32, 20*20), Width: 20, Height: 20}
		for i := range m.Data {
			m.Data[i] = 0.2
		}
		o := opts
		o.Threshold = 0.2
		assert.Len(t, Extract(m, o), 1)
		o.Threshold = 0.21
		assert.Empty(t, Extract(m, o))
	})

	t.Run("mismatched data length", func(t *testing.T) {
		assert.Nil(t, Extract(ProbabilityMap{Data: make([]float32, 3), Width: 2, Height: 2}, opts))
	})

	t.Run("border component kept unclipped", func(t *testing.T) {
		rects := Extract(blockMap(40, 40, image.Rect(0, 0, 20, 10)), opts)
		require.Len(t, rects, 1)
		b := rects[0].BoundingBox()
		assert.InDelta(t, -3.0, b.MinX, 1e-6)
		assert.InDelta(t, -3.0, b.MinY, 1e-6)
	})
}

func TestExtract_Connectivity(t *testing.T) {
	// Two squares touching only at a corner.
	m := blockMap(60, 60, image.Rect(0, 0, 15, 15), image.Rect(15, 15, 30, 30))
	opts := DefaultExtractOptions()

	opts.Connectivity = 4
	assert.Len(t, Extract(m, opts), 2)

	opts.Connectivity = 8
	rects := Extract(m, opts)
	require.Len(t, rects, 1)
	assert.Greater(t, rects[0].Area(), 2*15.0*15.0)
}

func TestExtract_Expansion(t *testing.T) {
	m := blockMap(100, 50, image.Rect(10, 10, 60, 30))
	opts := DefaultExtractOptions()
	opts.ExpandDist = 0
	opts.ExpandRatio = 0.1

	rects := Extract(m, opts)
	require.Len(t, rects, 1)
	assert.InDelta(t, 54.0, rects[0].Width, 1e-6)
	assert.InDelta(t, 24.0, rects[0].Height, 1e-6)
}

func TestExtract_RotatedWord(t *testing.T) {
	want := utils.NewRotatedRect(utils.Point{X: 60, Y: 40}, 80, 20, 0.3)
	img := imagesrc.FromImage(testutil.RotatedBlocksImage(120, 80, want))
	m := ProbabilityMap{Data: make([]float32, len(img.Data)), Width: img.Width, Height: img.Height}
	for i, v := range img.Data {
		m.Data[i] = v + 0.5
	}
	opts := DefaultExtractOptions()
	opts.ExpandDist = 0

	rects := Extract(m, opts)
	require.Len(t, rects, 1)
	got := rects[0]
	assert.InDelta(t, want.Angle, got.Angle, 0.05)
	assert.InDelta(t, want.Width, got.Width, 3)
	assert.InDelta(t, want.Height, got.Height, 3)
	assert.InDelta(t, want.Center.X, got.Center.X, 1.5)
	assert.InDelta(t, want.Center.Y, got.Center.Y, 1.5)
}

func TestExtractRegions_Score(t *testing.T) {
	regions := ExtractRegions(blockMap(40, 40, image.Rect(0, 0, 20, 10)), DefaultExtractOptions())
	require.Len(t, regions, 1)
	assert.Equal(t, 200, regions[0].Area)
	assert.InDelta(t, 0.9, regions[0].Score, 1e-6)
}

func TestExtract_AxisAlignedBlocksProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("axis-aligned block yields its exact footprint", prop.ForAll(
		func(x, y, w, h int) bool {
			m := blockMap(80, 80, image.Rect(x, y, x+w, y+h))
			opts := DefaultExtractOptions()
			opts.ExpandDist = 0
			opts.MinArea = 1
			rects := Extract(m, opts)
			if len(rects) != 1 {
				return false
			}
			r := rects[0]
			bw, bh := float64(w), float64(h)
			// A square can be reported either way round; a rectangle cannot.
			sizeOK := (math.Abs(r.Width-bw) < 1e-6 && math.Abs(r.Height-bh) < 1e-6) ||
				(math.Abs(r.Width-bh) < 1e-6 && math.Abs(r.Height-bw) < 1e-6)
			return sizeOK &&
				math.Abs(r.Center.X-(float64(x)+bw/2)) < 1e-6 &&
				math.Abs(r.Center.Y-(float64(y)+bh/2)) < 1e-6
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
		gen.IntRange(1, 40),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
