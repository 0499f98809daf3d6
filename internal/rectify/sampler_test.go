package rectify

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/testutil"
	"github.com/MeKo-Tech/linocr/internal/utils"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxRect(x0, y0, x1, y1 float64) utils.RotatedRect {
	return utils.RotatedRectFromBox(utils.NewBox(x0, y0, x1, y1))
}

func TestHomography_MapsCorners(t *testing.T) {
	p := [4]utils.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 0, Y: 5}}
	q := [4]utils.Point{{X: 3, Y: 1}, {X: 20, Y: 4}, {X: 18, Y: 15}, {X: 1, Y: 9}}
	h, err := homographyFromQuads(p, q)
	require.NoError(t, err)
	for i := range p {
		x, y := h.Apply(p[i].X, p[i].Y)
		assert.InDelta(t, q[i].X, x, 1e-9)
		assert.InDelta(t, q[i].Y, y, 1e-9)
	}
}

func TestHomography_Degenerate(t *testing.T) {
	p := [4]utils.Point{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 0}}
	_, err := homographyFromQuads(p, p)
	require.Error(t, err)
}

func TestLineRect(t *testing.T) {
	r := LineRect([]utils.RotatedRect{boxRect(0, 10, 20, 30), boxRect(40, 12, 60, 28)})
	assert.InDelta(t, 60.0, r.Width, 1e-9)
	assert.InDelta(t, 20.0, r.Height, 1e-9)
	assert.InDelta(t, 30.0, r.Center.X, 1e-9)
}

func TestSampleLine_AxisAligned(t *testing.T) {
	img := imagesrc.FromImage(testutil.BlocksImage(200, 100, image.Rect(0, 30, 50, 50)))
	strip, err := SampleLine(img, []utils.RotatedRect{boxRect(0, 30, 50, 50)}, DefaultSampleOptions())
	require.NoError(t, err)

	assert.Equal(t, 64, strip.Height)
	assert.Equal(t, 160, strip.Width)
	assert.Equal(t, 160, strip.ContentWidth)
	require.Len(t, strip.Data, 64*160)
	assert.InDelta(t, 0.5, strip.Data[32*160+80], 1e-5)
	assert.InDelta(t, 0.5, strip.Data[10*160+10], 1e-5)
}

func TestSampleLine_PadsWidth(t *testing.T) {
	img := imagesrc.FromImage(testutil.BlocksImage(100, 60, image.Rect(0, 0, 100, 60)))
	strip, err := SampleLine(img, []utils.RotatedRect{boxRect(0, 0, 51, 20)}, DefaultSampleOptions())
	require.NoError(t, err)
	assert.Equal(t, 163, strip.ContentWidth)
	assert.Equal(t, 164, strip.Width)
	for y := range strip.Height {
		assert.Equal(t, imagesrc.BlackValue, strip.Data[y*strip.Width+163])
	}
}

func TestSampleLine_MaxWidth(t *testing.T) {
	img := imagesrc.FromImage(testutil.BlocksImage(300, 40))
	opts := DefaultSampleOptions()
	opts.MaxWidth = 100
	strip, err := SampleLine(img, []utils.RotatedRect{boxRect(0, 0, 300, 20)}, opts)
	require.NoError(t, err)
	assert.Equal(t, 100, strip.ContentWidth)
	assert.Equal(t, 100, strip.Width)
}

func TestSampleLine_Rotated(t *testing.T) {
	word := utils.NewRotatedRect(utils.Point{X: 100, Y: 60}, 120, 30, 0.3)
	img := imagesrc.FromImage(testutil.RotatedBlocksImage(200, 120, word))

	strip, err := SampleLine(img, []utils.RotatedRect{word.Expand(-3)}, DefaultSampleOptions())
	require.NoError(t, err)
	var sum float64
	for _, v := range strip.Data[:strip.Height*strip.Width] {
		sum += float64(v)
	}
	// Nearly every sample lands inside the white word.
	assert.Greater(t, sum/float64(len(strip.Data)), 0.45)
}

func TestSampleLine_OutsideImage(t *testing.T) {
	img := imagesrc.FromImage(testutil.BlocksImage(50, 50, image.Rect(0, 0, 50, 50)))
	strip, err := SampleLine(img, []utils.RotatedRect{boxRect(100, 100, 140, 120)}, DefaultSampleOptions())
	require.NoError(t, err)
	for _, v := range strip.Data {
		require.Equal(t, imagesrc.BlackValue, v)
	}
}

func TestSampleLine_Errors(t *testing.T) {
	img := imagesrc.FromImage(testutil.BlocksImage(50, 50))

	_, err := SampleLine(img, nil, DefaultSampleOptions())
	require.ErrorIs(t, err, ErrDegenerateLine)

	_, err = SampleLine(img, []utils.RotatedRect{boxRect(0, 10, 40, 10)}, DefaultSampleOptions())
	require.ErrorIs(t, err, ErrDegenerateLine)

	_, err = SampleLine(img, []utils.RotatedRect{boxRect(0, 0, 10, 10)}, SampleOptions{Height: 0, WidthMultiple: 4})
	require.Error(t, err)

	_, err = SampleLine(nil, []utils.RotatedRect{boxRect(0, 0, 10, 10)}, DefaultSampleOptions())
	require.Error(t, err)
}

func TestStripImage(t *testing.T) {
	s := Strip{Data: []float32{-0.5, 0.5, 0, 0.7}, Width: 2, Height: 2}
	g := s.Image()
	assert.Equal(t, []uint8{0, 255, 128, 255}, g.Pix)
}

func TestSampleLine_ValueRange(t *testing.T) {
	img := imagesrc.FromImage(testutil.BlocksImage(120, 80, image.Rect(10, 10, 70, 40), image.Rect(30, 50, 110, 70)))

	properties := gopter.NewProperties(nil)
	properties.Property("strip values stay in the centred range", prop.ForAll(
		func(cx, cy, w, h, a float64) bool {
			r := utils.NewRotatedRect(utils.Point{X: cx, Y: cy}, w, h, a)
			strip, err := SampleLine(img, []utils.RotatedRect{r}, DefaultSampleOptions())
			if err != nil {
				return false
			}
			if strip.Width%4 != 0 || strip.Height != 64 {
				return false
			}
			for _, v := range strip.Data {
				if v < -0.5-1e-6 || v > 0.5+1e-6 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-20, 140),
		gen.Float64Range(-20, 100),
		gen.Float64Range(5, 100),
		gen.Float64Range(5, 40),
		gen.Float64Range(-0.7, 0.7),
	))
	properties.TestingRun(t)
}
