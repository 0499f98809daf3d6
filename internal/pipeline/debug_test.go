package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/linocr/internal/detector"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

func TestLinePalette(t *testing.T) {
	p := linePalette(5)
	assert.Len(t, p, 5)
	seen := map[color.RGBA]bool{}
	for _, c := range p {
		r, g, b, a := c.RGBA()
		assert.Equal(t, uint32(0xffff), a)
		seen[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, p, linePalette(5))
	assert.Empty(t, linePalette(0))
}

func TestRenderProbabilityMap(t *testing.T) {
	m := detector.ProbabilityMap{Data: []float32{0, 0.5, 1, 2, -1, 0.25}, Width: 3, Height: 2}
	g := RenderProbabilityMap(m)
	assert.Equal(t, image.Rect(0, 0, 3, 2), g.Bounds())
	assert.Equal(t, []uint8{0, 128, 255, 255, 0, 64}, g.Pix)
}

func TestRenderOverlay(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 100, 60))
	word := utils.RotatedRectFromBox(utils.NewBox(20, 20, 60, 40))
	out := RenderOverlay(src, []utils.RotatedRect{word}, [][]utils.RotatedRect{{word}})

	assert.Equal(t, src.Bounds(), out.Bounds())
	// The line outline is drawn over the word outline in the first palette colour.
	want := linePalette(1)[0]
	r, g, b, _ := want.RGBA()
	got := out.RGBAAt(40, 20)
	assert.Equal(t, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}, got)
	// Interior stays untouched.
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(40, 30))
}
