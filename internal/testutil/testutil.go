// Package testutil provides synthetic images and stand-in models for tests.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/utils"
	"github.com/stretchr/testify/require"
)

// BlocksImage returns a black w x h image with white filled rectangles.
func BlocksImage(w, h int, blocks ...image.Rectangle) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for _, b := range blocks {
		draw.Draw(img, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	}
	return img
}

// RotatedBlocksImage returns a black w x h image where every pixel whose
// centre lies inside one of rects is white.
func RotatedBlocksImage(w, h int, rects ...utils.RotatedRect) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			p := utils.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			for _, r := range rects {
				if r.Contains(p) {
					img.SetGray(x, y, color.Gray{Y: 255})
					break
				}
			}
		}
	}
	return img
}

// Normalized converts img for use with detectors and recognisers.
func Normalized(t *testing.T, img image.Image) *imagesrc.NormalizedImage {
	t.Helper()
	n := imagesrc.FromImage(img)
	require.Positive(t, n.Width)
	require.Positive(t, n.Height)
	return n
}
