package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/linocr/internal/detector"
	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/rectify"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

var wordColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}

// linePalette returns n well separated colours, stable for a given n.
func linePalette(n int) []color.Color {
	out := make([]color.Color, n)
	for i := range n {
		hue := math.Mod(float64(i)*137.508, 360)
		out[i] = colorful.Hsv(hue, 0.85, 0.95).Clamped()
	}
	return out
}

// RenderProbabilityMap draws a probability map as a grayscale image.
func RenderProbabilityMap(m detector.ProbabilityMap) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, p := range m.Data {
		g.Pix[i] = uint8(math.Round(float64(min(max(p, 0), 1)) * 255))
	}
	return g
}

// RenderOverlay draws word rectangles in grey and each line's rectangle in
// its own colour, labelled with the line index.
func RenderOverlay(img image.Image, words []utils.RotatedRect, lines [][]utils.RotatedRect) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	for _, w := range words {
		utils.DrawRotatedRect(dst, w, wordColor, 1)
	}
	palette := linePalette(len(lines))
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		rect := rectify.LineRect(line)
		utils.DrawRotatedRect(dst, rect, palette[i], 2)
		tl := rect.Corners()[0]
		utils.DrawLabel(dst, int(tl.X), int(tl.Y)-2, fmt.Sprint(i), palette[i])
	}
	return dst
}

// dumpDebug writes the probability map, an overlay and every line strip
// into the debug directory. Failures are logged and otherwise ignored.
func (e *Engine) dumpDebug(ctx context.Context, img *imagesrc.NormalizedImage, words []utils.RotatedRect, lines [][]utils.RotatedRect) {
	dir := e.cfg.DebugDir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Warn("debug output disabled", "dir", dir, "error", err)
		return
	}
	prefix := filepath.Join(dir, fmt.Sprintf("%04d", e.debugSeq.Add(1)))
	save := func(name string, im image.Image) {
		path := prefix + "-" + name + ".png"
		if err := imgio.Save(path, im, imgio.PNGEncoder()); err != nil {
			slog.Warn("failed to write debug image", "path", path, "error", err)
			return
		}
		slog.Debug("wrote debug image", "path", path)
	}

	if m, err := e.det.DetectTextPixels(ctx, img); err == nil {
		save("prob", RenderProbabilityMap(m))
	} else {
		slog.Warn("debug probability map unavailable", "error", err)
	}
	save("overlay", RenderOverlay(img.ToImage(), words, lines))

	for i, line := range lines {
		strip, err := e.rec.PrepareInput(img, line)
		if err != nil {
			continue
		}
		save(fmt.Sprintf("line%03d", i), strip.Image())
	}
}
