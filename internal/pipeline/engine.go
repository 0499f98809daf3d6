// Package pipeline ties detection, line layout and recognition together
// into an OCR engine.
package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/linocr/internal/detector"
	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/layout"
	"github.com/MeKo-Tech/linocr/internal/onnx"
	"github.com/MeKo-Tech/linocr/internal/recognizer"
	"github.com/MeKo-Tech/linocr/internal/rectify"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// Config holds configuration for the engine and its components.
type Config struct {
	Detector   detector.Config
	Layout     layout.Config
	Recognizer recognizer.Config
	// Debug logs per-stage diagnostics at info level.
	Debug bool
	// DebugDir receives probability maps, overlays and line strips when set.
	DebugDir string
}

// DefaultConfig returns a default engine config with component defaults.
func DefaultConfig() Config {
	return Config{
		Detector:   detector.DefaultConfig(),
		Layout:     layout.DefaultConfig(),
		Recognizer: recognizer.DefaultConfig(),
	}
}

// Engine runs OCR on images. Either model may be absent; operations that
// need a missing model return a *ConfigurationError.
type Engine struct {
	cfg      Config
	det      *detector.Detector
	rec      *recognizer.Recognizer
	closers  []io.Closer
	debugSeq atomic.Int64
}

// NewEngine creates an engine from already loaded models. Pass nil for a
// model the engine should run without.
func NewEngine(cfg Config, det, rec onnx.Model) (*Engine, error) {
	e := &Engine{cfg: cfg}
	if det != nil {
		d, err := detector.New(det, cfg.Detector)
		if err != nil {
			return nil, err
		}
		e.det = d
	}
	if rec != nil {
		r, err := recognizer.New(rec, cfg.Recognizer)
		if err != nil {
			return nil, err
		}
		e.rec = r
		e.cfg.Recognizer = r.Config()
	}
	slog.Debug("engine created", "detection", e.det != nil, "recognition", e.rec != nil, "debug", cfg.Debug)
	return e, nil
}

// Close releases models the engine loaded itself.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// HasDetector reports whether a detection model is loaded.
func (e *Engine) HasDetector() bool { return e.det != nil }

// HasRecognizer reports whether a recognition model is loaded.
func (e *Engine) HasRecognizer() bool { return e.rec != nil }

// DetectionThreshold returns the probability at or above which a pixel
// counts as text.
func (e *Engine) DetectionThreshold() float32 {
	if e.det != nil {
		return e.det.Threshold()
	}
	return e.cfg.Detector.Threshold
}

// PrepareInput converts an image for the other operations.
func (e *Engine) PrepareInput(img image.Image) (*imagesrc.NormalizedImage, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("input image is empty")
	}
	return imagesrc.FromImage(img), nil
}

func (e *Engine) requireDetector(op string) error {
	if e.det == nil {
		return &ConfigurationError{Op: op, Err: ErrDetectionModelNotLoaded}
	}
	return nil
}

func (e *Engine) requireRecognizer(op string) error {
	if e.rec == nil {
		return &ConfigurationError{Op: op, Err: ErrRecognitionModelNotLoaded}
	}
	return nil
}

// DetectWords returns oriented word rectangles in no particular order.
func (e *Engine) DetectWords(ctx context.Context, img *imagesrc.NormalizedImage) (_ []utils.RotatedRect, err error) {
	defer func() { countOperation("detect_words", err) }()
	if err := e.requireDetector("detect words"); err != nil {
		return nil, err
	}
	return e.detectWords(ctx, img)
}

func (e *Engine) detectWords(ctx context.Context, img *imagesrc.NormalizedImage) ([]utils.RotatedRect, error) {
	start := time.Now()
	words, err := e.det.DetectWords(ctx, img)
	if err != nil {
		return nil, err
	}
	observeStage("detect", start)
	wordsDetected.Observe(float64(len(words)))
	e.logStage("detected words", "count", len(words), "duration", time.Since(start))
	return words, nil
}

// DetectTextPixels returns the per-pixel text probability of img.
func (e *Engine) DetectTextPixels(ctx context.Context, img *imagesrc.NormalizedImage) (_ detector.ProbabilityMap, err error) {
	defer func() { countOperation("detect_text_pixels", err) }()
	if err := e.requireDetector("detect text pixels"); err != nil {
		return detector.ProbabilityMap{}, err
	}
	return e.det.DetectTextPixels(ctx, img)
}

// FindTextLines groups words into lines in reading order.
func (e *Engine) FindTextLines(words []utils.RotatedRect) [][]utils.RotatedRect {
	start := time.Now()
	lines := layout.FindTextLines(words, e.cfg.Layout)
	observeStage("layout", start)
	linesFound.Observe(float64(len(lines)))
	e.logStage("found lines", "words", len(words), "lines", len(lines), "duration", time.Since(start))
	return lines
}

// RecognizeText recognises each line. The result is index-aligned with
// lines; lines without text are nil.
func (e *Engine) RecognizeText(ctx context.Context, img *imagesrc.NormalizedImage, lines [][]utils.RotatedRect) (_ []*recognizer.TextLine, err error) {
	defer func() { countOperation("recognize_text", err) }()
	if err := e.requireRecognizer("recognize text"); err != nil {
		return nil, err
	}
	return e.recognize(ctx, img, lines)
}

func (e *Engine) recognize(ctx context.Context, img *imagesrc.NormalizedImage, lines [][]utils.RotatedRect) ([]*recognizer.TextLine, error) {
	start := time.Now()
	out, err := e.rec.RecognizeLines(ctx, img, lines)
	if err != nil {
		return nil, err
	}
	observeStage("recognize", start)
	var empty int
	for _, l := range out {
		if l == nil {
			empty++
		}
	}
	linesRecognized.Add(float64(len(out) - empty))
	emptyLines.Add(float64(empty))
	e.logStage("recognized text", "lines", len(out), "empty", empty, "duration", time.Since(start))
	return out, nil
}

// PrepareRecognitionInput returns the strip the recognition model sees
// for a line.
func (e *Engine) PrepareRecognitionInput(img *imagesrc.NormalizedImage, line []utils.RotatedRect) (rectify.Strip, error) {
	if err := e.requireRecognizer("prepare recognition input"); err != nil {
		return rectify.Strip{}, err
	}
	return e.rec.PrepareInput(img, line)
}

// GetTextLines detects, groups and recognises the text of img. The
// result has one entry per line found; lines without text are nil.
func (e *Engine) GetTextLines(ctx context.Context, img *imagesrc.NormalizedImage) (_ []*recognizer.TextLine, err error) {
	defer func() { countOperation("get_text_lines", err) }()
	if err := e.requireDetector("get text lines"); err != nil {
		return nil, err
	}
	if err := e.requireRecognizer("get text lines"); err != nil {
		return nil, err
	}

	words, err := e.detectWords(ctx, img)
	if err != nil {
		return nil, err
	}
	lines := e.FindTextLines(words)
	out, err := e.recognize(ctx, img, lines)
	if err != nil {
		return nil, err
	}
	if e.cfg.DebugDir != "" {
		e.dumpDebug(ctx, img, words, lines)
	}
	return out, nil
}

// GetText returns the text of img with one line per row. Lines without
// text are skipped.
func (e *Engine) GetText(ctx context.Context, img *imagesrc.NormalizedImage) (string, error) {
	lines, err := e.GetTextLines(ctx, img)
	if err != nil {
		return "", err
	}
	return JoinLines(lines), nil
}

// JoinLines joins the non-empty lines with newlines.
func JoinLines(lines []*recognizer.TextLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := l.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (e *Engine) logStage(msg string, args ...any) {
	if e.cfg.Debug {
		slog.Info(msg, args...)
		return
	}
	slog.Debug(msg, args...)
}
