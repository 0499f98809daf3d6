// Package recognizer decodes text lines: it samples each line into a strip,
// runs the recognition model and turns the per-step label scores into
// characters, words and lines.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/onnx"
	"github.com/MeKo-Tech/linocr/internal/rectify"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// OutputLayout names the axis order of the model output.
type OutputLayout string

const (
	// LayoutTNC is [steps, batch, classes].
	LayoutTNC OutputLayout = "TNC"
	// LayoutNTC is [batch, steps, classes].
	LayoutNTC OutputLayout = "NTC"
	// LayoutNCT is [batch, classes, steps].
	LayoutNCT OutputLayout = "NCT"
)

// Config holds configuration for the text recognizer.
type Config struct {
	Alphabet     string       `mapstructure:"alphabet" yaml:"alphabet" json:"alphabet"`
	AlphabetPath string       `mapstructure:"alphabet_path" yaml:"alphabet_path" json:"alphabet_path"`
	AllowedChars string       `mapstructure:"allowed_chars" yaml:"allowed_chars" json:"allowed_chars"`
	Method       DecodeMethod `mapstructure:"decode_method" yaml:"decode_method" json:"decode_method"`
	BeamWidth    int          `mapstructure:"beam_width" yaml:"beam_width" json:"beam_width"`
	OutputLayout OutputLayout `mapstructure:"output_layout" yaml:"output_layout" json:"output_layout"`
	// LogProbs is true when the model emits log probabilities.
	LogProbs bool `mapstructure:"log_probs" yaml:"log_probs" json:"log_probs"`
	// Workers is the number of lines recognised concurrently (0 = NumCPU).
	Workers int                   `mapstructure:"workers" yaml:"workers" json:"workers"`
	Sample  rectify.SampleOptions `mapstructure:"sample" yaml:"sample" json:"sample"`
}

// DefaultConfig returns a default recognizer configuration.
func DefaultConfig() Config {
	return Config{
		Alphabet:     DefaultAlphabet,
		Method:       Greedy,
		BeamWidth:    DefaultBeamWidth,
		OutputLayout: LayoutTNC,
		LogProbs:     true,
		Workers:      0,
		Sample:       rectify.DefaultSampleOptions(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseDecodeMethod(string(c.Method)); err != nil {
		return err
	}
	if c.BeamWidth < 0 {
		return fmt.Errorf("beam width must be non-negative, got %d", c.BeamWidth)
	}
	switch c.OutputLayout {
	case "", LayoutTNC, LayoutNTC, LayoutNCT:
	default:
		return fmt.Errorf("unknown output layout %q", c.OutputLayout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return c.Sample.Validate()
}

// Recognizer turns text lines into characters with a recognition model.
// It is safe for concurrent use when the model is.
type Recognizer struct {
	model      onnx.Model
	cfg        Config
	alphabet   Alphabet
	excluded   LabelSet
	fixedWidth int
}

// New creates a recognizer around model.
func New(model onnx.Model, cfg Config) (*Recognizer, error) {
	if model == nil {
		return nil, errors.New("recognition model is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Method, _ = ParseDecodeMethod(string(cfg.Method))
	if cfg.OutputLayout == "" {
		cfg.OutputLayout = LayoutTNC
	}
	if cfg.BeamWidth == 0 {
		cfg.BeamWidth = DefaultBeamWidth
	}

	var alphabet Alphabet
	var err error
	switch {
	case cfg.AlphabetPath != "":
		alphabet, err = LoadAlphabet(cfg.AlphabetPath)
	case cfg.Alphabet != "":
		alphabet, err = NewAlphabet(cfg.Alphabet)
	default:
		alphabet, err = NewAlphabet(DefaultAlphabet)
	}
	if err != nil {
		return nil, err
	}

	r := &Recognizer{
		model:    model,
		alphabet: alphabet,
		excluded: alphabet.ExcludedLabels(cfg.AllowedChars),
	}

	// Input is [N, C, H, W]; fixed dimensions override the sampling options.
	if shape := model.InputShape(); len(shape) == 4 {
		if h := int(shape[2]); h > 0 && h != cfg.Sample.Height {
			slog.Debug("using model input height", "height", h, "configured", cfg.Sample.Height)
			cfg.Sample.Height = h
		}
		if w := int(shape[3]); w > 0 {
			r.fixedWidth = w
			if cfg.Sample.MaxWidth == 0 || cfg.Sample.MaxWidth > w {
				cfg.Sample.MaxWidth = w
			}
		}
	}
	r.cfg = cfg

	slog.Debug("recognizer ready",
		"alphabet_size", alphabet.Len(), "excluded", r.excluded.Len(),
		"method", cfg.Method, "layout", cfg.OutputLayout, "height", cfg.Sample.Height)
	return r, nil
}

// Config returns the effective configuration.
func (r *Recognizer) Config() Config { return r.cfg }

// Alphabet returns the recognizer's alphabet.
func (r *Recognizer) Alphabet() Alphabet { return r.alphabet }

// Excluded returns the labels that are never emitted.
func (r *Recognizer) Excluded() LabelSet { return r.excluded }

// PrepareInput returns the strip the model sees for a line of words.
func (r *Recognizer) PrepareInput(img *imagesrc.NormalizedImage, words []utils.RotatedRect) (rectify.Strip, error) {
	strip, err := rectify.SampleLine(img, words, r.cfg.Sample)
	if err != nil {
		return rectify.Strip{}, err
	}
	if r.fixedWidth > 0 && r.fixedWidth != strip.Width {
		strip = fitStrip(strip, r.fixedWidth)
	}
	return strip, nil
}

// fitStrip pads s with black or cuts it to width columns. Content is capped
// at the model width when sampling, so cutting only drops padding.
func fitStrip(s rectify.Strip, width int) rectify.Strip {
	data := make([]float32, width*s.Height)
	for y := range s.Height {
		row := data[y*width : (y+1)*width]
		n := copy(row, s.Data[y*s.Width:(y+1)*s.Width])
		for x := n; x < width; x++ {
			row[x] = imagesrc.BlackValue
		}
	}
	s.Data, s.Width = data, width
	s.ContentWidth = min(s.ContentWidth, width)
	return s
}

type lineJob struct {
	index int
	words []utils.RotatedRect
}

type lineResult struct {
	index int
	line  *TextLine
	err   error
}

// RecognizeLines recognises every line of word rectangles in img. The
// result has one entry per input line, in input order; lines without
// recognised characters are nil.
func (r *Recognizer) RecognizeLines(ctx context.Context, img *imagesrc.NormalizedImage, lines [][]utils.RotatedRect) ([]*TextLine, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	out := make([]*TextLine, len(lines))
	if len(lines) == 0 {
		return out, nil
	}

	start := time.Now()
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(lines))

	if workers == 1 {
		for i, words := range lines {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			line, err := r.recognizeLine(ctx, img, words)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i, err)
			}
			out[i] = line
		}
		slog.Debug("recognized lines", "count", len(lines), "workers", 1, "duration", time.Since(start))
		return out, nil
	}

	jobs := make(chan lineJob)
	results := make(chan lineResult, len(lines))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go r.worker(ctx, img, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, words := range lines {
			select {
			case jobs <- lineJob{index: i, words: words}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	errs := make([]error, len(lines))
	for res := range results {
		out[res.index], errs[res.index] = res.line, res.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
	}
	slog.Debug("recognized lines", "count", len(lines), "workers", workers, "duration", time.Since(start))
	return out, nil
}

func (r *Recognizer) worker(
	ctx context.Context,
	img *imagesrc.NormalizedImage,
	jobs <-chan lineJob,
	results chan<- lineResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			line, err := r.recognizeLine(ctx, img, job.words)
			results <- lineResult{index: job.index, line: line, err: err}
		case <-ctx.Done():
			return
		}
	}
}

// recognizeLine returns nil for lines without area or characters.
func (r *Recognizer) recognizeLine(ctx context.Context, img *imagesrc.NormalizedImage, words []utils.RotatedRect) (*TextLine, error) {
	strip, err := r.PrepareInput(img, words)
	if errors.Is(err, rectify.ErrDegenerateLine) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	in := onnx.Tensor{Data: strip.Data, Shape: []int64{1, 1, int64(strip.Height), int64(strip.Width)}}
	out, err := r.model.Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("recognition inference failed: %w", err)
	}
	seq, err := r.sequence(out)
	if err != nil {
		return nil, err
	}

	dec := DecodeWith(seq, r.alphabet, r.excluded, DecodeOptions{Method: r.cfg.Method, BeamWidth: r.cfg.BeamWidth})
	if len(dec.Chars) == 0 {
		return nil, nil
	}
	return r.buildLine(strip, seq.Steps, dec, words), nil
}

// sequence validates the model output and rearranges it into [steps, classes].
func (r *Recognizer) sequence(out onnx.Tensor) (ScoreSequence, error) {
	classes := int64(r.alphabet.NumLabels())
	var want []int64
	switch r.cfg.OutputLayout {
	case LayoutNTC:
		want = []int64{1, -1, classes}
	case LayoutNCT:
		want = []int64{1, classes, -1}
	default:
		want = []int64{-1, 1, classes}
	}
	if !onnx.MatchShape(want, out.Shape) {
		return ScoreSequence{}, &onnx.ShapeMismatchError{Model: "recognition", Want: want, Got: out.Shape}
	}
	if n := onnx.NumElements(out.Shape); len(out.Data) != n {
		return ScoreSequence{}, &onnx.ShapeMismatchError{
			Model: "recognition", Want: want, Got: out.Shape,
			Reason: fmt.Sprintf("data has %d values, shape needs %d", len(out.Data), n),
		}
	}

	c := int(classes)
	seq := ScoreSequence{Classes: c, LogProbs: r.cfg.LogProbs}
	switch r.cfg.OutputLayout {
	case LayoutNCT:
		steps := int(out.Shape[2])
		seq.Steps = steps
		seq.Data = make([]float32, steps*c)
		for k := range c {
			for t := range steps {
				seq.Data[t*c+k] = out.Data[k*steps+t]
			}
		}
	case LayoutNTC:
		seq.Steps = int(out.Shape[1])
		seq.Data = out.Data
	default:
		seq.Steps = int(out.Shape[0])
		seq.Data = out.Data
	}
	return seq, nil
}

// buildLine places decoded characters on the line and hands them to the
// words whose extent along the line contains their centre.
func (r *Recognizer) buildLine(strip rectify.Strip, steps int, dec Decoded, words []utils.RotatedRect) *TextLine {
	stride := float64(strip.Width) / float64(steps)
	content := float64(strip.ContentWidth)
	axis := strip.Rect.WidthAxis()
	origin := strip.Rect.Center

	type span struct{ lo, hi float64 }
	extents := make([]span, len(words))
	for i, w := range words {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, p := range w.Corners() {
			d := p.Sub(origin).Dot(axis)
			lo, hi = min(lo, d), max(hi, d)
		}
		extents[i] = span{lo, hi}
	}

	buckets := make([][]TextChar, len(words))
	for _, c := range dec.Chars {
		u0 := clamp01(float64(c.Start) * stride / content)
		u1 := clamp01(float64(c.End) * stride / content)
		rect := strip.Rect.SubRect(u0, u1)
		tc := TextChar{Char: c.Char, Rect: rect, Confidence: c.Confidence}

		centre := rect.Center.Sub(origin).Dot(axis)
		best, bestDist := -1, math.Inf(1)
		for i, e := range extents {
			var d float64
			switch {
			case centre < e.lo:
				d = e.lo - centre
			case centre > e.hi:
				d = centre - e.hi
			default:
				// Inside: prefer the word whose middle is closest.
				d = -1 / (1 + math.Abs(centre-(e.lo+e.hi)/2))
			}
			if d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			buckets[best] = append(buckets[best], tc)
		}
	}

	line := &TextLine{Rect: strip.Rect, Words: make([]TextWord, len(words))}
	for i, w := range words {
		chars := trimSpaceChars(buckets[i])
		line.Words[i] = TextWord{Text: charsText(chars), Rect: w, Chars: chars}
	}
	slog.Debug("recognized line", "text", line.String(), "steps", steps, "words", len(words))
	return line
}

func clamp01(v float64) float64 { return min(max(v, 0), 1) }
