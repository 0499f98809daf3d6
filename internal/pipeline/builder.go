package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/linocr/internal/layout"
	"github.com/MeKo-Tech/linocr/internal/models"
	"github.com/MeKo-Tech/linocr/internal/onnx"
	"github.com/MeKo-Tech/linocr/internal/recognizer"
)

// Builder constructs an Engine with fluent configuration.
type Builder struct {
	cfg         Config
	detModel    onnx.Model
	recModel    onnx.Model
	detPath     string
	recPath     string
	libraryPath string
	numThreads  int
	gpu         onnx.GPUConfig
	errs        []error
}

// NewBuilder creates a new engine builder with defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig(), gpu: onnx.DefaultGPUConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithDetectionModel uses an already loaded detection model.
func (b *Builder) WithDetectionModel(m onnx.Model) *Builder {
	b.detModel = m
	return b
}

// WithRecognitionModel uses an already loaded recognition model.
func (b *Builder) WithRecognitionModel(m onnx.Model) *Builder {
	b.recModel = m
	return b
}

// WithDetectionModelPath loads the detection model from an ONNX file.
func (b *Builder) WithDetectionModelPath(path string) *Builder {
	b.detPath = path
	return b
}

// WithRecognitionModelPath loads the recognition model from an ONNX file.
func (b *Builder) WithRecognitionModelPath(path string) *Builder {
	b.recPath = path
	return b
}

// WithLibraryPath sets the ONNX Runtime shared library.
func (b *Builder) WithLibraryPath(path string) *Builder {
	b.libraryPath = path
	return b
}

// WithThreads sets intra-op thread counts for loaded models (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.numThreads = n
	}
	return b
}

// WithGPU configures GPU acceleration for loaded models.
func (b *Builder) WithGPU(cfg onnx.GPUConfig) *Builder {
	b.gpu = cfg
	return b
}

// WithAlphabet sets the recognition alphabet.
func (b *Builder) WithAlphabet(alphabet string) *Builder {
	if alphabet != "" {
		b.cfg.Recognizer.Alphabet = alphabet
	}
	return b
}

// WithAlphabetPath reads the recognition alphabet from a file.
func (b *Builder) WithAlphabetPath(path string) *Builder {
	b.cfg.Recognizer.AlphabetPath = path
	return b
}

// WithAllowedChars restricts recognition to the given characters.
func (b *Builder) WithAllowedChars(chars string) *Builder {
	b.cfg.Recognizer.AllowedChars = chars
	return b
}

// WithDecodeMethod selects greedy or beam decoding.
func (b *Builder) WithDecodeMethod(method string) *Builder {
	m, err := recognizer.ParseDecodeMethod(method)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.cfg.Recognizer.Method = m
	return b
}

// WithBeamWidth sets the number of prefixes kept by beam decoding.
func (b *Builder) WithBeamWidth(n int) *Builder {
	if n > 0 {
		b.cfg.Recognizer.BeamWidth = n
	}
	return b
}

// WithRecognitionHeight sets the height of line strips.
func (b *Builder) WithRecognitionHeight(h int) *Builder {
	if h > 0 {
		b.cfg.Recognizer.Sample.Height = h
	}
	return b
}

// WithWorkers sets how many lines are recognised concurrently.
func (b *Builder) WithWorkers(n int) *Builder {
	if n >= 0 {
		b.cfg.Recognizer.Workers = n
	}
	return b
}

// WithDetectionThreshold sets the text probability threshold.
func (b *Builder) WithDetectionThreshold(t float32) *Builder {
	b.cfg.Detector.Threshold = t
	return b
}

// WithMinArea sets the smallest word region in pixels.
func (b *Builder) WithMinArea(n int) *Builder {
	if n >= 0 {
		b.cfg.Detector.MinArea = n
	}
	return b
}

// WithReadingDirection sets "ltr" or "rtl".
func (b *Builder) WithReadingDirection(dir string) *Builder {
	d, err := layout.ParseDirection(dir)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.cfg.Layout.Direction = d
	return b
}

// WithMaxAngleDiff sets the largest word angle difference within a line, in degrees.
func (b *Builder) WithMaxAngleDiff(degrees float64) *Builder {
	if degrees > 0 {
		b.cfg.Layout.MaxAngleDiff = degrees * math.Pi / 180
	}
	return b
}

// WithDebug enables per-stage diagnostics.
func (b *Builder) WithDebug(enabled bool) *Builder {
	b.cfg.Debug = enabled
	return b
}

// WithDebugDir writes debug images into dir.
func (b *Builder) WithDebugDir(dir string) *Builder {
	b.cfg.DebugDir = dir
	return b
}

// Config returns the configuration built so far.
func (b *Builder) Config() Config { return b.cfg }

// Build loads any models given by path and creates the engine.
func (b *Builder) Build() (*Engine, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}

	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
	load := func(kind, path string) (onnx.Model, error) {
		if err := models.ValidateModelExists(path); err != nil {
			return nil, fmt.Errorf("failed to load %s model: %w", kind, err)
		}
		s, err := onnx.NewSession(onnx.SessionConfig{
			ModelPath:   path,
			LibraryPath: b.libraryPath,
			NumThreads:  b.numThreads,
			GPU:         b.gpu,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s model: %w", kind, err)
		}
		slog.Debug("loaded model", "kind", kind, "path", path, "input_shape", s.InputShape())
		closers = append(closers, s)
		return s, nil
	}

	det, rec := b.detModel, b.recModel
	var err error
	if det == nil && b.detPath != "" {
		if det, err = load("detection", b.detPath); err != nil {
			return nil, err
		}
	}
	if rec == nil && b.recPath != "" {
		if rec, err = load("recognition", b.recPath); err != nil {
			cleanup()
			return nil, err
		}
	}

	e, err := NewEngine(b.cfg, det, rec)
	if err != nil {
		cleanup()
		return nil, err
	}
	e.closers = closers
	return e, nil
}
