// Package cmd implements the linocr command line interface.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/linocr/internal/config"
	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/models"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
	"github.com/MeKo-Tech/linocr/internal/utils"
	"github.com/MeKo-Tech/linocr/internal/version"
)

// engineFactory creates an engine from the resolved configuration.
type engineFactory func(cfg *config.Config) (*pipeline.Engine, error)

// app is the state shared by one command tree.
type app struct {
	v         *viper.Viper
	cfgFile   string
	cfg       *config.Config
	newEngine engineFactory
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand returns the linocr command tree backed by ONNX models.
func NewRootCommand() *cobra.Command {
	return newRootCommand(buildEngine)
}

func newRootCommand(factory engineFactory) *cobra.Command {
	a := &app{v: viper.New(), newEngine: factory}

	root := &cobra.Command{
		Use:   "linocr",
		Short: "Line-oriented OCR for photographed documents",
		Long: `linocr finds words in an image, groups them into lines and reads each
line with a CTC recognition model.

Settings come from flags, LINOCR_* environment variables and a linocr.yaml
file searched in ., $HOME, $XDG_CONFIG_HOME/linocr and /etc/linocr.

Examples:
  linocr text --det-model det.onnx --rec-model rec.onnx receipt.jpg
  linocr lines --decode-method beam photo.png
  linocr detect --overlay-dir out scan.png
  linocr serve --port 8080
  linocr config init`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	d := config.DefaultConfig()
	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/linocr, /etc/linocr)")
	f.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	f.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")

	f.String("models-dir", "", "directory with detection.onnx, recognition.onnx and alphabet.txt (default: $LINOCR_MODELS_DIR or ./models)")
	f.String("det-model", "", "detection model (ONNX)")
	f.String("rec-model", "", "recognition model (ONNX)")
	f.String("ort-lib", "", "ONNX Runtime shared library")
	f.Int("threads", 0, "intra-op threads per model (0 = runtime default)")
	f.Bool("gpu", false, "enable GPU acceleration using CUDA")
	f.Int("gpu-device", 0, "CUDA device ID")
	f.String("gpu-mem-limit", d.GPU.MemoryLimit, "GPU memory limit (e.g. '2GB', '512MB', 'auto')")

	f.Float32("threshold", d.Detector.Threshold, "text probability threshold (0..1)")
	f.Int("min-area", d.Detector.MinArea, "smallest word region in pixels")
	f.String("direction", d.Layout.Direction, "reading direction (ltr, rtl)")
	f.Float64("max-angle", d.Layout.MaxAngleDegrees, "largest word angle difference within a line, in degrees")

	f.String("alphabet", "", "recognition alphabet, one label per character (default: built-in)")
	f.String("alphabet-file", "", "file with one alphabet character per line")
	f.String("allowed-chars", "", "restrict recognition to these characters")
	f.String("decode-method", string(d.Recognizer.Method), "CTC decoding (greedy, beam)")
	f.Int("beam-width", d.Recognizer.BeamWidth, "prefixes kept by beam decoding")
	f.Int("workers", d.Recognizer.Workers, "lines recognised concurrently (0 = NumCPU)")
	f.Int("rec-height", d.Recognizer.Sample.Height, "height of line images fed to the recognizer")

	f.Bool("debug", false, "log per-stage diagnostics")
	f.String("debug-dir", "", "directory for probability maps, overlays and line images")

	a.bindFlags(f, []flagBinding{
		{"verbose", "verbose"},
		{"log_level", "log-level"},
		{"models.dir", "models-dir"},
		{"models.detection_path", "det-model"},
		{"models.recognition_path", "rec-model"},
		{"models.library_path", "ort-lib"},
		{"models.num_threads", "threads"},
		{"gpu.enabled", "gpu"},
		{"gpu.device", "gpu-device"},
		{"gpu.memory_limit", "gpu-mem-limit"},
		{"detector.threshold", "threshold"},
		{"detector.min_area", "min-area"},
		{"layout.direction", "direction"},
		{"layout.max_angle_degrees", "max-angle"},
		{"recognizer.alphabet", "alphabet"},
		{"recognizer.alphabet_path", "alphabet-file"},
		{"recognizer.allowed_chars", "allowed-chars"},
		{"recognizer.decode_method", "decode-method"},
		{"recognizer.beam_width", "beam-width"},
		{"recognizer.workers", "workers"},
		{"recognizer.sample.height", "rec-height"},
		{"debug.enabled", "debug"},
		{"debug.dir", "debug-dir"},
	})

	root.AddCommand(
		a.textCmd(),
		a.linesCmd(),
		a.detectCmd(),
		a.findCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return root
}

// flagBinding ties a config key to a flag name.
type flagBinding struct{ key, flag string }

func (a *app) bindFlags(f *pflag.FlagSet, bindings []flagBinding) {
	for _, b := range bindings {
		if err := a.v.BindPFlag(b.key, f.Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}
}

// setup loads and validates the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoaderWithViper(a.v).LoadWithFile(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	setupLogging(cmd.ErrOrStderr(), cfg)
	return nil
}

func setupLogging(w io.Writer, cfg *config.Config) {
	var level slog.Level
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// buildEngine loads the configured ONNX models.
func buildEngine(cfg *config.Config) (*pipeline.Engine, error) {
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	gpu, err := cfg.ToGPUConfig()
	if err != nil {
		return nil, err
	}
	paths := models.Resolve(cfg.Models.Dir, models.Paths{
		Detection:   cfg.Models.DetectionPath,
		Recognition: cfg.Models.RecognitionPath,
	})
	if pc.Recognizer.Alphabet == "" && pc.Recognizer.AlphabetPath == "" {
		pc.Recognizer.AlphabetPath = paths.Alphabet
	}
	return pipeline.NewBuilder().
		WithConfig(pc).
		WithDetectionModelPath(paths.Detection).
		WithRecognitionModelPath(paths.Recognition).
		WithLibraryPath(cfg.Models.LibraryPath).
		WithThreads(cfg.Models.NumThreads).
		WithGPU(gpu).
		Build()
}

// withEngine creates an engine, runs fn and closes the engine.
func (a *app) withEngine(fn func(*pipeline.Engine) error) error {
	eng, err := a.newEngine(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to build OCR engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Warn("failed to close engine", "error", err)
		}
	}()
	return fn(eng)
}

func loadImage(eng *pipeline.Engine, path string) (*imagesrc.NormalizedImage, error) {
	img, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return eng.PrepareInput(img)
}
