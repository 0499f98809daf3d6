package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "linocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LINOCR"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, where the
// command line flags are bound.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the configuration from the search paths, environment
// variables and defaults, and validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from a specific file path. An empty
// path searches the standard locations and tolerates a missing file.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("")
}

func (l *Loader) load(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Settings returns the resolved settings as a nested map.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

func (l *Loader) addConfigPaths() {
	for _, p := range SearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps keys such as detector.min_area to
// LINOCR_DETECTOR_MIN_AREA.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so environment variables can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("models.dir", d.Models.Dir)
	l.v.SetDefault("models.detection_path", d.Models.DetectionPath)
	l.v.SetDefault("models.recognition_path", d.Models.RecognitionPath)
	l.v.SetDefault("models.library_path", d.Models.LibraryPath)
	l.v.SetDefault("models.num_threads", d.Models.NumThreads)

	l.v.SetDefault("detector.threshold", d.Detector.Threshold)
	l.v.SetDefault("detector.min_area", d.Detector.MinArea)
	l.v.SetDefault("detector.expand_dist", d.Detector.ExpandDist)
	l.v.SetDefault("detector.expand_ratio", d.Detector.ExpandRatio)
	l.v.SetDefault("detector.connectivity", d.Detector.Connectivity)
	l.v.SetDefault("detector.pad_multiple", d.Detector.PadMultiple)

	l.v.SetDefault("layout.band_tolerance", d.Layout.BandTolerance)
	l.v.SetDefault("layout.max_angle_degrees", d.Layout.MaxAngleDegrees)
	l.v.SetDefault("layout.max_gap_ratio", d.Layout.MaxGapRatio)
	l.v.SetDefault("layout.direction", d.Layout.Direction)

	l.v.SetDefault("recognizer.alphabet", d.Recognizer.Alphabet)
	l.v.SetDefault("recognizer.alphabet_path", d.Recognizer.AlphabetPath)
	l.v.SetDefault("recognizer.allowed_chars", d.Recognizer.AllowedChars)
	l.v.SetDefault("recognizer.decode_method", string(d.Recognizer.Method))
	l.v.SetDefault("recognizer.beam_width", d.Recognizer.BeamWidth)
	l.v.SetDefault("recognizer.output_layout", string(d.Recognizer.OutputLayout))
	l.v.SetDefault("recognizer.log_probs", d.Recognizer.LogProbs)
	l.v.SetDefault("recognizer.workers", d.Recognizer.Workers)
	l.v.SetDefault("recognizer.sample.height", d.Recognizer.Sample.Height)
	l.v.SetDefault("recognizer.sample.width_multiple", d.Recognizer.Sample.WidthMultiple)
	l.v.SetDefault("recognizer.sample.max_width", d.Recognizer.Sample.MaxWidth)

	l.v.SetDefault("debug.enabled", d.Debug.Enabled)
	l.v.SetDefault("debug.dir", d.Debug.Dir)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day", d.Server.RateLimit.MaxDataPerDay)
}

// WriteDefaultConfig writes the default configuration as YAML.
func WriteDefaultConfig(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("# linocr configuration\n")
	buf.WriteString("# Every key can be overridden with " + EnvPrefix + "_<SECTION>_<KEY>.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// GenerateDefaultConfigFile writes the default configuration to filename,
// refusing to replace an existing file unless overwrite is set.
func GenerateDefaultConfigFile(filename string, overwrite bool) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(filename, flags, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if err := WriteDefaultConfig(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// SearchPaths returns the directories searched for configuration files.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if dir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && dir != "" {
		paths = append(paths, filepath.Join(dir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	return append(paths, filepath.Join("/etc", ConfigFileName))
}
