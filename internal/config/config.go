// Package config loads linocr settings from files, environment variables
// and flags, and converts them to the engine configuration.
package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/linocr/internal/detector"
	"github.com/MeKo-Tech/linocr/internal/layout"
	"github.com/MeKo-Tech/linocr/internal/onnx"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
	"github.com/MeKo-Tech/linocr/internal/recognizer"
	"github.com/MeKo-Tech/linocr/internal/server"
)

// Config represents the complete configuration for the linocr application.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Models     ModelsConfig      `mapstructure:"models" yaml:"models" json:"models"`
	Detector   detector.Config   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Layout     LayoutConfig      `mapstructure:"layout" yaml:"layout" json:"layout"`
	Recognizer recognizer.Config `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Debug      DebugConfig       `mapstructure:"debug" yaml:"debug" json:"debug"`
	GPU        GPUConfig         `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
	Server     ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
}

// ModelsConfig locates the ONNX models and runtime.
type ModelsConfig struct {
	// Dir is searched for detection.onnx, recognition.onnx and alphabet.txt
	// when the paths below are empty.
	Dir             string `mapstructure:"dir" yaml:"dir" json:"dir"`
	DetectionPath   string `mapstructure:"detection_path" yaml:"detection_path" json:"detection_path"`
	RecognitionPath string `mapstructure:"recognition_path" yaml:"recognition_path" json:"recognition_path"`
	// LibraryPath is the ONNX Runtime shared library; empty searches the usual places.
	LibraryPath string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	NumThreads  int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// LayoutConfig contains line grouping settings in user units.
type LayoutConfig struct {
	BandTolerance   float64 `mapstructure:"band_tolerance" yaml:"band_tolerance" json:"band_tolerance"`
	MaxAngleDegrees float64 `mapstructure:"max_angle_degrees" yaml:"max_angle_degrees" json:"max_angle_degrees"`
	MaxGapRatio     float64 `mapstructure:"max_gap_ratio" yaml:"max_gap_ratio" json:"max_gap_ratio"`
	Direction       string  `mapstructure:"direction" yaml:"direction" json:"direction"`
}

// DebugConfig contains diagnostic output settings.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// ServerConfig contains settings of the HTTP server.
type ServerConfig struct {
	Host               string          `mapstructure:"host" yaml:"host" json:"host"`
	Port               int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin         string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB        int64           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec         int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeoutSec int             `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	// MaxDataPerDay uses the units of gpu.memory_limit, e.g. "100MB".
	MaxDataPerDay string `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	rec := recognizer.DefaultConfig()
	// Empty means the built-in alphabet; keeps generated files readable.
	rec.Alphabet = ""

	l := layout.DefaultConfig()
	srv := server.DefaultConfig()
	return Config{
		LogLevel:   "info",
		Detector:   detector.DefaultConfig(),
		Recognizer: rec,
		Layout: LayoutConfig{
			BandTolerance:   l.BandTolerance,
			MaxAngleDegrees: math.Round(l.MaxAngleDiff * 180 / math.Pi),
			MaxGapRatio:     l.MaxGapRatio,
			Direction:       "ltr",
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
		Server: ServerConfig{
			Host:               srv.Host,
			Port:               srv.Port,
			CORSOrigin:         srv.CORSOrigin,
			MaxUploadMB:        srv.MaxUploadMB,
			TimeoutSec:         int(srv.Timeout / time.Second),
			ShutdownTimeoutSec: int(srv.ShutdownTimeout / time.Second),
			RateLimit: RateLimitConfig{
				RequestsPerMinute: srv.RateLimit.RequestsPerMinute,
				RequestsPerHour:   srv.RateLimit.RequestsPerHour,
				MaxRequestsPerDay: srv.RateLimit.MaxRequestsPerDay,
				MaxDataPerDay:     "100MB",
			},
		},
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Models.NumThreads < 0 {
		return fmt.Errorf("invalid models.num_threads: %d (must not be negative)", c.Models.NumThreads)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("invalid detector config: %w", err)
	}
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("invalid recognizer config: %w", err)
	}
	if c.Layout.BandTolerance <= 0 {
		return fmt.Errorf("invalid layout.band_tolerance: %.2f (must be positive)", c.Layout.BandTolerance)
	}
	if c.Layout.MaxAngleDegrees <= 0 || c.Layout.MaxAngleDegrees > 90 {
		return fmt.Errorf("invalid layout.max_angle_degrees: %.2f (must be in (0, 90])", c.Layout.MaxAngleDegrees)
	}
	if c.Layout.MaxGapRatio < 0 {
		return fmt.Errorf("invalid layout.max_gap_ratio: %.2f (must not be negative)", c.Layout.MaxGapRatio)
	}
	if _, err := layout.ParseDirection(c.Layout.Direction); err != nil {
		return fmt.Errorf("invalid layout.direction: %w", err)
	}
	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d", c.GPU.Device)
	}
	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return c.Server.validate()
}

func (s *ServerConfig) validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", s.Port)
	}
	if s.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid server.max_upload_mb: %d (must be positive)", s.MaxUploadMB)
	}
	if s.TimeoutSec < 0 || s.ShutdownTimeoutSec < 0 {
		return fmt.Errorf("invalid server timeouts: %ds, %ds (must not be negative)", s.TimeoutSec, s.ShutdownTimeoutSec)
	}
	rl := s.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 {
		return fmt.Errorf("invalid server.rate_limit: limits must not be negative")
	}
	if _, err := parseMemoryLimit(rl.MaxDataPerDay); err != nil {
		return fmt.Errorf("invalid server.rate_limit.max_data_per_day: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the engine configuration.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	dir, err := layout.ParseDirection(c.Layout.Direction)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Detector: c.Detector,
		Layout: layout.Config{
			BandTolerance: c.Layout.BandTolerance,
			MaxAngleDiff:  c.Layout.MaxAngleDegrees * math.Pi / 180,
			MaxGapRatio:   c.Layout.MaxGapRatio,
			Direction:     dir,
		},
		Recognizer: c.Recognizer,
		Debug:      c.Debug.Enabled || c.Verbose,
		DebugDir:   c.Debug.Dir,
	}, nil
}

// ToGPUConfig converts the GPU settings for ONNX sessions.
func (c *Config) ToGPUConfig() (onnx.GPUConfig, error) {
	limit, err := parseMemoryLimit(c.GPU.MemoryLimit)
	if err != nil {
		return onnx.GPUConfig{}, err
	}
	g := onnx.DefaultGPUConfig()
	g.Enabled = c.GPU.Enabled
	g.Device = c.GPU.Device
	g.MemLimit = limit
	return g, nil
}

// ToServerConfig converts the server settings. version is reported by /health.
func (c *Config) ToServerConfig(version string) (server.Config, error) {
	if err := c.Server.validate(); err != nil {
		return server.Config{}, err
	}
	data, _ := parseMemoryLimit(c.Server.RateLimit.MaxDataPerDay)
	rl := c.Server.RateLimit
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		MaxUploadMB:     c.Server.MaxUploadMB,
		Timeout:         time.Duration(c.Server.TimeoutSec) * time.Second,
		ShutdownTimeout: time.Duration(c.Server.ShutdownTimeoutSec) * time.Second,
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     int64(data), //nolint:gosec // limits are far below MaxInt64
		},
		Version: version,
	}, nil
}

var memoryUnits = []struct {
	suffix string
	scale  float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseMemoryLimit parses limits such as "1GB" or "512MB". Empty and
// "auto" mean no limit.
func parseMemoryLimit(limit string) (uint64, error) {
	s := strings.ToUpper(strings.TrimSpace(limit))
	if s == "" || s == "AUTO" {
		return 0, nil
	}
	for _, u := range memoryUnits {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.scale), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
