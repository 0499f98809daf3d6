package config

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/linocr/internal/layout"
	"github.com/MeKo-Tech/linocr/internal/recognizer"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Recognizer.Alphabet)
	assert.Equal(t, recognizer.Greedy, cfg.Recognizer.Method)
	assert.InDelta(t, 15.0, cfg.Layout.MaxAngleDegrees, 1e-9)
	assert.Equal(t, "ltr", cfg.Layout.Direction)
	assert.Equal(t, "auto", cfg.GPU.MemoryLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"threads", func(c *Config) { c.Models.NumThreads = -1 }, "num_threads"},
		{"detector threshold", func(c *Config) { c.Detector.Threshold = 2 }, "detector"},
		{"decode method", func(c *Config) { c.Recognizer.Method = "viterbi" }, "recognizer"},
		{"strip height", func(c *Config) { c.Recognizer.Sample.Height = 0 }, "recognizer"},
		{"band tolerance", func(c *Config) { c.Layout.BandTolerance = 0 }, "band_tolerance"},
		{"angle", func(c *Config) { c.Layout.MaxAngleDegrees = 120 }, "max_angle_degrees"},
		{"gap", func(c *Config) { c.Layout.MaxGapRatio = -1 }, "max_gap_ratio"},
		{"direction", func(c *Config) { c.Layout.Direction = "ttb" }, "direction"},
		{"gpu device", func(c *Config) { c.GPU.Device = -1 }, "GPU device"},
		{"memory limit", func(c *Config) { c.GPU.MemoryLimit = "lots" }, "memory limit"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max_upload_mb"},
		{"server timeout", func(c *Config) { c.Server.TimeoutSec = -1 }, "timeouts"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerHour = -5 }, "rate_limit"},
		{"data quota", func(c *Config) { c.Server.RateLimit.MaxDataPerDay = "much" }, "max_data_per_day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout.MaxAngleDegrees = 30
	cfg.Layout.Direction = "RTL"
	cfg.Detector.MinArea = 42
	cfg.Recognizer.AllowedChars = "0123456789"
	cfg.Debug.Dir = "/tmp/dbg"
	cfg.Verbose = true

	pc, err := cfg.ToPipelineConfig()
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/6, pc.Layout.MaxAngleDiff, 1e-12)
	assert.Equal(t, layout.RightToLeft, pc.Layout.Direction)
	assert.Equal(t, 42, pc.Detector.MinArea)
	assert.Equal(t, "0123456789", pc.Recognizer.AllowedChars)
	assert.Equal(t, "/tmp/dbg", pc.DebugDir)
	assert.True(t, pc.Debug)

	cfg.Layout.Direction = "sideways"
	_, err = cfg.ToPipelineConfig()
	require.Error(t, err)
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"512MB", 512 << 20, false},
		{"1gb", 1 << 30, false},
		{"1.5 GB", 3 << 29, false},
		{"100B", 100, false},
		{"4KB", 4096, false},
		{"12", 0, true},
		{"xMB", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMemoryLimit(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToGPUConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GPU = GPUConfig{Enabled: true, Device: 1, MemoryLimit: "2GB"}
	g, err := cfg.ToGPUConfig()
	require.NoError(t, err)
	assert.True(t, g.Enabled)
	assert.Equal(t, 1, g.Device)
	assert.Equal(t, uint64(2<<30), g.MemLimit)
	assert.NotEmpty(t, g.ArenaStrategy)

	cfg.GPU.MemoryLimit = "?"
	_, err = cfg.ToGPUConfig()
	require.Error(t, err)
}

func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 9090
	cfg.Server.TimeoutSec = 5
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.MaxDataPerDay = "1MB"

	sc, err := cfg.ToServerConfig("v1")
	require.NoError(t, err)
	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, "localhost", sc.Host)
	assert.Equal(t, 5*time.Second, sc.Timeout)
	assert.Equal(t, 10*time.Second, sc.ShutdownTimeout)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, int64(1<<20), sc.RateLimit.MaxDataPerDay)
	assert.Equal(t, "v1", sc.Version)

	cfg.Server.MaxUploadMB = -1
	_, err = cfg.ToServerConfig("v1")
	require.Error(t, err)
}
