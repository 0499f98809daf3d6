// Package server exposes the OCR engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/recognizer"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// ocrEngine is the part of *pipeline.Engine the server uses.
type ocrEngine interface {
	PrepareInput(img image.Image) (*imagesrc.NormalizedImage, error)
	GetTextLines(ctx context.Context, img *imagesrc.NormalizedImage) ([]*recognizer.TextLine, error)
	DetectWords(ctx context.Context, img *imagesrc.NormalizedImage) ([]utils.RotatedRect, error)
	FindTextLines(words []utils.RotatedRect) [][]utils.RotatedRect
	DetectionThreshold() float32
	HasDetector() bool
	HasRecognizer() bool
}

// RateLimitConfig holds per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	Timeout         time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig
	// Version is reported by /health.
	Version string
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		MaxUploadMB:     50,
		Timeout:         30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     100 * 1024 * 1024,
		},
	}
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	engine      ocrEngine
	cfg         Config
	rateLimiter *RateLimiter
}

// New creates a server around an engine. The caller keeps ownership of
// the engine.
func New(engine ocrEngine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("server needs an OCR engine")
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("max upload size must be positive, got %d MB", cfg.MaxUploadMB)
	}
	s := &Server{engine: engine, cfg: cfg}
	if cfg.RateLimit.Enabled {
		rl := cfg.RateLimit
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/ocr/image", s.corsMiddleware(s.rateLimitMiddleware(s.ocrImageHandler)))
	mux.HandleFunc("/ocr/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.HandleFunc("/ws/ocr", s.ocrWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// requestContext bounds OCR work by the configured timeout.
func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}
