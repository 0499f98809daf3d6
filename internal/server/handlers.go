package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/MeKo-Tech/linocr/internal/pipeline"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

const (
	formatJSON    = "json"
	formatText    = "text"
	formatOverlay = "overlay"
)

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Time        string `json:"time"`
	Detection   bool   `json:"detection"`
	Recognition bool   `json:"recognition"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// OCRResponse is the JSON result of /ocr/image.
type OCRResponse struct {
	Text         string                `json:"text"`
	Lines        []pipeline.LineResult `json:"lines"`
	Width        int                   `json:"width"`
	Height       int                   `json:"height"`
	ProcessingMs int64                 `json:"processing_ms"`
}

// DetectResponse is the JSON result of /ocr/detect.
type DetectResponse struct {
	pipeline.DetectionResult
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	ProcessingMs int64 `json:"processing_ms"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Version:     s.cfg.Version,
		Time:        time.Now().UTC().Format(time.RFC3339),
		Detection:   s.engine.HasDetector(),
		Recognition: s.engine.HasRecognizer(),
	})
}

// ocrImageHandler recognises an uploaded image. The format query parameter
// selects json (default), text or overlay (PNG with detected boxes).
func (s *Server) ocrImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatJSON
	}
	if format != formatJSON && format != formatText && format != formatOverlay {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unsupported format %q (json, text, overlay)", format))
		return
	}

	img, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	start := time.Now()

	if format == formatOverlay {
		det, err := s.detect(ctx, img)
		if err != nil {
			s.failOCR(w, "image", err)
			return
		}
		ocrRequestsTotal.WithLabelValues("image", "ok").Inc()
		w.Header().Set("Content-Type", "image/png")
		if err := imgio.PNGEncoder()(w, pipeline.RenderOverlay(img, det.words, det.lines)); err != nil {
			slog.Error("failed to encode overlay", "error", err)
		}
		return
	}

	res, err := s.recognize(ctx, img)
	if err != nil {
		s.failOCR(w, "image", err)
		return
	}
	ocrRequestsTotal.WithLabelValues("image", "ok").Inc()
	res.ProcessingMs = time.Since(start).Milliseconds()

	if format == formatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := io.WriteString(w, res.Text); err != nil {
			slog.Error("failed to write response", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// detectHandler runs detection and line layout only.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	img, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	start := time.Now()

	det, err := s.detect(ctx, img)
	if err != nil {
		s.failOCR(w, "detect", err)
		return
	}
	ocrRequestsTotal.WithLabelValues("detect", "ok").Inc()
	b := img.Bounds()
	writeJSON(w, http.StatusOK, DetectResponse{
		DetectionResult: pipeline.NewDetectionResult(s.engine.DetectionThreshold(), det.words, det.lines),
		Width:           b.Dx(),
		Height:          b.Dy(),
		ProcessingMs:    time.Since(start).Milliseconds(),
	})
}

// readUpload decodes the multipart "image" field. On failure it writes the
// error response and returns false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	limit := s.cfg.MaxUploadMB << 20
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB))
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(min(limit, 32<<20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse multipart form: "+err.Error())
		return nil, false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing image field")
		return nil, false
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, err := utils.DecodeImage(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
		return nil, false
	}
	return img, true
}

func (s *Server) recognize(ctx context.Context, img image.Image) (OCRResponse, error) {
	n, err := s.engine.PrepareInput(img)
	if err != nil {
		return OCRResponse{}, err
	}
	lines, err := s.engine.GetTextLines(ctx, n)
	if err != nil {
		return OCRResponse{}, err
	}
	return OCRResponse{
		Text:   pipeline.JoinLines(lines),
		Lines:  pipeline.LineResults(lines),
		Width:  n.Width,
		Height: n.Height,
	}, nil
}

type detection struct {
	words []utils.RotatedRect
	lines [][]utils.RotatedRect
}

func (s *Server) detect(ctx context.Context, img image.Image) (detection, error) {
	n, err := s.engine.PrepareInput(img)
	if err != nil {
		return detection{}, err
	}
	words, err := s.engine.DetectWords(ctx, n)
	if err != nil {
		return detection{}, err
	}
	return detection{words: words, lines: s.engine.FindTextLines(words)}, nil
}

func (s *Server) failOCR(w http.ResponseWriter, kind string, err error) {
	ocrRequestsTotal.WithLabelValues(kind, "error").Inc()
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		slog.Error("OCR failed", "kind", kind, "error", err)
	}
	writeError(w, status, code, err.Error())
}

// classifyError maps engine errors to an HTTP status and error code.
func classifyError(err error) (int, string) {
	var cfgErr *pipeline.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable, "model_not_loaded"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "processing_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
