package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/linocr/internal/pipeline"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// WebSocket request modes.
const (
	ModeLines  = "lines"
	ModeText   = "text"
	ModeDetect = "detect"
)

// WebSocketRequest asks for OCR of one image. Image is base64 in JSON.
type WebSocketRequest struct {
	ID    string `json:"id,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Image []byte `json:"image"`
}

// WebSocketResponse reports progress or the result of a request.
type WebSocketResponse struct {
	ID        string                    `json:"id,omitempty"`
	Status    string                    `json:"status"` // "processing", "completed" or "error"
	Text      string                    `json:"text,omitempty"`
	Lines     []pipeline.LineResult     `json:"lines,omitempty"`
	Detection *pipeline.DetectionResult `json:"detection,omitempty"`
	Error     string                    `json:"error,omitempty"`
	ErrorType string                    `json:"error_type,omitempty"`
}

// messageWriter is the part of *websocket.Conn used to send responses.
type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.cfg.CORSOrigin == "*" || origin == "" || origin == s.cfg.CORSOrigin
		},
	}
}

// ocrWebSocketHandler serves OCR requests over one WebSocket connection.
// Requests on a connection are handled in order.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(clientIP(r), 0); err != nil {
			writeRateLimitError(w, err)
			return
		}
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("websocket connection established", "remote", clientIP(r))

	// base64 grows payloads by a third
	conn.SetReadLimit(s.cfg.MaxUploadMB<<20*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			s.sendWebSocket(conn, WebSocketResponse{Status: "error", ErrorType: "invalid_request", Error: "expected a JSON text message"})
			continue
		}
		s.handleWebSocketMessage(ctx, conn, data)
	}
}

// handleWebSocketMessage answers one request with a processing notice
// followed by the result or an error.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn messageWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocket(conn, WebSocketResponse{Status: "error", ErrorType: "invalid_request", Error: "failed to parse request: " + err.Error()})
		return
	}
	fail := func(errType, msg string) {
		ocrRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocket(conn, WebSocketResponse{ID: req.ID, Status: "error", ErrorType: errType, Error: msg})
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeLines
	}
	if mode != ModeLines && mode != ModeText && mode != ModeDetect {
		fail("invalid_request", "unsupported mode: "+mode)
		return
	}
	if len(req.Image) == 0 {
		fail("invalid_request", "no image data provided")
		return
	}
	s.sendWebSocket(conn, WebSocketResponse{ID: req.ID, Status: "processing"})

	img, err := utils.DecodeImage(bytes.NewReader(req.Image), req.ID)
	if err != nil {
		fail("invalid_image", err.Error())
		return
	}
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	resp := WebSocketResponse{ID: req.ID, Status: "completed"}
	if mode == ModeDetect {
		det, err := s.detect(ctx, img)
		if err != nil {
			_, code := classifyError(err)
			fail(code, err.Error())
			return
		}
		res := pipeline.NewDetectionResult(s.engine.DetectionThreshold(), det.words, det.lines)
		resp.Detection = &res
	} else {
		res, err := s.recognize(ctx, img)
		if err != nil {
			_, code := classifyError(err)
			fail(code, err.Error())
			return
		}
		resp.Text = res.Text
		if mode == ModeLines {
			resp.Lines = res.Lines
		}
	}
	ocrRequestsTotal.WithLabelValues("websocket", "ok").Inc()
	s.sendWebSocket(conn, resp)
}

func (s *Server) sendWebSocket(conn messageWriter, resp WebSocketResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal websocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Warn("failed to send websocket response", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
