package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/linocr/internal/config"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
	"github.com/MeKo-Tech/linocr/internal/server"
	"github.com/MeKo-Tech/linocr/internal/version"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket OCR server",
		Long: `Start a server that runs OCR on uploaded images.

Endpoints:
  GET  /health      server status and loaded models
  POST /ocr/image   multipart field "image"; ?format=json|text|overlay
  POST /ocr/detect  word and line boxes only
  GET  /ws/ocr      WebSocket, one JSON request per image
  GET  /metrics     Prometheus metrics

Examples:
  linocr serve --det-model det.onnx --rec-model rec.onnx
  linocr serve --host 0.0.0.0 --port 3000 --rate-limit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := a.cfg.ToServerConfig(version.Version)
			if err != nil {
				return err
			}
			return a.withEngine(func(eng *pipeline.Engine) error {
				srv, err := server.New(eng, sc)
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())
				return srv.ListenAndServe(ctx)
			})
		},
	}

	d := config.DefaultConfig()
	f := cmd.Flags()
	f.String("host", d.Server.Host, "address to listen on")
	f.Int("port", d.Server.Port, "port to listen on")
	f.String("cors-origin", d.Server.CORSOrigin, "allowed CORS origin")
	f.Int64("max-upload-mb", d.Server.MaxUploadMB, "largest accepted upload in MB")
	f.Int("timeout", d.Server.TimeoutSec, "OCR time limit per request in seconds (0 = none)")
	f.Int("shutdown-timeout", d.Server.ShutdownTimeoutSec, "graceful shutdown timeout in seconds")
	f.Bool("rate-limit", false, "enable per-client rate limits and quotas")
	a.bindFlags(f, []flagBinding{
		{"server.host", "host"},
		{"server.port", "port"},
		{"server.cors_origin", "cors-origin"},
		{"server.max_upload_mb", "max-upload-mb"},
		{"server.timeout_sec", "timeout"},
		{"server.shutdown_timeout_sec", "shutdown-timeout"},
		{"server.rate_limit.enabled", "rate-limit"},
	})
	return cmd
}
