package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"session-key-agent/config"
)

// NewRouter はルーターを生成する。
func NewRouter(h *StatusHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Get("/healthz", h.Healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/handshakes", h.ListHandshakes)
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "status-api")
	}
	return r
}
