package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and returns a configured Chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// ── Health check ──────────────────────────────────────────────────────────
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"status": "ok", "service": "harborbank-txstream"})
	})

	// ── Service surface ───────────────────────────────────────────────────────
	r.Get("/", h.Root)

	// Generation
	r.Get("/transaction", h.GetTransaction)
	r.Get("/transactions/{count}", h.GetTransactionBatch)

	// Streaming control
	r.Get("/config", h.GetConfig)
	r.Post("/config", h.UpdateConfig)
	r.Post("/start", h.StartStreaming)
	r.Post("/stop", h.StopStreaming)
	r.Get("/status", h.GetStatus)

	// Continuous consumption (SSE)
	r.Get("/stream", h.StreamTransactions)

	return r
}

// requestLogger is a minimal structured-logging middleware.
// It replaces chi's default Logger to emit slog records.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
