package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"harborbank/txstream/internal/domain"
	"harborbank/txstream/internal/generator"
	"harborbank/txstream/internal/stream"
)

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	engine     *generator.Engine
	controller *stream.Controller
	hub        *stream.Hub
}

// NewHandler creates a Handler wired to the given dependencies.
func NewHandler(e *generator.Engine, c *stream.Controller, h *stream.Hub) *Handler {
	return &Handler{engine: e, controller: c, hub: h}
}

// ─── GET / ────────────────────────────────────────────────────────────────────

// Root returns the service banner with the current streaming state.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"message":     "Banking Transaction Data API",
		"description": "Sends raw transaction data for fraud detection testing",
		"status":      "active",
		"streaming":   h.controller.Running(),
		"config":      h.controller.Config(),
	})
}

// ─── GET /transaction ─────────────────────────────────────────────────────────

// GetTransaction generates and returns a single transaction at the currently
// configured fraud-injection rate.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx := h.engine.Generate(h.controller.Config().FraudInjectionRate)
	ok(w, tx)
}

// ─── GET /transactions/{count} ────────────────────────────────────────────────

// GetTransactionBatch generates count transactions in one call. The count is
// bounded to 1..1000; anything else is rejected with no partial generation.
func (h *Handler) GetTransactionBatch(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "count")
	count, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, "INVALID_REQUEST", fmt.Sprintf("count must be an integer, got %q", raw))
		return
	}
	if count < 1 || count > domain.MaxBatchSize {
		badRequest(w, "INVALID_REQUEST",
			fmt.Sprintf("count must be between 1 and %d, got %d", domain.MaxBatchSize, count))
		return
	}

	txns := h.engine.GenerateBatch(h.controller.Config().FraudInjectionRate, count)
	ok(w, domain.BatchResponse{
		Transactions: txns,
		Count:        len(txns),
		Timestamp:    time.Now().Format(time.RFC3339),
	})
}

// ─── GET /config  /  POST /config ─────────────────────────────────────────────

// GetConfig returns the current streaming configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	ok(w, h.controller.Config())
}

// UpdateConfig applies a partial configuration update. Fields absent from
// the body keep their prior values; an invalid result is rejected before any
// mutation, so the prior configuration survives intact.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update domain.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	cfg, err := h.controller.UpdateConfig(update)
	if err != nil {
		badRequest(w, "INVALID_CONFIG", err.Error())
		return
	}
	ok(w, cfg)
}

// ─── POST /start  /  POST /stop ───────────────────────────────────────────────

// StartStreaming starts the emission loop. Idempotent: starting an already
// running stream succeeds without effect.
func (h *Handler) StartStreaming(w http.ResponseWriter, r *http.Request) {
	h.controller.Start()
	ok(w, map[string]any{"streaming": true, "config": h.controller.Config()})
}

// StopStreaming stops the emission loop. Idempotent.
func (h *Handler) StopStreaming(w http.ResponseWriter, r *http.Request) {
	h.controller.Stop()
	ok(w, map[string]any{"streaming": false})
}

// ─── GET /status ──────────────────────────────────────────────────────────────

// GetStatus returns the serving-side observability snapshot.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, h.controller.Status())
}

// ─── GET /stream ──────────────────────────────────────────────────────────────

// StreamTransactions serves batches over Server-Sent-Events. The subscriber
// receives every batch emitted while connected, starting from the next one;
// a reconnect starts a fresh subscription with no replay.
func (h *Handler) StreamTransactions(w http.ResponseWriter, r *http.Request) {
	flusher, okFlush := w.(http.Flusher)
	if !okFlush {
		badRequest(w, "STREAMING_UNSUPPORTED", "response writer does not support streaming")
		return
	}

	id, events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Info("stream subscriber connected", "subscriber_id", id)

	for {
		select {
		case <-r.Context().Done():
			slog.Info("stream subscriber disconnected", "subscriber_id", id)
			return
		case ev, open := <-events:
			if !open {
				// Dropped by the hub for falling behind.
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("stream: marshal event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
