// Command server starts the banking transaction data API: synthetic
// transaction generation with fraud-pattern injection, served over
// request/response and Server-Sent-Events endpoints.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-port      HTTP port to listen on (default: 8000)
//	-accounts  Account registry capacity (default: 10000)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"harborbank/txstream/internal/account"
	"harborbank/txstream/internal/api"
	"harborbank/txstream/internal/generator"
	"harborbank/txstream/internal/stream"
)

func main() {
	port := flag.Int("port", 8000, "HTTP port")
	accounts := flag.Int("accounts", account.DefaultCapacity, "account registry capacity")
	flag.Parse()

	// PaaS platforms inject PORT as an env var; it wins over the flag.
	if envPort := os.Getenv("PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			*port = p
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Wire dependencies ─────────────────────────────────────────────────────
	registry := account.New(*accounts)
	engine := generator.New(registry)
	hub := stream.NewHub()
	controller := stream.NewController(engine, hub)
	handler := api.NewHandler(engine, controller, hub)
	router := api.NewRouter(handler)

	// ── Start HTTP server ─────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", *port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No write timeout: the SSE stream endpoint holds its response open
		// indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "port", *port, "account_capacity", *accounts)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	controller.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
