package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"harborbank/txstream/internal/domain"
	"harborbank/txstream/internal/generator"
)

// Controller is the process-wide streaming state machine: Stopped or
// Running. While Running, a background loop sleeps for the configured
// interval, generates a batch, and broadcasts it through the hub.
//
// Start and Stop are idempotent. Config updates are applied atomically and
// picked up by the next loop iteration; an in-flight sleep is not
// interrupted, so a new interval takes effect after at most one old
// interval.
type Controller struct {
	engine *generator.Engine
	hub    *Hub

	mu      sync.Mutex
	cfg     domain.StreamConfig
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController creates a stopped controller with the default configuration.
func NewController(e *generator.Engine, h *Hub) *Controller {
	return &Controller{
		engine: e,
		hub:    h,
		cfg:    domain.DefaultStreamConfig(),
	}
}

// ─── State transitions ────────────────────────────────────────────────────────

// Start transitions Stopped → Running. A no-op if already running.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(ctx, c.done)
	slog.Info("streaming started", "config", c.cfg)
}

// Stop transitions Running → Stopped. A no-op if already stopped. It returns
// once the loop has exited; the loop checks for cancellation at every
// iteration boundary and inside its sleep, so Stop never waits for a full
// interval, and never interrupts a batch mid-generation.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	slog.Info("streaming stopped")
}

// Running reports whether the emission loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ─── Configuration ────────────────────────────────────────────────────────────

// Config returns the current streaming configuration.
func (c *Controller) Config() domain.StreamConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig merges a partial update into the current configuration,
// validating the result before installing it. On failure the prior
// configuration is left untouched and returned alongside the error.
// Permitted in either state.
func (c *Controller) UpdateConfig(update domain.ConfigUpdate) (domain.StreamConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := update.Apply(c.cfg)
	if err := merged.Validate(); err != nil {
		return c.cfg, err
	}

	c.cfg = merged
	slog.Info("configuration updated", "config", c.cfg)
	return c.cfg, nil
}

// Status returns the observability snapshot served by the status endpoint.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	running, cfg := c.running, c.cfg
	c.mu.Unlock()

	return domain.Status{
		Streaming:             running,
		TransactionsGenerated: c.engine.TotalGenerated(),
		ActiveAccounts:        c.engine.ActiveAccounts(),
		Config:                cfg,
	}
}

// ─── Emission loop ────────────────────────────────────────────────────────────

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		// Re-read the config each iteration so updates take effect without
		// restarting the loop.
		cfg := c.Config()

		timer := time.NewTimer(cfg.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		cfg = c.Config()
		txns := c.engine.GenerateBatch(cfg.FraudInjectionRate, cfg.BatchSize)
		c.hub.Broadcast(domain.BatchEvent{
			Timestamp:    time.Now().Format(time.RFC3339),
			Transactions: txns,
		})
	}
}
