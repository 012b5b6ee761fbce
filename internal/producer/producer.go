package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"harborbank/txstream/internal/domain"
)

// ErrDeliveryFailure is wrapped into per-record errors once retries are
// exhausted; the affected records are counted as permanently dropped.
var ErrDeliveryFailure = errors.New("delivery failed")

// highFraudAlertRate is the per-batch fraud rate above which an alert is
// raised. The alert is observable (a log record), never a hard failure.
const highFraudAlertRate = 0.30

// maxRetries bounds how many times the failed subset of a batch is
// re-submitted before its records are declared dropped.
const maxRetries = 3

// ─── Enrichment ───────────────────────────────────────────────────────────────

// EnrichedTransaction is a transaction plus the derived risk flags and
// shipping metadata attached before the record goes downstream.
type EnrichedTransaction struct {
	domain.Transaction

	ProducerTimestamp    string `json:"producer_timestamp"`
	Source               string `json:"source"`
	StreamName           string `json:"stream_name"`
	HighAmountFlag       bool   `json:"high_amount_flag"`
	OffHoursFlag         bool   `json:"off_hours_flag"`
	HighFrequencyFlag    bool   `json:"high_frequency_flag"`
	SuspiciousDeviceFlag bool   `json:"suspicious_device_flag"`
}

// Enrich computes the risk flags for one transaction.
func Enrich(tx domain.Transaction, source, streamName string, now time.Time) EnrichedTransaction {
	return EnrichedTransaction{
		Transaction:          tx,
		ProducerTimestamp:    now.UTC().Format(time.RFC3339),
		Source:               source,
		StreamName:           streamName,
		HighAmountFlag:       tx.TransactionAmount > domain.HighAmountThreshold,
		OffHoursFlag:         domain.OffHours[tx.TransactionHour],
		HighFrequencyFlag:    tx.TransactionFrequency5m > domain.HighFrequencyThreshold,
		SuspiciousDeviceFlag: tx.IsSuspiciousDevice(),
	}
}

// ─── Statistics ───────────────────────────────────────────────────────────────

// Stats holds the producer's running totals. Purely observational: nothing
// here feeds back into generation or delivery decisions.
type Stats struct {
	Batches        int      `json:"batches"`
	Sent           int      `json:"transactions_sent"`
	Succeeded      int      `json:"delivery_successes"`
	Dropped        int      `json:"delivery_failures"`
	Fraud          int      `json:"fraud_count"`
	LastBatchFraud float64  `json:"last_batch_fraud_rate"`
	LastShards     []string `json:"last_shards"`
}

// FraudRate returns the overall observed fraud fraction.
func (s Stats) FraudRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Fraud) / float64(s.Sent)
}

// BatchResult summarises one SendBatch call.
type BatchResult struct {
	Sent      int
	Succeeded int
	Dropped   int
	Fraud     int
	FraudRate float64
}

// ─── Producer ─────────────────────────────────────────────────────────────────

// Options configures a producer run.
type Options struct {
	BatchSize  int           // transactions pulled per poll
	Interval   time.Duration // pause between polls
	MaxBatches int           // stop after this many batches; 0 = unbounded
	SourceName string        // source label stamped on enriched records
	StreamName string        // stream label stamped on enriched records
}

// Producer pulls transaction batches from a Source and ships them to a
// StreamWriter, tracking delivery outcomes and fraud statistics.
type Producer struct {
	source Source
	stream StreamWriter
	opts   Options

	mu    sync.Mutex
	stats Stats
}

// New creates a producer. Zero-valued options fall back to a batch of 10
// every 5 seconds, matching the defaults of the original shipping tool.
func New(source Source, stream StreamWriter, opts Options) *Producer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.SourceName == "" {
		opts.SourceName = "harborbank_transaction_api"
	}
	return &Producer{source: source, stream: stream, opts: opts}
}

// Stats returns a copy of the running totals.
func (p *Producer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.LastShards = append([]string(nil), p.stats.LastShards...)
	return s
}

// ─── Self-test ────────────────────────────────────────────────────────────────

// SelfTest independently verifies reachability of the transaction source and
// the destination stream. Run refuses to enter the send loop until both
// succeed.
func (p *Producer) SelfTest(ctx context.Context) error {
	if err := p.source.Ping(ctx); err != nil {
		return fmt.Errorf("self-test: %w", err)
	}
	slog.Info("self-test: transaction source reachable")

	shards, err := p.stream.Describe(ctx)
	if err != nil {
		return fmt.Errorf("self-test: %w", err)
	}
	slog.Info("self-test: destination stream reachable", "shards", shards)
	return nil
}

// ─── Batch shipping ───────────────────────────────────────────────────────────

// SendBatch enriches and ships one batch. Records rejected by the stream are
// retried as a subset with exponential backoff; records still failing after
// the retry budget are counted as permanently dropped, never silently
// merged into the success count.
func (p *Producer) SendBatch(ctx context.Context, txns []domain.Transaction) BatchResult {
	now := time.Now()
	records := make([]Record, len(txns))
	fraud := 0
	for i, tx := range txns {
		enriched := Enrich(tx, p.opts.SourceName, p.opts.StreamName, now)
		payload, err := json.Marshal(enriched)
		if err != nil {
			// Cannot happen for these types; treat as a record failure.
			slog.Error("marshal enriched transaction", "transaction_id", tx.TransactionID, "error", err)
			payload = nil
		}
		records[i] = Record{Key: partitionKey(tx), Value: payload}
		if tx.IsFraud {
			fraud++
		}
	}

	pending := p.putWithFailures(ctx, records)

	// Retry only the failed subset, backing off between attempts.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	for attempt := 1; attempt <= maxRetries && len(pending) > 0; attempt++ {
		wait := bo.NextBackOff()
		slog.Warn("retrying failed records",
			"attempt", attempt, "records", len(pending), "backoff", wait)

		select {
		case <-ctx.Done():
			attempt = maxRetries // cancelled: stop retrying, count as dropped
		case <-time.After(wait):
			pending = p.putWithFailures(ctx, pending)
		}
	}

	dropped := len(pending)
	if dropped > 0 {
		slog.Error("records permanently dropped after retries",
			"dropped", dropped, "error", ErrDeliveryFailure)
	}

	result := BatchResult{
		Sent:      len(txns),
		Succeeded: len(txns) - dropped,
		Dropped:   dropped,
		Fraud:     fraud,
	}
	if result.Sent > 0 {
		result.FraudRate = float64(fraud) / float64(result.Sent)
	}

	p.record(result)

	slog.Info("batch sent",
		"success", result.Succeeded, "total", result.Sent,
		"fraud", result.Fraud, "shards", p.stream.Shards())

	if result.FraudRate > highFraudAlertRate {
		slog.Warn("HIGH FRAUD ALERT",
			"fraud", result.Fraud, "batch_size", result.Sent,
			"fraud_rate", result.FraudRate)
	}
	return result
}

// putWithFailures writes the records and returns the subset that failed.
func (p *Producer) putWithFailures(ctx context.Context, records []Record) []Record {
	errs := p.stream.Put(ctx, records)

	var failed []Record
	for i, err := range errs {
		if err != nil {
			failed = append(failed, records[i])
		}
	}
	return failed
}

// record folds a batch result into the running totals.
func (p *Producer) record(r BatchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Batches++
	p.stats.Sent += r.Sent
	p.stats.Succeeded += r.Succeeded
	p.stats.Dropped += r.Dropped
	p.stats.Fraud += r.Fraud
	p.stats.LastBatchFraud = r.FraudRate
	p.stats.LastShards = p.stream.Shards()
}

// partitionKey picks the stream partition key: the account ID so per-account
// ordering survives partitioning, falling back to the transaction ID when a
// record somehow has no account.
func partitionKey(tx domain.Transaction) []byte {
	if tx.AccountID != "" {
		return []byte(tx.AccountID)
	}
	return []byte(tx.TransactionID)
}

// ─── Run loop ─────────────────────────────────────────────────────────────────

// Run executes the continuous shipping loop: self-test, then poll the source
// and ship a batch every interval until the context is cancelled or the
// batch bound is reached. Cancellation is honoured between batches, never
// mid-send.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.SelfTest(ctx); err != nil {
		return err
	}

	slog.Info("starting continuous shipping",
		"batch_size", p.opts.BatchSize,
		"interval", p.opts.Interval,
		"max_batches", p.opts.MaxBatches)

	defer p.logFinalStats()

	for {
		stats := p.Stats()
		if p.opts.MaxBatches > 0 && stats.Batches >= p.opts.MaxBatches {
			slog.Info("reached batch bound", "max_batches", p.opts.MaxBatches)
			return nil
		}

		txns, err := p.source.FetchBatch(ctx, p.opts.BatchSize)
		switch {
		case err != nil:
			// Transient source trouble: log and try again next interval.
			slog.Error("fetch batch", "error", err)
		case len(txns) == 0:
			slog.Warn("no transactions received from source")
		default:
			result := p.SendBatch(ctx, txns)
			total := p.Stats()
			slog.Info("running totals",
				"transactions", total.Sent,
				"fraud", total.Fraud,
				"fraud_rate", fmt.Sprintf("%.1f%%", total.FraudRate()*100),
				"dropped", total.Dropped,
				"batch_fraud_rate", fmt.Sprintf("%.1f%%", result.FraudRate*100))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.opts.Interval):
		}
	}
}

func (p *Producer) logFinalStats() {
	s := p.Stats()
	slog.Info("final statistics",
		"batches", s.Batches,
		"transactions", s.Sent,
		"delivered", s.Succeeded,
		"dropped", s.Dropped,
		"fraud", s.Fraud,
		"fraud_rate", fmt.Sprintf("%.2f%%", s.FraudRate()*100))
}
