// Command producer ships generated transactions from the API to the durable
// Kafka stream, batch by batch, with enrichment and delivery statistics.
//
// Usage:
//
//	go run ./cmd/producer test
//	go run ./cmd/producer stream [flags]
//
// Subcommands:
//
//	test    run the connectivity self-test and send one transaction
//	stream  run the continuous shipping loop (default)
//
// Flags (stream):
//
//	-batch     transactions per batch (default: 10)
//	-interval  seconds between batches (default: 5)
//	-max       stop after this many batches; 0 = unbounded (default: 0)
//
// Environment (a .env file in the working directory is honoured):
//
//	KAFKA_BROKERS         comma-separated broker list (default: localhost:9092)
//	KAFKA_TOPIC           destination topic (default: transactions)
//	TRANSACTION_API_URL   base URL of the API (default: http://localhost:8000)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"harborbank/txstream/internal/producer"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Optional: local development keeps credentials and endpoints in .env.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	brokers := strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := envOr("KAFKA_TOPIC", "transactions")
	apiURL := envOr("TRANSACTION_API_URL", "http://localhost:8000")

	args := os.Args[1:]
	command := "stream"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	source := producer.NewAPIClient(apiURL)
	stream := producer.NewKafkaStream(brokers, topic)
	defer stream.Close()

	slog.Info("producer initialised", "brokers", brokers, "topic", topic, "api_url", apiURL)

	switch command {
	case "test":
		if err := runTest(source, stream, topic); err != nil {
			slog.Error("test failed", "error", err)
			os.Exit(1)
		}
	case "stream":
		if err := runStream(args, source, stream, topic); err != nil {
			slog.Error("streaming failed", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "usage: producer [test|stream] [flags]\n")
		os.Exit(2)
	}
}

// runTest verifies connectivity end to end: self-test, then one real
// transaction through the full enrich-and-ship path.
func runTest(source *producer.APIClient, stream *producer.KafkaStream, topic string) error {
	p := producer.New(source, stream, producer.Options{BatchSize: 1, StreamName: topic})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.SelfTest(ctx); err != nil {
		return err
	}

	txns, err := source.FetchBatch(ctx, 1)
	if err != nil {
		return fmt.Errorf("fetch test transaction: %w", err)
	}

	result := p.SendBatch(ctx, txns)
	if result.Dropped > 0 {
		return fmt.Errorf("test transaction was not delivered")
	}
	slog.Info("single transaction test successful", "transaction_id", txns[0].TransactionID)
	return nil
}

// runStream runs the continuous shipping loop until interrupted.
func runStream(args []string, source *producer.APIClient, stream *producer.KafkaStream, topic string) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	batch := fs.Int("batch", 10, "transactions per batch")
	interval := fs.Int("interval", 5, "seconds between batches")
	max := fs.Int("max", 0, "maximum batches (0 = unbounded)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := producer.New(source, stream, producer.Options{
		BatchSize:  *batch,
		Interval:   time.Duration(*interval) * time.Second,
		MaxBatches: *max,
		StreamName: topic,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return p.Run(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
