package producer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"
)

// ErrStreamUnreachable is returned when the destination stream cannot be
// described. Like ErrSourceUnreachable, it fails the pre-flight self-test.
var ErrStreamUnreachable = errors.New("destination stream unreachable")

// Record is one (partition key, opaque payload) pair bound for the stream.
type Record struct {
	Key   []byte
	Value []byte
}

// StreamWriter is the append-only write interface to the durable
// partitioned stream. Put returns one error slot per record — nil means the
// record was accepted; non-nil means it was rejected and may be retried.
type StreamWriter interface {
	Put(ctx context.Context, records []Record) []error
	// Describe confirms the stream exists and returns its shard count.
	Describe(ctx context.Context) (shards int, err error)
	// Shards returns the shard identifiers observed on recent writes.
	Shards() []string
	Close() error
}

// ─── Kafka implementation ─────────────────────────────────────────────────────

// KafkaStream writes records to a Kafka topic. The hash balancer routes each
// record by its key, so records sharing an account ID land on the same
// partition and keep their relative order.
type KafkaStream struct {
	writer  *kafka.Writer
	brokers []string
	topic   string

	mu   sync.Mutex
	seen map[int]bool // partitions observed via the completion callback
}

// NewKafkaStream creates a stream writer for the given brokers and topic.
func NewKafkaStream(brokers []string, topic string) *KafkaStream {
	ks := &KafkaStream{
		brokers: brokers,
		topic:   topic,
		seen:    make(map[int]bool),
	}
	ks.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Completion:   ks.recordPartitions,
	}
	return ks
}

// Put writes the batch in one call. kafka-go reports partial failure as a
// WriteErrors slice aligned with the input; a transport-level failure marks
// every record failed.
func (ks *KafkaStream) Put(ctx context.Context, records []Record) []error {
	msgs := make([]kafka.Message, len(records))
	for i, rec := range records {
		msgs[i] = kafka.Message{Key: rec.Key, Value: rec.Value}
	}

	results := make([]error, len(records))
	err := ks.writer.WriteMessages(ctx, msgs...)
	if err == nil {
		return results
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for i := range writeErrs {
			if writeErrs[i] != nil {
				results[i] = writeErrs[i]
			}
		}
		return results
	}

	for i := range results {
		results[i] = err
	}
	return results
}

// Describe dials the first broker and counts the topic's partitions,
// confirming both connectivity and topic existence.
func (ks *KafkaStream) Describe(ctx context.Context) (int, error) {
	conn, err := kafka.DialContext(ctx, "tcp", ks.brokers[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStreamUnreachable, err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(ks.topic)
	if err != nil {
		return 0, fmt.Errorf("%w: read partitions for %q: %v", ErrStreamUnreachable, ks.topic, err)
	}
	if len(partitions) == 0 {
		return 0, fmt.Errorf("%w: topic %q has no partitions", ErrStreamUnreachable, ks.topic)
	}
	return len(partitions), nil
}

// Shards returns the partition identifiers seen on recent writes.
func (ks *KafkaStream) Shards() []string {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ids := make([]string, 0, len(ks.seen))
	for p := range ks.seen {
		ids = append(ids, strconv.Itoa(p))
	}
	return ids
}

// Close flushes and closes the underlying writer.
func (ks *KafkaStream) Close() error {
	return ks.writer.Close()
}

// recordPartitions is the writer's completion callback; it notes which
// partitions successfully written messages landed on.
func (ks *KafkaStream) recordPartitions(messages []kafka.Message, err error) {
	if err != nil {
		return
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for i := range messages {
		ks.seen[messages[i].Partition] = true
	}
}
