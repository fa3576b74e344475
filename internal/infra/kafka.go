package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// ErrKafkaDisabled is returned by a consumer built without brokers.
var ErrKafkaDisabled = errors.New("kafka disabled")

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// kafkaErrorLogger routes kafka-go's internal errors into slog.
func kafkaErrorLogger(logger *slog.Logger) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...interface{}) {
		logger.Warn(fmt.Sprintf(msg, args...), "component", "kafka")
	})
}

// KafkaProducer publishes keyed messages. Messages sharing a key land on the
// same partition, which keeps one wallet's or tournament's events ordered.
// A disabled producer accepts and drops everything.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer returns a disabled producer when enabled is false or
// brokers is empty.
func NewKafkaProducer(brokers string, enabled bool, logger *slog.Logger) *KafkaProducer {
	addrs := brokerList(brokers)
	if !enabled || len(addrs) == 0 {
		logger.Info("kafka producer disabled")
		return &KafkaProducer{}
	}

	logger.Info("kafka producer initialized", "brokers", addrs)
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compress.Snappy,
		AllowAutoTopicCreation: true,
		ErrorLogger:            kafkaErrorLogger(logger),
	}}
}

// Enabled reports whether messages actually reach a broker.
func (p *KafkaProducer) Enabled() bool { return p.writer != nil }

// Publish writes one message and waits for all in-sync replicas.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it.
func (p *KafkaProducer) PublishJSON(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return p.Publish(ctx, topic, []byte(key), data)
}

// Close flushes pending writes.
func (p *KafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// KafkaConsumer reads one topic as a member of a consumer group.
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaConsumer returns a disabled consumer when enabled is false or
// brokers is empty. A new group starts from the oldest retained offset.
func NewKafkaConsumer(brokers, topic, groupID string, enabled bool, logger *slog.Logger) *KafkaConsumer {
	addrs := brokerList(brokers)
	if !enabled || len(addrs) == 0 {
		return &KafkaConsumer{}
	}

	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     addrs,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10 << 20,
			MaxWait:     time.Second,
			StartOffset: kafka.FirstOffset,
			ErrorLogger: kafkaErrorLogger(logger),
		}),
	}
}

// Consume hands messages to handle until ctx ends or handle fails. An offset
// is committed only after its message was handled, so a crash replays it.
func (c *KafkaConsumer) Consume(ctx context.Context, handle func(kafka.Message) error) error {
	if c.reader == nil {
		return ErrKafkaDisabled
	}
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := handle(msg); err != nil {
			return fmt.Errorf("handle %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
	}
}

// Close leaves the consumer group.
func (c *KafkaConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
