package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig selects the topic carrying finance events.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader builds a consumer-group reader.
func NewKafkaReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
}

// NewKafkaWriter builds a synchronous writer keyed by hospital.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaPublisher writes envelopes to a topic. Messages of one hospital share a
// key and therefore a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(env.HospitalID, 10)),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	})
}

// Close flushes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer feeds a topic into a Dispatcher. Offsets are committed only
// after the event was handled or rejected as permanent, so a transient failure
// holds the partition until it succeeds.
type KafkaConsumer struct {
	reader     MessageReader
	dispatcher Dispatcher
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewKafkaConsumer constructs the consumer.
func NewKafkaConsumer(reader MessageReader, d Dispatcher, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{reader: reader, dispatcher: d, logger: logger, backoff: time.Second, maxBackoff: 30 * time.Second}
}

// WithBackoff overrides the retry delays.
func (c *KafkaConsumer) WithBackoff(initial, max time.Duration) {
	c.backoff = initial
	c.maxBackoff = max
}

// Run consumes until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch kafka message", slog.Any("error", err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}
		if !c.handle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit kafka message", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		}
	}
}

// handle reports false when ctx ended before the message was settled.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	logger := c.logger.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))
	env, err := ParseEnvelope(msg.Value)
	if err != nil {
		logger.Error("discarding malformed message", slog.Any("error", err))
		return true
	}
	delay := c.backoff
	for {
		err := c.dispatcher.Dispatch(ctx, env)
		switch {
		case err == nil:
			return true
		case IsPermanent(err):
			logger.Error("event rejected", slog.String("event_id", env.ID), slog.Any("error", err))
			return true
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return false
		}
		logger.Warn("event failed, retrying", slog.String("event_id", env.ID), slog.Duration("delay", delay), slog.Any("error", err))
		if !sleep(ctx, delay) {
			return false
		}
		delay = min(delay*2, c.maxBackoff)
	}
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
