package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
)

const defaultWriteTimeout = 10 * time.Second

// Message is one record to publish. Value is encoded as JSON.
type Message struct {
	Key   string
	Value any
	Time  time.Time
}

// messageWriter is the subset of *kafkago.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes JSON messages to one topic.
//
// Thread Safety: All methods are safe for concurrent use.
type Producer struct {
	writer messageWriter
	topic  string

	mu     sync.RWMutex
	closed bool
}

// Connect creates a producer for cfg.Topic on cfg.Brokers.
//
// kafka-go dials lazily, so no network traffic happens until the first
// Publish. Returns ErrDisabled when Kafka is not enabled.
func Connect(cfg config.KafkaConfig) (*Producer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		WriteTimeout: defaultWriteTimeout,
		Async:        false,
	}
	return newProducer(w, cfg.Topic), nil
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

// Topic returns the topic this producer writes to.
func (p *Producer) Topic() string {
	return p.topic
}

// Publish encodes and writes msgs in one batch. Nothing is written if any
// value fails to encode.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	out := make([]kafkago.Message, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m.Value)
		if err != nil {
			return fmt.Errorf("%w: encoding %q: %w", ErrPublishFailed, m.Key, err)
		}
		ts := m.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		out = append(out, kafkago.Message{Key: []byte(m.Key), Value: value, Time: ts})
	}

	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close flushes and closes the writer. Safe to call more than once.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
