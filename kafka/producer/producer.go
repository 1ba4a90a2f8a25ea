package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/watchmen-go/kernel/kafka"
	"github.com/watchmen-go/kernel/logger"
)

// MessageWriter is the subset of kafka-go's Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer wraps a kafka-go Writer with TLS/SASL, retries, and kernel logging.
type Producer struct {
	writer  MessageWriter
	cfg     kafka.Config
	log     *logger.Logger
	backoff time.Duration
	mu      sync.RWMutex
	closed  bool
}

// NewProducer creates a new Kafka producer with eager initialization.
func NewProducer(cfg kafka.Config, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}

	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}

	p := &Producer{cfg: cfg, log: log.WithComponent("kafka.producer"), backoff: 100 * time.Millisecond}
	w, err := p.newWriter()
	if err != nil {
		return nil, err
	}
	p.writer = w
	return p, nil
}

// NewWithWriter creates a producer over an existing writer.
func NewWithWriter(cfg kafka.Config, w MessageWriter, log *logger.Logger) *Producer {
	cfg.ApplyDefaults()
	return &Producer{cfg: cfg, writer: w, log: log.WithComponent("kafka.producer"), backoff: 100 * time.Millisecond}
}

func (p *Producer) newWriter() (*kafkago.Writer, error) {
	transport, err := kafka.NewTransport(&p.cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer transport: %w", err)
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(p.cfg.Brokers...),
		Transport:    transport,
		Balancer:     &kafkago.Hash{},
		BatchSize:    p.cfg.BatchSize,
		BatchTimeout: kafka.ParseDuration(p.cfg.BatchTimeout),
		RequiredAcks: kafkago.RequiredAcks(p.cfg.RequiredAcks),
		Compression:  kafka.Compression(p.cfg.Compression),
		WriteTimeout: kafka.ParseDuration(p.cfg.WriteTimeout),
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			p.log.Error("writer: "+msg, map[string]interface{}{
				"args": fmt.Sprintf("%v", args),
			})
		}),
	}

	p.log.Info("Kafka producer initialized", map[string]interface{}{
		"brokers":     p.cfg.Brokers,
		"topic":       p.cfg.Topic,
		"compression": p.cfg.Compression,
	})
	return w, nil
}

// Topic returns the configured default topic.
func (p *Producer) Topic() string { return p.cfg.Topic }

// WriteMessages sends one or more messages to Kafka with retry logic.
// Non-retryable broker errors are returned immediately.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		err := p.writer.WriteMessages(ctx, msgs...)
		if err == nil {
			return nil
		}
		lastErr = err
		if kafka.Classify(err) == kafka.ClassRejected {
			return kafka.FromKafka(err, msgs[0].Topic)
		}
		if attempt < p.cfg.Retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.backoff):
			}
		}
	}
	return kafka.FromKafka(fmt.Errorf("write after %d retries: %w", p.cfg.Retries, lastErr), msgs[0].Topic)
}

// Close shuts down the producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("Kafka producer closing")
	return p.writer.Close()
}

// SendJSON marshals value as JSON and sends it to the given topic with the given key.
func (p *Producer) SendJSON(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	return p.WriteMessages(ctx, msg)
}
