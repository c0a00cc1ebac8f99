package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Value is sent as-is when it is []byte
// or string and JSON-encoded otherwise.
type Message struct {
	Key   []byte
	Value any
}

// Producer writes to any topic through one shared kafka.Writer.
type Producer struct {
	writer  *kafka.Writer
	comp    string
	metrics *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               bal,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            parseCompression(cfg.Compression),
			MaxAttempts:            cfg.MaxAttempts,
			WriteTimeout:           cfg.WriteTimeout,
			ReadTimeout:            cfg.ReadTimeout,
			BatchSize:              cfg.BatchSize,
			BatchBytes:             int64(cfg.BatchBytes),
			BatchTimeout:           cfg.BatchTimeout,
			Async:                  cfg.Async,
			AllowAutoTopicCreation: true,
		},
		comp:    cfg.Compression,
		metrics: sharedProducerMetrics(),
	}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage publishes an unkeyed payload; it is the log collector's
// Publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload any) error {
	return p.Publish(ctx, topic, nil, payload)
}

// PublishBatch writes messages in one call. Keys route through the
// balancer, so with hashing on one key stays on one partition.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := start.UTC()

	out := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("kafka producer: %s: %w", topic, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now}
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, out...)
	p.metrics.observe(topic, p.comp, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka producer: %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	}
	return kafka.Gzip
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerMetricsOnce sync.Once
	producerMetricsInst *producerMetrics
)

func sharedProducerMetrics() *producerMetrics {
	producerMetricsOnce.Do(func() {
		producerMetricsInst = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "copyfabric_kafka_producer_messages_total",
				Help: "Messages published to Kafka",
			}, []string{"topic", "compression", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "copyfabric_kafka_producer_bytes_total",
				Help: "Payload bytes published",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "copyfabric_kafka_producer_publish_seconds",
				Help:    "Publish latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return producerMetricsInst
}

func (m *producerMetrics) observe(topic, comp string, size int64, n int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, comp, result).Add(float64(n))
	m.bytes.WithLabelValues(topic).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
