package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "CopyFabric/pkg/logger"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *applogger.Logger
	Registerer  prometheus.Registerer
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

// WithConsumerWorkers sets the number of lanes. A partition always maps to
// the same lane, so per-partition order survives any count.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRetry configures handler retries and the backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ parks messages that exhausted their retries on topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

// WithConsumerRegisterer registers the consumer metrics on reg instead of
// the default registry.
func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) { c.Registerer = reg }
}

// Consumer reads registered topics through a consumer group and hands each
// message to its topic handler. Offsets are committed only after the handler
// succeeded or the message was parked on the DLQ.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message
	dlq      *kafka.Writer
	hook     ConsumerHook
	log      *applogger.Logger
	metrics  *consumerMetrics

	ctx      context.Context
	cancel   context.CancelFunc
	readWG   sync.WaitGroup
	laneWG   sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "copyfabric",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		hook:     NoopHook{},
		log:      cfg.Logger,
		metrics:  newConsumerMetrics(cfg.Registerer),
		ctx:      ctx,
		cancel:   cancel,
	}
	if c.log == nil {
		c.log = applogger.Nop()
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}
	return c, nil
}

// WithConsumerHook replaces the lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds handler to its topic. The first registration wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}

	c.lanes = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.laneWG.Add(1)
		go c.runLane(c.lanes[i])
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.readWG.Add(1)
		go c.read(topic, r)
	}

	c.log.Info("kafka consumer: started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("lanes", len(c.lanes)),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop halts fetching, lets the lanes finish what they hold and closes the
// readers. It returns ctx's error if the lanes do not drain in time.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.log.Info("kafka consumer: stopping")
		c.cancel()
		c.readWG.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		done := make(chan struct{})
		go func() {
			c.laneWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: drain: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close dlq", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("kafka consumer: stopped")
		}
	})
	return err
}

func (c *Consumer) read(topic string, r *kafka.Reader) {
	defer c.readWG.Done()
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Error("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			if !sleepCtx(c.ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}

		lane := c.lanes[laneFor(km.Partition, len(c.lanes))]
		select {
		case lane <- km:
			c.metrics.depth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.ctx.Done():
			return
		}
	}
}

func laneFor(partition, lanes int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % lanes
}

func (c *Consumer) runLane(in <-chan kafka.Message) {
	defer c.laneWG.Done()
	for km := range in {
		c.process(km)
	}
}

func (c *Consumer) process(km kafka.Message) {
	handler, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	err := c.handleWithRetry(handler, km)

	commit := err == nil
	if err != nil {
		c.metrics.failed.WithLabelValues(km.Topic).Inc()
		c.log.Error("kafka consumer: handle failed",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Error(err),
		)
		commit = c.park(km, err)
	}
	if commit {
		c.commit(km)
	}
	c.metrics.latency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(handler MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	for attempt := 1; ; attempt++ {
		ctx, hkm, data, berr := c.hook.BeforeHandle(context.Background(), km.Topic, km, km.Value)
		if berr != nil {
			return berr
		}
		err = handler.Handle(ctx, data)
		c.hook.AfterHandle(ctx, km.Topic, hkm, data, err)
		if err == nil {
			return nil
		}
		c.hook.OnError(ctx, km.Topic, hkm, data, err)
		if attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepCtx(c.ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return err
		}
	}
}

// park writes km to the DLQ and reports whether its offset may be committed.
func (c *Consumer) park(km kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.log.Error("kafka consumer: dlq write", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka consumer: commit", applogger.String("topic", km.Topic), applogger.Int64("offset", km.Offset), applogger.Error(err))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffWithJitter doubles from min per attempt, caps at max and shaves
// up to half off.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

type consumerMetrics struct {
	depth   *prometheus.GaugeVec
	latency *prometheus.HistogramVec
	failed  *prometheus.CounterVec
}

var (
	defaultConsumerMetrics     *consumerMetrics
	defaultConsumerMetricsOnce sync.Once
)

// newConsumerMetrics registers on reg, or once on the default registry.
func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		defaultConsumerMetricsOnce.Do(func() {
			defaultConsumerMetrics = buildConsumerMetrics(prometheus.DefaultRegisterer)
		})
		return defaultConsumerMetrics
	}
	return buildConsumerMetrics(reg)
}

func buildConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		depth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "copyfabric_kafka_consumer_lane_depth",
			Help: "Messages waiting in a consumer lane",
		}, []string{"topic"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "copyfabric_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "copyfabric_kafka_consumer_failed_total",
			Help: "Messages that exhausted their retries",
		}, []string{"topic"}),
	}
}
