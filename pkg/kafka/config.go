package kafka

import "time"

type ProducerOption func(*ProducerConfig)

// ProducerConfig mirrors the kafka.Writer knobs the service exposes.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression picks gzip, snappy, lz4, zstd or none.
func WithCompression(name string) ProducerOption {
	return func(c *ProducerConfig) {
		if name != "" {
			c.Compression = name
		}
	}
}

// WithRequiredAcks sets acks; -1 waits for all in-sync replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithBatchSize(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

func WithBatchBytes(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.BatchBytes = n
		}
	}
}

// WithBatchTimeout is the linger before a partial batch is flushed.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if d > 0 {
			c.BatchTimeout = d
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if write > 0 {
			c.WriteTimeout = write
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithAsync makes writes fire-and-forget.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey keeps every key on one partition, preserving its order.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}
