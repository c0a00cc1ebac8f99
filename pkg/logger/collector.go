package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships folded log batches, typically to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct entry and how often it was seen.
type AggregatedLogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// LogCollector folds identical entries (level, message, fields, caller)
// and publishes them on a timer or when CountThreshold distinct entries
// have piled up.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry

	stop     chan struct{}
	loopDone sync.WaitGroup
	inflight sync.WaitGroup
	once     sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[string]*AggregatedLogEntry),
		stop:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	c.loopDone.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]any, caller string) {
	now := time.Now().UTC()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level: level, Message: message, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// Pending is the number of distinct entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close flushes what is left and waits for outstanding publishes.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.loopDone.Wait()
		c.inflight.Wait()
	})
}

func entryKey(level, message string, fields map[string]any, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, message, caller)
	for _, k := range keys {
		v, _ := json.Marshal(fields[k])
		fmt.Fprintf(h, "\x00%s=%s", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *LogCollector) loop() {
	defer c.loopDone.Done()
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		c.flushLocked()
		c.mu.Unlock()
	}
}

func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish failed: %v\n", err)
		}
	}()
}
