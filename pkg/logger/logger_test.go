package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestFieldsRenderTyped(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{zl: zerolog.New(&buf)}
	l.With(String("component", "executor")).Info("trade done",
		Int64("ticket", 42),
		Float64("volume", 0.37),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
		Error(nil),
	)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "executor", got["component"])
	assert.Equal(t, float64(42), got["ticket"])
	assert.Equal(t, 0.37, got["volume"])
	assert.Equal(t, float64(1500), got["took"])
	assert.Equal(t, "boom", got["error"])
	assert.Equal(t, "trade done", got["message"])
}

func TestCollectorFoldsErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("order rejected", String("follower", "u-1"))
	}
	l.Error("order rejected", String("follower", "u-2"))
	l.Warn("not collected")
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()
	require.Len(t, pub.batches, 1)
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["follower"].(string)] = e.Count
		assert.True(t, strings.HasPrefix(e.Caller, "pkg/logger/logger_test.go:"), e.Caller)
	}
	assert.Equal(t, map[string]int{"u-1": 3, "u-2": 1}, counts)
}

func TestCollectorThresholdFlushes(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	c.AddLog("error", "a", nil, "x:1")
	c.AddLog("error", "b", nil, "x:2")
	assert.Equal(t, 0, c.Pending())
	c.Close()
	c.Close()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}
