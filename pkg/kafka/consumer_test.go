package kafka

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneForKeepsPartitionOnOneLane(t *testing.T) {
	for p := 0; p < 16; p++ {
		assert.Equal(t, laneFor(p, 4), laneFor(p, 4))
		assert.Less(t, laneFor(p, 4), 4)
	}
	assert.Equal(t, 0, laneFor(7, 1))
	assert.Equal(t, 1, laneFor(-1, 3))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Greater(t, d, time.Duration(0))
	}
	d := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, d, min/2)
	assert.LessOrEqual(t, d, min)
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	require.Error(t, err)
}

func TestConsumerStartNeedsHandler(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	require.Error(t, c.Start())
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression(""))
}
