package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/middleware"
	"CopyFabric/internal/repository"
	"CopyFabric/pkg/coord"
	"CopyFabric/pkg/logger"
)

type failingDispatcher struct{ err error }

func (d failingDispatcher) Dispatch(context.Context, models.Signal) ([]models.TradeResult, error) {
	return nil, d.err
}

type hookMetrics struct {
	mu        sync.Mutex
	latencies map[string]int
	errors    map[string]int
}

func newHookMetrics() *hookMetrics {
	return &hookMetrics{latencies: map[string]int{}, errors: map[string]int{}}
}

func (m *hookMetrics) RecordJob(string, string, float64) {}
func (m *hookMetrics) RecordSignal(string)               {}
func (m *hookMetrics) RecordQueueDepth(int)              {}

func (m *hookMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *hookMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	m.latencies[op]++
	m.mu.Unlock()
}

func newKafkaHandler(t *testing.T, d SignalDispatcher) (*KafkaSignalsHandler, *repository.CoordTicketStore) {
	t.Helper()
	store := coord.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	tickets := repository.NewCoordTicketStore(store, 0)
	return NewKafkaSignalsHandler("copyfabric.signals", middleware.NewSignalGate(tickets, nil), d), tickets
}

func TestKafkaHandlerAcksDroppedSignals(t *testing.T) {
	d := newRecordingDispatcher()
	h, tickets := newKafkaHandler(t, d)
	require.NoError(t, tickets.MarkClosed(context.Background(), "m1", 3))

	assert.Equal(t, "copyfabric.signals", h.Topic())
	assert.NoError(t, h.Handle(context.Background(), []byte(`not json`)))
	assert.NoError(t, h.Handle(context.Background(), payload("m1", 1, "OPEN", time.Now().Add(-2*time.Minute))))
	assert.NoError(t, h.Handle(context.Background(), payload("m1", 3, "OPEN", time.Now())))
	assert.Empty(t, d.tickets("m1"))

	require.NoError(t, h.Handle(context.Background(), payload("m1", 4, "OPEN", time.Now())))
	assert.Equal(t, []int64{4}, d.tickets("m1"))
}

func TestKafkaHandlerRetriesDispatchFailure(t *testing.T) {
	boom := errors.New("queue closed")
	h, _ := newKafkaHandler(t, failingDispatcher{err: boom})

	err := h.Handle(context.Background(), payload("m1", 1, "CLOSE", time.Now()))
	assert.ErrorIs(t, err, boom)
}

func TestSignalHookRecords(t *testing.T) {
	m := newHookMetrics()
	hook := NewSignalHook(m, logger.Nop())
	km := kafka.Message{Partition: 2, Offset: 41, Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}}

	ctx, _, _, err := hook.BeforeHandle(context.Background(), "copyfabric.signals", km, nil)
	require.NoError(t, err)
	hook.AfterHandle(ctx, "copyfabric.signals", km, nil, nil)
	hook.OnError(ctx, "copyfabric.signals", km, nil, errors.New("x"))

	assert.Equal(t, 1, m.latencies["kafka_signal_seconds"])
	assert.Equal(t, 1, m.errors["kafka_signal"])
}
