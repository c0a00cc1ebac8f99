package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	pkgkafka "CopyFabric/pkg/kafka"
)

func report(follower string, status models.Status) models.ExecutionReport {
	return models.ExecutionReport{
		MasterID:     "5012345",
		MasterTicket: 77,
		FollowerID:   follower,
		Login:        7001,
		Symbol:       "EURUSD",
		Result: models.TradeResult{
			AccountID:     "7001",
			Status:        status,
			Action:        models.ActionOpen,
			DealID:        42,
			Volume:        0.18,
			ExecutionTime: 1500 * time.Millisecond,
		},
		At: time.Unix(1_735_689_600, 0).UTC(),
	}
}

func TestJournalInsert(t *testing.T) {
	q, args := journalInsert("copyfabric.executions", []models.ExecutionReport{
		report("u-1", models.StatusSuccess),
		report("u-2", models.StatusFailed),
	})

	assert.True(t, strings.HasPrefix(q, "INSERT INTO copyfabric.executions (at, master_id"))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 28)
	assert.Equal(t, "u-1", args[3])
	assert.Equal(t, "OPEN", args[6])
	assert.Equal(t, "failed", args[21])
	assert.Equal(t, uint32(1500), args[13])

	q, args = journalInsert("x", nil)
	assert.Empty(t, q)
	assert.Nil(t, args)
}

func TestExecutionsSchema(t *testing.T) {
	stmts := ExecutionsSchema("copyfabric")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS copyfabric")
	assert.Contains(t, stmts[1], "copyfabric.executions")
}

type batchRecorder struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (b *batchRecorder) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	b.topic = topic
	b.msgs = append(b.msgs, msgs...)
	return b.err
}

func TestKafkaResultPublisherKeysByFollower(t *testing.T) {
	rec := &batchRecorder{}
	p := NewKafkaResultPublisher(rec, "copyfabric.executions")

	require.NoError(t, p.Record(context.Background(), []models.ExecutionReport{
		report("u-1", models.StatusSuccess),
		report("u-2", models.StatusSkipped),
	}))
	assert.Equal(t, "copyfabric.executions", rec.topic)
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, []byte("u-2"), rec.msgs[1].Key)

	require.NoError(t, p.Record(context.Background(), nil))
	assert.Len(t, rec.msgs, 2)

	rec.err = errors.New("broker down")
	assert.Error(t, p.Record(context.Background(), []models.ExecutionReport{report("u-3", models.StatusSuccess)}))
}

type namedSink struct {
	name  string
	err   error
	calls int
}

func (s *namedSink) Name() string { return s.name }

func (s *namedSink) Record(context.Context, []models.ExecutionReport) error {
	s.calls++
	return s.err
}

func TestMultiSinkRunsEverySink(t *testing.T) {
	a := &namedSink{name: "a", err: errors.New("boom")}
	b := &namedSink{name: "b"}
	m := NewMultiSink(a, nil, b)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "a,b", m.Name())

	err := m.Record(context.Background(), []models.ExecutionReport{report("u-1", models.StatusSuccess)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	var empty drepo.ResultSink = NewMultiSink()
	assert.NoError(t, empty.Record(context.Background(), nil))
}
