package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	pkgkafka "CopyFabric/pkg/kafka"
)

// ExecutionsSchema creates the execution journal table.
func ExecutionsSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.executions (
	at DateTime64(3),
	master_id String,
	master_ticket Int64,
	follower_id String,
	login Int64,
	symbol LowCardinality(String),
	action LowCardinality(String),
	status LowCardinality(String),
	message String,
	deal_id Int64,
	price Float64,
	volume Float64,
	profit Float64,
	exec_ms UInt32
) ENGINE = MergeTree
ORDER BY (master_id, master_ticket, at)`, database),
	}
}

// ClickHouseJournal appends every execution report to {db}.executions.
type ClickHouseJournal struct {
	db    *sql.DB
	table string
}

func NewClickHouseJournal(db *sql.DB, database string) *ClickHouseJournal {
	return &ClickHouseJournal{db: db, table: database + ".executions"}
}

func (j *ClickHouseJournal) Name() string { return "clickhouse" }

func (j *ClickHouseJournal) Record(ctx context.Context, reports []models.ExecutionReport) error {
	q, args := journalInsert(j.table, reports)
	if q == "" {
		return nil
	}
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert executions: %w", err)
	}
	return nil
}

func journalInsert(table string, reports []models.ExecutionReport) (string, []any) {
	if len(reports) == 0 {
		return "", nil
	}
	values := make([]string, 0, len(reports))
	args := make([]any, 0, len(reports)*14)
	for _, r := range reports {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.At,
			r.MasterID,
			r.MasterTicket,
			r.FollowerID,
			r.Login,
			r.Symbol,
			string(r.Result.Action),
			string(r.Result.Status),
			r.Result.Message,
			r.Result.DealID,
			r.Result.Price,
			r.Result.Volume,
			r.Result.Profit,
			uint32(r.Result.ExecutionTime.Milliseconds()),
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (at, master_id, master_ticket, follower_id, login, symbol, action, status, message, deal_id, price, volume, profit, exec_ms) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

// BatchPublisher is the producer surface the result publisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaResultPublisher emits execution reports keyed by follower id so each
// follower's results stay ordered within a partition.
type KafkaResultPublisher struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaResultPublisher(producer BatchPublisher, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Name() string { return "kafka" }

func (p *KafkaResultPublisher) Record(ctx context.Context, reports []models.ExecutionReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(reports))
	for i, r := range reports {
		msgs[i] = pkgkafka.Message{Key: []byte(r.FollowerID), Value: r}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}
	return nil
}

// MultiSink fans reports out to every sink. All sinks run even when one
// fails; the errors are joined.
type MultiSink struct {
	sinks []drepo.ResultSink
}

func NewMultiSink(sinks ...drepo.ResultSink) *MultiSink {
	out := make([]drepo.ResultSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func (m *MultiSink) Record(ctx context.Context, reports []models.ExecutionReport) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, reports); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Len() int { return len(m.sinks) }

var (
	_ drepo.ResultSink = (*ClickHouseJournal)(nil)
	_ drepo.ResultSink = (*KafkaResultPublisher)(nil)
	_ drepo.ResultSink = (*MultiSink)(nil)
)
