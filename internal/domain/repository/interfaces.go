package repository

import (
	"context"

	"CopyFabric/internal/domain/models"
)

// TicketStore keeps master→follower ticket mappings and closed master tickets.
type TicketStore interface {
	// FollowerTicket returns the mapped follower ticket; ok is false when absent.
	FollowerTicket(ctx context.Context, masterTicket int64, followerID string) (ticket int64, ok bool, err error)
	SaveFollowerTicket(ctx context.Context, masterTicket int64, followerID string, followerTicket int64) error
	IsClosed(ctx context.Context, masterID string, masterTicket int64) (bool, error)
	MarkClosed(ctx context.Context, masterID string, masterTicket int64) error
}

// SubscriptionSource lists the active followers of a master.
type SubscriptionSource interface {
	Followers(ctx context.Context, masterID string) ([]models.FollowerConfig, error)
}

// ResultSink receives execution reports after a dispatch completes.
type ResultSink interface {
	Name() string
	Record(ctx context.Context, reports []models.ExecutionReport) error
}

type Metrics interface {
	RecordJob(action, status string, seconds float64)
	RecordSignal(outcome string)
	RecordQueueDepth(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
