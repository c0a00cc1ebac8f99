package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CopyFabric/internal/domain/models"
	domrepo "CopyFabric/internal/domain/repository"
	"CopyFabric/pkg/logger"
	"CopyFabric/pkg/metrics"
)

// Drop reasons, also used as metric outcomes.
var (
	ErrMalformed     = errors.New("malformed signal")
	ErrStale         = errors.New("stale signal")
	ErrAlreadyClosed = errors.New("master ticket already closed")
)

const DefaultMaxSignalAge = 60 * time.Second

// SignalGate sits between the signal sources and the dispatcher. It parses,
// validates, drops stale signals and suppresses OPENs for tickets the master
// has already closed.
type SignalGate struct {
	tickets domrepo.TicketStore
	metrics domrepo.Metrics
	log     *logger.Logger
	maxAge  time.Duration
	now     func() time.Time
}

type GateOption func(*SignalGate)

// WithMaxAge sets the staleness threshold.
func WithMaxAge(d time.Duration) GateOption {
	return func(g *SignalGate) {
		if d > 0 {
			g.maxAge = d
		}
	}
}

func WithClock(now func() time.Time) GateOption {
	return func(g *SignalGate) { g.now = now }
}

func WithGateLogger(l *logger.Logger) GateOption {
	return func(g *SignalGate) { g.log = l }
}

func NewSignalGate(tickets domrepo.TicketStore, m domrepo.Metrics, opts ...GateOption) *SignalGate {
	if m == nil {
		m = metrics.Noop{}
	}
	g := &SignalGate{
		tickets: tickets,
		metrics: m,
		log:     logger.Nop(),
		maxAge:  DefaultMaxSignalAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit decodes a channel payload and applies Check.
func (g *SignalGate) Admit(ctx context.Context, payload []byte) (models.Signal, error) {
	sig, err := models.ParseSignal(payload)
	if err != nil {
		g.metrics.RecordSignal("malformed")
		g.log.Warn("signal rejected", logger.String("reason", "malformed"), logger.Error(err))
		return models.Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return sig, g.Check(ctx, sig)
}

// Check filters a decoded signal. A nil error means it should be dispatched.
func (g *SignalGate) Check(ctx context.Context, sig models.Signal) error {
	if err := sig.Validate(); err != nil {
		g.metrics.RecordSignal("malformed")
		g.log.Warn("signal rejected", logger.String("reason", "malformed"), logger.Error(err))
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	age := sig.Age(g.now())
	g.metrics.RecordLatency("signal_age_seconds", age.Seconds())
	if age > g.maxAge {
		g.metrics.RecordSignal("stale")
		g.log.Warn("stale signal dropped",
			logger.String("master_id", sig.MasterID),
			logger.Int64("ticket", sig.Ticket),
			logger.String("action", string(sig.Action)),
			logger.Duration("age", age),
		)
		return fmt.Errorf("%w: %s old", ErrStale, age.Truncate(time.Millisecond))
	}

	if sig.Action == models.ActionOpen && g.tickets != nil {
		closed, err := g.tickets.IsClosed(ctx, sig.MasterID, sig.Ticket)
		if err != nil {
			g.metrics.RecordError("closed_set_lookup")
			g.log.Warn("closed set lookup failed", logger.Error(err))
		} else if closed {
			g.metrics.RecordSignal("closed")
			g.log.Info("open for closed ticket dropped",
				logger.String("master_id", sig.MasterID),
				logger.Int64("ticket", sig.Ticket),
			)
			return ErrAlreadyClosed
		}
	}

	g.metrics.RecordSignal("accepted")
	return nil
}
