package usecase

import (
	"context"
	"fmt"
	"time"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/pkg/logger"
	"CopyFabric/pkg/metrics"
)

// JobSubmitter queues a job and returns where its result will arrive.
type JobSubmitter interface {
	Submit(ctx context.Context, job models.TradeJob) (<-chan models.TradeResult, error)
}

// Dispatcher fans one signal out to the master's followers and collects
// their results.
type Dispatcher struct {
	subs    drepo.SubscriptionSource
	tickets drepo.TicketStore
	pool    JobSubmitter
	sink    drepo.ResultSink
	metrics drepo.Metrics
	log     *logger.Logger
	maxLag  time.Duration
	now     func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithResultSink receives the execution reports of every dispatch.
func WithResultSink(s drepo.ResultSink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

// WithMaxLag skips followers whose job would start later than d after the
// signal time. Zero disables the guard.
func WithMaxLag(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) { x.maxLag = d }
}

func WithDispatcherLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithDispatcherMetrics(m drepo.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(subs drepo.SubscriptionSource, tickets drepo.TicketStore, pool JobSubmitter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		subs:    subs,
		tickets: tickets,
		pool:    pool,
		metrics: metrics.Noop{},
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type pending struct {
	job models.TradeJob
	ch  <-chan models.TradeResult
	res *models.TradeResult
}

// Dispatch runs sig for every follower and waits for all of their results.
// Results come back in follower order.
func (d *Dispatcher) Dispatch(ctx context.Context, sig models.Signal) ([]models.TradeResult, error) {
	start := time.Now()
	followers, err := d.subs.Followers(ctx, sig.MasterID)
	if err != nil {
		d.metrics.RecordError("subscriptions")
		return nil, fmt.Errorf("resolve followers of %s: %w", sig.MasterID, err)
	}
	log := d.log.With(
		logger.String("master_id", sig.MasterID),
		logger.Int64("ticket", sig.Ticket),
		logger.String("action", string(sig.Action)),
	)
	if len(followers) == 0 {
		log.Debug("no followers")
		return nil, nil
	}

	batch := make([]*pending, 0, len(followers))
	for _, f := range followers {
		if sig.Action != models.ActionOpen && f.TargetTicket == 0 {
			f.TargetTicket = d.hint(ctx, sig.Ticket, f.FollowerID)
		}
		p := &pending{job: models.NewTradeJob(sig, f)}
		batch = append(batch, p)

		if d.maxLag > 0 {
			if lag := d.now().Sub(sig.Time()); lag > d.maxLag {
				res := FailureResult(p.job, models.NewTradeError(models.ErrKindLag,
					fmt.Sprintf("SKIPPED: Dispatch Lag %s", lag.Truncate(time.Millisecond)), nil))
				p.res = &res
				continue
			}
		}
		ch, err := d.pool.Submit(ctx, p.job)
		if err != nil {
			res := FailureResult(p.job, models.NewTradeError(models.ErrKindBusy, "Not Queued: "+err.Error(), err))
			p.res = &res
			continue
		}
		p.ch = ch
	}

	results := make([]models.TradeResult, 0, len(batch))
	reports := make([]models.ExecutionReport, 0, len(batch))
	var waitErr error
	for _, p := range batch {
		if p.res == nil {
			select {
			case res := <-p.ch:
				p.res = &res
			case <-ctx.Done():
				waitErr = ctx.Err()
			}
		}
		if p.res == nil {
			continue
		}
		results = append(results, *p.res)
		reports = append(reports, models.NewExecutionReport(p.job, *p.res))
	}

	d.record(ctx, log, reports)
	d.metrics.RecordLatency("dispatch_seconds", time.Since(start).Seconds())
	log.Info("signal dispatched",
		logger.Int("followers", len(followers)),
		logger.Int("results", len(results)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return results, waitErr
}

// hint looks up the follower's mapped ticket so the worker can skip the map read.
func (d *Dispatcher) hint(ctx context.Context, masterTicket int64, followerID string) int64 {
	if d.tickets == nil {
		return 0
	}
	ticket, ok, err := d.tickets.FollowerTicket(ctx, masterTicket, followerID)
	if err != nil {
		d.log.Warn("ticket hint lookup failed", logger.String("follower_id", followerID), logger.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	return ticket
}

func (d *Dispatcher) record(ctx context.Context, log *logger.Logger, reports []models.ExecutionReport) {
	if d.sink == nil || len(reports) == 0 {
		return
	}
	if err := d.sink.Record(context.WithoutCancel(ctx), reports); err != nil {
		d.metrics.RecordError("result_sink")
		log.Error("result sink failed", logger.String("sink", d.sink.Name()), logger.Error(err))
	}
}
