package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/internal/middleware"
	"CopyFabric/pkg/coord"
	"CopyFabric/pkg/logger"
	"CopyFabric/pkg/metrics"
)

// SignalDispatcher is what admitted signals are handed to.
type SignalDispatcher interface {
	Dispatch(ctx context.Context, sig models.Signal) ([]models.TradeResult, error)
}

const (
	maxResubscribeBackoff = time.Second
	defaultLaneBuffer     = 256
)

// Ingestor subscribes to every master's signal channel and feeds admitted
// signals to the dispatcher. Each master gets its own lane so its signals
// are dispatched in publish order while masters proceed independently.
type Ingestor struct {
	store      coord.Store
	gate       *middleware.SignalGate
	dispatcher SignalDispatcher
	metrics    drepo.Metrics
	log        *logger.Logger
	pattern    string
	laneBuffer int

	mu    sync.Mutex
	lanes map[string]chan models.Signal
	wg    sync.WaitGroup
}

type IngestorOption func(*Ingestor)

func WithIngestorLogger(l *logger.Logger) IngestorOption {
	return func(i *Ingestor) { i.log = l }
}

func WithIngestorMetrics(m drepo.Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

// WithPattern overrides the channel pattern, signals:master:* by default.
func WithPattern(p string) IngestorOption {
	return func(i *Ingestor) { i.pattern = p }
}

func WithLaneBuffer(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.laneBuffer = n
		}
	}
}

func NewIngestor(store coord.Store, gate *middleware.SignalGate, dispatcher SignalDispatcher, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		store:      store,
		gate:       gate,
		dispatcher: dispatcher,
		metrics:    metrics.Noop{},
		log:        logger.Nop(),
		pattern:    coord.SignalChannelGlob,
		laneBuffer: defaultLaneBuffer,
		lanes:      make(map[string]chan models.Signal),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run consumes until ctx is done, resubscribing after store errors. Lanes
// finish the signals already admitted before Run returns.
func (i *Ingestor) Run(ctx context.Context) error {
	defer i.closeLanes()

	backoff := 50 * time.Millisecond
	for {
		msgs, err := i.store.Subscribe(ctx, i.pattern)
		if err == nil {
			i.log.Info("subscribed", logger.String("pattern", i.pattern))
			backoff = 50 * time.Millisecond
			i.consume(ctx, msgs)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("subscription closed")
		}
		i.metrics.RecordError("signal_subscription")
		i.log.Warn("signal subscription interrupted", logger.Error(err), logger.Duration("backoff", backoff))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if backoff *= 2; backoff > maxResubscribeBackoff {
			backoff = maxResubscribeBackoff
		}
	}
}

func (i *Ingestor) consume(ctx context.Context, msgs <-chan coord.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			i.Handle(ctx, msg.Payload)
		}
	}
}

// Handle admits one raw payload and queues it on its master's lane.
func (i *Ingestor) Handle(ctx context.Context, payload []byte) {
	sig, err := i.gate.Admit(ctx, payload)
	if err != nil {
		return
	}
	lane := i.lane(ctx, sig.MasterID)
	select {
	case lane <- sig:
	case <-ctx.Done():
	}
}

func (i *Ingestor) lane(ctx context.Context, masterID string) chan models.Signal {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ch, ok := i.lanes[masterID]; ok {
		return ch
	}
	ch := make(chan models.Signal, i.laneBuffer)
	i.lanes[masterID] = ch
	i.wg.Add(1)
	go i.drain(context.WithoutCancel(ctx), masterID, ch)
	return ch
}

func (i *Ingestor) drain(ctx context.Context, masterID string, ch <-chan models.Signal) {
	defer i.wg.Done()
	for sig := range ch {
		if _, err := i.dispatcher.Dispatch(ctx, sig); err != nil {
			i.metrics.RecordError("dispatch")
			i.log.Error("dispatch failed",
				logger.String("master_id", masterID),
				logger.Int64("ticket", sig.Ticket),
				logger.Error(err),
			)
		}
	}
}

func (i *Ingestor) closeLanes() {
	i.mu.Lock()
	for id, ch := range i.lanes {
		close(ch)
		delete(i.lanes, id)
	}
	i.mu.Unlock()
	i.wg.Wait()
}
