// Package engine is the worker pool: one worker per terminal path, a shared
// priority queue, and a terminal lock around every broker interaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/internal/domain/service"
	"CopyFabric/pkg/logger"
	"CopyFabric/pkg/metrics"
	"CopyFabric/pkg/queue"
)

var ErrStopped = errors.New("engine: stopped")

const DefaultPopTimeout = time.Second

// Executor runs one job on a terminal. The engine holds the terminal lock
// around each call.
type Executor interface {
	Execute(ctx context.Context, path string, term service.Terminal, job models.TradeJob) models.TradeResult
}

type task struct {
	job  models.TradeJob
	done chan models.TradeResult
}

type worker struct {
	id   int
	path string
	term service.Terminal
}

type Engine struct {
	terminals []string
	factory   service.TerminalFactory
	exec      Executor
	lock      *TerminalLock
	queue     *queue.PriorityQueue[*task]
	metrics   drepo.Metrics
	log       *logger.Logger

	popTimeout time.Duration
	startOnce  sync.Once
	stopOnce   sync.Once
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.Mutex
	workers []*worker
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLock(l *TerminalLock) Option {
	return func(e *Engine) { e.lock = l }
}

// WithPopTimeout sets how long an idle worker blocks before rechecking shutdown.
func WithPopTimeout(d time.Duration) Option {
	return func(e *Engine) { e.popTimeout = d }
}

// New builds a pool over an immutable list of terminal paths. Workers start
// on the first Submit or on Start.
func New(terminals []string, factory service.TerminalFactory, exec Executor, opts ...Option) *Engine {
	paths := append([]string(nil), terminals...)
	if len(paths) == 0 {
		paths = ResolveTerminals(PoolConfig{})
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		terminals:  paths,
		factory:    factory,
		exec:       exec,
		queue:      queue.NewPriorityQueue[*task](),
		metrics:    metrics.Noop{},
		log:        logger.Nop(),
		popTimeout: DefaultPopTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lock == nil {
		e.lock = NewTerminalLock(nil, 0)
	}
	return e
}

// Size is the number of workers.
func (e *Engine) Size() int { return len(e.terminals) }

// Terminals returns the paths workers are bound to.
func (e *Engine) Terminals() []string { return append([]string(nil), e.terminals...) }

// Pending is the number of queued jobs not yet picked up.
func (e *Engine) Pending() int { return e.queue.Len() }

// Start launches the workers once.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, path := range e.terminals {
			w := &worker{id: i, path: path}
			if path != service.MockTerminal && e.factory != nil {
				term, err := e.factory(path)
				if err != nil {
					e.log.Error("terminal open failed", logger.String("path", path), logger.Error(err))
				}
				w.term = term
			}
			e.workers = append(e.workers, w)
			e.wg.Add(1)
			go e.loop(w)
		}
		e.log.Info("engine started", logger.Int("workers", len(e.terminals)), logger.Strings("terminals", e.terminals))
	})
}

// Submit queues a job and returns a channel that receives its result.
func (e *Engine) Submit(ctx context.Context, job models.TradeJob) (<-chan models.TradeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.Start()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	t := &task{job: job, done: make(chan models.TradeResult, 1)}
	if err := e.queue.Push(int(job.Priority), t); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrStopped
		}
		return nil, err
	}
	e.metrics.RecordQueueDepth(e.queue.Len())
	return t.done, nil
}

// Wait blocks until every submitted job has been processed.
func (e *Engine) Wait(ctx context.Context) error {
	return e.queue.Join(ctx)
}

// Stop rejects new jobs, lets workers drain the queue and closes the
// terminals. If ctx expires first the remaining work is abandoned.
func (e *Engine) Stop(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		e.queue.Close()
		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("engine drain: %w", ctx.Err())
		}
		e.cancel()

		e.mu.Lock()
		for _, w := range e.workers {
			if w.term != nil {
				w.term.Shutdown()
			}
		}
		e.mu.Unlock()
		e.log.Info("engine stopped")
	})
	return err
}

func (e *Engine) loop(w *worker) {
	defer e.wg.Done()
	log := e.log.With(logger.Int("worker", w.id), logger.String("terminal", w.path))
	for {
		t, err := e.queue.Pop(e.ctx, e.popTimeout)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrTimeout):
			continue
		default:
			log.Debug("worker exiting", logger.Error(err))
			return
		}
		e.metrics.RecordQueueDepth(e.queue.Len())
		e.process(w, log, t)
	}
}

func (e *Engine) process(w *worker, log *logger.Logger, t *task) {
	start := time.Now()
	res := models.TradeResult{}
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			res = models.TradeResult{
				AccountID: fmt.Sprint(t.job.Follower.Login),
				Status:    models.StatusFailed,
				Message:   fmt.Sprintf("Internal Error: %v", r),
				Action:    t.job.Signal.Action,
			}
			e.metrics.RecordError("job_panic")
		}
		if res.ExecutionTime == 0 {
			res.ExecutionTime = time.Since(start)
		}
		e.metrics.RecordJob(string(t.job.Signal.Action), string(res.Status), res.ExecutionTime.Seconds())
		e.metrics.RecordLatency("job_queue_wait_seconds", start.Sub(t.job.EnqueuedAt).Seconds())
		t.done <- res
		e.queue.Done()
	}()

	if err := e.lock.Lock(e.ctx); err != nil {
		res = models.TradeResult{
			AccountID: fmt.Sprint(t.job.Follower.Login),
			Status:    models.StatusFailed,
			Message:   "Terminal Busy: " + err.Error(),
			Action:    t.job.Signal.Action,
		}
		return
	}
	defer func() {
		if err := e.lock.Unlock(context.Background()); err != nil {
			log.Warn("terminal unlock failed", logger.Error(err))
		}
	}()

	res = e.exec.Execute(e.ctx, w.path, w.term, t.job)
}
