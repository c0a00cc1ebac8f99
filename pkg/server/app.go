package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"CopyFabric/internal/engine"
	"CopyFabric/internal/usecase"
	xhttp "CopyFabric/pkg/http"
	pkgkafka "CopyFabric/pkg/kafka"
	applogger "CopyFabric/pkg/logger"
)

// Closer releases an infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log      *applogger.Logger
	engine   *engine.Engine
	ingestor *usecase.Ingestor
	http     *xhttp.Server
	consumer *pkgkafka.Consumer
	kh       pkgkafka.MessageHandler
	closers  []Closer
	drain    time.Duration
}

type Option func(*App)

// WithKafkaIngest consumes signals from Kafka in addition to pub/sub.
func WithKafkaIngest(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = consumer
		a.kh = kh
	}
}

// WithClosers registers clients closed last, in order.
func WithClosers(c ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, c...) }
}

// WithDrainTimeout bounds how long queued trade jobs may run after shutdown starts.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *App) { a.drain = d }
}

// New creates a new App instance with all dependencies.
func New(log *applogger.Logger, eng *engine.Engine, ingestor *usecase.Ingestor, http *xhttp.Server, opts ...Option) *App {
	a := &App{
		log:      log,
		engine:   eng,
		ingestor: ingestor,
		http:     http,
		drain:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT/SIGTERM or a
// component fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext runs until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	a.engine.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ingestor.Run(gctx)
	})

	if a.http != nil {
		g.Go(a.http.Serve)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka signal ingest started", applogger.String("topic", a.kh.Topic()))
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")
		a.stopIngress()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.shutdown()
	return err
}

// stopIngress stops everything that produces signals. The ingestor stops
// with the group context and drains its lanes before Run returns.
func (a *App) stopIngress() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
}

// shutdown drains the engine, then closes infrastructure clients.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.drain)
	defer cancel()

	if err := a.engine.Stop(ctx); err != nil {
		a.log.Warn("engine drain incomplete", applogger.Error(err), applogger.Int("pending", a.engine.Pending()))
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
