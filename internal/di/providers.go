package di

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CopyFabric/internal/broker/bridge"
	"CopyFabric/internal/broker/sim"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/internal/domain/service"
	"CopyFabric/internal/engine"
	"CopyFabric/internal/handler/api"
	"CopyFabric/internal/handler/ws"
	"CopyFabric/internal/middleware"
	internalrepo "CopyFabric/internal/repository"
	"CopyFabric/internal/services/symbols"
	"CopyFabric/internal/usecase"
	pkgch "CopyFabric/pkg/clickhouse"
	"CopyFabric/pkg/config"
	"CopyFabric/pkg/coord"
	xhttp "CopyFabric/pkg/http"
	pkgkafka "CopyFabric/pkg/kafka"
	applogger "CopyFabric/pkg/logger"
	"CopyFabric/pkg/metrics"
	"CopyFabric/pkg/server"
)

const startupTimeout = 10 * time.Second

// ProvideKafkaProducer returns nil when neither the result stream nor the
// log collector needs Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled && !cfg.Logging.Collector.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the process logger. Repeated errors are folded and
// shipped to Kafka when the collector is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.FlushInterval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideMetrics() drepo.Metrics {
	return metrics.New(nil)
}

// ProvideCoordStore connects to Redis, or returns the in-process store for
// single-node and test deployments.
func ProvideCoordStore(cfg *config.Config, l *applogger.Logger) (coord.Store, error) {
	if cfg.Coord.Driver == "memory" {
		l.Warn("coordination store is in-memory; ticket maps do not survive restarts")
		return coord.NewMemoryStore(), nil
	}
	opts := []coord.RedisOption{
		coord.WithRedisPassword(cfg.Coord.Password),
		coord.WithRedisDB(cfg.Coord.DB),
		coord.WithRedisPool(cfg.Coord.PoolSize, cfg.Coord.MinIdleConns, cfg.Coord.Timeout),
		coord.WithRedisPrefix(cfg.Coord.Prefix),
	}
	if cfg.Coord.URL != "" {
		opts = append(opts, coord.WithRedisURL(cfg.Coord.URL))
	} else {
		opts = append(opts, coord.WithRedisAddr(cfg.Coord.Addr))
	}
	store, err := coord.NewRedisStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("coord store: %w", err)
	}
	return store, nil
}

func ProvideTicketStore(store coord.Store, cfg *config.Config) drepo.TicketStore {
	return internalrepo.NewCoordTicketStore(store, cfg.Coord.TicketTTL)
}

// ProvidePostgres opens the subscription database; nil for the static source.
func ProvidePostgres(cfg *config.Config) (*sql.DB, error) {
	if cfg.Subscriptions.Source != "postgres" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return internalrepo.OpenPostgres(ctx, cfg.Subscriptions.DatabaseURL, cfg.Subscriptions.MaxOpen)
}

func ProvideSubscriptions(cfg *config.Config, db *sql.DB) (*usecase.SubscriptionResolver, error) {
	var source drepo.SubscriptionSource
	if db != nil {
		source = internalrepo.NewPostgresSubscriptions(db)
	} else {
		static, err := internalrepo.LoadStaticSubscriptions(cfg.Subscriptions.File)
		if err != nil {
			return nil, err
		}
		source = static
	}
	return usecase.NewSubscriptionResolver(source, cfg.Subscriptions.CacheTTL), nil
}

func ProvideExecutor(tickets drepo.TicketStore, cfg *config.Config, l *applogger.Logger) *usecase.Executor {
	resolver := symbols.NewResolver(
		symbols.WithCacheTTL(cfg.Executor.SymbolCacheTTL),
		symbols.WithLogger(l),
	)
	ec := usecase.DefaultExecutorConfig()
	ec.SettleDelay = cfg.Executor.SettleDelay
	ec.TickRetryDelay = cfg.Executor.TickRetryDelay
	ec.Deviation = cfg.Executor.Deviation
	ec.Magic = cfg.Executor.Magic
	ec.RotationTolerance = cfg.Executor.RotationTolerance
	return usecase.NewExecutor(tickets, resolver, ec, usecase.WithExecutorLogger(l))
}

func ProvideTerminalFactory(cfg *config.Config, l *applogger.Logger) (service.TerminalFactory, error) {
	if cfg.Broker.Driver == "sim" {
		l.Warn("broker driver is sim; orders never leave this process")
		return sim.Factory(sim.NewExchange(sim.Demo()...)), nil
	}
	if cfg.Broker.BridgeURL == "" {
		return nil, fmt.Errorf("broker.bridge_url is required for the bridge driver")
	}
	return bridge.Factory(cfg.Broker.BridgeURL, bridge.WithTimeout(cfg.Broker.Timeout)), nil
}

func ProvideEngine(
	cfg *config.Config,
	factory service.TerminalFactory,
	exec *usecase.Executor,
	store coord.Store,
	m drepo.Metrics,
	l *applogger.Logger,
) *engine.Engine {
	var lockStore coord.Store
	if cfg.Engine.DistributedLock {
		lockStore = store
	}
	terminals := engine.ResolveTerminals(cfg.Terminals)
	l.Info("worker pool configured", applogger.Int("workers", len(terminals)))
	return engine.New(terminals, factory, exec,
		engine.WithLogger(l),
		engine.WithMetrics(m),
		engine.WithLock(engine.NewTerminalLock(lockStore, cfg.Engine.LockTTL)),
		engine.WithPopTimeout(cfg.Engine.PopTimeout),
	)
}

// ProvideClickHouseClient returns nil when the journal is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ExecutionsSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideResultHub returns nil when the websocket stream is off.
func ProvideResultHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	if !cfg.API.WebSocket {
		return nil
	}
	return ws.NewHub(l)
}

func ProvideResultSink(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	hub *ws.Hub,
) drepo.ResultSink {
	var sinks []drepo.ResultSink
	if cfg.Kafka.Enabled && producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic))
	}
	if ch != nil {
		sinks = append(sinks, internalrepo.NewClickHouseJournal(ch.DB(), ch.Database()))
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	return internalrepo.NewMultiSink(sinks...)
}

func ProvideSignalGate(tickets drepo.TicketStore, m drepo.Metrics, cfg *config.Config, l *applogger.Logger) *middleware.SignalGate {
	return middleware.NewSignalGate(tickets, m,
		middleware.WithMaxAge(cfg.Ingest.MaxSignalAge),
		middleware.WithGateLogger(l),
	)
}

func ProvideDispatcher(
	subs *usecase.SubscriptionResolver,
	tickets drepo.TicketStore,
	eng *engine.Engine,
	sink drepo.ResultSink,
	m drepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Dispatcher {
	return usecase.NewDispatcher(subs, tickets, eng,
		usecase.WithResultSink(sink),
		usecase.WithMaxLag(cfg.Dispatch.MaxLag),
		usecase.WithDispatcherLogger(l),
		usecase.WithDispatcherMetrics(m),
	)
}

func ProvideIngestor(
	store coord.Store,
	gate *middleware.SignalGate,
	dispatcher *usecase.Dispatcher,
	m drepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Ingestor {
	return usecase.NewIngestor(store, gate, dispatcher,
		usecase.WithIngestorLogger(l),
		usecase.WithIngestorMetrics(m),
		usecase.WithLaneBuffer(cfg.Ingest.LaneBuffer),
	)
}

func ProvideHTTPServer(
	cfg *config.Config,
	gate *middleware.SignalGate,
	dispatcher *usecase.Dispatcher,
	store coord.Store,
	eng *engine.Engine,
	hub *ws.Hub,
	l *applogger.Logger,
) *xhttp.Server {
	opts := []api.Option{
		api.WithLogger(l),
		api.WithRateLimit(api.RateLimit{Burst: cfg.API.RateBurst, PerSecond: cfg.API.RatePerSecond}),
	}
	if hub != nil {
		opts = append(opts, api.WithResultStream(hub))
	}
	h := api.NewSignalsHandler(gate, dispatcher, store, eng, opts...)
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	)
}

// KafkaIngest pairs the signal consumer with its handler; both are nil
// when Kafka ingest is off.
type KafkaIngest struct {
	Consumer *pkgkafka.Consumer
	Handler  *usecase.KafkaSignalsHandler
}

func ProvideKafkaIngest(
	cfg *config.Config,
	gate *middleware.SignalGate,
	dispatcher *usecase.Dispatcher,
	m drepo.Metrics,
	l *applogger.Logger,
) (KafkaIngest, error) {
	if !cfg.Ingest.Kafka.Enabled {
		return KafkaIngest{}, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return KafkaIngest{}, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(usecase.NewSignalHook(m, l)))
	return KafkaIngest{
		Consumer: consumer,
		Handler:  usecase.NewKafkaSignalsHandler(cfg.Ingest.Kafka.Topic, gate, dispatcher),
	}, nil
}

// ProvideApp assembles the lifecycle. Clients close after the engine has
// drained, in reverse order of their use.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	eng *engine.Engine,
	ingestor *usecase.Ingestor,
	httpServer *xhttp.Server,
	ki KafkaIngest,
	store coord.Store,
	db *sql.DB,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	hub *ws.Hub,
) *server.App {
	var closers []server.Closer
	if hub != nil {
		closers = append(closers, server.Closer{Name: "websocket", Close: func() error { hub.Close(); return nil }})
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if db != nil {
		closers = append(closers, server.Closer{Name: "postgres", Close: db.Close})
	}
	closers = append(closers, server.Closer{Name: "coord", Close: store.Close})
	if producer != nil {
		closers = append(closers,
			server.Closer{Name: "log-collector", Close: func() error { l.RemoveCollector(); return nil }},
			server.Closer{Name: "kafka-producer", Close: producer.Close},
		)
	}

	opts := []server.Option{
		server.WithClosers(closers...),
		server.WithDrainTimeout(cfg.Server.ShutdownTimeout),
	}
	if ki.Consumer != nil {
		opts = append(opts, server.WithKafkaIngest(ki.Consumer, ki.Handler))
	}
	return server.New(l, eng, ingestor, httpServer, opts...)
}
