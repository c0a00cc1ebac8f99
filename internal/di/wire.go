//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"CopyFabric/pkg/config"
	"CopyFabric/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideCoordStore,
		ProvidePostgres,
		ProvideClickHouseClient,

		// Repositories
		ProvideTicketStore,
		ProvideSubscriptions,
		ProvideResultHub,
		ProvideResultSink,

		// Execution
		ProvideExecutor,
		ProvideTerminalFactory,
		ProvideEngine,

		// Ingress
		ProvideSignalGate,
		ProvideDispatcher,
		ProvideIngestor,
		ProvideHTTPServer,
		ProvideKafkaIngest,

		ProvideApp,
	)
	return &server.App{}, nil
}
