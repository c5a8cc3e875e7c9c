//go:build wireinject
// +build wireinject

package di

import (
	"KeyZones/pkg/config"
	"KeyZones/pkg/server"

	"github.com/google/wire"
)

var coreSet = wire.NewSet(
	// Infrastructure clients
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,

	// Repositories
	ProvideArtifactStore,
	ProvideCandleSource,

	// Use cases
	ProvideDetector,
	ProvideOrchestrator,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		coreSet,
		ProvideCache,
		ProvideSequencer,
		ProvideSnapshotStore,
		ProvideHub,
		ProvideCoordinator,
		ProvideKafkaConsumer,
		ProvideRefreshHandler,

		// Transport
		ProvideZonesHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires the dependencies of the one-shot commands.
func InitializeToolkit(cfg *config.Config) (*Toolkit, error) {
	wire.Build(
		coreSet,
		ProvideCandleSync,
		wire.Struct(new(Toolkit), "*"),
	)
	return &Toolkit{}, nil
}
