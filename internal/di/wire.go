//go:build wireinject
// +build wireinject

package di

import (
	"SigFlow/pkg/config"
	"SigFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideMemoryStore,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideMetricsArchive,
		ProvideEventPublisher,
		ProvideCache,

		// Broadcast side-channel
		ProvideHub,
		ProvideBroadcaster,
		ProvideEmitter,

		// Use cases
		ProvideMonitor,
		ProvideCollector,
		ProvideEvaluator,
		ProvideBrokers,
		ProvideExecutor,
		ProvideEnricher,
		ProvideDecisionEngine,
		ProvideQueue,

		// HTTP facade
		ProvideHTTPHandler,
		ProvideServer,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
