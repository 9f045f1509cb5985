//go:build wireinject
// +build wireinject

package di

import (
	"MycoCast/pkg/config"
	"MycoCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideTelemetryStorage,
		ProvideTelemetryPublisher,
		ProvidePosFeedStream,
		ProvideFeatureStore,

		// Decision core
		ProvideAuditTrail,
		ProvideResolver,
		ProvideRecorder,
		ProvideModelAdapters,
		ProvideDecisionStore,
		ProvideDecisionCache,
		ProvideFusionEngine,

		// Use cases
		ProvideTelemetryProcessor,
		ProvideTelemetryCollector,
		ProvideTelemetryQuery,
		ProvideKafkaTelemetryHandler,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
