//go:build wireinject
// +build wireinject

package di

import (
	"PulseDeck/pkg/config"
	"PulseDeck/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Outcome fan-out
		ProvideSignalMirror,
		ProvideOutcomePublisher,
		ProvideDispatcher,

		// Core lifecycle
		ProvideLedger,
		ProvideRegistry,
		ProvideBarPipeline,
		ProvideSnapshotMirror,
		ProvideLearning,

		// Bar intake
		ProvideFeedStream,
		ProvideBarCollector,
		ProvideKafkaBarsHandler,

		// HTTP surface and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
