//go:build wireinject
// +build wireinject

package di

import (
	"MoodTreasury/pkg/config"
	"MoodTreasury/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStore,
		ProvideKafkaProducer,
		ProvideArtifactPublisher,
		ProvideClickHouseClient,
		ProvideAuditArchive,

		// External collaborators
		ProvideSentimentSource,
		ProvideMarketClient,
		ProvideChainClient,

		// Core components
		ProvideGate,
		ProvideMoodAggregator,
		ProvideDecisionEngine,
		ProvideExecutionTracker,
		ProvideRunner,

		// HTTP surface and application
		ProvideOpsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
