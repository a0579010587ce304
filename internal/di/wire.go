//go:build wireinject
// +build wireinject

package di

import (
	"X402Chat/pkg/config"
	"X402Chat/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideRPCClient,
		ProvideClickHouseClient,
		ProvideCoinGecko,
		ProvideCompletionClient,

		// Payment and rate gates
		ProvideSignatureRegistry,
		ProvideVerifier,
		ProvideBalanceOracle,
		ProvideMemoryRateStore,
		ProvideWindowStore,
		ProvideLimiter,

		// Dispatch
		ProvideMarketGateway,
		ProvideIntentRouter,
		ProvideComposer,

		// Usage ledger
		ProvideUsageStorage,
		ProvideUsagePublisher,
		ProvideUsageProcessor,
		ProvideSpillQueue,
		ProvideUsagePipeline,
		ProvideKafkaConsumer,
		ProvideKafkaUsageHandler,

		// Use cases and transport
		ProvideChatGateway,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
