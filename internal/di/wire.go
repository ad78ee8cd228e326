//go:build wireinject
// +build wireinject

package di

import (
	"RatePulse/pkg/config"
	"RatePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Core state
		ProvideRateStore,
		ProvideMonitor,
		ProvideRegistry,
		ProvideSources,

		// Infrastructure clients (nil when disabled)
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideConfigStore,
		ProvideHistorySink,
		ProvideAuditPublisher,

		// Services
		ProvideEngine,
		ProvideHub,

		ProvideApp,
	)
	return nil, nil
}
