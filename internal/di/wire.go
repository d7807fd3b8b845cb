//go:build wireinject
// +build wireinject

package di

import (
	"FinCast/pkg/config"
	"FinCast/pkg/server"

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
		ProvideRecordSource,
		ProvideRedis,
		ProvideKafkaProducer,

		// Repositories
		ProvideLoader,
		ProvideCache,
		ProvideForecastPublisher,

		// Use cases
		ProvideTrainingConfig,
		ProvideForecastUseCase,
		ProvideQueue,
		ProvideTrainScheduler,

		// HTTP
		ProvideRateLimiter,
		ProvideForecastHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
