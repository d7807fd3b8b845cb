package repository

import (
	"context"

	"FinCast/internal/domain/models"
)

// RecordSource provides read-only access to the records table.
type RecordSource interface {
	// Name identifies the backend in logs.
	Name() string
	// Columns lists the columns the backing table exposes.
	Columns(ctx context.Context) ([]string, error)
	// Fetch returns raw rows, optionally restricted to one asset type.
	Fetch(ctx context.Context, asset string) ([]models.RawRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// ForecastPublisher emits forecast events to downstream consumers.
type ForecastPublisher interface {
	PublishForecast(ctx context.Context, ev *models.ForecastEvent) error
	Close() error
}

// Metrics records forecast service telemetry.
type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordPredictSteps(steps int)
	RecordTrainMSE(split string, mse float64)
	RecordCache(result string)
}
