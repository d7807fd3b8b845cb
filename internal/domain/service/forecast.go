package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// Trainer runs one training pass and installs the result.
type Trainer interface {
	Train(ctx context.Context, job models.TrainJob) (*models.ModelInfo, error)
}
