package usecase

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/pkg/queue"

	"github.com/google/uuid"
)

// TrainJobType routes queued training runs.
const TrainJobType = "forecast.train"

// TrainJob runs queued training requests through a Trainer.
type TrainJob struct {
	trainer domsvc.Trainer
}

func NewTrainJob(t domsvc.Trainer) *TrainJob { return &TrainJob{trainer: t} }

func (j *TrainJob) Name() string { return "train-forecast-model" }
func (j *TrainJob) Type() string { return TrainJobType }

// Handle trains once. A run that collides with another one is dropped rather
// than retried.
func (j *TrainJob) Handle(ctx context.Context, msg *queue.Message) error {
	req, err := queue.ParsePayload[models.TrainJob](msg)
	if err != nil {
		return err
	}
	_, err = j.trainer.Train(ctx, *req)
	if errors.Is(err, models.ErrTrainingInProgress) {
		return nil
	}
	return err
}

// TrainScheduler enqueues training requests.
type TrainScheduler struct {
	q queue.Publisher
}

func NewTrainScheduler(q queue.Publisher) *TrainScheduler { return &TrainScheduler{q: q} }

// Schedule enqueues a run and returns its job.
func (s *TrainScheduler) Schedule(ctx context.Context, asset string) (*models.TrainJob, error) {
	job := &models.TrainJob{
		ID:          uuid.NewString(),
		Asset:       asset,
		RequestedAt: time.Now().UTC(),
	}
	if _, err := s.q.Enqueue(ctx, TrainJobType, job); err != nil {
		return nil, err
	}
	return job, nil
}
