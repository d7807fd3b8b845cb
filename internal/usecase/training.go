package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
	"FinCast/internal/services/forecast"
	applogger "FinCast/pkg/logger"
)

// TrainingConfig holds the pipeline settings of one training run.
type TrainingConfig struct {
	Builder features.SequenceBuilder
	Train   forecast.TrainConfig
	Clamp   bool
	// Resume continues from the installed model when its architecture matches.
	Resume bool
}

// RunTraining loads every series from loader, fits the scaler, builds
// training pairs and trains a model. init may be nil.
func RunTraining(ctx context.Context, loader HistoryLoader, asset string, cfg TrainingConfig, init *forecast.Model, l *applogger.Logger) (*forecast.Artifact, error) {
	if l == nil {
		l = applogger.Nop()
	}
	if err := cfg.Builder.Validate(); err != nil {
		return nil, fmt.Errorf("sequence builder: %w", err)
	}

	var series []models.AssetSeries
	if asset != "" {
		s, err := loader.LoadAsset(ctx, asset, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		series = []models.AssetSeries{*s}
	} else {
		all, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		series = all
	}

	var reference [][]float64
	for _, s := range series {
		reference = append(reference, s.Matrix()...)
	}
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: source returned no records", forecast.ErrNotEnoughData)
	}

	sc, err := features.Fit(reference, models.FeatureNames, cfg.Clamp)
	var degenerate *models.ScalingDegenerateFeatureError
	switch {
	case errors.As(err, &degenerate):
		l.Warn("degenerate features in training data", applogger.Strings("features", degenerate.Features))
	case err != nil:
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	scaled := make([][][]float64, len(series))
	for i, s := range series {
		scaled[i] = sc.Transform(s.Matrix())
	}
	pairs := cfg.Builder.BuildAll(scaled)
	l.Info("training data prepared",
		applogger.Int("assets", len(series)),
		applogger.Int("records", len(reference)),
		applogger.Int("pairs", len(pairs)),
		applogger.String("framing", string(cfg.Builder.Mode)))

	tr := forecast.NewTrainer(cfg.Train)
	tr.SetLogger(l)
	m, rep, err := tr.Train(ctx, pairs, init)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return forecast.NewArtifact(m, sc, cfg.Builder, rep), nil
}

// Train runs one training pass, persists the artifact and installs it. Only
// one run may be active; a concurrent call gets ErrTrainingInProgress.
func (uc *ForecastUseCase) Train(ctx context.Context, job models.TrainJob) (*models.ModelInfo, error) {
	if !uc.trainMu.TryLock() {
		uc.metrics.RecordError(errorKind(models.ErrTrainingInProgress))
		return nil, models.ErrTrainingInProgress
	}
	defer uc.trainMu.Unlock()
	return uc.train(ctx, job)
}

// TrainAsync starts a run in the background. It fails fast with
// ErrTrainingInProgress when a run is already active.
func (uc *ForecastUseCase) TrainAsync(job models.TrainJob) error {
	if !uc.trainMu.TryLock() {
		uc.metrics.RecordError(errorKind(models.ErrTrainingInProgress))
		return models.ErrTrainingInProgress
	}
	go func() {
		defer uc.trainMu.Unlock()
		_, _ = uc.train(context.Background(), job)
	}()
	return nil
}

func (uc *ForecastUseCase) train(ctx context.Context, job models.TrainJob) (*models.ModelInfo, error) {
	start := time.Now()
	uc.l.Info("training started",
		applogger.String("job_id", job.ID),
		applogger.String("asset", job.Asset))

	var init *forecast.Model
	if uc.training.Resume {
		uc.mu.RLock()
		a := uc.artifact
		uc.mu.RUnlock()
		if a != nil && a.Framing == uc.training.Builder.Mode {
			if m, err := a.Model(); err == nil {
				init = m
			}
		}
	}

	a, err := RunTraining(ctx, uc.loader, job.Asset, uc.training, init, uc.l)
	if err != nil {
		uc.metrics.RecordError(errorKind(err))
		uc.l.Error("training failed", applogger.String("job_id", job.ID), applogger.Error(err))
		return nil, err
	}
	if err := forecast.SaveArtifact(uc.cfg.ArtifactPath, a); err != nil {
		uc.metrics.RecordError("internal")
		return nil, err
	}
	if err := uc.Install(ctx, a); err != nil {
		return nil, err
	}

	uc.l.Info("training installed",
		applogger.String("job_id", job.ID),
		applogger.Float64("test_mse", a.Report.TestMSE),
		applogger.Duration("duration_ms", time.Since(start)))
	return a.Info(uc.cfg.ArtifactPath), nil
}
