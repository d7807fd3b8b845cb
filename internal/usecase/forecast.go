package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/forecast"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
)

// HistoryLoader is the part of repository.Loader the use case reads from.
type HistoryLoader interface {
	Load(ctx context.Context) ([]models.AssetSeries, error)
	LoadAsset(ctx context.Context, asset string, from, to time.Time) (*models.AssetSeries, error)
}

// ForecastConfig holds serving settings.
type ForecastConfig struct {
	ArtifactPath string
	MaxSteps     int
	// CachePrefix namespaces prediction keys inside the cache.
	CachePrefix string
	CacheTTL    time.Duration
	// PublishTimeout bounds a forecast event publish.
	PublishTimeout time.Duration
}

// ForecastUseCase holds the loaded model behind a readers-writer lock.
// Predictions share the read lock; reload and training install take the
// write lock and wait for in-flight predictions to finish.
type ForecastUseCase struct {
	mu        sync.RWMutex
	predictor *forecast.Predictor
	artifact  *forecast.Artifact

	trainMu  sync.Mutex
	training TrainingConfig

	cfg       ForecastConfig
	loader    HistoryLoader
	cache     cache.Service
	publisher domrepo.ForecastPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

// NewForecastUseCase wires the use case. cache, publisher and metrics may be
// nil.
func NewForecastUseCase(
	cfg ForecastConfig,
	training TrainingConfig,
	loader HistoryLoader,
	c cache.Service,
	pub domrepo.ForecastPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *ForecastUseCase {
	if c == nil {
		c = cache.Nop{}
	}
	if m == nil {
		m = nopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "prediction"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &ForecastUseCase{
		cfg:       cfg,
		training:  training,
		loader:    loader,
		cache:     c,
		publisher: pub,
		metrics:   m,
		l:         l,
	}
}

// Reload reads the artifact from disk and installs it. On failure the
// current model stays in place.
func (uc *ForecastUseCase) Reload(ctx context.Context) (*models.ModelInfo, error) {
	a, err := forecast.LoadArtifact(uc.cfg.ArtifactPath)
	if err != nil {
		uc.metrics.RecordError(errorKind(err))
		uc.l.Error("model reload failed",
			applogger.String("path", uc.cfg.ArtifactPath),
			applogger.Error(err))
		return nil, err
	}
	if err := uc.Install(ctx, a); err != nil {
		return nil, err
	}
	return a.Info(uc.cfg.ArtifactPath), nil
}

// Install swaps in a new artifact and drops cached predictions of the old one.
func (uc *ForecastUseCase) Install(ctx context.Context, a *forecast.Artifact) error {
	p, err := forecast.NewPredictor(a, uc.cfg.MaxSteps)
	if err != nil {
		return &models.ModelUnavailableError{Path: uc.cfg.ArtifactPath, Err: err}
	}

	uc.mu.Lock()
	uc.predictor = p
	uc.artifact = a
	uc.mu.Unlock()

	if a.Report != nil {
		uc.metrics.RecordTrainMSE("train", a.Report.TrainMSE)
		uc.metrics.RecordTrainMSE("val", a.Report.ValMSE)
		uc.metrics.RecordTrainMSE("test", a.Report.TestMSE)
	}
	if err := uc.cache.DeleteByPattern(ctx, cache.BuildPattern(uc.predictionKeyPrefix())); err != nil {
		uc.l.Warn("prediction cache invalidation failed", applogger.Error(err))
	}
	uc.l.Info("model installed",
		applogger.String("framing", string(a.Framing)),
		applogger.Int("window_size", a.WindowSize),
		applogger.Int("hidden", a.Architecture.Hidden),
		applogger.Time("trained_at", a.TrainedAt))
	return nil
}

// ModelInfo describes the loaded artifact.
func (uc *ForecastUseCase) ModelInfo() (*models.ModelInfo, error) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.artifact == nil {
		return nil, &models.ModelUnavailableError{Path: uc.cfg.ArtifactPath, Err: errors.New("no model loaded")}
	}
	return uc.artifact.Info(uc.cfg.ArtifactPath), nil
}

// Ready reports whether a model is loaded.
func (uc *ForecastUseCase) Ready() bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.predictor != nil
}

// Predict runs the autoregressive predictor under the read lock.
func (uc *ForecastUseCase) Predict(ctx context.Context, in models.PredictInput) (*models.ForecastTrajectory, error) {
	return uc.predict(ctx, "predict", in)
}

func (uc *ForecastUseCase) predict(ctx context.Context, route string, in models.PredictInput) (*models.ForecastTrajectory, error) {
	start := time.Now()
	defer func() { uc.metrics.RecordLatency(route, time.Since(start).Seconds()) }()

	uc.mu.RLock()
	defer uc.mu.RUnlock()

	if uc.predictor == nil {
		err := &models.ModelUnavailableError{Path: uc.cfg.ArtifactPath, Err: errors.New("no model loaded")}
		uc.metrics.RecordError(errorKind(err))
		return nil, err
	}

	key := ""
	if n, err := uc.predictor.Steps(in); err == nil {
		key = uc.predictionKey(in, n)
	}
	if key != "" {
		var cached models.ForecastTrajectory
		err := uc.cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			uc.metrics.RecordCache("hit")
			return &cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			uc.metrics.RecordCache("miss")
		default:
			uc.metrics.RecordCache("error")
			uc.l.Warn("prediction cache read failed", applogger.Error(err))
		}
	}

	traj, err := uc.predictor.Predict(in)
	if err != nil {
		uc.metrics.RecordError(errorKind(err))
		return nil, err
	}
	uc.metrics.RecordPredictSteps(len(traj.Points))

	if key != "" {
		if err := uc.cache.Set(ctx, key, traj, uc.cfg.CacheTTL); err != nil {
			uc.l.Warn("prediction cache write failed", applogger.Error(err))
		}
	}
	uc.publish(ctx, traj)

	uc.l.Debug("prediction served",
		applogger.String("route", route),
		applogger.String("asset", traj.AssetType),
		applogger.Int("records", len(in.Records)),
		applogger.Int("steps", len(traj.Points)),
		applogger.Duration("duration_ms", time.Since(start)))
	return traj, nil
}

func (uc *ForecastUseCase) publish(ctx context.Context, traj *models.ForecastTrajectory) {
	if uc.publisher == nil {
		return
	}
	ev := &models.ForecastEvent{
		AssetType:   traj.AssetType,
		GeneratedAt: time.Now().UTC(),
		Steps:       len(traj.Points),
		IntervalSec: int64(traj.Interval / time.Second),
		Points:      traj.Records(),
	}
	if uc.artifact != nil {
		ev.ModelTime = uc.artifact.TrainedAt
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.PublishTimeout)
	defer cancel()
	if err := uc.publisher.PublishForecast(pctx, ev); err != nil {
		uc.metrics.RecordError("publish")
		uc.l.Warn("forecast event publish failed",
			applogger.String("asset", ev.AssetType),
			applogger.Error(err))
	}
}

func (uc *ForecastUseCase) predictionKeyPrefix() string {
	return uc.cfg.CachePrefix
}

// predictionKey hashes everything that determines a trajectory. Callers hold
// the read lock.
func (uc *ForecastUseCase) predictionKey(in models.PredictInput, steps int) string {
	b, err := json.Marshal(struct {
		TrainedAt time.Time            `json:"t"`
		Records   []models.RecordInput `json:"r"`
		Steps     int                  `json:"n"`
		Interval  time.Duration        `json:"i"`
	}{uc.artifact.TrainedAt, in.Records, steps, in.TimeInterval})
	if err != nil {
		return ""
	}
	return cache.GenerateKeyWithParams(uc.predictionKeyPrefix(), cache.HashKey(b))
}

// History returns one asset's stored records in [from, to].
func (uc *ForecastUseCase) History(ctx context.Context, asset string, from, to time.Time) (*models.AssetSeries, error) {
	s, err := uc.loader.LoadAsset(ctx, asset, from, to)
	if err != nil {
		uc.metrics.RecordError(errorKind(err))
		return nil, err
	}
	if len(s.Records) == 0 {
		return nil, fmt.Errorf("%w for asset %s", models.ErrNoRecords, asset)
	}
	return s, nil
}

// HistoryForecastParams selects stored history and the forecast horizon.
type HistoryForecastParams struct {
	Asset     string
	From, To  time.Time
	Interval  time.Duration
	Intervals int
}

// HistoryForecast forecasts from the stored history of one asset.
func (uc *ForecastUseCase) HistoryForecast(ctx context.Context, p HistoryForecastParams) (*models.HistoryForecast, error) {
	s, err := uc.History(ctx, p.Asset, p.From, p.To)
	if err != nil {
		return nil, err
	}
	traj, err := uc.predict(ctx, "predictions", models.PredictInput{
		Records:      recordInputs(s.Records),
		TimeInterval: p.Interval,
		Intervals:    p.Intervals,
	})
	if err != nil {
		return nil, err
	}
	return &models.HistoryForecast{
		AssetType:      p.Asset,
		HistoricalData: s.Records,
		Predictions:    traj.Records(),
	}, nil
}

// Report assesses liquidity risk over stored history and its forecast.
func (uc *ForecastUseCase) Report(ctx context.Context, p HistoryForecastParams, window int) (*models.ReportResponse, error) {
	hf, err := uc.HistoryForecast(ctx, p)
	if err != nil {
		return nil, err
	}
	predicted := make([]models.Record, 0, len(hf.Predictions))
	for _, fr := range hf.Predictions {
		ts, _ := time.Parse(time.RFC3339, fr.Timestamp)
		predicted = append(predicted, models.Record{
			AssetType:    fr.AssetType,
			Timestamp:    ts,
			BidAskSpread: fr.BidAskSpread,
			Volume:       fr.Volume,
			BidPrice:     fr.BidPrice,
		})
	}
	return &models.ReportResponse{
		Report:         AssessLiquidity(hf.HistoricalData, predicted, window),
		HistoricalData: hf.HistoricalData,
		Predictions:    hf.Predictions,
	}, nil
}

func recordInputs(recs []models.Record) []models.RecordInput {
	out := make([]models.RecordInput, len(recs))
	for i := range recs {
		r := recs[i]
		ts := r.Timestamp.UTC().Format(time.RFC3339Nano)
		out[i] = models.RecordInput{
			AssetType:    r.AssetType,
			Timestamp:    &ts,
			BidAskSpread: &r.BidAskSpread,
			Volume:       &r.Volume,
			BidPrice:     &r.BidPrice,
		}
	}
	return out
}

// errorKind labels an error for the errors counter.
func errorKind(err error) string {
	var (
		invalid *models.InvalidInputError
		model   *models.ModelUnavailableError
		source  *models.DataSourceError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_input"
	case errors.As(err, &model):
		return "model_unavailable"
	case errors.As(err, &source):
		return "data_source"
	case errors.Is(err, models.ErrTrainingInProgress):
		return "training_in_progress"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordError(string)             {}
func (nopMetrics) RecordLatency(string, float64)  {}
func (nopMetrics) RecordPredictSteps(int)         {}
func (nopMetrics) RecordTrainMSE(string, float64) {}
func (nopMetrics) RecordCache(string)             {}
