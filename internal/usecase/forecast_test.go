package usecase

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/features"
	"FinCast/internal/services/forecast"
	"FinCast/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeLoader struct {
	series []models.AssetSeries
	err    error
}

func (f *fakeLoader) Load(context.Context) ([]models.AssetSeries, error) {
	return f.series, f.err
}

func (f *fakeLoader) LoadAsset(_ context.Context, asset string, from, to time.Time) (*models.AssetSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &models.AssetSeries{AssetType: asset}
	for _, s := range f.series {
		if s.AssetType != asset {
			continue
		}
		for _, r := range s.Records {
			if (!from.IsZero() && r.Timestamp.Before(from)) || (!to.IsZero() && r.Timestamp.After(to)) {
				continue
			}
			out.Records = append(out.Records, r)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.ForecastEvent
	err    error
}

func (p *fakePublisher) PublishForecast(_ context.Context, ev *models.ForecastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	cache  map[string]int
	steps  []int
	mse    map[string]float64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, cache: map[string]int{}, mse: map[string]float64{}}
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) RecordLatency(string, float64) {}

func (m *countingMetrics) RecordPredictSteps(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, n)
}

func (m *countingMetrics) RecordTrainMSE(split string, mse float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mse[split] = mse
}

func (m *countingMetrics) RecordCache(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[result]++
}

func btcSeries(n int) models.AssetSeries {
	s := models.AssetSeries{AssetType: "BTC"}
	for i := 0; i < n; i++ {
		x := float64(i)
		s.Records = append(s.Records, models.Record{
			AssetType:    "BTC",
			Timestamp:    t0.Add(time.Duration(i) * time.Hour),
			BidAskSpread: 0.5 + 0.2*math.Sin(x/3),
			Volume:       100 + 20*math.Cos(x/4),
			BidPrice:     42000 + 50*math.Sin(x/5),
		})
	}
	return s
}

func testArtifact(t *testing.T) *forecast.Artifact {
	t.Helper()
	sc, err := features.Fit(btcSeries(30).Matrix(), models.FeatureNames, false)
	require.NoError(t, err)
	m, err := forecast.NewModel(forecast.Architecture{Features: 3, Hidden: 4, Horizon: 1}, 7)
	require.NoError(t, err)
	b := features.SequenceBuilder{Mode: features.SingleStep, WindowSize: 5}
	return forecast.NewArtifact(m, sc, b, &forecast.TrainReport{TrainMSE: 0.1, ValMSE: 0.2, TestMSE: 0.3})
}

func predictInput(n int) models.PredictInput {
	return models.PredictInput{
		Records:      recordInputs(btcSeries(8).Records),
		TimeInterval: time.Hour,
		Intervals:    n,
	}
}

func newUseCase(t *testing.T, c cache.Service, pub *fakePublisher, m *countingMetrics) *ForecastUseCase {
	t.Helper()
	cfg := ForecastConfig{
		ArtifactPath: filepath.Join(t.TempDir(), "model.json"),
		MaxSteps:     100,
		CacheTTL:     time.Minute,
	}
	var p domrepo.ForecastPublisher
	if pub != nil {
		p = pub
	}
	return NewForecastUseCase(cfg, TrainingConfig{}, &fakeLoader{series: []models.AssetSeries{btcSeries(30)}}, c, p, m, nil)
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}

func TestPredictWithoutModel(t *testing.T) {
	m := newCountingMetrics()
	uc := newUseCase(t, nil, nil, m)

	_, err := uc.Predict(context.Background(), predictInput(3))
	var mu *models.ModelUnavailableError
	require.ErrorAs(t, err, &mu)
	assert.Equal(t, 1, m.errors["model_unavailable"])
	assert.False(t, uc.Ready())

	_, err = uc.ModelInfo()
	require.ErrorAs(t, err, &mu)
}

func TestPredictPublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	m := newCountingMetrics()
	uc := newUseCase(t, nil, pub, m)
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))

	traj, err := uc.Predict(context.Background(), predictInput(4))
	require.NoError(t, err)
	require.Len(t, traj.Points, 4)
	assert.True(t, traj.Points[0].Timestamp.Equal(t0.Add(8*time.Hour)))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "BTC", ev.AssetType)
	assert.Equal(t, 4, ev.Steps)
	assert.Equal(t, int64(3600), ev.IntervalSec)
	assert.Len(t, ev.Points, 4)
	assert.Equal(t, []int{4}, m.steps)
	assert.Equal(t, 0.3, m.mse["test"])
}

func TestPredictPublishFailureIsIgnored(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	m := newCountingMetrics()
	uc := newUseCase(t, nil, pub, m)
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))

	_, err := uc.Predict(context.Background(), predictInput(2))
	require.NoError(t, err)
	assert.Equal(t, 1, m.errors["publish"])
}

func TestPredictInvalidInput(t *testing.T) {
	m := newCountingMetrics()
	uc := newUseCase(t, nil, nil, m)
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))

	in := predictInput(2)
	in.Records[3].Volume = nil
	_, err := uc.Predict(context.Background(), in)
	var inv *models.InvalidInputError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []string{"volume"}, inv.Missing)
	assert.Equal(t, 1, m.errors["invalid_input"])
}

func TestPredictionCacheWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := cache.NewRedisCacheWithClient(client, "fincast")

	pub := &fakePublisher{}
	m := newCountingMetrics()
	uc := newUseCase(t, rc, pub, m)
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))

	first, err := uc.Predict(context.Background(), predictInput(3))
	require.NoError(t, err)
	assert.Equal(t, 1, m.cache["miss"])
	assert.Len(t, mr.Keys(), 1)

	second, err := uc.Predict(context.Background(), predictInput(3))
	require.NoError(t, err)
	assert.Equal(t, 1, m.cache["hit"])
	assert.Equal(t, first.Records(), second.Records())
	assert.Len(t, pub.events, 1, "cache hits do not republish")

	_, err = uc.Predict(context.Background(), predictInput(5))
	require.NoError(t, err)
	assert.Equal(t, 2, m.cache["miss"])
	assert.Len(t, mr.Keys(), 2)

	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))
	assert.Empty(t, mr.Keys())
}

func TestPredictionCacheErrorsAreIgnored(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := cache.NewRedisCacheWithClient(client, "fincast")

	m := newCountingMetrics()
	uc := newUseCase(t, rc, nil, m)
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))
	mr.Close()

	traj, err := uc.Predict(context.Background(), predictInput(2))
	require.NoError(t, err)
	assert.Len(t, traj.Points, 2)
	assert.Equal(t, 1, m.cache["error"])
}

func TestReload(t *testing.T) {
	uc := newUseCase(t, nil, nil, newCountingMetrics())

	_, err := uc.Reload(context.Background())
	var mu *models.ModelUnavailableError
	require.ErrorAs(t, err, &mu)

	a := testArtifact(t)
	require.NoError(t, forecast.SaveArtifact(uc.cfg.ArtifactPath, a))
	info, err := uc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, info.WindowSize)
	assert.Equal(t, "single", info.Framing)
	assert.True(t, uc.Ready())

	// a broken artifact leaves the installed model in place
	require.NoError(t, forecast.SaveArtifact(uc.cfg.ArtifactPath, a))
	require.NoError(t, writeFile(uc.cfg.ArtifactPath, "{"))
	_, err = uc.Reload(context.Background())
	require.Error(t, err)
	_, err = uc.Predict(context.Background(), predictInput(2))
	assert.NoError(t, err)
}

func TestPredictDuringReload(t *testing.T) {
	uc := newUseCase(t, nil, nil, newCountingMetrics())
	require.NoError(t, forecast.SaveArtifact(uc.cfg.ArtifactPath, testArtifact(t)))
	_, err := uc.Reload(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := uc.Predict(context.Background(), predictInput(3))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := uc.Reload(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestHistoryForecast(t *testing.T) {
	uc := newUseCase(t, nil, nil, newCountingMetrics())
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))

	hf, err := uc.HistoryForecast(context.Background(), HistoryForecastParams{
		Asset:     "BTC",
		From:      t0.Add(10 * time.Hour),
		To:        t0.Add(19 * time.Hour),
		Interval:  time.Hour,
		Intervals: 6,
	})
	require.NoError(t, err)
	assert.Len(t, hf.HistoricalData, 10)
	require.Len(t, hf.Predictions, 6)
	assert.Equal(t, t0.Add(20*time.Hour).Format(time.RFC3339), hf.Predictions[0].Timestamp)

	_, err = uc.HistoryForecast(context.Background(), HistoryForecastParams{Asset: "DOGE", Interval: time.Hour, Intervals: 1})
	assert.ErrorIs(t, err, models.ErrNoRecords)
}

func TestReport(t *testing.T) {
	uc := newUseCase(t, nil, nil, newCountingMetrics())
	require.NoError(t, uc.Install(context.Background(), testArtifact(t)))

	rep, err := uc.Report(context.Background(), HistoryForecastParams{Asset: "BTC", Interval: time.Hour, Intervals: 5}, 8)
	require.NoError(t, err)
	assert.Equal(t, "BTC", rep.Report.AssetType)
	assert.Equal(t, 35, rep.Report.TotalRecords)
	assert.Len(t, rep.Predictions, 5)
}

func TestHistoryDataSourceError(t *testing.T) {
	m := newCountingMetrics()
	uc := NewForecastUseCase(ForecastConfig{}, TrainingConfig{}, &fakeLoader{err: &models.DataSourceError{Op: "fetch"}}, nil, nil, m, nil)
	_, err := uc.History(context.Background(), "BTC", time.Time{}, time.Time{})
	var dse *models.DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, 1, m.errors["data_source"])
}
