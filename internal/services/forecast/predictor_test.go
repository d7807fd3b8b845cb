package forecast

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact(t *testing.T, window int) *Artifact {
	t.Helper()
	sc, err := features.Fit([][]float64{{1, 100, 10}, {2, 110, 11}, {3, 120, 12}}, models.FeatureNames, false)
	require.NoError(t, err)
	m, err := NewModel(Architecture{Features: 3, Hidden: 6, Horizon: 1}, 11)
	require.NoError(t, err)
	b := features.SequenceBuilder{Mode: features.SingleStep, WindowSize: window}
	return NewArtifact(m, sc, b, &TrainReport{Samples: 3})
}

func strp(s string) *string   { return &s }
func f64p(v float64) *float64 { return &v }

func input(ts string, spread, vol, bid float64) models.RecordInput {
	return models.RecordInput{
		AssetType:    "BTC",
		Timestamp:    strp(ts),
		BidAskSpread: f64p(spread),
		Volume:       f64p(vol),
		BidPrice:     f64p(bid),
	}
}

func TestPredictScenario(t *testing.T) {
	a := testArtifact(t, 2)
	p, err := NewPredictor(a, 0)
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := models.PredictInput{
		Records: []models.RecordInput{
			input(t0.Add(-time.Hour).Format(time.RFC3339), 1, 100, 10),
			input(t0.Format(time.RFC3339), 2, 110, 11),
		},
		TimeInterval: time.Hour,
		Intervals:    2,
	}
	traj, err := p.Predict(in)
	require.NoError(t, err)
	require.Len(t, traj.Points, 2)
	assert.Equal(t, "BTC", traj.AssetType)
	assert.True(t, traj.Points[0].Timestamp.Equal(t0.Add(time.Hour)))
	assert.True(t, traj.Points[1].Timestamp.Equal(t0.Add(2*time.Hour)))

	// step 1 depends only on the model and the scaled seed window
	w := features.Window{
		Steps: a.Scaler.Transform([][]float64{{1, 100, 10}, {2, 110, 11}}),
		Mask:  []bool{true, true},
	}
	m, err := a.Model()
	require.NoError(t, err)
	first := m.Predict(w)[0]
	want := a.Scaler.InverseTransform([][]float64{first})[0]
	assert.InDeltaSlice(t, want, traj.Points[0].Values, 1e-12)

	// step 2 sees the rolled window
	w2 := features.Window{Steps: [][]float64{w.Steps[1], first}, Mask: []bool{true, true}}
	second := a.Scaler.InverseTransform(m.Predict(w2))[0]
	assert.InDeltaSlice(t, second, traj.Points[1].Values, 1e-12)
}

func TestPredictDuplicateTimestampKeepsLastRecord(t *testing.T) {
	p, err := NewPredictor(testArtifact(t, 2), 0)
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := input(t0.Add(-time.Hour).Format(time.RFC3339), 1, 100, 10)
	withDup, err := p.Predict(models.PredictInput{
		Records: []models.RecordInput{
			input(t0.Format(time.RFC3339), 9, 190, 19),
			prev,
			input(t0.Format(time.RFC3339), 2, 110, 11),
		},
		TimeInterval: time.Hour,
		Intervals:    3,
	})
	require.NoError(t, err)
	clean, err := p.Predict(models.PredictInput{
		Records:      []models.RecordInput{prev, input(t0.Format(time.RFC3339), 2, 110, 11)},
		TimeInterval: time.Hour,
		Intervals:    3,
	})
	require.NoError(t, err)

	require.Len(t, withDup.Points, 3)
	for k := range clean.Points {
		assert.True(t, withDup.Points[k].Timestamp.Equal(clean.Points[k].Timestamp))
		assert.InDeltaSlice(t, clean.Points[k].Values, withDup.Points[k].Values, 1e-12)
	}
}

func TestPredictReturnsExactlyNSpacedSteps(t *testing.T) {
	p, err := NewPredictor(testArtifact(t, 4), 500)
	require.NoError(t, err)

	recs := []models.RecordInput{
		input("2024-01-03T00:00:00Z", 1.2, 105, 10.5),
		input("2024-01-01T00:00:00Z", 1, 100, 10),
		input("2024-01-02T00:00:00Z", 1.1, 102, 10.2),
	}
	for _, n := range []int{1, 7, 30, 500} {
		traj, err := p.Predict(models.PredictInput{Records: recs, TimeInterval: 24 * time.Hour, Intervals: n})
		require.NoError(t, err)
		require.Len(t, traj.Points, n)
		last := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
		for k, pt := range traj.Points {
			assert.True(t, pt.Timestamp.Equal(last.Add(time.Duration(k+1)*24*time.Hour)))
		}
	}
}

func TestPredictTimeToPredictUsesCeil(t *testing.T) {
	p, err := NewPredictor(testArtifact(t, 2), 0)
	require.NoError(t, err)
	n, err := p.Steps(models.PredictInput{TimeInterval: time.Hour, TimeToPredict: 2*time.Hour + time.Second, Intervals: 30})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPredictRejectsHorizonOverflow(t *testing.T) {
	p, err := NewPredictor(testArtifact(t, 2), 0)
	require.NoError(t, err)

	_, err = p.Steps(models.PredictInput{TimeInterval: time.Duration(math.MaxInt64/2 + 1), Intervals: 2})
	var invalid *models.InvalidInputError
	require.ErrorAs(t, err, &invalid)

	n, err := p.Steps(models.PredictInput{TimeInterval: time.Duration(math.MaxInt64 / 2), Intervals: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPredictShortHistoryIsPadded(t *testing.T) {
	a := testArtifact(t, 5)
	p, err := NewPredictor(a, 0)
	require.NoError(t, err)

	one := []models.RecordInput{input("2024-01-01 00:00:00+00:00", 2, 110, 11)}
	traj, err := p.Predict(models.PredictInput{Records: one, TimeInterval: time.Minute, Intervals: 4})
	require.NoError(t, err)
	require.Len(t, traj.Points, 4)

	// a single record behaves as if it were repeated window-size times
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repeated := make([]models.RecordInput, 5)
	for i := range repeated {
		repeated[i] = input(t0.Add(time.Duration(i-4)*time.Minute).Format(time.RFC3339), 2, 110, 11)
	}
	traj2, err := p.Predict(models.PredictInput{Records: repeated, TimeInterval: time.Minute, Intervals: 4})
	require.NoError(t, err)
	for k := range traj.Points {
		assert.Equal(t, traj.Points[k].Values, traj2.Points[k].Values)
	}
}

func TestPredictInvalidInput(t *testing.T) {
	p, err := NewPredictor(testArtifact(t, 2), 10)
	require.NoError(t, err)

	noBid := input("2024-01-01T00:00:00Z", 1, 100, 10)
	noBid.BidPrice = nil
	noVol := input("2024-01-02T00:00:00Z", 1, 100, 10)
	noVol.Volume = nil

	cases := []struct {
		name    string
		in      models.PredictInput
		missing []string
	}{
		{"missing bid_price", models.PredictInput{Records: []models.RecordInput{noBid}, TimeInterval: time.Hour, Intervals: 1}, []string{"bid_price"}},
		{"missing across records", models.PredictInput{Records: []models.RecordInput{noBid, noVol}, TimeInterval: time.Hour, Intervals: 1}, []string{"volume", "bid_price"}},
		{"empty batch", models.PredictInput{TimeInterval: time.Hour, Intervals: 1}, nil},
		{"bad timestamp", models.PredictInput{Records: []models.RecordInput{input("soon", 1, 1, 1)}, TimeInterval: time.Hour, Intervals: 1}, nil},
		{"too many steps", models.PredictInput{Records: []models.RecordInput{input("2024-01-01T00:00:00Z", 1, 1, 1)}, TimeInterval: time.Hour, Intervals: 11}, nil},
		{"zero interval", models.PredictInput{Records: []models.RecordInput{input("2024-01-01T00:00:00Z", 1, 1, 1)}, Intervals: 1}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Predict(tc.in)
			var inv *models.InvalidInputError
			require.True(t, errors.As(err, &inv), "got %v", err)
			if tc.missing != nil {
				assert.Equal(t, tc.missing, inv.Missing)
				assert.Contains(t, inv.Error(), tc.missing[len(tc.missing)-1])
			}
		})
	}
}

func TestPredictRejectsMixedAssets(t *testing.T) {
	p, err := NewPredictor(testArtifact(t, 2), 0)
	require.NoError(t, err)
	other := input("2024-01-02T00:00:00Z", 1, 1, 1)
	other.AssetType = "ETH"
	_, err = p.Predict(models.PredictInput{
		Records:      []models.RecordInput{input("2024-01-01T00:00:00Z", 1, 1, 1), other},
		TimeInterval: time.Hour,
		Intervals:    1,
	})
	var inv *models.InvalidInputError
	assert.True(t, errors.As(err, &inv))
}

func TestArtifactRoundTripIsDeterministic(t *testing.T) {
	a := testArtifact(t, 3)
	path := filepath.Join(t.TempDir(), "models", "model.json")
	require.NoError(t, SaveArtifact(path, a))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a.Params, loaded.Params)
	assert.Equal(t, a.Scaler, loaded.Scaler)

	in := models.PredictInput{
		Records: []models.RecordInput{
			input("2024-01-01T00:00:00Z", 1.3, 104, 10.1),
			input("2024-01-01T01:00:00Z", 1.7, 111, 10.9),
		},
		TimeInterval: time.Hour,
		Intervals:    12,
	}
	p1, err := NewPredictor(a, 0)
	require.NoError(t, err)
	p2, err := NewPredictor(loaded, 0)
	require.NoError(t, err)
	t1, err := p1.Predict(in)
	require.NoError(t, err)
	t2, err := p2.Predict(in)
	require.NoError(t, err)
	assert.Equal(t, t1.Points, t2.Points)
}

func TestLoadArtifactFailures(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadArtifact(filepath.Join(dir, "missing.json"))
	var mu *models.ModelUnavailableError
	require.True(t, errors.As(err, &mu))

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	_, err = LoadArtifact(garbage)
	assert.True(t, errors.As(err, &mu))

	a := testArtifact(t, 2)
	a.Params = a.Params[:3]
	b, err := json.Marshal(a)
	require.NoError(t, err)
	truncated := filepath.Join(dir, "truncated.json")
	require.NoError(t, os.WriteFile(truncated, b, 0o644))
	_, err = LoadArtifact(truncated)
	assert.True(t, errors.As(err, &mu))

	assert.Error(t, SaveArtifact(filepath.Join(dir, "v99.json"), &Artifact{Version: 99}))
}
