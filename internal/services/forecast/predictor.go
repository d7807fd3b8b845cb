package forecast

import (
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
	"FinCast/pkg/util"
)

// DefaultMaxSteps bounds N when no limit is configured.
const DefaultMaxSteps = 1000

// Predictor runs autoregressive inference with one immutable model and the
// scaler persisted next to it.
type Predictor struct {
	model      *Model
	scaler     *features.ScalerState
	windowSize int
	maxSteps   int
}

// NewPredictor builds a predictor from a loaded artifact.
func NewPredictor(a *Artifact, maxSteps int) (*Predictor, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	m, err := a.Model()
	if err != nil {
		return nil, err
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Predictor{model: m, scaler: a.Scaler, windowSize: a.WindowSize, maxSteps: maxSteps}, nil
}

// WindowSize is the length of the rolling window.
func (p *Predictor) WindowSize() int { return p.windowSize }

// Steps resolves the number of prediction steps for in.
func (p *Predictor) Steps(in models.PredictInput) (int, error) {
	if in.TimeInterval <= 0 {
		return 0, &models.InvalidInputError{Reason: "time_interval must be positive"}
	}
	n := in.Intervals
	if in.TimeToPredict > 0 {
		n = int(math.Ceil(float64(in.TimeToPredict) / float64(in.TimeInterval)))
	}
	if n < 1 || n > p.maxSteps {
		return 0, &models.InvalidInputError{Reason: fmt.Sprintf("number of steps %d outside [1, %d]", n, p.maxSteps)}
	}
	if in.TimeInterval > time.Duration(math.MaxInt64)/time.Duration(n) {
		return 0, &models.InvalidInputError{Reason: fmt.Sprintf("%d steps of %s overflow the forecast horizon", n, in.TimeInterval)}
	}
	return n, nil
}

// Predict seeds a rolling window from the most recent records and feeds each
// prediction back in until N steps are produced. A request with fewer than
// window-size records is padded by repeating its earliest record, which pulls
// the first predictions toward that value.
func (p *Predictor) Predict(in models.PredictInput) (*models.ForecastTrajectory, error) {
	records, err := parseInputs(in.Records)
	if err != nil {
		return nil, err
	}
	n, err := p.Steps(in)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(records))
	for i, r := range records {
		vectors[i] = r.Features()
	}
	scaled := p.scaler.Transform(vectors)

	window := seedWindow(scaled, p.windowSize)
	preds := make([][]float64, 0, n)
	for k := 0; k < n; k++ {
		next := p.model.Predict(window)[0]
		preds = append(preds, next)
		window = roll(window, next)
	}

	values := p.scaler.InverseTransform(preds)
	last := records[len(records)-1].Timestamp
	traj := &models.ForecastTrajectory{
		AssetType: records[0].AssetType,
		Interval:  in.TimeInterval,
		Points:    make([]models.ForecastPoint, n),
	}
	for k := 0; k < n; k++ {
		traj.Points[k] = models.ForecastPoint{
			Timestamp: last.Add(time.Duration(k+1) * in.TimeInterval),
			Values:    values[k],
		}
	}
	return traj, nil
}

// parseInputs validates the request batch and returns it sorted by timestamp.
func parseInputs(in []models.RecordInput) ([]models.Record, error) {
	if len(in) == 0 {
		return nil, &models.InvalidInputError{Reason: "no records supplied"}
	}

	seen := make(map[string]bool)
	for _, r := range in {
		for _, c := range r.MissingColumns() {
			seen[c] = true
		}
	}
	if len(seen) > 0 {
		var missing []string
		for _, c := range []string{models.ColTimestamp, models.ColBidAskSpread, models.ColVolume, models.ColBidPrice} {
			if seen[c] {
				missing = append(missing, c)
			}
		}
		return nil, &models.InvalidInputError{Missing: missing}
	}

	asset := in[0].AssetType
	out := make([]models.Record, len(in))
	for i, r := range in {
		if r.AssetType != asset {
			return nil, &models.InvalidInputError{Reason: fmt.Sprintf("mixed asset types %q and %q", asset, r.AssetType)}
		}
		ts, err := util.ParseTimestamp(*r.Timestamp)
		if err != nil {
			return nil, &models.InvalidInputError{Reason: fmt.Sprintf("record %d: %v", i, err)}
		}
		rec := models.Record{
			AssetType:    asset,
			Timestamp:    ts,
			BidAskSpread: *r.BidAskSpread,
			Volume:       *r.Volume,
			BidPrice:     *r.BidPrice,
		}
		for _, v := range rec.Features() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &models.InvalidInputError{Reason: fmt.Sprintf("record %d has a non-finite value", i)}
			}
		}
		out[i] = rec
	}
	return models.SortByTimestamp(out), nil
}

// seedWindow takes the last size rows, front-padding with copies of the first
// row when fewer are available.
func seedWindow(rows [][]float64, size int) features.Window {
	steps := make([][]float64, 0, size)
	for i := len(rows); i < size; i++ {
		steps = append(steps, append([]float64(nil), rows[0]...))
	}
	if len(rows) > size {
		rows = rows[len(rows)-size:]
	}
	for _, r := range rows {
		steps = append(steps, append([]float64(nil), r...))
	}
	mask := make([]bool, size)
	for i := range mask {
		mask[i] = true
	}
	return features.Window{Steps: steps, Mask: mask}
}

// roll drops the oldest step and appends next, keeping the length fixed.
func roll(w features.Window, next []float64) features.Window {
	steps := make([][]float64, len(w.Steps))
	copy(steps, w.Steps[1:])
	steps[len(steps)-1] = append([]float64(nil), next...)
	return features.Window{Steps: steps, Mask: w.Mask}
}
