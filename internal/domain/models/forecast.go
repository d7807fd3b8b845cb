package models

import "time"

// ForecastPoint is one step of a trajectory in original units.
type ForecastPoint struct {
	Timestamp time.Time
	Values    []float64
}

// ForecastTrajectory is the ordered output of the autoregressive predictor.
type ForecastTrajectory struct {
	AssetType string
	Interval  time.Duration
	Points    []ForecastPoint
}

// Records converts the trajectory into response records.
func (t *ForecastTrajectory) Records() []ForecastRecord {
	out := make([]ForecastRecord, len(t.Points))
	for i, p := range t.Points {
		out[i] = ForecastRecord{
			AssetType:    t.AssetType,
			Timestamp:    p.Timestamp.UTC().Format(time.RFC3339),
			BidAskSpread: p.Values[0],
			Volume:       p.Values[1],
			BidPrice:     p.Values[2],
		}
	}
	return out
}

// ForecastRecord is one element of the predict response.
type ForecastRecord struct {
	AssetType    string  `json:"asset_type"`
	Timestamp    string  `json:"timestamp"`
	BidAskSpread float64 `json:"bid_ask_spread"`
	Volume       float64 `json:"volume"`
	BidPrice     float64 `json:"bid_price"`
}

// PredictInput is a validated prediction request.
type PredictInput struct {
	Records       []RecordInput
	TimeInterval  time.Duration
	Intervals     int
	TimeToPredict time.Duration
}

// ForecastEvent is published after a successful prediction.
type ForecastEvent struct {
	AssetType   string           `json:"asset_type"`
	GeneratedAt time.Time        `json:"generated_at"`
	Steps       int              `json:"steps"`
	IntervalSec int64            `json:"interval_sec"`
	ModelTime   time.Time        `json:"model_trained_at"`
	Points      []ForecastRecord `json:"points"`
}

// HistoryForecast is the response of the history-backed forecast endpoint.
type HistoryForecast struct {
	AssetType      string           `json:"asset_type"`
	HistoricalData []Record         `json:"historical_data"`
	Predictions    []ForecastRecord `json:"predictions"`
}

// ModelInfo describes the loaded artifact.
type ModelInfo struct {
	Path        string    `json:"path"`
	Framing     string    `json:"framing"`
	WindowSize  int       `json:"window_size"`
	FutureSteps int       `json:"future_steps,omitempty"`
	Hidden      int       `json:"hidden"`
	Horizon     int       `json:"horizon"`
	TrainedAt   time.Time `json:"trained_at"`
	TrainMSE    float64   `json:"train_mse"`
	ValMSE      float64   `json:"val_mse"`
	TestMSE     float64   `json:"test_mse"`
	Samples     int       `json:"samples"`
}

// TrainJob is the payload of a queued training run.
type TrainJob struct {
	ID          string    `json:"id"`
	Asset       string    `json:"asset,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
