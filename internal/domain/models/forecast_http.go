package models

// Requests for forecast HTTP endpoints.

// PredictQuery carries the horizon parameters of POST /api/predict.
// time_interval_length and time_intervals are accepted as aliases.
type PredictQuery struct {
	TimeInterval       int64 `query:"time_interval" json:"time_interval" default:"86400" validate:"gte=1,lte=31536000"`
	TimeIntervalLength int64 `query:"time_interval_length" json:"-"`
	Intervals          int   `query:"intervals" json:"intervals" default:"30" validate:"gte=1,lte=10000"`
	TimeIntervals      int   `query:"time_intervals" json:"-"`
	TimeToPredict      int64 `query:"time_to_predict" json:"time_to_predict" validate:"gte=0,lte=315360000"`
}

// Normalize folds alias parameters into their canonical fields.
func (q *PredictQuery) Normalize() {
	if q.TimeInterval == 0 && q.TimeIntervalLength != 0 {
		q.TimeInterval = q.TimeIntervalLength
	}
	if q.Intervals == 0 && q.TimeIntervals != 0 {
		q.Intervals = q.TimeIntervals
	}
}

// HistoryRequest selects one asset's records in an optional time range.
type HistoryRequest struct {
	Asset string `query:"asset" json:"asset" validate:"required"`
	Start string `query:"start" json:"start"`
	End   string `query:"end" json:"end"`
}

// HistoryForecastRequest forecasts from stored history.
type HistoryForecastRequest struct {
	Asset              string `query:"asset" json:"asset" validate:"required"`
	Start              string `query:"start" json:"start"`
	End                string `query:"end" json:"end"`
	TimeInterval       int64  `query:"time_interval" json:"time_interval" default:"86400" validate:"gte=1,lte=31536000"`
	TimeIntervalLength int64  `query:"interval_length" json:"-"`
	Intervals          int    `query:"intervals" json:"intervals" default:"30" validate:"gte=1,lte=10000"`
	Window             int    `query:"window" json:"window" default:"8" validate:"gte=1,lte=1000"`
}

// Normalize folds alias parameters into their canonical fields.
func (q *HistoryForecastRequest) Normalize() {
	if q.TimeInterval == 0 && q.TimeIntervalLength != 0 {
		q.TimeInterval = q.TimeIntervalLength
	}
}

// TrainRequest optionally overrides the asset filter of a queued training run.
type TrainRequest struct {
	Asset string `query:"asset" json:"asset"`
}
