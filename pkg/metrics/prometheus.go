package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	predictSteps prometheus.Histogram
	trainMSE     *prometheus.GaugeVec
	cacheTotal   *prometheus.CounterVec
}

// New registers the recorder's collectors on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_predict_duration_seconds",
				Help:    "Duration of forecast operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
		predictSteps: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fincast_predict_steps",
				Help:    "Number of autoregressive steps per prediction",
				Buckets: []float64{1, 5, 10, 30, 60, 100, 250, 500, 1000},
			},
		),
		trainMSE: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_train_mse",
				Help: "Mean squared error of the installed model by split",
			},
			[]string{"split"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_cache_requests_total",
				Help: "Prediction cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordPredictSteps(n int) {
	r.predictSteps.Observe(float64(n))
}

func (r *Recorder) RecordTrainMSE(split string, mse float64) {
	r.trainMSE.WithLabelValues(split).Set(mse)
}

// RecordCache counts a cache lookup; result is hit, miss or error.
func (r *Recorder) RecordCache(result string) {
	r.cacheTotal.WithLabelValues(result).Inc()
}
