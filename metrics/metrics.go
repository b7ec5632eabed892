// Package metrics holds the Prometheus collectors of training and prediction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors of the forecaster
type Metrics struct {
	TrainRuns      *prometheus.CounterVec
	ModelsTrained  *prometheus.CounterVec
	ModelFailures  *prometheus.CounterVec
	TrainDuration  *prometheus.HistogramVec
	Predictions    *prometheus.CounterVec
	PredictErrors  *prometheus.CounterVec
	PredictLatency *prometheus.HistogramVec

	// Fallbacks counts degenerate outputs replaced by a fallback estimate.
	Fallbacks *prometheus.CounterVec

	// SchemaDrift counts projected feature sets reconciled against a different trained schema.
	SchemaDrift *prometheus.CounterVec

	ModelR2 *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		TrainRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_train_runs_total",
				Help: "Training runs by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		ModelsTrained: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_models_trained_total",
				Help: "Models and ensembles trained and persisted",
			},
			[]string{"resource", "kind"},
		),
		ModelFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_model_failures_total",
				Help: "Models and ensembles that failed to train or persist",
			},
			[]string{"resource", "kind"},
		),
		TrainDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecaster_train_duration_seconds",
				Help:    "Duration of a training run",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"resource"},
		),
		Predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_predictions_total",
				Help: "Forecasts served",
			},
			[]string{"resource", "kind"},
		),
		PredictErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_prediction_errors_total",
				Help: "Forecast requests that failed",
			},
			[]string{"resource", "kind"},
		),
		PredictLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecaster_prediction_duration_seconds",
				Help:    "Duration of a forecast request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_fallbacks_total",
				Help: "Degenerate model outputs replaced by a fallback estimate",
			},
			[]string{"resource", "kind", "stage"},
		),
		SchemaDrift: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_schema_drift_total",
				Help: "Feature sets reconciled against a different trained schema",
			},
			[]string{"resource", "kind"},
		),
		ModelR2: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecaster_model_r2",
				Help: "Test split R2 of the last trained model",
			},
			[]string{"resource", "entity", "kind"},
		),
	}
}
