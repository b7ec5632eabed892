package forecaster

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/registry"
	"github.com/carbonwise/go-forecaster/stats"
)

// TrainReport summarizes a training run. Failed holds the error of every requested kind that
// could not be trained or persisted.
type TrainReport struct {
	Success       bool                           `json:"success"`
	Message       string                         `json:"message"`
	ModelsTrained []forecast.Kind                `json:"models_trained"`
	Metrics       map[forecast.Kind]stats.Scores `json:"metrics"`
	Failed        map[forecast.Kind]string       `json:"failed,omitempty"`
	DataInfo      DataInfo                       `json:"data_info"`
}

type DataInfo struct {
	TotalRecords    int       `json:"total_records"`
	TrainingRecords int       `json:"training_records"`
	TestRecords     int       `json:"test_records"`
	FeaturesCount   int       `json:"features_count"`
	DateRange       DateRange `json:"date_range"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Prediction is the forecast usage of one month.
type Prediction struct {
	Date           time.Time `json:"date"`
	PredictedUsage float64   `json:"predicted_usage"`
	Month          int       `json:"month"`
	Year           int       `json:"year"`
}

func newPredictions(periods []time.Time, preds []float64) []Prediction {
	out := make([]Prediction, len(periods))
	for i, p := range periods {
		out[i] = Prediction{
			Date:           p,
			PredictedUsage: preds[i],
			Month:          int(p.Month()),
			Year:           p.Year(),
		}
	}
	return out
}

// Forecast is the result of a prediction request. Fallback is set when the model output was
// degenerate and replaced by the seasonal baseline.
type Forecast struct {
	Resource    feature.Resource     `json:"resource"`
	Entity      string               `json:"entity"`
	Kind        forecast.Kind        `json:"model_kind"`
	Predictions []Prediction         `json:"predictions"`
	Components  []forecast.Component `json:"ensemble_components,omitempty"`
	Fallback    bool                 `json:"fallback,omitempty"`
}

// Values returns the predicted usage of every month in order.
func (f *Forecast) Values() []float64 {
	out := make([]float64, len(f.Predictions))
	for i, p := range f.Predictions {
		out[i] = p.PredictedUsage
	}
	return out
}

func (f *Forecast) TablePrint(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Forecast: %s/%s/%s\n", f.Resource, f.Entity, f.Kind); err != nil {
		return err
	}
	if f.Fallback {
		if _, err := fmt.Fprintln(w, "  Fallback: seasonal baseline"); err != nil {
			return err
		}
	}
	tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintf(tbl, "  Date\tPredicted Usage\t\n"); err != nil {
		return err
	}
	for _, p := range f.Predictions {
		if _, err := fmt.Fprintf(tbl, "  %s\t%.2f\t\n", p.Date.Format("2006-01"), p.PredictedUsage); err != nil {
			return err
		}
	}
	return tbl.Flush()
}

// Evaluation is the test split performance recorded when a model was trained.
type Evaluation struct {
	Resource   feature.Resource      `json:"resource"`
	Entity     string                `json:"entity"`
	Kind       forecast.Kind         `json:"model_kind"`
	TrainedAt  time.Time             `json:"trained_at"`
	Metrics    stats.Scores          `json:"metrics"`
	Comparison []forecast.Comparison `json:"comparison"`
	Components []forecast.Component  `json:"ensemble_components,omitempty"`
	Fallback   bool                  `json:"fallback,omitempty"`
}

func (e *Evaluation) TablePrint(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Evaluation: %s/%s trained %s\n", e.Resource, e.Entity, e.TrainedAt.Format(time.RFC3339)); err != nil {
		return err
	}
	scores := e.Metrics
	res := &forecast.Result{
		Kind:       e.Kind,
		Components: e.Components,
		Scores:     &scores,
		Comparison: e.Comparison,
		Fallback:   e.Fallback,
	}
	return res.TablePrint(w, "", "  ")
}

// ModelInfo describes one persisted model or ensemble.
type ModelInfo struct {
	ResourceType       feature.Resource     `json:"resource_type"`
	BuildingID         string               `json:"building_id"`
	ModelType          forecast.Kind        `json:"model_type"`
	TrainedAt          time.Time            `json:"trained_at"`
	Metrics            stats.Scores         `json:"metrics"`
	DataPoints         int                  `json:"data_points"`
	FeatureCount       int                  `json:"feature_count"`
	FeaturesUsed       []string             `json:"features_used"`
	EnsembleComponents []forecast.Component `json:"ensemble_components,omitempty"`
	Importances        map[string]float64   `json:"feature_importances,omitempty"`
}

func newModelInfo(m registry.Metadata) ModelInfo {
	return ModelInfo{
		ResourceType:       m.Resource,
		BuildingID:         m.Entity,
		ModelType:          m.Kind,
		TrainedAt:          m.TrainedAt,
		Metrics:            m.Metrics,
		DataPoints:         m.DataPoints,
		FeatureCount:       len(m.FeatureColumns),
		FeaturesUsed:       m.FeatureColumns,
		EnsembleComponents: m.EnsembleComponents,
		Importances:        m.Importances,
	}
}

// Health reports "ok" or the ping error of each backing store.
type Health struct {
	Registry   string `json:"registry"`
	DataSource string `json:"data_source"`
}

func (h Health) OK() bool {
	return h.Registry == "ok" && (h.DataSource == "ok" || h.DataSource == "not configured")
}
