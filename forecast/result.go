package forecast

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/carbonwise/go-forecaster/stats"
)

// Comparison is one test period with the actual and predicted usage. Difference is predicted
// minus actual and DifferencePercent is relative to actual, 0 when actual is 0.
type Comparison struct {
	Date              time.Time `json:"date"`
	Actual            float64   `json:"actual"`
	Predicted         float64   `json:"predicted"`
	Difference        float64   `json:"difference"`
	DifferencePercent float64   `json:"difference_percent"`
}

func NewComparison(periods []time.Time, actual, predicted []float64) []Comparison {
	n := min(len(periods), len(actual), len(predicted))
	rows := make([]Comparison, 0, n)
	for i := 0; i < n; i++ {
		diff := predicted[i] - actual[i]
		var pct float64
		if actual[i] != 0 {
			pct = diff / actual[i] * 100
		}
		rows = append(rows, Comparison{
			Date:              periods[i],
			Actual:            actual[i],
			Predicted:         predicted[i],
			Difference:        diff,
			DifferencePercent: pct,
		})
	}
	return rows
}

// Result is the outcome of fitting one learner or combining one ensemble.
type Result struct {
	Kind Kind

	// Artifact is nil for ensembles.
	Artifact *Artifact

	// Components holds the renormalized weights of the ensemble members that were present.
	Components []Component

	Scores      *stats.Scores
	Predictions []float64
	Comparison  []Comparison

	// Fallback is set when the test predictions were replaced by the degenerate output fallback.
	Fallback bool
}

func (r *Result) TablePrint(w io.Writer, prefix, indent string) error {
	if _, err := fmt.Fprintf(w, "%s%sModel: %s\n", prefix, strings.Repeat(indent, 0), r.Kind); err != nil {
		return err
	}
	if len(r.Components) > 0 {
		if _, err := fmt.Fprintf(w, "%s%sComponents:\n", prefix, strings.Repeat(indent, 1)); err != nil {
			return err
		}
		for _, c := range r.Components {
			if _, err := fmt.Fprintf(w, "%s%s%s: %.3f\n", prefix, strings.Repeat(indent, 2), c.Kind, c.Weight); err != nil {
				return err
			}
		}
	}
	if r.Fallback {
		if _, err := fmt.Fprintf(w, "%s%sFallback: true\n", prefix, strings.Repeat(indent, 1)); err != nil {
			return err
		}
	}

	if r.Scores != nil {
		if _, err := fmt.Fprintf(w, "%s%sScores:\n", prefix, strings.Repeat(indent, 1)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%sMAPE: %.3f    RMSE: %.3f    MAE: %.3f    R2: %.3f\n",
			prefix, strings.Repeat(indent, 2),
			r.Scores.MAPE,
			r.Scores.RMSE,
			r.Scores.MAE,
			r.Scores.R2,
		); err != nil {
			return err
		}
	}

	if len(r.Comparison) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s%sComparison:\n", prefix, strings.Repeat(indent, 1)); err != nil {
		return err
	}
	tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintf(tbl, "%s%sDate\tActual\tPredicted\tDifference\tDifference %%\t\n", prefix, strings.Repeat(indent, 2)); err != nil {
		return err
	}
	for _, c := range r.Comparison {
		if _, err := fmt.Fprintf(tbl, "%s%s%s\t%.0f\t%.0f\t%.0f\t%.2f%%\t\n",
			prefix, strings.Repeat(indent, 2),
			c.Date.Format("2006-01"), c.Actual, c.Predicted, c.Difference, c.DifferencePercent); err != nil {
			return err
		}
	}
	return tbl.Flush()
}
