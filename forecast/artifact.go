package forecast

import (
	"errors"
	"fmt"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/models"
	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"
)

var ErrNoModel = errors.New("artifact has no fitted model")

// Artifact is a fitted learner together with the column layout, detrending base and scaler it was
// fit with. Predict reproduces the training transformation exactly.
type Artifact struct {
	Kind   Kind
	Schema []string

	// Names maps each schema column to the sanitized name the learner was fit with.
	Names map[string]string

	// Base is a linear fit on BaseColumns that the learner's target was detrended by.
	BaseColumns []string
	Base        *models.Linear

	Scaler      *models.StandardScaler
	TargetScale float64
	Model       models.Model
}

// Columns returns the learner's column names in schema order, sanitized through Names when the
// learner was fit with sanitized names. Every schema column must map to a distinct name.
func (a *Artifact) Columns() ([]string, error) {
	if a.Names == nil {
		return a.Schema, nil
	}
	cols := make([]string, len(a.Schema))
	seen := make(map[string]bool, len(a.Schema))
	for i, name := range a.Schema {
		s, ok := a.Names[name]
		if !ok || seen[s] {
			return nil, fmt.Errorf("no distinct sanitized name for %s, %w", name, feature.ErrSchemaMismatch)
		}
		seen[s] = true
		cols[i] = s
	}
	return cols, nil
}

// design returns the learner input for set with columns renamed and ordered as at fit time.
func (a *Artifact) design(set *feature.Set) (*mat.Dense, error) {
	cols, err := a.Columns()
	if err != nil {
		return nil, fmt.Errorf("invalid %s name mapping, %w", a.Kind, err)
	}
	if a.Names != nil {
		set = set.Rename(a.Names)
	}
	x, err := set.Select(cols)
	if err != nil {
		return nil, fmt.Errorf("unable to select %s feature columns, %w", a.Kind, err)
	}
	finite(x)
	return x, nil
}

// Predict returns unclipped predictions for the rows of set. The set must contain every schema
// column; Reconcile a projected set before calling Predict.
func (a *Artifact) Predict(set *feature.Set) ([]float64, error) {
	if a.Model == nil {
		return nil, ErrNoModel
	}
	x, err := a.design(set)
	if err != nil {
		return nil, err
	}

	var base []float64
	if a.Base != nil {
		bx, err := set.Select(a.BaseColumns)
		if err != nil {
			return nil, fmt.Errorf("unable to select %s base columns, %w", a.Kind, err)
		}
		finite(bx)
		if base, err = a.Base.Predict(bx); err != nil {
			return nil, fmt.Errorf("unable to predict %s base, %w", a.Kind, err)
		}
	}

	var in mat.Matrix = x
	if a.Scaler != nil {
		if in, err = a.Scaler.Transform(x); err != nil {
			return nil, fmt.Errorf("unable to scale %s features, %w", a.Kind, err)
		}
	}

	res, err := a.Model.Predict(in)
	if err != nil {
		return nil, fmt.Errorf("unable to predict with %s, %w", a.Kind, err)
	}
	scale := a.TargetScale
	if scale == 0 {
		scale = 1
	}
	for i := range res {
		if base != nil {
			res[i] += base[i]
		}
		res[i] /= scale
	}
	return res, nil
}

// Importances maps schema columns to their relative importance if the learner reports one.
func (a *Artifact) Importances() map[string]float64 {
	ex, ok := a.Model.(models.Explainer)
	if !ok {
		return nil
	}
	imp := ex.Importances()
	if len(imp) != len(a.Schema) {
		return nil
	}
	out := make(map[string]float64, len(imp))
	for i, name := range a.Schema {
		out[name] = imp[i]
	}
	return out
}

type artifactJSON struct {
	Kind        Kind                   `json:"kind"`
	Schema      []string               `json:"feature_columns"`
	Names       map[string]string      `json:"feature_names,omitempty"`
	BaseColumns []string               `json:"base_columns,omitempty"`
	Base        *models.Linear         `json:"base,omitempty"`
	Scaler      *models.StandardScaler `json:"scaler,omitempty"`
	TargetScale float64                `json:"target_scale"`
	Model       json.RawMessage        `json:"model"`
}

func (a *Artifact) MarshalJSON() ([]byte, error) {
	if a.Model == nil {
		return nil, ErrNoModel
	}
	model, err := json.Marshal(a.Model)
	if err != nil {
		return nil, fmt.Errorf("unable to encode %s model, %w", a.Kind, err)
	}
	return json.Marshal(artifactJSON{
		Kind:        a.Kind,
		Schema:      a.Schema,
		Names:       a.Names,
		BaseColumns: a.BaseColumns,
		Base:        a.Base,
		Scaler:      a.Scaler,
		TargetScale: a.TargetScale,
		Model:       model,
	})
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var v artifactJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	model, err := emptyModel(v.Kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v.Model, model); err != nil {
		return fmt.Errorf("unable to decode %s model, %w", v.Kind, err)
	}
	*a = Artifact{
		Kind:        v.Kind,
		Schema:      v.Schema,
		Names:       v.Names,
		BaseColumns: v.BaseColumns,
		Base:        v.Base,
		Scaler:      v.Scaler,
		TargetScale: v.TargetScale,
		Model:       model,
	}
	return nil
}
