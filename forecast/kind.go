// Package forecast fits regression learners on engineered monthly features, scores them on a
// held out tail of the series and combines fitted learners into weighted ensembles.
package forecast

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrUnknownKind = errors.New("unknown model kind")

// Kind names a single learner or an ensemble of learners.
type Kind string

const (
	KindRandomForest         Kind = "rf"
	KindGradientBoostedTrees Kind = "xgb"
	KindGradientBoosting     Kind = "gb"

	KindEnsembleRFXGB Kind = "ensemble_rf_xgb"
	KindEnsembleRFGB  Kind = "ensemble_rf_gb"
	KindEnsembleXGBGB Kind = "ensemble_xgb_gb"
	KindEnsembleAll   Kind = "ensemble_all"
)

const ensemblePrefix = "ensemble_"

// LearnerKinds lists every single learner kind in training order.
var LearnerKinds = []Kind{KindRandomForest, KindGradientBoostedTrees, KindGradientBoosting}

var kindAliases = map[string]Kind{
	"random_forest":     KindRandomForest,
	"randomforest":      KindRandomForest,
	"xgboost":           KindGradientBoostedTrees,
	"gradient_boosting": KindGradientBoosting,
	"gradientboosting":  KindGradientBoosting,
}

// ParseKind normalizes a model kind name. Any name starting with "ensemble_" parses as an
// ensemble kind; whether it is configured is checked when it is used.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindAliases[name]; ok {
		return k, nil
	}
	k := Kind(name)
	if slices.Contains(LearnerKinds, k) {
		return k, nil
	}
	if k.Ensemble() && len(name) > len(ensemblePrefix) {
		return k, nil
	}
	return "", fmt.Errorf("%q, %w", s, ErrUnknownKind)
}

// Ensemble reports whether the kind names an ensemble.
func (k Kind) Ensemble() bool {
	return strings.HasPrefix(string(k), ensemblePrefix)
}

func (k Kind) String() string {
	return string(k)
}

// Component is one member of an ensemble with its static combination weight.
type Component struct {
	Kind   Kind    `json:"kind"`
	Weight float64 `json:"weight"`
}

// DefaultEnsembles returns the static ensemble weight table.
func DefaultEnsembles() map[Kind][]Component {
	return map[Kind][]Component{
		KindEnsembleRFXGB: {
			{KindRandomForest, 0.5},
			{KindGradientBoostedTrees, 0.5},
		},
		KindEnsembleRFGB: {
			{KindRandomForest, 0.5},
			{KindGradientBoosting, 0.5},
		},
		KindEnsembleXGBGB: {
			{KindGradientBoostedTrees, 0.5},
			{KindGradientBoosting, 0.5},
		},
		KindEnsembleAll: {
			{KindRandomForest, 0.40},
			{KindGradientBoostedTrees, 0.35},
			{KindGradientBoosting, 0.25},
		},
	}
}
