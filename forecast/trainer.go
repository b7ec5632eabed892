package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/models"
	"github.com/carbonwise/go-forecaster/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrDegenerateOutput      = errors.New("model produced a degenerate prediction")
	ErrNoComponentsAvailable = errors.New("none of the ensemble components are available")
	ErrNoModelsTrained       = errors.New("no models or ensembles were trained")
)

// minOutlierSamples is the shortest target outlier clamping applies to.
const minOutlierSamples = 8

// baseColumns are the features a detrending base is fit on when present in the schema.
var baseColumns = []string{
	feature.GrowthMonthIndex,
	feature.NewSeasonality(feature.CycleMonth, feature.FourierCompSin).String(),
	feature.NewSeasonality(feature.CycleMonth, feature.FourierCompCos).String(),
}

type Options struct {
	Profiles  *Profiles            `json:"profiles"`
	Ensembles map[Kind][]Component `json:"ensembles"`

	// Detrend fits a linear base on month index and monthly seasonality and trains the learner on
	// the residual so tree models can follow a trend past the training range.
	Detrend bool `json:"detrend"`

	// BaseLambda fits the detrending base as a lasso with this L1 penalty in target units. 0 fits
	// it by ordinary least squares.
	BaseLambda float64 `json:"base_lambda"`

	// ScaleSmallTargets multiplies targets with a mean below 1 by a power of ten before fitting
	// and divides predictions back.
	ScaleSmallTargets bool `json:"scale_small_targets"`

	// TargetFloor is the smallest usage a target is clipped to.
	TargetFloor float64 `json:"target_floor"`

	// OutlierFactor widens the interquartile range of the training target. Values beyond it are
	// clamped to the nearest inlier before fitting. 0 disables clamping.
	OutlierFactor float64 `json:"outlier_factor"`

	// FallbackUsage replaces degenerate output when positive. 0 uses the historical mean or the
	// recent linear trend.
	FallbackUsage float64 `json:"fallback_usage"`

	// Workers bounds the number of learners fit concurrently.
	Workers int `json:"workers"`

	Logger *slog.Logger `json:"-"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Profiles:      NewDefaultProfiles(),
		Ensembles:     DefaultEnsembles(),
		Detrend:       true,
		TargetFloor:   0.01,
		OutlierFactor: 3,
		Workers:       len(LearnerKinds),
	}
}

func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	profiles, err := o.Profiles.Validate()
	if err != nil {
		return nil, err
	}
	o.Profiles = profiles
	if o.Ensembles == nil {
		o.Ensembles = DefaultEnsembles()
	}
	for k, comps := range o.Ensembles {
		if !k.Ensemble() || len(comps) == 0 {
			return nil, fmt.Errorf("ensemble %q, %w", k, ErrUnknownKind)
		}
		for _, c := range comps {
			if c.Kind.Ensemble() || c.Weight < 0 {
				return nil, fmt.Errorf("ensemble %q component %q, %w", k, c.Kind, ErrUnknownKind)
			}
		}
	}
	if o.BaseLambda < 0 {
		return nil, fmt.Errorf("base lambda %g, %w", o.BaseLambda, models.ErrNegativeLambda)
	}
	if o.TargetFloor <= 0 {
		o.TargetFloor = 0.01
	}
	if o.OutlierFactor < 0 {
		o.OutlierFactor = 0
	}
	if o.FallbackUsage < 0 {
		o.FallbackUsage = 0
	}
	if o.Workers <= 0 {
		o.Workers = len(LearnerKinds)
	}
	return o, nil
}

// Trainer fits learners and ensembles. It holds only immutable configuration and is safe for
// concurrent use.
type Trainer struct {
	opt *Options
	log *slog.Logger
}

func New(opt *Options) (*Trainer, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Trainer{opt: opt, log: log}, nil
}

func (t *Trainer) Options() *Options {
	return t.opt
}

// Components returns the configured members of an ensemble kind.
func (t *Trainer) Components(k Kind) ([]Component, error) {
	comps, ok := t.opt.Ensembles[k]
	if !ok {
		return nil, fmt.Errorf("ensemble %q is not configured, %w", k, ErrUnknownKind)
	}
	return comps, nil
}

// Fit trains a single learner kind on train and scores it on test.
func (t *Trainer) Fit(k Kind, r feature.Resource, train, test Split) (*Result, error) {
	learner, err := t.opt.Profiles.Learner(k, r)
	if err != nil {
		return nil, err
	}
	if train.Len() == 0 || test.Len() == 0 {
		return nil, ErrEmptySplit
	}

	y := t.cleanTarget(train.Y)
	a := &Artifact{
		Kind:        k,
		Schema:      train.X.Names(),
		TargetScale: 1,
	}
	if learner.Sanitized() {
		a.Names = feature.SanitizeNames(a.Schema)
	}
	x, err := a.design(train.X)
	if err != nil {
		return nil, fmt.Errorf("unable to build %s training matrix, %w", k, err)
	}
	if t.opt.ScaleSmallTargets {
		a.TargetScale = smallTargetScale(y)
	}
	target := make([]float64, len(y))
	for i, v := range y {
		target[i] = v * a.TargetScale
	}

	if t.opt.Detrend {
		if err := t.detrend(a, train.X, target); err != nil {
			t.log.Warn("unable to fit detrending base, training on raw target", "kind", k, "error", err)
		}
	}
	var in mat.Matrix = x
	if learner.Scaled() {
		a.Scaler = new(models.StandardScaler)
		if in, err = a.Scaler.FitTransform(x); err != nil {
			return nil, fmt.Errorf("unable to fit %s scaler, %w", k, err)
		}
	}

	model, err := learner.New()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize %s, %w", k, err)
	}
	if err := model.Fit(in, mat.NewDense(len(target), 1, target)); err != nil {
		return nil, fmt.Errorf("unable to fit %s, %w", k, err)
	}
	a.Model = model

	raw, err := a.Predict(test.X)
	if err != nil {
		return nil, err
	}
	preds, fallback := t.Recover(k, raw, y)
	res, err := newResult(k, test, preds)
	if err != nil {
		return nil, err
	}
	res.Artifact = a
	res.Fallback = fallback
	return res, nil
}

// detrend fits the base on the schema's trend and seasonal columns and replaces target with the
// residual.
func (t *Trainer) detrend(a *Artifact, set *feature.Set, target []float64) error {
	var cols []string
	for _, name := range baseColumns {
		if _, ok := set.Get(name); ok {
			cols = append(cols, name)
		}
	}
	if len(cols) == 0 || len(target) <= len(cols)+1 {
		return nil
	}
	bx, err := set.Select(cols)
	if err != nil {
		return err
	}
	finite(bx)
	model, err := t.baseModel()
	if err != nil {
		return err
	}
	if err := model.Fit(bx, mat.NewDense(len(target), 1, target)); err != nil {
		return err
	}
	base := models.NewLinear(model)
	fitted, err := base.Predict(bx)
	if err != nil {
		return err
	}
	for i := range target {
		target[i] -= fitted[i]
	}
	a.Base = base
	a.BaseColumns = cols
	return nil
}

func (t *Trainer) baseModel() (models.LinearModel, error) {
	if t.opt.BaseLambda > 0 {
		opt := models.NewDefaultLassoOptions()
		opt.Lambda = t.opt.BaseLambda
		return models.NewLassoRegression(opt)
	}
	return models.NewOLSRegression(nil)
}

// cleanTarget floors the target and clamps its tukey outliers to the range of the remaining
// values.
func (t *Trainer) cleanTarget(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = math.Max(stats.Finite(v, t.opt.TargetFloor), t.opt.TargetFloor)
	}
	if t.opt.OutlierFactor <= 0 || len(out) < minOutlierSamples {
		return out
	}
	idx := stats.DetectOutliers(out, 0.25, 0.75, t.opt.OutlierFactor)
	if len(idx) == 0 {
		return out
	}

	outlier := make(map[int]bool, len(idx))
	for _, i := range idx {
		outlier[i] = true
	}
	lower, upper := math.Inf(1), math.Inf(-1)
	for i, v := range out {
		if !outlier[i] {
			lower = math.Min(lower, v)
			upper = math.Max(upper, v)
		}
	}
	for _, i := range idx {
		out[i] = math.Min(math.Max(out[i], lower), upper)
	}
	t.log.Warn("clamped target outliers", "count", len(idx), "lower", lower, "upper", upper)
	return out
}

// smallTargetScale returns the power of ten lifting a mean below 1 to at least 1.
func smallTargetScale(y []float64) float64 {
	mean := stat.Mean(y, nil)
	if mean >= 1 || mean <= 0 || math.IsNaN(mean) {
		return 1
	}
	return math.Pow(10, math.Ceil(-math.Log10(mean)))
}

func finite(x *mat.Dense) {
	x.Apply(func(_, _ int, v float64) float64 {
		return stats.Finite(v, 0)
	}, x)
}

// Degenerate reports whether predictions are empty, contain a NaN or infinity, or are all zero.
func Degenerate(preds []float64) bool {
	if len(preds) == 0 {
		return true
	}
	positive := false
	for _, v := range preds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		if v > 0 {
			positive = true
		}
	}
	return !positive
}

// Recover clips predictions to be non-negative. Degenerate predictions are replaced by the
// fallback estimate from history and logged; the second return value reports whether that
// happened.
func (t *Trainer) Recover(k Kind, preds, history []float64) ([]float64, bool) {
	if Degenerate(preds) {
		t.log.Warn("degenerate model output, using fallback estimate",
			"kind", k, "error", ErrDegenerateOutput, "predictions", len(preds))
		return t.Fallback(history, len(preds)), true
	}
	out := make([]float64, len(preds))
	for i, v := range preds {
		out[i] = math.Max(v, 0)
	}
	return out, false
}

// Fallback estimates n periods from history: FallbackUsage when configured, otherwise the linear
// trend of the last six values where it stays positive and the historical mean where it does not.
func (t *Trainer) Fallback(history []float64, n int) []float64 {
	out := make([]float64, n)
	if t.opt.FallbackUsage > 0 {
		for i := range out {
			out[i] = t.opt.FallbackUsage
		}
		return out
	}

	mean := stats.Finite(stats.Mean(history), 0)
	k := min(6, len(history))
	var alpha, beta float64
	trend := k >= 3
	if trend {
		xs := make([]float64, k)
		for i := range xs {
			xs[i] = float64(i)
		}
		alpha, beta = stat.LinearRegression(xs, history[len(history)-k:], nil, false)
	}
	for i := range out {
		out[i] = mean
		if !trend {
			continue
		}
		if v := alpha + beta*float64(k+i); v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}

// Combine returns the weighted average of the available component predictions. Components with no
// predictions are skipped and the remaining weights are renormalized to sum to 1.
func Combine(components []Component, preds map[Kind][]float64) ([]float64, []Component, error) {
	var used []Component
	var total float64
	n := -1
	for _, c := range components {
		p, ok := preds[c.Kind]
		if !ok || p == nil || c.Weight <= 0 {
			continue
		}
		if n >= 0 && len(p) != n {
			return nil, nil, fmt.Errorf("component %s has %d predictions, expected %d, %w", c.Kind, len(p), n, stats.ErrResLenMismatch)
		}
		n = len(p)
		used = append(used, c)
		total += c.Weight
	}
	if len(used) == 0 || total <= 0 {
		return nil, nil, ErrNoComponentsAvailable
	}

	combined := make([]float64, n)
	for i := range used {
		used[i].Weight /= total
		for j, v := range preds[used[i].Kind] {
			combined[j] += used[i].Weight * v
		}
	}
	return combined, used, nil
}

// Ensemble combines test predictions of the ensemble's components and scores the result.
func (t *Trainer) Ensemble(k Kind, preds map[Kind][]float64, test Split) (*Result, error) {
	comps, err := t.Components(k)
	if err != nil {
		return nil, err
	}
	combined, used, err := Combine(comps, preds)
	if err != nil {
		return nil, fmt.Errorf("unable to combine %s, %w", k, err)
	}
	res, err := newResult(k, test, combined)
	if err != nil {
		return nil, err
	}
	res.Components = used
	return res, nil
}

func newResult(k Kind, test Split, preds []float64) (*Result, error) {
	scores, err := stats.NewScores(preds, test.Y)
	if err != nil {
		return nil, fmt.Errorf("unable to score %s, %w", k, err)
	}
	return &Result{
		Kind:        k,
		Scores:      scores,
		Predictions: preds,
		Comparison:  NewComparison(test.Periods, test.Y, preds),
	}, nil
}

// Request names the learners and ensembles of a training run.
type Request struct {
	Kinds     []Kind
	Ensembles []Kind
}

// Normalize defaults an empty request to every learner plus the all-learner ensemble.
func (r Request) Normalize() Request {
	if len(r.Kinds) == 0 && len(r.Ensembles) == 0 {
		return Request{
			Kinds:     append([]Kind(nil), LearnerKinds...),
			Ensembles: []Kind{KindEnsembleAll},
		}
	}
	return r
}

// Outcome collects the results and failures of a training run by kind.
type Outcome struct {
	Results map[Kind]*Result
	Failed  map[Kind]error
}

// Err returns nil if anything trained, otherwise every failure joined under ErrNoModelsTrained.
func (o *Outcome) Err() error {
	if len(o.Results) > 0 {
		return nil
	}
	errs := []error{ErrNoModelsTrained}
	for k, err := range o.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", k, err))
	}
	return errors.Join(errs...)
}

// TrainAll fits the requested learners concurrently, bounded by Workers, then builds the
// requested ensembles. Ensemble components not trained in this run are taken from existing, which
// typically holds previously persisted artifacts. A failing kind is logged and recorded in
// Outcome.Failed without aborting the others.
func (t *Trainer) TrainAll(ctx context.Context, r feature.Resource, req Request, train, test Split, existing map[Kind]*Artifact) *Outcome {
	req = req.Normalize()
	out := &Outcome{
		Results: make(map[Kind]*Result),
		Failed:  make(map[Kind]error),
	}

	var mu sync.Mutex
	record := func(k Kind, res *Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			t.log.Warn("unable to train model", "resource", r, "kind", k, "error", err)
			out.Failed[k] = err
			return
		}
		out.Results[k] = res
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(t.opt.Workers)
	for _, k := range req.Kinds {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				record(k, nil, err)
				return nil
			}
			res, err := t.Fit(k, r, train, test)
			record(k, res, err)
			return nil
		})
	}
	_ = eg.Wait()

	for _, k := range req.Ensembles {
		comps, err := t.Components(k)
		if err != nil {
			record(k, nil, err)
			continue
		}
		preds := make(map[Kind][]float64, len(comps))
		for _, c := range comps {
			if res, ok := out.Results[c.Kind]; ok {
				preds[c.Kind] = res.Predictions
				continue
			}
			a, ok := existing[c.Kind]
			if !ok || a == nil {
				continue
			}
			p, err := t.predictExisting(a, train, test)
			if err != nil {
				t.log.Warn("unable to use persisted ensemble component", "resource", r, "ensemble", k, "kind", c.Kind, "error", err)
				continue
			}
			preds[c.Kind] = p
		}
		res, err := t.Ensemble(k, preds, test)
		record(k, res, err)
	}
	return out
}

func (t *Trainer) predictExisting(a *Artifact, train, test Split) ([]float64, error) {
	x, drift := feature.Reconcile(test.X, a.Schema)
	if drift.Nontrivial() {
		t.log.Warn("feature schema drift", "kind", a.Kind, "error", feature.ErrSchemaMismatch,
			"added", drift.Added, "dropped", drift.Dropped)
	}
	raw, err := a.Predict(x)
	if err != nil {
		return nil, err
	}
	preds, _ := t.Recover(a.Kind, raw, t.cleanTarget(train.Y))
	return preds, nil
}
