// Package forecaster trains monthly utility usage models per resource and entity and serves
// N-month-ahead forecasts from the persisted models.
package forecaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/metrics"
	"github.com/carbonwise/go-forecaster/registry"
	"github.com/carbonwise/go-forecaster/stats"
	"github.com/carbonwise/go-forecaster/telemetry"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// Forecaster trains models into a registry and forecasts from them. All methods are safe for
// concurrent use; the registry is the only shared state.
type Forecaster struct {
	opt     *Options
	engine  *feature.Engine
	trainer *forecast.Trainer
	store   registry.Store
	source  datasource.Source
	sem     *semaphore.Weighted
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Forecaster persisting to store. source may be nil if every call passes its
// history explicitly. If no options are provided a default is used.
func New(store registry.Store, source datasource.Source, opt *Options) (*Forecaster, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	engine, err := feature.New(opt.Features)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize feature engine, %w", err)
	}
	trainer, err := forecast.New(opt.Trainer)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize trainer, %w", err)
	}
	return &Forecaster{
		opt:     opt,
		engine:  engine,
		trainer: trainer,
		store:   store,
		source:  source,
		sem:     semaphore.NewWeighted(opt.MaxConcurrentTrains),
		log:     opt.Logger,
		metrics: opt.Metrics,
	}, nil
}

func (f *Forecaster) Options() *Options {
	return f.opt
}

// History loads the monthly series of r and entity from the data source.
func (f *Forecaster) History(ctx context.Context, r feature.Resource, entity string) (*timedataset.TimeDataset, error) {
	if f.source == nil {
		return nil, ErrNoDataSource
	}
	ts, err := datasource.Load(ctx, f.source, r, entity)
	if errors.Is(err, timedataset.ErrNoTrainingData) {
		return nil, &ModelError{Resource: r, Entity: entity, Err: fmt.Errorf("no observations, %w", ErrInsufficientData)}
	}
	return ts, err
}

func (f *Forecaster) validate(r feature.Resource, entity string) error {
	if err := r.Valid(); err != nil {
		return &ModelError{Resource: r, Entity: entity, Err: err}
	}
	if err := registry.ValidateEntity(entity); err != nil {
		return &ModelError{Resource: r, Entity: entity, Err: err}
	}
	return nil
}

func validateSeries(r feature.Resource, entity string, ts *timedataset.TimeDataset) error {
	if err := ts.Validate(timedataset.MinObservations); err != nil {
		return &ModelError{Resource: r, Entity: entity, Err: err}
	}
	return nil
}

// Train loads the history of r and entity from the data source and trains it with TrainSeries.
func (f *Forecaster) Train(ctx context.Context, r feature.Resource, entity string, req forecast.Request) (*TrainReport, error) {
	if err := f.validate(r, entity); err != nil {
		return nil, err
	}
	ts, err := f.History(ctx, r, entity)
	if err != nil {
		return nil, err
	}
	return f.TrainSeries(ctx, r, entity, ts, req)
}

// TrainSeries fits the requested learners and ensembles on ts and persists every one that
// succeeds. An empty request trains every learner and the all-learner ensemble. It fails only when
// nothing could be trained; individual failures are reported in TrainReport.Failed.
func (f *Forecaster) TrainSeries(ctx context.Context, r feature.Resource, entity string, ts *timedataset.TimeDataset, req forecast.Request) (report *TrainReport, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forecaster.Train",
		attribute.String("resource", string(r)),
		attribute.String("entity", entity),
	)
	defer func() { telemetry.End(span, err) }()

	if err := f.validate(r, entity); err != nil {
		return nil, err
	}
	if err := validateSeries(r, entity, ts); err != nil {
		return nil, err
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	start := time.Now()
	req = req.Normalize()
	base := ts.T[0]
	set, err := f.engine.Transform(ts, r, base)
	if err != nil {
		return nil, &ModelError{Resource: r, Entity: entity, Err: fmt.Errorf("unable to build features, %w", err)}
	}
	train, test, err := forecast.SplitTrainTest(ts.T, set, ts.Y)
	if err != nil {
		return nil, &ModelError{Resource: r, Entity: entity, Err: err}
	}

	outcome := f.trainer.TrainAll(ctx, r, req, train, test, f.persistedComponents(ctx, r, entity, req))

	report = &TrainReport{
		Metrics: make(map[forecast.Kind]stats.Scores),
		Failed:  make(map[forecast.Kind]string),
		DataInfo: DataInfo{
			TotalRecords:    ts.Len(),
			TrainingRecords: train.Len(),
			TestRecords:     test.Len(),
			FeaturesCount:   set.Width(),
			DateRange: DateRange{
				Start: timedataset.TimeSlice(ts.T).StartTime(),
				End:   timedataset.TimeSlice(ts.T).EndTime(),
			},
		},
	}

	runID := uuid.New()
	trainedAt := time.Now().UTC()
	for _, k := range slices.Sorted(maps.Keys(outcome.Results)) {
		res := outcome.Results[k]
		meta := registry.Metadata{
			RunID:              runID,
			Resource:           r,
			Entity:             entity,
			Kind:               k,
			TrainedAt:          trainedAt,
			Metrics:            *res.Scores,
			DataPoints:         ts.Len(),
			FeatureColumns:     set.Names(),
			TrainSize:          train.Len(),
			TestSize:           test.Len(),
			EnsembleComponents: res.Components,
			TrendBase:          base,
			LastPeriod:         timedataset.TimeSlice(ts.T).EndTime(),
			Fallback:           res.Fallback,
			Comparison:         res.Comparison,
		}
		if res.Artifact != nil {
			meta.FeatureColumns = res.Artifact.Schema
			meta.Importances = res.Artifact.Importances()
		}
		key := meta.Key()
		if err := f.store.Save(ctx, key, &registry.Bundle{Metadata: meta, Artifact: res.Artifact}); err != nil {
			f.log.Warn("unable to persist model", "resource", r, "entity", entity, "kind", k, "error", err)
			outcome.Failed[k] = fmt.Errorf("unable to persist, %w", err)
			continue
		}
		report.ModelsTrained = append(report.ModelsTrained, k)
		report.Metrics[k] = meta.Metrics
		if res.Fallback {
			f.countFallback(r, k, "train")
		}
		if f.metrics != nil {
			f.metrics.ModelsTrained.WithLabelValues(string(r), string(k)).Inc()
			f.metrics.ModelR2.WithLabelValues(string(r), entity, string(k)).Set(registry.SanitizeFloat(meta.Metrics.R2))
		}
	}

	failures := make([]error, 0, len(outcome.Failed))
	for _, k := range slices.Sorted(maps.Keys(outcome.Failed)) {
		report.Failed[k] = outcome.Failed[k].Error()
		failures = append(failures, fmt.Errorf("%s: %w", k, outcome.Failed[k]))
		if f.metrics != nil {
			f.metrics.ModelFailures.WithLabelValues(string(r), string(k)).Inc()
		}
	}

	report.Success = len(report.ModelsTrained) > 0
	report.Message = fmt.Sprintf("trained %d of %d requested models", len(report.ModelsTrained), len(req.Kinds)+len(req.Ensembles))
	if f.metrics != nil {
		outcomeLabel := "success"
		if !report.Success {
			outcomeLabel = "failure"
		} else if len(failures) > 0 {
			outcomeLabel = "partial"
		}
		f.metrics.TrainRuns.WithLabelValues(string(r), outcomeLabel).Inc()
		f.metrics.TrainDuration.WithLabelValues(string(r)).Observe(time.Since(start).Seconds())
	}
	f.log.Info("training finished", "resource", r, "entity", entity, "trained", report.ModelsTrained,
		"failed", len(failures), "duration", time.Since(start))

	if !report.Success {
		return report, &ModelError{
			Resource: r,
			Entity:   entity,
			Err:      errors.Join(append([]error{forecast.ErrNoModelsTrained}, failures...)...),
		}
	}
	return report, nil
}

// persistedComponents loads the stored artifacts of ensemble components this run does not train.
func (f *Forecaster) persistedComponents(ctx context.Context, r feature.Resource, entity string, req forecast.Request) map[forecast.Kind]*forecast.Artifact {
	out := make(map[forecast.Kind]*forecast.Artifact)
	for _, ens := range req.Ensembles {
		comps, err := f.trainer.Components(ens)
		if err != nil {
			continue
		}
		for _, c := range comps {
			if _, ok := out[c.Kind]; ok || slices.Contains(req.Kinds, c.Kind) {
				continue
			}
			b, err := f.store.Load(ctx, registry.Key{Resource: r, Entity: entity, Kind: c.Kind})
			if err != nil {
				if !errors.Is(err, registry.ErrNotFound) {
					f.log.Warn("unable to load ensemble component", "resource", r, "entity", entity, "kind", c.Kind, "error", err)
				}
				continue
			}
			out[c.Kind] = b.Artifact
		}
	}
	return out
}

func (f *Forecaster) load(ctx context.Context, key registry.Key) (*registry.Bundle, error) {
	b, err := f.store.Load(ctx, key)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, &ModelError{Resource: key.Resource, Entity: key.Entity, Kind: key.Kind, Err: ErrModelNotFound}
	}
	if err != nil {
		return nil, &ModelError{Resource: key.Resource, Entity: key.Entity, Kind: key.Kind, Err: err}
	}
	return b, nil
}

func (f *Forecaster) countFallback(r feature.Resource, k forecast.Kind, stage string) {
	if f.metrics != nil {
		f.metrics.Fallbacks.WithLabelValues(string(r), string(k), stage).Inc()
	}
}

// member is one fitted artifact taking part in a forecast with its combination weight.
type member struct {
	forecast.Component
	artifact *forecast.Artifact
}

// members resolves the artifacts a bundle forecasts with: its own for a learner, the persisted
// components for an ensemble. Missing ensemble components are skipped.
func (f *Forecaster) members(ctx context.Context, b *registry.Bundle) ([]member, error) {
	key := b.Metadata.Key()
	if !key.Kind.Ensemble() {
		if b.Artifact == nil {
			return nil, &ModelError{Resource: key.Resource, Entity: key.Entity, Kind: key.Kind, Err: registry.ErrNoArtifact}
		}
		return []member{{Component: forecast.Component{Kind: key.Kind, Weight: 1}, artifact: b.Artifact}}, nil
	}

	comps := b.Metadata.EnsembleComponents
	if len(comps) == 0 {
		var err error
		if comps, err = f.trainer.Components(key.Kind); err != nil {
			return nil, &ModelError{Resource: key.Resource, Entity: key.Entity, Kind: key.Kind, Err: err}
		}
	}

	var out []member
	for _, c := range comps {
		ck := registry.Key{Resource: key.Resource, Entity: key.Entity, Kind: c.Kind}
		cb, err := f.store.Load(ctx, ck)
		if err != nil || cb.Artifact == nil {
			f.log.Warn("ensemble component unavailable", "resource", key.Resource, "entity", key.Entity,
				"ensemble", key.Kind, "kind", c.Kind, "error", err)
			continue
		}
		out = append(out, member{Component: c, artifact: cb.Artifact})
	}
	if len(out) == 0 {
		return nil, &ModelError{Resource: key.Resource, Entity: key.Entity, Kind: key.Kind, Err: ErrNoComponentsAvailable}
	}
	return out, nil
}

// Predict loads the history of r and entity from the data source and forecasts it like
// PredictSeries.
func (f *Forecaster) Predict(ctx context.Context, r feature.Resource, entity string, k forecast.Kind, horizon int) (*Forecast, error) {
	b, ts, err := f.predictInputs(ctx, r, entity, k)
	if err != nil {
		if f.metrics != nil {
			f.metrics.PredictErrors.WithLabelValues(string(r), string(k)).Inc()
		}
		return nil, err
	}
	return f.predict(ctx, r, entity, k, ts, horizon, b)
}

// predictInputs loads the bundle before the history so an untrained key fails without touching
// the data source.
func (f *Forecaster) predictInputs(ctx context.Context, r feature.Resource, entity string, k forecast.Kind) (*registry.Bundle, *timedataset.TimeDataset, error) {
	if err := f.validate(r, entity); err != nil {
		return nil, nil, err
	}
	b, err := f.load(ctx, registry.Key{Resource: r, Entity: entity, Kind: k})
	if err != nil {
		return nil, nil, err
	}
	ts, err := f.History(ctx, r, entity)
	if err != nil {
		return nil, nil, err
	}
	return b, ts, nil
}

// PredictSeries forecasts the horizon months following the last period of ts with the model or
// ensemble persisted under r, entity and k. Projection is sequential: each month's prediction
// seeds the usage features of the next.
func (f *Forecaster) PredictSeries(ctx context.Context, r feature.Resource, entity string, k forecast.Kind, ts *timedataset.TimeDataset, horizon int) (*Forecast, error) {
	return f.predict(ctx, r, entity, k, ts, horizon, nil)
}

// predict forecasts ts with b, loading the bundle of r, entity and k when b is nil.
func (f *Forecaster) predict(ctx context.Context, r feature.Resource, entity string, k forecast.Kind, ts *timedataset.TimeDataset, horizon int, b *registry.Bundle) (fc *Forecast, err error) {
	ctx, span := telemetry.StartSpan(ctx, "forecaster.Predict",
		attribute.String("resource", string(r)),
		attribute.String("entity", entity),
		attribute.String("kind", string(k)),
		attribute.Int("horizon", horizon),
	)
	start := time.Now()
	defer func() {
		telemetry.End(span, err)
		if f.metrics == nil {
			return
		}
		if err != nil {
			f.metrics.PredictErrors.WithLabelValues(string(r), string(k)).Inc()
			return
		}
		f.metrics.Predictions.WithLabelValues(string(r), string(k)).Inc()
		f.metrics.PredictLatency.WithLabelValues(string(r)).Observe(time.Since(start).Seconds())
	}()

	if err := f.validate(r, entity); err != nil {
		return nil, err
	}
	if _, err := forecast.ParseKind(string(k)); err != nil {
		return nil, &ModelError{Resource: r, Entity: entity, Kind: k, Err: err}
	}
	if horizon < 1 {
		return nil, &ModelError{Resource: r, Entity: entity, Kind: k, Err: fmt.Errorf("got %d, %w", horizon, ErrInvalidHorizon)}
	}

	if b == nil {
		if b, err = f.load(ctx, registry.Key{Resource: r, Entity: entity, Kind: k}); err != nil {
			return nil, err
		}
	}
	if err := validateSeries(r, entity, ts); err != nil {
		return nil, err
	}
	members, err := f.members(ctx, b)
	if err != nil {
		return nil, err
	}

	projector, err := f.engine.NewProjector(ts, r, b.Metadata.TrendBase)
	if err != nil {
		return nil, &ModelError{Resource: r, Entity: entity, Kind: k, Err: err}
	}

	weights := make([]forecast.Component, len(members))
	for i, m := range members {
		weights[i] = m.Component
	}
	drifted := make(map[forecast.Kind]bool)
	var used []forecast.Component
	periods, preds, err := projector.Project(horizon, func(row *feature.Set) (float64, error) {
		values := make(map[forecast.Kind][]float64, len(members))
		for _, m := range members {
			x, drift := feature.Reconcile(row, m.artifact.Schema)
			if drift.Nontrivial() && !drifted[m.Kind] {
				drifted[m.Kind] = true
				f.log.Warn("projected features differ from trained schema, reconciled",
					"resource", r, "entity", entity, "kind", m.Kind, "error", feature.ErrSchemaMismatch,
					"added", drift.Added, "dropped", drift.Dropped, "reordered", drift.Reordered)
				if f.metrics != nil {
					f.metrics.SchemaDrift.WithLabelValues(string(r), string(m.Kind)).Inc()
				}
			}
			p, err := m.artifact.Predict(x)
			if err != nil {
				return 0, err
			}
			values[m.Kind] = []float64{math.Max(stats.Finite(p[0], 0), 0)}
		}
		combined, comps, err := forecast.Combine(weights, values)
		if err != nil {
			return 0, err
		}
		used = comps
		return combined[0], nil
	})
	if err != nil {
		return nil, &ModelError{Resource: r, Entity: entity, Kind: k, Err: fmt.Errorf("unable to project, %w", err)}
	}

	fc = &Forecast{
		Resource:   r,
		Entity:     entity,
		Kind:       k,
		Components: used,
	}
	if f.degenerate(preds) {
		f.log.Warn("degenerate forecast, using seasonal baseline",
			"resource", r, "entity", entity, "kind", k, "error", forecast.ErrDegenerateOutput, "horizon", horizon)
		f.countFallback(r, k, "predict")
		preds, err = f.seasonalFallback(ts, r, b.Metadata.TrendBase, horizon)
		if err != nil {
			return nil, &ModelError{Resource: r, Entity: entity, Kind: k, Err: err}
		}
		fc.Fallback = true
	}
	fc.Predictions = newPredictions(periods, preds)
	return fc, nil
}

// degenerate reports whether predictions are NaN laden, all zero, or a flat line over more than
// one period.
func (f *Forecaster) degenerate(preds []float64) bool {
	if forecast.Degenerate(preds) {
		return true
	}
	if len(preds) < 2 {
		return false
	}
	lo, hi := stats.Min(preds), stats.Max(preds)
	return hi-lo <= f.opt.FlatTolerance*math.Max(math.Abs(hi), 1)
}

// seasonalFallback replaces a degenerate forecast with the seasonal naive baseline of the history,
// or the trainer's mean and trend fallback when that is degenerate too.
func (f *Forecaster) seasonalFallback(ts *timedataset.TimeDataset, r feature.Resource, base time.Time, horizon int) ([]float64, error) {
	projector, err := f.engine.NewProjector(ts, r, base)
	if err != nil {
		return nil, err
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = projector.Baseline()
		projector.Observe(out[i])
	}
	if forecast.Degenerate(out) {
		return f.trainer.Fallback(ts.Y, horizon), nil
	}
	return out, nil
}

// Evaluate returns the test split metrics and comparison table recorded when the model was
// trained.
func (f *Forecaster) Evaluate(ctx context.Context, r feature.Resource, entity string, k forecast.Kind) (*Evaluation, error) {
	if err := f.validate(r, entity); err != nil {
		return nil, err
	}
	b, err := f.load(ctx, registry.Key{Resource: r, Entity: entity, Kind: k})
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		Resource:   r,
		Entity:     entity,
		Kind:       k,
		TrainedAt:  b.Metadata.TrainedAt,
		Metrics:    b.Metadata.Metrics,
		Comparison: b.Metadata.Comparison,
		Components: b.Metadata.EnsembleComponents,
		Fallback:   b.Metadata.Fallback,
	}, nil
}

// Models lists every trained model and ensemble of r and entity ordered by kind.
func (f *Forecaster) Models(ctx context.Context, r feature.Resource, entity string) ([]ModelInfo, error) {
	if err := f.validate(r, entity); err != nil {
		return nil, err
	}
	list, err := f.store.List(ctx, r, entity)
	if err != nil {
		return nil, &ModelError{Resource: r, Entity: entity, Err: err}
	}
	infos := make([]ModelInfo, len(list))
	for i, m := range list {
		infos[i] = newModelInfo(m)
	}
	return infos, nil
}

// Delete removes every model and ensemble of r and entity.
func (f *Forecaster) Delete(ctx context.Context, r feature.Resource, entity string) error {
	if err := f.validate(r, entity); err != nil {
		return err
	}
	err := f.store.Delete(ctx, r, entity)
	if errors.Is(err, registry.ErrNotFound) {
		return &ModelError{Resource: r, Entity: entity, Err: ErrModelNotFound}
	}
	if err != nil {
		return &ModelError{Resource: r, Entity: entity, Err: err}
	}
	f.log.Info("deleted models", "resource", r, "entity", entity)
	return nil
}

// Health pings the registry and the data source.
func (f *Forecaster) Health(ctx context.Context) Health {
	h := Health{Registry: "ok", DataSource: "ok"}
	if err := f.store.Ping(ctx); err != nil {
		h.Registry = err.Error()
	}
	switch {
	case f.source == nil:
		h.DataSource = "not configured"
	default:
		if err := f.source.Ping(ctx); err != nil {
			h.DataSource = err.Error()
		}
	}
	return h
}
