package forecaster

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/metrics"
	"github.com/carbonwise/go-forecaster/registry"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func fastOptions() *Options {
	opt := NewDefaultOptions()
	opt.Trainer.Profiles.RandomForest.Trees = 30
	opt.Trainer.Profiles.GradientBoostedTrees.Rounds = 100
	opt.Trainer.Profiles.GradientBoosting.Rounds = 100
	return opt
}

// waterSeries is 1000 + 50*i plus an annual sine wave of amplitude 100.
func waterSeries(t *testing.T, n int) *timedataset.TimeDataset {
	t.Helper()
	periods := timedataset.GenerateMonths(seriesStart, n)
	y := timedataset.GenerateTrendY(n, 1000, 50).Add(timedataset.GenerateSeasonalY(periods, 100, 0))
	ts, err := timedataset.NewMonthlyDataset(periods, y)
	require.Nil(t, err)
	return ts
}

func setup(t *testing.T, opt *Options) (*Forecaster, *datasource.Memory) {
	t.Helper()
	store, err := registry.NewFileStore(t.TempDir())
	require.Nil(t, err)
	src := datasource.NewMemory()
	f, err := New(store, src, opt)
	require.Nil(t, err)
	return f, src
}

func TestWaterRandomForest(t *testing.T) {
	ctx := context.Background()
	f, src := setup(t, fastOptions())
	ts := waterSeries(t, 24)
	src.AddSeries(feature.Water, "0", ts)

	report, err := f.Train(ctx, feature.Water, "0", forecast.Request{Kinds: []forecast.Kind{forecast.KindRandomForest}})
	require.Nil(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []forecast.Kind{forecast.KindRandomForest}, report.ModelsTrained)
	assert.Greater(t, report.Metrics[forecast.KindRandomForest].R2, 0.8)
	assert.Equal(t, 24, report.DataInfo.TotalRecords)
	assert.Equal(t, 18, report.DataInfo.TrainingRecords)
	assert.Equal(t, 6, report.DataInfo.TestRecords)
	assert.Equal(t, seriesStart, report.DataInfo.DateRange.Start)

	fc, err := f.Predict(ctx, feature.Water, "0", forecast.KindRandomForest, 12)
	require.Nil(t, err)
	require.Len(t, fc.Predictions, 12)
	assert.False(t, fc.Fallback)

	last := ts.T[ts.Len()-1]
	for i, p := range fc.Predictions {
		expected := timedataset.AddMonths(last, i+1)
		assert.Equal(t, expected, p.Date)
		assert.Equal(t, int(expected.Month()), p.Month)
		assert.Equal(t, expected.Year(), p.Year)
		assert.GreaterOrEqual(t, p.PredictedUsage, 500.0)
		assert.LessOrEqual(t, p.PredictedUsage, 3000.0)
	}

	eval, err := f.Evaluate(ctx, feature.Water, "0", forecast.KindRandomForest)
	require.Nil(t, err)
	assert.Len(t, eval.Comparison, 6)
	assert.Equal(t, report.Metrics[forecast.KindRandomForest].R2, eval.Metrics.R2)
}

func TestMinimumObservations(t *testing.T) {
	ctx := context.Background()
	f, _ := setup(t, fastOptions())

	report, err := f.TrainSeries(ctx, feature.Water, "0", waterSeries(t, 13), forecast.Request{})
	require.Nil(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.DataInfo.TestRecords)

	_, err = f.TrainSeries(ctx, feature.Water, "1", waterSeries(t, 12), forecast.Request{})
	assert.ErrorIs(t, err, ErrInsufficientData)
	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, feature.Water, me.Resource)
	assert.Equal(t, "1", me.Entity)

	_, err = f.PredictSeries(ctx, feature.Water, "0", forecast.KindRandomForest, waterSeries(t, 12), 3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrainErrors(t *testing.T) {
	ctx := context.Background()
	f, _ := setup(t, fastOptions())
	ts := waterSeries(t, 24)

	testData := map[string]struct {
		resource feature.Resource
		entity   string
		req      forecast.Request
		err      error
	}{
		"invalid resource": {"steam", "0", forecast.Request{}, ErrInvalidResource},
		"invalid entity":   {feature.Water, "../0", forecast.Request{}, registry.ErrInvalidKey},
		"missing components": {
			feature.Water, "0",
			forecast.Request{Ensembles: []forecast.Kind{forecast.KindEnsembleRFGB}},
			ErrNoComponentsAvailable,
		},
		"unknown learner": {
			feature.Water, "0",
			forecast.Request{Kinds: []forecast.Kind{"svm"}},
			forecast.ErrNoModelsTrained,
		},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := f.TrainSeries(ctx, td.resource, td.entity, ts, td.req)
			assert.ErrorIs(t, err, td.err)
		})
	}

	_, err := f.Train(ctx, feature.Water, "7", forecast.Request{})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestModelNotFound(t *testing.T) {
	ctx := context.Background()
	f, src := setup(t, fastOptions())
	ts := waterSeries(t, 24)
	src.AddSeries(feature.Water, "0", ts)

	_, err := f.Train(ctx, feature.Water, "0", forecast.Request{Kinds: []forecast.Kind{forecast.KindRandomForest}})
	require.Nil(t, err)

	_, err = f.Predict(ctx, feature.Water, "0", forecast.KindGradientBoostedTrees, 6)
	require.ErrorIs(t, err, ErrModelNotFound)
	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, feature.Water, me.Resource)
	assert.Equal(t, "0", me.Entity)
	assert.Equal(t, forecast.KindGradientBoostedTrees, me.Kind)
	assert.Contains(t, err.Error(), "water/0/xgb")

	_, err = f.Evaluate(ctx, feature.Paper, "0", forecast.KindRandomForest)
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = f.Predict(ctx, feature.Water, "0", forecast.KindRandomForest, 0)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func TestEnsembleRenormalization(t *testing.T) {
	ctx := context.Background()
	f, _ := setup(t, fastOptions())
	ts := waterSeries(t, 30)

	report, err := f.TrainSeries(ctx, feature.Water, "0", ts, forecast.Request{
		Kinds:     []forecast.Kind{forecast.KindRandomForest, forecast.KindGradientBoosting},
		Ensembles: []forecast.Kind{forecast.KindEnsembleAll},
	})
	require.Nil(t, err)
	assert.ElementsMatch(t, []forecast.Kind{
		forecast.KindEnsembleAll,
		forecast.KindGradientBoosting,
		forecast.KindRandomForest,
	}, report.ModelsTrained)

	ens, err := f.PredictSeries(ctx, feature.Water, "0", forecast.KindEnsembleAll, ts, 4)
	require.Nil(t, err)
	require.Len(t, ens.Components, 2)
	assert.InDelta(t, 0.4/0.65, ens.Components[0].Weight, 1e-9)
	assert.InDelta(t, 0.25/0.65, ens.Components[1].Weight, 1e-9)

	rf, err := f.PredictSeries(ctx, feature.Water, "0", forecast.KindRandomForest, ts, 1)
	require.Nil(t, err)
	gb, err := f.PredictSeries(ctx, feature.Water, "0", forecast.KindGradientBoosting, ts, 1)
	require.Nil(t, err)
	expected := (0.4*rf.Predictions[0].PredictedUsage + 0.25*gb.Predictions[0].PredictedUsage) / 0.65
	assert.InDelta(t, expected, ens.Predictions[0].PredictedUsage, 1e-6)

	eval, err := f.Evaluate(ctx, feature.Water, "0", forecast.KindEnsembleAll)
	require.Nil(t, err)
	assert.Len(t, eval.Components, 2)

	var buf bytes.Buffer
	require.Nil(t, eval.TablePrint(&buf))
	assert.Contains(t, buf.String(), "Model: ensemble_all")
}

func TestEnsembleUsesPersistedComponents(t *testing.T) {
	ctx := context.Background()
	f, _ := setup(t, fastOptions())
	ts := waterSeries(t, 24)

	_, err := f.TrainSeries(ctx, feature.Water, "0", ts, forecast.Request{Kinds: []forecast.Kind{forecast.KindRandomForest}})
	require.Nil(t, err)

	report, err := f.TrainSeries(ctx, feature.Water, "0", ts, forecast.Request{
		Kinds:     []forecast.Kind{forecast.KindGradientBoosting},
		Ensembles: []forecast.Kind{forecast.KindEnsembleRFGB},
	})
	require.Nil(t, err)
	assert.Contains(t, report.ModelsTrained, forecast.KindEnsembleRFGB)

	fc, err := f.PredictSeries(ctx, feature.Water, "0", forecast.KindEnsembleRFGB, ts, 3)
	require.Nil(t, err)
	assert.Len(t, fc.Components, 2)
}

// countingStore records how often each key is loaded.
type countingStore struct {
	registry.Store

	mu    sync.Mutex
	loads map[forecast.Kind]int
}

func (s *countingStore) Load(ctx context.Context, key registry.Key) (*registry.Bundle, error) {
	s.mu.Lock()
	s.loads[key.Kind]++
	s.mu.Unlock()
	return s.Store.Load(ctx, key)
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = make(map[forecast.Kind]int)
}

func TestPredictLoadsBundleOnce(t *testing.T) {
	ctx := context.Background()
	files, err := registry.NewFileStore(t.TempDir())
	require.Nil(t, err)
	store := &countingStore{Store: files, loads: make(map[forecast.Kind]int)}
	src := datasource.NewMemory()
	f, err := New(store, src, fastOptions())
	require.Nil(t, err)

	ts := waterSeries(t, 24)
	src.AddSeries(feature.Water, "0", ts)
	_, err = f.TrainSeries(ctx, feature.Water, "0", ts, forecast.Request{
		Kinds:     []forecast.Kind{forecast.KindRandomForest, forecast.KindGradientBoosting},
		Ensembles: []forecast.Kind{forecast.KindEnsembleRFGB},
	})
	require.Nil(t, err)

	testData := map[string]struct {
		kind     forecast.Kind
		series   bool
		expected map[forecast.Kind]int
	}{
		"learner from source": {forecast.KindRandomForest, false, map[forecast.Kind]int{forecast.KindRandomForest: 1}},
		"learner from series": {forecast.KindRandomForest, true, map[forecast.Kind]int{forecast.KindRandomForest: 1}},
		"ensemble from source": {
			forecast.KindEnsembleRFGB, false,
			map[forecast.Kind]int{forecast.KindEnsembleRFGB: 1, forecast.KindRandomForest: 1, forecast.KindGradientBoosting: 1},
		},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			store.reset()
			var fc *Forecast
			if td.series {
				fc, err = f.PredictSeries(ctx, feature.Water, "0", td.kind, ts, 3)
			} else {
				fc, err = f.Predict(ctx, feature.Water, "0", td.kind, 3)
			}
			require.Nil(t, err)
			assert.Len(t, fc.Predictions, 3)
			assert.Equal(t, td.expected, store.loads)
		})
	}
}

func TestHorizon(t *testing.T) {
	ctx := context.Background()
	f, _ := setup(t, fastOptions())
	ts := waterSeries(t, 24)
	_, err := f.TrainSeries(ctx, feature.Water, "0", ts, forecast.Request{Kinds: []forecast.Kind{forecast.KindGradientBoostedTrees}})
	require.Nil(t, err)

	for _, h := range []int{1, 5, 18} {
		fc, err := f.PredictSeries(ctx, feature.Water, "0", forecast.KindGradientBoostedTrees, ts, h)
		require.Nil(t, err)
		require.Len(t, fc.Predictions, h)
		assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), fc.Predictions[0].Date)
		for i := 1; i < h; i++ {
			assert.Equal(t, 1, timedataset.MonthsBetween(fc.Predictions[i-1].Date, fc.Predictions[i].Date))
		}
		for _, v := range fc.Values() {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestFlatForecastFallback(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	opt := fastOptions()
	opt.Metrics = metrics.New(reg)
	f, _ := setup(t, opt)

	periods := timedataset.GenerateMonths(seriesStart, 15)
	ts, err := timedataset.NewMonthlyDataset(periods, timedataset.GenerateConstY(15, 100))
	require.Nil(t, err)
	_, err = f.TrainSeries(ctx, feature.Paper, "0", ts, forecast.Request{Kinds: []forecast.Kind{forecast.KindRandomForest}})
	require.Nil(t, err)

	fc, err := f.PredictSeries(ctx, feature.Paper, "0", forecast.KindRandomForest, ts, 6)
	require.Nil(t, err)
	assert.True(t, fc.Fallback)
	for _, v := range fc.Values() {
		assert.InDelta(t, 100.0, v, 1e-6)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(opt.Metrics.Fallbacks.WithLabelValues("paper", "rf", "predict")))
}

func TestSchemaDrift(t *testing.T) {
	ctx := context.Background()
	store, err := registry.NewFileStore(t.TempDir())
	require.Nil(t, err)

	trainer, err := New(store, nil, fastOptions())
	require.Nil(t, err)
	ts := waterSeries(t, 24)
	_, err = trainer.TrainSeries(ctx, feature.Water, "0", ts, forecast.Request{Kinds: []forecast.Kind{forecast.KindRandomForest}})
	require.Nil(t, err)

	opt := fastOptions()
	opt.Features.CalendarCounts = false
	opt.Features.Semester = false
	opt.Metrics = metrics.New(prometheus.NewRegistry())
	predictor, err := New(store, nil, opt)
	require.Nil(t, err)

	fc, err := predictor.PredictSeries(ctx, feature.Water, "0", forecast.KindRandomForest, ts, 12)
	require.Nil(t, err)
	assert.Len(t, fc.Predictions, 12)
	assert.Equal(t, 1.0, testutil.ToFloat64(opt.Metrics.SchemaDrift.WithLabelValues("water", "rf")))

	_, err = predictor.Predict(ctx, feature.Water, "0", forecast.KindRandomForest, 12)
	assert.ErrorIs(t, err, ErrNoDataSource)
}

func TestModelsAndDelete(t *testing.T) {
	ctx := context.Background()
	f, _ := setup(t, fastOptions())
	ts := waterSeries(t, 24)
	_, err := f.TrainSeries(ctx, feature.Electricity, "0", ts, forecast.Request{})
	require.Nil(t, err)

	infos, err := f.Models(ctx, feature.Electricity, "0")
	require.Nil(t, err)
	require.Len(t, infos, 4)
	kinds := make([]forecast.Kind, len(infos))
	for i, info := range infos {
		kinds[i] = info.ModelType
		assert.Equal(t, 24, info.DataPoints)
		assert.Equal(t, len(info.FeaturesUsed), info.FeatureCount)
	}
	assert.Equal(t, []forecast.Kind{
		forecast.KindEnsembleAll,
		forecast.KindGradientBoosting,
		forecast.KindRandomForest,
		forecast.KindGradientBoostedTrees,
	}, kinds)
	assert.Len(t, infos[0].EnsembleComponents, 3)
	assert.NotEmpty(t, infos[2].Importances)

	require.Nil(t, f.Delete(ctx, feature.Electricity, "0"))
	infos, err = f.Models(ctx, feature.Electricity, "0")
	require.Nil(t, err)
	assert.Empty(t, infos)

	_, err = f.PredictSeries(ctx, feature.Electricity, "0", forecast.KindEnsembleAll, ts, 3)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.ErrorIs(t, f.Delete(ctx, feature.Electricity, "0"), ErrModelNotFound)
}

func TestHealth(t *testing.T) {
	f, _ := setup(t, nil)
	h := f.Health(context.Background())
	assert.True(t, h.OK())
	assert.Equal(t, Health{Registry: "ok", DataSource: "ok"}, h)
}

func TestPlotForecast(t *testing.T) {
	ts := waterSeries(t, 13)
	fc := &Forecast{
		Resource: feature.Water,
		Entity:   "0",
		Kind:     forecast.KindRandomForest,
		Predictions: newPredictions(
			timedataset.NextPeriods(ts.T[ts.Len()-1], 2),
			[]float64{1700, 1750},
		),
	}
	var buf bytes.Buffer
	require.Nil(t, PlotForecast(&buf, ts, fc))
	assert.Contains(t, buf.String(), "water 0 rf")
	assert.Contains(t, buf.String(), "2022-03")

	buf.Reset()
	require.Nil(t, fc.TablePrint(&buf))
	assert.Contains(t, buf.String(), "1750.00")
}
