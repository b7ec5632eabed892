package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carbonwise/go-forecaster"
	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/metrics"
	"github.com/carbonwise/go-forecaster/registry"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthly(t *testing.T, n int) *timedataset.TimeDataset {
	t.Helper()
	periods := timedataset.GenerateMonths(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), n)
	y := timedataset.GenerateTrendY(n, 1000, 50).Add(timedataset.GenerateSeasonalY(periods, 100, 0))
	ts, err := timedataset.NewMonthlyDataset(periods, y)
	require.Nil(t, err)
	return ts
}

func setup(t *testing.T, opt *Options) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	store, err := registry.NewFileStore(t.TempDir())
	require.Nil(t, err)
	src := datasource.NewMemory()
	src.AddSeries(feature.Water, "0", monthly(t, 24))
	src.AddSeries(feature.Water, "short", monthly(t, 12))

	reg := prometheus.NewRegistry()
	fopt := forecaster.NewDefaultOptions()
	fopt.Trainer.Profiles.RandomForest.Trees = 30
	fopt.Metrics = metrics.New(reg)
	f, err := forecaster.New(store, src, fopt)
	require.Nil(t, err)

	if opt == nil {
		opt = NewDefaultOptions()
		opt.RateLimit = 1000
		opt.Burst = 1000
	}
	opt.Gatherer = reg
	s, err := New(f, opt)
	require.Nil(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func do(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.Nil(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.Nil(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.Nil(t, err)
	return resp.StatusCode, out.Bytes()
}

func errorType(t *testing.T, body []byte) string {
	t.Helper()
	var e ErrorResponse
	require.Nil(t, json.Unmarshal(body, &e))
	return e.Type
}

func TestOptionsValidate(t *testing.T) {
	opt, err := (*Options)(nil).Validate()
	require.Nil(t, err)
	assert.Equal(t, ":8080", opt.Addr)
	assert.Equal(t, forecast.KindEnsembleAll, opt.DefaultKind)
	assert.NotNil(t, opt.Gatherer)

	opt, err = (&Options{RateLimit: 3}).Validate()
	require.Nil(t, err)
	assert.Equal(t, 6, opt.Burst)

	_, err = (&Options{DefaultKind: "svm"}).Validate()
	assert.ErrorIs(t, err, forecast.ErrUnknownKind)
}

func TestClassify(t *testing.T) {
	testData := map[string]struct {
		err    error
		status int
		typ    string
	}{
		"not found": {
			&forecaster.ModelError{Resource: feature.Water, Entity: "0", Kind: "rf", Err: forecaster.ErrModelNotFound},
			http.StatusNotFound, errTypeNotFound,
		},
		"resource":     {fmt.Errorf("x, %w", feature.ErrInvalidResource), http.StatusBadRequest, errTypeBadRequest},
		"horizon":      {forecaster.ErrInvalidHorizon, http.StatusBadRequest, errTypeBadRequest},
		"kind":         {forecast.ErrUnknownKind, http.StatusBadRequest, errTypeBadRequest},
		"key":          {registry.ErrInvalidKey, http.StatusBadRequest, errTypeBadRequest},
		"insufficient": {forecaster.ErrInsufficientData, http.StatusUnprocessableEntity, errTypeValidation},
		"components":   {forecaster.ErrNoComponentsAvailable, http.StatusUnprocessableEntity, errTypeModel},
		"no source":    {forecaster.ErrNoDataSource, http.StatusServiceUnavailable, errTypeUnavailable},
		"deadline":     {context.DeadlineExceeded, http.StatusGatewayTimeout, errTypeUnavailable},
		"other":        {errors.New("disk full"), http.StatusInternalServerError, errTypeInternal},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			status, typ := classify(td.err)
			assert.Equal(t, td.status, status)
			assert.Equal(t, td.typ, typ)
		})
	}
}

func TestAPI(t *testing.T) {
	srv, _ := setup(t, nil)

	status, body := do(t, http.MethodPost, srv.URL+"/train", TrainRequest{
		ResourceType: "waters",
		ModelTypes:   []string{"random_forest"},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var report forecaster.TrainReport
	require.Nil(t, json.Unmarshal(body, &report))
	assert.True(t, report.Success)
	assert.Equal(t, []forecast.Kind{forecast.KindRandomForest}, report.ModelsTrained)
	assert.Equal(t, 24, report.DataInfo.TotalRecords)

	status, body = do(t, http.MethodGet, srv.URL+"/predict?resource_type=water&model_type=rf&months=6", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var fc forecaster.Forecast
	require.Nil(t, json.Unmarshal(body, &fc))
	assert.Len(t, fc.Predictions, 6)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), fc.Predictions[0].Date)

	status, body = do(t, http.MethodGet, srv.URL+"/evaluate?resource_type=water&building_id=0&model_type=rf", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var eval forecaster.Evaluation
	require.Nil(t, json.Unmarshal(body, &eval))
	assert.Len(t, eval.Comparison, 6)

	status, body = do(t, http.MethodGet, srv.URL+"/models?resource_type=water", nil)
	require.Equal(t, http.StatusOK, status)
	var models struct {
		Models []forecaster.ModelInfo `json:"models"`
	}
	require.Nil(t, json.Unmarshal(body, &models))
	require.Len(t, models.Models, 1)
	assert.Equal(t, forecast.KindRandomForest, models.Models[0].ModelType)

	status, _ = do(t, http.MethodDelete, srv.URL+"/models?resource_type=water", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, body = do(t, http.MethodGet, srv.URL+"/predict?resource_type=water&model_type=rf", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errTypeNotFound, errorType(t, body))
}

func TestAPIErrors(t *testing.T) {
	srv, _ := setup(t, nil)

	testData := map[string]struct {
		method string
		path   string
		body   any
		status int
		typ    string
	}{
		"untrained":        {http.MethodGet, "/predict?resource_type=water&model_type=xgb", nil, http.StatusNotFound, errTypeNotFound},
		"bad resource":     {http.MethodGet, "/predict?resource_type=steam", nil, http.StatusBadRequest, errTypeBadRequest},
		"bad kind":         {http.MethodGet, "/evaluate?resource_type=water&model_type=svm", nil, http.StatusBadRequest, errTypeBadRequest},
		"bad months":       {http.MethodGet, "/predict?resource_type=water&months=abc", nil, http.StatusBadRequest, errTypeBadRequest},
		"bad entity":       {http.MethodGet, "/models?resource_type=water&building_id=a.b", nil, http.StatusBadRequest, errTypeBadRequest},
		"delete untrained": {http.MethodDelete, "/models?resource_type=paper", nil, http.StatusNotFound, errTypeNotFound},
		"short history": {
			http.MethodPost, "/train", TrainRequest{ResourceType: "water", BuildingID: "short"},
			http.StatusUnprocessableEntity, errTypeValidation,
		},
		"ensemble as model": {
			http.MethodPost, "/train", TrainRequest{ResourceType: "water", ModelTypes: []string{"ensemble_all"}},
			http.StatusBadRequest, errTypeBadRequest,
		},
		"invalid json": {http.MethodPost, "/train", "{", http.StatusBadRequest, errTypeBadRequest},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			status, body := do(t, td.method, srv.URL+td.path, td.body)
			assert.Equal(t, td.status, status, string(body))
			assert.Equal(t, td.typ, errorType(t, body))
		})
	}

	status, _ := do(t, http.MethodGet, srv.URL+"/train", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := setup(t, nil)

	status, body := do(t, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, status)
	var h forecaster.Health
	require.Nil(t, json.Unmarshal(body, &h))
	assert.True(t, h.OK())

	do(t, http.MethodGet, srv.URL+"/predict?resource_type=water&model_type=rf", nil)
	status, body = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.Contains(string(body), "forecaster_prediction_errors_total"))
}

func TestRateLimit(t *testing.T) {
	srv, _ := setup(t, &Options{RateLimit: 0.001, Burst: 1})

	status, _ := do(t, http.MethodGet, srv.URL+"/models?resource_type=water", nil)
	assert.Equal(t, http.StatusOK, status)
	status, body := do(t, http.MethodGet, srv.URL+"/models?resource_type=water", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, errTypeRateLimited, errorType(t, body))

	status, _ = do(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsAuth(t *testing.T) {
	srv, _ := setup(t, &Options{MetricsUser: "prom", MetricsPassword: "secret"})

	status, _ := do(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	require.Nil(t, err)
	req.SetBasicAuth("prom", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun(t *testing.T) {
	store, err := registry.NewFileStore(t.TempDir())
	require.Nil(t, err)
	f, err := forecaster.New(store, nil, nil)
	require.Nil(t, err)
	s, err := New(f, &Options{Addr: "127.0.0.1:0"})
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
