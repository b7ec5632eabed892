package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carbonwise/go-forecaster"
	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"FORECASTER_REGISTRY", "FORECASTER_MODEL_DIR", "FORECASTER_DATASOURCE", "FORECASTER_DSN", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	dataDir := t.TempDir()
	periods := timedataset.GenerateMonths(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 24)
	y := timedataset.GenerateTrendY(24, 1000, 50).Add(timedataset.GenerateSeasonalY(periods, 100, 0))
	ts, err := timedataset.NewMonthlyDataset(periods, y)
	require.Nil(t, err)
	require.Nil(t, datasource.NewFileSource(dataDir).Write(feature.Water, "0", timedataset.ToObservations(ts)))

	cfg := map[string]any{
		"registry":   map[string]any{"backend": "file", "dir": t.TempDir(), "cache_size": 0},
		"datasource": map[string]any{"backend": "file", "dir": dataDir},
		"trainer":    map[string]any{"profiles": map[string]any{"rf": map[string]any{"trees": 30}}},
		"schedule": map[string]any{
			"jobs": []any{map[string]any{
				"schedule": "@monthly",
				"targets":  []any{map[string]any{"resource": "water", "entity": "0", "kinds": []string{"rf"}}},
			}},
		},
		"log": map[string]any{"level": "error"},
	}
	data, err := json.Marshal(cfg)
	require.Nil(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.Nil(t, os.WriteFile(path, data, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	path := setupConfig(t)

	out, err := run(t, "-c", path, "train", "-r", "waters", "-m", "random_forest")
	require.Nil(t, err, out)
	assert.True(t, strings.Contains(out, "rf"), out)
	assert.True(t, strings.Contains(out, "Records: 24 (train 18, test 6)"), out)

	plot := filepath.Join(t.TempDir(), "forecast.html")
	out, err = run(t, "-c", path, "--json", "predict", "-r", "water", "--model", "rf", "--months", "3", "--plot", plot)
	require.Nil(t, err, out)
	var fc forecaster.Forecast
	require.Nil(t, json.Unmarshal([]byte(out), &fc))
	require.Len(t, fc.Predictions, 3)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), fc.Predictions[0].Date)
	html, err := os.ReadFile(plot)
	require.Nil(t, err)
	assert.True(t, strings.Contains(string(html), "water 0 rf"))

	out, err = run(t, "-c", path, "predict", "-r", "water", "--model", "rf", "--months", "2")
	require.Nil(t, err, out)
	assert.True(t, strings.Contains(out, "Forecast: water/0/rf"), out)
	assert.True(t, strings.Contains(out, "2023-02"), out)

	chart := filepath.Join(t.TempDir(), "chart.html")
	out, err = run(t, "-c", path, "plot", "-r", "water", "--model", "rf", "-o", chart)
	require.Nil(t, err, out)
	assert.FileExists(t, chart)

	out, err = run(t, "-c", path, "evaluate", "-r", "water", "--model", "rf")
	require.Nil(t, err, out)
	assert.True(t, strings.Contains(out, "Evaluation: water/0"), out)

	out, err = run(t, "-c", path, "models", "-r", "water")
	require.Nil(t, err, out)
	assert.True(t, strings.Contains(out, "MODEL"), out)

	out, err = run(t, "-c", path, "retrain")
	require.Nil(t, err, out)
	assert.True(t, strings.Contains(out, "water/0: ok"), out)

	out, err = run(t, "-c", path, "delete", "-r", "water")
	require.Nil(t, err, out)
	assert.True(t, strings.Contains(out, "Deleted models for water/0"), out)

	_, err = run(t, "-c", path, "predict", "-r", "water", "--model", "rf")
	assert.ErrorIs(t, err, forecaster.ErrModelNotFound)
}

func TestCommandErrors(t *testing.T) {
	path := setupConfig(t)

	testData := map[string]struct {
		args []string
		err  error
	}{
		"unknown model":     {[]string{"-c", path, "predict", "-r", "water", "--model", "svm"}, forecast.ErrUnknownKind},
		"ensemble as model": {[]string{"-c", path, "train", "-r", "water", "-m", "ensemble_all"}, forecast.ErrUnknownKind},
		"bad resource":      {[]string{"-c", path, "models", "-r", "steam"}, feature.ErrInvalidResource},
		"untrained":         {[]string{"-c", path, "evaluate", "-r", "water", "--model", "xgb"}, forecaster.ErrModelNotFound},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, td.args...)
			assert.ErrorIs(t, err, td.err)
		})
	}

	_, err := run(t, "-c", path, "train")
	assert.NotNil(t, err)
	_, err = run(t, "--profile", "gpu", "models", "-r", "water")
	assert.NotNil(t, err)
}
