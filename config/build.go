package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/carbonwise/go-forecaster"
	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/metrics"
	"github.com/carbonwise/go-forecaster/registry"
	"github.com/carbonwise/go-forecaster/scheduler"
	"github.com/carbonwise/go-forecaster/server"
	"github.com/carbonwise/go-forecaster/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewLogger returns a logger writing to w in the configured format and level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenRegistry opens the configured model store, wrapped in an LRU cache when CacheSize is set.
func (c *Config) OpenRegistry() (registry.Store, error) {
	var store registry.Store
	switch c.Registry.Backend {
	case BackendFile:
		fs, err := registry.NewFileStore(c.Registry.Dir)
		if err != nil {
			return nil, err
		}
		store = fs
	case BackendRedis:
		rs, err := registry.NewRedisStore(c.Registry.RedisAddr, c.Registry.RedisPassword, c.Registry.RedisDB, c.Registry.Prefix)
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("registry %q, %w", c.Registry.Backend, ErrUnknownBackend)
	}
	if c.Registry.CacheSize <= 0 {
		return store, nil
	}
	cached, err := registry.NewCached(store, c.Registry.CacheSize, time.Duration(c.Registry.CacheTTL))
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// OpenDataSource connects to the configured meter-reading store. BackendNone returns a nil
// Source.
func (c *Config) OpenDataSource(ctx context.Context) (datasource.Source, error) {
	tables, err := c.Tables()
	if err != nil {
		return nil, err
	}
	switch c.DataSource.Backend {
	case BackendPostgres:
		src, err := datasource.NewPostgresSource(ctx, c.DataSource.DSN, tables)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendClickHouse:
		src, err := datasource.NewClickHouseSource(ctx, c.DataSource.DSN, tables)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendFile:
		return datasource.NewFileSource(c.DataSource.Dir), nil
	case BackendNone:
		return nil, nil
	}
	return nil, fmt.Errorf("datasource %q, %w", c.DataSource.Backend, ErrUnknownBackend)
}

func (c *Config) ForecasterOptions(logger *slog.Logger, m *metrics.Metrics) *forecaster.Options {
	opt := forecaster.NewDefaultOptions()
	opt.Features = c.Features
	opt.Trainer = c.Trainer
	opt.MaxConcurrentTrains = c.MaxConcurrentTrains
	opt.Logger = logger
	opt.Metrics = m
	return opt
}

func (c *Config) ServerOptions(logger *slog.Logger, g prometheus.Gatherer) *server.Options {
	opt := server.NewDefaultOptions()
	opt.Addr = c.HTTP.Addr
	opt.RateLimit = c.HTTP.RateLimit
	opt.Burst = c.HTTP.Burst
	if c.HTTP.WriteTimeout > 0 {
		opt.WriteTimeout = time.Duration(c.HTTP.WriteTimeout)
	}
	if c.HTTP.DefaultHorizon > 0 {
		opt.DefaultHorizon = c.HTTP.DefaultHorizon
	}
	opt.MetricsUser = c.HTTP.MetricsUser
	opt.MetricsPassword = c.HTTP.MetricsPassword
	opt.Gatherer = g
	opt.Logger = logger
	return opt
}

func (c *Config) SchedulerOptions(logger *slog.Logger) *scheduler.Options {
	return &scheduler.Options{
		Jobs:     c.Schedule.Jobs,
		Location: c.Schedule.Location,
		Timeout:  time.Duration(c.Schedule.Timeout),
		Logger:   logger,
	}
}

// App holds everything Build opened. Close releases it in reverse order.
type App struct {
	Config     *Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      registry.Store
	Source     datasource.Source
	Forecaster *forecaster.Forecaster
	Tracer     *sdktrace.TracerProvider
}

// Build opens the registry and data source, registers metrics on a fresh Prometheus registry,
// starts tracing when enabled and creates the Forecaster.
func (c *Config) Build(ctx context.Context) (*App, error) {
	app := &App{
		Config:   c,
		Logger:   c.NewLogger(os.Stderr),
		Registry: prometheus.NewRegistry(),
	}
	app.Metrics = metrics.New(app.Registry)

	var err error
	if app.Store, err = c.OpenRegistry(); err != nil {
		return nil, fmt.Errorf("unable to open registry, %w", err)
	}
	if app.Source, err = c.OpenDataSource(ctx); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("unable to open datasource, %w", err)
	}
	if c.Telemetry.Enabled {
		if app.Tracer, err = telemetry.InitTracer(ctx, &c.Telemetry.Config); err != nil {
			app.Close(ctx)
			return nil, err
		}
	}
	if app.Forecaster, err = forecaster.New(app.Store, app.Source, c.ForecasterOptions(app.Logger, app.Metrics)); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

type voidCloser interface {
	Close()
}

// Close shuts down tracing and closes the data source and registry.
func (a *App) Close(ctx context.Context) {
	if a.Tracer != nil {
		if err := telemetry.Shutdown(ctx, a.Tracer); err != nil {
			a.Logger.Warn("unable to shut down tracer", "error", err)
		}
	}
	for _, v := range []any{a.Source, a.Store} {
		switch c := v.(type) {
		case io.Closer:
			if err := c.Close(); err != nil {
				a.Logger.Warn("unable to close", "error", err)
			}
		case voidCloser:
			c.Close()
		}
	}
}
