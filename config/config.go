// Package config loads the service configuration and builds the registry, data source and
// Forecaster it describes.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/scheduler"
	"github.com/carbonwise/go-forecaster/telemetry"
	"github.com/goccy/go-json"
)

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrMissingDSN     = errors.New("data source dsn is required")
	ErrInvalidLevel   = errors.New("invalid log level")
)

const (
	BackendFile       = "file"
	BackendRedis      = "redis"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// Duration is a time.Duration read from a JSON string such as "10m".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string or nanoseconds, %w", err)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Registry struct {
	Backend string `json:"backend"`
	Dir     string `json:"dir"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	Prefix        string `json:"prefix"`

	// CacheSize bounds the in-process bundle cache. 0 disables it.
	CacheSize int      `json:"cache_size"`
	CacheTTL  Duration `json:"cache_ttl"`
}

type DataSource struct {
	Backend string `json:"backend"`
	DSN     string `json:"-"`
	Dir     string `json:"dir"`

	// Tables maps resource names to meter-reading tables. Missing resources keep the default table.
	Tables map[string]string `json:"tables"`
}

type HTTP struct {
	Addr            string   `json:"addr"`
	RateLimit       float64  `json:"rate_limit"`
	Burst           int      `json:"burst"`
	WriteTimeout    Duration `json:"write_timeout"`
	DefaultHorizon  int      `json:"default_horizon"`
	MetricsUser     string   `json:"metrics_user"`
	MetricsPassword string   `json:"-"`
}

type Telemetry struct {
	Enabled bool `json:"enabled"`
	telemetry.Config
}

type Schedule struct {
	Location string          `json:"location"`
	Timeout  Duration        `json:"timeout"`
	Jobs     []scheduler.Job `json:"jobs"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the complete service configuration. It is not modified after Load returns.
type Config struct {
	Registry   Registry   `json:"registry"`
	DataSource DataSource `json:"datasource"`

	Features            *feature.Options  `json:"features"`
	Trainer             *forecast.Options `json:"trainer"`
	MaxConcurrentTrains int64             `json:"max_concurrent_trains"`

	HTTP      HTTP      `json:"http"`
	Telemetry Telemetry `json:"telemetry"`
	Schedule  Schedule  `json:"schedule"`
	Log       Log       `json:"log"`
}

func Default() *Config {
	return &Config{
		Registry: Registry{
			Backend:   BackendFile,
			Dir:       "models",
			RedisAddr: "localhost:6379",
			Prefix:    "forecaster",
			CacheSize: 256,
			CacheTTL:  Duration(10 * time.Minute),
		},
		DataSource: DataSource{
			Backend: BackendFile,
			Dir:     "data",
		},
		Features:            feature.NewDefaultOptions(),
		Trainer:             forecast.NewDefaultOptions(),
		MaxConcurrentTrains: 2,
		HTTP: HTTP{
			Addr:           ":8080",
			RateLimit:      10,
			Burst:          20,
			WriteTimeout:   Duration(5 * time.Minute),
			DefaultHorizon: 12,
		},
		Telemetry: Telemetry{Config: *telemetry.NewDefaultConfig()},
		Schedule: Schedule{
			Timeout: Duration(10 * time.Minute),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the JSON file at path over the defaults, applies environment overrides and
// validates the result. An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read config, %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config %s, %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and deployment specific settings from the environment.
func (c *Config) applyEnv() {
	c.Registry.Backend = getEnv("FORECASTER_REGISTRY", c.Registry.Backend)
	c.Registry.Dir = getEnv("FORECASTER_MODEL_DIR", c.Registry.Dir)
	c.Registry.RedisAddr = getEnv("REDIS_ADDR", c.Registry.RedisAddr)
	c.Registry.RedisPassword = getEnv("REDIS_PASSWORD", c.Registry.RedisPassword)
	c.Registry.RedisDB = getEnvInt("REDIS_DB", c.Registry.RedisDB)
	c.DataSource.Backend = getEnv("FORECASTER_DATASOURCE", c.DataSource.Backend)
	c.DataSource.DSN = getEnv("FORECASTER_DSN", c.DataSource.DSN)
	c.HTTP.Addr = getEnv("FORECASTER_ADDR", c.HTTP.Addr)
	c.HTTP.MetricsPassword = getEnv("METRICS_PASSWORD", c.HTTP.MetricsPassword)
	c.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("registry %q, %w", c.Registry.Backend, ErrUnknownBackend)
	}
	switch c.DataSource.Backend {
	case BackendPostgres, BackendClickHouse:
		if c.DataSource.DSN == "" {
			return fmt.Errorf("%s, %w", c.DataSource.Backend, ErrMissingDSN)
		}
	case BackendFile, BackendNone:
	default:
		return fmt.Errorf("datasource %q, %w", c.DataSource.Backend, ErrUnknownBackend)
	}
	if _, err := c.Tables(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.Features.Validate(); err != nil {
		return fmt.Errorf("invalid feature options, %w", err)
	}
	if _, err := c.Trainer.Validate(); err != nil {
		return fmt.Errorf("invalid trainer options, %w", err)
	}
	if _, err := c.SchedulerOptions(nil).Validate(); err != nil {
		return fmt.Errorf("invalid schedule, %w", err)
	}
	return nil
}

// Tables returns the default resource tables with the configured overrides applied.
func (c *Config) Tables() (datasource.Tables, error) {
	tables := datasource.DefaultTables()
	for name, table := range c.DataSource.Tables {
		r, err := feature.ParseResource(name)
		if err != nil {
			return nil, fmt.Errorf("datasource table, %w", err)
		}
		tables[r] = table
	}
	return tables, nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%q, %w", c.Log.Level, ErrInvalidLevel)
}
