// Package server exposes a Forecaster over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/carbonwise/go-forecaster"
	"github.com/carbonwise/go-forecaster/datasource"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/registry"
	"github.com/carbonwise/go-forecaster/telemetry"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var ErrBadRequest = errors.New("bad request")

// Service is the part of forecaster.Forecaster the API serves.
type Service interface {
	Train(ctx context.Context, r feature.Resource, entity string, req forecast.Request) (*forecaster.TrainReport, error)
	Predict(ctx context.Context, r feature.Resource, entity string, k forecast.Kind, horizon int) (*forecaster.Forecast, error)
	Evaluate(ctx context.Context, r feature.Resource, entity string, k forecast.Kind) (*forecaster.Evaluation, error)
	Models(ctx context.Context, r feature.Resource, entity string) ([]forecaster.ModelInfo, error)
	Delete(ctx context.Context, r feature.Resource, entity string) error
	Health(ctx context.Context) forecaster.Health
}

type Options struct {
	Addr string `json:"addr"`

	// RateLimit is the sustained requests per second across all clients; Burst the bucket size.
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`

	MaxBodyBytes   int64         `json:"max_body_bytes"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	DefaultHorizon int           `json:"default_horizon"`
	DefaultKind    forecast.Kind `json:"default_kind"`

	// MetricsUser and MetricsPassword enable basic auth on /metrics when both are set.
	MetricsUser     string `json:"metrics_user"`
	MetricsPassword string `json:"-"`

	Gatherer prometheus.Gatherer `json:"-"`
	Logger   *slog.Logger        `json:"-"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Addr:           ":8080",
		RateLimit:      10,
		Burst:          20,
		MaxBodyBytes:   1 << 20,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    60 * time.Second,
		DefaultHorizon: 12,
		DefaultKind:    forecast.KindEnsembleAll,
	}
}

func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	def := NewDefaultOptions()
	opt := *o
	if opt.Addr == "" {
		opt.Addr = def.Addr
	}
	if opt.RateLimit <= 0 {
		opt.RateLimit = def.RateLimit
	}
	if opt.Burst <= 0 {
		opt.Burst = max(1, int(2*opt.RateLimit))
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = def.MaxBodyBytes
	}
	if opt.ReadTimeout <= 0 {
		opt.ReadTimeout = def.ReadTimeout
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = def.WriteTimeout
	}
	if opt.IdleTimeout <= 0 {
		opt.IdleTimeout = def.IdleTimeout
	}
	if opt.DefaultHorizon <= 0 {
		opt.DefaultHorizon = def.DefaultHorizon
	}
	if opt.DefaultKind == "" {
		opt.DefaultKind = def.DefaultKind
	}
	if _, err := forecast.ParseKind(string(opt.DefaultKind)); err != nil {
		return nil, err
	}
	if opt.Gatherer == nil {
		opt.Gatherer = prometheus.DefaultGatherer
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &opt, nil
}

type Server struct {
	opt     *Options
	svc     Service
	limiter *rate.Limiter
	handler http.Handler
	log     *slog.Logger
}

func New(svc Service, opt *Options) (*Server, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	s := &Server{
		opt:     opt,
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(opt.RateLimit), opt.Burst),
		log:     opt.Logger,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /train", s.limit(s.handleTrain))
	mux.Handle("GET /predict", s.limit(s.handlePredict))
	mux.Handle("GET /evaluate", s.limit(s.handleEvaluate))
	mux.Handle("GET /models", s.limit(s.handleModels))
	mux.Handle("DELETE /models", s.limit(s.handleDelete))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsHandler())
	s.handler = s.trace(mux)
	return s, nil
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on Addr until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opt.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.opt.ReadTimeout,
		WriteTimeout: s.opt.WriteTimeout,
		IdleTimeout:  s.opt.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", s.opt.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to shut down server, %w", err)
	}
	return <-errCh
}

func (s *Server) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), "http "+r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) limit(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errTypeRateLimited, errors.New("too many requests"))
			return
		}
		h(w, r)
	})
}

func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.HandlerFor(s.opt.Gatherer, promhttp.HandlerOpts{})
	if s.opt.MetricsUser == "" || s.opt.MetricsPassword == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.opt.MetricsUser || pass != s.opt.MetricsPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			writeError(w, http.StatusUnauthorized, errTypeUnauthorized, errors.New("unauthorized"))
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// TrainRequest is the body of POST /train. Empty model and ensemble lists train every learner and
// ensemble_all.
type TrainRequest struct {
	ResourceType  string   `json:"resource_type"`
	BuildingID    string   `json:"building_id"`
	ModelTypes    []string `json:"model_types"`
	EnsembleTypes []string `json:"ensemble_types"`
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var body TrainRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.opt.MaxBodyBytes)).Decode(&body); err != nil {
		s.fail(w, fmt.Errorf("invalid json, %w: %v", ErrBadRequest, err))
		return
	}
	res, err := feature.ParseResource(body.ResourceType)
	if err != nil {
		s.fail(w, err)
		return
	}
	req := forecast.Request{}
	if req.Kinds, err = parseKinds(body.ModelTypes, false); err != nil {
		s.fail(w, err)
		return
	}
	if req.Ensembles, err = parseKinds(body.EnsembleTypes, true); err != nil {
		s.fail(w, err)
		return
	}

	report, err := s.svc.Train(r.Context(), res, entityOrDefault(body.BuildingID), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseKinds(names []string, ensemble bool) ([]forecast.Kind, error) {
	kinds := make([]forecast.Kind, 0, len(names))
	for _, n := range names {
		k, err := forecast.ParseKind(n)
		if err != nil {
			return nil, err
		}
		if k.Ensemble() != ensemble {
			return nil, fmt.Errorf("%q, %w", n, forecast.ErrUnknownKind)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func entityOrDefault(entity string) string {
	if entity == "" {
		return datasource.AllBuildings
	}
	return entity
}

// query reads the resource, building id and model type parameters shared by the GET routes.
func (s *Server) query(r *http.Request) (feature.Resource, string, forecast.Kind, error) {
	q := r.URL.Query()
	res, err := feature.ParseResource(q.Get("resource_type"))
	if err != nil {
		return "", "", "", err
	}
	k := s.opt.DefaultKind
	if v := q.Get("model_type"); v != "" {
		if k, err = forecast.ParseKind(v); err != nil {
			return "", "", "", err
		}
	}
	return res, entityOrDefault(q.Get("building_id")), k, nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	res, entity, k, err := s.query(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	horizon := s.opt.DefaultHorizon
	if v := r.URL.Query().Get("months"); v != "" {
		if horizon, err = strconv.Atoi(v); err != nil {
			s.fail(w, fmt.Errorf("months %q, %w", v, forecaster.ErrInvalidHorizon))
			return
		}
	}
	fc, err := s.svc.Predict(r.Context(), res, entity, k, horizon)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	res, entity, k, err := s.query(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	eval, err := s.svc.Evaluate(r.Context(), res, entity, k)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	res, entity, _, err := s.query(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	infos, err := s.svc.Models(r.Context(), res, entity)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": infos})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, entity, _, err := s.query(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Delete(r.Context(), res, entity); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health(r.Context())
	status := http.StatusOK
	if !h.OK() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// fail writes err with the status its sentinel maps to. Server side failures are logged.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status, typ := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeError(w, status, typ, err)
}

const (
	errTypeNotFound     = "not_found"
	errTypeBadRequest   = "bad_request"
	errTypeValidation   = "validation_error"
	errTypeModel        = "model_error"
	errTypeUnavailable  = "unavailable"
	errTypeRateLimited  = "rate_limited"
	errTypeUnauthorized = "unauthorized"
	errTypeInternal     = "internal_server_error"
)

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, forecaster.ErrModelNotFound):
		return http.StatusNotFound, errTypeNotFound
	case errors.Is(err, forecaster.ErrInvalidResource),
		errors.Is(err, forecaster.ErrInvalidHorizon),
		errors.Is(err, forecast.ErrUnknownKind),
		errors.Is(err, registry.ErrInvalidKey),
		errors.Is(err, datasource.ErrInvalidEntity),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, errTypeBadRequest
	case errors.Is(err, forecaster.ErrInsufficientData):
		return http.StatusUnprocessableEntity, errTypeValidation
	case errors.Is(err, forecaster.ErrNoComponentsAvailable),
		errors.Is(err, forecast.ErrNoModelsTrained):
		return http.StatusUnprocessableEntity, errTypeModel
	case errors.Is(err, forecaster.ErrNoDataSource):
		return http.StatusServiceUnavailable, errTypeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errTypeUnavailable
	}
	return http.StatusInternalServerError, errTypeInternal
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, typ string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Type: typ})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("unable to encode response", "error", err)
	}
}
