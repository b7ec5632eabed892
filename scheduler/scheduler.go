// Package scheduler retrains configured resource and entity pairs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carbonwise/go-forecaster"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidSchedule = errors.New("invalid cron schedule")
	ErrNoTargets       = errors.New("job has no targets")
)

// Trainer is the part of forecaster.Forecaster a job runs.
type Trainer interface {
	Train(ctx context.Context, r feature.Resource, entity string, req forecast.Request) (*forecaster.TrainReport, error)
}

// Target is one resource and entity retrained by a job. Empty Kinds and Ensembles train the
// default set.
type Target struct {
	Resource  feature.Resource `json:"resource"`
	Entity    string           `json:"entity"`
	Kinds     []forecast.Kind  `json:"kinds,omitempty"`
	Ensembles []forecast.Kind  `json:"ensembles,omitempty"`
}

func (t Target) String() string {
	return string(t.Resource) + "/" + t.Entity
}

func (t Target) request() forecast.Request {
	return forecast.Request{Kinds: t.Kinds, Ensembles: t.Ensembles}
}

// Job retrains its targets each time Schedule fires. Schedule is a five field cron expression or a
// descriptor such as "@monthly".
type Job struct {
	Schedule string   `json:"schedule"`
	Targets  []Target `json:"targets"`
}

type Options struct {
	Jobs []Job `json:"jobs"`

	// Location is the IANA time zone schedules are evaluated in. Empty means UTC.
	Location string `json:"location"`

	// Timeout bounds a single target's training run. 0 disables it.
	Timeout time.Duration `json:"timeout"`

	Logger *slog.Logger `json:"-"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Timeout: 10 * time.Minute,
	}
}

func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	opt := *o
	for i, j := range opt.Jobs {
		if _, err := parser.Parse(j.Schedule); err != nil {
			return nil, fmt.Errorf("job %d %q, %w: %v", i, j.Schedule, ErrInvalidSchedule, err)
		}
		if len(j.Targets) == 0 {
			return nil, fmt.Errorf("job %d, %w", i, ErrNoTargets)
		}
		for _, t := range j.Targets {
			if err := t.Resource.Valid(); err != nil {
				return nil, fmt.Errorf("job %d target %s, %w", i, t, err)
			}
		}
	}
	if opt.Timeout < 0 {
		opt.Timeout = 0
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &opt, nil
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Result is the outcome of retraining one target.
type Result struct {
	Target Target
	Report *forecaster.TrainReport
	Err    error
}

// Scheduler runs retraining jobs. A job still running when its schedule fires again is skipped.
type Scheduler struct {
	opt     *Options
	trainer Trainer
	cron    *cron.Cron
	loc     *time.Location
	log     *slog.Logger
}

func New(trainer Trainer, opt *Options) (*Scheduler, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if opt.Location != "" {
		if loc, err = time.LoadLocation(opt.Location); err != nil {
			return nil, fmt.Errorf("unable to load location %q, %w", opt.Location, err)
		}
	}

	s := &Scheduler{
		opt:     opt,
		trainer: trainer,
		loc:     loc,
		log:     opt.Logger,
	}
	logger := cronLogger{opt.Logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, j := range opt.Jobs {
		if _, err := s.cron.AddFunc(j.Schedule, func() {
			s.Run(context.Background(), j.Targets)
		}); err != nil {
			return nil, fmt.Errorf("unable to schedule %q, %w", j.Schedule, err)
		}
	}
	return s, nil
}

// Run retrains targets one after another and returns every outcome. A failing target does not
// stop the rest.
func (s *Scheduler) Run(ctx context.Context, targets []Target) []Result {
	results := make([]Result, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Target: t, Err: err})
			continue
		}
		results = append(results, s.train(ctx, t))
	}
	return results
}

func (s *Scheduler) train(ctx context.Context, t Target) Result {
	if s.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opt.Timeout)
		defer cancel()
	}
	start := time.Now()
	report, err := s.trainer.Train(ctx, t.Resource, t.Entity, t.request())
	if err != nil {
		s.log.Warn("scheduled retrain failed", "resource", t.Resource, "entity", t.Entity, "error", err)
		return Result{Target: t, Report: report, Err: err}
	}
	s.log.Info("scheduled retrain finished", "resource", t.Resource, "entity", t.Entity,
		"trained", report.ModelsTrained, "duration", time.Since(start))
	return Result{Target: t, Report: report}
}

// RunAll retrains the targets of every job immediately.
func (s *Scheduler) RunAll(ctx context.Context) []Result {
	var results []Result
	for _, j := range s.opt.Jobs {
		results = append(results, s.Run(ctx, j.Targets)...)
	}
	return results
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the earliest upcoming run, or the zero time when no job is scheduled.
func (s *Scheduler) Next() time.Time {
	now := time.Now().In(s.loc)
	var next time.Time
	for _, e := range s.cron.Entries() {
		if n := e.Schedule.Next(now); !n.IsZero() && (next.IsZero() || n.Before(next)) {
			next = n
		}
	}
	return next
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
