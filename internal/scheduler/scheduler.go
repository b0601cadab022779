// Package scheduler runs the league sweeps on cron timers.
//
// Every job is a singleton: a cron tick is skipped while the previous run is
// still going, and RunNow joins an in-flight run instead of starting another.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

const defaultJobTimeout = 5 * time.Minute

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	run  JobFunc
	id   cron.EntryID
}

// Scheduler owns a cron instance and a set of named jobs.
type Scheduler struct {
	cron       *cron.Cron
	group      singleflight.Group
	jobTimeout time.Duration
	location   *time.Location
	logger     logger.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobTimeout: defaultJobTimeout,
		location:   time.UTC,
		jobs:       make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{l: s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// ParseSpec validates a standard five-field cron expression or descriptor.
func ParseSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
	}
	return nil
}

// Register adds a named job. Names must be unique.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	if name == "" || fn == nil {
		return ErrInvalidJob
	}
	if err := ParseSpec(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	j := &job{name: name, spec: spec, run: fn}
	id, err := s.cron.AddFunc(spec, func() { s.tick(j) })
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSpec, spec, err)
	}
	j.id = id
	s.jobs[name] = j
	return nil
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info(s.ctx, "scheduler started", logger.Int("jobs", len(s.jobs)))
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.logger.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunNow runs the named job immediately and waits for it or for ctx. A call
// made while the job is already running waits for that run and shares its
// result. Giving up on ctx leaves the run going.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next activation time of the named job, zero if the
// scheduler is not running.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(j.id).Next
}

func (s *Scheduler) tick(j *job) {
	if err := s.execute(s.ctx, j); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(s.ctx, "scheduled job failed", logger.String("job", j.name), logger.Error(err))
	}
}

// execute runs j once under the scheduler context. Concurrent callers share
// the run; each stops waiting when its own ctx ends without cancelling it.
func (s *Scheduler) execute(ctx context.Context, j *job) error {
	ch := s.group.DoChan(j.name, func() (any, error) {
		runCtx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
		defer cancel()

		start := time.Now()
		err := j.run(runCtx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordSweepRun(j.name, outcome, time.Since(start).Seconds())
		s.logger.Debug(runCtx, "job finished",
			logger.String("job", j.name),
			logger.String("outcome", outcome),
			logger.Duration("took", time.Since(start)),
		)
		return nil, err
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug(ctx, "joined running job", logger.String("job", j.name))
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(context.Background(), msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(kvFields(keysAndValues), logger.Error(err))
	c.l.Error(context.Background(), msg, fields...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
