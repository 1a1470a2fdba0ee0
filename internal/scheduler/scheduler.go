package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/learnpay/internal/clock"
	obsmetrics "github.com/smallbiznis/learnpay/internal/observability/metrics"
	"github.com/smallbiznis/learnpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobCancelStalePayments = "cancel_stale_payments"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// StaleCanceller cancels pending payments created before cutoff, at most
// limit rows per call.
type StaleCanceller interface {
	CancelStale(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// LeaderLock keeps a sweep to one replica at a time.
type LeaderLock interface {
	Enabled() bool
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Payments StaleCanceller
	Locker   *ratelimit.Locker `optional:"true"`
	Config   Config            `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	payments StaleCanceller
	lock     LeaderLock

	mu   sync.Mutex
	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Payments == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		payments: p.Payments,
	}
	if p.Locker.Enabled() {
		s.lock = p.Locker
	}
	return s, nil
}

// Start registers the jobs on their cron schedules and starts the runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	if _, err := c.AddFunc(s.cfg.SweepSpec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("scheduler run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", JobCancelStalePayments, err)
	}

	c.Start()
	s.cron = c
	s.log.Info("scheduler started",
		zap.String("spec", s.cfg.SweepSpec),
		zap.Duration("pending_ttl", s.cfg.PendingTTL),
	)
	return nil
}

// Stop waits for a running job to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runLocked(parent, JobCancelStalePayments, func(ctx context.Context) error {
		return s.runJob(ctx, JobCancelStalePayments, s.cfg.BatchSize, s.cfg.JobTimeout, s.CancelStalePaymentsJob)
	})
}

// runLocked runs fn only while this replica holds the job's lock. Without a
// configured lock every replica runs; the sweep's conditional updates keep
// that safe.
func (s *Scheduler) runLocked(ctx context.Context, job string, fn func(context.Context) error) error {
	if s.lock == nil {
		return fn(ctx)
	}

	key := "learnpay:scheduler:" + job
	token, ok, err := s.lock.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("scheduler lock unavailable, running unguarded", zap.String("job", job), zap.Error(err))
		return fn(ctx)
	}
	if !ok {
		obsmetrics.Scheduler().IncJobSkipped(job)
		s.log.Debug("scheduler lock held elsewhere", zap.String("job", job))
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// CancelStalePaymentsJob cancels pending payments older than the pending
// TTL, batch by batch, until a short batch comes back.
func (s *Scheduler) CancelStalePaymentsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.PendingTTL)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cancelled, err := s.payments.CancelStale(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.sweep.failed", JobCancelStalePayments, err,
				zap.Time("cutoff", cutoff),
			)
			return err
		}
		run.AddProcessed(int(cancelled))
		schedMetrics.AddBatchProcessed(JobCancelStalePayments, obsmetrics.SweepResourcePayments, int(cancelled))
		if cancelled < int64(s.cfg.BatchSize) {
			return nil
		}
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
