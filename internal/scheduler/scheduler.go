package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	obsmetrics "github.com/smallbiznis/levy/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/smallbiznis/levy/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobAnchorPayments = "anchor_payments"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     *ratelimit.Locker           `optional:"true"`
	Runtime    *config.RuntimeConfigHolder `optional:"true"`
	Config     Config                      `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	locker     *ratelimit.Locker
	runtime    *config.RuntimeConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PaymentSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		paymentSvc: p.PaymentSvc,
		locker:     p.Locker,
		runtime:    p.Runtime,
	}, nil
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

	err := s.locker.WithLock(ctx, "job:"+name, s.cfg.LockTTL, fn)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if errors.Is(err, ratelimit.ErrLockHeld) {
		schedMetrics.IncJobSkipped(name)
		log.Debug("job skipped, lock held by another replica")
		return nil
	}
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

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobAnchorPayments, s.isJobEnabled(JobAnchorPayments), func(ctx context.Context) error {
			return s.runJob(ctx, JobAnchorPayments, s.batchSize(), s.cfg.JobTimeout, s.AnchorPaymentsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) batchSize() int {
	if s.runtime != nil {
		if size := s.runtime.Get().Scheduler.AnchorBatchSize; size > 0 {
			return size
		}
	}
	return s.cfg.BatchSize
}

// AnchorPaymentsJob anchors recorded payments that have no ledger hash yet.
// Each batch is drained until a pass anchors nothing, so a payment that keeps
// failing is retried on the next tick instead of spinning here.
func (s *Scheduler) AnchorPaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobAnchorPayments, s.batchSize())
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	var jobErr error

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		summary, err := s.paymentSvc.AnchorPending(ctx, run.batchSize)
		run.AddProcessed(summary.Anchored)
		obsmetrics.Scheduler().AddBatchProcessed(JobAnchorPayments, summary.Anchored)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.anchor.failed", JobAnchorPayments, err,
				zap.Int("claimed", summary.Claimed),
				zap.Int("failed", summary.Failed),
			)
		}
		if summary.Anchored == 0 || summary.Claimed < run.batchSize {
			break
		}
	}

	return jobErr
}
