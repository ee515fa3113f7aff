package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is how often due jobs are checked. Jobs implementing Spaced
	// run at most once per their own interval.
	Interval time.Duration
}

// Service runs due jobs one cycle at a time. A cycle only starts once the
// shared lock is won, and it stops early if the lock cannot be refreshed.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	lastRun  map[string]time.Time
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     p.Logger,
		registry: p.Registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		tick:     p.Interval,
		lastRun:  map[string]time.Time{},
		now:      time.Now,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	due := s.dueJobs()
	if len(due) == 0 {
		return nil
	}

	won, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !won {
		s.logg.Info(ctx, "cron.cycle_skipped_lock_held")
		s.metrics.IncSkippedCycle()
		return nil
	}

	cycleCtx, cancel := context.WithCancelCause(ctx)
	held := make(chan struct{})
	go func() {
		defer close(held)
		s.keepLock(cycleCtx, cancel)
	}()
	defer func() {
		cancel(nil)
		<-held
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	for _, job := range due {
		if cycleCtx.Err() != nil {
			return context.Cause(cycleCtx)
		}
		s.runJob(cycleCtx, job)
	}
	return nil
}

// keepLock refreshes the lock at a third of its TTL and cancels the cycle
// with the refresh error once ownership is gone.
func (s *Service) keepLock(ctx context.Context, cancel context.CancelCauseFunc) {
	every := s.lock.TTL() / 3
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lock.Refresh(ctx); err != nil {
				if ctx.Err() == nil {
					s.logg.Error(ctx, "cron.lock_refresh_failed", err)
				}
				cancel(err)
				return
			}
		}
	}
}

func (s *Service) dueJobs() []Job {
	now := s.now()
	var due []Job
	for _, job := range s.registry.Jobs() {
		if spaced, ok := job.(Spaced); ok {
			if last, ran := s.lastRun[job.Name()]; ran && now.Sub(last) < spaced.Interval() {
				continue
			}
		}
		due = append(due, job)
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	started := s.now()
	// failed runs count too, so a broken spaced job waits its interval
	s.lastRun[job.Name()] = started

	err := runGuarded(jobCtx, job)
	took := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron.job_done")
}

func runGuarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
