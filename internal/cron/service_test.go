package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquires   int
	ttl        time.Duration
	refreshErr error
	refreshes  int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

func (f *fakeLock) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeLock) TTL() time.Duration { return f.ttl }

// blockingJob runs until its context ends.
type blockingJob struct{ name string }

func (b blockingJob) Name() string { return b.name }

func (b blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type panickingJob struct{}

func (panickingJob) Name() string { return "panics" }

func (panickingJob) Run(context.Context) error { panic("nil trip") }

type testJob struct {
	name     string
	err      error
	runs     int
	interval time.Duration
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type spacedJob struct {
	testJob
}

func (s *spacedJob) Interval() time.Duration { return s.interval }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry, err := NewRegistry(success, failure)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 1, success.runs)
	require.Equal(t, 1, failure.runs)
	require.Equal(t, 2, testutil.CollectAndCount(reg, "freight_cron_runs_total"))
	require.Equal(t, 1, testutil.CollectAndCount(reg, "freight_cron_last_success_timestamp_seconds"))
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "payment-reconcile"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{held: true},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Zero(t, job.runs)
	families, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, f := range families {
		if f.GetName() == "freight_cron_skipped_cycles_total" {
			skipped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, skipped)
}

func TestServiceHonorsJobSpacing(t *testing.T) {
	every := &testJob{name: "every-tick"}
	daily := &spacedJob{testJob{name: "daily", interval: 24 * time.Hour}}
	registry, err := NewRegistry(every, daily)
	require.NoError(t, err)

	lock := &fakeLock{}
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	require.NoError(t, service.runCycle(context.Background()))
	now = now.Add(time.Minute)
	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 2, every.runs)
	require.Equal(t, 1, daily.runs)

	now = now.Add(24 * time.Hour)
	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 2, daily.runs)
}

func TestServiceDoesNotLockWhenNothingDue(t *testing.T) {
	daily := &spacedJob{testJob{name: "daily", interval: time.Hour}}
	registry, err := NewRegistry(daily)
	require.NoError(t, err)

	lock := &fakeLock{}
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	require.NoError(t, service.runCycle(context.Background()))
	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 1, lock.acquires)
	require.Equal(t, 1, daily.runs)
}

func TestServiceAbandonsCycleWhenLockLost(t *testing.T) {
	after := &testJob{name: "after"}
	registry, err := NewRegistry(blockingJob{name: "long"}, after)
	require.NoError(t, err)

	lock := &fakeLock{ttl: 3 * time.Millisecond, refreshErr: errLockLost}
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)

	err = service.runCycle(context.Background())
	require.ErrorIs(t, err, errLockLost)
	require.Zero(t, after.runs)
	require.Equal(t, 1, lock.refreshes)
	require.False(t, lock.held)
}

func TestServiceRecoversPanickingJob(t *testing.T) {
	next := &testJob{name: "next"}
	registry, err := NewRegistry(panickingJob{}, next)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{ttl: time.Hour},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 1, next.runs)
	require.Equal(t, 2, testutil.CollectAndCount(reg, "freight_cron_runs_total"))
}
