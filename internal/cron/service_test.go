package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, m *metrics.CronJobMetrics, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsEveryJobAndAggregatesFailures(t *testing.T) {
	ok := &testJob{name: "ok"}
	first := &testJob{name: "first", err: errors.New("boom")}
	second := &testJob{name: "second", err: errors.New("bang")}
	lock := &fakeLock{}
	service := newTestService(t, lock, nil, first, ok, second)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Contains(t, err.Error(), "first: boom")
	require.Contains(t, err.Error(), "second: bang")

	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, first.runs)
	require.Equal(t, 1, second.runs)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{held: true}
	service := newTestService(t, lock, nil, job)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestRunOnceReturnsLockError(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, &fakeLock{acquireErr: errors.New("redis down")}, nil, job)

	err := service.RunOnce(context.Background())
	require.ErrorContains(t, err, "redis down")
	require.Zero(t, job.runs)
}

func TestRunOnceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	service := newTestService(t, &fakeLock{}, m,
		&testJob{name: "ok"},
		&testJob{name: "bad", err: errors.New("boom")},
	)

	_ = service.RunOnce(context.Background())

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, float64(1), runCount(families, "ok", "success"))
	require.Equal(t, float64(1), runCount(families, "bad", "failure"))
	require.Zero(t, runCount(families, "bad", "success"))
}

func runCount(families []*dto.MetricFamily, job, outcome string) float64 {
	for _, family := range families {
		if family.GetName() != "storefront_cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["job"] == job && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
}

type panickyJob struct{}

func (panickyJob) Name() string { return "panicky" }

func (panickyJob) Run(context.Context) error { panic("nil map") }

func TestRunOnceRecoversJobPanic(t *testing.T) {
	lock := &fakeLock{}
	after := &testJob{name: "after"}
	service := newTestService(t, lock, nil, panickyJob{}, after)

	err := service.RunOnce(context.Background())
	require.ErrorContains(t, err, "panicky: panic: nil map")
	require.Equal(t, 1, after.runs)
	require.Equal(t, 1, lock.releases)
}

type deadlineJob struct{ deadline time.Time }

func (d *deadlineJob) Name() string { return "deadline" }

func (d *deadlineJob) Run(ctx context.Context) error {
	d.deadline, _ = ctx.Deadline()
	return nil
}

func TestRunOnceBoundsJobsAndReleasesAfterCancel(t *testing.T) {
	lock := &fakeLock{}
	job := &deadlineJob{}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(job),
		Lock:       lock,
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.WithinDuration(t, time.Now().Add(time.Minute), job.deadline, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := &testJob{name: "never"}
	service = newTestService(t, lock, nil, second)
	err = service.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, second.runs)
	require.Equal(t, 2, lock.releases)
}
