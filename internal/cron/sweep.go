package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// sweepJob deletes rows that are no longer useful and logs how many went.
type sweepJob struct {
	name  string
	logg  *logger.Logger
	sweep func(ctx context.Context) (int64, map[string]any, error)
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	removed, fields, err := j.sweep(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["rows_removed"] = removed
	j.logg.Info(j.logg.WithFields(ctx, fields), "cron.sweep_done")
	return nil
}

type alertCleaner interface {
	Cleanup(ctx context.Context, low int) (int64, error)
}

// LowStockCleanupJobParams configure the stale alert sweep.
type LowStockCleanupJobParams struct {
	Logger  *logger.Logger
	Monitor alertCleaner
	Low     int
}

// NewLowStockCleanupJob drops alerts for products restocked above the low threshold.
func NewLowStockCleanupJob(params LowStockCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Monitor == nil:
		return nil, errors.New("low stock monitor required")
	case params.Low < 0:
		return nil, errors.New("low threshold must be >= 0")
	}
	low := params.Low
	return &sweepJob{
		name: "low-stock-cleanup",
		logg: params.Logger,
		sweep: func(ctx context.Context) (int64, map[string]any, error) {
			n, err := params.Monitor.Cleanup(ctx, low)
			return n, map[string]any{"low_threshold": low}, err
		},
	}, nil
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the published-event pruning job.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// Retention defaults to 30 days.
	Retention time.Duration
	Now       func() time.Time
}

// NewOutboxRetentionJob deletes outbox rows published before now-Retention.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	keep := params.Retention
	if keep <= 0 {
		keep = 30 * 24 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &sweepJob{
		name: "outbox-retention",
		logg: params.Logger,
		sweep: func(ctx context.Context) (int64, map[string]any, error) {
			cutoff := now().UTC().Add(-keep)
			n, err := params.Repository.DeletePublishedBefore(ctx, cutoff)
			return n, map[string]any{"cutoff": cutoff, "retention": keep.String()}, err
		},
	}, nil
}
