package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/metrics"
)

const retryDelay = 30 * time.Second

// Purger is the subset of the notification store the job needs.
type Purger interface {
	PurgeReadBefore(ctx context.Context, before time.Time) (int64, error)
}

// Job deletes read notifications older than a period on a cron schedule.
// Unread notifications are never touched.
type Job struct {
	store   Purger
	cron    string
	period  time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

func New(store Purger, cron string, period time.Duration, m *metrics.Metrics, logger *slog.Logger) (*Job, error) {
	if cron == "" {
		cron = "0 3 * * *"
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("%w: invalid retention cron expression: %s", domain.ErrInvalidArgument, cron)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: retention period must be positive", domain.ErrInvalidArgument)
	}
	return &Job{
		store:   store,
		cron:    cron,
		period:  period,
		metrics: m,
		now:     time.Now,
		logger:  logger.With("component", "retention"),
	}, nil
}

// RunOnce purges once and returns the number of removed notifications.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.period)
	n, err := j.store.PurgeReadBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge read notifications: %w", err)
	}
	if j.metrics != nil {
		j.metrics.RetentionPurged.Add(float64(n))
	}
	j.logger.Info("retention run complete", "cutoff", cutoff, "purged", n)
	return n, nil
}

// Next is the next scheduled run strictly after from.
func (j *Job) Next(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(j.cron, from.UTC(), false)
}

// Run blocks and runs the job on schedule until ctx is cancelled.
func (j *Job) Run(ctx context.Context) {
	j.logger.Info("retention scheduler started", "cron", j.cron, "period", j.period)
	for {
		wait := retryDelay
		next, err := j.Next(j.now())
		if err != nil {
			j.logger.Error("retention next tick failed", "cron", j.cron, "error", err)
		} else {
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("retention scheduler stopping")
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("retention run failed", "error", err)
		}
	}
}
