package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/coursebook-app/coursebook/internal/jobs"
)

// PurgePendingJob removes PENDING accounts whose verification window
// lapsed long ago. Expiry is still checked at use-time by the auth
// engine; this sweep only keeps the table tidy.
type PurgePendingJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPurgePendingJob constructs the job.
func NewPurgePendingJob(pool *pgxpool.Pool, logger *slog.Logger) *PurgePendingJob {
	return &PurgePendingJob{pool: pool, logger: logger}
}

// Handle processes TaskTypePurgePending tasks.
func (j *PurgePendingJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func(tracker *jobmetrics.Tracker) {
		err = tracker.End(err)
	}(j.jobMetrics().Track(TaskTypePurgePending))
	return j.handle(ctx, t)
}

func (j *PurgePendingJob) jobMetrics() *jobmetrics.Metrics {
	if j.metrics == nil {
		j.metrics = jobmetrics.NewMetrics(nil)
	}
	return j.metrics
}

func (j *PurgePendingJob) handle(ctx context.Context, t *asynq.Task) error {
	var payload PurgePendingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThanHours <= 0 {
		payload.OlderThanHours = 24
	}

	cutoff := time.Now().Add(-time.Duration(payload.OlderThanHours) * time.Hour)
	tag, err := j.pool.Exec(ctx,
		`DELETE FROM accounts WHERE status = 'PENDING' AND verification_expires < $1`,
		cutoff)
	if err != nil {
		j.logger.Warn("purge pending accounts", slog.Any("error", err))
		return err
	}
	if tag.RowsAffected() > 0 {
		j.logger.Info("purged stale registrations", slog.Int64("count", tag.RowsAffected()))
	}
	return nil
}
