package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockline/stockline/internal/shared"
)

// CleanupJob prunes idempotency keys past their retention.
type CleanupJob struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewCleanupJob constructs the job.
func NewCleanupJob(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *CleanupJob {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CleanupJob{store: store, retention: retention, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if err := j.store.Cleanup(ctx, j.retention); err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
