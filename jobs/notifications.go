package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline/stockline/internal/purchaseorder"
	"github.com/stockline/stockline/internal/stock"
)

// NotificationJob consumes domain events into the notifications table.
// Delivery to users happens elsewhere; the worker only persists rows.
type NotificationJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewNotificationJob constructs the job.
func NewNotificationJob(pool *pgxpool.Pool, logger *slog.Logger) *NotificationJob {
	return &NotificationJob{pool: pool, logger: logger}
}

// HandlePOReceived processes TaskPOReceived tasks.
func (j *NotificationJob) HandlePOReceived(ctx context.Context, t *asynq.Task) error {
	var evt purchaseorder.ReceivedEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	message := fmt.Sprintf("Goods receipt %s recorded, purchase order is now %s", evt.GRNNumber, evt.Status)
	return j.insert(ctx, evt.MerchantID, "po.received", evt.EventID, message)
}

// HandleStockAdjusted processes TaskStockAdjusted tasks.
func (j *NotificationJob) HandleStockAdjusted(ctx context.Context, t *asynq.Task) error {
	var evt stock.AdjustedEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	message := fmt.Sprintf("Stock of product %d changed by %+.2f to %.2f", evt.ProductID, evt.Delta, evt.NewQty)
	return j.insert(ctx, evt.MerchantID, "stock.adjusted", evt.EventID, message)
}

func (j *NotificationJob) insert(ctx context.Context, merchantID int64, kind, refID, message string) error {
	_, err := j.pool.Exec(ctx, `INSERT INTO notifications (merchant_id, kind, ref_id, message, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (ref_id) DO NOTHING`, merchantID, kind, refID, message)
	if err != nil {
		j.logger.Error("insert notification", slog.Any("error", err), slog.String("kind", kind))
	}
	return err
}
