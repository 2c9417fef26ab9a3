package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/stockline/stockline/internal/purchaseorder"
	"github.com/stockline/stockline/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPOReceived fans a goods receipt out to notifications.
	TaskPOReceived = "po:received"
	// TaskStockAdjusted fans a stock delta out to notifications.
	TaskStockAdjusted = "stock:adjusted"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// NewPOReceivedTask constructs an Asynq task from the event.
func NewPOReceivedTask(evt purchaseorder.ReceivedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPOReceived, data), nil
}

// NewStockAdjustedTask constructs an Asynq task from the event.
func NewStockAdjustedTask(evt stock.AdjustedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAdjusted, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
