package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/stockline/stockline/internal/purchaseorder"
	"github.com/stockline/stockline/internal/stock"
)

// Publisher enqueues domain events as Asynq tasks. It satisfies the
// event sinks of the stock and purchase order services.
type Publisher struct {
	client *asynq.Client
}

// NewPublisher constructs the publisher.
func NewPublisher(redisOpts asynq.RedisClientOpt) *Publisher {
	return &Publisher{client: asynq.NewClient(redisOpts)}
}

// POReceived enqueues a goods receipt event.
func (p *Publisher) POReceived(ctx context.Context, evt purchaseorder.ReceivedEvent) error {
	task, err := NewPOReceivedTask(evt)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// StockAdjusted enqueues a stock delta event.
func (p *Publisher) StockAdjusted(ctx context.Context, evt stock.AdjustedEvent) error {
	task, err := NewStockAdjustedTask(evt)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (p *Publisher) Close() error {
	return p.client.Close()
}
