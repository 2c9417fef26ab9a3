package stock

import (
	"context"
	"time"
)

// AdjustedEvent is emitted after every applied stock delta. It carries
// both the requested delta and the resulting level so downstream
// consumers can spot clamped over-reversals.
type AdjustedEvent struct {
	EventID    string    `json:"event_id"`
	MerchantID int64     `json:"merchant_id"`
	ProductID  int64     `json:"product_id"`
	Delta      float64   `json:"delta"`
	NewQty     float64   `json:"new_qty"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives stock domain events for the notification pipeline.
type Sink interface {
	StockAdjusted(ctx context.Context, evt AdjustedEvent) error
}
