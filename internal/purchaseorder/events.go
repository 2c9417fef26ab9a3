package purchaseorder

import (
	"context"
	"time"
)

// ReceivedEvent is emitted after a goods receipt fully lands, including
// the stock effect and the derived order status.
type ReceivedEvent struct {
	EventID    string    `json:"event_id"`
	MerchantID int64     `json:"merchant_id"`
	POID       int64     `json:"po_id"`
	GRNID      int64     `json:"grn_id"`
	GRNNumber  string    `json:"grn_number"`
	Status     POStatus  `json:"status"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives purchase order events.
type Sink interface {
	POReceived(ctx context.Context, evt ReceivedEvent) error
}
