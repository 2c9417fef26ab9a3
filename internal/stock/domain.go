package stock

import "time"

// Level is the current on-hand quantity of a product.
type Level struct {
	ProductID int64     `json:"product_id"`
	Qty       float64   `json:"qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeltaItem pairs a product with a positive quantity for bulk
// operations. The sign is applied by the operation, not the item.
type DeltaItem struct {
	ProductID int64
	Qty       float64
}
