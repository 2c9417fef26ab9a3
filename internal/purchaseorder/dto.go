package purchaseorder

import "time"

type CreatePORequest struct {
	SupplierID   int64           `json:"supplier_id" validate:"required,gt=0"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	Tax          float64         `json:"tax" validate:"gte=0"`
	Discount     float64         `json:"discount" validate:"gte=0"`
	Notes        *string         `json:"notes,omitempty"`
	Items        []POItemRequest `json:"items" validate:"required,min=1,dive"`
}

type POItemRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description string  `json:"description,omitempty" validate:"max=500"`
	Qty         float64 `json:"qty" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	TaxRate     float64 `json:"tax_rate" validate:"gte=0"`
}

type UpdatePORequest struct {
	SupplierID   *int64           `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	OrderDate    *time.Time       `json:"order_date,omitempty"`
	ExpectedDate *time.Time       `json:"expected_date,omitempty"`
	Tax          *float64         `json:"tax,omitempty" validate:"omitempty,gte=0"`
	Discount     *float64         `json:"discount,omitempty" validate:"omitempty,gte=0"`
	Notes        *string          `json:"notes,omitempty"`
	Items        *[]POItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

type ReceiveRequest struct {
	ReceivedAt     *time.Time           `json:"received_at,omitempty"`
	Notes          *string              `json:"notes,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty" validate:"max=120"`
	Items          []ReceiveItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ReceiveItemRequest struct {
	POItemID int64    `json:"po_item_id" validate:"required,gt=0"`
	Qty      float64  `json:"qty" validate:"required,gt=0"`
	UnitCost *float64 `json:"unit_cost,omitempty" validate:"omitempty,gte=0"`
}
