package purchase

import "time"

type CreatePurchaseRequest struct {
	SupplierID    int64                 `json:"supplier_id" validate:"required,gt=0"`
	InvoiceNumber string                `json:"invoice_number" validate:"required,max=60"`
	PurchaseDate  time.Time             `json:"purchase_date"`
	Tax           float64               `json:"tax" validate:"gte=0"`
	Discount      float64               `json:"discount" validate:"gte=0"`
	PaymentMethod PaymentMethod         `json:"payment_method" validate:"required,oneof=cash credit upi bank_transfer"`
	PaymentStatus PaymentStatus         `json:"payment_status" validate:"required,oneof=paid unpaid partial"`
	Notes         *string               `json:"notes,omitempty"`
	Items         []PurchaseItemRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseItemRequest struct {
	ProductID   int64      `json:"product_id" validate:"required,gt=0"`
	Qty         float64    `json:"qty" validate:"required,gt=0"`
	UnitPrice   float64    `json:"unit_price" validate:"gte=0"`
	BatchNumber string     `json:"batch_number,omitempty" validate:"max=60"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

type UpdatePurchaseRequest struct {
	SupplierID    *int64                 `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	InvoiceNumber *string                `json:"invoice_number,omitempty" validate:"omitempty,max=60"`
	PurchaseDate  *time.Time             `json:"purchase_date,omitempty"`
	Tax           *float64               `json:"tax,omitempty" validate:"omitempty,gte=0"`
	Discount      *float64               `json:"discount,omitempty" validate:"omitempty,gte=0"`
	PaymentMethod *PaymentMethod         `json:"payment_method,omitempty" validate:"omitempty,oneof=cash credit upi bank_transfer"`
	PaymentStatus *PaymentStatus         `json:"payment_status,omitempty" validate:"omitempty,oneof=paid unpaid partial"`
	Notes         *string                `json:"notes,omitempty"`
	Items         *[]PurchaseItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}
