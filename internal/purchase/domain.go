package purchase

import "time"

// Payment methods accepted on a direct purchase.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCredit       PaymentMethod = "credit"
	PaymentUPI          PaymentMethod = "upi"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// Settlement state of the supplier invoice.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
)

// Purchase is the non-PO path: goods bought and stocked in one step,
// no receipt workflow.
type Purchase struct {
	ID            int64
	MerchantID    int64
	SupplierID    int64
	InvoiceNumber string
	PurchaseDate  time.Time
	Subtotal      float64
	Tax           float64
	Discount      float64
	Total         float64
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Notes         string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseItem is a stocked line of the purchase.
type PurchaseItem struct {
	ID          int64
	PurchaseID  int64
	ProductID   int64
	Qty         float64
	UnitPrice   float64
	BatchNumber string
	ExpiryDate  time.Time
}

// ListItem is the list projection with supplier name.
type ListItem struct {
	ID            int64
	SupplierID    int64
	SupplierName  string
	InvoiceNumber string
	PurchaseDate  time.Time
	Total         float64
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}

// ListFilters narrows and sorts list queries.
type ListFilters struct {
	SupplierID    int64
	PaymentStatus string
	Search        string
	SortBy        string
	SortDir       string
}
