package purchaseorder

import "time"

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft             POStatus = "DRAFT"
	POStatusApproved          POStatus = "APPROVED"
	POStatusPartiallyReceived POStatus = "PARTIALLY_RECEIVED"
	POStatusReceived          POStatus = "RECEIVED"
	POStatusClosed            POStatus = "CLOSED"
	POStatusCancelled         POStatus = "CANCELLED"
)

// Terminal reports whether no further mutation of the order is allowed.
func (s POStatus) Terminal() bool {
	return s == POStatusClosed || s == POStatusCancelled
}

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64
	MerchantID   int64
	Number       string
	SupplierID   int64
	Status       POStatus
	OrderDate    time.Time
	ExpectedDate time.Time
	Subtotal     float64
	Tax          float64
	Discount     float64
	Total        float64
	Notes        string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// POItem represents an ordered line. TaxRate is informational per
// line; the order total carries tax at the header.
type POItem struct {
	ID          int64
	POID        int64
	ProductID   int64
	Description string
	Qty         float64
	UnitPrice   float64
	TaxRate     float64
}

// GoodsReceipt domain model. Receipts are immutable once created.
type GoodsReceipt struct {
	ID         int64
	MerchantID int64
	Number     string
	POID       int64
	SupplierID int64
	ReceivedAt time.Time
	Notes      string
	CreatedBy  int64
	CreatedAt  time.Time
}

// GRNItem describes received goods against a PO line.
type GRNItem struct {
	ID        int64
	GRNID     int64
	POItemID  int64
	ProductID int64
	Qty       float64
	UnitCost  float64
}

// POListItem is the list projection with supplier name and total.
type POListItem struct {
	ID           int64
	Number       string
	SupplierID   int64
	SupplierName string
	Status       POStatus
	OrderDate    time.Time
	ExpectedDate time.Time
	Total        float64
	CreatedAt    time.Time
}

// GRNListItem is the receipt list projection.
type GRNListItem struct {
	ID           int64
	Number       string
	POID         int64
	PONumber     string
	SupplierID   int64
	SupplierName string
	ReceivedAt   time.Time
	CreatedAt    time.Time
}

// ListFilters narrows and sorts list queries.
type ListFilters struct {
	Status     string
	SupplierID int64
	Search     string
	SortBy     string
	SortDir    string
}
