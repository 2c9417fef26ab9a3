package purchase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stockline/stockline/internal/shared"
	"github.com/stockline/stockline/internal/stock"
)

// StockPort exposes the stock engine operations the purchase path uses.
type StockPort interface {
	BulkApply(ctx context.Context, tenant shared.Tenant, items []stock.DeltaItem) error
	BulkReverse(ctx context.Context, tenant shared.Tenant, items []stock.DeltaItem) error
	ReverseAndReapply(ctx context.Context, tenant shared.Tenant, productID int64, oldQty, newQty float64) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles the direct purchase path: the document write and the
// stock effect happen in that order, and a stock failure after the
// document committed surfaces a PartialCommitError.
type Service struct {
	repo  RepositoryPort
	stock StockPort
	audit AuditPort
}

// NewService constructs the service.
func NewService(repo RepositoryPort, stockSvc StockPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stockSvc, audit: audit}
}

// Create persists the purchase and stocks every item.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, req CreatePurchaseRequest) (Purchase, error) {
	if !tenant.Valid() {
		return Purchase{}, shared.Validationf("merchant scope required")
	}
	if req.SupplierID == 0 {
		return Purchase{}, shared.Validationf("supplier required")
	}
	if req.InvoiceNumber == "" {
		return Purchase{}, shared.Validationf("invoice number required")
	}
	items, subtotal, err := buildItems(req.Items)
	if err != nil {
		return Purchase{}, err
	}
	p := Purchase{
		MerchantID:    tenant.MerchantID,
		SupplierID:    req.SupplierID,
		InvoiceNumber: req.InvoiceNumber,
		PurchaseDate:  defaultTime(req.PurchaseDate),
		Subtotal:      subtotal,
		Tax:           req.Tax,
		Discount:      req.Discount,
		Total:         roundMoney(subtotal + req.Tax - req.Discount),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: req.PaymentStatus,
		CreatedBy:     tenant.UserID,
	}
	if req.Notes != nil {
		p.Notes = *req.Notes
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePurchase(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		for i := range items {
			items[i].PurchaseID = id
			if err := tx.InsertItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	if err := s.stock.BulkApply(ctx, tenant, deltasOf(items)); err != nil {
		return p, &shared.PartialCommitError{
			Op: "purchase.create", Entity: "purchase", EntityID: p.ID,
			Step: "stock_apply", Err: err,
		}
	}
	s.recordAudit(ctx, tenant, "purchase:create", p.ID, map[string]any{"invoice": p.InvoiceNumber, "total": p.Total})
	return p, nil
}

// Update replaces the purchase document and swaps its stock effect:
// each product's old quantity is reversed and the new one reapplied as
// one unit. Identical item sets leave stock untouched.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, id int64, req UpdatePurchaseRequest) (Purchase, error) {
	if !tenant.Valid() {
		return Purchase{}, shared.Validationf("merchant scope required")
	}
	p, oldItems, err := s.repo.Get(ctx, tenant.MerchantID, id)
	if err != nil {
		return Purchase{}, err
	}

	if req.SupplierID != nil {
		p.SupplierID = *req.SupplierID
	}
	if req.InvoiceNumber != nil {
		p.InvoiceNumber = *req.InvoiceNumber
	}
	if req.PurchaseDate != nil {
		p.PurchaseDate = *req.PurchaseDate
	}
	if req.Tax != nil {
		p.Tax = *req.Tax
	}
	if req.Discount != nil {
		p.Discount = *req.Discount
	}
	if req.PaymentMethod != nil {
		p.PaymentMethod = *req.PaymentMethod
	}
	if req.PaymentStatus != nil {
		p.PaymentStatus = *req.PaymentStatus
	}
	if req.Notes != nil {
		p.Notes = *req.Notes
	}

	newItems := oldItems
	if req.Items != nil {
		var subtotal float64
		newItems, subtotal, err = buildItems(*req.Items)
		if err != nil {
			return Purchase{}, err
		}
		p.Subtotal = subtotal
	}
	p.Total = roundMoney(p.Subtotal + p.Tax - p.Discount)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateHeader(ctx, p); err != nil {
			return err
		}
		if req.Items == nil {
			return nil
		}
		if err := tx.DeleteItems(ctx, p.ID); err != nil {
			return err
		}
		for i := range newItems {
			newItems[i].PurchaseID = p.ID
			if err := tx.InsertItem(ctx, newItems[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}

	if req.Items != nil {
		oldQty := qtyByProduct(oldItems)
		newQty := qtyByProduct(newItems)
		for productID := range oldQty {
			if _, ok := newQty[productID]; !ok {
				newQty[productID] = 0
			}
		}
		for productID, qty := range newQty {
			if qty == oldQty[productID] {
				continue
			}
			if _, err := s.stock.ReverseAndReapply(ctx, tenant, productID, oldQty[productID], qty); err != nil {
				return p, &shared.PartialCommitError{
					Op: "purchase.update", Entity: "purchase", EntityID: p.ID,
					Step: "stock_swap", Err: err,
				}
			}
		}
	}
	s.recordAudit(ctx, tenant, "purchase:update", p.ID, map[string]any{"invoice": p.InvoiceNumber, "total": p.Total})
	return p, nil
}

// Delete removes the purchase and reverses its stock effect.
func (s *Service) Delete(ctx context.Context, tenant shared.Tenant, id int64) error {
	if !tenant.Valid() {
		return shared.Validationf("merchant scope required")
	}
	p, items, err := s.repo.Get(ctx, tenant.MerchantID, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePurchase(ctx, tenant.MerchantID, id)
	})
	if err != nil {
		return err
	}
	if err := s.stock.BulkReverse(ctx, tenant, deltasOf(items)); err != nil {
		return &shared.PartialCommitError{
			Op: "purchase.delete", Entity: "purchase", EntityID: id,
			Step: "stock_reverse", Err: err,
		}
	}
	s.recordAudit(ctx, tenant, "purchase:delete", id, map[string]any{"invoice": p.InvoiceNumber})
	return nil
}

// Get returns the purchase with its items.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (Purchase, []PurchaseItem, error) {
	if !tenant.Valid() {
		return Purchase{}, nil, shared.Validationf("merchant scope required")
	}
	return s.repo.Get(ctx, tenant.MerchantID, id)
}

// List returns the paginated purchase list.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, limit, offset int, filters ListFilters) ([]ListItem, int, error) {
	if !tenant.Valid() {
		return nil, 0, shared.Validationf("merchant scope required")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, tenant.MerchantID, limit, offset, filters)
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		MerchantID: tenant.MerchantID,
		ActorID:    tenant.UserID,
		Action:     action,
		Entity:     "purchase",
		EntityID:   fmt.Sprintf("%d", entityID),
		Meta:       meta,
	})
}

func buildItems(reqs []PurchaseItemRequest) ([]PurchaseItem, float64, error) {
	items := make([]PurchaseItem, 0, len(reqs))
	var subtotal float64
	for _, req := range reqs {
		if req.ProductID == 0 || req.Qty <= 0 {
			return nil, 0, shared.Validationf("item requires product and positive quantity")
		}
		if req.UnitPrice < 0 {
			return nil, 0, shared.Validationf("unit price must not be negative")
		}
		item := PurchaseItem{
			ProductID:   req.ProductID,
			Qty:         req.Qty,
			UnitPrice:   req.UnitPrice,
			BatchNumber: req.BatchNumber,
		}
		if req.ExpiryDate != nil {
			item.ExpiryDate = *req.ExpiryDate
		}
		items = append(items, item)
		subtotal += req.Qty * req.UnitPrice
	}
	return items, roundMoney(subtotal), nil
}

func qtyByProduct(items []PurchaseItem) map[int64]float64 {
	m := make(map[int64]float64, len(items))
	for _, item := range items {
		m[item.ProductID] += item.Qty
	}
	return m
}

func deltasOf(items []PurchaseItem) []stock.DeltaItem {
	deltas := make([]stock.DeltaItem, 0, len(items))
	for _, item := range items {
		deltas = append(deltas, stock.DeltaItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	return deltas
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
