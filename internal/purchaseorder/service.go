package purchaseorder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/stockline/stockline/internal/shared"
	"github.com/stockline/stockline/internal/stock"
)

// StockPort exposes the stock engine operations used when receiving.
type StockPort interface {
	BulkApply(ctx context.Context, tenant shared.Tenant, items []stock.DeltaItem) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards the receive effect against duplicate submits.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, merchantID int64, key, module string) error
	Delete(ctx context.Context, merchantID int64, key string) error
}

// Service orchestrates the purchase order ledger and goods receipts.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	audit       AuditPort
	events      Sink
	idempotency IdempotencyPort
}

// NewService constructs the service. Audit, events and idempotency are
// optional; stock is required for Receive.
func NewService(repo RepositoryPort, stockSvc StockPort, audit AuditPort, events Sink, idem IdempotencyPort) *Service {
	return &Service{repo: repo, stock: stockSvc, audit: audit, events: events, idempotency: idem}
}

// Create persists a new DRAFT purchase order with its items. Money
// fields are recomputed server side.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, req CreatePORequest) (PurchaseOrder, error) {
	if !tenant.Valid() {
		return PurchaseOrder{}, shared.Validationf("merchant scope required")
	}
	if req.SupplierID == 0 {
		return PurchaseOrder{}, shared.Validationf("supplier required")
	}
	if len(req.Items) == 0 {
		return PurchaseOrder{}, shared.Validationf("minimal 1 item")
	}
	po := PurchaseOrder{
		MerchantID: tenant.MerchantID,
		Number:     generateNumber("PO"),
		SupplierID: req.SupplierID,
		Status:     POStatusDraft,
		OrderDate:  defaultTime(req.OrderDate),
		Tax:        req.Tax,
		Discount:   req.Discount,
		CreatedBy:  tenant.UserID,
	}
	if req.ExpectedDate != nil {
		po.ExpectedDate = *req.ExpectedDate
	}
	if req.Notes != nil {
		po.Notes = *req.Notes
	}
	items, subtotal, err := buildItems(req.Items)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Subtotal = subtotal
	po.Total = roundMoney(subtotal + po.Tax - po.Discount)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for i := range items {
			items[i].POID = poID
			if err := tx.InsertPOItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, tenant, "po:create", po.ID, map[string]any{"number": po.Number, "total": po.Total})
	return po, nil
}

// Update replaces the order header and the full item set. Editing is
// refused once any receipt references the order, since the replacement
// would orphan receipt lines.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, id int64, req UpdatePORequest) (PurchaseOrder, error) {
	if !tenant.Valid() {
		return PurchaseOrder{}, shared.Validationf("merchant scope required")
	}
	po, existing, err := s.repo.GetPO(ctx, tenant.MerchantID, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status != POStatusDraft && po.Status != POStatusApproved {
		return PurchaseOrder{}, shared.InvalidStatef("purchase order %s is %s and can no longer be edited", po.Number, po.Status)
	}
	hasGRNs, err := s.repo.HasGRNs(ctx, tenant.MerchantID, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if hasGRNs {
		return PurchaseOrder{}, shared.InvalidStatef("purchase order %s has receipts and can no longer be edited", po.Number)
	}

	if req.SupplierID != nil {
		po.SupplierID = *req.SupplierID
	}
	if req.OrderDate != nil {
		po.OrderDate = *req.OrderDate
	}
	if req.ExpectedDate != nil {
		po.ExpectedDate = *req.ExpectedDate
	}
	if req.Tax != nil {
		po.Tax = *req.Tax
	}
	if req.Discount != nil {
		po.Discount = *req.Discount
	}
	if req.Notes != nil {
		po.Notes = *req.Notes
	}

	items := existing
	if req.Items != nil {
		var subtotal float64
		items, subtotal, err = buildItems(*req.Items)
		if err != nil {
			return PurchaseOrder{}, err
		}
		po.Subtotal = subtotal
	} else {
		var subtotal float64
		for _, item := range existing {
			subtotal += item.Qty * item.UnitPrice
		}
		po.Subtotal = roundMoney(subtotal)
	}
	po.Total = roundMoney(po.Subtotal + po.Tax - po.Discount)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePOHeader(ctx, po); err != nil {
			return err
		}
		if req.Items == nil {
			return nil
		}
		if err := tx.DeletePOItems(ctx, po.ID); err != nil {
			return err
		}
		for i := range items {
			items[i].POID = po.ID
			if err := tx.InsertPOItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, tenant, "po:update", po.ID, map[string]any{"number": po.Number, "total": po.Total})
	return po, nil
}

// Approve transitions DRAFT to APPROVED.
func (s *Service) Approve(ctx context.Context, tenant shared.Tenant, id int64) error {
	return s.transition(ctx, tenant, id, "po:approve", POStatusApproved, func(po PurchaseOrder) error {
		if po.Status != POStatusDraft {
			return shared.InvalidStatef("purchase order %s is %s, only DRAFT can be approved", po.Number, po.Status)
		}
		return nil
	})
}

// Close terminates the order from any non-terminal state.
func (s *Service) Close(ctx context.Context, tenant shared.Tenant, id int64) error {
	return s.transition(ctx, tenant, id, "po:close", POStatusClosed, func(po PurchaseOrder) error {
		if po.Status.Terminal() {
			return shared.InvalidStatef("purchase order %s is already %s", po.Number, po.Status)
		}
		return nil
	})
}

// Cancel terminates the order; orders with receipts cannot be
// cancelled, only closed.
func (s *Service) Cancel(ctx context.Context, tenant shared.Tenant, id int64) error {
	return s.transition(ctx, tenant, id, "po:cancel", POStatusCancelled, func(po PurchaseOrder) error {
		if po.Status.Terminal() {
			return shared.InvalidStatef("purchase order %s is already %s", po.Number, po.Status)
		}
		if po.Status == POStatusPartiallyReceived || po.Status == POStatusReceived {
			return shared.InvalidStatef("purchase order %s has receipts, close it instead", po.Number)
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, tenant shared.Tenant, id int64, action string, next POStatus, guard func(PurchaseOrder) error) error {
	if !tenant.Valid() {
		return shared.Validationf("merchant scope required")
	}
	po, _, err := s.repo.GetPO(ctx, tenant.MerchantID, id)
	if err != nil {
		return err
	}
	if err := guard(po); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, tenant.MerchantID, id, next)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, action, id, map[string]any{"number": po.Number, "from": po.Status, "to": next})
	return nil
}

// Delete removes a DRAFT order and its items.
func (s *Service) Delete(ctx context.Context, tenant shared.Tenant, id int64) error {
	if !tenant.Valid() {
		return shared.Validationf("merchant scope required")
	}
	po, _, err := s.repo.GetPO(ctx, tenant.MerchantID, id)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft {
		return shared.InvalidStatef("purchase order %s is %s, only DRAFT can be deleted", po.Number, po.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePO(ctx, tenant.MerchantID, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenant, "po:delete", id, map[string]any{"number": po.Number})
	return nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (PurchaseOrder, []POItem, error) {
	if !tenant.Valid() {
		return PurchaseOrder{}, nil, shared.Validationf("merchant scope required")
	}
	return s.repo.GetPO(ctx, tenant.MerchantID, id)
}

// List returns the paginated order list.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, limit, offset int, filters ListFilters) ([]POListItem, int, error) {
	if !tenant.Valid() {
		return nil, 0, shared.Validationf("merchant scope required")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListPOs(ctx, tenant.MerchantID, limit, offset, filters)
}

// Receive records a goods receipt against an order. The effect runs in
// three steps: the receipt rows commit first under an idempotency key,
// then the stock deltas, then the derived order status. A failure after
// the first step surfaces a PartialCommitError carrying the receipt id
// and the failed step; the receipt row is kept for reconciliation and
// the idempotency key is removed so a corrected retry can run.
func (s *Service) Receive(ctx context.Context, tenant shared.Tenant, poID int64, req ReceiveRequest) (GoodsReceipt, error) {
	if !tenant.Valid() {
		return GoodsReceipt{}, shared.Validationf("merchant scope required")
	}
	if len(req.Items) == 0 {
		return GoodsReceipt{}, shared.Validationf("minimal 1 receipt item")
	}
	for _, entry := range req.Items {
		if entry.Qty <= 0 {
			return GoodsReceipt{}, shared.Validationf("receipt quantity must be positive")
		}
	}

	grn := GoodsReceipt{
		MerchantID: tenant.MerchantID,
		Number:     generateNumber("GRN"),
		ReceivedAt: time.Now(),
		CreatedBy:  tenant.UserID,
	}
	if req.ReceivedAt != nil {
		grn.ReceivedAt = *req.ReceivedAt
	}
	if req.Notes != nil {
		grn.Notes = *req.Notes
	}

	key := req.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("GRN:%s", grn.Number)
	}
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, tenant.MerchantID, key, "purchaseorder.receive"); err != nil {
			return GoodsReceipt{}, err
		}
		inserted = true
	}
	releaseKey := func() {
		if inserted {
			_ = s.idempotency.Delete(ctx, tenant.MerchantID, key)
		}
	}

	// The over-receipt guard reads the received sums under the order
	// row lock, in the same transaction that inserts the receipt.
	// Concurrent receives against the same order serialize on that
	// lock, so the sums each one checks include every committed
	// receipt before it.
	var (
		po       PurchaseOrder
		lines    []POItem
		received map[int64]float64
		grnItems []GRNItem
		deltas   []stock.DeltaItem
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, lines, err = tx.GetPOForUpdate(ctx, tenant.MerchantID, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusApproved && po.Status != POStatusPartiallyReceived {
			return shared.InvalidStatef("purchase order %s is %s and cannot receive goods", po.Number, po.Status)
		}
		received, err = tx.SumReceivedByPOItem(ctx, tenant.MerchantID, poID)
		if err != nil {
			return err
		}

		lineByID := make(map[int64]POItem, len(lines))
		for _, line := range lines {
			lineByID[line.ID] = line
		}
		grnItems = make([]GRNItem, 0, len(req.Items))
		deltas = make([]stock.DeltaItem, 0, len(req.Items))
		for _, entry := range req.Items {
			line, ok := lineByID[entry.POItemID]
			if !ok {
				return shared.Validationf("line %d does not belong to purchase order %s", entry.POItemID, po.Number)
			}
			already := received[line.ID]
			if already+entry.Qty > line.Qty+qtyEpsilon {
				return &shared.OverReceiptError{
					POItemID:  line.ID,
					ProductID: line.ProductID,
					Ordered:   line.Qty,
					Received:  already,
					Requested: entry.Qty,
				}
			}
			unitCost := line.UnitPrice
			if entry.UnitCost != nil {
				unitCost = *entry.UnitCost
			}
			grnItems = append(grnItems, GRNItem{POItemID: line.ID, ProductID: line.ProductID, Qty: entry.Qty, UnitCost: unitCost})
			deltas = append(deltas, stock.DeltaItem{ProductID: line.ProductID, Qty: entry.Qty})
		}

		grn.POID = po.ID
		grn.SupplierID = po.SupplierID
		grnID, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID
		for i := range grnItems {
			grnItems[i].GRNID = grnID
			if err := tx.InsertGRNItem(ctx, grnItems[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		releaseKey()
		return GoodsReceipt{}, err
	}

	if err := s.stock.BulkApply(ctx, tenant, deltas); err != nil {
		releaseKey()
		return grn, &shared.PartialCommitError{
			Op: "po.receive", Entity: "goods_receipt", EntityID: grn.ID,
			Step: "stock_apply", Err: err,
		}
	}

	for _, item := range grnItems {
		received[item.POItemID] += item.Qty
	}
	next := DeriveStatus(po.Status, lines, received)
	if next != po.Status {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdatePOStatus(ctx, tenant.MerchantID, po.ID, next)
		})
		if err != nil {
			releaseKey()
			return grn, &shared.PartialCommitError{
				Op: "po.receive", Entity: "goods_receipt", EntityID: grn.ID,
				Step: "status_update", Err: err,
			}
		}
	}

	s.recordAudit(ctx, tenant, "po:receive", po.ID, map[string]any{"grn": grn.Number, "status": next})
	if s.events != nil {
		_ = s.events.POReceived(ctx, ReceivedEvent{
			EventID:    uuid.NewString(),
			MerchantID: tenant.MerchantID,
			POID:       po.ID,
			GRNID:      grn.ID,
			GRNNumber:  grn.Number,
			Status:     next,
			ActorID:    tenant.UserID,
			OccurredAt: time.Now().UTC(),
		})
	}
	return grn, nil
}

// GetGRN returns a receipt with its items.
func (s *Service) GetGRN(ctx context.Context, tenant shared.Tenant, id int64) (GoodsReceipt, []GRNItem, error) {
	if !tenant.Valid() {
		return GoodsReceipt{}, nil, shared.Validationf("merchant scope required")
	}
	return s.repo.GetGRN(ctx, tenant.MerchantID, id)
}

// ListGRNs returns the paginated receipt list, optionally scoped to a
// single order.
func (s *Service) ListGRNs(ctx context.Context, tenant shared.Tenant, poID int64, limit, offset int, filters ListFilters) ([]GRNListItem, int, error) {
	if !tenant.Valid() {
		return nil, 0, shared.Validationf("merchant scope required")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListGRNs(ctx, tenant.MerchantID, poID, limit, offset, filters)
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.Tenant, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		MerchantID: tenant.MerchantID,
		ActorID:    tenant.UserID,
		Action:     action,
		Entity:     "purchase_order",
		EntityID:   fmt.Sprintf("%d", entityID),
		Meta:       meta,
	})
}

func buildItems(reqs []POItemRequest) ([]POItem, float64, error) {
	items := make([]POItem, 0, len(reqs))
	var subtotal float64
	for _, req := range reqs {
		if req.ProductID == 0 || req.Qty <= 0 {
			return nil, 0, shared.Validationf("item requires product and positive quantity")
		}
		if req.UnitPrice < 0 {
			return nil, 0, shared.Validationf("unit price must not be negative")
		}
		if req.TaxRate < 0 {
			return nil, 0, shared.Validationf("tax rate must not be negative")
		}
		items = append(items, POItem{
			ProductID:   req.ProductID,
			Description: req.Description,
			Qty:         req.Qty,
			UnitPrice:   req.UnitPrice,
			TaxRate:     req.TaxRate,
		})
		subtotal += req.Qty * req.UnitPrice
	}
	return items, roundMoney(subtotal), nil
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
