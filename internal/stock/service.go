package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockline/stockline/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the single stock-delta primitive. Every caller that moves
// stock — purchase create/edit/delete and goods receipts — goes through
// here, so the clamp and atomicity guarantees live in one place.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	events Sink
	cache  *LevelCache
}

// NewService builds Service. Audit, events and cache are optional.
func NewService(repo RepositoryPort, audit AuditPort, events Sink, cache *LevelCache) *Service {
	return &Service{repo: repo, audit: audit, events: events, cache: cache}
}

// ApplyDelta adjusts a product's stock by the signed quantity and
// returns the new level. Negative results clamp to zero.
func (s *Service) ApplyDelta(ctx context.Context, tenant shared.Tenant, productID int64, delta float64) (float64, error) {
	if !tenant.Valid() {
		return 0, shared.Validationf("merchant scope required")
	}
	if productID == 0 {
		return 0, shared.Validationf("product required")
	}
	if delta == 0 {
		return 0, shared.Validationf("stock delta must be non zero")
	}
	var newQty float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		qty, err := tx.ApplyDelta(ctx, tenant.MerchantID, productID, delta)
		if err != nil {
			return err
		}
		newQty = qty
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.afterAdjust(ctx, tenant, productID, delta, newQty)
	return newQty, nil
}

// ReverseAndReapply replaces a previously applied quantity with a new
// one as a single logical unit: -old then +new in one transaction. If
// the reapplication step fails the error reports the product so the
// under-stocked state can be reconciled.
func (s *Service) ReverseAndReapply(ctx context.Context, tenant shared.Tenant, productID int64, oldQty, newQty float64) (float64, error) {
	if !tenant.Valid() {
		return 0, shared.Validationf("merchant scope required")
	}
	if oldQty < 0 || newQty < 0 {
		return 0, shared.Validationf("quantities must not be negative")
	}
	var result float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if oldQty > 0 {
			if _, err := tx.ApplyDelta(ctx, tenant.MerchantID, productID, -oldQty); err != nil {
				return err
			}
		}
		if newQty > 0 {
			qty, err := tx.ApplyDelta(ctx, tenant.MerchantID, productID, newQty)
			if err != nil {
				return &shared.PartialCommitError{
					Op: "stock.reverse_reapply", Entity: "product", EntityID: productID,
					Step: "reapply", Err: err,
				}
			}
			result = qty
			return nil
		}
		level, err := tx.ApplyDelta(ctx, tenant.MerchantID, productID, 0)
		if err == nil {
			result = level
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.afterAdjust(ctx, tenant, productID, newQty-oldQty, result)
	return result, nil
}

// BulkApply adds every item's quantity to its product in one
// transaction. The policy is abort-all: the first failure rolls the
// whole batch back and the error names the offending product.
func (s *Service) BulkApply(ctx context.Context, tenant shared.Tenant, items []DeltaItem) error {
	return s.bulk(ctx, tenant, items, +1)
}

// BulkReverse subtracts every item's quantity from its product, same
// abort-all policy as BulkApply.
func (s *Service) BulkReverse(ctx context.Context, tenant shared.Tenant, items []DeltaItem) error {
	return s.bulk(ctx, tenant, items, -1)
}

func (s *Service) bulk(ctx context.Context, tenant shared.Tenant, items []DeltaItem, sign float64) error {
	if !tenant.Valid() {
		return shared.Validationf("merchant scope required")
	}
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if item.ProductID == 0 || item.Qty <= 0 {
			return shared.Validationf("bulk stock item requires product and positive quantity")
		}
	}
	applied := make(map[int64]float64, len(items))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range items {
			delta := sign * item.Qty
			qty, err := tx.ApplyDelta(ctx, tenant.MerchantID, item.ProductID, delta)
			if err != nil {
				return fmt.Errorf("stock: product %d: %w", item.ProductID, err)
			}
			applied[item.ProductID] = qty
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		s.afterAdjust(ctx, tenant, item.ProductID, sign*item.Qty, applied[item.ProductID])
	}
	return nil
}

// GetLevel reads a product's current stock, through the cache when
// configured.
func (s *Service) GetLevel(ctx context.Context, tenant shared.Tenant, productID int64) (Level, error) {
	if !tenant.Valid() {
		return Level{}, shared.Validationf("merchant scope required")
	}
	if productID == 0 {
		return Level{}, shared.Validationf("product required")
	}
	if s.cache == nil {
		return s.repo.GetLevel(ctx, tenant.MerchantID, productID)
	}
	return s.cache.Get(ctx, tenant.MerchantID, productID, func(ctx context.Context) (Level, error) {
		return s.repo.GetLevel(ctx, tenant.MerchantID, productID)
	})
}

// afterAdjust handles the best-effort side effects of a committed
// delta: cache invalidation, event emission and audit.
func (s *Service) afterAdjust(ctx context.Context, tenant shared.Tenant, productID int64, delta, newQty float64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenant.MerchantID, productID)
	}
	if delta == 0 {
		return
	}
	if s.events != nil {
		_ = s.events.StockAdjusted(ctx, AdjustedEvent{
			EventID:    uuid.NewString(),
			MerchantID: tenant.MerchantID,
			ProductID:  productID,
			Delta:      delta,
			NewQty:     newQty,
			ActorID:    tenant.UserID,
			OccurredAt: time.Now().UTC(),
		})
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			MerchantID: tenant.MerchantID,
			ActorID:    tenant.UserID,
			Action:     "stock:adjust",
			Entity:     "product",
			EntityID:   fmt.Sprintf("%d", productID),
			Meta: map[string]any{
				"delta":   delta,
				"new_qty": newQty,
			},
		})
	}
}
