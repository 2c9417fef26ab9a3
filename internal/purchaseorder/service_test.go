package purchaseorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline/internal/shared"
	"github.com/stockline/stockline/internal/stock"
)

// memoryRepo serializes WithTx with a mutex the way the real
// repository serializes receives on the order row lock.
type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]PurchaseOrder
	items    map[int64][]POItem
	receipts map[int64]GoodsReceipt
	grnItems map[int64][]GRNItem

	failStatusUpdate bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:   1,
		orders:   make(map[int64]PurchaseOrder),
		items:    make(map[int64][]POItem),
		receipts: make(map[int64]GoodsReceipt),
		grnItems: make(map[int64][]GRNItem),
	}
}

func (r *memoryRepo) id() int64 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, r)
}

func (r *memoryRepo) GetPOForUpdate(ctx context.Context, merchantID, id int64) (PurchaseOrder, []POItem, error) {
	return r.GetPO(ctx, merchantID, id)
}

func (r *memoryRepo) GetPO(ctx context.Context, merchantID, id int64) (PurchaseOrder, []POItem, error) {
	po, ok := r.orders[id]
	if !ok || po.MerchantID != merchantID {
		return PurchaseOrder{}, nil, shared.NotFoundf("purchase order %d not found", id)
	}
	return po, append([]POItem(nil), r.items[id]...), nil
}

func (r *memoryRepo) ListPOs(ctx context.Context, merchantID int64, limit, offset int, filters ListFilters) ([]POListItem, int, error) {
	var out []POListItem
	for _, po := range r.orders {
		if po.MerchantID != merchantID {
			continue
		}
		if filters.Status != "" && string(po.Status) != filters.Status {
			continue
		}
		out = append(out, POListItem{ID: po.ID, Number: po.Number, SupplierID: po.SupplierID, Status: po.Status, Total: po.Total})
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetGRN(ctx context.Context, merchantID, id int64) (GoodsReceipt, []GRNItem, error) {
	grn, ok := r.receipts[id]
	if !ok || grn.MerchantID != merchantID {
		return GoodsReceipt{}, nil, shared.NotFoundf("goods receipt %d not found", id)
	}
	return grn, append([]GRNItem(nil), r.grnItems[id]...), nil
}

func (r *memoryRepo) ListGRNs(ctx context.Context, merchantID, poID int64, limit, offset int, filters ListFilters) ([]GRNListItem, int, error) {
	var out []GRNListItem
	for _, grn := range r.receipts {
		if grn.MerchantID != merchantID {
			continue
		}
		if poID > 0 && grn.POID != poID {
			continue
		}
		out = append(out, GRNListItem{ID: grn.ID, Number: grn.Number, POID: grn.POID})
	}
	return out, len(out), nil
}

func (r *memoryRepo) SumReceivedByPOItem(ctx context.Context, merchantID, poID int64) (map[int64]float64, error) {
	received := make(map[int64]float64)
	for grnID, grn := range r.receipts {
		if grn.POID != poID || grn.MerchantID != merchantID {
			continue
		}
		for _, item := range r.grnItems[grnID] {
			received[item.POItemID] += item.Qty
		}
	}
	return received, nil
}

func (r *memoryRepo) HasGRNs(ctx context.Context, merchantID, poID int64) (bool, error) {
	for _, grn := range r.receipts {
		if grn.POID == poID && grn.MerchantID == merchantID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	po.ID = r.id()
	r.orders[po.ID] = po
	return po.ID, nil
}

func (r *memoryRepo) InsertPOItem(ctx context.Context, item POItem) error {
	item.ID = r.id()
	r.items[item.POID] = append(r.items[item.POID], item)
	return nil
}

func (r *memoryRepo) UpdatePOHeader(ctx context.Context, po PurchaseOrder) error {
	current, ok := r.orders[po.ID]
	if !ok {
		return shared.NotFoundf("purchase order %d not found", po.ID)
	}
	po.Status = current.Status
	r.orders[po.ID] = po
	return nil
}

func (r *memoryRepo) DeletePOItems(ctx context.Context, poID int64) error {
	delete(r.items, poID)
	return nil
}

func (r *memoryRepo) UpdatePOStatus(ctx context.Context, merchantID, id int64, status POStatus) error {
	if r.failStatusUpdate {
		return errors.New("status write failed")
	}
	po, ok := r.orders[id]
	if !ok || po.MerchantID != merchantID {
		return shared.NotFoundf("purchase order %d not found", id)
	}
	po.Status = status
	r.orders[id] = po
	return nil
}

func (r *memoryRepo) DeletePO(ctx context.Context, merchantID, id int64) error {
	delete(r.orders, id)
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	grn.ID = r.id()
	r.receipts[grn.ID] = grn
	return grn.ID, nil
}

func (r *memoryRepo) InsertGRNItem(ctx context.Context, item GRNItem) error {
	item.ID = r.id()
	r.grnItems[item.GRNID] = append(r.grnItems[item.GRNID], item)
	return nil
}

type stockStub struct {
	applied [][]stock.DeltaItem
	err     error
}

func (s *stockStub) BulkApply(ctx context.Context, tenant shared.Tenant, items []stock.DeltaItem) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, items)
	return nil
}

type idemStub struct {
	mu      sync.Mutex
	keys    map[string]bool
	deleted []string
}

func newIdemStub() *idemStub {
	return &idemStub{keys: make(map[string]bool)}
}

func (s *idemStub) CheckAndInsert(ctx context.Context, merchantID int64, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *idemStub) Delete(ctx context.Context, merchantID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type sinkStub struct {
	events []ReceivedEvent
}

func (s *sinkStub) POReceived(ctx context.Context, evt ReceivedEvent) error {
	s.events = append(s.events, evt)
	return nil
}

var testTenant = shared.Tenant{MerchantID: 1, UserID: 7}

func ptr[T any](v T) *T { return &v }

func newTestService() (*Service, *memoryRepo, *stockStub, *idemStub, *sinkStub) {
	repo := newMemoryRepo()
	stockSvc := &stockStub{}
	idem := newIdemStub()
	sink := &sinkStub{}
	return NewService(repo, stockSvc, nil, sink, idem), repo, stockSvc, idem, sink
}

func createApprovedPO(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	po, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Tax:        10,
		Items: []POItemRequest{
			{ProductID: 10, Qty: 5, UnitPrice: 100},
			{ProductID: 11, Qty: 3, UnitPrice: 50},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(context.Background(), testTenant, po.ID))
	return po
}

func TestCreateComputesTotals(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	po, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Tax:        10,
		Discount:   5,
		Items: []POItemRequest{
			{ProductID: 10, Qty: 5, UnitPrice: 100},
			{ProductID: 11, Qty: 3, UnitPrice: 50},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)
	require.NotEmpty(t, po.Number)
	require.InDelta(t, 650, po.Subtotal, 0.001)
	require.InDelta(t, 655, po.Total, 0.001)
	require.Len(t, repo.items[po.ID], 2)
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	_, err := svc.Create(context.Background(), testTenant, CreatePORequest{SupplierID: 3})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestCreateRejectsBadLine(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	_, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Items:      []POItemRequest{{ProductID: 10, Qty: -1, UnitPrice: 5}},
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestApproveOnlyFromDraft(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	err := svc.Approve(context.Background(), testTenant, po.ID)
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
}

func TestUpdateReplacesItems(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	po, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Items:      []POItemRequest{{ProductID: 10, Qty: 5, UnitPrice: 100}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), testTenant, po.ID, UpdatePORequest{
		Items: ptr([]POItemRequest{{ProductID: 12, Qty: 2, UnitPrice: 30}}),
	})
	require.NoError(t, err)
	require.InDelta(t, 60, updated.Total, 0.001)
	require.Len(t, repo.items[po.ID], 1)
	require.Equal(t, int64(12), repo.items[po.ID][0].ProductID)
}

func TestUpdateRefusedAfterReceipt(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), testTenant, po.ID, UpdatePORequest{Notes: ptr("late edit")})
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
}

func TestDeleteDraftOnly(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	err := svc.Delete(context.Background(), testTenant, po.ID)
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))

	draft, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Items:      []POItemRequest{{ProductID: 10, Qty: 1, UnitPrice: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), testTenant, draft.ID))
	_, ok := repo.orders[draft.ID]
	require.False(t, ok)
}

func TestCancelRefusedAfterReceipt(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), testTenant, po.ID)
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
	require.NoError(t, svc.Close(context.Background(), testTenant, po.ID))
}

func TestReceiveAppliesStockAndDerivesStatus(t *testing.T) {
	svc, repo, stockSvc, _, sink := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	grn, err := svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 2}},
	})
	require.NoError(t, err)
	require.NotZero(t, grn.ID)
	require.Len(t, stockSvc.applied, 1)
	require.InDelta(t, 2, stockSvc.applied[0][0].Qty, 0.001)
	require.Equal(t, POStatusPartiallyReceived, repo.orders[po.ID].Status)
	require.Len(t, sink.events, 1)
	require.Equal(t, grn.ID, sink.events[0].GRNID)

	// unit cost defaults to the ordered line's price
	require.InDelta(t, 100, repo.grnItems[grn.ID][0].UnitCost, 0.001)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{
			{POItemID: items[0].ID, Qty: 3, UnitCost: ptr(90.0)},
			{POItemID: items[1].ID, Qty: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, repo.orders[po.ID].Status)
}

func TestReceiveOverReceiptRejected(t *testing.T) {
	svc, repo, stockSvc, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 4}},
	})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 2}},
	})
	var ore *shared.OverReceiptError
	require.ErrorAs(t, err, &ore)
	require.Equal(t, items[0].ID, ore.POItemID)
	require.InDelta(t, 5, ore.Ordered, 0.001)
	require.InDelta(t, 4, ore.Received, 0.001)
	require.InDelta(t, 2, ore.Requested, 0.001)

	// nothing committed for the rejected receipt
	require.Len(t, repo.receipts, 1)
	require.Len(t, stockSvc.applied, 1)
}

func TestReceiveExactlyToOrderedAllowed(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{
			{POItemID: items[0].ID, Qty: 5},
			{POItemID: items[1].ID, Qty: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, repo.orders[po.ID].Status)
}

func TestConcurrentReceivesCannotExceedOrdered(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	// two receives for the full ordered quantity of the same line,
	// released together
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
				IdempotencyKey: fmt.Sprintf("race-%d", i),
				Items:          []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 5}},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var rejected int
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ore *shared.OverReceiptError
		require.ErrorAs(t, err, &ore)
		rejected++
	}
	require.Equal(t, 1, rejected)

	received, err := repo.SumReceivedByPOItem(context.Background(), testTenant.MerchantID, po.ID)
	require.NoError(t, err)
	require.InDelta(t, 5, received[items[0].ID], 0.001)
	require.Len(t, repo.receipts, 1)
}

func TestCreateKeepsLineDetails(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Items: []POItemRequest{
			{ProductID: 10, Description: "1kg bags", Qty: 5, UnitPrice: 100, TaxRate: 12.5},
		},
	})
	require.NoError(t, err)

	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)
	require.Equal(t, "1kg bags", items[0].Description)
	require.InDelta(t, 12.5, items[0].TaxRate, 0.001)
	// line tax rate is informational, the header carries the tax amount
	require.InDelta(t, 500, po.Total, 0.001)

	_, err = svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Items:      []POItemRequest{{ProductID: 10, Qty: 1, UnitPrice: 1, TaxRate: -1}},
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestReceiveRequiresReceivableStatus(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po, err := svc.Create(context.Background(), testTenant, CreatePORequest{
		SupplierID: 3,
		Items:      []POItemRequest{{ProductID: 10, Qty: 5, UnitPrice: 100}},
	})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		Items: []ReceiveItemRequest{{POItemID: 1, Qty: 1}},
	})
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
}

func TestReceiveStockFailureIsPartialCommit(t *testing.T) {
	svc, repo, stockSvc, idem, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	stockSvc.err = errors.New("stock write failed")
	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		IdempotencyKey: "receive-1",
		Items:          []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 2}},
	})
	var pce *shared.PartialCommitError
	require.ErrorAs(t, err, &pce)
	require.Equal(t, "stock_apply", pce.Step)
	require.NotZero(t, pce.EntityID)

	// the receipt row is kept for reconciliation, the key is released
	require.Len(t, repo.receipts, 1)
	require.Contains(t, idem.deleted, "receive-1")

	// a corrected retry with the same key may proceed
	stockSvc.err = nil
	require.NoError(t, idem.CheckAndInsert(context.Background(), testTenant.MerchantID, "receive-1", "purchaseorder.receive"))
}

func TestReceiveStatusFailureIsPartialCommit(t *testing.T) {
	svc, repo, _, idem, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	repo.failStatusUpdate = true
	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		IdempotencyKey: "receive-2",
		Items:          []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 2}},
	})
	var pce *shared.PartialCommitError
	require.ErrorAs(t, err, &pce)
	require.Equal(t, "status_update", pce.Step)
	require.Contains(t, idem.deleted, "receive-2")
}

func TestReceiveDuplicateKeyRejected(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)
	_, items, err := svc.Get(context.Background(), testTenant, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		IdempotencyKey: "dup",
		Items:          []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), testTenant, po.ID, ReceiveRequest{
		IdempotencyKey: "dup",
		Items:          []ReceiveItemRequest{{POItemID: items[0].ID, Qty: 1}},
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestTenantIsolation(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	po := createApprovedPO(t, svc)

	other := shared.Tenant{MerchantID: 2, UserID: 1}
	_, _, err := svc.Get(context.Background(), other, po.ID)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}
