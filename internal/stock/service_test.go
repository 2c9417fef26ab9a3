package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline/internal/shared"
)

type memoryRepo struct {
	levels map[int64]float64
	// products listed here fail on write, to exercise rollback paths
	failing map[int64]bool
}

type memoryTx struct {
	repo    *memoryRepo
	pending map[int64]float64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{levels: make(map[int64]float64), failing: make(map[int64]bool)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, pending: make(map[int64]float64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, qty := range tx.pending {
		r.levels[id] = qty
	}
	return nil
}

func (r *memoryRepo) GetLevel(ctx context.Context, merchantID, productID int64) (Level, error) {
	qty, ok := r.levels[productID]
	if !ok {
		return Level{}, shared.NotFoundf("product %d not found", productID)
	}
	return Level{ProductID: productID, Qty: qty}, nil
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, merchantID, productID int64, delta float64) (float64, error) {
	if tx.repo.failing[productID] {
		return 0, errors.New("write failed")
	}
	current, ok := tx.pending[productID]
	if !ok {
		current = tx.repo.levels[productID]
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	tx.pending[productID] = next
	return next, nil
}

type sinkRecorder struct {
	events []AdjustedEvent
}

func (s *sinkRecorder) StockAdjusted(ctx context.Context, evt AdjustedEvent) error {
	s.events = append(s.events, evt)
	return nil
}

var testTenant = shared.Tenant{MerchantID: 1, UserID: 7}

func TestApplyDeltaSum(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 0
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	qty, err := svc.ApplyDelta(ctx, testTenant, 10, 5)
	require.NoError(t, err)
	require.InDelta(t, 5, qty, 0.0001)

	qty, err = svc.ApplyDelta(ctx, testTenant, 10, 7)
	require.NoError(t, err)
	require.InDelta(t, 12, qty, 0.0001)

	qty, err = svc.ApplyDelta(ctx, testTenant, 10, -3)
	require.NoError(t, err)
	require.InDelta(t, 9, qty, 0.0001)
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 10
	svc := NewService(repo, nil, nil, nil)

	qty, err := svc.ApplyDelta(context.Background(), testTenant, 10, -25)
	require.NoError(t, err)
	require.Zero(t, qty)
	require.Zero(t, repo.levels[10])
}

func TestApplyDeltaRejectsZero(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.ApplyDelta(context.Background(), testTenant, 10, 0)
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestApplyDeltaRequiresTenant(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.ApplyDelta(context.Background(), shared.Tenant{}, 10, 5)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestReverseAndReapplyNetZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 10
	svc := NewService(repo, nil, nil, nil)

	qty, err := svc.ReverseAndReapply(context.Background(), testTenant, 10, 5, 5)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 0.0001)
	require.InDelta(t, 10, repo.levels[10], 0.0001)
}

func TestReverseAndReapplyAdjusts(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 10
	svc := NewService(repo, nil, nil, nil)

	qty, err := svc.ReverseAndReapply(context.Background(), testTenant, 10, 5, 8)
	require.NoError(t, err)
	require.InDelta(t, 13, qty, 0.0001)
}

func TestBulkApplyAndReverse(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 0
	repo.levels[11] = 3
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	items := []DeltaItem{{ProductID: 10, Qty: 5}, {ProductID: 11, Qty: 2}}
	require.NoError(t, svc.BulkApply(ctx, testTenant, items))
	require.InDelta(t, 5, repo.levels[10], 0.0001)
	require.InDelta(t, 5, repo.levels[11], 0.0001)

	require.NoError(t, svc.BulkReverse(ctx, testTenant, items))
	require.InDelta(t, 0, repo.levels[10], 0.0001)
	require.InDelta(t, 3, repo.levels[11], 0.0001)
}

func TestBulkApplyAbortsWholeBatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 0
	repo.levels[11] = 0
	repo.failing[11] = true
	svc := NewService(repo, nil, nil, nil)

	err := svc.BulkApply(context.Background(), testTenant, []DeltaItem{
		{ProductID: 10, Qty: 5},
		{ProductID: 11, Qty: 2},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "product 11")
	// abort-all: the earlier item must not stick
	require.Zero(t, repo.levels[10])
}

func TestBulkApplyValidatesItems(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	err := svc.BulkApply(context.Background(), testTenant, []DeltaItem{{ProductID: 10, Qty: -1}})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestAdjustEventsEmitted(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[10] = 0
	sink := &sinkRecorder{}
	svc := NewService(repo, nil, sink, nil)

	_, err := svc.ApplyDelta(context.Background(), testTenant, 10, 4)
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	require.Equal(t, int64(10), sink.events[0].ProductID)
	require.InDelta(t, 4, sink.events[0].Delta, 0.0001)
	require.InDelta(t, 4, sink.events[0].NewQty, 0.0001)
	require.NotEmpty(t, sink.events[0].EventID)
}
