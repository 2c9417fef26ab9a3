package purchaseorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline/stockline/internal/platform/db"
	"github.com/stockline/stockline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, merchantID, id int64) (PurchaseOrder, []POItem, error)
	ListPOs(ctx context.Context, merchantID int64, limit, offset int, filters ListFilters) ([]POListItem, int, error)
	GetGRN(ctx context.Context, merchantID, id int64) (GoodsReceipt, []GRNItem, error)
	ListGRNs(ctx context.Context, merchantID, poID int64, limit, offset int, filters ListFilters) ([]GRNListItem, int, error)
	HasGRNs(ctx context.Context, merchantID, poID int64) (bool, error)
}

// TxRepository exposes transactional operations. GetPOForUpdate locks
// the order row, so receives against the same order serialize for the
// rest of the transaction.
type TxRepository interface {
	GetPOForUpdate(ctx context.Context, merchantID, id int64) (PurchaseOrder, []POItem, error)
	SumReceivedByPOItem(ctx context.Context, merchantID, poID int64) (map[int64]float64, error)
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItem(ctx context.Context, item POItem) error
	UpdatePOHeader(ctx context.Context, po PurchaseOrder) error
	DeletePOItems(ctx context.Context, poID int64) error
	UpdatePOStatus(ctx context.Context, merchantID, id int64, status POStatus) error
	DeletePO(ctx context.Context, merchantID, id int64) error
	CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertGRNItem(ctx context.Context, item GRNItem) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction. Receive locks
// the order row and a waiter must see receipts committed by the
// previous lock holder; repeatable read would pin the waiter to its
// pre-lock snapshot and hide them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOpts(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetPO returns the purchase order and its items.
func (r *Repository) GetPO(ctx context.Context, merchantID, id int64) (PurchaseOrder, []POItem, error) {
	return queryPO(ctx, r.pool, merchantID, id, false)
}

func queryPO(ctx context.Context, q querier, merchantID, id int64, lock bool) (PurchaseOrder, []POItem, error) {
	headerSQL := `SELECT id, merchant_id, number, supplier_id, status, order_date,
COALESCE(expected_date, order_date), subtotal, tax, discount, total, note, created_by, created_at, updated_at
FROM purchase_orders WHERE id=$1 AND merchant_id=$2`
	if lock {
		headerSQL += ` FOR UPDATE`
	}
	var po PurchaseOrder
	err := q.QueryRow(ctx, headerSQL, id, merchantID).
		Scan(&po.ID, &po.MerchantID, &po.Number, &po.SupplierID, &po.Status, &po.OrderDate,
			&po.ExpectedDate, &po.Subtotal, &po.Tax, &po.Discount, &po.Total, &po.Notes,
			&po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, shared.NotFoundf("purchase order %d not found", id)
		}
		return PurchaseOrder{}, nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, description, qty, unit_price, tax_rate FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.Description, &item.Qty, &item.UnitPrice, &item.TaxRate); err != nil {
			return PurchaseOrder{}, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

// ListPOs returns purchase orders with supplier name and total.
func (r *Repository) ListPOs(ctx context.Context, merchantID int64, limit, offset int, filters ListFilters) ([]POListItem, int, error) {
	countSQL := `SELECT COUNT(*) FROM purchase_orders p WHERE p.merchant_id=$1`
	args := []any{merchantID}
	argNum := 2

	if filters.Status != "" {
		countSQL += ` AND p.status = $` + itoa(argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.SupplierID > 0 {
		countSQL += ` AND p.supplier_id = $` + itoa(argNum)
		args = append(args, filters.SupplierID)
		argNum++
	}
	if filters.Search != "" {
		countSQL += ` AND p.number ILIKE $` + itoa(argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT p.id, p.number, p.supplier_id, COALESCE(s.name, '') AS supplier_name,
		p.status, p.order_date, COALESCE(p.expected_date, p.order_date), p.total, p.created_at
	FROM purchase_orders p
	LEFT JOIN suppliers s ON s.id = p.supplier_id
	WHERE p.merchant_id=$1`

	args2 := []any{merchantID}
	argNum2 := 2
	if filters.Status != "" {
		dataSQL += ` AND p.status = $` + itoa(argNum2)
		args2 = append(args2, filters.Status)
		argNum2++
	}
	if filters.SupplierID > 0 {
		dataSQL += ` AND p.supplier_id = $` + itoa(argNum2)
		args2 = append(args2, filters.SupplierID)
		argNum2++
	}
	if filters.Search != "" {
		dataSQL += ` AND p.number ILIKE $` + itoa(argNum2)
		args2 = append(args2, "%"+filters.Search+"%")
		argNum2++
	}

	orderBy := sortOrderPO(filters.SortBy, filters.SortDir)
	dataSQL += ` ORDER BY ` + orderBy + ` LIMIT $` + itoa(argNum2) + ` OFFSET $` + itoa(argNum2+1)
	args2 = append(args2, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args2...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []POListItem
	for rows.Next() {
		var item POListItem
		if err := rows.Scan(&item.ID, &item.Number, &item.SupplierID, &item.SupplierName,
			&item.Status, &item.OrderDate, &item.ExpectedDate, &item.Total, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetGRN returns a goods receipt and its items.
func (r *Repository) GetGRN(ctx context.Context, merchantID, id int64) (GoodsReceipt, []GRNItem, error) {
	var grn GoodsReceipt
	err := r.pool.QueryRow(ctx, `SELECT id, merchant_id, number, po_id, supplier_id, received_at, note, created_by, created_at
FROM goods_receipts WHERE id=$1 AND merchant_id=$2`, id, merchantID).
		Scan(&grn.ID, &grn.MerchantID, &grn.Number, &grn.POID, &grn.SupplierID, &grn.ReceivedAt,
			&grn.Notes, &grn.CreatedBy, &grn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, nil, shared.NotFoundf("goods receipt %d not found", id)
		}
		return GoodsReceipt{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, grn_id, po_item_id, product_id, qty, unit_cost FROM goods_receipt_items WHERE grn_id=$1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	defer rows.Close()
	var items []GRNItem
	for rows.Next() {
		var item GRNItem
		if err := rows.Scan(&item.ID, &item.GRNID, &item.POItemID, &item.ProductID, &item.Qty, &item.UnitCost); err != nil {
			return GoodsReceipt{}, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return GoodsReceipt{}, nil, err
	}
	return grn, items, nil
}

// ListGRNs returns goods receipts, optionally scoped to one PO.
func (r *Repository) ListGRNs(ctx context.Context, merchantID, poID int64, limit, offset int, filters ListFilters) ([]GRNListItem, int, error) {
	countSQL := `SELECT COUNT(*) FROM goods_receipts g WHERE g.merchant_id=$1`
	args := []any{merchantID}
	argNum := 2

	if poID > 0 {
		countSQL += ` AND g.po_id = $` + itoa(argNum)
		args = append(args, poID)
		argNum++
	}
	if filters.SupplierID > 0 {
		countSQL += ` AND g.supplier_id = $` + itoa(argNum)
		args = append(args, filters.SupplierID)
		argNum++
	}
	if filters.Search != "" {
		countSQL += ` AND g.number ILIKE $` + itoa(argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT g.id, g.number, g.po_id, COALESCE(p.number, '') AS po_number,
		g.supplier_id, COALESCE(s.name, '') AS supplier_name, g.received_at, g.created_at
	FROM goods_receipts g
	LEFT JOIN purchase_orders p ON p.id = g.po_id
	LEFT JOIN suppliers s ON s.id = g.supplier_id
	WHERE g.merchant_id=$1`

	args2 := []any{merchantID}
	argNum2 := 2
	if poID > 0 {
		dataSQL += ` AND g.po_id = $` + itoa(argNum2)
		args2 = append(args2, poID)
		argNum2++
	}
	if filters.SupplierID > 0 {
		dataSQL += ` AND g.supplier_id = $` + itoa(argNum2)
		args2 = append(args2, filters.SupplierID)
		argNum2++
	}
	if filters.Search != "" {
		dataSQL += ` AND g.number ILIKE $` + itoa(argNum2)
		args2 = append(args2, "%"+filters.Search+"%")
		argNum2++
	}

	orderBy := sortOrderGRN(filters.SortBy, filters.SortDir)
	dataSQL += ` ORDER BY ` + orderBy + ` LIMIT $` + itoa(argNum2) + ` OFFSET $` + itoa(argNum2+1)
	args2 = append(args2, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args2...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []GRNListItem
	for rows.Next() {
		var item GRNListItem
		if err := rows.Scan(&item.ID, &item.Number, &item.POID, &item.PONumber,
			&item.SupplierID, &item.SupplierName, &item.ReceivedAt, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func queryReceivedByPOItem(ctx context.Context, q querier, merchantID, poID int64) (map[int64]float64, error) {
	rows, err := q.Query(ctx, `SELECT gi.po_item_id, COALESCE(SUM(gi.qty), 0)
FROM goods_receipt_items gi
JOIN goods_receipts g ON g.id = gi.grn_id
WHERE g.po_id=$1 AND g.merchant_id=$2
GROUP BY gi.po_item_id`, poID, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	received := make(map[int64]float64)
	for rows.Next() {
		var itemID int64
		var qty float64
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		received[itemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return received, nil
}

// HasGRNs reports whether any receipt references the order.
func (r *Repository) HasGRNs(ctx context.Context, merchantID, poID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goods_receipts WHERE po_id=$1 AND merchant_id=$2)`, poID, merchantID).Scan(&exists)
	return exists, err
}

func (tx *txRepo) GetPOForUpdate(ctx context.Context, merchantID, id int64) (PurchaseOrder, []POItem, error) {
	return queryPO(ctx, tx.tx, merchantID, id, true)
}

// SumReceivedByPOItem aggregates received quantities per PO line across
// all receipts of the order.
func (tx *txRepo) SumReceivedByPOItem(ctx context.Context, merchantID, poID int64) (map[int64]float64, error) {
	return queryReceivedByPOItem(ctx, tx.tx, merchantID, poID)
}

func (tx *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(merchant_id, number, supplier_id, status, order_date, expected_date, subtotal, tax, discount, total, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW()) RETURNING id`,
		po.MerchantID, po.Number, po.SupplierID, po.Status, po.OrderDate, nullDate(po.ExpectedDate),
		po.Subtotal, po.Tax, po.Discount, po.Total, po.Notes, po.CreatedBy).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertPOItem(ctx context.Context, item POItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_order_items (po_id, product_id, description, qty, unit_price, tax_rate) VALUES ($1,$2,$3,$4,$5,$6)`,
		item.POID, item.ProductID, item.Description, item.Qty, item.UnitPrice, item.TaxRate)
	return err
}

func (tx *txRepo) UpdatePOHeader(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET supplier_id=$1, order_date=$2, expected_date=$3, subtotal=$4, tax=$5, discount=$6, total=$7, note=$8, updated_at=NOW()
WHERE id=$9 AND merchant_id=$10`,
		po.SupplierID, po.OrderDate, nullDate(po.ExpectedDate), po.Subtotal, po.Tax, po.Discount,
		po.Total, po.Notes, po.ID, po.MerchantID)
	return err
}

func (tx *txRepo) DeletePOItems(ctx context.Context, poID int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, poID)
	return err
}

func (tx *txRepo) UpdatePOStatus(ctx context.Context, merchantID, id int64, status POStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=NOW() WHERE id=$2 AND merchant_id=$3`, status, id, merchantID)
	return err
}

func (tx *txRepo) DeletePO(ctx context.Context, merchantID, id int64) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1 AND merchant_id=$2`, id, merchantID)
	return err
}

func (tx *txRepo) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO goods_receipts
(merchant_id, number, po_id, supplier_id, received_at, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		grn.MerchantID, grn.Number, grn.POID, grn.SupplierID, grn.ReceivedAt, grn.Notes, grn.CreatedBy).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertGRNItem(ctx context.Context, item GRNItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO goods_receipt_items (grn_id, po_item_id, product_id, qty, unit_cost) VALUES ($1,$2,$3,$4,$5)`,
		item.GRNID, item.POItemID, item.ProductID, item.Qty, item.UnitCost)
	return err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// sortOrderPO returns a safe ORDER BY clause for PO queries.
func sortOrderPO(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "p.number " + dir
	case "supplier":
		return "supplier_name " + dir
	case "order_date":
		return "p.order_date " + dir
	case "total":
		return "p.total " + dir
	case "status":
		return "p.status " + dir
	default:
		return "p.created_at DESC"
	}
}

// sortOrderGRN returns a safe ORDER BY clause for receipt queries.
func sortOrderGRN(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "g.number " + dir
	case "supplier":
		return "supplier_name " + dir
	case "received_at":
		return "g.received_at " + dir
	default:
		return "g.created_at DESC"
	}
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
