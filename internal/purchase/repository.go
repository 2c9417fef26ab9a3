package purchase

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
	Get(ctx context.Context, merchantID, id int64) (Purchase, []PurchaseItem, error)
	List(ctx context.Context, merchantID int64, limit, offset int, filters ListFilters) ([]ListItem, int, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreatePurchase(ctx context.Context, p Purchase) (int64, error)
	InsertItem(ctx context.Context, item PurchaseItem) error
	UpdateHeader(ctx context.Context, p Purchase) error
	DeleteItems(ctx context.Context, purchaseID int64) error
	DeletePurchase(ctx context.Context, merchantID, id int64) error
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

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get returns the purchase and its items.
func (r *Repository) Get(ctx context.Context, merchantID, id int64) (Purchase, []PurchaseItem, error) {
	var p Purchase
	err := r.pool.QueryRow(ctx, `SELECT id, merchant_id, supplier_id, invoice_number, purchase_date,
subtotal, tax, discount, total, payment_method, payment_status, note, created_by, created_at, updated_at
FROM purchases WHERE id=$1 AND merchant_id=$2`, id, merchantID).
		Scan(&p.ID, &p.MerchantID, &p.SupplierID, &p.InvoiceNumber, &p.PurchaseDate,
			&p.Subtotal, &p.Tax, &p.Discount, &p.Total, &p.PaymentMethod, &p.PaymentStatus,
			&p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, nil, shared.NotFoundf("purchase %d not found", id)
		}
		return Purchase{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_id, product_id, qty, unit_price,
COALESCE(batch_number, ''), COALESCE(expiry_date, 'epoch'::timestamptz)
FROM purchase_items WHERE purchase_id=$1 ORDER BY id`, id)
	if err != nil {
		return Purchase{}, nil, err
	}
	defer rows.Close()
	var items []PurchaseItem
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Qty, &item.UnitPrice,
			&item.BatchNumber, &item.ExpiryDate); err != nil {
			return Purchase{}, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return Purchase{}, nil, err
	}
	return p, items, nil
}

// List returns purchases with supplier name.
func (r *Repository) List(ctx context.Context, merchantID int64, limit, offset int, filters ListFilters) ([]ListItem, int, error) {
	countSQL := `SELECT COUNT(*) FROM purchases p WHERE p.merchant_id=$1`
	args := []any{merchantID}
	argNum := 2

	if filters.SupplierID > 0 {
		countSQL += ` AND p.supplier_id = $` + itoa(argNum)
		args = append(args, filters.SupplierID)
		argNum++
	}
	if filters.PaymentStatus != "" {
		countSQL += ` AND p.payment_status = $` + itoa(argNum)
		args = append(args, filters.PaymentStatus)
		argNum++
	}
	if filters.Search != "" {
		countSQL += ` AND p.invoice_number ILIKE $` + itoa(argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT p.id, p.supplier_id, COALESCE(s.name, '') AS supplier_name,
		p.invoice_number, p.purchase_date, p.total, p.payment_status, p.created_at
	FROM purchases p
	LEFT JOIN suppliers s ON s.id = p.supplier_id
	WHERE p.merchant_id=$1`

	args2 := []any{merchantID}
	argNum2 := 2
	if filters.SupplierID > 0 {
		dataSQL += ` AND p.supplier_id = $` + itoa(argNum2)
		args2 = append(args2, filters.SupplierID)
		argNum2++
	}
	if filters.PaymentStatus != "" {
		dataSQL += ` AND p.payment_status = $` + itoa(argNum2)
		args2 = append(args2, filters.PaymentStatus)
		argNum2++
	}
	if filters.Search != "" {
		dataSQL += ` AND p.invoice_number ILIKE $` + itoa(argNum2)
		args2 = append(args2, "%"+filters.Search+"%")
		argNum2++
	}

	orderBy := sortOrder(filters.SortBy, filters.SortDir)
	dataSQL += ` ORDER BY ` + orderBy + ` LIMIT $` + itoa(argNum2) + ` OFFSET $` + itoa(argNum2+1)
	args2 = append(args2, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args2...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(&item.ID, &item.SupplierID, &item.SupplierName, &item.InvoiceNumber,
			&item.PurchaseDate, &item.Total, &item.PaymentStatus, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (tx *txRepo) CreatePurchase(ctx context.Context, p Purchase) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchases
(merchant_id, supplier_id, invoice_number, purchase_date, subtotal, tax, discount, total, payment_method, payment_status, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW()) RETURNING id`,
		p.MerchantID, p.SupplierID, p.InvoiceNumber, p.PurchaseDate, p.Subtotal, p.Tax,
		p.Discount, p.Total, p.PaymentMethod, p.PaymentStatus, p.Notes, p.CreatedBy).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertItem(ctx context.Context, item PurchaseItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_items (purchase_id, product_id, qty, unit_price, batch_number, expiry_date)
VALUES ($1,$2,$3,$4,$5,$6)`,
		item.PurchaseID, item.ProductID, item.Qty, item.UnitPrice, item.BatchNumber, nullDate(item.ExpiryDate))
	return err
}

func (tx *txRepo) UpdateHeader(ctx context.Context, p Purchase) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchases
SET supplier_id=$1, invoice_number=$2, purchase_date=$3, subtotal=$4, tax=$5, discount=$6, total=$7,
payment_method=$8, payment_status=$9, note=$10, updated_at=NOW()
WHERE id=$11 AND merchant_id=$12`,
		p.SupplierID, p.InvoiceNumber, p.PurchaseDate, p.Subtotal, p.Tax, p.Discount, p.Total,
		p.PaymentMethod, p.PaymentStatus, p.Notes, p.ID, p.MerchantID)
	return err
}

func (tx *txRepo) DeleteItems(ctx context.Context, purchaseID int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id=$1`, purchaseID)
	return err
}

func (tx *txRepo) DeletePurchase(ctx context.Context, merchantID, id int64) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id=$1`, id); err != nil {
		return err
	}
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchases WHERE id=$1 AND merchant_id=$2`, id, merchantID)
	return err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// sortOrder returns a safe ORDER BY clause for purchase queries.
func sortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "invoice":
		return "p.invoice_number " + dir
	case "supplier":
		return "supplier_name " + dir
	case "purchase_date":
		return "p.purchase_date " + dir
	case "total":
		return "p.total " + dir
	default:
		return "p.created_at DESC"
	}
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
