package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline/stockline/internal/platform/db"
	"github.com/stockline/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLevel(ctx context.Context, merchantID, productID int64) (Level, error)
}

// TxRepository exposes transactional stock operations.
type TxRepository interface {
	ApplyDelta(ctx context.Context, merchantID, productID int64, delta float64) (float64, error)
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

// GetLevel returns the current stock level of a product.
func (r *Repository) GetLevel(ctx context.Context, merchantID, productID int64) (Level, error) {
	var level Level
	err := r.pool.QueryRow(ctx, `SELECT id, current_stock, updated_at FROM products WHERE id=$1 AND merchant_id=$2`, productID, merchantID).
		Scan(&level.ProductID, &level.Qty, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, shared.NotFoundf("product %d not found", productID)
		}
		return Level{}, err
	}
	return level, nil
}

// ApplyDelta adjusts current_stock by delta in a single atomic UPDATE
// expression, clamped at zero. The increment happens inside the
// statement, never as read-then-write from the application.
func (tx *txRepo) ApplyDelta(ctx context.Context, merchantID, productID int64, delta float64) (float64, error) {
	var newQty float64
	err := tx.tx.QueryRow(ctx, `UPDATE products
SET current_stock = GREATEST(0, current_stock + $1), updated_at = NOW()
WHERE id=$2 AND merchant_id=$3
RETURNING current_stock`, delta, productID, merchantID).Scan(&newQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFoundf("product %d not found", productID)
		}
		return 0, err
	}
	return newQty, nil
}
