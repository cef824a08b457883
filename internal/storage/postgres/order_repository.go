package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ordswap/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, collection_slug, inscription_id, status, txid, signed_tx, extra_details, buyer_address, price_sats, created_at, updated_at`

// WithTx runs fn with every repository call on ctx inside a single
// transaction, rolled back when fn fails.
func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// Create inserts the order. A partial unique index on active orders per
// inscription backs the no-double-sale invariant; hitting it surfaces as
// domain.ErrAlreadySelling. Transient storage errors are retried with
// bounded backoff.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	err := withRetry(ctx, func() error {
		_, err := r.exec(ctx, stmt,
			order.ID,
			order.CollectionSlug,
			order.InscriptionID,
			order.Status,
			order.Txid,
			order.SignedTx,
			order.ExtraDetails,
			order.BuyerAddress,
			order.PriceSats,
			order.CreatedAt,
			order.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySelling
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// ActiveByInscription returns the newest pending or confirmed order for
// the inscription, or nil when none exists.
func (r *OrderRepository) ActiveByInscription(ctx context.Context, inscriptionID string) (*domain.Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE inscription_id = $1 AND status = ANY($2)
ORDER BY created_at DESC
LIMIT 1`

	order, err := r.one(ctx, query, inscriptionID, statusStrings(domain.ActiveOrderStatuses))
	if err != nil {
		return nil, fmt.Errorf("active order by inscription: %w", err)
	}
	return order, nil
}

// GetByID returns the order with the given id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := r.one(ctx, query, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

// SetStatus updates the order's status, keeping the existing txid when
// none is supplied. Consumed by the external confirmation process.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status domain.OrderStatus, txid string, now time.Time) error {
	const stmt = `
UPDATE orders
SET status = $2, txid = COALESCE(NULLIF($3, ''), txid), updated_at = $4
WHERE id = $1`

	var tag pgconn.CommandTag
	err := withRetry(ctx, func() error {
		var err error
		tag, err = r.exec(ctx, stmt, id, status, txid, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// ListPending pages through pending orders in id order, for the external
// confirmation process. Pass afterID = "" for the first page.
func (r *OrderRepository) ListPending(ctx context.Context, limit int, afterID string) ([]domain.Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE status = $1 AND ($2 = '' OR id > $2)
ORDER BY id ASC
LIMIT $3`

	rows, err := r.query(ctx, query, domain.OrderStatusPending, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return out, nil
}

func (r *OrderRepository) one(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.queryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.CollectionSlug,
		&o.InscriptionID,
		&o.Status,
		&o.Txid,
		&o.SignedTx,
		&o.ExtraDetails,
		&o.BuyerAddress,
		&o.PriceSats,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
