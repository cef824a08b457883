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

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// FindActiveByBuyer returns the buyer's unexpired reservation in the
// collection, if any.
func (r *ReservationRepository) FindActiveByBuyer(ctx context.Context, collectionSlug, buyerAddress string, now time.Time) (*domain.Reservation, error) {
	const query = `
SELECT inscription_id, collection_slug, buyer_address, expires_at
FROM reservations
WHERE collection_slug = $1 AND buyer_address = $2 AND expires_at > $3
LIMIT 1`

	var res domain.Reservation
	err := r.queryRow(ctx, query, collectionSlug, buyerAddress, now).
		Scan(&res.InscriptionID, &res.CollectionSlug, &res.BuyerAddress, &res.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find reservation by buyer: %w", err)
	}
	return &res, nil
}

// ListRecent returns every reservation in the collection whose expiry is
// at or after cutoff: the still-active ones plus the recently expired
// history window.
func (r *ReservationRepository) ListRecent(ctx context.Context, collectionSlug string, cutoff time.Time) ([]domain.Reservation, error) {
	const query = `
SELECT inscription_id, collection_slug, buyer_address, expires_at
FROM reservations
WHERE collection_slug = $1 AND expires_at >= $2`

	rows, err := r.query(ctx, query, collectionSlug, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list recent reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.InscriptionID, &res.CollectionSlug, &res.BuyerAddress, &res.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent reservations: %w", err)
	}
	return out, nil
}

// Reserve performs the conditional write: insert the reservation, or
// re-arm an existing row only if it has already expired as of now. The
// return reports whether the write won; false means the inscription is
// still held by someone else.
func (r *ReservationRepository) Reserve(ctx context.Context, res domain.Reservation, now time.Time) (bool, error) {
	const stmt = `
INSERT INTO reservations (inscription_id, collection_slug, buyer_address, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (inscription_id) DO UPDATE
SET collection_slug = EXCLUDED.collection_slug,
    buyer_address = EXCLUDED.buyer_address,
    expires_at = EXCLUDED.expires_at
WHERE reservations.expires_at <= $5`

	tag, err := r.exec(ctx, stmt, res.InscriptionID, res.CollectionSlug, res.BuyerAddress, res.ExpiresAt, now)
	if err != nil {
		return false, fmt.Errorf("reserve inscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the reservation row for the inscription regardless of
// expiry, or nil when none exists.
func (r *ReservationRepository) Get(ctx context.Context, inscriptionID string) (*domain.Reservation, error) {
	const query = `
SELECT inscription_id, collection_slug, buyer_address, expires_at
FROM reservations
WHERE inscription_id = $1`

	var res domain.Reservation
	err := r.queryRow(ctx, query, inscriptionID).
		Scan(&res.InscriptionID, &res.CollectionSlug, &res.BuyerAddress, &res.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// Delete releases the reservation for the inscription.
func (r *ReservationRepository) Delete(ctx context.Context, inscriptionID string) error {
	const stmt = `DELETE FROM reservations WHERE inscription_id = $1`
	if _, err := r.exec(ctx, stmt, inscriptionID); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
