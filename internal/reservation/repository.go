package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reservation entries in PostgreSQL. The table is keyed
// (product_id, holder_id) so an upsert is a wholesale replace of that
// holder's claim on that product.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EntriesForProduct returns every entry for a product, live or expired.
// Expiry filtering happens in the ledger so the clock stays injectable.
func (r *Repository) EntriesForProduct(ctx context.Context, productID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, holder_id, qty, created_at, expires_at
		FROM reservation_entries WHERE product_id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("reservation: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt, expiresAt pgtype.Timestamptz
		if err := rows.Scan(&e.ProductID, &e.HolderID, &e.Qty, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("reservation: scan entry: %w", err)
		}
		e.CreatedAt = createdAt.Time
		if expiresAt.Valid {
			t := expiresAt.Time
			e.ExpiresAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Upsert replaces the holder's entry for the product.
func (r *Repository) Upsert(ctx context.Context, entry Entry) error {
	var expires pgtype.Timestamptz
	if entry.ExpiresAt != nil {
		expires = pgtype.Timestamptz{Time: *entry.ExpiresAt, Valid: true}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservation_entries (product_id, holder_id, qty, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, holder_id) DO UPDATE
		SET qty = EXCLUDED.qty,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at`,
		entry.ProductID, entry.HolderID, entry.Qty,
		pgtype.Timestamptz{Time: entry.CreatedAt, Valid: true}, expires)
	if err != nil {
		return fmt.Errorf("reservation: upsert: %w", err)
	}
	return nil
}

// Delete removes one holder's entry for one product.
func (r *Repository) Delete(ctx context.Context, productID, holderID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM reservation_entries WHERE product_id = $1 AND holder_id = $2`,
		productID, holderID)
	if err != nil {
		return fmt.Errorf("reservation: delete: %w", err)
	}
	return nil
}

// DeleteForHolder removes every entry owned by the holder.
func (r *Repository) DeleteForHolder(ctx context.Context, holderID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM reservation_entries WHERE holder_id = $1`, holderID)
	if err != nil {
		return fmt.Errorf("reservation: delete for holder: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose expiry has passed the cutoff.
func (r *Repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM reservation_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reservation: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
