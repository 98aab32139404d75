package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists customers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Sync upserts a buyer by tax id and returns the stable customer id. Contact
// details are refreshed on every sync so the directory follows the latest
// invoice input.
func (r *Repository) Sync(ctx context.Context, buyer Buyer) (int64, error) {
	if err := buyer.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (name, tax_id, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (tax_id) DO UPDATE
		SET name = EXCLUDED.name,
		    phone = EXCLUDED.phone,
		    email = EXCLUDED.email,
		    address = EXCLUDED.address,
		    updated_at = NOW()
		RETURNING id`,
		buyer.Name, buyer.TaxID, buyer.Phone, buyer.Email, buyer.Address,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("customers: sync: %w", err)
	}
	return id, nil
}

// Get returns a customer by id.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	var createdAt, updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, tax_id, phone, email, address, created_at, updated_at
		FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.TaxID, &c.Phone, &c.Email, &c.Address, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("customers: get: %w", err)
	}
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return c, nil
}
