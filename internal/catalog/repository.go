package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, sku, price, stock_on_hand, created_at, updated_at`

// Get returns a single product.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// StockOnHand returns the tracked stock figure for a product, or nil when the
// product has no stock concept. Missing products are treated as untracked.
func (r *Repository) StockOnHand(ctx context.Context, productID int64) (*float64, error) {
	var stock pgtype.Float8
	err := r.pool.QueryRow(ctx, `SELECT stock_on_hand FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: stock on hand: %w", err)
	}
	if !stock.Valid {
		return nil, nil
	}
	v := stock.Float64
	return &v, nil
}

// Describe returns display name and SKU for violation messages.
func (r *Repository) Describe(ctx context.Context, productID int64) (name, sku string, err error) {
	err = r.pool.QueryRow(ctx, `SELECT name, sku FROM products WHERE id = $1`, productID).Scan(&name, &sku)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Sprintf("product #%d", productID), "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("catalog: describe: %w", err)
	}
	return name, sku, nil
}

// List returns products matching the filter plus the unpaginated total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if filter.Search != "" {
		where = `WHERE name ILIKE $1 OR sku ILIKE $1`
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// AdjustStock sets the tracked stock figure. Passing nil switches the product
// to untracked.
func (r *Repository) AdjustStock(ctx context.Context, productID int64, stockOnHand *float64) error {
	var stock pgtype.Float8
	if stockOnHand != nil {
		stock = pgtype.Float8{Float64: *stockOnHand, Valid: true}
	}
	tag, err := r.pool.Exec(ctx, `UPDATE products SET stock_on_hand = $1, updated_at = NOW() WHERE id = $2`, stock, productID)
	if err != nil {
		return fmt.Errorf("catalog: adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var stock pgtype.Float8
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &stock, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: scan product: %w", err)
	}
	if stock.Valid {
		v := stock.Float64
		p.StockOnHand = &v
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
}
