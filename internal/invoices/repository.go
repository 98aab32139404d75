package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-trade/meridian/internal/platform/db"
)

// ErrNumberConflict indicates the invoice number is already taken.
var ErrNumberConflict = errors.New("invoices: invoice number already exists")

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status        string
	Lifecycle     string
	AuthorID      int64
	Search        string
	PaymentMethod string
	DateFrom      *time.Time
	DateTo        *time.Time
	Page          int
	PerPage       int
}

// Repository persists invoices, items and payments in PostgreSQL. All
// mutations run in a single RepeatableRead transaction so the three tables
// are never observed half-updated.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, invoice_number, customer_id, status, lifecycle_status,
	total_amount, paid_amount, created_at, sale_date, sold_date, author_id, general_note`

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Get loads an invoice with its items and payments.
func (r *Repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	return getInvoice(ctx, r.pool, id)
}

func getInvoice(ctx context.Context, q rowQuerier, id int64) (*Invoice, error) {
	row := q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}
	if inv.Items, err = loadItems(ctx, q, id); err != nil {
		return nil, err
	}
	if inv.Payments, err = loadPayments(ctx, q, id); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns invoices matching the filter plus the unpaginated total.
// Items and payments are batch-loaded to avoid per-invoice queries.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	if perPage > 500 {
		perPage = 500
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * perPage

	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "i.status = "+arg(filter.Status))
	}
	if filter.Lifecycle != "" {
		conditions = append(conditions, "i.lifecycle_status = "+arg(filter.Lifecycle))
	}
	if filter.AuthorID > 0 {
		conditions = append(conditions, "i.author_id = "+arg(filter.AuthorID))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "i.sale_date >= "+arg(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "i.sale_date <= "+arg(*filter.DateTo))
	}
	if filter.Search != "" {
		like := arg("%" + filter.Search + "%")
		conditions = append(conditions, fmt.Sprintf(
			"(i.invoice_number ILIKE %s OR c.name ILIKE %s OR c.tax_id ILIKE %s)", like, like, like))
	}
	if filter.PaymentMethod != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM payments p WHERE p.invoice_id = i.id AND p.method = "+arg(filter.PaymentMethod)+")")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + conditions[0]
		for _, c := range conditions[1:] {
			where += " AND " + c
		}
	}
	join := "LEFT JOIN customers c ON c.id = i.customer_id"

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT i.id) FROM invoices i %s %s", join, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoices: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices i %s %s ORDER BY i.id DESC LIMIT %s OFFSET %s`,
		qualify(invoiceColumns, "i"), join, where, arg(perPage), arg(offset))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	var result []Invoice
	var ids []int64
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(result) == 0 {
		return result, total, nil
	}

	itemsByInvoice, err := batchItems(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	paymentsByInvoice, err := batchPayments(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range result {
		result[i].Items = itemsByInvoice[result[i].ID]
		result[i].Payments = paymentsByInvoice[result[i].ID]
	}
	return result, total, nil
}

// Create inserts the invoice with its items and payments, recomputes
// paid_amount from the persisted payments, and returns the new id.
func (r *Repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO invoices (invoice_number, customer_id, status, lifecycle_status,
				total_amount, paid_amount, created_at, sale_date, sold_date, author_id, general_note)
			VALUES ($1, $2, $3, $4, $5, 0, NOW(), $6, $7, $8, $9)
			RETURNING id`,
			inv.Number, inv.CustomerID, inv.Status, inv.Lifecycle,
			inv.TotalAmount, nullableTime(inv.SaleDate), nullableDate(inv.SoldDate),
			inv.AuthorID, inv.GeneralNote,
		).Scan(&id)
		if err != nil {
			return wrapNumberConflict(err)
		}
		if err := insertItems(ctx, tx, id, inv.Items); err != nil {
			return err
		}
		if err := insertPayments(ctx, tx, id, inv.Payments); err != nil {
			return err
		}
		return recalcPaidAmount(ctx, tx, id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update rewrites the invoice row and replaces its items and payments.
// SaleDate is written as given; the service already applied the overwrite
// policy.
func (r *Repository) Update(ctx context.Context, inv Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invoices SET invoice_number = $1, customer_id = $2, status = $3,
				lifecycle_status = $4, total_amount = $5, sale_date = $6, sold_date = $7,
				general_note = $8
			WHERE id = $9`,
			inv.Number, inv.CustomerID, inv.Status, inv.Lifecycle,
			inv.TotalAmount, nullableTime(inv.SaleDate), nullableDate(inv.SoldDate),
			inv.GeneralNote, inv.ID)
		if err != nil {
			return wrapNumberConflict(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("invoices: delete items: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("invoices: delete payments: %w", err)
		}
		if err := insertItems(ctx, tx, inv.ID, inv.Items); err != nil {
			return err
		}
		if err := insertPayments(ctx, tx, inv.ID, inv.Payments); err != nil {
			return err
		}
		return recalcPaidAmount(ctx, tx, inv.ID)
	})
}

// Delete removes the invoice and its owned rows: payments, then items, then
// the invoice itself.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE invoice_id = $1`, id); err != nil {
			return fmt.Errorf("invoices: delete payments: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
			return fmt.Errorf("invoices: delete items: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("invoices: delete invoice: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// MarkItemsSold transitions every reserved line to sold with no TTL and
// completes the invoice, optionally setting a sale date when none existed.
func (r *Repository) MarkItemsSold(ctx context.Context, id int64, saleDate *time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE invoice_items SET item_status = $1, reservation_days = 0
			WHERE invoice_id = $2 AND item_status = $3`,
			ItemSold, id, ItemReserved); err != nil {
			return fmt.Errorf("invoices: mark items sold: %w", err)
		}
		query := `UPDATE invoices SET lifecycle_status = $1, status = $2 WHERE id = $3`
		args := []any{LifecycleCompleted, StatusStandard, id}
		if saleDate != nil {
			query = `UPDATE invoices SET lifecycle_status = $1, status = $2, sale_date = $4 WHERE id = $3`
			args = append(args, *saleDate)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("invoices: complete invoice: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// NumberExists reports whether another invoice already uses the number.
func (r *Repository) NumberExists(ctx context.Context, number string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1 AND id <> $2)`,
		number, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("invoices: number exists: %w", err)
	}
	return exists, nil
}

// NextNumber generates the next free number in the N{YY}{seq} series.
func (r *Repository) NextNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "N" + now.Format("06")
	var maxSeq int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(invoice_number FROM 4) AS BIGINT)), 0)
		FROM invoices WHERE invoice_number ~ $1`,
		"^"+prefix+`[0-9]+$`).Scan(&maxSeq)
	if err != nil {
		return "", fmt.Errorf("invoices: next number: %w", err)
	}
	return fmt.Sprintf("%s%06d", prefix, maxSeq+1), nil
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID int64, items []Item) error {
	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, product_name, sku, description,
				quantity, price, total, item_status, warranty_duration, reservation_days, image)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			invoiceID, item.ProductID, item.Name, item.SKU, item.Description,
			item.Qty, item.Price, item.Total, item.Status, item.Warranty,
			item.ReservationDays, item.Image)
		if err != nil {
			return fmt.Errorf("invoices: insert item: %w", err)
		}
	}
	return nil
}

func insertPayments(ctx context.Context, tx pgx.Tx, invoiceID int64, payments []Payment) error {
	for _, p := range payments {
		_, err := tx.Exec(ctx, `
			INSERT INTO payments (invoice_id, amount, date, method, user_id, comment)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			invoiceID, p.Amount, p.Date, p.Method, p.UserID, p.Comment)
		if err != nil {
			return fmt.Errorf("invoices: insert payment: %w", err)
		}
	}
	return nil
}

// recalcPaidAmount derives paid_amount from the persisted payment rows; the
// figure is never trusted as client input.
func recalcPaidAmount(ctx context.Context, tx pgx.Tx, invoiceID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoices SET paid_amount = COALESCE(
			(SELECT SUM(amount) FROM payments WHERE invoice_id = $1), 0)
		WHERE id = $1`, invoiceID)
	if err != nil {
		return fmt.Errorf("invoices: recalc paid amount: %w", err)
	}
	return nil
}

func loadItems(ctx context.Context, q rowQuerier, invoiceID int64) ([]Item, error) {
	byInvoice, err := batchItems(ctx, q, []int64{invoiceID})
	if err != nil {
		return nil, err
	}
	return byInvoice[invoiceID], nil
}

func loadPayments(ctx context.Context, q rowQuerier, invoiceID int64) ([]Payment, error) {
	byInvoice, err := batchPayments(ctx, q, []int64{invoiceID})
	if err != nil {
		return nil, err
	}
	return byInvoice[invoiceID], nil
}

func batchItems(ctx context.Context, q rowQuerier, invoiceIDs []int64) (map[int64][]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, product_id, product_name, sku, description,
			quantity, price, total, item_status, warranty_duration, reservation_days, image
		FROM invoice_items WHERE invoice_id = ANY($1) ORDER BY id ASC`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("invoices: load items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Item)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Name,
			&item.SKU, &item.Description, &item.Qty, &item.Price, &item.Total,
			&item.Status, &item.Warranty, &item.ReservationDays, &item.Image); err != nil {
			return nil, fmt.Errorf("invoices: scan item: %w", err)
		}
		out[item.InvoiceID] = append(out[item.InvoiceID], item)
	}
	return out, rows.Err()
}

func batchPayments(ctx context.Context, q rowQuerier, invoiceIDs []int64) (map[int64][]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, amount, date, method, user_id, comment
		FROM payments WHERE invoice_id = ANY($1) ORDER BY date ASC, id ASC`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("invoices: load payments: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Payment)
	for rows.Next() {
		var p Payment
		var date pgtype.Timestamptz
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &date, &p.Method, &p.UserID, &p.Comment); err != nil {
			return nil, fmt.Errorf("invoices: scan payment: %w", err)
		}
		p.Date = date.Time
		out[p.InvoiceID] = append(out[p.InvoiceID], p)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var createdAt, saleDate pgtype.Timestamptz
	var soldDate pgtype.Date
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Status, &inv.Lifecycle,
		&inv.TotalAmount, &inv.PaidAmount, &createdAt, &saleDate, &soldDate,
		&inv.AuthorID, &inv.GeneralNote)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("invoices: scan invoice: %w", err)
	}
	inv.CreatedAt = createdAt.Time
	if saleDate.Valid {
		t := saleDate.Time
		inv.SaleDate = &t
	}
	if soldDate.Valid {
		t := soldDate.Time
		inv.SoldDate = &t
	}
	return &inv, nil
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func nullableDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func wrapNumberConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrNumberConflict
	}
	return fmt.Errorf("invoices: write invoice: %w", err)
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(columns, alias string) string {
	out := ""
	for i, col := range splitColumns(columns) {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + col
	}
	return out
}

func splitColumns(columns string) []string {
	var out []string
	field := ""
	for _, r := range columns {
		switch r {
		case ',':
			out = append(out, field)
			field = ""
		case ' ', '\n', '\t':
		default:
			field += string(r)
		}
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}
