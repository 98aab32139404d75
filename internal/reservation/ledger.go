package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-trade/meridian/internal/shared"
)

// Store persists reservation entries keyed by (product, holder).
type Store interface {
	EntriesForProduct(ctx context.Context, productID int64) ([]Entry, error)
	Upsert(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, productID, holderID int64) error
	DeleteForHolder(ctx context.Context, holderID int64) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// StockProvider supplies read-only catalog stock figures. A nil figure means
// the product has no tracked stock concept.
type StockProvider interface {
	StockOnHand(ctx context.Context, productID int64) (*float64, error)
	Describe(ctx context.Context, productID int64) (name, sku string, err error)
}

// Ledger is the authoritative source of how much of a product is withheld and
// by whom. All writes go through SetReservation/Release; callers never do
// quantity arithmetic against the store directly, which preserves the
// replace-not-merge invariant.
type Ledger struct {
	store Store
	stock StockProvider
	now   shared.Clock
}

// NewLedger constructs a Ledger. A nil clock falls back to the system clock.
func NewLedger(store Store, stock StockProvider, now shared.Clock) *Ledger {
	if now == nil {
		now = shared.SystemClock
	}
	return &Ledger{store: store, stock: stock, now: now}
}

// Reserved sums live reservation quantities for a product across all holders.
func (l *Ledger) Reserved(ctx context.Context, productID int64) (float64, error) {
	return l.reservedExcluding(ctx, productID, 0)
}

// Available returns how much of a product a given holder may still claim:
// stock on hand minus every other holder's live reservations, floored at
// zero. It returns nil when the product is untracked. The holder's own entry
// is excluded so an invoice is never blocked by its own reservation when
// re-validating itself.
func (l *Ledger) Available(ctx context.Context, productID, excludeHolderID int64) (*float64, error) {
	onHand, err := l.stock.StockOnHand(ctx, productID)
	if err != nil {
		return nil, err
	}
	if onHand == nil {
		return nil, nil
	}
	reserved, err := l.reservedExcluding(ctx, productID, excludeHolderID)
	if err != nil {
		return nil, err
	}
	available := *onHand - reserved
	if available < 0 {
		available = 0
	}
	return &available, nil
}

// SetReservation replaces the holder's entry for a product. Quantities at or
// below zero release instead. A positive reservationDays sets a fresh expiry
// from now — the TTL restarts whenever the reservation is re-affirmed.
func (l *Ledger) SetReservation(ctx context.Context, productID, holderID int64, qty float64, reservationDays int) error {
	if qty <= 0 {
		return l.Release(ctx, productID, holderID)
	}
	now := l.now()
	entry := Entry{
		ProductID: productID,
		HolderID:  holderID,
		Qty:       qty,
		CreatedAt: now,
	}
	if reservationDays > 0 {
		expires := now.AddDate(0, 0, reservationDays)
		entry.ExpiresAt = &expires
	}
	if err := l.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("reservation: set %d/%d: %w", productID, holderID, err)
	}
	return nil
}

// Release removes the holder's entry for a product. Releasing an absent entry
// is a no-op.
func (l *Ledger) Release(ctx context.Context, productID, holderID int64) error {
	if err := l.store.Delete(ctx, productID, holderID); err != nil {
		return fmt.Errorf("reservation: release %d/%d: %w", productID, holderID, err)
	}
	return nil
}

// PurgeHolder drops every reservation the holder owns, across all products.
// Used when an invoice is deleted or deactivated.
func (l *Ledger) PurgeHolder(ctx context.Context, holderID int64) error {
	if err := l.store.DeleteForHolder(ctx, holderID); err != nil {
		return fmt.Errorf("reservation: purge holder %d: %w", holderID, err)
	}
	return nil
}

// SweepExpired deletes entries whose TTL has lapsed. Correctness never
// depends on this — expired entries self-exclude at read time — it only keeps
// the store tidy. Exposed as a maintenance job.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(ctx, l.now())
}

func (l *Ledger) reservedExcluding(ctx context.Context, productID, excludeHolderID int64) (float64, error) {
	entries, err := l.store.EntriesForProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("reservation: entries for product %d: %w", productID, err)
	}
	now := l.now()
	var total float64
	for _, e := range entries {
		if excludeHolderID != 0 && e.HolderID == excludeHolderID {
			continue
		}
		if !e.Live(now) {
			continue
		}
		total += e.Qty
	}
	return total, nil
}
