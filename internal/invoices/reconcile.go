package invoices

import (
	"context"

	"github.com/meridian-trade/meridian/internal/reservation"
)

// LedgerPort is the slice of the reservation ledger the invoice module
// drives. All quantity changes go through SetReservation/Release so the
// ledger's replace-not-merge invariant holds.
type LedgerPort interface {
	ValidateStock(ctx context.Context, lines []reservation.Line, excludeHolderID int64) ([]reservation.Violation, error)
	SetReservation(ctx context.Context, productID, holderID int64, qty float64, reservationDays int) error
	Release(ctx context.Context, productID, holderID int64) error
	PurgeHolder(ctx context.Context, holderID int64) error
}

type productDemand struct {
	qty  float64
	days int
}

// demandByProduct folds an item snapshot into per-product reserved demand.
// Only reserved lines withhold stock; a fictive snapshot (all none) folds to
// nothing. When several reserved lines share a product their quantities add
// and the longest TTL wins.
func demandByProduct(items []Item) map[int64]productDemand {
	demand := make(map[int64]productDemand)
	for _, item := range items {
		if item.Status != ItemReserved || item.ProductID == 0 || item.Qty <= 0 {
			continue
		}
		d := demand[item.ProductID]
		d.qty += item.Qty
		if item.ReservationDays > d.days {
			d.days = item.ReservationDays
		}
		demand[item.ProductID] = d
	}
	return demand
}

// ReconcileReservations diffs the previous item snapshot against the new one
// and applies exactly the delta to the ledger:
//
//   - a product no longer reserved is released (no-op when absent),
//   - a changed quantity or TTL is a full replace, restarting the TTL,
//   - an identical demand writes nothing, so repeating the reconciliation
//     with the same inputs is a no-op.
//
// Driving it with an empty new snapshot purges every reservation the holder
// owns in the old one.
func ReconcileReservations(ctx context.Context, ledger LedgerPort, holderID int64, oldItems, newItems []Item) error {
	oldDemand := demandByProduct(oldItems)
	newDemand := demandByProduct(newItems)

	products := make(map[int64]struct{}, len(oldDemand)+len(newDemand))
	for id := range oldDemand {
		products[id] = struct{}{}
	}
	for id := range newDemand {
		products[id] = struct{}{}
	}

	for productID := range products {
		oldD := oldDemand[productID]
		newD := newDemand[productID]

		switch {
		case newD.qty == 0:
			if err := ledger.Release(ctx, productID, holderID); err != nil {
				return err
			}
		case newD.qty != oldD.qty || newD.days != oldD.days:
			if err := ledger.SetReservation(ctx, productID, holderID, newD.qty, newD.days); err != nil {
				return err
			}
		}
	}
	return nil
}

// stockLines adapts an item snapshot to the ledger's normalized line shape.
func stockLines(items []Item) []reservation.Line {
	lines := make([]reservation.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, reservation.Line{
			ProductID:       item.ProductID,
			Qty:             item.Qty,
			Status:          string(item.Status),
			ReservationDays: item.ReservationDays,
			Name:            item.Name,
			SKU:             item.SKU,
		})
	}
	return lines
}

// productIDs collects the distinct product ids across item snapshots, used
// to scope the per-product locks.
func productIDs(snapshots ...[]Item) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, items := range snapshots {
		for _, item := range items {
			if item.ProductID == 0 {
				continue
			}
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}
