package invoices

import "time"

// Pure derivation rules. Every other part of the module trusts these, so they
// take value inputs and touch no state; "now" is always passed in.

// paymentEpsilon is the threshold below which a payment row carries no
// commercial meaning.
const paymentEpsilon = 0.01

// DetermineCommercialStatus returns standard iff any payment is positive.
// A list holding only refunds (negative amounts) yields fictive, reproducing
// the source system's rule.
func DetermineCommercialStatus(payments []Payment) CommercialStatus {
	for _, p := range payments {
		if p.Amount > 0 {
			return StatusStandard
		}
	}
	return StatusFictive
}

// CalculateTotal sums line totals over non-canceled items, falling back to
// qty×price when a line total was not supplied. None-status lines (fictive
// documents) are included.
func CalculateTotal(items []Item) float64 {
	var total float64
	for _, item := range items {
		if item.Status == ItemCanceled {
			continue
		}
		lineTotal := item.Total
		if lineTotal == 0 {
			lineTotal = item.Qty * item.Price
		}
		total += lineTotal
	}
	return total
}

// CalculateLifecycleStatus derives the completion state from item statuses.
// Fictive documents are always unfinished. For standard documents only
// active items count: all sold means completed, all reserved means reserved,
// anything mixed or empty means unfinished.
func CalculateLifecycleStatus(status CommercialStatus, items []Item) LifecycleStatus {
	if status == StatusFictive {
		return LifecycleUnfinished
	}
	var active, sold, reserved int
	for _, item := range items {
		switch item.Status {
		case ItemCanceled, ItemNone:
		case ItemSold:
			active++
			sold++
		case ItemReserved:
			active++
			reserved++
		default:
			active++
		}
	}
	if active > 0 && sold == active {
		return LifecycleCompleted
	}
	if active > 0 && reserved == active {
		return LifecycleReserved
	}
	return LifecycleUnfinished
}

// DisplayStatusOf maps the internal status pair to the external vocabulary.
// Fictive always displays as draft. Unfinished displays as canceled when any
// line was canceled, otherwise reserved as the safe default.
func DisplayStatusOf(status CommercialStatus, lifecycle LifecycleStatus, items []Item) DisplayStatus {
	if status == StatusFictive {
		return DisplayDraft
	}
	switch lifecycle {
	case LifecycleCompleted:
		return DisplaySold
	case LifecycleReserved:
		return DisplayReserved
	}
	for _, item := range items {
		if item.Status == ItemCanceled {
			return DisplayCanceled
		}
	}
	return DisplayReserved
}

// LatestPaymentDate returns the latest payment date, ties broken by input
// order (first occurrence wins). Nil when no payment carries a usable date.
func LatestPaymentDate(payments []Payment) *time.Time {
	var latest *time.Time
	for i := range payments {
		d := payments[i].Date
		if d.IsZero() {
			continue
		}
		if latest == nil || d.After(*latest) {
			latest = &d
		}
	}
	return latest
}

// CalculateSaleDate derives the effective sale date: nil for fictive; for
// standard, the latest payment's calendar day combined with the current
// time-of-day, falling back to now when no payment has a usable date.
func CalculateSaleDate(status CommercialStatus, payments []Payment, now time.Time) *time.Time {
	if status != StatusStandard {
		return nil
	}
	latest := LatestPaymentDate(payments)
	if latest == nil {
		return &now
	}
	d := time.Date(
		latest.Year(), latest.Month(), latest.Day(),
		now.Hour(), now.Minute(), now.Second(), 0, now.Location(),
	)
	return &d
}

// NormalizeItems enforces the item status invariants on an already-parsed
// item list: blank-named lines are dropped, line totals default to
// qty×price, fictive documents force every line to none with no TTL, and on
// standard documents an unresolved (none/blank) line is promoted to
// reserved. Sold and canceled lines carry no TTL either way.
func NormalizeItems(items []Item, status CommercialStatus) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		if item.Total <= 0 && item.Qty > 0 && item.Price > 0 {
			item.Total = item.Qty * item.Price
		}
		if status == StatusFictive {
			item.Status = ItemNone
			item.ReservationDays = 0
		} else if item.Status == "" || item.Status == ItemNone {
			item.Status = ItemReserved
		}
		if item.Status != ItemReserved {
			item.ReservationDays = 0
		}
		out = append(out, item)
	}
	return out
}

// FilterPayments drops rows whose amount is effectively zero and defaults a
// missing date to today. Negative amounts (refunds) pass through.
func FilterPayments(payments []Payment, now time.Time) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if p.Amount < paymentEpsilon && p.Amount > -paymentEpsilon {
			continue
		}
		if p.Date.IsZero() {
			p.Date = now
		}
		if p.Method == "" {
			p.Method = "other"
		}
		out = append(out, p)
	}
	return out
}
