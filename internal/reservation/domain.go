package reservation

import (
	"fmt"
	"time"
)

// Entry is one holder's reservation of one product. ExpiresAt is nil when the
// reservation carries no TTL; such entries persist until explicitly released.
type Entry struct {
	ProductID int64
	HolderID  int64
	Qty       float64
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Live reports whether the entry still withholds stock at the given instant.
// Expired entries are not swept eagerly; they are ignored at read time and
// overwritten at write time.
func (e Entry) Live(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// Violation describes one line that requests more than is available.
type Violation struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

func (v Violation) String() string {
	label := v.Name
	if v.SKU != "" {
		label = fmt.Sprintf("%s (%s)", v.Name, v.SKU)
	}
	return fmt.Sprintf("%s: requested %g, available %g", label, v.Requested, v.Available)
}

// Line is the normalized stock view of an invoice item: which product, how
// much, and whether the line participates in stock at all. Callers adapt
// their item representation into this one; the ledger never sees raw payloads.
type Line struct {
	ProductID       int64
	Qty             float64
	Status          string
	ReservationDays int
	Name            string
	SKU             string
}

// StatusNone marks lines that never touch stock (fictive documents).
const StatusNone = "none"

// StatusReserved marks lines that withhold stock via the ledger.
const StatusReserved = "reserved"
