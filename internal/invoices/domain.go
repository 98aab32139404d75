package invoices

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-trade/meridian/internal/reservation"
)

// CommercialStatus says whether real money changed hands.
type CommercialStatus string

const (
	// StatusStandard marks a real transaction: at least one positive payment.
	StatusStandard CommercialStatus = "standard"
	// StatusFictive marks a draft/quote with no money moved.
	StatusFictive CommercialStatus = "fictive"
)

// LifecycleStatus is the derived completion state of an invoice's items.
type LifecycleStatus string

const (
	LifecycleCompleted  LifecycleStatus = "completed"
	LifecycleReserved   LifecycleStatus = "reserved"
	LifecycleUnfinished LifecycleStatus = "unfinished"
)

// DisplayStatus is the external presentation of the status pair.
type DisplayStatus string

const (
	DisplayDraft    DisplayStatus = "draft"
	DisplaySold     DisplayStatus = "sold"
	DisplayReserved DisplayStatus = "reserved"
	DisplayCanceled DisplayStatus = "canceled"
)

// ItemStatus is the per-line state.
type ItemStatus string

const (
	ItemNone     ItemStatus = "none"
	ItemReserved ItemStatus = "reserved"
	ItemSold     ItemStatus = "sold"
	ItemCanceled ItemStatus = "canceled"
)

// Invoice is a sales document owning its items and payments: they are
// created, updated and deleted together.
type Invoice struct {
	ID          int64
	Number      string
	CustomerID  int64
	Status      CommercialStatus
	Lifecycle   LifecycleStatus
	TotalAmount float64
	PaidAmount  float64
	CreatedAt   time.Time
	SaleDate    *time.Time
	SoldDate    *time.Time
	AuthorID    int64
	GeneralNote string
	Items       []Item
	Payments    []Payment
}

// Item is one product line on an invoice. ReservationDays is meaningful only
// while Status is reserved.
type Item struct {
	ID              int64
	InvoiceID       int64
	ProductID       int64
	Name            string
	SKU             string
	Description     string
	Qty             float64
	Price           float64
	Total           float64
	Status          ItemStatus
	Warranty        string
	ReservationDays int
	Image           string
}

// Payment is one money movement against an invoice. Refunds are negative
// amounts, not a separate entity.
type Payment struct {
	ID        int64
	InvoiceID int64
	Amount    float64
	Date      time.Time
	Method    string
	UserID    int64
	Comment   string
}

// MethodConsignment is the payment method treated as money-involved even
// though no cash moved yet; it blocks a switch to fictive.
const MethodConsignment = "consignment"

var (
	// ErrNotFound indicates an unknown invoice id.
	ErrNotFound = errors.New("invoices: not found")
	// ErrNoItems indicates an empty item list after filtering blanks.
	ErrNoItems = errors.New("invoices: at least one product is required")
	// ErrForbidden indicates an edit of a completed invoice without elevated privilege.
	ErrForbidden = errors.New("invoices: editing a completed invoice is not allowed")
	// ErrNoWriteAccess indicates a mutation by an actor without write privilege.
	ErrNoWriteAccess = errors.New("invoices: write access required")
	// ErrPaymentsPreventFictive indicates a fictive request while money is involved.
	ErrPaymentsPreventFictive = errors.New("invoices: cannot set invoice to fictive when payments exist")
	// ErrNoReservedItems indicates mark-sold on an invoice with no reserved lines.
	ErrNoReservedItems = errors.New("invoices: no reserved items found to mark as sold")
	// ErrInvalidStatus indicates a toggle target outside standard/fictive.
	ErrInvalidStatus = errors.New("invoices: status must be standard or fictive")
)

// StockError carries the per-line violations of a failed stock validation.
type StockError struct {
	Violations []reservation.Violation
}

func (e *StockError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "invoices: stock validation failed: " + strings.Join(msgs, "; ")
}

// ReconciliationError reports a ledger write that failed after the invoice
// transaction already committed. The two stores may have diverged, so this
// must be alerted on rather than treated as an ordinary rejection.
type ReconciliationError struct {
	HolderID int64
	Err      error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("invoices: ledger reconciliation failed for invoice %d: %v", e.HolderID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
