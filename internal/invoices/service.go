package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-trade/meridian/internal/customers"
	"github.com/meridian-trade/meridian/internal/shared"
)

// Store is the persistence surface the service drives.
type Store interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	Update(ctx context.Context, inv Invoice) error
	Delete(ctx context.Context, id int64) error
	MarkItemsSold(ctx context.Context, id int64, saleDate *time.Time) error
	NumberExists(ctx context.Context, number string, excludeID int64) (bool, error)
	NextNumber(ctx context.Context, now time.Time) (string, error)
}

// CustomerDirectory resolves buyer details to a stable customer id.
type CustomerDirectory interface {
	Sync(ctx context.Context, buyer customers.Buyer) (int64, error)
}

// Locker serializes the validate/persist/reconcile window per product.
type Locker interface {
	LockProducts(ctx context.Context, productIDs []int64) (func(), error)
}

// AuditPort records who did what. Failures are logged, never fatal.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Draft is the client-supplied shape of an invoice write. Lifecycle, totals
// and sale date are never taken from the client; the service derives them
// all. Status is consulted only as intent: asking for fictive while the
// payments compute standard rejects the update instead of silently keeping
// the document standard.
type Draft struct {
	Number      string
	Status      CommercialStatus
	Buyer       customers.Buyer
	Items       []Item
	Payments    []Payment
	GeneralNote string
	SoldDate    *time.Time
}

// Service orchestrates the invoice lifecycle: it derives statuses and dates
// from payments and items, guards edits, persists the document and keeps the
// reservation ledger consistent with the reserved lines.
type Service struct {
	repo      Store
	directory CustomerDirectory
	ledger    LedgerPort
	locker    Locker
	audit     AuditPort
	logger    *slog.Logger
	now       shared.Clock
}

// NewService constructs the service. audit may be nil; clock defaults to the
// system clock.
func NewService(repo Store, directory CustomerDirectory, ledger LedgerPort, locker Locker, audit AuditPort, logger *slog.Logger, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		ledger:    ledger,
		locker:    locker,
		audit:     audit,
		logger:    logger,
		now:       clock,
	}
}

// Get returns a single invoice.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoices matching the filter with the unpaginated total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

// NextNumber exposes number generation for form prefill.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	return s.repo.NextNumber(ctx, s.now())
}

// Create derives the invoice from the draft, validates stock when real money
// is involved, persists it and installs its reservations. The per-product
// lock covers validation through reconciliation so two concurrent creates
// cannot jointly oversell a product.
func (s *Service) Create(ctx context.Context, actor shared.Actor, draft Draft) (*Invoice, error) {
	if !actor.CanWrite {
		return nil, ErrNoWriteAccess
	}
	now := s.now()
	customerID, err := s.directory.Sync(ctx, draft.Buyer)
	if err != nil {
		return nil, err
	}

	payments := FilterPayments(draft.Payments, now)
	status := DetermineCommercialStatus(payments)
	items := NormalizeItems(draft.Items, status)
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	number, err := s.resolveNumber(ctx, draft.Number, 0, now)
	if err != nil {
		return nil, err
	}

	inv := Invoice{
		Number:      number,
		CustomerID:  customerID,
		Status:      status,
		Lifecycle:   CalculateLifecycleStatus(status, items),
		TotalAmount: CalculateTotal(items),
		SaleDate:    CalculateSaleDate(status, payments, now),
		SoldDate:    draft.SoldDate,
		AuthorID:    actor.ID,
		GeneralNote: draft.GeneralNote,
		Items:       items,
		Payments:    payments,
	}

	unlock, err := s.lock(ctx, productIDs(items))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if status == StatusStandard {
		if err := s.checkStock(ctx, items, 0); err != nil {
			return nil, err
		}
	}

	id, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}

	if err := ReconcileReservations(ctx, s.ledger, id, nil, items); err != nil {
		rerr := &ReconciliationError{HolderID: id, Err: err}
		s.logger.Error("reservation reconcile failed after create", "invoice_id", id, "error", err)
		return nil, rerr
	}

	s.record(ctx, actor, "invoice.create", id, map[string]any{"number": number, "status": string(status)})
	return s.repo.Get(ctx, id)
}

// Update replaces the invoice's content with the draft, re-deriving every
// calculated field and moving the ledger from the old reserved demand to the
// new one. Completed invoices require the force-edit privilege.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, draft Draft) (*Invoice, error) {
	if !actor.CanWrite {
		return nil, ErrNoWriteAccess
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Lifecycle == LifecycleCompleted && !actor.CanForceEdit {
		return nil, ErrForbidden
	}

	now := s.now()
	customerID, err := s.directory.Sync(ctx, draft.Buyer)
	if err != nil {
		return nil, err
	}

	payments := FilterPayments(draft.Payments, now)
	status := DetermineCommercialStatus(payments)
	if draft.Status == StatusFictive && status == StatusStandard {
		return nil, ErrPaymentsPreventFictive
	}
	items := NormalizeItems(draft.Items, status)
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	number := draft.Number
	if number == "" {
		number = existing.Number
	}
	if number != existing.Number {
		taken, err := s.repo.NumberExists(ctx, number, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNumberConflict
		}
	}

	updated := Invoice{
		ID:          id,
		Number:      number,
		CustomerID:  customerID,
		Status:      status,
		Lifecycle:   CalculateLifecycleStatus(status, items),
		TotalAmount: CalculateTotal(items),
		SaleDate:    s.resolveSaleDate(existing, status, payments, now),
		SoldDate:    draft.SoldDate,
		AuthorID:    existing.AuthorID,
		GeneralNote: draft.GeneralNote,
		Items:       items,
		Payments:    payments,
	}

	unlock, err := s.lock(ctx, productIDs(existing.Items, items))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if status == StatusStandard {
		// The invoice's own live reservations are excluded so re-saving the
		// same quantities always passes.
		if err := s.checkStock(ctx, items, id); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	if err := ReconcileReservations(ctx, s.ledger, id, existing.Items, items); err != nil {
		rerr := &ReconciliationError{HolderID: id, Err: err}
		s.logger.Error("reservation reconcile failed after update", "invoice_id", id, "error", err)
		return nil, rerr
	}

	s.record(ctx, actor, "invoice.update", id, map[string]any{"number": number, "status": string(status)})
	return s.repo.Get(ctx, id)
}

// Delete removes the invoice and frees every reservation it held. Completed
// invoices require the force-edit privilege.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if !actor.CanWrite {
		return ErrNoWriteAccess
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Lifecycle == LifecycleCompleted && !actor.CanForceEdit {
		return ErrForbidden
	}

	unlock, err := s.lock(ctx, productIDs(existing.Items))
	if err != nil {
		return err
	}
	defer unlock()

	// Reservations go first: a failed row delete leaves an invoice without
	// holds, which a re-save repairs, whereas orphaned holds would block
	// stock for nobody.
	if err := s.ledger.PurgeHolder(ctx, id); err != nil {
		rerr := &ReconciliationError{HolderID: id, Err: err}
		s.logger.Error("reservation purge failed before delete", "invoice_id", id, "error", err)
		return rerr
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.record(ctx, actor, "invoice.delete", id, map[string]any{"number": existing.Number})
	return nil
}

// ToggleStatus flips the document between standard and fictive. Item rows are
// never touched: the flip only changes whether they count toward the ledger,
// so a later flip back restores the same reservations. Switching to fictive
// is blocked while money is involved: any positive non-consignment payment,
// or any consignment payment at all.
func (s *Service) ToggleStatus(ctx context.Context, actor shared.Actor, id int64, target CommercialStatus) (*Invoice, error) {
	if !actor.CanWrite {
		return nil, ErrNoWriteAccess
	}
	if target != StatusStandard && target != StatusFictive {
		return nil, ErrInvalidStatus
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == existing.Status {
		return existing, nil
	}
	if target == StatusFictive {
		if err := paymentsAllowFictive(existing.Payments); err != nil {
			return nil, err
		}
	}

	now := s.now()
	updated := *existing
	updated.Status = target
	updated.Lifecycle = CalculateLifecycleStatus(target, existing.Items)
	updated.SaleDate = s.resolveSaleDate(existing, target, existing.Payments, now)

	unlock, err := s.lock(ctx, productIDs(existing.Items))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if target == StatusStandard {
		if err := s.checkStock(ctx, existing.Items, id); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	// The reconciler sees the items as-if under each status: the fictive side
	// contributes nothing, so activating installs the reserved lines' holds
	// and deactivating releases them, with the rows themselves unchanged.
	var oldSnapshot, newSnapshot []Item
	if existing.Status == StatusStandard {
		oldSnapshot = existing.Items
	}
	if target == StatusStandard {
		newSnapshot = existing.Items
	}
	if err := ReconcileReservations(ctx, s.ledger, id, oldSnapshot, newSnapshot); err != nil {
		rerr := &ReconciliationError{HolderID: id, Err: err}
		s.logger.Error("reservation reconcile failed after toggle", "invoice_id", id, "error", err)
		return nil, rerr
	}
	if target == StatusFictive {
		// Deactivation also drops any hold the item diff did not cover.
		if err := s.ledger.PurgeHolder(ctx, id); err != nil {
			rerr := &ReconciliationError{HolderID: id, Err: err}
			s.logger.Error("reservation purge failed after toggle", "invoice_id", id, "error", err)
			return nil, rerr
		}
	}

	s.record(ctx, actor, "invoice.toggle_status", id, map[string]any{"status": string(target)})
	return s.repo.Get(ctx, id)
}

// MarkSold completes the sale: every reserved line becomes sold, the invoice
// becomes completed, and the held stock is released back to the ledger (the
// goods are gone, not held).
func (s *Service) MarkSold(ctx context.Context, actor shared.Actor, id int64) (*Invoice, error) {
	if !actor.CanWrite {
		return nil, ErrNoWriteAccess
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reserved := 0
	for _, item := range existing.Items {
		if item.Status == ItemReserved {
			reserved++
		}
	}
	if reserved == 0 {
		return nil, ErrNoReservedItems
	}

	unlock, err := s.lock(ctx, productIDs(existing.Items))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var saleDate *time.Time
	if existing.SaleDate == nil {
		now := s.now()
		saleDate = &now
	}
	if err := s.repo.MarkItemsSold(ctx, id, saleDate); err != nil {
		return nil, err
	}

	sold := make([]Item, len(existing.Items))
	copy(sold, existing.Items)
	for i := range sold {
		if sold[i].Status == ItemReserved {
			sold[i].Status = ItemSold
			sold[i].ReservationDays = 0
		}
	}
	if err := ReconcileReservations(ctx, s.ledger, id, existing.Items, sold); err != nil {
		rerr := &ReconciliationError{HolderID: id, Err: err}
		s.logger.Error("reservation release failed after mark-sold", "invoice_id", id, "error", err)
		return nil, rerr
	}

	s.record(ctx, actor, "invoice.mark_sold", id, map[string]any{"number": existing.Number})
	return s.repo.Get(ctx, id)
}

// resolveNumber returns the draft number unless it is blank or already taken;
// either way the next free number in the series is issued instead.
func (s *Service) resolveNumber(ctx context.Context, requested string, excludeID int64, now time.Time) (string, error) {
	if requested != "" {
		taken, err := s.repo.NumberExists(ctx, requested, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return requested, nil
		}
	}
	return s.repo.NextNumber(ctx, now)
}

// resolveSaleDate applies the overwrite policy: fictive always clears the
// date; coming out of fictive, or having no date yet, re-derives it from the
// payments; a standard invoice that already carries a date keeps it — later
// edits to items or payments never move an already-dated sale.
func (s *Service) resolveSaleDate(existing *Invoice, status CommercialStatus, payments []Payment, now time.Time) *time.Time {
	if status != StatusStandard {
		return nil
	}
	if existing.Status == StatusStandard && existing.SaleDate != nil {
		return existing.SaleDate
	}
	return CalculateSaleDate(status, payments, now)
}

func (s *Service) checkStock(ctx context.Context, items []Item, excludeHolderID int64) error {
	violations, err := s.ledger.ValidateStock(ctx, stockLines(items), excludeHolderID)
	if err != nil {
		return fmt.Errorf("invoices: validate stock: %w", err)
	}
	if len(violations) > 0 {
		return &StockError{Violations: violations}
	}
	return nil
}

func (s *Service) lock(ctx context.Context, ids []int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.LockProducts(ctx, ids)
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", invoiceID),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Warn("audit record failed", "action", action, "invoice_id", invoiceID, "error", err)
	}
}

// paymentsAllowFictive rejects the switch when any payment still represents
// money: a positive amount, or a consignment row of any amount (consignment
// commits goods even before cash moves).
func paymentsAllowFictive(payments []Payment) error {
	for _, p := range payments {
		if p.Method == MethodConsignment {
			return ErrPaymentsPreventFictive
		}
		if p.Amount > 0 {
			return ErrPaymentsPreventFictive
		}
	}
	return nil
}
