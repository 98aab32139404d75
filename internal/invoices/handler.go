package invoices

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-trade/meridian/internal/customers"
	"github.com/meridian-trade/meridian/internal/platform/httpx"
	"github.com/meridian-trade/meridian/internal/shared"
)

// Handler exposes the invoice lifecycle over REST.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/next-number", h.nextNumber)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/toggle-status", h.toggleStatus)
			r.Post("/mark-sold", h.markSold)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:        q.Get("status"),
		Lifecycle:     q.Get("lifecycle"),
		Search:        q.Get("search"),
		PaymentMethod: q.Get("paymentMethod"),
	}
	if v, err := strconv.ParseInt(q.Get("authorId"), 10, 64); err == nil {
		filter.AuthorID = v
	}
	if t, ok := parseFlexibleTime(q.Get("dateFrom")); ok {
		filter.DateFrom = &t
	}
	if t, ok := parseFlexibleTime(q.Get("dateTo")); ok {
		// A bare calendar date means "through the end of that day".
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			t = t.Add(24*time.Hour - time.Second)
		}
		filter.DateTo = &t
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	invoices, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := ListResponse{
		Invoices: make([]InvoiceResponse, 0, len(invoices)),
		Total:    total,
		Page:     max(filter.Page, 1),
		PerPage:  filter.PerPage,
	}
	for i := range invoices {
		resp.Invoices = append(resp.Invoices, ToResponse(&invoices[i]))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(inv))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Create(r.Context(), shared.ActorFrom(r.Context()), req.ToDraft())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(inv))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Update(r.Context(), shared.ActorFrom(r.Context()), id, req.ToDraft())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(inv))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFrom(r.Context()), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (h *Handler) toggleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	inv, err := h.service.ToggleStatus(r.Context(), shared.ActorFrom(r.Context()), id, CommercialStatus(body.Status))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(inv))
}

func (h *Handler) markSold(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkSold(r.Context(), shared.ActorFrom(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(inv))
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.service.NextNumber(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoiceNumber": number})
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (*InvoiceRequest, bool) {
	var req InvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return nil, false
	}
	req.Normalize()
	if err := h.validate.Struct(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}
	return &req, true
}

// respondError translates domain errors to problem responses. Stock failures
// carry the per-product violations; a reconciliation failure is a distinct
// 500 because the stores may have diverged and someone has to look.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *StockError
	var reconcileErr *ReconciliationError

	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invoice not found")
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNoWriteAccess):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNoItems),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrPaymentsPreventFictive),
		errors.Is(err, ErrNoReservedItems),
		errors.Is(err, customers.ErrMissingFields):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNumberConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Number", err.Error())
	case errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Problem(w, http.StatusServiceUnavailable, "Busy", "the products on this invoice are being updated, retry shortly")
	case errors.As(err, &stockErr):
		msgs := make([]string, len(stockErr.Violations))
		for i, v := range stockErr.Violations {
			msgs[i] = v.String()
		}
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Insufficient Stock",
			"not enough stock to reserve the requested quantities", msgs)
	case errors.As(err, &reconcileErr):
		h.logger.ErrorContext(r.Context(), "reservation ledger diverged", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Reservation Sync Failed",
			"the invoice was saved but its reservations could not be updated")
	default:
		h.logger.ErrorContext(r.Context(), "invoice request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
