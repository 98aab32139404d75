package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-trade/meridian/internal/platform/httpx"
	"github.com/meridian-trade/meridian/internal/reservation"
)

// Handler exposes product lookups and stock maintenance.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	ledger *reservation.Ledger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, ledger *reservation.Ledger) *Handler {
	return &Handler{logger: logger, repo: repo, ledger: ledger}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/availability", h.availability)
			r.Put("/stock", h.adjustStock)
		})
	})
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Price       float64   `json:"price"`
	StockOnHand *float64  `json:"stockOnHand"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		SKU:         p.SKU,
		Price:       p.Price,
		StockOnHand: p.StockOnHand,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	products, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": out, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

// availability reports the live reservation picture for one product: how
// much stock exists, how much is withheld and how much a new invoice could
// still claim. Untracked products report null stock and availability.
func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	reserved, err := h.ledger.Reserved(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	available, err := h.ledger.Available(r.Context(), id, 0)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"productId":   id,
		"stockOnHand": product.StockOnHand,
		"reserved":    reserved,
		"available":   available,
	})
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var body struct {
		StockOnHand *float64 `json:"stockOnHand"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if body.StockOnHand != nil && *body.StockOnHand < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "stockOnHand cannot be negative")
		return
	}
	if err := h.repo.AdjustStock(r.Context(), id, body.StockOnHand); err != nil {
		h.respondError(w, err)
		return
	}
	product, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "product not found")
		return
	}
	h.logger.Error("product request failed", "error", err)
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
