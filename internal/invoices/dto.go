package invoices

import (
	"strings"
	"time"

	"github.com/meridian-trade/meridian/internal/customers"
)

// The wire layer is deliberately lenient: the legacy clients this API
// replaces send several spellings for the same field (qty/quantity,
// itemStatus/item_status/status, taxId/tax_id), so each payload carries the
// aliases and normalize() folds them into the canonical field before
// validation.

// InvoiceRequest is the write payload for create and update.
type InvoiceRequest struct {
	Number    string `json:"invoiceNumber"`
	NumberAlt string `json:"invoice_number"`

	// Status carries the client's explicit intent; the service still derives
	// the effective status from payments and rejects a fictive request that
	// the payments contradict.
	Status string `json:"status"`

	Buyer BuyerPayload `json:"buyer" validate:"required"`

	Items    []ItemPayload    `json:"items" validate:"required,min=1,dive"`
	Payments []PaymentPayload `json:"payments" validate:"dive"`

	GeneralNote    string `json:"generalNote"`
	GeneralNoteAlt string `json:"general_note"`

	SoldDate string `json:"soldDate"`
}

// BuyerPayload carries the customer details embedded in the invoice write.
type BuyerPayload struct {
	Name     string `json:"name" validate:"required"`
	TaxID    string `json:"taxId"`
	TaxIDAlt string `json:"tax_id"`
	Phone    string `json:"phone"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address"`
}

// ItemPayload is one product line on the wire.
type ItemPayload struct {
	ProductID    int64 `json:"productId"`
	ProductIDAlt int64 `json:"product_id"`

	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Description string `json:"description"`

	Qty      float64 `json:"qty" validate:"omitempty,gt=0"`
	Quantity float64 `json:"quantity"`

	Price float64 `json:"price" validate:"gte=0"`
	Total float64 `json:"total" validate:"gte=0"`

	Status       string `json:"itemStatus"`
	StatusSnake  string `json:"item_status"`
	StatusLegacy string `json:"status"`

	Warranty string `json:"warranty"`

	ReservationDays    int `json:"reservationDays" validate:"gte=0"`
	ReservationDaysAlt int `json:"reservation_days"`

	Image string `json:"image"`
}

// PaymentPayload is one money movement on the wire.
type PaymentPayload struct {
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Method    string  `json:"method"`
	UserID    int64   `json:"userId"`
	UserIDAlt int64   `json:"user_id"`
	Comment   string  `json:"comment"`
}

// Normalize folds the alias spellings into the canonical fields. Call before
// struct validation so the required tags see merged values.
func (r *InvoiceRequest) Normalize() {
	if r.Number == "" {
		r.Number = r.NumberAlt
	}
	if r.GeneralNote == "" {
		r.GeneralNote = r.GeneralNoteAlt
	}
	if r.Buyer.TaxID == "" {
		r.Buyer.TaxID = r.Buyer.TaxIDAlt
	}
	for i := range r.Items {
		item := &r.Items[i]
		if item.ProductID == 0 {
			item.ProductID = item.ProductIDAlt
		}
		if item.Qty == 0 {
			item.Qty = item.Quantity
		}
		if item.Status == "" {
			item.Status = item.StatusSnake
		}
		if item.Status == "" {
			item.Status = item.StatusLegacy
		}
		if item.ReservationDays == 0 {
			item.ReservationDays = item.ReservationDaysAlt
		}
	}
	for i := range r.Payments {
		if r.Payments[i].UserID == 0 {
			r.Payments[i].UserID = r.Payments[i].UserIDAlt
		}
	}
}

// ToDraft converts the normalized request into the service input. Item and
// payment level sanitation (blank names, epsilon amounts, status forcing)
// stays in the service derivations.
func (r *InvoiceRequest) ToDraft() Draft {
	draft := Draft{
		Number:      strings.TrimSpace(r.Number),
		Status:      CommercialStatus(strings.ToLower(strings.TrimSpace(r.Status))),
		GeneralNote: strings.TrimSpace(r.GeneralNote),
		Buyer: customers.Buyer{
			Name:    strings.TrimSpace(r.Buyer.Name),
			TaxID:   strings.TrimSpace(r.Buyer.TaxID),
			Phone:   strings.TrimSpace(r.Buyer.Phone),
			Email:   strings.TrimSpace(r.Buyer.Email),
			Address: strings.TrimSpace(r.Buyer.Address),
		},
	}
	if t, ok := parseFlexibleTime(r.SoldDate); ok {
		draft.SoldDate = &t
	}
	for _, p := range r.Items {
		draft.Items = append(draft.Items, Item{
			ProductID:       p.ProductID,
			Name:            strings.TrimSpace(p.Name),
			SKU:             strings.TrimSpace(p.SKU),
			Description:     p.Description,
			Qty:             p.Qty,
			Price:           p.Price,
			Total:           p.Total,
			Status:          ItemStatus(strings.ToLower(strings.TrimSpace(p.Status))),
			Warranty:        strings.TrimSpace(p.Warranty),
			ReservationDays: p.ReservationDays,
			Image:           sanitizeImageURL(p.Image),
		})
	}
	for _, p := range r.Payments {
		payment := Payment{
			Amount:  p.Amount,
			Method:  strings.ToLower(strings.TrimSpace(p.Method)),
			UserID:  p.UserID,
			Comment: strings.TrimSpace(p.Comment),
		}
		if t, ok := parseFlexibleTime(p.Date); ok {
			payment.Date = t
		}
		draft.Payments = append(draft.Payments, payment)
	}
	return draft
}

// parseFlexibleTime accepts RFC3339 or a bare calendar date.
func parseFlexibleTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sanitizeImageURL keeps only http(s) URLs; anything else is dropped rather
// than stored.
func sanitizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return ""
}

// InvoiceResponse is the read shape. displayStatus is derived on the way out
// and never stored.
type InvoiceResponse struct {
	ID              int64             `json:"id"`
	InvoiceNumber   string            `json:"invoiceNumber"`
	CustomerID      int64             `json:"customerId"`
	Status          string            `json:"status"`
	LifecycleStatus string            `json:"lifecycleStatus"`
	DisplayStatus   string            `json:"displayStatus"`
	TotalAmount     float64           `json:"totalAmount"`
	PaidAmount      float64           `json:"paidAmount"`
	BalanceDue      float64           `json:"balanceDue"`
	CreatedAt       time.Time         `json:"createdAt"`
	SaleDate        *time.Time        `json:"saleDate,omitempty"`
	SoldDate        *string           `json:"soldDate,omitempty"`
	AuthorID        int64             `json:"authorId"`
	GeneralNote     string            `json:"generalNote,omitempty"`
	Items           []ItemResponse    `json:"items"`
	Payments        []PaymentResponse `json:"payments"`
}

// ItemResponse is one line on the way out.
type ItemResponse struct {
	ID              int64   `json:"id"`
	ProductID       int64   `json:"productId"`
	Name            string  `json:"name"`
	SKU             string  `json:"sku,omitempty"`
	Description     string  `json:"description,omitempty"`
	Qty             float64 `json:"qty"`
	Price           float64 `json:"price"`
	Total           float64 `json:"total"`
	ItemStatus      string  `json:"itemStatus"`
	Warranty        string  `json:"warranty,omitempty"`
	ReservationDays int     `json:"reservationDays"`
	Image           string  `json:"image,omitempty"`
}

// PaymentResponse is one payment on the way out.
type PaymentResponse struct {
	ID      int64     `json:"id"`
	Amount  float64   `json:"amount"`
	Date    time.Time `json:"date"`
	Method  string    `json:"method"`
	UserID  int64     `json:"userId,omitempty"`
	Comment string    `json:"comment,omitempty"`
}

// ListResponse wraps a page of invoices.
type ListResponse struct {
	Invoices []InvoiceResponse `json:"invoices"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"perPage"`
}

// ToResponse maps the domain invoice onto the wire shape.
func ToResponse(inv *Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:              inv.ID,
		InvoiceNumber:   inv.Number,
		CustomerID:      inv.CustomerID,
		Status:          string(inv.Status),
		LifecycleStatus: string(inv.Lifecycle),
		DisplayStatus:   string(DisplayStatusOf(inv.Status, inv.Lifecycle, inv.Items)),
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		BalanceDue:      inv.TotalAmount - inv.PaidAmount,
		CreatedAt:       inv.CreatedAt,
		SaleDate:        inv.SaleDate,
		AuthorID:        inv.AuthorID,
		GeneralNote:     inv.GeneralNote,
		Items:           make([]ItemResponse, 0, len(inv.Items)),
		Payments:        make([]PaymentResponse, 0, len(inv.Payments)),
	}
	if inv.SoldDate != nil {
		d := inv.SoldDate.Format("2006-01-02")
		resp.SoldDate = &d
	}
	for _, item := range inv.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Name:            item.Name,
			SKU:             item.SKU,
			Description:     item.Description,
			Qty:             item.Qty,
			Price:           item.Price,
			Total:           item.Total,
			ItemStatus:      string(item.Status),
			Warranty:        item.Warranty,
			ReservationDays: item.ReservationDays,
			Image:           item.Image,
		})
	}
	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:      p.ID,
			Amount:  p.Amount,
			Date:    p.Date,
			Method:  p.Method,
			UserID:  p.UserID,
			Comment: p.Comment,
		})
	}
	return resp
}
