package customers

import (
	"errors"
	"time"
)

// Customer is a buyer resolved by tax id. The invoice module only ever sees
// the resolved id.
type Customer struct {
	ID        int64
	Name      string
	TaxID     string
	Phone     string
	Email     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Buyer is the descriptor arriving with an invoice create/update request.
type Buyer struct {
	Name    string
	TaxID   string
	Phone   string
	Email   string
	Address string
}

var (
	// ErrNotFound indicates a missing customer row.
	ErrNotFound = errors.New("customers: not found")
	// ErrMissingFields indicates a buyer without name, tax id or phone.
	ErrMissingFields = errors.New("customers: buyer name, tax id and phone are required")
)

// Validate checks the required buyer fields.
func (b Buyer) Validate() error {
	if b.Name == "" || b.TaxID == "" || b.Phone == "" {
		return ErrMissingFields
	}
	return nil
}
