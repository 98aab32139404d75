package reservation

import "context"

// ValidateStock checks a candidate set of lines against availability,
// excluding the holder's own reservations. It is a pure read: the ledger is
// never mutated, so the caller can reject a whole operation before any write.
//
// Lines with status "none" never consume stock and are skipped. Untracked
// products pass unconditionally.
func (l *Ledger) ValidateStock(ctx context.Context, lines []Line, excludeHolderID int64) ([]Violation, error) {
	var violations []Violation
	for _, line := range lines {
		if line.Status == StatusNone || line.ProductID == 0 || line.Qty <= 0 {
			continue
		}
		available, err := l.Available(ctx, line.ProductID, excludeHolderID)
		if err != nil {
			return nil, err
		}
		if available == nil {
			continue
		}
		if line.Qty > *available {
			name, sku := line.Name, line.SKU
			if name == "" {
				name, sku, err = l.stock.Describe(ctx, line.ProductID)
				if err != nil {
					return nil, err
				}
			}
			violations = append(violations, Violation{
				ProductID: line.ProductID,
				Name:      name,
				SKU:       sku,
				Requested: line.Qty,
				Available: *available,
			})
		}
	}
	return violations, nil
}
