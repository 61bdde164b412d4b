package engine

import (
	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

// AllocateDiscount distributes a manual discount across the expanded
// row set proportionally to each row's post-entity-discount total. Each
// share is rounded to 2 decimals except the last row, which absorbs the
// rounding remainder so the allocated sum equals the discount exactly.
func AllocateDiscount(rows []domain.SaleRow, discount decimal.Decimal) ([]domain.SaleRow, error) {
	out := make([]domain.SaleRow, len(rows))
	copy(out, rows)

	if discount.IsZero() || len(out) == 0 {
		return out, nil
	}

	base := decimal.Zero
	for _, row := range out {
		base = base.Add(row.Total)
	}
	if discount.GreaterThan(base) {
		return nil, &DiscountExceedsTotalError{Discount: discount, Total: base}
	}
	if base.IsZero() {
		return out, nil
	}

	allocated := decimal.Zero
	for i := range out {
		if i == len(out)-1 {
			out[i].ManualDiscount = discount.Sub(allocated)
			break
		}
		share := discount.Mul(out[i].Total).Div(base).Round(2)
		out[i].ManualDiscount = share
		allocated = allocated.Add(share)
	}
	return out, nil
}
