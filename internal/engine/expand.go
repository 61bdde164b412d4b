package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

// ExpandLines turns the cart line collection into ledger rows. Product
// and promotion lines pass through as single rows; each combo line of
// quantity Q emits one row per constituent with quantity Q × per-bundle
// units. The bundle and real prices are spread over the combo's total
// unit count so that expanded subtotals sum back to the line subtotal.
func ExpandLines(lines []domain.CartLine, combos map[string]domain.CatalogCombo) ([]domain.SaleRow, error) {
	rows := make([]domain.SaleRow, 0, len(lines))
	for _, line := range lines {
		switch line.Kind {
		case domain.LineProduct:
			rows = append(rows, domain.SaleRow{
				ProductID: line.ProductID,
				Kind:      domain.LineProduct,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				Subtotal:  line.Subtotal,
				Discount:  line.Discount,
				Total:     line.Total(),
			})

		case domain.LinePromotion:
			rows = append(rows, domain.SaleRow{
				ProductID: line.ProductID,
				Kind:      domain.LinePromotion,
				SourceID:  line.PromotionID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				Subtotal:  line.Subtotal,
				Discount:  line.Discount,
				Total:     line.Total(),
			})

		case domain.LineCombo:
			combo, ok := combos[line.ComboID]
			if !ok {
				return nil, fmt.Errorf("combo %s missing from catalog snapshot", line.ComboID)
			}
			expanded, err := expandComboLine(line, combo)
			if err != nil {
				return nil, err
			}
			rows = append(rows, expanded...)

		default:
			return nil, fmt.Errorf("unknown line kind %q", line.Kind)
		}
	}
	return rows, nil
}

func expandComboLine(line domain.CartLine, combo domain.CatalogCombo) ([]domain.SaleRow, error) {
	totalUnits := combo.TotalUnits()
	if totalUnits < 1 {
		return nil, fmt.Errorf("combo %s has no constituents", combo.ID)
	}

	// Per-unit spread of the bundle and real prices. Subtotal = real
	// price × quantity was fixed at line creation, so recover the real
	// bundle price from it rather than re-reading the catalog.
	q := decimal.NewFromInt(int64(line.Quantity))
	units := decimal.NewFromInt(int64(totalUnits))
	bundleUnit := line.UnitPrice.Div(units)
	realUnit := line.Subtotal.Div(q).Div(units)

	rows := make([]domain.SaleRow, 0, len(combo.Items))
	for _, item := range combo.Items {
		itemUnits := decimal.NewFromInt(int64(item.Quantity)).Mul(q)
		subtotal := realUnit.Mul(itemUnits)
		total := bundleUnit.Mul(itemUnits)
		rows = append(rows, domain.SaleRow{
			ProductID: item.ProductID,
			Kind:      domain.LineCombo,
			SourceID:  combo.ID,
			Quantity:  item.Quantity * line.Quantity,
			UnitPrice: bundleUnit,
			Subtotal:  subtotal,
			Discount:  subtotal.Sub(total),
			Total:     total,
		})
	}
	return rows, nil
}
