package engine

import (
	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

// StockSnapshot is the externally owned stock-by-product-id map, injected
// into every validation so the engine stays a pure computation over it.
type StockSnapshot map[string]int

// ConsumedQuantity sums the units of one product committed across the
// given cart lines, including quantities nested inside combo bundles.
// Lines whose id equals excludeLineID are skipped so a line can be
// re-validated in place while its quantity changes.
func ConsumedQuantity(lines []domain.CartLine, combos map[string]domain.CatalogCombo, productID string, excludeLineID string) int {
	consumed := 0
	for _, line := range lines {
		if excludeLineID != "" && line.ID == excludeLineID {
			continue
		}
		switch line.Kind {
		case domain.LineProduct, domain.LinePromotion:
			if line.ProductID == productID {
				consumed += line.Quantity
			}
		case domain.LineCombo:
			combo, ok := combos[line.ComboID]
			if !ok {
				continue
			}
			for _, item := range combo.Items {
				if item.ProductID == productID {
					consumed += item.Quantity * line.Quantity
				}
			}
		}
	}
	return consumed
}

// AvailableQuantity is the catalog stock of a product minus what the
// cart already commits to it. May go negative when the snapshot shrank
// below prior commitments (another terminal sold first); callers must
// surface that shortfall, never clamp it.
func AvailableQuantity(snapshot StockSnapshot, lines []domain.CartLine, combos map[string]domain.CatalogCombo, productID string, excludeLineID string) int {
	return snapshot[productID] - ConsumedQuantity(lines, combos, productID, excludeLineID)
}
