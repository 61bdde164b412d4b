package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

// ExchangeRates maps a target currency to its conversion rate from the
// cart currency. Rates are supplied by the host; the engine never
// computes them. A missing rate defaults to 1.
type ExchangeRates map[domain.Currency]decimal.Decimal

// CheckoutResult is everything the ledger store needs to persist one
// sale: the expanded, discount-allocated row set replicated per
// supported currency, plus the usage increments (one per promotion or
// combo line) and the stock decrements the store must apply.
type CheckoutResult struct {
	Currency        domain.Currency
	Rows            []domain.SaleRow
	RowsByCurrency  map[domain.Currency][]domain.SaleRow
	UsageIncrements []domain.UsageIncrement
	StockDecrements map[string]int
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	ManualDiscount  decimal.Decimal
	Total           decimal.Decimal
}

// Checkout re-validates every stock invariant against the freshest
// snapshot, expands combo lines, allocates the manual discount, and
// builds the persistable result. On a stock conflict the cart is left
// untouched so the operator can adjust and retry. The caller clears the
// cart only after the external store confirms persistence.
func (c *Cart) Checkout(snapshot StockSnapshot, rates ExchangeRates) (CheckoutResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	consumed := c.consumptionLocked()
	conflicts := make([]InsufficientStockError, 0)
	for _, productID := range sortedKeys(consumed) {
		if consumed[productID] > snapshot[productID] {
			conflicts = append(conflicts, InsufficientStockError{
				ProductID: productID,
				Requested: consumed[productID],
				Available: snapshot[productID],
			})
		}
	}
	if len(conflicts) > 0 {
		return CheckoutResult{}, &StockConflictError{Conflicts: conflicts}
	}

	rows, err := ExpandLines(c.lines, c.combos)
	if err != nil {
		return CheckoutResult{}, err
	}

	totals := c.totalsLocked()
	if totals.ManualDiscount.GreaterThan(totals.Total) {
		return CheckoutResult{}, &DiscountExceedsTotalError{Discount: totals.ManualDiscount, Total: totals.Total}
	}

	rows, err = AllocateDiscount(rows, totals.ManualDiscount)
	if err != nil {
		return CheckoutResult{}, err
	}

	byCurrency := make(map[domain.Currency][]domain.SaleRow, len(domain.SupportedCurrencies()))
	for _, currency := range domain.SupportedCurrencies() {
		if currency == c.currency {
			byCurrency[currency] = rows
			continue
		}
		rate, ok := rates[currency]
		if !ok {
			rate = decimal.NewFromInt(1)
		}
		byCurrency[currency] = convertRows(rows, rate)
	}

	increments := make([]domain.UsageIncrement, 0, len(c.lines))
	for _, line := range c.lines {
		switch line.Kind {
		case domain.LinePromotion:
			increments = append(increments, domain.UsageIncrement{Kind: domain.LinePromotion, EntityID: line.PromotionID})
		case domain.LineCombo:
			increments = append(increments, domain.UsageIncrement{Kind: domain.LineCombo, EntityID: line.ComboID})
		}
	}

	return CheckoutResult{
		Currency:        c.currency,
		Rows:            rows,
		RowsByCurrency:  byCurrency,
		UsageIncrements: increments,
		StockDecrements: consumed,
		Subtotal:        totals.Subtotal,
		Discount:        totals.Discount,
		ManualDiscount:  totals.ManualDiscount,
		Total:           totals.Total,
	}, nil
}

// consumptionLocked builds the per-product consumed quantity map across
// every line, combo constituents included.
func (c *Cart) consumptionLocked() map[string]int {
	consumed := make(map[string]int)
	for _, line := range c.lines {
		switch line.Kind {
		case domain.LineProduct, domain.LinePromotion:
			consumed[line.ProductID] += line.Quantity
		case domain.LineCombo:
			combo, ok := c.combos[line.ComboID]
			if !ok {
				continue
			}
			for _, item := range combo.Items {
				consumed[item.ProductID] += item.Quantity * line.Quantity
			}
		}
	}
	return consumed
}

func convertRows(rows []domain.SaleRow, rate decimal.Decimal) []domain.SaleRow {
	out := make([]domain.SaleRow, len(rows))
	for i, row := range rows {
		row.UnitPrice = row.UnitPrice.Mul(rate)
		row.Subtotal = row.Subtotal.Mul(rate)
		row.Discount = row.Discount.Mul(rate)
		row.Total = row.Total.Mul(rate)
		row.ManualDiscount = row.ManualDiscount.Mul(rate)
		out[i] = row
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
