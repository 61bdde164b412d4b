package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

func TestCheckoutDetectsStaleSnapshot(t *testing.T) {
	cart := mustCart(t)
	buildSnapshot := StockSnapshot{"p1": 10}
	if _, err := cart.AddProduct(buildSnapshot, testProduct("p1", 1000, 2000), 7, ModeSale); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Another terminal sold 5 units since the cart was built.
	_, err := cart.Checkout(StockSnapshot{"p1": 5}, nil)
	var conflictErr *StockConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected StockConflictError, got %v", err)
	}
	if len(conflictErr.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflictErr.Conflicts))
	}
	c := conflictErr.Conflicts[0]
	if c.ProductID != "p1" || c.Requested != 7 || c.Available != 5 {
		t.Fatalf("unexpected conflict: %+v", c)
	}

	// Conflict leaves the cart intact for the operator to adjust.
	if got := len(cart.Lines()); got != 1 {
		t.Fatalf("expected cart untouched, got %d lines", got)
	}

	if _, err := cart.Checkout(StockSnapshot{"p1": 7}, nil); err != nil {
		t.Fatalf("checkout after restock: %v", err)
	}
}

func TestCheckoutBuildsFullResult(t *testing.T) {
	cart := mustCart(t)
	snapshot := StockSnapshot{"beer": 50, "vodka": 10, "energy": 20}

	if _, err := cart.AddProduct(snapshot, testProduct("beer", 1100, 3000), 2, ModeSale); err != nil {
		t.Fatalf("add product: %v", err)
	}
	promo := testPromotion("pr1", "beer", 3000, 2500, 3, nil)
	if _, err := cart.AddPromotion(snapshot, promo, testProduct("beer", 1100, 3000)); err != nil {
		t.Fatalf("add promotion: %v", err)
	}
	combo := testCombo("c1", 18000, 21500, []domain.ComboItem{
		{ProductID: "vodka", Quantity: 1},
		{ProductID: "energy", Quantity: 2},
	})
	if _, err := cart.AddCombo(snapshot, combo); err != nil {
		t.Fatalf("add combo: %v", err)
	}
	if err := cart.SetManualDiscount(ManualDiscount{Kind: DiscountAmount, Value: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("manual discount: %v", err)
	}

	rates := ExchangeRates{domain.CurrencyUSD: decimal.RequireFromString("0.001")}
	result, err := cart.Checkout(snapshot, rates)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// product 6000 + promotion 9000 + combo 21500.
	if !result.Subtotal.Equal(decimal.NewFromInt(36500)) {
		t.Fatalf("expected subtotal 36500, got %s", result.Subtotal)
	}
	// promotion 1500 + combo 3500.
	if !result.Discount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected discount 5000, got %s", result.Discount)
	}
	if !result.Total.Equal(decimal.NewFromInt(31500)) {
		t.Fatalf("expected total 31500, got %s", result.Total)
	}
	if !result.ManualDiscount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected manual discount 1000, got %s", result.ManualDiscount)
	}

	// product row, promotion row, two combo constituent rows.
	if len(result.Rows) != 4 {
		t.Fatalf("expected 4 expanded rows, got %d", len(result.Rows))
	}

	allocated := decimal.Zero
	for _, row := range result.Rows {
		allocated = allocated.Add(row.ManualDiscount)
	}
	if !allocated.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected allocation to conserve 1000, got %s", allocated)
	}

	if result.StockDecrements["beer"] != 5 {
		t.Fatalf("expected 5 beers consumed, got %d", result.StockDecrements["beer"])
	}
	if result.StockDecrements["vodka"] != 1 || result.StockDecrements["energy"] != 2 {
		t.Fatalf("unexpected combo decrements: %+v", result.StockDecrements)
	}

	if len(result.UsageIncrements) != 2 {
		t.Fatalf("expected increments for promotion and combo, got %+v", result.UsageIncrements)
	}

	usd, ok := result.RowsByCurrency[domain.CurrencyUSD]
	if !ok {
		t.Fatalf("expected USD row replica")
	}
	if len(usd) != len(result.Rows) {
		t.Fatalf("expected same row count per currency")
	}
	if !usd[0].Subtotal.Equal(result.Rows[0].Subtotal.Mul(decimal.RequireFromString("0.001"))) {
		t.Fatalf("expected USD rows converted by rate, got %s", usd[0].Subtotal)
	}
	ars, ok := result.RowsByCurrency[domain.CurrencyARS]
	if !ok || !ars[0].Subtotal.Equal(result.Rows[0].Subtotal) {
		t.Fatalf("expected cart currency rows verbatim")
	}
}

func TestCheckoutDoesNotClearCart(t *testing.T) {
	cart := mustCart(t)
	snapshot := StockSnapshot{"p1": 10}
	if _, err := cart.AddProduct(snapshot, testProduct("p1", 1000, 2000), 2, ModeSale); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := cart.Checkout(snapshot, nil); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	// Persistence confirmation is the caller's job; until then the cart
	// must survive so a failed write can be retried.
	if got := len(cart.Lines()); got != 1 {
		t.Fatalf("expected cart preserved after checkout, got %d lines", got)
	}
}

func TestConsumedQuantityCountsComboConstituents(t *testing.T) {
	combos := map[string]domain.CatalogCombo{
		"c1": testCombo("c1", 100, 150, []domain.ComboItem{
			{ProductID: "a", Quantity: 2},
			{ProductID: "b", Quantity: 1},
		}),
	}
	lines := []domain.CartLine{
		{ID: "l1", Kind: domain.LineProduct, ProductID: "a", Quantity: 3},
		{ID: "l2", Kind: domain.LineCombo, ComboID: "c1", Quantity: 2},
	}

	if got := ConsumedQuantity(lines, combos, "a", ""); got != 7 {
		t.Fatalf("expected 7 units of a, got %d", got)
	}
	if got := ConsumedQuantity(lines, combos, "b", ""); got != 2 {
		t.Fatalf("expected 2 units of b, got %d", got)
	}
	if got := ConsumedQuantity(lines, combos, "a", "l1"); got != 4 {
		t.Fatalf("expected 4 units of a excluding l1, got %d", got)
	}

	snapshot := StockSnapshot{"a": 10, "b": 1}
	if got := AvailableQuantity(snapshot, lines, combos, "a", ""); got != 3 {
		t.Fatalf("expected availability 3, got %d", got)
	}
	if got := AvailableQuantity(snapshot, lines, combos, "b", ""); got != -1 {
		t.Fatalf("expected negative availability to be reported, got %d", got)
	}
}
