package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

func approxEqual(t *testing.T, got, want decimal.Decimal, context string) {
	t.Helper()
	tolerance := decimal.RequireFromString("0.000001")
	if got.Sub(want).Abs().GreaterThan(tolerance) {
		t.Fatalf("%s: got %s, want %s", context, got, want)
	}
}

func TestExpandPassesProductAndPromotionRowsThrough(t *testing.T) {
	lines := []domain.CartLine{
		{
			ID: "l1", Kind: domain.LineProduct, ProductID: "p1", Quantity: 2,
			UnitPrice: decimal.NewFromInt(3000), Subtotal: decimal.NewFromInt(6000), Discount: decimal.Zero,
		},
		{
			ID: "l2", Kind: domain.LinePromotion, ProductID: "p2", PromotionID: "pr1", Quantity: 3,
			UnitPrice: decimal.NewFromInt(2500), Subtotal: decimal.NewFromInt(9000), Discount: decimal.NewFromInt(1500),
		},
	}

	rows, err := ExpandLines(lines, nil)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Kind != domain.LineProduct || !rows[0].Total.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("unexpected product row: %+v", rows[0])
	}
	if rows[1].SourceID != "pr1" || !rows[1].Total.Equal(decimal.NewFromInt(7500)) {
		t.Fatalf("unexpected promotion row: %+v", rows[1])
	}
}

func TestExpandSpreadsComboPricesOverUnits(t *testing.T) {
	combo := testCombo("c1", 100, 150, []domain.ComboItem{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 1},
	})
	line := domain.CartLine{
		ID: "l1", Kind: domain.LineCombo, ComboID: "c1", Quantity: 1,
		UnitPrice: decimal.NewFromInt(100),
		Subtotal:  decimal.NewFromInt(150),
		Discount:  decimal.NewFromInt(50),
	}

	rows, err := ExpandLines([]domain.CartLine{line}, map[string]domain.CatalogCombo{"c1": combo})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 constituent rows, got %d", len(rows))
	}

	// totalUnits = 3: real unit 50, bundle unit 33.33...
	approxEqual(t, rows[0].Subtotal, decimal.NewFromInt(100), "row a subtotal")
	approxEqual(t, rows[0].Total, decimal.RequireFromString("66.666667"), "row a total")
	approxEqual(t, rows[1].Subtotal, decimal.NewFromInt(50), "row b subtotal")
	approxEqual(t, rows[1].Total, decimal.RequireFromString("33.333333"), "row b total")

	if rows[0].Quantity != 2 || rows[1].Quantity != 1 {
		t.Fatalf("unexpected quantities: %d, %d", rows[0].Quantity, rows[1].Quantity)
	}

	// Expansion must conserve the line's money exactly up to the spread.
	sumSubtotal := rows[0].Subtotal.Add(rows[1].Subtotal)
	sumTotal := rows[0].Total.Add(rows[1].Total)
	approxEqual(t, sumSubtotal, line.Subtotal, "subtotal conservation")
	approxEqual(t, sumTotal, line.Total(), "total conservation")
}

func TestExpandMultiBundleCombo(t *testing.T) {
	combo := testCombo("c1", 18000, 21500, []domain.ComboItem{
		{ProductID: "vodka", Quantity: 1},
		{ProductID: "energy", Quantity: 2},
	})
	line := domain.CartLine{
		ID: "l1", Kind: domain.LineCombo, ComboID: "c1", Quantity: 2,
		UnitPrice: decimal.NewFromInt(18000),
		Subtotal:  decimal.NewFromInt(43000),
		Discount:  decimal.NewFromInt(7000),
	}

	rows, err := ExpandLines([]domain.CartLine{line}, map[string]domain.CatalogCombo{"c1": combo})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if rows[0].Quantity != 2 || rows[1].Quantity != 4 {
		t.Fatalf("expected quantities scaled by bundles, got %d and %d", rows[0].Quantity, rows[1].Quantity)
	}
	sumTotal := rows[0].Total.Add(rows[1].Total)
	approxEqual(t, sumTotal, decimal.NewFromInt(36000), "total conservation across bundles")
}

func TestExpandFailsOnMissingCombo(t *testing.T) {
	line := domain.CartLine{ID: "l1", Kind: domain.LineCombo, ComboID: "ghost", Quantity: 1,
		UnitPrice: decimal.NewFromInt(10), Subtotal: decimal.NewFromInt(12)}
	if _, err := ExpandLines([]domain.CartLine{line}, map[string]domain.CatalogCombo{}); err == nil {
		t.Fatalf("expected error for missing combo definition")
	}
}
