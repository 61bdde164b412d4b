package engine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

func rowsWithTotals(totals ...int64) []domain.SaleRow {
	rows := make([]domain.SaleRow, len(totals))
	for i, total := range totals {
		rows[i] = domain.SaleRow{
			ProductID: "p",
			Kind:      domain.LineProduct,
			Quantity:  1,
			Subtotal:  decimal.NewFromInt(total),
			Total:     decimal.NewFromInt(total),
		}
	}
	return rows
}

func TestAllocateProportionalShares(t *testing.T) {
	rows, err := AllocateDiscount(rowsWithTotals(6000, 3000, 1000), decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if !rows[0].ManualDiscount.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected 600 on first row, got %s", rows[0].ManualDiscount)
	}
	if !rows[1].ManualDiscount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected 300 on second row, got %s", rows[1].ManualDiscount)
	}
	if !rows[2].ManualDiscount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 on last row, got %s", rows[2].ManualDiscount)
	}
}

func TestAllocateLastRowAbsorbsRounding(t *testing.T) {
	discount := decimal.NewFromInt(100)
	rows, err := AllocateDiscount(rowsWithTotals(100, 100, 100), discount)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.ManualDiscount)
	}
	if !sum.Equal(discount) {
		t.Fatalf("expected exact conservation, allocated %s of %s", sum, discount)
	}
	// 100/3 rounds to 33.33 twice, last row takes 33.34.
	if !rows[2].ManualDiscount.Equal(decimal.RequireFromString("33.34")) {
		t.Fatalf("expected last row 33.34, got %s", rows[2].ManualDiscount)
	}
}

func TestAllocateZeroDiscountLeavesRowsUntouched(t *testing.T) {
	rows, err := AllocateDiscount(rowsWithTotals(500, 700), decimal.Zero)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for i, row := range rows {
		if !row.ManualDiscount.IsZero() {
			t.Fatalf("row %d: expected zero manual discount, got %s", i, row.ManualDiscount)
		}
	}
}

func TestAllocateRejectsDiscountAboveBase(t *testing.T) {
	_, err := AllocateDiscount(rowsWithTotals(100, 200), decimal.NewFromInt(301))
	var exceedErr *DiscountExceedsTotalError
	if !errors.As(err, &exceedErr) {
		t.Fatalf("expected DiscountExceedsTotalError, got %v", err)
	}
}

func TestAllocateConservationUnderRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(8)
		totals := make([]int64, n)
		var base int64
		for i := range totals {
			totals[i] = int64(1 + rng.Intn(10000))
			base += totals[i]
		}
		discount := decimal.New(int64(rng.Intn(int(base*100))), -2)

		rows, err := AllocateDiscount(rowsWithTotals(totals...), discount)
		if err != nil {
			t.Fatalf("round %d: allocate: %v", round, err)
		}
		sum := decimal.Zero
		for _, row := range rows {
			sum = sum.Add(row.ManualDiscount)
		}
		if !sum.Equal(discount) {
			t.Fatalf("round %d: allocated %s of %s", round, sum, discount)
		}
	}
}
