package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInactiveEntity  = errors.New("entity is not active")
	ErrUnknownCurrency = errors.New("unsupported currency")
	ErrPriceUnavailable = errors.New("no price for currency")

	// ErrCurrencyLocked: currency cannot change once the cart has lines,
	// because every resolved unit price depends on it. Clear or check out
	// first.
	ErrCurrencyLocked = errors.New("currency locked while cart has lines")
)

// InsufficientStockError reports a mutation that would overdraw a
// product's available stock. Available is the maximum quantity still
// obtainable for the offending product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// PromotionQuantityError reports a promotion line quantity outside the
// [min, max] band. Max is nil when the promotion has no upper bound.
type PromotionQuantityError struct {
	PromotionID string
	Min         int
	Max         *int
	Requested   int
}

func (e *PromotionQuantityError) Error() string {
	if e.Max != nil {
		return fmt.Sprintf("promotion %s quantity %d outside [%d, %d]", e.PromotionID, e.Requested, e.Min, *e.Max)
	}
	return fmt.Sprintf("promotion %s quantity %d below minimum %d", e.PromotionID, e.Requested, e.Min)
}

// LineLimitError reports that a sale already holds the maximum number of
// lines allowed for one promotion or combo.
type LineLimitError struct {
	EntityID string
	Limit    int
}

func (e *LineLimitError) Error() string {
	return fmt.Sprintf("per-sale line limit %d reached for %s", e.Limit, e.EntityID)
}

// GlobalUsageError reports that a promotion or combo has exhausted its
// lifetime usage cap.
type GlobalUsageError struct {
	EntityID string
}

func (e *GlobalUsageError) Error() string {
	return fmt.Sprintf("global usage limit reached for %s", e.EntityID)
}

// DiscountExceedsTotalError reports a manual discount larger than the
// pre-discount sale total.
type DiscountExceedsTotalError struct {
	Discount decimal.Decimal
	Total    decimal.Decimal
}

func (e *DiscountExceedsTotalError) Error() string {
	return fmt.Sprintf("manual discount %s exceeds sale total %s", e.Discount, e.Total)
}

// StockConflictError is raised only at the final checkout re-validation,
// when a concurrent sale consumed stock after the cart was built. The
// cart is left unmodified; the user adjusts and retries.
type StockConflictError struct {
	Conflicts []InsufficientStockError
}

func (e *StockConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return fmt.Sprintf("checkout stock conflict: %s", e.Conflicts[0].Error())
	}
	return fmt.Sprintf("checkout stock conflict on %d products", len(e.Conflicts))
}
