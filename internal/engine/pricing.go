package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

// PricingMode selects which side of a product's price pair applies.
// Admin-attributed sales are costed at purchase price rather than priced
// at sale price; this mirrors the venue's accounting convention, so the
// asymmetry is an explicit mode instead of a hidden role branch.
type PricingMode string

const (
	ModeSale PricingMode = "sale"
	ModeCost PricingMode = "cost"
)

// ModeForRole maps an operator role to a pricing mode.
func ModeForRole(role string) PricingMode {
	if role == domain.RoleAdmin {
		return ModeCost
	}
	return ModeSale
}

// ProductUnitPrice resolves the unit price of a bare product for one
// currency and mode. Pure function of its inputs.
func ProductUnitPrice(product domain.CatalogProduct, currency domain.Currency, mode PricingMode) (decimal.Decimal, error) {
	pair, ok := product.Prices[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("product %s: %w %s", product.ID, ErrPriceUnavailable, currency)
	}
	if mode == ModeCost {
		return pair.Purchase, nil
	}
	return pair.Sale, nil
}

// PromotionUnitPrice resolves a promotion's promotional and original
// unit prices for one currency. The original price feeds the line's
// discount computation.
func PromotionUnitPrice(promo domain.CatalogPromotion, currency domain.Currency) (promotional, original decimal.Decimal, err error) {
	price, ok := promo.Prices[currency]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("promotion %s: %w %s", promo.ID, ErrPriceUnavailable, currency)
	}
	return price.Promotional, price.Original, nil
}

// ComboUnitPrice resolves a combo's bundle price and real (sum-of-parts)
// price for one currency.
func ComboUnitPrice(combo domain.CatalogCombo, currency domain.Currency) (bundle, real decimal.Decimal, err error) {
	price, ok := combo.Prices[currency]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("combo %s: %w %s", combo.ID, ErrPriceUnavailable, currency)
	}
	return price.Combo, price.Real, nil
}
