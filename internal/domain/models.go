package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency codes supported by the venue. Every catalog entity carries a
// full price map; sale rows are replicated per currency at checkout.
type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

func SupportedCurrencies() []Currency {
	return []Currency{CurrencyARS, CurrencyUSD}
}

func ValidCurrency(c Currency) bool {
	for _, cur := range SupportedCurrencies() {
		if cur == c {
			return true
		}
	}
	return false
}

// PricePair holds the purchase and sale price of a product in one currency.
type PricePair struct {
	Purchase decimal.Decimal `json:"precio_compra"`
	Sale     decimal.Decimal `json:"precio_venta"`
}

// PromotionPrice holds the original and promotional unit price in one currency.
type PromotionPrice struct {
	Original    decimal.Decimal `json:"precio_original"`
	Promotional decimal.Decimal `json:"precio_promocion"`
}

// ComboPrice holds the bundle price and the sum-of-parts ("real") price
// in one currency.
type ComboPrice struct {
	Combo decimal.Decimal `json:"precio_combo"`
	Real  decimal.Decimal `json:"precio_real"`
}

// CatalogProduct is a read-only snapshot of a product row in the hosted
// data store. Stock is owned there; the engine never writes it directly.
type CatalogProduct struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"nombre"`
	Category string                 `json:"categoria"`
	Stock    int                    `json:"stock"`
	MinStock int                    `json:"stock_minimo"`
	MaxStock int                    `json:"stock_maximo"`
	Prices   map[Currency]PricePair `json:"precios"`
}

// CatalogPromotion is a quantity-gated discounted price for one product.
// MaxQuantity, UsageLimit and PerSaleLineLimit are unbounded when nil.
type CatalogPromotion struct {
	ID               string                      `json:"id"`
	ProductID        string                      `json:"producto_id"`
	Name             string                      `json:"nombre"`
	Prices           map[Currency]PromotionPrice `json:"precios"`
	MinQuantity      int                         `json:"cantidad_minima"`
	MaxQuantity      *int                        `json:"cantidad_maxima,omitempty"`
	UsageLimit       *int                        `json:"limite_usos,omitempty"`
	PerSaleLineLimit *int                        `json:"limite_usos_por_venta,omitempty"`
	UsageCount       int                         `json:"cantidad_usos"`
	Active           bool                        `json:"activo"`
}

// ComboItem is one constituent of a combo: a product and the number of
// units consumed per combo bundle.
type ComboItem struct {
	ProductID string `json:"producto_id"`
	Quantity  int    `json:"cantidad"`
}

// CatalogCombo bundles fixed per-product quantities at a single price
// below the sum of its parts.
type CatalogCombo struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"nombre"`
	Prices           map[Currency]ComboPrice `json:"precios"`
	Items            []ComboItem             `json:"productos"`
	UsageLimit       *int                    `json:"limite_usos,omitempty"`
	PerSaleLineLimit *int                    `json:"limite_usos_por_venta,omitempty"`
	UsageCount       int                     `json:"cantidad_usos"`
	Active           bool                    `json:"activo"`
}

// TotalUnits is the sum of per-bundle quantities across all constituents.
func (c CatalogCombo) TotalUnits() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// LineKind tags the cart line union: product, promotion or combo.
type LineKind string

const (
	LineProduct   LineKind = "product"
	LinePromotion LineKind = "promotion"
	LineCombo     LineKind = "combo"
)

// CartLine is one entry in a sale in progress. Exactly one of the three
// kinds applies; consumers switch exhaustively on Kind.
//
//   - product: UnitPrice resolved per currency/role, Subtotal = UnitPrice×Qty,
//     Discount = 0.
//   - promotion: UnitPrice is the promotional price, Subtotal is the
//     original price × Qty, Discount = (original − promotional) × Qty.
//   - combo: Quantity counts bundles, UnitPrice is the combo price,
//     Subtotal = real price × Qty, Discount = (real − combo) × Qty.
type CartLine struct {
	ID          string          `json:"id"`
	Kind        LineKind        `json:"kind"`
	ProductID   string          `json:"producto_id,omitempty"`
	PromotionID string          `json:"promocion_id,omitempty"`
	ComboID     string          `json:"combo_id,omitempty"`
	Quantity    int             `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precio_unitario"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"descuento"`
}

// Total is the line subtotal net of the line's own entity discount.
func (l CartLine) Total() decimal.Decimal {
	return l.Subtotal.Sub(l.Discount)
}

// SaleRow is one persisted ledger row produced at checkout. Combo lines
// expand into one row per constituent; product and promotion lines pass
// through as single rows. SourceID carries the originating promotion or
// combo id and is empty for plain product rows.
type SaleRow struct {
	ProductID      string          `json:"producto_id"`
	Kind           LineKind        `json:"tipo"`
	SourceID       string          `json:"origen_id,omitempty"`
	Quantity       int             `json:"cantidad"`
	UnitPrice      decimal.Decimal `json:"precio_unitario"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"descuento"`
	Total          decimal.Decimal `json:"total"`
	ManualDiscount decimal.Decimal `json:"descuento_manual"`
}

// UsageIncrement requests a +1 on cantidad_usos for one promotion or
// combo line used in a sale. One increment per line, not per unit.
type UsageIncrement struct {
	Kind     LineKind `json:"kind"`
	EntityID string   `json:"entity_id"`
}

// Sale is the persisted output of a successful checkout.
type Sale struct {
	ID             string                 `json:"id"`
	EmployeeID     string                 `json:"empleado_id"`
	TerminalID     string                 `json:"terminal_id"`
	PaymentMethod  string                 `json:"metodo_pago"`
	Currency       Currency               `json:"moneda"`
	Subtotal       decimal.Decimal        `json:"subtotal"`
	Discount       decimal.Decimal        `json:"descuento"`
	ManualDiscount decimal.Decimal        `json:"descuento_manual"`
	Total          decimal.Decimal        `json:"total"`
	Rows           map[Currency][]SaleRow `json:"filas"`
	CreatedAt      time.Time              `json:"created_at"`
}

// CartView is the wire representation of one terminal's sale in
// progress: lines plus the derived totals.
type CartView struct {
	CartID         string          `json:"cart_id"`
	TerminalID     string          `json:"terminal_id"`
	Currency       Currency        `json:"moneda"`
	PaymentMethod  string          `json:"metodo_pago"`
	EmployeeID     string          `json:"empleado_id,omitempty"`
	Lines          []CartLine      `json:"lineas"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"descuento"`
	ManualDiscount decimal.Decimal `json:"descuento_manual"`
	Total          decimal.Decimal `json:"total"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// LowStockItem reports a product at or below its minimum stock threshold.
type LowStockItem struct {
	ProductID string `json:"producto_id"`
	Name      string `json:"nombre"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"stock_minimo"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
