package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
	"github.com/JavierCodely/onticket-app-sub000/internal/xid"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPayment  = errors.New("unsupported payment method")
	ErrInvalidDiscount = errors.New("invalid manual discount")
)

// DiscountKind selects how a manual discount is expressed.
type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountAmount  DiscountKind = "amount"
)

// ManualDiscount is an operator-entered discount applied to the whole
// sale at checkout time, distributed across rows by the allocator.
type ManualDiscount struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// RepricingRequired signals that previously resolved unit prices no
// longer match the cart's operator. The engine never clears lines on
// its own; the host decides whether to clear, prompt, or rebuild.
type RepricingRequired struct {
	PreviousEmployee string
	Employee         string
	Lines            int
}

// CartTotals summarizes the cart before checkout. Total is net of
// per-line entity discounts; the manual discount is only subtracted at
// checkout via the allocator.
type CartTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"descuento"`
	Total          decimal.Decimal `json:"total"`
	ManualDiscount decimal.Decimal `json:"descuento_manual"`
}

// Cart owns the ordered line collection of one sale session. All
// mutators validate against the injected stock snapshot before touching
// state, and every operation holds the cart mutex so mutations on one
// cart never interleave. Carts on different terminals are independent.
type Cart struct {
	mu sync.Mutex

	id            string
	currency      domain.Currency
	paymentMethod string
	employeeID    string
	employeeSet   bool
	lines         []domain.CartLine
	promos        map[string]domain.CatalogPromotion
	combos        map[string]domain.CatalogCombo
	manual        *ManualDiscount
}

func NewCart(currency domain.Currency) (*Cart, error) {
	if !domain.ValidCurrency(currency) {
		return nil, ErrUnknownCurrency
	}
	return &Cart{
		id:            xid.New("cart"),
		currency:      currency,
		paymentMethod: "cash",
		promos:        make(map[string]domain.CatalogPromotion),
		combos:        make(map[string]domain.CatalogCombo),
	}, nil
}

func (c *Cart) ID() string {
	return c.id
}

func (c *Cart) Currency() domain.Currency {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currency
}

func (c *Cart) EmployeeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.employeeID
}

func (c *Cart) PaymentMethod() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paymentMethod
}

// Lines returns a copy of the current line collection in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Combos returns a copy of the combo definitions captured by the cart's
// combo lines, keyed by combo id.
func (c *Cart) Combos() map[string]domain.CatalogCombo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.CatalogCombo, len(c.combos))
	for id, combo := range c.combos {
		out[id] = combo
	}
	return out
}

// AddProduct creates a product line, or increments the existing line for
// the same product. Product lines merge; promotion and combo lines never
// do.
func (c *Cart) AddProduct(snapshot StockSnapshot, product domain.CatalogProduct, quantity int, mode PricingMode) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if quantity < 1 {
		return domain.CartLine{}, ErrInvalidQuantity
	}

	unit, err := ProductUnitPrice(product, c.currency, mode)
	if err != nil {
		return domain.CartLine{}, err
	}

	available := AvailableQuantity(snapshot, c.lines, c.combos, product.ID, "")
	if quantity > available {
		return domain.CartLine{}, &InsufficientStockError{ProductID: product.ID, Requested: quantity, Available: available}
	}

	for i := range c.lines {
		if c.lines[i].Kind == domain.LineProduct && c.lines[i].ProductID == product.ID {
			c.lines[i].Quantity += quantity
			c.lines[i].Subtotal = c.lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(c.lines[i].Quantity)))
			return c.lines[i], nil
		}
	}

	line := domain.CartLine{
		ID:        xid.New("line"),
		Kind:      domain.LineProduct,
		ProductID: product.ID,
		Quantity:  quantity,
		UnitPrice: unit,
		Subtotal:  unit.Mul(decimal.NewFromInt(int64(quantity))),
		Discount:  decimal.Zero,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// AddPromotion creates a new promotion line at the promotion's minimum
// quantity. Rejects when even the minimum cannot be covered by available
// stock, or when the usage limiter rejects a new line.
func (c *Cart) AddPromotion(snapshot StockSnapshot, promo domain.CatalogPromotion, product domain.CatalogProduct) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !promo.Active {
		return domain.CartLine{}, ErrInactiveEntity
	}

	promotional, original, err := PromotionUnitPrice(promo, c.currency)
	if err != nil {
		return domain.CartLine{}, err
	}

	if err := CanAddLine(promo.ID, c.lineCountFor(domain.LinePromotion, promo.ID), UsageLimits{
		UsageLimit:       promo.UsageLimit,
		PerSaleLineLimit: promo.PerSaleLineLimit,
		UsageCount:       promo.UsageCount,
	}); err != nil {
		return domain.CartLine{}, err
	}

	quantity := promo.MinQuantity
	if quantity < 1 {
		quantity = 1
	}
	available := AvailableQuantity(snapshot, c.lines, c.combos, product.ID, "")
	if quantity > available {
		return domain.CartLine{}, &InsufficientStockError{ProductID: product.ID, Requested: quantity, Available: available}
	}

	qty := decimal.NewFromInt(int64(quantity))
	line := domain.CartLine{
		ID:          xid.New("line"),
		Kind:        domain.LinePromotion,
		ProductID:   product.ID,
		PromotionID: promo.ID,
		Quantity:    quantity,
		UnitPrice:   promotional,
		Subtotal:    original.Mul(qty),
		Discount:    original.Sub(promotional).Mul(qty),
	}
	c.lines = append(c.lines, line)
	c.promos[promo.ID] = promo
	return line, nil
}

// AddCombo creates a new combo line at quantity 1. Every constituent's
// per-bundle quantity must be covered by that product's available stock.
func (c *Cart) AddCombo(snapshot StockSnapshot, combo domain.CatalogCombo) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !combo.Active {
		return domain.CartLine{}, ErrInactiveEntity
	}

	bundle, real, err := ComboUnitPrice(combo, c.currency)
	if err != nil {
		return domain.CartLine{}, err
	}

	if err := CanAddLine(combo.ID, c.lineCountFor(domain.LineCombo, combo.ID), UsageLimits{
		UsageLimit:       combo.UsageLimit,
		PerSaleLineLimit: combo.PerSaleLineLimit,
		UsageCount:       combo.UsageCount,
	}); err != nil {
		return domain.CartLine{}, err
	}

	for _, item := range combo.Items {
		available := AvailableQuantity(snapshot, c.lines, c.combos, item.ProductID, "")
		if item.Quantity > available {
			return domain.CartLine{}, &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: available}
		}
	}

	line := domain.CartLine{
		ID:        xid.New("line"),
		Kind:      domain.LineCombo,
		ComboID:   combo.ID,
		Quantity:  1,
		UnitPrice: bundle,
		Subtotal:  real,
		Discount:  real.Sub(bundle),
	}
	c.lines = append(c.lines, line)
	c.combos[combo.ID] = combo
	return line, nil
}

// UpdateQuantity changes a line's quantity in place. Zero removes the
// line. The stock check excludes the line's own prior consumption so
// edits do not require remove-and-re-add. Promotion lines must stay
// inside their quantity band; combo lines cannot exceed the combo's
// per-sale line limit.
func (c *Cart) UpdateQuantity(snapshot StockSnapshot, lineID string, newQuantity int) (domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.lineIndex(lineID)
	if idx < 0 {
		return domain.CartLine{}, ErrLineNotFound
	}
	if newQuantity < 0 {
		return domain.CartLine{}, ErrInvalidQuantity
	}
	if newQuantity == 0 {
		removed := c.lines[idx]
		c.removeAt(idx)
		return removed, nil
	}

	line := c.lines[idx]
	qty := decimal.NewFromInt(int64(newQuantity))

	switch line.Kind {
	case domain.LineProduct:
		available := AvailableQuantity(snapshot, c.lines, c.combos, line.ProductID, line.ID)
		if newQuantity > available {
			return domain.CartLine{}, &InsufficientStockError{ProductID: line.ProductID, Requested: newQuantity, Available: available}
		}
		line.Quantity = newQuantity
		line.Subtotal = line.UnitPrice.Mul(qty)

	case domain.LinePromotion:
		promo, ok := c.promos[line.PromotionID]
		if !ok {
			return domain.CartLine{}, ErrLineNotFound
		}
		if newQuantity < promo.MinQuantity || (promo.MaxQuantity != nil && newQuantity > *promo.MaxQuantity) {
			return domain.CartLine{}, &PromotionQuantityError{
				PromotionID: promo.ID,
				Min:         promo.MinQuantity,
				Max:         promo.MaxQuantity,
				Requested:   newQuantity,
			}
		}
		available := AvailableQuantity(snapshot, c.lines, c.combos, line.ProductID, line.ID)
		if newQuantity > available {
			return domain.CartLine{}, &InsufficientStockError{ProductID: line.ProductID, Requested: newQuantity, Available: available}
		}
		promotional, original, err := PromotionUnitPrice(promo, c.currency)
		if err != nil {
			return domain.CartLine{}, err
		}
		line.Quantity = newQuantity
		line.UnitPrice = promotional
		line.Subtotal = original.Mul(qty)
		line.Discount = original.Sub(promotional).Mul(qty)

	case domain.LineCombo:
		combo, ok := c.combos[line.ComboID]
		if !ok {
			return domain.CartLine{}, ErrLineNotFound
		}
		if combo.PerSaleLineLimit != nil && newQuantity > *combo.PerSaleLineLimit {
			return domain.CartLine{}, &LineLimitError{EntityID: combo.ID, Limit: *combo.PerSaleLineLimit}
		}
		for _, item := range combo.Items {
			required := item.Quantity * newQuantity
			available := AvailableQuantity(snapshot, c.lines, c.combos, item.ProductID, line.ID)
			if required > available {
				return domain.CartLine{}, &InsufficientStockError{ProductID: item.ProductID, Requested: required, Available: available}
			}
		}
		bundle, real, err := ComboUnitPrice(combo, c.currency)
		if err != nil {
			return domain.CartLine{}, err
		}
		line.Quantity = newQuantity
		line.UnitPrice = bundle
		line.Subtotal = real.Mul(qty)
		line.Discount = real.Sub(bundle).Mul(qty)
	}

	c.lines[idx] = line
	return line, nil
}

// RemoveLine removes a line unconditionally.
func (c *Cart) RemoveLine(lineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.lineIndex(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.removeAt(idx)
	return nil
}

// SetCurrency changes the cart-wide currency. Rejected once the cart has
// lines: resolved unit prices depend on the currency and the engine does
// not reprice incrementally.
func (c *Cart) SetCurrency(currency domain.Currency) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !domain.ValidCurrency(currency) {
		return ErrUnknownCurrency
	}
	if currency == c.currency {
		return nil
	}
	if len(c.lines) > 0 {
		return ErrCurrencyLocked
	}
	c.currency = currency
	return nil
}

// SetPaymentMethod records the cart-wide payment method.
func (c *Cart) SetPaymentMethod(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch method {
	case "cash", "card", "transfer":
		c.paymentMethod = method
		return nil
	}
	return fmt.Errorf("%w %q", ErrInvalidPayment, method)
}

// SetEmployee assigns the operator. When the cart already has lines
// priced under a different operator, a RepricingRequired event is
// returned: role-dependent prices are stale and the host must decide
// whether to clear or rebuild. Lines are never mutated here.
func (c *Cart) SetEmployee(employeeID string) *RepricingRequired {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.employeeID
	changed := c.employeeSet && previous != employeeID
	c.employeeID = employeeID
	c.employeeSet = true

	if changed && len(c.lines) > 0 {
		return &RepricingRequired{
			PreviousEmployee: previous,
			Employee:         employeeID,
			Lines:            len(c.lines),
		}
	}
	return nil
}

// SetManualDiscount stores the operator-entered discount. Fixed amounts
// are validated against the current pre-discount total; percentages must
// be within [0, 100].
func (c *Cart) SetManualDiscount(d ManualDiscount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch d.Kind {
	case DiscountPercent:
		if d.Value.IsNegative() || d.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percent outside [0, 100]", ErrInvalidDiscount)
		}
	case DiscountAmount:
		if d.Value.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", ErrInvalidDiscount)
		}
		total := c.totalsLocked().Total
		if d.Value.GreaterThan(total) {
			return &DiscountExceedsTotalError{Discount: d.Value, Total: total}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDiscount, d.Kind)
	}

	c.manual = &d
	return nil
}

// ClearManualDiscount removes any pending manual discount.
func (c *Cart) ClearManualDiscount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = nil
}

// Clear drops every line and the manual discount. Currency, operator
// and payment method survive.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Cart) clearLocked() {
	c.lines = nil
	c.promos = make(map[string]domain.CatalogPromotion)
	c.combos = make(map[string]domain.CatalogCombo)
	c.manual = nil
}

// Totals reports subtotal, accumulated entity discounts and the
// resolved manual discount.
func (c *Cart) Totals() CartTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalsLocked()
}

func (c *Cart) totalsLocked() CartTotals {
	subtotal := decimal.Zero
	discount := decimal.Zero
	for _, line := range c.lines {
		subtotal = subtotal.Add(line.Subtotal)
		discount = discount.Add(line.Discount)
	}
	total := subtotal.Sub(discount)
	return CartTotals{
		Subtotal:       subtotal,
		Discount:       discount,
		Total:          total,
		ManualDiscount: resolveManualDiscount(c.manual, total),
	}
}

func resolveManualDiscount(manual *ManualDiscount, total decimal.Decimal) decimal.Decimal {
	if manual == nil {
		return decimal.Zero
	}
	if manual.Kind == DiscountPercent {
		return total.Mul(manual.Value).Div(decimal.NewFromInt(100)).Round(2)
	}
	return manual.Value
}

func (c *Cart) lineIndex(lineID string) int {
	for i, line := range c.lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) lineCountFor(kind domain.LineKind, entityID string) int {
	count := 0
	for _, line := range c.lines {
		if line.Kind != kind {
			continue
		}
		if (kind == domain.LinePromotion && line.PromotionID == entityID) ||
			(kind == domain.LineCombo && line.ComboID == entityID) {
			count++
		}
	}
	return count
}

func (c *Cart) removeAt(idx int) {
	removed := c.lines[idx]
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)

	switch removed.Kind {
	case domain.LinePromotion:
		if c.lineCountFor(domain.LinePromotion, removed.PromotionID) == 0 {
			delete(c.promos, removed.PromotionID)
		}
	case domain.LineCombo:
		if c.lineCountFor(domain.LineCombo, removed.ComboID) == 0 {
			delete(c.combos, removed.ComboID)
		}
	}
}
