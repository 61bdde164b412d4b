package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
	"github.com/JavierCodely/onticket-app-sub000/internal/engine"
	"github.com/JavierCodely/onticket-app-sub000/internal/feed"
	"github.com/JavierCodely/onticket-app-sub000/internal/store"
	"github.com/JavierCodely/onticket-app-sub000/internal/xid"
)

var (
	ErrAdminRequired    = errors.New("admin role required")
	ErrTerminalRequired = errors.New("terminal id required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// RepricingNotice tells the terminal that an employee change invalidated
// the cart's resolved prices and the cart was reset.
type RepricingNotice struct {
	PreviousEmployee string `json:"previous_employee"`
	Employee         string `json:"employee"`
	ClearedLines     int    `json:"cleared_lines"`
}

type Service struct {
	repo            store.Repository
	feed            feed.StockFeed
	defaultCurrency domain.Currency
	rates           engine.ExchangeRates

	mu    sync.Mutex
	carts map[string]*engine.Cart
}

func New(repo store.Repository, stockFeed feed.StockFeed, defaultCurrency domain.Currency, rates engine.ExchangeRates) *Service {
	if stockFeed == nil {
		stockFeed = feed.NoopStockFeed{}
	}
	if defaultCurrency == "" {
		defaultCurrency = domain.CurrencyARS
	}
	if rates == nil {
		rates = engine.ExchangeRates{}
	}

	return &Service{
		repo:            repo,
		feed:            stockFeed,
		defaultCurrency: defaultCurrency,
		rates:           rates,
		carts:           make(map[string]*engine.Cart),
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.CatalogProduct, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListPromotions(ctx context.Context) ([]domain.CatalogPromotion, error) {
	return s.repo.ListPromotions(ctx)
}

func (s *Service) ListCombos(ctx context.Context) ([]domain.CatalogCombo, error) {
	return s.repo.ListCombos(ctx)
}

// cartFor returns the terminal's cart, creating one lazily. Each
// terminal owns exactly one cart at a time.
func (s *Service) cartFor(terminalID string) (*engine.Cart, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, ErrTerminalRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cart, ok := s.carts[terminalID]; ok {
		return cart, nil
	}
	cart, err := engine.NewCart(s.defaultCurrency)
	if err != nil {
		return nil, err
	}
	s.carts[terminalID] = cart
	return cart, nil
}

func (s *Service) CartState(ctx context.Context, terminalID string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) view(terminalID string, cart *engine.Cart) domain.CartView {
	totals := cart.Totals()
	return domain.CartView{
		CartID:         cart.ID(),
		TerminalID:     terminalID,
		Currency:       cart.Currency(),
		PaymentMethod:  cart.PaymentMethod(),
		EmployeeID:     cart.EmployeeID(),
		Lines:          cart.Lines(),
		Subtotal:       totals.Subtotal,
		Discount:       totals.Discount,
		ManualDiscount: totals.ManualDiscount,
		Total:          totals.Total,
	}
}

// snapshot builds the effective stock view: persisted levels overlaid
// with any fresher values seen on the stock feed.
func (s *Service) snapshot(ctx context.Context, productIDs []string) (engine.StockSnapshot, error) {
	var levels map[string]int
	var err error
	if productIDs == nil {
		levels, err = s.repo.GetAllStock(ctx)
	} else {
		levels, err = s.repo.GetStockMap(ctx, productIDs)
	}
	if err != nil {
		return nil, err
	}

	snapshot := make(engine.StockSnapshot, len(levels))
	for id, qty := range levels {
		snapshot[id] = qty
	}
	for id, qty := range s.feed.Overlay() {
		if _, tracked := snapshot[id]; tracked || productIDs == nil {
			snapshot[id] = qty
		}
	}
	return snapshot, nil
}

func (s *Service) pricingMode(ctx context.Context) engine.PricingMode {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return engine.ModeSale
	}
	return engine.ModeForRole(actor.Role)
}

func (s *Service) AddProduct(ctx context.Context, terminalID string, productID string, quantity int) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartView{}, err
	}

	snapshot, err := s.snapshot(ctx, cartProductIDs(cart, productID))
	if err != nil {
		return domain.CartView{}, err
	}

	if _, err := cart.AddProduct(snapshot, *product, quantity, s.pricingMode(ctx)); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) AddPromotion(ctx context.Context, terminalID string, promotionID string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	promo, err := s.repo.GetPromotion(ctx, promotionID)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.repo.GetProduct(ctx, promo.ProductID)
	if err != nil {
		return domain.CartView{}, err
	}

	snapshot, err := s.snapshot(ctx, cartProductIDs(cart, promo.ProductID))
	if err != nil {
		return domain.CartView{}, err
	}

	if _, err := cart.AddPromotion(snapshot, *promo, *product); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) AddCombo(ctx context.Context, terminalID string, comboID string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	combo, err := s.repo.GetCombo(ctx, comboID)
	if err != nil {
		return domain.CartView{}, err
	}

	ids := cartProductIDs(cart)
	for _, item := range combo.Items {
		ids = append(ids, item.ProductID)
	}
	snapshot, err := s.snapshot(ctx, ids)
	if err != nil {
		return domain.CartView{}, err
	}

	if _, err := cart.AddCombo(snapshot, *combo); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) UpdateQuantity(ctx context.Context, terminalID string, lineID string, quantity int) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}

	snapshot, err := s.snapshot(ctx, cartProductIDs(cart))
	if err != nil {
		return domain.CartView{}, err
	}

	if _, err := cart.UpdateQuantity(snapshot, lineID, quantity); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) RemoveLine(ctx context.Context, terminalID string, lineID string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := cart.RemoveLine(lineID); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) SetCurrency(ctx context.Context, terminalID string, currency domain.Currency) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := cart.SetCurrency(currency); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) SetPaymentMethod(ctx context.Context, terminalID string, method string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := cart.SetPaymentMethod(method); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

// SetEmployee assigns the selling employee. When the assignment changes
// on a populated cart, every resolved price is suspect and the cart is
// reset rather than silently kept; the returned notice is non-nil in
// that case.
func (s *Service) SetEmployee(ctx context.Context, terminalID string, employeeID string) (domain.CartView, *RepricingNotice, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, nil, err
	}

	var notice *RepricingNotice
	if rep := cart.SetEmployee(employeeID); rep != nil {
		cart.Clear()
		notice = &RepricingNotice{
			PreviousEmployee: rep.PreviousEmployee,
			Employee:         rep.Employee,
			ClearedLines:     rep.Lines,
		}
		s.logAudit(ctx, "cart_repriced", "cart", cart.ID(),
			fmt.Sprintf("terminal=%s,previous=%s,employee=%s,cleared=%d", terminalID, rep.PreviousEmployee, rep.Employee, rep.Lines))
	}
	return s.view(terminalID, cart), notice, nil
}

func (s *Service) SetManualDiscount(ctx context.Context, terminalID string, d engine.ManualDiscount) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := cart.SetManualDiscount(d); err != nil {
		return domain.CartView{}, err
	}
	return s.view(terminalID, cart), nil
}

func (s *Service) ClearManualDiscount(ctx context.Context, terminalID string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	cart.ClearManualDiscount()
	return s.view(terminalID, cart), nil
}

func (s *Service) CancelCart(ctx context.Context, terminalID string) (domain.CartView, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.CartView{}, err
	}
	cleared := len(cart.Lines())
	cart.Clear()
	if cleared > 0 {
		s.logAudit(ctx, "cart_cancel", "cart", cart.ID(), fmt.Sprintf("terminal=%s,lines=%d", terminalID, cleared))
	}
	return s.view(terminalID, cart), nil
}

// Checkout finalizes the terminal's cart: re-validates stock against a
// fresh snapshot, decrements stock, persists the sale, bumps usage
// counters, broadcasts the new levels, and only then clears the cart.
// Stock is decremented first: the decrement is batch-atomic in both
// stores, so a losing race leaves nothing persisted and the operator
// can simply retry. A sale written before the decrement would survive
// the failure and be duplicated by that retry.
func (s *Service) Checkout(ctx context.Context, terminalID string) (domain.Sale, error) {
	cart, err := s.cartFor(terminalID)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(cart.Lines()) == 0 {
		return domain.Sale{}, store.ErrInvalidSale
	}

	snapshot, err := s.snapshot(ctx, cartProductIDs(cart))
	if err != nil {
		return domain.Sale{}, err
	}

	result, err := cart.Checkout(snapshot, s.rates)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:             uuid.NewString(),
		EmployeeID:     cart.EmployeeID(),
		TerminalID:     terminalID,
		PaymentMethod:  cart.PaymentMethod(),
		Currency:       result.Currency,
		Subtotal:       result.Subtotal,
		Discount:       result.Discount,
		ManualDiscount: result.ManualDiscount,
		Total:          result.Total,
		Rows:           result.RowsByCurrency,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.DecreaseStock(ctx, result.StockDecrements); err != nil {
		return domain.Sale{}, err
	}

	saved, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.repo.IncrementUsage(ctx, result.UsageIncrements); err != nil {
		log.Printf("[service] WARN: failed to bump usage counters sale=%s: %v", saved.ID, err)
	}

	s.broadcastStock(ctx, snapshot, result.StockDecrements)

	cart.Clear()
	s.logAudit(ctx, "sale_checkout", "sale", saved.ID,
		fmt.Sprintf("terminal=%s,total=%s %s,method=%s", terminalID, saved.Total.StringFixed(2), saved.Currency, saved.PaymentMethod))

	return *saved, nil
}

func (s *Service) broadcastStock(ctx context.Context, snapshot engine.StockSnapshot, decrements map[string]int) {
	if len(decrements) == 0 {
		return
	}
	updates := make([]feed.StockUpdate, 0, len(decrements))
	for id, qty := range decrements {
		updates = append(updates, feed.StockUpdate{ProductID: id, Stock: snapshot[id] - qty})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ProductID < updates[j].ProductID })
	if err := s.feed.Publish(ctx, updates); err != nil {
		log.Printf("[service] WARN: failed to publish stock updates: %v", err)
	}
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, ErrAdminRequired
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, ErrAdminRequired
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// LowStockReport lists products at or below their configured minimum,
// using feed-overlaid levels so a busy night shows up immediately.
func (s *Service) LowStockReport(ctx context.Context) ([]domain.LowStockItem, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	overlay := s.feed.Overlay()

	items := make([]domain.LowStockItem, 0, 8)
	for _, p := range products {
		stock := p.Stock
		if live, ok := overlay[p.ID]; ok {
			stock = live
		}
		if stock <= p.MinStock {
			items = append(items, domain.LowStockItem{
				ProductID: p.ID,
				Name:      p.Name,
				Stock:     stock,
				MinStock:  p.MinStock,
			})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Stock < items[j].Stock })
	return items, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

// cartProductIDs collects every product the cart currently consumes,
// including combo constituents, plus any extras.
func cartProductIDs(cart *engine.Cart, extra ...string) []string {
	seen := make(map[string]struct{}, 8)
	ids := make([]string, 0, 8)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, line := range cart.Lines() {
		add(line.ProductID)
	}
	for _, combo := range cart.Combos() {
		for _, item := range combo.Items {
			add(item.ProductID)
		}
	}
	for _, id := range extra {
		add(id)
	}
	return ids
}
