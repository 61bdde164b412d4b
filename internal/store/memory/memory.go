package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
	"github.com/JavierCodely/onticket-app-sub000/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.CatalogProduct
	promotions map[string]domain.CatalogPromotion
	combos     map[string]domain.CatalogCombo
	stock      map[string]int
	salesByID  map[string]domain.Sale
	auditLogs  []domain.AuditLog
	users      map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory operator accounts for dev/demo
// mode. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; hardcoded dev defaults apply when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func prices(purchase, sale int64) map[domain.Currency]domain.PricePair {
	return map[domain.Currency]domain.PricePair{
		domain.CurrencyARS: {Purchase: decimal.NewFromInt(purchase), Sale: decimal.NewFromInt(sale)},
		domain.CurrencyUSD: {Purchase: decimal.NewFromInt(purchase), Sale: decimal.NewFromInt(sale)},
	}
}

func promoPrices(original, promotional int64) map[domain.Currency]domain.PromotionPrice {
	return map[domain.Currency]domain.PromotionPrice{
		domain.CurrencyARS: {Original: decimal.NewFromInt(original), Promotional: decimal.NewFromInt(promotional)},
		domain.CurrencyUSD: {Original: decimal.NewFromInt(original), Promotional: decimal.NewFromInt(promotional)},
	}
}

func comboPrices(bundle, real int64) map[domain.Currency]domain.ComboPrice {
	return map[domain.Currency]domain.ComboPrice{
		domain.CurrencyARS: {Combo: decimal.NewFromInt(bundle), Real: decimal.NewFromInt(real)},
		domain.CurrencyUSD: {Combo: decimal.NewFromInt(bundle), Real: decimal.NewFromInt(real)},
	}
}

func intPtr(v int) *int { return &v }

// NewSeeded builds a store preloaded with a small venue catalog.
func NewSeeded() *Store {
	products := []domain.CatalogProduct{
		{ID: "prod-fernet", Name: "Fernet 750ml", Category: "spirits", MinStock: 6, MaxStock: 120, Prices: prices(6500, 12000)},
		{ID: "prod-vodka", Name: "Vodka 700ml", Category: "spirits", MinStock: 6, MaxStock: 120, Prices: prices(7800, 14500)},
		{ID: "prod-champagne", Name: "Champagne Brut", Category: "spirits", MinStock: 4, MaxStock: 60, Prices: prices(11000, 22000)},
		{ID: "prod-energizante", Name: "Energizante 473ml", Category: "mixers", MinStock: 24, MaxStock: 400, Prices: prices(1200, 3500)},
		{ID: "prod-gaseosa", Name: "Gaseosa Cola 1.5L", Category: "mixers", MinStock: 12, MaxStock: 240, Prices: prices(1400, 4000)},
		{ID: "prod-agua", Name: "Agua Mineral 500ml", Category: "mixers", MinStock: 24, MaxStock: 400, Prices: prices(600, 2000)},
		{ID: "prod-cerveza", Name: "Cerveza Lata 473ml", Category: "beer", MinStock: 48, MaxStock: 600, Prices: prices(1100, 3000)},
	}

	promotions := []domain.CatalogPromotion{
		{
			ID: "promo-cerveza-3", ProductID: "prod-cerveza", Name: "Cerveza x3",
			Prices:      promoPrices(3000, 2500),
			MinQuantity: 3, MaxQuantity: intPtr(6),
			PerSaleLineLimit: intPtr(2),
			Active:           true,
		},
		{
			ID: "promo-agua-early", ProductID: "prod-agua", Name: "Agua early",
			Prices:      promoPrices(2000, 1500),
			MinQuantity: 2,
			UsageLimit:  intPtr(100), PerSaleLineLimit: intPtr(1),
			Active: true,
		},
	}

	combos := []domain.CatalogCombo{
		{
			ID: "combo-vodka-energy", Name: "Vodka + 2 Energizantes",
			Prices: comboPrices(18000, 21500),
			Items: []domain.ComboItem{
				{ProductID: "prod-vodka", Quantity: 1},
				{ProductID: "prod-energizante", Quantity: 2},
			},
			PerSaleLineLimit: intPtr(3),
			Active:           true,
		},
		{
			ID: "combo-champagne-mesa", Name: "Mesa VIP: 2 Champagne + 4 Aguas",
			Prices: comboPrices(46000, 52000),
			Items: []domain.ComboItem{
				{ProductID: "prod-champagne", Quantity: 2},
				{ProductID: "prod-agua", Quantity: 4},
			},
			UsageLimit: intPtr(20), PerSaleLineLimit: intPtr(1),
			Active: true,
		},
	}

	productMap := make(map[string]domain.CatalogProduct, len(products))
	stock := make(map[string]int, len(products))
	for _, p := range products {
		productMap[p.ID] = p
		stock[p.ID] = 80
	}

	promoMap := make(map[string]domain.CatalogPromotion, len(promotions))
	for _, p := range promotions {
		promoMap[p.ID] = p
	}
	comboMap := make(map[string]domain.CatalogCombo, len(combos))
	for _, c := range combos {
		comboMap[c.ID] = c
	}

	return &Store{
		products:   productMap,
		promotions: promoMap,
		combos:     comboMap,
		stock:      stock,
		salesByID:  make(map[string]domain.Sale),
		auditLogs:  make([]domain.AuditLog, 0, 128),
		users:      seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.CatalogProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.CatalogProduct, 0, len(s.products))
	for _, p := range s.products {
		p.Stock = s.stock[p.ID]
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.CatalogProduct) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.CatalogProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock = s.stock[id]
	return &product, nil
}

func (s *Store) ListPromotions(_ context.Context) ([]domain.CatalogPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.CatalogPromotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		promos = append(promos, p)
	}
	slices.SortFunc(promos, func(a, b domain.CatalogPromotion) int {
		return strings.Compare(a.ID, b.ID)
	})
	return promos, nil
}

func (s *Store) GetPromotion(_ context.Context, id string) (*domain.CatalogPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, exists := s.promotions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &promo, nil
}

func (s *Store) ListCombos(_ context.Context) ([]domain.CatalogCombo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	combos := make([]domain.CatalogCombo, 0, len(s.combos))
	for _, c := range s.combos {
		combos = append(combos, c)
	}
	slices.SortFunc(combos, func(a, b domain.CatalogCombo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return combos, nil
}

func (s *Store) GetCombo(_ context.Context, id string) (*domain.CatalogCombo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	combo, exists := s.combos[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &combo, nil
}

func (s *Store) GetStockMap(_ context.Context, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		result[id] = s.stock[id]
	}
	return result, nil
}

func (s *Store) GetAllStock(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(s.stock))
	for id, qty := range s.stock {
		result[id] = qty
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || len(sale.Rows) == 0 {
		return nil, store.ErrInvalidSale
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrInvalidSale
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.salesByID[sale.ID] = sale
	created := sale
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) IncrementUsage(_ context.Context, increments []domain.UsageIncrement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inc := range increments {
		switch inc.Kind {
		case domain.LinePromotion:
			promo, exists := s.promotions[inc.EntityID]
			if !exists {
				return store.ErrNotFound
			}
			promo.UsageCount++
			s.promotions[inc.EntityID] = promo
		case domain.LineCombo:
			combo, exists := s.combos[inc.EntityID]
			if !exists {
				return store.ErrNotFound
			}
			combo.UsageCount++
			s.combos[inc.EntityID] = combo
		}
	}
	return nil
}

func (s *Store) DecreaseStock(_ context.Context, decrements map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before applying any decrement so a
	// conflict leaves stock untouched.
	for id, qty := range decrements {
		if qty < 0 {
			return store.ErrInvalidSale
		}
		if s.stock[id]-qty < 0 {
			return store.ErrInsufficientStock
		}
	}
	for id, qty := range decrements {
		s.stock[id] -= qty
	}
	return nil
}

// SetStock overrides a product's stock. Used by tests and the dev seed
// to simulate the externally owned stock feed.
func (s *Store) SetStock(id string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[id] = qty
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrInvalidSale
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
