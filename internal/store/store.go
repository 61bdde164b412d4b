package store

import (
	"context"
	"errors"
	"time"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
)

// Repository is the engine's view of the hosted data store: the catalog
// read model plus the ledger-side writes requested at checkout (sale
// rows, usage counters, stock decrements).
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.CatalogProduct, error)
	GetProduct(ctx context.Context, id string) (*domain.CatalogProduct, error)
	ListPromotions(ctx context.Context) ([]domain.CatalogPromotion, error)
	GetPromotion(ctx context.Context, id string) (*domain.CatalogPromotion, error)
	ListCombos(ctx context.Context) ([]domain.CatalogCombo, error)
	GetCombo(ctx context.Context, id string) (*domain.CatalogCombo, error)

	GetStockMap(ctx context.Context, productIDs []string) (map[string]int, error)
	GetAllStock(ctx context.Context) (map[string]int, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	IncrementUsage(ctx context.Context, increments []domain.UsageIncrement) error
	DecreaseStock(ctx context.Context, decrements map[string]int) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
