package feed

import "context"

// StockUpdate is one broadcast stock change for a product.
type StockUpdate struct {
	ProductID string `json:"producto_id"`
	Stock     int    `json:"stock"`
}

// StockFeed distributes live stock levels between terminals. Overlay
// returns the updates seen since startup; values there supersede the
// persisted stock read from the store.
type StockFeed interface {
	Overlay() map[string]int
	Publish(ctx context.Context, updates []StockUpdate) error
	Close() error
}

type NoopStockFeed struct{}

func (NoopStockFeed) Overlay() map[string]int { return nil }

func (NoopStockFeed) Publish(_ context.Context, _ []StockUpdate) error { return nil }

func (NoopStockFeed) Close() error { return nil }
