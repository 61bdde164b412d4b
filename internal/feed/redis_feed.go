package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// RedisStockFeed subscribes to a pub/sub channel carrying stock updates
// and keeps the latest value per product in memory.
type RedisStockFeed struct {
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	cancel  context.CancelFunc

	mu      sync.RWMutex
	overlay map[string]int
}

func NewRedisStockFeed(addr string, password string, db int, channel string) *RedisStockFeed {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStockFeed{
		client:  client,
		channel: channel,
		overlay: make(map[string]int),
	}
}

func (f *RedisStockFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Start begins consuming the stock channel. It returns once the
// subscription is confirmed; message handling continues in the
// background until Close.
func (f *RedisStockFeed) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.sub = f.client.Subscribe(runCtx, f.channel)
	if _, err := f.sub.Receive(ctx); err != nil {
		cancel()
		return err
	}

	go f.run(runCtx)
	return nil
}

func (f *RedisStockFeed) run(ctx context.Context) {
	ch := f.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var updates []StockUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &updates); err != nil {
				log.Printf("[feed] WARN: dropping malformed stock update: %v", err)
				continue
			}
			f.mu.Lock()
			for _, u := range updates {
				f.overlay[u.ProductID] = u.Stock
			}
			f.mu.Unlock()
		}
	}
}

func (f *RedisStockFeed) Overlay() map[string]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]int, len(f.overlay))
	for id, qty := range f.overlay {
		out[id] = qty
	}
	return out
}

func (f *RedisStockFeed) Publish(ctx context.Context, updates []StockUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	// Apply locally first so the publishing terminal never waits on
	// its own broadcast to observe the change.
	f.mu.Lock()
	for _, u := range updates {
		f.overlay[u.ProductID] = u.Stock
	}
	f.mu.Unlock()

	payload, err := json.Marshal(updates)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

func (f *RedisStockFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	if f.sub != nil {
		_ = f.sub.Close()
	}
	return f.client.Close()
}
