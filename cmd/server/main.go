package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JavierCodely/onticket-app-sub000/internal/config"
	"github.com/JavierCodely/onticket-app-sub000/internal/engine"
	"github.com/JavierCodely/onticket-app-sub000/internal/feed"
	"github.com/JavierCodely/onticket-app-sub000/internal/httpapi"
	"github.com/JavierCodely/onticket-app-sub000/internal/service"
	"github.com/JavierCodely/onticket-app-sub000/internal/store"
	"github.com/JavierCodely/onticket-app-sub000/internal/store/memory"
	pgstore "github.com/JavierCodely/onticket-app-sub000/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	stockFeed := feed.StockFeed(feed.NoopStockFeed{})
	if cfg.RedisAddr != "" {
		redisFeed := feed.NewRedisStockFeed(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StockChannel)
		if err := redisFeed.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop stock feed", err)
		} else if err := redisFeed.Start(ctx); err != nil {
			log.Printf("stock feed subscribe failed (%v), using noop stock feed", err)
		} else {
			stockFeed = redisFeed
			closers = append(closers, redisFeed.Close)
			log.Printf("stock feed: redis channel %s", cfg.StockChannel)
		}
	} else {
		log.Println("stock feed: noop")
	}

	rates := engine.ExchangeRates{"USD": cfg.USDRate}
	svc := service.New(repo, stockFeed, cfg.DefaultCurrency, rates)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("sale engine listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
