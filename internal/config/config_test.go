package config

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR", "DEFAULT_CURRENCY", "USD_RATE", "STOCK_CHANNEL", "ACCESS_TOKEN_TTL_MINUTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.DefaultCurrency != domain.CurrencyARS {
		t.Fatalf("expected ARS default, got %s", cfg.DefaultCurrency)
	}
	if cfg.StockChannel != "onticket:stock" {
		t.Fatalf("unexpected stock channel %s", cfg.StockChannel)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected 480 minute token TTL, got %d", cfg.AccessTokenTTLMinutes)
	}
	if !cfg.USDRate.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("unexpected USD rate %s", cfg.USDRate)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("USD_RATE", "0.00085")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.DefaultCurrency != domain.CurrencyUSD {
		t.Fatalf("expected USD, got %s", cfg.DefaultCurrency)
	}
	if !cfg.USDRate.Equal(decimal.RequireFromString("0.00085")) {
		t.Fatalf("unexpected rate %s", cfg.USDRate)
	}
	if cfg.AccessTokenTTLMinutes != 60 {
		t.Fatalf("expected 60, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DEFAULT_CURRENCY", "BTC")
	t.Setenv("USD_RATE", "-3")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "zero")

	cfg := Load()
	if cfg.DefaultCurrency != domain.CurrencyARS {
		t.Fatalf("expected fallback to ARS, got %s", cfg.DefaultCurrency)
	}
	if !cfg.USDRate.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("expected fallback rate, got %s", cfg.USDRate)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback TTL, got %d", cfg.AccessTokenTTLMinutes)
	}
}
