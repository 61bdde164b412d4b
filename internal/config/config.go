package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StockChannel          string
	DefaultCurrency       domain.Currency
	USDRate               decimal.Decimal
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: could not read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	currency := domain.Currency(strings.ToUpper(getEnv("DEFAULT_CURRENCY", "ARS")))
	if !domain.ValidCurrency(currency) {
		log.Printf("[config] WARN: unsupported DEFAULT_CURRENCY %q, falling back to ARS", currency)
		currency = domain.CurrencyARS
	}

	usdRate, err := decimal.NewFromString(getEnv("USD_RATE", "0.001"))
	if err != nil || !usdRate.IsPositive() {
		usdRate = decimal.RequireFromString("0.001")
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StockChannel:          getEnv("STOCK_CHANNEL", "onticket:stock"),
		DefaultCurrency:       currency,
		USDRate:               usdRate,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
