package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port string
	// Remote store
	Store          string // "rest" or "pg"
	SupabaseURL    string
	SupabaseKey    string
	DatabaseURL    string
	RequestTimeout time.Duration
	// Price sources
	CoinGeckoBase string
	CoinGeckoKey  string
	BinanceBase   string
	CoinCapBase   string
	PriceRefresh  time.Duration
	// Balance sync
	PollInterval time.Duration
	// Redis (idempotency)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func durMS(key string, defMS int) time.Duration {
	return time.Duration(atoiDef(getEnv(key, strconv.Itoa(defMS)), defMS)) * time.Millisecond
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:            getEnv("ENV", "local"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnv("PORT", "8080"),
		Store:          getEnv("STORE", "rest"),
		SupabaseURL:    getEnv("SUPABASE_URL", ""),
		SupabaseKey:    getEnv("SUPABASE_ANON_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RequestTimeout: durMS("REQUEST_TIMEOUT_MS", 10000),
		CoinGeckoBase:  getEnv("COINGECKO_BASE", "https://api.coingecko.com/api/v3"),
		CoinGeckoKey:   getEnv("COINGECKO_API_KEY", ""),
		BinanceBase:    getEnv("BINANCE_BASE", "https://api.binance.com"),
		CoinCapBase:    getEnv("COINCAP_BASE", "https://api.coincap.io"),
		PriceRefresh:   durMS("PRICE_REFRESH_MS", 60000),
		PollInterval:   durMS("BALANCE_POLL_MS", 30000),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:       durMS("IDEMPOTENCY_TTL_MS", 86400000),
	}
}
