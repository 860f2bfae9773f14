package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"airdrop-client/internal/application"
	"airdrop-client/internal/config"
	"airdrop-client/internal/infrastructure/logx"
	"airdrop-client/internal/infrastructure/pg"
	"airdrop-client/internal/infrastructure/realtime"
	redisstore "airdrop-client/internal/infrastructure/redis"
	"airdrop-client/internal/infrastructure/source"
	"airdrop-client/internal/infrastructure/store"

	"github.com/redis/go-redis/v9"
)

// Stores bundles the remote row store with the matching change feed: the
// REST backend pairs with the realtime websocket, the pg backend with
// LISTEN/NOTIFY.
type Stores struct {
	Rewards application.RewardStore
	Feed    application.ChangeFeed
	Ping    func(ctx context.Context) error
}

type Services struct {
	Idem application.IdempotencyStore
}

// BuildStores wires the backend selected by STORE ("rest" or "pg").
func BuildStores(ctx context.Context, cfg config.Config) (Stores, func(), error) {
	log := logx.L()

	switch cfg.Store {
	case "rest":
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return Stores{}, func() {}, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for STORE=rest")
		}
		client := &http.Client{Timeout: cfg.RequestTimeout}
		rest := store.NewRESTClient(cfg.SupabaseURL, cfg.SupabaseKey, client)
		wsURL, err := realtimeURL(cfg.SupabaseURL)
		if err != nil {
			return Stores{}, func() {}, err
		}
		feed := realtime.NewFeed(wsURL, cfg.SupabaseKey)
		return Stores{Rewards: rest, Feed: feed, Ping: rest.Ping}, func() {}, nil

	case "pg":
		if cfg.DatabaseURL == "" {
			return Stores{}, func() {}, fmt.Errorf("DATABASE_URL is required for STORE=pg")
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return Stores{}, func() {}, err
		}
		if err := pg.RunMigrations(ctx, db); err != nil {
			db.Close()
			return Stores{}, func() {}, err
		}
		cleanup := func() {
			log.Info("closing pg")
			db.Close()
		}
		return Stores{
			Rewards: pg.NewRewardRepo(db),
			Feed:    pg.NewListener(db),
			Ping:    db.Ping,
		}, cleanup, nil

	default:
		return Stores{}, func() {}, fmt.Errorf("unknown STORE %q (want rest or pg)", cfg.Store)
	}
}

// BuildSources returns the price sources in priority order. An empty base
// URL drops that source; with no source configured the fixed-price fake
// keeps local development working offline.
func BuildSources(cfg config.Config) []application.PriceSource {
	client := &http.Client{Timeout: cfg.RequestTimeout}

	var sources []application.PriceSource
	if cfg.CoinGeckoBase != "" {
		sources = append(sources, &source.CoinGecko{BaseURL: cfg.CoinGeckoBase, APIKey: cfg.CoinGeckoKey, Client: client})
	}
	if cfg.BinanceBase != "" {
		sources = append(sources, &source.Binance{BaseURL: cfg.BinanceBase, Client: client})
	}
	if cfg.CoinCapBase != "" {
		sources = append(sources, &source.CoinCap{BaseURL: cfg.CoinCapBase, Client: client})
	}
	if len(sources) == 0 {
		sources = append(sources, source.NewFake(map[string]float64{
			"BTC": 95000, "ETH": 3300, "SOL": 150, "USDT": 1, "BNB": 620, "DROP": 0.10,
		}))
	}
	return sources
}

// BuildRedis builds the idempotency store if enabled (defaults to redis;
// falls back to Noop).
func BuildRedis(cfg config.Config) (Services, func(), error) {
	if getBackend() != "redis" {
		return Services{Idem: application.NoopIdempotency{}}, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	cleanup := func() { _ = rdb.Close() }
	return Services{Idem: redisstore.New(rdb, cfg.RedisTTL)}, cleanup, nil
}

func getBackend() string {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("IDEMPOTENCY_BACKEND")))
	if v == "" {
		return "redis"
	}
	return v
}

// realtimeURL maps the project base URL to its websocket endpoint.
func realtimeURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid SUPABASE_URL scheme %q", u.Scheme)
	}
	u.Path = "/realtime/v1/websocket"
	return u.String(), nil
}
