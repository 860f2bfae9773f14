package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"airdrop-client/internal/application"
	"airdrop-client/internal/bootstrap"
	"airdrop-client/internal/config"
	infraconfig "airdrop-client/internal/infrastructure/config"
	httpserver "airdrop-client/internal/infrastructure/http"
	"airdrop-client/internal/infrastructure/logx"
	"airdrop-client/internal/infrastructure/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	logger := logx.L()
	cfg := config.Load()
	addr := ":" + cfg.Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, closeStores, err := bootstrap.BuildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("bootstrap stores", zap.Error(err))
	}
	defer closeStores()

	services, closeRedis, err := bootstrap.BuildRedis(cfg)
	if err != nil {
		logger.Fatal("bootstrap redis", zap.Error(err))
	}
	defer closeRedis()

	aggregator := application.NewPriceAggregator(
		bootstrap.BuildSources(cfg),
		infraconfig.BreakerThreshold,
		infraconfig.BreakerCooldown,
		logger.Named("prices"),
	)
	synchronizer := application.NewBalanceSynchronizer(
		stores.Rewards,
		stores.Feed,
		aggregator,
		logger.Named("balances"),
		application.WithPollInterval(cfg.PollInterval),
		application.WithRetryDelays(infraconfig.LoadRetryDelays()),
		application.WithResubscribeInterval(infraconfig.ResubscribeInterval),
	)
	rewards := application.NewRewardService(stores.Rewards, services.Idem, synchronizer, logger.Named("rewards"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		(&worker.PriceWorker{Quotes: aggregator, RefreshEvery: cfg.PriceRefresh, Log: logger.Named("price_worker")}).Start(ctx)
	}()
	go func() {
		defer wg.Done()
		synchronizer.Run(ctx)
	}()

	srv := httpserver.NewServer(aggregator, synchronizer, rewards).WithPing(stores.Ping)
	server := &http.Server{
		Addr:    addr,
		Handler: httpserver.NewRouter(srv),
	}

	go func() {
		logger.Info("server started", zap.String("addr", addr), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shCancel := context.WithTimeout(context.Background(), infraconfig.DefaultShutdownTimeout)
	defer shCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
	wg.Wait()
	logger.Info("server stopped")
}
