package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/shortlet/api"
	"github.com/Domenick1991/shortlet/config"
	"github.com/Domenick1991/shortlet/internal/bootstrap"
	"github.com/Domenick1991/shortlet/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "time/tzdata"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	sugar := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx, cfg, zl, bootstrap.BuildOptions{Migrate: true})
	if err != nil {
		sugar.Fatalf("wire services: %v", err)
	}
	defer services.Close()

	if cfg.Log.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := api.Handlers{
		Bookings: api.NewBookingHandler(services.Bookings, services.Finance, services.Configs),
		Disputes: api.NewDisputeHandler(services.Disputes),
		Payouts:  api.NewPayoutHandler(services.Payouts),
		Finance:  api.NewFinanceConfigHandler(services.Configs),
	}
	if services.Stripe != nil {
		handlers.Webhooks = api.NewWebhookHandler(services.Stripe, services.Payouts, zl)
	}
	limiter := api.NewRateLimiter(cfg.HTTP.RateLimitPerSec, cfg.HTTP.RateLimitBurst, zl)
	router := api.NewRouter(handlers, limiter, zl)

	if err := bootstrap.Run(ctx, cfg.HTTP, router, zl); err != nil {
		sugar.Errorf("server error: %v", err)
		services.Close()
		os.Exit(1)
	}
}
