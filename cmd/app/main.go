package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topup-store/internal/audit"
	"topup-store/internal/cache"
	"topup-store/internal/config"
	"topup-store/internal/gateway"
	"topup-store/internal/handlers"
	"topup-store/internal/httpserver"
	"topup-store/internal/logging"
	"topup-store/internal/metrics"
	"topup-store/internal/push"
	"topup-store/internal/repo"
	"topup-store/internal/visualid"
	"topup-store/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	logger.Info("starting service", "env", cfg.AppEnv)

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repository, err := repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	redis := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer redis.Close()

	if err := redis.Ping(ctx); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	auditStore, err := audit.New(ctx, cfg.AuditDBPath, migrations.Files, logger)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	gatewayClient := gateway.New(gateway.Config{
		BaseURL:       cfg.GatewayBaseURL,
		AuthURL:       cfg.GatewayAuthURL,
		ClientID:      cfg.GatewayClientID,
		ClientSecret:  cfg.GatewayClientSecret,
		ClientVersion: cfg.GatewayClientVersion,
		Timeout:       cfg.GatewayTimeout,
	}, logger, metricRegistry, redis)

	pushClient := push.New(push.Config{
		Endpoint:  cfg.FCMEndpoint,
		ServerKey: cfg.FCMServerKey,
		Timeout:   cfg.PushTimeout,
	}, logger, metricRegistry)

	pages := cache.NewPageInvalidator(redis, logger, metricRegistry)
	promoter := visualid.New(repository, logger)

	settled := make(chan handlers.OrderSettled, 128)
	worker := handlers.NewSideEffectWorker(settled, pushClient, pages, promoter, handlers.SideEffectConfig{
		StoreName: cfg.StoreName,
		BaseURL:   cfg.PublicBaseURL,
	}, metricRegistry, logger)
	go worker.Run(ctx)

	processor := handlers.NewPaymentWebhookProcessor(repository, auditStore, settled, metricRegistry, logger)
	webhook := gateway.NewWebhookHandler(logger, metricRegistry, cfg.WebhookUsername, cfg.WebhookPassword, processor)

	server := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Handlers{
		PaymentWebhook: webhook,
	}, cfg.PublicBasePath, cfg.PublicBaseURL)
	server.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Redis:      redis,
		Gateway:    gatewayClient,
		Audit:      auditStore,
		Pages:      pages,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	logger.Info("service stopped")
	return nil
}
