package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/synaptiq/model-gateway/internal/api"
	"github.com/synaptiq/model-gateway/internal/catalog"
	"github.com/synaptiq/model-gateway/internal/config"
	"github.com/synaptiq/model-gateway/internal/conversation"
	"github.com/synaptiq/model-gateway/internal/gateway"
	"github.com/synaptiq/model-gateway/internal/httputil"
	"github.com/synaptiq/model-gateway/internal/notifications"
	"github.com/synaptiq/model-gateway/internal/provider/bedrock"
	"github.com/synaptiq/model-gateway/internal/telemetry"
	"github.com/synaptiq/model-gateway/internal/usage"
	"github.com/synaptiq/model-gateway/internal/usage/sink"
	"github.com/synaptiq/model-gateway/internal/vendor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting model gateway", "addr", cfg.Addr, "region", cfg.AWSRegion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, "model-gateway", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithHTTPClient(httputil.NewClient(httputil.StreamingConfig())),
	)
	if err != nil {
		slog.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	cat := catalog.NewDefault()
	if cfg.CatalogSecretName != "" {
		loader := catalog.NewSecretsLoader(awsCfg)
		models, err := loader.Load(ctx, cfg.CatalogSecretName)
		if err != nil {
			slog.Warn("failed to load catalog overlay, using defaults", "secret", cfg.CatalogSecretName, "error", err)
		} else {
			cat = cat.Overlay(models)
			slog.Info("loaded catalog overlay", "secret", cfg.CatalogSecretName, "models", len(models))
		}
	}

	var usageSink sink.Sink
	switch {
	case cfg.UsageQueueURL != "":
		usageSink = sink.NewSQS(awsCfg, cfg.UsageQueueURL)
		slog.Info("using SQS usage sink", "queue", cfg.UsageQueueURL)
	case cfg.DatabaseURL != "":
		pg, err := sink.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		usageSink = pg
		slog.Info("using postgres usage sink")
	default:
		usageSink = sink.NewMemory()
		slog.Info("using in-memory usage sink")
	}

	var usageOpts []usage.Option
	if cfg.UsageQueueSize > 0 {
		usageOpts = append(usageOpts, usage.WithQueueSize(cfg.UsageQueueSize))
	}
	usageManager := usage.NewManager(usageSink, usageOpts...)

	var store conversation.Store
	var storeReady func(ctx context.Context) error
	if cfg.RedisURL != "" {
		redisStore, err := conversation.NewRedis(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		storeReady = redisStore.Ping
		slog.Info("using redis conversation store")
	} else {
		store = conversation.NewMemory()
		slog.Info("using in-memory conversation store")
	}

	var notifier notifications.Notifier
	if cfg.AlertTopicARN != "" {
		notifier = notifications.NewSNSNotifier(awsCfg, cfg.AlertTopicARN)
		slog.Info("using SNS alert notifier", "topic", cfg.AlertTopicARN)
	} else {
		notifier = notifications.NewInMemoryNotifier()
		slog.Info("alert topic not configured, alerts stay in memory")
	}

	gw := gateway.New(gateway.Config{
		Catalog: cat,
		Providers: map[string]gateway.Provider{
			"bedrock": bedrock.New(awsCfg, vendor.NewRegistry()),
		},
		Usage:         usageManager,
		Conversations: store,
		Notifier:      notifier,
		Source:        "api",
	})

	handler := api.NewHandler(api.HandlerConfig{
		Gateway:    gw,
		Catalog:    cat,
		ReadyCheck: storeReady,
	})

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer drainCancel()

	if err := usageManager.Close(drainCtx); err != nil {
		slog.Warn("usage queue did not drain cleanly", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
