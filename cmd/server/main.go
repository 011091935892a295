package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/academy-payments/internal/adapter/handler/http"
	"github.com/wekeepgrowing/academy-payments/internal/config"
	"github.com/wekeepgrowing/academy-payments/internal/domain/money"
	domainNotification "github.com/wekeepgrowing/academy-payments/internal/domain/notification"
	domainProvider "github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	"github.com/wekeepgrowing/academy-payments/internal/infrastructure/database"
	grpcServer "github.com/wekeepgrowing/academy-payments/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/academy-payments/internal/infrastructure/http"
	"github.com/wekeepgrowing/academy-payments/internal/infrastructure/metrics"
	"github.com/wekeepgrowing/academy-payments/internal/infrastructure/notification"
	"github.com/wekeepgrowing/academy-payments/internal/infrastructure/provider"
	"github.com/wekeepgrowing/academy-payments/internal/infrastructure/settings"
	"github.com/wekeepgrowing/academy-payments/internal/usecase"
	"github.com/wekeepgrowing/academy-payments/pkg/logger"
	"github.com/wekeepgrowing/academy-payments/pkg/messaging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(cfg.Log.ZapConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	zapLogger = zapLogger.With(
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
	)
	defer zapLogger.Sync()

	maxAmount, err := decimal.NewFromString(cfg.Payment.MaxAmount)
	if err != nil {
		zapLogger.Fatal("Invalid payment.max_amount", zap.String("value", cfg.Payment.MaxAmount), zap.Error(err))
	}

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zapLogger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher, closeTransport := newDispatcher(ctx, cfg, zapLogger, m)

	academySettings := settings.NewFileProvider(cfg.Settings.Path, cfg.Settings.CacheTTL, zapLogger)
	gateways := provider.NewFactory(cfg, zapLogger)

	intents := usecase.NewPaymentIntentService(
		repos.Ledger,
		academySettings,
		gateways,
		money.NewNormalizer(maxAmount),
		usecase.PaymentIntentConfig{
			SupportedCurrencies: cfg.Payment.SupportedCurrencies,
			GatewayTimeout:      cfg.Payment.GatewayTimeout,
			DefaultDescription:  cfg.Payment.DefaultDescription,
		},
		zapLogger,
		usecase.WithIntentRecorder(m),
	)
	ledger := usecase.NewLedgerQueryService(repos.Ledger, academySettings, zapLogger)
	guard := usecase.NewIdempotencyGuard(repos.Ledger, zapLogger)

	h := httpServer.Handlers{
		Payment: handlers.NewPaymentHandler(intents, zapLogger),
		Ledger:  handlers.NewLedgerHandler(ledger, zapLogger),
	}
	if verifier, ok := gateways.Gateway(domainProvider.GatewayTypeStripe); ok && cfg.Service.StripeWebhookSecret != "" {
		reconciler := usecase.NewWebhookReconciler(verifier, repos.Ledger, guard, dispatcher, zapLogger,
			usecase.WithWebhookRecorder(m))
		h.Webhook = handlers.NewWebhookHandler(reconciler, cfg.Webhook.MaxBodyBytes, zapLogger)
	}

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, zapLogger)
	httpSrv := httpServer.NewServer(cfg, zapLogger, h, m, registry)

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	go runEviction(ctx, guard, cfg.Webhook, zapLogger)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	// Outcome notifications still in flight get the remaining budget
	if err := dispatcher.Close(shutdownCtx); err != nil {
		zapLogger.Error("Failed to drain notifications", zap.Error(err))
	}
	if err := closeTransport(); err != nil {
		zapLogger.Error("Failed to close notification transport", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}

// newDispatcher builds the outcome notifier selected by notification.driver.
// Delivery always runs in the background so webhook acks never wait on it.
func newDispatcher(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger, m *metrics.Metrics) (*notification.AsyncDispatcher, func() error) {
	var next domainNotification.Dispatcher = notification.NewLogDispatcher(zapLogger)
	closeTransport := func() error { return nil }

	if cfg.Notification.Driver == "redis" {
		publisher, err := messaging.NewRedisPublisher(ctx, messaging.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		redisDispatcher := notification.NewRedisDispatcher(publisher, cfg.Notification.Channel)
		next = redisDispatcher
		closeTransport = redisDispatcher.Close
		zapLogger.Info("Publishing payment outcomes to redis", zap.String("channel", cfg.Notification.Channel))
	}

	return notification.NewAsyncDispatcher(next, cfg.Notification.Timeout, zapLogger, m), closeTransport
}

// runEviction drops processed-event markers older than the retention window.
func runEviction(ctx context.Context, guard *usecase.IdempotencyGuard, cfg config.WebhookConfig, zapLogger *zap.Logger) {
	if cfg.EventRetention <= 0 || cfg.EvictInterval <= 0 {
		zapLogger.Info("Processed event eviction disabled")
		return
	}

	ticker := time.NewTicker(cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := guard.Evict(ctx, cfg.EventRetention)
			if err != nil {
				zapLogger.Error("Failed to evict processed events", zap.Error(err))
				continue
			}
			if removed > 0 {
				zapLogger.Info("Evicted processed events", zap.Int64("count", removed))
			}
		}
	}
}
