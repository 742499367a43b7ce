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

	"tile-depot/internal/config"
	"tile-depot/internal/database"
	"tile-depot/internal/dedup"
	"tile-depot/internal/handler"
	"tile-depot/internal/metrics"
	"tile-depot/internal/notify"
	"tile-depot/internal/payment"
	"tile-depot/internal/promo"
	"tile-depot/internal/repository"
	"tile-depot/internal/router"
	"tile-depot/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting tile-depot order engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	m := metrics.New()

	// Repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	promoRepo := repository.NewPromoRepository(pool, logger)
	webhookRepo := repository.NewWebhookEventRepository(pool, logger)
	notificationRepo := repository.NewNotificationRepository(pool, logger)

	if err := importPromos(ctx, cfg, promoRepo, m, logger); err != nil {
		return fmt.Errorf("failed to import promo catalogue: %w", err)
	}

	// Notifications: database always, Kafka when enabled
	sinks := notify.Multi{notify.NewStoreNotifier(notificationRepo)}
	if cfg.Kafka.Enabled {
		kafkaNotifier := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), "tile-depot")
		defer func() {
			if err := kafkaNotifier.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close kafka writer")
			}
		}()
		sinks = append(sinks, kafkaNotifier)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing order events to kafka")
	}
	sender := notify.NewBestEffort(sinks, 3*time.Second, m, logger)

	// Webhook dedup fast path
	var cache dedup.Cache = dedup.Noop{}
	if cfg.Redis.Enabled {
		rdb := dedup.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The webhook_events table still guarantees idempotency.
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, webhook dedup uses the database only")
		}
		cache = dedup.NewRedisCache(rdb, "paymongo", cfg.Redis.DedupTTL)
	}

	gateway, err := payment.NewPayMongoClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize payment gateway: %w", err)
	}
	verifier := payment.NewVerifier(cfg.Payment.WebhookSecret, cfg.Payment.LiveMode, cfg.Payment.SignatureMaxSkew)
	if !verifier.Enabled() {
		logger.Warn().Msg("PAYMONGO_WEBHOOK_SECRET is not set, webhook signatures are not verified")
	}

	// Services
	orderService := service.NewOrderService(orderRepo, productRepo, promoRepo, sender, m, cfg.Order, logger)
	stateMachine := service.NewStateMachine(orderRepo, productRepo, sender, m, cfg.Order.TxTimeout, logger)
	paymentService := service.NewPaymentService(orderRepo, webhookRepo, stateMachine, gateway, verifier, cache, m, cfg.Payment, logger)

	// HTTP
	orderHandler := handler.NewOrderHandler(orderService, stateMachine, logger)
	paymentHandler := handler.NewPaymentHandler(paymentService, logger)
	mux := router.New(orderHandler, paymentHandler, m.Handler(), cfg.Auth.APIKey, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// importPromos loads the configured catalogue files, from S3 first when
// enabled and from the local directory otherwise.
func importPromos(ctx context.Context, cfg *config.Config, store promo.Store, m *metrics.Metrics, logger zerolog.Logger) error {
	if len(cfg.Promo.Files) == 0 {
		logger.Info().Msg("no promo catalogue files configured")
		return nil
	}

	fileLoader := promo.NewFileLoader(cfg.Promo.Dir, logger)
	var s3Loader promo.Loader
	s3Enabled := cfg.S3.Enabled
	if s3Enabled {
		l, err := promo.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
			s3Enabled = false
		} else {
			s3Loader = l
		}
	} else {
		logger.Info().Msg("using local file system for promo files (S3 disabled)")
	}

	loader := promo.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, s3Enabled, logger)
	n, err := promo.NewImporter(loader, store, m, logger).Import(ctx, cfg.Promo.Files)
	if err != nil {
		return err
	}

	logger.Info().Int("codes", n).Strs("files", cfg.Promo.Files).Msg("promo catalogue imported")
	return nil
}
