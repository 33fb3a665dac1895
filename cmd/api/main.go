package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merocart/internal/config"
	"merocart/internal/database"
	"merocart/internal/gateway"
	"merocart/internal/handler"
	"merocart/internal/notify"
	"merocart/internal/promo"
	"merocart/internal/repository"
	"merocart/internal/router"
	"merocart/internal/service"
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

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting merocart API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	paymentRepo := repository.NewPaymentRepository(pool, logger)
	cartRepo := repository.NewCartRepository(pool, logger)

	// Initialize promo-code loader with S3 and local fallback
	fileLoader := promo.NewFileLoader(logger)
	var promoLoader promo.Loader = fileLoader

	if cfg.Promo.S3Enabled {
		s3Loader, err := promo.NewS3Loader(ctx, cfg.Promo.S3Bucket, cfg.Promo.S3Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		} else {
			promoLoader = promo.NewFallbackLoader(s3Loader, fileLoader, cfg.Promo.S3Prefix, true, logger)
		}
	} else {
		logger.Info().Msg("using local file system for promo code files (S3 disabled)")
	}

	// Initialize promo engine
	promoEngine, err := promo.NewEngine(ctx, &promo.EngineConfig{
		FilePaths:    cfg.Promo.FilePaths,
		DiscountRate: cfg.Checkout.DiscountRate,
	}, promoLoader, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize promo engine: %w", err)
	}
	defer promoEngine.Close()

	// Initialize event publisher
	var notifier notify.Notifier
	if cfg.AMQP.Enabled {
		notifier, err = notify.NewAMQP(cfg.AMQP, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize event publisher: %w", err)
		}
	} else {
		notifier = notify.NewNop()
		logger.Info().Msg("event publishing disabled")
	}
	defer notifier.Close()

	// Initialize payment gateway adapters
	gwTimeout := time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second
	if cfg.Gateway.TestMode {
		logger.Warn().Msg("gateway test mode enabled, authorizations auto-succeed")
	}
	gateways := gateway.NewRegistry(
		gateway.NewStripe(cfg.Gateway.Stripe, gwTimeout, cfg.Gateway.TestMode, logger),
		gateway.NewKhalti(cfg.Gateway.Khalti, gwTimeout, cfg.Gateway.TestMode, logger),
		gateway.NewEsewa(cfg.Gateway.Esewa, cfg.Gateway.TestMode, logger),
		gateway.NewCOD(logger),
	)

	// Initialize services
	checkoutService := service.NewCheckoutService(
		orderRepo, productRepo, paymentRepo, cartRepo,
		promoEngine, gateways, notifier, cfg.Checkout, logger,
	)
	reconService := service.NewReconciliationService(
		orderRepo, productRepo, paymentRepo, cartRepo,
		gateways, notifier, cfg.Checkout, logger,
	)

	// Initialize HTTP handlers
	checkoutHandler := handler.NewCheckoutHandler(checkoutService, logger)
	paymentHandler := handler.NewPaymentHandler(reconService, logger)

	// Initialize router
	mux := router.New(checkoutHandler, paymentHandler, cfg.Auth.APIKey, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
