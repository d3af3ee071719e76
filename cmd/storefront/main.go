// Storefront - local cart API over the cart reconciliation engine.
// Serves REST and MCP on one port and keeps the cart in sync with the backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-sync/internal/catalog"
	"cart-sync/internal/config"
	"cart-sync/internal/gateway"
	"cart-sync/internal/handler"
	"cart-sync/internal/localcart"
	"cart-sync/internal/middleware"
	"cart-sync/internal/session"
	"cart-sync/internal/storage"
	"cart-sync/internal/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("backend_url", cfg.APIBaseURL()),
		slog.String("storage_dir", cfg.StorageDir),
		slog.Bool("tls_fingerprint", cfg.TLSFingerprint),
		slog.Bool("token_signature_check", cfg.TokenKey != nil),
	)

	store, err := storage.NewFileStore(cfg.StorageDir, logger, nil)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	logger.Info("storage opened", slog.String("dir", store.Dir()))

	gw, err := gateway.NewClient(cfg.APIBaseURL(), gateway.ClientOptions{
		Timeout:        cfg.SyncTimeout,
		TLSFingerprint: cfg.TLSFingerprint,
		AppName:        "cart-sync",
		Version:        cfg.APIVersion,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	sess, err := session.New(session.Config{
		Store:     store,
		Local:     localcart.New(store, logger),
		Validator: token.New(cfg.TokenKey),
		Gateway:   gw,
		Logger:    logger,
		Options: session.Options{
			SerializeLineSync: cfg.SerializeLineSync,
			SyncTimeout:       cfg.SyncTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer sess.Close()

	// Load failures fall back to the local cart, so only a broken watcher
	// or a disposed session stops startup.
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	cat := catalog.New(gw, logger, catalog.Options{
		Currency:    cfg.Currency,
		DeliveryFee: cfg.DeliveryFee,
	})
	go refreshProducts(ctx, cat, cfg.ProductRefresh)

	h := handler.New(sess, cat, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request ID → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	// Let background syncs land before disposing the session.
	flushed := make(chan struct{})
	go func() {
		sess.Flush()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(cfg.SyncTimeout):
		logger.Warn("background syncs still running at shutdown")
	}

	logger.Info("server stopped")
	return nil
}

// refreshProducts loads the catalog now and then every interval until ctx
// is done. Failures keep the previous list.
func refreshProducts(ctx context.Context, cat *catalog.Catalog, interval time.Duration) {
	cat.Refresh(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cat.Refresh(ctx)
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
