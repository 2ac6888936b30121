package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordina-erp/ordina-erp/internal/app"
	"github.com/ordina-erp/ordina-erp/internal/masterdata/articles"
	"github.com/ordina-erp/ordina-erp/internal/masterdata/suppliers"
	"github.com/ordina-erp/ordina-erp/internal/platform/cache"
	"github.com/ordina-erp/ordina-erp/internal/platform/db"
	"github.com/ordina-erp/ordina-erp/internal/purchase"
	"github.com/ordina-erp/ordina-erp/internal/reception"
	"github.com/ordina-erp/ordina-erp/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The supplier cache is best-effort: without redis the directory reads
	// straight from the database.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, supplier cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	directory := suppliers.NewDirectory(suppliers.NewRepository(pool), redisClient, cfg.SupplierCacheTTL)
	lookup := articles.NewLookup(articles.NewRepository(pool))

	purchaseService := purchase.NewService(purchase.NewRepository(pool), lookup, directory, logger)

	receptionService := reception.NewService(
		reception.NewRepository(pool),
		reception.NewAggregator(directory, reception.NewSchemaProbe(pool), reception.VatAllocator{DefaultRate: cfg.DefaultVATRate}),
		purchaseService,
		shared.NewOrderLocks(),
		logger,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ReceptionHandler: reception.NewHandler(logger, receptionService, !cfg.IsProduction()),
		PurchaseHandler:  purchase.NewHandler(logger, purchaseService, !cfg.IsProduction()),
		SuppliersHandler: suppliers.NewHandler(logger, directory, !cfg.IsProduction()),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	}
}
