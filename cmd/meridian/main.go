package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridian-trade/meridian/internal/app"
	"github.com/meridian-trade/meridian/internal/catalog"
	"github.com/meridian-trade/meridian/internal/customers"
	"github.com/meridian-trade/meridian/internal/invoices"
	"github.com/meridian-trade/meridian/internal/platform/cache"
	"github.com/meridian-trade/meridian/internal/platform/db"
	"github.com/meridian-trade/meridian/internal/reservation"
	"github.com/meridian-trade/meridian/internal/shared"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	reservationStore := reservation.NewRepository(pool)
	ledger := reservation.NewLedger(reservationStore, catalogRepo, nil)

	customersRepo := customers.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)
	locker := shared.NewProductLocker(redisClient, cfg.ProductLockTTL, cfg.ProductLockRetry)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, customersRepo, ledger, locker, auditLogger, logger, nil)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	catalogHandler := catalog.NewHandler(logger, catalogRepo, ledger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		InvoiceHandler: invoiceHandler,
		CatalogHandler: catalogHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server listen", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
