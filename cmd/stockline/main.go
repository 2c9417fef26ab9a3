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

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stockline/stockline/internal/app"
	"github.com/stockline/stockline/internal/platform/cache"
	"github.com/stockline/stockline/internal/platform/db"
	"github.com/stockline/stockline/internal/purchase"
	"github.com/stockline/stockline/internal/purchaseorder"
	"github.com/stockline/stockline/internal/shared"
	"github.com/stockline/stockline/internal/stock"
	"github.com/stockline/stockline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	publisher := jobs.NewPublisher(redisOpts)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	levelCache := stock.NewLevelCache(redisClient, cfg.StockCacheTTL)
	stockService := stock.NewService(stock.NewRepository(pool), audit, publisher, levelCache)
	poService := purchaseorder.NewService(purchaseorder.NewRepository(pool), stockService, audit, publisher, idempotency)
	purchaseService := purchase.NewService(purchase.NewRepository(pool), stockService, audit)

	validate := validator.New()
	inspector := asynq.NewInspector(redisOpts)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		PurchaseOrderHandler: purchaseorder.NewHandler(logger, poService, validate),
		PurchaseHandler:      purchase.NewHandler(logger, purchaseService, validate),
		StockHandler:         stock.NewHandler(logger, stockService),
		JobsHandler:          jobs.NewHandler(inspector, logger),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
