// Package main запускает HTTP-сервер сервиса лояльности.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/shoeclean-loyalty/internal/config"
	"github.com/mmeshcher/shoeclean-loyalty/internal/directory"
	"github.com/mmeshcher/shoeclean-loyalty/internal/handler"
	"github.com/mmeshcher/shoeclean-loyalty/internal/metrics"
	"github.com/mmeshcher/shoeclean-loyalty/internal/middleware"
	"github.com/mmeshcher/shoeclean-loyalty/internal/repository"
	"github.com/mmeshcher/shoeclean-loyalty/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI, cfg.RunMigrations)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 10*time.Second)
	err = repo.CheckSchema(checkCtx)
	cancelCheck()
	if err != nil {
		if cfg.SchemaCheck == config.SchemaCheckStrict || !repository.IsSchemaMissing(err) {
			repo.Close()
			sugar.Fatalw("database schema check failed", "error", err.Error())
		}
		sugar.Warnw("database schema incomplete, continuing", "error", err.Error())
	}

	var customers service.CustomerDirectory = repo
	if cfg.CustomerDirectoryAddress != "" {
		customers = directory.NewClient(cfg.CustomerDirectoryAddress)
		sugar.Infow("using remote customer directory", "addr", cfg.CustomerDirectoryAddress)
	}

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	svc := service.NewService(repo, customers, service.ReferralPolicy{
		RequireReferredCustomerExists: cfg.RequireReferredCustomer,
	}, logger, ledgerMetrics)
	defer svc.Close()

	if cfg.AdminSecret == "" {
		sugar.Warn("ADMIN_SECRET is not set, admin login disabled")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AdminSecret)

	if cfg.CheckoutAPIKey == "" {
		sugar.Warn("CHECKOUT_API_KEY is not set, checkout routes disabled")
	}
	serviceAuth := middleware.NewAPIKeyMiddleware(cfg.CheckoutAPIKey)

	h := handler.NewHandler(svc, logger, authMiddleware, serviceAuth, promhttp.Handler())

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting loyalty server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// остановка по сигналу или по ошибке сервера
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}
