// Package main запускает HTTP-сервер сервиса проката велосипедов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bikerent-system/internal/auth"
	"github.com/mmeshcher/bikerent-system/internal/config"
	"github.com/mmeshcher/bikerent-system/internal/handler"
	"github.com/mmeshcher/bikerent-system/internal/lock"
	"github.com/mmeshcher/bikerent-system/internal/middleware"
	"github.com/mmeshcher/bikerent-system/internal/repository"
	"github.com/mmeshcher/bikerent-system/internal/reservation"
	"github.com/mmeshcher/bikerent-system/internal/service"
)

const tokenCleanupInterval = time.Hour

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret)
	authService := auth.NewService(repo, tokens, logger)

	locks := lock.NewManager(cfg.LockTimeout)
	coordinator := reservation.NewCoordinator(repo, locks, logger)

	catalogService := service.NewService(repo, logger)

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	h := handler.NewHandler(authService, coordinator, catalogService, logger, authMiddleware)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой очистки refresh-токенов
	g.Go(func() error {
		authService.StartTokenCleanup(ctx, tokenCleanupInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting bikerent server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
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
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
