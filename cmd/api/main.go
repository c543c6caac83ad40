package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yerlan/authgate/internal/auth"
	"github.com/yerlan/authgate/internal/config"
	"github.com/yerlan/authgate/internal/logger"
	"github.com/yerlan/authgate/internal/server"
	"github.com/yerlan/authgate/internal/storage"
	"github.com/yerlan/authgate/internal/token"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logg, err := logger.Init()
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer logg.Sync()

	cfg, err := config.Load()
	if err != nil {
		logg.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	authRepo := auth.NewRepository(dbPool, cfg.Auth.BcryptCost)
	if err := authRepo.EnsureRoles(ctx, cfg.Auth.DefaultRole, "Admin"); err != nil {
		logg.Fatal("seed roles", zap.Error(err))
	}

	signer := token.NewSigner(cfg.Auth)
	authService := auth.NewService(authRepo, signer, cfg.Auth)

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		DB:          dbPool,
		AuthService: authService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("Authgate API listening", zap.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
