package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/accountpurge/internal/api"
	"github.com/prudhvinik1/accountpurge/internal/app"
	"github.com/prudhvinik1/accountpurge/internal/config"
	"github.com/prudhvinik1/accountpurge/internal/logger"
	"go.uber.org/zap"
)

func main() {
	godotenv.Load()

	logr, err := logger.Init(logger.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logr.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logr.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	a.Scheduler.Start(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           api.NewHandler(a.Scheduler, a.Accounts, a.Auth, logr.Named("api")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	go func() {
		<-ctx.Done()

		logr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logr.Info("starting server", zap.String("port", cfg.ServerPort))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logr.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	// Wait for in-flight purge runs before closing the stores.
	<-a.Scheduler.Stop().Done()
	logr.Info("stopped gracefully")
}
