package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tessera/internal/api"
	"tessera/internal/config"
	"tessera/internal/logger"
)

func main() {
	// .env is a local development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	server := api.NewServer(cfg)
	server.StartSweeper()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.GetRouter(),
	}

	go func() {
		logger.Get().Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Get().Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Get().Error("Server forced to shutdown", "error", err)
	}

	if err := server.Cleanup(); err != nil {
		logger.Get().Error("Cleanup failed", "error", err)
	}

	logger.Get().Info("Server stopped")
}
