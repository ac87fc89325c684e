package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/consumers"
	"tessera/internal/database"
	"tessera/internal/jobs"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/repository"
)

// The sweeper binary runs the expiry loop and the NATS consumers in one
// process, for deployments that keep background work off the API instances.
// The in-process sweeper inside the API stays correct alongside it: every
// expiry is guarded, so two sweepers just race for the same guard.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	cfg.NATS.ClientID = "tessera-sweeper"
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}

	var availability *cache.AvailabilityCache
	if cfg.Redis.Enabled {
		availability, err = cache.NewAvailabilityCache(cfg.Redis)
		if err != nil {
			logger.Get().Warn("Availability cache unavailable, continuing without it", "error", err)
			availability = nil
		}
	}

	repos := repository.NewRepositories(db)

	sweeper := jobs.NewExpirySweeper(repos.Bookings, repos.Zones, natsClient, availability,
		cfg.Sweep.Interval, cfg.Sweep.BatchSize)
	sweeper.Start()

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		log.Fatalf("Failed to create consumer service: %v", err)
	}
	if err := consumerService.Start(); err != nil {
		log.Fatalf("Failed to start consumers: %v", err)
	}

	logger.Get().Info("Sweeper service started",
		"interval", cfg.Sweep.Interval, "batch_size", cfg.Sweep.BatchSize)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Get().Info("Shutting down sweeper service")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(ctx); err != nil {
		logger.Get().Error("Error during consumer shutdown", "error", err)
	}

	if err := natsClient.Close(); err != nil {
		logger.Get().Error("Error closing NATS connection", "error", err)
	}
	if err := availability.Close(); err != nil {
		logger.Get().Error("Error closing cache connection", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Get().Error("Error closing database connection", "error", err)
	}

	logger.Get().Info("Sweeper service stopped")
}
