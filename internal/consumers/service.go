package consumers

import (
	"context"

	"tessera/internal/config"
	"tessera/internal/database"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/search"
)

// ConsumerService owns the worker-side wiring: database, NATS subscriptions
// and the optional search index.
type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	repos    *repository.Repositories
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	repos := repository.NewRepositories(db)

	var bookingIndex *search.BookingIndex
	if cfg.Elasticsearch.Enabled {
		bookingIndex, err = search.NewBookingIndex(cfg.Elasticsearch)
		if err != nil {
			logger.Get().Warn("Booking search index unavailable, consumers run without reindexing", "error", err)
			bookingIndex = nil
		}
	}

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		repos:    repos,
		handlers: NewHandlers(repos, bookingIndex),
	}, nil
}

func (cs *ConsumerService) Start() error {
	logger.Get().Info("Starting NATS consumers")

	if _, err := cs.nats.SubscribeQueue(models.EventBookingCreated, "consumers", cs.handlers.HandleBookingCreated); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventBookingExpired, "consumers", cs.handlers.HandleBookingExpired); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventBookingCancelled, "consumers", cs.handlers.HandleBookingCancelled); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventPaymentSettled, "consumers", cs.handlers.HandlePaymentSettled); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventTicketCheckedIn, "consumers", cs.handlers.HandleTicketCheckedIn); err != nil {
		return err
	}

	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	if err := cs.nats.Close(); err != nil {
		logger.Get().Error("Error closing NATS connection", "error", err)
	}
	return cs.db.Close()
}
