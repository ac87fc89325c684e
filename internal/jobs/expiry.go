package jobs

import (
	"context"
	"time"

	"tessera/internal/cache"
	"tessera/internal/logger"
	"tessera/internal/metrics"
	"tessera/internal/models"
	"tessera/internal/repository"
)

type publisher interface {
	Publish(subject string, data interface{}) error
}

// ExpirySweeper reclaims capacity held by pending bookings whose hold lapsed.
// It only releases a zone when it personally won the expiry guard, so racing
// against a concurrent settlement or a lazy read-path expiry can never
// double-release.
type ExpirySweeper struct {
	bookingRepo  repository.BookingRepository
	zoneRepo     repository.ZoneRepository
	publisher    publisher
	availability *cache.AvailabilityCache
	interval     time.Duration
	batchSize    int
	now          func() time.Time
	stop         chan struct{}
	done         chan struct{}
}

func NewExpirySweeper(bookingRepo repository.BookingRepository, zoneRepo repository.ZoneRepository, pub publisher, availability *cache.AvailabilityCache, interval time.Duration, batchSize int) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ExpirySweeper{
		bookingRepo:  bookingRepo,
		zoneRepo:     zoneRepo,
		publisher:    pub,
		availability: availability,
		interval:     interval,
		batchSize:    batchSize,
		now:          time.Now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *ExpirySweeper) Start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stop:
				return
			}
		}
	}()

	logger.Get().Info("Expiry sweeper started", "interval", s.interval, "batch_size", s.batchSize)
}

func (s *ExpirySweeper) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce sweeps a single batch. One bad booking never stalls the rest of
// the batch; failures are logged and retried on the next tick.
func (s *ExpirySweeper) RunOnce(ctx context.Context) int {
	started := s.now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	expired, err := s.bookingRepo.ListExpired(ctx, started, s.batchSize)
	if err != nil {
		logger.Get().Error("Failed to list expired bookings", "error", err)
		return 0
	}

	swept := 0
	for i := range expired {
		if s.sweepOne(ctx, &expired[i]) {
			swept++
		}
	}

	if swept > 0 {
		logger.Get().Info("Expired stale bookings", "count", swept)
	}
	return swept
}

func (s *ExpirySweeper) sweepOne(ctx context.Context, booking *models.Booking) bool {
	won, err := s.bookingRepo.MarkExpired(ctx, booking.ID)
	if err != nil {
		logger.Get().Error("Failed to expire booking",
			"error", err, "booking_id", booking.ID, "booking_code", booking.BookingCode)
		return false
	}
	if !won {
		// Someone settled, cancelled or expired it between the listing and
		// the guard. Their transition owns the capacity movement.
		return false
	}

	if err := s.zoneRepo.Release(ctx, booking.ZoneID, booking.Quantity, false); err != nil {
		logger.Get().Error("Failed to release zone capacity after expiry",
			"error", err, "booking_id", booking.ID, "zone_id", booking.ZoneID)
	}

	metrics.BookingsExpired.Inc()
	s.availability.InvalidateZone(ctx, booking.ZoneID)

	if err := s.publisher.Publish(models.EventBookingExpired, models.BookingExpiredEvent{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		ZoneID:      booking.ZoneID,
		Quantity:    booking.Quantity,
		Reason:      "hold lapsed",
		Timestamp:   s.now(),
	}); err != nil {
		logger.Get().Error("Failed to publish booking expired event",
			"error", err, "booking_id", booking.ID)
	}

	return true
}
