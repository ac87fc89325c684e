package service

import (
	"context"
	"fmt"
	"time"

	"tessera/internal/cache"
	"tessera/internal/config"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/metrics"
	"tessera/internal/middleware"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/search"
)

type BookingService struct {
	bookingRepo  repository.BookingRepository
	eventRepo    repository.EventRepository
	zoneRepo     repository.ZoneRepository
	areaRepo     repository.AreaRepository
	publisher    eventPublisher
	availability *cache.AvailabilityCache
	bookingIndex *search.BookingIndex
	holdTTL      time.Duration
	now          func() time.Time
}

func NewBookingService(cfg *config.Config, repos *repository.Repositories, publisher eventPublisher, availability *cache.AvailabilityCache, bookingIndex *search.BookingIndex) *BookingService {
	return &BookingService{
		bookingRepo:  repos.Bookings,
		eventRepo:    repos.Events,
		zoneRepo:     repos.Zones,
		areaRepo:     repos.Areas,
		publisher:    publisher,
		availability: availability,
		bookingIndex: bookingIndex,
		holdTTL:      cfg.Booking.HoldTTL,
		now:          time.Now,
	}
}

// Create validates the request against the event, zone and area, then places
// the hold. The capacity and seat checks run again inside the reservation
// transaction; the validation here exists to fail fast with precise errors.
func (s *BookingService) Create(ctx context.Context, userID int64, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	now := s.now()

	event, err := s.eventRepo.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !now.Before(event.StartsAt) {
		return nil, apperrors.ErrEventStarted
	}

	zone, err := s.zoneRepo.GetByID(ctx, req.ZoneID)
	if err != nil {
		return nil, err
	}
	if zone.EventID != req.EventID {
		return nil, apperrors.Validation("zone_id", "zone does not belong to the event")
	}
	if !zone.OnSale(now) {
		return nil, apperrors.ErrSaleClosed
	}

	if err := s.validateSeats(ctx, zone, req); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		BookingCode:   newBookingCode(now),
		UserID:        userID,
		EventID:       req.EventID,
		ZoneID:        req.ZoneID,
		AreaID:        req.AreaID,
		Seats:         req.Seats,
		Quantity:      req.Quantity,
		UnitPrice:     zone.Price,
		TotalPrice:    zone.Price * int64(req.Quantity),
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		ExpiresAt:     now.Add(s.holdTTL),
	}

	if err := s.bookingRepo.CreateReserved(ctx, booking); err != nil {
		return nil, err
	}

	metrics.BookingsCreated.Inc()
	s.availability.InvalidateZone(ctx, booking.ZoneID)
	s.indexBooking(ctx, booking)

	s.publish(ctx, models.EventBookingCreated, models.BookingCreatedEvent{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		EventID:     booking.EventID,
		ZoneID:      booking.ZoneID,
		UserID:      booking.UserID,
		Quantity:    booking.Quantity,
		ExpiresAt:   booking.ExpiresAt,
		Timestamp:   now,
	})
	s.publishZoneInventory(ctx, booking.ZoneID)

	return &models.CreateBookingResponse{
		ID:          booking.ID,
		BookingCode: booking.BookingCode,
		Status:      booking.Status,
		TotalPrice:  booking.TotalPrice,
		ExpiresAt:   booking.ExpiresAt,
	}, nil
}

func (s *BookingService) validateSeats(ctx context.Context, zone *models.Zone, req *models.CreateBookingRequest) error {
	if !zone.HasSeating {
		if len(req.Seats) > 0 {
			return apperrors.Validation("seats", "zone is general admission")
		}
		return nil
	}

	if req.AreaID == nil {
		return apperrors.Validation("area_id", "seated zone requires an area")
	}
	if len(req.Seats) != req.Quantity {
		return apperrors.Validation("seats", "seat count must match quantity")
	}

	seen := make(map[string]struct{}, len(req.Seats))
	for _, seat := range req.Seats {
		if _, dup := seen[seat]; dup {
			return apperrors.Validation("seats", fmt.Sprintf("duplicate seat %s", seat))
		}
		seen[seat] = struct{}{}
	}

	area, err := s.areaRepo.GetByID(ctx, *req.AreaID)
	if err != nil {
		return err
	}
	if area.ZoneID != zone.ID {
		return apperrors.Validation("area_id", "area does not belong to the zone")
	}

	var unknown []string
	for _, seat := range req.Seats {
		if !area.HasSeat(seat) {
			unknown = append(unknown, seat)
		}
	}
	if len(unknown) > 0 {
		return &apperrors.SeatConflictError{Seats: unknown, Invalid: true}
	}

	return nil
}

// Cancel releases a pending or confirmed booking. The guard decides the
// winner; the hold is returned to the zone only when this call actually
// performed the transition.
func (s *BookingService) Cancel(ctx context.Context, userID int64, req *models.CancelBookingRequest) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByCode(ctx, req.BookingCode)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, booking); err != nil {
		return nil, err
	}

	event, err := s.eventRepo.GetByID(ctx, booking.EventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !now.Before(event.StartsAt) {
		return nil, apperrors.ErrEventStarted
	}

	reason := "cancelled by customer"
	if req.Reason != nil && *req.Reason != "" {
		reason = *req.Reason
	}
	wasConfirmed := booking.Status == models.BookingStatusConfirmed
	refunded := wasConfirmed && booking.PaymentStatus == models.PaymentStatusPaid

	won, err := s.bookingRepo.MarkCancelled(ctx, booking.ID, reason, refunded, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperrors.ErrInvalidTransition
	}

	if err := s.zoneRepo.Release(ctx, booking.ZoneID, booking.Quantity, wasConfirmed); err != nil {
		// Transition committed but the counters did not move. Surface loudly;
		// reconciliation fixes the ledger, not a retry of this call.
		logger.WithContext(ctx).Error("Failed to release zone capacity after cancellation",
			"error", err, "booking_id", booking.ID, "zone_id", booking.ZoneID)
	}

	metrics.BookingsCancelled.Inc()
	s.availability.InvalidateZone(ctx, booking.ZoneID)

	booking, err = s.bookingRepo.GetByID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	s.indexBooking(ctx, booking)

	s.publish(ctx, models.EventBookingCancelled, models.BookingCancelledEvent{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		ZoneID:      booking.ZoneID,
		Refunded:    refunded,
		Reason:      reason,
		Timestamp:   now,
	})
	s.publishZoneInventory(ctx, booking.ZoneID)

	return booking, nil
}

// GetByCode returns a booking to its owner or an admin, flipping a stale
// pending hold to expired on read.
func (s *BookingService) GetByCode(ctx context.Context, userID int64, code string) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, booking); err != nil {
		return nil, err
	}
	return s.reapIfExpired(ctx, booking), nil
}

func (s *BookingService) ListMine(ctx context.Context, userID int64, status string, page, pageSize int) (*models.BookingListResponse, error) {
	bookings, total, err := s.bookingRepo.ListByUser(ctx, userID, status, page, pageSize)
	if err != nil {
		return nil, err
	}
	return listResponse(bookings, total, page, pageSize), nil
}

// ListAll serves the admin listing. A free-text query routes through the
// search index when one is wired; structured filters always work off the
// database.
func (s *BookingService) ListAll(ctx context.Context, query string, filter *models.BookingFilter) (*models.BookingListResponse, error) {
	if query != "" && s.bookingIndex != nil {
		bookings, total, err := s.bookingIndex.Search(ctx, query, filter)
		if err == nil {
			return listResponse(bookings, total, filter.Page, filter.PageSize), nil
		}
		logger.WithContext(ctx).Warn("Booking search failed, falling back to database", "error", err)
	}

	bookings, total, err := s.bookingRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return listResponse(bookings, total, filter.Page, filter.PageSize), nil
}

// GetZoneBookingInfo assembles the pre-checkout zone snapshot: availability,
// areas and currently taken seats.
func (s *BookingService) GetZoneBookingInfo(ctx context.Context, zoneID int64) (*models.ZoneBookingInfo, error) {
	zone, err := s.zoneRepo.GetByID(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	event, err := s.eventRepo.GetByID(ctx, zone.EventID)
	if err != nil {
		return nil, err
	}

	info := &models.ZoneBookingInfo{
		Event:        *event,
		Zone:         *zone,
		Availability: s.zoneAvailability(ctx, zone),
	}

	if zone.HasSeating {
		areas, err := s.areaRepo.ListByZone(ctx, zoneID)
		if err != nil {
			return nil, err
		}
		info.Areas = areas

		for _, area := range areas {
			taken, err := s.bookingRepo.TakenSeats(ctx, zoneID, area.ID)
			if err != nil {
				return nil, err
			}
			info.TakenSeats = append(info.TakenSeats, taken...)
		}
	}

	return info, nil
}

func (s *BookingService) zoneAvailability(ctx context.Context, zone *models.Zone) models.ZoneAvailability {
	if cached, ok := s.availability.GetZone(ctx, zone.ID); ok {
		return *cached
	}

	snapshot := models.ZoneAvailability{
		ZoneID:             zone.ID,
		EventID:            zone.EventID,
		Capacity:           zone.Capacity,
		SoldCount:          zone.SoldCount,
		ConfirmedSoldCount: zone.ConfirmedSoldCount,
		Available:          zone.Available(),
	}
	s.availability.SetZone(ctx, &snapshot)
	return snapshot
}

// reapIfExpired applies lazy expiry on the read path so clients never see a
// pending booking whose hold has lapsed. Losing the guard to the sweeper is
// fine; the reread reflects whoever won.
func (s *BookingService) reapIfExpired(ctx context.Context, booking *models.Booking) *models.Booking {
	if booking.Status != models.BookingStatusPending || s.now().Before(booking.ExpiresAt) {
		return booking
	}

	won, err := s.bookingRepo.MarkExpired(ctx, booking.ID)
	if err != nil {
		logger.WithContext(ctx).Error("Lazy expiry failed", "error", err, "booking_id", booking.ID)
		return booking
	}

	if won {
		if err := s.zoneRepo.Release(ctx, booking.ZoneID, booking.Quantity, false); err != nil {
			logger.WithContext(ctx).Error("Failed to release zone capacity after lazy expiry",
				"error", err, "booking_id", booking.ID, "zone_id", booking.ZoneID)
		}
		metrics.BookingsExpired.Inc()
		s.availability.InvalidateZone(ctx, booking.ZoneID)
		s.publish(ctx, models.EventBookingExpired, models.BookingExpiredEvent{
			BookingID:   booking.ID,
			BookingCode: booking.BookingCode,
			ZoneID:      booking.ZoneID,
			Quantity:    booking.Quantity,
			Reason:      "hold lapsed",
			Timestamp:   s.now(),
		})
		s.publishZoneInventory(ctx, booking.ZoneID)
	}

	refreshed, err := s.bookingRepo.GetByID(ctx, booking.ID)
	if err != nil {
		return booking
	}
	s.indexBooking(ctx, refreshed)
	return refreshed
}

func (s *BookingService) authorize(ctx context.Context, userID int64, booking *models.Booking) error {
	if booking.UserID == userID {
		return nil
	}
	if middleware.RoleFromContext(ctx) == middleware.RoleAdmin {
		return nil
	}
	return apperrors.ErrBookingNotFound
}

func (s *BookingService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err, "subject", subject)
	}
}

func (s *BookingService) publishZoneInventory(ctx context.Context, zoneID int64) {
	zone, err := s.zoneRepo.GetByID(ctx, zoneID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to load zone for inventory event",
			"error", err, "zone_id", zoneID)
		return
	}

	s.publish(ctx, models.EventZoneInventory, models.ZoneInventoryEvent{
		ZoneAvailability: models.ZoneAvailability{
			ZoneID:             zone.ID,
			EventID:            zone.EventID,
			Capacity:           zone.Capacity,
			SoldCount:          zone.SoldCount,
			ConfirmedSoldCount: zone.ConfirmedSoldCount,
			Available:          zone.Available(),
		},
		Timestamp: s.now(),
	})
}

func (s *BookingService) indexBooking(ctx context.Context, booking *models.Booking) {
	if s.bookingIndex == nil {
		return
	}
	if err := s.bookingIndex.IndexBooking(ctx, booking); err != nil {
		logger.WithContext(ctx).Warn("Failed to index booking",
			"error", err, "booking_id", booking.ID)
	}
}

func listResponse(bookings []models.Booking, total, page, pageSize int) *models.BookingListResponse {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	return &models.BookingListResponse{
		Bookings: bookings,
		Pagination: models.Pagination{
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	}
}
