package consumers

import (
	"context"
	"encoding/json"

	"github.com/nats-io/stan.go"

	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/search"
)

// Handlers consume the lifecycle fan-out. Their job is strictly secondary
// work: keeping the search index in step and leaving an audit trail. They
// never mutate booking state; the API owns every transition.
type Handlers struct {
	repos        *repository.Repositories
	bookingIndex *search.BookingIndex
}

func NewHandlers(repos *repository.Repositories, bookingIndex *search.BookingIndex) *Handlers {
	return &Handlers{
		repos:        repos,
		bookingIndex: bookingIndex,
	}
}

func (h *Handlers) HandleBookingCreated(m *stan.Msg) {
	var event models.BookingCreatedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal booking created event", "error", err)
		return
	}

	logger.Get().Info("Booking created",
		"booking_code", event.BookingCode, "zone_id", event.ZoneID, "quantity", event.Quantity)

	h.reindex(event.BookingID)
	m.Ack()
}

func (h *Handlers) HandleBookingExpired(m *stan.Msg) {
	var event models.BookingExpiredEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal booking expired event", "error", err)
		return
	}

	logger.Get().Info("Booking expired",
		"booking_code", event.BookingCode, "zone_id", event.ZoneID, "reason", event.Reason)

	h.reindex(event.BookingID)
	m.Ack()
}

func (h *Handlers) HandleBookingCancelled(m *stan.Msg) {
	var event models.BookingCancelledEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal booking cancelled event", "error", err)
		return
	}

	logger.Get().Info("Booking cancelled",
		"booking_code", event.BookingCode, "refunded", event.Refunded, "reason", event.Reason)

	h.reindex(event.BookingID)
	m.Ack()
}

func (h *Handlers) HandlePaymentSettled(m *stan.Msg) {
	var event models.PaymentSettledEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal payment settled event", "error", err)
		return
	}

	logger.Get().Info("Payment settled",
		"booking_code", event.BookingCode, "provider", event.Provider,
		"transaction_id", event.TransactionID, "amount", event.Amount)

	h.reindex(event.BookingID)
	m.Ack()
}

func (h *Handlers) HandleTicketCheckedIn(m *stan.Msg) {
	var event models.TicketCheckedInEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		logger.Get().Error("Failed to unmarshal ticket checked in event", "error", err)
		return
	}

	logger.Get().Info("Ticket checked in",
		"ticket_code", event.TicketCode, "event_id", event.EventID, "location", event.Location)

	m.Ack()
}

func (h *Handlers) reindex(bookingID int64) {
	if h.bookingIndex == nil {
		return
	}

	ctx := context.Background()
	booking, err := h.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		logger.Get().Error("Failed to load booking for reindex", "error", err, "booking_id", bookingID)
		return
	}

	if err := h.bookingIndex.IndexBooking(ctx, booking); err != nil {
		logger.Get().Error("Failed to reindex booking", "error", err, "booking_id", bookingID)
	}
}
