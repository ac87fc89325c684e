package service

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/skip2/go-qrcode"

	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/metrics"
	"tessera/internal/middleware"
	"tessera/internal/models"
	"tessera/internal/repository"
)

// Code collisions are rare; retrying the whole batch with fresh codes is the
// entire recovery strategy.
const issueRetries = 3

type TicketService struct {
	ticketRepo  repository.TicketRepository
	bookingRepo repository.BookingRepository
	areaRepo    repository.AreaRepository
	publisher   eventPublisher
	now         func() time.Time
}

func NewTicketService(ticketRepo repository.TicketRepository, bookingRepo repository.BookingRepository, areaRepo repository.AreaRepository, publisher eventPublisher) *TicketService {
	return &TicketService{
		ticketRepo:  ticketRepo,
		bookingRepo: bookingRepo,
		areaRepo:    areaRepo,
		publisher:   publisher,
		now:         time.Now,
	}
}

// IssueFromBooking creates the booking's ticket set exactly once. If tickets
// already exist the existing set is returned unchanged, so both the
// settlement path and the manual replay endpoint can call this blindly.
func (s *TicketService) IssueFromBooking(ctx context.Context, booking *models.Booking) ([]models.Ticket, error) {
	if booking.Status != models.BookingStatusConfirmed {
		return nil, apperrors.ErrBookingNotConfirmed
	}

	existing, err := s.ticketRepo.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		tickets, err := s.buildTickets(booking)
		if err != nil {
			return nil, err
		}

		err = s.ticketRepo.InsertBatch(ctx, tickets)
		if err == nil {
			issued := make([]models.Ticket, len(tickets))
			codes := make([]string, len(tickets))
			for i, t := range tickets {
				issued[i] = *t
				codes[i] = t.TicketCode
				metrics.TicketsIssued.Inc()
			}

			s.publish(ctx, models.EventTicketIssued, models.TicketIssuedEvent{
				BookingCode: booking.BookingCode,
				TicketCodes: codes,
				EventID:     booking.EventID,
				ZoneID:      booking.ZoneID,
				Timestamp:   s.now(),
			})

			return issued, nil
		}
		if err != apperrors.ErrDuplicateTicketCode && err != apperrors.ErrTicketsAlreadyIssued {
			return nil, err
		}
		lastErr = err

		// A concurrent issuer may have won the whole batch. Re-check before
		// regenerating codes.
		existing, listErr := s.ticketRepo.ListByBooking(ctx, booking.ID)
		if listErr == nil && len(existing) > 0 {
			return existing, nil
		}
	}

	return nil, lastErr
}

// Issue is the operator-facing replay of issuance for a settled booking
// whose original issuance failed mid-flight.
func (s *TicketService) Issue(ctx context.Context, req *models.IssueTicketsRequest) ([]models.Ticket, error) {
	booking, err := s.bookingRepo.GetByCode(ctx, req.BookingCode)
	if err != nil {
		return nil, err
	}
	return s.IssueFromBooking(ctx, booking)
}

func (s *TicketService) buildTickets(booking *models.Booking) ([]*models.Ticket, error) {
	count := booking.Quantity
	seated := booking.Seated()
	if seated {
		count = len(booking.Seats)
	}

	tickets := make([]*models.Ticket, 0, count)
	for i := 0; i < count; i++ {
		code := newTicketCode(s.now())
		qr, err := qrCodeDataURL(code)
		if err != nil {
			return nil, err
		}

		ticket := &models.Ticket{
			TicketCode: code,
			BookingID:  booking.ID,
			UserID:     booking.UserID,
			EventID:    booking.EventID,
			ZoneID:     booking.ZoneID,
			AreaID:     booking.AreaID,
			Price:      booking.UnitPrice,
			Status:     models.TicketStatusValid,
			QRCode:     qr,
		}
		if seated {
			seat := booking.Seats[i]
			ticket.SeatLabel = &seat
		}
		tickets = append(tickets, ticket)
	}

	return tickets, nil
}

// CheckIn redeems a ticket at the gate. The repository guard decides the
// winner when the same code is scanned twice.
func (s *TicketService) CheckIn(ctx context.Context, operatorID int64, req *models.CheckInRequest) (*models.Ticket, error) {
	ticket, err := s.ticketRepo.CheckIn(ctx, req.TicketCode, s.now(), req.Location, req.DeviceInfo, operatorID)
	if err != nil {
		return nil, err
	}

	metrics.TicketsCheckedIn.Inc()
	s.publish(ctx, models.EventTicketCheckedIn, models.TicketCheckedInEvent{
		TicketCode:  ticket.TicketCode,
		EventID:     ticket.EventID,
		ZoneID:      ticket.ZoneID,
		SeatLabel:   ticket.SeatLabel,
		CheckedInAt: *ticket.CheckedInAt,
		Location:    req.Location,
	})

	return ticket, nil
}

func (s *TicketService) CancelTicket(ctx context.Context, operatorID int64, req *models.CancelTicketRequest) (*models.Ticket, error) {
	return s.ticketRepo.Cancel(ctx, req.TicketCode, operatorID, s.now())
}

// Validate answers "would this ticket admit someone" without consuming it.
func (s *TicketService) Validate(ctx context.Context, code string) (*models.TicketValidationResponse, error) {
	ticket, err := s.ticketRepo.GetByCode(ctx, code)
	if err == apperrors.ErrTicketNotFound {
		return &models.TicketValidationResponse{Valid: false, Message: "ticket not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	resp := &models.TicketValidationResponse{Ticket: ticket}
	switch ticket.Status {
	case models.TicketStatusValid:
		resp.Valid = true
		resp.Message = "ticket is valid"
	case models.TicketStatusUsed:
		resp.Message = "ticket already used"
		resp.UsedAt = ticket.CheckedInAt
	case models.TicketStatusCancelled:
		resp.Message = "ticket cancelled"
	default:
		resp.Message = "ticket expired"
	}

	return resp, nil
}

// GetByCode returns a ticket to its owner or an operator.
func (s *TicketService) GetByCode(ctx context.Context, userID int64, code string) (*models.Ticket, error) {
	ticket, err := s.ticketRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID && middleware.RoleFromContext(ctx) != middleware.RoleAdmin {
		return nil, apperrors.ErrTicketNotFound
	}
	return ticket, nil
}

// ListByBooking returns the ticket set of a booking the caller may see.
func (s *TicketService) ListByBooking(ctx context.Context, userID int64, bookingCode string) ([]models.Ticket, error) {
	booking, err := s.bookingRepo.GetByCode(ctx, bookingCode)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID && middleware.RoleFromContext(ctx) != middleware.RoleAdmin {
		return nil, apperrors.ErrBookingNotFound
	}
	return s.ticketRepo.ListByBooking(ctx, booking.ID)
}

func (s *TicketService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(subject, data); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err, "subject", subject)
	}
}

func qrCodeDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
