package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/external"
	"tessera/internal/messaging"
	"tessera/internal/repository"
	"tessera/internal/search"
)

// eventPublisher is the slice of the NATS client the services need. Kept
// local so tests can swap in a recording fake.
type eventPublisher interface {
	Publish(subject string, data interface{}) error
}

// mailSender abstracts the transactional mailer.
type mailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// orderCapturer abstracts the pull provider's capture call.
type orderCapturer interface {
	CreateOrder(ctx context.Context, req *external.CreateOrderRequest) (*external.CreateOrderResponse, error)
	CaptureOrder(ctx context.Context, orderID string) (*external.CaptureOrderResponse, error)
}

type Services struct {
	Bookings *BookingService
	Payments *PaymentService
	Tickets  *TicketService
}

func NewServices(
	cfg *config.Config,
	repos *repository.Repositories,
	natsClient *messaging.NATSClient,
	captureClient *external.CaptureClient,
	mailer *external.Mailer,
	availability *cache.AvailabilityCache,
	bookingIndex *search.BookingIndex,
) *Services {
	ticketService := NewTicketService(repos.Tickets, repos.Bookings, repos.Areas, natsClient)
	bookingService := NewBookingService(cfg, repos, natsClient, availability, bookingIndex)
	paymentService := NewPaymentService(cfg, repos, ticketService, natsClient, captureClient, mailer, availability, bookingIndex)

	return &Services{
		Bookings: bookingService,
		Payments: paymentService,
		Tickets:  ticketService,
	}
}

// newBookingCode builds a human-quotable booking reference: a BK prefix, the
// creation timestamp, and a random suffix to break same-second collisions.
func newBookingCode(now time.Time) string {
	return fmt.Sprintf("BK%s%s", now.Format("20060102150405"), randomHex(3))
}

// newTicketCode builds a ticket code unique per physical ticket. The random
// part is wide enough that a database collision means retry, not redesign.
func newTicketCode(now time.Time) string {
	return fmt.Sprintf("TK%d%s", now.UnixMilli(), randomHex(4))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in much deeper trouble
		// than code generation.
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
