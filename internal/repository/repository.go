// Package repository holds the persistence layer. All writes that race, such
// as capacity holds, status transitions and check-ins, are expressed as
// conditional updates guarded on the expected prior state; callers branch on
// whether the guard won instead of taking in-process locks.
package repository

import (
	"context"
	"time"

	"tessera/internal/database"
	"tessera/internal/models"
)

// EventRepository reads the catalog projection.
type EventRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// ZoneRepository is the inventory ledger. Reserve, Release and ConfirmSold
// are the only operations allowed to touch the zone counters.
type ZoneRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Zone, error)
	// Reserve places a provisional hold: a single test-and-increment that
	// only succeeds while sold_count + quantity stays within capacity.
	Reserve(ctx context.Context, zoneID int64, quantity int) error
	// Release returns a hold. wasConfirmed also decrements the settled
	// counter, for cancellations of paid bookings.
	Release(ctx context.Context, zoneID int64, quantity int, wasConfirmed bool) error
	// ConfirmSold moves a provisional hold into the settled counter without
	// changing the total held.
	ConfirmSold(ctx context.Context, zoneID int64, quantity int) error
}

// AreaRepository reads seat groups.
type AreaRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Area, error)
	ListByZone(ctx context.Context, zoneID int64) ([]models.Area, error)
}

// BookingRepository owns booking rows. Transitions out of pending are
// guarded; the bool result reports whether this caller won the guard.
type BookingRepository interface {
	// CreateReserved validates seat conflicts and reserves zone capacity in
	// the same transaction that persists the booking, so the conflict check
	// and the hold cannot be separated by a concurrent writer. The capacity
	// hold runs through the ledger's guarded increment.
	CreateReserved(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	GetByCode(ctx context.Context, code string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64, status string, page, pageSize int) ([]models.Booking, int, error)
	List(ctx context.Context, filter *models.BookingFilter) ([]models.Booking, int, error)
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	TakenSeats(ctx context.Context, zoneID int64, areaID int64) ([]string, error)
	MarkConfirmed(ctx context.Context, id int64, providerTxnID string, paidAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, id int64) (bool, error)
	MarkCancelled(ctx context.Context, id int64, reason string, refunded bool, at time.Time) (bool, error)
}

// PaymentRepository owns settlement records, keyed by provider transaction id.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	// UpsertSucceeded records a settlement as succeeded, keyed on the
	// provider transaction id; replays land on the same row.
	UpsertSucceeded(ctx context.Context, p *models.Payment) error
	GetByProviderTxnID(ctx context.Context, txnID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Payment, error)
}

// TicketRepository owns issued tickets. CheckIn and Cancel are guarded
// single-winner transitions.
type TicketRepository interface {
	ListByBooking(ctx context.Context, bookingID int64) ([]models.Ticket, error)
	InsertBatch(ctx context.Context, tickets []*models.Ticket) error
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	CheckIn(ctx context.Context, code string, at time.Time, location, deviceInfo string, operatorID int64) (*models.Ticket, error)
	Cancel(ctx context.Context, code string, cancelledBy int64, at time.Time) (*models.Ticket, error)
}

// Repositories aggregates the Postgres implementations.
type Repositories struct {
	Events   EventRepository
	Zones    ZoneRepository
	Areas    AreaRepository
	Bookings BookingRepository
	Payments PaymentRepository
	Tickets  TicketRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Events:   NewEventRepository(db),
		Zones:    NewZoneRepository(db),
		Areas:    NewAreaRepository(db),
		Bookings: NewBookingRepository(db),
		Payments: NewPaymentRepository(db),
		Tickets:  NewTicketRepository(db),
	}
}
